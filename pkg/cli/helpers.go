/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/urfave/cli/v3"

	"github.com/catalogsnap/catalogsnap/pkg/serializer"
)

// parseOutputFormat extracts and validates the output format from CLI flags.
// Without an explicit --format, the --output file extension picks the format.
// Returns the validated format or an error if the format is unknown.
func parseOutputFormat(cmd *cli.Command) (serializer.Format, error) {
	outFormat := serializer.Format(cmd.String("format"))
	if !cmd.IsSet("format") {
		if path := cmd.String("output"); path != "" && path != serializer.StdoutURI {
			outFormat = serializer.FormatFromPath(path)
		}
	}
	if outFormat.IsUnknown() {
		return "", fmt.Errorf("unknown output format: %q, valid formats are: %s",
			outFormat, strings.Join(serializer.SupportedFormats(), ", "))
	}
	return outFormat, nil
}

// writeOutput serializes v to the --output destination, or to the command's
// writer when --output is unset.
func writeOutput(ctx context.Context, cmd *cli.Command, format serializer.Format, v any) error {
	path := cmd.String("output")
	if path == "" || path == serializer.StdoutURI {
		return serializer.NewWriter(format, cmd.Root().Writer).Serialize(ctx, v)
	}

	ser, err := serializer.NewFileWriterOrStdout(format, path)
	if err != nil {
		return err
	}
	defer func() {
		if closer, ok := ser.(serializer.Closer); ok {
			if err := closer.Close(); err != nil {
				slog.Warn("failed to close serializer", "error", err)
			}
		}
	}()
	return ser.Serialize(ctx, v)
}

// suggestHost returns the known host closest to host, or "" when none is
// close enough to be a likely typo.
func suggestHost(host string, known []string) string {
	best := ""
	bestDist := -1
	for _, k := range known {
		d := levenshtein.ComputeDistance(host, k)
		if bestDist < 0 || d < bestDist {
			best, bestDist = k, d
		}
	}
	if bestDist < 0 || bestDist > maxSuggestDistance(host) {
		return ""
	}
	return best
}

func maxSuggestDistance(host string) int {
	if d := len(host) / 3; d > 2 {
		return d
	}
	return 2
}

// statusError carries a process exit status out of an action. Execute exits
// with it; urfave/cli leaves it alone.
type statusError struct {
	msg    string
	status int
}

func (e *statusError) Error() string { return e.msg }

// withStatus returns an error exiting with status, clamped to 1..255 since
// the process exit code keeps only the low byte.
func withStatus(status int, format string, args ...any) error {
	return &statusError{msg: fmt.Sprintf(format, args...), status: min(max(status, 1), maxExitStatus)}
}

const maxExitStatus = 255

// exitCode maps an action error to a process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var se *statusError
	if stderrors.As(err, &se) {
		return se.status
	}
	var ec cli.ExitCoder
	if stderrors.As(err, &ec) {
		return ec.ExitCode()
	}
	return 1
}
