/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/catalogsnap/catalogsnap/pkg/logging"
	"github.com/catalogsnap/catalogsnap/pkg/request"
	"github.com/catalogsnap/catalogsnap/pkg/serializer"
	"github.com/catalogsnap/catalogsnap/pkg/snapshotter"
)

const (
	name           = "catalogsnap"
	versionDefault = "dev"

	envPrefix = "CATALOGSNAP_"
)

var (
	// overridden during build with ldflags to reflect actual version info
	// e.g., -X "github.com/catalogsnap/catalogsnap/pkg/cli.version=1.0.0"
	version = versionDefault
	commit  = "unknown"
	date    = "unknown"
)

var (
	outputFlag = &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "output file path (default: stdout)",
	}

	formatFlag = &cli.StringFlag{
		Name:  "format",
		Value: string(serializer.FormatText),
		Usage: fmt.Sprintf("output format (%s)", strings.Join(serializer.SupportedFormats(), ", ")),
	}
)

// Execute runs the CLI with the process arguments and exits with the
// resulting status: the compiler's own status after a capture, the number of
// validation problems when the request is invalid, 1 on any other error.
func Execute() {
	root := newRootCmd()
	err := root.Run(context.Background(), os.Args)
	if err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintf(os.Stderr, "error: %s\n", msg)
		}
	}
	os.Exit(exitCode(err))
}

func newRootCmd() *cli.Command {
	return &cli.Command{
		Name:                  name,
		Version:               fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		EnableShellCompletion: true,
		Usage:                 "Compile, store and compare Puppet catalogs",
		Description: `Compiles the catalog of one or more hosts with the Puppet master, stores the
result as a canonical snapshot and reports what changed since the previous one.

Exactly one manifest source is used, in this order of precedence:
--class, --classfile, --manifests.

# Examples

Capture and compare a host against its last snapshot:
  catalogsnap --host web01 --class base --store /srv/catalogs

Capture several hosts, two at a time:
  catalogsnap -H web01 -H web02 -H db01 --manifests /etc/puppet/manifests \
    --store /srv/catalogs --parallel 2

Print a catalog without storing it:
  catalogsnap --host web01 --class base`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Local: true,
				Usage: "YAML request file; flags override its values",
			},
			&cli.StringFlag{
				Name:    "vardir",
				Local:   true,
				Aliases: []string{"V"},
				Value:   request.DefaultVarDir,
				Usage:   "Puppet var directory",
				Sources: cli.EnvVars(envPrefix + "VARDIR"),
			},
			&cli.StringSliceFlag{
				Name:    "host",
				Local:   true,
				Aliases: []string{"H"},
				Usage:   "host to compile the catalog for (can be repeated)",
			},
			&cli.StringFlag{
				Name:    "store",
				Local:   true,
				Aliases: []string{"s"},
				Usage:   "snapshot store directory; without it the catalog is printed and not compared",
				Sources: cli.EnvVars(envPrefix + "STORE"),
			},
			&cli.StringFlag{
				Name:    "modules",
				Local:   true,
				Usage:   "Puppet modules directory",
				Sources: cli.EnvVars(envPrefix + "MODULES"),
			},
			&cli.StringFlag{
				Name:    "manifests",
				Local:   true,
				Usage:   "Puppet manifests directory",
				Sources: cli.EnvVars(envPrefix + "MANIFESTS"),
			},
			&cli.StringFlag{
				Name:    "class",
				Local:   true,
				Aliases: []string{"c"},
				Usage:   "class to include for the host",
			},
			&cli.StringFlag{
				Name:  "classfile",
				Local: true,
				Usage: "manifest file to compile the host against",
			},
			&cli.StringFlag{
				Name:    "compiler",
				Local:   true,
				Value:   request.DefaultCompiler,
				Usage:   "Puppet binary",
				Sources: cli.EnvVars(envPrefix + "COMPILER"),
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Local:   true,
				Value:   request.DefaultTimeout,
				Usage:   "maximum time a single compile may take (0 disables)",
				Sources: cli.EnvVars(envPrefix + "TIMEOUT"),
			},
			&cli.IntFlag{
				Name:  "parallel",
				Local: true,
				Value: 1,
				Usage: "number of hosts compiled at the same time (0 means all)",
			},
			&cli.StringFlag{
				Name:  "metrics-file",
				Local: true,
				Usage: "write Prometheus metrics in text format to this file after the run",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
			&cli.BoolFlag{
				Name:  "log-json",
				Usage: "log in JSON format",
			},
			outputFlag,
			formatFlag,
		},
		Before: setupLogging,
		Action: captureAction,
		Commands: []*cli.Command{
			diffCmd(),
			historyCmd(),
		},
	}
}

func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	level := logging.LevelFromEnv()
	if cmd.Bool("debug") {
		level = slog.LevelDebug
	}
	logger := logging.NewLogger(cmd.Root().ErrWriter, level, cmd.Bool("log-json"))
	if cmd.Bool("log-json") {
		logger = logger.With(slog.String("module", name), slog.String("version", version))
	}
	slog.SetDefault(logger)
	return ctx, nil
}

func captureAction(ctx context.Context, cmd *cli.Command) error {
	outFormat, err := parseOutputFormat(cmd)
	if err != nil {
		return err
	}

	reqs, err := buildRequests(cmd)
	if err != nil {
		return err
	}

	// all hosts are validated before any compiler runs
	var problems []string
	for _, req := range reqs {
		problems = append(problems, request.Problems(req.Validate())...)
	}
	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintf(cmd.Root().ErrWriter, "%s\n", p)
		}
		return withStatus(len(problems), "")
	}

	s := &snapshotter.CatalogSnapshotter{
		Stderr:  cmd.Root().ErrWriter,
		Output:  cmd.Root().Writer,
		Version: version,
	}

	var results []*snapshotter.Result
	var captureErr error
	if len(reqs) == 1 {
		var res *snapshotter.Result
		res, captureErr = s.Capture(ctx, reqs[0])
		results = []*snapshotter.Result{res}
	} else {
		results, captureErr = snapshotter.CaptureAll(ctx, s, reqs, cmd.Int("parallel"))
	}

	if err := writeMetrics(cmd.String("metrics-file")); err != nil {
		slog.Warn("failed to write metrics", slog.String("error", err.Error()))
	}

	if err := reportResults(ctx, cmd, outFormat, results); err != nil {
		return err
	}
	if captureErr != nil {
		return captureErr
	}

	// the highest compiler status across hosts wins
	var worst *snapshotter.Result
	for _, res := range results {
		if res != nil && res.ExitCode != 0 && (worst == nil || res.ExitCode > worst.ExitCode) {
			worst = res
		}
	}
	if worst != nil {
		return withStatus(worst.ExitCode, "%s: compiler exited with status %d", worst.Host, worst.ExitCode)
	}
	return nil
}

// buildRequests turns the flags (and the optional request file) into one
// request per host. Without any host a single hostless request is returned
// so that validation reports it.
func buildRequests(cmd *cli.Command) ([]*request.Request, error) {
	var base []request.Option
	if path := cmd.String("config"); path != "" {
		fileOpts, err := request.LoadFile(path)
		if err != nil {
			return nil, err
		}
		base = append(base, fileOpts...)
	}

	if cmd.IsSet("vardir") {
		base = append(base, request.WithVarDir(cmd.String("vardir")))
	}
	if cmd.IsSet("store") {
		base = append(base, request.WithStoreDir(cmd.String("store")))
	}
	if cmd.IsSet("modules") {
		base = append(base, request.WithModuleDir(cmd.String("modules")))
	}
	if cmd.IsSet("manifests") {
		base = append(base, request.WithManifestDir(cmd.String("manifests")))
	}
	if cmd.IsSet("class") {
		base = append(base, request.WithClassName(cmd.String("class")))
	}
	if cmd.IsSet("classfile") {
		base = append(base, request.WithClassListPath(cmd.String("classfile")))
	}
	if cmd.IsSet("compiler") {
		base = append(base, request.WithCompiler(cmd.String("compiler")))
	}
	if cmd.IsSet("timeout") {
		base = append(base, request.WithTimeout(cmd.Duration("timeout")))
	}

	hosts := cmd.StringSlice("host")
	if len(hosts) == 0 {
		hosts = []string{""}
	}

	reqs := make([]*request.Request, 0, len(hosts))
	for _, host := range hosts {
		opts := append([]request.Option{request.WithHost(host)}, base...)
		reqs = append(reqs, request.New(opts...))
	}
	return reqs, nil
}

// reportResults prints capture results. Without a store the rendering already
// went to stdout, so only the command line is logged.
func reportResults(ctx context.Context, cmd *cli.Command, format serializer.Format, results []*snapshotter.Result) error {
	var stored []*snapshotter.Result
	for _, res := range results {
		if res == nil {
			continue
		}
		if res.Report == nil && res.RawOutputPath == "" && res.ExitCode == 0 {
			slog.Info("compiled catalog", slog.String("host", res.Host), slog.String("command", res.Command))
			continue
		}
		stored = append(stored, res)
	}

	switch {
	case len(stored) == 0:
		return nil
	case len(stored) == 1:
		return writeOutput(ctx, cmd, format, stored[0])
	case format == serializer.FormatText:
		var b strings.Builder
		for _, res := range stored {
			b.WriteString(res.String())
		}
		return writeOutput(ctx, cmd, format, textBlock(b.String()))
	default:
		return writeOutput(ctx, cmd, format, stored)
	}
}

type textBlock string

func (t textBlock) String() string { return string(t) }

func writeMetrics(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics to %q: %w", path, err)
	}
	slog.Debug("wrote metrics", slog.String("path", path))
	return nil
}
