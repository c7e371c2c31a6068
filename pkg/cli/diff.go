/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/catalogsnap/catalogsnap/pkg/catalog"
	"github.com/catalogsnap/catalogsnap/pkg/diff"
	"github.com/catalogsnap/catalogsnap/pkg/store"
)

func diffCmd() *cli.Command {
	return &cli.Command{
		Name:                  "diff",
		EnableShellCompletion: true,
		Usage:                 "Compare two catalog snapshots",
		ArgsUsage:             "[OLD] NEW",
		Description: `Compares two snapshot files, or a snapshot file against the current snapshot
of a host. Files may be canonical snapshots, renderings from the store's
history, or raw compiler output.

# Examples

Compare two files:
  catalogsnap diff /srv/catalogs/pretty/web01.txt.1700000000.000000000 \
    /srv/catalogs/pretty/web01.txt.1700003600.000000000

Compare a file against the current snapshot of web01:
  catalogsnap diff --store /srv/catalogs --host web01 ./web01.json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "store",
				Aliases: []string{"s"},
				Usage:   "snapshot store directory, used with --host and a single file",
				Sources: cli.EnvVars(envPrefix + "STORE"),
			},
			&cli.StringFlag{
				Name:    "host",
				Aliases: []string{"H"},
				Usage:   "host whose current snapshot is the old side",
			},
			&cli.BoolFlag{
				Name:  "exit-code",
				Usage: "exit with status 1 when the snapshots differ",
			},
			outputFlag,
			formatFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			outFormat, err := parseOutputFormat(cmd)
			if err != nil {
				return err
			}

			prev, next, err := loadDiffSides(cmd)
			if err != nil {
				return err
			}

			report := diff.Compare(prev, next)
			if err := writeOutput(ctx, cmd, outFormat, report); err != nil {
				return err
			}

			if cmd.Bool("exit-code") && report.HasChanges() {
				return withStatus(1, "")
			}
			return nil
		},
	}
}

func loadDiffSides(cmd *cli.Command) (prev, next *catalog.Snapshot, err error) {
	args := cmd.Args().Slice()
	host := cmd.String("host")

	switch len(args) {
	case 2:
		if host == "" {
			host = hostFromPath(args[1])
		}
		if prev, err = store.Load(host, args[0]); err != nil {
			return nil, nil, err
		}
		if next, err = store.Load(host, args[1]); err != nil {
			return nil, nil, err
		}
		return prev, next, nil
	case 1:
		if cmd.String("store") == "" || host == "" {
			return nil, nil, fmt.Errorf("comparing a single file requires --store and --host")
		}
		st := store.New(cmd.String("store"))
		prev, err = st.Current(host)
		if err != nil {
			if stderrors.Is(err, store.ErrNoSnapshot) {
				return nil, nil, unknownHostError(st, host)
			}
			return nil, nil, err
		}
		if next, err = store.Load(host, args[0]); err != nil {
			return nil, nil, err
		}
		return prev, next, nil
	default:
		return nil, nil, fmt.Errorf("expected one or two snapshot files, got %d", len(args))
	}
}

// hostFromPath derives a host name from a snapshot file name such as
// "web01.json" or "web01.txt.1700000000.000000000".
func hostFromPath(path string) string {
	base := filepath.Base(path)
	if h, _, ok := strings.Cut(base, ".txt."); ok {
		return h
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// unknownHostError reports a host without snapshots, suggesting a close match.
func unknownHostError(st *store.Store, host string) error {
	known, err := st.Hosts()
	if err != nil {
		return err
	}
	if s := suggestHost(host, known); s != "" {
		return fmt.Errorf("no snapshot for host %q in %s, did you mean %q?", host, st.Root(), s)
	}
	return fmt.Errorf("no snapshot for host %q in %s", host, st.Root())
}
