/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/catalogsnap/catalogsnap/pkg/store"
)

// hostHistory is the output of the history command.
type hostHistory struct {
	Host       string            `json:"host" yaml:"host"`
	Renderings []store.Rendering `json:"renderings" yaml:"renderings"`
}

func (h *hostHistory) String() string {
	var b strings.Builder
	for _, r := range h.Renderings {
		fmt.Fprintf(&b, "%s  %s\n", r.CapturedAt.UTC().Format(time.RFC3339Nano), r.Path)
	}
	return b.String()
}

// hostList is the output of the history command without --host.
type hostList struct {
	Hosts []string `json:"hosts" yaml:"hosts"`
}

func (h *hostList) String() string {
	if len(h.Hosts) == 0 {
		return ""
	}
	return strings.Join(h.Hosts, "\n") + "\n"
}

func historyCmd() *cli.Command {
	return &cli.Command{
		Name:                  "history",
		EnableShellCompletion: true,
		Usage:                 "List stored captures",
		Description: `Lists the renderings stored for a host, oldest first. Without --host, lists
the hosts that have a current snapshot.

# Examples

  catalogsnap history --store /srv/catalogs
  catalogsnap history --store /srv/catalogs --host web01 --format json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "store",
				Aliases:  []string{"s"},
				Required: true,
				Usage:    "snapshot store directory",
				Sources:  cli.EnvVars(envPrefix + "STORE"),
			},
			&cli.StringFlag{
				Name:    "host",
				Aliases: []string{"H"},
				Usage:   "host to list captures for",
			},
			outputFlag,
			formatFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			outFormat, err := parseOutputFormat(cmd)
			if err != nil {
				return err
			}

			st := store.New(cmd.String("store"))
			host := cmd.String("host")

			if host == "" {
				hosts, err := st.Hosts()
				if err != nil {
					return err
				}
				return writeOutput(ctx, cmd, outFormat, &hostList{Hosts: hosts})
			}

			renderings, err := st.History(host)
			if err != nil {
				return err
			}
			if len(renderings) == 0 {
				return unknownHostError(st, host)
			}
			return writeOutput(ctx, cmd, outFormat, &hostHistory{Host: host, Renderings: renderings})
		},
	}
}
