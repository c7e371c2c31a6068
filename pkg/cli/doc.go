// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cli implements the command-line interface for catalogsnap.
//
// # Overview
//
// catalogsnap compiles Puppet catalogs for one or more hosts, stores each
// catalog as a canonical snapshot and reports how it differs from the
// previously stored one. It never applies a catalog.
//
// # Commands
//
// capture (default action) - Compile and record catalogs:
//
//	catalogsnap --host web01 --class base --store /srv/catalogs
//	catalogsnap -H web01 -H web02 --manifests /etc/puppet/manifests -s /srv/catalogs --parallel 2
//	catalogsnap --host web01 --classfile ./site.pp              # print, do not store
//	catalogsnap --config request.yaml --host web01 --format json
//
// Exactly one manifest source is used per capture, by precedence:
// --class, then --classfile, then --manifests. With --class an ephemeral
// node manifest is written for the run and removed afterwards.
//
// With --store the snapshot is written under <store>/json, a rendering is
// added under <store>/pretty, the new snapshot is compared with the current
// one and then promoted. Without --store the rendering is printed to stdout.
//
// diff - Compare snapshots:
//
//	catalogsnap diff OLD NEW
//	catalogsnap diff --store /srv/catalogs --host web01 ./web01.json --exit-code
//
// history - List stored captures:
//
//	catalogsnap history --store /srv/catalogs
//	catalogsnap history --store /srv/catalogs --host web01
//
// # Request File
//
// The --config flag reads capture settings from YAML:
//
//	vardir: /var/puppet
//	store: /srv/catalogs
//	modules: /etc/puppet/modules
//	class: base
//	timeout: 5m
//
// Flags override file values.
//
// # Global Flags
//
//	--output, -o   Output file path (default: stdout)
//	--format       Output format: text, json, yaml, table (default: text)
//	--debug        Enable debug logging
//	--log-json     Output logs in JSON format
//	--help, -h     Show command help
//	--version, -v  Show version information
//
// # Environment Variables
//
//	LOG_LEVEL              Set logging verbosity (debug, info, warn, error)
//	CATALOGSNAP_VARDIR     Default for --vardir
//	CATALOGSNAP_STORE      Default for --store
//	CATALOGSNAP_MODULES    Default for --modules
//	CATALOGSNAP_MANIFESTS  Default for --manifests
//	CATALOGSNAP_COMPILER   Default for --compiler
//	CATALOGSNAP_TIMEOUT    Default for --timeout
//
// # Exit Codes
//
//	0  Success
//	N  Capture: the compiler's own non-zero exit status, the highest across hosts
//	N  Capture: the number of validation problems, before anything runs
//	1  Any other error, or differing snapshots with diff --exit-code
//
// Statuses above 255 are reported as 255.
//
// # Architecture
//
// The CLI uses the urfave/cli/v3 framework and delegates to specialized packages:
//   - pkg/snapshotter - Capture orchestration
//   - pkg/request - Capture request and validation
//   - pkg/command - Compiler command line
//   - pkg/capture - Compiler execution
//   - pkg/catalog - Canonical snapshots
//   - pkg/store - Snapshot storage and promotion
//   - pkg/diff - Snapshot comparison
//   - pkg/serializer - Output formatting
//   - pkg/logging - Structured logging
//
// Version information is embedded at build time using ldflags:
//
//	go build -ldflags="-X 'github.com/catalogsnap/catalogsnap/pkg/cli.version=1.0.0'"
package cli
