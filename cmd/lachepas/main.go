// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main implements the lachepas CLI: registering directories and
// storage nodes, running sync passes, and restoring from a node.
//
// Usage:
//
//	lachepas init-directory <path>          Register a directory for replication
//	lachepas add-node <name> <url>          Register a storage node
//	lachepas sync <path>                    Scan a directory and replicate changes
//	lachepas restore <node> <path> <target> Rebuild a directory from a node
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/lachepas/internal/buildinfo"
	"github.com/kraklabs/lachepas/internal/ui"
)

// GlobalFlags holds the global CLI flags that apply to all commands.
type GlobalFlags struct {
	JSON    bool
	NoColor bool
	Verbose int
	Quiet   bool
}

func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		configPath  = flag.StringP("config", "c", "", "Path to lachepas.conf (default: ./.lachepas/lachepas.conf)")
		jsonOutput  = flag.Bool("json", false, "Output in JSON format (for applicable commands)")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		verbose     = flag.CountP("verbose", "v", "Increase verbosity (-v for info, -vv for debug)")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress non-essential output")
	)

	// Stop parsing at the first non-flag argument so subcommand-specific
	// flags (e.g. "sync --key-file k" or "init-directory --encrypt") reach
	// their own flag sets instead of being rejected here.
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `lachepas - content-addressed directory replication

Usage:
  lachepas <command> [options]

Commands:
  init-directory   Register a local directory for replication
  add-node         Register a storage node
  remove-node      Remove a registered storage node
  list-nodes       List registered storage nodes
  list-files       List files tracked under a registered directory
  sync             Scan a directory and replicate changed files to its nodes
  restore          Rebuild a directory's files from one node
  restore-subdir   Restore only files under one relative subdirectory
  restore-file     Restore a single file by its relative path
  admin-probe      Send an admin command to a node (always reports not implemented)
  catalog-backup   Snapshot the catalog database to a path
  catalog-restore  Replace the catalog database from a prior snapshot

Global Options:
  --json            Output in JSON format (for applicable commands)
  --no-color        Disable color output (respects NO_COLOR env var)
  -v, --verbose     Increase verbosity (-v for info, -vv for debug)
  -q, --quiet       Suppress non-essential output
  -c, --config      Path to lachepas.conf
  -V, --version     Show version and exit

Examples:
  lachepas init-directory ~/Documents --recurse
  lachepas add-node backup-1 http://10.0.0.5:9191
  lachepas sync ~/Documents --key-file ~/.lachepas/doc.key
  lachepas restore backup-1 ~/Documents /tmp/restore

For detailed command help: lachepas <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("lachepas version %s (commit %s, built %s)\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
		os.Exit(0)
	}

	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}
	if *jsonOutput {
		*quiet = true
	}
	if *noColor {
		ui.Disable()
	}

	globals := GlobalFlags{JSON: *jsonOutput, NoColor: *noColor, Verbose: *verbose, Quiet: *quiet}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init-directory":
		runInitDirectory(cmdArgs, *configPath, globals)
	case "add-node":
		runAddNode(cmdArgs, *configPath, globals)
	case "remove-node":
		runRemoveNode(cmdArgs, *configPath, globals)
	case "list-nodes":
		runListNodes(cmdArgs, *configPath, globals)
	case "list-files":
		runListFiles(cmdArgs, *configPath, globals)
	case "sync":
		runSync(cmdArgs, *configPath, globals)
	case "restore":
		runRestore(cmdArgs, *configPath, globals, restoreModeFull)
	case "restore-subdir":
		runRestore(cmdArgs, *configPath, globals, restoreModeSubdir)
	case "restore-file":
		runRestore(cmdArgs, *configPath, globals, restoreModeFile)
	case "admin-probe":
		runAdminProbe(cmdArgs, *configPath, globals)
	case "catalog-backup":
		runCatalogBackup(cmdArgs, *configPath, globals)
	case "catalog-restore":
		runCatalogRestore(cmdArgs, *configPath, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
