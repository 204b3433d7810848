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

package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/lachepas/internal/errors"
	"github.com/kraklabs/lachepas/internal/ui"
)

// runCatalogBackup snapshots the catalog database to a path, so an operator
// can keep the catalog's own recovery story independent of whatever block
// replication the catalog describes.
func runCatalogBackup(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("catalog-backup", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: lachepas catalog-backup <out-path>\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	outPath := fs.Arg(0)

	ws, err := openWorkspace(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer ws.Close()

	if err := ws.Cat.Backup(outPath); err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if !globals.Quiet {
		ui.Successf("catalog backed up to %s", outPath)
	}
}

// runCatalogRestore replaces the open catalog's contents from a prior
// catalog-backup snapshot.
func runCatalogRestore(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("catalog-restore", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: lachepas catalog-restore <in-path>\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	inPath := fs.Arg(0)

	ws, err := openWorkspace(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer ws.Close()

	if err := ws.Cat.Restore(inPath); err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if !globals.Quiet {
		ui.Successf("catalog restored from %s", inPath)
	}
}
