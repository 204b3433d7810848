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
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/lachepas/internal/errors"
	"github.com/kraklabs/lachepas/internal/ui"
	"github.com/kraklabs/lachepas/pkg/catalog"
)

func runInitDirectory(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("init-directory", flag.ExitOnError)
	recurse := fs.Bool("recurse", true, "Recurse into subdirectories")
	compress := fs.Bool("compress", false, "Compress block payloads before storage")
	encrypt := fs.Bool("encrypt", false, "Encrypt block payloads with AES-256")
	copyCount := fs.Int64("copy-count", 1, "Number of nodes each block must reach")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: lachepas init-directory <path> [options]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	path, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		errors.FatalError(errors.NewInputError("Invalid path", err.Error(), "", err), globals.JSON)
	}

	ws, err := openWorkspace(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer ws.Close()

	dir := &catalog.LocalDirectory{
		Path: path, Active: true, Recurse: *recurse,
		Compress: *compress, Encrypt: *encrypt, CopyCount: *copyCount,
	}
	if err := ws.Cat.InsertLocalDirectory(cliContext(), dir); err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if !globals.Quiet {
		ui.Successf("registered directory %s (id %d)", path, dir.ID)
	}
}

func runListFiles(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("list-files", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: lachepas list-files <path>\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	path, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		errors.FatalError(errors.NewInputError("Invalid path", err.Error(), "", err), globals.JSON)
	}

	ws, err := openWorkspace(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer ws.Close()

	ctx := cliContext()
	dir, err := ws.Cat.GetLocalDirectoryByPath(ctx, path)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	if dir == nil {
		errors.FatalError(errors.NewNotFoundError("Directory not registered", path+" has not been registered", "Run init-directory first", nil), globals.JSON)
	}

	files, err := ws.Cat.ListLocalFilesForDirectory(ctx, dir.ID)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if !globals.Quiet {
		ui.Header(fmt.Sprintf("%d file(s) under %s", len(files), path))
	}
	for _, f := range files {
		if f.CopyTimeUnix == 0 {
			fmt.Printf("%s %s\n", f.RelativePath, ui.DimText("(not yet synced)"))
		} else {
			fmt.Println(f.RelativePath)
		}
	}
}
