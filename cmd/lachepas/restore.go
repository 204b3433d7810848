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
	"github.com/kraklabs/lachepas/pkg/nodeclient"
	"github.com/kraklabs/lachepas/pkg/restorer"
)

type restoreMode int

const (
	restoreModeFull restoreMode = iota
	restoreModeSubdir
	restoreModeFile
)

// runRestore backs all three restore-* subcommands: they differ only in
// how many positional arguments they take and what Filter they build.
func runRestore(args []string, configPath string, globals GlobalFlags, mode restoreMode) {
	name, usage, extraArgName := restoreModeInfo(mode)

	fs := flag.NewFlagSet(name, flag.ExitOnError)
	keyFile := fs.String("key-file", "", "Path to a 32-byte AES-256 key file (required if the vault has encryption enabled)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s\n\n", usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	wantArgs := 3
	if extraArgName != "" {
		wantArgs = 4
	}
	if fs.NArg() != wantArgs {
		fs.Usage()
		os.Exit(1)
	}

	nodeName := fs.Arg(0)
	dirPath, err := filepath.Abs(fs.Arg(1))
	if err != nil {
		errors.FatalError(errors.NewInputError("Invalid path", err.Error(), "", err), globals.JSON)
	}
	targetDir := fs.Arg(2)

	var filter restorer.Filter
	if mode == restoreModeSubdir {
		filter.SubdirPrefix = filepath.Clean(fs.Arg(3))
	}
	if mode == restoreModeFile {
		filter.RelativePath = filepath.Clean(fs.Arg(3))
	}

	key, err := readKeyFile(*keyFile)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	ws, err := openWorkspace(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer ws.Close()

	ctx := cliContext()
	dir, err := ws.Cat.GetLocalDirectoryByPath(ctx, dirPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	if dir == nil {
		errors.FatalError(errors.NewNotFoundError("Directory not registered", dirPath+" has not been registered", "Run init-directory first", nil), globals.JSON)
	}

	node, err := ws.Cat.GetStorageNodeByName(ctx, nodeName)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	if node == nil {
		errors.FatalError(errors.NewNotFoundError("Node not registered", nodeName+" is not a known storage node", "Run add-node first", nil), globals.JSON)
	}

	url := urlForNode(ws.Cfg.Nodes, nodeName)
	if url == "" {
		errors.FatalError(errors.NewConfigError("Node URL not configured", nodeName+" has no URL in the configuration", "", nil), globals.JSON)
	}

	r := restorer.New(ws.Cat, nodeclient.New(nodeName, url), key)
	var result restorer.Result
	err = withSpinner(globals.Quiet, "restoring from "+nodeName, func() error {
		var restoreErr error
		result, restoreErr = r.Restore(ctx, node.ID, dir.ID, targetDir, filter)
		return restoreErr
	})
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if !globals.Quiet {
		ui.Successf("restored %d file(s) from %s into %s", result.FilesRestored, nodeName, targetDir)
		if result.FilesFailed > 0 {
			ui.Warningf("%d file(s) failed to restore; see log output above", result.FilesFailed)
		}
	}
	if result.FilesFailed > 0 {
		os.Exit(1)
	}
}

func restoreModeInfo(mode restoreMode) (name, usage, extraArgName string) {
	switch mode {
	case restoreModeSubdir:
		return "restore-subdir", "lachepas restore-subdir <node> <path> <target> <subdir> [--key-file <file>]", "subdir"
	case restoreModeFile:
		return "restore-file", "lachepas restore-file <node> <path> <target> <relative-path> [--key-file <file>]", "relative-path"
	default:
		return "restore", "lachepas restore <node> <path> <target> [--key-file <file>]", ""
	}
}
