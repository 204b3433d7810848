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
	"github.com/kraklabs/lachepas/pkg/config"
	"github.com/kraklabs/lachepas/pkg/nodeclient"
	"github.com/kraklabs/lachepas/pkg/scanner"
)

func runSync(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	keyFile := fs.String("key-file", "", "Path to a 32-byte AES-256 key file (required if the directory has --encrypt set)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: lachepas sync <path> [--key-file <file>]\n\n")
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
	dir, err := ws.Cat.GetLocalDirectoryByPath(ctx, path)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	if dir == nil {
		errors.FatalError(errors.NewNotFoundError("Directory not registered", path+" has not been registered", "Run init-directory first", nil), globals.JSON)
	}
	if dir.Encrypt && key == nil {
		errors.FatalError(errors.NewBadKeyError("Encryption key required", path+" is configured with --encrypt", "Pass --key-file", nil), globals.JSON)
	}

	active, err := ws.Cat.ListStorageNodes(ctx, true)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	if len(active) == 0 {
		errors.FatalError(errors.NewConfigError("No active storage nodes", "Register at least one node with add-node before syncing", "", nil), globals.JSON)
	}

	targets := make([]scanner.NodeTarget, 0, len(active))
	for _, n := range active {
		url := urlForNode(ws.Cfg.Nodes, n.NodeName)
		if url == "" {
			ui.Warningf("node %s has no configured URL, skipping", n.NodeName)
			continue
		}
		targets = append(targets, scanner.NodeTarget{Node: n, Client: nodeclient.New(n.NodeName, url)})
	}
	if len(targets) == 0 {
		errors.FatalError(errors.NewConfigError("No reachable storage nodes", "Every active node is missing a URL in the configuration", "", nil), globals.JSON)
	}

	s := scanner.New(ws.Cat, ws.Cfg.ExclusionsFor, key)
	var copied int
	err = withSpinner(globals.Quiet, "scanning "+path, func() error {
		var scanErr error
		copied, scanErr = s.Scan(ctx, dir, targets)
		return scanErr
	})
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if !globals.Quiet {
		ui.Successf("synced %s: %d file(s) copied to at least one node", path, copied)
	}
}

func urlForNode(nodes []config.Node, name string) string {
	for _, n := range nodes {
		if n.Name == name {
			return n.URL
		}
	}
	return ""
}
