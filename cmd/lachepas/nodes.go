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
	"github.com/kraklabs/lachepas/pkg/catalog"
)

func runAddNode(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("add-node", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: lachepas add-node <name> <url>\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	if fs.NArg() != 2 {
		fs.Usage()
		os.Exit(1)
	}
	name, url := fs.Arg(0), fs.Arg(1)

	ws, err := openWorkspace(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer ws.Close()

	if err := ws.Cfg.AddNode(name, url); err != nil {
		errors.FatalError(err, globals.JSON)
	}
	if err := ws.Cfg.Save(); err != nil {
		errors.FatalError(err, globals.JSON)
	}

	node := &catalog.StorageNode{NodeName: name, Active: true}
	if err := ws.Cat.InsertStorageNode(cliContext(), node); err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if !globals.Quiet {
		ui.Successf("registered node %s at %s", name, url)
	}
}

func runRemoveNode(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("remove-node", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: lachepas remove-node <name>\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	name := fs.Arg(0)

	ws, err := openWorkspace(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer ws.Close()

	ctx := cliContext()
	node, err := ws.Cat.GetStorageNodeByName(ctx, name)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	if node != nil {
		if err := ws.Cat.DeleteStorageNode(ctx, node.ID); err != nil {
			errors.FatalError(err, globals.JSON)
		}
	}

	ws.Cfg.RemoveNode(name)
	if err := ws.Cfg.Save(); err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if !globals.Quiet {
		ui.Successf("removed node %s", name)
	}
}

func runListNodes(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("list-nodes", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: lachepas list-nodes\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	ws, err := openWorkspace(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer ws.Close()

	nodes, err := ws.Cat.ListStorageNodes(cliContext(), false)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	urlFor := make(map[string]string, len(ws.Cfg.Nodes))
	for _, n := range ws.Cfg.Nodes {
		urlFor[n.Name] = n.URL
	}

	if !globals.Quiet {
		ui.Header(fmt.Sprintf("%d node(s)", len(nodes)))
	}
	for _, n := range nodes {
		status := "active"
		if !n.Active {
			status = "inactive"
		}
		fmt.Printf("%s  %s  %s\n", n.NodeName, urlFor[n.NodeName], ui.DimText(status))
	}
}
