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
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/lachepas/internal/errors"
	"github.com/kraklabs/lachepas/internal/ui"
	"github.com/kraklabs/lachepas/pkg/nodeclient"
	"github.com/kraklabs/lachepas/pkg/wire"
)

// runAdminProbe sends one of wire.AdminCommands to a node. The node always
// answers rc=false/"not implemented" per the command table; this exists so
// operators can confirm a node is alive and speaking the protocol at all.
func runAdminProbe(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("admin-probe", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: lachepas admin-probe <node> <command>\n\nKnown commands: %s\n\n", strings.Join(wire.AdminCommands, ", "))
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	if fs.NArg() != 2 {
		fs.Usage()
		os.Exit(1)
	}
	nodeName, command := fs.Arg(0), fs.Arg(1)

	ws, err := openWorkspace(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer ws.Close()

	url := urlForNode(ws.Cfg.Nodes, nodeName)
	if url == "" {
		errors.FatalError(errors.NewConfigError("Node URL not configured", nodeName+" has no URL in the configuration", "", nil), globals.JSON)
	}

	client := nodeclient.New(nodeName, url)
	resp, err := client.AdminProbe(cliContext(), command)
	if err != nil {
		if resp.Headers == nil {
			// No response reached us at all: a real transport failure.
			errors.FatalError(err, globals.JSON)
		}
		// The node answered, just with rc=false/"not implemented" as the
		// command table requires. That is success for a liveness probe.
		fmt.Printf("%s: %s: %s\n", nodeName, command, resp.Error())
		return
	}

	ui.Successf("%s: %s", nodeName, command)
}
