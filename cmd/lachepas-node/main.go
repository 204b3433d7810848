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

// Command lachepas-node runs the storage-node daemon: a reference-counted
// block store behind pkg/nodeserver's HTTP dispatch.
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/lachepas/internal/buildinfo"
	"github.com/kraklabs/lachepas/internal/errors"
	"github.com/kraklabs/lachepas/pkg/blockstore"
	"github.com/kraklabs/lachepas/pkg/nodeserver"
)

func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		baseDir     = flag.StringP("base-dir", "d", "", "Directory the block store's buckets live under (required)")
		addr        = flag.StringP("addr", "a", ":9191", "Address to listen on")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `lachepas-node - GFS storage node daemon

Usage:
  lachepas-node --base-dir <dir> [--addr :9191]

Options:
  -d, --base-dir   Directory the block store's buckets live under (required)
  -a, --addr       Address to listen on (default ":9191")
  -V, --version    Show version and exit

The node exposes a single dispatch endpoint, POST /gfs, implementing the
fileAdd/fileUpdate/fileDelete/fileRetrieve/fileId/fileList/dirList command
table, plus /healthz and /metrics for operational probing.
`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("lachepas-node version %s (commit %s, built %s)\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
		os.Exit(0)
	}

	if *baseDir == "" {
		fmt.Fprintln(os.Stderr, "Error: --base-dir is required")
		flag.Usage()
		os.Exit(1)
	}

	store := blockstore.Open(*baseDir)
	if err := nodeserver.Run(*addr, store); err != nil {
		errors.FatalError(err, false)
	}
}
