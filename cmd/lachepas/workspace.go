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
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/kraklabs/lachepas/internal/errors"
	"github.com/kraklabs/lachepas/pkg/catalog"
	"github.com/kraklabs/lachepas/pkg/config"
)

// cliContext returns the background context every subcommand runs its
// catalog/RPC calls under. The CLI is a one-shot process; there is no
// caller-supplied deadline to thread through.
func cliContext() context.Context {
	return context.Background()
}

// workspace bundles the open catalog and parsed configuration a subcommand
// needs. Both live under the same .lachepas directory, keyed off the
// --config flag or the current directory's default.
type workspace struct {
	Cat *catalog.Catalog
	Cfg *config.Config
}

func openWorkspace(configPath string) (*workspace, error) {
	if configPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, errors.NewIOError("Cannot determine current directory", err.Error(), "", err)
		}
		configPath = config.DefaultPath(cwd)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Open(filepath.Dir(configPath), "sqlite")
	if err != nil {
		return nil, err
	}

	return &workspace{Cat: cat, Cfg: cfg}, nil
}

func (w *workspace) Close() {
	_ = w.Cat.Close()
}

// readKeyFile loads a 32-byte AES-256 key from path. Required only when a
// directory or vault has encryption enabled.
func readKeyFile(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError("Cannot read key file", err.Error(), path, err)
	}
	if len(data) != 32 {
		return nil, errors.NewBadKeyError(
			"Invalid key file",
			"Expected exactly 32 bytes for AES-256, got "+strconv.Itoa(len(data)),
			"Generate a key with: head -c 32 /dev/urandom > keyfile",
			nil,
		)
	}
	return data, nil
}

// withSpinner runs fn while ticking an indeterminate progress bar, for
// operations (sync, restore) whose item count isn't known until they
// finish walking the tree or the vault's file list. Suppressed when quiet.
func withSpinner(quiet bool, label string, fn func() error) error {
	if quiet {
		return fn()
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(label),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = bar.Add(1)
			case <-done:
				return
			}
		}
	}()

	err := fn()
	close(done)
	_ = bar.Finish()
	return err
}
