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

// Package config reads and writes the lachepas INI configuration file: one
// [<service-name>] section per storage node, and one
// [Exclusions:<dir-path>] section per directory that needs traversal
// filtering.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/kraklabs/lachepas/internal/errors"
	"github.com/kraklabs/lachepas/pkg/exclusions"
)

const (
	defaultConfigDir  = ".lachepas"
	defaultConfigFile = "lachepas.conf"
)

// Node is one [<service-name>] section: an opaque name plus the HTTP base
// address pkg/nodeclient dials.
type Node struct {
	Name string
	URL  string
}

// Config is the parsed lachepas.conf: the set of known storage nodes, plus
// per-directory exclusion lists.
type Config struct {
	Nodes      []Node
	Exclusions map[string]exclusions.List // keyed by directory path

	path string
}

// DefaultPath returns <dir>/.lachepas/lachepas.conf.
func DefaultPath(dir string) string {
	return filepath.Join(dir, defaultConfigDir, defaultConfigFile)
}

// Load parses the INI file at path. A missing file is not an error; it
// yields an empty Config so `init-directory` and `add-node` can bootstrap
// one from scratch.
func Load(path string) (*Config, error) {
	cfg := &Config{Exclusions: map[string]exclusions.List{}, path: path}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	f, err := ini.Load(path)
	if err != nil {
		return nil, errors.NewConfigError(
			"Invalid configuration format",
			"INI parsing failed: "+err.Error(),
			fmt.Sprintf("Edit %s to fix syntax errors", path),
			err,
		)
	}

	for _, section := range f.Sections() {
		name := section.Name()
		switch {
		case name == ini.DefaultSection:
			continue
		case strings.HasPrefix(name, "Exclusions:"):
			dirPath := strings.TrimPrefix(name, "Exclusions:")
			cfg.Exclusions[dirPath] = exclusions.List{
				DirNames:     splitList(section.Key("dir_exclusion_names").String()),
				DirPrefixes:  splitList(section.Key("dir_exclusion_prefixes").String()),
				FileNames:    splitList(section.Key("file_exclusion_names").String()),
				FileSuffixes: splitList(section.Key("file_exclusion_suffixes").String()),
			}
		default:
			cfg.Nodes = append(cfg.Nodes, Node{Name: name, URL: section.Key("url").String()})
		}
	}

	return cfg, nil
}

// Save writes cfg back to its path as INI, creating the parent directory if
// needed.
func (c *Config) Save() error {
	f := ini.Empty()

	for _, n := range c.Nodes {
		sec, err := f.NewSection(n.Name)
		if err != nil {
			return errors.NewInternalError("Cannot build configuration", err.Error(), "", err)
		}
		_, _ = sec.NewKey("url", n.URL)
	}

	for dirPath, list := range c.Exclusions {
		sec, err := f.NewSection("Exclusions:" + dirPath)
		if err != nil {
			return errors.NewInternalError("Cannot build configuration", err.Error(), "", err)
		}
		if len(list.DirNames) > 0 {
			_, _ = sec.NewKey("dir_exclusion_names", strings.Join(list.DirNames, ","))
		}
		if len(list.DirPrefixes) > 0 {
			_, _ = sec.NewKey("dir_exclusion_prefixes", strings.Join(list.DirPrefixes, ","))
		}
		if len(list.FileNames) > 0 {
			_, _ = sec.NewKey("file_exclusion_names", strings.Join(list.FileNames, ","))
		}
		if len(list.FileSuffixes) > 0 {
			_, _ = sec.NewKey("file_exclusion_suffixes", strings.Join(list.FileSuffixes, ","))
		}
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.NewPermissionError("Cannot create configuration directory", err.Error(), "Check directory permissions", err)
	}

	if err := f.SaveTo(c.path); err != nil {
		return errors.NewPermissionError("Cannot write configuration file", err.Error(), "Check file permissions and available disk space", err)
	}
	return nil
}

// AddNode appends a node, failing Config if the name is already present.
func (c *Config) AddNode(name, url string) error {
	for _, n := range c.Nodes {
		if n.Name == name {
			return errors.NewConfigError("Node already configured", fmt.Sprintf("A node named %q already exists in the configuration", name), "Use a different name or remove-node first", nil)
		}
	}
	c.Nodes = append(c.Nodes, Node{Name: name, URL: url})
	return nil
}

// RemoveNode deletes a node from the configuration by name. No-op if absent.
func (c *Config) RemoveNode(name string) {
	out := c.Nodes[:0]
	for _, n := range c.Nodes {
		if n.Name != name {
			out = append(out, n)
		}
	}
	c.Nodes = out
}

// ExclusionsFor returns the exclusion List registered for dirPath, or the
// zero value (excludes nothing) if none was configured.
func (c *Config) ExclusionsFor(dirPath string) exclusions.List {
	return c.Exclusions[dirPath]
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
