// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/lachepas/pkg/exclusions"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.conf"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Nodes)
	assert.Empty(t, cfg.Exclusions)
}

func TestAddNodeThenSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lachepas.conf")
	cfg, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, cfg.AddNode("node-a", "http://10.0.0.1:8181"))
	require.NoError(t, cfg.Save())

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, reloaded.Nodes, 1)
	assert.Equal(t, "node-a", reloaded.Nodes[0].Name)
	assert.Equal(t, "http://10.0.0.1:8181", reloaded.Nodes[0].URL)
}

func TestAddNodeDuplicateNameFails(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "lachepas.conf"))
	require.NoError(t, err)
	require.NoError(t, cfg.AddNode("node-a", "http://a"))
	err = cfg.AddNode("node-a", "http://b")
	assert.Error(t, err)
}

func TestRemoveNode(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "lachepas.conf"))
	require.NoError(t, err)
	require.NoError(t, cfg.AddNode("node-a", "http://a"))
	require.NoError(t, cfg.AddNode("node-b", "http://b"))

	cfg.RemoveNode("node-a")
	require.Len(t, cfg.Nodes, 1)
	assert.Equal(t, "node-b", cfg.Nodes[0].Name)
}

func TestExclusionsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lachepas.conf")
	cfg, err := Load(path)
	require.NoError(t, err)

	cfg.Exclusions["/data/photos"] = exclusions.List{
		DirNames:     []string{".git", "node_modules"},
		DirPrefixes:  []string{"tmp-"},
		FileNames:    []string{".DS_Store"},
		FileSuffixes: []string{".tmp"},
	}
	require.NoError(t, cfg.Save())

	reloaded, err := Load(path)
	require.NoError(t, err)
	got := reloaded.ExclusionsFor("/data/photos")
	assert.Equal(t, []string{".git", "node_modules"}, got.DirNames)
	assert.Equal(t, []string{"tmp-"}, got.DirPrefixes)
	assert.Equal(t, []string{".DS_Store"}, got.FileNames)
	assert.Equal(t, []string{".tmp"}, got.FileSuffixes)
}

func TestExclusionsForUnknownDirectoryIsEmpty(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "lachepas.conf"))
	require.NoError(t, err)
	got := cfg.ExclusionsFor("/nowhere")
	assert.False(t, got.ExcludeDirectory("anything"))
}
