// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package scanner

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/lachepas/internal/errors"
	"github.com/kraklabs/lachepas/pkg/blockstore"
	"github.com/kraklabs/lachepas/pkg/catalog"
	"github.com/kraklabs/lachepas/pkg/exclusions"
	"github.com/kraklabs/lachepas/pkg/nodeclient"
	"github.com/kraklabs/lachepas/pkg/nodeserver"
)

func openTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Open(t.TempDir(), "mem")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func fakeNode(t *testing.T, name string) NodeTarget {
	t.Helper()
	store := blockstore.Open(t.TempDir())
	if err := store.EnsureBuckets(); err != nil {
		ue, ok := errors.As(err)
		if ok && ue.Kind == errors.XAttrUnsupported {
			t.Skip("filesystem does not support extended attributes")
		}
		require.NoError(t, err)
	}
	srv := httptest.NewServer(nodeserver.New(store).Mux())
	t.Cleanup(srv.Close)

	node := catalog.StorageNode{ID: 1, NodeName: name, Active: true}
	return NodeTarget{Node: node, Client: nodeclient.New(name, srv.URL)}
}

func noExclusions(string) exclusions.List { return exclusions.List{} }

func TestScanCopiesNewFileToEveryNode(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := t.Context()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644))

	dir := &catalog.LocalDirectory{Path: root, Active: true, Recurse: true}
	require.NoError(t, cat.InsertLocalDirectory(ctx, dir))

	nt1 := fakeNode(t, "node-1")
	nt1.Node.ID = 1
	require.NoError(t, cat.InsertStorageNode(ctx, &nt1.Node))
	nt2 := fakeNode(t, "node-2")
	require.NoError(t, cat.InsertStorageNode(ctx, &nt2.Node))

	s := New(cat, noExclusions, nil)
	copied, err := s.Scan(ctx, dir, []NodeTarget{nt1, nt2})
	require.NoError(t, err)
	assert.Equal(t, 1, copied)

	lf, err := cat.GetLocalFile(ctx, dir.ID, "a.txt")
	require.NoError(t, err)
	require.NotNil(t, lf)
	assert.NotZero(t, lf.CopyTimeUnix)

	for _, nt := range []NodeTarget{nt1, nt2} {
		vault, err := cat.GetVault(ctx, nt.Node.ID, dir.ID)
		require.NoError(t, err)
		require.NotNil(t, vault)

		vf, err := cat.GetVaultFile(ctx, vault.ID, lf.ID)
		require.NoError(t, err)
		require.NotNil(t, vf)
		assert.EqualValues(t, 5, vf.OriginFilesize)

		blocks, err := cat.GetBlocksForVaultFile(ctx, vf.ID)
		require.NoError(t, err)
		require.Len(t, blocks, 1)
	}
}

func TestSecondScanIsIdempotent(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := t.Context()

	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	dir := &catalog.LocalDirectory{Path: root, Active: true, Recurse: true}
	require.NoError(t, cat.InsertLocalDirectory(ctx, dir))

	nt := fakeNode(t, "node-1")
	require.NoError(t, cat.InsertStorageNode(ctx, &nt.Node))

	s := New(cat, noExclusions, nil)

	copied, err := s.Scan(ctx, dir, []NodeTarget{nt})
	require.NoError(t, err)
	assert.Equal(t, 1, copied)

	// Second scan: nothing on disk changed, so no placement should be
	// re-sent and the file should not be reported as copied.
	copied, err = s.Scan(ctx, dir, []NodeTarget{nt})
	require.NoError(t, err)
	assert.Equal(t, 0, copied)
}

func TestScanDetectsModifiedFile(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := t.Context()

	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	dir := &catalog.LocalDirectory{Path: root, Active: true, Recurse: true}
	require.NoError(t, cat.InsertLocalDirectory(ctx, dir))

	nt := fakeNode(t, "node-1")
	require.NoError(t, cat.InsertStorageNode(ctx, &nt.Node))

	s := New(cat, noExclusions, nil)
	_, err := s.Scan(ctx, dir, []NodeTarget{nt})
	require.NoError(t, err)

	// Force the modify time forward, same size: content-equal-size edits
	// (e.g. in-place rewrite) still must be recognized via mtime.
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.WriteFile(path, []byte("HELLO"), 0o644))
	require.NoError(t, os.Chtimes(path, later, later))

	copied, err := s.Scan(ctx, dir, []NodeTarget{nt})
	require.NoError(t, err)
	assert.Equal(t, 1, copied)

	lf, err := cat.GetLocalFile(ctx, dir.ID, "a.txt")
	require.NoError(t, err)
	vault, err := cat.GetVault(ctx, nt.Node.ID, dir.ID)
	require.NoError(t, err)
	vf, err := cat.GetVaultFile(ctx, vault.ID, lf.ID)
	require.NoError(t, err)

	blocks, err := cat.GetBlocksForVaultFile(ctx, vf.ID)
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	wireForm, err := nt.Client.FileRetrieve(ctx, blocks[0].NodeDirectory, blocks[0].NodeFile)
	require.NoError(t, err)
	assert.NotEmpty(t, wireForm)
}

func TestScanGrowingFileTakesSelectivePath(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := t.Context()

	root := t.TempDir()
	path := filepath.Join(root, "big.bin")
	require.NoError(t, os.WriteFile(path, []byte("short"), 0o644))

	dir := &catalog.LocalDirectory{Path: root, Active: true, Recurse: true}
	require.NoError(t, cat.InsertLocalDirectory(ctx, dir))

	nt := fakeNode(t, "node-1")
	require.NoError(t, cat.InsertStorageNode(ctx, &nt.Node))

	s := New(cat, noExclusions, nil)
	_, err := s.Scan(ctx, dir, []NodeTarget{nt})
	require.NoError(t, err)

	later := time.Now().Add(2 * time.Second)
	grown := make([]byte, 20000)
	require.NoError(t, os.WriteFile(path, grown, 0o644))
	require.NoError(t, os.Chtimes(path, later, later))

	copied, err := s.Scan(ctx, dir, []NodeTarget{nt})
	require.NoError(t, err)
	assert.Equal(t, 1, copied)

	lf, err := cat.GetLocalFile(ctx, dir.ID, "big.bin")
	require.NoError(t, err)
	vault, err := cat.GetVault(ctx, nt.Node.ID, dir.ID)
	require.NoError(t, err)
	vf, err := cat.GetVaultFile(ctx, vault.ID, lf.ID)
	require.NoError(t, err)
	assert.EqualValues(t, len(grown), vf.OriginFilesize)
	assert.EqualValues(t, 2, vf.BlockCount)
}

func TestScanClockSkewTreatedAsNoChange(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := t.Context()

	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	dir := &catalog.LocalDirectory{Path: root, Active: true, Recurse: true}
	require.NoError(t, cat.InsertLocalDirectory(ctx, dir))

	nt := fakeNode(t, "node-1")
	require.NoError(t, cat.InsertStorageNode(ctx, &nt.Node))

	s := New(cat, noExclusions, nil)
	_, err := s.Scan(ctx, dir, []NodeTarget{nt})
	require.NoError(t, err)

	lf, err := cat.GetLocalFile(ctx, dir.ID, "a.txt")
	require.NoError(t, err)
	vault, err := cat.GetVault(ctx, nt.Node.ID, dir.ID)
	require.NoError(t, err)
	vfBefore, err := cat.GetVaultFile(ctx, vault.ID, lf.ID)
	require.NoError(t, err)

	// Same size, but disk mtime now precedes the catalog's recorded
	// modify time: clock skew or a restore artifact, not a real edit.
	earlier := time.Unix(vfBefore.ModifyTimeUnix-1000, 0)
	require.NoError(t, os.Chtimes(path, earlier, earlier))

	copied, err := s.Scan(ctx, dir, []NodeTarget{nt})
	require.NoError(t, err)
	assert.Equal(t, 0, copied)

	vfAfter, err := cat.GetVaultFile(ctx, vault.ID, lf.ID)
	require.NoError(t, err)
	assert.Equal(t, vfBefore.ModifyTimeUnix, vfAfter.ModifyTimeUnix)
}

func TestScanExcludesDirectoriesAndFiles(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := t.Context()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "pkg.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep.txt"), []byte("keep"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "draft.tmp"), []byte("scratch"), 0o644))

	dir := &catalog.LocalDirectory{Path: root, Active: true, Recurse: true}
	require.NoError(t, cat.InsertLocalDirectory(ctx, dir))

	nt := fakeNode(t, "node-1")
	require.NoError(t, cat.InsertStorageNode(ctx, &nt.Node))

	excl := func(string) exclusions.List {
		return exclusions.List{DirNames: []string{"node_modules"}, FileSuffixes: []string{".tmp"}}
	}

	s := New(cat, excl, nil)
	copied, err := s.Scan(ctx, dir, []NodeTarget{nt})
	require.NoError(t, err)
	assert.Equal(t, 1, copied)

	lf, err := cat.GetLocalFile(ctx, dir.ID, "keep.txt")
	require.NoError(t, err)
	assert.NotNil(t, lf)

	lf, err = cat.GetLocalFile(ctx, dir.ID, "draft.tmp")
	require.NoError(t, err)
	assert.Nil(t, lf)

	lf, err = cat.GetLocalFile(ctx, dir.ID, filepath.Join("node_modules", "pkg.json"))
	require.NoError(t, err)
	assert.Nil(t, lf)
}

func TestScanNonRecurseSkipsSubdirectories(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := t.Context()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "nested.txt"), []byte("nested"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "top.txt"), []byte("top"), 0o644))

	dir := &catalog.LocalDirectory{Path: root, Active: true, Recurse: false}
	require.NoError(t, cat.InsertLocalDirectory(ctx, dir))

	nt := fakeNode(t, "node-1")
	require.NoError(t, cat.InsertStorageNode(ctx, &nt.Node))

	s := New(cat, noExclusions, nil)
	copied, err := s.Scan(ctx, dir, []NodeTarget{nt})
	require.NoError(t, err)
	assert.Equal(t, 1, copied)

	lf, err := cat.GetLocalFile(ctx, dir.ID, "top.txt")
	require.NoError(t, err)
	assert.NotNil(t, lf)

	lf, err = cat.GetLocalFile(ctx, dir.ID, filepath.Join("sub", "nested.txt"))
	require.NoError(t, err)
	assert.Nil(t, lf)
}
