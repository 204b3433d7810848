// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/lachepas/internal/errors"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(t.TempDir(), "mem")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestOpenCreatesSchemaIdempotently(t *testing.T) {
	dir := t.TempDir()
	c1, err := Open(dir, "mem")
	require.NoError(t, err)
	defer c1.Close()

	// Re-running EnsureSchema on the same handle must not error.
	require.NoError(t, c1.EnsureSchema(context.Background()))
}

func TestOpenSqliteUsesDefaultFilename(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, "sqlite")
	require.NoError(t, err)
	defer c.Close()

	assert.FileExists(t, filepath.Join(dir, DefaultFilename))
}

func TestInsertLocalDirectoryAssignsID(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	d := &LocalDirectory{Path: "/data/photos", Active: true, Recurse: true}
	require.NoError(t, c.InsertLocalDirectory(ctx, d))
	assert.NotZero(t, d.ID)

	got, err := c.GetLocalDirectory(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "/data/photos", got.Path)
	assert.True(t, got.Recurse)
}

func TestInsertLocalDirectoryDuplicatePathConflicts(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.InsertLocalDirectory(ctx, &LocalDirectory{Path: "/data/photos"}))
	err := c.InsertLocalDirectory(ctx, &LocalDirectory{Path: "/data/photos"})
	require.Error(t, err)
	ue, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.CatalogConflict, ue.Kind)
}

func TestGetLocalDirectoryNotFound(t *testing.T) {
	c := openTestCatalog(t)
	_, err := c.GetLocalDirectory(context.Background(), 9999)
	require.Error(t, err)
	ue, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.NotFound, ue.Kind)
}

func TestLocalFileUniquePerDirectoryAndPath(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	dir := &LocalDirectory{Path: "/data"}
	require.NoError(t, c.InsertLocalDirectory(ctx, dir))

	lf := &LocalFile{LocalDirectoryID: dir.ID, RelativePath: "a.txt"}
	require.NoError(t, c.InsertLocalFile(ctx, lf))

	got, err := c.GetLocalFile(ctx, dir.ID, "a.txt")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, lf.ID, got.ID)

	missing, err := c.GetLocalFile(ctx, dir.ID, "missing.txt")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStorageNodeDeleteIsLogical(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	n := &StorageNode{NodeName: "node-a", Active: true}
	require.NoError(t, c.InsertStorageNode(ctx, n))
	require.NoError(t, c.DeleteStorageNode(ctx, n.ID))

	got, err := c.GetStorageNode(ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	active, err := c.ListStorageNodes(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := c.ListStorageNodes(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestEnsureVaultIsIdempotent(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	dir := &LocalDirectory{Path: "/data", Compress: true, Encrypt: false}
	require.NoError(t, c.InsertLocalDirectory(ctx, dir))
	n := &StorageNode{NodeName: "node-a", Active: true}
	require.NoError(t, c.InsertStorageNode(ctx, n))

	var first, second *Vault
	require.NoError(t, c.Transaction(ctx, func(tx *Tx) error {
		v, err := tx.EnsureVault(n.ID, dir)
		first = v
		return err
	}))
	require.NoError(t, c.Transaction(ctx, func(tx *Tx) error {
		v, err := tx.EnsureVault(n.ID, dir)
		second = v
		return err
	}))

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.Compress)
}

func TestVaultFileBlocksOrderedBySequence(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	dir := &LocalDirectory{Path: "/data"}
	require.NoError(t, c.InsertLocalDirectory(ctx, dir))
	n := &StorageNode{NodeName: "node-a", Active: true}
	require.NoError(t, c.InsertStorageNode(ctx, n))
	lf := &LocalFile{LocalDirectoryID: dir.ID, RelativePath: "big.bin"}
	require.NoError(t, c.InsertLocalFile(ctx, lf))

	var vaultFileID int64
	require.NoError(t, c.Transaction(ctx, func(tx *Tx) error {
		v, err := tx.EnsureVault(n.ID, dir)
		if err != nil {
			return err
		}
		vf := &VaultFile{VaultID: v.ID, LocalFileID: lf.ID, BlockCount: 3, OriginFilesize: 40000}
		if err := tx.InsertVaultFile(vf); err != nil {
			return err
		}
		vaultFileID = vf.ID
		for _, seq := range []int64{3, 1, 2} {
			b := &VaultFileBlock{VaultFileID: vf.ID, BlockSequenceNumber: seq, UniqueIdentifier: "x"}
			if err := tx.InsertVaultFileBlock(b); err != nil {
				return err
			}
		}
		return nil
	}))

	blocks, err := c.GetBlocksForVaultFile(ctx, vaultFileID)
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	assert.Equal(t, int64(1), blocks[0].BlockSequenceNumber)
	assert.Equal(t, int64(2), blocks[1].BlockSequenceNumber)
	assert.Equal(t, int64(3), blocks[2].BlockSequenceNumber)
}

func TestTransactionDiscardsQueuedWritesOnMidCallbackError(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	dir := &LocalDirectory{Path: "/data", Recurse: true}
	require.NoError(t, c.InsertLocalDirectory(ctx, dir))
	n := &StorageNode{NodeName: "node-a", Active: true}
	require.NoError(t, c.InsertStorageNode(ctx, n))

	boom := errors.NewInternalError("boom", "simulated mid-transaction failure", "", nil)

	err := c.Transaction(ctx, func(tx *Tx) error {
		lf := &LocalFile{LocalDirectoryID: dir.ID, RelativePath: "orphan.txt"}
		if err := tx.InsertLocalFile(lf); err != nil {
			return err
		}
		v, err := tx.EnsureVault(n.ID, dir)
		if err != nil {
			return err
		}
		vf := &VaultFile{VaultID: v.ID, LocalFileID: lf.ID, BlockCount: 1}
		if err := tx.InsertVaultFile(vf); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	files, lerr := c.ListLocalFilesForDirectory(ctx, dir.ID)
	require.NoError(t, lerr)
	assert.Empty(t, files, "InsertLocalFile's write must not land when the callback later fails")

	vault, verr := c.GetVault(ctx, n.ID, dir.ID)
	require.NoError(t, verr)
	assert.Nil(t, vault, "EnsureVault's write must not land when the callback later fails")
}

func TestPermsRoundTrip(t *testing.T) {
	mode := os.FileMode(0o754)
	u, g, o := PermsToTriple(mode)
	assert.Equal(t, "rwx", u)
	assert.Equal(t, "r-x", g)
	assert.Equal(t, "r--", o)
	assert.Equal(t, mode, TripleToPerms(u, g, o))
}

func TestExportImportRoundTrip(t *testing.T) {
	src := openTestCatalog(t)
	ctx := context.Background()

	d := &LocalDirectory{Path: "/data/photos", Active: true, Recurse: true}
	require.NoError(t, src.InsertLocalDirectory(ctx, d))

	dump, err := src.Export(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, dump)

	dst := openTestCatalog(t)
	require.NoError(t, dst.Import(ctx, dump))

	got, err := dst.GetLocalDirectory(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "/data/photos", got.Path)
}
