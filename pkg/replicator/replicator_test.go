// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package replicator

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/lachepas/internal/errors"
	"github.com/kraklabs/lachepas/pkg/blockstore"
	"github.com/kraklabs/lachepas/pkg/catalog"
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

func fakeNode(t *testing.T) (*httptest.Server, *nodeclient.Client) {
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
	return srv, nodeclient.New("node-a", srv.URL)
}

func writeTempFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func TestReplicateSingleFileSingleNode(t *testing.T) {
	_, client := fakeNode(t)
	cat := openTestCatalog(t)
	ctx := t.Context()

	path := writeTempFile(t, []byte("Hello"))

	result, err := Replicate(ctx, Input{
		Cat:        cat,
		FilePath:   path,
		BlockCount: 1,
		Placements: []Placement{
			{NodeName: "node-a", Client: client, VaultFileID: 1, Flag: FlagAll},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.BlocksCopied)
	assert.True(t, result.AnyNodeCopied)

	blocks, err := cat.GetBlocksForVaultFile(ctx, 1)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, int64(1), blocks[0].BlockSequenceNumber)
	assert.Equal(t, int64(5), blocks[0].OriginFilesize)
	assert.Equal(t, int64(8), blocks[0].StoredFilesize) // base64("Hello") == "SGVsbG8="
}

func TestReplicateSkipsNoneFlaggedNodes(t *testing.T) {
	_, client := fakeNode(t)
	cat := openTestCatalog(t)
	ctx := t.Context()

	path := writeTempFile(t, []byte("unchanged"))

	result, err := Replicate(ctx, Input{
		Cat:        cat,
		FilePath:   path,
		BlockCount: 1,
		Placements: []Placement{
			{NodeName: "node-a", Client: client, VaultFileID: 1, Flag: FlagNone},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.BlocksCopied)
	assert.False(t, result.AnyNodeCopied)
}

func TestReplicateMultiBlockOrdering(t *testing.T) {
	_, client := fakeNode(t)
	cat := openTestCatalog(t)
	ctx := t.Context()

	content := make([]byte, 40000)
	for i := range content {
		content[i] = 0xAA
	}
	path := writeTempFile(t, content)

	result, err := Replicate(ctx, Input{
		Cat:        cat,
		FilePath:   path,
		BlockCount: 3,
		Placements: []Placement{
			{NodeName: "node-a", Client: client, VaultFileID: 2, Flag: FlagAll},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.BlocksCopied)

	blocks, err := cat.GetBlocksForVaultFile(ctx, 2)
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	for i, b := range blocks {
		assert.Equal(t, int64(i+1), b.BlockSequenceNumber)
	}
}

func TestReplicateDedupSameContentSharesNodeFile(t *testing.T) {
	_, client := fakeNode(t)
	cat := openTestCatalog(t)
	ctx := t.Context()

	pathA := writeTempFile(t, []byte("duplicate-content"))
	pathB := filepath.Join(filepath.Dir(pathA), "b.bin")
	require.NoError(t, os.WriteFile(pathB, []byte("duplicate-content"), 0o600))

	_, err := Replicate(ctx, Input{
		Cat: cat, FilePath: pathA, BlockCount: 1,
		Placements: []Placement{{NodeName: "node-a", Client: client, VaultFileID: 1, Flag: FlagAll}},
	})
	require.NoError(t, err)
	_, err = Replicate(ctx, Input{
		Cat: cat, FilePath: pathB, BlockCount: 1,
		Placements: []Placement{{NodeName: "node-a", Client: client, VaultFileID: 2, Flag: FlagAll}},
	})
	require.NoError(t, err)

	blocksA, err := cat.GetBlocksForVaultFile(ctx, 1)
	require.NoError(t, err)
	blocksB, err := cat.GetBlocksForVaultFile(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, blocksA[0].NodeDirectory, blocksB[0].NodeDirectory)
	assert.Equal(t, blocksA[0].NodeFile, blocksB[0].NodeFile)
}
