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

package catalog

import (
	"context"

	"github.com/kraklabs/lachepas/internal/errors"
	cozo "github.com/kraklabs/lachepas/pkg/cozodb"
)

// GetVault looks up the Vault for (storage_node_id, local_directory_id).
// Returns (nil, nil) if no such vault exists yet.
func (c *Catalog) GetVault(ctx context.Context, nodeID, dirID int64) (*Vault, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return getVault(ctx, c.db, nodeID, dirID)
}

func getVault(ctx context.Context, db *cozo.DB, nodeID, dirID int64) (*Vault, error) {
	rows, err := db.Run(ctx, `?[id, storage_node_id, local_directory_id, compress, encrypt] :=
		*vault{id, storage_node_id, local_directory_id, compress, encrypt},
		storage_node_id = $node_id, local_directory_id = $dir_id`, map[string]any{"node_id": nodeID, "dir_id": dirID})
	if err != nil {
		return nil, errors.NewInternalError("Catalog lookup failed", err.Error(), "", err)
	}
	if len(rows.Rows) == 0 {
		return nil, nil
	}
	return rowToVault(rows.Rows[0]), nil
}

// ListVaultsForDirectory returns every Vault associating dirID with a node.
func (c *Catalog) ListVaultsForDirectory(ctx context.Context, dirID int64) ([]Vault, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.Run(ctx, `?[id, storage_node_id, local_directory_id, compress, encrypt] :=
		*vault{id, storage_node_id, local_directory_id, compress, encrypt}, local_directory_id = $dir_id`,
		map[string]any{"dir_id": dirID})
	if err != nil {
		return nil, errors.NewInternalError("Catalog lookup failed", err.Error(), "", err)
	}

	out := make([]Vault, 0, len(rows.Rows))
	for _, r := range rows.Rows {
		out = append(out, *rowToVault(r))
	}
	return out, nil
}

// EnsureVault returns the existing Vault for (nodeID, dirID), or creates one
// inheriting compress/encrypt from dir if absent. Used by the Scanner to
// satisfy "ensure a Vault exists for every active StorageNode x directory".
// The creating write, if any, is queued until Transaction's fn succeeds.
func (tx *Tx) EnsureVault(nodeID int64, dir *LocalDirectory) (*Vault, error) {
	existing, err := getVault(tx.ctx, tx.db, nodeID, dir.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	id, err := nextIDLocked(tx.ctx, tx.db, "vault")
	if err != nil {
		return nil, err
	}
	v := &Vault{ID: id, StorageNodeID: nodeID, LocalDirectoryID: dir.ID, Compress: dir.Compress, Encrypt: dir.Encrypt}
	tx.queue(putVaultStatement(v))
	return v, nil
}

func putVaultStatement(v *Vault) cozo.Statement {
	return cozo.Statement{
		Script: `?[id, storage_node_id, local_directory_id, compress, encrypt] <-
			[[$id, $node_id, $dir_id, $compress, $encrypt]]
			:put vault { id => storage_node_id, local_directory_id, compress, encrypt }`,
		Params: map[string]any{
			"id": v.ID, "node_id": v.StorageNodeID, "dir_id": v.LocalDirectoryID, "compress": v.Compress, "encrypt": v.Encrypt,
		},
	}
}

func rowToVault(r []any) *Vault {
	return &Vault{
		ID:               toInt64(r[0]),
		StorageNodeID:    toInt64(r[1]),
		LocalDirectoryID: toInt64(r[2]),
		Compress:         toBool(r[3]),
		Encrypt:          toBool(r[4]),
	}
}
