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

// GetVaultFile looks up the VaultFile for (vaultID, localFileID). Returns
// (nil, nil) if absent — the Scanner treats this as "first placement".
func (c *Catalog) GetVaultFile(ctx context.Context, vaultID, localFileID int64) (*VaultFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return getVaultFile(ctx, c.db, vaultID, localFileID)
}

func getVaultFile(ctx context.Context, db *cozo.DB, vaultID, localFileID int64) (*VaultFile, error) {
	rows, err := db.Run(ctx, `?[id, vault_id, local_file_id, create_time, modify_time, origin_filesize, block_count, user_perms, group_perms, other_perms] :=
		*vault_file{id, vault_id, local_file_id, create_time, modify_time, origin_filesize, block_count, user_perms, group_perms, other_perms},
		vault_id = $vault_id, local_file_id = $local_file_id`, map[string]any{"vault_id": vaultID, "local_file_id": localFileID})
	if err != nil {
		return nil, errors.NewInternalError("Catalog lookup failed", err.Error(), "", err)
	}
	if len(rows.Rows) == 0 {
		return nil, nil
	}
	return rowToVaultFile(rows.Rows[0]), nil
}

// GetVaultFile is the Transaction-scoped counterpart of
// Catalog.GetVaultFile.
func (tx *Tx) GetVaultFile(vaultID, localFileID int64) (*VaultFile, error) {
	return getVaultFile(tx.ctx, tx.db, vaultID, localFileID)
}

// InsertVaultFile is the Transaction-scoped insert for a first placement.
// The write is queued until Transaction's fn succeeds.
func (tx *Tx) InsertVaultFile(vf *VaultFile) error {
	id, err := nextIDLocked(tx.ctx, tx.db, "vault_file")
	if err != nil {
		return err
	}
	vf.ID = id
	tx.queue(putVaultFileStatement(vf))
	return nil
}

// UpdateVaultFile is the Transaction-scoped update, used when re-ingestion
// observes a changed file size and forces a block-level update.
func (tx *Tx) UpdateVaultFile(vf *VaultFile) error {
	tx.queue(putVaultFileStatement(vf))
	return nil
}

func putVaultFileStatement(vf *VaultFile) cozo.Statement {
	return cozo.Statement{
		Script: `?[id, vault_id, local_file_id, create_time, modify_time, origin_filesize, block_count, user_perms, group_perms, other_perms] <-
			[[$id, $vault_id, $local_file_id, $create_time, $modify_time, $origin_filesize, $block_count, $user_perms, $group_perms, $other_perms]]
			:put vault_file { id => vault_id, local_file_id, create_time, modify_time, origin_filesize, block_count, user_perms, group_perms, other_perms }`,
		Params: map[string]any{
			"id": vf.ID, "vault_id": vf.VaultID, "local_file_id": vf.LocalFileID,
			"create_time": vf.CreateTimeUnix, "modify_time": vf.ModifyTimeUnix,
			"origin_filesize": vf.OriginFilesize, "block_count": vf.BlockCount,
			"user_perms": vf.UserPerms, "group_perms": vf.GroupPerms, "other_perms": vf.OtherPerms,
		},
	}
}

func rowToVaultFile(r []any) *VaultFile {
	return &VaultFile{
		ID:             toInt64(r[0]),
		VaultID:        toInt64(r[1]),
		LocalFileID:    toInt64(r[2]),
		CreateTimeUnix: toInt64(r[3]),
		ModifyTimeUnix: toInt64(r[4]),
		OriginFilesize: toInt64(r[5]),
		BlockCount:     toInt64(r[6]),
		UserPerms:      toString(r[7]),
		GroupPerms:     toString(r[8]),
		OtherPerms:     toString(r[9]),
	}
}
