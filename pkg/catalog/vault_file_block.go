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
	"sort"

	"github.com/kraklabs/lachepas/internal/errors"
	cozo "github.com/kraklabs/lachepas/pkg/cozodb"
)

const vaultFileBlockColumns = `id, vault_file_id, create_time, modify_time, stored_time, origin_filesize, stored_filesize, block_sequence_number, pad_char_count, unique_identifier, node_directory, node_file`

// GetBlocksForVaultFile returns every VaultFileBlock for vaultFileID,
// ordered by block_sequence_number ascending.
func (c *Catalog) GetBlocksForVaultFile(ctx context.Context, vaultFileID int64) ([]VaultFileBlock, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return getBlocksForVaultFile(ctx, c.db, vaultFileID)
}

func getBlocksForVaultFile(ctx context.Context, db *cozo.DB, vaultFileID int64) ([]VaultFileBlock, error) {
	rows, err := db.Run(ctx, `?[`+vaultFileBlockColumns+`] := *vault_file_block{`+vaultFileBlockColumns+`}, vault_file_id = $vfid`,
		map[string]any{"vfid": vaultFileID})
	if err != nil {
		return nil, errors.NewInternalError("Catalog lookup failed", err.Error(), "", err)
	}

	out := make([]VaultFileBlock, 0, len(rows.Rows))
	for _, r := range rows.Rows {
		out = append(out, *rowToVaultFileBlock(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockSequenceNumber < out[j].BlockSequenceNumber })
	return out, nil
}

// GetVaultFileBlock looks up a single block by (vaultFileID, sequenceNumber).
// Returns (nil, nil) if absent.
func (tx *Tx) GetVaultFileBlock(vaultFileID, sequenceNumber int64) (*VaultFileBlock, error) {
	rows, err := tx.db.Run(tx.ctx, `?[`+vaultFileBlockColumns+`] := *vault_file_block{`+vaultFileBlockColumns+`},
		vault_file_id = $vfid, block_sequence_number = $seq`, map[string]any{"vfid": vaultFileID, "seq": sequenceNumber})
	if err != nil {
		return nil, errors.NewInternalError("Catalog lookup failed", err.Error(), "", err)
	}
	if len(rows.Rows) == 0 {
		return nil, nil
	}
	return rowToVaultFileBlock(rows.Rows[0]), nil
}

// InsertVaultFileBlock is the Transaction-scoped insert used by the
// Replicator after a block has been confirmed placed on a node. The write
// is queued until Transaction's fn succeeds.
func (tx *Tx) InsertVaultFileBlock(b *VaultFileBlock) error {
	id, err := nextIDLocked(tx.ctx, tx.db, "vault_file_block")
	if err != nil {
		return err
	}
	b.ID = id
	tx.queue(putVaultFileBlockStatement(b))
	return nil
}

// UpdateVaultFileBlock is the Transaction-scoped update, used when a
// SELECTIVE re-send replaces a block's prior placement.
func (tx *Tx) UpdateVaultFileBlock(b *VaultFileBlock) error {
	tx.queue(putVaultFileBlockStatement(b))
	return nil
}

func putVaultFileBlockStatement(b *VaultFileBlock) cozo.Statement {
	return cozo.Statement{
		Script: `?[` + vaultFileBlockColumns + `] <- [[$id, $vfid, $create_time, $modify_time, $stored_time,
			$origin_filesize, $stored_filesize, $seq, $pad, $unique_id, $node_dir, $node_file]]
			:put vault_file_block { id => vault_file_id, create_time, modify_time, stored_time, origin_filesize,
			stored_filesize, block_sequence_number, pad_char_count, unique_identifier, node_directory, node_file }`,
		Params: map[string]any{
			"id": b.ID, "vfid": b.VaultFileID, "create_time": b.CreateTimeUnix, "modify_time": b.ModifyTimeUnix,
			"stored_time": b.StoredTimeUnix, "origin_filesize": b.OriginFilesize, "stored_filesize": b.StoredFilesize,
			"seq": b.BlockSequenceNumber, "pad": b.PadCharCount, "unique_id": b.UniqueIdentifier,
			"node_dir": b.NodeDirectory, "node_file": b.NodeFile,
		},
	}
}

func rowToVaultFileBlock(r []any) *VaultFileBlock {
	return &VaultFileBlock{
		ID:                  toInt64(r[0]),
		VaultFileID:         toInt64(r[1]),
		CreateTimeUnix:      toInt64(r[2]),
		ModifyTimeUnix:      toInt64(r[3]),
		StoredTimeUnix:      toInt64(r[4]),
		OriginFilesize:      toInt64(r[5]),
		StoredFilesize:      toInt64(r[6]),
		BlockSequenceNumber: toInt64(r[7]),
		PadCharCount:        toInt64(r[8]),
		UniqueIdentifier:    toString(r[9]),
		NodeDirectory:       toString(r[10]),
		NodeFile:            toString(r[11]),
	}
}
