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

// Package replicator drives one file across every vaulted node: for each
// block in order, encode it once and send it to every node whose flag
// requires it, persisting a VaultFileBlock receipt per successful
// (block, node) placement.
package replicator

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/kraklabs/lachepas/internal/errors"
	"github.com/kraklabs/lachepas/pkg/blockcodec"
	"github.com/kraklabs/lachepas/pkg/catalog"
	"github.com/kraklabs/lachepas/pkg/chunker"
	"github.com/kraklabs/lachepas/pkg/nodeclient"
)

// Flag is the per-node decision the Scanner makes for one file before
// handing off to the Replicator.
type Flag int

const (
	// FlagNone skips this node entirely: its copy is already current.
	FlagNone Flag = iota
	// FlagAll sends every block unconditionally: first placement.
	FlagAll
	// FlagSelective sends unconditionally in the current design; the
	// already-has-this-block short-circuit named in the design notes is
	// not implemented (see SPEC_FULL.md §9).
	FlagSelective
)

// Placement is one node's target for this file: which Vault/VaultFile it
// already has (if any) and what to do with each block.
type Placement struct {
	NodeName    string
	Client      *nodeclient.Client
	VaultFileID int64
	Flag        Flag
}

// Input is everything the Replicator needs to push one file.
type Input struct {
	Cat            *catalog.Catalog
	FilePath       string
	BlockCount     int
	Encrypt        bool
	Key            []byte
	CreateTimeUnix int64
	ModifyTimeUnix int64
	Placements     []Placement
}

// Result summarizes one Replicate call.
type Result struct {
	// BlocksCopied is the count of (block, node) successes, per the spec's
	// "returns the count of (block,node) successes".
	BlocksCopied int
	// AnyNodeCopied is true if at least one block reached at least one
	// node, the signal the Scanner uses to bump LocalFile.copy_time.
	AnyNodeCopied bool
}

// Replicate pushes FilePath's blocks to every placement with a non-NONE
// flag, in block order, reusing one encoding per block across all nodes
// that need it this iteration. A fatal encoding or catalog error aborts
// the file; individual node failures are logged and skipped.
func Replicate(ctx context.Context, in Input) (Result, error) {
	active := make([]Placement, 0, len(in.Placements))
	for _, p := range in.Placements {
		if p.Flag != FlagNone {
			active = append(active, p)
		}
	}
	// Sorted order keeps cross-node placement deterministic for a given
	// block, since the spec leaves node order unspecified but a stable
	// order makes logs and tests reproducible.
	sort.Slice(active, func(i, j int) bool { return active[i].NodeName < active[j].NodeName })

	if len(active) == 0 {
		return Result{}, nil
	}

	f, err := os.Open(in.FilePath)
	if err != nil {
		return Result{}, errors.NewIOError("Cannot open file for replication", err.Error(), "", err)
	}
	defer func() { _ = f.Close() }()

	c := chunker.New(f)

	var result Result
	for i := 0; i < in.BlockCount; i++ {
		blk, err := c.Next()
		if err != nil {
			return result, errors.NewIOError("Cannot read block", err.Error(), in.FilePath, err)
		}

		if len(blk.Data) == 0 {
			// Empty-byte final block of a zero-byte file: nothing to send
			// (§4.3's "the scanner elides sending in that case").
			continue
		}

		encoded, err := blockcodec.Encode(blk.Data, in.Encrypt, in.Key)
		if err != nil {
			return result, err
		}

		for _, p := range active {
			echoedID, nodeDir, nodeFile, err := p.Client.FileAdd(ctx, encoded.UniqueID, int64(len(encoded.WireForm)), encoded.WireForm)
			if err != nil {
				errors.Log(err, p.NodeName+":"+in.FilePath)
				continue
			}
			if echoedID != encoded.UniqueID {
				return result, errors.NewIntegrityError(
					"Node echoed a different block id",
					p.NodeName+" echoed "+echoedID+" for "+encoded.UniqueID,
					"Retry the sync; if this persists the node's store may be corrupted",
					nil,
				)
			}

			row := &catalog.VaultFileBlock{
				VaultFileID:         p.VaultFileID,
				CreateTimeUnix:      in.CreateTimeUnix,
				ModifyTimeUnix:      in.ModifyTimeUnix,
				StoredTimeUnix:      time.Now().Unix(),
				OriginFilesize:      int64(encoded.OriginBlockSize),
				StoredFilesize:      int64(len(encoded.WireForm)),
				BlockSequenceNumber: int64(blk.SequenceNumber),
				PadCharCount:        int64(encoded.PadCharCount),
				UniqueIdentifier:    encoded.UniqueID,
				NodeDirectory:       nodeDir,
				NodeFile:            nodeFile,
			}

			var prev *catalog.VaultFileBlock
			txErr := in.Cat.Transaction(ctx, func(tx *catalog.Tx) error {
				existing, err := tx.GetVaultFileBlock(p.VaultFileID, row.BlockSequenceNumber)
				if err != nil {
					return err
				}
				if existing != nil {
					prev = existing
					row.ID = existing.ID
					return tx.UpdateVaultFileBlock(row)
				}
				return tx.InsertVaultFileBlock(row)
			})
			if txErr != nil {
				errors.Log(txErr, p.NodeName+":"+in.FilePath)
				continue
			}
			if prev != nil {
				// The row now names the new placement; release the node's
				// reference to the block it replaced.
				if err := p.Client.FileDelete(ctx, prev.NodeDirectory, prev.NodeFile); err != nil {
					errors.Log(err, p.NodeName+":"+in.FilePath)
				}
			}

			result.BlocksCopied++
			result.AnyNodeCopied = true
		}

		if blk.IsLast {
			break
		}
	}

	slog.Debug("replicate.file.done", "path", in.FilePath, "blocks_copied", result.BlocksCopied)
	return result, nil
}
