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

// Package restorer rebuilds a local tree from the catalog and a node's
// content, verifying every block's integrity against its recorded
// unique_identifier before it is written.
package restorer

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/kraklabs/lachepas/internal/errors"
	"github.com/kraklabs/lachepas/pkg/blockcodec"
	"github.com/kraklabs/lachepas/pkg/catalog"
	"github.com/kraklabs/lachepas/pkg/fingerprint"
	"github.com/kraklabs/lachepas/pkg/nodeclient"
)

// Restorer rebuilds files from one Vault's placements.
type Restorer struct {
	Cat    *catalog.Catalog
	Client *nodeclient.Client
	Key    []byte
}

// New builds a Restorer against one node's client. key is the directory's
// AES-256 key; required only for vaults with Encrypt set.
func New(cat *catalog.Catalog, client *nodeclient.Client, key []byte) *Restorer {
	return &Restorer{Cat: cat, Client: client, Key: key}
}

// Filter narrows a Restore run to a subtree or a single file. Both zero
// means "restore everything in the vault".
type Filter struct {
	SubdirPrefix string // relative-path prefix, trailing slash implied
	RelativePath string // exact relative path; overrides SubdirPrefix if set
}

func (f Filter) matches(relPath string) bool {
	if f.RelativePath != "" {
		return relPath == f.RelativePath
	}
	if f.SubdirPrefix != "" {
		return relPath == f.SubdirPrefix || len(relPath) > len(f.SubdirPrefix) &&
			relPath[:len(f.SubdirPrefix)] == f.SubdirPrefix &&
			relPath[len(f.SubdirPrefix)] == filepath.Separator
	}
	return true
}

// Result tallies one Restore run.
type Result struct {
	FilesRestored int
	FilesFailed   int
}

// Restore rebuilds every LocalFile of sourceDirectoryID vaulted on the
// Restorer's node under targetDir, matching filter. A block-level
// integrity failure aborts that file only; other files continue.
func (r *Restorer) Restore(ctx context.Context, nodeID, sourceDirectoryID int64, targetDir string, filter Filter) (Result, error) {
	vault, err := r.Cat.GetVault(ctx, nodeID, sourceDirectoryID)
	if err != nil {
		return Result{}, err
	}
	if vault == nil {
		return Result{}, errors.NewNotFoundError(
			"No vault for this node and directory",
			"The source directory was never replicated to this node",
			"Run sync first, or check the node/directory arguments",
			nil,
		)
	}

	localFiles, err := r.Cat.ListLocalFilesForDirectory(ctx, sourceDirectoryID)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for _, lf := range localFiles {
		if !filter.matches(lf.RelativePath) {
			continue
		}

		if err := r.restoreFile(ctx, vault.ID, vault.Encrypt, &lf, targetDir); err != nil {
			errors.Log(err, lf.RelativePath)
			result.FilesFailed++
			continue
		}
		result.FilesRestored++
	}

	return result, nil
}

func (r *Restorer) restoreFile(ctx context.Context, vaultID int64, encrypted bool, lf *catalog.LocalFile, targetDir string) error {
	vf, err := r.Cat.GetVaultFile(ctx, vaultID, lf.ID)
	if err != nil {
		return err
	}
	if vf == nil {
		return errors.NewNotFoundError("No vault file recorded", lf.RelativePath+" was never placed in this vault", "", nil)
	}

	blocks, err := r.Cat.GetBlocksForVaultFile(ctx, vf.ID)
	if err != nil {
		return err
	}
	// An empty source file counts one block but never had anything to send,
	// so zero recorded VaultFileBlock rows is the expected, complete state.
	emptyFile := vf.OriginFilesize == 0 && vf.BlockCount == 1 && len(blocks) == 0
	if !emptyFile && int64(len(blocks)) != vf.BlockCount {
		return errors.NewCatalogIncompleteError(
			"Incomplete block placement",
			lf.RelativePath+": expected "+strconv.FormatInt(vf.BlockCount, 10)+" blocks, catalog has "+strconv.FormatInt(int64(len(blocks)), 10),
			"This file was only partially synced; re-run sync before restoring",
			nil,
		)
	}

	targetPath := filepath.Join(targetDir, filepath.FromSlash(lf.RelativePath))
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o700); err != nil {
		return errors.NewIOError("Cannot create target directory", err.Error(), filepath.Dir(targetPath), err)
	}

	mode := catalog.TripleToPerms(vf.UserPerms, vf.GroupPerms, vf.OtherPerms)
	out, err := os.OpenFile(targetPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return errors.NewIOError("Cannot create target file", err.Error(), targetPath, err)
	}
	defer func() { _ = out.Close() }()

	var written int64
	for i, block := range blocks {
		isLast := i == len(blocks)-1

		wireForm, err := r.Client.FileRetrieve(ctx, block.NodeDirectory, block.NodeFile)
		if err != nil {
			return err
		}

		if fingerprint.String(wireForm) != block.UniqueIdentifier {
			return errors.NewIntegrityError(
				"Block fingerprint mismatch",
				lf.RelativePath+": block "+strconv.FormatInt(block.BlockSequenceNumber, 10)+" does not match its recorded unique_identifier",
				"The node's stored copy may be corrupted",
				nil,
			)
		}
		if int64(len(wireForm)) != block.StoredFilesize {
			return errors.NewIntegrityError(
				"Block size mismatch",
				lf.RelativePath+": block "+strconv.FormatInt(block.BlockSequenceNumber, 10)+" retrieved a different size than recorded",
				"",
				nil,
			)
		}

		plaintext, err := blockcodec.Decode(wireForm, encrypted, r.Key, int(block.PadCharCount), isLast, vf.OriginFilesize, written)
		if err != nil {
			return err
		}
		if int64(len(plaintext)) != block.OriginFilesize {
			return errors.NewIntegrityError(
				"Decoded block length mismatch",
				lf.RelativePath+": block "+strconv.FormatInt(block.BlockSequenceNumber, 10)+" decoded to an unexpected length",
				"",
				nil,
			)
		}

		if _, err := out.Write(plaintext); err != nil {
			return errors.NewIOError("Cannot write to target file", err.Error(), targetPath, err)
		}
		written += int64(len(plaintext))
	}

	if err := out.Sync(); err != nil {
		return errors.NewIOError("Cannot fsync target file", err.Error(), targetPath, err)
	}
	return nil
}

