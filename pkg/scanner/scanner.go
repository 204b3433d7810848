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

// Package scanner walks a registered LocalDirectory, decides per (file,
// node) whether blocks need work, and hands files that need work off to
// the Replicator. It owns the Scanner-side catalog writes: LocalFile and
// VaultFile upserts happen in one transaction per file, the recovery unit
// named by the spec.
package scanner

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kraklabs/lachepas/internal/errors"
	"github.com/kraklabs/lachepas/pkg/catalog"
	"github.com/kraklabs/lachepas/pkg/chunker"
	"github.com/kraklabs/lachepas/pkg/exclusions"
	"github.com/kraklabs/lachepas/pkg/nodeclient"
	"github.com/kraklabs/lachepas/pkg/replicator"
)

// NodeTarget is one active StorageNode the Scanner must vault and
// replicate to, with its already-constructed RPC client. The encryption
// key is not per node; it is Scanner.Key.
type NodeTarget struct {
	Node   catalog.StorageNode
	Client *nodeclient.Client
}

// Scanner walks one LocalDirectory at a time.
type Scanner struct {
	Cat        *catalog.Catalog
	Exclusions func(dirPath string) exclusions.List
	Key        []byte
}

// New builds a Scanner. key is the AES-256 key used when a directory has
// Encrypt set; it is ignored for unencrypted directories.
func New(cat *catalog.Catalog, exclusionsFor func(string) exclusions.List, key []byte) *Scanner {
	return &Scanner{Cat: cat, Exclusions: exclusionsFor, Key: key}
}

// Scan runs one pass over dir (already registered in the catalog) against
// every active node in nodes. It returns the number of files that had at
// least one block copied to at least one node.
func (s *Scanner) Scan(ctx context.Context, dir *catalog.LocalDirectory, nodes []NodeTarget) (int, error) {
	vaultIDs := make(map[int64]int64, len(nodes)) // node id -> vault id
	for _, nt := range nodes {
		var vault *catalog.Vault
		err := s.Cat.Transaction(ctx, func(tx *catalog.Tx) error {
			v, err := tx.EnsureVault(nt.Node.ID, dir)
			if err != nil {
				return err
			}
			vault = v
			return nil
		})
		if err != nil {
			return 0, err
		}
		vaultIDs[nt.Node.ID] = vault.ID
	}

	filesCopied := 0
	excl := s.Exclusions(dir.Path)

	err := filepath.WalkDir(dir.Path, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			errors.Log(errors.NewIOError("Cannot stat path during scan", err.Error(), path, err), path)
			return nil
		}
		if path == dir.Path {
			return nil
		}

		basename := d.Name()
		if d.IsDir() {
			if excl.ExcludeDirectory(basename) {
				return filepath.SkipDir
			}
			if !dir.Recurse {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if excl.ExcludeFile(basename) {
			return nil
		}

		rel, relErr := filepath.Rel(dir.Path, path)
		if relErr != nil {
			errors.Log(errors.NewInternalError("Cannot compute relative path", relErr.Error(), path, relErr), path)
			return nil
		}

		copied, scanErr := s.scanFile(ctx, dir, rel, path, nodes, vaultIDs)
		if scanErr != nil {
			errors.Log(scanErr, path)
			return nil
		}
		if copied {
			filesCopied++
		}
		return nil
	})
	if err != nil {
		return filesCopied, errors.NewIOError("Directory walk failed", err.Error(), dir.Path, err)
	}

	return filesCopied, nil
}

func (s *Scanner) scanFile(ctx context.Context, dir *catalog.LocalDirectory, rel, absPath string, nodes []NodeTarget, vaultIDs map[int64]int64) (bool, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return false, errors.NewIOError("Cannot stat file", err.Error(), absPath, err)
	}

	size := info.Size()
	modTime := info.ModTime().Unix()
	now := time.Now().Unix()
	user, group, other := catalog.PermsToTriple(info.Mode().Perm())

	var localFile *catalog.LocalFile
	placements := make([]replicator.Placement, 0, len(nodes))

	err = s.Cat.Transaction(ctx, func(tx *catalog.Tx) error {
		lf, err := tx.GetLocalFile(dir.ID, rel)
		if err != nil {
			return err
		}
		if lf == nil {
			lf = &catalog.LocalFile{
				LocalDirectoryID: dir.ID,
				RelativePath:     rel,
				CreateTimeUnix:   now,
				ModifyTimeUnix:   modTime,
				ScanTimeUnix:     now,
			}
			if err := tx.InsertLocalFile(lf); err != nil {
				return err
			}
		} else {
			lf.ScanTimeUnix = now
			if err := tx.UpdateLocalFile(lf); err != nil {
				return err
			}
		}
		localFile = lf

		for _, nt := range nodes {
			vaultID := vaultIDs[nt.Node.ID]
			vf, err := tx.GetVaultFile(vaultID, lf.ID)
			if err != nil {
				return err
			}

			var flag replicator.Flag
			if vf == nil {
				vf = &catalog.VaultFile{
					VaultID:        vaultID,
					LocalFileID:    lf.ID,
					CreateTimeUnix: now,
					ModifyTimeUnix: modTime,
					OriginFilesize: size,
					BlockCount:     int64(chunker.Count(size)),
					UserPerms:      user,
					GroupPerms:     group,
					OtherPerms:     other,
				}
				if err := tx.InsertVaultFile(vf); err != nil {
					return err
				}
				flag = replicator.FlagAll
			} else {
				switch {
				case vf.OriginFilesize == size && vf.ModifyTimeUnix == modTime:
					flag = replicator.FlagNone
				case vf.OriginFilesize == size && modTime > vf.ModifyTimeUnix:
					flag = replicator.FlagSelective
					vf.ModifyTimeUnix = modTime
					if err := tx.UpdateVaultFile(vf); err != nil {
						return err
					}
				case vf.OriginFilesize == size:
					// Disk is older than the catalog: clock skew or a
					// restore artifact. Spec chooses to treat this as
					// "no change" while logging the anomaly.
					flag = replicator.FlagNone
					slog.Warn("scan.clock_skew", "path", rel, "disk_modify_time", modTime, "catalog_modify_time", vf.ModifyTimeUnix)
				default:
					flag = replicator.FlagSelective
					vf.OriginFilesize = size
					vf.ModifyTimeUnix = modTime
					vf.BlockCount = int64(chunker.Count(size))
					vf.UserPerms, vf.GroupPerms, vf.OtherPerms = user, group, other
					if err := tx.UpdateVaultFile(vf); err != nil {
						return err
					}
				}
			}

			placements = append(placements, replicator.Placement{
				NodeName:    nt.Node.NodeName,
				Client:      nt.Client,
				VaultFileID: vf.ID,
				Flag:        flag,
			})
		}

		return nil
	})
	if err != nil {
		return false, err
	}

	anyWork := false
	for _, p := range placements {
		if p.Flag != replicator.FlagNone {
			anyWork = true
			break
		}
	}
	if !anyWork {
		return false, nil
	}

	result, err := replicator.Replicate(ctx, replicator.Input{
		Cat:            s.Cat,
		FilePath:       absPath,
		BlockCount:     chunker.Count(size),
		Encrypt:        dir.Encrypt,
		Key:            s.Key,
		CreateTimeUnix: now,
		ModifyTimeUnix: modTime,
		Placements:     placements,
	})
	if err != nil {
		return false, err
	}

	if result.AnyNodeCopied {
		localFile.CopyTimeUnix = now
		if err := s.Cat.UpdateLocalFile(ctx, localFile); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}
