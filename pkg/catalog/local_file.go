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

// GetLocalFile retrieves a LocalFile by (local_directory_id, relative_path).
// Returns (nil, nil) if absent — the Scanner treats "not found" as the
// first-observation case, not an error.
func (c *Catalog) GetLocalFile(ctx context.Context, dirID int64, relPath string) (*LocalFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return getLocalFile(ctx, c.db, dirID, relPath)
}

func getLocalFile(ctx context.Context, db *cozo.DB, dirID int64, relPath string) (*LocalFile, error) {
	rows, err := db.Run(ctx, `?[id, local_directory_id, relative_path, create_time, modify_time, scan_time, copy_time] :=
		*local_file{id, local_directory_id, relative_path, create_time, modify_time, scan_time, copy_time},
		local_directory_id = $dir_id, relative_path = $rel`, map[string]any{"dir_id": dirID, "rel": relPath})
	if err != nil {
		return nil, errors.NewInternalError("Catalog lookup failed", err.Error(), "", err)
	}
	if len(rows.Rows) == 0 {
		return nil, nil
	}
	return rowToLocalFile(rows.Rows[0]), nil
}

// GetLocalFile is the Transaction-scoped counterpart of
// Catalog.GetLocalFile.
func (tx *Tx) GetLocalFile(dirID int64, relPath string) (*LocalFile, error) {
	return getLocalFile(tx.ctx, tx.db, dirID, relPath)
}

// ListLocalFilesForDirectory returns every LocalFile registered under dirID.
func (c *Catalog) ListLocalFilesForDirectory(ctx context.Context, dirID int64) ([]LocalFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.Run(ctx, `?[id, local_directory_id, relative_path, create_time, modify_time, scan_time, copy_time] :=
		*local_file{id, local_directory_id, relative_path, create_time, modify_time, scan_time, copy_time},
		local_directory_id = $dir_id`, map[string]any{"dir_id": dirID})
	if err != nil {
		return nil, errors.NewInternalError("Catalog lookup failed", err.Error(), "", err)
	}

	out := make([]LocalFile, 0, len(rows.Rows))
	for _, r := range rows.Rows {
		out = append(out, *rowToLocalFile(r))
	}
	return out, nil
}

// InsertLocalFile assigns a new id into lf and persists it, outside of any
// Transaction. Most callers go through Tx.InsertLocalFile as part of a
// per-file scan transaction instead.
func (c *Catalog) InsertLocalFile(ctx context.Context, lf *LocalFile) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := nextIDLocked(ctx, c.db, "local_file")
	if err != nil {
		return err
	}
	lf.ID = id
	return putLocalFile(ctx, c.db, lf)
}

// UpdateLocalFile writes all fields of lf keyed by lf.ID, outside of any
// Transaction.
func (c *Catalog) UpdateLocalFile(ctx context.Context, lf *LocalFile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return putLocalFile(ctx, c.db, lf)
}

// InsertLocalFile is the Transaction-scoped counterpart of
// Catalog.InsertLocalFile. It assumes the catalog write lock is already
// held, as it is during a Scanner transaction. The write itself is queued,
// not sent, until Transaction's fn returns successfully.
func (tx *Tx) InsertLocalFile(lf *LocalFile) error {
	id, err := nextIDLocked(tx.ctx, tx.db, "local_file")
	if err != nil {
		return err
	}
	lf.ID = id
	tx.queue(putLocalFileStatement(lf))
	return nil
}

// UpdateLocalFile is the Transaction-scoped counterpart of
// Catalog.UpdateLocalFile.
func (tx *Tx) UpdateLocalFile(lf *LocalFile) error {
	tx.queue(putLocalFileStatement(lf))
	return nil
}

func putLocalFileStatement(lf *LocalFile) cozo.Statement {
	return cozo.Statement{
		Script: `?[id, local_directory_id, relative_path, create_time, modify_time, scan_time, copy_time] <-
			[[$id, $dir_id, $rel, $create_time, $modify_time, $scan_time, $copy_time]]
			:put local_file { id => local_directory_id, relative_path, create_time, modify_time, scan_time, copy_time }`,
		Params: map[string]any{
			"id": lf.ID, "dir_id": lf.LocalDirectoryID, "rel": lf.RelativePath,
			"create_time": lf.CreateTimeUnix, "modify_time": lf.ModifyTimeUnix,
			"scan_time": lf.ScanTimeUnix, "copy_time": lf.CopyTimeUnix,
		},
	}
}

func putLocalFile(ctx context.Context, db *cozo.DB, lf *LocalFile) error {
	stmt := putLocalFileStatement(lf)
	if _, err := db.Run(ctx, stmt.Script, stmt.Params); err != nil {
		return errors.NewInternalError("Cannot write local file", err.Error(), "", err)
	}
	return nil
}

func rowToLocalFile(r []any) *LocalFile {
	return &LocalFile{
		ID:               toInt64(r[0]),
		LocalDirectoryID: toInt64(r[1]),
		RelativePath:     toString(r[2]),
		CreateTimeUnix:   toInt64(r[3]),
		ModifyTimeUnix:   toInt64(r[4]),
		ScanTimeUnix:     toInt64(r[5]),
		CopyTimeUnix:     toInt64(r[6]),
	}
}
