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
)

// InsertLocalDirectory assigns a new id into d and persists it. Fails
// CatalogConflict if d.Path is already registered.
func (c *Catalog) InsertLocalDirectory(ctx context.Context, d *LocalDirectory) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.db.Run(ctx, `?[id] := *local_directory{id, path}, path = $path`, map[string]any{"path": d.Path})
	if err != nil {
		return errors.NewInternalError("Catalog lookup failed", err.Error(), "", err)
	}
	if len(existing.Rows) > 0 {
		return errors.NewCatalogConflictError("Directory already registered", "A local directory with this path already exists", "Use list-files <path> to see what the existing registration tracks", nil)
	}

	id, err := c.nextID(ctx, "local_directory")
	if err != nil {
		return err
	}
	d.ID = id

	_, err = c.db.Run(ctx, `?[id, path, active, recurse, compress, encrypt, copy_count] <- [[$id, $path, $active, $recurse, $compress, $encrypt, $copy_count]]
		:put local_directory { id => path, active, recurse, compress, encrypt, copy_count }`, map[string]any{
		"id": id, "path": d.Path, "active": d.Active, "recurse": d.Recurse,
		"compress": d.Compress, "encrypt": d.Encrypt, "copy_count": d.CopyCount,
	})
	if err != nil {
		return errors.NewInternalError("Cannot insert local directory", err.Error(), "", err)
	}
	return nil
}

// UpdateLocalDirectory writes all fields of d keyed by d.ID.
func (c *Catalog) UpdateLocalDirectory(ctx context.Context, d *LocalDirectory) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.getLocalDirectory(ctx, d.ID); err != nil {
		return err
	}

	_, err := c.db.Run(ctx, `?[id, path, active, recurse, compress, encrypt, copy_count] <- [[$id, $path, $active, $recurse, $compress, $encrypt, $copy_count]]
		:put local_directory { id => path, active, recurse, compress, encrypt, copy_count }`, map[string]any{
		"id": d.ID, "path": d.Path, "active": d.Active, "recurse": d.Recurse,
		"compress": d.Compress, "encrypt": d.Encrypt, "copy_count": d.CopyCount,
	})
	if err != nil {
		return errors.NewInternalError("Cannot update local directory", err.Error(), "", err)
	}
	return nil
}

// GetLocalDirectory retrieves a LocalDirectory by id, failing NotFound.
func (c *Catalog) GetLocalDirectory(ctx context.Context, id int64) (*LocalDirectory, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocalDirectory(ctx, id)
}

func (c *Catalog) getLocalDirectory(ctx context.Context, id int64) (*LocalDirectory, error) {
	rows, err := c.db.Run(ctx, `?[id, path, active, recurse, compress, encrypt, copy_count] :=
		*local_directory{id, path, active, recurse, compress, encrypt, copy_count}, id = $id`, map[string]any{"id": id})
	if err != nil {
		return nil, errors.NewInternalError("Catalog lookup failed", err.Error(), "", err)
	}
	if len(rows.Rows) == 0 {
		return nil, errors.NewNotFoundError("Local directory not found", "No local directory with this id is registered", "", nil)
	}
	return rowToLocalDirectory(rows.Rows[0]), nil
}

// GetLocalDirectoryByPath looks up a LocalDirectory by its registered path.
// Returns (nil, nil) if absent, so CLI callers can decide between "run
// init-directory first" and a genuine lookup failure.
func (c *Catalog) GetLocalDirectoryByPath(ctx context.Context, path string) (*LocalDirectory, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.Run(ctx, `?[id, path, active, recurse, compress, encrypt, copy_count] :=
		*local_directory{id, path, active, recurse, compress, encrypt, copy_count}, path = $path`, map[string]any{"path": path})
	if err != nil {
		return nil, errors.NewInternalError("Catalog lookup failed", err.Error(), "", err)
	}
	if len(rows.Rows) == 0 {
		return nil, nil
	}
	return rowToLocalDirectory(rows.Rows[0]), nil
}

// ListLocalDirectories returns every registered LocalDirectory, active and
// inactive.
func (c *Catalog) ListLocalDirectories(ctx context.Context) ([]LocalDirectory, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.Run(ctx, `?[id, path, active, recurse, compress, encrypt, copy_count] :=
		*local_directory{id, path, active, recurse, compress, encrypt, copy_count}`, nil)
	if err != nil {
		return nil, errors.NewInternalError("Catalog lookup failed", err.Error(), "", err)
	}

	out := make([]LocalDirectory, 0, len(rows.Rows))
	for _, r := range rows.Rows {
		out = append(out, *rowToLocalDirectory(r))
	}
	return out, nil
}

func rowToLocalDirectory(r []any) *LocalDirectory {
	return &LocalDirectory{
		ID:        toInt64(r[0]),
		Path:      toString(r[1]),
		Active:    toBool(r[2]),
		Recurse:   toBool(r[3]),
		Compress:  toBool(r[4]),
		Encrypt:   toBool(r[5]),
		CopyCount: toInt64(r[6]),
	}
}
