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

// InsertStorageNode registers a new replication target.
func (c *Catalog) InsertStorageNode(ctx context.Context, n *StorageNode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.db.Run(ctx, `?[id] := *storage_node{id, node_name}, node_name = $name`, map[string]any{"name": n.NodeName})
	if err != nil {
		return errors.NewInternalError("Catalog lookup failed", err.Error(), "", err)
	}
	if len(existing.Rows) > 0 {
		return errors.NewCatalogConflictError("Storage node already registered", "A node with this name is already registered", "Use list-nodes to find the existing registration", nil)
	}

	id, err := c.nextID(ctx, "storage_node")
	if err != nil {
		return err
	}
	n.ID = id

	_, err = c.db.Run(ctx, `?[id, node_name, active, ping_time, copy_time] <- [[$id, $name, $active, $ping_time, $copy_time]]
		:put storage_node { id => node_name, active, ping_time, copy_time }`, map[string]any{
		"id": id, "name": n.NodeName, "active": n.Active, "ping_time": n.PingTimeUnix, "copy_time": n.CopyTimeUnix,
	})
	if err != nil {
		return errors.NewInternalError("Cannot insert storage node", err.Error(), "", err)
	}
	return nil
}

// UpdateStorageNode writes all fields of n keyed by n.ID.
func (c *Catalog) UpdateStorageNode(ctx context.Context, n *StorageNode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.getStorageNode(ctx, n.ID); err != nil {
		return err
	}

	_, err := c.db.Run(ctx, `?[id, node_name, active, ping_time, copy_time] <- [[$id, $name, $active, $ping_time, $copy_time]]
		:put storage_node { id => node_name, active, ping_time, copy_time }`, map[string]any{
		"id": n.ID, "name": n.NodeName, "active": n.Active, "ping_time": n.PingTimeUnix, "copy_time": n.CopyTimeUnix,
	})
	if err != nil {
		return errors.NewInternalError("Cannot update storage node", err.Error(), "", err)
	}
	return nil
}

// DeleteStorageNode is a logical delete: it flips active to false rather
// than removing the row, so existing Vault associations remain valid.
func (c *Catalog) DeleteStorageNode(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.getStorageNode(ctx, id)
	if err != nil {
		return err
	}
	n.Active = false

	_, err = c.db.Run(ctx, `?[id, node_name, active, ping_time, copy_time] <- [[$id, $name, $active, $ping_time, $copy_time]]
		:put storage_node { id => node_name, active, ping_time, copy_time }`, map[string]any{
		"id": n.ID, "name": n.NodeName, "active": false, "ping_time": n.PingTimeUnix, "copy_time": n.CopyTimeUnix,
	})
	if err != nil {
		return errors.NewInternalError("Cannot deactivate storage node", err.Error(), "", err)
	}
	return nil
}

// GetStorageNodeByName looks up a StorageNode by its registered name.
// Returns (nil, nil) if absent.
func (c *Catalog) GetStorageNodeByName(ctx context.Context, name string) (*StorageNode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.Run(ctx, `?[id, node_name, active, ping_time, copy_time] :=
		*storage_node{id, node_name, active, ping_time, copy_time}, node_name = $name`, map[string]any{"name": name})
	if err != nil {
		return nil, errors.NewInternalError("Catalog lookup failed", err.Error(), "", err)
	}
	if len(rows.Rows) == 0 {
		return nil, nil
	}
	return rowToStorageNode(rows.Rows[0]), nil
}

// GetStorageNode retrieves a StorageNode by id, failing NotFound.
func (c *Catalog) GetStorageNode(ctx context.Context, id int64) (*StorageNode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getStorageNode(ctx, id)
}

func (c *Catalog) getStorageNode(ctx context.Context, id int64) (*StorageNode, error) {
	rows, err := c.db.Run(ctx, `?[id, node_name, active, ping_time, copy_time] :=
		*storage_node{id, node_name, active, ping_time, copy_time}, id = $id`, map[string]any{"id": id})
	if err != nil {
		return nil, errors.NewInternalError("Catalog lookup failed", err.Error(), "", err)
	}
	if len(rows.Rows) == 0 {
		return nil, errors.NewNotFoundError("Storage node not found", "No storage node with this id is registered", "", nil)
	}
	return rowToStorageNode(rows.Rows[0]), nil
}

// ListStorageNodes returns every registered StorageNode. If activeOnly,
// deactivated nodes are excluded — this is what the Scanner uses to decide
// which nodes a directory must be vaulted to.
func (c *Catalog) ListStorageNodes(ctx context.Context, activeOnly bool) ([]StorageNode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.Run(ctx, `?[id, node_name, active, ping_time, copy_time] :=
		*storage_node{id, node_name, active, ping_time, copy_time}`, nil)
	if err != nil {
		return nil, errors.NewInternalError("Catalog lookup failed", err.Error(), "", err)
	}

	out := make([]StorageNode, 0, len(rows.Rows))
	for _, r := range rows.Rows {
		n := rowToStorageNode(r)
		if activeOnly && !n.Active {
			continue
		}
		out = append(out, *n)
	}
	return out, nil
}

func rowToStorageNode(r []any) *StorageNode {
	return &StorageNode{
		ID:           toInt64(r[0]),
		NodeName:     toString(r[1]),
		Active:       toBool(r[2]),
		PingTimeUnix: toInt64(r[3]),
		CopyTimeUnix: toInt64(r[4]),
	}
}
