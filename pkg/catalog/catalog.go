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

// Package catalog is the client-side relational store: LocalDirectory,
// LocalFile, StorageNode, Vault, VaultFile and VaultFileBlock, backed by an
// embedded CozoDB database (pkg/cozodb). One Catalog owns one database file
// for the lifetime of a lachepas client; the Scanner and Replicator are its
// only writers, serialized through Catalog's own lock, matching the spec's
// single-writer-catalog model.
package catalog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/kraklabs/lachepas/internal/errors"
	cozo "github.com/kraklabs/lachepas/pkg/cozodb"
)

// DefaultFilename is the catalog database filename the spec names
// explicitly (gfs_db.sqlite3).
const DefaultFilename = "gfs_db.sqlite3"

// Catalog wraps an open CozoDB database with typed entity operations and
// write serialization.
type Catalog struct {
	db *cozo.DB
	mu sync.Mutex
}

// Open opens (or creates) the catalog database at dir/DefaultFilename using
// the "sqlite" CozoDB engine. Pass engine "mem" for tests that don't need
// a file on disk.
func Open(dir, engine string) (*Catalog, error) {
	if engine == "" {
		engine = "sqlite"
	}

	path := dir
	if engine != "mem" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.NewIOError("Cannot create catalog directory", err.Error(), "Check permissions on "+dir, err)
		}
		path = filepath.Join(dir, DefaultFilename)
	}

	db, err := cozo.Open(engine, path, nil)
	if err != nil {
		return nil, errors.NewIOError("Cannot open catalog database", err.Error(), "Check that the directory is writable and not locked by another process", err)
	}

	c := &Catalog{db: db}
	if err := c.EnsureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// Close releases the underlying database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Backup snapshots the catalog database to outPath. The catalog tracks
// where every block of every file lives; losing it without a backup of its
// own turns a healthy block store into an unreadable pile of fingerprints.
func (c *Catalog) Backup(outPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Backup(outPath)
}

// Restore replaces the catalog's contents from a prior Backup. Callers must
// not have any Transaction or read in flight; this is a maintenance
// operation, not something a running client performs on itself.
func (c *Catalog) Restore(inPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Restore(inPath)
}

// catalogRelations lists every relation ExportRelations/ImportRelations
// round-trip together, i.e. every relation EnsureSchema creates.
var catalogRelations = []string{
	"local_directory", "local_file", "storage_node", "vault", "vault_file",
	"vault_file_block", "catalog_id_seq",
}

// Export dumps the whole catalog as a JSON document, for moving a catalog
// between storage engines (e.g. "mem" in a test fixture to "sqlite" on
// disk) without going through a file-level Backup.
func (c *Catalog) Export(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := json.Marshal(map[string]any{"relations": catalogRelations})
	if err != nil {
		return "", errors.NewInternalError("Cannot build export request", err.Error(), "", err)
	}
	data, err := c.db.ExportRelations(string(payload))
	if err != nil {
		return "", errors.NewInternalError("Catalog export failed", err.Error(), "", err)
	}
	return data, nil
}

// Import loads a JSON document produced by Export into the catalog's
// existing relations.
func (c *Catalog) Import(ctx context.Context, jsonPayload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.db.ImportRelations(jsonPayload); err != nil {
		return errors.NewInternalError("Catalog import failed", err.Error(), "", err)
	}
	return nil
}

var schemaStatements = []string{
	`:create local_directory { id: Int => path: String, active: Bool, recurse: Bool, compress: Bool, encrypt: Bool, copy_count: Int }`,
	`:create local_file { id: Int => local_directory_id: Int, relative_path: String, create_time: Int, modify_time: Int, scan_time: Int, copy_time: Int }`,
	`:create storage_node { id: Int => node_name: String, active: Bool, ping_time: Int, copy_time: Int }`,
	`:create vault { id: Int => storage_node_id: Int, local_directory_id: Int, compress: Bool, encrypt: Bool }`,
	`:create vault_file { id: Int => vault_id: Int, local_file_id: Int, create_time: Int, modify_time: Int, origin_filesize: Int, block_count: Int, user_perms: String, group_perms: String, other_perms: String }`,
	`:create vault_file_block { id: Int => vault_file_id: Int, create_time: Int, modify_time: Int, stored_time: Int, origin_filesize: Int, stored_filesize: Int, block_sequence_number: Int, pad_char_count: Int, unique_identifier: String, node_directory: String, node_file: String }`,
	`:create catalog_id_seq { name: String => next_id: Int }`,
}

// EnsureSchema creates the catalog relations if they don't already exist.
// Idempotent, mirroring how CozoDB-backed catalogs elsewhere in this
// codebase tolerate re-running schema creation on every startup.
func (c *Catalog) EnsureSchema(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, stmt := range schemaStatements {
		if _, err := c.db.Run(ctx, stmt, nil); err != nil {
			if isAlreadyExists(err) {
				continue
			}
			return errors.NewIOError("Cannot create catalog schema", err.Error(), "The catalog database may be corrupted", err)
		}
	}
	return nil
}

func isAlreadyExists(err error) bool {
	msg := err.Error()
	return containsAny(msg, "already exists", "conflicts with an existing one")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(s) >= len(sub) && indexOf(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// nextID mints a fresh surrogate id for the named sequence
// ("local_directory", "local_file", ...). Callers must hold c.mu.
func (c *Catalog) nextID(ctx context.Context, name string) (int64, error) {
	return nextIDLocked(ctx, c.db, name)
}

// nextIDLocked is the lock-free core of id minting, shared by Catalog
// methods (which take c.mu themselves) and Tx methods (which run under
// Transaction's held lock).
func nextIDLocked(ctx context.Context, db *cozo.DB, name string) (int64, error) {
	rows, err := db.Run(ctx, `?[next_id] := *catalog_id_seq{name, next_id}, name = $name`, map[string]any{"name": name})
	if err != nil {
		return 0, errors.NewInternalError("Catalog sequence read failed", err.Error(), "", err)
	}

	var current int64 = 1
	if len(rows.Rows) > 0 {
		current = toInt64(rows.Rows[0][0])
	}

	_, err = db.Run(ctx, `?[name, next_id] <- [[$name, $next]] :put catalog_id_seq { name => next_id }`, map[string]any{
		"name": name,
		"next": current + 1,
	})
	if err != nil {
		return 0, errors.NewInternalError("Catalog sequence write failed", err.Error(), "", err)
	}

	return current, nil
}

// Tx is a batch of CozoScript writes that Transaction applies together.
// Tx.Insert*/Update* methods queue their writes instead of sending them, so
// a failure midway through fn leaves the catalog untouched: nothing reaches
// CozoDB until fn returns successfully and Transaction flushes the batch.
// Reads (Tx.Get*) run immediately against the live database, since decision
// logic inside fn needs current state, not the batch's pending writes.
type Tx struct {
	ctx        context.Context
	db         *cozo.DB
	statements []cozo.Statement
}

// queue appends a write to the batch Transaction flushes after fn returns.
func (tx *Tx) queue(stmt cozo.Statement) {
	tx.statements = append(tx.statements, stmt)
}

// Transaction holds the catalog-wide write lock for the duration of fn,
// giving fn's writes the single-writer guarantee the spec expects of "the
// recovery unit" for one file's scan. If fn returns an error, the batch of
// writes it queued is discarded without ever reaching the database; only a
// successful fn gets its batch sent, via RunScripts, which applies the
// statements in order. A statement that fails during that flush leaves the
// statements before it applied; they are not rolled back.
func (c *Catalog) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := &Tx{ctx: ctx, db: c.db}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.statements) == 0 {
		return nil
	}
	if err := c.db.RunScripts(ctx, tx.statements); err != nil {
		return errors.NewInternalError("Catalog transaction failed", err.Error(), "", err)
	}
	return nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func toBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}
