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

// Package cozodb binds the embedded CozoDB engine that backs the client
// catalog (pkg/catalog). It is deliberately thin: callers issue CozoScript
// and get back named rows, with no knowledge of the relations a catalog
// keeps there.
package cozodb

/*
#include <stdlib.h>
#include <string.h>
#include "cozo_c.h"

// CGo flags for linking.
// Use ${SRCDIR} so "go install ./cmd/lachepas" can find the vendored static library in ./lib.
#cgo LDFLAGS: -L${SRCDIR}/../../lib -lcozo_c -lstdc++ -lm
#cgo windows LDFLAGS: -lbcrypt -lwsock32 -lws2_32 -lshlwapi -lrpcrt4
#cgo darwin LDFLAGS: -framework Security
*/
import "C"

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"unsafe"
)

// DB represents an open CozoDB database instance that a single catalog owns
// for its lifetime. It is safe for concurrent readers but callers that mix
// reads and writes should hold their own serialization (pkg/catalog does,
// per the single-writer-catalog model of the spec).
type DB struct {
	id     C.int32_t
	mu     sync.Mutex
	closed bool
	engine string
	path   string
}

// NamedRows is the result of a query: column headers plus data rows.
type NamedRows struct {
	Headers []string
	Rows    [][]any
}

// Open opens (or creates) a CozoDB database.
//
// engine is the storage engine: "mem" (volatile, for tests), "sqlite" (the
// catalog's default, matching the spec's gfs_db.sqlite3 filename), or
// "rocksdb". path is the database file/directory; ignored for "mem".
func Open(engine, path string, options map[string]any) (*DB, error) {
	cEngine := C.CString(engine)
	defer C.free(unsafe.Pointer(cEngine))

	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	optionsJSON := "{}"
	if len(options) > 0 {
		optBytes, err := json.Marshal(options)
		if err != nil {
			return nil, fmt.Errorf("marshal options: %w", err)
		}
		optionsJSON = string(optBytes)
	}
	slog.Debug("cozodb.open", "engine", engine, "path", path)
	cOptions := C.CString(optionsJSON)
	defer C.free(unsafe.Pointer(cOptions))

	var dbID C.int32_t
	errPtr := C.cozo_open_db(cEngine, cPath, cOptions, &dbID)
	if errPtr != nil {
		errMsg := C.GoString(errPtr)
		C.cozo_free_str(errPtr)
		return nil, errors.New(errMsg)
	}

	return &DB{id: dbID, engine: engine, path: path}, nil
}

// Run executes a CozoScript statement, allowing writes.
func (db *DB) Run(ctx context.Context, script string, params map[string]any) (NamedRows, error) {
	return db.runQuery(ctx, script, params, false)
}

// RunReadOnly executes a CozoScript statement under read-only enforcement.
func (db *DB) RunReadOnly(ctx context.Context, script string, params map[string]any) (NamedRows, error) {
	return db.runQuery(ctx, script, params, true)
}

func (db *DB) runQuery(ctx context.Context, script string, params map[string]any, immutable bool) (NamedRows, error) {
	if err := ctx.Err(); err != nil {
		return NamedRows{}, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return NamedRows{}, errors.New("cozodb: database is closed")
	}

	cScript := C.CString(script)
	defer C.free(unsafe.Pointer(cScript))

	paramsJSON := "{}"
	if len(params) > 0 {
		paramBytes, err := json.Marshal(params)
		if err != nil {
			return NamedRows{}, fmt.Errorf("marshal params: %w", err)
		}
		paramsJSON = string(paramBytes)
	}
	cParams := C.CString(paramsJSON)
	defer C.free(unsafe.Pointer(cParams))

	cImmutable := C.bool(immutable)
	resultPtr := C.cozo_run_query(db.id, cScript, cParams, cImmutable)
	if resultPtr == nil {
		return NamedRows{}, errors.New("cozodb: cozo_run_query returned null")
	}

	resultJSON := C.GoString(resultPtr)
	C.cozo_free_str(resultPtr)

	return parseResult(resultJSON)
}

// Statement is one CozoScript write plus its own parameter bindings, so a
// batch can carry several differently-shaped writes without their $names
// colliding.
type Statement struct {
	Script string
	Params map[string]any
}

// RunScripts executes a sequence of Statements as a single catalog write:
// if any statement fails, statements already applied are not rolled back by
// CozoDB itself, so the catalog only ever calls this with a batch it has
// already fully assembled in Go (see pkg/catalog.Transaction), not with
// writes a caller is still deciding between.
func (db *DB) RunScripts(ctx context.Context, statements []Statement) error {
	for _, s := range statements {
		if _, err := db.Run(ctx, s.Script, s.Params); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection. Safe to call more than once.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true
	if !bool(C.cozo_close_db(db.id)) {
		return fmt.Errorf("cozodb: close failed for %s", db.path)
	}
	return nil
}

// Stats reports the engine and path a DB was opened with, for diagnostics.
func (db *DB) Stats() (engine, path string) {
	return db.engine, db.path
}

// Backup snapshots the database to outPath, independent of whatever
// replication the catalog's own relations describe. A backup engine that
// could lose its own catalog to a single disk failure would defeat its own
// purpose.
func (db *DB) Backup(outPath string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return errors.New("cozodb: database is closed")
	}

	cPath := C.CString(outPath)
	defer C.free(unsafe.Pointer(cPath))

	resultPtr := C.cozo_backup(db.id, cPath)
	if resultPtr == nil {
		return errors.New("cozodb: cozo_backup returned null")
	}
	resultJSON := C.GoString(resultPtr)
	C.cozo_free_str(resultPtr)

	return checkOK(resultJSON, "backup")
}

// Restore replaces the database's contents with a prior Backup's snapshot.
func (db *DB) Restore(inPath string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return errors.New("cozodb: database is closed")
	}

	cPath := C.CString(inPath)
	defer C.free(unsafe.Pointer(cPath))

	resultPtr := C.cozo_restore(db.id, cPath)
	if resultPtr == nil {
		return errors.New("cozodb: cozo_restore returned null")
	}
	resultJSON := C.GoString(resultPtr)
	C.cozo_free_str(resultPtr)

	return checkOK(resultJSON, "restore")
}

// ImportRelations loads rows into existing relations from a JSON payload,
// the shape CozoDB's own export produces. Used to seed a freshly-migrated
// catalog from an ExportRelations dump rather than a full file-level Backup.
func (db *DB) ImportRelations(jsonPayload string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return errors.New("cozodb: database is closed")
	}

	cPayload := C.CString(jsonPayload)
	defer C.free(unsafe.Pointer(cPayload))

	resultPtr := C.cozo_import_relations(db.id, cPayload)
	if resultPtr == nil {
		return errors.New("cozodb: cozo_import_relations returned null")
	}
	resultJSON := C.GoString(resultPtr)
	C.cozo_free_str(resultPtr)

	return checkOK(resultJSON, "import")
}

// ExportRelations dumps the relations named in jsonPayload (a
// {"relations": [...]} selector) to a JSON string suitable for
// ImportRelations.
func (db *DB) ExportRelations(jsonPayload string) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return "", errors.New("cozodb: database is closed")
	}

	cPayload := C.CString(jsonPayload)
	defer C.free(unsafe.Pointer(cPayload))

	resultPtr := C.cozo_export_relations(db.id, cPayload)
	if resultPtr == nil {
		return "", errors.New("cozodb: cozo_export_relations returned null")
	}
	resultJSON := C.GoString(resultPtr)
	C.cozo_free_str(resultPtr)

	return resultJSON, nil
}

func checkOK(resultJSON, op string) error {
	var result struct {
		OK      bool   `json:"ok"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return fmt.Errorf("cozodb: parse %s result: %w", op, err)
	}
	if !result.OK {
		return fmt.Errorf("cozodb: %s: %s", op, result.Message)
	}
	return nil
}

func parseResult(jsonStr string) (NamedRows, error) {
	var result struct {
		OK      bool     `json:"ok"`
		Headers []string `json:"headers"`
		Rows    [][]any  `json:"rows"`
		Message string   `json:"message"`
		Display string   `json:"display"`
	}

	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return NamedRows{}, fmt.Errorf("cozodb: parse result: %w", err)
	}

	if !result.OK {
		errMsg := result.Message
		if errMsg == "" {
			errMsg = result.Display
		}
		if errMsg == "" {
			errMsg = "cozodb: query failed"
		}
		return NamedRows{}, errors.New(errMsg)
	}

	return NamedRows{Headers: result.Headers, Rows: result.Rows}, nil
}
