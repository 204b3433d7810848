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

// Package errors is the lachepas error taxonomy: every failure the core
// components raise (§7 of the spec) is a UserError carrying a Kind plus a
// human-facing title/detail/suggestion, so the CLI can print something
// actionable instead of a bare Go error string.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
)

// Kind classifies a UserError. The first block matches the spec's own
// taxonomy verbatim; the second block covers ambient CLI/config concerns
// the core doesn't name but a complete repository still needs to report.
type Kind string

const (
	BadKey            Kind = "bad_key"
	DecodeError       Kind = "decode_error"
	IntegrityMismatch Kind = "integrity_mismatch"
	CatalogConflict   Kind = "catalog_conflict"
	CatalogIncomplete Kind = "catalog_incomplete"
	NotFound          Kind = "not_found"
	TransportError    Kind = "transport_error"
	NodeUnavailable   Kind = "node_unavailable"
	Timeout           Kind = "timeout"
	IOError           Kind = "io_error"
	XAttrUnsupported  Kind = "xattr_unsupported"

	Config     Kind = "config"
	Permission Kind = "permission"
	Internal   Kind = "internal"
	Input      Kind = "input"
)

// UserError is a typed, user-facing error. Title is a short one-line
// summary, Detail explains what happened, Suggestion tells the user what to
// try next, and Cause (optional) is the underlying Go error for logs.
type UserError struct {
	Kind       Kind
	Title      string
	Detail     string
	Suggestion string
	Cause      error
}

func (e *UserError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Title, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

func (e *UserError) Unwrap() error { return e.Cause }

func newError(kind Kind, title, detail, suggestion string, cause error) *UserError {
	return &UserError{Kind: kind, Title: title, Detail: detail, Suggestion: suggestion, Cause: cause}
}

func NewBadKeyError(title, detail, suggestion string, cause error) *UserError {
	return newError(BadKey, title, detail, suggestion, cause)
}

func NewDecodeError(title, detail, suggestion string, cause error) *UserError {
	return newError(DecodeError, title, detail, suggestion, cause)
}

func NewIntegrityError(title, detail, suggestion string, cause error) *UserError {
	return newError(IntegrityMismatch, title, detail, suggestion, cause)
}

func NewCatalogConflictError(title, detail, suggestion string, cause error) *UserError {
	return newError(CatalogConflict, title, detail, suggestion, cause)
}

func NewCatalogIncompleteError(title, detail, suggestion string, cause error) *UserError {
	return newError(CatalogIncomplete, title, detail, suggestion, cause)
}

func NewNotFoundError(title, detail, suggestion string, cause error) *UserError {
	return newError(NotFound, title, detail, suggestion, cause)
}

func NewTransportError(title, detail, suggestion string, cause error) *UserError {
	return newError(TransportError, title, detail, suggestion, cause)
}

func NewNodeUnavailableError(title, detail, suggestion string, cause error) *UserError {
	return newError(NodeUnavailable, title, detail, suggestion, cause)
}

func NewTimeoutError(title, detail, suggestion string, cause error) *UserError {
	return newError(Timeout, title, detail, suggestion, cause)
}

func NewIOError(title, detail, suggestion string, cause error) *UserError {
	return newError(IOError, title, detail, suggestion, cause)
}

func NewXAttrUnsupportedError(title, detail, suggestion string, cause error) *UserError {
	return newError(XAttrUnsupported, title, detail, suggestion, cause)
}

func NewConfigError(title, detail, suggestion string, cause error) *UserError {
	return newError(Config, title, detail, suggestion, cause)
}

func NewPermissionError(title, detail, suggestion string, cause error) *UserError {
	return newError(Permission, title, detail, suggestion, cause)
}

func NewInternalError(title, detail, suggestion string, cause error) *UserError {
	return newError(Internal, title, detail, suggestion, cause)
}

func NewInputError(title, detail, suggestion string, cause error) *UserError {
	return newError(Input, title, detail, suggestion, cause)
}

// As reports whether err is (or wraps) a *UserError, returning it if so.
func As(err error) (*UserError, bool) {
	var ue *UserError
	if stderrors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// FatalError prints err and exits the process with status 1. Human output
// goes to stderr as a title/detail/suggestion block; jsonOutput switches to
// a single JSON document instead, for scripting callers.
func FatalError(err error, jsonOutput bool) {
	ue, ok := As(err)
	if !ok {
		ue = NewInternalError("Unexpected error", err.Error(), "Please report this issue", err)
	}

	if jsonOutput {
		_ = json.NewEncoder(os.Stderr).Encode(map[string]string{
			"error":      string(ue.Kind),
			"title":      ue.Title,
			"detail":     ue.Detail,
			"suggestion": ue.Suggestion,
		})
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Error: %s\n", ue.Title)
	if ue.Detail != "" {
		fmt.Fprintf(os.Stderr, "  %s\n", ue.Detail)
	}
	if ue.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "  Suggestion: %s\n", ue.Suggestion)
	}
	os.Exit(1)
}

// Log reports a non-fatal failure: a single block/file/node failed but the
// scan, replication, or restore run continues (§7's propagation policy).
func Log(err error, offendingKey string) {
	ue, ok := As(err)
	if !ok {
		slog.Warn("operation failed", "key", offendingKey, "err", err)
		return
	}
	slog.Warn(ue.Title, "kind", ue.Kind, "key", offendingKey, "detail", ue.Detail, "cause", ue.Cause)
}
