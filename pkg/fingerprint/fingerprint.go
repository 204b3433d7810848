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

// Package fingerprint computes the content-addressing digest used
// throughout lachepas: a 40-character lowercase hex SHA-1, with the empty
// byte sequence mapping to the empty string so "not computed" and "computed
// over nothing" stay distinguishable.
package fingerprint

import (
	"crypto/sha1" //nolint:gosec // wire format mandates SHA-1, see spec §4.1
	"encoding/hex"
	"io"
)

// minStreamBuffer is the smallest read buffer File will use; the spec
// requires streaming in >=8 KiB chunks.
const minStreamBuffer = 8192

// Bytes returns the hex SHA-1 digest of b, or "" if b is empty.
func Bytes(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	sum := sha1.Sum(b) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// String is Bytes over a string, for wire-form (base64 text) fingerprinting.
func String(s string) string {
	return Bytes([]byte(s))
}

// File streams r and returns its hex SHA-1 digest. The result is identical
// to reading all of r into memory and calling Bytes, but never holds more
// than one buffer's worth of data.
func File(r io.Reader) (string, error) {
	h := sha1.New() //nolint:gosec
	buf := make([]byte, minStreamBuffer)
	n, err := io.CopyBuffer(h, r, buf)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
