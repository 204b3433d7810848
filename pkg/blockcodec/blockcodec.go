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

// Package blockcodec turns a plaintext block into its wire form (optionally
// AES-256 encrypted, then base64) and back, and derives the block's
// content-address from the wire form.
//
// The encryption mode is AES-256 in ECB mode with zero-byte trailing
// padding. This is a known-weak, known-ambiguous construction (see spec §9)
// kept intentionally for bit-compatibility with existing stored data. New
// deployments should not rely on the encrypt path's confidentiality
// properties beyond what the upstream format already provides.
package blockcodec

import (
	"crypto/aes"
	"encoding/base64"

	"github.com/kraklabs/lachepas/internal/errors"
	"github.com/kraklabs/lachepas/pkg/fingerprint"
)

// KeySize is the required AES-256 key length in bytes.
const KeySize = 32

// aesBlockSize is the AES block size in bytes (16), not to be confused
// with the chunker's 16384-byte plaintext block.
const aesBlockSize = aes.BlockSize

// Encoded is the result of encoding one plaintext block.
type Encoded struct {
	WireForm        string // base64 text, what actually goes over the wire
	UniqueID        string // SHA-1 fingerprint of WireForm
	PadCharCount    int    // zero-padding bytes added before encryption, 0 if unencrypted
	OriginBlockSize int    // length of the plaintext block before padding
}

// Encode produces the wire form, unique id, and padding metadata for one
// plaintext block. If encrypt is false, key is ignored.
func Encode(plaintext []byte, encrypt bool, key []byte) (Encoded, error) {
	origSize := len(plaintext)

	payload := plaintext
	pad := 0

	if encrypt {
		if len(key) != KeySize {
			return Encoded{}, errors.NewBadKeyError(
				"Invalid encryption key",
				"AES-256 requires a 32-byte key",
				"Regenerate or re-enter the directory's encryption key",
				nil,
			)
		}

		pad = (aesBlockSize - len(plaintext)%aesBlockSize) % aesBlockSize
		padded := make([]byte, len(plaintext)+pad)
		copy(padded, plaintext)

		block, err := aes.NewCipher(key)
		if err != nil {
			return Encoded{}, errors.NewBadKeyError(
				"Cannot initialize AES cipher",
				"The encryption key was rejected by the AES implementation",
				"Verify the key is exactly 32 bytes",
				err,
			)
		}

		encrypted := make([]byte, len(padded))
		for off := 0; off < len(padded); off += aesBlockSize {
			block.Encrypt(encrypted[off:off+aesBlockSize], padded[off:off+aesBlockSize])
		}
		payload = encrypted
	}

	wireForm := base64.StdEncoding.EncodeToString(payload)
	uniqueID := fingerprint.String(wireForm)

	return Encoded{
		WireForm:        wireForm,
		UniqueID:        uniqueID,
		PadCharCount:    pad,
		OriginBlockSize: origSize,
	}, nil
}

// Decode inverts Encode: given the wire form and the encryption/size
// parameters recorded at encode time, it returns the plaintext block.
//
// originFileSize is the total plaintext size of the file this block belongs
// to; isLastBlock tells Decode whether to additionally truncate the result
// to the file's recorded size (the final block may carry AES padding beyond
// that size).
func Decode(wireForm string, encrypt bool, key []byte, padCharCount int, isLastBlock bool, originFileSize, bytesBeforeThisBlock int64) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(wireForm)
	if err != nil {
		return nil, errors.NewDecodeError(
			"Malformed block payload",
			"The stored block is not valid base64",
			"The node's stored copy may be corrupted; try another copy if one is vaulted elsewhere",
			err,
		)
	}

	plain := raw
	if encrypt {
		if len(key) != KeySize {
			return nil, errors.NewBadKeyError(
				"Invalid encryption key",
				"AES-256 requires a 32-byte key",
				"Provide the directory's original encryption key to restore",
				nil,
			)
		}
		if len(raw)%aesBlockSize != 0 {
			return nil, errors.NewDecodeError(
				"Malformed encrypted block",
				"Ciphertext length is not a multiple of the AES block size",
				"The stored block is likely corrupted",
				nil,
			)
		}

		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, errors.NewBadKeyError(
				"Cannot initialize AES cipher",
				"The encryption key was rejected by the AES implementation",
				"Verify the key is exactly 32 bytes",
				err,
			)
		}

		decrypted := make([]byte, len(raw))
		for off := 0; off < len(raw); off += aesBlockSize {
			block.Decrypt(decrypted[off:off+aesBlockSize], raw[off:off+aesBlockSize])
		}

		if padCharCount < 0 || padCharCount > aesBlockSize-1 {
			return nil, errors.NewDecodeError(
				"Invalid pad count",
				"pad_char_count is out of range [0,15]",
				"The catalog row for this block may be corrupted",
				nil,
			)
		}
		plain = decrypted[:len(decrypted)-padCharCount]
	}

	if isLastBlock {
		remaining := originFileSize - bytesBeforeThisBlock
		if remaining >= 0 && int64(len(plain)) > remaining {
			plain = plain[:remaining]
		}
	}

	return plain, nil
}
