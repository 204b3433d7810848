// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package blockcodec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/lachepas/internal/errors"
)

func zeroKey() []byte {
	return make([]byte, KeySize)
}

func TestEncodeUnencryptedRoundTrip(t *testing.T) {
	plain := []byte("hello, lachepas")
	enc, err := Encode(plain, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, enc.PadCharCount)
	assert.Equal(t, len(plain), enc.OriginBlockSize)

	got, err := Decode(enc.WireForm, false, nil, enc.PadCharCount, true, int64(len(plain)), 0)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestEncodeDecodeRoundTripExactBlockMultiple(t *testing.T) {
	plain := bytes.Repeat([]byte{0x42}, 32)
	key := zeroKey()
	enc, err := Encode(plain, true, key)
	require.NoError(t, err)
	assert.Equal(t, 0, enc.PadCharCount)

	got, err := Decode(enc.WireForm, true, key, enc.PadCharCount, true, int64(len(plain)), 0)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestEncodePadCharCount(t *testing.T) {
	// S4: a 17-byte block against a 16-byte AES boundary needs 15 bytes
	// of zero padding.
	plain := bytes.Repeat([]byte{0x01}, 17)
	key := zeroKey()
	enc, err := Encode(plain, true, key)
	require.NoError(t, err)
	assert.Equal(t, 15, enc.PadCharCount)

	got, err := Decode(enc.WireForm, true, key, enc.PadCharCount, true, int64(len(plain)), 0)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestEncodeDeterministic(t *testing.T) {
	plain := []byte("deterministic content")
	key := zeroKey()
	a, err := Encode(plain, true, key)
	require.NoError(t, err)
	b, err := Encode(plain, true, key)
	require.NoError(t, err)
	assert.Equal(t, a.WireForm, b.WireForm)
	assert.Equal(t, a.UniqueID, b.UniqueID)
}

func TestEncodeBadKeySize(t *testing.T) {
	_, err := Encode([]byte("x"), true, []byte("too-short"))
	require.Error(t, err)
	ue, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.BadKey, ue.Kind)
}

func TestDecodeBadKeySize(t *testing.T) {
	_, err := Decode("aGVsbG8=", true, []byte("too-short"), 0, true, 5, 0)
	require.Error(t, err)
	ue, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.BadKey, ue.Kind)
}

func TestDecodeMalformedBase64(t *testing.T) {
	_, err := Decode("not base64!!", false, nil, 0, true, 5, 0)
	require.Error(t, err)
	ue, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.DecodeError, ue.Kind)
}

func TestDecodeTruncatesFinalBlockToOriginSize(t *testing.T) {
	// A multi-block file where the last block carries trailing bytes
	// beyond the recorded origin file size must be truncated on restore.
	plain := bytes.Repeat([]byte{0x07}, 10)
	key := zeroKey()
	enc, err := Encode(plain, true, key)
	require.NoError(t, err)

	// Pretend 1000 bytes came before this (final) block, and the file is
	// only 1005 bytes total: only the first 5 plaintext bytes count.
	got, err := Decode(enc.WireForm, true, key, enc.PadCharCount, true, 1005, 1000)
	require.NoError(t, err)
	assert.Equal(t, plain[:5], got)
}

func TestDecodeNonLastBlockNotTruncated(t *testing.T) {
	plain := bytes.Repeat([]byte{0x09}, 16)
	enc, err := Encode(plain, false, nil)
	require.NoError(t, err)

	got, err := Decode(enc.WireForm, false, nil, 0, false, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestEncodeEmptyBlock(t *testing.T) {
	enc, err := Encode(nil, false, nil)
	require.NoError(t, err)
	assert.Equal(t, "", enc.WireForm)
	assert.Equal(t, "", enc.UniqueID)
	assert.Equal(t, 0, enc.OriginBlockSize)
}
