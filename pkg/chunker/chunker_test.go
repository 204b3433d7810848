// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package chunker

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountEmptyFileIsOne(t *testing.T) {
	assert.Equal(t, 1, Count(0))
}

func TestCountExactMultiple(t *testing.T) {
	assert.Equal(t, 1, Count(BlockSize))
	assert.Equal(t, 2, Count(BlockSize*2))
}

func TestCountRoundsUp(t *testing.T) {
	assert.Equal(t, 1, Count(1))
	assert.Equal(t, 2, Count(BlockSize+1))
	assert.Equal(t, 3, Count(BlockSize*2+1))
}

func TestChunkerEmptyFile(t *testing.T) {
	c := New(strings.NewReader(""))
	blocks, err := All(c)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, 1, blocks[0].SequenceNumber)
	assert.Empty(t, blocks[0].Data)
	assert.True(t, blocks[0].IsLast)
}

func TestChunkerSingleShortBlock(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 100)
	c := New(bytes.NewReader(data))
	blocks, err := All(c)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.True(t, blocks[0].IsLast)
	assert.Equal(t, data, blocks[0].Data)
}

func TestChunkerExactMultipleBoundary(t *testing.T) {
	data := bytes.Repeat([]byte{0x01}, BlockSize*2)
	c := New(bytes.NewReader(data))
	blocks, err := All(c)
	require.NoError(t, err)
	require.Len(t, blocks, Count(int64(len(data))))
	assert.False(t, blocks[0].IsLast)
	assert.True(t, blocks[1].IsLast)
	assert.Len(t, blocks[0].Data, BlockSize)
	assert.Len(t, blocks[1].Data, BlockSize)
}

func TestChunkerMultiBlockWithRemainder(t *testing.T) {
	data := bytes.Repeat([]byte{0x02}, BlockSize*2+500)
	c := New(bytes.NewReader(data))
	blocks, err := All(c)
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	assert.False(t, blocks[0].IsLast)
	assert.False(t, blocks[1].IsLast)
	assert.True(t, blocks[2].IsLast)
	assert.Len(t, blocks[2].Data, 500)

	var reassembled []byte
	for _, b := range blocks {
		reassembled = append(reassembled, b.Data...)
	}
	assert.Equal(t, data, reassembled)
}

func TestChunkerSequenceNumbersAreOrdered(t *testing.T) {
	data := bytes.Repeat([]byte{0x03}, BlockSize*4)
	c := New(bytes.NewReader(data))
	blocks, err := All(c)
	require.NoError(t, err)
	for i, b := range blocks {
		assert.Equal(t, i+1, b.SequenceNumber)
	}
}

func TestChunkerNextAfterEOFReturnsEOF(t *testing.T) {
	c := New(strings.NewReader("x"))
	_, err := c.Next()
	require.NoError(t, err)
	_, err = c.Next()
	assert.ErrorIs(t, err, io.EOF)
}
