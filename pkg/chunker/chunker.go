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

// Package chunker splits a file into the fixed-size blocks used for
// content-addressed storage, reading one block into memory at a time so
// files much larger than available RAM can still be scanned and replicated.
package chunker

import (
	"io"
)

// BlockSize is the fixed plaintext block size, in bytes. Every file is cut
// along this boundary regardless of content; the final block is whatever
// is left over (a full block for files that divide evenly; only a
// zero-byte file yields an empty block).
const BlockSize = 16384

// Count returns the block_count for a file of the given size: at least 1,
// even for a zero-byte file, so every LocalFile has a corresponding block
// sequence to replicate.
func Count(fileSize int64) int {
	if fileSize <= 0 {
		return 1
	}
	n := fileSize / BlockSize
	if fileSize%BlockSize != 0 {
		n++
	}
	return int(n)
}

// Block is one fixed-size slice of a file: its 1-based sequence number (the
// wire contract numbers blocks starting at 1, not 0), the bytes read, and
// whether it is the file's final block.
type Block struct {
	SequenceNumber int
	Data           []byte
	IsLast         bool
}

// Chunker reads successive fixed-size blocks from r. It holds at most one
// block of lookahead so IsLast can be reported accurately without ever
// buffering the whole file.
type Chunker struct {
	r       io.Reader
	buf     []byte
	seq     int
	pending *Block
	started bool
	done    bool
}

// New wraps r in a Chunker. r is read sequentially start to finish; callers
// must not read from r by any other means once chunking has started.
func New(r io.Reader) *Chunker {
	return &Chunker{r: r, buf: make([]byte, BlockSize), seq: 1}
}

func (c *Chunker) readOne() (*Block, error) {
	n, err := io.ReadFull(c.r, c.buf)
	switch err {
	case nil:
		data := make([]byte, n)
		copy(data, c.buf[:n])
		blk := &Block{SequenceNumber: c.seq, Data: data}
		c.seq++
		return blk, nil

	case io.ErrUnexpectedEOF:
		data := make([]byte, n)
		copy(data, c.buf[:n])
		blk := &Block{SequenceNumber: c.seq, Data: data}
		c.seq++
		return blk, nil

	case io.EOF:
		return nil, io.EOF

	default:
		return nil, err
	}
}

// Next returns the next block, or (nil, io.EOF) once the file is exhausted.
// A zero-byte input yields exactly one empty block before EOF, matching
// Count's floor of 1.
func (c *Chunker) Next() (*Block, error) {
	if c.done {
		return nil, io.EOF
	}

	if !c.started {
		c.started = true
		first, err := c.readOne()
		if err == io.EOF {
			// Empty file: emit the single zero-length block, then EOF.
			c.done = true
			return &Block{SequenceNumber: 1, Data: []byte{}, IsLast: true}, nil
		}
		if err != nil {
			return nil, err
		}
		c.pending = first
	}

	cur := c.pending
	next, err := c.readOne()
	if err == io.EOF {
		cur.IsLast = true
		c.pending = nil
		c.done = true
		return cur, nil
	}
	if err != nil {
		return nil, err
	}
	c.pending = next
	return cur, nil
}

// All drains c into a slice. Intended for tests and small files; production
// callers (scanner, replicator) should use Next in a loop to keep memory
// bounded.
func All(c *Chunker) ([]Block, error) {
	var blocks []Block
	for {
		b, err := c.Next()
		if err == io.EOF {
			return blocks, nil
		}
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, *b)
	}
}
