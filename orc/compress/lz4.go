// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package compress

import (
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// lz4Compressor is not safe for concurrent use: it reuses an internal
// lz4.Compressor scratch struct across calls.
type lz4Compressor struct {
	c lz4.Compressor
}

func newLz4Compressor() Compressor {
	return &lz4Compressor{}
}

func (l *lz4Compressor) Name() Kind { return Lz4 }

// lz4 block mode has no framing of its own, so every payload is
// prefixed with a one-byte tag: 1 means the remainder is an lz4
// block, 0 means the remainder is stored raw because the input was
// incompressible (CompressBlock signals that by returning n == 0).
const (
	lz4TagRaw   = 0
	lz4TagBlock = 1
)

func (l *lz4Compressor) Compress(src, dst []byte) []byte {
	bound := lz4.CompressBlockBound(len(src))
	scratch := make([]byte, bound)
	n, err := l.c.CompressBlock(src, scratch)
	if err != nil {
		panic(fmt.Errorf("compress: lz4: %w", err))
	}
	if n == 0 {
		dst = append(dst, lz4TagRaw)
		return append(dst, src...)
	}
	dst = append(dst, lz4TagBlock)
	return append(dst, scratch[:n]...)
}

func newLz4Decompressor() Decompressor { return lz4Decompressor{} }

type lz4Decompressor struct{}

func (lz4Decompressor) Name() Kind { return Lz4 }

func (lz4Decompressor) Decompress(src, dst []byte) error {
	if len(src) == 0 {
		if len(dst) != 0 {
			return fmt.Errorf("compress: lz4: empty input for %d-byte output", len(dst))
		}
		return nil
	}
	tag, body := src[0], src[1:]
	if tag == lz4TagRaw {
		if len(body) != len(dst) {
			return fmt.Errorf("compress: lz4: expected %d raw bytes, got %d", len(dst), len(body))
		}
		copy(dst, body)
		return nil
	}
	n, err := lz4.UncompressBlock(body, dst)
	if err != nil {
		return err
	}
	if n != len(dst) {
		return fmt.Errorf("compress: lz4: expected %d bytes decompressed, got %d", len(dst), n)
	}
	return nil
}
