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

package orc

import (
	"encoding/binary"
	"fmt"

	"github.com/SnellerInc/orcfile/orc/compress"
)

// compressBlob wraps a serialized footer-level structure (StripeFooter,
// FileMetadata, FileFooter) as an uncompressed-length-prefixed
// compressed blob: uvarint(len(raw)) followed by c.Compress(raw). The
// length prefix lets decompressBlob allocate an exactly-sized
// destination buffer, which every Decompressor in this package requires.
//
// The Postscript is deliberately never passed through this helper: a
// reader has to learn which compression kind is in effect from the
// Postscript before it can decompress anything else, so the Postscript
// itself is always written uncompressed.
func compressBlob(c compress.Compressor, raw []byte) []byte {
	var lenPrefix [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenPrefix[:], uint64(len(raw)))
	out := make([]byte, 0, n+len(raw))
	out = append(out, lenPrefix[:n]...)
	return c.Compress(raw, out)
}

// decompressBlob reverses compressBlob.
func decompressBlob(d compress.Decompressor, blob []byte) ([]byte, error) {
	rawLen, n := binary.Uvarint(blob)
	if n <= 0 {
		return nil, fmt.Errorf("orc: truncated blob length prefix")
	}
	dst := make([]byte, rawLen)
	if err := d.Decompress(blob[n:], dst); err != nil {
		return nil, fmt.Errorf("orc: decompressing blob: %w", err)
	}
	return dst, nil
}
