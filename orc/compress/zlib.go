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
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
)

// zlibCompressor is not safe for concurrent use: it reuses an
// internal bytes.Buffer scratch area across calls, mirroring the
// single-threaded writer this codec is always driven from.
type zlibCompressor struct {
	scratch bytes.Buffer
}

func newZlibCompressor() Compressor {
	return &zlibCompressor{}
}

func (z *zlibCompressor) Name() Kind { return Zlib }

func (z *zlibCompressor) Compress(src, dst []byte) []byte {
	z.scratch.Reset()
	w := zlib.NewWriter(&z.scratch)
	w.Write(src)
	w.Close()
	return append(dst, z.scratch.Bytes()...)
}

type zlibDecompressor struct{}

func newZlibDecompressor() Decompressor { return zlibDecompressor{} }

func (zlibDecompressor) Name() Kind { return Zlib }

func (zlibDecompressor) Decompress(src, dst []byte) error {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return err
	}
	defer r.Close()
	n := 0
	for n < len(dst) {
		m, err := r.Read(dst[n:])
		n += m
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
	}
	return checkDecompressedLen(dst[:n], dst, "zlib")
}
