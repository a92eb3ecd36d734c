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
	"runtime"

	"github.com/klauspost/compress/zstd"
)

type zstdCompressor struct {
	enc *zstd.Encoder
}

func newZstdCompressor() Compressor {
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	return zstdCompressor{enc}
}

func (z zstdCompressor) Name() Kind                      { return Zstd }
func (z zstdCompressor) Compress(src, dst []byte) []byte { return z.enc.EncodeAll(src, dst) }

// sharedZstdDecoder is reused across calls: building a *zstd.Decoder
// spins up worker goroutines, so one is created per GOMAXPROCS setting
// rather than per-stream.
var sharedZstdDecoder = mustZstdReader()

func mustZstdReader() *zstd.Decoder {
	d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(runtime.GOMAXPROCS(0)))
	if err != nil {
		panic(err)
	}
	return d
}

type zstdDecompressor struct{}

func (zstdDecompressor) Name() Kind { return Zstd }

func (zstdDecompressor) Decompress(src, dst []byte) error {
	into := dst[:0:len(dst)]
	ret, err := sharedZstdDecoder.DecodeAll(src, into)
	if err != nil {
		return err
	}
	return checkDecompressedLen(ret, dst, "zstd")
}
