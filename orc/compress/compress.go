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

// Package compress provides a unified interface wrapping third-party
// compression libraries, selected by the per-stream algorithm a
// column writer or the stripe footer codec chooses.
package compress

import (
	"fmt"
	"unsafe"
)

// Kind names a compression algorithm, matching the enumerated
// configuration values an embedder can select per column or globally.
type Kind string

const (
	None   Kind = "NONE"
	Zlib   Kind = "ZLIB"
	Snappy Kind = "SNAPPY"
	Zstd   Kind = "ZSTD"
	Lz4    Kind = "LZ4"

	// S2 is a non-standard extension kind; see s2Codec.
	S2 Kind = "S2"
)

// Compressor appends the compressed form of src to dst and returns
// the result.
type Compressor interface {
	// Name is the name of the compression algorithm.
	Name() Kind
	// Compress should append the compressed contents of src to dst
	// and return the result.
	Compress(src, dst []byte) []byte
}

// Decompressor decompresses a block whose uncompressed length is
// known ahead of time (ORC/DWRF streams carry their decompressed
// length in the stripe footer, so Decompress always knows len(dst)).
type Decompressor interface {
	// Name is the name of the compression algorithm. See also
	// Compressor.Name.
	Name() Kind
	// Decompress decompresses src into dst. It errors out if dst is
	// not exactly large enough to fit the decoded data.
	//
	// It must be safe to call Decompress concurrently from different
	// goroutines provided each call uses a distinct dst.
	Decompress(src, dst []byte) error
}

// ByName selects a compressor by configuration name. The empty string
// selects NONE; it returns nil for any other unrecognized name.
func ByName(k Kind) Compressor {
	switch k {
	case None, "":
		return noneCodec{}
	case Zlib:
		return newZlibCompressor()
	case Snappy:
		return snappyCodec{}
	case Zstd:
		return newZstdCompressor()
	case Lz4:
		return newLz4Compressor()
	case S2:
		return s2Codec{}
	default:
		return nil
	}
}

// DecompressorByName selects a decompressor by configuration name. It
// returns nil for an unrecognized name.
func DecompressorByName(k Kind) Decompressor {
	switch k {
	case None, "":
		return noneCodec{}
	case Zlib:
		return newZlibDecompressor()
	case Snappy:
		return snappyCodec{}
	case Zstd:
		return zstdDecompressor{}
	case Lz4:
		return newLz4Decompressor()
	case S2:
		return s2Codec{}
	default:
		return nil
	}
}

type noneCodec struct{}

func (noneCodec) Name() Kind                      { return None }
func (noneCodec) Compress(src, dst []byte) []byte { return append(dst, src...) }
func (noneCodec) Decompress(src, dst []byte) error {
	if len(src) != len(dst) {
		return fmt.Errorf("compress: NONE codec length mismatch: src=%d dst=%d", len(src), len(dst))
	}
	copy(dst, src)
	return nil
}

func checkDecompressedLen(ret, dst []byte, algo string) error {
	if len(ret) != len(dst) {
		return fmt.Errorf("compress: %s: expected %d bytes decompressed, got %d", algo, len(dst), len(ret))
	}
	if len(dst) > 0 && &ret[0] != &dst[0] {
		return fmt.Errorf("compress: %s: output buffer was reallocated", algo)
	}
	return nil
}

func overlaps(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	a0 := uintptr(unsafe.Pointer(&a[0]))
	a1 := a0 + uintptr(len(a))
	b0 := uintptr(unsafe.Pointer(&b[0]))
	b1 := b0 + uintptr(len(b))
	return a0 < b1 && b0 < a1
}
