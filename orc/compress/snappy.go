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

import "github.com/golang/snappy"

type snappyCodec struct{}

func (snappyCodec) Name() Kind { return Snappy }

func (snappyCodec) Compress(src, dst []byte) []byte {
	tail := dst[len(dst):cap(dst)]
	if overlaps(src, tail) {
		tail = nil
	}
	got := snappy.Encode(tail, src)
	if len(dst) == 0 {
		return got
	}
	if len(tail) > 0 && len(got) > 0 && &tail[0] == &got[0] {
		return dst[:len(dst)+len(got)]
	}
	return append(dst, got...)
}

func (snappyCodec) Decompress(src, dst []byte) error {
	// snappy.Decode reuses dst only when len(dst) (not cap) covers the
	// decoded length, so dst is passed at its full length.
	ret, err := snappy.Decode(dst, src)
	if err != nil {
		return err
	}
	return checkDecompressedLen(ret, dst, "snappy")
}
