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
	"strings"
	"testing"
)

func TestRoundTripAllCodecs(t *testing.T) {
	payload := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog, ", 200))
	for _, kind := range []Kind{None, Zlib, Snappy, Zstd, Lz4, S2} {
		kind := kind
		t.Run(string(kind), func(t *testing.T) {
			c := ByName(kind)
			if c == nil {
				t.Fatalf("ByName(%s) returned nil", kind)
			}
			if c.Name() != kind {
				t.Fatalf("Name() = %s, want %s", c.Name(), kind)
			}
			enc := c.Compress(payload, nil)

			d := DecompressorByName(kind)
			if d == nil {
				t.Fatalf("DecompressorByName(%s) returned nil", kind)
			}
			dst := make([]byte, len(payload))
			if err := d.Decompress(enc, dst); err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(dst, payload) {
				t.Fatalf("round trip mismatch for %s", kind)
			}
		})
	}
}

func TestRoundTripEmptyPayload(t *testing.T) {
	for _, kind := range []Kind{None, Zlib, Snappy, Zstd, Lz4, S2} {
		kind := kind
		t.Run(string(kind), func(t *testing.T) {
			c := ByName(kind)
			enc := c.Compress(nil, nil)
			d := DecompressorByName(kind)
			dst := make([]byte, 0)
			if err := d.Decompress(enc, dst); err != nil {
				t.Fatalf("Decompress empty: %v", err)
			}
		})
	}
}

func TestByNameUnknown(t *testing.T) {
	if ByName(Kind("bogus")) != nil {
		t.Fatal("expected nil for unknown codec")
	}
	if DecompressorByName(Kind("bogus")) != nil {
		t.Fatal("expected nil for unknown codec")
	}
}

func TestCompressAppendsToExistingDst(t *testing.T) {
	prefix := []byte("header:")
	c := ByName(Zstd)
	out := c.Compress([]byte("payload data payload data payload data"), append([]byte{}, prefix...))
	if !bytes.HasPrefix(out, prefix) {
		t.Fatal("Compress did not preserve existing dst prefix")
	}
}
