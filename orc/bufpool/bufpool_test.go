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

package bufpool

import "testing"

func TestGetLength(t *testing.T) {
	buf := Get(128)
	if len(buf) != 128 {
		t.Fatalf("len = %d, want 128", len(buf))
	}
	Put(buf)
}

func TestReallocGrowsAndShrinks(t *testing.T) {
	buf := Get(16)
	grown := Realloc(buf, 64)
	if len(grown) != 64 {
		t.Fatalf("len = %d, want 64", len(grown))
	}
	shrunk := Realloc(grown, 8)
	if len(shrunk) != 8 {
		t.Fatalf("len = %d, want 8", len(shrunk))
	}
	if cap(shrunk) < cap(grown) {
		t.Fatalf("Realloc to a smaller size should keep the larger backing array")
	}
}

func TestPutNilIsNoop(t *testing.T) {
	Put(nil) // must not panic
}
