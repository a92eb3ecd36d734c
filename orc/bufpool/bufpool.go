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

// Package bufpool implements a sync.Pool-backed scratch allocator for
// the byte buffers a column writer uses to assemble stream data before
// compression. Reusing these buffers across row groups and stripes
// avoids a fresh allocation on every flush.
package bufpool

import "sync"

var scratch sync.Pool

// Get returns a []byte of length size, reusing pooled capacity when
// available.
func Get(size int) []byte {
	r := scratch.Get()
	if r != nil {
		buf := r.([]byte)
		if cap(buf) >= size {
			return buf[:size]
		}
		// too small to satisfy this request; let it be collected
		// rather than growing it in place, since callers that still
		// hold a reference to buf may be relying on its old contents.
	}
	return make([]byte, size)
}

// Put returns buf to the pool for reuse by a future Get.
func Put(buf []byte) {
	if buf == nil {
		return
	}
	//lint:ignore SA6002 the buffer is large and reused whole, not copied
	scratch.Put(buf)
}

// Realloc returns a []byte of length size, reusing buf's storage if it
// has enough capacity, or swapping it for pooled (or fresh) storage of
// the right size if it doesn't. The original buf must not be used
// again after this call unless it is the returned slice.
func Realloc(buf []byte, size int) []byte {
	if cap(buf) >= size {
		return buf[:size]
	}
	Put(buf)
	return Get(size)
}
