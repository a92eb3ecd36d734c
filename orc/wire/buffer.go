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

package wire

import (
	"encoding/binary"
	"math"
)

// segment tracks one open BeginStruct/BeginList so EndStruct/EndList
// can go back and patch in the final length once the contents are
// known. This mirrors ion.Buffer's segment stack: values are written
// optimistically and the length prefix is fixed up on close because
// uvarint length is only known once the body is finished.
type segment struct {
	which Type
	start int // offset of the tag byte
}

// Buffer accumulates an encoded message. The zero value is ready to
// use. A Buffer is built bottom-up: open a struct or list, write
// fields/elements into it, then close it; Buffer tracks nesting with
// an internal stack so callers never manage offsets by hand.
type Buffer struct {
	buf   []byte
	stack []segment
}

// Reset clears the buffer for reuse without releasing its capacity.
func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
	b.stack = b.stack[:0]
}

// Bytes returns the encoded message so far. The slice aliases the
// Buffer's internal storage and is invalidated by the next write.
func (b *Buffer) Bytes() []byte { return b.buf }

// Size returns the number of bytes written so far.
func (b *Buffer) Size() int { return len(b.buf) }

// UnsafeAppend appends an already-encoded, fully-framed value verbatim.
// The caller is responsible for ensuring v is well-formed.
func (b *Buffer) UnsafeAppend(v []byte) {
	b.buf = append(b.buf, v...)
}

func (b *Buffer) begin(t Type) {
	b.buf = append(b.buf, byte(t))
}

// writeFramed appends tag t followed by a uvarint length and then body.
func (b *Buffer) writeFramed(t Type, body []byte) {
	var lenbuf [binary.MaxVarintLen64]byte
	n := putuv(lenbuf[:], uint64(len(body)))
	b.buf = append(b.buf, byte(t))
	b.buf = append(b.buf, lenbuf[:n]...)
	b.buf = append(b.buf, body...)
}

// WriteNull writes a null value.
func (b *Buffer) WriteNull() {
	b.buf = append(b.buf, byte(NullType), 0)
}

// WriteBool writes a bool value.
func (b *Buffer) WriteBool(v bool) {
	body := byte(0)
	if v {
		body = 1
	}
	b.buf = append(b.buf, byte(BoolType), 1, body)
}

// WriteInt writes a signed integer value.
func (b *Buffer) WriteInt(v int64) {
	var body [binary.MaxVarintLen64]byte
	n := putuv(body[:], zigzagEncode(v))
	b.writeFramed(IntType, body[:n])
}

// WriteUint writes an unsigned integer value.
func (b *Buffer) WriteUint(v uint64) {
	var body [binary.MaxVarintLen64]byte
	n := putuv(body[:], v)
	b.writeFramed(UintType, body[:n])
}

// WriteFloat64 writes a float64 value.
func (b *Buffer) WriteFloat64(v float64) {
	var body [8]byte
	binary.BigEndian.PutUint64(body[:], math.Float64bits(v))
	b.writeFramed(FloatType, body[:])
}

// WriteString writes a string value, copying s into the buffer.
func (b *Buffer) WriteString(s string) {
	b.writeFramed(StringType, []byte(s))
}

// WriteBlob writes an opaque byte-string value.
func (b *Buffer) WriteBlob(v []byte) {
	b.writeFramed(BlobType, v)
}

// WriteSymbol writes a symbol-id value (distinct from a string value:
// symbols are looked up against a Symtab by the reader).
func (b *Buffer) WriteSymbol(s Symbol) {
	var body [binary.MaxVarintLen64]byte
	n := putuv(body[:], uint64(s))
	b.writeFramed(SymbolType, body[:n])
}

// BeginList opens a list value. Matching EndList closes it.
func (b *Buffer) BeginList() {
	b.stack = append(b.stack, segment{which: ListType, start: len(b.buf)})
	b.begin(ListType)
}

// EndList closes the innermost open list.
func (b *Buffer) EndList() {
	b.end(ListType)
}

// BeginStruct opens a struct value. Matching EndStruct closes it.
func (b *Buffer) BeginStruct() {
	b.stack = append(b.stack, segment{which: StructType, start: len(b.buf)})
	b.begin(StructType)
}

// EndStruct closes the innermost open struct.
func (b *Buffer) EndStruct() {
	b.end(StructType)
}

func (b *Buffer) end(want Type) {
	n := len(b.stack)
	if n == 0 {
		panic("wire: End" + want.String() + " without matching Begin" + want.String())
	}
	top := b.stack[n-1]
	if top.which != want {
		panic("wire: mismatched Begin/End: opened " + top.which.String() + ", closed " + want.String())
	}
	b.stack = b.stack[:n-1]

	bodyStart := top.start + 1 // past the tag byte written by begin()
	body := b.buf[bodyStart:]
	bodyLen := len(body)

	var lenbuf [binary.MaxVarintLen64]byte
	ln := putuv(lenbuf[:], uint64(bodyLen))

	// Splice the length prefix in between the tag byte and the body.
	// This is the same "optimistic write, patch the header in" trick
	// ion.Buffer uses for BeginStruct/EndStruct.
	tmp := make([]byte, bodyLen)
	copy(tmp, body)
	b.buf = append(b.buf[:bodyStart], lenbuf[:ln]...)
	b.buf = append(b.buf, tmp...)
}

// BeginField writes a field-name label (a bare symbol id, no value
// framing) for the next value written inside an open struct. Callers
// must call BeginField immediately before writing the field's value.
func (b *Buffer) BeginField(sym Symbol) {
	var body [binary.MaxVarintLen64]byte
	n := putuv(body[:], uint64(sym))
	b.buf = append(b.buf, body[:n]...)
}
