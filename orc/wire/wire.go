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

// Package wire is a small self-describing binary encoder used to
// serialize the structured footers (StripeFooter, Metadata, Footer,
// Postscript) that the orc writer emits.
//
// The shape is deliberately modeled on sneller's ion.Buffer/ion.Symtab:
// a stack-based Begin/End struct-and-list encoder where struct field
// names are interned into a per-blob symbol table rather than repeated
// inline. It does not attempt to be wire-compatible with Amazon Ion —
// nothing outside this module ever needs to read these bytes with a
// general-purpose Ion reader, so the BVM markers, annotations, and
// duplicate-field reordering that real Ion encoding needs are dropped.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Type is the tag of an encoded value.
type Type byte

const (
	NullType Type = iota
	BoolType
	IntType
	UintType
	FloatType
	StringType
	BlobType
	SymbolType
	ListType
	StructType
)

func (t Type) String() string {
	switch t {
	case NullType:
		return "null"
	case BoolType:
		return "bool"
	case IntType:
		return "int"
	case UintType:
		return "uint"
	case FloatType:
		return "float"
	case StringType:
		return "string"
	case BlobType:
		return "blob"
	case SymbolType:
		return "symbol"
	case ListType:
		return "list"
	case StructType:
		return "struct"
	default:
		return "invalid"
	}
}

// Symbol is an interned field-name or string reference.
type Symbol uint32

// Uvsize returns the number of bytes needed to encode v as a uvarint.
func Uvsize(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

func putuv(dst []byte, v uint64) int {
	i := 0
	for v >= 0x80 {
		dst[i] = byte(v) | 0x80
		v >>= 7
		i++
	}
	dst[i] = byte(v)
	return i + 1
}

func readuv(src []byte) (uint64, []byte, error) {
	var out uint64
	var shift uint
	for i := 0; i < len(src); i++ {
		b := src[i]
		out |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return out, src[i+1:], nil
		}
		shift += 7
	}
	return 0, nil, fmt.Errorf("wire: truncated uvarint")
}

// TypeOf returns the type tag of the next encoded value in msg.
func TypeOf(msg []byte) Type {
	if len(msg) == 0 {
		return NullType
	}
	return Type(msg[0])
}

// SizeOf returns the total encoded size (tag + length + payload) of the
// next value in msg, or -1 if msg does not begin with a valid value.
func SizeOf(msg []byte) int {
	if len(msg) == 0 {
		return -1
	}
	n, rest, err := readuv(msg[1:])
	if err != nil {
		return -1
	}
	hdr := len(msg) - len(rest)
	if uint64(len(rest)) < n {
		return -1
	}
	return hdr + int(n)
}

// Contents returns the payload bytes of the next value in msg (without
// the leading tag+length header) and the bytes following that value.
func Contents(msg []byte) ([]byte, []byte, error) {
	if len(msg) == 0 {
		return nil, nil, fmt.Errorf("wire: empty message")
	}
	n, rest, err := readuv(msg[1:])
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(rest)) < n {
		return nil, nil, fmt.Errorf("wire: truncated value (want %d, have %d)", n, len(rest))
	}
	return rest[:n], rest[n:], nil
}

func typeErr(got, want Type) error {
	return fmt.Errorf("wire: found type %s, wanted %s", got, want)
}

// ReadBool reads a bool value from msg.
func ReadBool(msg []byte) (bool, []byte, error) {
	if t := TypeOf(msg); t != BoolType {
		return false, nil, typeErr(t, BoolType)
	}
	body, rest, err := Contents(msg)
	if err != nil {
		return false, nil, err
	}
	return len(body) == 1 && body[0] != 0, rest, nil
}

// ReadInt reads a signed integer value from msg.
func ReadInt(msg []byte) (int64, []byte, error) {
	if t := TypeOf(msg); t != IntType {
		return 0, nil, typeErr(t, IntType)
	}
	body, rest, err := Contents(msg)
	if err != nil {
		return 0, nil, err
	}
	u, _, err := readuv(append(body[:len(body):len(body)], 0))
	if err != nil {
		return 0, nil, err
	}
	return zigzagDecode(u), rest, nil
}

// ReadUint reads an unsigned integer value from msg.
func ReadUint(msg []byte) (uint64, []byte, error) {
	if t := TypeOf(msg); t != UintType {
		return 0, nil, typeErr(t, UintType)
	}
	body, rest, err := Contents(msg)
	if err != nil {
		return 0, nil, err
	}
	u, _, err := readuv(append(body[:len(body):len(body)], 0))
	if err != nil {
		return 0, nil, err
	}
	return u, rest, nil
}

// ReadFloat64 reads a float64 value from msg.
func ReadFloat64(msg []byte) (float64, []byte, error) {
	if t := TypeOf(msg); t != FloatType {
		return 0, nil, typeErr(t, FloatType)
	}
	body, rest, err := Contents(msg)
	if err != nil {
		return 0, nil, err
	}
	if len(body) != 8 {
		return 0, nil, fmt.Errorf("wire: float body of %d bytes", len(body))
	}
	return float64FromBits(binary.BigEndian.Uint64(body)), rest, nil
}

// ReadString reads a string value from msg. The returned string does
// not alias msg.
func ReadString(msg []byte) (string, []byte, error) {
	if t := TypeOf(msg); t != StringType {
		return "", nil, typeErr(t, StringType)
	}
	body, rest, err := Contents(msg)
	if err != nil {
		return "", nil, err
	}
	return string(body), rest, nil
}

// ReadStringShared reads a string value from msg without copying; the
// returned slice aliases msg.
func ReadStringShared(msg []byte) ([]byte, []byte, error) {
	if t := TypeOf(msg); t != StringType {
		return nil, nil, typeErr(t, StringType)
	}
	return Contents(msg)
}

// ReadBlob reads a blob value from msg. The returned slice is a copy.
func ReadBlob(msg []byte) ([]byte, []byte, error) {
	if t := TypeOf(msg); t != BlobType {
		return nil, nil, typeErr(t, BlobType)
	}
	body, rest, err := Contents(msg)
	if err != nil {
		return nil, nil, err
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out, rest, nil
}

// ReadSymbol reads a symbol value from msg.
func ReadSymbol(msg []byte) (Symbol, []byte, error) {
	if t := TypeOf(msg); t != SymbolType {
		return 0, nil, typeErr(t, SymbolType)
	}
	body, rest, err := Contents(msg)
	if err != nil {
		return 0, nil, err
	}
	u, _, err := readuv(append(body[:len(body):len(body)], 0))
	if err != nil {
		return 0, nil, err
	}
	return Symbol(u), rest, nil
}

// ReadLabel reads a bare field label (a raw uvarint symbol id, with no
// value tag/length framing) from msg.
func ReadLabel(msg []byte) (Symbol, []byte, error) {
	u, rest, err := readuv(msg)
	if err != nil {
		return 0, nil, err
	}
	return Symbol(u), rest, nil
}

// UnpackList calls fn once for each element of the list encoded in
// body, in order, passing the fully-framed bytes of each element.
func UnpackList(body []byte, fn func(elem []byte) error) error {
	if t := TypeOf(body); t != ListType {
		return typeErr(t, ListType)
	}
	inner, _, err := Contents(body)
	if err != nil {
		return err
	}
	for len(inner) > 0 {
		n := SizeOf(inner)
		if n <= 0 || n > len(inner) {
			return fmt.Errorf("wire: bad list element size %d", n)
		}
		if err := fn(inner[:n]); err != nil {
			return err
		}
		inner = inner[n:]
	}
	return nil
}

// UnpackStruct calls fn once for each field of the struct encoded in
// body, in order, resolving field-name symbols against st.
func UnpackStruct(st *Symtab, body []byte, fn func(name string, field []byte) error) error {
	if t := TypeOf(body); t != StructType {
		return typeErr(t, StructType)
	}
	inner, _, err := Contents(body)
	if err != nil {
		return err
	}
	for len(inner) > 0 {
		sym, rest, err := ReadLabel(inner)
		if err != nil {
			return err
		}
		name, ok := st.Lookup(sym)
		if !ok {
			return fmt.Errorf("wire: symbol %d not present in symbol table", sym)
		}
		n := SizeOf(rest)
		if n <= 0 || n > len(rest) {
			return fmt.Errorf("wire: bad struct field size %d", n)
		}
		if err := fn(name, rest[:n]); err != nil {
			return err
		}
		inner = rest[n:]
	}
	return nil
}

func zigzagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func zigzagDecode(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

func float64FromBits(b uint64) float64 {
	return math.Float64frombits(b)
}
