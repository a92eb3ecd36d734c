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

// Int64Block is the Block shape DirectIntWriter expects: a slice of
// nullable int64 values. Valid is nil when every value in the block is
// present.
type Int64Block struct {
	Values []int64
	Valid  []bool
}

func (b Int64Block) Len() int { return len(b.Values) }

func (b Int64Block) Slice(start, end int) Block {
	out := Int64Block{Values: b.Values[start:end]}
	if b.Valid != nil {
		out.Valid = b.Valid[start:end]
	}
	return out
}

func (b Int64Block) isValid(i int) bool {
	return b.Valid == nil || b.Valid[i]
}

// StringBlock is the Block shape DictionaryStringWriter expects: a
// slice of nullable string values. Valid is nil when every value in
// the block is present.
type StringBlock struct {
	Values []string
	Valid  []bool
}

func (b StringBlock) Len() int { return len(b.Values) }

func (b StringBlock) Slice(start, end int) Block {
	out := StringBlock{Values: b.Values[start:end]}
	if b.Valid != nil {
		out.Valid = b.Valid[start:end]
	}
	return out
}

func (b StringBlock) isValid(i int) bool {
	return b.Valid == nil || b.Valid[i]
}
