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
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Symtab interns field names and strings into small integer ids so
// struct field labels can be written as a single uvarint rather than
// repeating the name on every occurrence, the same tradeoff
// ion.Symtab makes for repeated struct field names across a large
// footer (a stripe footer repeats the same ~15 field names across
// every column, row group, and stream).
type Symtab struct {
	toID   map[string]Symbol
	toName []string
}

// Reset clears the table back to empty.
func (s *Symtab) Reset() {
	s.toID = nil
	s.toName = s.toName[:0]
}

// Intern returns the id for name, assigning a new one if this is the
// first occurrence.
func (s *Symtab) Intern(name string) Symbol {
	if s.toID == nil {
		s.toID = make(map[string]Symbol)
	}
	if id, ok := s.toID[name]; ok {
		return id
	}
	id := Symbol(len(s.toName))
	s.toName = append(s.toName, name)
	s.toID[name] = id
	return id
}

// Get is an alias for Intern, matching ion.Symtab's naming.
func (s *Symtab) Get(name string) Symbol { return s.Intern(name) }

// Lookup returns the name associated with id, if any.
func (s *Symtab) Lookup(id Symbol) (string, bool) {
	if int(id) < 0 || int(id) >= len(s.toName) {
		return "", false
	}
	return s.toName[id], true
}

// MaxID returns one past the largest symbol id interned so far.
func (s *Symtab) MaxID() int { return len(s.toName) }

// Marshal encodes the symbol table as a list of strings, in id order,
// appending it to dst.
func (s *Symtab) Marshal(dst *Buffer) {
	dst.BeginList()
	for _, name := range s.toName {
		dst.WriteString(name)
	}
	dst.EndList()
}

// Unmarshal replaces the table's contents by decoding a list of
// strings previously produced by Marshal.
func (s *Symtab) Unmarshal(msg []byte) error {
	s.Reset()
	return UnpackList(msg, func(elem []byte) error {
		name, _, err := ReadString(elem)
		if err != nil {
			return fmt.Errorf("wire: decoding symbol table: %w", err)
		}
		s.Intern(name)
		return nil
	})
}

// Names returns the interned names in id order. The returned slice
// must not be mutated by the caller.
func (s *Symtab) Names() []string { return s.toName }

// sortedNames returns a copy of the interned names sorted
// lexicographically, used by callers that want deterministic output
// independent of intern order (e.g. diagnostics, golden-file tests).
func (s *Symtab) sortedNames() []string {
	out := slices.Clone(s.toName)
	slices.Sort(out)
	return out
}

// Equal reports whether s and other intern the same set of names
// (ids may differ).
func (s *Symtab) Equal(other *Symtab) bool {
	return maps.Equal(setOf(s.toName), setOf(other.toName))
}

func setOf(names []string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}
