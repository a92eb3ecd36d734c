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

import (
	"fmt"
	"sort"

	"github.com/SnellerInc/orcfile/orc/wire"
)

// field writes name (interned into st) as a field label, ready for the
// caller to immediately write the field's value.
func field(st *wire.Symtab, b *wire.Buffer, name string) {
	b.BeginField(st.Intern(name))
}

// encodeFramed serializes a struct-shaped value as a self-contained
// blob: a 2-element list of [symbol table, body]. Every footer-level
// structure (StripeFooter, Metadata, Footer, Postscript) is framed
// this way so each can be decoded independently without any
// cross-blob symbol table state.
func encodeFramed(build func(st *wire.Symtab, b *wire.Buffer)) []byte {
	var st wire.Symtab
	var body wire.Buffer
	build(&st, &body)

	var stbuf wire.Buffer
	st.Marshal(&stbuf)

	var out wire.Buffer
	out.BeginList()
	out.UnsafeAppend(stbuf.Bytes())
	out.UnsafeAppend(body.Bytes())
	out.EndList()
	return out.Bytes()
}

// decodeFramed is encodeFramed's inverse.
func decodeFramed(msg []byte, consume func(st *wire.Symtab, body []byte) error) error {
	var elems [][]byte
	err := wire.UnpackList(msg, func(elem []byte) error {
		elems = append(elems, elem)
		return nil
	})
	if err != nil {
		return fmt.Errorf("orc: decoding framed blob: %w", err)
	}
	if len(elems) != 2 {
		return fmt.Errorf("orc: framed blob has %d elements, want 2", len(elems))
	}
	var st wire.Symtab
	if err := st.Unmarshal(elems[0]); err != nil {
		return fmt.Errorf("orc: decoding symbol table: %w", err)
	}
	return consume(&st, elems[1])
}

func marshalStreamDescriptor(st *wire.Symtab, b *wire.Buffer, sd StreamDescriptor) {
	b.BeginStruct()
	field(st, b, "node")
	b.WriteUint(uint64(sd.Node))
	field(st, b, "kind")
	b.WriteUint(uint64(sd.Kind))
	field(st, b, "length")
	b.WriteUint(sd.Length)
	if sd.Offset != nil {
		field(st, b, "offset")
		b.WriteUint(*sd.Offset)
	}
	b.EndStruct()
}

func unmarshalStreamDescriptor(st *wire.Symtab, body []byte) (StreamDescriptor, error) {
	var sd StreamDescriptor
	err := wire.UnpackStruct(st, body, func(name string, v []byte) error {
		switch name {
		case "node":
			u, _, err := wire.ReadUint(v)
			sd.Node = NodeID(u)
			return err
		case "kind":
			u, _, err := wire.ReadUint(v)
			sd.Kind = StreamKind(u)
			return err
		case "length":
			u, _, err := wire.ReadUint(v)
			sd.Length = u
			return err
		case "offset":
			u, _, err := wire.ReadUint(v)
			sd.Offset = &u
			return err
		}
		return nil
	})
	return sd, err
}

func marshalColumnEncoding(st *wire.Symtab, b *wire.Buffer, enc ColumnEncoding) {
	b.BeginStruct()
	field(st, b, "kind")
	b.WriteUint(uint64(enc.Kind))
	field(st, b, "dictionarySize")
	b.WriteUint(uint64(enc.DictionarySize))
	b.EndStruct()
}

func unmarshalColumnEncoding(st *wire.Symtab, body []byte) (ColumnEncoding, error) {
	var enc ColumnEncoding
	err := wire.UnpackStruct(st, body, func(name string, v []byte) error {
		switch name {
		case "kind":
			u, _, err := wire.ReadUint(v)
			enc.Kind = EncodingKind(u)
			return err
		case "dictionarySize":
			u, _, err := wire.ReadUint(v)
			enc.DictionarySize = uint32(u)
			return err
		}
		return nil
	})
	return enc, err
}

func marshalColumnStatistics(st *wire.Symtab, b *wire.Buffer, cs *ColumnStatistics) {
	b.BeginStruct()
	field(st, b, "numberOfValues")
	b.WriteUint(cs.NumberOfValues)
	field(st, b, "hasNull")
	b.WriteBool(cs.HasNull)
	field(st, b, "rawSize")
	b.WriteUint(cs.RawSize)
	field(st, b, "storageSize")
	b.WriteUint(cs.StorageSize)
	if cs.HasIntMinMax {
		field(st, b, "intMin")
		b.WriteInt(cs.IntMin)
		field(st, b, "intMax")
		b.WriteInt(cs.IntMax)
	}
	if cs.HasFloatMinMax {
		field(st, b, "floatMin")
		b.WriteFloat64(cs.FloatMin)
		field(st, b, "floatMax")
		b.WriteFloat64(cs.FloatMax)
	}
	if cs.HasStringMinMax {
		field(st, b, "stringMin")
		b.WriteString(cs.StringMin)
		field(st, b, "stringMax")
		b.WriteString(cs.StringMax)
	}
	if cs.HasBoolStats {
		field(st, b, "trueCount")
		b.WriteUint(cs.TrueCount)
	}
	if len(cs.MapKeySizes) > 0 {
		field(st, b, "mapKeySizes")
		keys := make([]string, 0, len(cs.MapKeySizes))
		for k := range cs.MapKeySizes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.BeginList()
		for _, k := range keys {
			b.BeginStruct()
			field(st, b, "key")
			b.WriteString(k)
			field(st, b, "size")
			b.WriteUint(cs.MapKeySizes[k])
			b.EndStruct()
		}
		b.EndList()
	}
	b.EndStruct()
}

func unmarshalColumnStatistics(st *wire.Symtab, body []byte) (*ColumnStatistics, error) {
	cs := &ColumnStatistics{}
	err := wire.UnpackStruct(st, body, func(name string, v []byte) error {
		var err error
		switch name {
		case "numberOfValues":
			cs.NumberOfValues, _, err = wire.ReadUint(v)
		case "hasNull":
			cs.HasNull, _, err = wire.ReadBool(v)
		case "rawSize":
			cs.RawSize, _, err = wire.ReadUint(v)
		case "storageSize":
			cs.StorageSize, _, err = wire.ReadUint(v)
		case "intMin":
			cs.HasIntMinMax = true
			cs.IntMin, _, err = wire.ReadInt(v)
		case "intMax":
			cs.HasIntMinMax = true
			cs.IntMax, _, err = wire.ReadInt(v)
		case "floatMin":
			cs.HasFloatMinMax = true
			cs.FloatMin, _, err = wire.ReadFloat64(v)
		case "floatMax":
			cs.HasFloatMinMax = true
			cs.FloatMax, _, err = wire.ReadFloat64(v)
		case "stringMin":
			cs.HasStringMinMax = true
			cs.StringMin, _, err = wire.ReadString(v)
		case "stringMax":
			cs.HasStringMinMax = true
			cs.StringMax, _, err = wire.ReadString(v)
		case "trueCount":
			cs.HasBoolStats = true
			cs.TrueCount, _, err = wire.ReadUint(v)
		case "mapKeySizes":
			cs.MapKeySizes = make(map[string]uint64)
			err = wire.UnpackList(v, func(elem []byte) error {
				var key string
				var size uint64
				err := wire.UnpackStruct(st, elem, func(name string, v []byte) error {
					var err error
					switch name {
					case "key":
						key, _, err = wire.ReadString(v)
					case "size":
						size, _, err = wire.ReadUint(v)
					}
					return err
				})
				if err != nil {
					return err
				}
				cs.MapKeySizes[key] = size
				return nil
			})
		}
		return err
	})
	return cs, err
}

// marshalStatsMap serializes a map[NodeID]*ColumnStatistics as a list
// of {node, stats} structs, sorted by node id for determinism.
func marshalStatsMap(st *wire.Symtab, b *wire.Buffer, m map[NodeID]*ColumnStatistics) {
	nodes := sortedNodeIDs(m)
	b.BeginList()
	for _, n := range nodes {
		b.BeginStruct()
		field(st, b, "node")
		b.WriteUint(uint64(n))
		field(st, b, "stats")
		marshalColumnStatistics(st, b, m[n])
		b.EndStruct()
	}
	b.EndList()
}

func unmarshalStatsMap(st *wire.Symtab, body []byte) (map[NodeID]*ColumnStatistics, error) {
	out := make(map[NodeID]*ColumnStatistics)
	err := wire.UnpackList(body, func(elem []byte) error {
		var node NodeID
		var stats *ColumnStatistics
		err := wire.UnpackStruct(st, elem, func(name string, v []byte) error {
			switch name {
			case "node":
				u, _, err := wire.ReadUint(v)
				node = NodeID(u)
				return err
			case "stats":
				s, err := unmarshalColumnStatistics(st, v)
				stats = s
				return err
			}
			return nil
		})
		if err != nil {
			return err
		}
		out[node] = stats
		return nil
	})
	return out, err
}

func marshalEncodingMap(st *wire.Symtab, b *wire.Buffer, m map[NodeID]ColumnEncoding) {
	nodes := make([]NodeID, 0, len(m))
	for n := range m {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	b.BeginList()
	for _, n := range nodes {
		b.BeginStruct()
		field(st, b, "node")
		b.WriteUint(uint64(n))
		field(st, b, "encoding")
		marshalColumnEncoding(st, b, m[n])
		b.EndStruct()
	}
	b.EndList()
}

func unmarshalEncodingMap(st *wire.Symtab, body []byte) (map[NodeID]ColumnEncoding, error) {
	out := make(map[NodeID]ColumnEncoding)
	err := wire.UnpackList(body, func(elem []byte) error {
		var node NodeID
		var enc ColumnEncoding
		err := wire.UnpackStruct(st, elem, func(name string, v []byte) error {
			switch name {
			case "node":
				u, _, err := wire.ReadUint(v)
				node = NodeID(u)
				return err
			case "encoding":
				e, err := unmarshalColumnEncoding(st, v)
				enc = e
				return err
			}
			return nil
		})
		if err != nil {
			return err
		}
		out[node] = enc
		return nil
	})
	return out, err
}

func sortedNodeIDs(m map[NodeID]*ColumnStatistics) []NodeID {
	out := make([]NodeID, 0, len(m))
	for n := range m {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func marshalStripeInformation(st *wire.Symtab, b *wire.Buffer, info StripeInformation) {
	b.BeginStruct()
	field(st, b, "offset")
	b.WriteUint(info.Offset)
	field(st, b, "indexLength")
	b.WriteUint(info.IndexLength)
	field(st, b, "dataLength")
	b.WriteUint(info.DataLength)
	field(st, b, "footerLength")
	b.WriteUint(info.FooterLength)
	field(st, b, "numberOfRows")
	b.WriteUint(info.NumberOfRows)
	field(st, b, "rawSize")
	b.WriteUint(info.RawSize)
	if len(info.KeyMetadata) > 0 {
		field(st, b, "keyMetadata")
		b.BeginList()
		for _, k := range info.KeyMetadata {
			b.WriteBlob(k)
		}
		b.EndList()
	}
	b.EndStruct()
}

func unmarshalStripeInformation(st *wire.Symtab, body []byte) (StripeInformation, error) {
	var info StripeInformation
	err := wire.UnpackStruct(st, body, func(name string, v []byte) error {
		var err error
		switch name {
		case "offset":
			info.Offset, _, err = wire.ReadUint(v)
		case "indexLength":
			info.IndexLength, _, err = wire.ReadUint(v)
		case "dataLength":
			info.DataLength, _, err = wire.ReadUint(v)
		case "footerLength":
			info.FooterLength, _, err = wire.ReadUint(v)
		case "numberOfRows":
			info.NumberOfRows, _, err = wire.ReadUint(v)
		case "rawSize":
			info.RawSize, _, err = wire.ReadUint(v)
		case "keyMetadata":
			err = wire.UnpackList(v, func(elem []byte) error {
				blob, _, err := wire.ReadBlob(elem)
				info.KeyMetadata = append(info.KeyMetadata, blob)
				return err
			})
		}
		return err
	})
	return info, err
}
