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
	"sort"

	"github.com/SnellerInc/orcfile/orc/wire"
)

// StripeFooter is the structure serialized at the end of every stripe.
type StripeFooter struct {
	UnencryptedStreams   []StreamDescriptor
	UnencryptedEncodings map[NodeID]ColumnEncoding
	// EncryptedGroups holds one sealed StripeEncryptionGroup payload
	// per active encryption group, in group order.
	EncryptedGroups [][]byte
}

func marshalStripeFooter(f StripeFooter) []byte {
	return encodeFramed(func(st *wire.Symtab, b *wire.Buffer) {
		b.BeginStruct()
		field(st, b, "streams")
		b.BeginList()
		for _, sd := range f.UnencryptedStreams {
			marshalStreamDescriptor(st, b, sd)
		}
		b.EndList()
		field(st, b, "encodings")
		marshalEncodingMap(st, b, f.UnencryptedEncodings)
		field(st, b, "encryptedGroups")
		b.BeginList()
		for _, g := range f.EncryptedGroups {
			b.WriteBlob(g)
		}
		b.EndList()
		b.EndStruct()
	})
}

func unmarshalStripeFooter(msg []byte) (StripeFooter, error) {
	var out StripeFooter
	err := decodeFramed(msg, func(st *wire.Symtab, body []byte) error {
		return wire.UnpackStruct(st, body, func(name string, v []byte) error {
			switch name {
			case "streams":
				return wire.UnpackList(v, func(elem []byte) error {
					sd, err := unmarshalStreamDescriptor(st, elem)
					out.UnencryptedStreams = append(out.UnencryptedStreams, sd)
					return err
				})
			case "encodings":
				m, err := unmarshalEncodingMap(st, v)
				out.UnencryptedEncodings = m
				return err
			case "encryptedGroups":
				return wire.UnpackList(v, func(elem []byte) error {
					blob, _, err := wire.ReadBlob(elem)
					out.EncryptedGroups = append(out.EncryptedGroups, blob)
					return err
				})
			}
			return nil
		})
	})
	return out, err
}

// streamEncryptionGroupPayload is what gets serialized and then sealed
// per encryption group during stripe assembly.
type streamEncryptionGroupPayload struct {
	Streams   []StreamDescriptor
	Encodings map[NodeID]ColumnEncoding
}

func marshalStripeEncryptionGroup(p streamEncryptionGroupPayload) []byte {
	return encodeFramed(func(st *wire.Symtab, b *wire.Buffer) {
		b.BeginStruct()
		field(st, b, "streams")
		b.BeginList()
		for _, sd := range p.Streams {
			marshalStreamDescriptor(st, b, sd)
		}
		b.EndList()
		field(st, b, "encodings")
		marshalEncodingMap(st, b, p.Encodings)
		b.EndStruct()
	})
}

func unmarshalStripeEncryptionGroup(msg []byte) (streamEncryptionGroupPayload, error) {
	var out streamEncryptionGroupPayload
	err := decodeFramed(msg, func(st *wire.Symtab, body []byte) error {
		return wire.UnpackStruct(st, body, func(name string, v []byte) error {
			switch name {
			case "streams":
				return wire.UnpackList(v, func(elem []byte) error {
					sd, err := unmarshalStreamDescriptor(st, elem)
					out.Streams = append(out.Streams, sd)
					return err
				})
			case "encodings":
				m, err := unmarshalEncodingMap(st, v)
				out.Encodings = m
				return err
			}
			return nil
		})
	})
	return out, err
}

// FileMetadata carries every closed stripe's full statistics, written
// once, just before the file footer.
type FileMetadata struct {
	StripeStats []map[NodeID]*ColumnStatistics
}

func marshalFileMetadata(m FileMetadata) []byte {
	return encodeFramed(func(st *wire.Symtab, b *wire.Buffer) {
		b.BeginStruct()
		field(st, b, "stripeStats")
		b.BeginList()
		for _, s := range m.StripeStats {
			b.BeginStruct()
			marshalStatsMapInto(st, b, s)
			b.EndStruct()
		}
		b.EndList()
		b.EndStruct()
	})
}

// marshalStatsMapInto writes a stats map as a single "entries" field
// of the struct currently open on b, so each stripe's list element is
// a struct holding its stats list under that field.
func marshalStatsMapInto(st *wire.Symtab, b *wire.Buffer, m map[NodeID]*ColumnStatistics) {
	field(st, b, "entries")
	marshalStatsMap(st, b, m)
}

func unmarshalFileMetadata(msg []byte) (FileMetadata, error) {
	var out FileMetadata
	err := decodeFramed(msg, func(st *wire.Symtab, body []byte) error {
		return wire.UnpackStruct(st, body, func(name string, v []byte) error {
			if name != "stripeStats" {
				return nil
			}
			return wire.UnpackList(v, func(elem []byte) error {
				var m map[NodeID]*ColumnStatistics
				err := wire.UnpackStruct(st, elem, func(name string, v []byte) error {
					if name != "entries" {
						return nil
					}
					mm, err := unmarshalStatsMap(st, v)
					m = mm
					return err
				})
				out.StripeStats = append(out.StripeStats, m)
				return err
			})
		})
	})
	return out, err
}

// marshalEncryptedFileStats frames a subtree's merged file-level
// statistics as a self-contained blob before it is sealed into an
// EncryptionGroupFooterEntry.
func marshalEncryptedFileStats(m map[NodeID]*ColumnStatistics) []byte {
	return encodeFramed(func(st *wire.Symtab, b *wire.Buffer) {
		marshalStatsMap(st, b, m)
	})
}

func unmarshalEncryptedFileStats(msg []byte) (map[NodeID]*ColumnStatistics, error) {
	var out map[NodeID]*ColumnStatistics
	err := decodeFramed(msg, func(st *wire.Symtab, body []byte) error {
		m, err := unmarshalStatsMap(st, body)
		out = m
		return err
	})
	return out, err
}

// EncryptionGroupFooterEntry is one group's entry in the file footer's
// DwrfEncryption descriptor. Key metadata is deliberately left out
// here since readers use the per-stripe KeyMetadata instead.
type EncryptionGroupFooterEntry struct {
	ID             string
	Nodes          []NodeID
	EncryptedStats []byte
}

// currentFooterVersion is written into every footer so a future
// format change has a seam to key off of; readers reject versions
// they don't know.
const currentFooterVersion = 1

// FileFooter is the structure serialized once, immediately before the
// postscript.
type FileFooter struct {
	Version             uint64
	FileID              string
	NumberOfRows        uint64
	RowGroupMaxRowCount uint64
	RawSize             uint64
	Stripes             []StripeInformation
	NodeCount           uint64
	UnencryptedStats    map[NodeID]*ColumnStatistics
	UserMetadata        map[string][]byte
	EncryptionGroups    []EncryptionGroupFooterEntry
	StripeCacheOffsets  []uint64
}

func marshalFileFooter(f FileFooter) []byte {
	return encodeFramed(func(st *wire.Symtab, b *wire.Buffer) {
		b.BeginStruct()
		field(st, b, "version")
		b.WriteUint(f.Version)
		if f.FileID != "" {
			field(st, b, "fileID")
			b.WriteString(f.FileID)
		}
		field(st, b, "numberOfRows")
		b.WriteUint(f.NumberOfRows)
		field(st, b, "rowGroupMaxRowCount")
		b.WriteUint(f.RowGroupMaxRowCount)
		field(st, b, "rawSize")
		b.WriteUint(f.RawSize)
		field(st, b, "nodeCount")
		b.WriteUint(f.NodeCount)
		field(st, b, "stripes")
		b.BeginList()
		for _, s := range f.Stripes {
			marshalStripeInformation(st, b, s)
		}
		b.EndList()
		field(st, b, "unencryptedStats")
		marshalStatsMap(st, b, f.UnencryptedStats)
		if len(f.UserMetadata) > 0 {
			field(st, b, "userMetadata")
			keys := make([]string, 0, len(f.UserMetadata))
			for k := range f.UserMetadata {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			b.BeginList()
			for _, k := range keys {
				b.BeginStruct()
				field(st, b, "key")
				b.WriteString(k)
				field(st, b, "value")
				b.WriteBlob(f.UserMetadata[k])
				b.EndStruct()
			}
			b.EndList()
		}
		if len(f.EncryptionGroups) > 0 {
			field(st, b, "encryptionGroups")
			b.BeginList()
			for _, g := range f.EncryptionGroups {
				b.BeginStruct()
				field(st, b, "id")
				b.WriteString(g.ID)
				field(st, b, "nodes")
				b.BeginList()
				for _, n := range g.Nodes {
					b.WriteUint(uint64(n))
				}
				b.EndList()
				field(st, b, "encryptedStats")
				b.WriteBlob(g.EncryptedStats)
				b.EndStruct()
			}
			b.EndList()
		}
		if len(f.StripeCacheOffsets) > 0 {
			field(st, b, "stripeCacheOffsets")
			b.BeginList()
			for _, o := range f.StripeCacheOffsets {
				b.WriteUint(o)
			}
			b.EndList()
		}
		b.EndStruct()
	})
}

func unmarshalFileFooter(msg []byte) (FileFooter, error) {
	var out FileFooter
	err := decodeFramed(msg, func(st *wire.Symtab, body []byte) error {
		return wire.UnpackStruct(st, body, func(name string, v []byte) error {
			var err error
			switch name {
			case "version":
				out.Version, _, err = wire.ReadUint(v)
			case "fileID":
				out.FileID, _, err = wire.ReadString(v)
			case "numberOfRows":
				out.NumberOfRows, _, err = wire.ReadUint(v)
			case "rowGroupMaxRowCount":
				out.RowGroupMaxRowCount, _, err = wire.ReadUint(v)
			case "rawSize":
				out.RawSize, _, err = wire.ReadUint(v)
			case "nodeCount":
				out.NodeCount, _, err = wire.ReadUint(v)
			case "stripes":
				err = wire.UnpackList(v, func(elem []byte) error {
					info, err := unmarshalStripeInformation(st, elem)
					out.Stripes = append(out.Stripes, info)
					return err
				})
			case "unencryptedStats":
				var m map[NodeID]*ColumnStatistics
				m, err = unmarshalStatsMap(st, v)
				out.UnencryptedStats = m
			case "userMetadata":
				out.UserMetadata = make(map[string][]byte)
				err = wire.UnpackList(v, func(elem []byte) error {
					var key string
					var value []byte
					e := wire.UnpackStruct(st, elem, func(name string, v []byte) error {
						var err error
						switch name {
						case "key":
							key, _, err = wire.ReadString(v)
						case "value":
							value, _, err = wire.ReadBlob(v)
						}
						return err
					})
					out.UserMetadata[key] = value
					return e
				})
			case "encryptionGroups":
				err = wire.UnpackList(v, func(elem []byte) error {
					var g EncryptionGroupFooterEntry
					e := wire.UnpackStruct(st, elem, func(name string, v []byte) error {
						var err error
						switch name {
						case "id":
							g.ID, _, err = wire.ReadString(v)
						case "nodes":
							err = wire.UnpackList(v, func(elem []byte) error {
								u, _, err := wire.ReadUint(elem)
								g.Nodes = append(g.Nodes, NodeID(u))
								return err
							})
						case "encryptedStats":
							g.EncryptedStats, _, err = wire.ReadBlob(v)
						}
						return err
					})
					out.EncryptionGroups = append(out.EncryptionGroups, g)
					return e
				})
			case "stripeCacheOffsets":
				err = wire.UnpackList(v, func(elem []byte) error {
					u, _, err := wire.ReadUint(elem)
					out.StripeCacheOffsets = append(out.StripeCacheOffsets, u)
					return err
				})
			}
			return err
		})
	})
	return out, err
}

// Postscript is the trailing structure a reader uses to locate the
// file footer. Its serialized length is itself stored in the file's
// final byte.
type Postscript struct {
	FooterLength             uint64
	MetadataLength           uint64
	CompressionKind          string
	CompressionMaxBufferSize uint64
	StripeCacheMode          StripeCacheMode
	StripeCacheMaxSize       uint64
	// StripeCacheLength is the actual compressed byte length of the
	// stripe-cache section written between the metadata and the footer,
	// 0 when StripeCacheMode is StripeCacheNone.
	StripeCacheLength uint64
}

func marshalPostscript(p Postscript) []byte {
	return encodeFramed(func(st *wire.Symtab, b *wire.Buffer) {
		b.BeginStruct()
		field(st, b, "footerLength")
		b.WriteUint(p.FooterLength)
		field(st, b, "metadataLength")
		b.WriteUint(p.MetadataLength)
		field(st, b, "compressionKind")
		b.WriteString(p.CompressionKind)
		field(st, b, "compressionMaxBufferSize")
		b.WriteUint(p.CompressionMaxBufferSize)
		field(st, b, "stripeCacheMode")
		b.WriteUint(uint64(p.StripeCacheMode))
		field(st, b, "stripeCacheMaxSize")
		b.WriteUint(p.StripeCacheMaxSize)
		field(st, b, "stripeCacheLength")
		b.WriteUint(p.StripeCacheLength)
		b.EndStruct()
	})
}

func unmarshalPostscript(msg []byte) (Postscript, error) {
	var out Postscript
	err := decodeFramed(msg, func(st *wire.Symtab, body []byte) error {
		return wire.UnpackStruct(st, body, func(name string, v []byte) error {
			var err error
			switch name {
			case "footerLength":
				out.FooterLength, _, err = wire.ReadUint(v)
			case "metadataLength":
				out.MetadataLength, _, err = wire.ReadUint(v)
			case "compressionKind":
				out.CompressionKind, _, err = wire.ReadString(v)
			case "compressionMaxBufferSize":
				out.CompressionMaxBufferSize, _, err = wire.ReadUint(v)
			case "stripeCacheMode":
				var u uint64
				u, _, err = wire.ReadUint(v)
				out.StripeCacheMode = StripeCacheMode(u)
			case "stripeCacheMaxSize":
				out.StripeCacheMaxSize, _, err = wire.ReadUint(v)
			case "stripeCacheLength":
				out.StripeCacheLength, _, err = wire.ReadUint(v)
			}
			return err
		})
	})
	return out, err
}
