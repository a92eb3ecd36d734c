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
	"encoding/binary"

	"github.com/dchest/siphash"
)

// stringDictionary deduplicates column values by content. It hashes
// with siphash rather than relying on a Go map's built-in string
// hashing so the dictionary's bucket layout doesn't depend on the
// runtime's per-process hash seed.
type stringDictionary struct {
	k0, k1  uint64
	buckets map[uint64][]uint32 // hash -> ids sharing that hash
	values  []string            // id -> value, insertion order
	bytes   uint64              // sum of len(value) across unique entries
}

func newStringDictionary() *stringDictionary {
	return &stringDictionary{
		k0:      0x00726563694c4c41,
		k1:      0x006e6f6974617a69,
		buckets: make(map[uint64][]uint32),
	}
}

func (d *stringDictionary) hash(s string) uint64 {
	return siphash.Hash(d.k0, d.k1, []byte(s))
}

// intern returns s's dictionary id, assigning a new one on first
// occurrence.
func (d *stringDictionary) intern(s string) uint32 {
	h := d.hash(s)
	for _, id := range d.buckets[h] {
		if d.values[id] == s {
			return id
		}
	}
	id := uint32(len(d.values))
	d.values = append(d.values, s)
	d.buckets[h] = append(d.buckets[h], id)
	d.bytes += uint64(len(s))
	return id
}

// memoryBytes estimates the dictionary's footprint: unique value bytes
// plus a fixed per-entry overhead for the id index.
func (d *stringDictionary) memoryBytes() uint64 {
	return d.bytes + uint64(len(d.values))*16
}

// DictionaryStringWriter is a dictionary-backed string column that can
// convert itself to direct encoding mid-stripe. Every row's value and
// validity is retained for the stripe's lifetime so conversion can
// re-derive the direct-encoded stream from scratch regardless of how
// many row groups have already passed: conversion applies for the
// remainder of the stripe, not just future rows.
type DictionaryStringWriter struct {
	node NodeID

	dict   *stringDictionary
	values []string
	valid  []bool
	direct bool

	rowGroupBoundaries []int // index into values at each row-group start, this stripe

	rowGroupStats ColumnStatistics
	stripeStats   ColumnStatistics
}

func NewDictionaryStringWriter(node NodeID) *DictionaryStringWriter {
	return &DictionaryStringWriter{node: node, dict: newStringDictionary()}
}

func (w *DictionaryStringWriter) NodeID() NodeID { return w.node }

func (w *DictionaryStringWriter) BeginRowGroup() {
	w.rowGroupStats = ColumnStatistics{}
	w.rowGroupBoundaries = append(w.rowGroupBoundaries, len(w.values))
}

func (w *DictionaryStringWriter) WriteBlock(block Block) uint64 {
	b := block.(StringBlock)
	var rawDelta uint64
	for i, v := range b.Values {
		ok := b.isValid(i)
		w.values = append(w.values, v)
		w.valid = append(w.valid, ok)
		w.rowGroupStats.NumberOfValues++
		w.stripeStats.NumberOfValues++
		if !ok {
			w.rowGroupStats.HasNull = true
			w.stripeStats.HasNull = true
			continue
		}
		rawDelta += uint64(len(v))
		w.observeString(v)
		if !w.direct {
			w.dict.intern(v)
		}
	}
	w.rowGroupStats.RawSize += rawDelta
	w.stripeStats.RawSize += rawDelta
	return rawDelta
}

func (w *DictionaryStringWriter) observeString(v string) {
	for _, st := range [...]*ColumnStatistics{&w.rowGroupStats, &w.stripeStats} {
		if !st.HasStringMinMax {
			st.HasStringMinMax = true
			st.StringMin, st.StringMax = v, v
			continue
		}
		if v < st.StringMin {
			st.StringMin = v
		}
		if v > st.StringMax {
			st.StringMax = v
		}
	}
}

func (w *DictionaryStringWriter) BufferedBytes() uint64 {
	return w.stripeStats.RawSize + w.DictionaryMemoryBytes()
}

func (w *DictionaryStringWriter) FinishRowGroup() map[NodeID]*ColumnStatistics {
	return map[NodeID]*ColumnStatistics{w.node: w.rowGroupStats.Clone()}
}

func (w *DictionaryStringWriter) Close() {}

func (w *DictionaryStringWriter) Reset() {
	w.values = w.values[:0]
	w.valid = w.valid[:0]
	w.rowGroupBoundaries = w.rowGroupBoundaries[:0]
	w.dict = newStringDictionary()
	w.direct = false
	w.stripeStats = ColumnStatistics{}
}

func (w *DictionaryStringWriter) IndexStreams() []StreamDataOutput {
	var buf []byte
	var tmp [binary.MaxVarintLen64]byte
	for _, off := range w.rowGroupBoundaries {
		n := binary.PutUvarint(tmp[:], uint64(off))
		buf = append(buf, tmp[:n]...)
	}
	return []StreamDataOutput{{Node: w.node, Kind: RowIndexStream, Data: buf}}
}

func (w *DictionaryStringWriter) buildPresent() []byte {
	hasNull := false
	for _, ok := range w.valid {
		if !ok {
			hasNull = true
			break
		}
	}
	if !hasNull {
		return nil
	}
	buf := make([]byte, (len(w.valid)+7)/8)
	for i, ok := range w.valid {
		if ok {
			buf[i/8] |= 1 << uint(i%8)
		}
	}
	return buf
}

func (w *DictionaryStringWriter) DataStreams() []StreamDataOutput {
	out := make([]StreamDataOutput, 0, 3)
	if present := w.buildPresent(); present != nil {
		out = append(out, StreamDataOutput{Node: w.node, Kind: PresentStream, Data: present})
	}
	var tmp [binary.MaxVarintLen64]byte
	if w.direct {
		var data []byte
		for i, v := range w.values {
			if !w.valid[i] {
				continue
			}
			n := binary.PutUvarint(tmp[:], uint64(len(v)))
			data = append(data, tmp[:n]...)
			data = append(data, v...)
		}
		out = append(out, StreamDataOutput{Node: w.node, Kind: DataStream, Data: data})
		return out
	}

	var dictData []byte
	for _, v := range w.dict.values {
		n := binary.PutUvarint(tmp[:], uint64(len(v)))
		dictData = append(dictData, tmp[:n]...)
		dictData = append(dictData, v...)
	}
	var data []byte
	for i, v := range w.values {
		if !w.valid[i] {
			continue
		}
		n := binary.PutUvarint(tmp[:], uint64(w.dict.intern(v)))
		data = append(data, tmp[:n]...)
	}
	out = append(out, StreamDataOutput{Node: w.node, Kind: DictionaryDataStream, Data: dictData})
	out = append(out, StreamDataOutput{Node: w.node, Kind: DataStream, Data: data})
	return out
}

func (w *DictionaryStringWriter) ColumnEncodings() map[NodeID]ColumnEncoding {
	if w.direct {
		return map[NodeID]ColumnEncoding{w.node: {Kind: DirectEncoding}}
	}
	return map[NodeID]ColumnEncoding{w.node: {Kind: DictionaryEncoding, DictionarySize: uint32(len(w.dict.values))}}
}

func (w *DictionaryStringWriter) ColumnStripeStatistics() map[NodeID]*ColumnStatistics {
	return map[NodeID]*ColumnStatistics{w.node: w.stripeStats.Clone()}
}

func (w *DictionaryStringWriter) NestedColumnWriters() []ColumnWriter { return nil }

func (w *DictionaryStringWriter) RetainedBytes() uint64 {
	return uint64(cap(w.values))*16 + w.dict.memoryBytes()
}

// EstimateRatio projects dictionary encoding's relative benefit: 1 is
// maximally favorable (few unique values among many rows), 0 means the
// dictionary is about as large as the raw data it would replace.
func (w *DictionaryStringWriter) EstimateRatio() float64 {
	if w.direct {
		return 1
	}
	direct := w.stripeStats.RawSize
	if direct == 0 {
		return 1
	}
	ratio := 1 - float64(w.dict.memoryBytes())/float64(direct)
	if ratio < 0 {
		return 0
	}
	return ratio
}

// ConvertToDirect switches this column to direct encoding for the rest
// of the stripe. Because DataStreams/ColumnEncodings always re-derive
// their output from the retained values slice at emission time, no
// data needs to be eagerly re-encoded here.
func (w *DictionaryStringWriter) ConvertToDirect() uint64 {
	w.direct = true
	return 0
}

func (w *DictionaryStringWriter) DictionaryMemoryBytes() uint64 {
	if w.direct {
		return 0
	}
	return w.dict.memoryBytes()
}
