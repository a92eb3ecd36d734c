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

	"github.com/SnellerInc/orcfile/orc/bufpool"
)

// DirectIntWriter is a direct-encoded int64 column. It and
// DictionaryStringWriter exist as concrete leaves so the orchestrator
// has something real to drive end to end.
type DirectIntWriter struct {
	node NodeID

	data     []byte // zigzag-varint values for present rows, this stripe
	present  []byte // lazily allocated bitmap; nil means "every row so far is present"
	rowCount uint64

	rowGroupBoundaries []int // byte offsets into data at each row-group start, this stripe

	rowGroupStats ColumnStatistics
	stripeStats   ColumnStatistics
}

func NewDirectIntWriter(node NodeID) *DirectIntWriter {
	return &DirectIntWriter{node: node, data: bufpool.Get(0)}
}

func (w *DirectIntWriter) NodeID() NodeID { return w.node }

func (w *DirectIntWriter) BeginRowGroup() {
	w.rowGroupStats = ColumnStatistics{}
	w.rowGroupBoundaries = append(w.rowGroupBoundaries, len(w.data))
}

func (w *DirectIntWriter) WriteBlock(block Block) uint64 {
	b := block.(Int64Block)
	var rawDelta uint64
	var tmp [binary.MaxVarintLen64]byte
	for i, v := range b.Values {
		valid := b.isValid(i)
		w.markPresent(valid)
		w.rowGroupStats.NumberOfValues++
		w.stripeStats.NumberOfValues++
		if !valid {
			w.rowGroupStats.HasNull = true
			w.stripeStats.HasNull = true
			w.rowCount++
			continue
		}
		n := binary.PutUvarint(tmp[:], zigzagEncode(v))
		w.data = append(w.data, tmp[:n]...)
		rawDelta += 8
		w.observeInt(v)
		w.rowCount++
	}
	w.rowGroupStats.RawSize += rawDelta
	w.stripeStats.RawSize += rawDelta
	return rawDelta
}

// markPresent records row rowCount's validity in the present bitmap.
// The bitmap starts out nil (meaning "every row is present"); it is
// only materialized on the first null, at which point every
// already-written row is implicitly backfilled as present by the
// all-ones default for newly grown bytes.
func (w *DirectIntWriter) markPresent(valid bool) {
	if w.present == nil && valid {
		return
	}
	byteIdx := int(w.rowCount) / 8
	for len(w.present) <= byteIdx {
		w.present = append(w.present, 0xFF)
	}
	mask := byte(1) << uint(w.rowCount%8)
	if valid {
		w.present[byteIdx] |= mask
	} else {
		w.present[byteIdx] &^= mask
	}
}

func (w *DirectIntWriter) observeInt(v int64) {
	for _, st := range [...]*ColumnStatistics{&w.rowGroupStats, &w.stripeStats} {
		if !st.HasIntMinMax {
			st.HasIntMinMax = true
			st.IntMin, st.IntMax = v, v
			continue
		}
		if v < st.IntMin {
			st.IntMin = v
		}
		if v > st.IntMax {
			st.IntMax = v
		}
	}
}

func (w *DirectIntWriter) BufferedBytes() uint64 {
	return uint64(len(w.data) + len(w.present))
}

func (w *DirectIntWriter) FinishRowGroup() map[NodeID]*ColumnStatistics {
	return map[NodeID]*ColumnStatistics{w.node: w.rowGroupStats.Clone()}
}

func (w *DirectIntWriter) Close() {}

func (w *DirectIntWriter) Reset() {
	bufpool.Put(w.data)
	w.data = bufpool.Get(0)
	w.present = nil
	w.rowCount = 0
	w.rowGroupBoundaries = w.rowGroupBoundaries[:0]
	w.stripeStats = ColumnStatistics{}
}

func (w *DirectIntWriter) IndexStreams() []StreamDataOutput {
	var buf []byte
	var tmp [binary.MaxVarintLen64]byte
	for _, off := range w.rowGroupBoundaries {
		n := binary.PutUvarint(tmp[:], uint64(off))
		buf = append(buf, tmp[:n]...)
	}
	return []StreamDataOutput{{Node: w.node, Kind: RowIndexStream, Data: buf}}
}

func (w *DirectIntWriter) DataStreams() []StreamDataOutput {
	out := make([]StreamDataOutput, 0, 2)
	if w.present != nil {
		out = append(out, StreamDataOutput{Node: w.node, Kind: PresentStream, Data: append([]byte(nil), w.present...)})
	}
	out = append(out, StreamDataOutput{Node: w.node, Kind: DataStream, Data: append([]byte(nil), w.data...)})
	return out
}

func (w *DirectIntWriter) ColumnEncodings() map[NodeID]ColumnEncoding {
	return map[NodeID]ColumnEncoding{w.node: {Kind: DirectEncoding}}
}

func (w *DirectIntWriter) ColumnStripeStatistics() map[NodeID]*ColumnStatistics {
	return map[NodeID]*ColumnStatistics{w.node: w.stripeStats.Clone()}
}

func (w *DirectIntWriter) NestedColumnWriters() []ColumnWriter { return nil }

func (w *DirectIntWriter) RetainedBytes() uint64 {
	return uint64(cap(w.data) + cap(w.present))
}

// zigzagEncode maps a signed int64 onto the unsigned range so small
// magnitude values (positive or negative) both varint-encode short.
func zigzagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}
