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

import "golang.org/x/exp/slices"

// StreamLayout reorders a stripe's data streams before they are
// compressed and written, trading write-side work for read locality.
// Implementations must reorder in place and must be deterministic.
type StreamLayout interface {
	Reorder(streams []StreamDataOutput)
}

// StreamLayoutFactory builds a StreamLayout over the writer's
// top-level columns; set on Config to override the default
// group-by-column layout.
type StreamLayoutFactory func(topLevel []ColumnWriter) StreamLayout

// streamLayout reorders a stripe's data streams for read locality: a
// reader scanning a handful of top-level columns should not need to
// seek across the whole data region, so streams are grouped by their
// owning top-level column and then ordered by stream kind within that
// column.
type streamLayout struct {
	// topLevel maps every node id to the node id of the top-level
	// column it belongs to (itself, for a top-level column).
	topLevel map[NodeID]NodeID
	// order fixes the top-level column order data streams should
	// appear in; defaults to ascending node id if nil.
	order []NodeID
}

func newStreamLayout(topLevelWriters []ColumnWriter) *streamLayout {
	sl := &streamLayout{topLevel: make(map[NodeID]NodeID)}
	for _, col := range topLevelWriters {
		top := col.NodeID()
		sl.order = append(sl.order, top)
		allWriters(col, func(w ColumnWriter) {
			sl.topLevel[w.NodeID()] = top
		})
	}
	return sl
}

// Reorder sorts streams in place, grouping by top-level column (in
// sl.order) and then by (node id, stream kind) within a column so the
// result is deterministic and stable for equal keys.
func (sl *streamLayout) Reorder(streams []StreamDataOutput) {
	rank := make(map[NodeID]int, len(sl.order))
	for i, n := range sl.order {
		rank[n] = i
	}
	keyOf := func(s StreamDataOutput) (int, NodeID, StreamKind) {
		top, ok := sl.topLevel[s.Node]
		if !ok {
			top = s.Node
		}
		r, ok := rank[top]
		if !ok {
			r = len(sl.order) + int(top)
		}
		return r, s.Node, s.Kind
	}
	slices.SortStableFunc(streams, func(a, b StreamDataOutput) bool {
		ar, an, ak := keyOf(a)
		br, bn, bk := keyOf(b)
		if ar != br {
			return ar < br
		}
		if an != bn {
			return an < bn
		}
		return ak < bk
	})
}
