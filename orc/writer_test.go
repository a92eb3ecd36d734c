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
	"testing"

	"github.com/SnellerInc/orcfile/orc/compress"
)

func newTestWriter(t *testing.T, cfg Config, columns []ColumnWriter, enc *EncryptionInfo) (*Writer, *BufferSink) {
	t.Helper()
	sink := &BufferSink{}
	w, err := NewWriter(sink, cfg, columns, enc)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	return w, sink
}

func TestTinyFileRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Compression = compress.None
	cfg.Validate = true
	col := NewDirectIntWriter(1)
	w, sink := newTestWriter(t, cfg, []ColumnWriter{col}, nil)

	if err := w.Write(Page{Blocks: []Block{Int64Block{Values: []int64{1, 2, 3}}}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
	if len(w.closedStripes) != 0 {
		t.Fatalf("closedStripes should be cleared after footer emission, got %d", len(w.closedStripes))
	}
	if err := w.Validate(sink.Bytes()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if w.WrittenBytes() != sink.Size() {
		t.Fatalf("WrittenBytes() = %d, want sink size %d", w.WrittenBytes(), sink.Size())
	}
	data := sink.Bytes()
	if len(data) == 0 {
		t.Fatal("expected non-empty file")
	}
	psLen := int(data[len(data)-1])
	if psLen <= 0 || psLen > 255 {
		t.Fatalf("postscript length byte = %d, out of range", psLen)
	}
}

// rowGroupCounter wraps the default validation recorder to also count
// how many times a row group was closed, so tests can observe
// row-group boundaries without reaching into column-writer internals
// that Reset() clears out from under them at stripe close.
type rowGroupCounter struct {
	*validationRecorder
	calls int
}

func (c *rowGroupCounter) AddRowGroupStatistics(stripe int, stats map[NodeID]*ColumnStatistics) {
	c.calls++
	c.validationRecorder.AddRowGroupStatistics(stripe, stats)
}

func TestRowGroupBoundary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Compression = compress.None
	cfg.RowGroupMaxRowCount = 10_000
	col := NewDirectIntWriter(1)
	w, _ := newTestWriter(t, cfg, []ColumnWriter{col}, nil)
	counter := &rowGroupCounter{validationRecorder: newValidationRecorder()}
	w.validation = counter

	values := make([]int64, 25_000)
	for i := range values {
		values[i] = int64(i)
	}
	if err := w.Write(Page{Blocks: []Block{Int64Block{Values: values}}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// 25,000 rows at a 10,000-row-group boundary yields 3 row groups:
	// [0,10000), [10000,20000), [20000,25000).
	if counter.calls != 3 {
		t.Fatalf("expected 3 row groups, got %d", counter.calls)
	}
	if w.closedStripes != nil {
		t.Fatalf("closedStripes should be cleared by footer emission")
	}
	if w.totalRows != 25_000 {
		t.Fatalf("totalRows = %d, want 25000", w.totalRows)
	}
}

func TestStripeFlushByBytes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Compression = compress.None
	cfg.StripeMinBytes = 1 << 10
	cfg.StripeMaxBytes = 4 << 10
	col := NewDictionaryStringWriter(1)
	w, sink := newTestWriter(t, cfg, []ColumnWriter{col}, nil)

	// Write in small pages so the flush policy gets a chance to cut a
	// stripe between pages; a single giant page would only be checked
	// for a flush once, after the whole page lands.
	const pages, perPage = 40, 50
	for p := 0; p < pages; p++ {
		values := make([]string, perPage)
		for i := range values {
			values[i] = fmt.Sprintf("row-%06d-unique-value-padding", p*perPage+i)
		}
		if err := w.Write(Page{Blocks: []Block{StringBlock{Values: values}}}); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	stripesBeforeClose := len(w.closedStripes)
	if stripesBeforeClose < 2 {
		t.Fatalf("expected multiple stripes before close, got %d", stripesBeforeClose)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if w.closedStripes != nil {
		t.Fatalf("closedStripes should be cleared after footer emission")
	}
	if w.totalRows != pages*perPage {
		t.Fatalf("totalRows = %d, want %d", w.totalRows, pages*perPage)
	}
	if sink.Size() == 0 {
		t.Fatal("expected non-empty file")
	}
}

func TestDictionaryConversion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Compression = compress.None
	cfg.DictionaryMaxMemoryBytes = 256
	cfg.DictionaryMemoryAlmostFullRange = 1.0
	cfg.DictionaryUsefulCheckColumnSize = 1
	col := NewDictionaryStringWriter(1)
	w, _ := newTestWriter(t, cfg, []ColumnWriter{col}, nil)

	values := make([]string, 500)
	for i := range values {
		values[i] = fmt.Sprintf("high-cardinality-%06d", i)
	}
	if err := w.Write(Page{Blocks: []Block{StringBlock{Values: values}}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if w.dict.conversions() == 0 {
		t.Fatal("expected at least one dictionary-to-direct conversion")
	}
}

func TestPreserveDirectEncodingAcrossStripes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DictionaryMaxMemoryBytes = 64
	cfg.DictionaryMemoryAlmostFullRange = 1.0
	cfg.DictionaryUsefulCheckColumnSize = 1
	cfg.PreserveDirectEncodingStripeCount = 1
	col := NewDictionaryStringWriter(1)
	opt := newDictionaryOptimizer(cfg, []DictionaryColumnWriter{col})

	values := make([]string, 20)
	for i := range values {
		values[i] = fmt.Sprintf("unique-%04d", i)
	}
	col.WriteBlock(StringBlock{Values: values})
	opt.optimize(0, 0)
	if !col.direct {
		t.Fatal("expected conversion under memory pressure")
	}

	// stripe boundary: the column resets to dictionary mode, but the
	// optimizer re-converts it for the preserved stripe
	col.Reset()
	opt.reset([]DictionaryColumnWriter{col})
	if !col.direct {
		t.Fatal("converted column should stay direct for the preserved stripe")
	}
	if len(opt.candidates) != 0 {
		t.Fatalf("preserved column should not be a candidate, have %d", len(opt.candidates))
	}

	// preserve window exhausted: the column is a candidate again
	col.Reset()
	opt.reset([]DictionaryColumnWriter{col})
	if col.direct {
		t.Fatal("column should return to dictionary encoding after the preserve window")
	}
	if len(opt.candidates) != 1 {
		t.Fatalf("expected 1 candidate after preserve window, have %d", len(opt.candidates))
	}
}

func TestEncryptionGroups(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Compression = compress.None

	g1, err := NewEncryptionGroup([]NodeID{1}, []byte("key-1-meta"))
	if err != nil {
		t.Fatalf("NewEncryptionGroup: %v", err)
	}
	g2, err := NewEncryptionGroup([]NodeID{2}, []byte("key-2-meta"))
	if err != nil {
		t.Fatalf("NewEncryptionGroup: %v", err)
	}
	enc, err := NewEncryptionInfo([]*EncryptionGroup{g1, g2})
	if err != nil {
		t.Fatalf("NewEncryptionInfo: %v", err)
	}

	colA := NewDirectIntWriter(1)
	colB := NewDirectIntWriter(2)
	w, sink := newTestWriter(t, cfg, []ColumnWriter{colA, colB}, enc)

	page := Page{Blocks: []Block{
		Int64Block{Values: []int64{10, 20, 30}},
		Int64Block{Values: []int64{40, 50, 60}},
	}}
	if err := w.Write(page); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sink.Size() == 0 {
		t.Fatal("expected non-empty encrypted file")
	}

	data := sink.Bytes()
	psLen := int(data[len(data)-1])
	ps, err := unmarshalPostscript(data[len(data)-1-psLen : len(data)-1])
	if err != nil {
		t.Fatalf("unmarshalPostscript: %v", err)
	}
	footerStart := len(data) - 1 - psLen - int(ps.FooterLength)
	footerEnd := len(data) - 1 - psLen
	footerRaw, err := decompressBlob(compress.DecompressorByName(compress.Kind(ps.CompressionKind)), data[footerStart:footerEnd])
	if err != nil {
		t.Fatalf("decompressBlob: %v", err)
	}
	footer, err := unmarshalFileFooter(footerRaw)
	if err != nil {
		t.Fatalf("unmarshalFileFooter: %v", err)
	}
	if footer.Version != currentFooterVersion {
		t.Fatalf("footer.Version = %d, want %d", footer.Version, currentFooterVersion)
	}
	if footer.FileID == "" {
		t.Fatal("footer.FileID should be populated")
	}
	if len(footer.EncryptionGroups) != 2 {
		t.Fatalf("footer.EncryptionGroups = %d groups, want 2", len(footer.EncryptionGroups))
	}
	for n, st := range footer.UnencryptedStats {
		if st.HasIntMinMax {
			t.Fatal("an encrypted node's unencrypted stats entry should not carry a min/max")
		}
		if st.StorageSize == 0 {
			t.Fatalf("node %d should have accumulated a storage size", n)
		}
	}
	for i, entry := range footer.EncryptionGroups {
		group := enc.Groups()[i]
		raw, err := group.open(entry.EncryptedStats)
		if err != nil {
			t.Fatalf("group %d open: %v", i, err)
		}
		stats, err := unmarshalEncryptedFileStats(raw)
		if err != nil {
			t.Fatalf("group %d unmarshalEncryptedFileStats: %v", i, err)
		}
		for _, n := range entry.Nodes {
			if _, ok := stats[n]; !ok {
				t.Fatalf("group %d missing stats for node %d", i, n)
			}
		}
	}
}

func TestCloseEmpty(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Compression = compress.None
	col := NewDirectIntWriter(1)
	w, sink := newTestWriter(t, cfg, []ColumnWriter{col}, nil)

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if w.totalRows != 0 {
		t.Fatalf("totalRows = %d, want 0", w.totalRows)
	}
	if sink.Size() == 0 {
		t.Fatal("expected a well-formed footer+postscript even with zero rows")
	}
	data := sink.Bytes()
	psLen := int(data[len(data)-1])
	if psLen <= 0 || psLen > 255 {
		t.Fatalf("postscript length byte = %d, out of range", psLen)
	}
}

func TestWriteColumnCountMismatch(t *testing.T) {
	cfg := DefaultConfig()
	col := NewDirectIntWriter(1)
	w, _ := newTestWriter(t, cfg, []ColumnWriter{col}, nil)

	err := w.Write(Page{Blocks: []Block{
		Int64Block{Values: []int64{1}},
		Int64Block{Values: []int64{2}},
	}})
	if err == nil {
		t.Fatal("expected an error for mismatched column count")
	}
}

func TestWriteAfterClose(t *testing.T) {
	cfg := DefaultConfig()
	col := NewDirectIntWriter(1)
	w, _ := newTestWriter(t, cfg, []ColumnWriter{col}, nil)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	err := w.Write(Page{Blocks: []Block{Int64Block{Values: []int64{1}}}})
	if err == nil {
		t.Fatal("expected an error writing after close")
	}
}
