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

	"github.com/google/uuid"

	"github.com/SnellerInc/orcfile/orc/compress"
)

// Writer is the top-level orchestrator: it ingests pages, slices them
// into row-groups and stripes, drives the column-writer tree, and
// emits bytes to a Sink. A single goroutine owns a Writer for its
// entire lifetime; nothing here is safe for concurrent use.
type Writer struct {
	cfg        Config
	sink       Sink
	columns    []ColumnWriter
	encInfo    *EncryptionInfo
	flush      *FlushPolicy
	dict       *dictionaryOptimizer
	layout     StreamLayout
	cache      *StripeCacheWriter
	validation ValidationBuilder
	compressor compress.Compressor
	nodeCount  int

	stripeRowCount   uint64
	stripeRawSize    uint64
	rowGroupRowCount uint64
	closedStripes    []closedStripe
	totalRows        uint64
	fileRawSize      uint64
	wroteMagic       bool
	closed           bool
	lastFlushReason  FlushReason
}

// NewWriter constructs a Writer over columns (the top-level columns of
// the flattened type tree, node 0 itself is synthetic and owned by
// Writer, not by any ColumnWriter). encInfo may be nil, meaning no
// column is encrypted.
func NewWriter(sink Sink, cfg Config, columns []ColumnWriter, encInfo *EncryptionInfo) (*Writer, error) {
	compressor := compress.ByName(cfg.Compression)
	if compressor == nil {
		return nil, fmt.Errorf("orc: unsupported compression kind %q", cfg.Compression)
	}
	if cfg.Format != FormatDWRF {
		// the stripe cache is a DWRF-only section
		cfg.StripeCache = StripeCacheOptions{Mode: StripeCacheNone}
	}

	var validation ValidationBuilder
	if cfg.Validate {
		rec := newValidationRecorder()
		rec.SetCompression(string(cfg.Compression))
		rec.SetRowGroupMaxRowCount(cfg.RowGroupMaxRowCount)
		rec.SetVersion(currentFooterVersion)
		for k, v := range cfg.UserMetadata {
			rec.AddMetadataProperty(k, v)
		}
		validation = rec
	}

	layoutFactory := cfg.StreamLayoutFactory
	if layoutFactory == nil {
		layoutFactory = func(cols []ColumnWriter) StreamLayout { return newStreamLayout(cols) }
	}

	w := &Writer{
		cfg:        cfg,
		sink:       sink,
		columns:    columns,
		encInfo:    encInfo,
		flush:      NewFlushPolicy(cfg),
		layout:     layoutFactory(columns),
		cache:      NewStripeCacheWriter(cfg.StripeCache),
		validation: validation,
		compressor: compressor,
		nodeCount:  countNodes(columns),
	}
	w.dict = newDictionaryOptimizer(cfg, dictionaryWriters(columns))
	for _, c := range columns {
		c.BeginRowGroup()
	}
	return w, nil
}

func countNodes(columns []ColumnWriter) int {
	n := 1 // node 0, the synthetic root
	for _, c := range columns {
		allWriters(c, func(ColumnWriter) { n++ })
	}
	return n
}

// Write appends page's rows. page.Blocks must have exactly one entry
// per top-level column; a zero-row page is a no-op. Write may block on
// the sink.
func (w *Writer) Write(page Page) error {
	if w.closed {
		return fmt.Errorf("orc: write after close")
	}
	if len(page.Blocks) != len(w.columns) {
		return fmt.Errorf("orc: page has %d columns, writer configured for %d", len(page.Blocks), len(w.columns))
	}
	total := page.RowCount()
	if total == 0 {
		return nil
	}
	if w.validation != nil {
		w.validation.AddPage(page)
	}

	maxChunk := w.flush.MaxChunkRowCount(page)
	start := 0
	for start < total {
		n := uint64(total - start)
		if maxChunk > 0 && maxChunk < n {
			n = maxChunk
		}
		if rc := w.cfg.RowGroupMaxRowCount; rc > 0 {
			if rem := rc - w.rowGroupRowCount; rem < n {
				n = rem
			}
		}
		if sc := w.cfg.StripeMaxRowCount; sc > 0 {
			if rem := sc - w.stripeRowCount; rem < n {
				n = rem
			}
		}
		if n == 0 {
			n = uint64(total - start)
		}

		end := start + int(n)
		var rawDelta uint64
		for i, c := range w.columns {
			rawDelta += c.WriteBlock(page.Blocks[i].Slice(start, end))
		}
		w.stripeRawSize += rawDelta
		w.stripeRowCount += n
		w.rowGroupRowCount += n
		start = end

		w.dict.optimize(w.bufferedBytes(), w.stripeRowCount)

		if rc := w.cfg.RowGroupMaxRowCount; rc > 0 && w.rowGroupRowCount >= rc {
			w.finishRowGroup()
		}

		reason := w.flush.ShouldFlush(w.stripeRowCount, w.bufferedBytes(), w.dict.isFull(w.bufferedBytes()), false)
		if reason != NoFlush {
			if err := w.flushStripe(reason); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Writer) bufferedBytes() uint64 {
	var total uint64
	for _, c := range w.columns {
		total += c.BufferedBytes()
	}
	return total
}

// finishRowGroup closes the current row group: every column writer
// reports (and internally resets) its per-row-group statistics. Each
// column writer separately keeps a running, stripe-scoped statistics
// accumulator of its own (exposed via ColumnStripeStatistics, consumed
// by bufferStripeData), so finishRowGroup's only job here is to pass
// the row-group snapshot to the optional validation builder.
func (w *Writer) finishRowGroup() {
	merged := make(map[NodeID]*ColumnStatistics)
	for _, c := range w.columns {
		for n, s := range c.FinishRowGroup() {
			merged[n] = s
		}
	}
	if w.validation != nil {
		w.validation.AddRowGroupStatistics(len(w.closedStripes), merged)
	}
	w.rowGroupRowCount = 0
	for _, c := range w.columns {
		c.BeginRowGroup()
	}
}

// flushStripe cuts the current stripe: it finishes any partial row
// group, finalizes the dictionary optimizer and every column writer,
// assembles and writes the stripe's bytes, and records a closedStripe.
// The counter reset always runs, via defer, on both the success and
// the error exit, so a failed flush cannot leave stale buffered state
// that a later close would double-emit.
func (w *Writer) flushStripe(reason FlushReason) (err error) {
	if w.stripeRowCount == 0 {
		return nil
	}
	w.lastFlushReason = reason
	if w.rowGroupRowCount > 0 {
		w.finishRowGroup()
	}
	w.dict.finalOptimize(w.bufferedBytes())
	for _, c := range w.columns {
		c.Close()
	}

	defer func() {
		for _, c := range w.columns {
			c.Reset()
		}
		w.dict.reset(dictionaryWriters(w.columns))
		w.stripeRowCount = 0
		w.stripeRawSize = 0
		w.rowGroupRowCount = 0
		for _, c := range w.columns {
			c.BeginRowGroup()
		}
	}()

	offset := w.sink.Size()
	if !w.wroteMagic {
		offset += uint64(len(w.cfg.Format.magic()))
	}

	chunks, info, stats, err := w.bufferStripeData()
	if err != nil {
		return err
	}
	info.Offset = offset

	if err := w.writeChunks(chunks); err != nil {
		return err
	}
	w.cache.EndStripe()

	w.closedStripes = append(w.closedStripes, closedStripe{info: info, stats: stats})
	w.totalRows += info.NumberOfRows
	w.fileRawSize += info.RawSize

	if w.validation != nil {
		w.validation.AddStripe(info)
		w.validation.AddStripeStatistics(len(w.closedStripes)-1, stats)
	}
	return nil
}

// LastFlushReason reports why the most recent stripe was cut, for
// tests and observability; it is NoFlush before any stripe has been
// flushed.
func (w *Writer) LastFlushReason() FlushReason { return w.lastFlushReason }

// writeChunks forwards chunks to the sink, prepending the file magic
// exactly once, before the very first byte ever written.
func (w *Writer) writeChunks(chunks [][]byte) error {
	if !w.wroteMagic {
		chunks = append([][]byte{[]byte(w.cfg.Format.magic())}, chunks...)
		w.wroteMagic = true
	}
	return w.sink.Write(chunks)
}

// Close flushes the final stripe (reason CLOSED), writes the file
// footer and postscript, and closes the sink. Close is idempotent: a
// second call is a no-op.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.stripeRowCount > 0 {
		if err := w.flushStripe(FlushClosed); err != nil {
			return err
		}
	}
	if err := w.bufferFileFooter(); err != nil {
		return err
	}
	return w.sink.Close()
}

// WrittenBytes returns the number of bytes the sink has accepted so
// far.
func (w *Writer) WrittenBytes() uint64 { return w.sink.Size() }

// BufferedBytes returns the current stripe's in-memory footprint
// across every column writer.
func (w *Writer) BufferedBytes() uint64 { return w.bufferedBytes() }

// RetainedBytes estimates memory retained across stripe boundaries:
// pooled buffers inside column writers plus whatever the sink itself
// is holding onto.
func (w *Writer) RetainedBytes() uint64 {
	total := w.sink.RetainedSize()
	for _, c := range w.columns {
		total += c.RetainedBytes()
	}
	return total
}

// bufferFileFooter assembles the file metadata section, file footer,
// and postscript. It is only ever called from Close, after the final
// stripe (if any) has already been written.
func (w *Writer) bufferFileFooter() error {
	// step 1: metadata section, full per-stripe statistics
	meta := FileMetadata{StripeStats: make([]map[NodeID]*ColumnStatistics, len(w.closedStripes))}
	for i, cs := range w.closedStripes {
		meta.StripeStats[i] = cs.stats
	}
	metaBlob := compressBlob(w.compressor, marshalFileMetadata(meta))

	// step 2: file-level column statistics, merged across stripes
	fileStats := make(map[NodeID]*ColumnStatistics)
	for _, cs := range w.closedStripes {
		for n, s := range cs.stats {
			if cur, ok := fileStats[n]; ok {
				cur.merge(s)
			} else {
				fileStats[n] = s.Clone()
			}
		}
	}
	if w.validation != nil {
		w.validation.SetFileStatistics(fileStats)
	}

	// step 3: split by encryption
	unencStats := make(map[NodeID]*ColumnStatistics, len(fileStats))
	groupStats := make(map[*EncryptionGroup]map[NodeID]*ColumnStatistics)
	for n, s := range fileStats {
		if g := w.encInfo.GroupFor(n); g != nil {
			if groupStats[g] == nil {
				groupStats[g] = make(map[NodeID]*ColumnStatistics)
			}
			groupStats[g][n] = s
			unencStats[n] = s.strippedForEncryption()
		} else {
			unencStats[n] = s
		}
	}

	var encGroups []EncryptionGroupFooterEntry
	for _, g := range w.encInfo.Groups() {
		buf := marshalEncryptedFileStats(groupStats[g])
		ciphertext, err := g.seal(buf)
		if err != nil {
			return fmt.Errorf("orc: sealing file statistics for group %s: %w", g.ID, err)
		}
		encGroups = append(encGroups, EncryptionGroupFooterEntry{
			ID:             g.ID.String(),
			Nodes:          g.Nodes,
			EncryptedStats: ciphertext,
		})
	}

	// step 4: optional stripe-cache blob
	var cacheBlob []byte
	var cacheOffsets []uint64
	if w.cache.Mode() != StripeCacheNone {
		cacheOffsets = w.cache.Offsets()
		if data := w.cache.Data(); len(data) > 0 {
			cacheBlob = compressBlob(w.compressor, data)
		}
	}

	stripeInfos := make([]StripeInformation, len(w.closedStripes))
	for i, cs := range w.closedStripes {
		stripeInfos[i] = cs.info
	}

	// step 5: footer
	footer := FileFooter{
		Version:             currentFooterVersion,
		FileID:              uuid.NewString(),
		NumberOfRows:        w.totalRows,
		RowGroupMaxRowCount: w.cfg.RowGroupMaxRowCount,
		RawSize:             w.fileRawSize,
		Stripes:             stripeInfos,
		NodeCount:           uint64(w.nodeCount),
		UnencryptedStats:    unencStats,
		UserMetadata:        w.cfg.UserMetadata,
		EncryptionGroups:    encGroups,
		StripeCacheOffsets:  cacheOffsets,
	}
	footerBlob := compressBlob(w.compressor, marshalFileFooter(footer))

	// step 6: postscript, then its own trailing length byte
	ps := Postscript{
		FooterLength:             uint64(len(footerBlob)),
		MetadataLength:           uint64(len(metaBlob)),
		CompressionKind:          string(w.cfg.Compression),
		CompressionMaxBufferSize: uint64(w.cfg.MaxBufferSize),
		StripeCacheMode:          w.cfg.StripeCache.Mode,
		StripeCacheMaxSize:       w.cfg.StripeCache.MaxSize,
		StripeCacheLength:        uint64(len(cacheBlob)),
	}
	psBlob := marshalPostscript(ps)
	if len(psBlob) > 255 {
		return fmt.Errorf("orc: postscript too large (%d bytes, max 255)", len(psBlob))
	}

	chunks := make([][]byte, 0, 5)
	chunks = append(chunks, metaBlob)
	if len(cacheBlob) > 0 {
		chunks = append(chunks, cacheBlob)
	}
	chunks = append(chunks, footerBlob, psBlob, []byte{byte(len(psBlob))})

	if err := w.writeChunks(chunks); err != nil {
		return err
	}

	// step 7: clear closed-stripe memory
	w.closedStripes = nil
	return nil
}

// Validate reads data (the complete bytes a BufferSink produced, or
// the caller's own read-back of a FileSink's path) and checks it
// against the expectations recorded during ingest. Only permitted when
// the writer was constructed with Config.Validate set.
func (w *Writer) Validate(data []byte) error {
	if w.validation == nil {
		return fmt.Errorf("orc: validation was not enabled for this writer")
	}
	exp, err := w.validation.Build()
	if err != nil {
		return fmt.Errorf("orc: building validation expectation: %w", err)
	}
	if len(data) < 1 {
		return &ErrValidationMismatch{Reason: "file is empty"}
	}
	psLen := int(data[len(data)-1])
	if len(data) < 1+psLen {
		return &ErrValidationMismatch{Reason: "truncated postscript"}
	}
	psBlob := data[len(data)-1-psLen : len(data)-1]
	ps, err := unmarshalPostscript(psBlob)
	if err != nil {
		return &ErrValidationMismatch{Reason: fmt.Sprintf("postscript decode: %v", err)}
	}
	if ps.CompressionKind != exp.Compression {
		return &ErrValidationMismatch{Reason: fmt.Sprintf("compression kind: file has %q, expected %q", ps.CompressionKind, exp.Compression)}
	}

	footerStart := len(data) - 1 - psLen - int(ps.FooterLength)
	footerEnd := len(data) - 1 - psLen
	if footerStart < 0 {
		return &ErrValidationMismatch{Reason: "footer length exceeds file size"}
	}
	decomp := compress.DecompressorByName(compress.Kind(ps.CompressionKind))
	if decomp == nil {
		return &ErrValidationMismatch{Reason: fmt.Sprintf("unknown compression kind %q", ps.CompressionKind)}
	}
	footerRaw, err := decompressBlob(decomp, data[footerStart:footerEnd])
	if err != nil {
		return &ErrValidationMismatch{Reason: fmt.Sprintf("footer decompress: %v", err)}
	}
	footer, err := unmarshalFileFooter(footerRaw)
	if err != nil {
		return &ErrValidationMismatch{Reason: fmt.Sprintf("footer decode: %v", err)}
	}

	if footer.NumberOfRows != exp.TotalRows {
		return &ErrValidationMismatch{Reason: fmt.Sprintf("row count: file has %d, expected %d", footer.NumberOfRows, exp.TotalRows)}
	}
	if len(footer.Stripes) != len(exp.Stripes) {
		return &ErrValidationMismatch{Reason: fmt.Sprintf("stripe count: file has %d, expected %d", len(footer.Stripes), len(exp.Stripes))}
	}
	if footer.RowGroupMaxRowCount != exp.RowGroupMaxRowCount {
		return &ErrValidationMismatch{Reason: "rowGroupMaxRowCount mismatch"}
	}
	if footer.Version != exp.Version {
		return &ErrValidationMismatch{Reason: fmt.Sprintf("footer version: file has %d, expected %d", footer.Version, exp.Version)}
	}
	for k, v := range exp.Metadata {
		fv, ok := footer.UserMetadata[k]
		if !ok || string(fv) != string(v) {
			return &ErrValidationMismatch{Reason: fmt.Sprintf("user metadata key %q mismatch", k)}
		}
	}
	return nil
}

