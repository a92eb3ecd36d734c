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

import "fmt"

// stripeStreamSlot pairs a collected stream with enough context to
// assign it to a region bucket and order it within the data region.
type stripeStreamSlot struct {
	node  NodeID
	kind  StreamKind
	raw   []byte
	group *EncryptionGroup
}

// bufferStripeData turns the current stripe's in-memory column-writer
// state into the ordered byte outputs the sink will receive, plus the
// StripeInformation and per-node statistics recorded for this stripe.
// The caller (flushStripe) has already finished any partial row group,
// run finalOptimize, and closed every column writer before calling
// this.
func (w *Writer) bufferStripeData() (chunks [][]byte, info StripeInformation, stats map[NodeID]*ColumnStatistics, err error) {
	// step 2: index streams, in column order
	var indexSlots []stripeStreamSlot
	for _, c := range w.columns {
		for _, so := range c.IndexStreams() {
			indexSlots = append(indexSlots, stripeStreamSlot{
				node: so.Node, kind: so.Kind, raw: so.Data,
				group: w.encInfo.GroupFor(so.Node),
			})
		}
	}

	// step 3: data streams, in column order, then reordered for
	// locality; the region/offset bookkeeping rule spans both regions
	// as a single running sequence.
	var dataOutputs []StreamDataOutput
	dataGroup := make(map[NodeID]*EncryptionGroup)
	for _, c := range w.columns {
		for _, so := range c.DataStreams() {
			dataOutputs = append(dataOutputs, so)
			dataGroup[so.Node] = w.encInfo.GroupFor(so.Node)
		}
	}
	w.layout.Reorder(dataOutputs)
	var dataSlots []stripeStreamSlot
	for _, so := range dataOutputs {
		dataSlots = append(dataSlots, stripeStreamSlot{
			node: so.Node, kind: so.Kind, raw: so.Data, group: dataGroup[so.Node],
		})
	}

	// compress every stream and assign offsets at region boundaries;
	// the running offset and "last region" state carries over from
	// the index region into the data region.
	var runningOffset uint64
	var lastRegion *EncryptionGroup
	haveRegion := false
	var indexChunks, dataChunks [][]byte
	var indexDescs, dataDescs []StreamDescriptor
	var indexLen, dataLen uint64
	nodeStorage := make(map[NodeID]uint64)

	assign := func(s stripeStreamSlot) (StreamDescriptor, []byte) {
		compressed := w.compressor.Compress(s.raw, nil)
		sd := StreamDescriptor{Node: s.node, Kind: s.kind, Length: uint64(len(compressed))}
		if !haveRegion || s.group != lastRegion {
			off := runningOffset
			sd.Offset = &off
			lastRegion = s.group
			haveRegion = true
		}
		runningOffset += sd.Length
		nodeStorage[s.node] += sd.Length
		return sd, compressed
	}

	for _, s := range indexSlots {
		sd, c := assign(s)
		indexDescs = append(indexDescs, sd)
		indexChunks = append(indexChunks, c)
		indexLen += sd.Length
	}
	for _, s := range dataSlots {
		sd, c := assign(s)
		dataDescs = append(dataDescs, sd)
		dataChunks = append(dataChunks, c)
		dataLen += sd.Length
	}

	// step 4: column encodings, node 0 included as DIRECT
	encodings := map[NodeID]ColumnEncoding{0: {Kind: DirectEncoding}}
	for _, c := range w.columns {
		for n, e := range c.ColumnEncodings() {
			encodings[n] = e
		}
	}

	// step 5: stripe statistics, dense by node id, node 0 synthesized.
	// Each column writer keeps its own running per-stripe accumulator
	// (distinct from the per-row-group snapshot FinishRowGroup reports);
	// ColumnStripeStatistics is where that accumulator is read.
	stats = map[NodeID]*ColumnStatistics{
		0: {NumberOfValues: w.stripeRowCount, RawSize: w.stripeRawSize},
	}
	for _, c := range w.columns {
		for n, s := range c.ColumnStripeStatistics() {
			stats[n] = s
		}
	}
	mustDense(stats, w.nodeCount)

	// partition streams/encodings by encryption group (step 6) vs
	// unencrypted (step 7)
	allDescs := append(append([]StreamDescriptor(nil), indexDescs...), dataDescs...)
	unencStreams := make([]StreamDescriptor, 0, len(allDescs))
	unencEncodings := make(map[NodeID]ColumnEncoding, len(encodings))
	groupStreams := make(map[*EncryptionGroup][]StreamDescriptor)
	groupEncodings := make(map[*EncryptionGroup]map[NodeID]ColumnEncoding)

	nodeGroup := func(n NodeID) *EncryptionGroup { return w.encInfo.GroupFor(n) }

	for _, sd := range allDescs {
		if g := nodeGroup(sd.Node); g != nil {
			groupStreams[g] = append(groupStreams[g], sd)
		} else {
			unencStreams = append(unencStreams, sd)
		}
	}
	for n, e := range encodings {
		if g := nodeGroup(n); g != nil {
			if groupEncodings[g] == nil {
				groupEncodings[g] = make(map[NodeID]ColumnEncoding)
			}
			groupEncodings[g][n] = e
		} else {
			unencEncodings[n] = e
		}
	}

	var keyMetadata [][]byte
	var encryptedGroups [][]byte
	for _, g := range w.encInfo.Groups() {
		payload := streamEncryptionGroupPayload{
			Streams:   groupStreams[g],
			Encodings: groupEncodings[g],
		}
		raw := marshalStripeEncryptionGroup(payload)
		ciphertext, sealErr := g.seal(raw)
		if sealErr != nil {
			return nil, StripeInformation{}, nil, fmt.Errorf("orc: sealing encryption group %s: %w", g.ID, sealErr)
		}
		encryptedGroups = append(encryptedGroups, ciphertext)
		keyMetadata = append(keyMetadata, g.IntermediateKeyMetadata)
	}

	footer := StripeFooter{
		UnencryptedStreams:   unencStreams,
		UnencryptedEncodings: unencEncodings,
		EncryptedGroups:      encryptedGroups,
	}
	footerRaw := marshalStripeFooter(footer)
	footerBlob := compressBlob(w.compressor, footerRaw)

	// attach per-node storage sizes: every stream's compressed bytes
	// count against its owning node, and the stripe footer itself
	// counts against node 0. Merging stripe stats into file stats
	// later sums these into the per-node storage sizes the file
	// footer reports.
	nodeStorage[0] += uint64(len(footerBlob))
	for n, sz := range nodeStorage {
		stats[n].StorageSize += sz
	}

	// step 8: stripe cache contributions
	w.cache.AddIndexStreams(indexChunks)
	w.cache.AddStripeFooter(footerBlob)

	info = StripeInformation{
		IndexLength:  indexLen,
		DataLength:   dataLen,
		FooterLength: uint64(len(footerBlob)),
		NumberOfRows: w.stripeRowCount,
		RawSize:      w.stripeRawSize,
		KeyMetadata:  keyMetadata,
	}

	chunks = make([][]byte, 0, len(indexChunks)+len(dataChunks)+1)
	chunks = append(chunks, indexChunks...)
	chunks = append(chunks, dataChunks...)
	chunks = append(chunks, footerBlob)
	return chunks, info, stats, nil
}

// mustDense panics if stats does not contain exactly one entry for
// every node id in [0, nodeCount): a missing node id means a
// ColumnWriter failed to report its statistics, which is a programming
// bug rather than a recoverable condition.
func mustDense(stats map[NodeID]*ColumnStatistics, nodeCount int) {
	if len(stats) != nodeCount {
		panic(fmt.Sprintf("orc: dense stats list mismatch: have %d entries, want %d", len(stats), nodeCount))
	}
	for n := 0; n < nodeCount; n++ {
		if _, ok := stats[NodeID(n)]; !ok {
			panic(fmt.Sprintf("orc: missing statistics for node %d", n))
		}
	}
}
