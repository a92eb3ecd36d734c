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

// dictionaryOptimizer monitors aggregate dictionary memory and
// estimated compression efficacy across every dictionary-capable
// column writer in the tree, converting columns to direct encoding
// under memory or efficacy pressure.
type dictionaryOptimizer struct {
	candidates []DictionaryColumnWriter

	maxMemoryBytes       uint64
	almostFullRange      float64
	usefulCheckColSize   uint64
	usefulCheckFrequency int
	rowCountThreshold    uint64

	// minUsefulRatio below which a dictionary is considered to be
	// pulling its weight poorly enough to convert. Chosen so that a
	// dictionary whose memory exceeds roughly half the raw size of the
	// values it encodes gets converted; real implementations expose this
	// as a tunable, but there's no distinct config field for it here,
	// so it rides along with usefulCheckColSize's threshold.
	minUsefulRatio float64

	// preserveStripes is how many subsequent stripes a converted
	// column stays direct-encoded before it may try a dictionary
	// again; preserve tracks the per-column countdown.
	preserveStripes int
	preserve        map[DictionaryColumnWriter]int

	chunkCount     int
	convertedTotal int
}

func newDictionaryOptimizer(cfg Config, candidates []DictionaryColumnWriter) *dictionaryOptimizer {
	freq := cfg.DictionaryUsefulCheckFrequency
	if freq <= 0 {
		freq = 1
	}
	return &dictionaryOptimizer{
		candidates:           candidates,
		maxMemoryBytes:       cfg.DictionaryMaxMemoryBytes,
		almostFullRange:      cfg.DictionaryMemoryAlmostFullRange,
		usefulCheckColSize:   cfg.DictionaryUsefulCheckColumnSize,
		usefulCheckFrequency: freq,
		rowCountThreshold:    cfg.StripeMaxRowCount,
		preserveStripes:      cfg.PreserveDirectEncodingStripeCount,
		preserve:             make(map[DictionaryColumnWriter]int),
		minUsefulRatio:       0.5,
	}
}

func (d *dictionaryOptimizer) aggregateMemory() uint64 {
	var total uint64
	for _, c := range d.candidates {
		total += c.DictionaryMemoryBytes()
	}
	return total
}

func (d *dictionaryOptimizer) softLimit() uint64 {
	return uint64(float64(d.maxMemoryBytes) * d.almostFullRange)
}

// optimize is the per-chunk entry point: if memory pressure is low and
// the stripe is still small, do nothing; otherwise convert poorly
// performing dictionaries to direct encoding until pressure clears or
// no candidates remain.
func (d *dictionaryOptimizer) optimize(bufferedBytes, stripeRowCount uint64) {
	d.chunkCount++
	if d.chunkCount%d.usefulCheckFrequency != 0 {
		return
	}
	memPressure := d.aggregateMemory() >= d.softLimit()
	if !memPressure && stripeRowCount < d.rowCountThreshold {
		return
	}
	// when triggered by the row-count threshold alone there is no
	// memory pressure to clear, so the guard is dropped and every
	// weakly-useful dictionary gets evaluated once.
	d.convert(!memPressure)
}

// finalOptimize runs the same evaluation one last time at stripe
// close, without the memory guard, so weakly-useful dictionaries are
// collapsed before writing even if aggregate memory never crossed the
// soft limit.
func (d *dictionaryOptimizer) finalOptimize(bufferedBytes uint64) {
	d.convert(true)
}

func (d *dictionaryOptimizer) convert(ignoreMemoryGuard bool) {
	for {
		mem := d.aggregateMemory()
		if !ignoreMemoryGuard && mem < d.softLimit() {
			return
		}
		victim := d.worstCandidate()
		if victim < 0 {
			return
		}
		d.candidates[victim].ConvertToDirect()
		d.convertedTotal++
		if d.preserveStripes > 0 {
			d.preserve[d.candidates[victim]] = d.preserveStripes
		}
		d.candidates = append(d.candidates[:victim], d.candidates[victim+1:]...)
		if len(d.candidates) == 0 {
			return
		}
	}
}

// worstCandidate returns the index of the remaining candidate with the
// worst (smallest) compression ratio among those large enough to be
// worth evaluating, or -1 if none qualify for conversion.
func (d *dictionaryOptimizer) worstCandidate() int {
	worst := -1
	worstRatio := d.minUsefulRatio
	for i, c := range d.candidates {
		if c.DictionaryMemoryBytes() < d.usefulCheckColSize {
			continue
		}
		ratio := c.EstimateRatio()
		if ratio < worstRatio {
			worstRatio = ratio
			worst = i
		}
	}
	return worst
}

// isFull reports whether aggregate dictionary memory is within the
// "almost full" band, a signal the flush policy uses to cut a stripe
// even when row/byte thresholds have not been hit.
func (d *dictionaryOptimizer) isFull(bufferedBytes uint64) bool {
	return d.aggregateMemory() >= d.softLimit()
}

// conversions returns the number of dictionary-to-direct conversions
// performed so far, used by tests to observe optimizer behavior.
func (d *dictionaryOptimizer) conversions() int {
	return d.convertedTotal
}

// reset clears per-stripe accounting and rebuilds the candidate list
// from the (unchanged) column tree. Columns converted to direct in a
// recent stripe are converted again immediately and withheld from the
// candidate pool until their preserve countdown runs out, so a column
// that keeps producing high-cardinality data doesn't rebuild a doomed
// dictionary on every stripe.
func (d *dictionaryOptimizer) reset(candidates []DictionaryColumnWriter) {
	d.candidates = d.candidates[:0]
	for _, c := range candidates {
		if left, ok := d.preserve[c]; ok && left > 0 {
			c.ConvertToDirect()
			if left == 1 {
				delete(d.preserve, c)
			} else {
				d.preserve[c] = left - 1
			}
			continue
		}
		d.candidates = append(d.candidates, c)
	}
	d.chunkCount = 0
}
