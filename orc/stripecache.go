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

// StripeCacheWriter accumulates a DWRF-only region that duplicates
// index and/or footer bytes near the file's tail, so a reader can open
// small files without a second round trip per stripe. It tracks a
// single running offset the same way MultiWriter's span bookkeeping
// tracks contiguous byte runs: every contribution just grows the
// buffer and records where the next stripe's region starts.
type StripeCacheWriter struct {
	mode    StripeCacheMode
	maxSize uint64

	buf     []byte
	offsets []uint64 // one entry per stripe boundary, plus a final terminator
	full    bool
}

// NewStripeCacheWriter constructs a cache writer per the configured
// mode. A NONE mode cache accepts contributions silently and never
// grows, so callers do not need to branch on whether caching is
// enabled.
func NewStripeCacheWriter(opts StripeCacheOptions) *StripeCacheWriter {
	return &StripeCacheWriter{
		mode:    opts.Mode,
		maxSize: opts.MaxSize,
		offsets: []uint64{0},
	}
}

func (c *StripeCacheWriter) wantsIndex() bool {
	return c.mode == StripeCacheIndex || c.mode == StripeCacheBoth
}

func (c *StripeCacheWriter) wantsFooter() bool {
	return c.mode == StripeCacheFooter || c.mode == StripeCacheBoth
}

// AddIndexStreams appends a stripe's index streams as written to the
// file (already compressed), if the configured mode wants them.
func (c *StripeCacheWriter) AddIndexStreams(streams [][]byte) {
	if !c.wantsIndex() || c.full {
		return
	}
	for _, s := range streams {
		c.append(s)
	}
}

// AddStripeFooter appends a stripe footer's bytes, if the configured
// mode wants them.
func (c *StripeCacheWriter) AddStripeFooter(footer []byte) {
	if !c.wantsFooter() || c.full {
		return
	}
	c.append(footer)
}

// EndStripe records the boundary after a stripe's contributions
// (whether or not anything was actually appended for it, so the
// offsets vector always has one entry per stripe plus a terminator).
func (c *StripeCacheWriter) EndStripe() {
	if c.mode == StripeCacheNone {
		return
	}
	c.offsets = append(c.offsets, uint64(len(c.buf)))
}

func (c *StripeCacheWriter) append(b []byte) {
	if c.maxSize != 0 && uint64(len(c.buf)+len(b)) > c.maxSize {
		// once the budget is exceeded the cache stops growing for the
		// remainder of the file; readers fall back to the per-stripe
		// footer fetch for any stripe past this point.
		c.full = true
		return
	}
	c.buf = append(c.buf, b...)
}

// Data returns the concatenated cache bytes, or nil if the mode is
// StripeCacheNone or nothing was ever appended.
func (c *StripeCacheWriter) Data() []byte {
	if c.mode == StripeCacheNone {
		return nil
	}
	return c.buf
}

// Offsets returns the per-stripe offset vector: offsets[i] is where
// stripe i's cached region begins, and the final entry is the total
// cache length.
func (c *StripeCacheWriter) Offsets() []uint64 {
	if c.mode == StripeCacheNone {
		return nil
	}
	return c.offsets
}

// Mode reports the configured cache mode.
func (c *StripeCacheWriter) Mode() StripeCacheMode { return c.mode }
