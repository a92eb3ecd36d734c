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

import "github.com/SnellerInc/orcfile/orc/compress"

// Format selects the on-disk container flavor. The two formats share
// every component in this package except the magic prefix and the
// availability of the stripe cache, which is DWRF-only.
type Format int

const (
	FormatORC Format = iota
	FormatDWRF
)

func (f Format) magic() string {
	if f == FormatDWRF {
		return "ORC\x00" // DWRF reuses the 4-byte slot with a distinct trailing byte in real implementations; kept simple here
	}
	return "ORC"
}

// StripeCacheMode selects which bytes (if any) get duplicated verbatim
// near the file footer so a reader can open small files without a
// second round-trip to fetch each stripe's footer.
type StripeCacheMode int

const (
	StripeCacheNone StripeCacheMode = iota
	StripeCacheIndex
	StripeCacheFooter
	StripeCacheBoth
)

// Config parameterizes a Writer. The zero value is not valid; use
// DefaultConfig as a starting point.
type Config struct {
	Format Format

	// Compression applies to every stream the writer emits.
	Compression      compress.Kind
	CompressionLevel int
	MaxBufferSize    int
	MinBufferSize    int
	ChunkBufferSize  int

	RowGroupMaxRowCount uint64

	StripeMinBytes    uint64
	StripeMaxBytes    uint64
	StripeMaxRowCount uint64

	DictionaryMaxMemoryBytes          uint64
	DictionaryMemoryAlmostFullRange   float64
	DictionaryUsefulCheckColumnSize   uint64
	DictionaryUsefulCheckFrequency    int
	IntegerDictionaryEncodingEnabled  bool
	StringDictionaryEncodingEnabled   bool
	StringDictionarySortingEnabled    bool
	IgnoreDictionaryRowGroupSizes     bool
	PreserveDirectEncodingStripeCount int

	MaxStringStatisticsLimit int

	FlattenedColumns        []string
	MapStatisticsEnabled    bool
	MaxFlattenedMapKeyCount int

	ResetOutputBuffer bool
	LazyOutputBuffer  bool

	// StreamLayoutFactory overrides the default group-by-column data
	// stream layout; nil selects the default.
	StreamLayoutFactory StreamLayoutFactory

	StripeCache StripeCacheOptions

	// Validate enables the optional read-back self-check hook.
	Validate bool

	// UserMetadata is copied verbatim into the file footer.
	UserMetadata map[string][]byte
}

// StripeCacheOptions configures the optional DWRF stripe cache.
type StripeCacheOptions struct {
	Mode    StripeCacheMode
	MaxSize uint64
}

// DefaultConfig returns a Config with the same defaults the reference
// writer ships: modest row-group/stripe sizing, zstd compression, and
// both dictionary encodings enabled.
func DefaultConfig() Config {
	return Config{
		Format:          FormatORC,
		Compression:     compress.Zstd,
		MaxBufferSize:   256 << 10,
		MinBufferSize:   4 << 10,
		ChunkBufferSize: 64 << 10,

		RowGroupMaxRowCount: 10_000,

		StripeMinBytes:    8 << 20,
		StripeMaxBytes:    64 << 20,
		StripeMaxRowCount: 10_000_000,

		DictionaryMaxMemoryBytes:         16 << 20,
		DictionaryMemoryAlmostFullRange:  0.85,
		DictionaryUsefulCheckColumnSize:  1 << 20,
		DictionaryUsefulCheckFrequency:   1,
		IntegerDictionaryEncodingEnabled: true,
		StringDictionaryEncodingEnabled:  true,
		StringDictionarySortingEnabled:   false,

		MaxStringStatisticsLimit: 64,

		MapStatisticsEnabled:    true,
		MaxFlattenedMapKeyCount: 0,

		StripeCache: StripeCacheOptions{Mode: StripeCacheNone},
	}
}
