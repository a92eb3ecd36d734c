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

// ValidationBuilder is a side-channel observer that mirrors what the
// writer believes it has emitted, so a post-write read-back can be
// checked against it. It is a side-effect-only hook: when validation
// is disabled the Writer simply never constructs one.
type ValidationBuilder interface {
	AddPage(p Page)
	AddRowGroupStatistics(stripe int, stats map[NodeID]*ColumnStatistics)
	AddStripe(info StripeInformation)
	AddStripeStatistics(stripe int, stats map[NodeID]*ColumnStatistics)
	SetFileStatistics(stats map[NodeID]*ColumnStatistics)
	SetCompression(kind string)
	SetRowGroupMaxRowCount(n uint64)
	SetVersion(v uint64)
	AddMetadataProperty(key string, value []byte)
	Build() (*ValidationExpectation, error)
}

// ValidationExpectation is the materialized recording a
// ValidationBuilder produces, consumed by Validate to check a
// produced file against what the writer actually ingested.
type ValidationExpectation struct {
	TotalRows           uint64
	Stripes             []StripeInformation
	StripeStats         []map[NodeID]*ColumnStatistics
	FileStats           map[NodeID]*ColumnStatistics
	RowGroupMaxRowCount uint64
	Compression         string
	Version             uint64
	Metadata            map[string][]byte
}

// validationRecorder is the default ValidationBuilder: an
// append-only, in-memory recorder. It never errors; Build always
// succeeds.
type validationRecorder struct {
	exp ValidationExpectation
}

func newValidationRecorder() *validationRecorder {
	return &validationRecorder{
		exp: ValidationExpectation{Metadata: make(map[string][]byte)},
	}
}

func (v *validationRecorder) AddPage(p Page) {
	v.exp.TotalRows += uint64(p.RowCount())
}

func (v *validationRecorder) AddRowGroupStatistics(stripe int, stats map[NodeID]*ColumnStatistics) {
	// row-group statistics roll up into stripe statistics, which are
	// what Validate actually checks against a read-back file; this
	// hook exists so a richer validator could check row-group-level
	// boundaries too, but the default recorder does not need to keep
	// them once AddStripeStatistics supersedes them.
}

func (v *validationRecorder) AddStripe(info StripeInformation) {
	v.exp.Stripes = append(v.exp.Stripes, info)
}

func (v *validationRecorder) AddStripeStatistics(stripe int, stats map[NodeID]*ColumnStatistics) {
	for len(v.exp.StripeStats) <= stripe {
		v.exp.StripeStats = append(v.exp.StripeStats, nil)
	}
	v.exp.StripeStats[stripe] = stats
}

func (v *validationRecorder) SetFileStatistics(stats map[NodeID]*ColumnStatistics) {
	v.exp.FileStats = stats
}

func (v *validationRecorder) SetCompression(kind string) {
	v.exp.Compression = kind
}

func (v *validationRecorder) SetRowGroupMaxRowCount(n uint64) {
	v.exp.RowGroupMaxRowCount = n
}

func (v *validationRecorder) SetVersion(ver uint64) {
	v.exp.Version = ver
}

func (v *validationRecorder) AddMetadataProperty(key string, value []byte) {
	v.exp.Metadata[key] = value
}

func (v *validationRecorder) Build() (*ValidationExpectation, error) {
	return &v.exp, nil
}

// ErrValidationMismatch is returned by Writer.Validate when a
// produced file's observable shape disagrees with what was recorded
// during ingest.
type ErrValidationMismatch struct {
	Reason string
}

func (e *ErrValidationMismatch) Error() string {
	return fmt.Sprintf("orc: validation mismatch: %s", e.Reason)
}
