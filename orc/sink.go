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
	"os"
	"sync"
)

// Sink is the append-only byte destination a Writer emits to. It never
// seeks: every stripe, the metadata section, the optional stripe
// cache, the footer, and the postscript are written as one or more
// ordered appends, mirroring the append-only part-upload contract
// blockfmt.Uploader exposes for object storage.
type Sink interface {
	// Size returns the number of bytes appended so far.
	Size() uint64
	// Write appends each chunk in chunks, in order, as a single
	// logical region (the caller decides the chunk boundaries; the
	// sink must not interleave bytes from separate Write calls).
	Write(chunks [][]byte) error
	// Close flushes and finalizes the sink. Close is called exactly
	// once, after the final Write.
	Close() error
	// RetainedSize estimates memory the sink is holding onto beyond
	// what the OS/network layer has already absorbed (0 for a sink
	// with no internal buffering).
	RetainedSize() uint64
}

// FileSink writes directly to a local file, fsync'ing on Close so a
// caller can treat a successful Close as durable.
type FileSink struct {
	f    *os.File
	size uint64
}

// NewFileSink opens path for writing, truncating any existing
// contents.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileSink{f: f}, nil
}

func (s *FileSink) Size() uint64 { return s.size }

func (s *FileSink) Write(chunks [][]byte) error {
	for _, c := range chunks {
		n, err := s.f.Write(c)
		s.size += uint64(n)
		if err != nil {
			return fmt.Errorf("orc: sink write: %w", err)
		}
		if n != len(c) {
			return fmt.Errorf("orc: sink write: short write (%d of %d bytes)", n, len(c))
		}
	}
	return nil
}

func (s *FileSink) Close() error {
	if err := fsync(s.f); err != nil {
		return fmt.Errorf("orc: sink fsync: %w", err)
	}
	return s.f.Close()
}

func (s *FileSink) RetainedSize() uint64 { return 0 }

// BufferSink is an in-memory Sink, primarily for tests and for callers
// that want to hold the finished file in memory before shipping it
// elsewhere.
type BufferSink struct {
	mu  sync.Mutex
	buf []byte
}

func (s *BufferSink) Size() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.buf))
}

func (s *BufferSink) Write(chunks [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		s.buf = append(s.buf, c...)
	}
	return nil
}

func (s *BufferSink) Close() error { return nil }

func (s *BufferSink) RetainedSize() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(cap(s.buf))
}

// Bytes returns the sink's contents. The caller must not write to a
// BufferSink concurrently with calling Bytes.
func (s *BufferSink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf
}
