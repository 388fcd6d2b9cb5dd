// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
)

// Sink consumes the routed raw data of one module. newSegment marks
// the first batch after a scan-parameter change, flush the last batch
// of a readout window.
type Sink interface {
	Append(b Batch, params map[string]interface{}, newSegment, flush bool) error
	Close() error
}

// BufferSink keeps everything in memory, for tests and for analysis
// steps that walk the words of a scan.
type BufferSink struct {
	mu      sync.Mutex
	batches []Batch
	params  []map[string]interface{}
	closed  bool
}

var _ Sink = (*BufferSink)(nil)

// NewBufferSink returns an empty in-memory sink.
func NewBufferSink() *BufferSink { return &BufferSink{} }

// Append implements Sink.
func (s *BufferSink) Append(b Batch, params map[string]interface{}, newSegment, flush bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("daq: sink is closed")
	}
	if len(b.Words) == 0 {
		return nil
	}
	s.batches = append(s.batches, b)
	s.params = append(s.params, params)
	return nil
}

// Close implements Sink.
func (s *BufferSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Batches returns the appended batches in arrival order.
func (s *BufferSink) Batches() []Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Batch, len(s.batches))
	copy(out, s.batches)
	return out
}

// Params returns the scan-parameter snapshot attached to each batch.
func (s *BufferSink) Params() []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]interface{}, len(s.params))
	copy(out, s.params)
	return out
}

// Words returns all appended words, flattened.
func (s *BufferSink) Words() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []uint32
	for _, b := range s.batches {
		out = append(out, b.Words...)
	}
	return out
}

// FileSink streams raw words to a file, 32 bits little-endian per
// word.
type FileSink struct {
	mu sync.Mutex
	f  *os.File
}

var _ Sink = (*FileSink)(nil)

// NewFileSink creates (or truncates) the output file.
func NewFileSink(fname string) (*FileSink, error) {
	f, err := os.Create(fname)
	if err != nil {
		return nil, fmt.Errorf("daq: could not create raw file: %w", err)
	}
	return &FileSink{f: f}, nil
}

// Append implements Sink.
func (s *FileSink) Append(b Batch, params map[string]interface{}, newSegment, flush bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(b.Words) == 0 {
		return nil
	}
	if err := binary.Write(s.f, binary.LittleEndian, b.Words); err != nil {
		return fmt.Errorf("daq: could not write raw words: %w", err)
	}
	return nil
}

// Close implements Sink.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	if err != nil {
		return fmt.Errorf("daq: could not close raw file: %w", err)
	}
	return nil
}
