// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"sort"
	"sync"
)

// ScanParams is an ordered, mutex-guarded scan-parameter table. Scans
// may add parameters at any time; snapshots are attached to routed
// data batches.
type ScanParams struct {
	mu    sync.Mutex
	names []string
	vals  map[string]interface{}
}

// NewScanParams returns a parameter table seeded from the run
// configuration, in sorted name order.
func NewScanParams(seed map[string]int) *ScanParams {
	p := &ScanParams{vals: make(map[string]interface{}, len(seed))}
	names := make([]string, 0, len(seed))
	for name := range seed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p.names = append(p.names, name)
		p.vals[name] = seed[name]
	}
	return p
}

// Set stores a parameter value, appending the name on first use.
func (p *ScanParams) Set(name string, v interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.vals[name]; !ok {
		p.names = append(p.names, name)
	}
	p.vals[name] = v
}

// Get returns the value of a parameter.
func (p *ScanParams) Get(name string) (interface{}, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.vals[name]
	return v, ok
}

// Names returns the parameter names in insertion order.
func (p *ScanParams) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// Snapshot returns a copy of the current table.
func (p *ScanParams) Snapshot() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]interface{}, len(p.vals))
	for name, v := range p.vals {
		out[name] = v
	}
	return out
}
