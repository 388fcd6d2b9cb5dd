// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scans provides the scan catalog and the stock scan
// implementations run against FE-I4 modules.
package scans // import "github.com/ljthink/pyBAR/scans"

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ljthink/pyBAR/daq"
)

var catalog struct {
	mu    sync.RWMutex
	scans map[string]func() daq.Scanner
}

// Register adds a scan constructor to the catalog. Registering the
// same name twice panics.
func Register(name string, fn func() daq.Scanner) {
	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	if catalog.scans == nil {
		catalog.scans = make(map[string]func() daq.Scanner)
	}
	if _, dup := catalog.scans[name]; dup {
		panic(fmt.Sprintf("scans: duplicate scan %q", name))
	}
	catalog.scans[name] = fn
}

// Lookup builds a fresh Scanner for the named scan.
func Lookup(name string) (daq.Scanner, error) {
	catalog.mu.RLock()
	fn, ok := catalog.scans[name]
	catalog.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("scans: unknown scan %q", name)
	}
	return fn(), nil
}

// Names returns the registered scan names, sorted.
func Names() []string {
	catalog.mu.RLock()
	defer catalog.mu.RUnlock()
	names := make([]string, 0, len(catalog.scans))
	for name := range catalog.scans {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("digital", func() daq.Scanner { return NewDigitalScan() })
	Register("threshold", func() daq.Scanner { return NewThresholdScan() })
}
