// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"errors"
	"fmt"

	"github.com/ljthink/pyBAR/internal/bitstream"
)

// ErrInconsistentRead is returned by BroadcastHandle.ReadChecked when
// the lines disagree on a register value.
var ErrInconsistentRead = errors.New("daq: inconsistent read across lines")

// Line is one named hardware endpoint (TX, RX, TLU, TDC) exposing a
// small register file.
type Line interface {
	Name() string
	Read(reg string) (uint32, error)
	Write(reg string, v uint32) error
	Reset() error
}

// Tx is a command line able to serialize chip commands.
type Tx interface {
	Line
	Send(bits *bitstream.Bits) error
}

// Fifo is the shared readout buffer all modules drain through.
type Fifo interface {
	Line
	ReadData() ([]uint32, error)
	Size() (int, error)
}

// DUT gives named access to the hardware endpoints of the device
// under test. Implementations wrap a physical board driver; the
// in-memory implementation below serves tests and the standalone
// server.
type DUT interface {
	Line(name string) (Line, error)
	Tx(name string) (Tx, error)
	Fifo(name string) (Fifo, error)
}

// BroadcastHandle fans register access out to a fixed set of lines,
// typically the RX lines of the modules sharing a readout.
type BroadcastHandle struct {
	lines []Line
}

// NewBroadcastHandle returns a handle over the given lines.
func NewBroadcastHandle(lines ...Line) *BroadcastHandle {
	return &BroadcastHandle{lines: lines}
}

// Lines returns the lines behind the handle.
func (h *BroadcastHandle) Lines() []Line { return h.lines }

// WriteAll writes the same register on every line.
func (h *BroadcastHandle) WriteAll(reg string, v uint32) error {
	for _, line := range h.lines {
		if err := line.Write(reg, v); err != nil {
			return fmt.Errorf("daq: could not write %s on %s: %w", reg, line.Name(), err)
		}
	}
	return nil
}

// ResetAll resets every line.
func (h *BroadcastHandle) ResetAll() error {
	for _, line := range h.lines {
		if err := line.Reset(); err != nil {
			return fmt.Errorf("daq: could not reset %s: %w", line.Name(), err)
		}
	}
	return nil
}

// ReadChecked reads the same register on every line and returns the
// common value, or ErrInconsistentRead when the lines disagree.
func (h *BroadcastHandle) ReadChecked(reg string) (uint32, error) {
	if len(h.lines) == 0 {
		return 0, fmt.Errorf("daq: could not read %s: no lines", reg)
	}
	var ref uint32
	for i, line := range h.lines {
		v, err := line.Read(reg)
		if err != nil {
			return 0, fmt.Errorf("daq: could not read %s on %s: %w", reg, line.Name(), err)
		}
		switch {
		case i == 0:
			ref = v
		case v != ref:
			return 0, fmt.Errorf(
				"daq: register %s: %s reads 0x%x, %s reads 0x%x: %w",
				reg, h.lines[0].Name(), ref, line.Name(), v, ErrInconsistentRead,
			)
		}
	}
	return ref, nil
}
