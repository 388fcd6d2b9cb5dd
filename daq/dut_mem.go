// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"fmt"
	"sync"

	"github.com/ljthink/pyBAR/internal/bitstream"
)

// MemDUT is an in-memory device under test: every named line is a
// plain register map, TX commands are recorded, FIFO words are
// whatever was pushed into it. It backs the standalone server and
// the package tests.
type MemDUT struct {
	mu    sync.Mutex
	lines map[string]*memLine
	txs   map[string]*memTx
	fifos map[string]*memFifo
}

var _ DUT = (*MemDUT)(nil)

// NewMemDUT returns an empty in-memory DUT. Lines are created on
// first access.
func NewMemDUT() *MemDUT {
	return &MemDUT{
		lines: make(map[string]*memLine),
		txs:   make(map[string]*memTx),
		fifos: make(map[string]*memFifo),
	}
}

// Line returns the named register-file line, creating it on first use.
func (dut *MemDUT) Line(name string) (Line, error) {
	dut.mu.Lock()
	defer dut.mu.Unlock()
	if name == "" {
		return nil, fmt.Errorf("daq: empty line name")
	}
	line, ok := dut.lines[name]
	if !ok {
		line = &memLine{name: name, regs: make(map[string]uint32)}
		dut.lines[name] = line
	}
	return line, nil
}

// Tx returns the named command line, creating it on first use.
func (dut *MemDUT) Tx(name string) (Tx, error) {
	dut.mu.Lock()
	defer dut.mu.Unlock()
	if name == "" {
		return nil, fmt.Errorf("daq: empty tx name")
	}
	tx, ok := dut.txs[name]
	if !ok {
		tx = &memTx{memLine: memLine{name: name, regs: make(map[string]uint32)}}
		dut.txs[name] = tx
	}
	return tx, nil
}

// Fifo returns the named readout buffer, creating it on first use.
func (dut *MemDUT) Fifo(name string) (Fifo, error) {
	dut.mu.Lock()
	defer dut.mu.Unlock()
	if name == "" {
		return nil, fmt.Errorf("daq: empty fifo name")
	}
	fifo, ok := dut.fifos[name]
	if !ok {
		fifo = &memFifo{memLine: memLine{name: name, regs: make(map[string]uint32)}}
		dut.fifos[name] = fifo
	}
	return fifo, nil
}

// PushData queues raw words on the named FIFO for the next ReadData.
func (dut *MemDUT) PushData(fifo string, words []uint32) error {
	f, err := dut.Fifo(fifo)
	if err != nil {
		return err
	}
	mf := f.(*memFifo)
	mf.mu.Lock()
	defer mf.mu.Unlock()
	mf.data = append(mf.data, words...)
	return nil
}

// Sent returns the commands recorded on the named TX line.
func (dut *MemDUT) Sent(tx string) ([]*bitstream.Bits, error) {
	t, err := dut.Tx(tx)
	if err != nil {
		return nil, err
	}
	mt := t.(*memTx)
	mt.mu.Lock()
	defer mt.mu.Unlock()
	out := make([]*bitstream.Bits, len(mt.sent))
	copy(out, mt.sent)
	return out, nil
}

type memLine struct {
	mu     sync.Mutex
	name   string
	regs   map[string]uint32
	resets int
}

func (l *memLine) Name() string { return l.name }

func (l *memLine) Read(reg string) (uint32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.regs[reg], nil
}

func (l *memLine) Write(reg string, v uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.regs[reg] = v
	return nil
}

func (l *memLine) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.regs = make(map[string]uint32)
	l.resets++
	return nil
}

// Resets returns how many times the line was reset.
func (l *memLine) Resets() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resets
}

type memTx struct {
	memLine
	sent []*bitstream.Bits
}

func (tx *memTx) Send(bits *bitstream.Bits) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.sent = append(tx.sent, bits)
	return nil
}

type memFifo struct {
	memLine
	data []uint32
	rerr error // injected ReadData failure
}

func (f *memFifo) ReadData() ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rerr != nil {
		err := f.rerr
		f.rerr = nil
		return nil, err
	}
	out := f.data
	f.data = nil
	return out, nil
}

func (f *memFifo) Size() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data), nil
}

// FailNextRead makes the next ReadData on the named FIFO return err.
func (dut *MemDUT) FailNextRead(fifo string, err error) error {
	f, ferr := dut.Fifo(fifo)
	if ferr != nil {
		return ferr
	}
	mf := f.(*memFifo)
	mf.mu.Lock()
	defer mf.mu.Unlock()
	mf.rerr = err
	return nil
}
