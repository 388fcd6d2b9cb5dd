// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scans

import (
	"fmt"

	"go-hep.org/x/hep/hbook"

	"github.com/ljthink/pyBAR/daq"
)

// DigitalScan injects digital pulses behind the pixel discriminators
// and counts the hits coming back, exercising the digital readout
// path of every enabled pixel.
type DigitalScan struct {
	// Injections is the number of digital pulses per module.
	Injections int
}

// NewDigitalScan returns a digital scan with default settings.
func NewDigitalScan() *DigitalScan {
	return &DigitalScan{Injections: 100}
}

var _ daq.Scanner = (*DigitalScan)(nil)

// Configure implements daq.Scanner.
func (sc *DigitalScan) Configure(ctx *daq.ScanContext) error {
	u := ctx.Utils()
	reg := ctx.Registers()

	if err := reg.FillPixel("Enable", 1); err != nil {
		return err
	}
	if err := reg.FillPixel("EnableDigInj", 1); err != nil {
		return err
	}
	// Route the injection pulse to the digital hit input.
	if err := reg.Set("DIGHITIN_SEL", 1); err != nil {
		return err
	}

	if err := u.WriteGlobal(); err != nil {
		return err
	}
	if err := u.WritePixel("Enable"); err != nil {
		return err
	}
	return u.WritePixel("EnableDigInj")
}

// Scan implements daq.Scanner.
func (sc *DigitalScan) Scan(ctx *daq.ScanContext) error {
	u := ctx.Utils()
	return ctx.Readout(func() error {
		for i := 0; i < sc.Injections; i++ {
			if ctx.Aborting() {
				return nil
			}
			if err := u.CalPulse(); err != nil {
				return fmt.Errorf("scans: injection %d: %w", i, err)
			}
			if err := u.LV1(); err != nil {
				return fmt.Errorf("scans: injection %d: %w", i, err)
			}
		}
		return nil
	})
}

// Analyze implements daq.Scanner. It books the occupancy histogram of
// the received hit words per trigger.
func (sc *DigitalScan) Analyze(ctx *daq.ScanContext) error {
	sink, ok := ctx.Sink().(*daq.BufferSink)
	if !ok {
		ctx.Logf("raw data went to an external sink, skipping occupancy")
		return nil
	}

	var (
		occ      = hbook.NewH1D(50, 0, 50)
		triggers int
		hits     int
		perTrig  int
	)
	for _, w := range sink.Words() {
		switch {
		case daq.IsTriggerWord(w):
			if triggers > 0 {
				occ.Fill(float64(perTrig), 1)
			}
			triggers++
			perTrig = 0
		case daq.IsFEWord(w):
			hits++
			perTrig++
		}
	}
	if triggers > 0 {
		occ.Fill(float64(perTrig), 1)
	}

	ctx.SetAttr("occupancy", occ)
	ctx.Logf("digital scan: %d triggers, %d hits", triggers, hits)
	return nil
}
