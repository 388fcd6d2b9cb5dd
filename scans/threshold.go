// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scans

import (
	"fmt"

	"go-hep.org/x/hep/hbook"

	"github.com/ljthink/pyBAR/daq"
)

// ThresholdScan sweeps the injection-pulse amplitude and records the
// hit response at every step, tracing the s-curve of the pixel
// discriminator thresholds.
type ThresholdScan struct {
	// Injections is the number of analog pulses per amplitude step.
	Injections int
	// DACStart, DACStop and DACStep bound the PlsrDAC sweep.
	DACStart int
	DACStop  int
	DACStep  int
}

// NewThresholdScan returns a threshold scan with default settings.
func NewThresholdScan() *ThresholdScan {
	return &ThresholdScan{
		Injections: 100,
		DACStart:   0,
		DACStop:    100,
		DACStep:    2,
	}
}

var _ daq.Scanner = (*ThresholdScan)(nil)

// Configure implements daq.Scanner.
func (sc *ThresholdScan) Configure(ctx *daq.ScanContext) error {
	if sc.DACStep <= 0 {
		return fmt.Errorf("scans: invalid PlsrDAC step %d", sc.DACStep)
	}
	if sc.DACStop < sc.DACStart {
		return fmt.Errorf("scans: invalid PlsrDAC range [%d,%d]", sc.DACStart, sc.DACStop)
	}

	u := ctx.Utils()
	reg := ctx.Registers()

	if err := reg.FillPixel("Enable", 1); err != nil {
		return err
	}
	if err := u.WriteGlobal(); err != nil {
		return err
	}
	return u.WritePixel("Enable")
}

// Scan implements daq.Scanner. Each amplitude step gets its own
// readout window tagged with the PlsrDAC value.
func (sc *ThresholdScan) Scan(ctx *daq.ScanContext) error {
	u := ctx.Utils()
	for dac := sc.DACStart; dac <= sc.DACStop; dac += sc.DACStep {
		if ctx.Aborting() {
			return nil
		}
		ctx.SetScanParameter("PlsrDAC", dac)
		if err := u.Set("PlsrDAC", uint64(dac)); err != nil {
			return err
		}
		err := ctx.Readout(func() error {
			for i := 0; i < sc.Injections; i++ {
				if ctx.Aborting() {
					return nil
				}
				if err := u.CalPulse(); err != nil {
					return fmt.Errorf("scans: dac=%d injection %d: %w", dac, i, err)
				}
				if err := u.LV1(); err != nil {
					return fmt.Errorf("scans: dac=%d injection %d: %w", dac, i, err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Analyze implements daq.Scanner. It books the s-curve histogram of
// hits per PlsrDAC step and reports the mean as the threshold
// estimate.
func (sc *ThresholdScan) Analyze(ctx *daq.ScanContext) error {
	sink, ok := ctx.Sink().(*daq.BufferSink)
	if !ok {
		ctx.Logf("raw data went to an external sink, skipping s-curve")
		return nil
	}

	var (
		lo     = float64(sc.DACStart)
		hi     = float64(sc.DACStop + sc.DACStep)
		nbins  = (sc.DACStop-sc.DACStart)/sc.DACStep + 1
		scurve = hbook.NewH1D(nbins, lo, hi)

		batches = sink.Batches()
		params  = sink.Params()
	)
	for i, b := range batches {
		dac, ok := params[i]["PlsrDAC"].(int)
		if !ok {
			continue
		}
		for _, w := range b.Words {
			if daq.IsFEWord(w) {
				scurve.Fill(float64(dac), 1)
			}
		}
	}

	ctx.SetAttr("scurve", scurve)
	if scurve.Entries() == 0 {
		ctx.Logf("threshold scan: no hits recorded")
		return nil
	}
	ctx.Logf("threshold scan: %d hits, threshold estimate PlsrDAC=%.1f",
		scurve.Entries(), scurve.XMean())
	return nil
}
