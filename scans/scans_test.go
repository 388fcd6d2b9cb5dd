// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scans

import (
	"io"
	"log"
	"reflect"
	"testing"

	"github.com/ljthink/pyBAR/daq"
)

func TestCatalog(t *testing.T) {
	want := []string{"digital", "threshold"}
	if got := Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid catalog:\ngot = %v\nwant= %v", got, want)
	}

	s1, err := Lookup("digital")
	if err != nil {
		t.Fatalf("could not look up scan: %+v", err)
	}
	s2, err := Lookup("digital")
	if err != nil {
		t.Fatalf("could not look up scan: %+v", err)
	}
	if s1 == s2 {
		t.Fatalf("lookup should build fresh scanners")
	}

	if _, err := Lookup("occupancy-3d"); err == nil {
		t.Fatalf("expected an error for an unknown scan")
	}
}

func u8(v uint8) *uint8 { return &v }

func testConfig() *daq.Config {
	return &daq.Config{
		Modules: map[string]daq.ModuleConfig{
			"module_0": {
				TX:          "TX0",
				RX:          "RX0",
				FIFO:        "SRAM",
				TLU:         "TLU",
				ChipAddress: u8(0),
				Flavor:      "fei4a",
			},
		},
	}
}

func TestDigitalScanRun(t *testing.T) {
	scan := NewDigitalScan()
	scan.Injections = 2

	dut := daq.NewMemDUT()
	run, err := daq.NewRun(testConfig(), dut, scan, daq.WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatalf("could not create run: %+v", err)
	}
	if err := run.Execute(); err != nil {
		t.Fatalf("run failed: %+v", err)
	}
	if got, want := run.Status(), daq.StatusFinished; got != want {
		t.Fatalf("invalid status: got=%q, want=%q", got, want)
	}

	sent, err := dut.Sent("TX0")
	if err != nil {
		t.Fatalf("could not read back tx: %+v", err)
	}
	if len(sent) == 0 {
		t.Fatalf("the scan sent no commands")
	}

	ctx, ok := run.ModuleContext("module_0")
	if !ok {
		t.Fatalf("missing module context")
	}
	if _, ok := ctx.Attr("occupancy"); !ok {
		t.Fatalf("missing occupancy histogram")
	}
}

func TestThresholdScanRun(t *testing.T) {
	scan := NewThresholdScan()
	scan.Injections = 1
	scan.DACStart = 0
	scan.DACStop = 4
	scan.DACStep = 2

	dut := daq.NewMemDUT()
	run, err := daq.NewRun(testConfig(), dut, scan, daq.WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatalf("could not create run: %+v", err)
	}
	if err := run.Execute(); err != nil {
		t.Fatalf("run failed: %+v", err)
	}
	if got, want := run.Status(), daq.StatusFinished; got != want {
		t.Fatalf("invalid status: got=%q, want=%q", got, want)
	}

	ctx, _ := run.ModuleContext("module_0")
	if v, ok := ctx.ScanParameter("PlsrDAC"); !ok || v != 4 {
		t.Fatalf("invalid final scan parameter: got=%v", v)
	}
	if _, ok := ctx.Attr("scurve"); !ok {
		t.Fatalf("missing s-curve histogram")
	}
}

func TestThresholdScanBadRange(t *testing.T) {
	scan := NewThresholdScan()
	scan.DACStep = 0

	dut := daq.NewMemDUT()
	run, err := daq.NewRun(testConfig(), dut, scan, daq.WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatalf("could not create run: %+v", err)
	}
	if err := run.Execute(); err == nil {
		t.Fatalf("expected an error for an invalid sweep")
	}
	if got, want := run.Status(), daq.StatusCrashed; got != want {
		t.Fatalf("invalid status: got=%q, want=%q", got, want)
	}
}
