// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"errors"
	"testing"
)

func u8(v uint8) *uint8 { return &v }

func modCfg(tx string, addr *uint8) ModuleConfig {
	return ModuleConfig{
		TX:          tx,
		RX:          "RX-" + tx,
		FIFO:        "SRAM",
		TLU:         "TLU",
		ChipAddress: addr,
		Flavor:      "fei4a",
	}
}

func TestParseConfig(t *testing.T) {
	raw := []byte(`
modules:
  module_0:
    tx: TX0
    rx: RX0
    fifo: SRAM
    tlu: TLU
    tdc: TDC0
    tx_channel: 0
    rx_channel: 4
    tdc_channel: 1
    chip_address: 2
    flavor: fei4b
    configuration: module_0/config
run:
  broadcast_commands: true
  threaded_scan: true
  reset_rx_on_error: true
  comment: test beam
  scan_parameters:
    PlsrDAC: 40
`)
	cfg, err := ParseConfig(raw)
	if err != nil {
		t.Fatalf("could not parse config: %+v", err)
	}
	mod, ok := cfg.Modules["module_0"]
	if !ok {
		t.Fatalf("missing module_0")
	}
	if mod.TX != "TX0" || mod.RX != "RX0" || mod.FIFO != "SRAM" || mod.TLU != "TLU" {
		t.Fatalf("invalid drivers: %+v", mod)
	}
	if mod.ChipAddress == nil || *mod.ChipAddress != 2 {
		t.Fatalf("invalid chip address: %+v", mod.ChipAddress)
	}
	if mod.TdcChannel == nil || *mod.TdcChannel != 1 {
		t.Fatalf("invalid tdc channel: %+v", mod.TdcChannel)
	}
	if !cfg.Run.BroadcastCommands || !cfg.Run.ThreadedScan || !cfg.Run.ResetRxOnError {
		t.Fatalf("invalid run options: %+v", cfg.Run)
	}
	if cfg.Run.ScanParameters["PlsrDAC"] != 40 {
		t.Fatalf("invalid scan parameters: %+v", cfg.Run.ScanParameters)
	}
}

func TestNewRegistry(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		cfg := &Config{Modules: map[string]ModuleConfig{
			"m1": modCfg("TX0", u8(1)),
			"m0": modCfg("TX0", u8(0)),
			"m2": modCfg("TX1", u8(0)),
		}}
		reg, err := NewRegistry(cfg)
		if err != nil {
			t.Fatalf("could not build registry: %+v", err)
		}
		mods := reg.Modules()
		if len(mods) != 3 {
			t.Fatalf("invalid number of modules: got=%d, want=3", len(mods))
		}
		// Stable id order.
		for i, want := range []string{"m0", "m1", "m2"} {
			if mods[i].ID != want {
				t.Fatalf("invalid order: got=%q, want=%q", mods[i].ID, want)
			}
		}
	})

	t.Run("missing-driver", func(t *testing.T) {
		cfg := &Config{Modules: map[string]ModuleConfig{
			"m0": {TX: "TX0", RX: "RX0", TLU: "TLU", Flavor: "fei4a"}, // no fifo
		}}
		_, err := NewRegistry(cfg)
		var md *MissingDriverError
		if !errors.As(err, &md) {
			t.Fatalf("expected a MissingDriverError, got %+v", err)
		}
		if md.Module != "m0" || md.Driver != "FIFO" {
			t.Fatalf("invalid error payload: %+v", md)
		}
	})

	t.Run("tdc-optional", func(t *testing.T) {
		cfg := &Config{Modules: map[string]ModuleConfig{
			"m0": modCfg("TX0", u8(0)), // no tdc
		}}
		if _, err := NewRegistry(cfg); err != nil {
			t.Fatalf("tdc should be optional: %+v", err)
		}
	})

	t.Run("reserved-name", func(t *testing.T) {
		cfg := &Config{Modules: map[string]ModuleConfig{
			"my-module-group-1": modCfg("TX0", u8(0)),
		}}
		_, err := NewRegistry(cfg)
		if !errors.Is(err, ErrReservedName) {
			t.Fatalf("expected ErrReservedName, got %+v", err)
		}
	})

	t.Run("unknown-flavor", func(t *testing.T) {
		mc := modCfg("TX0", u8(0))
		mc.Flavor = "fei5"
		cfg := &Config{Modules: map[string]ModuleConfig{"m0": mc}}
		if _, err := NewRegistry(cfg); err == nil {
			t.Fatalf("expected an error for an unknown flavor")
		}
	})

	t.Run("empty", func(t *testing.T) {
		if _, err := NewRegistry(&Config{}); err == nil {
			t.Fatalf("expected an error for an empty configuration")
		}
	})
}

func TestDeriveGroups(t *testing.T) {
	t.Run("partition", func(t *testing.T) {
		cfg := &Config{Modules: map[string]ModuleConfig{
			"m0": modCfg("TX0", u8(0)),
			"m1": modCfg("TX0", u8(1)),
			"m2": modCfg("TX1", u8(0)),
		}}
		reg, err := NewRegistry(cfg)
		if err != nil {
			t.Fatalf("could not build registry: %+v", err)
		}
		grps, err := reg.DeriveGroups()
		if err != nil {
			t.Fatalf("could not derive groups: %+v", err)
		}
		if len(grps.Tx) != 2 {
			t.Fatalf("invalid number of tx groups: got=%d, want=2", len(grps.Tx))
		}
		// Every module in exactly one group; group union == registry.
		seen := make(map[string]int)
		for _, g := range grps.Tx {
			for _, mod := range g.Members {
				seen[mod.ID]++
			}
		}
		for _, mod := range reg.Modules() {
			if seen[mod.ID] != 1 {
				t.Fatalf("module %q appears %d times in the partition", mod.ID, seen[mod.ID])
			}
		}
		if got, want := grps.Tx[0].ID(), "module-group@tx=TX0"; got != want {
			t.Fatalf("invalid group id: got=%q, want=%q", got, want)
		}
		if grps.Fifo == nil || len(grps.Fifo.Members) != 3 {
			t.Fatalf("invalid fifo group: %+v", grps.Fifo)
		}
	})

	t.Run("multi-fifo", func(t *testing.T) {
		mc := modCfg("TX1", u8(0))
		mc.FIFO = "SRAM2"
		cfg := &Config{Modules: map[string]ModuleConfig{
			"m0": modCfg("TX0", u8(0)),
			"m1": mc,
		}}
		reg, err := NewRegistry(cfg)
		if err != nil {
			t.Fatalf("could not build registry: %+v", err)
		}
		_, err = reg.DeriveGroups()
		if !errors.Is(err, ErrMultiFifoUnsupported) {
			t.Fatalf("expected ErrMultiFifoUnsupported, got %+v", err)
		}
	})

	t.Run("inconsistent-flavor", func(t *testing.T) {
		mc := modCfg("TX0", u8(1))
		mc.Flavor = "fei4b"
		cfg := &Config{Modules: map[string]ModuleConfig{
			"m0": modCfg("TX0", u8(0)),
			"m1": mc,
		}}
		reg, err := NewRegistry(cfg)
		if err != nil {
			t.Fatalf("could not build registry: %+v", err)
		}
		_, err = reg.DeriveGroups()
		var fe *InconsistentFlavorError
		if !errors.As(err, &fe) {
			t.Fatalf("expected an InconsistentFlavorError, got %+v", err)
		}
	})

	t.Run("duplicate-address", func(t *testing.T) {
		cfg := &Config{Modules: map[string]ModuleConfig{
			"m0": modCfg("TX0", u8(3)),
			"m1": modCfg("TX0", u8(3)),
		}}
		reg, err := NewRegistry(cfg)
		if err != nil {
			t.Fatalf("could not build registry: %+v", err)
		}
		_, err = reg.DeriveGroups()
		var de *DuplicateAddressError
		if !errors.As(err, &de) {
			t.Fatalf("expected a DuplicateAddressError, got %+v", err)
		}
	})

	t.Run("broadcast-needs-lone-module", func(t *testing.T) {
		cfg := &Config{Modules: map[string]ModuleConfig{
			"m0": modCfg("TX0", nil),
			"m1": modCfg("TX0", u8(1)),
		}}
		reg, err := NewRegistry(cfg)
		if err != nil {
			t.Fatalf("could not build registry: %+v", err)
		}
		_, err = reg.DeriveGroups()
		var de *DuplicateAddressError
		if !errors.As(err, &de) {
			t.Fatalf("expected a DuplicateAddressError, got %+v", err)
		}
	})

	t.Run("broadcast-alone-ok", func(t *testing.T) {
		cfg := &Config{Modules: map[string]ModuleConfig{
			"m0": modCfg("TX0", nil),
		}}
		reg, err := NewRegistry(cfg)
		if err != nil {
			t.Fatalf("could not build registry: %+v", err)
		}
		if _, err := reg.DeriveGroups(); err != nil {
			t.Fatalf("broadcast module alone on its tx should derive: %+v", err)
		}
	})
}
