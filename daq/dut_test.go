// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"errors"
	"testing"
)

func TestBroadcastHandle(t *testing.T) {
	dut := NewMemDUT()
	var lines []Line
	for _, name := range []string{"RX0", "RX1", "RX2"} {
		line, err := dut.Line(name)
		if err != nil {
			t.Fatalf("could not get %s: %+v", name, err)
		}
		lines = append(lines, line)
	}
	h := NewBroadcastHandle(lines...)

	t.Run("write-all", func(t *testing.T) {
		if err := h.WriteAll("EN", 1); err != nil {
			t.Fatalf("could not write: %+v", err)
		}
		for _, line := range lines {
			v, err := line.Read("EN")
			if err != nil {
				t.Fatalf("could not read back: %+v", err)
			}
			if v != 1 {
				t.Fatalf("%s: invalid value: got=%d, want=1", line.Name(), v)
			}
		}
	})

	t.Run("read-checked", func(t *testing.T) {
		v, err := h.ReadChecked("EN")
		if err != nil {
			t.Fatalf("could not read: %+v", err)
		}
		if v != 1 {
			t.Fatalf("invalid value: got=%d, want=1", v)
		}
	})

	t.Run("inconsistent-read", func(t *testing.T) {
		if err := lines[2].Write("EN", 0); err != nil {
			t.Fatalf("could not write: %+v", err)
		}
		_, err := h.ReadChecked("EN")
		if !errors.Is(err, ErrInconsistentRead) {
			t.Fatalf("expected ErrInconsistentRead, got %+v", err)
		}
	})

	t.Run("reset-all", func(t *testing.T) {
		if err := h.ResetAll(); err != nil {
			t.Fatalf("could not reset: %+v", err)
		}
		for _, line := range lines {
			v, err := line.Read("EN")
			if err != nil {
				t.Fatalf("could not read back: %+v", err)
			}
			if v != 0 {
				t.Fatalf("%s: reset should clear the register file", line.Name())
			}
		}
	})

	t.Run("empty", func(t *testing.T) {
		if _, err := NewBroadcastHandle().ReadChecked("EN"); err == nil {
			t.Fatalf("expected an error for an empty handle")
		}
	})
}
