// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"errors"
	"io"
	"log"
	"testing"
)

func TestClassify(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		f := classify(errors.New("boom"), "m0")
		if f.Kind != KindOther || f.Module != "m0" {
			t.Fatalf("invalid fault: %+v", f)
		}
	})

	t.Run("passthrough", func(t *testing.T) {
		orig := Faultf(KindRxSync, "m1", "loss of lock")
		f := classify(orig, "m0")
		if f != orig {
			t.Fatalf("classification should keep the existing fault: got=%+v", f)
		}
	})

	t.Run("wrapped", func(t *testing.T) {
		orig := Faultf(KindFifo, "m1", "overflow")
		f := classify(errors.New("outer: "+orig.Error()), "m0")
		if f.Kind != KindOther {
			t.Fatalf("string-only wrapping should not classify: %+v", f)
		}
	})
}

func TestKinds(t *testing.T) {
	for _, tc := range []struct {
		kind        Kind
		name        string
		recoverable bool
		known       bool
	}{
		{KindOther, "other", false, false},
		{KindRxSync, "rx-sync", true, true},
		{KindEightbTenb, "8b10b", true, true},
		{KindFifo, "fifo", false, true},
		{KindNoDataTimeout, "no-data-timeout", false, true},
		{KindStopTimeout, "stop-timeout", false, true},
		{KindAnalysis, "analysis", false, true},
		{KindOperator, "operator", false, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.kind.String(); got != tc.name {
				t.Fatalf("invalid name: got=%q, want=%q", got, tc.name)
			}
			if got := tc.kind.recoverable(); got != tc.recoverable {
				t.Fatalf("invalid recoverable: got=%v, want=%v", got, tc.recoverable)
			}
			if got := tc.kind.known(); got != tc.known {
				t.Fatalf("invalid known: got=%v, want=%v", got, tc.known)
			}
		})
	}
}

func TestRecorderOutcome(t *testing.T) {
	msg := log.New(io.Discard, "", 0)

	t.Run("clean", func(t *testing.T) {
		rec := newRecorder(new(abortFlag), nil, false, msg)
		if err := rec.outcome(); err != nil {
			t.Fatalf("clean run should have a nil outcome: %+v", err)
		}
	})

	t.Run("known", func(t *testing.T) {
		rec := newRecorder(new(abortFlag), nil, false, msg)
		rec.handle(Faultf(KindFifo, "m0", "overflow"), "m0")
		var ab *RunAbortedError
		if err := rec.outcome(); !errors.As(err, &ab) {
			t.Fatalf("expected a RunAbortedError, got %+v", err)
		} else if ab.Fault.Kind != KindFifo {
			t.Fatalf("invalid fault in outcome: %+v", ab.Fault)
		}
	})

	t.Run("operator", func(t *testing.T) {
		rec := newRecorder(new(abortFlag), nil, false, msg)
		rec.handle(Faultf(KindOperator, "", "operator request"), "")
		var ab *RunAbortedError
		if err := rec.outcome(); !errors.As(err, &ab) {
			t.Fatalf("expected a RunAbortedError, got %+v", err)
		}
	})

	t.Run("other", func(t *testing.T) {
		rec := newRecorder(new(abortFlag), nil, false, msg)
		cause := errors.New("nil pointer somewhere")
		rec.handle(cause, "m0")
		if err := rec.outcome(); !errors.Is(err, cause) {
			t.Fatalf("unknown causes should propagate unwrapped: got=%+v", err)
		}
	})

	t.Run("first-fault-wins", func(t *testing.T) {
		abort := new(abortFlag)
		rec := newRecorder(abort, nil, false, msg)
		rec.handle(Faultf(KindNoDataTimeout, "m0", "starved"), "m0")
		rec.handle(Faultf(KindFifo, "m1", "overflow"), "m1")
		if !abort.IsSet() {
			t.Fatalf("abort flag should be set")
		}
		if got := len(rec.all()); got != 2 {
			t.Fatalf("invalid number of recorded faults: got=%d, want=2", got)
		}
		var ab *RunAbortedError
		if err := rec.outcome(); !errors.As(err, &ab) {
			t.Fatalf("expected a RunAbortedError, got %+v", err)
		} else if ab.Fault.Kind != KindNoDataTimeout {
			t.Fatalf("outcome should carry the first fault: %+v", ab.Fault)
		}
	})
}

func TestRecorderRetry(t *testing.T) {
	t.Run("recovered-in-place", func(t *testing.T) {
		rdo, dut, abort := newTestReadout(t)
		rec := newRecorder(abort, rdo, true, log.New(io.Discard, "", 0))

		rec.handle(Faultf(KindRxSync, "m0", "loss of lock"), "m0")
		if abort.IsSet() {
			t.Fatalf("recovered fault should not abort the run")
		}
		if got := len(rec.all()); got != 0 {
			t.Fatalf("recovered fault should not be recorded: got=%d faults", got)
		}
		line, err := dut.Line("RX0")
		if err != nil {
			t.Fatalf("could not get rx: %+v", err)
		}
		if got := line.(*memLine).Resets(); got != 1 {
			t.Fatalf("invalid reset count: got=%d, want=1", got)
		}
	})

	t.Run("policy-disabled", func(t *testing.T) {
		rdo, _, abort := newTestReadout(t)
		rec := newRecorder(abort, rdo, false, log.New(io.Discard, "", 0))

		rec.handle(Faultf(KindRxSync, "m0", "loss of lock"), "m0")
		if !abort.IsSet() {
			t.Fatalf("fault should abort with the retry policy disabled")
		}
		if got := len(rec.all()); got != 1 {
			t.Fatalf("invalid number of recorded faults: got=%d, want=1", got)
		}
	})

	t.Run("unrecoverable-kind", func(t *testing.T) {
		rdo, dut, abort := newTestReadout(t)
		rec := newRecorder(abort, rdo, true, log.New(io.Discard, "", 0))

		rec.handle(Faultf(KindFifo, "m0", "overflow"), "m0")
		if !abort.IsSet() {
			t.Fatalf("fifo fault should abort even with the retry policy on")
		}
		line, err := dut.Line("RX0")
		if err != nil {
			t.Fatalf("could not get rx: %+v", err)
		}
		if got := line.(*memLine).Resets(); got != 0 {
			t.Fatalf("fifo fault should not touch the receivers: resets=%d", got)
		}
	})
}
