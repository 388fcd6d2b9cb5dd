// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"
)

func newTestReadout(t *testing.T) (*FifoReadout, *MemDUT, *abortFlag) {
	t.Helper()
	dut := NewMemDUT()
	fifo, err := dut.Fifo("SRAM")
	if err != nil {
		t.Fatalf("could not get fifo: %+v", err)
	}
	rx0, err := dut.Line("RX0")
	if err != nil {
		t.Fatalf("could not get rx: %+v", err)
	}
	rx1, err := dut.Line("RX1")
	if err != nil {
		t.Fatalf("could not get rx: %+v", err)
	}
	abort := new(abortFlag)
	rdo := NewFifoReadout(fifo, NewBroadcastHandle(rx0, rx1), abort, log.New(io.Discard, "", 0))
	rdo.interval = 2 * time.Millisecond
	return rdo, dut, abort
}

func TestReadoutSingleReader(t *testing.T) {
	rdo, _, _ := newTestReadout(t)

	const n = 8
	var (
		ready sync.WaitGroup
		done  sync.WaitGroup
		gate  = make(chan struct{})
		errs  = make(chan error, 2*n)
	)
	ready.Add(n)
	done.Add(n)
	for i := 0; i < n; i++ {
		handle := fmt.Sprintf("module_%d", i)
		go func() {
			defer done.Done()
			if err := rdo.Start(handle, StartOptions{}); err != nil {
				errs <- err
			}
			ready.Done()
			<-gate
			if err := rdo.Stop(handle, time.Second); err != nil {
				errs <- err
			}
		}()
	}
	ready.Wait()
	if !rdo.IsRunning() {
		t.Fatalf("reader should be running with %d active handles", n)
	}
	close(gate)
	done.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("unexpected error: %+v", err)
	}

	if got, want := rdo.Starts(), 1; got != want {
		t.Fatalf("invalid number of physical starts: got=%d, want=%d", got, want)
	}
	if rdo.IsRunning() {
		t.Fatalf("reader still running after last stop")
	}
}

func TestReadoutRedundantStart(t *testing.T) {
	rdo, _, _ := newTestReadout(t)

	if err := rdo.Start("m0", StartOptions{}); err != nil {
		t.Fatalf("could not start: %+v", err)
	}
	if err := rdo.Start("m0", StartOptions{}); err != nil {
		t.Fatalf("redundant start should coalesce: %+v", err)
	}
	if got, want := rdo.Starts(), 1; got != want {
		t.Fatalf("invalid number of physical starts: got=%d, want=%d", got, want)
	}
	if err := rdo.Stop("m0", time.Second); err != nil {
		t.Fatalf("could not stop: %+v", err)
	}
	if rdo.IsRunning() {
		t.Fatalf("reader still running after stop")
	}
}

func TestReadoutInvalidHandle(t *testing.T) {
	rdo, _, _ := newTestReadout(t)

	err := rdo.Stop("ghost", time.Second)
	var ih *InvalidHandleError
	if !errors.As(err, &ih) {
		t.Fatalf("expected an InvalidHandleError, got %+v", err)
	}
	if ih.Handle != "ghost" {
		t.Fatalf("invalid error payload: %+v", ih)
	}
}

func TestReadoutDataFlow(t *testing.T) {
	rdo, dut, _ := newTestReadout(t)

	var (
		mu    sync.Mutex
		words []uint32
	)
	rdo.SetCallback(func(b Batch) {
		mu.Lock()
		words = append(words, b.Words...)
		mu.Unlock()
	})

	if err := rdo.Start("m0", StartOptions{ResetRx: true, ResetFifo: true}); err != nil {
		t.Fatalf("could not start: %+v", err)
	}
	if err := dut.PushData("SRAM", []uint32{1, 2, 3}); err != nil {
		t.Fatalf("could not push data: %+v", err)
	}
	// The final drain on stop picks up whatever the ticker missed.
	if err := dut.PushData("SRAM", []uint32{4}); err != nil {
		t.Fatalf("could not push data: %+v", err)
	}
	if err := rdo.Stop("m0", time.Second); err != nil {
		t.Fatalf("could not stop: %+v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(words) != 4 {
		t.Fatalf("invalid words: got=%v, want 4 words", words)
	}
	if got := rdo.Words(); got != 4 {
		t.Fatalf("invalid word count: got=%d, want=4", got)
	}
}

func TestReadoutNoDataTimeout(t *testing.T) {
	rdo, _, _ := newTestReadout(t)

	faults := make(chan error, 4)
	rdo.SetErrback(func(err error) { faults <- err })

	err := rdo.Start("m0", StartOptions{NoDataTimeout: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("could not start: %+v", err)
	}
	select {
	case err := <-faults:
		var f *Fault
		if !errors.As(err, &f) || f.Kind != KindNoDataTimeout {
			t.Fatalf("expected a no-data-timeout fault, got %+v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("no fault within 1s")
	}
	if err := rdo.Stop("m0", time.Second); err != nil {
		t.Fatalf("could not stop: %+v", err)
	}
}

func TestReadoutFifoFault(t *testing.T) {
	rdo, dut, _ := newTestReadout(t)

	faults := make(chan error, 4)
	rdo.SetErrback(func(err error) { faults <- err })

	if err := rdo.Start("m0", StartOptions{}); err != nil {
		t.Fatalf("could not start: %+v", err)
	}
	if err := dut.FailNextRead("SRAM", errors.New("bus error")); err != nil {
		t.Fatalf("could not inject read failure: %+v", err)
	}
	select {
	case err := <-faults:
		var f *Fault
		if !errors.As(err, &f) || f.Kind != KindFifo {
			t.Fatalf("expected a fifo fault, got %+v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("no fault within 1s")
	}
	if err := rdo.Stop("m0", time.Second); err != nil {
		t.Fatalf("could not stop: %+v", err)
	}
}

func TestReadoutStopDuringFaultStorm(t *testing.T) {
	rdo, dut, _ := newTestReadout(t)

	// The errback takes the coordinator lock (as the run recorder
	// does), and re-arms the fault so the reader keeps failing on
	// every tick. A clean stop must not wait out its drain timeout
	// just because faults are in flight.
	rdo.SetErrback(func(err error) {
		_ = dut.FailNextRead("SRAM", errors.New("readout glitch"))
		rdo.interrupt()
	})

	if err := rdo.Start("m0", StartOptions{}); err != nil {
		t.Fatalf("could not start: %+v", err)
	}
	if err := dut.FailNextRead("SRAM", errors.New("readout glitch")); err != nil {
		t.Fatalf("could not inject read failure: %+v", err)
	}
	time.Sleep(30 * time.Millisecond)

	start := time.Now()
	if err := rdo.Stop("m0", time.Second); err != nil {
		t.Fatalf("could not stop during fault delivery: %+v", err)
	}
	if took := time.Since(start); took > 500*time.Millisecond {
		t.Fatalf("stop degraded into a drain timeout: took %v", took)
	}
	if rdo.IsRunning() {
		t.Fatalf("reader still running after stop")
	}
}

func TestReadoutForceStop(t *testing.T) {
	rdo, _, abort := newTestReadout(t)

	if err := rdo.Start("m0", StartOptions{}); err != nil {
		t.Fatalf("could not start: %+v", err)
	}
	abort.Set()
	rdo.ForceStop()
	if rdo.IsRunning() {
		t.Fatalf("reader still running after force stop")
	}
	// The handle set was cleared too.
	err := rdo.Stop("m0", time.Second)
	var ih *InvalidHandleError
	if !errors.As(err, &ih) {
		t.Fatalf("expected an InvalidHandleError after force stop, got %+v", err)
	}
}

func TestReadoutResetRx(t *testing.T) {
	rdo, dut, _ := newTestReadout(t)

	if err := rdo.ResetRx(); err != nil {
		t.Fatalf("could not reset receivers: %+v", err)
	}
	for _, name := range []string{"RX0", "RX1"} {
		line, err := dut.Line(name)
		if err != nil {
			t.Fatalf("could not get %s: %+v", name, err)
		}
		if got := line.(*memLine).Resets(); got != 1 {
			t.Fatalf("%s: invalid reset count: got=%d, want=1", name, got)
		}
	}
}
