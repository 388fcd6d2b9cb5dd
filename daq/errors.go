// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

// Kind classifies a readout or analysis fault.
type Kind int

// Fault kinds. RxSync and EightbTenb are the receiver-level faults
// the retry policy may recover in place.
const (
	KindOther Kind = iota
	KindRxSync
	KindEightbTenb
	KindFifo
	KindNoDataTimeout
	KindStopTimeout
	KindAnalysis
	KindOperator
)

func (k Kind) String() string {
	switch k {
	case KindOther:
		return "other"
	case KindRxSync:
		return "rx-sync"
	case KindEightbTenb:
		return "8b10b"
	case KindFifo:
		return "fifo"
	case KindNoDataTimeout:
		return "no-data-timeout"
	case KindStopTimeout:
		return "stop-timeout"
	case KindAnalysis:
		return "analysis"
	case KindOperator:
		return "operator"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// recoverable reports whether the retry policy may handle the fault
// in place by resynchronizing the receivers.
func (k Kind) recoverable() bool {
	return k == KindRxSync || k == KindEightbTenb
}

// known reports whether the kind belongs to the expected fault
// taxonomy. Unknown causes propagate unwrapped at teardown.
func (k Kind) known() bool { return k != KindOther }

// Fault is a classified error raised during a run, tagged with the
// module (or group) it came from.
type Fault struct {
	Kind   Kind
	Module string
	Cause  error
}

func (f *Fault) Error() string {
	if f.Module == "" {
		return fmt.Sprintf("daq: %s fault: %v", f.Kind, f.Cause)
	}
	return fmt.Sprintf("daq: %s: %s fault: %v", f.Module, f.Kind, f.Cause)
}

func (f *Fault) Unwrap() error { return f.Cause }

// Faultf builds a classified fault from a format string.
func Faultf(kind Kind, module, format string, args ...interface{}) *Fault {
	return &Fault{Kind: kind, Module: module, Cause: fmt.Errorf(format, args...)}
}

// classify wraps an arbitrary error into a Fault. Errors that already
// carry a Fault in their chain keep their classification.
func classify(err error, module string) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return &Fault{Kind: KindOther, Module: module, Cause: err}
}

// RunAbortedError is the terminal error of a run stopped by a known
// fault kind. Unknown causes are returned as-is instead.
type RunAbortedError struct {
	Fault *Fault
}

func (e *RunAbortedError) Error() string {
	return fmt.Sprintf("daq: run aborted: %v", e.Fault)
}

func (e *RunAbortedError) Unwrap() error { return e.Fault }

// abortFlag is the run-wide abort latch. Once set it stays set.
type abortFlag struct {
	mu  sync.Mutex
	set bool
}

func (a *abortFlag) Set() {
	a.mu.Lock()
	a.set = true
	a.mu.Unlock()
}

func (a *abortFlag) IsSet() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.set
}

// recorder collects faults from all run goroutines. The first fault
// that is not recovered in place aborts the run; later faults are
// queued for the log but the first one decides the outcome.
type recorder struct {
	mu     sync.Mutex
	faults []*Fault

	abort          *abortFlag
	rdo            *FifoReadout
	resetRxOnError bool
	msg            *log.Logger
}

func newRecorder(abort *abortFlag, rdo *FifoReadout, resetRx bool, msg *log.Logger) *recorder {
	return &recorder{
		abort:          abort,
		rdo:            rdo,
		resetRxOnError: resetRx,
		msg:            msg,
	}
}

// handle applies the retry policy to a fault. Receiver-level faults
// are recovered in place when the policy allows; everything else is
// recorded and aborts the run.
func (rec *recorder) handle(err error, module string) {
	f := classify(err, module)
	if rec.resetRxOnError && f.Kind.recoverable() && rec.rdo != nil {
		rec.msg.Printf("%s: recovering %s fault in place: %v", f.Module, f.Kind, f.Cause)
		rerr := rec.rdo.ResetRx()
		if rerr == nil {
			return
		}
		rec.msg.Printf("could not reset receivers: %v", rerr)
	}
	rec.record(f)
}

// record queues a fault and aborts the run.
func (rec *recorder) record(f *Fault) {
	rec.mu.Lock()
	rec.faults = append(rec.faults, f)
	n := len(rec.faults)
	rec.mu.Unlock()

	if n == 1 {
		rec.msg.Printf("aborting run: %v", f)
	} else {
		rec.msg.Printf("additional fault (ignored for outcome): %v", f)
	}
	rec.abort.Set()
	if rec.rdo != nil {
		rec.rdo.interrupt()
	}
}

// first returns the fault that decided the outcome, if any.
func (rec *recorder) first() *Fault {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.faults) == 0 {
		return nil
	}
	return rec.faults[0]
}

// all returns every recorded fault, in arrival order.
func (rec *recorder) all() []*Fault {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]*Fault, len(rec.faults))
	copy(out, rec.faults)
	return out
}

// outcome maps the recorded faults to the terminal run error: nil
// when clean, RunAbortedError for known kinds, the original cause
// chain for unknown ones.
func (rec *recorder) outcome() error {
	f := rec.first()
	switch {
	case f == nil:
		return nil
	case f.Kind.known():
		return &RunAbortedError{Fault: f}
	default:
		return f.Cause
	}
}
