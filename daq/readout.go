// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultDrainTimeout is the grace period the last stopper grants the
// reader loop to drain the FIFO.
const DefaultDrainTimeout = 10 * time.Second

const defaultReadInterval = 50 * time.Millisecond

// InvalidHandleError reports a readout stop without a matching start.
type InvalidHandleError struct {
	Handle string
}

func (e *InvalidHandleError) Error() string {
	return fmt.Sprintf("daq: readout handle %q is not active", e.Handle)
}

// Batch is one drained slice of raw FIFO words with its time window.
type Batch struct {
	Words []uint32
	Start time.Time
	Stop  time.Time
}

// DataFunc consumes drained batches.
type DataFunc func(b Batch)

// StartOptions tune the physical reader start performed by the first
// registered handle.
type StartOptions struct {
	ResetRx       bool
	ResetFifo     bool
	NoDataTimeout time.Duration
}

// FifoReadout owns the single physical FIFO reader and coordinates
// its lifetime across concurrent scan units. Handles register with
// Start and deregister with Stop; the physical reader runs exactly
// while the handle set is non-empty.
type FifoReadout struct {
	fifo  Fifo
	rx    *BroadcastHandle
	abort *abortFlag
	msg   *log.Logger

	callback DataFunc
	errback  func(error)
	interval time.Duration

	mu       sync.Mutex
	cond     *sync.Cond
	active   map[string]struct{}
	running  bool
	stopping bool
	starts   int
	words    atomic.Int64

	done     chan int
	quit     chan struct{}
	quitOnce *sync.Once
}

// NewFifoReadout returns an idle readout coordinator over the shared
// FIFO and the receiver lines of its modules.
func NewFifoReadout(fifo Fifo, rx *BroadcastHandle, abort *abortFlag, msg *log.Logger) *FifoReadout {
	rdo := &FifoReadout{
		fifo:     fifo,
		rx:       rx,
		abort:    abort,
		msg:      msg,
		interval: defaultReadInterval,
		active:   make(map[string]struct{}),
	}
	rdo.cond = sync.NewCond(&rdo.mu)
	return rdo
}

// SetCallback installs the batch consumer. It must be set before the
// first Start.
func (rdo *FifoReadout) SetCallback(fn DataFunc) { rdo.callback = fn }

// SetErrback installs the reader-fault consumer. It must be set
// before the first Start.
func (rdo *FifoReadout) SetErrback(fn func(error)) { rdo.errback = fn }

// Start registers a handle. The first registration flips the reader
// idle to running, resetting receivers and buffer first per opts.
// Registering an already-active handle is a no-op.
func (rdo *FifoReadout) Start(handle string, opts StartOptions) error {
	rdo.mu.Lock()
	defer rdo.mu.Unlock()

	if _, dup := rdo.active[handle]; dup {
		return nil
	}
	rdo.active[handle] = struct{}{}
	for rdo.stopping {
		rdo.cond.Wait()
	}
	if rdo.running {
		return nil
	}

	if err := rdo.startPhysical(opts); err != nil {
		delete(rdo.active, handle)
		return err
	}
	rdo.running = true
	rdo.starts++
	rdo.cond.Broadcast()
	return nil
}

// Stop deregisters a handle. The last deregistration flips the
// reader running to idle, draining for at most timeout; earlier
// stoppers block until that flip (or the run abort). Stopping a
// handle that is not active is an error.
func (rdo *FifoReadout) Stop(handle string, timeout time.Duration) error {
	rdo.mu.Lock()

	if _, ok := rdo.active[handle]; !ok {
		rdo.mu.Unlock()
		return &InvalidHandleError{Handle: handle}
	}
	delete(rdo.active, handle)

	if len(rdo.active) > 0 || rdo.stopping {
		defer rdo.mu.Unlock()
		for rdo.running && !rdo.abort.IsSet() {
			rdo.cond.Wait()
		}
		return nil
	}

	// Last one out. The drain handshake runs outside the lock: the
	// reader loop delivers its faults through the errback, which
	// takes the lock, and must stay able to do so while the stopper
	// waits. New starts block on the stopping flag instead.
	rdo.stopping = true
	rdo.mu.Unlock()

	err := rdo.stopPhysical(timeout)

	rdo.mu.Lock()
	rdo.stopping = false
	rdo.running = false
	rdo.cond.Broadcast()
	rdo.mu.Unlock()
	return err
}

// IsRunning reports whether the physical reader is active.
func (rdo *FifoReadout) IsRunning() bool {
	rdo.mu.Lock()
	defer rdo.mu.Unlock()
	return rdo.running
}

// Starts returns how many times the physical reader was started.
func (rdo *FifoReadout) Starts() int {
	rdo.mu.Lock()
	defer rdo.mu.Unlock()
	return rdo.starts
}

// Words returns the total number of words drained so far.
func (rdo *FifoReadout) Words() int64 { return rdo.words.Load() }

// ResetRx resynchronizes all receiver lines in place, without
// touching the handle set or the reader loop.
func (rdo *FifoReadout) ResetRx() error {
	return rdo.rx.ResetAll()
}

// ForceStop kills the reader loop without grace and clears the
// handle set. It is the abort-path teardown.
func (rdo *FifoReadout) ForceStop() {
	rdo.mu.Lock()
	defer rdo.mu.Unlock()
	if rdo.running {
		rdo.closeQuit()
		rdo.running = false
	}
	rdo.active = make(map[string]struct{})
	rdo.cond.Broadcast()
}

// interrupt wakes every goroutine blocked on the coordinator so it
// can observe the abort flag.
func (rdo *FifoReadout) interrupt() {
	rdo.mu.Lock()
	rdo.cond.Broadcast()
	rdo.mu.Unlock()
}

// startPhysical spawns the reader loop. Callers hold rdo.mu.
func (rdo *FifoReadout) startPhysical(opts StartOptions) error {
	if opts.ResetRx {
		if err := rdo.rx.ResetAll(); err != nil {
			return fmt.Errorf("daq: could not reset receivers: %w", err)
		}
	}
	if opts.ResetFifo {
		if err := rdo.fifo.Reset(); err != nil {
			return fmt.Errorf("daq: could not reset fifo: %w", err)
		}
	}
	rdo.done = make(chan int)
	rdo.quit = make(chan struct{})
	rdo.quitOnce = new(sync.Once)
	go rdo.loop(opts.NoDataTimeout)
	return nil
}

// stopPhysical hands the reader loop its shutdown and waits for the
// final drain. The caller set rdo.stopping, so the loop channels
// cannot be replaced underneath.
func (rdo *FifoReadout) stopPhysical(timeout time.Duration) error {
	if timeout <= 0 {
		rdo.closeQuit()
		return nil
	}
	tck := time.NewTimer(timeout)
	defer tck.Stop()
	select {
	case rdo.done <- 1:
		<-rdo.done
		return nil
	case <-rdo.quit:
		// ForceStop already killed the loop.
		return nil
	case <-tck.C:
		rdo.closeQuit()
		return &Fault{
			Kind:  KindStopTimeout,
			Cause: fmt.Errorf("daq: reader loop did not drain within %v", timeout),
		}
	}
}

func (rdo *FifoReadout) closeQuit() {
	rdo.quitOnce.Do(func() { close(rdo.quit) })
}

func (rdo *FifoReadout) loop(noData time.Duration) {
	tck := time.NewTicker(rdo.interval)
	defer tck.Stop()

	last := time.Now()
	starved := false
	for {
		select {
		case <-rdo.quit:
			return
		case <-rdo.done:
			if _, err := rdo.readOnce(&last); err != nil {
				rdo.msg.Printf("final drain failed: %v", err)
			}
			rdo.done <- 1
			return
		case <-tck.C:
			n, err := rdo.readOnce(&last)
			if err != nil {
				rdo.fail(err)
				continue
			}
			if n > 0 {
				starved = false
				continue
			}
			if noData > 0 && !starved && time.Since(last) > noData {
				starved = true
				rdo.fail(&Fault{
					Kind:  KindNoDataTimeout,
					Cause: fmt.Errorf("daq: no data for more than %v", noData),
				})
			}
		}
	}
}

func (rdo *FifoReadout) fail(err error) {
	if rdo.errback != nil {
		rdo.errback(err)
		return
	}
	rdo.msg.Printf("reader fault: %v", err)
}

// readOnce drains the FIFO once and forwards the batch.
func (rdo *FifoReadout) readOnce(last *time.Time) (int, error) {
	words, err := rdo.fifo.ReadData()
	now := time.Now()
	if err != nil {
		var f *Fault
		if errors.As(err, &f) {
			return 0, f
		}
		return 0, &Fault{Kind: KindFifo, Cause: err}
	}
	if len(words) == 0 {
		return 0, nil
	}
	if rdo.callback != nil {
		rdo.callback(Batch{Words: words, Start: *last, Stop: now})
	}
	*last = now
	rdo.words.Add(int64(len(words)))
	return len(words), nil
}
