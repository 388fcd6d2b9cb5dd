// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ljthink/pyBAR/fei4"
)

// Phase is the lifecycle state of one module or broadcast group.
type Phase int

// Lifecycle phases, in order of a clean run.
const (
	PhaseUnconfigured Phase = iota
	PhaseConfiguring
	PhaseRunMode
	PhaseScanning
	PhaseConfMode
	PhaseRestored
	PhaseAnalyzed
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseUnconfigured:
		return "unconfigured"
	case PhaseConfiguring:
		return "configuring"
	case PhaseRunMode:
		return "run-mode"
	case PhaseScanning:
		return "scanning"
	case PhaseConfMode:
		return "conf-mode"
	case PhaseRestored:
		return "restored"
	case PhaseAnalyzed:
		return "analyzed"
	case PhaseAborted:
		return "aborted"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Status is the terminal state of a run.
type Status string

// Terminal run statuses.
const (
	StatusRunning  Status = "RUNNING"
	StatusFinished Status = "FINISHED"
	StatusAborted  Status = "ABORTED"
	StatusCrashed  Status = "CRASHED"
)

// Scanner is one scan: its chip configuration, its measurement loop
// and its offline analysis. Scan receives either per-module contexts
// or per-group contexts depending on the broadcast strategy.
type Scanner interface {
	Configure(ctx *ScanContext) error
	Scan(ctx *ScanContext) error
	Analyze(ctx *ScanContext) error
}

// ScanContext is the per-unit handle a Scanner works through: the
// registers and command line of one module or of one broadcast
// group, plus readout access and the scan-parameter table.
type ScanContext struct {
	run    *Run
	id     string
	mod    *Module       // nil for group contexts
	grp    *TxGroup      // nil for module contexts
	reg    *fei4.Registers
	utils  *RegUtils
	sink   Sink // nil for group contexts
	params *ScanParams
	txMask uint32

	mu     sync.Mutex
	attrs  map[string]interface{}
	phases []Phase
}

// ID returns the module or group id of the context.
func (ctx *ScanContext) ID() string { return ctx.id }

// Module returns the module of a per-module context, or nil.
func (ctx *ScanContext) Module() *Module { return ctx.mod }

// Group returns the group of a per-group context, or nil.
func (ctx *ScanContext) Group() *TxGroup { return ctx.grp }

// Registers returns the register state the context commands.
func (ctx *ScanContext) Registers() *fei4.Registers { return ctx.reg }

// Utils returns the command layer of the context.
func (ctx *ScanContext) Utils() *RegUtils { return ctx.utils }

// Sink returns the raw-data sink of a per-module context, or nil.
func (ctx *ScanContext) Sink() Sink { return ctx.sink }

// Logf logs through the run logger, tagged with the context id.
func (ctx *ScanContext) Logf(format string, args ...interface{}) {
	ctx.run.msg.Printf("%s: %s", ctx.id, fmt.Sprintf(format, args...))
}

// SetScanParameter stores a parameter value. On a group context the
// value also propagates to every member.
func (ctx *ScanContext) SetScanParameter(name string, v interface{}) {
	ctx.params.Set(name, v)
	if ctx.grp != nil {
		for _, mod := range ctx.grp.Members {
			ctx.run.mctx[mod.ID].params.Set(name, v)
		}
	}
}

// ScanParameter returns a parameter value.
func (ctx *ScanContext) ScanParameter(name string) (interface{}, bool) {
	return ctx.params.Get(name)
}

// SetAttr stores a context-local attribute.
func (ctx *ScanContext) SetAttr(name string, v interface{}) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.attrs[name] = v
}

// Attr returns a context-local attribute.
func (ctx *ScanContext) Attr(name string) (interface{}, bool) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	v, ok := ctx.attrs[name]
	return v, ok
}

// Phases returns the lifecycle phases the context went through.
func (ctx *ScanContext) Phases() []Phase {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	out := make([]Phase, len(ctx.phases))
	copy(out, ctx.phases)
	return out
}

func (ctx *ScanContext) setPhase(p Phase) {
	ctx.mu.Lock()
	ctx.phases = append(ctx.phases, p)
	ctx.mu.Unlock()
}

// Aborting reports whether the run-wide abort flag is set. Scans
// should poll it in their measurement loops.
func (ctx *ScanContext) Aborting() bool { return ctx.run.abort.IsSet() }

// Abort records a fault and stops the run.
func (ctx *ScanContext) Abort(err error) {
	ctx.run.rec.handle(err, ctx.id)
}

// StartReadout registers the context with the shared readout.
func (ctx *ScanContext) StartReadout(opts StartOptions) error {
	if opts.NoDataTimeout == 0 {
		opts.NoDataTimeout = ctx.run.cfg.Run.NoDataTimeout
	}
	return ctx.run.rdo.Start(ctx.id, opts)
}

// StopReadout deregisters the context from the shared readout. The
// drain grace is dropped to zero when the run is aborting.
func (ctx *ScanContext) StopReadout() error {
	timeout := ctx.run.drainTimeout()
	if ctx.run.abort.IsSet() {
		timeout = 0
	}
	return ctx.run.rdo.Stop(ctx.id, timeout)
}

// Readout brackets fn between StartReadout and StopReadout, stopping
// on every exit path.
func (ctx *ScanContext) Readout(fn func() error) error {
	err := ctx.StartReadout(StartOptions{ResetRx: true, ResetFifo: true})
	if err != nil {
		return err
	}
	err = fn()
	serr := ctx.StopReadout()
	if err != nil {
		return err
	}
	return serr
}

// selectTx routes the command line output to the context's modules.
func (ctx *ScanContext) selectTx() error {
	if err := ctx.utils.tx.Write("OUTPUT_ENABLE", ctx.txMask); err != nil {
		return fmt.Errorf("daq: could not enable tx output: %w", err)
	}
	return nil
}

// SinkFactory builds the raw-data sink of one module.
type SinkFactory func(mod *Module) (Sink, error)

// RegisterLoader seeds the register state of one module before its
// first snapshot, e.g. from the configuration database.
type RegisterLoader func(mod *Module, reg *fei4.Registers) error

// RunOption configures a Run.
type RunOption func(r *Run)

// WithLogger sets the run logger.
func WithLogger(msg *log.Logger) RunOption {
	return func(r *Run) { r.msg = msg }
}

// WithRunNumber sets the run number.
func WithRunNumber(n int) RunOption {
	return func(r *Run) { r.number = n }
}

// WithSinkFactory sets how per-module sinks are built. The default
// keeps everything in memory.
func WithSinkFactory(fn SinkFactory) RunOption {
	return func(r *Run) { r.sinks = fn }
}

// WithRegisterLoader sets how per-module register states are seeded.
// The default starts every module from its power-up values.
func WithRegisterLoader(fn RegisterLoader) RunOption {
	return func(r *Run) { r.loader = fn }
}

// Run executes one Scanner over the configured modules.
type Run struct {
	cfg    *Config
	reg    *Registry
	grps   *Groups
	dut    DUT
	scnr   Scanner
	msg    *log.Logger
	sinks  SinkFactory
	loader RegisterLoader

	number int
	abort  *abortFlag
	rdo    *FifoReadout
	rec    *recorder
	router *Router

	mctx map[string]*ScanContext
	gctx map[string]*ScanContext

	mu     sync.Mutex
	status Status
}

// NewRun validates the configuration, derives the run topology and
// builds the per-module and per-group scan contexts.
func NewRun(cfg *Config, dut DUT, scnr Scanner, opts ...RunOption) (*Run, error) {
	reg, err := NewRegistry(cfg)
	if err != nil {
		return nil, err
	}
	grps, err := reg.DeriveGroups()
	if err != nil {
		return nil, err
	}

	r := &Run{
		cfg:    cfg,
		reg:    reg,
		grps:   grps,
		dut:    dut,
		scnr:   scnr,
		msg:    log.New(os.Stdout, "daq: ", 0),
		sinks:  func(*Module) (Sink, error) { return NewBufferSink(), nil },
		abort:  new(abortFlag),
		router: NewRouter(),
		mctx:   make(map[string]*ScanContext),
		gctx:   make(map[string]*ScanContext),
		status: StatusRunning,
	}
	for _, opt := range opts {
		opt(r)
	}

	fifo, err := dut.Fifo(grps.Fifo.FIFO)
	if err != nil {
		return nil, err
	}
	var rxs []Line
	for _, mod := range reg.Modules() {
		rx, err := dut.Line(mod.RX)
		if err != nil {
			return nil, err
		}
		rxs = append(rxs, rx)
	}
	r.rdo = NewFifoReadout(fifo, NewBroadcastHandle(rxs...), r.abort, r.msg)
	r.rec = newRecorder(r.abort, r.rdo, cfg.Run.ResetRxOnError, r.msg)
	r.rdo.SetCallback(func(b Batch) {
		if err := r.router.Route(b, false, false); err != nil {
			r.rec.handle(err, "router")
		}
	})
	r.rdo.SetErrback(func(err error) {
		r.rec.handle(err, grps.Fifo.FIFO)
	})

	for _, mod := range reg.Modules() {
		ctx, err := r.newModuleContext(mod)
		if err != nil {
			return nil, err
		}
		r.mctx[mod.ID] = ctx
	}
	for _, g := range grps.Tx {
		ctx, err := r.newGroupContext(g)
		if err != nil {
			return nil, err
		}
		r.gctx[g.ID()] = ctx
	}
	return r, nil
}

func (r *Run) newModuleContext(mod *Module) (*ScanContext, error) {
	regs, err := fei4.NewRegisters(mod.Flavor, mod.ChipAddress)
	if err != nil {
		return nil, fmt.Errorf("daq: module %q: %w", mod.ID, err)
	}
	if r.loader != nil {
		if err := r.loader(mod, regs); err != nil {
			return nil, fmt.Errorf("daq: could not load configuration of module %q: %w", mod.ID, err)
		}
	}
	tx, err := r.dut.Tx(mod.TX)
	if err != nil {
		return nil, err
	}
	sink, err := r.sinks(mod)
	if err != nil {
		return nil, fmt.Errorf("daq: module %q: %w", mod.ID, err)
	}
	ctx := &ScanContext{
		run:    r,
		id:     mod.ID,
		mod:    mod,
		reg:    regs,
		utils:  NewRegUtils(tx, regs),
		sink:   sink,
		params: NewScanParams(r.cfg.Run.ScanParameters),
		txMask: 1 << uint(mod.TxChannel),
		attrs:  make(map[string]interface{}),
		phases: []Phase{PhaseUnconfigured},
	}
	r.router.AddModule(mod, sink, ctx.params.Snapshot)
	return ctx, nil
}

func (r *Run) newGroupContext(g *TxGroup) (*ScanContext, error) {
	regs, err := fei4.NewRegisters(g.Flavor, nil)
	if err != nil {
		return nil, fmt.Errorf("daq: group %q: %w", g.ID(), err)
	}
	tx, err := r.dut.Tx(g.TX)
	if err != nil {
		return nil, err
	}
	var mask uint32
	for _, mod := range g.Members {
		mask |= 1 << uint(mod.TxChannel)
	}
	return &ScanContext{
		run:    r,
		id:     g.ID(),
		grp:    g,
		reg:    regs,
		utils:  NewRegUtils(tx, regs),
		params: NewScanParams(r.cfg.Run.ScanParameters),
		txMask: mask,
		attrs:  make(map[string]interface{}),
		phases: []Phase{PhaseUnconfigured},
	}, nil
}

// Number returns the run number.
func (r *Run) Number() int { return r.number }

// Status returns the current run status.
func (r *Run) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// ModuleContext returns the per-module context of one module id.
func (r *Run) ModuleContext(id string) (*ScanContext, bool) {
	ctx, ok := r.mctx[id]
	return ctx, ok
}

// GroupContext returns the per-group context of one group id.
func (r *Run) GroupContext(id string) (*ScanContext, bool) {
	ctx, ok := r.gctx[id]
	return ctx, ok
}

// Groups returns the derived run topology.
func (r *Run) Groups() *Groups { return r.grps }

// Faults returns every fault recorded so far.
func (r *Run) Faults() []*Fault { return r.rec.all() }

// Abort stops the run from outside, e.g. on an operator request.
func (r *Run) Abort(reason string) {
	r.rec.record(Faultf(KindOperator, "", "%s", reason))
}

func (r *Run) drainTimeout() time.Duration {
	if r.cfg.Run.StopTimeout > 0 {
		return r.cfg.Run.StopTimeout
	}
	return DefaultDrainTimeout
}

// Execute runs the scan over all modules and returns the terminal
// outcome: nil, a RunAbortedError for known fault kinds, or the
// original cause for unknown ones.
func (r *Run) Execute() error {
	r.msg.Printf("starting run %d", r.number)
	r.doRun()
	r.postRun()

	if r.rdo.IsRunning() {
		r.rdo.ForceStop()
	}
	if err := r.router.Close(); err != nil {
		r.msg.Printf("teardown: %v", err)
	}

	out := r.rec.outcome()
	status := StatusFinished
	switch out.(type) {
	case nil:
	case *RunAbortedError:
		status = StatusAborted
	default:
		status = StatusCrashed
	}
	r.mu.Lock()
	r.status = status
	r.mu.Unlock()

	r.msg.Printf("run %d done: %s", r.number, status)
	r.notify(status, out)
	return out
}

func (r *Run) doRun() {
	switch {
	case r.cfg.Run.BroadcastCommands && r.cfg.Run.ThreadedScan:
		r.runGroupsThreaded()
	case r.cfg.Run.BroadcastCommands:
		r.runGroupsSequential()
	case r.cfg.Run.ThreadedScan:
		r.runModulesThreaded()
	default:
		r.runModulesSequential()
	}
}

// runGroupsSequential walks the TX groups one after another, each
// configured member by member and scanned once in broadcast.
func (r *Run) runGroupsSequential() {
	for _, g := range r.grps.Tx {
		if r.abort.IsSet() {
			return
		}
		if err := r.runGroup(g); err != nil {
			r.rec.handle(err, g.ID())
		}
	}
}

// runGroupsThreaded scans all TX groups concurrently, but only after
// every group and member is configured and every group is in run
// mode: no scan thread may start while another group is still being
// configured. The conf-mode exit of every armed group and the
// register restores happen after the last thread joins. A faulting
// group aborts the run but does not cancel its siblings mid-flight.
func (r *Run) runGroupsThreaded() {
	stack := new(restoreStack)
	defer stack.unwind()

	units := make([][]*ScanContext, 0, len(r.grps.Tx))
	for _, g := range r.grps.Tx {
		all := make([]*ScanContext, 0, len(g.Members)+1)
		all = append(all, r.gctx[g.ID()])
		for _, mod := range g.Members {
			all = append(all, r.mctx[mod.ID])
		}
		units = append(units, all)
	}

	for _, all := range units {
		for _, ctx := range all {
			if r.abort.IsSet() {
				return
			}
			if err := r.configure(ctx, stack); err != nil {
				r.rec.handle(err, ctx.id)
				return
			}
		}
	}

	var armed [][]*ScanContext
	defer func() {
		for _, all := range armed {
			if err := r.exitConfMode(all[0], all); err != nil {
				r.rec.handle(err, all[0].id)
			}
		}
	}()
	for _, all := range units {
		if r.abort.IsSet() {
			return
		}
		if err := r.enterRunMode(all[0], all); err != nil {
			r.rec.handle(err, all[0].id)
			return
		}
		armed = append(armed, all)
	}

	var grp errgroup.Group
	for _, all := range units {
		all := all
		grp.Go(func() error {
			if r.abort.IsSet() {
				return nil
			}
			if err := r.scanBody(all[0], all); err != nil {
				r.rec.handle(err, all[0].id)
			}
			return nil
		})
	}
	_ = grp.Wait()
}

// runModulesSequential walks the modules one after another, each
// with its own configure/scan cycle.
func (r *Run) runModulesSequential() {
	for _, mod := range r.reg.Modules() {
		if r.abort.IsSet() {
			return
		}
		ctx := r.mctx[mod.ID]
		if err := r.runUnit(ctx); err != nil {
			r.rec.handle(err, ctx.id)
		}
	}
}

// runModulesThreaded runs in rounds: the i-th member of every TX
// group concurrently, so no two concurrent modules share a command
// line.
func (r *Run) runModulesThreaded() {
	for round := 0; ; round++ {
		var ctxs []*ScanContext
		for _, g := range r.grps.Tx {
			if round < len(g.Members) {
				ctxs = append(ctxs, r.mctx[g.Members[round].ID])
			}
		}
		if len(ctxs) == 0 {
			return
		}
		if r.abort.IsSet() {
			return
		}
		var grp errgroup.Group
		for _, ctx := range ctxs {
			ctx := ctx
			grp.Go(func() error {
				if err := r.runUnit(ctx); err != nil {
					r.rec.handle(err, ctx.id)
				}
				return nil
			})
		}
		_ = grp.Wait()
	}
}

// runGroup configures the group context and every member, then scans
// once through the broadcast context. Register snapshots are restored
// on every exit path.
func (r *Run) runGroup(g *TxGroup) error {
	gctx := r.gctx[g.ID()]
	units := make([]*ScanContext, 0, len(g.Members)+1)
	units = append(units, gctx)
	for _, mod := range g.Members {
		units = append(units, r.mctx[mod.ID])
	}

	stack := new(restoreStack)
	defer stack.unwind()

	for _, ctx := range units {
		if r.abort.IsSet() {
			return nil
		}
		if err := r.configure(ctx, stack); err != nil {
			return err
		}
	}
	if r.abort.IsSet() {
		return nil
	}
	if err := r.enterRunMode(gctx, units); err != nil {
		return err
	}
	return r.scan(gctx, units)
}

// runUnit is the full lifecycle of one standalone module context.
func (r *Run) runUnit(ctx *ScanContext) error {
	stack := new(restoreStack)
	defer stack.unwind()

	if err := r.configure(ctx, stack); err != nil {
		return err
	}
	if r.abort.IsSet() {
		return nil
	}
	if err := r.enterRunMode(ctx, []*ScanContext{ctx}); err != nil {
		return err
	}
	return r.scan(ctx, []*ScanContext{ctx})
}

// configure snapshots the registers, then runs the scan's Configure
// through the context. The snapshot restores when the enclosing
// restore stack unwinds.
func (r *Run) configure(ctx *ScanContext, stack *restoreStack) error {
	stack.push(ctx)
	ctx.setPhase(PhaseConfiguring)
	if err := ctx.selectTx(); err != nil {
		return err
	}
	if err := r.scnr.Configure(ctx); err != nil {
		return fmt.Errorf("daq: could not configure %s: %w", ctx.id, err)
	}
	return nil
}

func (r *Run) enterRunMode(cmd *ScanContext, affected []*ScanContext) error {
	if err := cmd.utils.SetRunMode(); err != nil {
		return err
	}
	for _, ctx := range affected {
		ctx.setPhase(PhaseRunMode)
	}
	return nil
}

// scan runs the scan body with a guaranteed conf-mode exit: whatever
// Scan does (error or panic), the chips leave run mode before the
// restore stack unwinds.
func (r *Run) scan(cmd *ScanContext, affected []*ScanContext) error {
	err := r.scanBody(cmd, affected)
	if cerr := r.exitConfMode(cmd, affected); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// scanBody marks the scanning phase and runs the scan, converting a
// panic into an error. It does not touch run/conf mode.
func (r *Run) scanBody(cmd *ScanContext, affected []*ScanContext) error {
	for _, ctx := range affected {
		ctx.setPhase(PhaseScanning)
	}
	return func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("daq: scan %s panicked: %v", cmd.id, p)
			}
		}()
		return r.scnr.Scan(cmd)
	}()
}

func (r *Run) exitConfMode(cmd *ScanContext, affected []*ScanContext) error {
	err := cmd.utils.SetConfMode()
	for _, ctx := range affected {
		ctx.setPhase(PhaseConfMode)
	}
	return err
}

// postRun analyzes every module of a clean run. Modules of an
// aborted run end in the aborted phase instead.
func (r *Run) postRun() {
	for _, mod := range r.reg.Modules() {
		ctx := r.mctx[mod.ID]
		if r.rec.first() != nil {
			ctx.setPhase(PhaseAborted)
			continue
		}
		if err := r.scnr.Analyze(ctx); err != nil {
			r.rec.record(&Fault{Kind: KindAnalysis, Module: ctx.id, Cause: err})
			ctx.setPhase(PhaseAborted)
			continue
		}
		ctx.setPhase(PhaseAnalyzed)
	}
}

// restoreStack collects register snapshots and restores them in
// reverse order, marking the restored phase.
type restoreStack struct {
	fns []func()
}

func (s *restoreStack) push(ctx *ScanContext) {
	snap := ctx.reg.Snapshot()
	s.fns = append(s.fns, func() {
		ctx.reg.Restore(snap)
		ctx.setPhase(PhaseRestored)
	})
}

func (s *restoreStack) unwind() {
	for i := len(s.fns) - 1; i >= 0; i-- {
		s.fns[i]()
	}
	s.fns = nil
}
