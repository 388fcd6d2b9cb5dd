// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pbar-daq starts a TDAQ server exposing the scan engine to a
// TDAQ run control, streaming the raw data words on its output port.
package main // import "github.com/ljthink/pyBAR/cmd/pbar-daq"

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"

	"github.com/ljthink/pyBAR/daq"
	"github.com/ljthink/pyBAR/scans"
)

func main() {
	cmd := flags.New()

	dev := &engine{
		cfgPath: "configuration.yaml",
		scan:    "digital",
	}
	switch len(cmd.Args) {
	case 0:
	case 1:
		dev.cfgPath = cmd.Args[0]
	default:
		dev.cfgPath = cmd.Args[0]
		dev.scan = cmd.Args[1]
	}

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/raw", dev.raw)

	srv.RunHandle(dev.run)

	err := srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

type engine struct {
	cfgPath string
	scan    string

	cfg  *daq.Config
	dut  daq.DUT
	data chan []byte

	mu     sync.Mutex
	cur    *daq.Run
	number int
	last   error
}

func (dev *engine) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	cfg, err := daq.LoadConfig(dev.cfgPath)
	if err != nil {
		return err
	}
	dev.cfg = cfg
	return nil
}

func (dev *engine) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	if dev.cfg == nil {
		return fmt.Errorf("pbar-daq: not configured")
	}
	reg, err := daq.NewRegistry(dev.cfg)
	if err != nil {
		return err
	}
	if _, err := reg.DeriveGroups(); err != nil {
		return err
	}
	dev.dut = daq.NewMemDUT()
	dev.data = make(chan []byte, 1024)
	return nil
}

func (dev *engine) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	dev.dut = daq.NewMemDUT()
	dev.data = make(chan []byte, 1024)
	return nil
}

func (dev *engine) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")

	scnr, err := scans.Lookup(dev.scan)
	if err != nil {
		return err
	}

	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.cur != nil && dev.cur.Status() == daq.StatusRunning {
		return fmt.Errorf("pbar-daq: run %d still in flight", dev.cur.Number())
	}
	dev.number++
	run, err := daq.NewRun(
		dev.cfg, dev.dut, scnr,
		daq.WithRunNumber(dev.number),
		daq.WithSinkFactory(func(mod *daq.Module) (daq.Sink, error) {
			return &chanSink{data: dev.data}, nil
		}),
	)
	if err != nil {
		return err
	}
	dev.cur = run
	go func() {
		err := run.Execute()
		dev.mu.Lock()
		dev.last = err
		dev.mu.Unlock()
	}()
	return nil
}

func (dev *engine) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	dev.mu.Lock()
	cur := dev.cur
	last := dev.last
	dev.mu.Unlock()

	switch {
	case cur == nil:
		ctx.Msg.Debugf("received /stop command... no run in flight")
	case cur.Status() == daq.StatusRunning:
		ctx.Msg.Debugf("received /stop command... aborting run %d", cur.Number())
		cur.Abort("tdaq stop request")
	default:
		ctx.Msg.Debugf("received /stop command... run %d: %v (err=%v)",
			cur.Number(), cur.Status(), last)
	}
	return nil
}

func (dev *engine) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	return nil
}

func (dev *engine) raw(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case data := <-dev.data:
		dst.Body = data
	}
	return nil
}

func (dev *engine) run(ctx tdaq.Context) error {
	<-ctx.Ctx.Done()
	return nil
}

// chanSink forwards routed raw words to the TDAQ output stream, 32
// bits little-endian per word.
type chanSink struct {
	data chan []byte
}

var _ daq.Sink = (*chanSink)(nil)

func (s *chanSink) Append(b daq.Batch, params map[string]interface{}, newSegment, flush bool) error {
	if len(b.Words) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(b.Words))
	for i, w := range b.Words {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}
	select {
	case s.data <- buf:
	default:
		// Drop on the floor rather than stall the readout.
	}
	return nil
}

func (s *chanSink) Close() error { return nil }
