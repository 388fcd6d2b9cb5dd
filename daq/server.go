// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"sync"
)

// ScanLookup resolves a scan name to its Scanner.
type ScanLookup func(name string) (Scanner, error)

// server exposes the run engine over a JSON/TCP control socket.
type server struct {
	ctl net.Listener
	msg *log.Logger

	cfg   *Config
	dut   DUT
	scans ScanLookup
	opts  []RunOption

	mu     sync.Mutex
	cur    *Run
	number int
	last   error
}

// Serve listens on addr and executes control requests against the
// given device. The run options apply to every run it launches.
func Serve(addr string, cfg *Config, dut DUT, scans ScanLookup, opts ...RunOption) error {
	srv, err := newServer(addr, cfg, dut, scans, opts...)
	if err != nil {
		return fmt.Errorf("daq: could not create control server: %w", err)
	}
	return srv.serve()
}

func newServer(addr string, cfg *Config, dut DUT, scans ScanLookup, opts ...RunOption) (*server, error) {
	ctl, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("daq: could not listen on %q: %w", addr, err)
	}
	return &server{
		ctl:   ctl,
		msg:   log.New(os.Stdout, "pbar-srv: ", 0),
		cfg:   cfg,
		dut:   dut,
		scans: scans,
		opts:  opts,
	}, nil
}

func (srv *server) serve() error {
	defer srv.close()

	for {
		conn, err := srv.ctl.Accept()
		if err != nil {
			return fmt.Errorf("daq: could not accept connection: %w", err)
		}

		err = srv.handle(conn)
		if err != nil {
			srv.msg.Printf("could not serve connection: %+v", err)
			continue
		}
	}
}

func (srv *server) handle(conn net.Conn) error {
	defer conn.Close()
	srv.msg.Printf("serving %v...", conn.RemoteAddr())
	defer srv.msg.Printf("serving %v... [done]", conn.RemoteAddr())

loop:
	for {
		var req struct {
			Name string           `json:"name"`
			Args *json.RawMessage `json:"args"`
		}

		err := json.NewDecoder(conn).Decode(&req)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			srv.msg.Printf("could not decode command request: %+v", err)
			srv.reply(conn, err)
			continue
		}
		srv.msg.Printf("received request: name=%q", req.Name)

		switch strings.ToLower(req.Name) {
		case "run":
			var args []string
			if req.Args != nil {
				err = json.Unmarshal(*req.Args, &args)
			}
			if err != nil || len(args) == 0 {
				srv.reply(conn, fmt.Errorf("daq: run needs a scan name"))
				continue
			}
			err = srv.startRun(args[0])
			srv.reply(conn, err)

		case "status":
			srv.replyMsg(conn, srv.status())

		case "faults":
			srv.replyMsg(conn, srv.faults())

		case "abort":
			srv.mu.Lock()
			cur := srv.cur
			srv.mu.Unlock()
			if cur == nil {
				srv.reply(conn, fmt.Errorf("daq: no run in flight"))
				continue
			}
			cur.Abort("operator request")
			srv.reply(conn, nil)

		case "quit":
			srv.reply(conn, nil)
			break loop

		default:
			srv.msg.Printf("unknown command name=%q", req.Name)
			srv.reply(conn, fmt.Errorf("daq: unknown command %q", req.Name))
			continue
		}
	}
	return nil
}

// startRun launches one scan in the background. A run already in
// flight is an error.
func (srv *server) startRun(scan string) error {
	scnr, err := srv.scans(scan)
	if err != nil {
		return err
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.cur != nil && srv.cur.Status() == StatusRunning {
		return fmt.Errorf("daq: run %d still in flight", srv.cur.Number())
	}
	srv.number++
	opts := append([]RunOption{WithRunNumber(srv.number), WithLogger(srv.msg)}, srv.opts...)
	run, err := NewRun(srv.cfg, srv.dut, scnr, opts...)
	if err != nil {
		return err
	}
	srv.cur = run
	go func() {
		err := run.Execute()
		srv.mu.Lock()
		srv.last = err
		srv.mu.Unlock()
	}()
	return nil
}

func (srv *server) status() string {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.cur == nil {
		return "IDLE"
	}
	return fmt.Sprintf("run %d: %s", srv.cur.Number(), srv.cur.Status())
}

func (srv *server) faults() string {
	srv.mu.Lock()
	cur := srv.cur
	srv.mu.Unlock()
	if cur == nil {
		return "no run"
	}
	faults := cur.Faults()
	if len(faults) == 0 {
		return "no faults"
	}
	var b strings.Builder
	for i, f := range faults {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(f.Error())
	}
	return b.String()
}

func (srv *server) reply(conn net.Conn, err error) {
	msg := "ok"
	if err != nil {
		msg = fmt.Sprintf("%+v", err)
	}
	srv.replyMsg(conn, msg)
}

func (srv *server) replyMsg(conn net.Conn, msg string) {
	rep := struct {
		Msg string `json:"msg"`
	}{msg}
	_ = json.NewEncoder(conn).Encode(rep)
}

func (srv *server) close() {
	_ = srv.ctl.Close()
}
