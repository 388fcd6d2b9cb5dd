// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pbar-boot (re)starts the DAQ processes: it launches the
// pbar-srv control server, waits for its control socket to answer a
// status request, then launches the clients against it.
package main // import "github.com/ljthink/pyBAR/cmd/pbar-boot"

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sync"
	"time"

	"github.com/sbinet/pmon"
	"golang.org/x/sync/errgroup"
)

var (
	doMon  = flag.Bool("pmon", false, "enable pmon monitoring")
	doFreq = flag.Duration("freq", 1*time.Second, "pmon frequency")
	fcfg   = flag.String("cfg", "configuration.yaml", "run configuration handed to the DAQ processes")
	ctl    = flag.String("ctl", "localhost:8877", "control socket of pbar-srv")
	grace  = flag.Duration("grace", 10*time.Second, "how long to wait for the control socket to come up")

	dir = os.Getenv("PBARLOGDIR")

	stop = make(chan os.Signal, 1)
)

func main() {
	flag.Parse()

	log.SetPrefix("pbar-boot: ")
	log.SetFlags(0)

	cmds := []*exec.Cmd{
		exec.Command("pbar-srv", "-addr", *ctl, "-cfg", *fcfg),
		exec.Command("pbar-daq", *fcfg),
	}

	err := run(*doMon, *doFreq, cmds, dir, *ctl, *grace, stop)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

// run launches cmds[0], gates the remaining commands on the control
// socket (when one is given) and supervises everything until the
// last process exits or stop fires.
func run(doMon bool, freq time.Duration, cmds []*exec.Cmd, dir, ctl string, grace time.Duration, stop chan os.Signal) error {
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	for _, cmd := range cmds {
		name := filepath.Base(cmd.Path)
		kill := exec.Command("killall", name)
		kill.Stderr = os.Stderr
		kill.Stdout = os.Stdout
		err := kill.Run()
		if err != nil {
			log.Printf("could not kill %q: %+v", name, err)
		}
	}

	if dir == "" {
		dir = "/var/log/pybar"
	}

	var (
		grp      errgroup.Group
		kill     = make(chan int)
		once     sync.Once
		shutdown = func() { once.Do(func() { close(kill) }) }
	)

	go func() {
		<-stop
		shutdown()
	}()

	srv := cmds[0]
	grp.Go(func() error {
		return start(srv, dir, kill, doMon, freq)
	})

	if ctl != "" {
		if err := waitCtl(ctl, grace); err != nil {
			shutdown()
			_ = grp.Wait()
			return fmt.Errorf("could not boot DAQ: %w", err)
		}
		log.Printf("control socket %q is up", ctl)
	}

	for _, cmd := range cmds[1:] {
		cmd := cmd
		grp.Go(func() error {
			return start(cmd, dir, kill, doMon, freq)
		})
	}

	err := grp.Wait()
	if err != nil {
		return fmt.Errorf("could not boot DAQ: %w", err)
	}
	return nil
}

// waitCtl polls the control socket until it answers a status request.
func waitCtl(addr string, grace time.Duration) error {
	deadline := time.Now().Add(grace)
	for {
		err := probeCtl(addr)
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("control socket %q not up after %v: %w", addr, grace, err)
		}
		time.Sleep(250 * time.Millisecond)
	}
}

func probeCtl(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, 1*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()

	req := struct {
		Name string `json:"name"`
	}{"status"}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("could not send status request: %w", err)
	}
	var rep struct {
		Msg string `json:"msg"`
	}
	if err := json.NewDecoder(conn).Decode(&rep); err != nil {
		return fmt.Errorf("could not decode status reply: %w", err)
	}
	return nil
}

func start(cmd *exec.Cmd, dir string, kill chan int, doMon bool, freq time.Duration) error {
	name := filepath.Base(cmd.Path)
	out, err := os.Create(filepath.Join(dir, name+".log"))
	if err != nil {
		return fmt.Errorf("could not create output log file for %q: %w", name, err)
	}
	defer out.Close()

	cmd.Stdout = out
	cmd.Stderr = out

	log.Printf("starting %q...", name)
	err = cmd.Start()
	if err != nil {
		return fmt.Errorf("could not start %q: %w", name, err)
	}

	if doMon {
		p, err := pmon.Monitor(cmd.Process.Pid)
		if err != nil {
			return fmt.Errorf("could not start monitoring %q (pid=%d): %w", name, cmd.Process.Pid, err)
		}
		f, err := os.Create(filepath.Join(dir, name+"-pmon.log"))
		if err != nil {
			return fmt.Errorf("could not create pmon log file for command %q: %w", name, err)
		}
		defer f.Close()
		p.W = f
		p.Freq = freq

		go func() {
			log.Printf("run pmon %q...", name)
			err := p.Run()
			if err != nil {
				log.Printf("could not start monitoring %q: %+v", name, err)
			}
		}()

		defer func() {
			err := p.Kill()
			if err != nil {
				log.Printf("could not stop monitoring %q: %+v", name, err)
			}
		}()
	}

	errch := make(chan error)
	go func() {
		errch <- cmd.Wait()
	}()

	select {
	case <-kill:
		err = cmd.Process.Kill()
		if err != nil {
			return fmt.Errorf("could not kill %q: %+v", name, err)
		}
	case err = <-errch:
		if err != nil {
			return fmt.Errorf("could not run %q: %w", name, err)
		}
	}

	return nil
}
