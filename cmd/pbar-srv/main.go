// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pbar-srv runs the DAQ control server: it loads the run
// configuration and executes scan requests received over its JSON/TCP
// control socket. With -db, each module's register state is seeded
// from its stored configuration before every run.
package main // import "github.com/ljthink/pyBAR/cmd/pbar-srv"

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/ljthink/pyBAR/confdb"
	"github.com/ljthink/pyBAR/daq"
	"github.com/ljthink/pyBAR/fei4"
	"github.com/ljthink/pyBAR/scans"
)

func main() {
	log.SetPrefix("pbar-srv: ")
	log.SetFlags(0)

	var (
		addr  = flag.String("addr", ":8877", "[ip]:[port] to listen on for control requests")
		fcfg  = flag.String("cfg", "configuration.yaml", "path to the run configuration file")
		dbase = flag.String("db", "", "configuration database name (empty: power-up register values)")
	)

	flag.Parse()

	cfg, err := daq.LoadConfig(*fcfg)
	if err != nil {
		log.Fatalf("%+v", err)
	}

	// Validate the module topology before accepting any request.
	reg, err := daq.NewRegistry(cfg)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	if _, err := reg.DeriveGroups(); err != nil {
		log.Fatalf("%+v", err)
	}

	var opts []daq.RunOption
	if *dbase != "" {
		db, err := confdb.Open(*dbase)
		if err != nil {
			log.Fatalf("%+v", err)
		}
		defer db.Close()
		opts = append(opts, daq.WithRegisterLoader(loader(db)))
	}

	log.Printf("listening on %q (%d modules, scans: %v)", *addr, len(reg.Modules()), scans.Names())
	err = daq.Serve(*addr, cfg, daq.NewMemDUT(), scans.Lookup, opts...)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

// loader seeds each module's registers from the configuration its
// module entry names, falling back to the most recent stored one.
func loader(db *confdb.DB) daq.RegisterLoader {
	return func(mod *daq.Module, reg *fei4.Registers) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		name := mod.Configuration
		if name == "" {
			last, err := db.LastConfig(ctx)
			if err != nil {
				return err
			}
			name = last
		}
		if name == "" {
			// Nothing stored yet: keep the power-up values.
			return nil
		}
		log.Printf("module %s: loading configuration %q", mod.ID, name)
		return db.ApplyConfig(ctx, name, mod.ID, reg)
	}
}
