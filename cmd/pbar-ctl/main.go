// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pbar-ctl is an interactive shell talking to the pbar-srv
// control socket.
package main // import "github.com/ljthink/pyBAR/cmd/pbar-ctl"

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"strings"

	"github.com/peterh/liner"
)

func main() {
	log.SetPrefix("pbar-ctl: ")
	log.SetFlags(0)

	addr := flag.String("addr", "localhost:8877", "address of the pbar-srv control socket")
	flag.Parse()

	err := run(*addr)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("could not dial %q: %w", addr, err)
	}
	defer conn.Close()

	term := liner.NewLiner()
	defer term.Close()
	term.SetCtrlCAborts(true)

	fmt.Printf("connected to %s (type 'help' for commands)\n", addr)
loop:
	for {
		line, err := term.Prompt("pbar> ")
		switch {
		case errors.Is(err, liner.ErrPromptAborted), errors.Is(err, io.EOF):
			break loop
		case err != nil:
			return fmt.Errorf("could not read prompt: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		words := strings.Fields(line)
		name, args := words[0], words[1:]
		switch name {
		case "help":
			fmt.Print(helpText)
			continue
		case "run", "status", "faults", "abort", "quit":
			// forwarded below
		default:
			fmt.Printf("unknown command %q (type 'help')\n", name)
			continue
		}

		msg, err := request(conn, name, args)
		if err != nil {
			return err
		}
		fmt.Println(msg)

		if name == "quit" {
			break loop
		}
	}
	return nil
}

const helpText = `commands:
  run <scan>   start the named scan
  status       report the current run status
  faults       list the faults of the current run
  abort        abort the current run
  quit         stop the server and exit
  help         this text
`

func request(conn net.Conn, name string, args []string) (string, error) {
	req := struct {
		Name string   `json:"name"`
		Args []string `json:"args,omitempty"`
	}{name, args}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return "", fmt.Errorf("could not send %q request: %w", name, err)
	}

	var rep struct {
		Msg string `json:"msg"`
	}
	if err := json.NewDecoder(conn).Decode(&rep); err != nil {
		return "", fmt.Errorf("could not decode %q reply: %w", name, err)
	}
	return rep.Msg, nil
}
