// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package daq orchestrates scans over FE-I4 front-end modules: it
// validates the module registry, derives the command-line and FIFO
// topology, drives the per-module scan lifecycle, coordinates the
// shared FIFO readout and routes the raw data to per-module sinks.
//
// The four execution strategies come from two independent switches:
// broadcast_commands scans chips sharing a command line as one
// broadcast group, threaded_scan runs independent units concurrently.
package daq
