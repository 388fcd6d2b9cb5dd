// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fei4

import (
	"fmt"

	"golang.org/x/xerrors"

	"github.com/ljthink/pyBAR/internal/bitstream"
)

// Field names a variable part of a command template.
type Field string

// Command fields.
const (
	FieldChipID     Field = "ChipID"
	FieldAddress    Field = "Address"
	FieldGlobalData Field = "GlobalData"
	FieldPixelData  Field = "PixelData"
	FieldWidth      Field = "Width"
)

// Command names.
const (
	CmdLV1         = "LV1"
	CmdBCR         = "BCR"
	CmdECR         = "ECR"
	CmdCAL         = "CAL"
	CmdRdRegister  = "RdRegister"
	CmdWrRegister  = "WrRegister"
	CmdWrFrontEnd  = "WrFrontEnd"
	CmdGlobalReset = "GlobalReset"
	CmdGlobalPulse = "GlobalPulse"
	CmdRunMode     = "RunMode"
	CmdConfMode    = "ConfMode"
)

// UnknownFieldError is returned when a field is supplied to (or
// requested from) a command that does not carry it.
type UnknownFieldError struct {
	Cmd   string
	Field Field
}

func (e *UnknownFieldError) Error() string {
	return "fei4: command " + e.Cmd + " has no field " + string(e.Field)
}

// FieldWidthError is returned when a field value does not match the
// width the command template declares. Values are never truncated.
type FieldWidthError struct {
	Cmd   string
	Field Field
	Got   int
	Want  int
}

func (e *FieldWidthError) Error() string {
	return fmt.Sprintf(
		"fei4: command %s field %s is %d bits, want %d",
		e.Cmd, e.Field, e.Got, e.Want,
	)
}

// segment is one element of a command template: either literal bits
// or a named field of fixed width.
type segment struct {
	lit   *bitstream.Bits
	field Field
	n     int
}

// Command is a bitstream template of one FE-I4 command.
type Command struct {
	Name string
	Bits int
	segs []segment
}

const slowHeader = "101101000"

// commands is the FE-I4 command table, shared by both flavors.
var commands = buildCommands()

func buildCommands() map[string]*Command {
	mk := func(name string, segs ...segment) *Command {
		cmd := &Command{Name: name, segs: segs}
		for _, seg := range cmd.segs {
			cmd.Bits += seg.n
		}
		return cmd
	}
	lit := func(s string) segment {
		bs := bitstream.MustParse(s)
		return segment{lit: bs, n: bs.Len()}
	}
	fld := func(f Field, n int) segment {
		return segment{field: f, n: n}
	}

	cmds := []*Command{
		mk(CmdLV1, lit("11101")),
		mk(CmdBCR, lit("101100001")),
		mk(CmdECR, lit("101100010")),
		mk(CmdCAL, lit("101100100")),
		mk(CmdRdRegister, lit(slowHeader), lit("0001"), fld(FieldChipID, 4), fld(FieldAddress, 6)),
		mk(CmdWrRegister, lit(slowHeader), lit("0010"), fld(FieldChipID, 4), fld(FieldAddress, 6), fld(FieldGlobalData, 16)),
		mk(CmdWrFrontEnd, lit(slowHeader), lit("0100"), fld(FieldChipID, 4), lit("000000"), fld(FieldPixelData, 672)),
		mk(CmdGlobalReset, lit(slowHeader), lit("1000"), fld(FieldChipID, 4)),
		mk(CmdGlobalPulse, lit(slowHeader), lit("1001"), fld(FieldChipID, 4), fld(FieldWidth, 6)),
		mk(CmdRunMode, lit(slowHeader), lit("1010"), fld(FieldChipID, 4), lit("111000")),
		mk(CmdConfMode, lit(slowHeader), lit("1010"), fld(FieldChipID, 4), lit("000111")),
	}

	m := make(map[string]*Command, len(cmds))
	for _, cmd := range cmds {
		m[cmd.Name] = cmd
	}
	return m
}

// CommandByName returns the template of the named command.
func CommandByName(name string) (*Command, error) {
	cmd, ok := commands[name]
	if !ok {
		return nil, xerrors.Errorf("fei4: unknown command %q", name)
	}
	return cmd, nil
}

// Encode serializes a command: literal template bits in order, field
// values spliced in at their declared positions, MSB first. All
// declared fields must be supplied, with exactly the declared width.
func Encode(name string, fields map[Field]*bitstream.Bits) (*bitstream.Bits, error) {
	cmd, err := CommandByName(name)
	if err != nil {
		return nil, err
	}
	for f := range fields {
		if !cmd.hasField(f) {
			return nil, &UnknownFieldError{Cmd: name, Field: f}
		}
	}
	out := bitstream.New(cmd.Bits)
	for _, seg := range cmd.segs {
		if seg.lit != nil {
			out.Append(seg.lit)
			continue
		}
		v, ok := fields[seg.field]
		if !ok {
			return nil, xerrors.Errorf("fei4: command %s: missing field %s", name, seg.field)
		}
		if v.Len() != seg.n {
			return nil, &FieldWidthError{Cmd: name, Field: seg.field, Got: v.Len(), Want: seg.n}
		}
		out.Append(v)
	}
	return out, nil
}

// EncodeUints is Encode with unsigned field values. A value that does
// not fit the declared field width is an error, not a truncation.
func EncodeUints(name string, fields map[Field]uint64) (*bitstream.Bits, error) {
	cmd, err := CommandByName(name)
	if err != nil {
		return nil, err
	}
	bits := make(map[Field]*bitstream.Bits, len(fields))
	for f, v := range fields {
		n, ok := cmd.fieldWidth(f)
		if !ok {
			return nil, &UnknownFieldError{Cmd: name, Field: f}
		}
		if n < 64 && v >= 1<<uint(n) {
			return nil, xerrors.Errorf(
				"fei4: command %s: value 0x%x does not fit field %s (%d bits)",
				name, v, f, n,
			)
		}
		bits[f] = bitstream.FromUint(v, n)
	}
	return Encode(name, bits)
}

// Decode parses a serialized command back into its field values. The
// stream must have exactly the declared length and match every
// literal template bit.
func Decode(name string, bs *bitstream.Bits) (map[Field]*bitstream.Bits, error) {
	cmd, err := CommandByName(name)
	if err != nil {
		return nil, err
	}
	if bs.Len() != cmd.Bits {
		return nil, xerrors.Errorf("fei4: command %s: stream is %d bits, want %d", name, bs.Len(), cmd.Bits)
	}
	fields := make(map[Field]*bitstream.Bits)
	pos := 0
	for _, seg := range cmd.segs {
		if seg.lit != nil {
			if !bs.Slice(pos, seg.n).Equal(seg.lit) {
				return nil, xerrors.Errorf(
					"fei4: command %s: literal mismatch at bit %d: got %s, want %s",
					name, pos, bs.Slice(pos, seg.n), seg.lit,
				)
			}
		} else {
			fields[seg.field] = bs.Slice(pos, seg.n)
		}
		pos += seg.n
	}
	return fields, nil
}

func (cmd *Command) hasField(f Field) bool {
	_, ok := cmd.fieldWidth(f)
	return ok
}

func (cmd *Command) fieldWidth(f Field) (int, bool) {
	for _, seg := range cmd.segs {
		if seg.lit == nil && seg.field == f {
			return seg.n, true
		}
	}
	return 0, false
}

// Fields returns the names of the variable fields of the command, in
// template order.
func (cmd *Command) Fields() []Field {
	var fs []Field
	for _, seg := range cmd.segs {
		if seg.lit == nil {
			fs = append(fs, seg.field)
		}
	}
	return fs
}
