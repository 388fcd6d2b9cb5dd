// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fei4

import (
	"errors"
	"strings"
	"testing"

	"github.com/ljthink/pyBAR/internal/bitstream"
)

func TestEncodeWrRegister(t *testing.T) {
	// Slow header, opcode 0010, chip-id 3, address 5, data 0x00ff.
	bs, err := EncodeUints(CmdWrRegister, map[Field]uint64{
		FieldChipID:     3,
		FieldAddress:    5,
		FieldGlobalData: 0x00ff,
	})
	if err != nil {
		t.Fatalf("could not encode: %+v", err)
	}
	want := "101101000" + "0010" + "0011" + "000101" + "0000000011111111"
	if got := bs.String(); got != want {
		t.Fatalf("invalid bits:\ngot= %s\nwant=%s", got, want)
	}
	if got, want := bs.Len(), 39; got != want {
		t.Fatalf("invalid length: got=%d, want=%d", got, want)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name   string
		fields map[Field]uint64
		n      int
	}{
		{name: CmdLV1, n: 5},
		{name: CmdBCR, n: 9},
		{name: CmdECR, n: 9},
		{name: CmdCAL, n: 9},
		{name: CmdRdRegister, fields: map[Field]uint64{FieldChipID: 8, FieldAddress: 42}, n: 23},
		{name: CmdWrRegister, fields: map[Field]uint64{FieldChipID: 1, FieldAddress: 21, FieldGlobalData: 0xbeef}, n: 39},
		{name: CmdGlobalReset, fields: map[Field]uint64{FieldChipID: 7}, n: 17},
		{name: CmdGlobalPulse, fields: map[Field]uint64{FieldChipID: 0, FieldWidth: 63}, n: 23},
		{name: CmdRunMode, fields: map[Field]uint64{FieldChipID: 8}, n: 23},
		{name: CmdConfMode, fields: map[Field]uint64{FieldChipID: 8}, n: 23},
	} {
		t.Run(tc.name, func(t *testing.T) {
			bs, err := EncodeUints(tc.name, tc.fields)
			if err != nil {
				t.Fatalf("could not encode: %+v", err)
			}
			if got := bs.Len(); got != tc.n {
				t.Fatalf("invalid length: got=%d, want=%d", got, tc.n)
			}

			fields, err := Decode(tc.name, bs)
			if err != nil {
				t.Fatalf("could not decode: %+v", err)
			}
			if got, want := len(fields), len(tc.fields); got != want {
				t.Fatalf("invalid number of fields: got=%d, want=%d", got, want)
			}
			for f, v := range tc.fields {
				got := fields[f]
				if got == nil {
					t.Fatalf("missing field %s", f)
				}
				if got.Uint(0, got.Len()) != v {
					t.Fatalf("field %s: got=0x%x, want=0x%x", f, got.Uint(0, got.Len()), v)
				}
			}
		})
	}
}

func TestEncodeWrFrontEnd(t *testing.T) {
	pix := bitstream.New(PixelBits)
	for i := 0; i < PixelBits; i++ {
		pix.AppendBit(uint8(i % 2))
	}
	bs, err := Encode(CmdWrFrontEnd, map[Field]*bitstream.Bits{
		FieldChipID:    bitstream.FromUint(8, 4),
		FieldPixelData: pix,
	})
	if err != nil {
		t.Fatalf("could not encode: %+v", err)
	}
	if got, want := bs.Len(), 695; got != want {
		t.Fatalf("invalid length: got=%d, want=%d", got, want)
	}

	fields, err := Decode(CmdWrFrontEnd, bs)
	if err != nil {
		t.Fatalf("could not decode: %+v", err)
	}
	if !fields[FieldPixelData].Equal(pix) {
		t.Fatalf("pixel payload round-trip mismatch")
	}
}

func TestEncodeErrors(t *testing.T) {
	t.Run("unknown-command", func(t *testing.T) {
		_, err := EncodeUints("NoSuchCmd", nil)
		if err == nil {
			t.Fatalf("expected an error")
		}
	})

	t.Run("unknown-field", func(t *testing.T) {
		_, err := EncodeUints(CmdLV1, map[Field]uint64{FieldChipID: 1})
		var uf *UnknownFieldError
		if !errors.As(err, &uf) {
			t.Fatalf("expected an UnknownFieldError, got %+v", err)
		}
		if uf.Cmd != CmdLV1 || uf.Field != FieldChipID {
			t.Fatalf("invalid error payload: %+v", uf)
		}
	})

	t.Run("too-wide-value", func(t *testing.T) {
		_, err := EncodeUints(CmdRdRegister, map[Field]uint64{
			FieldChipID:  16, // 4-bit field
			FieldAddress: 0,
		})
		if err == nil {
			t.Fatalf("expected an error for a 5-bit value in a 4-bit field")
		}
		if !strings.Contains(err.Error(), "does not fit") {
			t.Fatalf("unexpected error: %+v", err)
		}
	})

	t.Run("wrong-width-bits", func(t *testing.T) {
		_, err := Encode(CmdGlobalReset, map[Field]*bitstream.Bits{
			FieldChipID: bitstream.FromUint(1, 5),
		})
		var fw *FieldWidthError
		if !errors.As(err, &fw) {
			t.Fatalf("expected a FieldWidthError, got %+v", err)
		}
		if fw.Got != 5 || fw.Want != 4 {
			t.Fatalf("invalid error payload: %+v", fw)
		}
	})

	t.Run("missing-field", func(t *testing.T) {
		_, err := EncodeUints(CmdWrRegister, map[Field]uint64{FieldChipID: 1})
		if err == nil {
			t.Fatalf("expected an error for a missing field")
		}
	})
}

func TestDecodeErrors(t *testing.T) {
	t.Run("bad-length", func(t *testing.T) {
		_, err := Decode(CmdLV1, bitstream.MustParse("111010"))
		if err == nil {
			t.Fatalf("expected an error for a 6-bit LV1")
		}
	})

	t.Run("bad-literal", func(t *testing.T) {
		_, err := Decode(CmdLV1, bitstream.MustParse("11100"))
		if err == nil {
			t.Fatalf("expected an error for a corrupted header")
		}
	})
}

func TestCommandFields(t *testing.T) {
	cmd, err := CommandByName(CmdWrRegister)
	if err != nil {
		t.Fatalf("could not lookup command: %+v", err)
	}
	want := []Field{FieldChipID, FieldAddress, FieldGlobalData}
	got := cmd.Fields()
	if len(got) != len(want) {
		t.Fatalf("invalid fields: got=%v, want=%v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("invalid fields: got=%v, want=%v", got, want)
		}
	}
}
