// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bitstream

import (
	"bytes"
	"testing"
)

func TestAppendUint(t *testing.T) {
	for _, tc := range []struct {
		v    uint64
		n    int
		want string
	}{
		{v: 0, n: 1, want: "0"},
		{v: 1, n: 1, want: "1"},
		{v: 0x1d, n: 5, want: "11101"},
		{v: 0x2aaa, n: 16, want: "0010101010101010"},
		{v: 0xff, n: 16, want: "0000000011111111"},
	} {
		t.Run(tc.want, func(t *testing.T) {
			bs := New(tc.n)
			bs.AppendUint(tc.v, tc.n)
			if got := bs.String(); got != tc.want {
				t.Fatalf("invalid bits: got=%q, want=%q", got, tc.want)
			}
			if got := bs.Uint(0, tc.n); got != tc.v {
				t.Fatalf("invalid round-trip: got=0x%x, want=0x%x", got, tc.v)
			}
		})
	}
}

func TestParse(t *testing.T) {
	bs, err := Parse("101101000")
	if err != nil {
		t.Fatalf("could not parse: %+v", err)
	}
	if got, want := bs.Len(), 9; got != want {
		t.Fatalf("invalid length: got=%d, want=%d", got, want)
	}
	if got, want := bs.String(), "101101000"; got != want {
		t.Fatalf("invalid bits: got=%q, want=%q", got, want)
	}

	if _, err := Parse("10x1"); err == nil {
		t.Fatalf("expected an error for invalid input")
	}
}

func TestAppend(t *testing.T) {
	bs := New(0)
	bs.Append(MustParse("101"))
	bs.Append(MustParse("11"))
	bs.AppendBit(0)
	if got, want := bs.String(), "101110"; got != want {
		t.Fatalf("invalid bits: got=%q, want=%q", got, want)
	}
}

func TestSlice(t *testing.T) {
	bs := MustParse("1011010000010")
	if got, want := bs.Slice(4, 5).String(), "01000"; got != want {
		t.Fatalf("invalid slice: got=%q, want=%q", got, want)
	}
	if !bs.Slice(0, bs.Len()).Equal(bs) {
		t.Fatalf("full slice differs from original")
	}
}

func TestBytes(t *testing.T) {
	bs := MustParse("1110100000")
	want := []byte{0xe8, 0x00}
	if got := bs.Bytes(); !bytes.Equal(got, want) {
		t.Fatalf("invalid bytes: got=%x, want=%x", got, want)
	}
}

func TestEqual(t *testing.T) {
	for _, tc := range []struct {
		a, b string
		want bool
	}{
		{a: "101", b: "101", want: true},
		{a: "101", b: "100", want: false},
		{a: "101", b: "1010", want: false},
		{a: "", b: "", want: true},
	} {
		t.Run("", func(t *testing.T) {
			a := MustParse(tc.a)
			b := MustParse(tc.b)
			if got := a.Equal(b); got != tc.want {
				t.Fatalf("invalid equality: got=%v, want=%v", got, tc.want)
			}
		})
	}
}

func TestBitPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic for out-of-range index")
		}
	}()
	bs := MustParse("10")
	_ = bs.Bit(2)
}
