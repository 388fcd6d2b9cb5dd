// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bitstream provides an append-only sequence of bits, packed
// MSB-first, as used by the FE-I4 command serializer.
package bitstream

import (
	"fmt"
	"strings"
)

// Bits is a bit sequence. The zero value is an empty, ready-to-use
// sequence. Bit 0 is the first bit sent on the wire.
type Bits struct {
	p []byte
	n int
}

// New returns an empty bit sequence with room for n bits.
func New(n int) *Bits {
	return &Bits{p: make([]byte, 0, (n+7)/8)}
}

// FromUint returns the n-bit big-endian representation of v.
func FromUint(v uint64, n int) *Bits {
	bs := New(n)
	bs.AppendUint(v, n)
	return bs
}

// Parse builds a bit sequence from a string of '0' and '1' runes.
func Parse(s string) (*Bits, error) {
	bs := New(len(s))
	for i, r := range s {
		switch r {
		case '0':
			bs.AppendBit(0)
		case '1':
			bs.AppendBit(1)
		default:
			return nil, fmt.Errorf("bitstream: invalid bit %q at index %d", r, i)
		}
	}
	return bs, nil
}

// MustParse is like Parse but panics on invalid input.
// It is meant for static command templates.
func MustParse(s string) *Bits {
	bs, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return bs
}

// Len returns the number of bits in the sequence.
func (bs *Bits) Len() int { return bs.n }

// AppendBit appends a single bit (0 or 1).
func (bs *Bits) AppendBit(b uint8) {
	if bs.n%8 == 0 {
		bs.p = append(bs.p, 0)
	}
	if b != 0 {
		bs.p[bs.n/8] |= 0x80 >> uint(bs.n%8)
	}
	bs.n++
}

// AppendUint appends the n low bits of v, most-significant bit first.
func (bs *Bits) AppendUint(v uint64, n int) {
	for i := n - 1; i >= 0; i-- {
		bs.AppendBit(uint8((v >> uint(i)) & 1))
	}
}

// Append appends all bits of o.
func (bs *Bits) Append(o *Bits) {
	for i := 0; i < o.n; i++ {
		bs.AppendBit(o.Bit(i))
	}
}

// Bit returns bit i (0 or 1).
func (bs *Bits) Bit(i int) uint8 {
	if i < 0 || i >= bs.n {
		panic(fmt.Errorf("bitstream: bit index %d out of range [0,%d)", i, bs.n))
	}
	return (bs.p[i/8] >> uint(7-i%8)) & 1
}

// Uint returns the n bits starting at i as a big-endian unsigned value.
func (bs *Bits) Uint(i, n int) uint64 {
	if n > 64 {
		panic(fmt.Errorf("bitstream: uint width %d exceeds 64 bits", n))
	}
	var v uint64
	for j := 0; j < n; j++ {
		v = v<<1 | uint64(bs.Bit(i+j))
	}
	return v
}

// Slice returns a copy of the n bits starting at i.
func (bs *Bits) Slice(i, n int) *Bits {
	o := New(n)
	for j := 0; j < n; j++ {
		o.AppendBit(bs.Bit(i + j))
	}
	return o
}

// Bytes returns the bit sequence packed into bytes, first bit in the
// most significant bit of the first byte, zero-padded.
func (bs *Bits) Bytes() []byte {
	o := make([]byte, len(bs.p))
	copy(o, bs.p)
	return o
}

// Equal reports whether bs and o hold the same bit sequence.
func (bs *Bits) Equal(o *Bits) bool {
	if bs.n != o.n {
		return false
	}
	for i := 0; i < bs.n; i++ {
		if bs.Bit(i) != o.Bit(i) {
			return false
		}
	}
	return true
}

func (bs *Bits) String() string {
	var b strings.Builder
	b.Grow(bs.n)
	for i := 0; i < bs.n; i++ {
		b.WriteByte('0' + bs.Bit(i))
	}
	return b.String()
}
