// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fei4 provides the register model and the command protocol
// of the FE-I4 pixel readout chip.
//
// The global configuration memory is a sequence of 64 16-bit words,
// modeled as a flat bit plane where a register field occupies bits
// address*16+offset onwards, possibly spanning several words. Two
// endianness flags modify the placement: LittleEndian reverses the
// bit order inside the field, RegLittleEndian mirrors bit positions
// inside each 16-bit word.
package fei4

import (
	"fmt"
	"sort"
)

const (
	// WordBits is the width of one global configuration word.
	WordBits = 16
	// NumWords is the number of addressable configuration words.
	NumWords = 64

	// NumDC is the number of pixel double columns.
	NumDC = 40
	// PixelBits is the length of the per-double-column shift register.
	PixelBits = 672

	planeBits  = NumWords * WordBits
	planeBytes = planeBits / 8
	pixelBytes = PixelBits / 8
)

// PxStrobeSR marks a pixel register without a latch strobe: its
// payload lives only in the shift register itself.
const PxStrobeSR = -1

// GlobalReg describes one field of the global configuration memory.
type GlobalReg struct {
	Name  string
	Addr  uint8 // 16-bit word address, 0..63
	Len   int   // field width in bits
	Off   int   // bit offset from the first transmitted bit of the word
	LE    bool  // reverse bit order inside the field
	RegLE bool  // mirror bit positions inside each word
	RO    bool
	Reset uint64 // power-up value; fields wider than 64 bits reset to zero
}

// PixelReg describes one per-pixel configuration register.
type PixelReg struct {
	Name     string
	Len      int // bits per pixel
	PxStrobe int // first latch strobe, or PxStrobeSR
	LE       bool
	Reset    uint64 // per-pixel power-up value
}

// Strobe returns the latch strobe of one bit layer (layer 0 being the
// least significant bit of the per-pixel value), or PxStrobeSR when
// the register has no latch.
func (p *PixelReg) Strobe(layer int) int {
	if p.PxStrobe == PxStrobeSR {
		return PxStrobeSR
	}
	if p.LE {
		return p.PxStrobe + layer
	}
	return p.PxStrobe + p.Len - 1 - layer
}

// Flavor describes a chip flavor: its register tables and command set.
type Flavor struct {
	Name   string
	Global []GlobalReg
	Pixel  []PixelReg

	glb map[string]*GlobalReg
	pix map[string]*PixelReg
}

// Built-in chip flavors.
var (
	FEI4A = mustFlavor(fei4a())
	FEI4B = mustFlavor(fei4b())
)

// ByName returns the built-in flavor with the given name.
func ByName(name string) (*Flavor, error) {
	switch name {
	case "fei4a":
		return FEI4A, nil
	case "fei4b":
		return FEI4B, nil
	}
	return nil, fmt.Errorf("fei4: unknown flavor %q", name)
}

func mustFlavor(f *Flavor) *Flavor {
	if err := f.Validate(); err != nil {
		panic(err)
	}
	return f
}

// Validate checks the register tables for internal consistency:
// unique names, fields inside the configuration plane, no two fields
// claiming the same physical bit.
func (f *Flavor) Validate() error {
	f.glb = make(map[string]*GlobalReg, len(f.Global))
	f.pix = make(map[string]*PixelReg, len(f.Pixel))

	owner := make([]string, planeBits)
	for i := range f.Global {
		reg := &f.Global[i]
		if reg.Len <= 0 {
			return fmt.Errorf("fei4: %s: register %q has invalid width %d", f.Name, reg.Name, reg.Len)
		}
		if _, dup := f.glb[reg.Name]; dup {
			return fmt.Errorf("fei4: %s: duplicate global register %q", f.Name, reg.Name)
		}
		if reg.Len > 64 && reg.Reset != 0 {
			return fmt.Errorf("fei4: %s: register %q is %d bits wide, reset value must be zero", f.Name, reg.Name, reg.Len)
		}
		for j := 0; j < reg.Len; j++ {
			pos := bitPos(reg, j)
			if pos < 0 || pos >= planeBits {
				return fmt.Errorf("fei4: %s: register %q bit %d outside configuration plane", f.Name, reg.Name, j)
			}
			if o := owner[pos]; o != "" {
				return fmt.Errorf("fei4: %s: registers %q and %q overlap at bit %d", f.Name, o, reg.Name, pos)
			}
			owner[pos] = reg.Name
		}
		f.glb[reg.Name] = reg
	}

	strobe := make(map[int]string)
	for i := range f.Pixel {
		reg := &f.Pixel[i]
		if reg.Len <= 0 || reg.Len > 64 {
			return fmt.Errorf("fei4: %s: pixel register %q has invalid width %d", f.Name, reg.Name, reg.Len)
		}
		if _, dup := f.pix[reg.Name]; dup {
			return fmt.Errorf("fei4: %s: duplicate pixel register %q", f.Name, reg.Name)
		}
		if reg.PxStrobe != PxStrobeSR {
			for j := 0; j < reg.Len; j++ {
				if o, dup := strobe[reg.PxStrobe+j]; dup {
					return fmt.Errorf("fei4: %s: pixel registers %q and %q share strobe %d", f.Name, o, reg.Name, reg.PxStrobe+j)
				}
				strobe[reg.PxStrobe+j] = reg.Name
			}
		}
		f.pix[reg.Name] = reg
	}
	return nil
}

// GlobalByName returns the descriptor of the named global register.
func (f *Flavor) GlobalByName(name string) (*GlobalReg, bool) {
	reg, ok := f.glb[name]
	return reg, ok
}

// PixelByName returns the descriptor of the named pixel register.
func (f *Flavor) PixelByName(name string) (*PixelReg, bool) {
	reg, ok := f.pix[name]
	return reg, ok
}

// bitPos maps logical bit j of a field (counting from the first
// transmitted bit) to its physical position in the bit plane.
func bitPos(reg *GlobalReg, j int) int {
	if reg.LE {
		j = reg.Len - 1 - j
	}
	abs := reg.Off + j
	word := int(reg.Addr) + abs/WordBits
	local := abs % WordBits
	if reg.RegLE {
		local = WordBits - 1 - local
	}
	return word*WordBits + local
}

// Addresses returns the sorted list of word addresses holding at
// least one writable field.
func (f *Flavor) Addresses() []uint8 {
	seen := make(map[uint8]bool)
	var addrs []uint8
	for i := range f.Global {
		reg := &f.Global[i]
		if reg.RO {
			continue
		}
		lo := int(reg.Addr)
		hi := int(reg.Addr) + (reg.Off+reg.Len-1)/WordBits
		for a := lo; a <= hi; a++ {
			if !seen[uint8(a)] {
				seen[uint8(a)] = true
				addrs = append(addrs, uint8(a))
			}
		}
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// AffectedAddrs returns the word addresses touched by the named
// global register, lowest first.
func (f *Flavor) AffectedAddrs(name string) ([]uint8, error) {
	reg, ok := f.glb[name]
	if !ok {
		return nil, fmt.Errorf("fei4: %s: unknown global register %q", f.Name, name)
	}
	lo := int(reg.Addr)
	hi := int(reg.Addr) + (reg.Off+reg.Len-1)/WordBits
	addrs := make([]uint8, 0, hi-lo+1)
	for a := lo; a <= hi; a++ {
		addrs = append(addrs, uint8(a))
	}
	return addrs, nil
}
