// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fei4

import (
	"errors"
	"fmt"

	"github.com/ljthink/pyBAR/internal/bitstream"
)

// ErrReadOnly is returned when writing to a read-only register.
var ErrReadOnly = errors.New("fei4: register is read-only")

// BroadcastID is the chip-id value addressing all chips on a command
// line at once.
const BroadcastID = 8

// Registers holds the configuration state of one chip (or of a
// broadcast group sharing one command line).
//
// The global configuration memory is stored as a flat bit plane of
// NumWords 16-bit words. Pixel registers are stored as one 672-bit
// plane per double column.
type Registers struct {
	flavor *Flavor
	chipID uint8 // 0..7, ignored when broadcast
	bcast  bool

	mem [planeBytes]byte
	pix map[string][]byte // name -> NumDC*pixelBytes
}

// NewRegisters returns the register state of a chip with the given
// address, initialized to the flavor's power-up values. A nil address
// selects broadcast addressing.
func NewRegisters(f *Flavor, chipAddress *uint8) (*Registers, error) {
	r := &Registers{
		flavor: f,
		bcast:  chipAddress == nil,
		pix:    make(map[string][]byte, len(f.Pixel)),
	}
	if chipAddress != nil {
		if *chipAddress > 7 {
			return nil, fmt.Errorf("fei4: chip address %d out of range [0,7]", *chipAddress)
		}
		r.chipID = *chipAddress
	}
	for i := range f.Global {
		reg := &f.Global[i]
		if reg.Len > 64 {
			continue // resets to zero, enforced by Validate
		}
		r.store(reg, reg.Reset)
	}
	for i := range f.Pixel {
		preg := &f.Pixel[i]
		r.pix[preg.Name] = make([]byte, NumDC*preg.Len*pixelBytes)
		r.fillPixel(preg, preg.Reset)
	}
	return r, nil
}

// FillPixel sets the named pixel register to the same value for every
// pixel of every double column.
func (r *Registers) FillPixel(name string, v uint64) error {
	reg, ok := r.flavor.PixelByName(name)
	if !ok {
		return fmt.Errorf("fei4: %s: unknown pixel register %q", r.flavor.Name, name)
	}
	if reg.Len < 64 && v >= 1<<uint(reg.Len) {
		return fmt.Errorf("fei4: value 0x%x does not fit pixel register %q (%d bits)", v, name, reg.Len)
	}
	r.fillPixel(reg, v)
	return nil
}

// Flavor returns the chip flavor of this register set.
func (r *Registers) Flavor() *Flavor { return r.flavor }

// Broadcast reports whether this register set addresses all chips on
// the command line.
func (r *Registers) Broadcast() bool { return r.bcast }

// ChipID returns the 4-bit chip-id field value used in commands.
func (r *Registers) ChipID() uint64 {
	if r.bcast {
		return BroadcastID
	}
	return uint64(r.chipID)
}

// Set writes the named writable global register. Values wider than
// the register are rejected, not truncated.
func (r *Registers) Set(name string, v uint64) error {
	reg, ok := r.flavor.GlobalByName(name)
	if !ok {
		return fmt.Errorf("fei4: %s: unknown global register %q", r.flavor.Name, name)
	}
	if reg.RO {
		return fmt.Errorf("fei4: could not set %q: %w", name, ErrReadOnly)
	}
	if reg.Len < 64 && v >= 1<<uint(reg.Len) {
		return fmt.Errorf("fei4: value 0x%x does not fit %q (%d bits)", v, name, reg.Len)
	}
	r.store(reg, v)
	return nil
}

// Get reads the named global register.
func (r *Registers) Get(name string) (uint64, error) {
	reg, ok := r.flavor.GlobalByName(name)
	if !ok {
		return 0, fmt.Errorf("fei4: %s: unknown global register %q", r.flavor.Name, name)
	}
	if reg.Len > 64 {
		return 0, fmt.Errorf("fei4: register %q is %d bits wide, use Pixel or Word access", name, reg.Len)
	}
	var v uint64
	for j := 0; j < reg.Len; j++ {
		v = v<<1 | uint64(r.bit(bitPos(reg, j)))
	}
	return v, nil
}

// Word assembles the 16-bit configuration word at the given address,
// first transmitted bit in the most significant position.
func (r *Registers) Word(addr uint8) uint16 {
	var w uint16
	base := int(addr) * WordBits
	for i := 0; i < WordBits; i++ {
		w = w<<1 | uint16(r.bit(base+i))
	}
	return w
}

// Pixel returns one 672-bit shift-register payload of the named
// pixel register: the given bit layer of one double column. Layer 0
// carries the least significant bit of the per-pixel value.
func (r *Registers) Pixel(name string, dc, layer int) (*bitstream.Bits, error) {
	plane, err := r.pixelPlane(name, dc, layer)
	if err != nil {
		return nil, err
	}
	bs := bitstream.New(PixelBits)
	for i := 0; i < PixelBits; i++ {
		bs.AppendBit(plane[i/8] >> uint(7-i%8) & 1)
	}
	return bs, nil
}

// SetPixel replaces one 672-bit bit-layer payload of the named pixel
// register for one double column.
func (r *Registers) SetPixel(name string, dc, layer int, bs *bitstream.Bits) error {
	plane, err := r.pixelPlane(name, dc, layer)
	if err != nil {
		return err
	}
	if bs.Len() != PixelBits {
		return fmt.Errorf("fei4: pixel payload is %d bits, want %d", bs.Len(), PixelBits)
	}
	copy(plane, bs.Bytes())
	return nil
}

func (r *Registers) pixelPlane(name string, dc, layer int) ([]byte, error) {
	reg, ok := r.flavor.PixelByName(name)
	if !ok {
		return nil, fmt.Errorf("fei4: %s: unknown pixel register %q", r.flavor.Name, name)
	}
	if dc < 0 || dc >= NumDC {
		return nil, fmt.Errorf("fei4: double column %d out of range [0,%d)", dc, NumDC)
	}
	if layer < 0 || layer >= reg.Len {
		return nil, fmt.Errorf("fei4: bit layer %d out of range [0,%d) for %q", layer, reg.Len, name)
	}
	i := (dc*reg.Len + layer) * pixelBytes
	return r.pix[name][i : i+pixelBytes], nil
}

// Snapshot captures the full register state.
type Snapshot struct {
	mem [planeBytes]byte
	pix map[string][]byte
}

// Snapshot returns a copy of the current register state.
func (r *Registers) Snapshot() *Snapshot {
	s := &Snapshot{
		mem: r.mem,
		pix: make(map[string][]byte, len(r.pix)),
	}
	for name, plane := range r.pix {
		cp := make([]byte, len(plane))
		copy(cp, plane)
		s.pix[name] = cp
	}
	return s
}

// Restore resets the register state to a previously taken snapshot.
func (r *Registers) Restore(s *Snapshot) {
	r.mem = s.mem
	for name, plane := range s.pix {
		copy(r.pix[name], plane)
	}
}

// store places value bits of reg into the bit plane, honoring both
// endianness flags through bitPos.
func (r *Registers) store(reg *GlobalReg, v uint64) {
	for j := 0; j < reg.Len; j++ {
		// logical bit j counts from the first transmitted bit,
		// so bit 0 of the field is its most significant bit.
		bit := uint8(v >> uint(reg.Len-1-j) & 1)
		r.setBit(bitPos(reg, j), bit)
	}
}

func (r *Registers) fillPixel(reg *PixelReg, v uint64) {
	plane := r.pix[reg.Name]
	for dc := 0; dc < NumDC; dc++ {
		for layer := 0; layer < reg.Len; layer++ {
			var fill byte
			if v>>uint(layer)&1 != 0 {
				fill = 0xff
			}
			i := (dc*reg.Len + layer) * pixelBytes
			for j := 0; j < pixelBytes; j++ {
				plane[i+j] = fill
			}
		}
	}
}

func (r *Registers) bit(pos int) uint8 {
	return r.mem[pos/8] >> uint(7-pos%8) & 1
}

func (r *Registers) setBit(pos int, bit uint8) {
	if bit != 0 {
		r.mem[pos/8] |= 0x80 >> uint(pos%8)
	} else {
		r.mem[pos/8] &^= 0x80 >> uint(pos%8)
	}
}
