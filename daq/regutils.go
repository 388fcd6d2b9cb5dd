// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"fmt"

	"github.com/ljthink/pyBAR/fei4"
	"github.com/ljthink/pyBAR/internal/bitstream"
)

// RegUtils serializes chip commands for one register set onto its
// command line.
type RegUtils struct {
	tx  Tx
	reg *fei4.Registers
}

// NewRegUtils binds a register set to its command line.
func NewRegUtils(tx Tx, reg *fei4.Registers) *RegUtils {
	return &RegUtils{tx: tx, reg: reg}
}

// Registers returns the bound register set.
func (u *RegUtils) Registers() *fei4.Registers { return u.reg }

func (u *RegUtils) send(name string, fields map[fei4.Field]*bitstream.Bits) error {
	bits, err := fei4.Encode(name, fields)
	if err != nil {
		return fmt.Errorf("daq: could not encode %s: %w", name, err)
	}
	if err := u.tx.Send(bits); err != nil {
		return fmt.Errorf("daq: could not send %s: %w", name, err)
	}
	return nil
}

func (u *RegUtils) sendChip(name string, extra map[fei4.Field]*bitstream.Bits) error {
	fields := map[fei4.Field]*bitstream.Bits{
		fei4.FieldChipID: bitstream.FromUint(u.reg.ChipID(), 4),
	}
	for f, v := range extra {
		fields[f] = v
	}
	return u.send(name, fields)
}

// LV1 issues a level-1 trigger.
func (u *RegUtils) LV1() error { return u.send(fei4.CmdLV1, nil) }

// BCR resets the bunch-crossing counter.
func (u *RegUtils) BCR() error { return u.send(fei4.CmdBCR, nil) }

// ECR resets the event counters and memory pointers.
func (u *RegUtils) ECR() error { return u.send(fei4.CmdECR, nil) }

// CalPulse distributes a calibration pulse to the pixel array.
func (u *RegUtils) CalPulse() error { return u.send(fei4.CmdCAL, nil) }

// GlobalReset puts the chip back into its initial state.
func (u *RegUtils) GlobalReset() error {
	return u.sendChip(fei4.CmdGlobalReset, nil)
}

// GlobalPulse fires a global pulse of the given width.
func (u *RegUtils) GlobalPulse(width uint8) error {
	if width > 63 {
		return fmt.Errorf("daq: pulse width %d out of range [0,63]", width)
	}
	return u.sendChip(fei4.CmdGlobalPulse, map[fei4.Field]*bitstream.Bits{
		fei4.FieldWidth: bitstream.FromUint(uint64(width), 6),
	})
}

// SetRunMode switches the chip to run mode.
func (u *RegUtils) SetRunMode() error {
	return u.sendChip(fei4.CmdRunMode, nil)
}

// SetConfMode switches the chip to configuration mode.
func (u *RegUtils) SetConfMode() error {
	return u.sendChip(fei4.CmdConfMode, nil)
}

// WriteWord sends the current 16-bit configuration word at addr.
func (u *RegUtils) WriteWord(addr uint8) error {
	if addr >= fei4.NumWords {
		return fmt.Errorf("daq: register address %d out of range [0,%d)", addr, fei4.NumWords)
	}
	return u.sendChip(fei4.CmdWrRegister, map[fei4.Field]*bitstream.Bits{
		fei4.FieldAddress:    bitstream.FromUint(uint64(addr), 6),
		fei4.FieldGlobalData: bitstream.FromUint(uint64(u.reg.Word(addr)), 16),
	})
}

// ReadWord requests the configuration word at addr. The value comes
// back through the data stream.
func (u *RegUtils) ReadWord(addr uint8) error {
	if addr >= fei4.NumWords {
		return fmt.Errorf("daq: register address %d out of range [0,%d)", addr, fei4.NumWords)
	}
	return u.sendChip(fei4.CmdRdRegister, map[fei4.Field]*bitstream.Bits{
		fei4.FieldAddress: bitstream.FromUint(uint64(addr), 6),
	})
}

// Set updates a global register locally and writes the affected
// configuration words to the chip.
func (u *RegUtils) Set(name string, v uint64) error {
	if err := u.reg.Set(name, v); err != nil {
		return err
	}
	addrs, err := u.reg.Flavor().AffectedAddrs(name)
	if err != nil {
		return err
	}
	for _, addr := range addrs {
		if err := u.WriteWord(addr); err != nil {
			return err
		}
	}
	return nil
}

// WriteGlobal sends every writable configuration word.
func (u *RegUtils) WriteGlobal() error {
	for _, addr := range u.reg.Flavor().Addresses() {
		if err := u.WriteWord(addr); err != nil {
			return err
		}
	}
	return nil
}

// WriteFrontEnd shifts one bit layer of a pixel register into one
// double column and latches it through its strobe.
func (u *RegUtils) WriteFrontEnd(name string, dc, layer int) error {
	preg, ok := u.reg.Flavor().PixelByName(name)
	if !ok {
		return fmt.Errorf("daq: unknown pixel register %q", name)
	}
	payload, err := u.reg.Pixel(name, dc, layer)
	if err != nil {
		return err
	}

	// Select the double column and shift the payload in.
	if err := u.Set("Colpr_Mode", 0); err != nil {
		return err
	}
	if err := u.Set("Colpr_Addr", uint64(dc)); err != nil {
		return err
	}
	if err := u.sendChip(fei4.CmdWrFrontEnd, map[fei4.Field]*bitstream.Bits{
		fei4.FieldPixelData: payload,
	}); err != nil {
		return err
	}

	// Latch through the strobe, except for shift-register-only
	// payloads which stay in place.
	strobe := preg.Strobe(layer)
	if strobe == fei4.PxStrobeSR {
		return nil
	}
	if err := u.Set("Pixel_Strobes", 1<<uint(strobe)); err != nil {
		return err
	}
	if err := u.Set("Latch_En", 1); err != nil {
		return err
	}
	if err := u.GlobalPulse(0); err != nil {
		return err
	}
	if err := u.Set("Latch_En", 0); err != nil {
		return err
	}
	return u.Set("Pixel_Strobes", 0)
}

// WritePixel writes every bit layer of a pixel register to every
// double column.
func (u *RegUtils) WritePixel(name string) error {
	preg, ok := u.reg.Flavor().PixelByName(name)
	if !ok {
		return fmt.Errorf("daq: unknown pixel register %q", name)
	}
	for dc := 0; dc < fei4.NumDC; dc++ {
		for layer := 0; layer < preg.Len; layer++ {
			if err := u.WriteFrontEnd(name, dc, layer); err != nil {
				return err
			}
		}
	}
	return nil
}

// Configure sends the complete configuration: every writable global
// word, then every pixel register.
func (u *RegUtils) Configure() error {
	if err := u.WriteGlobal(); err != nil {
		return err
	}
	for _, preg := range u.reg.Flavor().Pixel {
		if err := u.WritePixel(preg.Name); err != nil {
			return err
		}
	}
	return nil
}
