// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package confdb // import "github.com/ljthink/pyBAR/confdb"

import (
	"context"
	"fmt"

	"github.com/ljthink/pyBAR/fei4"
	"github.com/ljthink/pyBAR/internal/bitstream"
)

// GlobalValue is one stored global register value.
type GlobalValue struct {
	Name  string `json:"register"`
	Value uint64 `json:"value"`
}

// PixelValue is one stored pixel register plane: the 672 bits of one
// bit layer in one double column, packed MSB first.
type PixelValue struct {
	Register string `json:"register"`
	DC       int    `json:"dc"`
	Layer    int    `json:"layer"`
	Plane    []byte `json:"plane"`
}

// Bits unpacks the stored plane.
func (v PixelValue) Bits() (*bitstream.Bits, error) {
	if len(v.Plane) != (fei4.PixelBits+7)/8 {
		return nil, fmt.Errorf(
			"confdb: register %s dc=%d layer=%d: plane is %d bytes, want %d",
			v.Register, v.DC, v.Layer, len(v.Plane), (fei4.PixelBits+7)/8,
		)
	}
	bs := bitstream.New(fei4.PixelBits)
	for i := 0; i < fei4.PixelBits; i++ {
		bs.AppendBit(v.Plane[i/8] >> (7 - uint(i)%8) & 1)
	}
	return bs, nil
}

// ApplyConfig loads the stored configuration of one module and applies
// it to the given register set.
func (db *DB) ApplyConfig(ctx context.Context, config, module string, reg *fei4.Registers) error {
	globals, err := db.GlobalConfig(ctx, config, module)
	if err != nil {
		return err
	}
	for _, v := range globals {
		if err := reg.Set(v.Name, v.Value); err != nil {
			return fmt.Errorf("confdb: could not apply global %s: %w", v.Name, err)
		}
	}

	pixels, err := db.PixelConfig(ctx, config, module)
	if err != nil {
		return err
	}
	for _, v := range pixels {
		bs, err := v.Bits()
		if err != nil {
			return err
		}
		if err := reg.SetPixel(v.Register, v.DC, v.Layer, bs); err != nil {
			return fmt.Errorf(
				"confdb: could not apply pixel %s dc=%d layer=%d: %w",
				v.Register, v.DC, v.Layer, err,
			)
		}
	}
	return nil
}
