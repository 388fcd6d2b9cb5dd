// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import "fmt"

// Raw data words are 32 bits wide. Bit 31 marks trigger words; data
// words carry their source channel in bits 24-27, with the top nibble
// distinguishing TDC words (0x4) from front-end words (0x0).
const (
	triggerBit  = 0x80000000
	tdcTag      = 0x4
	chShift     = 24
	chMask      = 0xf
	payloadMask = 0x00ffffff
)

// IsTriggerWord reports whether w is a trigger-counter word. Trigger
// words are visible to every module.
func IsTriggerWord(w uint32) bool { return w&triggerBit != 0 }

// IsTDCWord reports whether w is a TDC time stamp word.
func IsTDCWord(w uint32) bool { return w&triggerBit == 0 && w>>28 == tdcTag }

// IsFEWord reports whether w is a front-end data word.
func IsFEWord(w uint32) bool { return w&triggerBit == 0 && w>>28 == 0 }

// Channel extracts the source channel of a data word.
func Channel(w uint32) uint8 { return uint8(w >> chShift & chMask) }

// FEWord builds a front-end data word for the given channel.
func FEWord(ch uint8, payload uint32) uint32 {
	return uint32(ch&chMask)<<chShift | payload&payloadMask
}

// TDCWord builds a TDC word for the given channel.
func TDCWord(ch uint8, payload uint32) uint32 {
	return tdcTag<<28 | uint32(ch&chMask)<<chShift | payload&payloadMask
}

// TriggerWord builds a trigger-counter word.
func TriggerWord(count uint32) uint32 { return triggerBit | count&^uint32(triggerBit) }

// WordFilter selects raw words.
type WordFilter func(w uint32) bool

// WordConverter rewrites raw words in flight.
type WordConverter func(w uint32) uint32

// FromChannel returns a filter matching data words of one channel.
func FromChannel(ch uint8) WordFilter {
	return func(w uint32) bool { return Channel(w) == ch }
}

// And composes filters conjunctively.
func And(fs ...WordFilter) WordFilter {
	return func(w uint32) bool {
		for _, f := range fs {
			if !f(w) {
				return false
			}
		}
		return true
	}
}

// Or composes filters disjunctively.
func Or(fs ...WordFilter) WordFilter {
	return func(w uint32) bool {
		for _, f := range fs {
			if f(w) {
				return true
			}
		}
		return false
	}
}

// ConvertTDCToChannel remaps the channel field of TDC words, leaving
// every other word untouched.
func ConvertTDCToChannel(ch uint8) WordConverter {
	return func(w uint32) uint32 {
		if !IsTDCWord(w) {
			return w
		}
		return TDCWord(ch, w&payloadMask)
	}
}

// route is the per-module slice of the router.
type route struct {
	id      string
	filter  WordFilter
	convert WordConverter
	sink    Sink
	params  func() map[string]interface{}
}

// Router fans drained batches out to per-module sinks. Each module
// sees the trigger words plus the data words of its own channels,
// optionally rewritten, tagged with its current scan parameters.
type Router struct {
	routes []*route
}

// NewRouter returns an empty router.
func NewRouter() *Router { return &Router{} }

// AddModule wires the routing of one module: its RX channel filter,
// its optional TDC channel, the sink, and a provider of the module's
// current scan-parameter snapshot.
func (rt *Router) AddModule(mod *Module, sink Sink, params func() map[string]interface{}) {
	filter := Or(
		IsTriggerWord,
		And(IsFEWord, FromChannel(uint8(mod.RxChannel))),
	)
	var convert WordConverter
	if mod.TdcChannel != nil {
		tdc := uint8(*mod.TdcChannel)
		filter = Or(filter, And(IsTDCWord, FromChannel(tdc)))
		convert = ConvertTDCToChannel(uint8(mod.RxChannel))
	}
	rt.routes = append(rt.routes, &route{
		id:      mod.ID,
		filter:  filter,
		convert: convert,
		sink:    sink,
		params:  params,
	})
}

// Route distributes one batch. newSegment and flush are forwarded to
// the sinks to mark scan-parameter boundaries.
func (rt *Router) Route(b Batch, newSegment, flush bool) error {
	for _, r := range rt.routes {
		words := make([]uint32, 0, len(b.Words))
		for _, w := range b.Words {
			if !r.filter(w) {
				continue
			}
			if r.convert != nil {
				w = r.convert(w)
			}
			words = append(words, w)
		}
		if len(words) == 0 && !newSegment && !flush {
			continue
		}
		var params map[string]interface{}
		if r.params != nil {
			params = r.params()
		}
		sub := Batch{Words: words, Start: b.Start, Stop: b.Stop}
		if err := r.sink.Append(sub, params, newSegment, flush); err != nil {
			return fmt.Errorf("daq: could not route batch to %s: %w", r.id, err)
		}
	}
	return nil
}

// Close closes every sink, keeping the first error.
func (rt *Router) Close() error {
	var first error
	for _, r := range rt.routes {
		if err := r.sink.Close(); err != nil && first == nil {
			first = fmt.Errorf("daq: could not close sink of %s: %w", r.id, err)
		}
	}
	return first
}
