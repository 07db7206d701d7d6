// Copyright 2022 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sigma

import (
	"golang.org/x/xerrors"
)

// triggerLUT is the 16-entry transposed look-up table programmed into
// the FPGA match units.
type triggerLUT struct {
	m0d, m1d, m2d [4]uint16
	m3, m3s, m4   uint16

	params lutParams
}

// lutParams is the parameter block sent after the LUT proper, as a
// single register write.
type lutParams struct {
	selc     uint8 // 2 bits
	selpresc uint8 // 6 bits
	selinc   uint8 // 2 bits
	selres   uint8 // 2 bits
	sela     uint8 // 2 bits
	selb     uint8 // 2 bits
	cmpb     uint16
	cmpa     uint16
}

func (p *lutParams) bytes() [6]byte {
	var buf [6]byte
	buf[0] = p.selc&0x3 | p.selpresc<<2
	buf[1] = p.selinc&0x3 | (p.selres&0x3)<<2 | (p.sela&0x3)<<4 | (p.selb&0x3)<<6
	buf[2] = uint8(p.cmpb)
	buf[3] = uint8(p.cmpb >> 8)
	buf[4] = uint8(p.cmpa)
	buf[5] = uint8(p.cmpa >> 8)
	return buf
}

// triggerOp enumerates the edge/level operators a LUT layer can
// implement on one input pair (previous, current).
type triggerOp uint8

const (
	opLevel triggerOp = iota
	opNot
	opRise
	opFall
	opRiseFall
	opNotRise
	opNotFall
	opNotRiseFall
)

// triggerFunc combines a LUT layer with the accumulated mask.
type triggerFunc uint8

const (
	funcAnd triggerFunc = iota
	funcNand
	funcOr
	funcNor
	funcXor
	funcNxor
)

// convertTrigger compiles the symbolic trigger specification into the
// mask/value/edge form the LUT compiler consumes.
//
// In 100 and 200 MHz mode only a single pin rising/falling match is
// supported. In the other modes two rising/falling matches can be set,
// in addition to value/mask matches on any number of channels.
func (dev *Device) convertTrigger(spec TriggerSpec) error {
	dev.trg = trigger{}

	triggerSet := 0
	for _, stage := range spec.Stages {
		for _, match := range stage.Matches {
			channelbit := uint16(1) << match.Channel
			if dev.samplerate >= 100_000_000 {
				// Fast trigger support.
				if triggerSet != 0 {
					return xerrors.Errorf("sigma: only a single pin match is supported in 100 and 200MHz mode: %w",
						ErrUnsupportedTrigger,
					)
				}
				switch match.Kind {
				case Falling:
					dev.trg.fallingMask |= channelbit
				case Rising:
					dev.trg.risingMask |= channelbit
				default:
					return xerrors.Errorf("sigma: only rising/falling matches are supported in 100 and 200MHz mode: %w",
						ErrUnsupportedTrigger,
					)
				}
				triggerSet++
			} else {
				// Simple trigger support (event).
				switch match.Kind {
				case High:
					dev.trg.simpleValue |= channelbit
					dev.trg.simpleMask |= channelbit
				case Low:
					dev.trg.simpleValue &^= channelbit
					dev.trg.simpleMask |= channelbit
				case Falling:
					dev.trg.fallingMask |= channelbit
					triggerSet++
				case Rising:
					dev.trg.risingMask |= channelbit
					triggerSet++
				}

				// The hardware has two edge slots which it ORs
				// together. More edges do not fit the match units.
				if triggerSet > 2 {
					return xerrors.Errorf("sigma: only 2 rising/falling matches are supported: %w",
						ErrUnsupportedTrigger,
					)
				}
			}
		}
	}

	return nil
}

// buildLUTEntry fills the four quad entries for a value/mask match:
// bit j of entry[i] stays set iff every masked channel of quad i
// agrees with the 4-bit pattern j.
func buildLUTEntry(value, mask uint16, entry *[4]uint16) {
	for i := 0; i < 4; i++ {
		entry[i] = 0xffff
		for j := 0; j < 16; j++ {
			for k := 0; k < 4; k++ {
				bit := uint16(1) << (i*4 + k)
				if mask&bit != 0 && (value&bit != 0) != (j&(1<<k) != 0) {
					entry[i] &^= 1 << j
				}
			}
		}
	}
}

// addTriggerFunction merges one edge/level layer into mask, combining
// the layer's 2x2 truth table with the accumulated LUT bits.
func addTriggerFunction(op triggerOp, fn triggerFunc, index int, neg bool, mask *uint16) {
	var x [2][2]int

	switch op {
	case opLevel:
		x[0][1] = 1
		x[1][1] = 1
	case opNot:
		x[0][0] = 1
		x[1][0] = 1
	case opRise:
		x[0][1] = 1
	case opFall:
		x[1][0] = 1
	case opRiseFall:
		x[0][1] = 1
		x[1][0] = 1
	case opNotRise:
		x[1][1] = 1
		x[0][0] = 1
		x[1][0] = 1
	case opNotFall:
		x[1][1] = 1
		x[0][0] = 1
		x[0][1] = 1
	case opNotRiseFall:
		x[1][1] = 1
		x[0][0] = 1
	}

	// Transpose diagonally if negated.
	if neg {
		for i := 0; i < 2; i++ {
			for j := 0; j < 2; j++ {
				x[i][j], x[1-i][1-j] = x[1-i][1-j], x[i][j]
			}
		}
	}

	for i := 0; i < 16; i++ {
		a := (i >> (2 * index)) & 1
		b := (i >> (2*index + 1)) & 1

		aset := int(*mask>>i) & 1
		bset := x[b][a]

		var rset int
		switch fn {
		case funcAnd, funcNand:
			rset = aset & bset
		case funcOr, funcNor:
			rset = aset | bset
		case funcXor, funcNxor:
			rset = aset ^ bset
		}
		switch fn {
		case funcNand, funcNor, funcNxor:
			rset ^= 1
		}

		*mask &^= 1 << i
		if rset != 0 {
			*mask |= 1 << i
		}
	}
}

// buildBasicTrigger compiles the LUT for the 50 MHz and lower rates:
// a full value/mask match plus up to two OR-ed rise/fall transitions.
func (dev *Device) buildBasicTrigger() *triggerLUT {
	var lut triggerLUT

	// Constant for simple triggers.
	lut.m4 = 0xa000

	// Value/mask trigger support.
	buildLUTEntry(dev.trg.simpleValue, dev.trg.simpleMask, &lut.m2d)

	// Rise/fall trigger support.
	var masks [2]uint16
	for i, j := 0, 0; i < 16 && j < len(masks); i++ {
		bit := uint16(1) << i
		if dev.trg.risingMask&bit != 0 || dev.trg.fallingMask&bit != 0 {
			masks[j] = bit
			j++
		}
	}

	buildLUTEntry(masks[0], masks[0], &lut.m0d)
	buildLUTEntry(masks[1], masks[1], &lut.m1d)

	// Glue logic.
	switch {
	case masks[0] != 0 || masks[1] != 0:
		if masks[0]&dev.trg.risingMask != 0 {
			addTriggerFunction(opRise, funcOr, 0, false, &lut.m3)
		}
		if masks[0]&dev.trg.fallingMask != 0 {
			addTriggerFunction(opFall, funcOr, 0, false, &lut.m3)
		}
		if masks[1]&dev.trg.risingMask != 0 {
			addTriggerFunction(opRise, funcOr, 1, false, &lut.m3)
		}
		if masks[1]&dev.trg.fallingMask != 0 {
			addTriggerFunction(opFall, funcOr, 1, false, &lut.m3)
		}
	default:
		// Only value/mask trigger.
		lut.m3 = 0xffff
	}

	// Trigger type: event.
	lut.params.selres = 3

	return &lut
}
