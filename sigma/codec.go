// Copyright 2022 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sigma

import (
	"io"

	"golang.org/x/xerrors"
)

// regFrameSize is large enough to hold any register write the driver
// performs in one command frame.
const regFrameSize = 80

// writeRegister writes data to the addressed register: one address
// preamble, then one (low,high) nibble pair per data byte.
func (dev *Device) writeRegister(reg uint8, data []byte) error {
	var buf [regFrameSize]byte

	if 2*len(data)+2 > len(buf) {
		return xerrors.Errorf("sigma: could not write %d bytes to register 0x%x: %w",
			len(data), reg, ErrShortBuffer,
		)
	}

	i := 0
	buf[i] = regAddrLow | (reg & 0xf)
	i++
	buf[i] = regAddrHigh | (reg >> 4)
	i++

	for _, v := range data {
		buf[i] = regDataLow | (v & 0xf)
		i++
		buf[i] = regDataHighWrite | (v >> 4)
		i++
	}

	return dev.write(buf[:i])
}

func (dev *Device) setRegister(reg, value uint8) error {
	return dev.writeRegister(reg, []byte{value})
}

// readRegister reads len(p) bytes from the addressed register. The
// register emits one byte per regReadAddr command; multi-byte reads
// rely on the device pushing further bytes for the same address.
func (dev *Device) readRegister(reg uint8, p []byte) error {
	cmd := []byte{
		regAddrLow | (reg & 0xf),
		regAddrHigh | (reg >> 4),
		regReadAddr,
	}

	err := dev.write(cmd)
	if err != nil {
		return xerrors.Errorf("sigma: could not address register 0x%x: %w", reg, err)
	}

	return dev.readFull(p)
}

// readPos reads the stop and trigger positions, two 24-bit counters
// assembled from 6 registers starting at the trigger position LSB.
func (dev *Device) readPos() (stopPos, triggerPos uint32, err error) {
	cmd := []byte{
		regAddrLow | rdTriggerPosLow,
		regReadAddr | regAddrInc,
		regReadAddr | regAddrInc,
		regReadAddr | regAddrInc,
		regReadAddr | regAddrInc,
		regReadAddr | regAddrInc,
		regReadAddr | regAddrInc,
	}

	err = dev.write(cmd)
	if err != nil {
		return 0, 0, xerrors.Errorf("sigma: could not request positions: %w", err)
	}

	var buf [6]byte
	err = dev.readFull(buf[:])
	if err != nil {
		return 0, 0, xerrors.Errorf("sigma: could not read positions: %w", err)
	}

	triggerPos = uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16
	stopPos = uint32(buf[3]) | uint32(buf[4])<<8 | uint32(buf[5])<<16

	// The counters point past the event (end of capture data, trigger
	// condition matched), hence the decrement. Sample memory consists
	// of 512-entity chunks whose upper 64 entries are metadata, so a
	// decrement that lands in the metadata region moves further back
	// to the end of the chunk's data part.
	//
	// TODO(sigma): re-check that rationale against the row layout (64
	// timestamps and 448 events per 512-u16 row, not 64 entries at the
	// top of a 512-byte block). The adjustment matches the hardware,
	// the comment may not.
	stopPos--
	if stopPos&rowMask == rowMask {
		stopPos -= 64
	}
	triggerPos--
	if triggerPos&rowMask == rowMask {
		triggerPos -= 64
	}

	return stopPos, triggerPos, nil
}

// readDRAM downloads numRows DRAM rows starting at startRow into out.
//
// The command stream interleaves the FPGA's DRAM fetches with the USB
// drain: while one of the two FPGA-internal buffers empties over USB,
// the other one is filled from DRAM.
func (dev *Device) readDRAM(startRow uint16, numRows int, out []byte) (int, error) {
	if len(out) < numRows*rowLengthBytes {
		return 0, xerrors.Errorf("sigma: DRAM read buffer too small (got=%d, want=%d)",
			len(out), numRows*rowLengthBytes,
		)
	}

	err := dev.writeRegister(wrMemRow, []byte{uint8(startRow >> 8), uint8(startRow)})
	if err != nil {
		return 0, xerrors.Errorf("sigma: could not set DRAM start row: %w", err)
	}

	buf := make([]byte, 0, 3*numRows+2)
	buf = append(buf, regDRAMBlock)
	buf = append(buf, regDRAMWaitAck)
	for row := 0; row < numRows; row++ {
		sel := row%2 == 1
		last := row == numRows-1
		if !last {
			buf = append(buf, regDRAMBlock|regDRAMSel(!sel))
		}
		buf = append(buf, regDRAMBlockData|regDRAMSel(sel))
		if !last {
			buf = append(buf, regDRAMWaitAck)
		}
	}

	err = dev.write(buf)
	if err != nil {
		return 0, xerrors.Errorf("sigma: could not request DRAM rows: %w", err)
	}

	n, err := io.ReadFull(dev.ft, out[:numRows*rowLengthBytes])
	if err != nil {
		return n, xerrors.Errorf("sigma: could not read DRAM rows: %w", err)
	}
	return n, nil
}

// writeTriggerLUT transposes the look-up table and uploads it to the
// FPGA match units, then sends the parameter block.
func (dev *Device) writeTriggerLUT(lut *triggerLUT) error {
	for i := 0; i < 16; i++ {
		var (
			bit = uint16(1) << i
			tmp [2]byte
		)

		if lut.m2d[0]&bit != 0 {
			tmp[0] |= 0x01
		}
		if lut.m2d[1]&bit != 0 {
			tmp[0] |= 0x02
		}
		if lut.m2d[2]&bit != 0 {
			tmp[0] |= 0x04
		}
		if lut.m2d[3]&bit != 0 {
			tmp[0] |= 0x08
		}
		if lut.m3&bit != 0 {
			tmp[0] |= 0x10
		}
		if lut.m3s&bit != 0 {
			tmp[0] |= 0x20
		}
		if lut.m4&bit != 0 {
			tmp[0] |= 0x40
		}

		if lut.m0d[0]&bit != 0 {
			tmp[1] |= 0x01
		}
		if lut.m0d[1]&bit != 0 {
			tmp[1] |= 0x02
		}
		if lut.m0d[2]&bit != 0 {
			tmp[1] |= 0x04
		}
		if lut.m0d[3]&bit != 0 {
			tmp[1] |= 0x08
		}
		if lut.m1d[0]&bit != 0 {
			tmp[1] |= 0x10
		}
		if lut.m1d[1]&bit != 0 {
			tmp[1] |= 0x20
		}
		if lut.m1d[2]&bit != 0 {
			tmp[1] |= 0x40
		}
		if lut.m1d[3]&bit != 0 {
			tmp[1] |= 0x80
		}

		err := dev.writeRegister(wrTriggerSelect, tmp[:])
		if err != nil {
			return xerrors.Errorf("sigma: could not upload LUT slice %d: %w", i, err)
		}
		err = dev.setRegister(wrTriggerSelect2, 0x30|uint8(i))
		if err != nil {
			return xerrors.Errorf("sigma: could not select LUT slice %d: %w", i, err)
		}
	}

	params := lut.params.bytes()
	err := dev.writeRegister(wrTriggerSelect, params[:])
	if err != nil {
		return xerrors.Errorf("sigma: could not upload LUT parameters: %w", err)
	}

	return nil
}
