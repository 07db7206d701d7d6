// Copyright 2022 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sigma

// USB identifiers of the SIGMA/SIGMA2 cable.
const (
	usbVendorID  = 0xa600
	usbProductID = 0xa000
)

// The FPGA's register file is driven with nibble-sized commands over
// the FTDI byte pipe. The high nibble of each written byte carries the
// opcode, the low nibble carries the payload (or flags).
const (
	regAddrLow       = 0x00 // load low nibble of register address
	regAddrHigh      = 0x10 // load high nibble of register address
	regDataLow       = 0x20 // stage low nibble of data
	regDataHighWrite = 0x30 // stage high nibble, commit write
	regReadAddr      = 0x40 // emit one byte from the addressed register
	regDRAMWaitAck   = 0x50 // wait for DRAM transfer acknowledge

	regAddrInc = 0x01 // auto-increment address after regReadAddr

	// DRAM burst commands. Bit (1 << 4) selects one of the two
	// FPGA-internal buffers used to overlap DRAM fetch and USB drain.
	regDRAMBlock     = 0x60
	regDRAMBlockData = 0xa0
	regDRAMSel1      = 0x10
)

func regDRAMSel(sel bool) uint8 {
	if sel {
		return regDRAMSel1
	}
	return 0
}

// Write registers.
const (
	wrClockSelect    = 0x0
	wrTriggerSelect  = 0x1
	wrTriggerSelect2 = 0x2
	wrMode           = 0x3
	wrMemRow         = 0x4
	wrPostTrigger    = 0x5
	wrTriggerOption  = 0x6
	wrPinView        = 0x7
	wrTest           = 0xf
)

// Read registers.
const (
	rdID            = 0x0
	rdTriggerPosLow = 0x1
	rdMode          = 0x7
	rdTest          = 0xf
)

// Mode register bits, write side.
const (
	wmrSDRAMWriteEn = 0x04
	wmrSDRAMReadEn  = 0x08
	wmrTrgRes       = 0x10
	wmrTrgEn        = 0x20
	wmrForceStop    = 0x40
	wmrSDRAMInit    = 0x80
)

// Mode register bits, read side.
const (
	rmrSDRAMWriteEn  = 0x01
	rmrSDRAMReadEn   = 0x02
	rmrTrgRes        = 0x04
	rmrTrgEn         = 0x08
	rmrRound         = 0x10
	rmrTriggered     = 0x20
	rmrPostTriggered = 0x40
	rmrFull          = 0x80
)

const (
	ledSel0 = 6
	ledSel1 = 7
)

// Sample memory geometry. DRAM is organized as rows ("lines") of 1024
// bytes, each holding 64 clusters of one 16-bit timestamp plus seven
// 16-bit sample items.
const (
	rowCount         = 2048
	rowShift         = 9
	rowMask          = 0x1ff
	clustersPerRow   = 64
	eventsPerCluster = 7
	eventsPerRow     = clustersPerRow * eventsPerCluster
	rowLengthBytes   = 1024
	rowLengthU16     = 512
	clusterBytes     = 16
)

// Bitbang pin assignment during FPGA configuration download.
// All pins except INIT are outputs. CCLK and PROG are inverted by the
// cable's level shifters.
const (
	bbPinCCLK = 1 << 0 // D0, CCLK
	bbPinPROG = 1 << 1 // D1, PROG
	bbPinD2   = 1 << 2 // D2, (part of) suicide sequence
	bbPinD3   = 1 << 3 // D3, (part of) suicide sequence
	bbPinD4   = 1 << 4 // D4, (part of) suicide sequence
	bbPinINIT = 1 << 5 // D5, INIT, input pin
	bbPinDIN  = 1 << 6 // D6, DIN
	bbPinD7   = 1 << 7 // D7, (part of) suicide sequence

	bbBitrate = 750 * 1000
	bbPinMask = 0xff &^ bbPinINIT
)
