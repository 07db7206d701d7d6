// Copyright 2022 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sigma

import (
	"time"

	"golang.org/x/xerrors"
)

// The vendor firmware images, one per operating mode.
var firmwareFiles = [...]string{
	"asix-sigma-50.fw",     // up to 50MHz samplerate, 8bit divider
	"asix-sigma-100.fw",    // 100MHz samplerate, fixed
	"asix-sigma-200.fw",    // 200MHz samplerate, fixed
	"asix-sigma-50sync.fw", // synchronous clock from external pin
	"asix-sigma-phasor.fw", // frequency counter
}

const (
	fwSigma50 = iota
	fwSigma100
	fwSigma200
	fwSigma50Sync
	fwSigmaPhasor
)

// unscramble reverses the XOR obfuscation of the on-disk netlist
// in place. The mask stream is a PRNG seeded at 0x3f6df2ab; the modulo
// applies to the additive term only, the multiply wraps in uint32.
func unscramble(p []byte) {
	imm := uint32(0x3f6df2ab)
	for i := range p {
		imm = (imm+0xa853753)%177 + imm*0x8034052
		p[i] ^= uint8(imm)
	}
}

// bitbangStream expands the unscrambled netlist into bitbang samples
// for the Spartan-3 slave serial download: two samples per bit,
// MSB first, providing the DIN level and both CCLK edges.
//
// CCLK is inverted by the cable's level shifter. Setting the CCLK bit
// first and clearing it in the second sample produces a rising edge at
// the FPGA pin while DIN is stable, meeting the setup time constraint.
func bitbangStream(fw []byte) []byte {
	bbs := make([]byte, 0, len(fw)*8*2)
	for _, b := range fw {
		for mask := uint8(0x80); mask != 0; mask >>= 1 {
			v := uint8(0)
			if b&mask != 0 {
				v = bbPinDIN
			}
			bbs = append(bbs, v|bbPinCCLK, v)
		}
	}
	return bbs
}

// fpgaInitBitbang terminates the running FPGA program and initiates
// slave serial configuration: send the vendor's "suicide sequence",
// pulse PROG, then wait for the FPGA to assert INIT.
func (dev *Device) fpgaInitBitbang() error {
	suicide := []byte{
		bbPinD7 | bbPinD2,
		bbPinD7 | bbPinD2,
		bbPinD7 | bbPinD3,
		bbPinD7 | bbPinD2,
		bbPinD7 | bbPinD3,
		bbPinD7 | bbPinD2,
		bbPinD7 | bbPinD3,
		bbPinD7 | bbPinD2,
	}
	prog := []byte{
		bbPinCCLK,
		bbPinCCLK | bbPinPROG,
		bbPinCCLK | bbPinPROG,
		bbPinCCLK,
		bbPinCCLK,
		bbPinCCLK,
		bbPinCCLK,
		bbPinCCLK,
		bbPinCCLK,
		bbPinCCLK,
	}

	for i := 0; i < 4; i++ {
		err := dev.write(suicide)
		if err != nil {
			return xerrors.Errorf("sigma: could not write suicide sequence: %w", err)
		}
	}

	err := dev.write(prog)
	if err != nil {
		return xerrors.Errorf("sigma: could not pulse PROG: %w", err)
	}
	err = dev.purge()
	if err != nil {
		return xerrors.Errorf("sigma: could not purge input: %w", err)
	}

	var pins [1]byte
	for retry := 0; retry < 10; retry++ {
		n, err := dev.read(pins[:])
		if err != nil {
			return err
		}
		if n == 1 && pins[0]&bbPinINIT != 0 {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}

	return ErrTimeout
}

// fpgaInitLA checks that the configured FPGA answers as a logic
// analyzer and kicks off SDRAM initialization.
func (dev *Device) fpgaInitLA() error {
	const mode = wmrSDRAMInit
	start := []byte{
		// read ID register
		regAddrLow | (rdID & 0xf),
		regAddrHigh | (rdID >> 4),
		regReadAddr,

		// write 0x55 to the scratch register, read back
		regAddrLow | (wrTest & 0xf),
		regDataLow | 0x5,
		regDataHighWrite | 0x5,
		regReadAddr,

		// write 0xaa to the scratch register, read back
		regDataLow | 0xa,
		regDataHighWrite | 0xa,
		regReadAddr,

		// initiate SDRAM initialization in the mode register
		regAddrLow | (wrMode & 0xf),
		regDataLow | (mode & 0xf),
		regDataHighWrite | (mode >> 4),
	}

	err := dev.write(start)
	if err != nil {
		return xerrors.Errorf("sigma: could not write logic-analyzer start sequence: %w", err)
	}

	var resp [3]byte
	err = dev.readFull(resp[:])
	if err != nil {
		return xerrors.Errorf("sigma: could not read logic-analyzer start response: %w", err)
	}

	if resp[0] != 0xa6 || resp[1] != 0x55 || resp[2] != 0xaa {
		return xerrors.Errorf("sigma: invalid start response %x: %w", resp[:], ErrFPGAInit)
	}

	return nil
}

// uploadFirmware configures the FPGA with the indexed firmware image.
// Re-uploading the already loaded image is a no-op.
func (dev *Device) uploadFirmware(idx int) error {
	name := firmwareFiles[idx]
	if dev.curFirmware == idx {
		dev.msg.Printf("not uploading firmware file %q again", name)
		return nil
	}

	err := dev.setBitbang(bbPinMask)
	if err != nil {
		return err
	}
	err = dev.setBaud(bbBitrate)
	if err != nil {
		return err
	}

	err = dev.fpgaInitBitbang()
	if err != nil {
		return err
	}

	fw, err := dev.fwLoad(name)
	if err != nil {
		return xerrors.Errorf("sigma: could not load firmware %q: %w", name, err)
	}
	unscramble(fw)

	dev.msg.Printf("uploading firmware file %q", name)
	err = dev.write(bitbangStream(fw))
	if err != nil {
		return xerrors.Errorf("sigma: could not write netlist: %w", err)
	}

	// Leave bitbang mode and discard pending input data.
	err = dev.resetMode()
	if err != nil {
		return err
	}
	err = dev.purge()
	if err != nil {
		return xerrors.Errorf("sigma: could not purge input: %w", err)
	}
	var stale [1]byte
	for {
		n, err := dev.read(stale[:])
		if err != nil || n != 1 {
			break
		}
	}

	err = dev.fpgaInitLA()
	if err != nil {
		return err
	}

	dev.curFirmware = idx
	dev.msg.Printf("firmware uploaded")

	return nil
}
