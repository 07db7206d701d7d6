// Copyright 2022 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sigma holds functions to control and read out the ASIX
// SIGMA and SIGMA2 USB logic analyzers.
//
// The device is a bitstream-programmable Spartan-3 FPGA behind an FTDI
// USB bridge. The driver downloads an unscrambled netlist through the
// cable's bitbang mode, talks to the FPGA register file with a
// nibble-framed command language and, once a capture completed,
// downloads and decodes the circular sample DRAM.
package sigma // import "github.com/go-daq/asix/sigma"

import (
	"errors"
)

var (
	// ErrUnsupportedSamplerate is returned when a requested samplerate
	// is not one of the canonical rates the firmwares support.
	ErrUnsupportedSamplerate = errors.New("sigma: unsupported samplerate")

	// ErrUnsupportedTrigger is returned when a trigger specification
	// can not be mapped onto the device's match units.
	ErrUnsupportedTrigger = errors.New("sigma: unsupported trigger")

	// ErrShortBuffer is returned for register writes that would not
	// fit the device's command frame. This is a programming bug, no
	// I/O is attempted.
	ErrShortBuffer = errors.New("sigma: register write exceeds command frame")

	// ErrTimeout is returned when the FPGA does not assert INIT
	// during the configuration handshake.
	ErrTimeout = errors.New("sigma: timeout waiting for FPGA INIT")

	// ErrFPGAInit is returned when the post-upload ID/scratch
	// register check fails.
	ErrFPGAInit = errors.New("sigma: FPGA initialization failed")
)

// Samplerates lists the samplerates the driver supports, in Hz.
//
// The device could divide its 50 MHz base clock by any integer in
// 1..256; only the canonical subset is exposed. 100 and 200 MHz need
// dedicated firmware and restrict the channel count.
var Samplerates = []uint64{
	200_000,
	250_000,
	500_000,
	1_000_000,
	5_000_000,
	10_000_000,
	25_000_000,
	50_000_000,
	100_000_000,
	200_000_000,
}

// PacketKind discriminates packets handed to a Sink.
type PacketKind uint8

const (
	// Logic packets carry 16-bit channel vectors, one per sample.
	Logic PacketKind = iota
	// TriggerMark is emitted once, between the pre-trigger and the
	// post-trigger samples of the triggering cluster.
	TriggerMark
	// EndOfFeed terminates a capture.
	EndOfFeed
)

// Sink consumes the decoded sample stream of a capture.
//
// Buffers passed to Emit are only valid for the duration of the call.
type Sink interface {
	Emit(kind PacketKind, unitSize int, data []byte) error
}

// FirmwareLoader returns the (scrambled, on-disk) content of the named
// firmware file. Implementations must refuse files larger than
// FirmwareSizeLimit.
type FirmwareLoader func(name string) ([]byte, error)

// FirmwareSizeLimit caps the size of a firmware netlist file.
const FirmwareSizeLimit = 256 * 1024

// TriggerKind is the per-channel condition of a trigger match.
type TriggerKind uint8

const (
	// High matches a channel at logic 1.
	High TriggerKind = iota
	// Low matches a channel at logic 0.
	Low
	// Rising matches a 0 to 1 transition.
	Rising
	// Falling matches a 1 to 0 transition.
	Falling
)

// TriggerMatch requests a condition on one channel.
type TriggerMatch struct {
	Channel int // channel index, 0-15
	Kind    TriggerKind
}

// TriggerStage groups the matches of one trigger stage. The hardware
// evaluates all matches of a stage together.
type TriggerStage struct {
	Matches []TriggerMatch
}

// TriggerSpec is the symbolic trigger configuration of a capture.
// Only the first stage is honored by the SIGMA match units.
type TriggerSpec struct {
	Stages []TriggerStage
}

// trigger is the compiled form of a TriggerSpec.
type trigger struct {
	simpleValue uint16
	simpleMask  uint16
	risingMask  uint16
	fallingMask uint16
}

// captureState tracks the acquisition state machine.
type captureState uint8

const (
	stateIdle captureState = iota
	stateCapture
	stateStopping
	stateDownload
)

// decoderState is carried across cluster decoding within one capture.
type decoderState struct {
	state      captureState
	lastTS     uint16
	lastSample uint16
}
