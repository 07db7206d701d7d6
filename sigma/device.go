// Copyright 2022 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sigma

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/ziutek/ftdi"
	"golang.org/x/xerrors"
)

type ftdiDevice interface {
	Reset() error

	SetBitmode(iomask byte, mode ftdi.Mode) error
	SetBaudrate(rate int) error
	SetFlowControl(flowctrl ftdi.FlowCtrl) error
	SetLatencyTimer(lt int) error
	SetWriteChunkSize(cs int) error
	SetReadChunkSize(cs int) error
	PurgeBuffers() error
	PurgeReadBuffer() error

	io.Writer
	io.Reader
	io.Closer
}

var (
	ftdiOpen = ftdiOpenImpl
)

func ftdiOpenImpl(vid, pid uint16) (ftdiDevice, error) {
	dev, err := ftdi.OpenFirst(int(vid), int(pid), ftdi.ChannelAny)
	return dev, err
}

// Device drives one SIGMA/SIGMA2 logic analyzer.
//
// A Device is not safe for concurrent use: the register protocol
// interleaves commands and responses on a single byte pipe, so the
// tick, acquisition-start and acquisition-stop calls must be
// serialized by the caller's event loop.
type Device struct {
	msg *log.Logger
	ft  ftdiDevice

	fwDir  string
	fwLoad FirmwareLoader
	sink   Sink
	now    func() time.Time

	samplerate      uint64
	numChannels     int
	samplesPerEvent int
	curFirmware     int // index into firmware table, -1 when none loaded

	limitSamples uint64
	limitMsec    uint64
	sentSamples  uint64
	captureRatio int // percentage of samples to keep before the trigger

	startTime time.Time

	trgSpec     TriggerSpec
	trg         trigger
	useTriggers bool

	state decoderState
}

// Option configures a Device.
type Option func(*Device)

// WithSink sets the sink that consumes decoded sample packets.
func WithSink(sink Sink) Option {
	return func(dev *Device) {
		dev.sink = sink
	}
}

// WithFirmwareDir sets the directory the default loader reads the
// vendor firmware files from.
func WithFirmwareDir(dir string) Option {
	return func(dev *Device) {
		dev.fwDir = dir
	}
}

// WithFirmwareLoader replaces the on-disk firmware loader.
func WithFirmwareLoader(load FirmwareLoader) Option {
	return func(dev *Device) {
		dev.fwLoad = load
	}
}

// WithCaptureRatio sets the percentage of the sample memory reserved
// for pre-trigger data.
func WithCaptureRatio(ratio int) Option {
	return func(dev *Device) {
		dev.captureRatio = ratio
	}
}

// WithLogger sets the logger used by the driver.
func WithLogger(msg *log.Logger) Option {
	return func(dev *Device) {
		dev.msg = msg
	}
}

// Open opens the first SIGMA cable on the USB bus.
func Open(opts ...Option) (*Device, error) {
	ft, err := ftdiOpen(usbVendorID, usbProductID)
	if err != nil {
		return nil, xerrors.Errorf("sigma: could not open FTDI device (vid=0x%x, pid=0x%x): %w",
			usbVendorID, usbProductID, err,
		)
	}

	dev, err := newDevice(ft, opts...)
	if err != nil {
		_ = ft.Close()
		return nil, err
	}
	return dev, nil
}

func newDevice(ft ftdiDevice, opts ...Option) (*Device, error) {
	dev := &Device{
		msg:          log.New(os.Stderr, "sigma: ", 0),
		ft:           ft,
		now:          time.Now,
		numChannels:  16,
		curFirmware:  -1,
		captureRatio: 50,
	}
	dev.samplesPerEvent = 16 / dev.numChannels

	for _, opt := range opts {
		opt(dev)
	}
	if dev.fwLoad == nil {
		dev.fwLoad = dev.loadFirmwareFile
	}

	err := dev.init()
	if err != nil {
		return nil, xerrors.Errorf("sigma: could not initialize FTDI device: %w", err)
	}

	return dev, nil
}

func (dev *Device) init() error {
	var err error

	err = dev.ft.Reset()
	if err != nil {
		return xerrors.Errorf("could not reset USB: %w", err)
	}

	err = dev.ft.SetBitmode(0, ftdi.ModeReset)
	if err != nil {
		return xerrors.Errorf("could not reset bit mode: %w", err)
	}

	err = dev.ft.SetFlowControl(ftdi.FlowCtrlDisable)
	if err != nil {
		return xerrors.Errorf("could not disable flow control: %w", err)
	}

	err = dev.ft.SetLatencyTimer(2)
	if err != nil {
		return xerrors.Errorf("could not set latency timer to 2: %w", err)
	}

	err = dev.ft.SetWriteChunkSize(0xffff)
	if err != nil {
		return xerrors.Errorf("could not set write chunk-size to 0xffff: %w", err)
	}

	err = dev.ft.SetReadChunkSize(0xffff)
	if err != nil {
		return xerrors.Errorf("could not set read chunk-size to 0xffff: %w", err)
	}

	err = dev.ft.PurgeBuffers()
	if err != nil {
		return xerrors.Errorf("could not purge USB buffers: %w", err)
	}

	return nil
}

// Close releases the USB handle.
func (dev *Device) Close() error {
	return dev.ft.Close()
}

// SetSink replaces the sink consuming decoded sample packets. It must
// not be called while a capture is in flight.
func (dev *Device) SetSink(sink Sink) {
	dev.sink = sink
}

// Samplerate returns the currently configured samplerate in Hz.
func (dev *Device) Samplerate() uint64 { return dev.samplerate }

// NumChannels returns the number of channels available at the current
// samplerate (16, 8 or 4).
func (dev *Device) NumChannels() int { return dev.numChannels }

// write sends p down the byte pipe. A partial write is an error.
func (dev *Device) write(p []byte) error {
	n, err := dev.ft.Write(p)
	switch {
	case err != nil:
		return xerrors.Errorf("sigma: could not write to USB pipe: %w", err)
	case n != len(p):
		return xerrors.Errorf("sigma: could not write to USB pipe: %w", io.ErrShortWrite)
	}
	return nil
}

// read fills p from the byte pipe.
func (dev *Device) read(p []byte) (int, error) {
	n, err := dev.ft.Read(p)
	if err != nil {
		return n, xerrors.Errorf("sigma: could not read from USB pipe: %w", err)
	}
	return n, nil
}

// readFull fills all of p from the byte pipe.
func (dev *Device) readFull(p []byte) error {
	_, err := io.ReadFull(dev.ft, p)
	if err != nil {
		return xerrors.Errorf("sigma: could not read from USB pipe: %w", err)
	}
	return nil
}

// purge discards buffered input.
func (dev *Device) purge() error {
	return dev.ft.PurgeReadBuffer()
}

// setBitbang puts the cable into bitbang mode with the given pin mask.
func (dev *Device) setBitbang(mask byte) error {
	err := dev.ft.SetBitmode(mask, ftdi.ModeBitbang)
	if err != nil {
		return xerrors.Errorf("sigma: could not enable bitbang mode: %w", err)
	}
	return nil
}

// setBaud reconfigures the bridge baudrate.
func (dev *Device) setBaud(rate int) error {
	err := dev.ft.SetBaudrate(rate)
	if err != nil {
		return xerrors.Errorf("sigma: could not set baudrate %d: %w", rate, err)
	}
	return nil
}

// resetMode reverts the cable to the plain byte pipe.
func (dev *Device) resetMode() error {
	err := dev.ft.SetBitmode(0, ftdi.ModeReset)
	if err != nil {
		return xerrors.Errorf("sigma: could not reset bit mode: %w", err)
	}
	return nil
}

// loadFirmwareFile is the default FirmwareLoader, reading the vendor
// firmware files from the configured firmware directory.
func (dev *Device) loadFirmwareFile(name string) ([]byte, error) {
	fname := filepath.Join(dev.fwDir, name)
	fi, err := os.Stat(fname)
	if err != nil {
		return nil, xerrors.Errorf("sigma: could not find firmware %q: %w", name, err)
	}
	if fi.Size() > FirmwareSizeLimit {
		return nil, xerrors.Errorf("sigma: firmware %q exceeds size limit (%d > %d)",
			name, fi.Size(), FirmwareSizeLimit,
		)
	}
	raw, err := os.ReadFile(fname)
	if err != nil {
		return nil, xerrors.Errorf("sigma: could not load firmware %q: %w", name, err)
	}
	return raw, nil
}

// emit hands a packet to the sink, truncating logic data so that the
// configured sample limit is never exceeded.
func (dev *Device) emit(kind PacketKind, unitSize int, data []byte) error {
	if dev.sink == nil {
		return nil
	}
	if kind == Logic && dev.limitSamples != 0 {
		sendNow := uint64(len(data) / unitSize)
		if dev.sentSamples+sendNow > dev.limitSamples {
			sendNow = dev.limitSamples - dev.sentSamples
			data = data[:sendNow*uint64(unitSize)]
		}
		if sendNow == 0 {
			return nil
		}
		dev.sentSamples += sendNow
	}
	return dev.sink.Emit(kind, unitSize, data)
}
