// Copyright 2022 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sigma

import (
	"io"

	"github.com/ziutek/ftdi"
)

// fakeFTDI scripts the byte pipe of a SIGMA cable: writes are
// recorded frame by frame, reads are served from a queue of chunks.
// A nil chunk makes one Read return (0, nil), the way libftdi reports
// an empty input buffer.
type fakeFTDI struct {
	frames [][]byte // one entry per Write call
	reads  [][]byte // scripted Read responses

	werr error
	rerr error

	mode   ftdi.Mode
	mask   byte
	baud   int
	purges int
	closed bool
}

func (ft *fakeFTDI) Reset() error { return nil }

func (ft *fakeFTDI) SetBitmode(iomask byte, mode ftdi.Mode) error {
	ft.mask = iomask
	ft.mode = mode
	return nil
}

func (ft *fakeFTDI) SetBaudrate(rate int) error {
	ft.baud = rate
	return nil
}

func (ft *fakeFTDI) SetFlowControl(flowctrl ftdi.FlowCtrl) error { return nil }
func (ft *fakeFTDI) SetLatencyTimer(lt int) error                { return nil }
func (ft *fakeFTDI) SetWriteChunkSize(cs int) error              { return nil }
func (ft *fakeFTDI) SetReadChunkSize(cs int) error               { return nil }

func (ft *fakeFTDI) PurgeBuffers() error {
	ft.purges++
	return nil
}

func (ft *fakeFTDI) PurgeReadBuffer() error {
	ft.purges++
	return nil
}

func (ft *fakeFTDI) Write(p []byte) (int, error) {
	if ft.werr != nil {
		return 0, ft.werr
	}
	frame := make([]byte, len(p))
	copy(frame, p)
	ft.frames = append(ft.frames, frame)
	return len(p), nil
}

func (ft *fakeFTDI) Read(p []byte) (int, error) {
	if ft.rerr != nil {
		return 0, ft.rerr
	}
	if len(ft.reads) == 0 {
		return 0, io.EOF
	}
	chunk := ft.reads[0]
	ft.reads = ft.reads[1:]
	if chunk == nil {
		return 0, nil
	}
	n := copy(p, chunk)
	if n < len(chunk) {
		ft.reads = append([][]byte{chunk[n:]}, ft.reads...)
	}
	return n, nil
}

func (ft *fakeFTDI) Close() error {
	ft.closed = true
	return nil
}

// written returns the concatenation of all recorded write frames.
func (ft *fakeFTDI) written() []byte {
	var buf []byte
	for _, frame := range ft.frames {
		buf = append(buf, frame...)
	}
	return buf
}

type packet struct {
	kind PacketKind
	unit int
	data []byte
}

// recSink records emitted packets.
type recSink struct {
	packets []packet
}

func (sink *recSink) Emit(kind PacketKind, unitSize int, data []byte) error {
	p := packet{kind: kind, unit: unitSize}
	p.data = append(p.data, data...)
	sink.packets = append(sink.packets, p)
	return nil
}

// samples flattens the recorded logic packets into 16-bit samples.
func (sink *recSink) samples() []uint16 {
	var vs []uint16
	for _, p := range sink.packets {
		if p.kind != Logic {
			continue
		}
		for i := 0; i+1 < len(p.data); i += 2 {
			vs = append(vs, uint16(p.data[i])|uint16(p.data[i+1])<<8)
		}
	}
	return vs
}

func newTestDevice(ft *fakeFTDI, opts ...Option) (*Device, error) {
	return newDevice(ft, opts...)
}
