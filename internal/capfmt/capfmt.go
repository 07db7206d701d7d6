// Copyright 2022 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package capfmt implements the on-disk format of raw SIGMA captures:
// a small header describing the acquisition, followed by the packet
// stream of the capture.
package capfmt // import "github.com/go-daq/asix/internal/capfmt"

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-daq/asix/sigma"
)

var magic = [4]byte{'s', 'g', 'm', 'a'}

const version = 1

// Packet record markers.
const (
	recLogic   = 0x10
	recTrigger = 0x20
	recEnd     = 0x30
)

// Writer writes a capture file. Writer implements sigma.Sink, so it
// can be handed to the driver as the sample sink directly.
type Writer struct {
	w   io.Writer
	buf []byte
}

// NewWriter writes the capture header for the given acquisition
// parameters and returns the packet writer.
func NewWriter(w io.Writer, samplerate uint64, channels uint8) (*Writer, error) {
	cw := &Writer{w: w, buf: make([]byte, 8)}

	_, err := w.Write(magic[:])
	if err != nil {
		return nil, fmt.Errorf("capfmt: could not write magic: %w", err)
	}
	cw.buf[0] = version
	_, err = w.Write(cw.buf[:1])
	if err != nil {
		return nil, fmt.Errorf("capfmt: could not write version: %w", err)
	}
	binary.LittleEndian.PutUint64(cw.buf, samplerate)
	_, err = w.Write(cw.buf[:8])
	if err != nil {
		return nil, fmt.Errorf("capfmt: could not write samplerate: %w", err)
	}
	cw.buf[0] = channels
	_, err = w.Write(cw.buf[:1])
	if err != nil {
		return nil, fmt.Errorf("capfmt: could not write channel count: %w", err)
	}

	return cw, nil
}

// Emit implements sigma.Sink.
func (cw *Writer) Emit(kind sigma.PacketKind, unitSize int, data []byte) error {
	switch kind {
	case sigma.Logic:
		cw.buf[0] = recLogic
		_, err := cw.w.Write(cw.buf[:1])
		if err != nil {
			return fmt.Errorf("capfmt: could not write logic marker: %w", err)
		}
		binary.LittleEndian.PutUint32(cw.buf, uint32(len(data)))
		_, err = cw.w.Write(cw.buf[:4])
		if err != nil {
			return fmt.Errorf("capfmt: could not write logic length: %w", err)
		}
		_, err = cw.w.Write(data)
		if err != nil {
			return fmt.Errorf("capfmt: could not write logic payload: %w", err)
		}
	case sigma.TriggerMark:
		cw.buf[0] = recTrigger
		_, err := cw.w.Write(cw.buf[:1])
		if err != nil {
			return fmt.Errorf("capfmt: could not write trigger marker: %w", err)
		}
	case sigma.EndOfFeed:
		cw.buf[0] = recEnd
		_, err := cw.w.Write(cw.buf[:1])
		if err != nil {
			return fmt.Errorf("capfmt: could not write end-of-feed marker: %w", err)
		}
	default:
		return fmt.Errorf("capfmt: unknown packet kind %d", kind)
	}
	return nil
}

// Packet is one decoded capture record.
type Packet struct {
	Kind sigma.PacketKind
	Data []byte // 16-bit little-endian channel vectors for Logic
}

// Decoder reads a capture file.
type Decoder struct {
	r io.Reader

	Samplerate uint64
	Channels   uint8
}

// NewDecoder reads and validates the capture header.
func NewDecoder(r io.Reader) (*Decoder, error) {
	dec := &Decoder{r: r}

	var hdr [4]byte
	_, err := io.ReadFull(r, hdr[:])
	if err != nil {
		return nil, fmt.Errorf("capfmt: could not read magic: %w", err)
	}
	if hdr != magic {
		return nil, fmt.Errorf("capfmt: invalid magic %q", hdr[:])
	}

	var buf [8]byte
	_, err = io.ReadFull(r, buf[:1])
	if err != nil {
		return nil, fmt.Errorf("capfmt: could not read version: %w", err)
	}
	if buf[0] != version {
		return nil, fmt.Errorf("capfmt: unknown version %d", buf[0])
	}

	_, err = io.ReadFull(r, buf[:8])
	if err != nil {
		return nil, fmt.Errorf("capfmt: could not read samplerate: %w", err)
	}
	dec.Samplerate = binary.LittleEndian.Uint64(buf[:8])

	_, err = io.ReadFull(r, buf[:1])
	if err != nil {
		return nil, fmt.Errorf("capfmt: could not read channel count: %w", err)
	}
	dec.Channels = buf[0]

	return dec, nil
}

// Decode reads the next packet. It returns io.EOF when the stream is
// exhausted.
func (dec *Decoder) Decode(p *Packet) error {
	var buf [4]byte
	_, err := io.ReadFull(dec.r, buf[:1])
	if err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("capfmt: could not read record marker: %w", err)
	}

	switch buf[0] {
	case recLogic:
		p.Kind = sigma.Logic
		_, err = io.ReadFull(dec.r, buf[:4])
		if err != nil {
			return fmt.Errorf("capfmt: could not read logic length: %w", err)
		}
		n := binary.LittleEndian.Uint32(buf[:4])
		p.Data = make([]byte, n)
		_, err = io.ReadFull(dec.r, p.Data)
		if err != nil {
			return fmt.Errorf("capfmt: could not read logic payload: %w", err)
		}
	case recTrigger:
		p.Kind = sigma.TriggerMark
		p.Data = nil
	case recEnd:
		p.Kind = sigma.EndOfFeed
		p.Data = nil
	default:
		return fmt.Errorf("capfmt: invalid record marker 0x%x", buf[0])
	}

	return nil
}
