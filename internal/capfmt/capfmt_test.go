// Copyright 2022 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package capfmt

import (
	"bytes"
	"io"
	"testing"

	"github.com/go-daq/asix/sigma"
)

func TestCodec(t *testing.T) {
	buf := new(bytes.Buffer)
	w, err := NewWriter(buf, 1_000_000, 16)
	if err != nil {
		t.Fatalf("could not create writer: %+v", err)
	}

	err = w.Emit(sigma.Logic, 2, []byte{0x01, 0x00, 0x02, 0x00})
	if err != nil {
		t.Fatalf("could not emit logic packet: %+v", err)
	}
	err = w.Emit(sigma.TriggerMark, 0, nil)
	if err != nil {
		t.Fatalf("could not emit trigger marker: %+v", err)
	}
	err = w.Emit(sigma.Logic, 2, []byte{0x03, 0x00})
	if err != nil {
		t.Fatalf("could not emit logic packet: %+v", err)
	}
	err = w.Emit(sigma.EndOfFeed, 0, nil)
	if err != nil {
		t.Fatalf("could not emit end-of-feed marker: %+v", err)
	}

	dec, err := NewDecoder(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("could not create decoder: %+v", err)
	}
	if got, want := dec.Samplerate, uint64(1_000_000); got != want {
		t.Fatalf("invalid samplerate: got=%d, want=%d", got, want)
	}
	if got, want := dec.Channels, uint8(16); got != want {
		t.Fatalf("invalid channel count: got=%d, want=%d", got, want)
	}

	want := []Packet{
		{Kind: sigma.Logic, Data: []byte{0x01, 0x00, 0x02, 0x00}},
		{Kind: sigma.TriggerMark},
		{Kind: sigma.Logic, Data: []byte{0x03, 0x00}},
		{Kind: sigma.EndOfFeed},
	}
	for i, exp := range want {
		var p Packet
		err := dec.Decode(&p)
		if err != nil {
			t.Fatalf("packet %d: could not decode: %+v", i, err)
		}
		if p.Kind != exp.Kind || !bytes.Equal(p.Data, exp.Data) {
			t.Fatalf("packet %d: got=%#v, want=%#v", i, p, exp)
		}
	}

	var p Packet
	if err := dec.Decode(&p); err != io.EOF {
		t.Fatalf("invalid error at stream end: got=%+v, want=%+v", err, io.EOF)
	}
}

func TestDecoderErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		raw  []byte
	}{
		{name: "no-data", raw: nil},
		{name: "bad-magic", raw: []byte("nope\x01")},
		{
			name: "bad-version",
			raw:  append([]byte("sgma"), 0xff),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewDecoder(bytes.NewReader(tc.raw))
			if err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}

func TestDecoderBadMarker(t *testing.T) {
	buf := new(bytes.Buffer)
	_, err := NewWriter(buf, 200_000, 16)
	if err != nil {
		t.Fatalf("could not create writer: %+v", err)
	}
	buf.WriteByte(0x7f)

	dec, err := NewDecoder(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("could not create decoder: %+v", err)
	}
	var p Packet
	if err := dec.Decode(&p); err == nil {
		t.Fatalf("expected an error for an invalid record marker")
	}
}
