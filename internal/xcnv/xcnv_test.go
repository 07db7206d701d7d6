// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/go-daq/asix/internal/capfmt"
	"github.com/go-daq/asix/sigma"
	"go-hep.org/x/hep/lcio"
)

func TestCap2LCIO(t *testing.T) {
	tmp, err := os.MkdirTemp("", "asix-xcnv-")
	if err != nil {
		t.Fatalf("could not create tmp dir: %+v", err)
	}
	defer os.RemoveAll(tmp)

	const run = 42
	msg := log.New(os.Stdout, "", 0)

	buf := new(bytes.Buffer)
	cw, err := capfmt.NewWriter(buf, 1_000_000, 16)
	if err != nil {
		t.Fatalf("could not create capture writer: %+v", err)
	}
	err = cw.Emit(sigma.Logic, 2, []byte{0x01, 0x00, 0x02, 0x00})
	if err != nil {
		t.Fatalf("could not emit packet: %+v", err)
	}
	err = cw.Emit(sigma.TriggerMark, 0, nil)
	if err != nil {
		t.Fatalf("could not emit packet: %+v", err)
	}
	err = cw.Emit(sigma.Logic, 2, []byte{0xff, 0x00})
	if err != nil {
		t.Fatalf("could not emit packet: %+v", err)
	}
	err = cw.Emit(sigma.EndOfFeed, 0, nil)
	if err != nil {
		t.Fatalf("could not emit packet: %+v", err)
	}

	fname := filepath.Join(tmp, "run042.lcio")
	lw, err := lcio.Create(fname)
	if err != nil {
		t.Fatalf("could not create LCIO file: %+v", err)
	}
	defer lw.Close()

	dec, err := capfmt.NewDecoder(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("could not create capture decoder: %+v", err)
	}

	err = Cap2LCIO(lw, dec, run, msg)
	if err != nil {
		t.Fatalf("could not convert to LCIO: %+v", err)
	}
	err = lw.Close()
	if err != nil {
		t.Fatalf("could not close LCIO file: %+v", err)
	}

	lr, err := lcio.Open(fname)
	if err != nil {
		t.Fatalf("could not open LCIO file: %+v", err)
	}
	defer lr.Close()

	want := []struct {
		samples   []int32
		triggered int32
	}{
		{samples: []int32{1, 2}, triggered: 0},
		{samples: []int32{255}, triggered: 1},
	}

	n := 0
	for lr.Next() {
		evt := lr.Event()
		if got := evt.EventNumber; got != int32(n) {
			t.Fatalf("event %d: invalid event number %d", n, got)
		}
		samples := evt.Get("SigmaSamples").(*lcio.GenericObject).Data[0].I32s
		if got := samples; !reflect.DeepEqual(got, want[n].samples) {
			t.Fatalf("event %d: invalid samples: got=%v, want=%v", n, got, want[n].samples)
		}
		if got := evt.Params.Ints["Triggered"][0]; got != want[n].triggered {
			t.Fatalf("event %d: invalid trigger flag: got=%d, want=%d", n, got, want[n].triggered)
		}
		n++
	}
	if got, want := n, len(want); got != want {
		t.Fatalf("invalid number of events: got=%d, want=%d", got, want)
	}
}
