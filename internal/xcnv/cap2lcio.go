// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xcnv converts raw SIGMA capture files to offline formats.
package xcnv // import "github.com/go-daq/asix/internal/xcnv"

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/go-daq/asix/internal/capfmt"
	"github.com/go-daq/asix/sigma"
	"go-hep.org/x/hep/lcio"
)

// Cap2LCIO converts a raw capture stream to an LCIO file, one event
// per logic packet. A trigger marker flags the following event.
func Cap2LCIO(w *lcio.Writer, dec *capfmt.Decoder, run int32, msg *log.Logger) error {
	raw := &lcio.GenericObject{
		Data: []lcio.GenericObjectData{
			{I32s: nil},
		},
	}

	err := w.WriteRunHeader(&lcio.RunHeader{
		RunNumber: run,
		Detector:  "ASIX-SIGMA",
		Descr:     "",
		Params: lcio.Params{
			Ints: map[string][]int32{
				"Samplerate": {int32(dec.Samplerate)},
				"Channels":   {int32(dec.Channels)},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("could not write run header: %w", err)
	}

	var (
		i         int32
		triggered int32
	)
loop:
	for {
		var p capfmt.Packet
		err := dec.Decode(&p)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			return fmt.Errorf("could not decode capture: %w", err)
		}

		switch p.Kind {
		case sigma.TriggerMark:
			triggered = 1
			continue
		case sigma.EndOfFeed:
			break loop
		}

		if i%100 == 0 {
			msg.Printf("processing packet %d...", i)
		}

		raw.Data[0].I32s = i32sFrom(p.Data)
		evt := lcio.Event{
			RunNumber:   run,
			EventNumber: i,
			Detector:    "ASIX-SIGMA",
			Params: lcio.Params{
				Ints: map[string][]int32{
					"Triggered": {triggered},
				},
			},
		}
		evt.Add("SigmaSamples", raw)

		err = w.WriteEvent(&evt)
		if err != nil {
			return fmt.Errorf("could not write event %d: %w", i, err)
		}
		i++
		triggered = 0
	}

	return nil
}

// i32sFrom widens the 16-bit little-endian channel vectors to int32s.
func i32sFrom(raw []byte) []int32 {
	vs := make([]int32, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		vs = append(vs, int32(raw[i])|int32(raw[i+1])<<8)
	}
	return vs
}
