// Copyright 2022 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sigma

import (
	"errors"
	"testing"
	"time"
)

func TestSetSamplerate(t *testing.T) {
	for _, tc := range []struct {
		rate     uint64
		firmware int
		channels int
		spe      int
	}{
		{200_000, fwSigma50, 16, 1},
		{1_000_000, fwSigma50, 16, 1},
		{50_000_000, fwSigma50, 16, 1},
		{100_000_000, fwSigma100, 8, 2},
		{200_000_000, fwSigma200, 4, 4},
	} {
		ft := new(fakeFTDI)
		dev, err := newTestDevice(ft)
		if err != nil {
			t.Fatalf("could not create device: %+v", err)
		}
		// Pretend the matching firmware is already loaded, so the
		// samplerate switch does not re-program the FPGA.
		dev.curFirmware = tc.firmware

		err = dev.SetSamplerate(tc.rate)
		if err != nil {
			t.Fatalf("rate %d: could not set samplerate: %+v", tc.rate, err)
		}
		if got, want := dev.numChannels, tc.channels; got != want {
			t.Errorf("rate %d: invalid channels: got=%d, want=%d", tc.rate, got, want)
		}
		if got, want := dev.samplesPerEvent, tc.spe; got != want {
			t.Errorf("rate %d: invalid samples-per-event: got=%d, want=%d", tc.rate, got, want)
		}
		if got, want := dev.samplesPerEvent*dev.numChannels, 16; got != want {
			t.Errorf("rate %d: samples-per-event times channels: got=%d, want=%d", tc.rate, got, want)
		}
	}
}

func TestSetSamplerateUnsupported(t *testing.T) {
	ft := new(fakeFTDI)
	dev, err := newTestDevice(ft)
	if err != nil {
		t.Fatalf("could not create device: %+v", err)
	}

	err = dev.SetSamplerate(300_000)
	if !errors.Is(err, ErrUnsupportedSamplerate) {
		t.Fatalf("invalid error: got=%+v, want=%+v", err, ErrUnsupportedSamplerate)
	}
	if got := dev.samplerate; got != 0 {
		t.Fatalf("rejected samplerate modified the device (rate=%d)", got)
	}
}

func TestLimitSamplesToMsec(t *testing.T) {
	ft := new(fakeFTDI)
	dev, err := newTestDevice(ft)
	if err != nil {
		t.Fatalf("could not create device: %+v", err)
	}
	dev.curFirmware = fwSigma50

	err = dev.SetSamplerate(200_000)
	if err != nil {
		t.Fatalf("could not set samplerate: %+v", err)
	}
	dev.SetLimitSamples(1)

	// 1 sample at 200kHz rounds to 0ms, plus two worst-case cluster
	// times to flush the pipeline.
	if got, want := dev.limitMsec, uint64(655); got != want {
		t.Fatalf("invalid limit: got=%dms, want=%dms", got, want)
	}

	// Setting the limit before the samplerate translates on the next
	// samplerate change.
	dev2, err := newTestDevice(new(fakeFTDI))
	if err != nil {
		t.Fatalf("could not create device: %+v", err)
	}
	dev2.curFirmware = fwSigma50
	dev2.SetLimitSamples(1)
	err = dev2.SetSamplerate(200_000)
	if err != nil {
		t.Fatalf("could not set samplerate: %+v", err)
	}
	if got, want := dev2.limitMsec, uint64(655); got != want {
		t.Fatalf("invalid limit: got=%dms, want=%dms", got, want)
	}
}

func TestCapture(t *testing.T) {
	row := make([]byte, rowLengthBytes)
	copy(row[0:], cluster(0, 1, 2, 3, 4, 5, 6, 7))
	copy(row[clusterBytes:], cluster(7, 8))

	ft := &fakeFTDI{
		reads: [][]byte{
			{rmrPostTriggered},     // waiting for the drain
			{0, 0, 0, 9, 0, 0},     // positions: trigger=0, stop=9
			{0x00},                 // not triggered, not wrapped
			row,                    // DRAM content
		},
	}

	sink := new(recSink)
	dev, err := newTestDevice(ft, WithSink(sink))
	if err != nil {
		t.Fatalf("could not create device: %+v", err)
	}
	dev.curFirmware = fwSigma50

	var elapsed time.Duration
	epoch := time.Unix(0, 0)
	dev.now = func() time.Time { return epoch.Add(elapsed) }

	err = dev.SetSamplerate(200_000)
	if err != nil {
		t.Fatalf("could not set samplerate: %+v", err)
	}
	dev.SetLimitSamples(100)

	err = dev.StartAcquisition()
	if err != nil {
		t.Fatalf("could not start acquisition: %+v", err)
	}
	if got, want := dev.state.state, stateCapture; got != want {
		t.Fatalf("invalid state: got=%d, want=%d", got, want)
	}

	// Deadline not reached yet.
	elapsed = 1 * time.Millisecond
	done, err := dev.Tick()
	if err != nil {
		t.Fatalf("tick failed: %+v", err)
	}
	if done {
		t.Fatalf("capture finished before the deadline")
	}

	// Deadline passed: the tick downloads and decodes the DRAM.
	elapsed = 700 * time.Millisecond
	done, err = dev.Tick()
	if err != nil {
		t.Fatalf("tick failed: %+v", err)
	}
	if !done {
		t.Fatalf("capture did not finish after the deadline")
	}
	if got, want := dev.state.state, stateIdle; got != want {
		t.Fatalf("invalid state: got=%d, want=%d", got, want)
	}

	// The corrected stop position yields one row of 8 events.
	samples := sink.samples()
	if got, want := len(samples), 8; got != want {
		t.Fatalf("invalid number of samples: got=%d, want=%d", got, want)
	}
	for i, v := range samples {
		if got, want := v, uint16(i+1); got != want {
			t.Fatalf("sample %d: got=%d, want=%d", i, got, want)
		}
	}

	last := sink.packets[len(sink.packets)-1]
	if got, want := last.kind, EndOfFeed; got != want {
		t.Fatalf("missing end-of-feed marker (kind=%d)", got)
	}
}

func TestStopAcquisition(t *testing.T) {
	row := make([]byte, rowLengthBytes)
	copy(row[0:], cluster(0, 1))

	ft := &fakeFTDI{
		reads: [][]byte{
			{rmrPostTriggered},
			{0, 0, 0, 2, 0, 0}, // stop=2 after correction -> 1 event
			{0x00},
			row,
		},
	}

	sink := new(recSink)
	dev, err := newTestDevice(ft, WithSink(sink))
	if err != nil {
		t.Fatalf("could not create device: %+v", err)
	}
	dev.curFirmware = fwSigma50

	err = dev.SetSamplerate(200_000)
	if err != nil {
		t.Fatalf("could not set samplerate: %+v", err)
	}

	err = dev.StartAcquisition()
	if err != nil {
		t.Fatalf("could not start acquisition: %+v", err)
	}

	// A user stop triggers the download on the next tick, without
	// waiting for a deadline.
	dev.StopAcquisition()
	if got, want := dev.state.state, stateStopping; got != want {
		t.Fatalf("invalid state: got=%d, want=%d", got, want)
	}

	done, err := dev.Tick()
	if err != nil {
		t.Fatalf("tick failed: %+v", err)
	}
	if !done {
		t.Fatalf("stop did not complete the capture")
	}
	if got, want := len(sink.samples()), 1; got != want {
		t.Fatalf("invalid number of samples: got=%d, want=%d", got, want)
	}
}
