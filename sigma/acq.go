// Copyright 2022 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sigma

import (
	"golang.org/x/xerrors"
)

// SetSamplerate configures the samplerate in Hz, uploading the
// matching firmware when needed. The 100 and 200 MHz firmwares limit
// the channel count to 8 and 4.
func (dev *Device) SetSamplerate(hz uint64) error {
	ok := false
	for _, rate := range Samplerates {
		if rate == hz {
			ok = true
			break
		}
	}
	if !ok {
		return xerrors.Errorf("sigma: samplerate %d Hz not supported: %w", hz, ErrUnsupportedSamplerate)
	}

	numChannels := dev.numChannels
	var err error
	switch {
	case hz <= 50_000_000:
		err = dev.uploadFirmware(fwSigma50)
		numChannels = 16
	case hz == 100_000_000:
		err = dev.uploadFirmware(fwSigma100)
		numChannels = 8
	case hz == 200_000_000:
		err = dev.uploadFirmware(fwSigma200)
		numChannels = 4
	}
	if err != nil {
		return err
	}

	// The device communicates multiple samples per "event" at the
	// higher rates; derive the factor from the channel count.
	dev.numChannels = numChannels
	dev.samplerate = hz
	dev.samplesPerEvent = 16 / dev.numChannels
	dev.state.state = stateIdle

	// Re-translate a previously configured sample limit, in case the
	// limit was set before the samplerate.
	if dev.limitSamples != 0 {
		dev.limitMsec = dev.limitSamplesToMsec(dev.limitSamples)
	}

	return nil
}

// limitSamplesToMsec translates a sample-count limit into an elapsed
// capture time; the hardware has no sample counter.
//
// The last data cluster must also clear the hardware pipeline and
// become visible to the host. With RLE, up to 327ms pass before
// another cluster accumulates at 200kHz when the input pins do not
// change. One cluster time is not enough to flush the pipeline when
// sampling grounded pins with a 1-sample limit, hence the 2x.
func (dev *Device) limitSamplesToMsec(limitSamples uint64) uint64 {
	limitMsec := limitSamples * 1000 / dev.samplerate
	return limitMsec + 2*65536*1000/dev.samplerate
}

// SetLimitSamples bounds the number of samples handed to the sink.
// Zero means unlimited.
func (dev *Device) SetLimitSamples(n uint64) {
	dev.limitSamples = n
	if dev.samplerate != 0 && n != 0 {
		dev.limitMsec = dev.limitSamplesToMsec(n)
	}
}

// SetTriggers stores the symbolic trigger specification. The spec is
// validated against the current samplerate and re-compiled on every
// acquisition start.
func (dev *Device) SetTriggers(spec TriggerSpec) error {
	err := dev.convertTrigger(spec)
	if err != nil {
		return err
	}
	dev.trgSpec = spec
	return nil
}

// SetUseTriggers controls whether a trigger marker is emitted into
// the sample stream.
func (dev *Device) SetUseTriggers(use bool) {
	dev.useTriggers = use
}

// StartAcquisition programs the trigger machinery and the clock
// selection, then arms the capture.
func (dev *Device) StartAcquisition() error {
	if dev.samplerate == 0 {
		err := dev.SetSamplerate(Samplerates[0])
		if err != nil {
			return err
		}
	}

	err := dev.convertTrigger(dev.trgSpec)
	if err != nil {
		return err
	}

	// Enter trigger programming mode.
	err = dev.setRegister(wrTriggerSelect2, 0x20)
	if err != nil {
		return xerrors.Errorf("sigma: could not enter trigger programming mode: %w", err)
	}

	var triggerselect uint8
	switch {
	case dev.samplerate >= 100_000_000:
		// Fast pin trigger.
		err = dev.setRegister(wrTriggerSelect2, 0x81)
		if err != nil {
			return xerrors.Errorf("sigma: could not select fast trigger mode: %w", err)
		}

		// Find which pin to trigger on from the mask.
		var pin uint8
		for pin = 0; pin < 8; pin++ {
			if (dev.trg.risingMask|dev.trg.fallingMask)&(1<<pin) != 0 {
				break
			}
		}

		// Set the trigger pin and light the LED on trigger.
		triggerselect = 1<<ledSel1 | pin&0x7
		// Default is rising edge.
		if dev.trg.fallingMask != 0 {
			triggerselect |= 1 << 3
		}

	case dev.samplerate <= 50_000_000:
		lut := dev.buildBasicTrigger()
		err = dev.writeTriggerLUT(lut)
		if err != nil {
			return err
		}
		triggerselect = 1<<ledSel1 | 1<<ledSel0
	}

	// Trigger in and out pins: enable trigger-out, pulse by trigger.
	err = dev.writeRegister(wrTriggerOption, []byte{0x50, 0x00})
	if err != nil {
		return xerrors.Errorf("sigma: could not configure trigger in/out pins: %w", err)
	}

	// Back to normal mode.
	err = dev.setRegister(wrTriggerSelect2, triggerselect)
	if err != nil {
		return xerrors.Errorf("sigma: could not leave trigger programming mode: %w", err)
	}

	// Clock selection.
	switch dev.samplerate {
	case 200_000_000:
		err = dev.setRegister(wrClockSelect, 0xf0)
	case 100_000_000:
		err = dev.setRegister(wrClockSelect, 0x00)
	default:
		// 50 MHz base clock with an integer divider. Any fraction
		// down to 50 MHz / 256 would work, only the canonical rates
		// are exposed.
		frac := uint8(50_000_000/dev.samplerate - 1)
		err = dev.writeRegister(wrClockSelect, []byte{
			0x00, // async
			frac, // fraction
			0x00, // disabled channels, low
			0x00, // disabled channels, high
		})
	}
	if err != nil {
		return xerrors.Errorf("sigma: could not program clock selection: %w", err)
	}

	// Maximum post-trigger time.
	err = dev.setRegister(wrPostTrigger, uint8(dev.captureRatio*255/100))
	if err != nil {
		return xerrors.Errorf("sigma: could not program post-trigger capture ratio: %w", err)
	}

	dev.startTime = dev.now()
	dev.sentSamples = 0

	// Start acquisition.
	err = dev.setRegister(wrMode, 0x0d)
	if err != nil {
		return xerrors.Errorf("sigma: could not start acquisition: %w", err)
	}

	dev.state.state = stateCapture
	return nil
}

// StopAcquisition requests a capture stop. The next Tick observes the
// request and downloads the sample memory.
func (dev *Device) StopAcquisition() {
	dev.state.state = stateStopping
}

// Tick drives the capture state machine and must be invoked
// periodically by the host's event loop. It reports true once the
// acquisition finished and the sample memory was downloaded.
func (dev *Device) Tick() (bool, error) {
	switch dev.state.state {
	case stateIdle:
		return false, nil
	case stateStopping:
		err := dev.download()
		return err == nil, err
	case stateCapture:
		// The configured sampling duration covers the sample-count
		// limit as well.
		running := uint64(dev.now().Sub(dev.startTime).Milliseconds())
		if dev.limitMsec != 0 && running >= dev.limitMsec {
			err := dev.download()
			return err == nil, err
		}
	}
	return false, nil
}

// download drains the sample DRAM, decodes it and hands the samples
// to the sink.
func (dev *Device) download() error {
	const rowsPerRead = 32

	dev.msg.Printf("downloading sample data")
	dev.state.state = stateDownload

	// Ask the hardware to stop the acquisition. FORCESTOP makes it
	// store clusters to DRAM regardless of pin changes (no more RLE)
	// and raise POSTTRIGGERED once drained.
	err := dev.setRegister(wrMode, wmrForceStop|wmrSDRAMWriteEn)
	if err != nil {
		dev.state.state = stateIdle
		return err
	}
	var mode [1]byte
	for {
		err = dev.readRegister(rdMode, mode[:])
		if err != nil {
			dev.state.state = stateIdle
			return xerrors.Errorf("sigma: failed while waiting for POSTTRIGGERED: %w", err)
		}
		if mode[0]&rmrPostTriggered != 0 {
			break
		}
	}

	err = dev.setRegister(wrMode, wmrSDRAMReadEn)
	if err != nil {
		dev.state.state = stateIdle
		return err
	}

	stopPos, triggerPos, err := dev.readPos()
	if err != nil {
		dev.state.state = stateIdle
		return err
	}

	err = dev.readRegister(rdMode, mode[:])
	if err != nil {
		dev.state.state = stateIdle
		return xerrors.Errorf("sigma: could not read mode register: %w", err)
	}

	trgRow := ^uint32(0)
	trgEvent := ^uint32(0)
	if mode[0]&rmrTriggered != 0 {
		trgRow = triggerPos >> rowShift
		trgEvent = triggerPos & rowMask
	}

	dev.sentSamples = 0

	// How many DRAM rows hold the capture. The last row may be
	// partially filled. When the circular buffer wrapped (ROUND), the
	// row past the stop position is being written concurrently and its
	// content is uncertain: skip it and read the ROW_COUNT-2 rows that
	// follow.
	var (
		firstRow uint32
		total    = stopPos>>rowShift + 1
	)
	if mode[0]&rmrRound != 0 {
		firstRow = total + 1
		total = rowCount - 2
	}

	var (
		buf  = make([]byte, rowsPerRead*rowLengthBytes)
		done uint32
	)
	for done < total {
		rows := uint32(rowsPerRead)
		if total-done < rows {
			rows = total - done
		}

		row := (firstRow + done) % rowCount
		n, err := dev.readDRAM(uint16(row), int(rows), buf)
		if err != nil {
			// Keep decoding what arrived; aborting would lose the
			// whole capture over a transient short read.
			dev.msg.Printf("short DRAM read (row=%d, got=%d bytes): %+v", row, n, err)
		}
		got := uint32(n / rowLengthBytes)
		if got > rows {
			got = rows
		}

		// First row of the download: seed the decoder timestamp.
		if done == 0 && got > 0 {
			dev.state.lastTS = clusterTS(buf)
			dev.state.lastSample = 0
		}

		for i := uint32(0); i < got; i++ {
			eventsInLine := uint32(eventsPerRow)
			if done+i == total-1 {
				eventsInLine = stopPos & rowMask
			}

			te := ^uint32(0)
			if done+i == trgRow {
				te = trgEvent
			}

			err := dev.decodeRow(buf[i*rowLengthBytes:(i+1)*rowLengthBytes], int(eventsInLine), te)
			if err != nil {
				dev.state.state = stateIdle
				return err
			}
		}

		done += rows
	}

	err = dev.emit(EndOfFeed, 0, nil)
	if err != nil {
		dev.state.state = stateIdle
		return err
	}

	dev.state.state = stateIdle
	return nil
}
