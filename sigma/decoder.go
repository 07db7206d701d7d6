// Copyright 2022 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sigma

import (
	"golang.org/x/xerrors"
)

// samplesBufSize holds one decoded row: up to 512 16-bit entities with
// up to 4 sample points per event.
const samplesBufSize = rowLengthU16 * 2 * 4

// clusterTS returns the 16-bit timestamp of a 16-byte DRAM cluster.
func clusterTS(cl []byte) uint16 {
	return uint16(cl[1])<<8 | uint16(cl[0])
}

// clusterData returns the idx-th 16-bit data entity of a cluster.
// The sample bytes are swapped on the wire.
func clusterData(cl []byte, idx int) uint16 {
	raw := uint16(cl[2+2*idx]) | uint16(cl[3+2*idx])<<8
	return raw>>8 | raw<<8
}

// deinterlace100 extracts one of the two 8-bit sub-samples interleaved
// in a 16-bit entity captured at 100 MHz.
func deinterlace100(in uint16, idx int) uint16 {
	in >>= idx
	var out uint16
	out |= (in >> (0*2 - 0)) & (1 << 0)
	out |= (in >> (1*2 - 1)) & (1 << 1)
	out |= (in >> (2*2 - 2)) & (1 << 2)
	out |= (in >> (3*2 - 3)) & (1 << 3)
	out |= (in >> (4*2 - 4)) & (1 << 4)
	out |= (in >> (5*2 - 5)) & (1 << 5)
	out |= (in >> (6*2 - 6)) & (1 << 6)
	out |= (in >> (7*2 - 7)) & (1 << 7)
	return out
}

// deinterlace200 extracts one of the four 4-bit sub-samples interleaved
// in a 16-bit entity captured at 200 MHz.
func deinterlace200(in uint16, idx int) uint16 {
	in >>= idx
	var out uint16
	out |= (in >> (0*4 - 0)) & (1 << 0)
	out |= (in >> (1*4 - 1)) & (1 << 1)
	out |= (in >> (2*4 - 2)) & (1 << 2)
	out |= (in >> (3*4 - 3)) & (1 << 3)
	return out
}

func storeSample(samples []byte, idx int, v uint16) {
	samples[2*idx+0] = uint8(v)
	samples[2*idx+1] = uint8(v >> 8)
}

// getTriggerOffset re-scans up to 8 successive samples for the first
// one satisfying the trigger condition. The hardware's reported
// position is not accurate to the sample because of pipeline delay,
// but it always points before the actual event.
func getTriggerOffset(samples []byte, lastSample uint16, t *trigger) int {
	var (
		i      int
		sample uint16
	)

	for i = 0; i < 8; i++ {
		if i > 0 {
			lastSample = sample
		}
		sample = uint16(samples[2*i]) | uint16(samples[2*i+1])<<8

		// Simple triggers.
		if sample&t.simpleMask != t.simpleValue {
			continue
		}

		// Rising edge.
		if lastSample&t.risingMask != 0 || sample&t.risingMask != t.risingMask {
			continue
		}

		// Falling edge.
		if lastSample&t.fallingMask != t.fallingMask || sample&t.fallingMask != 0 {
			continue
		}

		break
	}

	// No match: keep the original trigger position.
	return i & 0x7
}

// decodeCluster decodes one 16-byte DRAM cluster: expand the RLE gap
// since the previous cluster, deinterleave the payload according to
// the samplerate, and splice the trigger marker when the trigger fired
// within this cluster.
func (dev *Device) decodeCluster(cl []byte, eventsInCluster int, triggered bool) error {
	var (
		ss      = &dev.state
		ts      = clusterTS(cl)
		tsdiff  = ts - ss.lastTS
		samples [samplesBufSize]byte
	)
	ss.lastTS = ts + eventsPerCluster

	// If this cluster is not adjacent to the previous one, replicate
	// the last sample value over the timestamp gap. This decodes the
	// hardware's RLE. Constant data makes the duplication for rates
	// above 50MHz a matter of re-sending the same packet.
	for t := 0; t < int(tsdiff); t++ {
		i := t % 1024
		storeSample(samples[:], i, ss.lastSample)

		if i == 1023 || t == int(tsdiff)-1 {
			for j := 0; j < dev.samplesPerEvent; j++ {
				err := dev.emit(Logic, 2, samples[:(i+1)*2])
				if err != nil {
					return xerrors.Errorf("sigma: could not emit RLE gap samples: %w", err)
				}
			}
		}
	}

	// Decode the cluster payload. The memory layout varies with the
	// samplerate.
	var (
		sendCount int
		sample    uint16
	)
	for i := 0; i < eventsInCluster; i++ {
		item := clusterData(cl, i)
		switch dev.samplerate {
		case 200_000_000:
			for idx := 0; idx < 4; idx++ {
				sample = deinterlace200(item, idx)
				storeSample(samples[:], sendCount, sample)
				sendCount++
			}
		case 100_000_000:
			for idx := 0; idx < 2; idx++ {
				sample = deinterlace100(item, idx)
				storeSample(samples[:], sendCount, sample)
				sendCount++
			}
		default:
			sample = item
			storeSample(samples[:], sendCount, sample)
			sendCount++
		}
	}

	// If a trigger position applies, send the data up to the trigger
	// point first, then the trigger marker.
	sendPtr := samples[:]
	if triggered {
		offset := getTriggerOffset(samples[:], ss.lastSample, &dev.trg)

		if offset > 0 {
			trigCount := offset * dev.samplesPerEvent
			err := dev.emit(Logic, 2, sendPtr[:trigCount*2])
			if err != nil {
				return xerrors.Errorf("sigma: could not emit pre-trigger samples: %w", err)
			}
			sendPtr = sendPtr[trigCount*2:]
			sendCount -= trigCount
		}

		// Only send the marker if explicitly enabled.
		if dev.useTriggers {
			err := dev.emit(TriggerMark, 0, nil)
			if err != nil {
				return xerrors.Errorf("sigma: could not emit trigger marker: %w", err)
			}
		}
	}

	if sendCount > 0 {
		err := dev.emit(Logic, 2, sendPtr[:sendCount*2])
		if err != nil {
			return xerrors.Errorf("sigma: could not emit samples: %w", err)
		}
	}

	ss.lastSample = sample
	return nil
}

// decodeRow decodes one 1024-byte DRAM row of up to 64 clusters.
// triggerEvent is the event index of the trigger within this row, or
// an out-of-range sentinel when the trigger did not fire here.
func (dev *Device) decodeRow(line []byte, eventsInRow int, triggerEvent uint32) error {
	clustersInRow := (eventsInRow + eventsPerCluster - 1) / eventsPerCluster

	triggerCluster := ^uint32(0)
	if triggerEvent < eventsPerRow {
		// The reported position points past the match. At the lower
		// rates, back off within the cluster; the per-cluster re-scan
		// then pinpoints the sample.
		if dev.samplerate <= 50_000_000 {
			min := uint32(eventsPerCluster - 1)
			if triggerEvent < min {
				min = triggerEvent
			}
			triggerEvent -= min
		}
		triggerCluster = triggerEvent / eventsPerCluster
	}

	for i := 0; i < clustersInRow; i++ {
		events := eventsPerCluster
		if i == clustersInRow-1 && eventsInRow%eventsPerCluster != 0 {
			events = eventsInRow % eventsPerCluster
		}

		cl := line[i*clusterBytes : (i+1)*clusterBytes]
		err := dev.decodeCluster(cl, events, uint32(i) == triggerCluster)
		if err != nil {
			return err
		}
	}

	return nil
}
