// Copyright 2022 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command sigma-daq drives a SIGMA capture in stand-alone mode and
// writes the decoded samples to a raw capture file.
package main // import "github.com/go-daq/asix/cmd/sigma-daq"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-daq/asix/internal/capfmt"
	"github.com/go-daq/asix/rundb"
	"github.com/go-daq/asix/sigma"
)

func main() {
	var (
		runnbr = flag.Int("run", -1, "run number")
		rate   = flag.Uint64("rate", 1_000_000, "samplerate (Hz)")
		limit  = flag.Uint64("limit", 0, "number of samples to acquire (0: unlimited)")
		trig   = flag.String("trigger", "", "trigger specification (e.g. \"3:rising,4:high\")")
		freq   = flag.Duration("freq", 10*time.Millisecond, "polling period")
		odir   = flag.String("o", ".", "output dir")
		fwdir  = flag.String("fw-dir", "/usr/share/sigrok-firmware", "firmware dir")
		dbname = flag.String("rundb", "", "run database to record the run into")
	)

	log.SetPrefix("sigma-daq: ")
	log.SetFlags(0)

	flag.Parse()

	if *runnbr < 0 {
		log.Fatalf("invalid run number value")
	}

	err := run(uint32(*runnbr), *rate, *limit, *trig, *freq, *odir, *fwdir, *dbname)
	if err != nil {
		log.Fatalf("could not run sigma-daq: %+v", err)
	}
}

func run(runnbr uint32, rate, limit uint64, trig string, freq time.Duration, odir, fwdir, dbname string) error {
	fname := filepath.Join(odir, fmt.Sprintf("run%06d.sigma", runnbr))
	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("could not create capture file: %w", err)
	}
	defer f.Close()

	spec, err := parseTriggers(trig)
	if err != nil {
		return fmt.Errorf("could not parse trigger specification: %w", err)
	}

	dev, err := sigma.Open(sigma.WithFirmwareDir(fwdir))
	if err != nil {
		return fmt.Errorf("could not open SIGMA device: %w", err)
	}
	defer dev.Close()

	err = dev.SetSamplerate(rate)
	if err != nil {
		return fmt.Errorf("could not set samplerate: %w", err)
	}
	dev.SetLimitSamples(limit)

	sink, err := capfmt.NewWriter(f, rate, uint8(dev.NumChannels()))
	if err != nil {
		return fmt.Errorf("could not write capture header: %w", err)
	}
	dev.SetSink(sink)

	if len(spec.Stages) != 0 {
		err = dev.SetTriggers(spec)
		if err != nil {
			return fmt.Errorf("could not set triggers: %w", err)
		}
		dev.SetUseTriggers(true)
	}

	if dbname != "" {
		err = record(dbname, runnbr, rate, limit, trig, dev.NumChannels())
		if err != nil {
			return fmt.Errorf("could not record run in db: %w", err)
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	log.Printf("run=%d rate=%d Hz limit=%d trigger=%q -> %s",
		runnbr, rate, limit, trig, fname,
	)
	err = dev.StartAcquisition()
	if err != nil {
		return fmt.Errorf("could not start acquisition: %w", err)
	}

	tick := time.NewTicker(freq)
	defer tick.Stop()

loop:
	for {
		select {
		case <-stop:
			log.Printf("stopping acquisition...")
			dev.StopAcquisition()
		case <-tick.C:
			done, err := dev.Tick()
			if err != nil {
				return fmt.Errorf("capture failed: %w", err)
			}
			if done {
				break loop
			}
		}
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("could not close capture file: %w", err)
	}

	log.Printf("capture written to %s", fname)
	return nil
}

func record(dbname string, runnbr uint32, rate, limit uint64, trig string, channels int) error {
	db, err := rundb.Open(dbname)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.AddRun(context.Background(), rundb.Run{
		Number:       runnbr,
		Samplerate:   rate,
		Channels:     int32(channels),
		LimitSamples: limit,
		Trigger:      trig,
		Start:        time.Now(),
	})
}

// parseTriggers parses a "chan:kind[,chan:kind...]" specification.
func parseTriggers(s string) (sigma.TriggerSpec, error) {
	var spec sigma.TriggerSpec
	if s == "" {
		return spec, nil
	}

	var stage sigma.TriggerStage
	for _, tok := range strings.Split(s, ",") {
		i := strings.Index(tok, ":")
		if i < 0 {
			return spec, fmt.Errorf("invalid trigger match %q", tok)
		}
		ch, err := strconv.Atoi(tok[:i])
		if err != nil {
			return spec, fmt.Errorf("invalid trigger channel %q: %w", tok[:i], err)
		}
		var kind sigma.TriggerKind
		switch tok[i+1:] {
		case "high":
			kind = sigma.High
		case "low":
			kind = sigma.Low
		case "rising":
			kind = sigma.Rising
		case "falling":
			kind = sigma.Falling
		default:
			return spec, fmt.Errorf("invalid trigger kind %q", tok[i+1:])
		}
		stage.Matches = append(stage.Matches, sigma.TriggerMatch{Channel: ch, Kind: kind})
	}
	spec.Stages = append(spec.Stages, stage)

	return spec, nil
}
