// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command sigma-sh provides an interactive shell to poke at a SIGMA
// logic analyzer.
package main // import "github.com/go-daq/asix/cmd/sigma-sh"

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/go-daq/asix/internal/capfmt"
	"github.com/go-daq/asix/sigma"
)

func main() {
	var (
		fwdir = flag.String("fw-dir", "/usr/share/sigrok-firmware", "firmware dir")
		odir  = flag.String("o", ".", "output dir")
	)

	log.SetPrefix("sigma-sh: ")
	log.SetFlags(0)

	flag.Parse()

	err := run(*fwdir, *odir)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(fwdir, odir string) error {
	dev, err := sigma.Open(sigma.WithFirmwareDir(fwdir))
	if err != nil {
		return fmt.Errorf("could not open SIGMA device: %w", err)
	}
	defer dev.Close()

	sh := shell{dev: dev, odir: odir, rate: 1_000_000}

	term := liner.NewLiner()
	defer term.Close()
	term.SetCtrlCAborts(true)

	fmt.Println("sigma-sh: type 'help' for the list of commands")
	for {
		line, err := term.Prompt("sigma> ")
		if err != nil {
			if err == liner.ErrPromptAborted {
				continue
			}
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		quit, err := sh.dispatch(line)
		if err != nil {
			log.Printf("%+v", err)
		}
		if quit {
			return nil
		}
	}
}

type shell struct {
	dev  *sigma.Device
	odir string

	run   int
	rate  uint64
	limit uint64
	trig  string
}

func (sh *shell) dispatch(line string) (bool, error) {
	args := strings.Fields(line)
	switch args[0] {
	case "help":
		fmt.Print(`commands:
  rate <hz>        set the samplerate
  limit <n>        set the number of samples to acquire
  trigger <spec>   set the trigger (e.g. 3:rising,4:high)
  acquire          run one capture and write it to disk
  status           display the device state
  quit             exit
`)
	case "rate":
		if len(args) != 2 {
			return false, fmt.Errorf("usage: rate <hz>")
		}
		hz, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return false, fmt.Errorf("invalid rate %q: %w", args[1], err)
		}
		sh.rate = hz
	case "limit":
		if len(args) != 2 {
			return false, fmt.Errorf("usage: limit <n>")
		}
		n, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return false, fmt.Errorf("invalid limit %q: %w", args[1], err)
		}
		sh.limit = n
	case "trigger":
		if len(args) != 2 {
			return false, fmt.Errorf("usage: trigger <spec>")
		}
		sh.trig = args[1]
	case "acquire":
		err := sh.acquire()
		if err != nil {
			return false, fmt.Errorf("could not acquire: %w", err)
		}
	case "status":
		fmt.Printf("rate=%d Hz limit=%d trigger=%q channels=%d\n",
			sh.rate, sh.limit, sh.trig, sh.dev.NumChannels(),
		)
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q", args[0])
	}
	return false, nil
}

func (sh *shell) acquire() error {
	dev := sh.dev

	err := dev.SetSamplerate(sh.rate)
	if err != nil {
		return err
	}
	dev.SetLimitSamples(sh.limit)

	spec, err := parseTriggers(sh.trig)
	if err != nil {
		return err
	}
	if len(spec.Stages) != 0 {
		err = dev.SetTriggers(spec)
		if err != nil {
			return err
		}
		dev.SetUseTriggers(true)
	}

	fname := fmt.Sprintf("%s/run%06d.sigma", sh.odir, sh.run)
	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("could not create capture file: %w", err)
	}
	defer f.Close()

	sink, err := capfmt.NewWriter(f, sh.rate, uint8(dev.NumChannels()))
	if err != nil {
		return err
	}
	dev.SetSink(sink)

	err = dev.StartAcquisition()
	if err != nil {
		return err
	}

	for {
		done, err := dev.Tick()
		if err != nil {
			return err
		}
		if done {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("could not close capture file: %w", err)
	}

	log.Printf("capture written to %s", fname)
	sh.run++
	return nil
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
