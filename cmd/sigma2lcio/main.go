// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command sigma2lcio converts a raw SIGMA capture file to an LCIO one.
package main // import "github.com/go-daq/asix/cmd/sigma2lcio"

import (
	"compress/flate"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go-hep.org/x/hep/lcio"

	"github.com/go-daq/asix/internal/capfmt"
	"github.com/go-daq/asix/internal/xcnv"
)

var (
	msg = log.New(os.Stdout, "sigma2lcio: ", 0)
)

func main() {
	var (
		oname  = flag.String("o", "out.lcio", "path to output LCIO file")
		compr  = flag.Int("lvl", flate.DefaultCompression, "compression level for output LCIO file")
		runnbr = flag.Int("run", -1, "run number (inferred from the file name when negative)")
	)

	flag.Usage = func() {
		fmt.Printf(`Usage: sigma2lcio [OPTIONS] run042.sigma

ex:
 $> sigma2lcio -o out.lcio -lvl=9 ./run042.sigma

options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		msg.Fatalf("missing input capture file")
	}

	if *oname == "" {
		flag.Usage()
		msg.Fatalf("invalid output LCIO file name")
	}

	err := process(*oname, *compr, *runnbr, flag.Arg(0))
	if err != nil {
		msg.Fatalf("could not convert capture file: %+v", err)
	}
}

func process(oname string, lvl, run int, fname string) error {
	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open capture file: %w", err)
	}
	defer f.Close()

	if run < 0 {
		run, err = runNbrFrom(fname)
		if err != nil {
			return fmt.Errorf("could not infer run from %q: %w", fname, err)
		}
	}

	w, err := lcio.Create(oname)
	if err != nil {
		return fmt.Errorf("could not create output LCIO file: %w", err)
	}
	defer w.Close()

	w.SetCompressionLevel(lvl)

	dec, err := capfmt.NewDecoder(f)
	if err != nil {
		return fmt.Errorf("could not open capture stream: %w", err)
	}

	err = xcnv.Cap2LCIO(w, dec, int32(run), msg)
	if err != nil {
		return fmt.Errorf("could not convert capture to LCIO: %w", err)
	}

	err = w.Close()
	if err != nil {
		return fmt.Errorf("could not close output LCIO file: %w", err)
	}

	return nil
}

// runNbrFrom extracts the run number from a runNNNNNN.sigma file name.
func runNbrFrom(fname string) (int, error) {
	name := filepath.Base(fname)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.TrimPrefix(name, "run")
	return strconv.Atoi(name)
}
