// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rundb

import (
	"context"
	"database/sql/driver"
	"strings"
	"testing"
	"time"

	"github.com/go-daq/asix/internal/fakedb"
)

func init() {
	drvName = "fakedb"
}

func TestOpen(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open rundb: %+v", err)
	}
	defer db.Close()
}

func TestAddRun(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open rundb: %+v", err)
	}
	defer db.Close()

	_ = fakedb.Run(context.Background(), fakedb.Rows{}, func(ctx context.Context) error {
		err := db.AddRun(ctx, Run{
			Number:       63,
			Samplerate:   1_000_000,
			Channels:     16,
			LimitSamples: 1024,
			Trigger:      "0:rising",
			Start:        time.Date(2023, 5, 11, 9, 30, 0, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("could not add run: %+v", err)
		}

		execs := fakedb.Execs()
		if got, want := len(execs), 1; got != want {
			t.Fatalf("invalid number of statements: got=%d, want=%d", got, want)
		}
		if !strings.HasPrefix(execs[0].Query, "INSERT INTO runs") {
			t.Fatalf("invalid statement: %q", execs[0].Query)
		}
		if got, want := len(execs[0].Args), 6; got != want {
			t.Fatalf("invalid number of arguments: got=%d, want=%d", got, want)
		}
		if got, want := execs[0].Args[0], driver.Value(int64(63)); got != want {
			t.Fatalf("invalid run number: got=%v, want=%v", got, want)
		}
		return nil
	})
}

func TestLastRunNumber(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open rundb: %+v", err)
	}
	defer db.Close()

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"run"},
		Values: [][]driver.Value{
			{int64(139)},
		},
	}, func(ctx context.Context) error {
		run, err := db.LastRunNumber(ctx)
		if err != nil {
			t.Fatalf("could not retrieve last run: %+v", err)
		}
		if got, want := run, uint32(139); got != want {
			t.Fatalf("invalid last run: got=%d, want=%d", got, want)
		}
		return nil
	})
}

func TestRuns(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open rundb: %+v", err)
	}
	defer db.Close()

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"run", "samplerate", "channels", "limit_samples", "trig", "started"},
		Values: [][]driver.Value{
			{int64(2), int64(200_000), int64(16), int64(0), "", "2023-05-11 10:00:00"},
			{int64(1), int64(1_000_000), int64(16), int64(512), "3:falling", "2023-05-11 09:00:00"},
		},
	}, func(ctx context.Context) error {
		runs, err := db.Runs(ctx, 2)
		if err != nil {
			t.Fatalf("could not retrieve runs: %+v", err)
		}
		if got, want := len(runs), 2; got != want {
			t.Fatalf("invalid number of runs: got=%d, want=%d", got, want)
		}
		if got, want := runs[0].Number, uint32(2); got != want {
			t.Fatalf("invalid run number: got=%d, want=%d", got, want)
		}
		if got, want := runs[1].Trigger, "3:falling"; got != want {
			t.Fatalf("invalid trigger: got=%q, want=%q", got, want)
		}
		if got, want := runs[1].Start.Hour(), 9; got != want {
			t.Fatalf("invalid start time: got=%d, want=%d", got, want)
		}
		return nil
	})
}
