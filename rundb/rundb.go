// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rundb records acquisition runs of the SIGMA DAQ in the lab's
// run database.
package rundb // import "github.com/go-daq/asix/rundb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const (
	host = "localhost"
)

var (
	usr = "username"
	pwd = "s3cr3t"

	drvName = "mysql"
)

// Run describes one acquisition run.
type Run struct {
	Number       uint32
	Samplerate   uint64
	Channels     int32
	LimitSamples uint64
	Trigger      string // textual form of the trigger specification
	Start        time.Time
}

// DB exposes convenience methods to record and retrieve acquisition
// runs from the SIGMA run database.
type DB struct {
	db   *sql.DB
	name string
}

// Open opens a connection to the run database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("rundb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		return nil, fmt.Errorf("rundb: could not ping %q db: %w", dbname, err)
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("rundb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// AddRun records a new acquisition run.
func (db *DB) AddRun(ctx context.Context, run Run) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := db.db.ExecContext(
		ctx,
		"INSERT INTO runs (run, samplerate, channels, limit_samples, trig, started) VALUES (?, ?, ?, ?, ?, ?)",
		run.Number, run.Samplerate, run.Channels, run.LimitSamples, run.Trigger,
		run.Start.UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return fmt.Errorf("rundb: could not insert run %d: %w", run.Number, err)
	}

	return nil
}

// LastRunNumber returns the number of the most recent run, 0 when the
// database holds none.
func (db *DB) LastRunNumber(ctx context.Context) (uint32, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var run uint32
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT run FROM runs ORDER BY run DESC LIMIT 1",
	)
	if err != nil {
		return run, fmt.Errorf("rundb: could not query last run: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&run)
		if err != nil {
			return run, fmt.Errorf("rundb: could not get last run value: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return run, fmt.Errorf("rundb: could not scan db for last run: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return run, fmt.Errorf("rundb: context error while retrieving last run: %w", err)
	}

	return run, nil
}

// Runs returns the n most recent runs.
func (db *DB) Runs(ctx context.Context, n int) ([]Run, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := db.db.QueryContext(
		ctx,
		"SELECT run, samplerate, channels, limit_samples, trig, started FROM runs ORDER BY run DESC LIMIT ?",
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("rundb: could not query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run     Run
			started string
		)
		err = rows.Scan(
			&run.Number, &run.Samplerate, &run.Channels,
			&run.LimitSamples, &run.Trigger, &started,
		)
		if err != nil {
			return nil, fmt.Errorf("rundb: could not scan run: %w", err)
		}
		run.Start, err = time.Parse("2006-01-02 15:04:05", started)
		if err != nil {
			return nil, fmt.Errorf("rundb: could not parse run start time %q: %w", started, err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rundb: could not scan db for runs: %w", err)
	}

	return runs, nil
}
