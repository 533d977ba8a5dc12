// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package templog persists temperature readings in a local SQLite database.
//
// The database is a single file, created on first use. Readings are stored
// raw, as signed sixteenths of a degree Celsius straight from the sensor
// scratchpad, so nothing is lost to formatting. One row per sensor per
// sampling pass.
package templog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/physic"

	"github.com/embhaus/onewire/ds18b20"

	_ "modernc.org/sqlite"
)

// connectionParams enables a busy timeout and WAL so a reader polling the
// log does not trip over the writer.
const connectionParams = "?_pragma=busy_timeout(1000)&_pragma=journal_mode(WAL)"

const queryTimeout = 2 * time.Second

//go:embed sql/migrate.sql
var migrate string

// Entry is one stored reading.
type Entry struct {
	At     time.Time
	Addr   onewire.Address
	Sample ds18b20.Sample
}

// DB is a handle to the reading log.
type DB struct {
	db *sql.DB
}

// Open opens or creates the log database at filePath and applies the schema.
func Open(filePath string) (*DB, error) {
	db, err := sql.Open("sqlite", filePath+connectionParams)
	if err != nil {
		return nil, fmt.Errorf("templog: opening %s: %w", filePath, err)
	}
	// The migration is idempotent, run it on every open.
	if _, err := db.Exec(migrate); err != nil {
		db.Close()
		return nil, fmt.Errorf("templog: migrating %s: %w", filePath, err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (l *DB) Close() error {
	return l.db.Close()
}

// Append stores a single reading.
func (l *DB) Append(at time.Time, addr onewire.Address, s ds18b20.Sample) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	const q = `INSERT INTO readings (sampled_at, sensor, raw) VALUES (?, ?, ?)`
	if _, err := l.db.ExecContext(ctx, q, at.Unix(), sensorKey(addr), int16(s)); err != nil {
		return fmt.Errorf("templog: appending reading: %w", err)
	}
	return nil
}

// AppendPass stores one sampling pass over a fleet in a single transaction.
// Sensors whose sample is not valid yet are skipped, so the first pass after
// discovery records nothing. addrs and samples run in lockstep as returned
// by the fleet.
func (l *DB) AppendPass(at time.Time, addrs []onewire.Address, samples []ds18b20.Sample) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("templog: appending pass: %w", err)
	}
	const q = `INSERT INTO readings (sampled_at, sensor, raw) VALUES (?, ?, ?)`
	for i, s := range samples {
		if !s.Valid() {
			continue
		}
		if _, err := tx.ExecContext(ctx, q, at.Unix(), sensorKey(addrs[i]), int16(s)); err != nil {
			tx.Rollback()
			return fmt.Errorf("templog: appending pass: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("templog: appending pass: %w", err)
	}
	return nil
}

// Recent returns the readings for one sensor since the given time, oldest
// first.
func (l *DB) Recent(addr onewire.Address, since time.Time) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	const q = `
		SELECT sampled_at, raw
		FROM readings
		WHERE sensor = ? AND sampled_at >= ?
		ORDER BY sampled_at`
	rows, err := l.db.QueryContext(ctx, q, sensorKey(addr), since.Unix())
	if err != nil {
		return nil, fmt.Errorf("templog: querying readings: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var at int64
		var raw int16
		if err := rows.Scan(&at, &raw); err != nil {
			return nil, fmt.Errorf("templog: scanning reading: %w", err)
		}
		out = append(out, Entry{At: time.Unix(at, 0), Addr: addr, Sample: ds18b20.Sample(raw)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("templog: querying readings: %w", err)
	}
	return out, nil
}

// Average returns the mean temperature for one sensor since the given time.
// It returns ErrNoReadings when the window is empty.
func (l *DB) Average(addr onewire.Address, since time.Time) (physic.Temperature, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	const q = `
		SELECT AVG(raw)
		FROM readings
		WHERE sensor = ? AND sampled_at >= ?`
	var avg sql.NullFloat64
	if err := l.db.QueryRowContext(ctx, q, sensorKey(addr), since.Unix()).Scan(&avg); err != nil {
		return 0, fmt.Errorf("templog: averaging readings: %w", err)
	}
	if !avg.Valid {
		return 0, ErrNoReadings
	}
	return physic.ZeroCelsius + physic.Temperature(avg.Float64*float64(physic.Kelvin)/16), nil
}

// ErrNoReadings is returned by Average when no reading matches the window.
var ErrNoReadings = errors.New("templog: no readings")

// sensorKey renders an address the way the rest of the tooling prints it, a
// 16 digit hex string, so the table is greppable with the scan output.
func sensorKey(addr onewire.Address) string {
	return fmt.Sprintf("%016x", uint64(addr))
}
