// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package confdb holds types to retrieve front-end module
// configurations from the configuration database.
package confdb // import "github.com/ljthink/pyBAR/confdb"

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

// DB exposes convenience methods to retrieve module configurations
// and run bookkeeping from the configuration database.
type DB struct {
	db   *sql.DB
	name string
}

// Open opens a connection to the configuration database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("confdb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		return nil, fmt.Errorf("confdb: could not ping %q db: %w", dbname, err)
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
		return fmt.Errorf("confdb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// LastConfig returns the name of the most recent configuration.
func (db *DB) LastConfig(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cfg := ""
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT name FROM configurations ORDER BY datetime DESC LIMIT 1",
	)
	if err != nil {
		return cfg, fmt.Errorf("confdb: could not query last config: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&cfg)
		if err != nil {
			return cfg, fmt.Errorf("confdb: could not get last config value: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return cfg, fmt.Errorf("confdb: could not scan db for last config: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return cfg, fmt.Errorf("confdb: context error while retrieving last config: %w", err)
	}

	return cfg, nil
}

// LastRunNumber returns the most recent run number.
func (db *DB) LastRunNumber(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var run int
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT number FROM runs ORDER BY datetime DESC LIMIT 1",
	)
	if err != nil {
		return run, fmt.Errorf("confdb: could not query run number: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&run)
		if err != nil {
			return run, fmt.Errorf("confdb: could not get run number value: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return run, fmt.Errorf("confdb: could not scan db for run number: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return run, fmt.Errorf("confdb: context error while retrieving run number: %w", err)
	}

	return run, nil
}

// GlobalConfig returns the global register values of one module under
// the named configuration.
func (db *DB) GlobalConfig(ctx context.Context, config, module string) ([]GlobalValue, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var cfg []GlobalValue
	rows, err := db.db.QueryContext(
		ctx,
		`
SELECT globals.register, globals.value FROM globals
JOIN configurations ON configurations.identifier=globals.config
WHERE (
	configurations.name=? AND globals.module=?
)
`,
		config, module,
	)
	if err != nil {
		return cfg, fmt.Errorf("confdb: could not run global cfg query: %w", err)
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		var v GlobalValue
		err = rows.Scan(&v.Name, &v.Value)
		if err != nil {
			return cfg, fmt.Errorf("confdb: could not scan row %d for global cfg: %w", i, err)
		}
		i++

		cfg = append(cfg, v)
	}

	if err := rows.Err(); err != nil {
		return cfg, fmt.Errorf("confdb: could not scan db for global cfg: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return cfg, fmt.Errorf("confdb: context error while retrieving global cfg: %w", err)
	}

	return cfg, nil
}

// PixelConfig returns the pixel register planes of one module under
// the named configuration.
func (db *DB) PixelConfig(ctx context.Context, config, module string) ([]PixelValue, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var cfg []PixelValue
	rows, err := db.db.QueryContext(
		ctx,
		`
SELECT pixels.register, pixels.dc, pixels.layer, pixels.plane FROM pixels
JOIN configurations ON configurations.identifier=pixels.config
WHERE (
	configurations.name=? AND pixels.module=?
)
`,
		config, module,
	)
	if err != nil {
		return cfg, fmt.Errorf("confdb: could not run pixel cfg query: %w", err)
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		var v PixelValue
		err = rows.Scan(&v.Register, &v.DC, &v.Layer, &v.Plane)
		if err != nil {
			return cfg, fmt.Errorf("confdb: could not scan row %d for pixel cfg: %w", i, err)
		}
		i++

		cfg = append(cfg, v)
	}

	if err := rows.Err(); err != nil {
		return cfg, fmt.Errorf("confdb: could not scan db for pixel cfg: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return cfg, fmt.Errorf("confdb: context error while retrieving pixel cfg: %w", err)
	}

	return cfg, nil
}
