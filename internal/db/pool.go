// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the pgx connection pool every storage-backed package dials
// through (internal/geo, internal/power, internal/quest, internal/geofence).
// Grounded on la2go's internal/db/db.go: a thin wrapper constructed once at
// startup and handed to every repository rather than each package opening
// its own pool.
type DB struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL/PostGIS and verifies the connection.
func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &DB{pool: pool}, nil
}

func (d *DB) Close() {
	d.pool.Close()
}

// Pool exposes the underlying pool to repositories that need raw
// Query/Exec/BeginTx access (internal/geo, internal/power, internal/quest).
func (d *DB) Pool() *pgxpool.Pool {
	return d.pool
}
