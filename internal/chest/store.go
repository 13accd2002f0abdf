// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chest persists SuperpowerChest fixtures (spec.md §4.2 point 1,
// §4.6 data model). Chests are plain lat/lng points, not polygons, so unlike
// internal/geo this talks to the superpower_chests table directly over
// pgx/v5 rather than through PostGIS operators.
package chest

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/territoryrun/server/internal/db"
	"github.com/territoryrun/server/internal/geomath"
	"github.com/territoryrun/server/internal/model"
)

// ErrNotFound is returned when a chest id has no matching row.
var ErrNotFound = errors.New("chest: not found")

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(database *db.DB) *Store {
	return &Store{pool: database.Pool()}
}

// NearbyActive returns every active chest within radiusMeters of point.
// Grounded on server/spawn.go's nearAny threshold-distance scan, generalized
// from entity spawn spacing to chest pickup radius: the chest table is small
// enough that a full scan of active rows filtered in Go is simpler, and no
// less correct, than a PostGIS bounding-box query.
func (s *Store) NearbyActive(ctx context.Context, point geomath.LatLng, radiusMeters float64) ([]model.SuperpowerChest, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, lat, lng, active FROM superpower_chests WHERE active = true`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SuperpowerChest
	for rows.Next() {
		var c model.SuperpowerChest
		var id string
		if err := rows.Scan(&id, &c.Point.Lat, &c.Point.Lng, &c.Active); err != nil {
			return nil, err
		}
		c.ID = model.ChestID(id)
		if geomath.DistanceMeters(point, c.Point) <= radiusMeters {
			out = append(out, c)
		}
	}
	return out, rows.Err()
}

// Deactivate atomically claims a chest: it only succeeds the first caller
// that races for a given chest, since the UPDATE's WHERE clause only
// matches while active is still true.
func (s *Store) Deactivate(ctx context.Context, id model.ChestID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE superpower_chests SET active = false WHERE id = $1 AND active = true`, string(id))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Spawn inserts a new active chest at point, used by the admin side-channel
// (spec.md §3: "spawned by admin").
func (s *Store) Spawn(ctx context.Context, point geomath.LatLng) (model.ChestID, error) {
	id := model.ChestID(model.NewID())
	_, err := s.pool.Exec(ctx,
		`INSERT INTO superpower_chests (id, lat, lng, active) VALUES ($1, $2, $3, true)`,
		string(id), point.Lat, point.Lng)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Get fetches a single chest by id, used by admin listing endpoints.
func (s *Store) Get(ctx context.Context, id model.ChestID) (model.SuperpowerChest, error) {
	var c model.SuperpowerChest
	row := s.pool.QueryRow(ctx, `SELECT id, lat, lng, active FROM superpower_chests WHERE id = $1`, string(id))
	var rowID string
	if err := row.Scan(&rowID, &c.Point.Lat, &c.Point.Lng, &c.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.SuperpowerChest{}, ErrNotFound
		}
		return model.SuperpowerChest{}, err
	}
	c.ID = model.ChestID(rowID)
	return c, nil
}
