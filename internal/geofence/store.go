// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package geofence implements GeofenceService (spec.md §4.7): allowed/
// blocked zone registry, fail-closed point validity. Grounded on la2go's
// internal/game/zone/base_zone.go (BaseZone.containsNPoly ray casting),
// generalized from the teacher pack's integer game coordinates to
// geomath's float64 lat/lng, and cached in memory the same way BaseZone's
// node lists are held for the lifetime of the zone rather than re-queried.
package geofence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/territoryrun/server/internal/db"
	"github.com/territoryrun/server/internal/geo"
	"github.com/territoryrun/server/internal/model"
)

// Store persists GeofenceZone rows. Uses the WKT helpers from internal/geo
// directly rather than a full geo.Store, since zone membership checks run
// in-process against the cached polygon (Service.Valid), not through
// PostGIS — the geometry column exists purely for admin-side durability and
// KML re-import.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(database *db.DB) *Store {
	return &Store{pool: database.Pool()}
}

func (s *Store) LoadAll(ctx context.Context) ([]model.GeofenceZone, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, kind, ST_AsText(geom) FROM geofence_zones`)
	if err != nil {
		return nil, fmt.Errorf("geofence: load all: %w", err)
	}
	defer rows.Close()

	var zones []model.GeofenceZone
	for rows.Next() {
		var z model.GeofenceZone
		var id, kind, wkt string
		if err := rows.Scan(&id, &z.Name, &kind, &wkt); err != nil {
			return nil, fmt.Errorf("geofence: scan: %w", err)
		}
		z.ID = model.ZoneID(id)
		z.Kind = model.ZoneKind(kind)
		z.Polygon, err = geo.ParseWKTPolygon(wkt)
		if err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

func (s *Store) Add(ctx context.Context, z model.GeofenceZone) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO geofence_zones (id, name, kind, geom) VALUES ($1, $2, $3, ST_GeomFromText($4, 4326))
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, kind = EXCLUDED.kind, geom = EXCLUDED.geom`,
		string(z.ID), z.Name, string(z.Kind), geo.RingToWKT(z.Polygon))
	if err != nil {
		return fmt.Errorf("geofence: add: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id model.ZoneID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM geofence_zones WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("geofence: delete: %w", err)
	}
	return nil
}
