// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package geo is the authority for every durable boolean polygon operation
// the territory game needs — union, difference, intersects, area, buffer,
// contains, distance — backed by PostGIS. internal/geomath covers the cheap
// in-process pre-checks; this package confirms anything that is about to be
// committed to a player's or clan's owned shape.
package geo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/territoryrun/server/internal/db"
	"github.com/territoryrun/server/internal/geomath"
	"github.com/territoryrun/server/internal/model"
)

// ErrNotFound is returned when a territory lookup finds no row.
var ErrNotFound = errors.New("geo: territory not found")

// Store is the PostGIS-backed GeometryStore. Grounded on bike-map's
// postgis_service.go (ST_GeomFromText-parameterized inserts) and
// strava-coverage's custom_areas.go (ST_Union/ST_Difference/ST_Area raw
// SQL), ported from database/sql+lib/pq to pgx/v5 using la2go's
// internal/db/db.go pool-wrapper idiom.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(database *db.DB) *Store {
	return &Store{pool: database.Pool()}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting every
// method below run either standalone or inside a caller-managed transaction
// (internal/claim wraps multi-step commits in one).
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
}

// BeginTx starts a transaction for multi-statement atomic commits
// (internal/claim's Phase D). Callers must defer tx.Rollback(ctx); it is a
// no-op after a successful Commit, matching la2go's repository pattern.
func (s *Store) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return s.pool.BeginTx(ctx, pgx.TxOptions{})
}

// InitialTerritory computes the base-claim circle around center at the
// given radius via ST_Buffer on a geography cast (meter-accurate, unlike a
// planar buffer in degrees) and returns its ring and area without
// persisting anything — ClaimResolver calls ReplaceTerritory separately
// once eligibility passes.
func (s *Store) InitialTerritory(ctx context.Context, q querier, center geomath.LatLng, radiusMeters float64) (ring []geomath.LatLng, areaM2 float64, err error) {
	if q == nil {
		q = s.pool
	}
	const query = `
		SELECT ST_AsText(ST_Buffer($1::geography, $2)::geometry),
		       ST_Area(ST_Buffer($1::geography, $2))`
	var wkt string
	err = q.QueryRow(ctx, query, PointToWKT(center), radiusMeters).Scan(&wkt, &areaM2)
	if err != nil {
		return nil, 0, fmt.Errorf("geo: initial territory: %w", err)
	}
	ring, err = ParseWKTPolygon(wkt)
	if err != nil {
		return nil, 0, err
	}
	return ring, areaM2, nil
}

// Area returns the geography area, in square meters, of an arbitrary ring —
// used by ClaimResolver to re-measure a polygon after a union/difference
// before committing it.
func (s *Store) Area(ctx context.Context, q querier, ring []geomath.LatLng) (float64, error) {
	if q == nil {
		q = s.pool
	}
	var area float64
	err := q.QueryRow(ctx, `SELECT ST_Area(ST_GeomFromText($1, 4326)::geography)`, RingToWKT(ring)).Scan(&area)
	if err != nil {
		return 0, fmt.Errorf("geo: area: %w", err)
	}
	return area, nil
}

// Union merges two rings and returns the resulting exterior ring. Callers
// are expected to pass adjacent/overlapping shapes (an expansion circle
// against the existing owned polygon); a disjoint union would make
// ST_Union's result a MultiPolygon, which ST_ExteriorRing / ST_AsText
// cannot flatten back to one ring — Phase B eligibility is what guarantees
// adjacency before this is ever called.
func (s *Store) Union(ctx context.Context, q querier, a, b []geomath.LatLng) ([]geomath.LatLng, float64, error) {
	if q == nil {
		q = s.pool
	}
	const query = `
		SELECT ST_AsText(ST_MakeValid(ST_Union(ST_GeomFromText($1, 4326), ST_GeomFromText($2, 4326)))),
		       ST_Area(ST_Union(ST_GeomFromText($1, 4326), ST_GeomFromText($2, 4326))::geography)`
	var wkt string
	var area float64
	err := q.QueryRow(ctx, query, RingToWKT(a), RingToWKT(b)).Scan(&wkt, &area)
	if err != nil {
		return nil, 0, fmt.Errorf("geo: union: %w", err)
	}
	ring, err := ParseWKTPolygon(wkt)
	if err != nil {
		return nil, 0, err
	}
	return ring, area, nil
}

// DifferencePiece is one connected polygon left over after a difference, with
// its own area — a carve or a combat wipeout can split a territory into an
// island plus a remainder, and ClaimResolver's shield-island rule needs to
// see all of them to pick which survive.
type DifferencePiece struct {
	Ring   []geomath.LatLng
	AreaM2 float64
}

// Difference subtracts cut from base and returns every resulting polygon
// (ST_Dump splits a MultiPolygon result into rows), largest-area first.
// Grounded on strava-coverage's ST_Difference usage, extended with ST_Dump
// because — unlike that repo's single always-contiguous area — a territory
// carve can legitimately split a shape into disjoint islands (spec.md §4.3
// shield-island rule).
func (s *Store) Difference(ctx context.Context, q querier, base, cut []geomath.LatLng) ([]DifferencePiece, error) {
	if q == nil {
		q = s.pool
	}
	const query = `
		SELECT ST_AsText((dump).geom), ST_Area((dump).geom::geography)
		FROM (
			SELECT ST_Dump(ST_MakeValid(ST_Difference(ST_GeomFromText($1, 4326), ST_GeomFromText($2, 4326)))) AS dump
		) pieces
		ORDER BY ST_Area((dump).geom::geography) DESC`
	rows, err := q.Query(ctx, query, RingToWKT(base), RingToWKT(cut))
	if err != nil {
		return nil, fmt.Errorf("geo: difference: %w", err)
	}
	defer rows.Close()

	var out []DifferencePiece
	for rows.Next() {
		var wkt string
		var area float64
		if err := rows.Scan(&wkt, &area); err != nil {
			return nil, fmt.Errorf("geo: difference scan: %w", err)
		}
		ring, err := ParseWKTPolygon(wkt)
		if err != nil {
			continue // degenerate sliver (point/line) from the dump; not a real piece
		}
		out = append(out, DifferencePiece{Ring: ring, AreaM2: area})
	}
	return out, rows.Err()
}

// Intersects reports whether two rings overlap.
func (s *Store) Intersects(ctx context.Context, q querier, a, b []geomath.LatLng) (bool, error) {
	if q == nil {
		q = s.pool
	}
	var hit bool
	err := q.QueryRow(ctx, `SELECT ST_Intersects(ST_GeomFromText($1, 4326), ST_GeomFromText($2, 4326))`,
		RingToWKT(a), RingToWKT(b)).Scan(&hit)
	if err != nil {
		return false, fmt.Errorf("geo: intersects: %w", err)
	}
	return hit, nil
}

// Contains reports whether ring wholly contains point.
func (s *Store) Contains(ctx context.Context, q querier, ring []geomath.LatLng, point geomath.LatLng) (bool, error) {
	if q == nil {
		q = s.pool
	}
	var yes bool
	err := q.QueryRow(ctx, `SELECT ST_Contains(ST_GeomFromText($1, 4326), ST_GeomFromText($2, 4326))`,
		RingToWKT(ring), PointToWKT(point)).Scan(&yes)
	if err != nil {
		return false, fmt.Errorf("geo: contains: %w", err)
	}
	return yes, nil
}

// Distance returns the geography distance, in meters, between two rings (0
// if they overlap).
func (s *Store) Distance(ctx context.Context, q querier, a, b []geomath.LatLng) (float64, error) {
	if q == nil {
		q = s.pool
	}
	var meters float64
	err := q.QueryRow(ctx, `SELECT ST_Distance(ST_GeomFromText($1, 4326)::geography, ST_GeomFromText($2, 4326)::geography)`,
		RingToWKT(a), RingToWKT(b)).Scan(&meters)
	if err != nil {
		return 0, fmt.Errorf("geo: distance: %w", err)
	}
	return meters, nil
}

// Buffer expands center by radiusMeters and returns the resulting ring,
// used for arena-radius and geofence-margin checks.
func (s *Store) Buffer(ctx context.Context, q querier, center geomath.LatLng, radiusMeters float64) ([]geomath.LatLng, error) {
	if q == nil {
		q = s.pool
	}
	var wkt string
	err := q.QueryRow(ctx, `SELECT ST_AsText(ST_Buffer($1::geography, $2)::geometry)`, PointToWKT(center), radiusMeters).Scan(&wkt)
	if err != nil {
		return nil, fmt.Errorf("geo: buffer: %w", err)
	}
	return ParseWKTPolygon(wkt)
}

// FindIntersecting returns the owner ids of every stored territory whose
// geometry intersects ring, using the GiST index on territories.geom — the
// query ClaimResolver runs to discover combat targets during Phase C.
func (s *Store) FindIntersecting(ctx context.Context, q querier, ring []geomath.LatLng, exclude model.PlayerID) ([]model.PlayerID, error) {
	if q == nil {
		q = s.pool
	}
	rows, err := q.Query(ctx,
		`SELECT owner_id FROM territories WHERE owner_id != $2 AND ST_Intersects(geom, ST_GeomFromText($1, 4326))`,
		RingToWKT(ring), string(exclude))
	if err != nil {
		return nil, fmt.Errorf("geo: find intersecting: %w", err)
	}
	defer rows.Close()

	var owners []model.PlayerID
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("geo: find intersecting scan: %w", err)
		}
		owners = append(owners, model.PlayerID(owner))
	}
	return owners, rows.Err()
}

// LockTerritory reads owner's row FOR UPDATE inside an open transaction,
// the row lock ClaimResolver's Phase D relies on to serialize concurrent
// claims against the same territory. Returns ErrNotFound if the player owns
// no territory yet.
func (s *Store) LockTerritory(ctx context.Context, tx pgx.Tx, owner model.PlayerID) (*model.Territory, error) {
	const query = `
		SELECT ST_AsText(geom), area_m2, base_lat, base_lng, carve_mode, laps_required,
		       shield_owned, shield_active, shield_activated_ms
		FROM territories WHERE owner_id = $1 FOR UPDATE`
	var wkt string
	t := &model.Territory{Owner: owner}
	err := tx.QueryRow(ctx, query, string(owner)).Scan(
		&wkt, &t.AreaM2, &t.Base.Lat, &t.Base.Lng, &t.CarveMode, &t.LapsRequired,
		&t.ShieldOwned, &t.ShieldActive, &t.ShieldActivated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("geo: lock territory: %w", err)
	}
	t.Boundary, err = ParseWKTPolygon(wkt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ReplaceTerritory upserts owner's full territory row, the terminal step of
// every ClaimResolver commit.
func (s *Store) ReplaceTerritory(ctx context.Context, q querier, t *model.Territory) error {
	if q == nil {
		q = s.pool
	}
	const query = `
		INSERT INTO territories (owner_id, area_m2, base_lat, base_lng, carve_mode, laps_required,
		                          shield_owned, shield_active, shield_activated_ms, geom, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, ST_GeomFromText($10, 4326), now())
		ON CONFLICT (owner_id) DO UPDATE SET
			area_m2 = EXCLUDED.area_m2,
			base_lat = EXCLUDED.base_lat,
			base_lng = EXCLUDED.base_lng,
			carve_mode = EXCLUDED.carve_mode,
			laps_required = EXCLUDED.laps_required,
			shield_owned = EXCLUDED.shield_owned,
			shield_active = EXCLUDED.shield_active,
			shield_activated_ms = EXCLUDED.shield_activated_ms,
			geom = EXCLUDED.geom,
			updated_at = now()`
	_, err := q.Exec(ctx, query,
		string(t.Owner), t.AreaM2, t.Base.Lat, t.Base.Lng, t.CarveMode, t.LapsRequired,
		t.ShieldOwned, t.ShieldActive, t.ShieldActivated, RingToWKT(t.Boundary))
	if err != nil {
		return fmt.Errorf("geo: replace territory: %w", err)
	}
	return nil
}

// FindIntersectingClans returns the ids of every clan whose clan_territories
// row intersects ring, excluding exclude's own clan — the clan analogue of
// FindIntersecting, used by ClaimResolver's clan combat path to find rival
// clan victims alongside solo victims.
func (s *Store) FindIntersectingClans(ctx context.Context, q querier, ring []geomath.LatLng, exclude model.ClanID) ([]model.ClanID, error) {
	if q == nil {
		q = s.pool
	}
	rows, err := q.Query(ctx,
		`SELECT clan_id FROM clan_territories WHERE clan_id != $2 AND ST_Intersects(geom, ST_GeomFromText($1, 4326))`,
		RingToWKT(ring), string(exclude))
	if err != nil {
		return nil, fmt.Errorf("geo: find intersecting clans: %w", err)
	}
	defer rows.Close()

	var clans []model.ClanID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("geo: find intersecting clans scan: %w", err)
		}
		clans = append(clans, model.ClanID(id))
	}
	return clans, rows.Err()
}

// LockClanTerritory reads clan's row FOR UPDATE inside an open transaction.
// Returns ErrNotFound if the clan has no base yet.
func (s *Store) LockClanTerritory(ctx context.Context, tx pgx.Tx, clan model.ClanID) (*model.ClanTerritory, error) {
	const query = `SELECT ST_AsText(geom), area_m2, base_lat, base_lng FROM clan_territories WHERE clan_id = $1 FOR UPDATE`
	var wkt string
	t := &model.ClanTerritory{Clan: clan}
	err := tx.QueryRow(ctx, query, string(clan)).Scan(&wkt, &t.AreaM2, &t.Base.Lat, &t.Base.Lng)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("geo: lock clan territory: %w", err)
	}
	t.Boundary, err = ParseWKTPolygon(wkt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ReplaceClanTerritory upserts clan's full territory row.
func (s *Store) ReplaceClanTerritory(ctx context.Context, q querier, t *model.ClanTerritory) error {
	if q == nil {
		q = s.pool
	}
	const query = `
		INSERT INTO clan_territories (clan_id, area_m2, base_lat, base_lng, geom, updated_at)
		VALUES ($1, $2, $3, $4, ST_GeomFromText($5, 4326), now())
		ON CONFLICT (clan_id) DO UPDATE SET
			area_m2 = EXCLUDED.area_m2,
			base_lat = EXCLUDED.base_lat,
			base_lng = EXCLUDED.base_lng,
			geom = EXCLUDED.geom,
			updated_at = now()`
	_, err := q.Exec(ctx, query, string(t.Clan), t.AreaM2, t.Base.Lat, t.Base.Lng, RingToWKT(t.Boundary))
	if err != nil {
		return fmt.Errorf("geo: replace clan territory: %w", err)
	}
	return nil
}

// AllTerritories returns every territory row, for the existingTerritories
// snapshot a newly joined client receives.
func (s *Store) AllTerritories(ctx context.Context) ([]model.Territory, error) {
	const query = `
		SELECT owner_id, ST_AsText(geom), area_m2, base_lat, base_lng, carve_mode, laps_required,
		       shield_owned, shield_active, shield_activated_ms
		FROM territories`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("geo: all territories: %w", err)
	}
	defer rows.Close()

	var out []model.Territory
	for rows.Next() {
		var owner, wkt string
		t := model.Territory{}
		if err := rows.Scan(&owner, &wkt, &t.AreaM2, &t.Base.Lat, &t.Base.Lng, &t.CarveMode, &t.LapsRequired,
			&t.ShieldOwned, &t.ShieldActive, &t.ShieldActivated); err != nil {
			return nil, fmt.Errorf("geo: all territories scan: %w", err)
		}
		t.Owner = model.PlayerID(owner)
		t.Boundary, err = ParseWKTPolygon(wkt)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTerritory removes owner's row entirely. Combat wipeouts do NOT call
// this — a defeated territory is replaced with an empty, zero-area geometry
// via ReplaceTerritory instead, since a territory row must survive for as
// long as its player exists. This is reserved for the player itself being
// removed (e.g. account deletion); the territories FK to players has no
// ON DELETE CASCADE, so this row must be deleted before the player row.
func (s *Store) DeleteTerritory(ctx context.Context, q querier, owner model.PlayerID) error {
	if q == nil {
		q = s.pool
	}
	_, err := q.Exec(ctx, `DELETE FROM territories WHERE owner_id = $1`, string(owner))
	if err != nil {
		return fmt.Errorf("geo: delete territory: %w", err)
	}
	return nil
}
