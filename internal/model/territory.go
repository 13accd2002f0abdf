// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "github.com/territoryrun/server/internal/geomath"

// Territory is the in-memory mirror of one row of the `territories` table
// (internal/geo). The authoritative polygon lives in PostGIS; Boundary here
// is the ring as read from or written to that row by internal/geo for the
// duration of one operation. It is not cached between operations.
type Territory struct {
	Owner    PlayerID
	AreaM2   float64
	Base     geomath.LatLng
	Boundary []geomath.LatLng

	CarveMode    bool
	LapsRequired int

	ShieldOwned     bool
	ShieldActive    bool
	ShieldActivated int64 // unix millis, 0 if inactive
}

// ShieldExpired reports whether an active shield has passed its 48h window
// (spec.md §4.6 lastStand: "shield persists 48h or until consumed").
func (t *Territory) ShieldExpired(nowUnixMillis, durationMillis int64) bool {
	if !t.ShieldActive {
		return false
	}
	return nowUnixMillis-t.ShieldActivated >= durationMillis
}

// ClanTerritory is the clan analogue: no shield-activation timestamp of its
// own because clan shields are tracked on Clan, not per-territory.
type ClanTerritory struct {
	Clan     ClanID
	AreaM2   float64
	Base     geomath.LatLng
	Boundary []geomath.LatLng
}
