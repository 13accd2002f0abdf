// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "github.com/territoryrun/server/internal/geomath"

// ZoneKind distinguishes an allow-list zone (play permitted only inside) from
// a block-list zone (play forbidden inside), per spec.md §4.4's fail-closed
// GeofenceService.
type ZoneKind string

const (
	ZoneAllowed ZoneKind = "allowed"
	ZoneBlocked ZoneKind = "blocked"
)

// GeofenceZone mirrors la2go's zone package (server/model/zone), generalized
// from fixed gameplay-effect zones to the allow/block pair spec.md needs.
type GeofenceZone struct {
	ID      ZoneID
	Name    string
	Kind    ZoneKind
	Polygon []geomath.LatLng
}
