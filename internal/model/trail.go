// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "github.com/territoryrun/server/internal/geomath"

// ActiveTrail is the in-progress polyline a drawing player is laying down.
// Grounded in the teacher's player.go Status/dying fields for "state that
// only exists while an action is underway" but has no mk48 analogue beyond
// that shape, since boats never draw trails; the point-append/self-
// intersection logic itself is new (internal/trail).
type ActiveTrail struct {
	Player       PlayerID
	Points       []geomath.LatLng
	StartedAtMs  int64
	Ghost        bool // mirrors Player.GhostRunnerActive() at trail-start time
	TrailDefense bool // mirrors ActivePowers.TrailDefense at trail-start time
}

func NewActiveTrail(player PlayerID, start geomath.LatLng, nowUnixMillis int64, ghost, trailDefense bool) *ActiveTrail {
	return &ActiveTrail{
		Player:       player,
		Points:       []geomath.LatLng{start},
		StartedAtMs:  nowUnixMillis,
		Ghost:        ghost,
		TrailDefense: trailDefense,
	}
}

func (t *ActiveTrail) Append(p geomath.LatLng) {
	t.Points = append(t.Points, p)
}

func (t *ActiveTrail) Len() int {
	return len(t.Points)
}

func (t *ActiveTrail) Last() geomath.LatLng {
	return t.Points[len(t.Points)-1]
}
