// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package claim

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/territoryrun/server/internal/geo"
	"github.com/territoryrun/server/internal/geomath"
)

func TestCloseRingAppendsStartPoint(t *testing.T) {
	points := []geomath.LatLng{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}, {Lat: 1, Lng: 1}}
	ring := closeRing(points)
	assert.Len(t, ring, 4)
	assert.Equal(t, ring[0], ring[3])
}

func TestCloseRingAlreadyClosedIsUnchanged(t *testing.T) {
	points := []geomath.LatLng{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}, {Lat: 1, Lng: 1}, {Lat: 0, Lng: 0}}
	ring := closeRing(points)
	assert.Len(t, ring, 4)
}

func TestTrailLengthKmStraightLine(t *testing.T) {
	points := []geomath.LatLng{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.01}}
	km := trailLengthKm(points)
	assert.InDelta(t, 1.1, km, 0.2)
}

func TestSurvivingPieceSumsAreaButKeepsLargestRing(t *testing.T) {
	pieces := []geo.DifferencePiece{
		{Ring: []geomath.LatLng{{Lat: 1, Lng: 1}}, AreaM2: 500},
		{Ring: []geomath.LatLng{{Lat: 2, Lng: 2}}, AreaM2: 10},
	}
	ring, total := survivingPiece(pieces)
	assert.Equal(t, pieces[0].Ring, ring)
	assert.Equal(t, 510.0, total)
}

func TestSurvivingPieceEmptyInput(t *testing.T) {
	ring, total := survivingPiece(nil)
	assert.Nil(t, ring)
	assert.Equal(t, 0.0, total)
}
