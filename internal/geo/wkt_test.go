// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package geo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/territoryrun/server/internal/geomath"
)

func TestRingToWKTClosesRing(t *testing.T) {
	ring := []geomath.LatLng{
		{Lat: 0, Lng: 0},
		{Lat: 0, Lng: 1},
		{Lat: 1, Lng: 1},
	}
	wkt := RingToWKT(ring)
	require.Equal(t, "POLYGON((0.00000000 0.00000000,1.00000000 0.00000000,1.00000000 1.00000000,0.00000000 0.00000000))", wkt)
}

func TestParseWKTPolygonRoundTrip(t *testing.T) {
	ring := []geomath.LatLng{
		{Lat: 10, Lng: 20},
		{Lat: 11, Lng: 20},
		{Lat: 11, Lng: 21},
		{Lat: 10, Lng: 20},
	}
	wkt := RingToWKT(ring)
	parsed, err := ParseWKTPolygon(wkt)
	require.NoError(t, err)
	require.Len(t, parsed, 4)
	require.InDelta(t, 10, parsed[0].Lat, 1e-6)
	require.InDelta(t, 20, parsed[0].Lng, 1e-6)
}

func TestParseWKTPolygonRejectsGarbage(t *testing.T) {
	_, err := ParseWKTPolygon("POINT(1 2)")
	require.Error(t, err)
}

func TestEmptyRingRoundTrip(t *testing.T) {
	require.Equal(t, "POLYGON EMPTY", RingToWKT(nil))
	parsed, err := ParseWKTPolygon("POLYGON EMPTY")
	require.NoError(t, err)
	require.Empty(t, parsed)
}
