// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package geomath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(side float64) []Vec2 {
	return []Vec2{
		{0, 0},
		{side, 0},
		{side, side},
		{0, side},
	}
}

func TestPolygonAreaMeters2(t *testing.T) {
	area := PolygonAreaMeters2(square(20))
	require.InDelta(t, 400, area, 1e-6)
}

func TestPolygonAreaMeters2TooFewPoints(t *testing.T) {
	assert.Equal(t, 0.0, PolygonAreaMeters2([]Vec2{{0, 0}, {1, 1}}))
}

func TestContainsPoint(t *testing.T) {
	ring := square(10)
	assert.True(t, ContainsPoint(ring, Vec2{5, 5}))
	assert.False(t, ContainsPoint(ring, Vec2{20, 20}))
}

func TestSegmentsIntersect(t *testing.T) {
	// Two segments crossing like an X.
	assert.True(t, SegmentsIntersect(Vec2{0, 0}, Vec2{10, 10}, Vec2{0, 10}, Vec2{10, 0}))
	// Parallel, non-overlapping segments.
	assert.False(t, SegmentsIntersect(Vec2{0, 0}, Vec2{10, 0}, Vec2{0, 5}, Vec2{10, 5}))
}

func TestDistanceToSegment(t *testing.T) {
	d := DistanceToSegment(Vec2{5, 5}, Vec2{0, 0}, Vec2{10, 0})
	require.InDelta(t, 5, d, 1e-9)
}

func TestDistanceMetersRoundTrip(t *testing.T) {
	origin := LatLng{Lat: 0, Lng: 0}
	dest := Destination(origin, 90, 1000)
	d := DistanceMeters(origin, dest)
	require.InDelta(t, 1000, d, 1.0)
}

func TestPathSimilarityIdentical(t *testing.T) {
	path := []Vec2{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	assert.Equal(t, 1.0, PathSimilarity(path, path))
}

func TestPathSimilarityFarApart(t *testing.T) {
	reference := []Vec2{{0, 0}, {10, 0}}
	candidate := []Vec2{{0, 1000}, {10, 1000}}
	assert.Equal(t, 0.0, PathSimilarity(reference, candidate))
}
