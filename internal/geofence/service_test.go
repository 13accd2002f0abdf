// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package geofence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/territoryrun/server/internal/geomath"
	"github.com/territoryrun/server/internal/hub"
	"github.com/territoryrun/server/internal/model"
)

type fakeNotifier struct{ broadcasts int }

func (f *fakeNotifier) Broadcast(hub.Outbound) { f.broadcasts++ }

func squareAround(center geomath.LatLng, halfSideMeters float64) []geomath.LatLng {
	nw := geomath.Destination(geomath.Destination(center, 270, halfSideMeters), 0, halfSideMeters)
	ne := geomath.Destination(geomath.Destination(center, 90, halfSideMeters), 0, halfSideMeters)
	se := geomath.Destination(geomath.Destination(center, 90, halfSideMeters), 180, halfSideMeters)
	sw := geomath.Destination(geomath.Destination(center, 270, halfSideMeters), 180, halfSideMeters)
	return []geomath.LatLng{nw, ne, se, sw, nw}
}

func TestValidFailsClosedWithNoAllowedZones(t *testing.T) {
	s := NewService(nil, &fakeNotifier{})
	ok, err := s.Valid(context.Background(), geomath.LatLng{Lat: 40, Lng: -105})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidInsideAllowedOutsideBlocked(t *testing.T) {
	center := geomath.LatLng{Lat: 40, Lng: -105}
	s := NewService(nil, &fakeNotifier{})
	s.zones[model.ZoneID("allowed")] = model.GeofenceZone{
		ID: "allowed", Kind: model.ZoneAllowed, Polygon: squareAround(center, 500),
	}

	ok, err := s.Valid(context.Background(), center)
	require.NoError(t, err)
	assert.True(t, ok)

	s.zones[model.ZoneID("blocked")] = model.GeofenceZone{
		ID: "blocked", Kind: model.ZoneBlocked, Polygon: squareAround(center, 50),
	}
	ok, err = s.Valid(context.Background(), center)
	require.NoError(t, err)
	assert.False(t, ok)
}
