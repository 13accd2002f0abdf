// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package chest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/territoryrun/server/internal/geomath"
)

func TestChestRadiusDistanceCheck(t *testing.T) {
	center := geomath.LatLng{Lat: 40.0, Lng: -105.0}
	near := geomath.Destination(center, 0, 10)
	far := geomath.Destination(center, 0, 500)

	assert.LessOrEqual(t, geomath.DistanceMeters(center, near), 20.0)
	assert.Greater(t, geomath.DistanceMeters(center, far), 20.0)
}
