// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "github.com/territoryrun/server/internal/geomath"

// SuperpowerChest is a world pickup a drawing trail can pass through to be
// granted a random power (spec.md §4.6). Grounded in the teacher's
// wasSpawnedForKind/spawn.go pickup placement idiom, adapted from spawn-time
// entities to a standing world fixture that is deactivated on pickup and
// not re-armed.
type SuperpowerChest struct {
	ID     ChestID
	Point  geomath.LatLng
	Active bool
}
