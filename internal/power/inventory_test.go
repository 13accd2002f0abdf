// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package power

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/territoryrun/server/internal/model"
)

func TestNewPlayerOwnsNoGhostRunner(t *testing.T) {
	p := model.NewPlayer("p1", "Runner")
	assert.False(t, p.OwnedPowers.Has(model.PowerGhostRunner))
}

func TestOwnedPowersRemoveIsIdempotent(t *testing.T) {
	p := model.NewPlayer("p1", "Runner")
	p.OwnedPowers.Add(model.PowerInfiltrator)
	p.OwnedPowers.Remove(model.PowerInfiltrator)
	p.OwnedPowers.Remove(model.PowerInfiltrator)
	assert.False(t, p.OwnedPowers.Has(model.PowerInfiltrator))
}
