// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package clan

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/territoryrun/server/internal/model"
)

func TestClanApproveRequiresPriorRequest(t *testing.T) {
	c := model.NewClan("c1", "Runners", "RUN", "leader")
	assert.False(t, c.Approve("stranger"))
	c.RequestJoin("follower")
	assert.True(t, c.Approve("follower"))
	assert.True(t, c.HasMember("follower"))
	assert.Empty(t, c.JoinRequests)
}

func TestClanRequestJoinIgnoresExistingMember(t *testing.T) {
	c := model.NewClan("c1", "Runners", "RUN", "leader")
	c.RequestJoin("leader")
	assert.Empty(t, c.JoinRequests)
}
