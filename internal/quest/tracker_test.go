// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package quest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/territoryrun/server/internal/model"
)

func TestProgressCompleteThreshold(t *testing.T) {
	p := model.Progress{Quest: "q1", Actor: "p1", Value: 99.9}
	assert.False(t, p.Complete(100))
	p.Value = 100
	assert.True(t, p.Complete(100))
}

func TestQuestExpiredOnlyWhenOpen(t *testing.T) {
	q := model.Quest{Status: model.QuestOpen, ExpiresAtMs: 1000}
	assert.True(t, q.Expired(1000))
	assert.False(t, q.Expired(999))

	q.Status = model.QuestComplete
	assert.False(t, q.Expired(2000))
}
