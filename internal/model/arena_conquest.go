// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "github.com/territoryrun/server/internal/geomath"

// ArenaStatus enumerates the states of spec.md §4.7's Arena/Conquest machine.
type ArenaStatus string

const (
	ArenaWaitingForEntry ArenaStatus = "waitingForEntry"
	ArenaReadyToStart    ArenaStatus = "readyToStart"
	ArenaTimedOut        ArenaStatus = "timedOut"
)

// Arena is the waiting-room state created by createArena, before the
// attacker has actually started running laps. Grounded in the teacher's
// spawn.go staged-entry pattern (a boat exists in a "respawning" holding
// state before becoming live).
type Arena struct {
	ID            ArenaID
	Attacker      PlayerID
	TargetTerr    PlayerID // owner id of the territory under attack
	Center        geomath.LatLng
	RadiusMeters  float64
	RequiredLaps  int
	Status        ArenaStatus
	CreatedAtMs   int64
	TimeoutAtMs   int64
}

func (a *Arena) Expired(nowUnixMillis int64) bool {
	return a.Status == ArenaWaitingForEntry && nowUnixMillis >= a.TimeoutAtMs
}

// ConquestStatus enumerates the lap-progression machine once an attacker has
// entered the arena and begun running.
type ConquestStatus string

const (
	ConquestInProgress ConquestStatus = "inProgress"
	ConquestFinalized  ConquestStatus = "finalized"
	ConquestFailed     ConquestStatus = "failed"
	ConquestTimedOut   ConquestStatus = "timedOut"
)

// Conquest tracks lap progress against a reference path, the first
// recorded lap (spec.md §4.5's path-similarity kernel is evaluated once per
// later completed lap against Reference).
type Conquest struct {
	ID            ConquestID
	Attacker      PlayerID
	TargetTerr    PlayerID
	VictimOwner   PlayerID
	Reference     []geomath.LatLng
	LapsCompleted int
	LapsRequired  int
	Status        ConquestStatus
	ExpiresAtMs   int64
}

func (c *Conquest) Expired(nowUnixMillis int64) bool {
	return c.Status == ConquestInProgress && nowUnixMillis >= c.ExpiresAtMs
}

func (c *Conquest) Complete() bool {
	return c.LapsCompleted >= c.LapsRequired
}
