// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "github.com/territoryrun/server/internal/geomath"

// Mode is the session mode a player is in. Mirrors the teacher's notion of
// a Client belonging to a "kind" of participation, generalized from mk48's
// single boat-or-spectator split to spec.md §6's solo/clan/spectator set.
type Mode string

const (
	ModeSolo      Mode = "solo"
	ModeClan      Mode = "clan"
	ModeSpectator Mode = "spectator"
)

// Player is the in-memory mirror of a connected participant. SessionHub owns
// this struct (spec.md §3 ownership table); TrailEngine, ClaimResolver and
// ConquestManager only ever look players up by PlayerID, never hold a
// pointer across a tick boundary, matching spec.md §9's "id-indexed maps,
// never back-pointers" guidance.
type Player struct {
	ID            PlayerID
	DisplayName   string
	IdentityColor string
	Mode          Mode
	ClanID        ClanID

	Position geomath.LatLng

	OwnedPowers  PowerSet
	ActivePowers ActivePowers

	Ghost bool // not set by the server; ghost-running is read from ActivePowers via GhostRunnerActive

	BannedUntilUnixMillis int64
}

// NewPlayer constructs a freshly-joined player with empty power/draw state.
func NewPlayer(id PlayerID, name string) *Player {
	return &Player{
		ID:          id,
		DisplayName: name,
		OwnedPowers: NewPowerSet(),
	}
}

// Banned reports whether the player is currently serving a ban.
func (p *Player) Banned(nowUnixMillis int64) bool {
	return p.BannedUntilUnixMillis > nowUnixMillis
}

// GhostRunnerActive reports whether outbound trail broadcasts should be
// suppressed for this player (spec.md §4.2: "unless ghostRunnerActive").
func (p *Player) GhostRunnerActive() bool {
	return p.ActivePowers.GhostRunner
}
