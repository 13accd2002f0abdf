// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package hub

import (
	"context"

	"github.com/territoryrun/server/internal/geomath"
	"github.com/territoryrun/server/internal/model"
)

// The Hub doesn't own game rules itself (the same split the teacher draws
// between Hub's transport/bookkeeping and Team/Player's domain logic) — it
// holds one instance of each domain service and calls into it from inbound
// handlers and ticker sweeps. Each interface here is the minimal surface
// Hub needs, so internal/hub never has to import internal/claim,
// internal/trail and so on directly, and a test can fake any one of them.
type (
	TrailService interface {
		StartDrawing(ctx context.Context, playerID model.PlayerID, start geomath.LatLng) error
		AppendPoint(ctx context.Context, playerID model.PlayerID, point geomath.LatLng) (TrailAppendResult, error)
		StopDrawing(ctx context.Context, playerID model.PlayerID) error
		Disconnect(playerID model.PlayerID)
		SweepDisconnectGrace(now int64)
	}

	TrailAppendResult struct {
		Trail       *model.ActiveTrail
		ChestPicked model.ChestID
		SelfCut     bool
	}

	ClaimService interface {
		Claim(ctx context.Context, playerID model.PlayerID, req ClaimRequest) (ClaimResult, error)
		SweepExpiredShields(ctx context.Context, now int64)
		ListTerritories(ctx context.Context) ([]model.Territory, error)
	}

	// ClaimRequest carries the claimTerritory payload (spec.md §6:
	// `{mode, trail?, baseClaim?}`). BaseClaim set means a base-circle claim
	// (first base, or an infiltrator carve); nil means a trail-loop claim,
	// whose points the resolver reads from the player's authoritative
	// server-side ActiveTrail rather than trusting a client-supplied ring —
	// TrailEngine already owns that state, so ClaimResolver is just another
	// reader of it (see DESIGN.md's Open Question decision).
	ClaimRequest struct {
		BaseClaim *BaseClaim
	}

	BaseClaim struct {
		Center       geomath.LatLng
		RadiusMeters *float64 // nil means "use the resolver's configured default"; explicit 0 is rejected (spec.md §8)
	}

	ClaimResult struct {
		Accepted       bool
		Reason         string
		NewTotalAreaM2 float64
		AreaClaimedM2  float64
		Defeated       []model.PlayerID
		Touched        []model.Territory
		Removed        []model.PlayerID

		// TouchedClans/DefeatedClans carry the clan-territory side of a
		// clan-mode claim (rival clan territories reduced or wiped, plus the
		// attacker's own updated clan territory). Empty for solo claims.
		TouchedClans  []model.ClanTerritory
		DefeatedClans []model.ClanID
	}

	ConquestService interface {
		CreateArena(ctx context.Context, attacker model.PlayerID, target model.PlayerID) (*model.Arena, error)
		StartConquest(ctx context.Context, attacker model.PlayerID) (*model.Conquest, error)
		RecordLap(ctx context.Context, attacker model.PlayerID, lap []geomath.LatLng) (*model.Conquest, error)
		SweepArenas(ctx context.Context, now int64)
		SweepConquests(ctx context.Context, now int64)
	}

	PowerService interface {
		Activate(ctx context.Context, playerID model.PlayerID, power model.PowerID) error
		SweepExpiredShields(ctx context.Context, now int64)
	}

	GeofenceServiceIface interface {
		Valid(ctx context.Context, point geomath.LatLng) (bool, error)
	}

	QuestServiceIface interface {
		RecordProgress(ctx context.Context, actor model.PlayerID, kind model.QuestKind, delta float64) (*model.Quest, error)
		SweepExpired(ctx context.Context, now int64)
	}
)
