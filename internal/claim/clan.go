// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package claim

import (
	"context"
	"errors"

	"github.com/territoryrun/server/internal/geo"
	"github.com/territoryrun/server/internal/geomath"
	"github.com/territoryrun/server/internal/hub"
	"github.com/territoryrun/server/internal/model"
)

// claimClan implements spec.md §4.4: clan base creation, clan expansion, and
// combat against both solo and rival-clan territories, reusing the same
// shield/difference rules claimSolo uses against solo victims. A clan-level
// shield (Clan.ShieldActive) is an all-or-nothing block: if any intersected
// rival clan is shielded the whole claim is rejected with no state change,
// rather than the per-territory island carve solo/clan-vs-solo combat uses.
func (r *Resolver) claimClan(ctx context.Context, player *model.Player, req hub.ClaimRequest) (hub.ClaimResult, error) {
	clanInfo, ok := r.clans.Clan(player.ClanID)
	if !ok {
		return hub.ClaimResult{Reason: "clan not found"}, nil
	}

	tx, err := r.geo.BeginTx(ctx)
	if err != nil {
		return hub.ClaimResult{}, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	existing, err := r.geo.LockClanTerritory(ctx, tx, player.ClanID)
	hasExisting := true
	if errors.Is(err, geo.ErrNotFound) {
		hasExisting = false
		existing = nil
	} else if err != nil {
		return hub.ClaimResult{}, err
	}

	var ring []geomath.LatLng
	var claimedAreaM2, trailKm float64
	var isBase bool
	var baseCenter geomath.LatLng

	if req.BaseClaim != nil {
		isBase = true
		if hasExisting {
			return hub.ClaimResult{Reason: "clan already has a base"}, nil
		}
		if player.ID != clanInfo.Leader {
			return hub.ClaimResult{Reason: "only the clan leader may place the clan base"}, nil
		}
		trail, ok := r.trails.Trail(player.ID)
		if !ok || len(trail.Points) != 1 {
			return hub.ClaimResult{Reason: "clan base requires a single-point trail"}, nil
		}
		baseCenter = trail.Points[0]
		ring, claimedAreaM2, err = r.geo.InitialTerritory(ctx, tx, baseCenter, clanBaseRadiusMeters)
		if err != nil {
			return hub.ClaimResult{}, err
		}
	} else {
		if !hasExisting {
			return hub.ClaimResult{Reason: "clan has no territory to expand from"}, nil
		}
		trail, ok := r.trails.Trail(player.ID)
		if !ok || len(trail.Points) < 3 {
			return hub.ClaimResult{Reason: "no closable trail"}, nil
		}
		if geomath.DistanceMeters(trail.Points[0], existing.Base) > clanBaseProximityMeters {
			return hub.ClaimResult{Reason: "expansion must start near the clan base"}, nil
		}
		ring = closeRing(trail.Points)
		claimedAreaM2, err = r.geo.Area(ctx, tx, ring)
		if err != nil {
			return hub.ClaimResult{}, err
		}
		trailKm = trailLengthKm(trail.Points)
		if claimedAreaM2 < clanExpansionMinAreaM2 {
			return hub.ClaimResult{Reason: "expansion area below minimum"}, nil
		}
		hit, err := r.geo.Intersects(ctx, tx, ring, existing.Boundary)
		if err != nil {
			return hub.ClaimResult{}, err
		}
		if !hit {
			return hub.ClaimResult{Reason: "expansion does not connect to clan territory"}, nil
		}
	}

	var attackerFinal []geomath.LatLng
	if hasExisting {
		unionRing, _, err := r.geo.Union(ctx, tx, existing.Boundary, ring)
		if err != nil {
			return hub.ClaimResult{}, err
		}
		attackerFinal = unionRing
	} else {
		attackerFinal = ring
	}

	var defeated []model.PlayerID
	var defeatedClans []model.ClanID
	var touched []model.Territory
	var touchedClans []model.ClanTerritory

	// Solo victims, skipping friendly members of the attacking clan.
	soloVictims, err := r.geo.FindIntersecting(ctx, tx, ring, player.ID)
	if err != nil {
		return hub.ClaimResult{}, err
	}
	sortPlayerIDs(soloVictims)
	for _, victimID := range soloVictims {
		if clanInfo.HasMember(victimID) {
			continue
		}
		victim, err := r.geo.LockTerritory(ctx, tx, victimID)
		if err != nil {
			return hub.ClaimResult{}, err
		}
		if victim.ShieldActive {
			pieces, err := r.geo.Difference(ctx, tx, attackerFinal, victim.Boundary)
			if err != nil {
				return hub.ClaimResult{}, err
			}
			attackerFinal, _ = survivingPiece(pieces)
			victim.ShieldActive = false
			victim.ShieldOwned = false
			if err := r.geo.ReplaceTerritory(ctx, tx, victim); err != nil {
				return hub.ClaimResult{}, err
			}
			if err := r.powers.Consume(ctx, tx, victimID); err != nil {
				return hub.ClaimResult{}, err
			}
			r.notify.SendTo(victimID, hub.ShieldBroken{OwnerID: string(victimID)})
			continue
		}

		pieces, err := r.geo.Difference(ctx, tx, victim.Boundary, attackerFinal)
		if err != nil {
			return hub.ClaimResult{}, err
		}
		remainRing, remainArea := survivingPiece(pieces)
		if remainArea < wipeoutThresholdM2 {
			victim.Boundary = nil
			victim.AreaM2 = 0
			defeated = append(defeated, victimID)
		} else {
			victim.Boundary = remainRing
			victim.AreaM2 = remainArea
		}
		if err := r.geo.ReplaceTerritory(ctx, tx, victim); err != nil {
			return hub.ClaimResult{}, err
		}
		touched = append(touched, *victim)
	}

	// Rival clan territories. A shielded rival clan blocks the whole claim.
	rivals, err := r.geo.FindIntersectingClans(ctx, tx, ring, player.ClanID)
	if err != nil {
		return hub.ClaimResult{}, err
	}
	sortClanIDs(rivals)
	for _, rivalID := range rivals {
		if rival, ok := r.clans.Clan(rivalID); ok && rival.ShieldActive {
			return hub.ClaimResult{Reason: "target clan is shielded"}, nil
		}
		rivalTerritory, err := r.geo.LockClanTerritory(ctx, tx, rivalID)
		if err != nil {
			return hub.ClaimResult{}, err
		}
		pieces, err := r.geo.Difference(ctx, tx, rivalTerritory.Boundary, attackerFinal)
		if err != nil {
			return hub.ClaimResult{}, err
		}
		remainRing, remainArea := survivingPiece(pieces)
		if remainArea < wipeoutThresholdM2 {
			rivalTerritory.Boundary = nil
			rivalTerritory.AreaM2 = 0
			defeatedClans = append(defeatedClans, rivalID)
		} else {
			rivalTerritory.Boundary = remainRing
			rivalTerritory.AreaM2 = remainArea
		}
		if err := r.geo.ReplaceClanTerritory(ctx, tx, rivalTerritory); err != nil {
			return hub.ClaimResult{}, err
		}
		touchedClans = append(touchedClans, *rivalTerritory)
	}

	finalAreaM2, err := r.geo.Area(ctx, tx, attackerFinal)
	if err != nil {
		return hub.ClaimResult{}, err
	}
	if finalAreaM2 < wipeoutThresholdM2 {
		return hub.ClaimResult{Reason: "claim nullified by protected territories"}, nil
	}

	attacker := &model.ClanTerritory{Clan: player.ClanID, AreaM2: finalAreaM2, Boundary: attackerFinal}
	if isBase {
		attacker.Base = baseCenter
	} else {
		attacker.Base = existing.Base
	}
	if err := r.geo.ReplaceClanTerritory(ctx, tx, attacker); err != nil {
		return hub.ClaimResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return hub.ClaimResult{}, err
	}

	if !isBase {
		r.trails.ClearAfterClaim(player.ID)
	}
	if r.quests != nil {
		_, _ = r.quests.RecordProgress(ctx, player.ID, model.QuestKindAreaClaimed, claimedAreaM2)
		if !isBase {
			_, _ = r.quests.RecordProgress(ctx, player.ID, model.QuestKindDistanceRun, trailKm)
		}
	}

	touchedClans = append(touchedClans, *attacker)
	return hub.ClaimResult{
		Accepted:       true,
		NewTotalAreaM2: finalAreaM2,
		AreaClaimedM2:  claimedAreaM2,
		Defeated:       defeated,
		DefeatedClans:  defeatedClans,
		Touched:        touched,
		TouchedClans:   touchedClans,
	}, nil
}
