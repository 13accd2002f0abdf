// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package claim

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/territoryrun/server/internal/geo"
	"github.com/territoryrun/server/internal/geomath"
	"github.com/territoryrun/server/internal/hub"
	"github.com/territoryrun/server/internal/model"
)

var (
	errInfiltratorTargetAmbiguous = errors.New("claim: infiltrator carve requires exactly one victim territory")
	errInfiltratorNotFullyInside  = errors.New("claim: infiltrator circle is not fully inside the victim territory")
)

// claimSolo implements spec.md §4.3's four phases for a solo player: build
// the proposed ring (Phase A), check it's eligible to exist at all (Phase
// B), resolve combat against anything it overlaps (Phase C), and commit the
// whole thing in one transaction (Phase D).
func (r *Resolver) claimSolo(ctx context.Context, player *model.Player, req hub.ClaimRequest) (hub.ClaimResult, error) {
	tx, err := r.geo.BeginTx(ctx)
	if err != nil {
		return hub.ClaimResult{}, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	existing, err := r.geo.LockTerritory(ctx, tx, player.ID)
	hasExisting := true
	if errors.Is(err, geo.ErrNotFound) {
		hasExisting = false
		existing = nil
	} else if err != nil {
		return hub.ClaimResult{}, err
	}

	// Phase A: the proposed ring.
	var ring []geomath.LatLng
	var claimedAreaM2, trailKm float64
	var isBase bool
	var baseCenter geomath.LatLng

	if req.BaseClaim != nil {
		isBase = true
		baseCenter = req.BaseClaim.Center
		radius := r.baseClaimRadiusMeters
		if req.BaseClaim.RadiusMeters != nil {
			// spec.md §8: an explicit radius of 0 is rejected outright, not
			// silently treated as "use the default" — only an omitted radius
			// (nil here) falls back to baseClaimRadiusMeters.
			if *req.BaseClaim.RadiusMeters <= 0 {
				return hub.ClaimResult{Reason: "base claim radius must be positive"}, nil
			}
			radius = *req.BaseClaim.RadiusMeters
		}
		ring, claimedAreaM2, err = r.geo.InitialTerritory(ctx, tx, baseCenter, radius)
		if err != nil {
			return hub.ClaimResult{}, err
		}
	} else {
		trail, ok := r.trails.Trail(player.ID)
		if !ok || len(trail.Points) < 3 {
			return hub.ClaimResult{Reason: "no closable trail"}, nil
		}
		ring = closeRing(trail.Points)
		claimedAreaM2, err = r.geo.Area(ctx, tx, ring)
		if err != nil {
			return hub.ClaimResult{}, err
		}
		trailKm = trailLengthKm(trail.Points)
	}

	isFirstBase := isBase && !hasExisting
	if !isFirstBase && claimedAreaM2 < minClaimAreaM2 {
		return hub.ClaimResult{Reason: "claim area below minimum"}, nil
	}

	var attackerFinal []geomath.LatLng
	var carveMode bool
	var infiltratorSpent bool
	skipGeneralCombat := false
	var defeated []model.PlayerID
	var touched []model.Territory

	if isBase {
		if player.ActivePowers.Infiltrator {
			blocked, err := r.carveAgainstSingleVictim(ctx, tx, player, ring, &touched)
			if err != nil {
				return hub.ClaimResult{}, err
			}
			if blocked != nil {
				if err := tx.Commit(ctx); err != nil {
					return hub.ClaimResult{}, err
				}
				player.ActivePowers.Infiltrator = false
				r.notify.Broadcast(hub.ShieldBroken{OwnerID: string(*blocked)})
				return hub.ClaimResult{Reason: "infiltrator blocked by shield"}, nil
			}
			attackerFinal = ring
			carveMode = true
			infiltratorSpent = true
			skipGeneralCombat = true
		} else {
			owners, err := r.geo.FindIntersecting(ctx, tx, ring, player.ID)
			if err != nil {
				return hub.ClaimResult{}, err
			}
			if len(owners) > 0 {
				return hub.ClaimResult{Reason: "base claim overlaps existing territory"}, nil
			}
		}
	} else {
		if !hasExisting || existing.AreaM2 < wipeoutThresholdM2 {
			return hub.ClaimResult{Reason: "no territory to expand from"}, nil
		}
		hit, err := r.geo.Intersects(ctx, tx, ring, existing.Boundary)
		if err != nil {
			return hub.ClaimResult{}, err
		}
		if !hit {
			return hub.ClaimResult{Reason: "expansion does not connect to existing territory"}, nil
		}
	}

	var finalAreaM2 float64
	if !skipGeneralCombat {
		if hasExisting && existing.AreaM2 >= wipeoutThresholdM2 {
			unionRing, _, err := r.geo.Union(ctx, tx, existing.Boundary, ring)
			if err != nil {
				return hub.ClaimResult{}, err
			}
			attackerFinal = unionRing
		} else {
			attackerFinal = ring
		}

		victims, err := r.geo.FindIntersecting(ctx, tx, ring, player.ID)
		if err != nil {
			return hub.ClaimResult{}, err
		}
		sortPlayerIDs(victims)

		for _, victimID := range victims {
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

		finalAreaM2, err = r.geo.Area(ctx, tx, attackerFinal)
		if err != nil {
			return hub.ClaimResult{}, err
		}
		if finalAreaM2 < wipeoutThresholdM2 {
			return hub.ClaimResult{Reason: "claim nullified by protected territories"}, nil
		}
	} else {
		finalAreaM2 = claimedAreaM2
	}

	attacker := &model.Territory{
		Owner:        player.ID,
		AreaM2:       finalAreaM2,
		Boundary:     attackerFinal,
		CarveMode:    carveMode || (hasExisting && existing.CarveMode),
		LapsRequired: 1,
	}
	if isBase {
		attacker.Base = baseCenter
	} else if hasExisting {
		attacker.Base = existing.Base
	}
	if hasExisting {
		attacker.LapsRequired = existing.LapsRequired
		attacker.ShieldOwned = existing.ShieldOwned
		attacker.ShieldActive = existing.ShieldActive
		attacker.ShieldActivated = existing.ShieldActivated
	}

	if err := r.geo.ReplaceTerritory(ctx, tx, attacker); err != nil {
		return hub.ClaimResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return hub.ClaimResult{}, err
	}

	if infiltratorSpent {
		player.ActivePowers.Infiltrator = false
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

	touched = append(touched, *attacker)
	return hub.ClaimResult{
		Accepted:       true,
		NewTotalAreaM2: finalAreaM2,
		AreaClaimedM2:  claimedAreaM2,
		Defeated:       defeated,
		Touched:        touched,
	}, nil
}

// carveAgainstSingleVictim implements the infiltrator base-claim path:
// ring must fall fully inside exactly one non-self territory. If that
// territory is shielded, the shield breaks and the carve is blocked — the
// caller commits the transaction anyway and reports the owner id back so it
// can notify and reject. Otherwise the circle is carved out and the
// victim's remaining piece is persisted; the caller proceeds to Phase D with
// a fresh base.
func (r *Resolver) carveAgainstSingleVictim(ctx context.Context, tx pgx.Tx, player *model.Player, ring []geomath.LatLng, touched *[]model.Territory) (*model.PlayerID, error) {
	owners, err := r.geo.FindIntersecting(ctx, tx, ring, player.ID)
	if err != nil {
		return nil, err
	}
	if len(owners) != 1 {
		return nil, errInfiltratorTargetAmbiguous
	}
	victimID := owners[0]
	victim, err := r.geo.LockTerritory(ctx, tx, victimID)
	if err != nil {
		return nil, err
	}

	outside, err := r.geo.Difference(ctx, tx, ring, victim.Boundary)
	if err != nil {
		return nil, err
	}
	_, outsideArea := survivingPiece(outside)
	if outsideArea > carveToleranceM2 {
		return nil, errInfiltratorNotFullyInside
	}

	if victim.ShieldActive {
		victim.ShieldActive = false
		victim.ShieldOwned = false
		if err := r.geo.ReplaceTerritory(ctx, tx, victim); err != nil {
			return nil, err
		}
		if err := r.powers.Consume(ctx, tx, victimID); err != nil {
			return nil, err
		}
		return &victimID, nil
	}

	remaining, err := r.geo.Difference(ctx, tx, victim.Boundary, ring)
	if err != nil {
		return nil, err
	}
	victim.Boundary, victim.AreaM2 = survivingPiece(remaining)
	if err := r.geo.ReplaceTerritory(ctx, tx, victim); err != nil {
		return nil, err
	}
	*touched = append(*touched, *victim)
	return nil, nil
}
