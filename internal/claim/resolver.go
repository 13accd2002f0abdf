// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package claim implements ClaimResolver (spec.md §4.3, §4.4): the
// transactional rules that turn a base circle or a closed trail loop into a
// committed territory change, win or lose. Grounded on strava-coverage's
// custom_areas.go claim-resolution flow (union the new shape into what the
// player already owns, diff it against everyone it overlaps, persist
// whatever survives) generalized from a single-player "my coverage" model to
// spec.md's combat semantics: shields, carves, wipeouts and clan territory.
package claim

import (
	"context"
	"errors"
	"sort"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/territoryrun/server/internal/geo"
	"github.com/territoryrun/server/internal/geomath"
	"github.com/territoryrun/server/internal/hub"
	"github.com/territoryrun/server/internal/model"
)

// Geometric constants fixed by spec.md §4.3/§4.4, not operator tunables —
// the same hardcoded-const treatment internal/trail gives its own chest
// radius and disconnect grace, rather than threading them through
// internal/config (see DESIGN.md).
const (
	minClaimAreaM2          = 100
	wipeoutThresholdM2      = 1
	carveToleranceM2        = 0.5 // allowed slop for "circle fully inside victim" after ST_MakeValid
	clanBaseRadiusMeters    = 56.42
	clanExpansionMinAreaM2  = 100
	clanBaseProximityMeters = 70
)

var (
	ErrPlayerNotFound = errors.New("claim: player not found")
)

// PlayerLookup is the slice of Hub the resolver needs: read-only access to a
// connected player's live state, by id, mirroring internal/trail's interface
// of the same name.
type PlayerLookup interface {
	Player(id model.PlayerID) (*model.Player, bool)
}

// TrailProvider reads a drawing player's live, server-owned trail. The
// resolver never trusts a client-supplied ring for a loop claim — it reads
// the same ActiveTrail internal/trail already maintains (see DESIGN.md's
// Open Question decision) and tells the engine to drop it once consumed.
type TrailProvider interface {
	Trail(playerID model.PlayerID) (*model.ActiveTrail, bool)
	ClearAfterClaim(playerID model.PlayerID)
}

// ClanLookup is the slice of internal/clan the resolver needs for
// leader/membership checks during clan-mode claims.
type ClanLookup interface {
	Clan(id model.ClanID) (*model.Clan, bool)
}

// PowerConsumer drops a spent lastStand shield from the victim's owned
// powers, inside the resolver's own transaction.
type PowerConsumer interface {
	Consume(ctx context.Context, tx pgx.Tx, owner model.PlayerID) error
}

// QuestRecorder is the slice of internal/quest the resolver needs to report
// area-claimed and distance-run progress.
type QuestRecorder interface {
	RecordProgress(ctx context.Context, actor model.PlayerID, kind model.QuestKind, delta float64) (*model.Quest, error)
}

// Notifier is the slice of Hub the resolver needs to push shield/claim
// events back out.
type Notifier interface {
	SendTo(playerID model.PlayerID, out hub.Outbound)
	Broadcast(out hub.Outbound)
}

// Resolver is the ClaimService implementation.
type Resolver struct {
	geo     *geo.Store
	players PlayerLookup
	trails  TrailProvider
	clans   ClanLookup
	powers  PowerConsumer
	quests  QuestRecorder
	notify  Notifier
	log     *zap.Logger

	baseClaimRadiusMeters float64
}

func NewResolver(geoStore *geo.Store, players PlayerLookup, trails TrailProvider, clans ClanLookup, powers PowerConsumer, quests QuestRecorder, notify Notifier, baseClaimRadiusMeters float64, log *zap.Logger) *Resolver {
	return &Resolver{
		geo:                   geoStore,
		players:               players,
		trails:                trails,
		clans:                 clans,
		powers:                powers,
		quests:                quests,
		notify:                notify,
		log:                   log,
		baseClaimRadiusMeters: baseClaimRadiusMeters,
	}
}

// Claim dispatches to the solo or clan resolution path by the claimant's
// current mode (spec.md §4.3 vs §4.4 are distinct rule sets, not variations
// of one function).
func (r *Resolver) Claim(ctx context.Context, playerID model.PlayerID, req hub.ClaimRequest) (hub.ClaimResult, error) {
	player, ok := r.players.Player(playerID)
	if !ok {
		return hub.ClaimResult{}, ErrPlayerNotFound
	}
	switch player.Mode {
	case model.ModeClan:
		if player.ClanID.Invalid() {
			return hub.ClaimResult{Reason: "not a member of a clan"}, nil
		}
		return r.claimClan(ctx, player, req)
	case model.ModeSolo:
		return r.claimSolo(ctx, player, req)
	default:
		return hub.ClaimResult{Reason: "spectators cannot claim territory"}, nil
	}
}

// ListTerritories returns every solo territory row, for the existingTerritories
// snapshot a newly joined client receives.
func (r *Resolver) ListTerritories(ctx context.Context) ([]model.Territory, error) {
	return r.geo.AllTerritories(ctx)
}

// SweepExpiredShields is delegated entirely to internal/power's Inventory in
// practice (it owns the shield-arm/expire transaction); ClaimResolver only
// satisfies hub.ClaimService's method set here as a pass-through no-op, kept
// distinct from PowerService.SweepExpiredShields so Hub can call either
// service through its own interface without internal/claim importing
// internal/power.
func (r *Resolver) SweepExpiredShields(ctx context.Context, now int64) {}

// survivingPiece picks the largest-area connected piece a geo.Difference
// returns as the polygon to persist, and sums every piece's area for
// threshold decisions. Schema stores one polygon per territory row (see
// DESIGN.md): a carve or wipeout that splits a shape into disjoint islands
// keeps its dominant piece and drops minor remnants, a documented
// simplification rather than a MultiPolygon column.
func survivingPiece(pieces []geo.DifferencePiece) (ring []geomath.LatLng, totalAreaM2 float64) {
	for _, p := range pieces {
		totalAreaM2 += p.AreaM2
	}
	if len(pieces) == 0 {
		return nil, 0
	}
	return pieces[0].Ring, totalAreaM2
}

// closeRing appends the first point if the last point isn't already equal to
// it, so a trail's open polyline becomes a closed polygon ring.
func closeRing(points []geomath.LatLng) []geomath.LatLng {
	if len(points) == 0 {
		return nil
	}
	ring := make([]geomath.LatLng, len(points), len(points)+1)
	copy(ring, points)
	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring
}

// trailLengthKm sums the haversine distance between consecutive points, used
// to advance the distance-run quest kind.
func trailLengthKm(points []geomath.LatLng) float64 {
	var meters float64
	for i := 0; i+1 < len(points); i++ {
		meters += geomath.DistanceMeters(points[i], points[i+1])
	}
	return meters / 1000
}

func sortPlayerIDs(ids []model.PlayerID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

func sortClanIDs(ids []model.ClanID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
