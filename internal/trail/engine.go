// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package trail implements the live per-player draw state described in
// spec.md §4.2: streaming GPS ingest, trail-vs-trail intersection, chest
// pickup, and disconnect grace. Grounded on server/hub.go's "everything
// mutates on one goroutine" discipline — Engine has no internal locking
// because hub.Hub only ever calls it from the single hub goroutine — and
// on server/world/collision.go's SAT-style geometry checks, adapted from
// rectangle-vs-rectangle entity collision to segment-vs-polyline trail cuts.
package trail

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/territoryrun/server/internal/geomath"
	"github.com/territoryrun/server/internal/hub"
	"github.com/territoryrun/server/internal/model"
)

const (
	chestRadiusMeters  = 20
	disconnectGraceMs  = 60_000
	minPointsToCollide = 2
)

var (
	ErrAlreadyDrawing = errors.New("already drawing a trail")
	ErrNotDrawing     = errors.New("no active trail")
)

// PlayerLookup is the slice of Hub that Engine needs: read-only access to a
// connected player's live state, by id.
type PlayerLookup interface {
	Player(id model.PlayerID) (*model.Player, bool)
}

// ChestStore is the persistence slice Engine needs from internal/chest.
type ChestStore interface {
	NearbyActive(ctx context.Context, point geomath.LatLng, radiusMeters float64) ([]model.SuperpowerChest, error)
	Deactivate(ctx context.Context, id model.ChestID) (bool, error)
}

// QuestRecorder is the slice of internal/quest Engine needs to report
// trail-cut events.
type QuestRecorder interface {
	RecordProgress(ctx context.Context, actor model.PlayerID, kind model.QuestKind, delta float64) (*model.Quest, error)
}

// Notifier is the slice of Hub that Engine needs to push events back out,
// kept separate from PlayerLookup since a unit test can fake one without
// the other.
type Notifier interface {
	SendTo(playerID model.PlayerID, out hub.Outbound)
	Broadcast(out hub.Outbound)
}

type trailState struct {
	trail        *model.ActiveTrail
	disconnectAt int64 // 0 while connected; set by Disconnect and never reset
}

// Engine owns every ActiveTrail. It satisfies hub.TrailService.
type Engine struct {
	players PlayerLookup
	chests  ChestStore
	quests  QuestRecorder
	notify  Notifier
	log     *zap.Logger

	states map[model.PlayerID]*trailState
}

func NewEngine(players PlayerLookup, chests ChestStore, quests QuestRecorder, notify Notifier, log *zap.Logger) *Engine {
	return &Engine{
		players: players,
		chests:  chests,
		quests:  quests,
		notify:  notify,
		log:     log,
		states:  make(map[model.PlayerID]*trailState),
	}
}

// StartDrawing begins a trail for playerID at start. Grounded on spec.md
// §4.2 startDrawing: requires no existing trail and rejects spectator mode;
// any other mode value, including an unset one, is accepted.
func (e *Engine) StartDrawing(ctx context.Context, playerID model.PlayerID, start geomath.LatLng) error {
	if _, ok := e.states[playerID]; ok {
		return ErrAlreadyDrawing
	}
	player, ok := e.players.Player(playerID)
	if !ok {
		return ErrNotDrawing
	}
	if player.Mode == model.ModeSpectator {
		return errors.New("spectators cannot draw a trail")
	}

	trail := model.NewActiveTrail(playerID, start, time.Now().UnixMilli(), player.GhostRunnerActive(), player.ActivePowers.TrailDefense)
	e.states[playerID] = &trailState{trail: trail}

	if !trail.Ghost {
		e.notify.Broadcast(hub.TrailStarted{PlayerID: string(playerID)})
	}
	return nil
}

// AppendPoint implements spec.md §4.2 appendPoint's four ordered steps:
// chest pickup, then cross-trail intersection, then append, then broadcast.
func (e *Engine) AppendPoint(ctx context.Context, playerID model.PlayerID, point geomath.LatLng) (hub.TrailAppendResult, error) {
	state, ok := e.states[playerID]
	if !ok {
		return hub.TrailAppendResult{}, ErrNotDrawing
	}
	player, ok := e.players.Player(playerID)
	if !ok {
		return hub.TrailAppendResult{}, ErrNotDrawing
	}

	result := hub.TrailAppendResult{Trail: state.trail}

	// Step 1: chest pickup.
	if chestID, ok := e.tryPickupChest(ctx, point); ok {
		result.ChestPicked = chestID
		e.grantRandomPowers(player)
	}

	// Step 2: cross-trail intersection against every other drawing player in
	// the same mode.
	selfCut := e.checkIntersections(ctx, playerID, player, state, point)
	result.SelfCut = selfCut
	if selfCut {
		e.clearTrail(playerID, "deflected")
		return result, nil
	}

	// Step 3: append.
	state.trail.Append(point)

	// Step 4: broadcast, unless ghost-running.
	if !state.trail.Ghost {
		e.notify.Broadcast(hub.TrailPointAdded{
			PlayerID: string(playerID),
			Point:    hub.LatLngWire{Lat: point.Lat, Lng: point.Lng},
		})
	}
	return result, nil
}

// tryPickupChest deactivates the first active chest within range of point,
// if any. Deactivate's WHERE active=true guard is what makes two players
// reaching the same chest in the same tick only pay out once.
func (e *Engine) tryPickupChest(ctx context.Context, point geomath.LatLng) (model.ChestID, bool) {
	chests, err := e.chests.NearbyActive(ctx, point, chestRadiusMeters)
	if err != nil || len(chests) == 0 {
		return "", false
	}
	for _, c := range chests {
		ok, err := e.chests.Deactivate(ctx, c.ID)
		if err == nil && ok {
			return c.ID, true
		}
	}
	return "", false
}

// grantRandomPowers grants 1-2 random unowned powers (spec.md §4.2 point 1).
func (e *Engine) grantRandomPowers(player *model.Player) {
	all := []model.PowerID{model.PowerLastStand, model.PowerInfiltrator, model.PowerGhostRunner, model.PowerTrailDefense}
	var unowned []model.PowerID
	for _, p := range all {
		if !player.OwnedPowers.Has(p) {
			unowned = append(unowned, p)
		}
	}
	if len(unowned) == 0 {
		return
	}
	rand.Shuffle(len(unowned), func(i, j int) { unowned[i], unowned[j] = unowned[j], unowned[i] })
	n := 1 + rand.Intn(2)
	if n > len(unowned) {
		n = len(unowned)
	}
	granted := make([]string, 0, n)
	for i := 0; i < n; i++ {
		player.OwnedPowers.Add(unowned[i])
		granted = append(granted, string(unowned[i]))
	}
	e.notify.SendTo(player.ID, hub.SuperpowersGranted{Powers: granted})
}

// checkIntersections tests the proposed last segment (from the trail's
// current last point to the new point) against every other drawing
// player's trail with at least two points. It returns true if the attacker
// (playerID) was deflected and must self-terminate.
func (e *Engine) checkIntersections(ctx context.Context, playerID model.PlayerID, player *model.Player, state *trailState, point geomath.LatLng) bool {
	last := state.trail.Last()
	proj := geomath.LocalProjection(last)
	a1, a2 := proj(last), proj(point)

	for otherID, otherState := range e.states {
		if otherID == playerID {
			continue
		}
		otherPlayer, ok := e.players.Player(otherID)
		if !ok || otherPlayer.Mode != player.Mode {
			continue
		}
		if otherState.trail.Len() < minPointsToCollide {
			continue
		}
		pts := otherState.trail.Points
		for i := 0; i+1 < len(pts); i++ {
			b1, b2 := proj(pts[i]), proj(pts[i+1])
			if !geomath.SegmentsIntersect(a1, a2, b1, b2) {
				continue
			}
			if otherState.trail.TrailDefense {
				e.notify.SendTo(playerID, hub.RunTerminated{Reason: "deflected"})
				return true
			}
			e.notify.SendTo(otherID, hub.RunTerminated{Reason: "cut by " + player.DisplayName})
			e.clearTrail(otherID, "cut")
			if e.quests != nil {
				_, _ = e.quests.RecordProgress(ctx, playerID, model.QuestKindTrailsCut, 1)
			}
			return false
		}
	}
	return false
}

// StopDrawing implements spec.md §4.2 stopDrawing.
func (e *Engine) StopDrawing(ctx context.Context, playerID model.PlayerID) error {
	if _, ok := e.states[playerID]; !ok {
		return ErrNotDrawing
	}
	if player, ok := e.players.Player(playerID); ok {
		player.ActivePowers.ClearRunScoped()
	}
	e.clearTrail(playerID, "stopped")
	return nil
}

func (e *Engine) clearTrail(playerID model.PlayerID, reason string) {
	delete(e.states, playerID)
	e.notify.Broadcast(hub.TrailCleared{PlayerID: string(playerID), Reason: reason})
}

// Disconnect implements spec.md §4.2 disconnect: drop immediately if not
// drawing, otherwise start a 60s grace window swept by SweepDisconnectGrace.
func (e *Engine) Disconnect(playerID model.PlayerID) {
	state, ok := e.states[playerID]
	if !ok {
		return
	}
	state.disconnectAt = time.Now().UnixMilli() + disconnectGraceMs
}

// SweepDisconnectGrace drops any trail whose grace window has elapsed.
// Called from Hub's trailTicker (10s period).
func (e *Engine) SweepDisconnectGrace(now int64) {
	for playerID, state := range e.states {
		if state.disconnectAt != 0 && now >= state.disconnectAt {
			delete(e.states, playerID)
			e.notify.Broadcast(hub.TrailCleared{PlayerID: string(playerID), Reason: "disconnected"})
		}
	}
}

// Trail returns a player's current trail, if any. Used by ClaimResolver to
// read the closing loop without Engine having to expose its whole map.
func (e *Engine) Trail(playerID model.PlayerID) (*model.ActiveTrail, bool) {
	state, ok := e.states[playerID]
	if !ok {
		return nil, false
	}
	return state.trail, true
}

// ClearAfterClaim drops playerID's trail once ClaimResolver has consumed it
// into a closed polygon, the same bookkeeping clearTrail does for a cut or a
// disconnect but with its own wire reason.
func (e *Engine) ClearAfterClaim(playerID model.PlayerID) {
	if _, ok := e.states[playerID]; !ok {
		return
	}
	e.clearTrail(playerID, "claimed")
}
