// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conquest implements ConquestManager (spec.md §4.5): the
// Arena/Conquest state machine that lets an attacker retrace a reference
// path around a territory, within tolerance, to take it over. Grounded on
// la2go's internal/game/quest state-machine shape (StateCreated/
// StateStarted/StateCompleted) adapted to the Arena/waiting-for-entry/
// ready-to-start/Conquest states spec.md §4.5 names, and on server/hub.go's
// single-goroutine-owns-everything discipline: Manager carries no locks of
// its own because hub.Hub only ever calls it from the hub goroutine.
package conquest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/territoryrun/server/internal/geo"
	"github.com/territoryrun/server/internal/geomath"
	"github.com/territoryrun/server/internal/hub"
	"github.com/territoryrun/server/internal/model"
)

const arenaRadiusMultiplier = 1.5

var (
	ErrTargetNotFound     = errors.New("conquest: target territory not found")
	ErrTargetIsSelf       = errors.New("conquest: cannot conquer your own territory")
	ErrTargetEmpty        = errors.New("conquest: target territory has no land")
	ErrArenaAlreadyExists = errors.New("conquest: arena already active for this attacker")
	ErrNoArena            = errors.New("conquest: no arena for this attacker")
	ErrNotReady           = errors.New("conquest: attacker has not entered the arena yet")
	ErrConquestExists     = errors.New("conquest: conquest already active for this attacker")
	ErrNoConquest         = errors.New("conquest: no conquest in progress for this attacker")
	ErrLapTooShort        = errors.New("conquest: lap path needs at least 2 points")
	ErrLowSimilarity      = errors.New("conquest: lap path too dissimilar from the reference")
)

// PlayerLookup is the slice of Hub Manager needs for position/territory
// context, mirroring internal/trail and internal/claim's interface of the
// same name.
type PlayerLookup interface {
	Player(id model.PlayerID) (*model.Player, bool)
}

// Notifier is the slice of Hub Manager needs to push arena/conquest events,
// and to broadcast the batchTerritoryUpdate a successful finalization
// produces.
type Notifier interface {
	SendTo(playerID model.PlayerID, out hub.Outbound)
	Broadcast(out hub.Outbound)
}

// Manager is the ConquestService implementation. Arena and Conquest state
// live only in memory (spec.md §5: "Arena/Conquest maps: updated only on
// the owning goroutine-equivalent") — unlike Territory/SuperpowerInventory,
// nothing here needs to survive a process restart, so there is no backing
// table for either.
type Manager struct {
	geo     *geo.Store
	players PlayerLookup
	notify  Notifier
	log     *zap.Logger

	arenaTimeout    time.Duration
	conquestTimeout time.Duration

	arenas    map[model.PlayerID]*model.Arena
	conquests map[model.PlayerID]*model.Conquest
}

func NewManager(geoStore *geo.Store, players PlayerLookup, notify Notifier, arenaTimeout, conquestTimeout time.Duration, log *zap.Logger) *Manager {
	return &Manager{
		geo:             geoStore,
		players:         players,
		notify:          notify,
		log:             log,
		arenaTimeout:    arenaTimeout,
		conquestTimeout: conquestTimeout,
		arenas:          make(map[model.PlayerID]*model.Arena),
		conquests:       make(map[model.PlayerID]*model.Conquest),
	}
}

// CreateArena implements spec.md §4.5's (none) --createArena--> Arena
// transition. Arena geometry is derived from the target's current
// territory: center is the vertex centroid of its boundary ring, radius is
// 1.5x the farthest boundary vertex from that centroid.
func (m *Manager) CreateArena(ctx context.Context, attacker, target model.PlayerID) (*model.Arena, error) {
	if attacker == target {
		return nil, ErrTargetIsSelf
	}
	if _, exists := m.arenas[attacker]; exists {
		return nil, ErrArenaAlreadyExists
	}
	if _, exists := m.conquests[attacker]; exists {
		return nil, ErrConquestExists
	}

	territory, err := m.lockTargetReadOnly(ctx, target)
	if err != nil {
		return nil, err
	}
	if len(territory.Boundary) == 0 || territory.AreaM2 <= 0 {
		return nil, ErrTargetEmpty
	}

	center, radius := arenaGeometry(territory.Boundary)
	now := time.Now().UnixMilli()
	arena := &model.Arena{
		ID:           model.ArenaID(model.NewID()),
		Attacker:     attacker,
		TargetTerr:   target,
		Center:       center,
		RadiusMeters: radius,
		RequiredLaps: territory.LapsRequired,
		Status:       model.ArenaWaitingForEntry,
		CreatedAtMs:  now,
		TimeoutAtMs:  now + m.arenaTimeout.Milliseconds(),
	}
	if arena.RequiredLaps < 1 {
		arena.RequiredLaps = 1
	}
	m.arenas[attacker] = arena
	return arena, nil
}

// lockTargetReadOnly opens and immediately rolls back a transaction just to
// reuse geo.Store.LockTerritory's read path; CreateArena and StartConquest
// only need a consistent snapshot, not a held lock, since the geometry is
// re-read and re-locked for real at RecordLap's finalization.
func (m *Manager) lockTargetReadOnly(ctx context.Context, owner model.PlayerID) (*model.Territory, error) {
	tx, err := m.geo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("conquest: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	territory, err := m.geo.LockTerritory(ctx, tx, owner)
	if errors.Is(err, geo.ErrNotFound) {
		return nil, ErrTargetNotFound
	}
	if err != nil {
		return nil, err
	}
	return territory, nil
}

// arenaGeometry computes spec.md §4.5's arena center/radius from a
// territory's boundary ring.
func arenaGeometry(boundary []geomath.LatLng) (geomath.LatLng, float64) {
	if k := len(boundary); k > 1 && boundary[0] == boundary[k-1] {
		boundary = boundary[:k-1] // a closed ring repeats its first vertex
	}
	var sumLat, sumLng float64
	for _, p := range boundary {
		sumLat += p.Lat
		sumLng += p.Lng
	}
	n := float64(len(boundary))
	center := geomath.LatLng{Lat: sumLat / n, Lng: sumLng / n}

	maxDist := 0.0
	for _, p := range boundary {
		if d := geomath.DistanceMeters(center, p); d > maxDist {
			maxDist = d
		}
	}
	return center, maxDist * arenaRadiusMultiplier
}

// checkEntry implements the Arena.waiting-for-entry --enterRadius-->
// Arena.ready-to-start transition. There is no separate enterRadius wire
// message (spec.md §6 lists only createArena/startConquest/recordLap), so
// entry is detected here against the attacker's last reported position —
// called both from StartConquest (so a player already standing in the
// radius when they hit "start" succeeds immediately) and from SweepArenas
// (so a player who walks in before calling startConquest gets the
// arenaEntered notification without needing to act again).
func (m *Manager) checkEntry(arena *model.Arena) bool {
	if arena.Status != model.ArenaWaitingForEntry {
		return arena.Status == model.ArenaReadyToStart
	}
	player, ok := m.players.Player(arena.Attacker)
	if !ok {
		return false
	}
	if geomath.DistanceMeters(arena.Center, player.Position) > arena.RadiusMeters {
		return false
	}
	arena.Status = model.ArenaReadyToStart
	m.notify.SendTo(arena.Attacker, hub.ArenaEntered{ArenaID: string(arena.ID)})
	return true
}

// StartConquest implements Arena.ready-to-start --startConquest-->
// Conquest.laps=0. The conquest starts with no reference path; RecordLap
// stores the first completed lap as the reference later laps are measured
// against, per spec.md §4.5's "Lap validation (from lap 2 onward)".
func (m *Manager) StartConquest(ctx context.Context, attacker model.PlayerID) (*model.Conquest, error) {
	arena, ok := m.arenas[attacker]
	if !ok {
		return nil, ErrNoArena
	}
	if !m.checkEntry(arena) {
		return nil, ErrNotReady
	}
	if _, exists := m.conquests[attacker]; exists {
		return nil, ErrConquestExists
	}

	now := time.Now().UnixMilli()
	conquest := &model.Conquest{
		ID:           model.ConquestID(model.NewID()),
		Attacker:     attacker,
		TargetTerr:   arena.TargetTerr,
		VictimOwner:  arena.TargetTerr,
		LapsRequired: arena.RequiredLaps,
		Status:       model.ConquestInProgress,
		ExpiresAtMs:  now + m.conquestTimeout.Milliseconds(),
	}
	m.conquests[attacker] = conquest
	delete(m.arenas, attacker)
	return conquest, nil
}

// RecordLap implements Conquest.laps=n --recordLap(valid)--> Conquest.laps=n+1
// and its terminal transitions (finalize on laps=required, fail on
// similarity<0.7). Grounded on spec.md §4.5's symmetric average-minimum-
// distance kernel (internal/geomath.PathSimilarity), adopting the 50m
// kernel width spec.md §9 resolves in favor of the stray 30m mention.
func (m *Manager) RecordLap(ctx context.Context, attacker model.PlayerID, lap []geomath.LatLng) (*model.Conquest, error) {
	conquest, ok := m.conquests[attacker]
	if !ok {
		return nil, ErrNoConquest
	}
	if len(lap) < 2 {
		return nil, ErrLapTooShort
	}

	if len(conquest.Reference) == 0 {
		// First lap establishes the reference; spec.md §4.5 only validates
		// similarity "from lap 2 onward", so lap 1 always counts.
		conquest.Reference = lap
	} else {
		origin := conquest.Reference[0]
		project := geomath.LocalProjection(origin)
		reference := projectAll(project, conquest.Reference)
		candidate := projectAll(project, lap)

		similarity := geomath.PathSimilarity(reference, candidate)
		m.notify.SendTo(attacker, hub.ConquestProgress{
			ConquestID:    string(conquest.ID),
			LapsCompleted: conquest.LapsCompleted,
			Similarity:    similarity,
		})
		if similarity < 0.7 {
			delete(m.conquests, attacker)
			m.notify.SendTo(attacker, hub.ConquestFailed{ConquestID: string(conquest.ID), Reason: "lap path too dissimilar from reference"})
			return nil, ErrLowSimilarity
		}
	}

	conquest.LapsCompleted++
	if !conquest.Complete() {
		return conquest, nil
	}

	if err := m.finalize(ctx, conquest); err != nil {
		delete(m.conquests, attacker)
		m.notify.SendTo(attacker, hub.ConquestFailed{ConquestID: string(conquest.ID), Reason: err.Error()})
		return nil, err
	}
	delete(m.conquests, attacker)
	return conquest, nil
}

func projectAll(project func(geomath.LatLng) geomath.Vec2, points []geomath.LatLng) []geomath.Vec2 {
	out := make([]geomath.Vec2, len(points))
	for i, p := range points {
		out[i] = project(p)
	}
	return out
}

// finalize implements spec.md §4.5's Finalization step: re-read the target
// under lock, silently drop on the attacker-already-owns-it race, merge the
// conquered land into the attacker's own territory, empty the victim's row,
// and ratchet the difficulty for whoever defends the land next. Runs inside
// one transaction with both owner rows held FOR UPDATE, same discipline as
// internal/claim's Phase D commit.
func (m *Manager) finalize(ctx context.Context, conquest *model.Conquest) error {
	tx, err := m.geo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("conquest: begin finalize: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	victimID, attackerID := conquest.VictimOwner, conquest.Attacker

	// Lock in ascending id order, same reproducible-ordering discipline
	// internal/claim's combat loop uses, to avoid a deadlock against a
	// concurrent claim on the same pair of rows.
	first, second := victimID, attackerID
	if attackerID < victimID {
		first, second = attackerID, victimID
	}
	locked := map[model.PlayerID]*model.Territory{}
	for _, owner := range []model.PlayerID{first, second} {
		t, err := m.geo.LockTerritory(ctx, tx, owner)
		if errors.Is(err, geo.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		locked[owner] = t
	}

	victim, ok := locked[victimID]
	if !ok || len(victim.Boundary) == 0 || victim.AreaM2 <= 0 {
		// Already conquered/emptied by someone else since the arena was
		// created; treat as a silent no-op per spec.md's race note.
		return nil
	}
	attackerTerr := locked[attackerID]
	if attackerTerr == nil {
		attackerTerr = &model.Territory{Owner: attackerID}
	}

	var merged []geomath.LatLng
	var mergedArea float64
	if len(attackerTerr.Boundary) == 0 {
		merged, mergedArea = victim.Boundary, victim.AreaM2
	} else {
		merged, mergedArea, err = m.geo.Union(ctx, tx, attackerTerr.Boundary, victim.Boundary)
		if err != nil {
			return fmt.Errorf("conquest: union conquered land: %w", err)
		}
	}

	attackerTerr.Boundary = merged
	attackerTerr.AreaM2 = mergedArea
	attackerTerr.LapsRequired = victim.LapsRequired + 1 // difficulty ratchet
	if err := m.geo.ReplaceTerritory(ctx, tx, attackerTerr); err != nil {
		return fmt.Errorf("conquest: replace attacker: %w", err)
	}

	victim.Boundary = nil
	victim.AreaM2 = 0
	victim.CarveMode = false
	if err := m.geo.ReplaceTerritory(ctx, tx, victim); err != nil {
		return fmt.Errorf("conquest: empty victim: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("conquest: commit finalize: %w", err)
	}

	m.notify.Broadcast(hub.BatchTerritoryUpdate{
		Updated: []hub.TerritorySnapshot{toSnapshot(*attackerTerr), toSnapshot(*victim)},
	})
	m.failOtherConquestsTargeting(victimID, attackerID)
	return nil
}

// failOtherConquestsTargeting implements spec.md §4.5's "Conquest.* --other
// attacker finalizes same territory--> (none), notify failure" transition.
func (m *Manager) failOtherConquestsTargeting(target model.PlayerID, winner model.PlayerID) {
	for attacker, c := range m.conquests {
		if attacker == winner || c.TargetTerr != target {
			continue
		}
		delete(m.conquests, attacker)
		m.notify.SendTo(attacker, hub.ConquestFailed{ConquestID: string(c.ID), Reason: "territory already conquered"})
	}
	for attacker, a := range m.arenas {
		if attacker == winner || a.TargetTerr != target {
			continue
		}
		delete(m.arenas, attacker)
	}
}

func toSnapshot(t model.Territory) hub.TerritorySnapshot {
	ring := make([]hub.LatLngWire, len(t.Boundary))
	for i, p := range t.Boundary {
		ring[i] = hub.LatLngWire{Lat: p.Lat, Lng: p.Lng}
	}
	return hub.TerritorySnapshot{OwnerID: string(t.Owner), Ring: ring, AreaM2: t.AreaM2}
}

// SweepArenas implements the Arena.waiting-for-entry --5min timeout-->
// (none) transition, plus opportunistic enterRadius detection for any
// attacker who hasn't called startConquest yet (see checkEntry).
func (m *Manager) SweepArenas(ctx context.Context, now int64) {
	for attacker, arena := range m.arenas {
		if arena.Expired(now) {
			delete(m.arenas, attacker)
			m.notify.SendTo(attacker, hub.ArenaTimeout{ArenaID: string(arena.ID)})
			continue
		}
		m.checkEntry(arena)
	}
}

// SweepConquests implements the Conquest.* --30min timeout--> (none)
// transition.
func (m *Manager) SweepConquests(ctx context.Context, now int64) {
	for attacker, c := range m.conquests {
		if c.Expired(now) {
			delete(m.conquests, attacker)
			m.notify.SendTo(attacker, hub.ConquestFailed{ConquestID: string(c.ID), Reason: "conquest timed out"})
		}
	}
}
