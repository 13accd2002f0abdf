// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package trail

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/territoryrun/server/internal/geomath"
	"github.com/territoryrun/server/internal/hub"
	"github.com/territoryrun/server/internal/model"
)

type fakePlayers struct {
	players map[model.PlayerID]*model.Player
}

func newFakePlayers(players ...*model.Player) *fakePlayers {
	m := make(map[model.PlayerID]*model.Player, len(players))
	for _, p := range players {
		m[p.ID] = p
	}
	return &fakePlayers{players: m}
}

func (f *fakePlayers) Player(id model.PlayerID) (*model.Player, bool) {
	p, ok := f.players[id]
	return p, ok
}

type fakeChests struct{}

func (fakeChests) NearbyActive(context.Context, geomath.LatLng, float64) ([]model.SuperpowerChest, error) {
	return nil, nil
}
func (fakeChests) Deactivate(context.Context, model.ChestID) (bool, error) { return false, nil }

type fakeQuests struct{ recorded int }

func (f *fakeQuests) RecordProgress(context.Context, model.PlayerID, model.QuestKind, float64) (*model.Quest, error) {
	f.recorded++
	return nil, nil
}

type fakeNotifier struct {
	sent      []hub.Outbound
	broadcast []hub.Outbound
}

func (f *fakeNotifier) SendTo(model.PlayerID, hub.Outbound) {}
func (f *fakeNotifier) Broadcast(out hub.Outbound)          { f.broadcast = append(f.broadcast, out) }

func newTestEngine(players *fakePlayers, quests QuestRecorder) (*Engine, *fakeNotifier) {
	notify := &fakeNotifier{}
	return NewEngine(players, fakeChests{}, quests, notify, zap.NewNop()), notify
}

func TestStartDrawingRejectsSpectator(t *testing.T) {
	p := model.NewPlayer("p1", "Runner")
	p.Mode = model.ModeSpectator
	engine, _ := newTestEngine(newFakePlayers(p), &fakeQuests{})

	err := engine.StartDrawing(context.Background(), p.ID, geomath.LatLng{Lat: 1, Lng: 1})
	assert.Error(t, err)
}

func TestStartDrawingTwiceRejected(t *testing.T) {
	p := model.NewPlayer("p1", "Runner")
	p.Mode = model.ModeSolo
	engine, _ := newTestEngine(newFakePlayers(p), &fakeQuests{})

	require.NoError(t, engine.StartDrawing(context.Background(), p.ID, geomath.LatLng{}))
	err := engine.StartDrawing(context.Background(), p.ID, geomath.LatLng{})
	assert.ErrorIs(t, err, ErrAlreadyDrawing)
}

func TestAppendPointDetectsCut(t *testing.T) {
	attacker := model.NewPlayer("attacker", "Attacker")
	attacker.Mode = model.ModeSolo
	victim := model.NewPlayer("victim", "Victim")
	victim.Mode = model.ModeSolo

	quests := &fakeQuests{}
	engine, notify := newTestEngine(newFakePlayers(attacker, victim), quests)
	ctx := context.Background()

	require.NoError(t, engine.StartDrawing(ctx, victim.ID, geomath.LatLng{Lat: 0, Lng: -0.001}))
	_, err := engine.AppendPoint(ctx, victim.ID, geomath.LatLng{Lat: 0, Lng: 0.001})
	require.NoError(t, err)

	require.NoError(t, engine.StartDrawing(ctx, attacker.ID, geomath.LatLng{Lat: -0.001, Lng: 0}))
	result, err := engine.AppendPoint(ctx, attacker.ID, geomath.LatLng{Lat: 0.001, Lng: 0})
	require.NoError(t, err)

	assert.False(t, result.SelfCut)
	_, stillDrawing := engine.Trail(victim.ID)
	assert.False(t, stillDrawing)
	assert.Equal(t, 1, quests.recorded)
	assert.NotEmpty(t, notify.broadcast)
}

func TestAppendPointDeflectedByTrailDefense(t *testing.T) {
	attacker := model.NewPlayer("attacker", "Attacker")
	attacker.Mode = model.ModeSolo
	victim := model.NewPlayer("victim", "Victim")
	victim.Mode = model.ModeSolo
	victim.ActivePowers.TrailDefense = true

	engine, _ := newTestEngine(newFakePlayers(attacker, victim), &fakeQuests{})
	ctx := context.Background()

	require.NoError(t, engine.StartDrawing(ctx, victim.ID, geomath.LatLng{Lat: 0, Lng: -0.001}))
	_, err := engine.AppendPoint(ctx, victim.ID, geomath.LatLng{Lat: 0, Lng: 0.001})
	require.NoError(t, err)

	require.NoError(t, engine.StartDrawing(ctx, attacker.ID, geomath.LatLng{Lat: -0.001, Lng: 0}))
	result, err := engine.AppendPoint(ctx, attacker.ID, geomath.LatLng{Lat: 0.001, Lng: 0})
	require.NoError(t, err)

	assert.True(t, result.SelfCut)
	_, attackerStillDrawing := engine.Trail(attacker.ID)
	assert.False(t, attackerStillDrawing)
	_, victimStillDrawing := engine.Trail(victim.ID)
	assert.True(t, victimStillDrawing)
}

func TestSweepDisconnectGraceDropsExpired(t *testing.T) {
	p := model.NewPlayer("p1", "Runner")
	p.Mode = model.ModeSolo
	engine, _ := newTestEngine(newFakePlayers(p), &fakeQuests{})
	ctx := context.Background()

	require.NoError(t, engine.StartDrawing(ctx, p.ID, geomath.LatLng{}))
	engine.Disconnect(p.ID)
	now := time.Now().UnixMilli()

	engine.SweepDisconnectGrace(now)
	_, ok := engine.Trail(p.ID)
	assert.True(t, ok, "grace window should not have elapsed yet")

	engine.SweepDisconnectGrace(now + disconnectGraceMs + 1)
	_, ok = engine.Trail(p.ID)
	assert.False(t, ok)
}
