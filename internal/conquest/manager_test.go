// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package conquest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
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

type fakeNotifier struct {
	sent      []hub.Outbound
	broadcast []hub.Outbound
}

func (f *fakeNotifier) SendTo(_ model.PlayerID, out hub.Outbound) { f.sent = append(f.sent, out) }
func (f *fakeNotifier) Broadcast(out hub.Outbound)                { f.broadcast = append(f.broadcast, out) }

func newTestManager(players *fakePlayers) (*Manager, *fakeNotifier) {
	notify := &fakeNotifier{}
	m := NewManager(nil, players, notify, 0, 0, zap.NewNop())
	return m, notify
}

func TestArenaGeometrySquare(t *testing.T) {
	boundary := []geomath.LatLng{
		{Lat: 0, Lng: 0},
		{Lat: 0, Lng: 0.001},
		{Lat: 0.001, Lng: 0.001},
		{Lat: 0.001, Lng: 0},
	}
	center, radius := arenaGeometry(boundary)
	assert.InDelta(t, 0.0005, center.Lat, 1e-9)
	assert.InDelta(t, 0.0005, center.Lng, 1e-9)
	assert.Greater(t, radius, 0.0)

	maxDist := 0.0
	for _, p := range boundary {
		if d := geomath.DistanceMeters(center, p); d > maxDist {
			maxDist = d
		}
	}
	assert.InDelta(t, maxDist*arenaRadiusMultiplier, radius, 1e-6)
}

func TestCheckEntryTransitionsWhenInRadius(t *testing.T) {
	attacker := model.NewPlayer("attacker", "Attacker")
	attacker.Position = geomath.LatLng{Lat: 0, Lng: 0}
	m, notify := newTestManager(newFakePlayers(attacker))

	arena := &model.Arena{
		ID:           "arena1",
		Attacker:     attacker.ID,
		Center:       geomath.LatLng{Lat: 0, Lng: 0},
		RadiusMeters: 50,
		Status:       model.ArenaWaitingForEntry,
	}

	assert.True(t, m.checkEntry(arena))
	assert.Equal(t, model.ArenaReadyToStart, arena.Status)
	assert.Len(t, notify.sent, 1)
}

func TestCheckEntryStaysWaitingOutsideRadius(t *testing.T) {
	attacker := model.NewPlayer("attacker", "Attacker")
	attacker.Position = geomath.LatLng{Lat: 10, Lng: 10}
	m, notify := newTestManager(newFakePlayers(attacker))

	arena := &model.Arena{
		ID:           "arena1",
		Attacker:     attacker.ID,
		Center:       geomath.LatLng{Lat: 0, Lng: 0},
		RadiusMeters: 50,
		Status:       model.ArenaWaitingForEntry,
	}

	assert.False(t, m.checkEntry(arena))
	assert.Equal(t, model.ArenaWaitingForEntry, arena.Status)
	assert.Empty(t, notify.sent)
}

func TestCreateArenaRejectsSelfTarget(t *testing.T) {
	m, _ := newTestManager(newFakePlayers())
	_, err := m.CreateArena(context.Background(), "p1", "p1")
	assert.ErrorIs(t, err, ErrTargetIsSelf)
}

func TestCreateArenaRejectsDuplicate(t *testing.T) {
	m, _ := newTestManager(newFakePlayers())
	m.arenas["p1"] = &model.Arena{Attacker: "p1"}
	_, err := m.CreateArena(context.Background(), "p1", "p2")
	assert.ErrorIs(t, err, ErrArenaAlreadyExists)
}

func TestStartConquestRequiresArena(t *testing.T) {
	m, _ := newTestManager(newFakePlayers())
	_, err := m.StartConquest(context.Background(), "p1")
	assert.ErrorIs(t, err, ErrNoArena)
}

func TestStartConquestRequiresEntry(t *testing.T) {
	attacker := model.NewPlayer("attacker", "Attacker")
	attacker.Position = geomath.LatLng{Lat: 10, Lng: 10}
	m, _ := newTestManager(newFakePlayers(attacker))
	m.arenas[attacker.ID] = &model.Arena{
		Attacker:     attacker.ID,
		Center:       geomath.LatLng{Lat: 0, Lng: 0},
		RadiusMeters: 50,
		Status:       model.ArenaWaitingForEntry,
	}

	_, err := m.StartConquest(context.Background(), attacker.ID)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestStartConquestSucceedsWhenReady(t *testing.T) {
	attacker := model.NewPlayer("attacker", "Attacker")
	attacker.Position = geomath.LatLng{Lat: 0, Lng: 0}
	m, _ := newTestManager(newFakePlayers(attacker))
	m.arenas[attacker.ID] = &model.Arena{
		ID:           "arena1",
		Attacker:     attacker.ID,
		TargetTerr:   "victim",
		Center:       geomath.LatLng{Lat: 0, Lng: 0},
		RadiusMeters: 50,
		RequiredLaps: 2,
		Status:       model.ArenaWaitingForEntry,
	}

	c, err := m.StartConquest(context.Background(), attacker.ID)
	assert.NoError(t, err)
	assert.Equal(t, 2, c.LapsRequired)
	assert.Equal(t, model.PlayerID("victim"), c.VictimOwner)
	_, stillArena := m.arenas[attacker.ID]
	assert.False(t, stillArena)
}

func TestRecordLapFirstLapAlwaysCounts(t *testing.T) {
	m, _ := newTestManager(newFakePlayers())
	m.conquests["attacker"] = &model.Conquest{
		ID:           "c1",
		Attacker:     "attacker",
		LapsRequired: 3,
		Status:       model.ConquestInProgress,
	}

	lap := []geomath.LatLng{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.001}, {Lat: 0.001, Lng: 0.001}}
	c, err := m.RecordLap(context.Background(), "attacker", lap)
	assert.NoError(t, err)
	assert.Equal(t, 1, c.LapsCompleted)
	assert.Equal(t, lap, c.Reference)
}

func TestRecordLapRejectsLowSimilarity(t *testing.T) {
	m, notify := newTestManager(newFakePlayers())
	reference := []geomath.LatLng{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.001}, {Lat: 0.001, Lng: 0.001}}
	m.conquests["attacker"] = &model.Conquest{
		ID:            "c1",
		Attacker:      "attacker",
		LapsRequired:  3,
		LapsCompleted: 1,
		Reference:     reference,
		Status:        model.ConquestInProgress,
	}

	farOff := []geomath.LatLng{{Lat: 5, Lng: 5}, {Lat: 5, Lng: 5.001}, {Lat: 5.001, Lng: 5.001}}
	_, err := m.RecordLap(context.Background(), "attacker", farOff)
	assert.ErrorIs(t, err, ErrLowSimilarity)
	_, stillActive := m.conquests["attacker"]
	assert.False(t, stillActive)
	assert.NotEmpty(t, notify.sent)
}

func TestRecordLapTooShortRejected(t *testing.T) {
	m, _ := newTestManager(newFakePlayers())
	m.conquests["attacker"] = &model.Conquest{ID: "c1", Attacker: "attacker", Status: model.ConquestInProgress}
	_, err := m.RecordLap(context.Background(), "attacker", []geomath.LatLng{{Lat: 0, Lng: 0}})
	assert.ErrorIs(t, err, ErrLapTooShort)
}

func TestSweepArenasTimesOut(t *testing.T) {
	m, notify := newTestManager(newFakePlayers())
	m.arenas["p1"] = &model.Arena{ID: "a1", Attacker: "p1", Status: model.ArenaWaitingForEntry, TimeoutAtMs: 100}

	m.SweepArenas(context.Background(), 50)
	assert.Len(t, m.arenas, 1)

	m.SweepArenas(context.Background(), 150)
	assert.Empty(t, m.arenas)
	assert.Len(t, notify.sent, 1)
}

func TestSweepConquestsTimesOut(t *testing.T) {
	m, notify := newTestManager(newFakePlayers())
	m.conquests["p1"] = &model.Conquest{ID: "c1", Attacker: "p1", Status: model.ConquestInProgress, ExpiresAtMs: 100}

	m.SweepConquests(context.Background(), 50)
	assert.Len(t, m.conquests, 1)

	m.SweepConquests(context.Background(), 150)
	assert.Empty(t, m.conquests)
	assert.Len(t, notify.sent, 1)
}

func TestFailOtherConquestsTargetingSkipsWinner(t *testing.T) {
	m, notify := newTestManager(newFakePlayers())
	m.conquests["winner"] = &model.Conquest{ID: "c1", Attacker: "winner", TargetTerr: "victim"}
	m.conquests["loser"] = &model.Conquest{ID: "c2", Attacker: "loser", TargetTerr: "victim"}
	m.arenas["waiter"] = &model.Arena{ID: "a1", Attacker: "waiter", TargetTerr: "victim"}

	m.failOtherConquestsTargeting("victim", "winner")

	_, winnerStill := m.conquests["winner"]
	assert.True(t, winnerStill)
	_, loserStill := m.conquests["loser"]
	assert.False(t, loserStill)
	_, waiterStill := m.arenas["waiter"]
	assert.False(t, waiterStill)
	assert.Len(t, notify.sent, 1)
}
