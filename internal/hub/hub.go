// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package hub

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/territoryrun/server/internal/geomath"
	"github.com/territoryrun/server/internal/model"
)

const (
	positionBroadcastPeriod = 200 * time.Millisecond
	shieldSweepPeriod       = 30 * time.Second
	arenaSweepPeriod        = 5 * time.Second
	conquestSweepPeriod     = 5 * time.Second
	questSweepPeriod        = time.Minute
	trailGraceSweepPeriod   = 10 * time.Second
	botStepPeriod           = time.Second
)

// Hub owns every connected Client and the single goroutine that mutates
// shared state. Grounded on server/hub.go's single-select event loop —
// generalized from mk48's world/terrain/team fields to the six domain
// services a territory game needs, and from one "physics" ticker to seven
// independent tickers (position broadcast, shield expiry, arena timeout,
// conquest timeout, quest expiry, trail disconnect grace, bot step), because unlike a physics
// simulation these sweeps don't share one fixed-timestep integrator.
type Hub struct {
	clients  ClientList
	despawn  ClientList
	players  map[model.PlayerID]Client
	minBots  int

	trail     TrailService
	claim     ClaimService
	conquest  ConquestService
	power     PowerService
	geofence  GeofenceServiceIface
	quest     QuestServiceIface

	log *zap.Logger

	inbound    chan SignedInbound
	register   chan Client
	unregister chan Client

	positionTicker *time.Ticker
	shieldTicker   *time.Ticker
	arenaTicker    *time.Ticker
	conquestTicker *time.Ticker
	questTicker    *time.Ticker
	trailTicker    *time.Ticker
	botTicker      *time.Ticker
}

// Services bundles the domain packages Hub dispatches into — constructed
// once in cmd/server and handed to New.
type Services struct {
	Trail    TrailService
	Claim    ClaimService
	Conquest ConquestService
	Power    PowerService
	Geofence GeofenceServiceIface
	Quest    QuestServiceIface
}

func New(minBots int, services Services, log *zap.Logger) *Hub {
	return &Hub{
		players:        make(map[model.PlayerID]Client),
		minBots:        minBots,
		trail:          services.Trail,
		claim:          services.Claim,
		conquest:       services.Conquest,
		power:          services.Power,
		geofence:       services.Geofence,
		quest:          services.Quest,
		log:            log,
		inbound:        make(chan SignedInbound, 256),
		register:       make(chan Client, 16),
		unregister:     make(chan Client, 16),
		positionTicker: time.NewTicker(positionBroadcastPeriod),
		shieldTicker:   time.NewTicker(shieldSweepPeriod),
		arenaTicker:    time.NewTicker(arenaSweepPeriod),
		conquestTicker: time.NewTicker(conquestSweepPeriod),
		questTicker:    time.NewTicker(questSweepPeriod),
		trailTicker:    time.NewTicker(trailGraceSweepPeriod),
		botTicker:      time.NewTicker(botStepPeriod),
	}
}

// Register exposes the register channel to the HTTP handler that upgrades
// incoming connections (cmd/server), mirroring server/main.go's serveWs
// handing new SocketClients to hub.register.
func (h *Hub) Register(client Client) {
	h.register <- client
}

// Run is the hub goroutine. Grounded on server/hub.go's run(): one select
// loop, inbound messages drained in a batch per wakeup so a slow tick never
// leaves messages from two ticks earlier still queued, tickers dispatching
// into the sweep methods below.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("hub goroutine panicked", zap.Any("panic", r))
			panic(r)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.clients.Add(client)
			client.Data().Hub = h
			client.Init()
			if p := client.Data().Player; p != nil {
				h.players[p.ID] = client
			}
		case client := <-h.unregister:
			client.Close()
			if p := client.Data().Player; p != nil {
				if h.players[p.ID] == client {
					delete(h.players, p.ID)
				}
				h.trail.Disconnect(p.ID)
			}
			client.Data().Hub = nil
			h.clients.Remove(client)
			h.despawn.Add(client)
		case in := <-h.inbound:
			n := len(h.inbound)
			for {
				data := in.Client.Data()
				if h == data.Hub && data.Player != nil {
					in.Inbound.Process(h, in.Client, data.Player)
				}
				if n--; n < 0 {
					break
				}
				in = <-h.inbound
			}
		case <-h.positionTicker.C:
			h.broadcastPositions()
		case <-h.shieldTicker.C:
			now := nowMillis()
			h.claim.SweepExpiredShields(ctx, now)
			h.power.SweepExpiredShields(ctx, now)
		case <-h.arenaTicker.C:
			h.conquest.SweepArenas(ctx, nowMillis())
		case <-h.conquestTicker.C:
			h.conquest.SweepConquests(ctx, nowMillis())
		case <-h.questTicker.C:
			h.quest.SweepExpired(ctx, nowMillis())
		case <-h.trailTicker.C:
			h.trail.SweepDisconnectGrace(nowMillis())
		case <-h.botTicker.C:
			h.stepBots()
		}
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// broadcastPositions sends every player's current position to every other
// connected client, the territory-game analogue of server/update.go's
// per-tick Update broadcast. Ghost-running players are omitted from the
// payload entirely (spec.md §4.2), which is why this walks Player state
// rather than reusing a cached per-tick buffer the way the teacher does.
func (h *Hub) broadcastPositions() {
	type position struct {
		PlayerID string  `json:"playerID"`
		Lat      float64 `json:"lat"`
		Lng      float64 `json:"lng"`
	}
	var positions []position
	for c := h.clients.First; c != nil; c = c.Data().Next {
		p := c.Data().Player
		if p == nil || p.GhostRunnerActive() {
			continue
		}
		positions = append(positions, position{PlayerID: string(p.ID), Lat: p.Position.Lat, Lng: p.Position.Lng})
	}
	if len(positions) == 0 {
		return
	}
	out := PositionBatch{Positions: positions}
	for c := h.clients.First; c != nil; c = c.Data().Next {
		c.Send(out)
	}
}

func (h *Hub) stepBots() {
	want := h.minBots - (h.clients.Len + len(h.register) - len(h.unregister))
	for i := 0; i < want; i++ {
		select {
		case h.register <- NewBotClient(defaultBotCenter):
		default:
		}
	}
	for c := h.clients.First; c != nil; c = c.Data().Next {
		if bot, ok := c.(*BotClient); ok {
			bot.Step()
		}
	}
}

// defaultBotCenter anchors newly spawned bots; a production deployment
// would derive this from the server's configured play region instead of a
// fixed point.
var defaultBotCenter = geomath.LatLng{}

// Broadcast sends an outbound message to every connected client.
func (h *Hub) Broadcast(out Outbound) {
	for c := h.clients.First; c != nil; c = c.Data().Next {
		c.Send(out)
	}
}

// SendTo sends an outbound message to one player, if connected.
func (h *Hub) SendTo(playerID model.PlayerID, out Outbound) {
	if c, ok := h.players[playerID]; ok {
		c.Send(out)
	}
}

// BindPlayer attaches player to client once playerJoined has been processed
// (a SocketClient has no Player until then, unlike a BotClient which binds
// one at Init). Reconnects under the same id replace the previous client's
// entry in h.players but deliberately leave the old client running — its
// own disconnect will no-op against h.players since it no longer owns the
// slot, matching the reconnect-rebinding behavior spec.md §3 requires.
func (h *Hub) BindPlayer(client Client, player *model.Player) {
	client.Data().Player = player
	h.players[player.ID] = client
}

// Player looks up a connected player's live state by id.
func (h *Hub) Player(id model.PlayerID) (*model.Player, bool) {
	c, ok := h.players[id]
	if !ok {
		return nil, false
	}
	return c.Data().Player, true
}
