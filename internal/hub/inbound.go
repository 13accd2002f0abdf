// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package hub

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/finnbear/moderation"
	"go.uber.org/zap"

	"github.com/territoryrun/server/internal/geomath"
	"github.com/territoryrun/server/internal/model"
)

// Inbound message types. Grounded on server/inbound.go's catalogue shape —
// one exported struct per message, value-typed, registered once in init —
// generalized from ship controls to the territory-game actions spec.md §6
// names (playerJoined, locationUpdate, start/stopDrawingTrail,
// claimTerritory, the four activateX powers, and the arena/conquest pair).
type (
	PlayerJoined struct {
		PlayerID      string `json:"playerID"`
		DisplayName   string `json:"displayName"`
		IdentityColor string `json:"identityColor"`
	}

	LocationUpdate struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	}

	StartDrawingTrail struct{}

	StopDrawingTrail struct{}

	ClaimTerritory struct {
		BaseClaim *BaseClaimWire `json:"baseClaim,omitempty"`
	}

	BaseClaimWire struct {
		Lat          float64  `json:"lat"`
		Lng          float64  `json:"lng"`
		RadiusMeters *float64 `json:"radius,omitempty"` // nil means omitted: use the default radius
	}

	ActivateLastStand struct{}

	ActivateGhostRunner struct{}

	ActivateInfiltrator struct{}

	ActivateTrailDefense struct{}

	CreateArena struct {
		TargetOwnerID string `json:"targetOwnerID"`
	}

	StartConquest struct{}

	RecordLap struct {
		Path []LatLngWireIn `json:"path"`
	}

	LatLngWireIn struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	}
)

func init() {
	registerInbound(
		PlayerJoined{},
		LocationUpdate{},
		StartDrawingTrail{},
		StopDrawingTrail{},
		ClaimTerritory{},
		ActivateLastStand{},
		ActivateGhostRunner{},
		ActivateInfiltrator{},
		ActivateTrailDefense{},
		CreateArena{},
		StartConquest{},
		RecordLap{},
	)
}

// sanitizeName trims and moderates a client-supplied display name the same
// way server/inbound.go's sanitize/trimUtf8 helpers do: cap length, strip
// control runes, run it through the moderation filter, and fall back to a
// default if nothing usable remains.
func sanitizeName(raw string) string {
	raw = trimUtf8(raw, 32)
	raw = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, raw)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "Runner"
	}
	return moderation.Censor(raw)
}

// trimUtf8 truncates a string to at most maxLen bytes without splitting a
// multi-byte rune, grounded verbatim on server/inbound.go's trimUtf8.
func trimUtf8(str string, maxLen int) string {
	if len(str) <= maxLen {
		return str
	}
	for !utf8.RuneStart(str[maxLen]) {
		maxLen--
	}
	return str[:maxLen]
}

func (m PlayerJoined) Process(h *Hub, client Client, _ *model.Player) {
	id := model.PlayerID(m.PlayerID)
	if id.Invalid() {
		id = model.PlayerID(model.NewID())
	}

	player := model.NewPlayer(id, sanitizeName(m.DisplayName))
	player.IdentityColor = m.IdentityColor
	h.BindPlayer(client, player)

	ctx := context.Background()
	territories, err := h.claim.ListTerritories(ctx)
	if err != nil {
		h.log.Warn("listing territories on join failed", zap.Error(err))
		return
	}
	snapshots := make([]TerritorySnapshot, len(territories))
	for i, t := range territories {
		snapshots[i] = toWire(t)
	}
	client.Send(ExistingTerritories{Territories: snapshots})
}

func (m LocationUpdate) Process(h *Hub, _ Client, player *model.Player) {
	player.Position = geomath.LatLng{Lat: m.Lat, Lng: m.Lng}

	// spec.md §4.2 appendPoint: chest pickup, cross-trail cut, append,
	// broadcast. AppendPoint is a no-op error when the player isn't
	// currently drawing a trail, which is the common case for a plain
	// position update.
	result, err := h.trail.AppendPoint(context.Background(), player.ID, player.Position)
	if err != nil {
		return
	}
	if result.ChestPicked != "" {
		h.Broadcast(ChestClaimed{ChestID: string(result.ChestPicked)})
	}
}

func (StartDrawingTrail) Process(h *Hub, client Client, player *model.Player) {
	ctx := context.Background()
	// spec.md §4.7: GeofenceService is the authoritative check that play is
	// happening somewhere valid; a run started outside every allowed zone,
	// or inside a blocked one, never gets an ActiveTrail in the first place.
	if valid, err := h.geofence.Valid(ctx, player.Position); err != nil || !valid {
		client.Send(TrailCleared{PlayerID: string(player.ID), Reason: "outside playable area"})
		return
	}
	if err := h.trail.StartDrawing(ctx, player.ID, player.Position); err != nil {
		client.Send(TrailCleared{PlayerID: string(player.ID), Reason: err.Error()})
		return
	}
	// Engine.StartDrawing already broadcasts trailStarted itself (suppressed
	// for a ghost runner per spec.md §4.2), so there is nothing left to emit
	// here.
}

func (StopDrawingTrail) Process(h *Hub, client Client, player *model.Player) {
	ctx := context.Background()
	if err := h.trail.StopDrawing(ctx, player.ID); err != nil {
		client.Send(TrailCleared{PlayerID: string(player.ID), Reason: err.Error()})
		return
	}
	player.ActivePowers.ClearRunScoped()
	// Engine.StopDrawing's clearTrail already broadcasts trailCleared.
}

func (m ClaimTerritory) Process(h *Hub, client Client, player *model.Player) {
	ctx := context.Background()
	req := ClaimRequest{}
	if m.BaseClaim != nil {
		req.BaseClaim = &BaseClaim{
			Center:       geomath.LatLng{Lat: m.BaseClaim.Lat, Lng: m.BaseClaim.Lng},
			RadiusMeters: m.BaseClaim.RadiusMeters,
		}
	}
	result, err := h.claim.Claim(ctx, player.ID, req)
	if err != nil {
		client.Send(ClaimRejected{Reason: err.Error()})
		return
	}
	if !result.Accepted {
		client.Send(ClaimRejected{Reason: result.Reason})
		return
	}
	defeated := make([]string, len(result.Defeated))
	for i, id := range result.Defeated {
		defeated[i] = string(id)
	}
	defeatedClans := make([]string, len(result.DefeatedClans))
	for i, id := range result.DefeatedClans {
		defeatedClans[i] = string(id)
	}
	client.Send(ClaimSuccessful{
		NewTotalAreaM2: result.NewTotalAreaM2,
		AreaClaimedM2:  result.AreaClaimedM2,
		Defeated:       defeated,
		DefeatedClans:  defeatedClans,
	})

	updated := make([]TerritorySnapshot, len(result.Touched))
	for i, t := range result.Touched {
		updated[i] = toWire(t)
	}
	removed := make([]string, len(result.Removed))
	for i, id := range result.Removed {
		removed[i] = string(id)
	}
	updatedClans := make([]ClanTerritorySnapshot, len(result.TouchedClans))
	for i, t := range result.TouchedClans {
		updatedClans[i] = toClanWire(t)
	}
	h.Broadcast(BatchTerritoryUpdate{Updated: updated, Removed: removed, UpdatedClans: updatedClans})
}

func (ActivateLastStand) Process(h *Hub, client Client, player *model.Player) {
	activatePower(h, client, player, model.PowerLastStand)
}

func (ActivateGhostRunner) Process(h *Hub, client Client, player *model.Player) {
	activatePower(h, client, player, model.PowerGhostRunner)
}

func (ActivateInfiltrator) Process(h *Hub, client Client, player *model.Player) {
	activatePower(h, client, player, model.PowerInfiltrator)
}

func (ActivateTrailDefense) Process(h *Hub, client Client, player *model.Player) {
	activatePower(h, client, player, model.PowerTrailDefense)
}

func activatePower(h *Hub, client Client, player *model.Player, power model.PowerID) {
	if !player.OwnedPowers.Has(power) {
		client.Send(ClaimRejected{Reason: "power not owned"})
		return
	}
	ctx := context.Background()
	if err := h.power.Activate(ctx, player.ID, power); err != nil {
		client.Send(ClaimRejected{Reason: err.Error()})
		return
	}
	client.Send(SuperpowerAcknowledged{Power: string(power)})
}

func (m CreateArena) Process(h *Hub, client Client, player *model.Player) {
	ctx := context.Background()
	arena, err := h.conquest.CreateArena(ctx, player.ID, model.PlayerID(m.TargetOwnerID))
	if err != nil {
		client.Send(ClaimRejected{Reason: err.Error()})
		return
	}
	client.Send(ArenaCreated{
		ArenaID:      string(arena.ID),
		Center:       LatLngWire{Lat: arena.Center.Lat, Lng: arena.Center.Lng},
		RadiusMeters: arena.RadiusMeters,
		RequiredLaps: arena.RequiredLaps,
		TimeoutAtMs:  arena.TimeoutAtMs,
	})
}

func (StartConquest) Process(h *Hub, client Client, player *model.Player) {
	ctx := context.Background()
	conquest, err := h.conquest.StartConquest(ctx, player.ID)
	if err != nil {
		client.Send(ConquestFailed{Reason: err.Error()})
		return
	}
	client.Send(ConquestStarted{ConquestID: string(conquest.ID), RequiredLaps: conquest.LapsRequired})
}

func (m RecordLap) Process(h *Hub, client Client, player *model.Player) {
	ctx := context.Background()
	lap := make([]geomath.LatLng, len(m.Path))
	for i, p := range m.Path {
		lap[i] = geomath.LatLng{Lat: p.Lat, Lng: p.Lng}
	}
	conquest, err := h.conquest.RecordLap(ctx, player.ID, lap)
	if err != nil {
		client.Send(ConquestFailed{Reason: err.Error()})
		return
	}
	if conquest.Complete() {
		// ConquestManager already broadcast the batchTerritoryUpdate for the
		// transferred territory from RecordLap, after its transaction committed.
		h.Broadcast(ConquerAttemptSuccessful{ConquestID: string(conquest.ID), VictimID: string(conquest.VictimOwner)})
		return
	}
	client.Send(ConquestProgress{ConquestID: string(conquest.ID), LapsCompleted: conquest.LapsCompleted})
}

