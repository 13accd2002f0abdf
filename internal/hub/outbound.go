// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package hub

import "github.com/territoryrun/server/internal/model"

// Outbound message types, one struct per wire message the server can send.
// Grounded on server/outbound.go's catalogue shape (one exported struct per
// message, registered once in init), generalized from ship/world state to
// the territory-game events spec.md §6 names.
type (
	// ExistingTerritories is sent once on join: every territory currently on
	// the map, so a new client doesn't have to wait for incremental updates
	// to draw the world.
	ExistingTerritories struct {
		Territories []TerritorySnapshot `json:"territories"`
	}

	TerritorySnapshot struct {
		OwnerID string           `json:"ownerID"`
		Ring    []LatLngWire     `json:"ring"`
		AreaM2  float64          `json:"areaM2"`
	}

	LatLngWire struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	}

	// BatchTerritoryUpdate carries incremental territory changes (new
	// claim, combat resolution, carve) since the last batch.
	BatchTerritoryUpdate struct {
		Updated      []TerritorySnapshot     `json:"updated"`
		Removed      []string                `json:"removed"`
		UpdatedClans []ClanTerritorySnapshot `json:"updatedClans,omitempty"`
		RemovedClans []string                `json:"removedClans,omitempty"`
	}

	ClanTerritorySnapshot struct {
		ClanID string       `json:"clanID"`
		Ring   []LatLngWire `json:"ring"`
		AreaM2 float64      `json:"areaM2"`
	}

	// PositionBatch is the per-tick broadcast of every connected player's
	// current location, the analogue of server/outbound.go's Update.
	PositionBatch struct {
		Positions interface{} `json:"positions"`
	}

	ClaimSuccessful struct {
		NewTotalAreaM2 float64  `json:"newTotalArea"`
		AreaClaimedM2  float64  `json:"areaClaimed"`
		Defeated       []string `json:"defeated"`
		DefeatedClans  []string `json:"defeatedClans,omitempty"`
	}

	ClaimRejected struct {
		Reason string `json:"reason"`
	}

	TrailStarted struct {
		PlayerID string `json:"playerID"`
	}

	TrailPointAdded struct {
		PlayerID string     `json:"playerID"`
		Point    LatLngWire `json:"point"`
	}

	TrailCleared struct {
		PlayerID string `json:"playerID"`
		Reason   string `json:"reason"`
	}

	RunTerminated struct {
		Reason string `json:"reason"`
	}

	ShieldBroken struct {
		OwnerID string `json:"ownerID"`
	}

	ShieldExpired struct {
		OwnerID string `json:"ownerID"`
	}

	ArenaCreated struct {
		ArenaID      string     `json:"arenaID"`
		Center       LatLngWire `json:"center"`
		RadiusMeters float64    `json:"radiusMeters"`
		RequiredLaps int        `json:"requiredLaps"`
		TimeoutAtMs  int64      `json:"timeoutAtMs"`
	}

	ArenaEntered struct {
		ArenaID string `json:"arenaID"`
	}

	ArenaTimeout struct {
		ArenaID string `json:"arenaID"`
	}

	ConquestStarted struct {
		ConquestID   string `json:"conquestID"`
		RequiredLaps int    `json:"requiredLaps"`
	}

	ConquestProgress struct {
		ConquestID    string  `json:"conquestID"`
		LapsCompleted int     `json:"lapsCompleted"`
		Similarity    float64 `json:"similarity"`
	}

	ConquerAttemptSuccessful struct {
		ConquestID string `json:"conquestID"`
		VictimID   string `json:"victimID"`
	}

	ConquestFailed struct {
		ConquestID string `json:"conquestID"`
		Reason     string `json:"reason"`
	}

	QuestProgressUpdate struct {
		QuestID string  `json:"questID"`
		Value   float64 `json:"value"`
	}

	QuestCompleted struct {
		QuestID  string `json:"questID"`
		WinnerID string `json:"winnerID"`
	}

	SuperpowersGranted struct {
		Powers []string `json:"powers"`
	}

	SuperpowerAcknowledged struct {
		Power string `json:"power"`
	}

	GeofenceUpdate struct {
		Zones []ZoneWire `json:"zones"`
	}

	ZoneWire struct {
		ID   string       `json:"id"`
		Kind string       `json:"kind"`
		Ring []LatLngWire `json:"ring"`
	}

	ChestSpawned struct {
		ChestID string     `json:"chestID"`
		Point   LatLngWire `json:"point"`
	}

	ChestClaimed struct {
		ChestID string `json:"chestID"`
	}

	AccountBanned struct {
		Reason      string `json:"reason"`
		UntilUnixMs int64  `json:"untilUnixMs"`
	}
)

func toWire(p model.Territory) TerritorySnapshot {
	ring := make([]LatLngWire, len(p.Boundary))
	for i, pt := range p.Boundary {
		ring[i] = LatLngWire{Lat: pt.Lat, Lng: pt.Lng}
	}
	return TerritorySnapshot{OwnerID: string(p.Owner), Ring: ring, AreaM2: p.AreaM2}
}

func toClanWire(t model.ClanTerritory) ClanTerritorySnapshot {
	ring := make([]LatLngWire, len(t.Boundary))
	for i, pt := range t.Boundary {
		ring[i] = LatLngWire{Lat: pt.Lat, Lng: pt.Lng}
	}
	return ClanTerritorySnapshot{ClanID: string(t.Clan), Ring: ring, AreaM2: t.AreaM2}
}

func init() {
	registerOutbound(
		ExistingTerritories{},
		BatchTerritoryUpdate{},
		PositionBatch{},
		ClaimSuccessful{},
		ClaimRejected{},
		TrailStarted{},
		TrailPointAdded{},
		TrailCleared{},
		RunTerminated{},
		ShieldBroken{},
		ShieldExpired{},
		ArenaCreated{},
		ArenaEntered{},
		ArenaTimeout{},
		ConquestStarted{},
		ConquestProgress{},
		ConquerAttemptSuccessful{},
		ConquestFailed{},
		QuestProgressUpdate{},
		QuestCompleted{},
		SuperpowersGranted{},
		SuperpowerAcknowledged{},
		GeofenceUpdate{},
		ChestSpawned{},
		ChestClaimed{},
		AccountBanned{},
	)
}
