// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "github.com/google/uuid"

// PlayerID is the stable identifier a client presents on playerJoined. Unlike
// the teacher's pointer-derived world.PlayerID (an in-process identity that
// can't survive a reconnect), a territory player's id must be durable across
// reconnects and persisted rows, so it is a plain opaque string handed to us
// by the external auth boundary (spec.md §1 places auth-token verification
// out of scope; we just trust the id it resolves to).
type PlayerID string

// Invalid reports whether the id is the zero value.
func (id PlayerID) Invalid() bool { return id == "" }

// ClanID identifies a clan.
type ClanID string

func (id ClanID) Invalid() bool { return id == "" }

// ArenaID, ConquestID, QuestID, ZoneID and ChestID are server-generated.
type (
	ArenaID    string
	ConquestID string
	QuestID    string
	ZoneID     string
	ChestID    string
)

// NewID returns a fresh random UUID formatted as a plain string, used for
// every server-generated id (arenas, conquests, chests, quests, zones).
func NewID() string {
	return uuid.NewString()
}
