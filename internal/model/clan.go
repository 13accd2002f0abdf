// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// Clan mirrors the teacher's Team (server/team.go) generalized to spec.md
// §5's clan territory model: a clan additionally carries a clan-wide shield
// flag, which the teacher's Team has no need for; the clan's base point is
// kept on ClanTerritory.
type Clan struct {
	ID     ClanID
	Name   string
	Tag    string
	Leader PlayerID

	Members map[PlayerID]struct{}

	// JoinRequests queues players awaiting the leader's approval, grounded
	// in the teacher's Team.JoinRequests/AddToTeam flow (server/team.go),
	// generalized from "auto-add on request" to an explicit accept step per
	// SPEC_FULL.md's supplemented clan-membership feature.
	JoinRequests map[PlayerID]struct{}

	ShieldOwned    bool
	ShieldActive   bool
	ShieldExpiryMs int64
}

func NewClan(id ClanID, name, tag string, leader PlayerID) *Clan {
	return &Clan{
		ID:           id,
		Name:         name,
		Tag:          tag,
		Leader:       leader,
		Members:      map[PlayerID]struct{}{leader: {}},
		JoinRequests: make(map[PlayerID]struct{}),
	}
}

func (c *Clan) HasMember(id PlayerID) bool {
	_, ok := c.Members[id]
	return ok
}

func (c *Clan) RequestJoin(id PlayerID) {
	if c.HasMember(id) {
		return
	}
	c.JoinRequests[id] = struct{}{}
}

// Approve moves a pending requester into membership. Reports false if the
// player never requested.
func (c *Clan) Approve(id PlayerID) bool {
	if _, ok := c.JoinRequests[id]; !ok {
		return false
	}
	delete(c.JoinRequests, id)
	c.Members[id] = struct{}{}
	return true
}

func (c *Clan) Deny(id PlayerID) {
	delete(c.JoinRequests, id)
}

func (c *Clan) Remove(id PlayerID) {
	delete(c.Members, id)
}

func (c *Clan) Size() int {
	return len(c.Members)
}
