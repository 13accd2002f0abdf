// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package clan implements the clan roster and join-request queue SPEC_FULL.md
// supplements onto spec.md's Clan entity: create, request-join, approve/deny.
// There is no leave operation. Grounded on the teacher's server/team.go (Team wraps world.Team,
// stores Chats alongside it) and world/team.go's JoinRequests/Members split
// (AddToTeam-style explicit accept rather than auto-join), generalized from
// an in-memory-only PlayerSet to a roster that is durable across restarts.
package clan

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/territoryrun/server/internal/db"
	"github.com/territoryrun/server/internal/model"
)

var (
	ErrNotFound       = errors.New("clan: not found")
	ErrAlreadyMember  = errors.New("clan: already a member")
	ErrNotLeader      = errors.New("clan: requester is not the leader")
	ErrNoSuchRequest  = errors.New("clan: no such join request")
)

// Registry is the in-memory clan roster backed by Postgres, read by
// internal/claim for leader/membership checks and by internal/hub for the
// join-request flow. Held fully in memory (clan counts are small relative to
// players) and written through on every mutation, the same cache-then-
// confirm split internal/geofence uses for its zone list.
type Registry struct {
	pool *pgxpool.Pool

	mu    sync.RWMutex
	clans map[model.ClanID]*model.Clan
}

func NewRegistry(database *db.DB) *Registry {
	return &Registry{pool: database.Pool(), clans: make(map[model.ClanID]*model.Clan)}
}

// Load populates the cache at startup from clans/clan_members/clan_join_requests.
func (r *Registry) Load(ctx context.Context) error {
	rows, err := r.pool.Query(ctx, `SELECT id, name, tag, leader_id, shield_owned, shield_active, shield_expiry_ms FROM clans`)
	if err != nil {
		return fmt.Errorf("clan: load: %w", err)
	}
	clans := make(map[model.ClanID]*model.Clan)
	for rows.Next() {
		var id, name, tag, leader string
		c := &model.Clan{}
		if err := rows.Scan(&id, &name, &tag, &leader, &c.ShieldOwned, &c.ShieldActive, &c.ShieldExpiryMs); err != nil {
			rows.Close()
			return fmt.Errorf("clan: scan: %w", err)
		}
		c.ID, c.Name, c.Tag, c.Leader = model.ClanID(id), name, tag, model.PlayerID(leader)
		c.Members = make(map[model.PlayerID]struct{})
		c.JoinRequests = make(map[model.PlayerID]struct{})
		clans[c.ID] = c
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if err := r.loadMembers(ctx, clans); err != nil {
		return err
	}
	if err := r.loadJoinRequests(ctx, clans); err != nil {
		return err
	}

	r.mu.Lock()
	r.clans = clans
	r.mu.Unlock()
	return nil
}

func (r *Registry) loadMembers(ctx context.Context, clans map[model.ClanID]*model.Clan) error {
	rows, err := r.pool.Query(ctx, `SELECT clan_id, player_id FROM clan_members`)
	if err != nil {
		return fmt.Errorf("clan: load members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cid, pid string
		if err := rows.Scan(&cid, &pid); err != nil {
			return fmt.Errorf("clan: scan member: %w", err)
		}
		if c, ok := clans[model.ClanID(cid)]; ok {
			c.Members[model.PlayerID(pid)] = struct{}{}
		}
	}
	return rows.Err()
}

func (r *Registry) loadJoinRequests(ctx context.Context, clans map[model.ClanID]*model.Clan) error {
	rows, err := r.pool.Query(ctx, `SELECT clan_id, player_id FROM clan_join_requests`)
	if err != nil {
		return fmt.Errorf("clan: load join requests: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cid, pid string
		if err := rows.Scan(&cid, &pid); err != nil {
			return fmt.Errorf("clan: scan join request: %w", err)
		}
		if c, ok := clans[model.ClanID(cid)]; ok {
			c.JoinRequests[model.PlayerID(pid)] = struct{}{}
		}
	}
	return rows.Err()
}

// Clan returns the cached clan by id.
func (r *Registry) Clan(id model.ClanID) (*model.Clan, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clans[id]
	return c, ok
}

// Create persists a new clan led by leader and caches it.
func (r *Registry) Create(ctx context.Context, name, tag string, leader model.PlayerID) (*model.Clan, error) {
	c := model.NewClan(model.ClanID(model.NewID()), name, tag, leader)
	_, err := r.pool.Exec(ctx,
		`INSERT INTO clans (id, name, tag, leader_id) VALUES ($1, $2, $3, $4)`,
		string(c.ID), c.Name, c.Tag, string(c.Leader))
	if err != nil {
		return nil, fmt.Errorf("clan: create: %w", err)
	}
	if err := r.addMemberRow(ctx, c.ID, leader); err != nil {
		return nil, err
	}
	if err := r.setPlayerClan(ctx, leader, c.ID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.clans[c.ID] = c
	r.mu.Unlock()
	return c, nil
}

// RequestJoin queues player as a pending join request. It returns
// ErrAlreadyMember if player is already a member; queuing an already
// queued player again is a no-op.
func (r *Registry) RequestJoin(ctx context.Context, clanID model.ClanID, player model.PlayerID) error {
	r.mu.Lock()
	c, ok := r.clans[clanID]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if c.HasMember(player) {
		r.mu.Unlock()
		return ErrAlreadyMember
	}
	c.RequestJoin(player)
	r.mu.Unlock()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO clan_join_requests (clan_id, player_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		string(clanID), string(player))
	if err != nil {
		return fmt.Errorf("clan: request join: %w", err)
	}
	return nil
}

// Approve moves player from JoinRequests into Members. Only the clan leader
// may approve: Approve returns ErrNotLeader when requester is not
// c.Leader.
func (r *Registry) Approve(ctx context.Context, clanID model.ClanID, requester, player model.PlayerID) error {
	r.mu.Lock()
	c, ok := r.clans[clanID]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if c.Leader != requester {
		r.mu.Unlock()
		return ErrNotLeader
	}
	if !c.Approve(player) {
		r.mu.Unlock()
		return ErrNoSuchRequest
	}
	r.mu.Unlock()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("clan: approve begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM clan_join_requests WHERE clan_id = $1 AND player_id = $2`, string(clanID), string(player)); err != nil {
		return fmt.Errorf("clan: approve delete request: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO clan_members (clan_id, player_id) VALUES ($1, $2)`, string(clanID), string(player)); err != nil {
		return fmt.Errorf("clan: approve insert member: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE players SET clan_id = $1 WHERE id = $2`, string(clanID), string(player)); err != nil {
		return fmt.Errorf("clan: approve set player clan: %w", err)
	}
	return tx.Commit(ctx)
}

// Deny drops a pending join request without admitting the player.
func (r *Registry) Deny(ctx context.Context, clanID model.ClanID, requester, player model.PlayerID) error {
	r.mu.Lock()
	c, ok := r.clans[clanID]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if c.Leader != requester {
		r.mu.Unlock()
		return ErrNotLeader
	}
	c.Deny(player)
	r.mu.Unlock()

	_, err := r.pool.Exec(ctx, `DELETE FROM clan_join_requests WHERE clan_id = $1 AND player_id = $2`, string(clanID), string(player))
	if err != nil {
		return fmt.Errorf("clan: deny: %w", err)
	}
	return nil
}

func (r *Registry) addMemberRow(ctx context.Context, clanID model.ClanID, player model.PlayerID) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO clan_members (clan_id, player_id) VALUES ($1, $2)`, string(clanID), string(player))
	if err != nil {
		return fmt.Errorf("clan: add member: %w", err)
	}
	return nil
}

func (r *Registry) setPlayerClan(ctx context.Context, player model.PlayerID, clanID model.ClanID) error {
	_, err := r.pool.Exec(ctx, `UPDATE players SET clan_id = $1 WHERE id = $2`, string(clanID), string(player))
	if err != nil {
		return fmt.Errorf("clan: set player clan: %w", err)
	}
	return nil
}
