// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package quest implements QuestTracker (spec.md §4.8): a server-wide race
// toward a target value per quest kind, first participant to reach it wins
// and the quest locks. Grounded on la2go's internal/game/quest/manager.go
// DispatchEvent (events fan out by a kind-keyed index, a per-participant
// running state), adapted from in-memory NPC-quest state to a SAVEPOINT-
// scoped Postgres upsert committed in a transaction of its own, after the
// claim or cut that drove the progress has committed.
package quest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/territoryrun/server/internal/db"
	"github.com/territoryrun/server/internal/hub"
	"github.com/territoryrun/server/internal/model"
)

// Notifier is the slice of Hub Tracker needs to announce quest completion.
type Notifier interface {
	Broadcast(out hub.Outbound)
}

// Tracker is the QuestTracker implementation, satisfying hub.QuestServiceIface.
type Tracker struct {
	pool   *pgxpool.Pool
	notify Notifier
}

func NewTracker(database *db.DB, notify Notifier) *Tracker {
	return &Tracker{pool: database.Pool(), notify: notify}
}

// RecordProgress implements spec.md §4.8 steps 1-3: find open, unexpired
// quests of kind, upsert (quest, actor) progress by delta, and on crossing
// target attempt to become the winner inside a SAVEPOINT so a losing race
// rolls back cleanly without unwinding the rest of this transaction.
//
// RecordProgress opens its own transaction: callers (internal/trail,
// internal/claim) invoke it after their own commit, since
// quest advancement is a side effect of a claim/cut rather than part of
// its atomicity — a quest win never needs to roll back a territory change,
// and vice versa.
func (t *Tracker) RecordProgress(ctx context.Context, actor model.PlayerID, kind model.QuestKind, delta float64) (*model.Quest, error) {
	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("quest: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT id, target_value, expires_at_ms FROM quests
		 WHERE kind = $1 AND status = 'open' ORDER BY id FOR UPDATE`,
		string(kind))
	if err != nil {
		return nil, fmt.Errorf("quest: list open: %w", err)
	}
	type candidate struct {
		id          model.QuestID
		target      float64
		expiresAtMs int64
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		var id string
		if err := rows.Scan(&id, &c.target, &c.expiresAtMs); err != nil {
			rows.Close()
			return nil, fmt.Errorf("quest: scan: %w", err)
		}
		c.id = model.QuestID(id)
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var won *model.Quest
	now := time.Now().UnixMilli()
	for _, c := range candidates {
		if c.expiresAtMs <= now {
			continue // past its deadline, not yet marked by SweepExpired
		}
		q, err := t.advanceOne(ctx, tx, c.id, actor, delta, c.target)
		if err != nil {
			return nil, err
		}
		if q != nil {
			won = q
			break // spec.md §4.8 doesn't cap one actor winning several quests per event; first match is enough for the events this tracker receives
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("quest: commit: %w", err)
	}
	if won != nil {
		t.notify.Broadcast(hub.QuestCompleted{QuestID: string(won.ID), WinnerID: string(won.Winner)})
	}
	return won, nil
}

// advanceOne runs steps 2-3 for a single quest inside a SAVEPOINT, returning
// the won *model.Quest if actor became the winner, nil otherwise (including
// the lost-the-race case, which rolls back to the savepoint and leaves the
// quest's progress upsert as the only visible effect).
func (t *Tracker) advanceOne(ctx context.Context, tx pgx.Tx, questID model.QuestID, actor model.PlayerID, delta, target float64) (*model.Quest, error) {
	const savepoint = "quest_advance"

	var current float64
	err := tx.QueryRow(ctx,
		`INSERT INTO quest_progress (quest_id, actor_id, value) VALUES ($1, $2, $3)
		 ON CONFLICT (quest_id, actor_id) DO UPDATE SET value = quest_progress.value + EXCLUDED.value
		 RETURNING value`,
		string(questID), string(actor), delta).Scan(&current)
	if err != nil {
		return nil, fmt.Errorf("quest: upsert progress: %w", err)
	}

	if current < target {
		return nil, nil
	}

	if _, err := tx.Exec(ctx, "SAVEPOINT "+savepoint); err != nil {
		return nil, fmt.Errorf("quest: savepoint: %w", err)
	}

	var winner string
	err = tx.QueryRow(ctx,
		`UPDATE quests SET status = 'complete', winner_id = $2
		 WHERE id = $1 AND status = 'open' AND winner_id IS NULL
		 RETURNING winner_id`,
		string(questID), string(actor)).Scan(&winner)
	if errors.Is(err, pgx.ErrNoRows) {
		// Someone else already completed this quest between our SELECT ...
		// FOR UPDATE and here, or it expired concurrently; roll back our
		// attempt to claim it but keep the progress row committed.
		_, rerr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepoint)
		return nil, rerr
	}
	if err != nil {
		return nil, fmt.Errorf("quest: claim winner: %w", err)
	}

	return &model.Quest{ID: questID, Status: model.QuestComplete, Winner: model.PlayerID(winner), TargetValue: target}, nil
}

// SweepExpired marks quests past their deadline as expired, so a later
// RecordProgress's `status = 'open'` filter stops matching them. Driven by
// Hub's questTicker (one-minute period).
func (t *Tracker) SweepExpired(ctx context.Context, now int64) {
	_, err := t.pool.Exec(ctx,
		`UPDATE quests SET status = 'expired' WHERE status = 'open' AND expires_at_ms <= $1`, now)
	_ = err // best-effort; the next sweep retries
}
