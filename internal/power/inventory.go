// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package power implements SuperpowerInventory (spec.md §4.6): per-player
// owned/active power sets with transactional grant/consume. Grounded on
// la2go's internal/db/clan_repository.go row-level upsert idiom (ON
// CONFLICT DO UPDATE, defer tx.Rollback), adapted from clan rows to a
// players.owned_powers array column and, for lastStand, the territories
// row's shield fields.
package power

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/territoryrun/server/internal/db"
	"github.com/territoryrun/server/internal/geo"
	"github.com/territoryrun/server/internal/hub"
	"github.com/territoryrun/server/internal/model"
)

var (
	ErrAlreadyOwned   = errors.New("power: already owned")
	ErrPlayerNotFound = errors.New("power: player not found")
)

// PlayerLookup is the slice of Hub Inventory needs to keep a connected
// player's in-memory OwnedPowers/ActivePowers in sync with the row it just
// wrote, mirroring internal/trail's PlayerLookup.
type PlayerLookup interface {
	Player(id model.PlayerID) (*model.Player, bool)
}

// Notifier is the slice of Hub Inventory needs to announce shield events.
type Notifier interface {
	SendTo(playerID model.PlayerID, out hub.Outbound)
	Broadcast(out hub.Outbound)
}

// Inventory is the PowerService implementation.
type Inventory struct {
	pool           *pgxpool.Pool
	geo            *geo.Store
	players        PlayerLookup
	notify         Notifier
	shieldDuration time.Duration
}

func NewInventory(database *db.DB, geoStore *geo.Store, players PlayerLookup, notify Notifier, shieldDuration time.Duration) *Inventory {
	return &Inventory{
		pool:           database.Pool(),
		geo:            geoStore,
		players:        players,
		notify:         notify,
		shieldDuration: shieldDuration,
	}
}

// CreateOrder rejects a purchase the player already owns, per spec.md §4.6.
func (inv *Inventory) CreateOrder(ctx context.Context, user model.PlayerID, item model.PowerID) error {
	var owned bool
	err := inv.pool.QueryRow(ctx,
		`SELECT $2 = ANY(owned_powers) FROM players WHERE id = $1`, string(user), string(item)).Scan(&owned)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrPlayerNotFound
	}
	if err != nil {
		return fmt.Errorf("power: create order: %w", err)
	}
	if owned {
		return ErrAlreadyOwned
	}
	return nil
}

// GrantAfterPayment idempotently adds item to user's owned set.
func (inv *Inventory) GrantAfterPayment(ctx context.Context, user model.PlayerID, item model.PowerID, verifiedPayment bool) error {
	if !verifiedPayment {
		return errors.New("power: payment not verified")
	}
	tag, err := inv.pool.Exec(ctx,
		`UPDATE players SET owned_powers = array_append(owned_powers, $2), updated_at = now()
		 WHERE id = $1 AND NOT ($2 = ANY(owned_powers))`,
		string(user), string(item))
	if err != nil {
		return fmt.Errorf("power: grant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either already owned (idempotent no-op) or the player doesn't exist;
		// distinguish so a missing player still fails loudly as spec.md requires.
		var exists bool
		if err := inv.pool.QueryRow(ctx, `SELECT true FROM players WHERE id = $1`, string(user)).Scan(&exists); errors.Is(err, pgx.ErrNoRows) {
			return ErrPlayerNotFound
		}
	}
	if player, ok := inv.players.Player(user); ok {
		player.OwnedPowers.Add(item)
	}
	return nil
}

// Activate implements spec.md §4.6 activate: lastStand arms the territory
// shield and stays owned; every other power is consumed immediately and
// flips a run-scoped ActivePowers flag.
func (inv *Inventory) Activate(ctx context.Context, playerID model.PlayerID, power model.PowerID) error {
	player, ok := inv.players.Player(playerID)
	if !ok {
		return ErrPlayerNotFound
	}
	if !player.OwnedPowers.Has(power) {
		return fmt.Errorf("power: %s not owned", power)
	}

	if power == model.PowerLastStand {
		return inv.armShield(ctx, playerID)
	}

	tag, err := inv.pool.Exec(ctx,
		`UPDATE players SET owned_powers = array_remove(owned_powers, $2), updated_at = now() WHERE id = $1`,
		string(playerID), string(power))
	if err != nil {
		return fmt.Errorf("power: activate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlayerNotFound
	}

	player.OwnedPowers.Remove(power)
	switch power {
	case model.PowerGhostRunner:
		player.ActivePowers.GhostRunner = true
	case model.PowerInfiltrator:
		player.ActivePowers.Infiltrator = true
	case model.PowerTrailDefense:
		player.ActivePowers.TrailDefense = true
	}
	return nil
}

// armShield sets the territory row's shield-owned/active flags, FOR UPDATE
// inside its own short transaction (spec.md §4.6: "all FOR UPDATE on the
// owner row").
func (inv *Inventory) armShield(ctx context.Context, playerID model.PlayerID) error {
	tx, err := inv.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("power: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	territory, err := inv.geo.LockTerritory(ctx, tx, playerID)
	if err != nil {
		return fmt.Errorf("power: lock territory for shield: %w", err)
	}
	territory.ShieldOwned = true
	territory.ShieldActive = true
	territory.ShieldActivated = time.Now().UnixMilli()

	if err := inv.geo.ReplaceTerritory(ctx, tx, territory); err != nil {
		return fmt.Errorf("power: arm shield: %w", err)
	}
	return tx.Commit(ctx)
}

// Consume implements spec.md §4.6 consume: called by ClaimResolver inside
// its own claim transaction once a shield has actually blocked a hit. tx
// must already hold the territory row FOR UPDATE (via geo.Store.LockTerritory);
// Consume only needs to drop lastStand from the owner's owned-powers row,
// since the caller is responsible for clearing Territory.ShieldActive/Owned
// on the struct it is about to persist with ReplaceTerritory.
func (inv *Inventory) Consume(ctx context.Context, tx pgx.Tx, owner model.PlayerID) error {
	_, err := tx.Exec(ctx,
		`UPDATE players SET owned_powers = array_remove(owned_powers, $2), updated_at = now() WHERE id = $1`,
		string(owner), string(model.PowerLastStand))
	if err != nil {
		return fmt.Errorf("power: consume: %w", err)
	}
	if player, ok := inv.players.Player(owner); ok {
		player.OwnedPowers.Remove(model.PowerLastStand)
	}
	return nil
}

// SweepExpiredShields clears any territory whose shield has been active for
// longer than shieldDuration, broadcasting shieldExpired. Called from Hub's
// shieldTicker (30s period); spec.md §5 gives the shield its own 48h
// deadline separate from the sweep cadence.
func (inv *Inventory) SweepExpiredShields(ctx context.Context, now int64) {
	cutoff := now - inv.shieldDuration.Milliseconds()
	rows, err := inv.pool.Query(ctx, `SELECT owner_id FROM territories WHERE shield_active AND shield_activated_ms <= $1`, cutoff)
	if err != nil {
		return
	}
	var owners []model.PlayerID
	for rows.Next() {
		var id string
		if rows.Scan(&id) == nil {
			owners = append(owners, model.PlayerID(id))
		}
	}
	rows.Close()

	for _, owner := range owners {
		inv.expireShield(ctx, owner)
	}
}

func (inv *Inventory) expireShield(ctx context.Context, owner model.PlayerID) {
	tx, err := inv.pool.Begin(ctx)
	if err != nil {
		return
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	territory, err := inv.geo.LockTerritory(ctx, tx, owner)
	if err != nil {
		return
	}
	if !territory.ShieldActive {
		return
	}
	territory.ShieldActive = false
	territory.ShieldOwned = false
	if err := inv.geo.ReplaceTerritory(ctx, tx, territory); err != nil {
		return
	}
	if err := tx.Commit(ctx); err != nil {
		return
	}
	if player, ok := inv.players.Player(owner); ok {
		player.OwnedPowers.Remove(model.PowerLastStand)
	}
	inv.notify.SendTo(owner, hub.ShieldExpired{OwnerID: string(owner)})
}
