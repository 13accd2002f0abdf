// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command server wires every domain package into one running process:
// config, logging, the PostGIS pool, migrations, and the hub event loop.
// Grounded on server/main.go's flag-parse-then-serve shape, generalized
// from mk48's single-Hub boot sequence to the territory game's dozen
// cooperating services (internal/geo, internal/power, internal/trail,
// internal/claim, internal/conquest, internal/geofence, internal/quest,
// internal/clan, internal/chest), each constructed once here and handed
// to internal/hub.New as a hub.Services bundle.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/territoryrun/server/internal/chest"
	"github.com/territoryrun/server/internal/claim"
	"github.com/territoryrun/server/internal/clan"
	"github.com/territoryrun/server/internal/config"
	"github.com/territoryrun/server/internal/conquest"
	"github.com/territoryrun/server/internal/db"
	"github.com/territoryrun/server/internal/geo"
	"github.com/territoryrun/server/internal/geofence"
	"github.com/territoryrun/server/internal/hub"
	"github.com/territoryrun/server/internal/logging"
	"github.com/territoryrun/server/internal/model"
	"github.com/territoryrun/server/internal/power"
	"github.com/territoryrun/server/internal/quest"
	"github.com/territoryrun/server/internal/trail"
)

const shutdownGrace = 5 * time.Second

// lazyHub indirects through a *hub.Hub that doesn't exist yet at the point
// every domain service needs one: hub.New itself takes the fully
// constructed set of services, so nothing can hold a real *hub.Hub before
// all of them exist. lazyHub breaks the cycle — every service only calls
// Player/SendTo/Broadcast while handling a request, by which time main has
// already filled in the target.
type lazyHub struct {
	target **hub.Hub
}

func (l lazyHub) Player(id model.PlayerID) (*model.Player, bool) { return (*l.target).Player(id) }
func (l lazyHub) SendTo(id model.PlayerID, out hub.Outbound)     { (*l.target).SendTo(id, out) }
func (l lazyHub) Broadcast(out hub.Outbound)                     { (*l.target).Broadcast(out) }

func main() {
	cfg, err := config.Load(".env", os.Args[1:])
	mustNot(err, "loading config")

	log, err := logging.New(cfg.LogLevel, cfg.LogFile)
	mustNot(err, "building logger")
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, cfg.DatabaseURL)
	mustNot(err, "connecting to database")
	defer database.Close()

	mustNot(db.RunMigrations(ctx, cfg.DatabaseURL), "running migrations")

	geoStore := geo.NewStore(database)
	chestStore := chest.NewStore(database)
	geofenceStore := geofence.NewStore(database)
	clanRegistry := clan.NewRegistry(database)
	mustNot(clanRegistry.Load(ctx), "loading clans")

	var theHub *hub.Hub
	self := lazyHub{target: &theHub}

	questTracker := quest.NewTracker(database, self)
	geofenceService := geofence.NewService(geofenceStore, self)
	mustNot(geofenceService.Load(ctx), "loading geofence zones")

	trailEngine := trail.NewEngine(self, chestStore, questTracker, self, log)
	powerInventory := power.NewInventory(database, geoStore, self, self, cfg.ShieldDuration)

	resolver := claim.NewResolver(
		geoStore,
		self,
		trailEngine,
		clanRegistry,
		powerInventory,
		questTracker,
		self,
		cfg.BaseClaimRadiusMeters,
		log,
	)
	conquestManager := conquest.NewManager(geoStore, self, self, cfg.ArenaTimeout, cfg.ConquestTimeout, log)

	theHub = hub.New(cfg.MinPlayersForSimulation, hub.Services{
		Trail:    trailEngine,
		Claim:    resolver,
		Conquest: conquestManager,
		Power:    powerInventory,
		Geofence: geofenceService,
		Quest:    questTracker,
	}, log)

	go theHub.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := hub.Upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug("websocket upgrade failed", zap.Error(err))
			return
		}
		theHub.Register(hub.NewSocketClient(conn, log))
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addrFromPort(cfg.Port), Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("territoryrun server started", zap.Int("port", cfg.Port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("listen and serve", zap.Error(err))
	}
}

func addrFromPort(port int) string {
	return ":" + strconv.Itoa(port)
}

func mustNot(err error, action string) {
	if err != nil {
		panic(action + ": " + err.Error())
	}
}
