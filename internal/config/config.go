// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config layers flags, environment variables and an optional
// .env file into one Config struct, generalizing the teacher's three bare
// `flag` calls in server/main.go to the much larger surface this server
// needs (DSN, radii, durations, auth code).
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is every tunable the server reads at startup. Durations are stored
// as time.Duration directly; viper's env/flag layers bind onto plain
// scalars first and this struct is assembled from them in Load.
type Config struct {
	Port    int
	AuthKey string

	DatabaseURL string

	BaseClaimRadiusMeters   float64
	ArenaTimeout            time.Duration
	ConquestTimeout         time.Duration
	ShieldDuration          time.Duration
	TrailDisconnectGrace    time.Duration
	MinPlayersForSimulation int

	LogLevel string
	LogFile  string
}

// Load reads an optional .env file (grounded on turnforge-weewar's
// cmd/backend/main.go `godotenv.Load(envfile)` call), then layers flags and
// TERRITORYRUN_-prefixed environment variables over viper defaults —
// generalizing server/main.go's bare `flag.IntVar(&port, ...)` calls to a
// config surface that also needs a database DSN and several tunable
// durations.
func Load(envFile string, args []string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: loading %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix("TERRITORYRUN")
	v.AutomaticEnv()

	v.SetDefault("port", 8192)
	v.SetDefault("auth", "")
	v.SetDefault("database_url", "postgres://localhost:5432/territoryrun?sslmode=disable")
	v.SetDefault("base_claim_radius_meters", 30.0)
	v.SetDefault("arena_timeout", 5*time.Minute)
	v.SetDefault("conquest_timeout", 30*time.Minute)
	v.SetDefault("shield_duration", 48*time.Hour)
	v.SetDefault("trail_disconnect_grace", 60*time.Second)
	v.SetDefault("min_players_for_simulation", 1)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")

	fs := flag.NewFlagSet("territoryrun-server", flag.ContinueOnError)
	port := fs.Int("port", v.GetInt("port"), "http service port")
	auth := fs.String("auth", v.GetString("auth"), "admin auth code")
	dbURL := fs.String("database-url", v.GetString("database_url"), "PostGIS connection string")
	radius := fs.Float64("base-claim-radius", v.GetFloat64("base_claim_radius_meters"), "initial solo territory radius, meters")
	logLevel := fs.String("log-level", v.GetString("log_level"), "zap log level")
	logFile := fs.String("log-file", v.GetString("log_file"), "optional log file path, empty for stdout only")
	minPlayers := fs.Int("players", v.GetInt("min_players_for_simulation"), "minimum number of players before bots stop filling the server")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return &Config{
		Port:                    *port,
		AuthKey:                 *auth,
		DatabaseURL:             *dbURL,
		BaseClaimRadiusMeters:   *radius,
		ArenaTimeout:            v.GetDuration("arena_timeout"),
		ConquestTimeout:         v.GetDuration("conquest_timeout"),
		ShieldDuration:          v.GetDuration("shield_duration"),
		TrailDisconnectGrace:    v.GetDuration("trail_disconnect_grace"),
		MinPlayersForSimulation: *minPlayers,
		LogLevel:                *logLevel,
		LogFile:                 *logFile,
	}, nil
}
