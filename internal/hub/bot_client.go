// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package hub

import (
	"math/rand"

	"github.com/chewxy/math32"

	"github.com/territoryrun/server/internal/geomath"
	"github.com/territoryrun/server/internal/model"
)

const (
	botSpeedMetersPerStep = 6
	botMaxTurnRadians     = 0.35
)

// BotClient is a synthetic Client used to keep the simulation populated
// when real players fall below Config.MinPlayersForSimulation, and for
// load testing. Grounded on server/bot_client.go: a bot holds its own
// steering state and idempotent Destroy. Where the teacher's bot flies a
// ship around a sector by integrating a float32 heading each physics tick,
// this one steers the same way to wander a small patch of the map, instead
// of teleporting to a fresh random point every Step.
type BotClient struct {
	ClientData
	center     geomath.LatLng
	heading    float32
	destroying bool
}

func NewBotClient(center geomath.LatLng) *BotClient {
	return &BotClient{center: center, heading: rand.Float32() * 2 * math32.Pi}
}

func (bot *BotClient) Close() {}

func (bot *BotClient) Data() *ClientData {
	return &bot.ClientData
}

func (bot *BotClient) Destroy() {
	if bot.destroying {
		return
	}
	bot.destroying = true
	hub := bot.Hub
	select {
	case hub.unregister <- bot:
	default:
		go func() { hub.unregister <- bot }()
	}
}

func (bot *BotClient) Init() {
	bot.Player = model.NewPlayer(model.PlayerID(model.NewID()), botName())
	bot.Player.Position = bot.jitter(bot.center, 150)
}

// Send discards every outbound message; a bot has no socket to write to and
// doesn't need to observe the world to keep wandering.
func (bot *BotClient) Send(Outbound) {}

// Step advances the bot's position a little on every botTicker tick,
// called directly by Hub instead of going through the inbound channel since
// a bot is not a real network peer. Heading drifts by a small random turn
// each step rather than snapping to a brand new bearing, the float32
// steering-integration style the teacher's ship bots use.
func (bot *BotClient) Step() {
	if bot.destroying || bot.Player == nil {
		return
	}
	bot.heading += (rand.Float32()*2 - 1) * botMaxTurnRadians
	if dist := geomath.DistanceMeters(bot.center, bot.Player.Position); dist > 150 {
		bot.heading = bearingTo(bot.Player.Position, bot.center)
	}
	headingDegrees := bot.heading * 180 / math32.Pi
	bot.Player.Position = geomath.Destination(bot.Player.Position, float64(headingDegrees), botSpeedMetersPerStep)
}

// bearingTo steers a wandered-too-far bot back toward center using the same
// float32 trig as Step's heading integration.
func bearingTo(from, to geomath.LatLng) float32 {
	dLat := float32(to.Lat - from.Lat)
	dLng := float32(to.Lng - from.Lng)
	return math32.Atan2(dLng, dLat)
}

func (bot *BotClient) jitter(center geomath.LatLng, radiusMeters float64) geomath.LatLng {
	bearing := rand.Float64() * 360
	distance := rand.Float64() * radiusMeters
	return geomath.Destination(center, bearing, distance)
}

var botFirstNames = [...]string{
	"Scout", "Rover", "Nomad", "Drifter", "Runner", "Pathfinder", "Wanderer", "Courier",
}

func botName() string {
	return botFirstNames[rand.Intn(len(botFirstNames))]
}
