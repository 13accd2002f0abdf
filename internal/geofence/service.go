// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package geofence

import (
	"context"

	"github.com/territoryrun/server/internal/geomath"
	"github.com/territoryrun/server/internal/hub"
	"github.com/territoryrun/server/internal/model"
)

// Notifier is the slice of Hub Service needs to fan out zone-list updates.
type Notifier interface {
	Broadcast(out hub.Outbound)
}

// Service is the GeofenceService implementation: a cached zone list backed
// by Store, satisfying hub.GeofenceServiceIface.
type Service struct {
	store  *Store
	notify Notifier
	zones  map[model.ZoneID]model.GeofenceZone
}

func NewService(store *Store, notify Notifier) *Service {
	return &Service{store: store, notify: notify, zones: make(map[model.ZoneID]model.GeofenceZone)}
}

// Load populates the cache at startup.
func (s *Service) Load(ctx context.Context) error {
	zones, err := s.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	s.zones = make(map[model.ZoneID]model.GeofenceZone, len(zones))
	for _, z := range zones {
		s.zones[z.ID] = z
	}
	return nil
}

// Valid implements spec.md §4.7: true iff some allowed zone contains point
// and no blocked zone does. No allowed zones at all means every point is
// invalid — fail closed rather than open.
func (s *Service) Valid(ctx context.Context, point geomath.LatLng) (bool, error) {
	proj := geomath.LocalProjection(point)
	pt := proj(point)

	allowedSeen := false
	inAllowed := false
	for _, z := range s.zones {
		ring := projectRing(proj, z.Polygon)
		switch z.Kind {
		case model.ZoneAllowed:
			allowedSeen = true
			if geomath.ContainsPoint(ring, pt) {
				inAllowed = true
			}
		case model.ZoneBlocked:
			if geomath.ContainsPoint(ring, pt) {
				return false, nil
			}
		}
	}
	if !allowedSeen {
		return false, nil
	}
	return inAllowed, nil
}

func projectRing(proj func(geomath.LatLng) geomath.Vec2, ring []geomath.LatLng) []geomath.Vec2 {
	out := make([]geomath.Vec2, len(ring))
	for i, p := range ring {
		out[i] = proj(p)
	}
	return out
}

// AddZone persists a new zone (the KML-upload admin side-channel spec.md §6
// describes) and broadcasts the refreshed list.
func (s *Service) AddZone(ctx context.Context, z model.GeofenceZone) error {
	if err := s.store.Add(ctx, z); err != nil {
		return err
	}
	s.zones[z.ID] = z
	s.broadcast()
	return nil
}

// DeleteZone removes a zone and broadcasts the refreshed list.
func (s *Service) DeleteZone(ctx context.Context, id model.ZoneID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	delete(s.zones, id)
	s.broadcast()
	return nil
}

func (s *Service) broadcast() {
	wire := make([]hub.ZoneWire, 0, len(s.zones))
	for _, z := range s.zones {
		ring := make([]hub.LatLngWire, len(z.Polygon))
		for i, p := range z.Polygon {
			ring[i] = hub.LatLngWire{Lat: p.Lat, Lng: p.Lng}
		}
		wire = append(wire, hub.ZoneWire{ID: string(z.ID), Kind: string(z.Kind), Ring: ring})
	}
	s.notify.Broadcast(hub.GeofenceUpdate{Zones: wire})
}
