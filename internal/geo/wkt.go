// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package geo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/territoryrun/server/internal/geomath"
)

// RingToWKT renders a closed lat/lng ring as a PostGIS POLYGON literal, lng
// before lat per WKT's x/y convention. Grounded on strava-coverage's
// coordinatesToWKT (other_examples), generalized from [][2]float64 input to
// our LatLng type. The first point is appended again only when the ring is
// not already closed.
func RingToWKT(ring []geomath.LatLng) string {
	if len(ring) == 0 {
		return "POLYGON EMPTY"
	}
	points := make([]string, 0, len(ring)+1)
	for _, p := range ring {
		points = append(points, fmt.Sprintf("%.8f %.8f", p.Lng, p.Lat))
	}
	if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
		points = append(points, fmt.Sprintf("%.8f %.8f", ring[0].Lng, ring[0].Lat))
	}
	return fmt.Sprintf("POLYGON((%s))", strings.Join(points, ","))
}

// PointToWKT renders a single point as a POINT literal for ST_GeomFromText.
func PointToWKT(p geomath.LatLng) string {
	return fmt.Sprintf("POINT(%.8f %.8f)", p.Lng, p.Lat)
}

// ParseWKTPolygon parses the "POLYGON((lng lat,lng lat,...))" text PostGIS
// returns from ST_AsText back into a ring. Grounded on strava-coverage's
// wktToCoordinates, adjusted to keep lng/lat order (WKT native) rather than
// swapping to lat/lng, since geomath.LatLng carries both fields explicitly.
func ParseWKTPolygon(wkt string) ([]geomath.LatLng, error) {
	wkt = strings.TrimSpace(wkt)
	if wkt == "POLYGON EMPTY" {
		return nil, nil
	}
	prefix := "POLYGON(("
	if !strings.HasPrefix(wkt, prefix) || !strings.HasSuffix(wkt, "))") {
		return nil, fmt.Errorf("geo: unexpected WKT shape: %.40s", wkt)
	}
	body := wkt[len(prefix) : len(wkt)-2]
	rawPoints := strings.Split(body, ",")

	ring := make([]geomath.LatLng, 0, len(rawPoints))
	for _, raw := range rawPoints {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		fields := strings.Fields(raw)
		if len(fields) != 2 {
			return nil, fmt.Errorf("geo: malformed WKT point %q", raw)
		}
		lng, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("geo: parsing lng: %w", err)
		}
		lat, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("geo: parsing lat: %w", err)
		}
		ring = append(ring, geomath.LatLng{Lat: lat, Lng: lng})
	}
	return ring, nil
}
