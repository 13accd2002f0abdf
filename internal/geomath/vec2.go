// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package geomath

import "math"

// Vec2 is a local tangent-plane coordinate in meters, produced by
// LocalProjection. Mirrors the shape of the teacher's world.Vec2f but in
// float64, since GPS-derived polygons need more precision than a boat's
// on-screen position.
type Vec2 struct {
	X float64
	Y float64
}

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Mul(f float64) Vec2 { return Vec2{v.X * f, v.Y * f} }
func (v Vec2) Dot(o Vec2) float64 { return v.X*o.X + v.Y*o.Y }
func (v Vec2) Cross(o Vec2) float64 { return v.X*o.Y - v.Y*o.X }

func (v Vec2) Length() float64 { return math.Sqrt(v.Dot(v)) }

func (v Vec2) DistanceTo(o Vec2) float64 { return v.Sub(o).Length() }

// PolygonAreaMeters2 returns the area (always non-negative) of a closed or
// open ring of local-plane points using the shoelace formula.
func PolygonAreaMeters2(ring []Vec2) float64 {
	if len(ring) < 3 {
		return 0
	}
	sum := 0.0
	n := len(ring)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += ring[i].X*ring[j].Y - ring[j].X*ring[i].Y
	}
	return math.Abs(sum) / 2
}

// Centroid returns the arithmetic centroid of a ring's vertices. Good enough
// for arena-center purposes (spec.md uses "centroid of target territory");
// for a regular claim polygon the vertex centroid and area centroid are
// close enough at this scale.
func Centroid(ring []Vec2) Vec2 {
	if len(ring) == 0 {
		return Vec2{}
	}
	var sum Vec2
	for _, p := range ring {
		sum = sum.Add(p)
	}
	return sum.Mul(1 / float64(len(ring)))
}

// ContainsPoint reports whether pt is inside the polygon described by ring,
// using the even-odd ray-casting rule. Grounded on the teacher pack's
// la2go BaseZone.containsNPoly, generalized from integer game coordinates
// to float64 meters.
func ContainsPoint(ring []Vec2, pt Vec2) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		xi, yi := ring[i].X, ring[i].Y
		xj, yj := ring[j].X, ring[j].Y
		if (yi > pt.Y) != (yj > pt.Y) {
			slope := (pt.X-xi)*(yj-yi) - (xj-xi)*(pt.Y-yi)
			if slope == 0 {
				return true // on boundary
			}
			if (slope < 0) != (yj-yi < 0) {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// SegmentsIntersect reports whether segment p1-p2 crosses segment p3-p4.
// Uses the standard orientation test; colinear-overlap is treated as an
// intersection since a trail running directly along another trail should
// still count as a cut.
func SegmentsIntersect(p1, p2, p3, p4 Vec2) bool {
	d1 := orientation(p3, p4, p1)
	d2 := orientation(p3, p4, p2)
	d3 := orientation(p1, p2, p3)
	d4 := orientation(p1, p2, p4)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	if d1 == 0 && onSegment(p3, p4, p1) {
		return true
	}
	if d2 == 0 && onSegment(p3, p4, p2) {
		return true
	}
	if d3 == 0 && onSegment(p1, p2, p3) {
		return true
	}
	if d4 == 0 && onSegment(p1, p2, p4) {
		return true
	}
	return false
}

func orientation(a, b, c Vec2) float64 {
	return b.Sub(a).Cross(c.Sub(a))
}

func onSegment(a, b, p Vec2) bool {
	return math.Min(a.X, b.X) <= p.X && p.X <= math.Max(a.X, b.X) &&
		math.Min(a.Y, b.Y) <= p.Y && p.Y <= math.Max(a.Y, b.Y)
}

// DistanceToSegment returns the minimum distance from pt to the segment a-b.
func DistanceToSegment(pt, a, b Vec2) float64 {
	ab := b.Sub(a)
	l2 := ab.Dot(ab)
	if l2 == 0 {
		return pt.DistanceTo(a)
	}
	t := pt.Sub(a).Dot(ab) / l2
	t = math.Max(0, math.Min(1, t))
	proj := a.Add(ab.Mul(t))
	return pt.DistanceTo(proj)
}

// DistanceToPolyline returns the minimum distance from pt to any segment of
// an open polyline.
func DistanceToPolyline(pt Vec2, line []Vec2) float64 {
	if len(line) == 0 {
		return math.Inf(1)
	}
	if len(line) == 1 {
		return pt.DistanceTo(line[0])
	}
	min := math.Inf(1)
	for i := 0; i+1 < len(line); i++ {
		d := DistanceToSegment(pt, line[i], line[i+1])
		if d < min {
			min = d
		}
	}
	return min
}
