package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

const (
	earthRadiusM = 6371000.0
	pi180        = math.Pi / 180.0
)

// HaversineM returns the great-circle distance between two coordinates in
// meters.
func HaversineM(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * pi180
	dLon := (lng2 - lng1) * pi180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*pi180)*math.Cos(lat2*pi180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// DistanceM is HaversineM over orb points (lon, lat order).
func DistanceM(a, b orb.Point) float64 {
	return HaversineM(a[1], a[0], b[1], b[0])
}

// LineLengthM returns the spherical length of a polyline in meters.
func LineLengthM(ls orb.LineString) float64 {
	total := 0.0
	for i := 1; i < len(ls); i++ {
		total += DistanceM(ls[i-1], ls[i])
	}
	return total
}

// SegmentIntersection returns the single crossing point of segments a1-a2
// and b1-b2, if any. Parallel, collinear and non-crossing segments return
// false. Touches at exact shared endpoints count as intersections; callers
// filter those by endpoint identity.
func SegmentIntersection(a1, a2, b1, b2 orb.Point) (orb.Point, bool) {
	d1x, d1y := a2[0]-a1[0], a2[1]-a1[1]
	d2x, d2y := b2[0]-b1[0], b2[1]-b1[1]
	denom := d1x*d2y - d1y*d2x
	if denom == 0 {
		return orb.Point{}, false
	}
	t := ((b1[0]-a1[0])*d2y - (b1[1]-a1[1])*d2x) / denom
	u := ((b1[0]-a1[0])*d1y - (b1[1]-a1[1])*d1x) / denom
	if t < 0 || t > 1 || u < 0 || u > 1 {
		return orb.Point{}, false
	}
	return orb.Point{a1[0] + t*d1x, a1[1] + t*d1y}, true
}

// LineIntersection finds the first single-point crossing between two
// polylines, returning the crossing point.
func LineIntersection(a, b orb.LineString) (orb.Point, bool) {
	for i := 1; i < len(a); i++ {
		for j := 1; j < len(b); j++ {
			if pt, ok := SegmentIntersection(a[i-1], a[i], b[j-1], b[j]); ok {
				return pt, true
			}
		}
	}
	return orb.Point{}, false
}

// Interpolate returns the point a fraction t of the way from a to b.
func Interpolate(a, b orb.Point, t float64) orb.Point {
	return orb.Point{a[0] + (b[0]-a[0])*t, a[1] + (b[1]-a[1])*t}
}

// PointSegmentDistanceM returns the distance in meters from p to segment
// a-b, using a local planar approximation scaled by cos(lat).
func PointSegmentDistanceM(p, a, b orb.Point) float64 {
	scale := math.Cos(p[1] * pi180)
	px, py := (p[0]-a[0])*scale, p[1]-a[1]
	bx, by := (b[0]-a[0])*scale, b[1]-a[1]
	segLen2 := bx*bx + by*by
	t := 0.0
	if segLen2 > 0 {
		t = (px*bx + py*by) / segLen2
		t = math.Max(0, math.Min(1, t))
	}
	proj := Interpolate(a, b, t)
	return DistanceM(p, proj)
}

// LocateAlong returns the fraction in [0,1] of the length of ls at which
// pt projects onto the line, using meter-space accumulation.
func LocateAlong(ls orb.LineString, pt orb.Point) float64 {
	if len(ls) < 2 {
		return 0
	}
	total := LineLengthM(ls)
	if total <= 0 {
		return 0
	}
	bestDist := math.MaxFloat64
	bestAt := 0.0
	acc := 0.0
	for i := 1; i < len(ls); i++ {
		a, b := ls[i-1], ls[i]
		segLen := DistanceM(a, b)
		d := PointSegmentDistanceM(pt, a, b)
		if d < bestDist {
			// recompute the projection parameter on this segment
			scale := math.Cos(pt[1] * pi180)
			px, py := (pt[0]-a[0])*scale, pt[1]-a[1]
			bx, by := (b[0]-a[0])*scale, b[1]-a[1]
			segLen2 := bx*bx + by*by
			t := 0.0
			if segLen2 > 0 {
				t = math.Max(0, math.Min(1, (px*bx+py*by)/segLen2))
			}
			bestDist = d
			bestAt = (acc + t*segLen) / total
		}
		acc += segLen
	}
	return bestAt
}

// SplitLine cuts ls at fraction frac of its length, returning the two
// halves. The cut point is inserted into both halves.
func SplitLine(ls orb.LineString, frac float64) (orb.LineString, orb.LineString) {
	if len(ls) < 2 {
		return ls, ls
	}
	total := LineLengthM(ls)
	target := total * frac
	acc := 0.0
	for i := 1; i < len(ls); i++ {
		segLen := DistanceM(ls[i-1], ls[i])
		if acc+segLen >= target && segLen > 0 {
			t := (target - acc) / segLen
			cut := Interpolate(ls[i-1], ls[i], t)
			first := append(orb.LineString{}, ls[:i]...)
			first = append(first, cut)
			second := append(orb.LineString{cut}, ls[i:]...)
			return first, second
		}
		acc += segLen
	}
	// frac beyond the end; degenerate second half
	last := ls[len(ls)-1]
	return append(orb.LineString{}, ls...), orb.LineString{last, last}
}

// PointInPolygon reports whether pt lies inside poly (holes respected).
func PointInPolygon(poly orb.Polygon, pt orb.Point) bool {
	return planar.PolygonContains(poly, pt)
}

// LineIntersectsPolygon reports whether any part of ls lies inside or
// crosses the boundary of poly.
func LineIntersectsPolygon(ls orb.LineString, poly orb.Polygon) bool {
	for _, pt := range ls {
		if planar.PolygonContains(poly, pt) {
			return true
		}
	}
	for _, ring := range poly {
		for i := 1; i < len(ring); i++ {
			for j := 1; j < len(ls); j++ {
				if _, ok := SegmentIntersection(ring[i-1], ring[i], ls[j-1], ls[j]); ok {
					return true
				}
			}
		}
	}
	return false
}
