package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestHaversineKnownDistance(t *testing.T) {
	// Paris to London is roughly 344 km
	d := HaversineM(48.8566, 2.3522, 51.5074, -0.1278)
	if d < 330000 || d > 360000 {
		t.Fatalf("unexpected distance: %.0f", d)
	}
	if HaversineM(10, 20, 10, 20) != 0 {
		t.Fatalf("distance to self should be zero")
	}
}

func TestSegmentIntersectionCrossing(t *testing.T) {
	pt, ok := SegmentIntersection(
		orb.Point{0, 0}, orb.Point{2, 2},
		orb.Point{0, 2}, orb.Point{2, 0},
	)
	if !ok {
		t.Fatal("expected crossing")
	}
	if math.Abs(pt[0]-1) > 1e-9 || math.Abs(pt[1]-1) > 1e-9 {
		t.Fatalf("expected (1,1), got %v", pt)
	}
}

func TestSegmentIntersectionParallel(t *testing.T) {
	if _, ok := SegmentIntersection(
		orb.Point{0, 0}, orb.Point{1, 0},
		orb.Point{0, 1}, orb.Point{1, 1},
	); ok {
		t.Fatal("parallel segments must not intersect")
	}
}

func TestSegmentIntersectionDisjoint(t *testing.T) {
	if _, ok := SegmentIntersection(
		orb.Point{0, 0}, orb.Point{1, 1},
		orb.Point{5, 5}, orb.Point{6, 4},
	); ok {
		t.Fatal("disjoint segments must not intersect")
	}
}

func TestSplitLineConservesLength(t *testing.T) {
	ls := orb.LineString{{0, 0}, {0.01, 0.002}, {0.02, 0}, {0.03, 0.004}}
	total := LineLengthM(ls)
	for _, frac := range []float64{0.1, 0.37, 0.5, 0.9} {
		a, b := SplitLine(ls, frac)
		sum := LineLengthM(a) + LineLengthM(b)
		if math.Abs(sum-total)/total > 0.005 {
			t.Fatalf("frac %.2f: halves sum %.2f vs total %.2f", frac, sum, total)
		}
		la := LineLengthM(a)
		if math.Abs(la-total*frac)/total > 0.01 {
			t.Fatalf("frac %.2f: first half %.2f, want ~%.2f", frac, la, total*frac)
		}
	}
}

func TestLocateAlongRoundTrip(t *testing.T) {
	ls := orb.LineString{{0, 0}, {0.02, 0}}
	mid := Interpolate(ls[0], ls[1], 0.25)
	got := LocateAlong(ls, mid)
	if math.Abs(got-0.25) > 0.01 {
		t.Fatalf("LocateAlong = %.4f, want 0.25", got)
	}
}

func TestPointInPolygon(t *testing.T) {
	poly := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}
	if !PointInPolygon(poly, orb.Point{0.5, 0.5}) {
		t.Fatal("center should be inside")
	}
	if PointInPolygon(poly, orb.Point{2, 2}) {
		t.Fatal("outside point reported inside")
	}
}

func TestLineIntersectsPolygon(t *testing.T) {
	poly := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}
	crossing := orb.LineString{{-1, 0.5}, {2, 0.5}}
	if !LineIntersectsPolygon(crossing, poly) {
		t.Fatal("crossing line should intersect")
	}
	outside := orb.LineString{{2, 2}, {3, 3}}
	if LineIntersectsPolygon(outside, poly) {
		t.Fatal("outside line should not intersect")
	}
}
