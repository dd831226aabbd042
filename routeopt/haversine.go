package routeopt

import (
	"context"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/geo"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/ports"
)

func haversine(a, b domain.LatLng) float64 {
	return geo.HaversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
}

// segmentFor resolves one leg's distance/duration through the Router
// port, falling back to Haversine + the 3-min/km model on any error or
// when router is nil (spec §4.4).
func segmentFor(ctx context.Context, router ports.Router, from, to domain.LatLng) domain.Segment {
	if router != nil {
		res, err := router.Route(ctx, from, to)
		if err == nil {
			return domain.Segment{From: from, To: to, DistanceKm: res.DistanceKm, DurationMin: res.DurationMin}
		}
	}
	d := haversine(from, to)
	return domain.Segment{From: from, To: to, DistanceKm: d, DurationMin: geo.DurationMinFromDistance(d)}
}

// applyTrafficAdjustment multiplies a segment's duration by 1.2 and tags
// it "moderate" (spec §4.4). Nothing in the module calls it: the
// orchestrator's applyTraffic scales segments by the TrafficProvider's
// condition instead.
func applyTrafficAdjustment(seg domain.Segment) domain.Segment {
	seg.DurationMin *= 1.2
	seg.Traffic = "moderate"
	return seg
}
