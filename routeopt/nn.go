package routeopt

import "github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"

// nearestNeighbour greedily orders units by proximity to the current
// position, starting from start. Each unit's pickup is visited before its
// delivery is appended, so every returned slice keeps pickup/delivery
// adjacent (spec §4.4 EXPRESS-only path).
//
// c bounds each hop: candidates whose pickup leg exceeds c.MaxDetourKm or
// whose Haversine-derived leg time (distance×3, matching segmentFor's
// fallback duration model) exceeds c.TimeConstraintMin are skipped in favor
// of a nearer, in-bounds candidate. If every remaining candidate violates
// the bound (e.g. the only stops left are far away), NN still picks the
// globally nearest one rather than leaving the order unrouted — the
// constraint is a preference the greedy search honors when it can, not a
// hard failure mode.
func nearestNeighbour(start domain.LatLng, units []orderUnit, c Constraints) []orderUnit {
	remaining := append([]orderUnit(nil), units...)
	ordered := make([]orderUnit, 0, len(units))
	current := start

	for len(remaining) > 0 {
		bestIdx, bestDist := -1, 0.0
		fallbackIdx, fallbackDist := 0, haversine(current, remaining[0].location())

		for i, u := range remaining {
			d := haversine(current, u.location())
			if d < fallbackDist {
				fallbackDist = d
				fallbackIdx = i
			}
			if d <= c.MaxDetourKm && d*3 <= c.TimeConstraintMin && (bestIdx == -1 || d < bestDist) {
				bestIdx, bestDist = i, d
			}
		}
		if bestIdx == -1 {
			bestIdx = fallbackIdx
		}

		chosen := remaining[bestIdx]
		ordered = append(ordered, chosen)
		current = chosen.delivery.Location
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return ordered
}
