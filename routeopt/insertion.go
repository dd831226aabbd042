package routeopt

import "github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"

// insertUnits appends STANDARD units into an existing EXPRESS-derived
// sequence at whichever position minimises marginal distance (spec §4.4
// mixed-batch "Phase 2"). Each standard unit is inserted independently, in
// the order given, matching the spec's "appends ... at positions minimising
// marginal distance" rather than a joint optimal insertion.
func insertUnits(start domain.LatLng, base []orderUnit, extra []orderUnit) []orderUnit {
	route := append([]orderUnit(nil), base...)
	for _, u := range extra {
		route = insertOne(start, route, u)
	}
	return route
}

func insertOne(start domain.LatLng, route []orderUnit, u orderUnit) []orderUnit {
	if len(route) == 0 {
		return []orderUnit{u}
	}

	bestPos := 0
	bestMarginal := marginalCost(start, route, 0, u)
	for pos := 1; pos <= len(route); pos++ {
		m := marginalCost(start, route, pos, u)
		if m < bestMarginal {
			bestMarginal = m
			bestPos = pos
		}
	}

	out := make([]orderUnit, 0, len(route)+1)
	out = append(out, route[:bestPos]...)
	out = append(out, u)
	out = append(out, route[bestPos:]...)
	return out
}

// marginalCost is the extra distance incurred by inserting u at position
// pos in route (before route[pos], or at the end).
func marginalCost(start domain.LatLng, route []orderUnit, pos int, u orderUnit) float64 {
	prev := start
	if pos > 0 {
		prev = route[pos-1].delivery.Location
	}
	var next domain.LatLng
	hasNext := pos < len(route)
	if hasNext {
		next = route[pos].pickup.Location
	}

	withoutInsert := 0.0
	if hasNext {
		withoutInsert = haversine(prev, next)
	}

	withInsert := haversine(prev, u.pickup.Location) + u.distance
	if hasNext {
		withInsert += haversine(u.delivery.Location, next)
	}

	return withInsert - withoutInsert
}
