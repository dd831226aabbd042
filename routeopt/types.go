// Package routeopt implements the Route Optimization Engine (spec §4.4,
// C6): nearest-neighbour for EXPRESS-only stops, a genetic algorithm for
// STANDARD-only stops, an insertion heuristic for mixed batches, a
// TTL+LRU route cache, and a quality scorer. Grounded on the teacher's
// pkg/routing/cache.go (TTL+LRU cache shape, restructured here over
// core.MemoryStore) and pkg/routing/hybrid.go's multi-strategy dispatch
// (NN/GA/insertion standing in for the teacher's sync/async/hybrid modes).
package routeopt

import (
	"time"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
)

// orderUnit is one order's pickup+delivery pair, kept adjacent through
// every algorithm in this package so precedence (pickup before delivery)
// never needs separate enforcement — spec §3 only requires stops[0] be
// start and stops[n-1] be delivery/end, not a generic TSP over loose stops.
type orderUnit struct {
	orderID  string
	pickup   domain.Stop
	delivery domain.Stop
	distance float64 // pickup->delivery leg, precomputed via Haversine
}

func (u orderUnit) location() domain.LatLng { return u.pickup.Location }

// buildUnits converts orders into routable pickup/delivery pairs.
func buildUnits(orders []*domain.Order) []orderUnit {
	units := make([]orderUnit, 0, len(orders))
	for _, o := range orders {
		units = append(units, orderUnit{
			orderID: o.ID,
			pickup: domain.Stop{
				ID: o.ID + ":pickup", Type: domain.StopPickup, Location: o.Pickup,
				ServiceTimeMin: 3, Priority: o.Priority,
			},
			delivery: domain.Stop{
				ID: o.ID + ":delivery", Type: domain.StopDelivery, Location: o.Delivery,
				ServiceTimeMin: 5, Priority: o.Priority,
			},
			distance: haversine(o.Pickup, o.Delivery),
		})
	}
	return units
}

// Constraints bounds NN's search per spec §4.4 ("EXPRESS only → NN with
// constraints maxDetourKm=2, timeConstraintMin=60").
type Constraints struct {
	MaxDetourKm     float64
	TimeConstraintMin float64
}

func DefaultNNConstraints() Constraints {
	return Constraints{MaxDetourKm: 2, TimeConstraintMin: 60}
}

// GeneticParams mirrors spec §4.4's literal GA parameter table.
type GeneticParams struct {
	Population  int
	Generations int
	Mutation    float64
	Crossover   float64
	Elitism     int
	Seed        int64
}

func DefaultGeneticParams() GeneticParams {
	return GeneticParams{Population: 50, Generations: 100, Mutation: 0.01, Crossover: 0.7, Elitism: 2, Seed: 42}
}

// OptimizeInput is Optimize's argument tuple (spec §4.4's contract
// "Optimize(driverState, orders, serviceType)").
type OptimizeInput struct {
	DriverID    string
	Start       domain.LatLng
	Orders      []*domain.Order
	NNConstraints Constraints
	GA          GeneticParams
	Now         time.Time
}
