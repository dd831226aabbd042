package routeopt

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/core"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/ports"
)

// Engine is the Route Optimization Engine (spec §4.4, C6).
type Engine struct {
	router ports.Router
	oracle ports.RouteOracle
	cache  *Cache
	logger core.Logger
}

type Option func(*Engine)

func WithRouter(r ports.Router) Option { return func(e *Engine) { e.router = r } }
func WithOracle(o ports.RouteOracle) Option { return func(e *Engine) { e.oracle = o } }
func WithLogger(l core.Logger) Option {
	return func(e *Engine) {
		if l == nil {
			return
		}
		if cal, ok := l.(core.ComponentAwareLogger); ok {
			e.logger = cal.WithComponent("routeopt")
			return
		}
		e.logger = l
	}
}

func NewEngine(cache *Cache, opts ...Option) *Engine {
	if cache == nil {
		cache = NewCache(0, 0)
	}
	e := &Engine{cache: cache, logger: &core.NoOpLogger{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Optimize builds a Route for driverID starting at start covering orders.
// It never returns an error: any internal failure degrades to a
// quality=fallback route (spec §4.4's "Fallback" and testable property 7).
func (e *Engine) Optimize(ctx context.Context, in OptimizeInput) *domain.Route {
	if len(in.Orders) == 0 {
		return e.emptyRoute(in.DriverID, in.Start)
	}

	key := Key(in.Start, in.Orders)
	if cached, ok := e.cache.Get(ctx, key); ok {
		cached.DriverID = in.DriverID
		return cached
	}

	route, err := e.optimizeUncached(ctx, in)
	if err != nil {
		e.logger.Warn("route optimization failed, using fallback", map[string]interface{}{
			"driver_id": in.DriverID, "error": err.Error(),
		})
		return e.fallbackRoute(in.DriverID, in.Start, in.Orders, in.Now)
	}

	e.cache.Put(ctx, key, route)
	return route
}

func (e *Engine) optimizeUncached(ctx context.Context, in OptimizeInput) (*domain.Route, error) {
	var express, standard []*domain.Order
	for _, o := range in.Orders {
		if o.ServiceType == domain.ServiceExpress {
			express = append(express, o)
		} else {
			standard = append(standard, o)
		}
	}

	nnConstraints := in.NNConstraints
	if nnConstraints == (Constraints{}) {
		nnConstraints = DefaultNNConstraints()
	}
	ga := in.GA
	if ga.Population == 0 {
		ga = DefaultGeneticParams()
	}

	var ordered []orderUnit
	switch {
	case len(standard) == 0:
		ordered = e.optimizeExpress(ctx, in.Start, express, nnConstraints)
	case len(express) == 0:
		ordered = geneticOptimize(ctx, in.Start, buildUnits(standard), ga)
	default:
		exUnits := e.optimizeExpress(ctx, in.Start, express, nnConstraints)
		ordered = insertUnits(in.Start, exUnits, buildUnits(standard))
	}

	return e.buildRoute(ctx, in.DriverID, in.Start, ordered, in.Now)
}

func (e *Engine) optimizeExpress(ctx context.Context, start domain.LatLng, express []*domain.Order, c Constraints) []orderUnit {
	units := nearestNeighbour(start, buildUnits(express), c)

	if e.oracle != nil {
		stops := flattenStops(units)
		if ranking, err := e.oracle.Rank(ctx, start, stops); err == nil {
			if reordered, ok := applyOracleRanking(units, ranking); ok {
				if routeDistanceUnits(start, reordered) < routeDistanceUnits(start, units) {
					units = reordered
				}
			}
		}
	}
	return units
}

func routeDistanceUnits(start domain.LatLng, units []orderUnit) float64 {
	perm := make([]int, len(units))
	for i := range perm {
		perm[i] = i
	}
	return routeDistance(start, perm, units)
}

// flattenStops exposes the oracle's expected [pickup, delivery, ...] view.
func flattenStops(units []orderUnit) []domain.Stop {
	stops := make([]domain.Stop, 0, len(units)*2)
	for _, u := range units {
		stops = append(stops, u.pickup, u.delivery)
	}
	return stops
}

// applyOracleRanking reinterprets the oracle's stop-index ranking as a
// unit ordering: only the first occurrence (the pickup) of each unit is
// used to establish relative order, since units must stay pickup-adjacent.
func applyOracleRanking(units []orderUnit, ranking []int) ([]orderUnit, bool) {
	if len(ranking) != len(units)*2 {
		return nil, false
	}
	seen := make(map[int]bool, len(units))
	ordered := make([]orderUnit, 0, len(units))
	for _, idx := range ranking {
		unitIdx := idx / 2
		if unitIdx < 0 || unitIdx >= len(units) || seen[unitIdx] {
			continue
		}
		seen[unitIdx] = true
		ordered = append(ordered, units[unitIdx])
	}
	if len(ordered) != len(units) {
		return nil, false
	}
	return ordered, true
}

func (e *Engine) buildRoute(ctx context.Context, driverID string, start domain.LatLng, units []orderUnit, startAt time.Time) (*domain.Route, error) {
	stops := make([]domain.Stop, 0, len(units)*2+1)
	stops = append(stops, domain.Stop{ID: "start", Type: domain.StopStart, Location: start})

	segments := make([]domain.Segment, 0, len(units)*2)
	current := start
	totalDist, totalDur := 0.0, 0.0
	if startAt.IsZero() {
		startAt = time.Now()
	}
	now := startAt

	for _, u := range units {
		seg := segmentFor(ctx, e.router, current, u.pickup.Location)
		segments = append(segments, seg)
		totalDist += seg.DistanceKm
		totalDur += seg.DurationMin
		now = now.Add(time.Duration(seg.DurationMin+u.pickup.ServiceTimeMin) * time.Minute)
		pickup := u.pickup
		pickup.EstimatedArrival = now
		stops = append(stops, pickup)

		seg2 := segmentFor(ctx, e.router, u.pickup.Location, u.delivery.Location)
		segments = append(segments, seg2)
		totalDist += seg2.DistanceKm
		totalDur += seg2.DurationMin
		now = now.Add(time.Duration(seg2.DurationMin+u.delivery.ServiceTimeMin) * time.Minute)
		delivery := u.delivery
		delivery.EstimatedArrival = now
		stops = append(stops, delivery)

		current = u.delivery.Location
	}

	route := &domain.Route{
		ID:               uuid.New().String(),
		DriverID:         driverID,
		Stops:            stops,
		Segments:         segments,
		TotalDistanceKm:  totalDist,
		TotalDurationMin: totalDur,
		Quality:          scoreQuality(len(stops), totalDur, totalDist),
	}
	return route, nil
}

func (e *Engine) fallbackRoute(driverID string, start domain.LatLng, orders []*domain.Order, startAt time.Time) *domain.Route {
	units := buildUnits(orders) // input order preserved, no reordering
	route, err := e.buildRoute(context.Background(), driverID, start, units, startAt)
	if err != nil {
		// buildRoute itself never errors (Haversine fallback inside
		// segmentFor cannot fail), but guard anyway per spec's "never
		// throws" contract.
		route = e.emptyRoute(driverID, start)
	}
	route.Quality = domain.QualityFallback
	return route
}

func (e *Engine) emptyRoute(driverID string, start domain.LatLng) *domain.Route {
	return &domain.Route{
		ID:       uuid.New().String(),
		DriverID: driverID,
		Stops:    []domain.Stop{{ID: "start", Type: domain.StopStart, Location: start}, {ID: "end", Type: domain.StopEnd, Location: start}},
		Quality:  domain.QualityFallback,
	}
}
