// Package demandctx implements the Batch Optimization / Demand / Traffic /
// Geo context providers (spec §4's C8): read-only predictions the Order
// Assignment and Route Optimization agents consume but never the source
// of truth for an order's state. Grounded on the teacher's pkg/ai
// provider-abstraction shape (one small interface per data source,
// injected rather than reached for as a package-level singleton) — the
// teacher abstracts LLM providers this way; here the same shape abstracts
// demand/traffic/geo data sources. Resolves spec §9 OQ1 ("getCurrentDemand
// double-defined... we take the last definition, a structured object") by
// giving DemandSnapshot a single, structured shape.
package demandctx

import (
	"context"
	"sort"
	"time"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/core"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/geo"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/ports"
)

// DemandLevel buckets a zone's current order pressure.
type DemandLevel string

const (
	DemandLow      DemandLevel = "low"
	DemandModerate DemandLevel = "moderate"
	DemandHigh     DemandLevel = "high"
	DemandSurge    DemandLevel = "surge"
)

// ZoneDemand is one zone's row in a DemandSnapshot.
type ZoneDemand struct {
	Zone          string
	ActiveOrders  int
	ExpressShare  float64
	Level         DemandLevel
}

// DemandSnapshot is DemandProvider's output — the resolved, single
// structured shape per spec §9 OQ1.
type DemandSnapshot struct {
	GeneratedAt time.Time
	ByZone      map[string]ZoneDemand
	TotalActive int
	TotalExpress int
}

// demandThresholds maps a zone's active-order count to a DemandLevel; the
// spec leaves exact breakpoints unspecified (OQ-style gap), so this
// package picks round numbers consistent with the orchestrator's
// mode=peak threshold of total>100 system-wide (spec §4.1).
const (
	demandModerateAt = 5
	demandHighAt      = 15
	demandSurgeAt     = 30
)

func levelFor(active int) DemandLevel {
	switch {
	case active >= demandSurgeAt:
		return DemandSurge
	case active >= demandHighAt:
		return DemandHigh
	case active >= demandModerateAt:
		return DemandModerate
	default:
		return DemandLow
	}
}

// DemandProvider computes current order pressure per zone, consumed by
// order-assignment and route-opt's batch-sizing decisions (spec §4.1's
// "demand" agent for NEW_ORDER/STANDARD).
type DemandProvider struct {
	orders ports.OrderRepository
	zones  []geo.Zone
	logger core.Logger
}

func NewDemandProvider(orders ports.OrderRepository, zones []geo.Zone, logger core.Logger) *DemandProvider {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("agent/demand")
	}
	if zones == nil {
		zones = geo.DefaultZones()
	}
	return &DemandProvider{orders: orders, zones: zones, logger: logger}
}

func (p *DemandProvider) Snapshot(ctx context.Context, now time.Time) (*DemandSnapshot, error) {
	active, err := p.orders.GetActive(ctx, ports.OrderFilter{})
	if err != nil {
		return nil, core.NewError("demandctx.Snapshot", core.KindOf(err), "", err)
	}

	counts := map[string]int{}
	expressCounts := map[string]int{}
	totalExpress := 0
	for _, o := range active {
		zone := geo.ZoneFor(geo.Point{Lat: o.Pickup.Lat, Lng: o.Pickup.Lng}, p.zones)
		counts[zone]++
		if o.ServiceType == domain.ServiceExpress {
			expressCounts[zone]++
			totalExpress++
		}
	}

	byZone := make(map[string]ZoneDemand, len(counts))
	for zone, n := range counts {
		share := 0.0
		if n > 0 {
			share = float64(expressCounts[zone]) / float64(n)
		}
		byZone[zone] = ZoneDemand{Zone: zone, ActiveOrders: n, ExpressShare: share, Level: levelFor(n)}
	}

	return &DemandSnapshot{GeneratedAt: now, ByZone: byZone, TotalActive: len(active), TotalExpress: totalExpress}, nil
}

// TrafficCondition is TrafficProvider's per-segment output, attached to
// route segments by routeopt (spec §4.4's "Traffic adjustment multiplies
// duration by 1.2... attaches trafficCondition").
type TrafficCondition struct {
	Label      string
	Multiplier float64
}

var (
	trafficLight    = TrafficCondition{Label: "light", Multiplier: 1.0}
	trafficModerate = TrafficCondition{Label: "moderate", Multiplier: 1.2}
	trafficHeavy    = TrafficCondition{Label: "heavy", Multiplier: 1.5}
)

// peakHours are the Riyadh-specific rush windows the spec calls out as
// source constants (spec §9 OQ3). Unlike the zone table, they are fixed
// here: no constructor or configuration option overrides them.
var peakHours = map[int]bool{7: true, 8: true, 13: true, 14: true, 17: true, 18: true, 19: true, 20: true}

// TrafficProvider estimates a traffic condition per zone and hour. It has
// no external traffic-data dependency (spec §1 scopes the "external
// routing service" out) — this is the in-core heuristic the Route
// Optimization Engine's Haversine fallback path multiplies by.
type TrafficProvider struct {
	zones []geo.Zone
}

func NewTrafficProvider(zones []geo.Zone) *TrafficProvider {
	if zones == nil {
		zones = geo.DefaultZones()
	}
	return &TrafficProvider{zones: zones}
}

// ConditionFor returns the traffic condition for a point at time t. Peak
// hours bump every zone to at least moderate; the "central" zone (the
// densest of the five static zones) is heavy during peak hours.
func (p *TrafficProvider) ConditionFor(point geo.Point, t time.Time) TrafficCondition {
	zone := geo.ZoneFor(point, p.zones)
	if !peakHours[t.Hour()] {
		return trafficLight
	}
	if zone == "central" {
		return trafficHeavy
	}
	return trafficModerate
}

// BatchGroup is one zone-grouped batch of pending STANDARD orders, the
// Batch Optimization agent's output for the BATCH_OPTIMIZATION event and
// NEW_ORDER/STANDARD's "batch" parallel task (spec §4.1).
type BatchGroup struct {
	Zone   string
	Orders []*domain.Order
}

// BatchProvider groups pending orders by pickup zone so route-opt can run
// one genetic-algorithm pass per geographically coherent batch instead of
// one global pass (spec's Non-goal disclaims geographic realism beyond
// zone grids, which this grouping is built directly on top of).
type BatchProvider struct {
	zones []geo.Zone
}

func NewBatchProvider(zones []geo.Zone) *BatchProvider {
	if zones == nil {
		zones = geo.DefaultZones()
	}
	return &BatchProvider{zones: zones}
}

// Group partitions orders by pickup zone, returning groups sorted by zone
// name for deterministic downstream processing order.
func (p *BatchProvider) Group(orders []*domain.Order) []BatchGroup {
	byZone := map[string][]*domain.Order{}
	for _, o := range orders {
		zone := geo.ZoneFor(geo.Point{Lat: o.Pickup.Lat, Lng: o.Pickup.Lng}, p.zones)
		byZone[zone] = append(byZone[zone], o)
	}
	groups := make([]BatchGroup, 0, len(byZone))
	for zone, os := range byZone {
		groups = append(groups, BatchGroup{Zone: zone, Orders: os})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Zone < groups[j].Zone })
	return groups
}

// GeoContext is the Geo context provider's output for a single point: its
// zone membership plus distances to every other zone's centroid, used by
// order-assignment's cross-zone candidate search when a zone is
// under-supplied.
type GeoContext struct {
	Zone            string
	DistanceToZones map[string]float64 // km, centroid-to-point
}

// GeoProvider wraps the geo package's static zone grid as the C8 "geo"
// agent the NEW_ORDER/EXPRESS plan fans out to (spec §4.1).
type GeoProvider struct {
	zones []geo.Zone
}

func NewGeoProvider(zones []geo.Zone) *GeoProvider {
	if zones == nil {
		zones = geo.DefaultZones()
	}
	return &GeoProvider{zones: zones}
}

func (p *GeoProvider) Context(point geo.Point) GeoContext {
	distances := make(map[string]float64, len(p.zones))
	for _, z := range p.zones {
		centroidLat := (z.MinLat + z.MaxLat) / 2
		centroidLng := (z.MinLng + z.MaxLng) / 2
		distances[z.Name] = geo.HaversineKm(point.Lat, point.Lng, centroidLat, centroidLng)
	}
	return GeoContext{Zone: geo.ZoneFor(point, p.zones), DistanceToZones: distances}
}
