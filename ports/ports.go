// Package ports declares every external collaborator the decision core
// consumes through a small interface (spec §6), shaped after the
// teacher's pkg/communication.AgentCommunicator and core.Discovery:
// method-per-capability interfaces with explicit context/timeout and a
// wrapped error on failure.
package ports

import (
	"context"
	"time"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
)

// OrderFilter narrows OrderRepository.GetActive; a zero-value filter
// matches every active order.
type OrderFilter struct {
	ServiceType domain.ServiceType
	Status      domain.OrderStatus
}

// Result reports the outcome of a repository write, distinguishing success
// from a CAS miss without requiring callers to type-assert errors.
type Result struct {
	OK      bool
	Updated *domain.Order
}

// OrderRepository is the single-writer-per-entity store for orders (spec
// §6, §4.5). CASAssignedDriver is the only path that may change
// AssignedDriverID, preserving invariant I1.
type OrderRepository interface {
	GetActive(ctx context.Context, filter OrderFilter) ([]*domain.Order, error)
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id string, newStatus domain.OrderStatus, patch map[string]interface{}) (Result, error)
	CASAssignedDriver(ctx context.Context, id string, expected, next string) (Result, error)
}

// DriverRepository is the store for drivers (spec §6, §4.2).
type DriverRepository interface {
	List(ctx context.Context) ([]*domain.Driver, error)
	GetByID(ctx context.Context, id string) (*domain.Driver, error)
	UpdateLocation(ctx context.Context, id string, loc domain.LatLng) error
	UpdateStatus(ctx context.Context, id string, status domain.DriverStatus) error
}

// RouteResult is what the Router port returns for one origin/destination
// pair; Geometry is optional polyline/path data passed through untouched.
type RouteResult struct {
	DistanceKm float64
	DurationMin float64
	Geometry   interface{}
}

// Router resolves a single segment's travel distance/duration. The route
// optimization engine falls back to Haversine when this port is absent or
// erroring (spec §4.4).
type Router interface {
	Route(ctx context.Context, from, to domain.LatLng) (RouteResult, error)
}

// RouteOracle is the optional LLM-backed route-quality advisor (spec §4.4,
// §9). Any error — including "not configured" — is treated as absent by
// the caller; this is not itself a DecisionError-producing port.
type RouteOracle interface {
	Rank(ctx context.Context, start domain.LatLng, stops []domain.Stop) ([]int, error)
}

// Notifier is the multi-channel outbound notification port. Each method
// returns an error for the caller to log; a Notifier failure is never
// fatal to the originating agent (spec §7 propagation policy).
type Notifier interface {
	SMS(ctx context.Context, phone, msg string) error
	Email(ctx context.Context, to, subject, body string) error
	InApp(ctx context.Context, userID string, payload map[string]interface{}) error
	Voice(ctx context.Context, phone, msg string) error
}

// EscalationGateway delivers an escalation notification to whatever
// channel is wired for the given level (spec §6, §4.6).
type EscalationGateway interface {
	Notify(ctx context.Context, level domain.EscalationLevel, payload map[string]interface{}) error
}

// AutonomousOrchestrator receives directives the SLA Monitor publishes
// after each tick (spec §4.3's "Autonomous trigger").
type AutonomousOrchestrator interface {
	Trigger(ctx context.Context, source, reason string, payload map[string]interface{}, priority domain.ActionPriority) error
}

// DefaultPortTimeout is the suspension-point deadline spec §5 requires on
// every port call absent a more specific one.
const DefaultPortTimeout = 5 * time.Second
