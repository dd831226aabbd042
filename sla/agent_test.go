package sla

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/clock"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/ports"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/repository"
)

func TestEvaluate_HealthyBeforeWarningThreshold(t *testing.T) {
	now := time.Now()
	o := &domain.Order{ID: "o1", ServiceType: domain.ServiceExpress, Status: domain.OrderAssigned, CreatedAt: now.Add(-10 * time.Minute),
		Pickup: domain.LatLng{Lat: 24.71, Lng: 46.67}, Delivery: domain.LatLng{Lat: 24.71, Lng: 46.67}}

	orders := repository.NewInMemoryOrders()
	a := NewAgent(orders, clock.NewFakeClock(now))
	status := a.Evaluate(o, now)
	require.Equal(t, domain.SLAHealthy, status.Category)
}

func TestEvaluate_BreachedIsMonotonicTerminal(t *testing.T) {
	now := time.Now()
	o := &domain.Order{ID: "o1", ServiceType: domain.ServiceExpress, Status: domain.OrderPickupInProgress, CreatedAt: now.Add(-90 * time.Minute),
		Pickup: domain.LatLng{Lat: 24.71, Lng: 46.67}, Delivery: domain.LatLng{Lat: 24.71, Lng: 46.67}}

	orders := repository.NewInMemoryOrders()
	a := NewAgent(orders, clock.NewFakeClock(now))
	status := a.Evaluate(o, now)
	require.Equal(t, domain.SLABreached, status.Category)
	require.False(t, status.CanMeetSLA)
}

func TestEvaluate_PredictedCategoryCanEscalatePastElapsed(t *testing.T) {
	now := time.Now()
	// Barely past creation (elapsed-category=healthy), but far enough away
	// that predicted delivery time alone pushes it to at least warning.
	o := &domain.Order{ID: "o1", ServiceType: domain.ServiceStandard, Status: domain.OrderAssigned, CreatedAt: now.Add(-1 * time.Minute),
		Pickup: domain.LatLng{Lat: 24.71, Lng: 46.67}, Delivery: domain.LatLng{Lat: 26.50, Lng: 48.50}}

	orders := repository.NewInMemoryOrders()
	a := NewAgent(orders, clock.NewFakeClock(now))
	status := a.Evaluate(o, now)
	require.NotEqual(t, domain.SLAHealthy, status.Category)
}

type fakeAutonomous struct {
	calls []string
}

func (f *fakeAutonomous) Trigger(ctx context.Context, source, reason string, payload map[string]interface{}, priority domain.ActionPriority) error {
	f.calls = append(f.calls, reason)
	return nil
}

type fakeSink struct {
	events []domain.Event
}

func (f *fakeSink) Emit(ctx context.Context, ev domain.Event) error {
	f.events = append(f.events, ev)
	return nil
}

func TestTick_BreachedOrderTriggersAutonomousDirective(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	orders := repository.NewInMemoryOrders()
	orders.Put(&domain.Order{ID: "o1", ServiceType: domain.ServiceExpress, Status: domain.OrderPickupInProgress,
		CreatedAt: now.Add(-90 * time.Minute), Pickup: domain.LatLng{Lat: 24.71, Lng: 46.67}, Delivery: domain.LatLng{Lat: 24.71, Lng: 46.67}})

	auto := &fakeAutonomous{}
	a := NewAgent(orders, clock.NewFakeClock(now), WithAutonomousOrchestrator(auto))

	summary := a.Tick(ctx)
	require.Equal(t, 1, summary.Breached)
	require.Contains(t, auto.calls, "breached_orders")
}

func TestTick_CriticalCannotMeetSLAEmitsReassignAndEscalate(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	orders := repository.NewInMemoryOrders()
	orders.Put(&domain.Order{ID: "o1", ServiceType: domain.ServiceExpress, Status: domain.OrderPickupInProgress,
		CreatedAt: now.Add(-52 * time.Minute), PromisedAt: now.Add(-1 * time.Minute),
		Pickup: domain.LatLng{Lat: 24.71, Lng: 46.67}, Delivery: domain.LatLng{Lat: 24.71, Lng: 46.67}})

	sink := &fakeSink{}
	a := NewAgent(orders, clock.NewFakeClock(now), WithEventSink(sink))
	summary := a.Tick(ctx)
	require.Equal(t, 1, summary.Critical)

	var sawReassign, sawEscalate bool
	for _, ev := range sink.events {
		if ev.Type == domain.EventInternalReassign {
			sawReassign = true
		}
		if ev.Type == domain.EventInternalEscalate {
			sawEscalate = true
		}
	}
	require.True(t, sawReassign)
	require.True(t, sawEscalate)
}

func TestTick_ActionsAreIdempotentWithinSuppressionWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	orders := repository.NewInMemoryOrders()
	orders.Put(&domain.Order{ID: "o1", ServiceType: domain.ServiceExpress, Status: domain.OrderPickupInProgress,
		CreatedAt: now.Add(-90 * time.Minute), Pickup: domain.LatLng{Lat: 24.71, Lng: 46.67}, Delivery: domain.LatLng{Lat: 24.71, Lng: 46.67}})

	a := NewAgent(orders, clock.NewFakeClock(now))
	a.Tick(ctx)
	require.True(t, a.suppressed(ctx, "o1", "customer_compensation"))

	// A second tick moments later must not double-fire the same action;
	// suppressed() staying true is the observable effect here since the
	// action handler itself has no side effect beyond marking suppression.
	a.Tick(ctx)
	require.True(t, a.suppressed(ctx, "o1", "customer_compensation"))
}

func TestTick_ReadFailureYieldsEmptySummary(t *testing.T) {
	a := NewAgent(failingOrders{}, clock.NewFakeClock(time.Now()))
	summary := a.Tick(context.Background())
	require.Equal(t, 0, summary.Total)
}

type failingOrders struct{}

func (failingOrders) GetActive(ctx context.Context, filter ports.OrderFilter) ([]*domain.Order, error) {
	return nil, context.DeadlineExceeded
}
func (failingOrders) GetByID(ctx context.Context, id string) (*domain.Order, error) { return nil, context.DeadlineExceeded }
func (failingOrders) UpdateStatus(ctx context.Context, id string, newStatus domain.OrderStatus, patch map[string]interface{}) (ports.Result, error) {
	return ports.Result{}, context.DeadlineExceeded
}
func (failingOrders) CASAssignedDriver(ctx context.Context, id string, expected, next string) (ports.Result, error) {
	return ports.Result{}, context.DeadlineExceeded
}
