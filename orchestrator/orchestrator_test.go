package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/clock"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/repository"
)

func newTestOrchestrator(t *testing.T, orders *repository.InMemoryOrders, drivers *repository.InMemoryDrivers) *Orchestrator {
	t.Helper()
	fc := clock.NewFakeClock(time.Date(2026, 8, 2, 10, 0, 0, 0, time.UTC))
	return NewOrchestrator(Deps{Orders: orders, Drivers: drivers, Clock: fc})
}

func seedDriver(drivers *repository.InMemoryDrivers, id string, at domain.LatLng) *domain.Driver {
	d := &domain.Driver{
		ID: id, VehicleType: domain.VehicleBike, Status: domain.DriverAvailable,
		Rating: 4.9, BarqSuccessRate: 0.95, Location: at,
	}
	drivers.Put(d)
	return d
}

func TestOrchestrate_NewOrderExpressAssignsAndRoutes(t *testing.T) {
	ctx := context.Background()
	orders := repository.NewInMemoryOrders()
	drivers := repository.NewInMemoryDrivers()

	now := time.Date(2026, 8, 2, 10, 0, 0, 0, time.UTC)
	seedDriver(drivers, "d1", domain.LatLng{Lat: 24.710, Lng: 46.671, At: now})

	o := &domain.Order{ID: "o1", ServiceType: domain.ServiceExpress, Status: domain.OrderPending,
		Pickup: domain.LatLng{Lat: 24.710, Lng: 46.671}, Delivery: domain.LatLng{Lat: 24.72, Lng: 46.68}}
	orders.Put(o)

	orch := newTestOrchestrator(t, orders, drivers)
	dec := orch.Orchestrate(ctx, domain.Event{Type: domain.EventNewOrder, OrderID: "o1", ServiceType: domain.ServiceExpress})

	require.Equal(t, domain.DecisionAssigned, dec.Action)
	require.Equal(t, "d1", dec.DriverID)
	require.NotNil(t, dec.Route)
}

func TestOrchestrate_NewOrderNoDriverQueues(t *testing.T) {
	ctx := context.Background()
	orders := repository.NewInMemoryOrders()
	drivers := repository.NewInMemoryDrivers()

	o := &domain.Order{ID: "o1", ServiceType: domain.ServiceExpress, Status: domain.OrderPending,
		Pickup: domain.LatLng{Lat: 24.710, Lng: 46.671}, Delivery: domain.LatLng{Lat: 24.72, Lng: 46.68}}
	orders.Put(o)

	orch := newTestOrchestrator(t, orders, drivers)
	dec := orch.Orchestrate(ctx, domain.Event{Type: domain.EventNewOrder, OrderID: "o1", ServiceType: domain.ServiceExpress})

	require.Equal(t, domain.DecisionQueued, dec.Action)
}

func TestOrchestrate_NewOrderIdempotentReplayReturnsExistingAssignment(t *testing.T) {
	ctx := context.Background()
	orders := repository.NewInMemoryOrders()
	drivers := repository.NewInMemoryDrivers()

	now := time.Date(2026, 8, 2, 10, 0, 0, 0, time.UTC)
	seedDriver(drivers, "d1", domain.LatLng{Lat: 24.710, Lng: 46.671, At: now})

	o := &domain.Order{ID: "o1", ServiceType: domain.ServiceExpress, Status: domain.OrderPending,
		Pickup: domain.LatLng{Lat: 24.710, Lng: 46.671}, Delivery: domain.LatLng{Lat: 24.72, Lng: 46.68}}
	orders.Put(o)

	orch := newTestOrchestrator(t, orders, drivers)
	ev := domain.Event{Type: domain.EventNewOrder, OrderID: "o1", ServiceType: domain.ServiceExpress}

	first := orch.Orchestrate(ctx, ev)
	require.Equal(t, domain.DecisionAssigned, first.Action)

	second := orch.Orchestrate(ctx, ev)
	require.Equal(t, domain.DecisionAssigned, second.Action)
	require.Equal(t, first.DriverID, second.DriverID)
	require.Contains(t, second.Reason, "idempotent")
}

func TestOrchestrate_UnknownEventTypeQueuesWithReason(t *testing.T) {
	ctx := context.Background()
	orders := repository.NewInMemoryOrders()
	drivers := repository.NewInMemoryDrivers()
	orch := newTestOrchestrator(t, orders, drivers)

	dec := orch.Orchestrate(ctx, domain.Event{Type: domain.EventType("NOT_A_REAL_EVENT")})
	require.Equal(t, domain.DecisionQueued, dec.Action)
	require.Equal(t, "UNKNOWN_EVENT", dec.Reason)
}

func TestOrchestrate_OverloadRejectsOnceInflightMaxed(t *testing.T) {
	ctx := context.Background()
	orders := repository.NewInMemoryOrders()
	drivers := repository.NewInMemoryDrivers()
	fc := clock.NewFakeClock(time.Now())
	orch := NewOrchestrator(Deps{Orders: orders, Drivers: drivers, Clock: fc, InflightMax: 1})

	orch.inflight = 1 // simulate a slot already held by another in-flight call
	dec := orch.Orchestrate(ctx, domain.Event{Type: domain.EventNewOrder, OrderID: "o1"})
	require.Equal(t, domain.DecisionQueued, dec.Action)
	require.Equal(t, "OVERLOAD", dec.Reason)
}

func TestOrchestrate_DriverStatusChangeReportsUndersuppliedZones(t *testing.T) {
	ctx := context.Background()
	orders := repository.NewInMemoryOrders()
	drivers := repository.NewInMemoryDrivers()
	seedDriver(drivers, "d1", domain.LatLng{Lat: 24.71, Lng: 46.67})
	orch := newTestOrchestrator(t, orders, drivers)

	dec := orch.Orchestrate(ctx, domain.Event{Type: domain.EventDriverStatusChange, DriverID: "d1"})
	require.Equal(t, domain.DecisionQueued, dec.Action)
	require.Equal(t, "d1", dec.DriverID)
	// d1 is the only driver in "central", below undersuppliedThreshold (2).
	require.Contains(t, dec.Risks, "undersupplied zones: [central]")
}

func TestOrchestrate_OrderCompletedReleasesAndMarksComplete(t *testing.T) {
	ctx := context.Background()
	orders := repository.NewInMemoryOrders()
	drivers := repository.NewInMemoryDrivers()

	seedDriver(drivers, "d1", domain.LatLng{Lat: 24.71, Lng: 46.67})
	o := &domain.Order{ID: "o1", ServiceType: domain.ServiceExpress, Status: domain.OrderDeliveryInProgress, AssignedDriverID: "d1"}
	orders.Put(o)

	orch := newTestOrchestrator(t, orders, drivers)
	dec := orch.Orchestrate(ctx, domain.Event{Type: domain.EventOrderCompleted, OrderID: "o1"})

	require.Equal(t, domain.DecisionQueued, dec.Action)
	require.Equal(t, "d1", dec.DriverID)

	got, err := orders.GetByID(ctx, "o1")
	require.NoError(t, err)
	require.Equal(t, domain.OrderCompleted, got.Status)
}

func TestOrchestrate_InternalReassignPicksAnotherDriver(t *testing.T) {
	ctx := context.Background()
	orders := repository.NewInMemoryOrders()
	drivers := repository.NewInMemoryDrivers()

	now := time.Date(2026, 8, 2, 10, 0, 0, 0, time.UTC)
	seedDriver(drivers, "d1", domain.LatLng{Lat: 24.71, Lng: 46.67, At: now})
	seedDriver(drivers, "d2", domain.LatLng{Lat: 24.711, Lng: 46.672, At: now})

	o := &domain.Order{ID: "o1", ServiceType: domain.ServiceExpress, Status: domain.OrderAssigned, AssignedDriverID: "d1",
		Pickup: domain.LatLng{Lat: 24.71, Lng: 46.67}, Delivery: domain.LatLng{Lat: 24.72, Lng: 46.68}}
	orders.Put(o)

	orch := newTestOrchestrator(t, orders, drivers)
	dec := orch.Orchestrate(ctx, domain.Event{Type: domain.EventInternalReassign, OrderID: "o1",
		Payload: map[string]interface{}{"reason": "driver went offline"}})

	require.Equal(t, domain.DecisionAssigned, dec.Action)
	require.Equal(t, "d2", dec.DriverID)
}

func TestOrchestrate_InternalEscalateRaisesEscalation(t *testing.T) {
	ctx := context.Background()
	orders := repository.NewInMemoryOrders()
	drivers := repository.NewInMemoryDrivers()
	orch := newTestOrchestrator(t, orders, drivers)

	// TypeSLABreach defaults to L1; a "critical" severity bumps it one step
	// to L2, short of the L3/L4 threshold that escalates to EMERGENCY_QUEUE.
	dec := orch.Orchestrate(ctx, domain.Event{Type: domain.EventInternalEscalate, OrderID: "o1",
		Payload: map[string]interface{}{"level": "critical"}})

	require.Equal(t, domain.DecisionQueued, dec.Action)
	require.False(t, dec.RequiresManualIntervention)
	require.NotEmpty(t, orch.escalations.ActiveIDs())
}

func TestOrchestrate_SLAWarningBuildsRecoveryPlan(t *testing.T) {
	ctx := context.Background()
	orders := repository.NewInMemoryOrders()
	drivers := repository.NewInMemoryDrivers()

	o := &domain.Order{ID: "o1", ServiceType: domain.ServiceExpress, Status: domain.OrderDeliveryInProgress,
		AssignedDriverID: "d1", DeliveryAttempts: 1}
	orders.Put(o)

	orch := newTestOrchestrator(t, orders, drivers)
	dec := orch.Orchestrate(ctx, domain.Event{Type: domain.EventSLAWarning, OrderID: "o1"})

	require.Equal(t, domain.DecisionQueued, dec.Action)
	require.NotEmpty(t, dec.Recommendations)
}

func TestBuildPlan_UnknownEventReturnsError(t *testing.T) {
	_, err := BuildPlan(domain.Event{Type: domain.EventType("bogus")})
	require.ErrorIs(t, err, ErrUnknownEvent)
}

func TestBuildPlan_NewOrderStandardUsesBatchAndDemand(t *testing.T) {
	plan, err := BuildPlan(domain.Event{Type: domain.EventNewOrder, ServiceType: domain.ServiceStandard})
	require.NoError(t, err)
	require.Len(t, plan.Parallel, 3)
	require.Len(t, plan.Sequential, 2)
	require.Equal(t, TaskOrderAssignment, plan.Sequential[0].Name)
	require.Contains(t, plan.Sequential[0].Deps, TaskBatch)
}
