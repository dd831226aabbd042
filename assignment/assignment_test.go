package assignment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/clock"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/fleet"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/repository"
)

func snapshotFor(t *testing.T, drivers *repository.InMemoryDrivers) (*fleet.FleetSnapshot, map[string]domain.LatLng) {
	t.Helper()
	fc := clock.NewFakeClock(time.Now())
	agent := fleet.NewAgent(drivers, fc, domain.DefaultCapacities())
	snap, err := agent.Snapshot(context.Background())
	require.NoError(t, err)

	locs := map[string]domain.LatLng{}
	all, _ := drivers.List(context.Background())
	for _, d := range all {
		locs[d.ID] = d.Location
	}
	return snap, locs
}

func TestAssign_PicksHighestScoringDriver(t *testing.T) {
	ctx := context.Background()
	orders := repository.NewInMemoryOrders()
	drivers := repository.NewInMemoryDrivers()

	now := time.Now()
	drivers.Put(&domain.Driver{ID: "near", VehicleType: domain.VehicleBike, Rating: 4.9, BarqSuccessRate: 0.95,
		Location: domain.LatLng{Lat: 24.710, Lng: 46.671, At: now}})
	drivers.Put(&domain.Driver{ID: "far", VehicleType: domain.VehicleBike, Rating: 4.9, BarqSuccessRate: 0.95,
		Location: domain.LatLng{Lat: 25.50, Lng: 47.50, At: now}})

	o := &domain.Order{ID: "o1", ServiceType: domain.ServiceExpress, Status: domain.OrderPending,
		Pickup: domain.LatLng{Lat: 24.71, Lng: 46.67}, Delivery: domain.LatLng{Lat: 24.72, Lng: 46.68}}
	orders.Put(o)

	snap, locs := snapshotFor(t, drivers)
	assigner := NewAssigner(orders, drivers)

	res, err := assigner.Assign(ctx, o, snap, locs, nil)
	require.NoError(t, err)
	require.True(t, res.Decided)
	require.Equal(t, "near", res.DriverID)
	require.GreaterOrEqual(t, res.Confidence, 0.0)
}

func TestAssign_NoCandidatesQueues(t *testing.T) {
	ctx := context.Background()
	orders := repository.NewInMemoryOrders()
	drivers := repository.NewInMemoryDrivers()
	o := &domain.Order{ID: "o1", ServiceType: domain.ServiceExpress, Status: domain.OrderPending,
		Pickup: domain.LatLng{Lat: 24.71, Lng: 46.67}}
	orders.Put(o)

	snap, locs := snapshotFor(t, drivers)
	assigner := NewAssigner(orders, drivers)
	res, err := assigner.Assign(ctx, o, snap, locs, nil)
	require.NoError(t, err)
	require.False(t, res.Decided)
}

func TestReassign_ExcludesCurrentAndFailedDrivers(t *testing.T) {
	ctx := context.Background()
	orders := repository.NewInMemoryOrders()
	drivers := repository.NewInMemoryDrivers()

	now := time.Now()
	drivers.Put(&domain.Driver{ID: "d1", VehicleType: domain.VehicleBike, Rating: 4.9, BarqSuccessRate: 0.95,
		Location: domain.LatLng{Lat: 24.71, Lng: 46.67, At: now}})
	drivers.Put(&domain.Driver{ID: "d2", VehicleType: domain.VehicleBike, Rating: 4.9, BarqSuccessRate: 0.95,
		Location: domain.LatLng{Lat: 24.711, Lng: 46.672, At: now}})

	o := &domain.Order{ID: "o1", ServiceType: domain.ServiceExpress, Status: domain.OrderAssigned, AssignedDriverID: "d1",
		Pickup: domain.LatLng{Lat: 24.71, Lng: 46.67}, Delivery: domain.LatLng{Lat: 24.72, Lng: 46.68}}
	orders.Put(o)

	snap, locs := snapshotFor(t, drivers)
	assigner := NewAssigner(orders, drivers)

	res, escalate, err := assigner.Reassign(ctx, o, snap, locs, "sla critical")
	require.NoError(t, err)
	require.False(t, escalate)
	require.True(t, res.Decided)
	require.Equal(t, "d2", res.DriverID)

	got, err := orders.GetByID(ctx, "o1")
	require.NoError(t, err)
	require.Equal(t, "d2", got.AssignedDriverID)
}

func TestReassign_EscalatesAfterThreeFailures(t *testing.T) {
	ctx := context.Background()
	orders := repository.NewInMemoryOrders()
	drivers := repository.NewInMemoryDrivers()
	o := &domain.Order{ID: "o1", ServiceType: domain.ServiceExpress, Status: domain.OrderAssigned, AssignedDriverID: "d1",
		Pickup: domain.LatLng{Lat: 24.71, Lng: 46.67}}
	orders.Put(o)

	snap, locs := snapshotFor(t, drivers) // no other drivers available
	assigner := NewAssigner(orders, drivers)

	var escalate bool
	for i := 0; i < 3; i++ {
		_, escalate, _ = assigner.Reassign(ctx, o, snap, locs, "retry")
	}
	require.True(t, escalate)
}
