package fleet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/clock"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/repository"
)

func testCapacities() map[domain.VehicleType]domain.Capacity {
	return domain.DefaultCapacities()
}

func TestSnapshot_BucketsAndCapacity(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	fc := clock.NewFakeClock(now)
	drivers := repository.NewInMemoryDrivers()

	drivers.Put(&domain.Driver{
		ID: "available", VehicleType: domain.VehicleBike, Status: domain.DriverAvailable,
		Location: domain.LatLng{Lat: 24.71, Lng: 46.67, At: now}, Rating: 4.8, BarqSuccessRate: 0.95,
	})
	drivers.Put(&domain.Driver{
		ID: "offline", VehicleType: domain.VehicleCar, Status: domain.DriverAvailable,
		Location: domain.LatLng{Lat: 24.71, Lng: 46.67, At: now.Add(-10 * time.Minute)},
	})
	drivers.Put(&domain.Driver{
		ID: "onbreak", VehicleType: domain.VehicleVan, OnBreakFlag: true,
		Location: domain.LatLng{Lat: 24.71, Lng: 46.67, At: now},
	})
	drivers.Put(&domain.Driver{
		ID: "full", VehicleType: domain.VehicleBike, ActiveOrderIDs: []string{"o1", "o2", "o3", "o4", "o5", "o6", "o7", "o8"},
		Location: domain.LatLng{Lat: 24.71, Lng: 46.67, At: now},
	})
	drivers.Put(&domain.Driver{
		ID: "busy", VehicleType: domain.VehicleCar, ActiveOrderIDs: []string{"o9"},
		Location: domain.LatLng{Lat: 24.71, Lng: 46.67, At: now},
	})

	agent := NewAgent(drivers, fc, testCapacities())
	snap, err := agent.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, BucketAvailable, snap.ByID["available"].Bucket)
	require.Equal(t, BucketOffline, snap.ByID["offline"].Bucket)
	require.Equal(t, BucketBreak, snap.ByID["onbreak"].Bucket)
	require.Equal(t, BucketFull, snap.ByID["full"].Bucket)
	require.Equal(t, BucketBusy, snap.ByID["busy"].Bucket)

	require.True(t, snap.ByID["available"].ExpressCapable)
	require.Equal(t, 0, snap.ByID["full"].RemainingCapacity.Barq)
}

func TestSnapshot_ForecastCountsAvailableAndSoonFree(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	fc := clock.NewFakeClock(now)
	drivers := repository.NewInMemoryDrivers()
	drivers.Put(&domain.Driver{ID: "d1", VehicleType: domain.VehicleBike, Location: domain.LatLng{At: now}})
	drivers.Put(&domain.Driver{ID: "d2", VehicleType: domain.VehicleBike, ActiveOrderIDs: []string{"o1"}, Location: domain.LatLng{At: now}})

	agent := NewAgent(drivers, fc, testCapacities())
	snap, err := agent.Snapshot(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, snap.Forecast15Min, 1)
	require.GreaterOrEqual(t, snap.Forecast30Min, snap.Forecast15Min)
}

func TestSnapshot_FatigueAndScoreBounded(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	fc := clock.NewFakeClock(now)
	drivers := repository.NewInMemoryDrivers()
	drivers.Put(&domain.Driver{
		ID: "tired", VehicleType: domain.VehicleCar, ContinuousMinutes: 500, OrdersToday: 60,
		Location: domain.LatLng{At: now}, Rating: 3.0, Battery: 10,
	})
	agent := NewAgent(drivers, fc, testCapacities())
	snap, err := agent.Snapshot(ctx)
	require.NoError(t, err)
	d := snap.ByID["tired"]
	require.GreaterOrEqual(t, d.Fatigue, 0.0)
	require.LessOrEqual(t, d.Fatigue, 1.0)
	require.GreaterOrEqual(t, d.DriverScore, 0.0)
	require.LessOrEqual(t, d.DriverScore, 1.0)
}
