package repository

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/ports"
)

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisOrders_CASAssignedDriver(t *testing.T) {
	ctx := context.Background()
	client := newTestRedisClient(t)
	repo := NewRedisOrders(client, "test")

	o := &domain.Order{ID: "o1", ServiceType: domain.ServiceExpress, Status: domain.OrderPending}
	require.NoError(t, repo.Put(ctx, o))

	res, err := repo.CASAssignedDriver(ctx, "o1", "", "d1")
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Equal(t, "d1", res.Updated.AssignedDriverID)
	require.Equal(t, domain.OrderAssigned, res.Updated.Status)

	// A second CAS expecting the stale "" value must miss.
	res2, err := repo.CASAssignedDriver(ctx, "o1", "", "d2")
	require.NoError(t, err)
	require.False(t, res2.OK)

	// CAS with the correct expected driver (reassign) succeeds.
	res3, err := repo.CASAssignedDriver(ctx, "o1", "d1", "d2")
	require.NoError(t, err)
	require.True(t, res3.OK)
	require.Equal(t, "d2", res3.Updated.AssignedDriverID)
}

func TestRedisOrders_GetActiveFiltersTerminal(t *testing.T) {
	ctx := context.Background()
	client := newTestRedisClient(t)
	repo := NewRedisOrders(client, "test")

	require.NoError(t, repo.Put(ctx, &domain.Order{ID: "o1", ServiceType: domain.ServiceExpress, Status: domain.OrderPending}))
	require.NoError(t, repo.Put(ctx, &domain.Order{ID: "o2", ServiceType: domain.ServiceStandard, Status: domain.OrderCompleted}))

	active, err := repo.GetActive(ctx, ports.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "o1", active[0].ID)
}

func TestRedisOrders_UpdateStatusNotFound(t *testing.T) {
	ctx := context.Background()
	client := newTestRedisClient(t)
	repo := NewRedisOrders(client, "test")

	_, err := repo.UpdateStatus(ctx, "missing", domain.OrderCompleted, nil)
	require.Error(t, err)
}

func TestRedisDrivers_AssignReleaseOrder(t *testing.T) {
	ctx := context.Background()
	client := newTestRedisClient(t)
	repo := NewRedisDrivers(client, "test")

	require.NoError(t, repo.Put(ctx, &domain.Driver{ID: "d1", VehicleType: domain.VehicleBike, Status: domain.DriverAvailable}))
	require.NoError(t, repo.AssignOrder(ctx, "d1", "o1"))

	d, err := repo.GetByID(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, []string{"o1"}, d.ActiveOrderIDs)

	require.NoError(t, repo.ReleaseOrder(ctx, "d1", "o1"))
	d, err = repo.GetByID(ctx, "d1")
	require.NoError(t, err)
	require.Empty(t, d.ActiveOrderIDs)
}

func TestRedisDrivers_List(t *testing.T) {
	ctx := context.Background()
	client := newTestRedisClient(t)
	repo := NewRedisDrivers(client, "test")

	require.NoError(t, repo.Put(ctx, &domain.Driver{ID: "d1", VehicleType: domain.VehicleCar}))
	require.NoError(t, repo.Put(ctx, &domain.Driver{ID: "d2", VehicleType: domain.VehicleVan}))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
}
