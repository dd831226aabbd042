package demandctx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/geo"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/repository"
)

func TestDemandProvider_Snapshot_BucketsByZoneAndLevel(t *testing.T) {
	orders := repository.NewInMemoryOrders()
	for i := 0; i < 6; i++ {
		orders.Put(&domain.Order{ID: "exp-" + itoa(i), ServiceType: domain.ServiceExpress, Status: domain.OrderPending,
			Pickup: domain.LatLng{Lat: 24.71, Lng: 46.67}})
	}
	orders.Put(&domain.Order{ID: "std-1", ServiceType: domain.ServiceStandard, Status: domain.OrderPending,
		Pickup: domain.LatLng{Lat: 24.40, Lng: 46.60}})

	p := NewDemandProvider(orders, nil, nil)
	snap, err := p.Snapshot(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 7, snap.TotalActive)
	require.Equal(t, 6, snap.TotalExpress)

	central := snap.ByZone["central"]
	require.Equal(t, 6, central.ActiveOrders)
	require.Equal(t, DemandModerate, central.Level)
}

func TestTrafficProvider_PeakHoursEscalateCondition(t *testing.T) {
	p := NewTrafficProvider(nil)
	point := geo.Point{Lat: 24.70, Lng: 46.70} // central zone

	offPeak := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	peak := time.Date(2026, 1, 1, 18, 0, 0, 0, time.UTC)

	require.Equal(t, "light", p.ConditionFor(point, offPeak).Label)
	require.Equal(t, "heavy", p.ConditionFor(point, peak).Label)
}

func TestBatchProvider_GroupsByZoneDeterministically(t *testing.T) {
	orders := []*domain.Order{
		{ID: "a", Pickup: domain.LatLng{Lat: 24.70, Lng: 46.70}}, // central
		{ID: "b", Pickup: domain.LatLng{Lat: 24.40, Lng: 46.60}}, // south
	}
	p := NewBatchProvider(nil)
	groups := p.Group(orders)
	require.Len(t, groups, 2)
	require.Equal(t, "central", groups[0].Zone)
	require.Equal(t, "south", groups[1].Zone)
}

func TestGeoProvider_ContextReturnsDistancesToAllZones(t *testing.T) {
	p := NewGeoProvider(nil)
	ctx := p.Context(geo.Point{Lat: 24.70, Lng: 46.70})
	require.Equal(t, "central", ctx.Zone)
	require.Len(t, ctx.DistanceToZones, len(geo.DefaultZones()))
}

func itoa(n int) string {
	digits := "0123456789"
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{digits[n%10]}, b...)
		n /= 10
	}
	return string(b)
}
