package sla

import (
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/geo"
)

// The pending*, assignedPickupMin and pickupInProgressMin constants are the
// fixed stage-overhead minutes spec §4.3's predicted-delivery formula adds
// on top of travel legs.
const (
	pendingAckMin        = 2
	pendingDispatchMin   = 10
	pendingAssignMin     = 5
	pendingExpressExtra  = 15
	pendingStandardExtra = 25
	assignedPickupMin    = 5
	pickupInProgressMin  = 3
)

// avgTravelMinFallback is used for the "travel-to-pickup" leg of the
// assigned-stage prediction when the assigned driver's live location isn't
// available to this package (it only sees orders, not fleet state);
// grounded on the same per-stop service-time order of magnitude the fleet
// and route-optimization packages use elsewhere in this module.
const avgTravelMinFallback = 10.0

// PredictedDeliveryMin implements spec §4.3's per-status predicted delivery
// formula. driverLoc is optional (nil when the caller has no fleet
// snapshot handy); when present it sharpens the travel-leg estimates with
// a Haversine fallback duration.
func PredictedDeliveryMin(o *domain.Order, driverLoc *domain.LatLng) float64 {
	deliveryLeg := geo.DurationMinFromDistance(geo.HaversineKm(o.Pickup.Lat, o.Pickup.Lng, o.Delivery.Lat, o.Delivery.Lng))

	switch o.Status {
	case domain.OrderPending:
		extra := pendingStandardExtra
		if o.ServiceType == domain.ServiceExpress {
			extra = pendingExpressExtra
		}
		return pendingAckMin + pendingDispatchMin + pendingAssignMin + float64(extra)

	case domain.OrderAssigned:
		travel := avgTravelMinFallback
		if driverLoc != nil {
			travel = geo.DurationMinFromDistance(geo.HaversineKm(driverLoc.Lat, driverLoc.Lng, o.Pickup.Lat, o.Pickup.Lng))
		}
		return travel + assignedPickupMin + deliveryLeg

	case domain.OrderPickupInProgress:
		return pickupInProgressMin + deliveryLeg

	case domain.OrderDeliveryInProgress:
		if driverLoc != nil {
			return geo.DurationMinFromDistance(geo.HaversineKm(driverLoc.Lat, driverLoc.Lng, o.Delivery.Lat, o.Delivery.Lng))
		}
		return deliveryLeg

	default:
		return 0
	}
}
