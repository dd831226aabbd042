// Package assignment implements Order Assignment and the Reassignment
// protocol (spec §4.5, C7): candidate scoring, CAS-based atomic
// assignment with a single retry, and the SLA/Emergency-invoked
// reassignment chain with failure-count escalation. Grounded on the
// teacher's TxPipeline/WATCH CAS idiom (core/redis_registry.go),
// generalized from service registration to order assignment.
package assignment

import (
	"context"
	"sort"
	"sync"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/core"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/fleet"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/geo"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/ports"
)

// maxRadiusKm is spec §4.5's per-class search radius.
func maxRadiusKm(st domain.ServiceType) float64 {
	if st == domain.ServiceExpress {
		return 5
	}
	return 10
}

// Candidate is a scored driver for one order.
type Candidate struct {
	DriverID   string
	Score      float64
	DistanceKm float64
}

// Result is Assign/Reassign's outcome.
type Result struct {
	Decided    bool // false => QUEUED, no driver found
	DriverID   string
	Confidence float64
	Conflict   bool // true => CAS retried once and still failed
}

// Assigner implements order assignment and reassignment.
type Assigner struct {
	orders   ports.OrderRepository
	drivers  ports.DriverRepository
	notifier ports.Notifier
	logger   core.Logger

	mu             sync.Mutex
	failedAttempts map[string]int      // orderID -> reassignment failure count
	excluded       map[string][]string // orderID -> driver IDs that have already failed for it
}

func NewAssigner(orders ports.OrderRepository, drivers ports.DriverRepository) *Assigner {
	return &Assigner{
		orders:         orders,
		drivers:        drivers,
		notifier:       &noopNotifier{},
		logger:         &core.NoOpLogger{},
		failedAttempts: make(map[string]int),
		excluded:       make(map[string][]string),
	}
}

func (a *Assigner) SetLogger(l core.Logger) {
	if l == nil {
		l = &core.NoOpLogger{}
	}
	if cal, ok := l.(core.ComponentAwareLogger); ok {
		a.logger = cal.WithComponent("agent/order-assignment")
		return
	}
	a.logger = l
}

// SetNotifier injects the Notifier used for the post-assignment side
// effects spec §4.5 step 4 names: telling the old driver their order was
// removed, the new driver it was assigned, and ops that a (re)assignment
// happened. Left unset, assignment runs with a no-op Notifier rather than a
// nil one.
func (a *Assigner) SetNotifier(n ports.Notifier) {
	if n == nil {
		n = &noopNotifier{}
	}
	a.notifier = n
}

// noopNotifier is Assigner's zero-value Notifier, the same "safe default
// instead of nil" convention every other port-holding field in this
// codebase follows (core.NoOpLogger, core.NoOpTelemetry).
type noopNotifier struct{}

func (noopNotifier) SMS(ctx context.Context, phone, msg string) error           { return nil }
func (noopNotifier) Email(ctx context.Context, to, subject, body string) error  { return nil }
func (noopNotifier) InApp(ctx context.Context, userID string, payload map[string]interface{}) error {
	return nil
}
func (noopNotifier) Voice(ctx context.Context, phone, msg string) error { return nil }

// Score implements spec §4.5: driverScore × distanceFactor × etaFactor.
// etaFactor is this module's resolution of an underspecified term in the
// source formula (spec §9 OQ-style gap): 1.0 for an immediately available
// driver, decaying linearly to 0 as EstimatedFreeInMin approaches a
// 30-minute horizon for a busy-but-capacitated driver.
func Score(state fleet.DriverState, driverLoc domain.LatLng, order *domain.Order) (float64, float64) {
	distanceKm := geo.HaversineKm(driverLoc.Lat, driverLoc.Lng, order.Pickup.Lat, order.Pickup.Lng)
	radius := maxRadiusKm(order.ServiceType)
	distanceFactor := 1 - distanceKm/radius
	if distanceFactor < 0 {
		distanceFactor = 0
	}

	etaFactor := 1.0
	if state.Bucket == fleet.BucketBusy {
		etaFactor = 1 - state.EstimatedFreeInMin/30.0
		if etaFactor < 0 {
			etaFactor = 0
		}
	}

	return state.DriverScore * distanceFactor * etaFactor, distanceKm
}

// eligible reports whether a driver can carry order at all: not
// offline/break/full, and capacity-gated for EXPRESS per spec §4.2's SLA
// capability rule.
func eligible(state fleet.DriverState, order *domain.Order) bool {
	if state.Bucket == fleet.BucketOffline || state.Bucket == fleet.BucketBreak || state.Bucket == fleet.BucketFull {
		return false
	}
	if order.ServiceType == domain.ServiceExpress {
		if !state.ExpressCapable || state.RemainingCapacity.Barq <= 0 {
			return false
		}
	} else if state.RemainingCapacity.Bullet <= 0 {
		return false
	}
	return true
}

// Rank returns every eligible candidate for order, scored and sorted
// descending, excluding any driver ID in exclude.
func Rank(snapshot *fleet.FleetSnapshot, locations map[string]domain.LatLng, order *domain.Order, exclude map[string]bool) []Candidate {
	var candidates []Candidate
	for _, state := range snapshot.Drivers {
		if exclude[state.DriverID] {
			continue
		}
		if !eligible(state, order) {
			continue
		}
		loc, ok := locations[state.DriverID]
		if !ok {
			continue
		}
		score, dist := Score(state, loc, order)
		candidates = append(candidates, Candidate{DriverID: state.DriverID, Score: score, DistanceKm: dist})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	return candidates
}

// Assign picks the best candidate for order and CASes it in (spec §4.5's
// "Assignment" + "Atomicity"). It retries once against a fresh snapshot
// supplied by refresh on a CAS miss, then surfaces Conflict.
func (a *Assigner) Assign(ctx context.Context, order *domain.Order, snapshot *fleet.FleetSnapshot, locations map[string]domain.LatLng, refresh func(context.Context) (*fleet.FleetSnapshot, map[string]domain.LatLng, error)) (Result, error) {
	candidates := Rank(snapshot, locations, order, nil)
	if len(candidates) == 0 {
		return Result{Decided: false}, nil
	}

	best := candidates[0]
	res, err := a.orders.CASAssignedDriver(ctx, order.ID, order.AssignedDriverID, best.DriverID)
	if err != nil {
		return Result{}, err
	}
	if res.OK {
		a.trackAssignment(ctx, "", best.DriverID, order.ID, "assignment")
		return Result{Decided: true, DriverID: best.DriverID, Confidence: best.Score}, nil
	}

	if refresh == nil {
		return Result{Conflict: true}, nil
	}
	freshSnap, freshLocs, err := refresh(ctx)
	if err != nil {
		return Result{}, err
	}
	fresh, err := a.orders.GetByID(ctx, order.ID)
	if err != nil {
		return Result{}, err
	}
	candidates = Rank(freshSnap, freshLocs, fresh, nil)
	if len(candidates) == 0 {
		return Result{Decided: false}, nil
	}
	best = candidates[0]
	res, err = a.orders.CASAssignedDriver(ctx, order.ID, fresh.AssignedDriverID, best.DriverID)
	if err != nil {
		return Result{}, err
	}
	if !res.OK {
		return Result{Conflict: true}, nil
	}
	a.trackAssignment(ctx, "", best.DriverID, order.ID, "assignment")
	return Result{Decided: true, DriverID: best.DriverID, Confidence: best.Score}, nil
}

// orderTracker is the subset of AssignOrder/ReleaseOrder bookkeeping the
// in-memory and Redis DriverRepository adapters both expose, kept outside
// ports.DriverRepository (spec §6's fixed interface) so assignment can use
// it when available without widening the port every adapter must satisfy.
type orderTracker interface {
	AssignOrder(ctx context.Context, driverID, orderID string) error
	ReleaseOrder(ctx context.Context, driverID, orderID string) error
}

func (a *Assigner) trackAssignment(ctx context.Context, oldDriverID, newDriverID, orderID, reason string) {
	_ = a.drivers.UpdateStatus(ctx, newDriverID, domain.DriverBusy)
	if tracker, ok := a.drivers.(orderTracker); ok {
		if oldDriverID != "" {
			_ = tracker.ReleaseOrder(ctx, oldDriverID, orderID)
		}
		_ = tracker.AssignOrder(ctx, newDriverID, orderID)
	}
	a.notifyAssignment(ctx, oldDriverID, newDriverID, orderID, reason)
}

// notifyAssignment is spec §4.5 step 4: "notify old driver (removed), new
// driver (assigned), ops (reassignment)". Driver-facing notifications go
// through the in-app channel keyed by driver ID; ops gets the same channel
// keyed by a fixed "ops" recipient since spec §6 names no separate ops
// transport. A Notifier failure is logged and never propagated — it must
// not undo an already-committed CAS assignment.
func (a *Assigner) notifyAssignment(ctx context.Context, oldDriverID, newDriverID, orderID, reason string) {
	if oldDriverID != "" {
		if err := a.notifier.InApp(ctx, oldDriverID, map[string]interface{}{
			"event": "order_removed", "orderId": orderID, "reason": reason,
		}); err != nil {
			a.logger.Warn("assignment: failed to notify previous driver", map[string]interface{}{
				"order_id": orderID, "driver_id": oldDriverID, "error": err.Error(),
			})
		}
	}
	if err := a.notifier.InApp(ctx, newDriverID, map[string]interface{}{
		"event": "order_assigned", "orderId": orderID, "reason": reason,
	}); err != nil {
		a.logger.Warn("assignment: failed to notify new driver", map[string]interface{}{
			"order_id": orderID, "driver_id": newDriverID, "error": err.Error(),
		})
	}
	if oldDriverID != "" {
		if err := a.notifier.InApp(ctx, "ops", map[string]interface{}{
			"event": "reassignment", "orderId": orderID, "fromDriver": oldDriverID, "toDriver": newDriverID, "reason": reason,
		}); err != nil {
			a.logger.Warn("assignment: failed to notify ops of reassignment", map[string]interface{}{
				"order_id": orderID, "error": err.Error(),
			})
		}
	}
}

// ShouldReassign implements spec §4.5 step 1.
func (a *Assigner) ShouldReassign(order *domain.Order, reassignLocked bool) bool {
	if order.Status == domain.OrderCompleted || order.Status == domain.OrderCancelled {
		return false
	}
	if reassignLocked {
		return false
	}
	return a.FailedAttempts(order.ID) < 3
}

func (a *Assigner) FailedAttempts(orderID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failedAttempts[orderID]
}

// Reassign runs spec §4.5's protocol steps 2-4: find the best candidate
// excluding the current driver and any driver previously failed for this
// order, CAS-swap, and track failures. needsEscalation is true once
// failedAttempts reaches 3 (caller should raise INTERNAL_ESCALATE).
func (a *Assigner) Reassign(ctx context.Context, order *domain.Order, snapshot *fleet.FleetSnapshot, locations map[string]domain.LatLng, reason string) (res Result, needsEscalation bool, err error) {
	a.mu.Lock()
	exclude := map[string]bool{order.AssignedDriverID: true}
	for _, id := range a.excluded[order.ID] {
		exclude[id] = true
	}
	a.mu.Unlock()

	candidates := Rank(snapshot, locations, order, exclude)
	if len(candidates) == 0 {
		a.recordFailure(order.ID, order.AssignedDriverID)
		return Result{Decided: false}, a.FailedAttempts(order.ID) >= 3, nil
	}

	best := candidates[0]
	old := order.AssignedDriverID
	casRes, err := a.orders.CASAssignedDriver(ctx, order.ID, old, best.DriverID)
	if err != nil {
		return Result{}, false, err
	}
	if !casRes.OK {
		a.recordFailure(order.ID, best.DriverID)
		return Result{Conflict: true}, a.FailedAttempts(order.ID) >= 3, nil
	}

	a.trackAssignment(ctx, old, best.DriverID, order.ID, reason)

	a.logger.Info("order reassigned", map[string]interface{}{
		"order_id": order.ID, "from_driver": old, "to_driver": best.DriverID, "reason": reason,
	})
	return Result{Decided: true, DriverID: best.DriverID, Confidence: best.Score}, false, nil
}

func (a *Assigner) recordFailure(orderID, driverID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failedAttempts[orderID]++
	if driverID != "" {
		a.excluded[orderID] = append(a.excluded[orderID], driverID)
	}
}
