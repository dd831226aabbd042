// Package repository implements the OrderRepository and DriverRepository
// ports (spec §6, §2 C2) that every agent reads through. InMemoryOrders and
// InMemoryDrivers are the deterministic fakes the spec requires the core
// run against in tests (spec §1); RedisOrders and RedisDrivers (redis.go)
// are the production adapters, grounded on the teacher's
// core/redis_registry.go TxPipeline/WATCH idiom.
package repository

import (
	"context"
	"sync"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/core"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/ports"
)

// InMemoryOrders is a single-writer-per-key OrderRepository backed by a
// mutex-guarded map. CASAssignedDriver is the only mutator of
// AssignedDriverID, preserving invariant I1.
type InMemoryOrders struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
	logger core.Logger
}

func NewInMemoryOrders() *InMemoryOrders {
	return &InMemoryOrders{orders: make(map[string]*domain.Order), logger: &core.NoOpLogger{}}
}

func (r *InMemoryOrders) SetLogger(l core.Logger) {
	if l == nil {
		l = &core.NoOpLogger{}
	}
	if cal, ok := l.(core.ComponentAwareLogger); ok {
		r.logger = cal.WithComponent("repository/orders")
		return
	}
	r.logger = l
}

// Put seeds or overwrites an order wholesale; used by tests and by
// NEW_ORDER intake, never by agents mutating state.
func (r *InMemoryOrders) Put(o *domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.orders[o.ID] = &cp
}

func (r *InMemoryOrders) GetActive(ctx context.Context, filter ports.OrderFilter) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Order
	for _, o := range r.orders {
		if o.Status == domain.OrderCompleted || o.Status == domain.OrderCancelled {
			continue
		}
		if filter.ServiceType != "" && o.ServiceType != filter.ServiceType {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

func (r *InMemoryOrders) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, core.NewError("orders.GetByID", core.KindInvalid, id, core.ErrOrderNotFound)
	}
	cp := *o
	return &cp, nil
}

func (r *InMemoryOrders) UpdateStatus(ctx context.Context, id string, newStatus domain.OrderStatus, patch map[string]interface{}) (ports.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return ports.Result{}, core.NewError("orders.UpdateStatus", core.KindInvalid, id, core.ErrOrderNotFound)
	}
	o.Status = newStatus
	applyOrderPatch(o, patch)
	cp := *o
	return ports.Result{OK: true, Updated: &cp}, nil
}

// CASAssignedDriver implements the compare-and-set spec §4.5 describes:
// expected == "" matches an unassigned order, expected == oldDriverID
// matches a reassign. A mismatch returns Result{OK:false} rather than an
// error so assignment.Assigner.Assign can decide whether to retry.
func (r *InMemoryOrders) CASAssignedDriver(ctx context.Context, id string, expected, next string) (ports.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return ports.Result{}, core.NewError("orders.CAS", core.KindInvalid, id, core.ErrOrderNotFound)
	}
	if o.AssignedDriverID != expected {
		r.logger.Debug("CAS miss on order assignment", map[string]interface{}{
			"order_id": id, "expected": expected, "actual": o.AssignedDriverID,
		})
		return ports.Result{OK: false}, nil
	}
	o.AssignedDriverID = next
	if next != "" && o.Status == domain.OrderPending {
		o.Status = domain.OrderAssigned
	}
	cp := *o
	return ports.Result{OK: true, Updated: &cp}, nil
}

func applyOrderPatch(o *domain.Order, patch map[string]interface{}) {
	for k, v := range patch {
		switch k {
		case "priorityBoost":
			if n, ok := v.(int); ok {
				o.PriorityBoost = n
			}
		case "deliveryAttempts":
			if n, ok := v.(int); ok {
				o.DeliveryAttempts = n
			}
		case "slaNotified":
			if b, ok := v.(bool); ok && b {
				o.SLANotified = true // I3: monotonic, never cleared
			}
		case "delayNotified":
			if b, ok := v.(bool); ok && b {
				o.DelayNotified = true // I3
			}
		}
	}
}

// InMemoryDrivers is the DriverRepository fake/default adapter.
type InMemoryDrivers struct {
	mu      sync.RWMutex
	drivers map[string]*domain.Driver
}

func NewInMemoryDrivers() *InMemoryDrivers {
	return &InMemoryDrivers{drivers: make(map[string]*domain.Driver)}
}

func (r *InMemoryDrivers) Put(d *domain.Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	cp.ActiveOrderIDs = append([]string(nil), d.ActiveOrderIDs...)
	r.drivers[d.ID] = &cp
}

func (r *InMemoryDrivers) List(ctx context.Context) ([]*domain.Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Driver, 0, len(r.drivers))
	for _, d := range r.drivers {
		cp := *d
		cp.ActiveOrderIDs = append([]string(nil), d.ActiveOrderIDs...)
		out = append(out, &cp)
	}
	return out, nil
}

func (r *InMemoryDrivers) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[id]
	if !ok {
		return nil, core.NewError("drivers.GetByID", core.KindInvalid, id, core.ErrDriverNotFound)
	}
	cp := *d
	cp.ActiveOrderIDs = append([]string(nil), d.ActiveOrderIDs...)
	return &cp, nil
}

func (r *InMemoryDrivers) UpdateLocation(ctx context.Context, id string, loc domain.LatLng) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drivers[id]
	if !ok {
		return core.NewError("drivers.UpdateLocation", core.KindInvalid, id, core.ErrDriverNotFound)
	}
	d.Location = loc
	return nil
}

func (r *InMemoryDrivers) UpdateStatus(ctx context.Context, id string, status domain.DriverStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drivers[id]
	if !ok {
		return core.NewError("drivers.UpdateStatus", core.KindInvalid, id, core.ErrDriverNotFound)
	}
	d.Status = status
	return nil
}

// AssignOrder adds orderID to the driver's active set, used by the
// assignment package after a successful CAS (keeps I2 capacity bookkeeping
// colocated with the driver record it constrains).
func (r *InMemoryDrivers) AssignOrder(ctx context.Context, driverID, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drivers[driverID]
	if !ok {
		return core.NewError("drivers.AssignOrder", core.KindInvalid, driverID, core.ErrDriverNotFound)
	}
	for _, id := range d.ActiveOrderIDs {
		if id == orderID {
			return nil
		}
	}
	d.ActiveOrderIDs = append(d.ActiveOrderIDs, orderID)
	return nil
}

// ReleaseOrder removes orderID from the driver's active set, used on
// reassignment and order completion.
func (r *InMemoryDrivers) ReleaseOrder(ctx context.Context, driverID, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drivers[driverID]
	if !ok {
		return core.NewError("drivers.ReleaseOrder", core.KindInvalid, driverID, core.ErrDriverNotFound)
	}
	for i, id := range d.ActiveOrderIDs {
		if id == orderID {
			d.ActiveOrderIDs = append(d.ActiveOrderIDs[:i], d.ActiveOrderIDs[i+1:]...)
			break
		}
	}
	return nil
}

var _ ports.OrderRepository = (*InMemoryOrders)(nil)
var _ ports.DriverRepository = (*InMemoryDrivers)(nil)
