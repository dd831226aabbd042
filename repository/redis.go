package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/core"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/ports"
)

// RedisOrders is the production OrderRepository. CASAssignedDriver uses
// client.Watch the way the teacher's RedisRegistry uses TxPipeline for its
// registration writes: read-modify-write guarded by an optimistic lock on
// the key, so two concurrent reassigns of the same order never both
// succeed (invariant I1).
type RedisOrders struct {
	client    *redis.Client
	namespace string
	logger    core.Logger
}

func NewRedisOrders(client *redis.Client, namespace string) *RedisOrders {
	if namespace == "" {
		namespace = "decisioncore"
	}
	return &RedisOrders{client: client, namespace: namespace, logger: &core.NoOpLogger{}}
}

func (r *RedisOrders) SetLogger(l core.Logger) {
	if l == nil {
		l = &core.NoOpLogger{}
	}
	if cal, ok := l.(core.ComponentAwareLogger); ok {
		r.logger = cal.WithComponent("repository/redis-orders")
		return
	}
	r.logger = l
}

func (r *RedisOrders) key(id string) string { return fmt.Sprintf("%s:order:%s", r.namespace, id) }

func (r *RedisOrders) activeSetKey() string { return fmt.Sprintf("%s:orders:active", r.namespace) }

// Put seeds/overwrites an order, adding it to the active set when it isn't
// terminal.
func (r *RedisOrders) Put(ctx context.Context, o *domain.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return core.NewError("orders.Put", core.KindInvalid, o.ID, err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key(o.ID), data, 0)
	if o.Status == domain.OrderCompleted || o.Status == domain.OrderCancelled {
		pipe.SRem(ctx, r.activeSetKey(), o.ID)
	} else {
		pipe.SAdd(ctx, r.activeSetKey(), o.ID)
	}
	_, err = pipe.Exec(ctx)
	if err != nil {
		return core.NewError("orders.Put", core.KindTransient, o.ID, err)
	}
	return nil
}

func (r *RedisOrders) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err == redis.Nil {
		return nil, core.NewError("orders.GetByID", core.KindInvalid, id, core.ErrOrderNotFound)
	}
	if err != nil {
		return nil, core.NewError("orders.GetByID", core.KindTransient, id, err)
	}
	var o domain.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, core.NewError("orders.GetByID", core.KindInvalid, id, err)
	}
	return &o, nil
}

func (r *RedisOrders) GetActive(ctx context.Context, filter ports.OrderFilter) ([]*domain.Order, error) {
	ids, err := r.client.SMembers(ctx, r.activeSetKey()).Result()
	if err != nil {
		return nil, core.NewError("orders.GetActive", core.KindTransient, "", err)
	}
	out := make([]*domain.Order, 0, len(ids))
	for _, id := range ids {
		o, err := r.GetByID(ctx, id)
		if err != nil {
			continue // stale set membership, e.g. TTL'd out underneath us
		}
		if filter.ServiceType != "" && o.ServiceType != filter.ServiceType {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (r *RedisOrders) UpdateStatus(ctx context.Context, id string, newStatus domain.OrderStatus, patch map[string]interface{}) (ports.Result, error) {
	var updated *domain.Order
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, r.key(id)).Bytes()
		if err == redis.Nil {
			return core.ErrOrderNotFound
		}
		if err != nil {
			return err
		}
		var o domain.Order
		if err := json.Unmarshal(data, &o); err != nil {
			return err
		}
		o.Status = newStatus
		applyOrderPatch(&o, patch)
		out, err := json.Marshal(&o)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.key(id), out, 0)
			if newStatus == domain.OrderCompleted || newStatus == domain.OrderCancelled {
				pipe.SRem(ctx, r.activeSetKey(), id)
			}
			return nil
		})
		updated = &o
		return err
	}

	if err := r.client.Watch(ctx, txf, r.key(id)); err != nil {
		if err == core.ErrOrderNotFound {
			return ports.Result{}, core.NewError("orders.UpdateStatus", core.KindInvalid, id, err)
		}
		return ports.Result{}, core.NewError("orders.UpdateStatus", core.KindTransient, id, err)
	}
	return ports.Result{OK: true, Updated: updated}, nil
}

// CASAssignedDriver performs the read-compare-write inside a Redis
// optimistic transaction: if another writer changes the key between Watch
// and Exec, go-redis returns redis.TxFailedErr and we report a CAS miss
// instead of retrying here (the retry-once policy lives in assignment.Assigner.Assign).
func (r *RedisOrders) CASAssignedDriver(ctx context.Context, id string, expected, next string) (ports.Result, error) {
	var result ports.Result
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, r.key(id)).Bytes()
		if err == redis.Nil {
			return core.ErrOrderNotFound
		}
		if err != nil {
			return err
		}
		var o domain.Order
		if err := json.Unmarshal(data, &o); err != nil {
			return err
		}
		if o.AssignedDriverID != expected {
			result = ports.Result{OK: false}
			return nil
		}
		o.AssignedDriverID = next
		if next != "" && o.Status == domain.OrderPending {
			o.Status = domain.OrderAssigned
		}
		out, err := json.Marshal(&o)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.key(id), out, 0)
			return nil
		})
		if err == nil {
			cp := o
			result = ports.Result{OK: true, Updated: &cp}
		}
		return err
	}

	if err := r.client.Watch(ctx, txf, r.key(id)); err != nil {
		if err == core.ErrOrderNotFound {
			return ports.Result{}, core.NewError("orders.CAS", core.KindInvalid, id, err)
		}
		if err == redis.TxFailedErr {
			return ports.Result{OK: false}, nil
		}
		return ports.Result{}, core.NewError("orders.CAS", core.KindTransient, id, err)
	}
	return result, nil
}

// RedisDrivers is the production DriverRepository, a straightforward
// JSON-per-key store (drivers have no CAS requirement in this spec, only
// Orders do — I1 is scoped to assignment).
type RedisDrivers struct {
	client    *redis.Client
	namespace string
}

func NewRedisDrivers(client *redis.Client, namespace string) *RedisDrivers {
	if namespace == "" {
		namespace = "decisioncore"
	}
	return &RedisDrivers{client: client, namespace: namespace}
}

func (r *RedisDrivers) key(id string) string { return fmt.Sprintf("%s:driver:%s", r.namespace, id) }

func (r *RedisDrivers) setKey() string { return fmt.Sprintf("%s:drivers:all", r.namespace) }

func (r *RedisDrivers) Put(ctx context.Context, d *domain.Driver) error {
	data, err := json.Marshal(d)
	if err != nil {
		return core.NewError("drivers.Put", core.KindInvalid, d.ID, err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key(d.ID), data, 0)
	pipe.SAdd(ctx, r.setKey(), d.ID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return core.NewError("drivers.Put", core.KindTransient, d.ID, err)
	}
	return nil
}

func (r *RedisDrivers) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err == redis.Nil {
		return nil, core.NewError("drivers.GetByID", core.KindInvalid, id, core.ErrDriverNotFound)
	}
	if err != nil {
		return nil, core.NewError("drivers.GetByID", core.KindTransient, id, err)
	}
	var d domain.Driver
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, core.NewError("drivers.GetByID", core.KindInvalid, id, err)
	}
	return &d, nil
}

func (r *RedisDrivers) List(ctx context.Context) ([]*domain.Driver, error) {
	ids, err := r.client.SMembers(ctx, r.setKey()).Result()
	if err != nil {
		return nil, core.NewError("drivers.List", core.KindTransient, "", err)
	}
	out := make([]*domain.Driver, 0, len(ids))
	for _, id := range ids {
		d, err := r.GetByID(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *RedisDrivers) mutate(ctx context.Context, id string, fn func(*domain.Driver)) error {
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, r.key(id)).Bytes()
		if err == redis.Nil {
			return core.ErrDriverNotFound
		}
		if err != nil {
			return err
		}
		var d domain.Driver
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		fn(&d)
		out, err := json.Marshal(&d)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.key(id), out, 0)
			return nil
		})
		return err
	}
	if err := r.client.Watch(ctx, txf, r.key(id)); err != nil {
		if err == core.ErrDriverNotFound {
			return core.NewError("drivers.mutate", core.KindInvalid, id, err)
		}
		return core.NewError("drivers.mutate", core.KindTransient, id, err)
	}
	return nil
}

func (r *RedisDrivers) UpdateLocation(ctx context.Context, id string, loc domain.LatLng) error {
	return r.mutate(ctx, id, func(d *domain.Driver) { d.Location = loc })
}

func (r *RedisDrivers) UpdateStatus(ctx context.Context, id string, status domain.DriverStatus) error {
	return r.mutate(ctx, id, func(d *domain.Driver) { d.Status = status })
}

func (r *RedisDrivers) AssignOrder(ctx context.Context, driverID, orderID string) error {
	return r.mutate(ctx, driverID, func(d *domain.Driver) {
		for _, id := range d.ActiveOrderIDs {
			if id == orderID {
				return
			}
		}
		d.ActiveOrderIDs = append(d.ActiveOrderIDs, orderID)
	})
}

func (r *RedisDrivers) ReleaseOrder(ctx context.Context, driverID, orderID string) error {
	return r.mutate(ctx, driverID, func(d *domain.Driver) {
		for i, id := range d.ActiveOrderIDs {
			if id == orderID {
				d.ActiveOrderIDs = append(d.ActiveOrderIDs[:i], d.ActiveOrderIDs[i+1:]...)
				return
			}
		}
	})
}

var _ ports.OrderRepository = (*RedisOrders)(nil)
var _ ports.DriverRepository = (*RedisDrivers)(nil)
