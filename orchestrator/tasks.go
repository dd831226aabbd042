package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/assignment"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/demandctx"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/escalation"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/fleet"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/geo"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/ports"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/routeopt"
)

// errNoOrder signals a task that requires a resolved Order was run without
// one (an event referencing an order ID the repository doesn't have).
var errNoOrder = errors.New("orchestrator: task requires an order but none was resolved")

// AgentResult is one task's outcome within a Plan, isolated from its
// siblings: a failed task never prevents a dependent's own Run call, only
// withholds data that dependent would otherwise have read out of results.
type AgentResult struct {
	Name     TaskName
	Data     interface{}
	Err      error
	Duration time.Duration
}

// rebalanceAdvice is fleet-rebalancer's output: zones whose available-driver
// count has dropped low enough to flag for reinforcement.
type rebalanceAdvice struct {
	UndersuppliedZones []string
}

// recoveryOutcome bundles an Order Recovery plan with its confidence, the
// shape order-recovery tasks hand back to the aggregator.
type recoveryOutcome struct {
	FailureType escalation.FailureType
	Plan        []escalation.Strategy
	Probability float64
}

const undersuppliedThreshold = 2

// run dispatches a single named task. It never panics outward — Orchestrate
// wraps the whole plan execution in its own recover(), but each task is also
// simple enough that only data it was given (never reflection/unsafe) drives
// its logic.
func (o *Orchestrator) run(ctx context.Context, name TaskName, ev domain.Event, order *domain.Order, results map[TaskName]AgentResult) AgentResult {
	start := o.clk.Now()
	data, err := o.dispatch(ctx, name, ev, order, results)
	return AgentResult{Name: name, Data: data, Err: err, Duration: o.clk.Now().Sub(start)}
}

func (o *Orchestrator) dispatch(ctx context.Context, name TaskName, ev domain.Event, order *domain.Order, results map[TaskName]AgentResult) (interface{}, error) {
	switch name {
	case TaskFleet:
		return o.fleet.Snapshot(ctx)

	case TaskFleetRebalancer:
		snap, err := o.fleet.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		return rebalanceFromSnapshot(snap), nil

	case TaskSLAFeasibility, TaskSLAMonitor:
		if order == nil {
			return nil, errNoOrder
		}
		return o.sla.Evaluate(order, o.clk.Now()), nil

	case TaskGeo:
		if order == nil {
			return nil, errNoOrder
		}
		return o.geoProvider.Context(geo.Point{Lat: order.Pickup.Lat, Lng: order.Pickup.Lng}), nil

	case TaskBatch:
		pending, err := o.orders.GetActive(ctx, ports.OrderFilter{ServiceType: ev.ServiceType})
		if err != nil {
			return nil, err
		}
		return o.batchProvider.Group(pending), nil

	case TaskDemand:
		return o.demandProvider.Snapshot(ctx, o.clk.Now())

	case TaskOrderAssignment:
		return o.runAssignment(ctx, order, results)

	case TaskRouteOptimization:
		return o.runRouteOpt(ctx, order, results)

	case TaskEmergencyEscalation:
		return o.runEscalation(ctx, ev, order, results)

	case TaskOrderRecovery:
		return o.runRecovery(ctx, ev, order, results)

	default:
		return nil, ErrUnknownEvent
	}
}

func rebalanceFromSnapshot(snap *fleet.FleetSnapshot) rebalanceAdvice {
	var advice rebalanceAdvice
	for zone, count := range snap.ZoneDistribution {
		if count < undersuppliedThreshold {
			advice.UndersuppliedZones = append(advice.UndersuppliedZones, zone)
		}
	}
	return advice
}

// runAssignment invokes assignment.Assigner.Assign using the fleet snapshot
// already collected in results (spec §4.1's order-assignment deps).
func (o *Orchestrator) runAssignment(ctx context.Context, order *domain.Order, results map[TaskName]AgentResult) (assignment.Result, error) {
	snap, locations, err := o.snapshotAndLocations(ctx, results)
	if err != nil {
		return assignment.Result{}, err
	}
	refresh := func(rctx context.Context) (*fleet.FleetSnapshot, map[string]domain.LatLng, error) {
		return o.snapshotAndLocations(rctx, nil)
	}
	return o.assigner.Assign(ctx, order, snap, locations, refresh)
}

// snapshotAndLocations reuses a fleet result already present in results when
// available (the common case — "fleet" always runs in the same plan's
// parallel phase), otherwise takes a fresh one.
func (o *Orchestrator) snapshotAndLocations(ctx context.Context, results map[TaskName]AgentResult) (*fleet.FleetSnapshot, map[string]domain.LatLng, error) {
	var snap *fleet.FleetSnapshot
	if results != nil {
		if r, ok := results[TaskFleet]; ok && r.Err == nil {
			if s, ok := r.Data.(*fleet.FleetSnapshot); ok {
				snap = s
			}
		}
	}
	if snap == nil {
		s, err := o.fleet.Snapshot(ctx)
		if err != nil {
			return nil, nil, err
		}
		snap = s
	}

	drivers, err := o.drivers.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	locations := make(map[string]domain.LatLng, len(drivers))
	for _, d := range drivers {
		locations[d.ID] = d.Location
	}
	return snap, locations, nil
}

// runRouteOpt builds a route for whichever driver order-assignment just
// picked (or the order's already-assigned driver). For BATCH_OPTIMIZATION,
// where there is no single order in play, it instead routes the first
// non-empty zone batch "batch" produced against that zone's best-scored
// available driver (spec §4.1's BATCH_OPTIMIZATION row's route-opt step).
func (o *Orchestrator) runRouteOpt(ctx context.Context, order *domain.Order, results map[TaskName]AgentResult) (*domain.Route, error) {
	if order == nil {
		return o.runBatchRouteOpt(ctx, results)
	}

	driverID := ""
	if r, ok := results[TaskOrderAssignment]; ok && r.Err == nil {
		if ar, ok := r.Data.(assignment.Result); ok && ar.Decided {
			driverID = ar.DriverID
		}
	}
	if driverID == "" {
		driverID = order.AssignedDriverID
	}
	if driverID == "" {
		return nil, errNoOrder
	}

	driver, err := o.drivers.GetByID(ctx, driverID)
	if err != nil {
		return nil, err
	}

	now := o.clk.Now()
	route := o.routeEngine.Optimize(ctx, routeopt.OptimizeInput{
		DriverID: driverID,
		Start:    driver.Location,
		Orders:   []*domain.Order{order},
		Now:      now,
	})
	o.applyTraffic(route, now)
	return route, nil
}

func (o *Orchestrator) runBatchRouteOpt(ctx context.Context, results map[TaskName]AgentResult) (*domain.Route, error) {
	br, ok := results[TaskBatch]
	if !ok || br.Err != nil {
		return nil, errNoOrder
	}
	groups, ok := br.Data.([]demandctx.BatchGroup)
	if !ok {
		return nil, errNoOrder
	}
	var group demandctx.BatchGroup
	found := false
	for _, g := range groups {
		if len(g.Orders) > 0 {
			group, found = g, true
			break
		}
	}
	if !found {
		return nil, errNoOrder
	}

	snap, locations, err := o.snapshotAndLocations(ctx, results)
	if err != nil {
		return nil, err
	}
	candidates := assignment.Rank(snap, locations, group.Orders[0], nil)
	if len(candidates) == 0 {
		return nil, errNoOrder
	}
	driverID := candidates[0].DriverID
	driver, err := o.drivers.GetByID(ctx, driverID)
	if err != nil {
		return nil, err
	}

	now := o.clk.Now()
	route := o.routeEngine.Optimize(ctx, routeopt.OptimizeInput{
		DriverID: driverID,
		Start:    driver.Location,
		Orders:   group.Orders,
		Now:      now,
	})
	o.applyTraffic(route, now)
	return route, nil
}

// applyTraffic is the "geo"/"traffic" context provider's one effect on a
// built route (spec §4.4's "Traffic adjustment multiplies duration by
// 1.2..."): each segment's duration is scaled by the traffic condition at
// its origin and the hour the route was built, and the condition label is
// recorded on the segment for downstream ETA display.
func (o *Orchestrator) applyTraffic(route *domain.Route, now time.Time) {
	if route == nil {
		return
	}
	adjusted := 0.0
	for i := range route.Segments {
		seg := &route.Segments[i]
		cond := o.trafficProvider.ConditionFor(geo.Point{Lat: seg.From.Lat, Lng: seg.From.Lng}, now)
		seg.Traffic = cond.Label
		seg.DurationMin *= cond.Multiplier
		adjusted += seg.DurationMin
	}
	if len(route.Segments) > 0 {
		route.TotalDurationMin = adjusted
	}
}

// runEscalation initiates a new SLA-breach emergency for an at-risk order
// (spec §4.1's SLA_WARNING row). It does not look up or escalate an
// escalation already open for the order.
func (o *Orchestrator) runEscalation(ctx context.Context, ev domain.Event, order *domain.Order, results map[TaskName]AgentResult) (*domain.Escalation, error) {
	var status domain.SLAStatus
	if r, ok := results[TaskSLAMonitor]; ok && r.Err == nil {
		if s, ok := r.Data.(domain.SLAStatus); ok {
			status = s
		}
	}

	severity := ""
	if status.Category == domain.SLABreached {
		severity = "critical"
	}

	affected := []string{ev.OrderID}
	esc := o.escalations.Initiate(ctx, escalation.TypeSLABreach, severity, affected, nil)
	return esc, nil
}

// runRecovery builds an Order Recovery plan off the escalation this event's
// plan already raised (SLA_WARNING) or, for DRIVER_STATUS_CHANGE, off the
// driver-unavailable failure type the caller resolved before appending this
// step to the plan.
func (o *Orchestrator) runRecovery(ctx context.Context, ev domain.Event, order *domain.Order, results map[TaskName]AgentResult) (recoveryOutcome, error) {
	failureType := escalation.FailureSLABreachRisk
	if ev.Type == domain.EventDriverStatusChange {
		failureType = escalation.FailureDriverUnavailable
	}

	attempts := 0
	if order != nil {
		attempts = order.DeliveryAttempts
	}

	plan := escalation.Plan(failureType, order, attempts, false)
	prob := escalation.SuccessProbability(plan, attempts)
	plan = escalation.WithEscalateIfLowConfidence(plan, prob)

	o.notifyForPlan(ctx, order, plan)

	return recoveryOutcome{FailureType: failureType, Plan: plan, Probability: prob}, nil
}

// notifyForPlan executes the contact-customer side of a recovery plan
// through the Notifier port (spec §7: a Notifier failure never fails the
// agent that triggered it, so every error here is only logged).
func (o *Orchestrator) notifyForPlan(ctx context.Context, order *domain.Order, plan []escalation.Strategy) {
	if order == nil {
		return
	}
	for _, s := range plan {
		var err error
		switch s.Kind {
		case escalation.StrategyContactCall, escalation.StrategyCustomerCall:
			if order.CustomerPhone != "" {
				err = o.notifier.Voice(ctx, order.CustomerPhone, "We're working on your order "+order.ID)
			}
		case escalation.StrategyContactSMS, escalation.StrategyNotifyCustomer:
			if order.CustomerPhone != "" {
				err = o.notifier.SMS(ctx, order.CustomerPhone, "Update on your order "+order.ID)
			}
		case escalation.StrategyContactInApp:
			if order.CustomerUserID != "" {
				err = o.notifier.InApp(ctx, order.CustomerUserID, map[string]interface{}{"orderId": order.ID, "strategy": string(s.Kind)})
			}
		}
		if err != nil {
			o.logger.Warn("orchestrator: recovery notification failed", map[string]interface{}{
				"order_id": order.ID, "strategy": string(s.Kind), "error": err.Error(),
			})
		}
	}
}

