// internal_events.go handles the three event types spec §4.1 gives no DAG
// row to (ORDER_COMPLETED, INTERNAL_REASSIGN, INTERNAL_ESCALATE): each is a
// single direct operation rather than a multi-agent plan, dispatched before
// BuildPlan's generic parallel/sequential execution.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/escalation"
)

// releaser is the subset of DriverRepository bookkeeping ORDER_COMPLETED
// needs, declared locally the same way assignment.orderTracker is, so this
// package can use it when the concrete adapter supports it without widening
// ports.DriverRepository.
type releaser interface {
	ReleaseOrder(ctx context.Context, driverID, orderID string) error
}

// handleDirectEvent returns (decision, true) for the three event types that
// bypass the Plan machinery entirely, or (_, false) for everything else.
func (o *Orchestrator) handleDirectEvent(ctx context.Context, ev domain.Event) (domain.Decision, bool) {
	switch ev.Type {
	case domain.EventOrderCompleted:
		return o.handleOrderCompleted(ctx, ev), true
	case domain.EventInternalReassign:
		return o.handleInternalReassign(ctx, ev), true
	case domain.EventInternalEscalate:
		return o.handleInternalEscalate(ctx, ev), true
	default:
		return domain.Decision{}, false
	}
}

func (o *Orchestrator) handleOrderCompleted(ctx context.Context, ev domain.Event) domain.Decision {
	order, err := o.orders.GetByID(ctx, ev.OrderID)
	if err != nil || order == nil {
		return domain.Decision{Action: domain.DecisionQueued, OrderID: ev.OrderID, Reason: "order not found for completion"}
	}

	if _, err := o.orders.UpdateStatus(ctx, order.ID, domain.OrderCompleted, nil); err != nil {
		o.logger.Warn("orchestrator: failed to mark order completed", map[string]interface{}{"order_id": order.ID, "error": err.Error()})
	}

	if order.AssignedDriverID != "" {
		if rel, ok := o.drivers.(releaser); ok {
			if err := rel.ReleaseOrder(ctx, order.AssignedDriverID, order.ID); err != nil {
				o.logger.Warn("orchestrator: failed to release driver capacity", map[string]interface{}{
					"driver_id": order.AssignedDriverID, "order_id": order.ID, "error": err.Error(),
				})
			}
		}
	}

	return domain.Decision{Action: domain.DecisionQueued, OrderID: order.ID, DriverID: order.AssignedDriverID, Reason: "order completed, capacity released"}
}

// handleInternalReassign runs the assignment.Reassign protocol directly
// (spec §4.5's step 2-4), escalating via a follow-up INTERNAL_ESCALATE event
// once the failure count reaches the threshold.
func (o *Orchestrator) handleInternalReassign(ctx context.Context, ev domain.Event) domain.Decision {
	order, err := o.orders.GetByID(ctx, ev.OrderID)
	if err != nil || order == nil {
		return domain.Decision{Action: domain.DecisionQueued, OrderID: ev.OrderID, Reason: "order not found for reassignment"}
	}

	snap, locations, err := o.snapshotAndLocations(ctx, nil)
	if err != nil {
		return domain.Decision{Action: domain.DecisionFailed, OrderID: order.ID, Reason: fmt.Sprintf("fleet snapshot unavailable: %v", err), RequiresManualIntervention: true}
	}

	reason, _ := ev.Payload["reason"].(string)
	res, needsEscalation, err := o.assigner.Reassign(ctx, order, snap, locations, reason)
	if err != nil {
		return domain.Decision{Action: domain.DecisionFailed, OrderID: order.ID, Reason: fmt.Sprintf("reassignment failed: %v", err), RequiresManualIntervention: true}
	}

	if needsEscalation {
		o.Orchestrate(ctx, domain.Event{Type: domain.EventInternalEscalate, OrderID: order.ID, ServiceType: order.ServiceType,
			Payload: map[string]interface{}{"reason": "reassignment failure threshold reached", "level": "critical"}})
	}

	if !res.Decided {
		return domain.Decision{Action: domain.DecisionQueued, OrderID: order.ID, Reason: "reassignment found no eligible driver", RequiresManualIntervention: needsEscalation}
	}
	return domain.Decision{Action: domain.DecisionAssigned, OrderID: order.ID, DriverID: res.DriverID, Confidence: res.Confidence, Reason: "reassigned: " + reason}
}

// handleInternalEscalate raises an Emergency Escalation directly, without
// running the SLA_WARNING plan's fleet/sla-monitor fan-out a second time
// (the caller that raised this event already has that context).
func (o *Orchestrator) handleInternalEscalate(ctx context.Context, ev domain.Event) domain.Decision {
	severity, _ := ev.Payload["severity"].(string)
	if severity == "" {
		if lvl, ok := ev.Payload["level"].(string); ok && lvl == "critical" {
			severity = "critical"
		}
	}

	esc := o.escalations.Initiate(ctx, escalation.TypeSLABreach, severity, []string{ev.OrderID}, nil)

	dec := domain.Decision{OrderID: ev.OrderID, Reason: fmt.Sprintf("escalation %s initiated at %s", esc.ID, esc.Level)}
	if esc.Level == domain.EscalationL3 || esc.Level == domain.EscalationL4 {
		dec.Action = domain.DecisionEmergencyQueue
		dec.RequiresManualIntervention = true
	} else {
		dec.Action = domain.DecisionQueued
	}
	return dec
}
