// aggregate.go implements spec §4.1's per-event-type result aggregation:
// turning a Plan's completed AgentResults into the single Decision
// Orchestrate returns. Grounded on the teacher's pkg/orchestration.
// ResponseSynthesizer, which folds many StepResults into one
// SynthesizedResponse — this keeps that shape, swapping natural-language
// synthesis for the fixed DecisionAction table.
package orchestrator

import (
	"fmt"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/assignment"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
)

// aggregate implements the "If any critical agent failed... emit
// action=FAILED" rule ahead of every event-specific branch, then dispatches
// per event type.
func (o *Orchestrator) aggregate(ev domain.Event, order *domain.Order, results map[TaskName]AgentResult) domain.Decision {
	dec := domain.Decision{OrderID: ev.OrderID}

	for name := range criticalAgents {
		if r, ok := results[name]; ok && r.Err != nil {
			dec.Action = domain.DecisionFailed
			dec.Reason = fmt.Sprintf("critical agent %s failed: %v", name, r.Err)
			dec.RequiresManualIntervention = true
			return dec
		}
	}

	switch ev.Type {
	case domain.EventNewOrder:
		return o.aggregateNewOrder(dec, results)
	case domain.EventSLAWarning:
		return o.aggregateSLAWarning(dec, results)
	case domain.EventDriverStatusChange:
		return o.aggregateDriverStatusChange(ev, dec, results)
	case domain.EventBatchOptimization:
		return o.aggregateBatch(dec, results)
	default:
		dec.Action = domain.DecisionQueued
		dec.Reason = "no aggregation rule for this event type"
		return dec
	}
}

// aggregateNewOrder implements spec §4.1's NEW_ORDER outcome table:
// ASSIGNED when both assignment and routing succeed, ASSIGNED_PENDING_ROUTE
// when assignment succeeds but routing doesn't, QUEUED when no eligible
// driver was found.
func (o *Orchestrator) aggregateNewOrder(dec domain.Decision, results map[TaskName]AgentResult) domain.Decision {
	ar, ok := results[TaskOrderAssignment]
	if !ok || ar.Err != nil {
		dec.Action = domain.DecisionQueued
		dec.Reason = "order-assignment unavailable"
		return dec
	}
	res, ok := ar.Data.(assignment.Result)
	if !ok || !res.Decided {
		dec.Action = domain.DecisionQueued
		dec.Reason = "no eligible driver found within search radius"
		return dec
	}

	dec.DriverID = res.DriverID
	dec.Confidence = res.Confidence

	rr, ok := results[TaskRouteOptimization]
	if !ok || rr.Err != nil {
		dec.Action = domain.DecisionAssignedPendingRoute
		dec.Reason = "route optimization unavailable"
		return dec
	}
	route, ok := rr.Data.(*domain.Route)
	if !ok || route == nil {
		dec.Action = domain.DecisionAssignedPendingRoute
		dec.Reason = "route optimization returned no route"
		return dec
	}

	dec.Action = domain.DecisionAssigned
	dec.Route = route
	if route.Quality == domain.QualityFallback {
		dec.Risks = append(dec.Risks, "route degraded to fallback quality")
	}
	return dec
}

// aggregateSLAWarning folds the escalation raised and the recovery plan
// built off it into one Decision; a low-confidence recovery plan flags
// requiresManualIntervention so a human gets pulled in rather than letting
// an unlikely-to-succeed automated plan run unattended.
func (o *Orchestrator) aggregateSLAWarning(dec domain.Decision, results map[TaskName]AgentResult) domain.Decision {
	dec.Action = domain.DecisionQueued

	if er, ok := results[TaskEmergencyEscalation]; ok && er.Err == nil {
		if esc, ok := er.Data.(*domain.Escalation); ok && esc != nil {
			dec.Reason = fmt.Sprintf("escalation %s raised at %s", esc.ID, esc.Level)
			dec.Risks = append(dec.Risks, string(esc.Level))
		}
	}

	if rr, ok := results[TaskOrderRecovery]; ok && rr.Err == nil {
		if out, ok := rr.Data.(recoveryOutcome); ok {
			dec.Confidence = out.Probability
			for _, s := range out.Plan {
				dec.Recommendations = append(dec.Recommendations, string(s.Kind))
			}
			if out.Probability < 0.3 {
				dec.RequiresManualIntervention = true
			}
		}
	}
	return dec
}

// aggregateDriverStatusChange folds the fleet-rebalancer's undersupply
// advice and, when the driver went offline with active orders, the
// conditional recovery plan.
func (o *Orchestrator) aggregateDriverStatusChange(ev domain.Event, dec domain.Decision, results map[TaskName]AgentResult) domain.Decision {
	dec.Action = domain.DecisionQueued
	dec.DriverID = ev.DriverID

	if fr, ok := results[TaskFleetRebalancer]; ok && fr.Err == nil {
		if advice, ok := fr.Data.(rebalanceAdvice); ok && len(advice.UndersuppliedZones) > 0 {
			dec.Risks = append(dec.Risks, "undersupplied zones: "+fmt.Sprint(advice.UndersuppliedZones))
		}
	}

	if rr, ok := results[TaskOrderRecovery]; ok && rr.Err == nil {
		if out, ok := rr.Data.(recoveryOutcome); ok {
			dec.Reason = "driver unavailable, recovery plan built"
			dec.Confidence = out.Probability
			for _, s := range out.Plan {
				dec.Recommendations = append(dec.Recommendations, string(s.Kind))
			}
		}
	}
	return dec
}

// aggregateBatch reports the batch-grouped route built for
// BATCH_OPTIMIZATION; there is no single order or driver to assign here, so
// the Decision carries the route alone.
func (o *Orchestrator) aggregateBatch(dec domain.Decision, results map[TaskName]AgentResult) domain.Decision {
	dec.Action = domain.DecisionQueued
	dec.Reason = "batch optimization pass complete"
	if rr, ok := results[TaskRouteOptimization]; ok && rr.Err == nil {
		if route, ok := rr.Data.(*domain.Route); ok {
			dec.Route = route
		}
	}
	return dec
}
