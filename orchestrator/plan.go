// Package orchestrator implements the Master Orchestrator (spec §4.1,
// C10): event intake, the per-event agent DAG, result aggregation, and the
// autonomous trigger/backpressure/emergency-fallback behavior around it.
// Grounded on the teacher's pkg/orchestration.{StandardOrchestrator,
// PlanExecutor,ResponseSynthesizer}: the teacher groups routing.Steps by
// Order and runs each group in parallel-then-sequential phases, checking
// dependency satisfaction before a step runs — this package keeps that
// shape exactly, replacing duck-typed AgentName/Instruction steps with the
// tagged AgentTask variant spec §9 calls for.
package orchestrator

import (
	"fmt"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
)

// TaskName is one of the eleven agent tasks the orchestrator can place in a
// plan (spec §9's "AgentTask = Fleet | SLA | Assign | Route | Batch |
// Demand | Traffic | Geo | Recover | Escalate"). Fleet and SLA each map to
// two tasks here; Traffic has no task of its own (see applyTraffic).
type TaskName string

const (
	TaskFleet              TaskName = "fleet"
	TaskFleetRebalancer    TaskName = "fleet-rebalancer"
	TaskSLAFeasibility     TaskName = "sla-feasibility"
	TaskSLAMonitor         TaskName = "sla-monitor"
	TaskGeo                TaskName = "geo"
	TaskBatch              TaskName = "batch"
	TaskDemand             TaskName = "demand"
	TaskOrderAssignment    TaskName = "order-assignment"
	TaskRouteOptimization  TaskName = "route-opt"
	TaskEmergencyEscalation TaskName = "emergency-escalation"
	TaskOrderRecovery      TaskName = "order-recovery"
)

// criticalAgents is spec §4.1's aggregation rule: "If any critical agent
// failed (order-assignment, fleet-status, sla-monitor), emit
// action=FAILED". "fleet-status" in the spec's prose is this package's
// TaskFleet — the agent is named fleet-status (C4), the task that invokes
// it is named "fleet" in the plan table, and this map keys on that name.
var criticalAgents = map[TaskName]bool{
	TaskOrderAssignment: true,
	TaskFleet:           true,
	TaskSLAMonitor:      true,
}

// TaskSpec is one node in a Plan. Priority is carried from the plan table
// (and YAML overrides) but execution does not read it. For sequential
// tasks, Deps names the
// predecessor tasks that must complete (successfully or not — failures are
// isolated, not fatal to dependents) before this one runs.
type TaskSpec struct {
	Name     TaskName
	Priority int
	Deps     []TaskName
}

// Plan is the per-event execution plan spec §4.1 describes as two phases.
type Plan struct {
	Parallel   []TaskSpec
	Sequential []TaskSpec
}

// ErrUnknownEvent signals an event type outside spec §4.1's table; the
// caller returns action=QUEUED, reason=UNKNOWN_EVENT without running any
// agent (spec §6).
var ErrUnknownEvent = fmt.Errorf("orchestrator: unknown event type")

// BuildPlan resolves event to a Plan using spec §4.1's literal table. The
// DRIVER_STATUS_CHANGE row's order-recovery step is conditional on the
// driver being offline with active orders — resolved by the caller
// (Orchestrate) from the FleetSnapshot, not from the event payload, so
// BuildPlan returns the unconditional DRIVER_STATUS_CHANGE plan and the
// caller appends order-recovery itself when that condition holds.
func BuildPlan(ev domain.Event) (Plan, error) {
	switch ev.Type {
	case domain.EventNewOrder:
		if ev.ServiceType == domain.ServiceStandard {
			return Plan{
				Parallel: []TaskSpec{{Name: TaskFleet, Priority: 1}, {Name: TaskBatch, Priority: 1}, {Name: TaskDemand, Priority: 1}},
				Sequential: []TaskSpec{
					{Name: TaskOrderAssignment, Deps: []TaskName{TaskBatch}},
					{Name: TaskRouteOptimization, Deps: []TaskName{TaskOrderAssignment}},
				},
			}, nil
		}
		// EXPRESS is NEW_ORDER's default branch (spec table's first row);
		// an unset ServiceType on a NEW_ORDER event is treated the same way
		// since EXPRESS is the tighter-SLA, "assume the urgent case" default.
		return Plan{
			Parallel: []TaskSpec{{Name: TaskFleet, Priority: 2}, {Name: TaskSLAFeasibility, Priority: 2}, {Name: TaskGeo, Priority: 1}},
			Sequential: []TaskSpec{
				{Name: TaskOrderAssignment, Deps: []TaskName{TaskFleet, TaskSLAFeasibility}},
				{Name: TaskRouteOptimization, Deps: []TaskName{TaskOrderAssignment}},
			},
		}, nil

	case domain.EventSLAWarning:
		return Plan{
			Parallel: []TaskSpec{{Name: TaskSLAMonitor, Priority: 2}, {Name: TaskFleet, Priority: 1}},
			Sequential: []TaskSpec{
				{Name: TaskEmergencyEscalation, Deps: []TaskName{TaskSLAMonitor}},
				{Name: TaskOrderRecovery, Deps: []TaskName{TaskEmergencyEscalation}},
			},
		}, nil

	case domain.EventDriverStatusChange:
		return Plan{
			Parallel: []TaskSpec{{Name: TaskFleet, Priority: 1}, {Name: TaskFleetRebalancer, Priority: 1}},
		}, nil

	case domain.EventBatchOptimization:
		return Plan{
			Parallel:   []TaskSpec{{Name: TaskBatch, Priority: 1}, {Name: TaskFleet, Priority: 1}},
			Sequential: []TaskSpec{{Name: TaskRouteOptimization, Deps: []TaskName{TaskBatch}}},
		}, nil

	case domain.EventOrderCompleted, domain.EventInternalReassign, domain.EventInternalEscalate:
		// Handled directly by Orchestrate without a multi-agent plan (spec
		// doesn't give these a DAG row); an empty plan with zero tasks lets
		// Orchestrate's switch dispatch to their dedicated handling.
		return Plan{}, nil

	default:
		return Plan{}, ErrUnknownEvent
	}
}

// depsSatisfied reports whether every task spec.Deps names has an entry in
// results, mirroring the teacher's PlanExecutor.checkDependencies.
func depsSatisfied(spec TaskSpec, results map[TaskName]AgentResult) bool {
	for _, d := range spec.Deps {
		if _, ok := results[d]; !ok {
			return false
		}
	}
	return true
}
