package sla

import (
	"math"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
)

// compensationRate is spec §4.3's per-minute compensation rate, by service
// type, used only on the breached path (distinct from C9's recovery-path
// formula — spec OQ2 explicitly keeps the two unreconciled).
func compensationRate(st domain.ServiceType) float64 {
	if st == domain.ServiceExpress {
		return 10
	}
	return 5
}

func compensationAmount(delayMin float64, st domain.ServiceType) float64 {
	amt := delayMin * compensationRate(st)
	return math.Min(200, amt)
}

// buildActions produces the corrective Action list for one order's current
// SLAStatus (spec §4.3's per-category action table).
func buildActions(o *domain.Order, status domain.SLAStatus) []domain.Action {
	var actions []domain.Action

	switch status.Category {
	case domain.SLABreached:
		delay := -status.RemainingMin // RemainingMin = breachThreshold - elapsed, negative once breached
		if delay < 0 {
			delay = 0
		}
		actions = append(actions,
			domain.Action{
				Type: "customer_compensation", Priority: domain.PriorityCritical, Immediate: true, Target: o.ID,
				Payload: map[string]interface{}{"amount": compensationAmount(delay, o.ServiceType)},
			},
			domain.Action{Type: "customer_notification", Priority: domain.PriorityHigh, Immediate: true, Target: o.ID},
			domain.Action{Type: "incident_report", Priority: domain.PriorityHigh, Target: o.ID},
		)
	case domain.SLACritical:
		if !status.CanMeetSLA {
			actions = append(actions, domain.Action{Type: "emergency_reassignment", Priority: domain.PriorityCritical, Immediate: true, Target: o.ID})
		} else {
			actions = append(actions, domain.Action{Type: "expedite_delivery", Priority: domain.PriorityHigh, Target: o.ID})
		}
		actions = append(actions, domain.Action{
			Type: "supervisor_alert", Priority: domain.PriorityHigh, Target: o.ID,
			Payload: map[string]interface{}{"escalation_level": string(domain.EscalationL1)},
		})
	case domain.SLAWarning:
		actions = append(actions, domain.Action{Type: "optimize_route", Priority: domain.PriorityMedium, Target: o.ID})
		if o.ServiceType == domain.ServiceExpress {
			actions = append(actions, domain.Action{Type: "proactive_communication", Priority: domain.PriorityLow, Target: o.ID})
		}
	}
	return actions
}
