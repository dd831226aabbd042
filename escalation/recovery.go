// recovery.go implements Order Recovery strategy selection (spec §4.6's
// per-failure-type strategy table and successProbability formula).
package escalation

import (
	"math"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
)

// FailureType is one of the eight Order Recovery failure categories (spec
// §4.6's table).
type FailureType string

const (
	FailureDriverUnavailable   FailureType = "DRIVER_UNAVAILABLE"
	FailureCustomerUnavailable FailureType = "CUSTOMER_UNAVAILABLE"
	FailureAddressIssue        FailureType = "ADDRESS_ISSUE"
	FailureVehicleBreakdown    FailureType = "VEHICLE_BREAKDOWN"
	FailureTrafficDelay        FailureType = "TRAFFIC_DELAY"
	FailureSLABreachRisk       FailureType = "SLA_BREACH_RISK"
	FailurePackageDamage       FailureType = "PACKAGE_DAMAGE"
	FailureMultipleFailures    FailureType = "MULTIPLE_FAILURES"
)

// StrategyKind names one recovery step; callers dispatch on this to run
// the actual side effect against the appropriate port.
type StrategyKind string

const (
	StrategyReassign          StrategyKind = "reassign"
	StrategyNearbySearch      StrategyKind = "nearby_search"
	StrategyServiceUpgrade    StrategyKind = "service_upgrade"
	StrategyContactCall       StrategyKind = "contact_call"
	StrategyContactSMS        StrategyKind = "contact_sms"
	StrategyContactInApp      StrategyKind = "contact_in_app"
	StrategyLeaveAtDoor       StrategyKind = "leave_at_door"
	StrategyReschedule        StrategyKind = "reschedule"
	StrategyGPSVerify         StrategyKind = "gps_verify"
	StrategyLandmark          StrategyKind = "landmark"
	StrategyCustomerCall      StrategyKind = "customer_call"
	StrategyEmergencyReassign StrategyKind = "emergency_reassignment"
	StrategyCompensation      StrategyKind = "compensation"
	StrategyRecomputeRoute    StrategyKind = "recompute_route"
	StrategyNotifyCustomer    StrategyKind = "notify_customer"
	StrategyPriorityRouting   StrategyKind = "priority_routing"
	StrategyReplacement       StrategyKind = "replacement"
	StrategyEscalate          StrategyKind = "escalate"
)

// Strategy is one ordered step in a recovery plan, with enough payload for
// the caller to execute it without re-deriving parameters.
type Strategy struct {
	Kind    StrategyKind
	Payload map[string]interface{}
}

// rescheduleOffsets are spec §4.6's "3 slots @ +1h,+2h,+3h".
var rescheduleOffsetsHours = []int{1, 2, 3}

// Plan builds the ordered strategy list for failureType (spec §4.6's
// table). customerOptedInLeaveAtDoor only matters for
// CUSTOMER_UNAVAILABLE; attempts is the order's current
// deliveryAttempts, used to detect MULTIPLE_FAILURES (attempts>=2) on top
// of whatever failureType was reported.
func Plan(failureType FailureType, order *domain.Order, attempts int, customerOptedInLeaveAtDoor bool) []Strategy {
	var plan []Strategy

	switch failureType {
	case FailureDriverUnavailable:
		plan = []Strategy{{Kind: StrategyReassign}, {Kind: StrategyNearbySearch}, {Kind: StrategyServiceUpgrade}}
	case FailureCustomerUnavailable:
		plan = []Strategy{{Kind: StrategyContactCall}, {Kind: StrategyContactSMS}, {Kind: StrategyContactInApp}}
		if customerOptedInLeaveAtDoor {
			plan = append(plan, Strategy{Kind: StrategyLeaveAtDoor})
		} else {
			for _, h := range rescheduleOffsetsHours {
				plan = append(plan, Strategy{Kind: StrategyReschedule, Payload: map[string]interface{}{"offsetHours": h}})
			}
		}
	case FailureAddressIssue:
		plan = []Strategy{{Kind: StrategyGPSVerify}, {Kind: StrategyLandmark}, {Kind: StrategyCustomerCall}}
	case FailureVehicleBreakdown:
		plan = []Strategy{{Kind: StrategyEmergencyReassign}, {Kind: StrategyCompensation}}
	case FailureTrafficDelay:
		plan = []Strategy{{Kind: StrategyRecomputeRoute}, {Kind: StrategyNotifyCustomer}}
	case FailureSLABreachRisk:
		plan = []Strategy{{Kind: StrategyPriorityRouting}, {Kind: StrategyServiceUpgrade, Payload: map[string]interface{}{"toServiceType": string(domain.ServiceExpress)}}}
	case FailurePackageDamage:
		plan = []Strategy{{Kind: StrategyReplacement}, {Kind: StrategyCompensation}}
	case FailureMultipleFailures:
		plan = []Strategy{{Kind: StrategyEscalate}, {Kind: StrategyCompensation, Payload: map[string]interface{}{"amount": CompensationForDelay(serviceTypeOf(order), 0)}}}
	}

	// spec §4.6: "MULTIPLE_FAILURES (attempts>=2)" can co-occur with any
	// reported failureType, not only be reported as its own category.
	if failureType != FailureMultipleFailures && attempts >= 2 {
		plan = append(plan, Strategy{Kind: StrategyEscalate},
			Strategy{Kind: StrategyCompensation, Payload: map[string]interface{}{"amount": CompensationForDelay(serviceTypeOf(order), 0)}})
	}

	return plan
}

// multipleFailuresCompensationBase is spec §4.6's base amount by service
// type for the MULTIPLE_FAILURES compensation formula (distinct from the
// SLA Monitor's compensation formula — spec OQ2 keeps the two unreconciled
// on purpose).
func multipleFailuresCompensationBase(st domain.ServiceType) float64 {
	if st == domain.ServiceExpress {
		return 10
	}
	return 5
}

// CompensationForDelay implements spec §4.6's MULTIPLE_FAILURES formula:
// min(25, base + floor(delayMin/15)*2). Plan calls this with delayMin=0
// when it has no live SLAStatus handy; callers driving recovery off a
// fresh SLAStatus should call this directly with the real delay.
func CompensationForDelay(st domain.ServiceType, delayMin float64) float64 {
	base := multipleFailuresCompensationBase(st)
	amount := base + math.Floor(delayMin/15)*2
	return math.Min(25, amount)
}

func serviceTypeOf(o *domain.Order) domain.ServiceType {
	if o == nil {
		return domain.ServiceStandard
	}
	return o.ServiceType
}

// SuccessProbability implements spec §4.6's formula:
// 0.8 - 0.15*attempts + sum(+0.10 per ESCALATE, +0.15 per UPGRADE step),
// clipped to [0.1, 1.0].
func SuccessProbability(plan []Strategy, attempts int) float64 {
	p := 0.8 - 0.15*float64(attempts)
	for _, s := range plan {
		if s.Kind == StrategyEscalate {
			p += 0.10
		}
		if s.Kind == StrategyServiceUpgrade {
			p += 0.15
		}
	}
	if p < 0.1 {
		return 0.1
	}
	if p > 1.0 {
		return 1.0
	}
	return p
}

// WithEscalateIfLowConfidence appends an ESCALATE strategy when prob is
// below spec §4.6's 0.6 threshold and one isn't already present.
func WithEscalateIfLowConfidence(plan []Strategy, prob float64) []Strategy {
	if prob >= 0.6 {
		return plan
	}
	for _, s := range plan {
		if s.Kind == StrategyEscalate {
			return plan
		}
	}
	return append(plan, Strategy{Kind: StrategyEscalate})
}
