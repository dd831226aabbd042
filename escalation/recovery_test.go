package escalation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
)

func TestPlan_DriverUnavailableOrder(t *testing.T) {
	plan := Plan(FailureDriverUnavailable, &domain.Order{ServiceType: domain.ServiceExpress}, 0, false)
	require.Equal(t, []StrategyKind{StrategyReassign, StrategyNearbySearch, StrategyServiceUpgrade}, kinds(plan))
}

func TestPlan_CustomerUnavailable_OptedInLeaveAtDoor(t *testing.T) {
	plan := Plan(FailureCustomerUnavailable, &domain.Order{}, 0, true)
	require.Contains(t, kinds(plan), StrategyLeaveAtDoor)
	require.NotContains(t, kinds(plan), StrategyReschedule)
}

func TestPlan_CustomerUnavailable_NotOptedInReschedulesThreeSlots(t *testing.T) {
	plan := Plan(FailureCustomerUnavailable, &domain.Order{}, 0, false)
	count := 0
	for _, s := range plan {
		if s.Kind == StrategyReschedule {
			count++
		}
	}
	require.Equal(t, 3, count)
}

func TestPlan_MultipleFailuresAppendedWhenAttemptsAtLeastTwo(t *testing.T) {
	plan := Plan(FailureTrafficDelay, &domain.Order{ServiceType: domain.ServiceStandard}, 2, false)
	require.Contains(t, kinds(plan), StrategyEscalate)
	require.Contains(t, kinds(plan), StrategyCompensation)
}

func TestSuccessProbability_ClippedToRange(t *testing.T) {
	plan := []Strategy{{Kind: StrategyEscalate}, {Kind: StrategyServiceUpgrade}}
	require.InDelta(t, 0.8-0.15*5+0.10+0.15, SuccessProbability(plan, 5), 1e-9)

	require.Equal(t, 1.0, SuccessProbability([]Strategy{{Kind: StrategyServiceUpgrade}, {Kind: StrategyServiceUpgrade}, {Kind: StrategyServiceUpgrade}}, 0))
	require.Equal(t, 0.1, SuccessProbability(nil, 10))
}

func TestWithEscalateIfLowConfidence_AppendsOnlyBelowThreshold(t *testing.T) {
	plan := []Strategy{{Kind: StrategyReassign}}
	withEsc := WithEscalateIfLowConfidence(plan, 0.5)
	require.Contains(t, kinds(withEsc), StrategyEscalate)

	noEsc := WithEscalateIfLowConfidence(plan, 0.9)
	require.NotContains(t, kinds(noEsc), StrategyEscalate)
}

func TestCompensationForDelay_CappedAt25(t *testing.T) {
	require.Equal(t, 25.0, CompensationForDelay(domain.ServiceExpress, 1000))
	require.Equal(t, 10.0, CompensationForDelay(domain.ServiceExpress, 0))
	require.Equal(t, 5.0, CompensationForDelay(domain.ServiceStandard, 0))
}

func kinds(plan []Strategy) []StrategyKind {
	out := make([]StrategyKind, len(plan))
	for i, s := range plan {
		out[i] = s.Kind
	}
	return out
}
