package orchestrator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
)

const validOverrideYAML = `
NEW_ORDER:
  parallel:
    - name: fleet
      priority: 1
  sequential:
    - name: order-assignment
      deps: [fleet]
`

func TestLoadPlanOverrides_ParsesKnownTasks(t *testing.T) {
	overrides, err := LoadPlanOverrides(strings.NewReader(validOverrideYAML))
	require.NoError(t, err)

	plan, ok := overrides[domain.EventNewOrder]
	require.True(t, ok)
	require.Len(t, plan.Parallel, 1)
	require.Equal(t, TaskFleet, plan.Parallel[0].Name)
	require.Len(t, plan.Sequential, 1)
	require.Equal(t, TaskOrderAssignment, plan.Sequential[0].Name)
	require.Equal(t, []TaskName{TaskFleet}, plan.Sequential[0].Deps)
}

func TestLoadPlanOverrides_UnknownTaskNameErrors(t *testing.T) {
	_, err := LoadPlanOverrides(strings.NewReader("NEW_ORDER:\n  parallel:\n    - name: not-a-real-task\n"))
	require.Error(t, err)
}

func TestOrchestrator_ResolvePlanPrefersOverrideThenFallsBackToDefault(t *testing.T) {
	overrides, err := LoadPlanOverrides(strings.NewReader(validOverrideYAML))
	require.NoError(t, err)

	orch := NewOrchestrator(Deps{PlanOverrides: overrides})

	plan, err := orch.resolvePlan(domain.Event{Type: domain.EventNewOrder})
	require.NoError(t, err)
	require.Len(t, plan.Parallel, 1) // override, not the compiled-in 3-task EXPRESS default

	fallback, err := orch.resolvePlan(domain.Event{Type: domain.EventSLAWarning})
	require.NoError(t, err)
	require.Len(t, fallback.Parallel, 2) // compiled-in default, untouched by the override doc
}
