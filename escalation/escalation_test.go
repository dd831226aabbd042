package escalation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/clock"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
)

type fakeGateway struct {
	calls []domain.EscalationLevel
}

func (g *fakeGateway) Notify(ctx context.Context, level domain.EscalationLevel, payload map[string]interface{}) error {
	g.calls = append(g.calls, level)
	return nil
}

func TestInitiate_CriticalSeverityBumpsLevelOneStep(t *testing.T) {
	gw := &fakeGateway{}
	store := NewStore(gw, clock.NewFakeClock(time.Now()), nil)

	esc := store.Initiate(context.Background(), TypeDriverEmergency, "critical", []string{"o1"}, []string{"d1"})
	require.Equal(t, domain.EscalationL3, esc.Level) // default L2 + 1 bump
	require.Equal(t, domain.EscalationActive, esc.Status)
	require.Len(t, gw.calls, 1)
}

func TestInitiate_DefaultSeverityUsesTypeDefaultLevel(t *testing.T) {
	store := NewStore(&fakeGateway{}, clock.NewFakeClock(time.Now()), nil)
	esc := store.Initiate(context.Background(), TypeSLABreach, "", []string{"o1"}, nil)
	require.Equal(t, domain.EscalationL1, esc.Level)
}

func TestEscalate_LevelNeverDecreases(t *testing.T) {
	store := NewStore(&fakeGateway{}, clock.NewFakeClock(time.Now()), nil)
	esc := store.Initiate(context.Background(), TypeSLABreach, "", []string{"o1"}, nil)
	require.Equal(t, domain.EscalationL1, esc.Level)

	esc = store.Escalate(esc.ID, "no response within window")
	require.Equal(t, domain.EscalationL2, esc.Level)

	esc = store.Escalate(esc.ID, "still no response")
	require.Equal(t, domain.EscalationL3, esc.Level)

	// One more step reaches L4; escalating past L4 must not decrease or wrap.
	store.Escalate(esc.ID, "x")
	final := store.Escalate(esc.ID, "y")
	require.Equal(t, domain.EscalationL4, final.Level)
}

func TestResolve_MovesFromActiveToHistory(t *testing.T) {
	store := NewStore(&fakeGateway{}, clock.NewFakeClock(time.Now()), nil)
	esc := store.Initiate(context.Background(), TypeSLABreach, "", []string{"o1"}, nil)
	require.Contains(t, store.ActiveIDs(), esc.ID)

	resolved := store.Resolve(esc.ID, domain.EscalationResolved, "handled")
	require.Equal(t, domain.EscalationResolved, resolved.Status)
	require.NotContains(t, store.ActiveIDs(), esc.ID)
	require.NotNil(t, store.Get(esc.ID))
}

func TestResolutionChecker_ClearsResolvedFromActiveSet(t *testing.T) {
	fc := clock.NewFakeClock(time.Now())
	store := NewStore(&fakeGateway{}, fc, nil)
	esc := store.Initiate(context.Background(), TypeSLABreach, "", []string{"o1"}, nil)

	checker := NewResolutionChecker(store, fc, func(ctx context.Context, e *domain.Escalation) (bool, domain.EscalationStatus) {
		return e.ID == esc.ID, domain.EscalationResolved
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	checker.Start(ctx)
	fc.Tick(ctx, time.Minute)

	require.Empty(t, store.ActiveIDs())
}

func TestAddAction_AppendsTimelineEntry(t *testing.T) {
	store := NewStore(&fakeGateway{}, clock.NewFakeClock(time.Now()), nil)
	esc := store.Initiate(context.Background(), TypeSLABreach, "", []string{"o1"}, nil)

	store.AddAction(esc.ID, domain.Action{Type: "customer_compensation", Target: "o1"})
	got := store.Get(esc.ID)
	require.Len(t, got.Actions, 1)

	found := false
	for _, te := range got.Timeline {
		if te.Event == "action:customer_compensation" {
			found = true
		}
	}
	require.True(t, found)
}
