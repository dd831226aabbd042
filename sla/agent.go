// Package sla implements the SLA Monitor Agent (spec §4.3, C5): a per-order
// state machine driven off elapsed and predicted delivery time, idempotent
// corrective actions via a 5-minute suppression set, and the tick loop that
// drives it. Grounded on the teacher's core.MemoryStore (TTL cache, reused
// here for suppression) and its async-task ticking idiom generalized from
// the clock package.
package sla

import (
	"context"
	"fmt"
	"time"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/clock"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/core"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/ports"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/resilience"
)

// suppressionTTL is spec §4.3's "idempotent per (orderId, type) within 5
// min" window.
const suppressionTTL = 5 * time.Minute

// defaultTickInterval is spec §4.3's tick loop default.
const defaultTickInterval = 30 * time.Second

// EventSink lets the SLA Monitor inject internal events back into the
// Orchestrator (spec §4.3's "Each tick can inject INTERNAL_ESCALATE/
// INTERNAL_REASSIGN events") without this package importing the
// orchestrator package — kept local the same way assignment.orderTracker
// avoids widening a port, here avoiding an import cycle instead.
type EventSink interface {
	Emit(ctx context.Context, ev domain.Event) error
}

// TickSummary is what one Tick call reports, feeding both logs and the
// autonomous-trigger decision.
type TickSummary struct {
	Total     int
	Healthy   int
	Warning   int
	Critical  int
	Breached  int
	Predicted15MinBreaches int
	Statuses  []domain.SLAStatus
}

// Agent is the SLA Monitor Agent.
type Agent struct {
	orders      ports.OrderRepository
	autonomous  ports.AutonomousOrchestrator
	sink        EventSink
	clock       clock.Clock
	thresholds  map[domain.ServiceType]Thresholds
	suppression *core.MemoryStore
	retry       resilience.RetryPolicy
	logger      core.Logger
}

type Option func(*Agent)

func WithThresholds(t map[domain.ServiceType]Thresholds) Option {
	return func(a *Agent) { a.thresholds = t }
}

func WithAutonomousOrchestrator(o ports.AutonomousOrchestrator) Option {
	return func(a *Agent) { a.autonomous = o }
}

func WithEventSink(s EventSink) Option {
	return func(a *Agent) { a.sink = s }
}

func WithRetryPolicy(p resilience.RetryPolicy) Option {
	return func(a *Agent) { a.retry = p }
}

func WithLogger(l core.Logger) Option {
	return func(a *Agent) {
		if l == nil {
			return
		}
		if cal, ok := l.(core.ComponentAwareLogger); ok {
			a.logger = cal.WithComponent("agent/sla-monitor")
			return
		}
		a.logger = l
	}
}

func NewAgent(orders ports.OrderRepository, clk clock.Clock, opts ...Option) *Agent {
	a := &Agent{
		orders:      orders,
		clock:       clk,
		thresholds:  DefaultThresholds(),
		suppression: core.NewMemoryStore(),
		retry:       resilience.DefaultRetryPolicy(),
		logger:      &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Evaluate computes the SLAStatus for a single order at "now" (exported so
// the Orchestrator can ask for a one-off status without waiting for a
// tick).
func (a *Agent) Evaluate(o *domain.Order, now time.Time) domain.SLAStatus {
	t := a.thresholds[o.ServiceType]
	elapsed := now.Sub(o.CreatedAt).Minutes()
	if elapsed < 0 {
		elapsed = 0
	}

	elapsedCategory := categoryFor(elapsed, t)
	predictedMin := PredictedDeliveryMin(o, nil)
	predictedElapsed := elapsed + predictedMin
	predictedCategory := categoryFor(predictedElapsed, t)
	category := maxCategory(elapsedCategory, predictedCategory)

	// CanMeetSLA checks the order's own PromisedAt deadline when set — a
	// customer promise can be tighter than the generic per-class breach
	// threshold used for categorization — falling back to the class
	// threshold when PromisedAt is unset.
	var canMeet bool
	if !o.PromisedAt.IsZero() {
		eta := now.Add(time.Duration(predictedMin * float64(time.Minute)))
		canMeet = !eta.After(o.PromisedAt)
	} else {
		canMeet = predictedElapsed <= t.BreachMin
	}

	return domain.SLAStatus{
		OrderID:              o.ID,
		ElapsedMin:           elapsed,
		RemainingMin:         t.BreachMin - elapsed,
		Category:             category,
		PredictedDeliveryMin: predictedMin,
		CanMeetSLA:           canMeet,
		AlertRequired:        category != domain.SLAHealthy,
		ActionRequired:       category == domain.SLACritical || category == domain.SLABreached,
	}
}

// Tick runs one monitoring pass over every active order: evaluate, emit
// idempotent actions, inject internal events when a reassignment/escalation
// is warranted, and report a TickSummary for the autonomous-trigger
// decision. It never returns an error — a total read failure yields an
// empty summary (spec: "monitor is never fatal to the system").
func (a *Agent) Tick(ctx context.Context) TickSummary {
	var active []*domain.Order
	err := a.retry.Do(ctx, func(ctx context.Context) error {
		got, err := a.orders.GetActive(ctx, ports.OrderFilter{})
		if err != nil {
			return err
		}
		active = got
		return nil
	})
	if err != nil {
		a.logger.Error("sla tick: failed to read active orders after retries", map[string]interface{}{"error": err.Error()})
		return TickSummary{}
	}

	now := a.clock.Now()
	summary := TickSummary{Total: len(active), Statuses: make([]domain.SLAStatus, 0, len(active))}

	for _, o := range active {
		status := a.Evaluate(o, now)
		summary.Statuses = append(summary.Statuses, status)

		switch status.Category {
		case domain.SLAHealthy:
			summary.Healthy++
		case domain.SLAWarning:
			summary.Warning++
		case domain.SLACritical:
			summary.Critical++
		case domain.SLABreached:
			summary.Breached++
		}
		if status.PredictedDeliveryMin+status.ElapsedMin >= a.thresholds[o.ServiceType].BreachMin && status.PredictedDeliveryMin <= 15 {
			summary.Predicted15MinBreaches++
		}

		a.handleOrder(ctx, o, status)
	}

	a.publishAutonomousTrigger(ctx, summary)
	return summary
}

func (a *Agent) handleOrder(ctx context.Context, o *domain.Order, status domain.SLAStatus) {
	for _, act := range buildActions(o, status) {
		if a.suppressed(ctx, o.ID, act.Type) {
			continue
		}
		a.markSuppressed(ctx, o.ID, act.Type)
		a.logger.Info("sla action", map[string]interface{}{
			"order_id": o.ID, "type": act.Type, "priority": string(act.Priority), "category": string(status.Category),
		})
	}

	if status.Category == domain.SLACritical && !status.CanMeetSLA {
		a.emit(ctx, domain.Event{Type: domain.EventInternalReassign, OrderID: o.ID, ServiceType: o.ServiceType,
			Payload: map[string]interface{}{"reason": "sla critical, cannot meet SLA"}})
	}
	if status.Category == domain.SLACritical {
		a.emit(ctx, domain.Event{Type: domain.EventInternalEscalate, OrderID: o.ID, ServiceType: o.ServiceType,
			Payload: map[string]interface{}{"reason": "sla critical", "level": string(domain.EscalationL1)}})
	}
}

func (a *Agent) emit(ctx context.Context, ev domain.Event) {
	if a.sink == nil {
		return
	}
	if err := a.sink.Emit(ctx, ev); err != nil {
		a.logger.Warn("sla: failed to emit internal event", map[string]interface{}{"order_id": ev.OrderID, "error": err.Error()})
	}
}

func (a *Agent) suppressed(ctx context.Context, orderID, actionType string) bool {
	ok, _ := a.suppression.Exists(ctx, suppressionKey(orderID, actionType))
	return ok
}

func (a *Agent) markSuppressed(ctx context.Context, orderID, actionType string) {
	_ = a.suppression.Set(ctx, suppressionKey(orderID, actionType), "1", suppressionTTL)
}

func suppressionKey(orderID, actionType string) string {
	return fmt.Sprintf("%s|%s", orderID, actionType)
}

// publishAutonomousTrigger implements spec §4.3's "Autonomous trigger"
// after-tick rule.
func (a *Agent) publishAutonomousTrigger(ctx context.Context, s TickSummary) {
	if a.autonomous == nil || s.Total == 0 {
		return
	}
	atRisk := s.Warning + s.Critical + s.Breached
	ratio := float64(atRisk) / float64(s.Total)

	payload := map[string]interface{}{
		"total": s.Total, "healthy": s.Healthy, "warning": s.Warning, "critical": s.Critical, "breached": s.Breached,
	}

	if s.Breached > 0 {
		_ = a.autonomous.Trigger(ctx, "sla-monitor", "breached_orders", payload, domain.PriorityCritical)
	}
	if s.Critical >= 3 {
		_ = a.autonomous.Trigger(ctx, "sla-monitor", "critical_threshold", payload, domain.PriorityHigh)
	}
	if ratio > 0.3 {
		_ = a.autonomous.Trigger(ctx, "sla-monitor", "at_risk_ratio", payload, domain.PriorityHigh)
	}
	if s.Predicted15MinBreaches > 0 {
		_ = a.autonomous.Trigger(ctx, "sla-monitor", "predicted_15min_breaches", payload, domain.PriorityHigh)
	}
}

// Start runs Tick on the clock's ticking schedule until ctx is cancelled.
func (a *Agent) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultTickInterval
	}
	a.clock.AfterEvery(ctx, interval, func(ctx context.Context) {
		a.Tick(ctx)
	})
}
