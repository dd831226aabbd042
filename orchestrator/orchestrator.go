// orchestrator.go wires every agent/port this module builds behind one
// entry point, Orchestrate, matching spec §4.1's contract: one Event in,
// one Decision out, never panicking outward, never blocking past its
// event's deadline. Grounded on the teacher's pkg/orchestration.
// StandardOrchestrator.ProcessRequest: resolve a plan, run it through an
// Executor, synthesize a single response — generalized here from
// natural-language routing/synthesis to the decision core's typed
// plan/aggregate pair (plan.go/aggregate.go).
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/assignment"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/clock"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/core"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/demandctx"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/escalation"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/fleet"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/notify"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/oracle"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/ports"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/routeopt"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/sla"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/telemetry"
)

// perTaskDeadline bounds every individual agent task regardless of the
// event's own deadline (spec §5's "suspension point... deadline on every
// port call"); defaultEventDeadline backstops event types with no
// service-type-specific budget.
const (
	perTaskDeadline       = 5 * time.Second
	expressEventDeadline  = 3 * time.Second
	standardEventDeadline = 10 * time.Second
	defaultEventDeadline  = 10 * time.Second
)

// Orchestrator is the Master Orchestrator (spec §4.1, C10). It holds every
// agent and provider this module builds, never mutates an Order or Driver
// directly (that always happens through the ports its collaborators call),
// and is safe for concurrent use by many Orchestrate callers at once.
type Orchestrator struct {
	fleet           *fleet.Agent
	sla             *sla.Agent
	assigner        *assignment.Assigner
	routeEngine     *routeopt.Engine
	escalations     *escalation.Store
	demandProvider  *demandctx.DemandProvider
	batchProvider   *demandctx.BatchProvider
	geoProvider     *demandctx.GeoProvider
	trafficProvider *demandctx.TrafficProvider

	orders   ports.OrderRepository
	drivers  ports.DriverRepository
	notifier ports.Notifier

	clk       clock.Clock
	telemetry core.Telemetry
	logger    core.Logger

	parallelism int
	inflightMax int
	inflight    int32

	mu        sync.Mutex
	seenNewOrder map[string]bool

	planOverrides map[domain.EventType]Plan
}

// Deps bundles every collaborator NewOrchestrator wires together; all
// fields except OrderRepository/DriverRepository have sensible built-in
// defaults so callers can construct a working Orchestrator with a minimal
// Deps value in tests.
type Deps struct {
	Orders   ports.OrderRepository
	Drivers  ports.DriverRepository
	Notifier ports.Notifier

	Fleet       *fleet.Agent
	SLA         *sla.Agent
	Assigner    *assignment.Assigner
	RouteEngine *routeopt.Engine
	Escalations *escalation.Store

	// Router and RouteOracle are only consulted when RouteEngine is left
	// nil — once a caller supplies its own *routeopt.Engine, that Engine's
	// own options are authoritative.
	Router      ports.Router
	RouteOracle ports.RouteOracle

	DemandProvider  *demandctx.DemandProvider
	BatchProvider   *demandctx.BatchProvider
	GeoProvider     *demandctx.GeoProvider
	TrafficProvider *demandctx.TrafficProvider

	Clock     clock.Clock
	Telemetry core.Telemetry
	Logger    core.Logger

	Parallelism int
	InflightMax int

	// PlanOverrides replaces BuildPlan's compiled-in table for the event
	// types it covers (see LoadPlanOverrides); nil means every event type
	// uses the compiled-in table.
	PlanOverrides map[domain.EventType]Plan
}

// NewOrchestrator builds an Orchestrator, filling in defaults for any Deps
// field left zero (spec §6's config table: Parallelism=32, InflightMax=256).
func NewOrchestrator(d Deps) *Orchestrator {
	if d.Clock == nil {
		d.Clock = clock.NewRealClock()
	}
	if d.Telemetry == nil {
		// NewNoopProvider still exercises the real OTel SDK's span/meter
		// plumbing (through a no-exporter provider) rather than a bare
		// core.NoOpTelemetry stub, so spans/metrics recorded against it
		// behave identically to a configured deployment, just
		// unexported.
		d.Telemetry = telemetry.NewNoopProvider("decision-core")
	}
	logger := d.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("orchestrator")
	}
	if d.Fleet == nil {
		d.Fleet = fleet.NewAgent(d.Drivers, d.Clock, domain.DefaultCapacities())
	}
	if d.SLA == nil {
		d.SLA = sla.NewAgent(d.Orders, d.Clock)
	}
	if d.Assigner == nil {
		d.Assigner = assignment.NewAssigner(d.Orders, d.Drivers)
	}
	if d.RouteOracle == nil {
		// An empty API key makes Rank always return "not configured",
		// which the engine treats the same as no oracle at all — safe to
		// default to rather than leaving the optional port unset.
		d.RouteOracle = oracle.NewOpenAIOracle("", "", logger)
	}
	if d.RouteEngine == nil {
		var opts []routeopt.Option
		if d.Router != nil {
			opts = append(opts, routeopt.WithRouter(d.Router))
		}
		opts = append(opts, routeopt.WithOracle(d.RouteOracle), routeopt.WithLogger(logger))
		d.RouteEngine = routeopt.NewEngine(nil, opts...)
	}
	if d.Escalations == nil {
		// A bare nil gateway would panic the first time Initiate calls
		// Notify; SlackGateway with an empty webhook URL logs and no-ops
		// instead, so it's a safe default when no real gateway is wired.
		d.Escalations = escalation.NewStore(notify.NewSlackGateway("", logger), d.Clock, logger)
	}
	if d.DemandProvider == nil {
		d.DemandProvider = demandctx.NewDemandProvider(d.Orders, nil, logger)
	}
	if d.BatchProvider == nil {
		d.BatchProvider = demandctx.NewBatchProvider(nil)
	}
	if d.GeoProvider == nil {
		d.GeoProvider = demandctx.NewGeoProvider(nil)
	}
	if d.TrafficProvider == nil {
		d.TrafficProvider = demandctx.NewTrafficProvider(nil)
	}
	if d.Notifier == nil {
		// All channels enabled, no quiet-hours window (Start==End means
		// never deferred) — a safe default for a Deps value built in tests
		// or a minimal deployment with no channel config supplied.
		d.Notifier = notify.NewChannel(notify.ChannelSet{SMS: true, Email: true, InApp: true, Voice: true}, notify.QuietHours{}, d.Clock, logger)
	}
	d.Assigner.SetNotifier(d.Notifier)
	if d.Parallelism <= 0 {
		d.Parallelism = 32
	}
	if d.InflightMax <= 0 {
		d.InflightMax = 256
	}

	return &Orchestrator{
		fleet:           d.Fleet,
		sla:             d.SLA,
		assigner:        d.Assigner,
		routeEngine:     d.RouteEngine,
		escalations:     d.Escalations,
		demandProvider:  d.DemandProvider,
		batchProvider:   d.BatchProvider,
		geoProvider:     d.GeoProvider,
		trafficProvider: d.TrafficProvider,
		orders:          d.Orders,
		drivers:         d.Drivers,
		notifier:        d.Notifier,
		clk:             d.Clock,
		telemetry:       d.Telemetry,
		logger:          logger,
		parallelism:     d.Parallelism,
		inflightMax:     d.InflightMax,
		seenNewOrder:    make(map[string]bool),
		planOverrides:   d.PlanOverrides,
	}
}

// Emit implements sla.EventSink, letting the SLA Monitor (and, by the same
// shape, Order Recovery) feed internal events back through Orchestrate
// without sla importing this package, which already imports sla.
func (o *Orchestrator) Emit(ctx context.Context, ev domain.Event) error {
	o.Orchestrate(ctx, ev)
	return nil
}

// Orchestrate runs ev through its plan and returns the aggregated Decision
// (spec §4.1). It never panics outward: an unhandled failure anywhere in
// plan execution becomes action=EMERGENCY_QUEUE with
// requiresManualIntervention=true rather than propagating.
func (o *Orchestrator) Orchestrate(ctx context.Context, ev domain.Event) (dec domain.Decision) {
	ctx, span := o.telemetry.StartSpan(ctx, "orchestrator.Orchestrate")
	defer span.End()
	span.SetAttribute("event.type", string(ev.Type))
	span.SetAttribute("order.id", ev.OrderID)

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("orchestrator: recovered from panic", map[string]interface{}{
				"event_type": string(ev.Type), "order_id": ev.OrderID, "panic": fmt.Sprintf("%v", r),
			})
			span.RecordError(fmt.Errorf("panic: %v", r))
			dec = domain.Decision{
				Action: domain.DecisionEmergencyQueue, OrderID: ev.OrderID,
				RequiresManualIntervention: true, Reason: "unhandled failure during orchestration",
			}
		}
	}()

	if !o.acquireSlot() {
		o.telemetry.RecordMetric("orchestrator_overload_total", 1, map[string]string{"event_type": string(ev.Type)})
		return domain.Decision{Action: domain.DecisionQueued, OrderID: ev.OrderID, Reason: "OVERLOAD"}
	}
	defer o.releaseSlot()

	plan, err := o.resolvePlan(ev)
	if err != nil {
		return domain.Decision{Action: domain.DecisionQueued, OrderID: ev.OrderID, Reason: "UNKNOWN_EVENT"}
	}

	if idempotent, ok := o.idempotentDecision(ctx, ev); ok {
		return idempotent
	}

	ctx, cancel := context.WithTimeout(ctx, o.eventDeadline(ev))
	defer cancel()

	if direct, handled := o.handleDirectEvent(ctx, ev); handled {
		o.telemetry.RecordMetric("orchestrator_decisions_total", 1, map[string]string{
			"event_type": string(ev.Type), "action": string(direct.Action),
		})
		return direct
	}

	var order *domain.Order
	if ev.OrderID != "" {
		order, _ = o.orders.GetByID(ctx, ev.OrderID)
	}

	results := o.execute(ctx, ev, order, plan)

	out := o.aggregate(ev, order, results)
	o.telemetry.RecordMetric("orchestrator_decisions_total", 1, map[string]string{
		"event_type": string(ev.Type), "action": string(out.Action),
	})
	return out
}

// idempotentDecision implements spec §4.1's NEW_ORDER idempotency rule: a
// repeated NEW_ORDER for an orderId already assigned returns the existing
// assignment rather than re-running the plan and risking a second driver.
func (o *Orchestrator) idempotentDecision(ctx context.Context, ev domain.Event) (domain.Decision, bool) {
	if ev.Type != domain.EventNewOrder || ev.OrderID == "" {
		return domain.Decision{}, false
	}
	o.mu.Lock()
	already := o.seenNewOrder[ev.OrderID]
	o.seenNewOrder[ev.OrderID] = true
	o.mu.Unlock()
	if !already {
		return domain.Decision{}, false
	}
	existing, err := o.orders.GetByID(ctx, ev.OrderID)
	if err != nil || existing == nil || existing.AssignedDriverID == "" {
		return domain.Decision{}, false
	}
	return domain.Decision{
		Action: domain.DecisionAssigned, OrderID: existing.ID, DriverID: existing.AssignedDriverID,
		Reason: "idempotent replay: order already assigned",
	}, true
}

func (o *Orchestrator) eventDeadline(ev domain.Event) time.Duration {
	if ev.DeadlineMs > 0 {
		return time.Duration(ev.DeadlineMs) * time.Millisecond
	}
	if ev.Type == domain.EventNewOrder {
		if ev.ServiceType == domain.ServiceStandard {
			return standardEventDeadline
		}
		return expressEventDeadline
	}
	return defaultEventDeadline
}

func (o *Orchestrator) acquireSlot() bool {
	n := atomic.AddInt32(&o.inflight, 1)
	if int(n) > o.inflightMax {
		atomic.AddInt32(&o.inflight, -1)
		return false
	}
	return true
}

func (o *Orchestrator) releaseSlot() {
	atomic.AddInt32(&o.inflight, -1)
}

// execute runs plan's parallel phase to completion, optionally extends the
// DRIVER_STATUS_CHANGE plan with a conditional order-recovery step once the
// fleet result is in (spec §4.1's "if driver went offline with active
// orders"), then runs the sequential phase in the table's fixed order.
func (o *Orchestrator) execute(ctx context.Context, ev domain.Event, order *domain.Order, plan Plan) map[TaskName]AgentResult {
	results := make(map[TaskName]AgentResult, len(plan.Parallel)+len(plan.Sequential)+1)
	var resultsMu sync.Mutex

	sem := make(chan struct{}, o.parallelism)
	var wg sync.WaitGroup
	for _, spec := range plan.Parallel {
		spec := spec
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			r := o.runWithDeadline(ctx, spec.Name, ev, order, nil)
			resultsMu.Lock()
			results[spec.Name] = r
			resultsMu.Unlock()
		}()
	}
	wg.Wait()

	sequential := plan.Sequential
	if ev.Type == domain.EventDriverStatusChange {
		if extra, ok := o.conditionalDriverRecoveryStep(ctx, ev, results); ok {
			sequential = append(sequential, extra)
		}
	}

	for _, spec := range sequential {
		if !depsSatisfied(spec, results) {
			continue
		}
		results[spec.Name] = o.runWithDeadline(ctx, spec.Name, ev, order, results)
	}

	return results
}

// conditionalDriverRecoveryStep implements the DRIVER_STATUS_CHANGE row's
// conditional order-recovery edge: only when the fleet snapshot shows this
// driver now offline and still carrying active orders.
func (o *Orchestrator) conditionalDriverRecoveryStep(ctx context.Context, ev domain.Event, results map[TaskName]AgentResult) (TaskSpec, bool) {
	r, ok := results[TaskFleet]
	if !ok || r.Err != nil {
		return TaskSpec{}, false
	}
	snap, ok := r.Data.(*fleet.FleetSnapshot)
	if !ok || ev.DriverID == "" {
		return TaskSpec{}, false
	}
	state, ok := snap.ByID[ev.DriverID]
	if !ok || state.Bucket != fleet.BucketOffline {
		return TaskSpec{}, false
	}
	driver, err := o.drivers.GetByID(ctx, ev.DriverID)
	if err != nil || driver == nil || len(driver.ActiveOrderIDs) == 0 {
		return TaskSpec{}, false
	}
	return TaskSpec{Name: TaskOrderRecovery, Deps: []TaskName{TaskFleet}}, true
}

func (o *Orchestrator) runWithDeadline(ctx context.Context, name TaskName, ev domain.Event, order *domain.Order, results map[TaskName]AgentResult) AgentResult {
	tctx, cancel := context.WithTimeout(ctx, perTaskDeadline)
	defer cancel()
	r := o.run(tctx, name, ev, order, results)
	if r.Err != nil {
		o.logger.Warn("orchestrator: task failed", map[string]interface{}{
			"task": string(name), "event_type": string(ev.Type), "order_id": ev.OrderID, "error": r.Err.Error(),
		})
	}
	return r
}
