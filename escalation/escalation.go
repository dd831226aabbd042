// Package escalation implements Emergency Escalation (spec §4.6, C9): the
// L1-L4 chain with its lifecycle and timeline, plus the background
// resolution checker. Order Recovery strategies live in recovery.go.
// Grounded on the teacher's resilience.CircuitBreaker state-machine idiom
// (closed/open/half-open swapped for initiated/active/resolved) and its
// own-lock-per-entity discipline (spec §5's "timeline entries are
// append-only under the Escalation's own lock").
package escalation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/clock"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/core"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/ports"
)

// EmergencyType is one of the eight named emergency categories (spec
// §4.6).
type EmergencyType string

const (
	TypeSLABreach        EmergencyType = "SLA_BREACH"
	TypeMassSLABreach     EmergencyType = "MASS_SLA_BREACH"
	TypeDriverEmergency   EmergencyType = "DRIVER_EMERGENCY"
	TypeSystemFailure     EmergencyType = "SYSTEM_FAILURE"
	TypeSecurityIncident  EmergencyType = "SECURITY_INCIDENT"
	TypeFleetShortage     EmergencyType = "FLEET_SHORTAGE"
	TypeWeatherEmergency  EmergencyType = "WEATHER_EMERGENCY"
	TypeCustomerEscalation EmergencyType = "CUSTOMER_ESCALATION"
)

// levelOrder indexes L1..L4 for the "bump one step" rule and the
// never-decreases invariant (testable property 6).
var levelOrder = map[domain.EscalationLevel]int{
	domain.EscalationL1: 0, domain.EscalationL2: 1, domain.EscalationL3: 2, domain.EscalationL4: 3,
}

var levelByIndex = []domain.EscalationLevel{domain.EscalationL1, domain.EscalationL2, domain.EscalationL3, domain.EscalationL4}

// levelResponseTime is spec §4.6's per-level SLA for a human to respond.
var levelResponseTime = map[domain.EscalationLevel]time.Duration{
	domain.EscalationL1: 2 * time.Minute,
	domain.EscalationL2: 5 * time.Minute,
	domain.EscalationL3: 10 * time.Minute,
	domain.EscalationL4: 15 * time.Minute,
}

// defaultLevel is each emergency type's starting level before any
// severity bump (spec §4.6: "each carry a default level and severity").
var defaultLevel = map[EmergencyType]domain.EscalationLevel{
	TypeSLABreach:          domain.EscalationL1,
	TypeMassSLABreach:      domain.EscalationL2,
	TypeDriverEmergency:    domain.EscalationL2,
	TypeSystemFailure:      domain.EscalationL3,
	TypeSecurityIncident:   domain.EscalationL3,
	TypeFleetShortage:      domain.EscalationL2,
	TypeWeatherEmergency:   domain.EscalationL2,
	TypeCustomerEscalation: domain.EscalationL1,
}

var defaultSeverity = map[EmergencyType]string{
	TypeSLABreach:          "medium",
	TypeMassSLABreach:      "high",
	TypeDriverEmergency:    "high",
	TypeSystemFailure:      "critical",
	TypeSecurityIncident:   "critical",
	TypeFleetShortage:      "high",
	TypeWeatherEmergency:   "medium",
	TypeCustomerEscalation: "low",
}

// bumpedLevel advances level one step (never past L4); used when severity
// is "critical" (spec §4.6: "severity=critical bumps the level one step").
func bumpedLevel(level domain.EscalationLevel) domain.EscalationLevel {
	idx := levelOrder[level]
	if idx >= len(levelByIndex)-1 {
		return level
	}
	return levelByIndex[idx+1]
}

// entry is a locked wrapper around one Escalation, giving timeline writes
// their own lock independent of the store's map lock (spec §5).
type entry struct {
	mu sync.Mutex
	e  domain.Escalation
}

// Store owns every active and historical Escalation (spec §3: "Owned by
// EscalationStore"). It is the concurrent map spec §5 names as
// "activeEscalations".
type Store struct {
	mu      sync.RWMutex
	active  map[string]*entry
	history map[string]*entry

	gateway ports.EscalationGateway
	clk     clock.Clock
	logger  core.Logger
}

func NewStore(gateway ports.EscalationGateway, clk clock.Clock, logger core.Logger) *Store {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("escalation/store")
	}
	return &Store{active: make(map[string]*entry), history: make(map[string]*entry), gateway: gateway, clk: clk, logger: logger}
}

// Initiate starts a new Escalation for emergencyType, resolving its
// starting level/severity from the type table and bumping one step if
// severity is "critical" (spec §4.6). It notifies the EscalationGateway
// and appends the "initiated" and "active" timeline entries.
func (s *Store) Initiate(ctx context.Context, emergencyType EmergencyType, severityOverride string, affectedOrders, affectedDrivers []string) *domain.Escalation {
	level := defaultLevel[emergencyType]
	severity := defaultSeverity[emergencyType]
	if severityOverride != "" {
		severity = severityOverride
	}
	if severity == "critical" {
		level = bumpedLevel(level)
	}

	now := s.clk.Now()
	esc := domain.Escalation{
		ID:              uuid.New().String(),
		Level:           level,
		EmergencyType:   string(emergencyType),
		Severity:        severity,
		AffectedOrders:  affectedOrders,
		AffectedDrivers: affectedDrivers,
		Status:          domain.EscalationInitiated,
		Timeline: []domain.TimelineEntry{
			{At: now, Event: "initiated", Details: string(emergencyType)},
		},
	}

	ent := &entry{e: esc}
	s.mu.Lock()
	s.active[esc.ID] = ent
	s.mu.Unlock()

	if err := s.gateway.Notify(ctx, level, map[string]interface{}{
		"escalationId": esc.ID, "emergencyType": string(emergencyType), "severity": severity,
		"affectedOrders": affectedOrders, "affectedDrivers": affectedDrivers,
	}); err != nil {
		s.logger.Warn("escalation: gateway notify failed", map[string]interface{}{"escalation_id": esc.ID, "error": err.Error()})
	}

	s.transition(ent, domain.EscalationActive, "active", "")
	result := ent.e
	return &result
}

// AddAction appends act to the Escalation's action list and a
// corresponding timeline entry, both under the entry's own lock.
func (s *Store) AddAction(id string, act domain.Action) {
	ent := s.lookup(id)
	if ent == nil {
		return
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	ent.e.Actions = append(ent.e.Actions, act)
	ent.e.Timeline = append(ent.e.Timeline, domain.TimelineEntry{At: s.clk.Now(), Event: "action:" + act.Type, Details: act.Target})
}

// Escalate raises an already-active Escalation to the next level (never
// decreasing, testable property 6), e.g. when checkResolutionStatus finds
// no progress within the current level's response window.
func (s *Store) Escalate(id, reason string) *domain.Escalation {
	ent := s.lookup(id)
	if ent == nil {
		return nil
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	next := bumpedLevel(ent.e.Level)
	if next != ent.e.Level {
		ent.e.Level = next
		ent.e.Timeline = append(ent.e.Timeline, domain.TimelineEntry{At: s.clk.Now(), Event: "escalated:" + string(next), Details: reason})
	}
	result := ent.e
	return &result
}

// Resolve moves an Escalation from active to resolved/failed/fallback and
// into history (spec §4.6's lifecycle terminal states).
func (s *Store) Resolve(id string, status domain.EscalationStatus, details string) *domain.Escalation {
	ent := s.lookup(id)
	if ent == nil {
		return nil
	}
	s.transition(ent, status, string(status), details)

	s.mu.Lock()
	delete(s.active, id)
	s.history[id] = ent
	s.mu.Unlock()

	result := ent.e
	return &result
}

func (s *Store) transition(ent *entry, status domain.EscalationStatus, event, details string) {
	ent.mu.Lock()
	defer ent.mu.Unlock()
	ent.e.Status = status
	ent.e.Timeline = append(ent.e.Timeline, domain.TimelineEntry{At: s.clk.Now(), Event: event, Details: details})
}

func (s *Store) lookup(id string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.active[id]; ok {
		return e
	}
	return s.history[id]
}

// Get returns a snapshot copy of the Escalation, or nil if unknown.
func (s *Store) Get(id string) *domain.Escalation {
	ent := s.lookup(id)
	if ent == nil {
		return nil
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	result := ent.e
	return &result
}

// ActiveIDs returns the IDs of every currently-active Escalation.
func (s *Store) ActiveIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	return ids
}

// ResolutionChecker is a ResolutionFunc-driven background poller matching
// spec §4.6's "background checker polls checkResolutionStatus each
// minute; on resolved, clear from active set."
type ResolutionChecker struct {
	store   *Store
	checkFn func(ctx context.Context, esc *domain.Escalation) (resolved bool, status domain.EscalationStatus)
	clk     clock.Clock
	logger  core.Logger
}

func NewResolutionChecker(store *Store, clk clock.Clock, checkFn func(ctx context.Context, esc *domain.Escalation) (bool, domain.EscalationStatus), logger core.Logger) *ResolutionChecker {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("escalation/checker")
	}
	return &ResolutionChecker{store: store, checkFn: checkFn, clk: clk, logger: logger}
}

// Start runs a check pass once a minute until ctx is cancelled.
func (c *ResolutionChecker) Start(ctx context.Context) {
	c.clk.AfterEvery(ctx, time.Minute, c.checkOnce)
}

func (c *ResolutionChecker) checkOnce(ctx context.Context) {
	for _, id := range c.store.ActiveIDs() {
		esc := c.store.Get(id)
		if esc == nil {
			continue
		}
		resolved, status := c.checkFn(ctx, esc)
		if resolved {
			c.store.Resolve(id, status, "resolution checker")
			c.logger.Info("escalation resolved", map[string]interface{}{"escalation_id": id, "status": string(status)})
		}
	}
}

// TimeSinceEscalated reports how long esc has been at its current level,
// used by callers deciding whether to call Escalate for missing the
// level's response window (levelResponseTime).
func TimeSinceEscalated(esc *domain.Escalation, now time.Time) time.Duration {
	for i := len(esc.Timeline) - 1; i >= 0; i-- {
		if esc.Timeline[i].Event == "active" || strings.HasPrefix(esc.Timeline[i].Event, "escalated") {
			return now.Sub(esc.Timeline[i].At)
		}
	}
	if len(esc.Timeline) > 0 {
		return now.Sub(esc.Timeline[0].At)
	}
	return 0
}

// ResponseWindow returns the level's allotted human-response time.
func ResponseWindow(level domain.EscalationLevel) time.Duration {
	return levelResponseTime[level]
}
