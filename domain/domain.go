// Package domain holds the plain data types shared by every agent and port
// in the decision core: Order, Driver, Route, SLAStatus, Event, Action,
// Escalation, and Decision (spec §3). Nothing in this package does I/O;
// mutation rules live with the repositories and agents that own each type.
package domain

import "time"

type ServiceType string

const (
	ServiceExpress  ServiceType = "EXPRESS"
	ServiceStandard ServiceType = "STANDARD"
)

type OrderStatus string

const (
	OrderPending            OrderStatus = "pending"
	OrderAssigned           OrderStatus = "assigned"
	OrderPickupInProgress   OrderStatus = "pickup_in_progress"
	OrderDeliveryInProgress OrderStatus = "delivery_in_progress"
	OrderCompleted          OrderStatus = "completed"
	OrderCancelled          OrderStatus = "cancelled"
)

// LatLng is a WGS84 coordinate pair. Timestamp is set on Driver.Location and
// left zero on pure waypoints (Order.Pickup/Delivery).
type LatLng struct {
	Lat float64
	Lng float64
	At  time.Time
}

// Order is owned by OrderRepository; AssignedDriverID is only ever changed
// via OrderRepository.CASAssignedDriver (I1).
type Order struct {
	ID               string
	ServiceType      ServiceType
	Status           OrderStatus
	CreatedAt        time.Time
	PromisedAt       time.Time
	Pickup           LatLng
	Delivery         LatLng
	Priority         int // 1..10
	AssignedDriverID string
	PriorityBoost    int
	DeliveryAttempts int
	SLANotified      bool // monotonic, I3
	DelayNotified    bool // monotonic, I3
	CustomerPhone    string
	CustomerUserID   string
}

type VehicleType string

const (
	VehicleBike VehicleType = "BIKE"
	VehicleCar  VehicleType = "CAR"
	VehicleVan  VehicleType = "VAN"
)

type DriverStatus string

const (
	DriverAvailable DriverStatus = "AVAILABLE"
	DriverBusy      DriverStatus = "BUSY"
	DriverBreak     DriverStatus = "BREAK"
	DriverOffline   DriverStatus = "OFFLINE"
	DriverFull      DriverStatus = "FULL"
)

// Driver is owned by DriverRepository.
type Driver struct {
	ID                string
	VehicleType       VehicleType
	Status            DriverStatus
	Location          LatLng
	ActiveOrderIDs    []string
	ContinuousMinutes float64
	OrdersToday       int
	LastBreakAt       time.Time
	Battery           float64 // 0..100
	Rating            float64 // 0..5
	BarqSuccessRate   float64 // 0..1, EXPRESS-capability gate
	OnBreakFlag       bool
}

// Capacity is the per-vehicle-type concurrent-order ceiling, split by SLA
// class. Barq = EXPRESS slots, Bullet = STANDARD slots (glossary).
type Capacity struct {
	Barq   int
	Bullet int
}

// DefaultCapacities mirrors spec §3's fixed table; Config may override it.
func DefaultCapacities() map[VehicleType]Capacity {
	return map[VehicleType]Capacity{
		VehicleBike: {Barq: 5, Bullet: 8},
		VehicleCar:  {Barq: 8, Bullet: 15},
		VehicleVan:  {Barq: 10, Bullet: 25},
	}
}

type StopType string

const (
	StopStart    StopType = "start"
	StopPickup   StopType = "pickup"
	StopDelivery StopType = "delivery"
	StopEnd      StopType = "end"
)

type Stop struct {
	ID              string
	Type            StopType
	Location        LatLng
	ServiceTimeMin  float64
	EstimatedArrival time.Time
	Priority        int
}

type Segment struct {
	From       LatLng
	To         LatLng
	DistanceKm float64
	DurationMin float64
	Traffic    string // e.g. "moderate", set when traffic adjustment applied
}

type RouteQuality string

const (
	QualityExcellent RouteQuality = "excellent"
	QualityGood      RouteQuality = "good"
	QualityAcceptable RouteQuality = "acceptable"
	QualityPoor      RouteQuality = "poor"
	QualityFallback  RouteQuality = "fallback"
	QualityCached    RouteQuality = "cached"
)

// Route is ephemeral: produced by the route optimization engine (C6) and
// attached to an assignment, never stored canonically.
type Route struct {
	ID               string
	DriverID         string
	Stops            []Stop
	Segments         []Segment
	TotalDistanceKm  float64
	TotalDurationMin float64
	Quality          RouteQuality
}

type SLACategory string

const (
	SLAHealthy  SLACategory = "healthy"
	SLAWarning  SLACategory = "warning"
	SLACritical SLACategory = "critical"
	SLABreached SLACategory = "breached"
)

// SLAStatus is recomputed every tick; it is never stored canonically (spec
// §3) — callers that need history persist the Action stream instead.
type SLAStatus struct {
	OrderID              string
	ElapsedMin           float64
	RemainingMin         float64
	Category             SLACategory
	PredictedDeliveryMin float64
	CanMeetSLA           bool
	AlertRequired        bool
	ActionRequired        bool
}

type EventType string

const (
	EventNewOrder            EventType = "NEW_ORDER"
	EventSLAWarning          EventType = "SLA_WARNING"
	EventDriverStatusChange  EventType = "DRIVER_STATUS_CHANGE"
	EventBatchOptimization   EventType = "BATCH_OPTIMIZATION"
	EventOrderCompleted      EventType = "ORDER_COMPLETED"
	EventInternalReassign    EventType = "INTERNAL_REASSIGN"
	EventInternalEscalate    EventType = "INTERNAL_ESCALATE"
)

// Event is the sole intake shape accepted by Orchestrate. Unknown Type
// values are handled explicitly by the orchestrator (action=QUEUED,
// reason=UNKNOWN_EVENT) rather than rejected as invalid.
type Event struct {
	Type        EventType
	OrderID     string
	DriverID    string
	ServiceType ServiceType
	Payload     map[string]interface{}
	DeadlineMs  int64
}

type ActionPriority string

const (
	PriorityLow      ActionPriority = "low"
	PriorityMedium   ActionPriority = "medium"
	PriorityHigh     ActionPriority = "high"
	PriorityCritical ActionPriority = "critical"
)

// Action is a corrective side-effect produced by C5/C9 and carried out by
// the Orchestrator (e.g. through Notifier or AutonomousOrchestrator).
type Action struct {
	Type      string
	Priority  ActionPriority
	Immediate bool
	Target    string // usually an orderId or driverId
	Payload   map[string]interface{}
}

type EscalationLevel string

const (
	EscalationL1 EscalationLevel = "L1"
	EscalationL2 EscalationLevel = "L2"
	EscalationL3 EscalationLevel = "L3"
	EscalationL4 EscalationLevel = "L4"
)

type EscalationStatus string

const (
	EscalationInitiated EscalationStatus = "initiated"
	EscalationActive    EscalationStatus = "active"
	EscalationResolved  EscalationStatus = "resolved"
	EscalationFailed    EscalationStatus = "failed"
	EscalationFallback  EscalationStatus = "fallback"
)

type TimelineEntry struct {
	At      time.Time
	Event   string
	Details string
}

// Escalation is owned by the escalation package's in-memory/Redis store;
// its Level only ever increases within one lifetime (testable property 6).
type Escalation struct {
	ID              string
	Level           EscalationLevel
	EmergencyType   string
	Severity        string
	AffectedOrders  []string
	AffectedDrivers []string
	Actions         []Action
	Timeline        []TimelineEntry
	Status          EscalationStatus
}

type DecisionAction string

const (
	DecisionAssigned             DecisionAction = "ASSIGNED"
	DecisionAssignedPendingRoute DecisionAction = "ASSIGNED_PENDING_ROUTE"
	DecisionQueued               DecisionAction = "QUEUED"
	DecisionFailed               DecisionAction = "FAILED"
	DecisionEmergencyQueue       DecisionAction = "EMERGENCY_QUEUE"
)

// Decision is the Orchestrator's output, the one value returned per
// Orchestrate call and persisted via OrderRepository as part of assignment.
type Decision struct {
	Action                    DecisionAction
	OrderID                   string
	DriverID                  string
	Route                     *Route
	Confidence                float64
	Risks                     []string
	Recommendations           []string
	RequiresManualIntervention bool
	Reason                    string
}
