package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable named in the decision core's configuration
// table. It supports the same three-layer priority as the teacher's
// core.Config: defaults (lowest) → environment variables → functional
// options (highest).
//
//	cfg, err := NewConfig(WithOrchestratorParallelism(16))
type Config struct {
	SLA         SLAConfig         `json:"sla"`
	Capacity    CapacityConfig    `json:"capacity"`
	RouteCache  RouteCacheConfig  `json:"route_cache"`
	Genetic     GeneticConfig     `json:"genetic"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Channels    ChannelsConfig    `json:"channels"`
	QuietHours  QuietHoursConfig  `json:"quiet_hours"`
	Autonomous  AutonomousConfig  `json:"autonomous"`
	Logging     LoggingConfig     `json:"logging"`

	logger    Logger    `json:"-"`
	telemetry Telemetry `json:"-"`
}

// SLAThresholds holds the warning/critical/breach minute marks for one
// service class (spec §4.3).
type SLAThresholds struct {
	WarningMin  float64 `json:"warning" env:"WARNING" default:"40"`
	CriticalMin float64 `json:"critical" env:"CRITICAL" default:"50"`
	BreachMin   float64 `json:"breach" env:"BREACH" default:"60"`
}

type SLAConfig struct {
	Express  SLAThresholds `json:"express"`
	Standard SLAThresholds `json:"standard"`
}

// CapacityEntry is the per-vehicle-type {barq,bullet} cap pair.
type CapacityEntry struct {
	Barq   int `json:"barq"`
	Bullet int `json:"bullet"`
}

type CapacityConfig struct {
	Bike CapacityEntry `json:"bike"`
	Car  CapacityEntry `json:"car"`
	Van  CapacityEntry `json:"van"`
}

type RouteCacheConfig struct {
	TTLMs      int `json:"ttl_ms" env:"ROUTE_CACHE_TTL_MS" default:"300000"`
	MaxEntries int `json:"max_entries" env:"ROUTE_CACHE_MAX_ENTRIES" default:"1000"`
}

type GeneticConfig struct {
	Population int     `json:"pop" env:"ROUTE_GA_POP" default:"50"`
	Generations int    `json:"gens" env:"ROUTE_GA_GENS" default:"100"`
	Mutation   float64 `json:"mutation" env:"ROUTE_GA_MUTATION" default:"0.01"`
	Crossover  float64 `json:"crossover" env:"ROUTE_GA_CROSSOVER" default:"0.7"`
	Elitism    int     `json:"elitism" env:"ROUTE_GA_ELITISM" default:"2"`
	Seed       int64   `json:"seed" env:"ROUTE_GA_SEED" default:"42"`
}

type OrchestratorConfig struct {
	Parallelism int `json:"parallelism" env:"ORCHESTRATOR_PARALLELISM" default:"32"`
	InflightMax int `json:"inflight_max" env:"ORCHESTRATOR_INFLIGHT_MAX" default:"256"`
}

type ChannelsConfig struct {
	SMS      bool `json:"sms" env:"CHANNEL_SMS_ENABLED" default:"true"`
	WhatsApp bool `json:"whatsapp" env:"CHANNEL_WHATSAPP_ENABLED" default:"false"`
	Email    bool `json:"email" env:"CHANNEL_EMAIL_ENABLED" default:"true"`
	InApp    bool `json:"in_app" env:"CHANNEL_INAPP_ENABLED" default:"true"`
	Voice    bool `json:"voice" env:"CHANNEL_VOICE_ENABLED" default:"false"`
}

type QuietHoursConfig struct {
	StartHour int `json:"start" env:"QUIET_HOURS_START" default:"22"`
	EndHour   int `json:"end" env:"QUIET_HOURS_END" default:"7"`
}

type AutonomousConfig struct {
	BreachedMinTrigger int     `json:"breached_min" env:"AUTONOMOUS_BREACHED_MIN" default:"1"`
	CriticalMinTrigger int     `json:"critical_min" env:"AUTONOMOUS_CRITICAL_MIN" default:"3"`
	AtRiskPctTrigger   float64 `json:"at_risk_pct" env:"AUTONOMOUS_AT_RISK_PCT" default:"0.3"`
}

type LoggingConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL" default:"info"`
	Format string `json:"format" env:"LOG_FORMAT" default:"json"`
	Output string `json:"output" env:"LOG_OUTPUT" default:"stdout"`
}

// Option mutates a Config during NewConfig, applied after defaults and
// environment variables so callers always win.
type Option func(*Config) error

// DefaultConfig returns the configuration table's documented defaults
// (spec §6), before any environment or option layer is applied.
func DefaultConfig() *Config {
	return &Config{
		SLA: SLAConfig{
			Express:  SLAThresholds{WarningMin: 40, CriticalMin: 50, BreachMin: 60},
			Standard: SLAThresholds{WarningMin: 150, CriticalMin: 210, BreachMin: 240},
		},
		Capacity: CapacityConfig{
			Bike: CapacityEntry{Barq: 5, Bullet: 8},
			Car:  CapacityEntry{Barq: 8, Bullet: 15},
			Van:  CapacityEntry{Barq: 10, Bullet: 25},
		},
		RouteCache: RouteCacheConfig{TTLMs: 300_000, MaxEntries: 1000},
		Genetic: GeneticConfig{
			Population: 50, Generations: 100, Mutation: 0.01, Crossover: 0.7, Elitism: 2, Seed: 42,
		},
		Orchestrator: OrchestratorConfig{Parallelism: 32, InflightMax: 256},
		Channels:     ChannelsConfig{SMS: true, WhatsApp: false, Email: true, InApp: true, Voice: false},
		QuietHours:   QuietHoursConfig{StartHour: 22, EndHour: 7},
		Autonomous:   AutonomousConfig{BreachedMinTrigger: 1, CriticalMinTrigger: 3, AtRiskPctTrigger: 0.3},
		Logging:      LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = parseBool(v)
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// LoadFromEnv overlays environment variables onto the current values and
// validates the result. A variable that fails to parse is ignored and the
// current value kept; the returned error comes from Validate.
func (c *Config) LoadFromEnv() error {
	envFloat("SLA_EXPRESS_WARNING", &c.SLA.Express.WarningMin)
	envFloat("SLA_EXPRESS_CRITICAL", &c.SLA.Express.CriticalMin)
	envFloat("SLA_EXPRESS_BREACH", &c.SLA.Express.BreachMin)
	envFloat("SLA_STANDARD_WARNING", &c.SLA.Standard.WarningMin)
	envFloat("SLA_STANDARD_CRITICAL", &c.SLA.Standard.CriticalMin)
	envFloat("SLA_STANDARD_BREACH", &c.SLA.Standard.BreachMin)

	envInt("CAPACITY_BIKE_BARQ", &c.Capacity.Bike.Barq)
	envInt("CAPACITY_BIKE_BULLET", &c.Capacity.Bike.Bullet)
	envInt("CAPACITY_CAR_BARQ", &c.Capacity.Car.Barq)
	envInt("CAPACITY_CAR_BULLET", &c.Capacity.Car.Bullet)
	envInt("CAPACITY_VAN_BARQ", &c.Capacity.Van.Barq)
	envInt("CAPACITY_VAN_BULLET", &c.Capacity.Van.Bullet)

	envInt("ROUTE_CACHE_TTL_MS", &c.RouteCache.TTLMs)
	envInt("ROUTE_CACHE_MAX_ENTRIES", &c.RouteCache.MaxEntries)

	envInt("ROUTE_GA_POP", &c.Genetic.Population)
	envInt("ROUTE_GA_GENS", &c.Genetic.Generations)
	envFloat("ROUTE_GA_MUTATION", &c.Genetic.Mutation)
	envFloat("ROUTE_GA_CROSSOVER", &c.Genetic.Crossover)
	envInt("ROUTE_GA_ELITISM", &c.Genetic.Elitism)
	if v := os.Getenv("ROUTE_GA_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Genetic.Seed = n
		}
	}

	envInt("ORCHESTRATOR_PARALLELISM", &c.Orchestrator.Parallelism)
	envInt("ORCHESTRATOR_INFLIGHT_MAX", &c.Orchestrator.InflightMax)

	envBool("CHANNEL_SMS_ENABLED", &c.Channels.SMS)
	envBool("CHANNEL_WHATSAPP_ENABLED", &c.Channels.WhatsApp)
	envBool("CHANNEL_EMAIL_ENABLED", &c.Channels.Email)
	envBool("CHANNEL_INAPP_ENABLED", &c.Channels.InApp)
	envBool("CHANNEL_VOICE_ENABLED", &c.Channels.Voice)

	envInt("QUIET_HOURS_START", &c.QuietHours.StartHour)
	envInt("QUIET_HOURS_END", &c.QuietHours.EndHour)

	envInt("AUTONOMOUS_BREACHED_MIN", &c.Autonomous.BreachedMinTrigger)
	envInt("AUTONOMOUS_CRITICAL_MIN", &c.Autonomous.CriticalMinTrigger)
	envFloat("AUTONOMOUS_AT_RISK_PCT", &c.Autonomous.AtRiskPctTrigger)

	envString("LOG_LEVEL", &c.Logging.Level)
	envString("LOG_FORMAT", &c.Logging.Format)
	envString("LOG_OUTPUT", &c.Logging.Output)

	return c.Validate()
}

// Validate rejects configurations the rest of the core cannot act on
// safely (e.g. a warning threshold at or past the breach threshold would
// make the SLA state machine non-monotonic).
func (c *Config) Validate() error {
	if c.SLA.Express.WarningMin >= c.SLA.Express.CriticalMin || c.SLA.Express.CriticalMin >= c.SLA.Express.BreachMin {
		return fmt.Errorf("%w: sla.express thresholds must be warning < critical < breach", ErrInvalidConfig)
	}
	if c.SLA.Standard.WarningMin >= c.SLA.Standard.CriticalMin || c.SLA.Standard.CriticalMin >= c.SLA.Standard.BreachMin {
		return fmt.Errorf("%w: sla.standard thresholds must be warning < critical < breach", ErrInvalidConfig)
	}
	if c.Orchestrator.Parallelism <= 0 {
		return fmt.Errorf("%w: orchestrator.parallelism must be positive", ErrInvalidConfig)
	}
	if c.Orchestrator.InflightMax <= 0 {
		return fmt.Errorf("%w: orchestrator.inflightMax must be positive", ErrInvalidConfig)
	}
	if c.RouteCache.MaxEntries <= 0 {
		return fmt.Errorf("%w: route.cache.maxEntries must be positive", ErrInvalidConfig)
	}
	return nil
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

// WithOrchestratorParallelism overrides the agent fan-out cap.
func WithOrchestratorParallelism(n int) Option {
	return func(c *Config) error {
		c.Orchestrator.Parallelism = n
		return nil
	}
}

// WithOrchestratorInflightMax overrides the backpressure threshold.
func WithOrchestratorInflightMax(n int) Option {
	return func(c *Config) error {
		c.Orchestrator.InflightMax = n
		return nil
	}
}

// WithSLAThresholds overrides thresholds for one service class.
func WithSLAThresholds(express bool, warning, critical, breach float64) Option {
	return func(c *Config) error {
		t := SLAThresholds{WarningMin: warning, CriticalMin: critical, BreachMin: breach}
		if express {
			c.SLA.Express = t
		} else {
			c.SLA.Standard = t
		}
		return nil
	}
}

// WithLogLevel overrides the logging level.
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

// WithLogger injects a pre-built logger instead of constructing a
// ProductionLogger from LoggingConfig.
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.logger = logger
		return nil
	}
}

// WithTelemetry injects the Telemetry the built-in ProductionLogger uses to
// record its "decisioncore.log.events" counter. Left nil, the logger emits
// no metrics (NoOpTelemetry).
func WithTelemetry(t Telemetry) Option {
	return func(c *Config) error {
		c.telemetry = t
		return nil
	}
}

// NewConfig applies the three layers in order — defaults, environment,
// functional options — and attaches a ProductionLogger if none was
// injected via WithLogger.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if cfg.logger == nil {
		cfg.logger = NewProductionLogger(cfg.Logging, "decision-core", cfg.telemetry)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Logger returns the configuration's attached logger.
func (c *Config) Logger() Logger { return c.logger }

// CapacityFor returns the {barq,bullet} caps for a vehicle type, defaulting
// to the bike tier for unknown values (the smallest vehicle's ceiling).
func (c *Config) CapacityFor(vehicleType string) CapacityEntry {
	switch vehicleType {
	case "CAR":
		return c.Capacity.Car
	case "VAN":
		return c.Capacity.Van
	default:
		return c.Capacity.Bike
	}
}

// ============================================================================
// ProductionLogger
// ============================================================================

// ProductionLogger is the structured Logger implementation used everywhere
// outside of tests. It formats as JSON or as human-readable text depending
// on LoggingConfig.Format, and tags every line with a component field so
// operators can filter by agent (spec's ambient logging convention).
type ProductionLogger struct {
	level       string
	debug       bool
	serviceName string
	component   string
	format      string
	output      io.Writer

	telemetry Telemetry
}

// NewProductionLogger builds a root logger for serviceName from LoggingConfig.
// telemetry may be nil, in which case log-event metrics are dropped
// (NoOpTelemetry); inject a real core.Telemetry the same way every other
// package does (constructor parameter, never a package-level singleton).
func NewProductionLogger(logging LoggingConfig, serviceName string, telemetry Telemetry) Logger {
	var output io.Writer = os.Stdout
	if logging.Output == "stderr" {
		output = os.Stderr
	}
	if telemetry == nil {
		telemetry = &NoOpTelemetry{}
	}
	return &ProductionLogger{
		level:       strings.ToLower(logging.Level),
		debug:       strings.ToLower(logging.Level) == "debug",
		serviceName: serviceName,
		component:   serviceName,
		format:      logging.Format,
		output:      output,
		telemetry:   telemetry,
	}
}

// WithComponent returns a logger sharing this one's sink/format but tagging
// log lines with a different component, e.g. "agent/sla-monitor".
func (p *ProductionLogger) WithComponent(component string) Logger {
	clone := *p
	clone.component = component
	return &clone
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, nil)
}
func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, ctx)
}
func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, nil)
}
func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, ctx)
}
func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, nil)
}
func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, ctx)
}
func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, nil)
	}
}
func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, ctx)
	}
}

func (p *ProductionLogger) logEvent(level, msg string, fields map[string]interface{}, ctx context.Context) {
	timestamp := time.Now().Format(time.RFC3339)

	if p.format == "json" {
		entry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level,
			"service":   p.serviceName,
			"component": p.component,
			"message":   msg,
		}
		for k, v := range fields {
			entry[k] = v
		}
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
	} else {
		var b strings.Builder
		for k, v := range fields {
			fmt.Fprintf(&b, " %s=%v", k, v)
		}
		fmt.Fprintf(p.output, "%s [%s] [%s] %s%s\n", timestamp, level, p.component, msg, b.String())
	}

	p.telemetry.RecordMetric("decisioncore.log.events", 1.0, map[string]string{
		"level": level, "service": p.serviceName, "component": p.component,
	})
}
