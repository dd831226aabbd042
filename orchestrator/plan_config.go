// plan_config.go lets an operator override BuildPlan's compiled-in table
// with a YAML file at startup, the way the teacher's routing.WorkflowRouter
// loads WorkflowDefinition files from a directory instead of a Go literal.
// BuildPlan's table remains the default and the only thing this module's
// own tests rely on; LoadPlanOverrides is for deployments that want to
// retune the DAG without a rebuild.
package orchestrator

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
)

// taskConfigEntry mirrors TaskSpec with string fields yaml.v3 can decode
// directly; Name/Deps are validated against the known TaskName constants
// on load so a typo in the file fails fast instead of silently building a
// task nothing dispatches.
type taskConfigEntry struct {
	Name     string   `yaml:"name"`
	Priority int      `yaml:"priority"`
	Deps     []string `yaml:"deps,omitempty"`
}

type planConfigEntry struct {
	Parallel   []taskConfigEntry `yaml:"parallel,omitempty"`
	Sequential []taskConfigEntry `yaml:"sequential,omitempty"`
}

var knownTasks = map[string]TaskName{
	string(TaskFleet): TaskFleet, string(TaskFleetRebalancer): TaskFleetRebalancer,
	string(TaskSLAFeasibility): TaskSLAFeasibility, string(TaskSLAMonitor): TaskSLAMonitor,
	string(TaskGeo): TaskGeo, string(TaskBatch): TaskBatch, string(TaskDemand): TaskDemand,
	string(TaskOrderAssignment): TaskOrderAssignment, string(TaskRouteOptimization): TaskRouteOptimization,
	string(TaskEmergencyEscalation): TaskEmergencyEscalation, string(TaskOrderRecovery): TaskOrderRecovery,
}

// LoadPlanOverrides parses a YAML document mapping event type names (spec
// §4.1's NEW_ORDER/SLA_WARNING/... table's row keys) to a plan. A document
// covering only some event types leaves the rest on BuildPlan's default —
// resolvePlan falls through per event type, not all-or-nothing.
func LoadPlanOverrides(r io.Reader) (map[domain.EventType]Plan, error) {
	var raw map[string]planConfigEntry
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("orchestrator: decoding plan overrides: %w", err)
	}

	out := make(map[domain.EventType]Plan, len(raw))
	for evName, entry := range raw {
		plan, err := entry.toPlan()
		if err != nil {
			return nil, fmt.Errorf("orchestrator: event %q: %w", evName, err)
		}
		out[domain.EventType(evName)] = plan
	}
	return out, nil
}

func (e planConfigEntry) toPlan() (Plan, error) {
	parallel, err := convertSpecs(e.Parallel)
	if err != nil {
		return Plan{}, err
	}
	sequential, err := convertSpecs(e.Sequential)
	if err != nil {
		return Plan{}, err
	}
	return Plan{Parallel: parallel, Sequential: sequential}, nil
}

func convertSpecs(entries []taskConfigEntry) ([]TaskSpec, error) {
	specs := make([]TaskSpec, 0, len(entries))
	for _, c := range entries {
		name, ok := knownTasks[c.Name]
		if !ok {
			return nil, fmt.Errorf("unknown task name %q", c.Name)
		}
		deps := make([]TaskName, 0, len(c.Deps))
		for _, d := range c.Deps {
			depName, ok := knownTasks[d]
			if !ok {
				return nil, fmt.Errorf("task %q: unknown dependency %q", c.Name, d)
			}
			deps = append(deps, depName)
		}
		specs = append(specs, TaskSpec{Name: name, Priority: c.Priority, Deps: deps})
	}
	return specs, nil
}

// resolvePlan checks planOverrides before falling back to BuildPlan's
// compiled-in table, so a YAML override and the hardcoded default can
// coexist per event type.
func (o *Orchestrator) resolvePlan(ev domain.Event) (Plan, error) {
	if o.planOverrides != nil {
		if plan, ok := o.planOverrides[ev.Type]; ok {
			return plan, nil
		}
	}
	return BuildPlan(ev)
}
