// Package overlay implements non-destructive run metadata: removals,
// modifications, manual assignments and forced completions recorded against
// a base plan without touching it. Mutators only append; every reference is
// checked when the overlay is applied, never before.
package overlay

import (
	"fmt"
	"time"

	"github.com/kailiangshang/team-work/internal/domain"
	"github.com/kailiangshang/team-work/internal/graph"
)

// AgentModification is a shallow field merge against one agent, keyed by
// the JSON field names of the agent type. Later modifications of the same
// id win field by field.
type AgentModification struct {
	AgentID string         `json:"agent_id"`
	Changes map[string]any `json:"changes"`
}

// TaskModification is the task-side counterpart of AgentModification.
type TaskModification struct {
	TaskID  string         `json:"task_id"`
	Changes map[string]any `json:"changes"`
}

// Overlay collects run-scoped deltas over a base plan. The zero value is a
// usable empty overlay. The JSON shape is the serialized metadata contract:
// simulation_config, removed/modified lists and manual assignment map.
type Overlay struct {
	ProjectID      string              `json:"project_id,omitempty"`
	BaseVersionID  string              `json:"base_version_id,omitempty"`
	Config         domain.RunConfig    `json:"simulation_config"`
	RemovedAgents  []string            `json:"removed_agents,omitempty"`
	RemovedTasks   []string            `json:"removed_tasks,omitempty"`
	ModifiedAgents []AgentModification `json:"modified_agents,omitempty"`
	ModifiedTasks  []TaskModification  `json:"modified_tasks,omitempty"`
	Assignments    map[string]string   `json:"manual_assignments,omitempty"`
	Completed      []string            `json:"completed_tasks,omitempty"`
	CreatedAt      time.Time           `json:"created_at,omitempty"`
	UpdatedAt      time.Time           `json:"updated_at,omitempty"`
}

// New returns an overlay bound to a project version.
func New(projectID, baseVersionID string) *Overlay {
	now := time.Now().UTC()
	return &Overlay{
		ProjectID:     projectID,
		BaseVersionID: baseVersionID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (o *Overlay) touch() { o.UpdatedAt = time.Now().UTC() }

// RemoveAgent marks an agent as absent for the run. Repeats are collapsed.
func (o *Overlay) RemoveAgent(agentID string) {
	if !contains(o.RemovedAgents, agentID) {
		o.RemovedAgents = append(o.RemovedAgents, agentID)
	}
	o.touch()
}

// RemoveTask marks a task as dropped for the run. Repeats are collapsed.
func (o *Overlay) RemoveTask(taskID string) {
	if !contains(o.RemovedTasks, taskID) {
		o.RemovedTasks = append(o.RemovedTasks, taskID)
	}
	o.touch()
}

// ModifyAgent records a shallow field merge against one agent.
func (o *Overlay) ModifyAgent(agentID string, changes map[string]any) {
	o.ModifiedAgents = append(o.ModifiedAgents, AgentModification{AgentID: agentID, Changes: changes})
	o.touch()
}

// ModifyTask records a shallow field merge against one task.
func (o *Overlay) ModifyTask(taskID string, changes map[string]any) {
	o.ModifiedTasks = append(o.ModifiedTasks, TaskModification{TaskID: taskID, Changes: changes})
	o.touch()
}

// AssignManually pins a task to an agent for the run. The pairing is not
// checked here; the assignment resolver degrades invalid pins with a
// warning at run time.
func (o *Overlay) AssignManually(taskID, agentID string) {
	if o.Assignments == nil {
		o.Assignments = make(map[string]string)
	}
	o.Assignments[taskID] = agentID
	o.touch()
}

// MarkCompleted records a forced completion. Repeats are collapsed.
func (o *Overlay) MarkCompleted(taskID string) {
	if !contains(o.Completed, taskID) {
		o.Completed = append(o.Completed, taskID)
	}
	o.touch()
}

// SetConfig replaces the run configuration carried by the overlay.
func (o *Overlay) SetConfig(cfg domain.RunConfig) {
	o.Config = cfg
	o.touch()
}

// Apply materializes the effective plan: deep copies of the base tasks and
// agents with every recorded delta folded in. The base plan is never
// mutated. References to ids absent from the base fail with a
// ValidationError; a removed task that other tasks still depend on does too.
func (o *Overlay) Apply(base domain.Plan) (domain.Plan, error) {
	eff := domain.Plan{
		ProjectID: base.ProjectID,
		VersionID: base.VersionID,
		Tasks:     make([]domain.Task, 0, len(base.Tasks)),
		Agents:    make([]domain.Agent, 0, len(base.Agents)),
	}

	taskIDs := make(map[string]bool, len(base.Tasks))
	for _, t := range base.Tasks {
		taskIDs[t.ID] = true
	}
	agentIDs := make(map[string]bool, len(base.Agents))
	for _, a := range base.Agents {
		agentIDs[a.ID] = true
	}

	for _, id := range o.RemovedTasks {
		if !taskIDs[id] {
			return domain.Plan{}, &graph.ValidationError{Reason: fmt.Sprintf("overlay removes unknown task %q", id)}
		}
	}
	for _, id := range o.RemovedAgents {
		if !agentIDs[id] {
			return domain.Plan{}, &graph.ValidationError{Reason: fmt.Sprintf("overlay removes unknown agent %q", id)}
		}
	}
	for _, m := range o.ModifiedTasks {
		if !taskIDs[m.TaskID] {
			return domain.Plan{}, &graph.ValidationError{Reason: fmt.Sprintf("overlay modifies unknown task %q", m.TaskID)}
		}
	}
	for _, m := range o.ModifiedAgents {
		if !agentIDs[m.AgentID] {
			return domain.Plan{}, &graph.ValidationError{Reason: fmt.Sprintf("overlay modifies unknown agent %q", m.AgentID)}
		}
	}
	for id := range o.Assignments {
		if !taskIDs[id] {
			return domain.Plan{}, &graph.ValidationError{Reason: fmt.Sprintf("overlay assigns unknown task %q", id)}
		}
	}
	for _, id := range o.Completed {
		if !taskIDs[id] {
			return domain.Plan{}, &graph.ValidationError{Reason: fmt.Sprintf("overlay completes unknown task %q", id)}
		}
	}

	removedTasks := toSet(o.RemovedTasks)
	removedAgents := toSet(o.RemovedAgents)

	for _, t := range base.Tasks {
		if removedTasks[t.ID] {
			continue
		}
		t.Dependencies = append([]string(nil), t.Dependencies...)
		t.RequiredSkills = append([]string(nil), t.RequiredSkills...)
		for _, m := range o.ModifiedTasks {
			if m.TaskID == t.ID {
				if err := mergeTask(&t, m.Changes); err != nil {
					return domain.Plan{}, err
				}
			}
		}
		for _, dep := range t.Dependencies {
			if removedTasks[dep] {
				return domain.Plan{}, &graph.ValidationError{Reason: fmt.Sprintf("task %q depends on removed task %q", t.ID, dep)}
			}
		}
		// Removing an agent orphans its tasks back into the pending pool.
		if t.AssignedAgent != "" && removedAgents[t.AssignedAgent] {
			t.AssignedAgent = ""
			if t.Status == domain.TaskStatusInProgress {
				t.Status = domain.TaskStatusPending
			}
		}
		if contains(o.Completed, t.ID) {
			t.Status = domain.TaskStatusCompleted
			t.Progress = 100
		}
		eff.Tasks = append(eff.Tasks, t)
	}

	for _, a := range base.Agents {
		if removedAgents[a.ID] {
			continue
		}
		a.Capabilities = append([]domain.Capability(nil), a.Capabilities...)
		for _, m := range o.ModifiedAgents {
			if m.AgentID == a.ID {
				if err := mergeAgent(&a, m.Changes); err != nil {
					return domain.Plan{}, err
				}
			}
		}
		eff.Agents = append(eff.Agents, a)
	}

	return eff, nil
}

func mergeTask(t *domain.Task, changes map[string]any) error {
	for key, v := range changes {
		switch key {
		case "name":
			s, ok := v.(string)
			if !ok {
				return badField(t.ID, key, v)
			}
			t.Name = s
		case "type":
			s, ok := v.(string)
			if !ok {
				return badField(t.ID, key, v)
			}
			t.Type = s
		case "complexity":
			n, ok := asInt(v)
			if !ok {
				return badField(t.ID, key, v)
			}
			t.Complexity = n
		case "priority":
			n, ok := asInt(v)
			if !ok {
				return badField(t.ID, key, v)
			}
			t.Priority = n
		case "estimated_days":
			n, ok := asInt(v)
			if !ok {
				return badField(t.ID, key, v)
			}
			t.EstimatedDays = n
		case "estimated_hours":
			f, ok := asFloat(v)
			if !ok {
				return badField(t.ID, key, v)
			}
			t.EstimatedHours = f
		case "dependencies":
			ss, ok := asStrings(v)
			if !ok {
				return badField(t.ID, key, v)
			}
			t.Dependencies = ss
		case "required_skills":
			ss, ok := asStrings(v)
			if !ok {
				return badField(t.ID, key, v)
			}
			t.RequiredSkills = ss
		default:
			return &graph.ValidationError{Reason: fmt.Sprintf("overlay changes unknown task field %q on %q", key, t.ID)}
		}
	}
	return nil
}

func mergeAgent(a *domain.Agent, changes map[string]any) error {
	for key, v := range changes {
		switch key {
		case "name":
			s, ok := v.(string)
			if !ok {
				return badField(a.ID, key, v)
			}
			a.Name = s
		case "role":
			s, ok := v.(string)
			if !ok {
				return badField(a.ID, key, v)
			}
			a.Role = s
		case "available_hours":
			f, ok := asFloat(v)
			if !ok {
				return badField(a.ID, key, v)
			}
			a.AvailableHours = f
		case "fatigue_threshold":
			f, ok := asFloat(v)
			if !ok {
				return badField(a.ID, key, v)
			}
			a.FatigueThreshold = f
		case "enabled":
			b, ok := v.(bool)
			if !ok {
				return badField(a.ID, key, v)
			}
			a.Enabled = b
		case "capabilities":
			caps, ok := asCapabilities(v)
			if !ok {
				return badField(a.ID, key, v)
			}
			a.Capabilities = caps
		default:
			return &graph.ValidationError{Reason: fmt.Sprintf("overlay changes unknown agent field %q on %q", key, a.ID)}
		}
	}
	return nil
}

func badField(id, key string, v any) error {
	return &graph.ValidationError{Reason: fmt.Sprintf("overlay field %q on %q has incompatible value %v", key, id, v)}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func asStrings(v any) ([]string, bool) {
	switch vs := v.(type) {
	case []string:
		return append([]string(nil), vs...), true
	case []any:
		out := make([]string, 0, len(vs))
		for _, e := range vs {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func asCapabilities(v any) ([]domain.Capability, bool) {
	switch vs := v.(type) {
	case []domain.Capability:
		return append([]domain.Capability(nil), vs...), true
	case []any:
		out := make([]domain.Capability, 0, len(vs))
		for _, e := range vs {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, false
			}
			skill, ok := m["skill"].(string)
			if !ok {
				return nil, false
			}
			prof, ok := asInt(m["proficiency"])
			if !ok {
				prof = 1
			}
			out = append(out, domain.Capability{Skill: skill, Proficiency: prof})
		}
		return out, true
	}
	return nil, false
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func toSet(xs []string) map[string]bool {
	m := make(map[string]bool, len(xs))
	for _, x := range xs {
		m[x] = true
	}
	return m
}
