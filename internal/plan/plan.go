// Package plan loads base project definitions from YAML files.
package plan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kailiangshang/team-work/internal/domain"
)

type planFile struct {
	Project string      `yaml:"project"`
	Version string      `yaml:"version"`
	Tasks   []taskFile  `yaml:"tasks"`
	Agents  []agentFile `yaml:"agents"`
}

type taskFile struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	Type           string   `yaml:"type"`
	Complexity     int      `yaml:"complexity"`
	Priority       int      `yaml:"priority"`
	EstimatedDays  int      `yaml:"estimated_days"`
	EstimatedHours float64  `yaml:"estimated_hours"`
	DependsOn      []string `yaml:"depends_on"`
	RequiredSkills []string `yaml:"required_skills"`
}

type agentFile struct {
	ID               string     `yaml:"id"`
	Name             string     `yaml:"name"`
	Role             string     `yaml:"role"`
	AvailableHours   float64    `yaml:"available_hours"`
	FatigueThreshold float64    `yaml:"fatigue_threshold"`
	Disabled         bool       `yaml:"disabled"`
	Capabilities     []capsFile `yaml:"capabilities"`
}

type capsFile struct {
	Skill       string `yaml:"skill"`
	Proficiency int    `yaml:"proficiency"`
}

// Load reads a plan file. Structural validation of the dependency graph is
// the engine's job; Load only checks the file is well formed.
func Load(path string) (domain.Plan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Plan{}, fmt.Errorf("read plan file %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes a YAML plan document.
func Parse(raw []byte) (domain.Plan, error) {
	var pf planFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return domain.Plan{}, fmt.Errorf("decode plan: %w", err)
	}
	if pf.Project == "" {
		return domain.Plan{}, fmt.Errorf("plan missing project id")
	}
	if len(pf.Tasks) == 0 {
		return domain.Plan{}, fmt.Errorf("plan %q has no tasks", pf.Project)
	}
	if len(pf.Agents) == 0 {
		return domain.Plan{}, fmt.Errorf("plan %q has no agents", pf.Project)
	}

	out := domain.Plan{ProjectID: pf.Project, VersionID: pf.Version}
	for i, t := range pf.Tasks {
		if t.ID == "" {
			return domain.Plan{}, fmt.Errorf("task at position %d missing id", i)
		}
		if t.Name == "" {
			t.Name = t.ID
		}
		if t.Complexity < 1 {
			t.Complexity = 1
		}
		if t.Complexity > 10 {
			t.Complexity = 10
		}
		if t.EstimatedDays < 1 {
			t.EstimatedDays = 1
		}
		out.Tasks = append(out.Tasks, domain.Task{
			ID:             t.ID,
			Name:           t.Name,
			Type:           t.Type,
			Complexity:     t.Complexity,
			Priority:       t.Priority,
			EstimatedDays:  t.EstimatedDays,
			EstimatedHours: t.EstimatedHours,
			Dependencies:   t.DependsOn,
			RequiredSkills: t.RequiredSkills,
			Status:         domain.TaskStatusPending,
		})
	}
	for i, a := range pf.Agents {
		if a.ID == "" {
			return domain.Plan{}, fmt.Errorf("agent at position %d missing id", i)
		}
		agent := domain.Agent{
			ID:               a.ID,
			Name:             a.Name,
			Role:             a.Role,
			AvailableHours:   a.AvailableHours,
			FatigueThreshold: a.FatigueThreshold,
			Enabled:          !a.Disabled,
		}
		for _, c := range a.Capabilities {
			p := c.Proficiency
			if p < 1 {
				p = 1
			}
			if p > 5 {
				p = 5
			}
			agent.Capabilities = append(agent.Capabilities, domain.Capability{Skill: c.Skill, Proficiency: p})
		}
		out.Agents = append(out.Agents, agent)
	}
	return out, nil
}
