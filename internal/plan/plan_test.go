package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kailiangshang/team-work/internal/domain"
)

const sampleYAML = `
project: demo
version: v2
tasks:
  - id: design
    name: API design
    complexity: 4
    estimated_days: 2
    required_skills: [architecture]
  - id: build
    depends_on: [design]
    complexity: 15
  - id: ship
    depends_on: [build]
agents:
  - id: ada
    role: architect
    available_hours: 8
    capabilities:
      - skill: architecture
        proficiency: 9
  - id: lin
    role: engineer
    disabled: true
`

func TestParse(t *testing.T) {
	p, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.ProjectID != "demo" || p.VersionID != "v2" {
		t.Fatalf("header lost: %+v", p)
	}
	if len(p.Tasks) != 3 || len(p.Agents) != 2 {
		t.Fatalf("got %d tasks, %d agents", len(p.Tasks), len(p.Agents))
	}
	build := p.Tasks[1]
	if build.Name != "build" {
		t.Fatalf("name should default to id, got %q", build.Name)
	}
	if build.Complexity != 10 {
		t.Fatalf("complexity should clamp to 10, got %d", build.Complexity)
	}
	if build.EstimatedDays != 1 {
		t.Fatalf("estimated days should default to 1, got %d", build.EstimatedDays)
	}
	if build.Status != domain.TaskStatusPending {
		t.Fatalf("tasks should load pending, got %s", build.Status)
	}
	if p.Agents[0].Capabilities[0].Proficiency != 5 {
		t.Fatalf("proficiency should clamp to 5, got %d", p.Agents[0].Capabilities[0].Proficiency)
	}
	if p.Agents[0].Enabled == false || p.Agents[1].Enabled == true {
		t.Fatalf("enabled flags wrong: %+v", p.Agents)
	}
}

func TestParseRejectsEmptySections(t *testing.T) {
	cases := []string{
		"tasks:\n  - id: a\nagents:\n  - id: x\n",       // no project
		"project: p\nagents:\n  - id: x\n",              // no tasks
		"project: p\ntasks:\n  - id: a\n",               // no agents
		"project: p\ntasks:\n  - name: a\nagents:\n  - id: x\n", // task without id
	}
	for i, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.ProjectID != "demo" {
		t.Fatalf("project = %q", p.ProjectID)
	}
}
