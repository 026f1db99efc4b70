// Package narrative produces the human-readable work log lines attached to
// each simulated day. Generation is pluggable: the engine only needs the
// Generator contract, and failures degrade to empty text unless the run is
// configured strict.
package narrative

import (
	"context"
	"fmt"

	"github.com/kailiangshang/team-work/internal/domain"
)

// Request carries the read-only context for one (agent, task, day) call.
type Request struct {
	ProjectID string       `json:"project_id,omitempty"`
	Day       int          `json:"day"`
	Agent     domain.Agent `json:"agent"`
	Task      domain.Task  `json:"task"`
	Progress  float64      `json:"progress"`
	Done      bool         `json:"done"`
}

// Generator turns one day's work on a task into narrative text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// TemplateGenerator is the built-in deterministic generator. It never fails.
type TemplateGenerator struct{}

func (TemplateGenerator) Generate(_ context.Context, req Request) (string, error) {
	role := req.Agent.Role
	if role == "" {
		role = "agent"
	}
	if req.Done {
		return fmt.Sprintf("Day %d: %s (%s) wrapped up %q.", req.Day, req.Agent.ID, role, req.Task.Name), nil
	}
	return fmt.Sprintf("Day %d: %s (%s) worked on %q, now at %.0f%%.", req.Day, req.Agent.ID, role, req.Task.Name, req.Progress), nil
}
