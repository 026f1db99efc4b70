package sim

import (
	"github.com/kailiangshang/team-work/internal/domain"
)

type EventType string

const (
	EventDayStart   EventType = "day_start"
	EventEnvEvent   EventType = "env_event"
	EventAgentWork  EventType = "agent_work"
	EventDaySummary EventType = "day_summary"
	EventComplete   EventType = "complete"
)

// DaySummary closes out one day on the stream.
type DaySummary struct {
	Day            int `json:"day"`
	CompletedCount int `json:"completed_count"`
	TotalCount     int `json:"total_count"`
	PendingCount   int `json:"pending_count"`
}

// Event is one element of the ordered run stream. Per day the engine emits
// day_start, env_event (only when one fired), agent_work and day_summary,
// in that order, then a terminal complete event. Everything for day N is on
// the stream before day N+1 begins.
type Event struct {
	Type         EventType                `json:"type"`
	RunID        string                   `json:"run_id"`
	Day          int                      `json:"day,omitempty"`
	ReadyTaskIDs []string                 `json:"ready_task_ids,omitempty"`
	Disruptions  []domain.DisruptionEvent `json:"events,omitempty"`
	Entries      []domain.WorkEntry       `json:"entries,omitempty"`
	Summary      *DaySummary              `json:"summary,omitempty"`
	Result       *domain.SimulationResult `json:"result,omitempty"`
}
