package domain

import (
	"time"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusBlocked    TaskStatus = "blocked"
	TaskStatusCompleted  TaskStatus = "completed"
)

type RunStatus string

const (
	RunStatusNotStarted RunStatus = "not_started"
	RunStatusRunning    RunStatus = "running"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusExhausted  RunStatus = "exhausted"
	RunStatusAborted    RunStatus = "aborted"
)

type DisruptionCategory string

const (
	DisruptionTechnical     DisruptionCategory = "technical"
	DisruptionResource      DisruptionCategory = "resource"
	DisruptionCommunication DisruptionCategory = "communication"
	DisruptionExternal      DisruptionCategory = "external"
)

type DisruptionSeverity string

const (
	SeverityLow    DisruptionSeverity = "low"
	SeverityMedium DisruptionSeverity = "medium"
	SeverityHigh   DisruptionSeverity = "high"
)

type ConflictType string

const (
	ConflictResource   ConflictType = "RESOURCE"
	ConflictPriority   ConflictType = "PRIORITY"
	ConflictDependency ConflictType = "DEPENDENCY"
	ConflictTechnical  ConflictType = "TECHNICAL"
)

// Task is a unit of project work. Complexity runs 1..10 and drives both
// ready-set ordering and disruption severity. Progress runs 0..100.
type Task struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Type           string     `json:"type,omitempty"`
	Complexity     int        `json:"complexity"`
	Priority       int        `json:"priority"`
	EstimatedDays  int        `json:"estimated_days"`
	EstimatedHours float64    `json:"estimated_hours"`
	Dependencies   []string   `json:"dependencies,omitempty"`
	RequiredSkills []string   `json:"required_skills,omitempty"`
	AssignedAgent  string     `json:"assigned_agent,omitempty"`
	Status         TaskStatus `json:"status"`
	Progress       float64    `json:"progress"`
}

// DailyEffort is the hours of agent capacity one working day on the task
// consumes. Tasks without an hour estimate consume a full default day.
func (t Task) DailyEffort(defaultHours float64) float64 {
	days := t.EstimatedDays
	if days < 1 {
		days = 1
	}
	if t.EstimatedHours <= 0 {
		return defaultHours
	}
	return t.EstimatedHours / float64(days)
}

// ProgressStep is the progress gained by one full working day on the task.
func (t Task) ProgressStep() float64 {
	days := t.EstimatedDays
	if days < 1 {
		days = 1
	}
	return 100.0 / float64(days)
}

type Capability struct {
	Skill       string `json:"skill"`
	Proficiency int    `json:"proficiency"` // 1..5
}

type Agent struct {
	ID               string       `json:"id"`
	Name             string       `json:"name,omitempty"`
	Role             string       `json:"role"`
	Capabilities     []Capability `json:"capabilities,omitempty"`
	AvailableHours   float64      `json:"available_hours"`
	FatigueThreshold float64      `json:"fatigue_threshold"`
	Enabled          bool         `json:"enabled"`
}

// HasSkill reports whether the agent carries the named capability.
func (a Agent) HasSkill(skill string) bool {
	for _, c := range a.Capabilities {
		if c.Skill == skill {
			return true
		}
	}
	return false
}

// DisruptionEvent is an injected setback. DelayDays is whole working days
// during which the affected tasks cannot receive assignments.
type DisruptionEvent struct {
	ID          string             `json:"id"`
	Day         int                `json:"day"`
	Category    DisruptionCategory `json:"category"`
	Severity    DisruptionSeverity `json:"severity"`
	Description string             `json:"description"`
	DelayDays   int                `json:"delay_days"`
	AffectedIDs []string           `json:"affected_task_ids"`
}

// Assignment records one committed agent/task pairing for a day.
type Assignment struct {
	TaskID  string  `json:"task_id"`
	AgentID string  `json:"agent_id"`
	Day     int     `json:"day"`
	Effort  float64 `json:"effort_hours"`
	Manual  bool    `json:"manual,omitempty"`
	Score   int     `json:"score"`
}

// Conflict is a non-fatal competing claim resolved during assignment.
type Conflict struct {
	Day     int          `json:"day"`
	Type    ConflictType `json:"type"`
	TaskID  string       `json:"task_id"`
	AgentID string       `json:"agent_id,omitempty"`
	Detail  string       `json:"detail"`
}

// WorkEntry is one narrated unit of agent activity within a day.
type WorkEntry struct {
	Day      int     `json:"day"`
	AgentID  string  `json:"agent_id"`
	TaskID   string  `json:"task_id"`
	Text     string  `json:"narrative"`
	Progress float64 `json:"progress"`
	Done     bool    `json:"done"`
}

// DayLog captures everything that happened on one simulated day.
type DayLog struct {
	Day            int               `json:"day"`
	ReadyTaskIDs   []string          `json:"ready_task_ids"`
	Assignments    []Assignment      `json:"assignments"`
	Disruptions    []DisruptionEvent `json:"disruptions,omitempty"`
	Conflicts      []Conflict        `json:"conflicts,omitempty"`
	Entries        []WorkEntry       `json:"entries,omitempty"`
	Warnings       []string          `json:"warnings,omitempty"`
	CompletedToday []string          `json:"completed_today,omitempty"`
	CompletedCount int               `json:"completed_count"`
	PendingCount   int               `json:"pending_count"`
}

// DisruptionSummary aggregates injected events over a whole run.
type DisruptionSummary struct {
	Total      int                        `json:"total"`
	ByCategory map[DisruptionCategory]int `json:"by_category,omitempty"`
	BySeverity map[DisruptionSeverity]int `json:"by_severity,omitempty"`
	DelayDays  int                        `json:"delay_days"`
}

// SimulationResult is the terminal snapshot of a run.
type SimulationResult struct {
	RunID       string            `json:"run_id"`
	ProjectID   string            `json:"project_id,omitempty"`
	Status      RunStatus         `json:"status"`
	DaysUsed    int               `json:"total_days_used"`
	TotalDays   int               `json:"total_days"`
	Tasks       []Task            `json:"task_states"`
	Agents      []Agent           `json:"agent_states"`
	Days        []DayLog          `json:"days,omitempty"`
	Disruptions DisruptionSummary `json:"disruption_summary"`
	Warnings    []string          `json:"warnings,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
}

// CompletedIDs returns the ids of tasks that reached completion.
func (r *SimulationResult) CompletedIDs() []string {
	var ids []string
	for _, t := range r.Tasks {
		if t.Status == TaskStatusCompleted {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// PendingCount counts tasks that never completed.
func (r *SimulationResult) PendingCount() int {
	n := 0
	for _, t := range r.Tasks {
		if t.Status != TaskStatusCompleted {
			n++
		}
	}
	return n
}
