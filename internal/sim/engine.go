// Package sim runs day-by-day project simulations: capacity-aware
// assignment over a validated task graph, probabilistic disruptions and an
// ordered event stream per run.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kailiangshang/team-work/internal/domain"
	"github.com/kailiangshang/team-work/internal/graph"
	"github.com/kailiangshang/team-work/internal/narrative"
	"github.com/kailiangshang/team-work/internal/overlay"
)

// ErrAlreadyStarted is returned when a single-use engine is run twice.
var ErrAlreadyStarted = errors.New("simulation already started")

// Config wires one run. Plan is required; everything else has a default.
type Config struct {
	Plan      domain.Plan
	Overlay   *overlay.Overlay
	Generator narrative.Generator
	Logger    *log.Logger
	Rand      *rand.Rand
	WallClock time.Duration // optional budget; exceeding it ends the run EXHAUSTED

	// OnDay, when set, receives each finished DayLog before the next day
	// starts. Callers use it to persist logs while the run is live.
	OnDay func(domain.DayLog)
}

func (c Config) withDefaults() Config {
	if c.Overlay == nil {
		c.Overlay = &overlay.Overlay{}
	}
	if c.Generator == nil {
		c.Generator = narrative.TemplateGenerator{}
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// Engine drives one simulation run through its state machine:
// NOT_STARTED -> RUNNING -> {COMPLETED, EXHAUSTED, ABORTED}. An Engine is
// single use; build a new one per run.
type Engine struct {
	cfg   Config
	runID string

	mu      sync.Mutex
	started bool
	status  domain.RunStatus
}

func New(cfg Config) *Engine {
	return &Engine{
		cfg:    cfg.withDefaults(),
		runID:  uuid.NewString(),
		status: domain.RunStatusNotStarted,
	}
}

func (e *Engine) RunID() string { return e.runID }

func (e *Engine) Status() domain.RunStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) setStatus(s domain.RunStatus) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

// Run executes the whole simulation and returns the accumulated result.
func (e *Engine) Run(ctx context.Context) (*domain.SimulationResult, error) {
	return e.Stream(ctx, nil)
}

// Stream executes the simulation, handing each event to sink as it is
// produced. The overlay is applied exactly once, before the first day; all
// fatal validation happens before the engine enters RUNNING. On context
// cancellation the partial result is returned as ABORTED alongside the
// context error. Cancellation is checked only at the top of each day.
func (e *Engine) Stream(ctx context.Context, sink func(Event)) (*domain.SimulationResult, error) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	e.started = true
	e.mu.Unlock()
	if sink == nil {
		sink = func(Event) {}
	}

	eff, err := e.cfg.Overlay.Apply(e.cfg.Plan)
	if err != nil {
		return nil, err
	}
	runCfg := e.cfg.Overlay.Config.WithDefaults()

	g, err := graph.New(eff.Tasks)
	if err != nil {
		return nil, err
	}

	rng := e.cfg.Rand
	if rng == nil {
		seed := runCfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng = rand.New(rand.NewSource(seed))
	}
	chance := runCfg.DisruptionChance
	if runCfg.DisableDisruptions {
		chance = 0
	}
	injector := NewInjector(chance, rng)
	roster := NewRoster(eff.Agents, runCfg.WorkingHoursPerDay)
	rv := &resolver{
		roster:       roster,
		manual:       e.cfg.Overlay.Assignments,
		defaultHours: runCfg.WorkingHoursPerDay,
	}

	order := make([]string, 0, len(eff.Tasks))
	states := make(map[string]*domain.Task, len(eff.Tasks))
	completed := make(map[string]bool)
	for i := range eff.Tasks {
		t := eff.Tasks[i]
		order = append(order, t.ID)
		states[t.ID] = &t
		if t.Status == domain.TaskStatusCompleted {
			completed[t.ID] = true
		}
	}

	e.setStatus(domain.RunStatusRunning)
	e.cfg.Logger.Printf("simulation start run=%s project=%s tasks=%d agents=%d days=%d",
		e.runID, eff.ProjectID, len(eff.Tasks), len(eff.Agents), runCfg.TotalDays)

	result := &domain.SimulationResult{
		RunID:     e.runID,
		ProjectID: eff.ProjectID,
		TotalDays: runCfg.TotalDays,
		StartedAt: time.Now().UTC(),
	}
	finalize := func(status domain.RunStatus, day int) {
		e.setStatus(status)
		result.Status = status
		result.DaysUsed = day
		result.Tasks = snapshotTasks(order, states)
		result.Agents = roster.Snapshot()
		result.Disruptions = injector.Summary()
		result.FinishedAt = time.Now().UTC()
		sink(Event{Type: EventComplete, RunID: e.runID, Result: result})
		e.cfg.Logger.Printf("simulation end run=%s status=%s days=%d completed=%d pending=%d",
			e.runID, status, day, len(completed), g.Len()-len(completed))
	}

	delays := make(map[string]int)
	start := time.Now()
	day := 0

	for day < runCfg.TotalDays {
		if err := ctx.Err(); err != nil {
			finalize(domain.RunStatusAborted, day)
			return result, err
		}
		if e.cfg.WallClock > 0 && time.Since(start) > e.cfg.WallClock {
			e.cfg.Logger.Printf("simulation wall-clock budget reached run=%s day=%d", e.runID, day)
			break
		}
		day++
		roster.StartDay()

		// Serve one day of every outstanding delay before anything else.
		blockedCarry := make(map[string]bool)
		for id, d := range delays {
			d--
			if d <= 0 {
				delete(delays, id)
				if st := states[id]; st.Status == domain.TaskStatusBlocked {
					st.Status = domain.TaskStatusPending
				}
				continue
			}
			delays[id] = d
			blockedCarry[id] = true
		}

		readyIDs := make([]string, 0)
		ready := make([]domain.Task, 0)
		for _, t := range g.Ready(completed) {
			live := *states[t.ID]
			ready = append(ready, live)
			readyIDs = append(readyIDs, live.ID)
		}
		sink(Event{Type: EventDayStart, RunID: e.runID, Day: day, ReadyTaskIDs: readyIDs})

		var disruptions []domain.DisruptionEvent
		delayedToday := make(map[string]bool)
		active := make([]domain.Task, 0, len(ready))
		for _, t := range ready {
			if !blockedCarry[t.ID] {
				active = append(active, t)
			}
		}
		if ev := injector.Roll(day, active); ev != nil {
			disruptions = append(disruptions, *ev)
			for _, id := range ev.AffectedIDs {
				delays[id] += ev.DelayDays
				delayedToday[id] = true
				states[id].Status = domain.TaskStatusBlocked
			}
			sink(Event{Type: EventEnvEvent, RunID: e.runID, Day: day, Disruptions: disruptions})
			e.cfg.Logger.Printf("disruption run=%s day=%d category=%s delay=%dd affected=%d",
				e.runID, day, ev.Category, ev.DelayDays, len(ev.AffectedIDs))
		}

		plan, err := rv.resolveDay(day, ready, delayedToday, blockedCarry)
		if err != nil {
			// Capacity accounting is validated up front; reaching this is
			// an invariant violation.
			finalize(domain.RunStatusAborted, day)
			return result, fmt.Errorf("run %s aborted: %w", e.runID, err)
		}

		entries, noteWarnings, genErr := e.narrate(ctx, day, eff.ProjectID, plan.assignments, states, roster)
		if genErr != nil && runCfg.StrictNarrative {
			finalize(domain.RunStatusAborted, day)
			return result, fmt.Errorf("run %s aborted: narrative: %w", e.runID, genErr)
		}

		var completedToday []string
		for _, as := range plan.assignments {
			st := states[as.TaskID]
			st.AssignedAgent = as.AgentID
			st.Status = domain.TaskStatusInProgress
			st.Progress = min(st.Progress+st.ProgressStep(), 100)
			if st.Progress >= 100 {
				st.Status = domain.TaskStatusCompleted
				completed[st.ID] = true
				completedToday = append(completedToday, st.ID)
			}
		}
		sink(Event{Type: EventAgentWork, RunID: e.runID, Day: day, Entries: entries})

		summary := DaySummary{
			Day:            day,
			CompletedCount: len(completed),
			TotalCount:     g.Len(),
			PendingCount:   g.Len() - len(completed),
		}
		sink(Event{Type: EventDaySummary, RunID: e.runID, Day: day, Summary: &summary})

		dayLog := domain.DayLog{
			Day:            day,
			ReadyTaskIDs:   readyIDs,
			Assignments:    plan.assignments,
			Disruptions:    disruptions,
			Conflicts:      plan.conflicts,
			Entries:        entries,
			Warnings:       append(plan.warnings, noteWarnings...),
			CompletedToday: completedToday,
			CompletedCount: summary.CompletedCount,
			PendingCount:   summary.PendingCount,
		}
		result.Days = append(result.Days, dayLog)
		if e.cfg.OnDay != nil {
			e.cfg.OnDay(dayLog)
		}

		if len(completed) == g.Len() {
			finalize(domain.RunStatusCompleted, day)
			return result, nil
		}
	}

	finalize(domain.RunStatusExhausted, day)
	return result, nil
}

// narrate invokes the generator once per committed assignment. Calls are
// concurrent within the day; the engine waits for all of them before the
// day closes, preserving the day-ordering guarantee. A failed call degrades
// to an empty entry with a warning unless the run is strict.
func (e *Engine) narrate(ctx context.Context, day int, projectID string, assignments []domain.Assignment, states map[string]*domain.Task, roster *Roster) ([]domain.WorkEntry, []string, error) {
	entries := make([]domain.WorkEntry, len(assignments))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		warnings []string
		firstErr error
	)
	for i, as := range assignments {
		task := *states[as.TaskID]
		agent, _ := roster.Agent(as.AgentID)
		progress := min(task.Progress+task.ProgressStep(), 100)
		done := progress >= 100

		wg.Add(1)
		go func(i int, as domain.Assignment, task domain.Task, agent domain.Agent, progress float64, done bool) {
			defer wg.Done()
			text, err := e.cfg.Generator.Generate(ctx, narrative.Request{
				ProjectID: projectID,
				Day:       day,
				Agent:     agent,
				Task:      task,
				Progress:  progress,
				Done:      done,
			})
			if err != nil {
				e.cfg.Logger.Printf("narrative failed run=%s day=%d agent=%s task=%s: %v", e.runID, day, as.AgentID, as.TaskID, err)
				mu.Lock()
				warnings = append(warnings, fmt.Sprintf("narrative generation failed for task %s: %v", as.TaskID, err))
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				text = ""
			}
			entries[i] = domain.WorkEntry{
				Day:      day,
				AgentID:  as.AgentID,
				TaskID:   as.TaskID,
				Text:     text,
				Progress: progress,
				Done:     done,
			}
		}(i, as, task, agent, progress, done)
	}
	wg.Wait()
	return entries, warnings, firstErr
}

func snapshotTasks(order []string, states map[string]*domain.Task) []domain.Task {
	out := make([]domain.Task, 0, len(order))
	for _, id := range order {
		out = append(out, *states[id])
	}
	return out
}
