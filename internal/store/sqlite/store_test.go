package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/kailiangshang/team-work/internal/domain"
	"github.com/kailiangshang/team-work/internal/overlay"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	ov := overlay.New("proj-1", "v1")
	ov.RemoveAgent("bob")
	if err := s.CreateRun(ctx, "run-1", "proj-1", 30, ov); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	rec, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if rec.Status != domain.RunStatusRunning || rec.TotalDays != 30 {
		t.Fatalf("fresh run wrong: %+v", rec)
	}
	if rec.Result != nil || rec.FinishedAt != nil {
		t.Fatalf("fresh run should have no result yet")
	}

	day := domain.DayLog{
		Day:          1,
		ReadyTaskIDs: []string{"t1"},
		Assignments:  []domain.Assignment{{TaskID: "t1", AgentID: "alice", Day: 1, Effort: 8}},
		Disruptions: []domain.DisruptionEvent{{
			ID: "ev-1", Day: 1, Category: domain.DisruptionTechnical,
			Severity: domain.SeverityLow, Description: "network outage",
			DelayDays: 1, AffectedIDs: []string{"t1"},
		}},
		CompletedCount: 0,
		PendingCount:   2,
	}
	if err := s.AppendDay(ctx, "run-1", day); err != nil {
		t.Fatalf("AppendDay: %v", err)
	}

	result := &domain.SimulationResult{
		RunID:     "run-1",
		ProjectID: "proj-1",
		Status:    domain.RunStatusCompleted,
		DaysUsed:  7,
		TotalDays: 30,
		Tasks:     []domain.Task{{ID: "t1", Status: domain.TaskStatusCompleted, Progress: 100}},
	}
	if err := s.FinishRun(ctx, result); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	rec, err = s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun after finish: %v", err)
	}
	if rec.Status != domain.RunStatusCompleted || rec.DaysUsed != 7 {
		t.Fatalf("finished run wrong: %+v", rec)
	}
	if rec.Result == nil || rec.Result.Tasks[0].Progress != 100 {
		t.Fatalf("result payload lost: %+v", rec.Result)
	}
	if rec.FinishedAt == nil {
		t.Fatalf("finished_at missing")
	}
}

func TestListDaysRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	if err := s.CreateRun(ctx, "run-1", "proj-1", 10, nil); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	for d := 1; d <= 3; d++ {
		day := domain.DayLog{Day: d, CompletedCount: d, PendingCount: 3 - d}
		if err := s.AppendDay(ctx, "run-1", day); err != nil {
			t.Fatalf("AppendDay %d: %v", d, err)
		}
	}
	days, err := s.ListDays(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListDays: %v", err)
	}
	if len(days) != 3 {
		t.Fatalf("got %d days, want 3", len(days))
	}
	for i, day := range days {
		if day.Day != i+1 {
			t.Fatalf("days out of order: %+v", days)
		}
	}
}

func TestListDisruptions(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	if err := s.CreateRun(ctx, "run-1", "proj-1", 10, nil); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	day := domain.DayLog{
		Day: 2,
		Disruptions: []domain.DisruptionEvent{
			{ID: "ev-1", Day: 2, Category: domain.DisruptionExternal, Severity: domain.SeverityHigh, Description: "power maintenance", DelayDays: 4, AffectedIDs: []string{"t1", "t2"}},
		},
	}
	if err := s.AppendDay(ctx, "run-1", day); err != nil {
		t.Fatalf("AppendDay: %v", err)
	}
	events, err := s.ListDisruptions(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListDisruptions: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Category != domain.DisruptionExternal || ev.DelayDays != 4 || len(ev.AffectedIDs) != 2 {
		t.Fatalf("event lost fields: %+v", ev)
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := newStore(t)
	if _, err := s.GetRun(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for _, id := range []string{"run-1", "run-2"} {
		if err := s.CreateRun(ctx, id, "proj-1", 10, nil); err != nil {
			t.Fatalf("CreateRun %s: %v", id, err)
		}
	}
	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].ID != "run-2" {
		t.Fatalf("newest run should be first, got %s", runs[0].ID)
	}
}
