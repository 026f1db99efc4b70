package graph

import (
	"errors"
	"strings"
	"testing"

	"github.com/kailiangshang/team-work/internal/domain"
)

func task(id string, complexity int, deps ...string) domain.Task {
	return domain.Task{ID: id, Name: id, Complexity: complexity, EstimatedDays: 1, Dependencies: deps, Status: domain.TaskStatusPending}
}

func TestNewRejectsUnknownDependency(t *testing.T) {
	_, err := New([]domain.Task{task("a", 1, "ghost")})
	if err == nil {
		t.Fatalf("expected error for unknown dependency")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if !strings.Contains(verr.Reason, "ghost") {
		t.Fatalf("reason should name the missing task: %q", verr.Reason)
	}
}

func TestNewRejectsDuplicateID(t *testing.T) {
	_, err := New([]domain.Task{task("a", 1), task("a", 2)})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestNewReportsCyclePath(t *testing.T) {
	_, err := New([]domain.Task{
		task("a", 1, "c"),
		task("b", 1, "a"),
		task("c", 1, "b"),
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !strings.Contains(verr.Reason, "cycle") {
		t.Fatalf("reason should mention the cycle: %q", verr.Reason)
	}
	for _, id := range []string{"a", "b", "c"} {
		if !strings.Contains(verr.Reason, id) {
			t.Fatalf("cycle path should include %q: %q", id, verr.Reason)
		}
	}
}

func TestNewAcceptsSelfFreeDAG(t *testing.T) {
	g, err := New([]domain.Task{
		task("a", 1),
		task("b", 2, "a"),
		task("c", 3, "a", "b"),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if g.Len() != 3 {
		t.Fatalf("Len = %d, want 3", g.Len())
	}
}

func TestReadyRespectsDependencies(t *testing.T) {
	g, err := New([]domain.Task{
		task("a", 1),
		task("b", 1, "a"),
		task("c", 1, "b"),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ready := g.Ready(map[string]bool{})
	if len(ready) != 1 || ready[0].ID != "a" {
		t.Fatalf("ready = %v, want only a", ids(ready))
	}
	ready = g.Ready(map[string]bool{"a": true})
	if len(ready) != 1 || ready[0].ID != "b" {
		t.Fatalf("ready = %v, want only b", ids(ready))
	}
	ready = g.Ready(map[string]bool{"a": true, "b": true, "c": true})
	if len(ready) != 0 {
		t.Fatalf("ready = %v, want empty", ids(ready))
	}
}

func TestReadyOrdersByComplexityThenDeclaration(t *testing.T) {
	g, err := New([]domain.Task{
		task("heavy", 9),
		task("mid-b", 5),
		task("light", 2),
		task("mid-a", 5),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := ids(g.Ready(map[string]bool{}))
	want := []string{"light", "mid-b", "mid-a", "heavy"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ready order = %v, want %v", got, want)
		}
	}
}

func ids(tasks []domain.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}
