package runner

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/kailiangshang/team-work/internal/domain"
	"github.com/kailiangshang/team-work/internal/graph"
	"github.com/kailiangshang/team-work/internal/overlay"
	"github.com/kailiangshang/team-work/internal/sim"
)

type memStore struct {
	mu       sync.Mutex
	created  []string
	days     map[string][]domain.DayLog
	finished map[string]*domain.SimulationResult
}

func newMemStore() *memStore {
	return &memStore{days: map[string][]domain.DayLog{}, finished: map[string]*domain.SimulationResult{}}
}

func (m *memStore) CreateRun(_ context.Context, runID, _ string, _ int, _ any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, runID)
	return nil
}

func (m *memStore) AppendDay(_ context.Context, runID string, day domain.DayLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.days[runID] = append(m.days[runID], day)
	return nil
}

func (m *memStore) FinishRun(_ context.Context, result *domain.SimulationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished[result.RunID] = result
	return nil
}

type memPublisher struct {
	mu     sync.Mutex
	events []sim.Event
	closed chan string
}

func newMemPublisher() *memPublisher {
	return &memPublisher{closed: make(chan string, 1)}
}

func (p *memPublisher) Publish(ev sim.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *memPublisher) Close(runID string) {
	p.closed <- runID
}

func testService(store *memStore, pub *memPublisher) *Service {
	plan := domain.Plan{
		ProjectID: "proj-1",
		Tasks: []domain.Task{
			{ID: "t1", Name: "t1", Complexity: 2, EstimatedDays: 1, Status: domain.TaskStatusPending},
			{ID: "t2", Name: "t2", Complexity: 3, EstimatedDays: 1, Dependencies: []string{"t1"}, Status: domain.TaskStatusPending},
		},
		Agents: []domain.Agent{
			{ID: "alice", Role: "engineer", AvailableHours: 8, FatigueThreshold: 8, Enabled: true},
		},
	}
	return New(store, pub, Config{
		Plan:     plan,
		Defaults: domain.RunConfig{TotalDays: 10, DisableDisruptions: true},
		Logger:   log.New(io.Discard, "", 0),
	})
}

func TestStartRunPersistsAndPublishes(t *testing.T) {
	store := newMemStore()
	pub := newMemPublisher()
	svc := testService(store, pub)

	runID, err := svc.StartRun(context.Background(), nil)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	select {
	case closed := <-pub.closed:
		if closed != runID {
			t.Fatalf("closed stream for %s, want %s", closed, runID)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not finish in time")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.created) != 1 || store.created[0] != runID {
		t.Fatalf("run row not created: %v", store.created)
	}
	res := store.finished[runID]
	if res == nil || res.Status != domain.RunStatusCompleted {
		t.Fatalf("result not persisted: %+v", res)
	}
	if len(store.days[runID]) != res.DaysUsed {
		t.Fatalf("persisted %d day logs, result says %d", len(store.days[runID]), res.DaysUsed)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.events) == 0 {
		t.Fatalf("no events published")
	}
	last := pub.events[len(pub.events)-1]
	if last.Type != sim.EventComplete || last.RunID != runID {
		t.Fatalf("last event = %+v, want terminal complete", last)
	}
}

func TestStartRunRejectsInvalidOverlay(t *testing.T) {
	store := newMemStore()
	svc := testService(store, newMemPublisher())

	ov := overlay.New("proj-1", "v1")
	ov.RemoveTask("ghost")
	_, err := svc.StartRun(context.Background(), ov)
	var verr *graph.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.created) != 0 {
		t.Fatalf("invalid run must not be recorded")
	}
}

func TestPrepareRunAllowsSubscribingBeforeStart(t *testing.T) {
	store := newMemStore()
	pub := newMemPublisher()
	svc := testService(store, pub)

	runID, start, err := svc.PrepareRun(context.Background(), nil)
	if err != nil {
		t.Fatalf("PrepareRun: %v", err)
	}
	if status, ok := svc.Status(runID); !ok || status != domain.RunStatusNotStarted {
		t.Fatalf("prepared run should be active and not_started, got %v %v", status, ok)
	}
	pub.mu.Lock()
	if len(pub.events) != 0 {
		pub.mu.Unlock()
		t.Fatalf("nothing may be published before start")
	}
	pub.mu.Unlock()

	start()
	select {
	case <-pub.closed:
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not finish in time")
	}
	if _, ok := svc.Status(runID); ok {
		t.Fatalf("finished run should leave the active set")
	}
}
