package sim

import (
	"testing"

	"github.com/kailiangshang/team-work/internal/domain"
)

func TestRosterCapacityAndFatigue(t *testing.T) {
	r := NewRoster([]domain.Agent{
		{ID: "a1", Enabled: true, AvailableHours: 8, FatigueThreshold: 8},
	}, 8)
	r.StartDay()

	if !r.Available("a1", 8) {
		t.Fatalf("fresh agent should take a full day")
	}
	if err := r.Commit("a1", 8); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if r.Available("a1", 1) {
		t.Fatalf("agent has no hours left, should not be available")
	}
	if err := r.Commit("a1", 1); err == nil {
		t.Fatalf("over-capacity commit should fail")
	}
	if r.Committed("a1") != 8 {
		t.Fatalf("committed = %.1f, want 8", r.Committed("a1"))
	}

	// Capacity and fatigue both reset on the next day.
	r.StartDay()
	if !r.Available("a1", 8) {
		t.Fatalf("agent should be fresh after day start")
	}
	if r.Fatigued("a1") {
		t.Fatalf("fatigue should reset at day start")
	}
}

func TestRosterFatigueExcludesForRestOfDay(t *testing.T) {
	r := NewRoster([]domain.Agent{
		{ID: "a1", Enabled: true, AvailableHours: 10, FatigueThreshold: 4},
	}, 8)
	r.StartDay()

	if err := r.Commit("a1", 5); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !r.Fatigued("a1") {
		t.Fatalf("fatigue 5 > threshold 4, agent should be excluded")
	}
	if len(r.Candidates()) != 0 {
		t.Fatalf("fatigued agent should not be a candidate")
	}

	r.StartDay()
	if len(r.Candidates()) != 1 {
		t.Fatalf("agent should be a candidate again next day")
	}
}

func TestRosterDisabledAgentNeverAvailable(t *testing.T) {
	r := NewRoster([]domain.Agent{
		{ID: "a1", Enabled: false, AvailableHours: 8},
	}, 8)
	r.StartDay()
	if r.Available("a1", 1) {
		t.Fatalf("disabled agent should never be available")
	}
	if len(r.Candidates()) != 0 {
		t.Fatalf("disabled agent should not be a candidate")
	}
}

func TestRosterDefaults(t *testing.T) {
	r := NewRoster([]domain.Agent{{ID: "a1", Enabled: true}}, 6)
	r.StartDay()
	a, ok := r.Agent("a1")
	if !ok {
		t.Fatalf("agent missing")
	}
	if a.AvailableHours != 6 || a.FatigueThreshold != 6 {
		t.Fatalf("defaults not applied: hours=%.1f threshold=%.1f", a.AvailableHours, a.FatigueThreshold)
	}
}
