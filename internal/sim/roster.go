package sim

import (
	"fmt"

	"github.com/kailiangshang/team-work/internal/domain"
)

// agentState is one agent's mutable per-run record. remaining and committed
// track today's hours; fatigue accumulates across commits and resets at the
// start of each day.
type agentState struct {
	agent     domain.Agent
	remaining float64
	committed float64
	fatigue   float64
}

// Roster holds per-run agent capacity and fatigue state. It is owned by the
// engine's day loop and is not safe for concurrent use.
type Roster struct {
	order  []string
	states map[string]*agentState
}

// NewRoster copies the effective agents into run state. Agents without an
// hours figure fall back to defaultHours; a zero fatigue threshold falls
// back to the daily hours.
func NewRoster(agents []domain.Agent, defaultHours float64) *Roster {
	r := &Roster{states: make(map[string]*agentState, len(agents))}
	for _, a := range agents {
		if a.AvailableHours <= 0 {
			a.AvailableHours = defaultHours
		}
		if a.FatigueThreshold <= 0 {
			a.FatigueThreshold = a.AvailableHours
		}
		r.order = append(r.order, a.ID)
		r.states[a.ID] = &agentState{agent: a}
	}
	return r
}

// StartDay restores every agent's daily capacity and clears fatigue. Fatigue
// carries no memory across days.
func (r *Roster) StartDay() {
	for _, st := range r.states {
		st.remaining = st.agent.AvailableHours
		st.committed = 0
		st.fatigue = 0
	}
}

// Agent returns the roster's copy of an agent.
func (r *Roster) Agent(id string) (domain.Agent, bool) {
	st, ok := r.states[id]
	if !ok {
		return domain.Agent{}, false
	}
	return st.agent, true
}

// Available reports whether the agent can accept the given effort today:
// enabled, under its fatigue threshold and with enough hours left.
func (r *Roster) Available(id string, effort float64) bool {
	st, ok := r.states[id]
	if !ok || !st.agent.Enabled {
		return false
	}
	if st.fatigue > st.agent.FatigueThreshold {
		return false
	}
	return st.remaining >= effort
}

// Fatigued reports whether the agent is excluded for the rest of the day.
func (r *Roster) Fatigued(id string) bool {
	st, ok := r.states[id]
	return ok && st.fatigue > st.agent.FatigueThreshold
}

// Committed returns the hours the agent has committed today.
func (r *Roster) Committed(id string) float64 {
	st, ok := r.states[id]
	if !ok {
		return 0
	}
	return st.committed
}

// Commit deducts effort from today's capacity and grows fatigue. It fails
// rather than let a commit exceed the agent's daily hours.
func (r *Roster) Commit(id string, effort float64) error {
	st, ok := r.states[id]
	if !ok {
		return fmt.Errorf("commit: unknown agent %q", id)
	}
	if effort > st.remaining {
		return fmt.Errorf("commit: agent %q over capacity (%.2fh requested, %.2fh remaining)", id, effort, st.remaining)
	}
	st.remaining -= effort
	st.committed += effort
	st.fatigue += effort
	return nil
}

// Candidates returns the ids of agents eligible for scoring today: enabled
// and not past their fatigue threshold. Capacity is checked at commit time.
func (r *Roster) Candidates() []string {
	var out []string
	for _, id := range r.order {
		st := r.states[id]
		if st.agent.Enabled && st.fatigue <= st.agent.FatigueThreshold {
			out = append(out, id)
		}
	}
	return out
}

// Snapshot returns the agents in roster order, for terminal reporting.
func (r *Roster) Snapshot() []domain.Agent {
	out := make([]domain.Agent, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.states[id].agent)
	}
	return out
}
