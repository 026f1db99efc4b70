package sim

import (
	"fmt"

	"github.com/kailiangshang/team-work/internal/domain"
)

// resolver maps one day's ready tasks onto roster capacity. Manual overrides
// win when their target is present, enabled, carries every required skill
// and has capacity; everything else is scored by skill match with a
// least-committed-load tie-break.
type resolver struct {
	roster       *Roster
	manual       map[string]string
	defaultHours float64
}

// dayPlan is the committed outcome of one day's resolution pass.
type dayPlan struct {
	assignments []domain.Assignment
	conflicts   []domain.Conflict
	warnings    []string
}

// resolveDay walks the ready set in graph order. delayedToday holds tasks a
// disruption knocked out this morning; blocked holds tasks still serving an
// earlier delay. Neither is assignable, and only the former is a conflict.
func (rv *resolver) resolveDay(day int, ready []domain.Task, delayedToday, blocked map[string]bool) (dayPlan, error) {
	var plan dayPlan
	// winners tracks what each agent took today, for PRIORITY detection.
	winners := map[string][]domain.Task{}

	for _, task := range ready {
		if delayedToday[task.ID] {
			plan.conflicts = append(plan.conflicts, domain.Conflict{
				Day:    day,
				Type:   domain.ConflictDependency,
				TaskID: task.ID,
				Detail: "delayed by a disruption event, forced back to pending for the day",
			})
			continue
		}
		if blocked[task.ID] {
			continue
		}

		effort := task.DailyEffort(rv.defaultHours)

		agentID, manual, conflict := rv.pick(day, task, effort, winners)
		if conflict != nil {
			plan.conflicts = append(plan.conflicts, *conflict)
		}
		if agentID == "" {
			continue
		}
		if err := rv.roster.Commit(agentID, effort); err != nil {
			return dayPlan{}, fmt.Errorf("resolve day %d: %w", day, err)
		}
		winners[agentID] = append(winners[agentID], task)
		score := rv.score(agentID, task)
		plan.assignments = append(plan.assignments, domain.Assignment{
			TaskID:  task.ID,
			AgentID: agentID,
			Day:     day,
			Effort:  effort,
			Manual:  manual,
			Score:   score,
		})
	}

	plan.warnings = append(plan.warnings, conflictWarnings(plan.conflicts)...)
	return plan, nil
}

// pick selects the agent for one task, or "" when the task stays pending.
// At most one conflict is reported per task.
func (rv *resolver) pick(day int, task domain.Task, effort float64, winners map[string][]domain.Task) (string, bool, *domain.Conflict) {
	if wantID, ok := rv.manual[task.ID]; ok {
		agent, present := rv.roster.Agent(wantID)
		if present && agent.Enabled && hasAllSkills(agent, task) && rv.roster.Available(wantID, effort) {
			return wantID, true, nil
		}
		// Invalid manual assignment degrades to automatic resolution.
		conflict := &domain.Conflict{
			Day:     day,
			Type:    domain.ConflictTechnical,
			TaskID:  task.ID,
			AgentID: wantID,
			Detail:  fmt.Sprintf("invalid manual assignment to %q, falling back to automatic resolution", wantID),
		}
		id, c2 := rv.auto(day, task, effort, winners)
		if c2 != nil {
			conflict.Detail += "; " + c2.Detail
		}
		return id, false, conflict
	}
	id, conflict := rv.auto(day, task, effort, winners)
	return id, false, conflict
}

// auto scores every enabled, non-fatigued agent by matching required skills,
// breaking ties toward the least committed workload today. Only the top
// scorer is considered for commit; if an earlier task already consumed its
// capacity, the task stays pending and the claim is recorded.
func (rv *resolver) auto(day int, task domain.Task, effort float64, winners map[string][]domain.Task) (string, *domain.Conflict) {
	best := ""
	bestScore := -1
	for _, id := range rv.roster.Candidates() {
		s := rv.score(id, task)
		switch {
		case s > bestScore:
			best, bestScore = id, s
		case s == bestScore && rv.roster.Committed(id) < rv.roster.Committed(best):
			best = id
		}
	}
	if best == "" {
		return "", nil // no qualified agent today, retry tomorrow
	}
	if rv.roster.Available(best, effort) {
		return best, nil
	}
	conflict := &domain.Conflict{
		Day:     day,
		Type:    domain.ConflictResource,
		TaskID:  task.ID,
		AgentID: best,
		Detail:  fmt.Sprintf("agent %q already fully committed today", best),
	}
	for _, w := range winners[best] {
		if w.Priority < task.Priority {
			conflict = &domain.Conflict{
				Day:     day,
				Type:    domain.ConflictPriority,
				TaskID:  task.ID,
				AgentID: best,
				Detail:  fmt.Sprintf("higher-priority task displaced by tie-break ordering behind %q", w.ID),
			}
			break
		}
	}
	return "", conflict
}

// hasAllSkills reports whether the agent carries every skill the task
// requires. Manual pins to an agent missing one degrade to automatic
// resolution.
func hasAllSkills(agent domain.Agent, task domain.Task) bool {
	for _, skill := range task.RequiredSkills {
		if !agent.HasSkill(skill) {
			return false
		}
	}
	return true
}

func (rv *resolver) score(agentID string, task domain.Task) int {
	agent, ok := rv.roster.Agent(agentID)
	if !ok {
		return 0
	}
	n := 0
	for _, skill := range task.RequiredSkills {
		if agent.HasSkill(skill) {
			n++
		}
	}
	return n
}

func conflictWarnings(conflicts []domain.Conflict) []string {
	var out []string
	for _, c := range conflicts {
		out = append(out, fmt.Sprintf("%s conflict on task %s: %s", c.Type, c.TaskID, c.Detail))
	}
	return out
}
