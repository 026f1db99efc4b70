// Package graph holds the dependency-aware task graph: validation of the
// dependency structure and computation of the daily ready set.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kailiangshang/team-work/internal/domain"
)

// ValidationError reports a structurally invalid task graph or an overlay
// reference that points at nothing. It is always fatal before a run starts.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "graph validation: " + e.Reason
}

// Graph is an immutable view over a set of tasks keyed by id. Declaration
// order is preserved for deterministic tie-breaking.
type Graph struct {
	tasks []domain.Task
	index map[string]int
}

// New builds a graph and validates it: duplicate ids, unknown dependencies
// and dependency cycles all fail with a ValidationError.
func New(tasks []domain.Task) (*Graph, error) {
	g := &Graph{
		tasks: make([]domain.Task, len(tasks)),
		index: make(map[string]int, len(tasks)),
	}
	copy(g.tasks, tasks)
	for i, t := range g.tasks {
		if t.ID == "" {
			return nil, &ValidationError{Reason: fmt.Sprintf("task at position %d has empty id", i)}
		}
		if _, ok := g.index[t.ID]; ok {
			return nil, &ValidationError{Reason: fmt.Sprintf("duplicate task id %q", t.ID)}
		}
		g.index[t.ID] = i
	}
	for _, t := range g.tasks {
		for _, dep := range t.Dependencies {
			if _, ok := g.index[dep]; !ok {
				return nil, &ValidationError{Reason: fmt.Sprintf("task %q depends on unknown task %q", t.ID, dep)}
			}
		}
	}
	if cycle := g.findCycle(); len(cycle) > 0 {
		return nil, &ValidationError{Reason: "dependency cycle: " + strings.Join(cycle, " -> ")}
	}
	return g, nil
}

// findCycle runs a DFS with an on-stack set and returns the offending path
// when a back edge is found.
func (g *Graph) findCycle() []string {
	visited := map[string]bool{}
	onStack := map[string]bool{}
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		stack = append(stack, id)
		for _, dep := range g.tasks[g.index[id]].Dependencies {
			if onStack[dep] {
				for i, v := range stack {
					if v == dep {
						cycle = append(append(cycle, stack[i:]...), dep)
						return true
					}
				}
			}
			if !visited[dep] && visit(dep) {
				return true
			}
		}
		stack = stack[:len(stack)-1]
		onStack[id] = false
		return false
	}

	for _, t := range g.tasks {
		if !visited[t.ID] && visit(t.ID) {
			return cycle
		}
	}
	return nil
}

// Len returns the number of tasks in the graph.
func (g *Graph) Len() int { return len(g.tasks) }

// Tasks returns a copy of the task list in declaration order.
func (g *Graph) Tasks() []domain.Task {
	out := make([]domain.Task, len(g.tasks))
	copy(out, g.tasks)
	return out
}

// Task looks a task up by id.
func (g *Graph) Task(id string) (domain.Task, bool) {
	i, ok := g.index[id]
	if !ok {
		return domain.Task{}, false
	}
	return g.tasks[i], true
}

// Contains reports whether the id names a task in the graph.
func (g *Graph) Contains(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Ready returns every task that is not completed and whose dependencies are
// all in the completed set, ordered by ascending complexity and then by
// declaration order. In-progress tasks stay in the ready set until done.
func (g *Graph) Ready(completed map[string]bool) []domain.Task {
	type cand struct {
		task domain.Task
		pos  int
	}
	var cands []cand
	for i, t := range g.tasks {
		if completed[t.ID] {
			continue
		}
		ok := true
		for _, dep := range t.Dependencies {
			if !completed[dep] {
				ok = false
				break
			}
		}
		if ok {
			cands = append(cands, cand{task: t, pos: i})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].task.Complexity != cands[j].task.Complexity {
			return cands[i].task.Complexity < cands[j].task.Complexity
		}
		return cands[i].pos < cands[j].pos
	})
	out := make([]domain.Task, len(cands))
	for i, c := range cands {
		out[i] = c.task
	}
	return out
}
