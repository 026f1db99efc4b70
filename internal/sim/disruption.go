package sim

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/kailiangshang/team-work/internal/domain"
)

// categorySpec describes one disruption category: its sampling weight, the
// whole-day delay range it can inflict and its description pool.
type categorySpec struct {
	category domain.DisruptionCategory
	weight   float64
	minDelay int
	maxDelay int
	events   []string
}

var categoryTable = []categorySpec{
	{
		category: domain.DisruptionTechnical,
		weight:   0.35,
		minDelay: 1,
		maxDelay: 2,
		events: []string{
			"dependency version conflict needs resolution",
			"third-party API instability",
			"severe performance bottleneck discovered",
			"security flaw found in review, fix required",
			"staging database outage",
			"build pipeline failure under investigation",
		},
	},
	{
		category: domain.DisruptionResource,
		weight:   0.25,
		minDelay: 1,
		maxDelay: 3,
		events: []string{
			"key developer out sick",
			"urgent customer request jumped the queue",
			"server hardware failure",
			"test environment unavailable",
			"designer overloaded, handoff slipped",
		},
	},
	{
		category: domain.DisruptionCommunication,
		weight:   0.2,
		minDelay: 1,
		maxDelay: 2,
		events: []string{
			"ambiguous requirement needs clarification",
			"design deliverable arrived late",
			"cross-team coordination stalled",
			"decision maker unavailable, call deferred",
			"stale documentation caused a misunderstanding",
		},
	},
	{
		category: domain.DisruptionExternal,
		weight:   0.2,
		minDelay: 1,
		maxDelay: 5,
		events: []string{
			"public holiday",
			"scheduled power maintenance",
			"network outage",
			"extreme weather disrupted the office",
			"partner delivery slipped",
		},
	},
}

// Injector rolls one disruption check per simulated day against that day's
// active tasks. The random source is injected so tests can force or suppress
// events deterministically.
type Injector struct {
	chance  float64
	rng     *rand.Rand
	history []domain.DisruptionEvent
}

// NewInjector builds an injector firing with the given per-day chance.
func NewInjector(chance float64, rng *rand.Rand) *Injector {
	return &Injector{chance: chance, rng: rng}
}

// Roll decides whether a disruption hits on the given day. Active tasks are
// the day's assignable set; with none in flight no event can occur. At most
// one event fires per day, touching one to three of the active tasks.
func (in *Injector) Roll(day int, active []domain.Task) *domain.DisruptionEvent {
	if len(active) == 0 || in.chance <= 0 {
		return nil
	}
	if in.rng.Float64() >= in.chance {
		return nil
	}

	spec := in.pickCategory()
	delay := spec.minDelay
	if spec.maxDelay > spec.minDelay {
		delay += in.rng.Intn(spec.maxDelay - spec.minDelay + 1)
	}

	n := in.rng.Intn(3) + 1
	if n > len(active) {
		n = len(active)
	}
	perm := in.rng.Perm(len(active))
	affected := make([]string, 0, n)
	for _, i := range perm[:n] {
		affected = append(affected, active[i].ID)
	}

	ev := domain.DisruptionEvent{
		ID:          uuid.NewString(),
		Day:         day,
		Category:    spec.category,
		Severity:    severityFor(delay),
		Description: fmt.Sprintf("%s (%d day delay, %d tasks affected)", spec.events[in.rng.Intn(len(spec.events))], delay, n),
		DelayDays:   delay,
		AffectedIDs: affected,
	}
	in.history = append(in.history, ev)
	return &ev
}

func (in *Injector) pickCategory() categorySpec {
	total := 0.0
	for _, c := range categoryTable {
		total += c.weight
	}
	r := in.rng.Float64() * total
	for _, c := range categoryTable {
		if r < c.weight {
			return c
		}
		r -= c.weight
	}
	return categoryTable[len(categoryTable)-1]
}

func severityFor(delay int) domain.DisruptionSeverity {
	switch {
	case delay > 2:
		return domain.SeverityHigh
	case delay > 1:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

// Summary aggregates everything the injector has produced so far.
func (in *Injector) Summary() domain.DisruptionSummary {
	sum := domain.DisruptionSummary{Total: len(in.history)}
	if len(in.history) == 0 {
		return sum
	}
	sum.ByCategory = make(map[domain.DisruptionCategory]int)
	sum.BySeverity = make(map[domain.DisruptionSeverity]int)
	for _, ev := range in.history {
		sum.ByCategory[ev.Category]++
		sum.BySeverity[ev.Severity]++
		sum.DelayDays += ev.DelayDays
	}
	return sum
}
