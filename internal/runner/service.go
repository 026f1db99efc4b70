// Package runner manages simulation runs for the daemon: it validates and
// launches engines, persists day logs and results, and fans events out to
// live subscribers.
package runner

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kailiangshang/team-work/internal/domain"
	"github.com/kailiangshang/team-work/internal/graph"
	"github.com/kailiangshang/team-work/internal/narrative"
	"github.com/kailiangshang/team-work/internal/overlay"
	"github.com/kailiangshang/team-work/internal/sim"
)

// Store is the persistence surface the runner needs.
type Store interface {
	CreateRun(ctx context.Context, runID, projectID string, totalDays int, overlay any) error
	AppendDay(ctx context.Context, runID string, day domain.DayLog) error
	FinishRun(ctx context.Context, result *domain.SimulationResult) error
}

// Publisher receives live events and is told when a run's stream ends.
type Publisher interface {
	Publish(ev sim.Event) error
	Close(runID string)
}

type Config struct {
	Plan      domain.Plan
	Defaults  domain.RunConfig
	Generator narrative.Generator
	Logger    *log.Logger
}

type Service struct {
	cfg   Config
	store Store
	pub   Publisher

	mu     sync.Mutex
	active map[string]*sim.Engine
}

func New(store Store, pub Publisher, cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Service{
		cfg:    cfg,
		store:  store,
		pub:    pub,
		active: make(map[string]*sim.Engine),
	}
}

// Plan returns the base plan the service simulates against.
func (s *Service) Plan() domain.Plan { return s.cfg.Plan }

// StartRun validates the overlay against the base plan, records the run and
// launches it in the background. Validation failures surface here, before
// anything is persisted.
func (s *Service) StartRun(ctx context.Context, ov *overlay.Overlay) (string, error) {
	runID, start, err := s.PrepareRun(ctx, ov)
	if err != nil {
		return "", err
	}
	start()
	return runID, nil
}

// PrepareRun does everything StartRun does except launching the engine; the
// returned start func begins execution. Callers that stream a run live use
// the gap to subscribe before the first event is published.
func (s *Service) PrepareRun(ctx context.Context, ov *overlay.Overlay) (string, func(), error) {
	if ov == nil {
		ov = &overlay.Overlay{}
	}
	ov.Config = mergeRunConfig(ov.Config, s.cfg.Defaults)

	eff, err := ov.Apply(s.cfg.Plan)
	if err != nil {
		return "", nil, err
	}
	if _, err := graph.New(eff.Tasks); err != nil {
		return "", nil, err
	}

	var runID string
	eng := sim.New(sim.Config{
		Plan:      s.cfg.Plan,
		Overlay:   ov,
		Generator: s.cfg.Generator,
		Logger:    s.cfg.Logger,
		OnDay: func(day domain.DayLog) {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.store.AppendDay(dctx, runID, day); err != nil {
				s.cfg.Logger.Printf("persist day failed run=%s day=%d: %v", runID, day.Day, err)
			}
		},
	})
	runID = eng.RunID()

	if err := s.store.CreateRun(ctx, runID, s.cfg.Plan.ProjectID, ov.Config.TotalDays, ov); err != nil {
		return "", nil, fmt.Errorf("record run: %w", err)
	}

	s.mu.Lock()
	s.active[runID] = eng
	s.mu.Unlock()

	start := func() { go s.execute(eng, runID) }
	return runID, start, nil
}

func (s *Service) execute(eng *sim.Engine, runID string) {
	defer func() {
		s.mu.Lock()
		delete(s.active, runID)
		s.mu.Unlock()
		s.pub.Close(runID)
	}()

	sink := func(ev sim.Event) {
		if err := s.pub.Publish(ev); err != nil {
			s.cfg.Logger.Printf("publish run=%s event=%s: %v", runID, ev.Type, err)
		}
	}
	res, err := eng.Stream(context.Background(), sink)
	if err != nil {
		s.cfg.Logger.Printf("run failed run=%s: %v", runID, err)
	}
	if res == nil {
		return
	}
	fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.FinishRun(fctx, res); err != nil {
		s.cfg.Logger.Printf("persist result failed run=%s: %v", runID, err)
	}
}

// Status reports a live run's state, or false when the run is not active.
func (s *Service) Status(runID string) (domain.RunStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	eng, ok := s.active[runID]
	if !ok {
		return "", false
	}
	return eng.Status(), true
}

// ActiveRuns lists the ids of runs still executing.
func (s *Service) ActiveRuns() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.active))
	for id := range s.active {
		out = append(out, id)
	}
	return out
}

// mergeRunConfig fills unset overlay fields from the daemon defaults; the
// overlay wins wherever it says anything.
func mergeRunConfig(ov, def domain.RunConfig) domain.RunConfig {
	if ov.TotalDays <= 0 {
		ov.TotalDays = def.TotalDays
	}
	if ov.DisruptionChance <= 0 {
		ov.DisruptionChance = def.DisruptionChance
	}
	if ov.WorkingHoursPerDay <= 0 {
		ov.WorkingHoursPerDay = def.WorkingHoursPerDay
	}
	if !ov.DisableDisruptions {
		ov.DisableDisruptions = def.DisableDisruptions
	}
	if ov.Seed == 0 {
		ov.Seed = def.Seed
	}
	if !ov.StrictNarrative {
		ov.StrictNarrative = def.StrictNarrative
	}
	return ov.WithDefaults()
}
