package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/kailiangshang/team-work/internal/config"
	"github.com/kailiangshang/team-work/internal/narrative"
	"github.com/kailiangshang/team-work/internal/overlay"
	"github.com/kailiangshang/team-work/internal/plan"
	"github.com/kailiangshang/team-work/internal/runner"
	"github.com/kailiangshang/team-work/internal/sim"
	sqlitestore "github.com/kailiangshang/team-work/internal/store/sqlite"
	"github.com/kailiangshang/team-work/internal/stream"
)

type app struct {
	cfg    config.Config
	runner *runner.Service
	store  *sqlitestore.Store
	broker *stream.Broker
}

func main() {
	configPath := flag.String("config", "", "path to config.toml (default: ~/.teamwork/config.toml)")
	addrFlag := flag.String("addr", "", "http listen address override")
	dbPathFlag := flag.String("db", "", "sqlite database path override")
	planFlag := flag.String("plan", "", "project plan yaml path override")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	addr := firstNonEmpty(*addrFlag, cfg.Server.Addr)
	dbPath := filepath.Clean(firstNonEmpty(*dbPathFlag, cfg.Server.DBPath))
	planPath := firstNonEmpty(*planFlag, cfg.Server.PlanPath)
	if planPath == "" {
		log.Fatalf("no plan file: set -plan or server.plan_path")
	}

	basePlan, err := plan.Load(planPath)
	if err != nil {
		log.Fatalf("load plan: %v", err)
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("create db directory: %v", err)
		}
	}
	store, err := sqlitestore.Open(dbPath)
	if err != nil {
		log.Fatalf("open sqlite store: %v", err)
	}
	defer func() {
		_ = store.Close()
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("migrate sqlite: %v", err)
	}

	gen, err := buildGenerator(cfg.Narrative)
	if err != nil {
		log.Fatalf("narrative generator: %v", err)
	}

	broker := stream.New(256)
	svc := runner.New(store, broker, runner.Config{
		Plan:      basePlan,
		Defaults:  cfg.Simulation,
		Generator: gen,
		Logger:    log.Default(),
	})

	a := &app{cfg: cfg, runner: svc, store: store, broker: broker}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/plan", a.handlePlan)
	mux.HandleFunc("/runs", a.handleRuns)
	mux.HandleFunc("/runs/", a.handleRunByID)
	mux.HandleFunc("/simulate/stream", a.handleSimulateStream)

	server := &http.Server{
		Addr:              addr,
		Handler:           loggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Printf("simd started addr=%s db=%s plan=%s project=%s tasks=%d agents=%d",
		addr, dbPath, planPath, basePlan.ProjectID, len(basePlan.Tasks), len(basePlan.Agents))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("http server failed: %v", err)
	}
}

func buildGenerator(cfg config.NarrativeConfig) (narrative.Generator, error) {
	switch cfg.Mode {
	case "", "template":
		return narrative.TemplateGenerator{}, nil
	case "api":
		return narrative.NewAPIGenerator(narrative.APIGeneratorConfig{
			Endpoint:     cfg.Endpoint,
			AuthToken:    cfg.AuthToken,
			Timeout:      time.Duration(cfg.TimeoutMS) * time.Millisecond,
			Retries:      cfg.Retries,
			RetryBackoff: time.Duration(cfg.RetryBackoffMS) * time.Millisecond,
			Logger:       log.Default(),
		})
	default:
		return nil, fmt.Errorf("unknown narrative mode %q", cfg.Mode)
	}
}

func (a *app) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
		"active": a.runner.ActiveRuns(),
	})
}

func (a *app) handlePlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, a.runner.Plan())
}

func (a *app) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		runs, err := a.store.ListRuns(r.Context(), queryInt(r, "limit", 50))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, runs)
	case http.MethodPost:
		ov, err := decodeOverlay(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		runID, err := a.runner.StartRun(r.Context(), ov)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"run_id": runID})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (a *app) handleRunByID(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.TrimPrefix(r.URL.Path, "/runs/")
	parts := strings.Split(trimmed, "/")
	runID := parts[0]
	if runID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("run id is required"))
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rec, err := a.store.GetRun(r.Context(), runID)
		if errors.Is(err, sqlitestore.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
		return
	}

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch parts[1] {
	case "days":
		days, err := a.store.ListDays(r.Context(), runID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, days)
	case "disruptions":
		events, err := a.store.ListDisruptions(r.Context(), runID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
	case "stream":
		a.streamRun(w, r, runID)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown run resource %q", parts[1]))
	}
}

// streamRun attaches an SSE client to a live run.
func (a *app) streamRun(w http.ResponseWriter, r *http.Request, runID string) {
	if _, ok := a.runner.Status(runID); !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("run %s is not active", runID))
		return
	}
	events, cancel := a.broker.Subscribe(runID)
	defer cancel()
	serveSSE(w, r, events)
}

// handleSimulateStream starts a run and streams its whole event sequence on
// the response. The subscription is taken before the engine starts, so the
// caller sees every event from day one.
func (a *app) handleSimulateStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ov, err := decodeOverlay(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	runID, start, err := a.runner.PrepareRun(r.Context(), ov)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	events, cancel := a.broker.Subscribe(runID)
	defer cancel()
	start()
	serveSSE(w, r, events)
}

func serveSSE(w http.ResponseWriter, r *http.Request, events <-chan sim.Event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				log.Printf("encode sse event: %v", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			flusher.Flush()
		}
	}
}

func decodeOverlay(r *http.Request) (*overlay.Overlay, error) {
	if r.Body == nil || r.ContentLength == 0 {
		return nil, nil
	}
	var ov overlay.Overlay
	if err := json.NewDecoder(r.Body).Decode(&ov); err != nil {
		return nil, fmt.Errorf("invalid json body: %w", err)
	}
	return &ov, nil
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func queryInt(r *http.Request, key string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
