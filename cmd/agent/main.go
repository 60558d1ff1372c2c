// Package main implements the tasksync agent: the local, offline-first side
// of the to-do application. It applies user mutations optimistically to the
// local store, queues them while the remote task service is unreachable, and
// synchronizes in the background.
//
// API Endpoints (local, for the application UI):
//
//	GET    /tasks       - Current reconciled task list
//	POST   /tasks       - Create a task (applied locally, queued for sync)
//	PATCH  /tasks/{id}  - Update a task
//	DELETE /tasks/{id}  - Delete a task
//	POST   /sync        - Trigger a sync pass manually
//	GET    /status      - Sync state, pending-operation count, durability
//	GET    /metrics     - Prometheus metrics
//
// Configuration (environment):
//
//	OWNER_ID      - owner of this session (required)
//	GATEWAY_URL   - remote task service base URL (required)
//	GATEWAY_TOKEN - bearer credential for the remote service
//	REDIS_ADDR    - local durable medium (default 127.0.0.1:6379)
//	API_KEY       - key for the local API; empty disables auth (dev mode)
//	LISTEN_ADDR   - local API address (default :8082)
//	SYNC_INTERVAL - cron spec for periodic sync (default "@every 30s")
//	LOG_LEVEL     - zerolog level override (default info)
//
// Usage:
//
//	go run cmd/agent/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/guido-cesarano/tasksync/pkg/connectivity"
	"github.com/guido-cesarano/tasksync/pkg/gateway"
	"github.com/guido-cesarano/tasksync/pkg/logger"
	"github.com/guido-cesarano/tasksync/pkg/store"
	tasksync "github.com/guido-cesarano/tasksync/pkg/sync"
	"github.com/guido-cesarano/tasksync/pkg/tasks"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
)

// snapshotSink is the application state sink: an in-process snapshot of the
// reconciled task list, replaced by identifier on every notification. The
// local GET /tasks endpoint reads from it.
type snapshotSink struct {
	mu    sync.RWMutex
	tasks map[string]tasks.Task
}

func newSnapshotSink() *snapshotSink {
	return &snapshotSink{tasks: make(map[string]tasks.Task)}
}

// Upsert implements sync.Sink.
func (s *snapshotSink) Upsert(t tasks.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
}

// Remove implements sync.Sink.
func (s *snapshotSink) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
}

// ReplaceAll implements sync.Sink.
func (s *snapshotSink) ReplaceAll(_ string, list []tasks.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]tasks.Task, len(list))
	for _, t := range list {
		s.tasks[t.ID] = t
	}
}

// List returns the snapshot ordered by creation time.
func (s *snapshotSink) List() []tasks.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]tasks.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

// authMiddleware wraps an http.HandlerFunc and enforces API Key authentication.
func authMiddleware(next http.HandlerFunc, requiredKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// If no key is configured, allow all (dev mode)
		if requiredKey == "" {
			next(w, r)
			return
		}

		apiKey := r.Header.Get("X-API-Key")
		if apiKey != requiredKey {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next(w, r)
	}
}

// enableCORS wraps an http.HandlerFunc and adds CORS headers so the web UI
// can talk to the agent directly.
func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PATCH, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-API-Key")

		// Handle preflight requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Error().Err(err).Msg("Failed to encode response")
	}
}

// setupRouter configures the HTTP handlers and returns the mux.
func setupRouter(engine *tasksync.Synchronizer, sink *snapshotSink, apiKey string) *http.ServeMux {
	mux := http.NewServeMux()

	// tasksHandler serves the reconciled list and creates new tasks.
	mux.HandleFunc("/tasks", enableCORS(authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, sink.List())

		case http.MethodPost:
			var p tasks.Payload
			if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			// Succeeds on local apply; the network leg is deferred to the
			// next sync pass, so the UI is never blocked on a roundtrip.
			t, err := engine.Create(r.Context(), p)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusCreated, t)

		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}, apiKey)))

	// taskHandler updates or deletes a single task by id.
	mux.HandleFunc("/tasks/", enableCORS(authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/tasks/")
		if id == "" {
			http.Error(w, "Missing task id", http.StatusBadRequest)
			return
		}

		switch r.Method {
		case http.MethodPatch:
			var p tasks.Payload
			if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			t, err := engine.Update(r.Context(), id, p)
			if err != nil {
				status := http.StatusInternalServerError
				if errors.Is(err, tasksync.ErrNotFound) {
					status = http.StatusNotFound
				}
				http.Error(w, err.Error(), status)
				return
			}
			writeJSON(w, http.StatusOK, t)

		case http.MethodDelete:
			if err := engine.Delete(r.Context(), id); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}, apiKey)))

	// syncHandler triggers a sync pass manually. A trigger while a pass is
	// already running is a no-op.
	mux.HandleFunc("/sync", enableCORS(authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		engine.TriggerSync()
		w.WriteHeader(http.StatusAccepted)
	}, apiKey)))

	// statusHandler reports sync state and pending-operation count. This is
	// where persistent sync failure surfaces, not as errors on mutations.
	mux.HandleFunc("/status", enableCORS(authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, engine.Status(r.Context()))
	}, apiKey)))

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// main wires the store, gateway, synchronizer, connectivity monitor and the
// periodic sync schedule, then serves the local API until interrupted.
func main() {
	ownerID := os.Getenv("OWNER_ID")
	if ownerID == "" {
		logger.Log.Fatal().Msg("OWNER_ID not set")
	}
	gatewayURL := os.Getenv("GATEWAY_URL")
	if gatewayURL == "" {
		logger.Log.Fatal().Msg("GATEWAY_URL not set")
	}

	apiKey := os.Getenv("API_KEY")
	if apiKey == "" {
		logger.Log.Warn().Msg("API_KEY not set. Authentication disabled.")
	}

	st, durable := store.Open(envOr("REDIS_ADDR", "127.0.0.1:6379"))
	defer st.Close()

	gw := gateway.NewClient(gatewayURL, os.Getenv("GATEWAY_TOKEN"))
	sink := newSnapshotSink()
	engine := tasksync.New(st, gw, sink, ownerID, durable)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connectivity probes drive the Offline <-> Idle transitions and the
	// auto-sync on reconnect.
	monitor := connectivity.NewMonitor(gw, 10*time.Second, engine.SetOnline)
	go monitor.Run(ctx)

	// Periodic sync timer.
	interval := envOr("SYNC_INTERVAL", "@every 30s")
	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(interval, engine.TriggerSync); err != nil {
		logger.Log.Fatal().Err(err).Str("spec", interval).Msg("Invalid SYNC_INTERVAL")
	}
	c.Start()
	defer c.Stop()

	addr := envOr("LISTEN_ADDR", ":8082")
	srv := &http.Server{
		Addr:    addr,
		Handler: setupRouter(engine, sink, apiKey),
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Log.Info().Msg("Shutting down agent...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error().Err(err).Msg("Shutdown error")
		}
	}()

	logger.Log.Info().
		Str("addr", addr).
		Str("owner", ownerID).
		Bool("durable", durable).
		Msg("Agent listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Log.Fatal().Err(err).Msg("Agent failed")
	}
}
