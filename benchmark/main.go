// Package main provides a benchmark tool for the tasksync engine: it builds up
// a large offline backlog of creates and measures how fast a sync pass drains
// it against an in-process stub of the remote task service.
//
// Usage:
//
//	go run benchmark/main.go -tasks 10000
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guido-cesarano/tasksync/pkg/gateway"
	"github.com/guido-cesarano/tasksync/pkg/store"
	tasksync "github.com/guido-cesarano/tasksync/pkg/sync"
	"github.com/guido-cesarano/tasksync/pkg/tasks"
)

// nopSink discards state notifications; the benchmark only measures the
// store and gateway legs.
type nopSink struct{}

func (nopSink) Upsert(tasks.Task) {}

func (nopSink) Remove(string) {}

func (nopSink) ReplaceAll(string, []tasks.Task) {}

// stubService accepts creates as fast as it can decode them.
func stubService() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/tasks", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			json.NewEncoder(w).Encode([]tasks.Task{})
			return
		}
		var req struct {
			OwnerID string `json:"owner_id"`
			tasks.Payload
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		now := time.Now().UTC()
		t := tasks.Task{ID: uuid.New().String(), OwnerID: req.OwnerID, CreatedAt: now}
		t.Apply(req.Payload, now)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(t)
	})
	return mux
}

func main() {
	numTasks := flag.Int("tasks", 10000, "Number of tasks to create offline")
	numWorkers := flag.Int("workers", 10, "Number of concurrent creators")
	redisAddr := flag.String("redis", "localhost:6379", "Local store address (falls back to memory)")
	flag.Parse()

	st, durable := store.Open(*redisAddr)
	defer st.Close()

	remote := httptest.NewServer(stubService())
	defer remote.Close()

	ctx := context.Background()
	owner := "bench-" + uuid.New().String()[:8]

	fmt.Printf("Tasksync Benchmark\n")
	fmt.Printf("==================\n")
	fmt.Printf("Tasks to create: %d\n", *numTasks)
	fmt.Printf("Concurrent creators: %d\n", *numWorkers)
	fmt.Printf("Durable store: %v\n\n", durable)

	// Offline phase: mutations land locally, the queue grows.
	offline := tasksync.New(st, gateway.NewClient("http://127.0.0.1:1", ""), nopSink{}, owner, durable)

	fmt.Printf("Starting offline create phase...\n")
	startCreate := time.Now()

	var wg sync.WaitGroup
	tasksPerWorker := *numTasks / *numWorkers

	for i := 0; i < *numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := 0; j < tasksPerWorker; j++ {
				title := fmt.Sprintf("bench task %d/%d", workerID, j)
				if _, err := offline.Create(ctx, tasks.Payload{Title: &title}); err != nil {
					fmt.Printf("Error creating: %v\n", err)
					return
				}
			}
		}(i)
	}

	wg.Wait()
	createTime := time.Since(startCreate)

	queued, _ := st.PendingOps(ctx, owner)
	fmt.Printf("✓ Created %d tasks (%d queued ops) in %s\n", *numTasks, queued, createTime)
	fmt.Printf("  Throughput: %.2f creates/sec\n\n", float64(*numTasks)/createTime.Seconds())

	// Drain phase: one pass against the reachable stub service.
	fmt.Printf("Starting drain phase...\n")
	startDrain := time.Now()

	engine := tasksync.New(st, gateway.NewClient(remote.URL, ""), nopSink{}, owner, durable)

	done := make(chan struct{})
	go func() {
		engine.Sync(ctx)
		close(done)
	}()

	// Print progress every 2 seconds
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
poll:
	for {
		select {
		case <-done:
			break poll
		case <-ticker.C:
			remaining, _ := st.PendingOps(ctx, owner)
			fmt.Printf("  Remaining: %d ops\n", remaining)
		}
	}

	drainTime := time.Since(startDrain)

	fmt.Printf("\n✓ Drained %d ops in %s\n", queued, drainTime)
	fmt.Printf("  Throughput: %.2f ops/sec\n", float64(queued)/drainTime.Seconds())

	totalTime := createTime + drainTime
	fmt.Printf("\nTotal time: %s\n", totalTime)
	fmt.Printf("Overall throughput: %.2f tasks/sec\n", float64(*numTasks)/totalTime.Seconds())
}
