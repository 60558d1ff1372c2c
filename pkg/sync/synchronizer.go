// Package sync implements the offline-first synchronization engine.
// It applies user mutations optimistically to the local store, queues them in
// the pending-operation log, and drains the log against the remote task
// gateway whenever connectivity allows, followed by a last-write-wins
// reconciliation of the canonical server state.
//
// State machine:
//
//	Idle    --(connectivity lost)-------> Offline
//	Offline --(connectivity restored)---> Syncing   (auto-trigger)
//	Idle    --(timer tick | manual)-----> Syncing
//	Syncing --(drain + reconcile done)--> Idle
//	Syncing --(connectivity lost)-------> Offline   (remainder stays queued)
//
// At most one sync pass runs at a time; a trigger arriving while a pass is in
// flight is a no-op. There is one logical owner per engine instance, so a
// plain mutex over the state field is the only guard needed.
package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/guido-cesarano/tasksync/pkg/gateway"
	"github.com/guido-cesarano/tasksync/pkg/logger"
	"github.com/guido-cesarano/tasksync/pkg/store"
	"github.com/guido-cesarano/tasksync/pkg/tasks"
)

// State is the synchronizer's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateSyncing
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSyncing:
		return "syncing"
	case StateOffline:
		return "offline"
	}
	return "unknown"
}

// Sink receives reconciled task state for the application layer (the UI-facing
// store). All three methods are idempotent replace-by-identifier operations.
type Sink interface {
	Upsert(t tasks.Task)
	Remove(id string)
	ReplaceAll(ownerID string, list []tasks.Task)
}

// Backoff parameters for operations rejected by the server. Same shape as a
// worker retry: 2^attempts * base, capped so a persistently failing endpoint
// is probed at a bounded rate rather than hot-looped.
const (
	defaultBackoffBase = 100 * time.Millisecond
	defaultBackoffCap  = 5 * time.Minute
)

// ErrNotFound indicates a mutation aimed at a task the local store does not
// have. Callers can distinguish it from store I/O failures.
var ErrNotFound = errors.New("task not found")

// Status is the sync-status query result surfaced to the application.
type Status struct {
	State      string `json:"state"`
	PendingOps int64  `json:"pending_ops"`
	Durable    bool   `json:"durable"`
}

// Synchronizer drains the pending-operation log against the remote gateway
// and reconciles canonical server state into the local store.
type Synchronizer struct {
	store   store.Store
	gw      gateway.Gateway
	sink    Sink
	ownerID string
	durable bool

	mu       stdsync.Mutex
	state    State
	lostConn bool // connectivity lost while a pass was in flight

	backoffBase time.Duration
	backoffCap  time.Duration

	// now and trigger are swappable for tests.
	now     func() time.Time
	trigger func()
}

// New creates a synchronizer for a single owner session.
//
// durable is the capability flag returned by store.Open; it is surfaced
// through Status so the application can warn about degraded persistence.
func New(st store.Store, gw gateway.Gateway, sink Sink, ownerID string, durable bool) *Synchronizer {
	s := &Synchronizer{
		store:       st,
		gw:          gw,
		sink:        sink,
		ownerID:     ownerID,
		durable:     durable,
		state:       StateIdle,
		backoffBase: defaultBackoffBase,
		backoffCap:  defaultBackoffCap,
		now:         time.Now,
	}
	s.trigger = s.TriggerSync
	return s
}

// Create applies a create mutation locally and queues it for the server.
// The returned task carries a temporary id and the unconfirmed flag; it
// succeeds as soon as the local apply is durable, network or not.
func (s *Synchronizer) Create(ctx context.Context, p tasks.Payload) (*tasks.Task, error) {
	now := s.now()
	t := tasks.Task{
		ID:        tasks.NewTempID(),
		OwnerID:   s.ownerID,
		Priority:  tasks.PriorityMedium,
		Category:  tasks.CategoryShortTerm,
		Frequency: tasks.FrequencyOnce,
		CreatedAt: now,
		// UpdatedAt is set by Apply below.
		Unconfirmed: true,
	}
	t.Apply(p, now)

	if err := s.store.PutTask(ctx, t); err != nil {
		return nil, fmt.Errorf("local create: %w", err)
	}
	op := tasks.NewOperation(tasks.OpCreate, s.ownerID, t.ID, &p, now)
	if err := s.store.Enqueue(ctx, op); err != nil {
		return nil, fmt.Errorf("enqueue create: %w", err)
	}

	s.sink.Upsert(t)
	s.updatePendingGauge(ctx)
	s.trigger()
	return &t, nil
}

// Update applies an update mutation locally and queues it for the server.
func (s *Synchronizer) Update(ctx context.Context, id string, p tasks.Payload) (*tasks.Task, error) {
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}

	t.Apply(p, s.now())
	if err := s.store.PutTask(ctx, *t); err != nil {
		return nil, fmt.Errorf("local update: %w", err)
	}
	op := tasks.NewOperation(tasks.OpUpdate, s.ownerID, id, &p, s.now())
	if err := s.store.Enqueue(ctx, op); err != nil {
		return nil, fmt.Errorf("enqueue update: %w", err)
	}

	s.sink.Upsert(*t)
	s.updatePendingGauge(ctx)
	s.trigger()
	return t, nil
}

// Delete removes the task locally and queues the deletion for the server.
// Deleting a task that no longer exists locally is a no-op on the store but
// still queued, so a copy known only to the server gets removed too.
func (s *Synchronizer) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return fmt.Errorf("local delete: %w", err)
	}
	op := tasks.NewOperation(tasks.OpDelete, s.ownerID, id, nil, s.now())
	if err := s.store.Enqueue(ctx, op); err != nil {
		return fmt.Errorf("enqueue delete: %w", err)
	}

	s.sink.Remove(id)
	s.updatePendingGauge(ctx)
	s.trigger()
	return nil
}

// Status returns the current state, the pending-operation count and the
// storage durability capability.
func (s *Synchronizer) Status(ctx context.Context) Status {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()

	n, err := s.store.PendingOps(ctx, s.ownerID)
	if err != nil {
		logger.Log.Error().Err(err).Msg("Failed to count pending operations")
	}
	return Status{State: st.String(), PendingOps: n, Durable: s.durable}
}

// State returns the current lifecycle state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetOnline feeds connectivity reports from the monitor into the state
// machine. The monitor reports after every probe, not only on transitions,
// so an engine that parked itself in Offline on a transient gateway failure
// is revived by the next routine online report even when the monitor's own
// probes never failed. An online report while Offline auto-triggers a sync
// pass; repeated online reports in any other state are no-ops, which is what
// keeps rapid flapping from starting overlapping passes. A lost connection
// during a pass lets the in-flight gateway calls fail naturally and parks
// the engine in Offline when the pass winds down, unless connectivity came
// back before the pass ended.
func (s *Synchronizer) SetOnline(isOnline bool) {
	if isOnline {
		online.Set(1)
	} else {
		online.Set(0)
	}

	s.mu.Lock()
	if isOnline {
		// A pass still in flight must not park in Offline when the service
		// is reachable again.
		s.lostConn = false
		if s.state != StateOffline {
			s.mu.Unlock()
			return
		}
		s.state = StateIdle
		s.mu.Unlock()
		logger.Log.Info().Msg("Connectivity restored, triggering sync")
		s.trigger()
		return
	}

	switch s.state {
	case StateIdle:
		s.state = StateOffline
		logger.Log.Info().Msg("Connectivity lost")
	case StateSyncing:
		s.lostConn = true
	}
	s.mu.Unlock()
}

// TriggerSync starts a sync pass in the background if the engine is idle.
// Triggers while Syncing or Offline are no-ops, which also debounces rapid
// connectivity flapping.
func (s *Synchronizer) TriggerSync() {
	go s.Sync(context.Background())
}

// Sync runs one full pass (drain + reconcile) synchronously.
// It returns false without doing anything if a pass is already in flight or
// the engine is offline.
func (s *Synchronizer) Sync(ctx context.Context) bool {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return false
	}
	s.state = StateSyncing
	s.mu.Unlock()

	s.runPass(ctx)
	return true
}

// runPass executes the drain and reconciliation and settles the next state.
func (s *Synchronizer) runPass(ctx context.Context) {
	start := s.now()
	wentOffline := false

	if err := s.drain(ctx); err != nil {
		if errors.Is(err, gateway.ErrUnavailable) {
			// Abort the remainder of the drain; everything still queued is
			// retried on the next pass.
			wentOffline = true
			logger.Log.Info().Msg("Gateway unreachable mid-drain, going offline")
		} else {
			logger.Log.Error().Err(err).Msg("Drain failed")
		}
	}

	if !wentOffline {
		if err := s.reconcile(ctx); err != nil {
			if errors.Is(err, gateway.ErrUnavailable) {
				wentOffline = true
			}
			// Reconciliation errors never touch the queue.
			logger.Log.Error().Err(err).Msg("Reconciliation failed")
		}
	}

	outcome := "completed"
	if wentOffline {
		outcome = "offline"
	}
	passDuration.WithLabelValues(outcome).Observe(s.now().Sub(start).Seconds())
	s.updatePendingGauge(ctx)

	s.mu.Lock()
	if wentOffline || s.lostConn {
		s.state = StateOffline
	} else {
		s.state = StateIdle
	}
	s.lostConn = false
	s.mu.Unlock()
}

// drain processes the pending log in enqueue order.
//
// One operation's failure never blocks independent operations in the same
// pass; only gateway.ErrUnavailable aborts the pass. Operations rejected by
// the server stay queued under capped exponential backoff, and every later
// operation targeting the same task is held back with them, so a retried
// older edit can never land after, and overwrite, a newer one.
func (s *Synchronizer) drain(ctx context.Context) error {
	ops, err := s.store.ListOps(ctx, s.ownerID)
	if err != nil {
		return fmt.Errorf("list pending operations: %w", err)
	}
	if len(ops) == 0 {
		return nil
	}

	// A create immediately followed by a delete of the same unconfirmed task
	// cancels both (and any updates in between) without a network call.
	cancelled := cancelledTempIDs(ops)

	// Maps temporary ids to server ids assigned earlier in this pass. The
	// durable rewrite happens in confirmCreate; this map covers the ops
	// already read into this slice before the rewrite.
	idMap := make(map[string]string)

	// Task ids whose oldest pending operation could not be dispatched this
	// pass. Everything queued behind them for the same task is held back too,
	// preserving per-task enqueue order.
	blocked := make(map[string]bool)

	for _, op := range ops {
		if cancelled[op.TaskID] {
			if err := s.store.RemoveOp(ctx, s.ownerID, op.ID); err != nil {
				return fmt.Errorf("cancel op %s: %w", op.ID, err)
			}
			_ = s.store.DeleteTask(ctx, op.TaskID)
			opsProcessed.WithLabelValues("cancelled", string(op.Kind)).Inc()
			continue
		}

		if newID, ok := idMap[op.TaskID]; ok {
			op.TaskID = newID
		}

		// An earlier operation for this task is still queued.
		if blocked[op.TaskID] {
			continue
		}

		// Backoff window from a previous rejection has not elapsed yet.
		if op.NextAttempt.After(s.now()) {
			blocked[op.TaskID] = true
			continue
		}

		// FIFO per task: an update or delete aimed at a temporary id whose
		// create has not landed yet cannot be dispatched (the server has
		// never seen the id). It stays queued behind the create.
		if tasks.IsTempID(op.TaskID) && op.Kind != tasks.OpCreate {
			blocked[op.TaskID] = true
			continue
		}

		switch op.Kind {
		case tasks.OpCreate:
			srv, cerr := s.gw.CreateTask(ctx, s.ownerID, payloadOf(op))
			if cerr != nil {
				if err := s.opFailed(ctx, op, cerr); err != nil {
					return err
				}
				blocked[op.TaskID] = true
				continue
			}
			if err := s.confirmCreate(ctx, op, srv); err != nil {
				return err
			}
			idMap[op.TaskID] = srv.ID

		case tasks.OpUpdate:
			srv, uerr := s.gw.UpdateTask(ctx, op.TaskID, payloadOf(op))
			if errors.Is(uerr, gateway.ErrNotFound) {
				// Already resolved remotely; drop without retry.
				if err := s.store.RemoveOp(ctx, s.ownerID, op.ID); err != nil {
					return err
				}
				opsProcessed.WithLabelValues("dropped", string(op.Kind)).Inc()
				continue
			}
			if uerr != nil {
				if err := s.opFailed(ctx, op, uerr); err != nil {
					return err
				}
				blocked[op.TaskID] = true
				continue
			}
			if err := s.store.PutTask(ctx, *srv); err != nil {
				return err
			}
			if err := s.store.RemoveOp(ctx, s.ownerID, op.ID); err != nil {
				return err
			}
			s.sink.Upsert(*srv)
			opsProcessed.WithLabelValues("applied", string(op.Kind)).Inc()

		case tasks.OpDelete:
			derr := s.gw.DeleteTask(ctx, op.TaskID)
			if derr != nil && !errors.Is(derr, gateway.ErrNotFound) {
				if err := s.opFailed(ctx, op, derr); err != nil {
					return err
				}
				blocked[op.TaskID] = true
				continue
			}
			// Not-found counts as already resolved remotely.
			if err := s.store.DeleteTask(ctx, op.TaskID); err != nil {
				return err
			}
			if err := s.store.RemoveOp(ctx, s.ownerID, op.ID); err != nil {
				return err
			}
			s.sink.Remove(op.TaskID)
			opsProcessed.WithLabelValues("applied", string(op.Kind)).Inc()
		}
	}
	return nil
}

// confirmCreate replaces the unconfirmed local record with the canonical
// server record and propagates the id substitution to the queue and the sink.
func (s *Synchronizer) confirmCreate(ctx context.Context, op tasks.Operation, srv *tasks.Task) error {
	tempID := op.TaskID
	srv.Unconfirmed = false

	if err := s.store.DeleteTask(ctx, tempID); err != nil {
		return err
	}
	if err := s.store.PutTask(ctx, *srv); err != nil {
		return err
	}
	// Later queued ops still referencing the temporary id must target the
	// server id on the next pass.
	if err := s.store.RewriteTaskID(ctx, s.ownerID, tempID, srv.ID); err != nil {
		return err
	}
	if err := s.store.RemoveOp(ctx, s.ownerID, op.ID); err != nil {
		return err
	}

	s.sink.Remove(tempID)
	s.sink.Upsert(*srv)
	opsProcessed.WithLabelValues("applied", string(op.Kind)).Inc()

	logger.Log.Info().
		Str("temp_id", tempID).
		Str("server_id", srv.ID).
		Msg("Task confirmed by server")
	return nil
}

// opFailed records a dispatch failure. Unreachable gateway bubbles up and
// aborts the pass; anything else reschedules the operation with backoff and
// lets the drain continue.
func (s *Synchronizer) opFailed(ctx context.Context, op tasks.Operation, cause error) error {
	if errors.Is(cause, gateway.ErrUnavailable) {
		return cause
	}

	op.Attempts++
	op.NextAttempt = s.now().Add(s.backoff(op.Attempts))
	if err := s.store.UpdateOp(ctx, op); err != nil {
		logger.Log.Error().Err(err).Str("op_id", op.ID).Msg("Failed to reschedule operation")
	}

	logger.Log.Warn().
		Err(cause).
		Str("op_id", op.ID).
		Str("kind", string(op.Kind)).
		Int("attempts", op.Attempts).
		Time("next_attempt", op.NextAttempt).
		Msg("Operation rejected, kept queued")
	opsProcessed.WithLabelValues("retry", string(op.Kind)).Inc()
	return nil
}

// backoff computes the delay before the next dispatch attempt.
// Exponential: 2^attempts * base, capped.
func (s *Synchronizer) backoff(attempts int) time.Duration {
	d := time.Duration(1<<uint(attempts)) * s.backoffBase
	if d > s.backoffCap {
		d = s.backoffCap
	}
	return d
}

// reconcile merges the canonical server list into the local store by
// last-write-wins on updated-at, then pushes the merged list to the sink.
//
// Tasks present locally but absent from the server response are left
// untouched: deletions propagate only through queued delete operations, never
// by absence, so a partial server response cannot destroy local data.
func (s *Synchronizer) reconcile(ctx context.Context) error {
	remote, err := s.gw.ListTasks(ctx, s.ownerID)
	if err != nil {
		return fmt.Errorf("fetch canonical task list: %w", err)
	}

	for _, rt := range remote {
		local, err := s.store.GetTask(ctx, rt.ID)
		if err != nil {
			return err
		}
		// Insert unknown tasks; overwrite known ones only when the server
		// copy is strictly newer. Optimistic local edits with a newer
		// updated-at survive until the server supersedes them.
		if local == nil || rt.UpdatedAt.After(local.UpdatedAt) {
			rt.Unconfirmed = false
			if err := s.store.PutTask(ctx, rt); err != nil {
				return err
			}
		}
	}

	merged, err := s.store.GetTasks(ctx, s.ownerID)
	if err != nil {
		return err
	}
	s.sink.ReplaceAll(s.ownerID, merged)
	return nil
}

// updatePendingGauge refreshes the pending-operation metric.
func (s *Synchronizer) updatePendingGauge(ctx context.Context) {
	n, err := s.store.PendingOps(ctx, s.ownerID)
	if err != nil {
		return
	}
	pendingOps.Set(float64(n))
}

// payloadOf unwraps the op payload, tolerating a nil pointer.
func payloadOf(op tasks.Operation) tasks.Payload {
	if op.Payload == nil {
		return tasks.Payload{}
	}
	return *op.Payload
}

// cancelledTempIDs finds temporary ids whose create is still queued and is
// followed by a delete: neither side needs a network call.
func cancelledTempIDs(ops []tasks.Operation) map[string]bool {
	created := make(map[string]bool)
	out := make(map[string]bool)
	for _, op := range ops {
		if !tasks.IsTempID(op.TaskID) {
			continue
		}
		switch op.Kind {
		case tasks.OpCreate:
			created[op.TaskID] = true
		case tasks.OpDelete:
			if created[op.TaskID] {
				out[op.TaskID] = true
			}
		}
	}
	return out
}
