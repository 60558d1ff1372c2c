// Package store provides the durable local task store and the pending-operation
// log over a single storage medium.
//
// Two implementations exist:
//   - Redis: the durable backend, surviving agent restarts
//   - Memory: a best-effort degraded mode used when Redis is unreachable
//
// The backend is negotiated once at startup via Open; callers receive the
// selected Store plus a durability capability flag. The degraded mode is never
// silently hidden: Open logs a warning once when it falls back.
package store

import (
	"context"
	"time"

	"github.com/guido-cesarano/tasksync/pkg/logger"
	"github.com/guido-cesarano/tasksync/pkg/tasks"
	"github.com/redis/go-redis/v9"
)

// Store is the combined contract of the durable local task store and the
// pending-operation log. Both live on the same medium so an enqueue and its
// optimistic local write share fate across restarts.
//
// Task operations are idempotent: putting the same record twice or deleting a
// missing record yields the same final state and no error.
type Store interface {
	// GetTask returns the task by id, or (nil, nil) if absent.
	GetTask(ctx context.Context, id string) (*tasks.Task, error)

	// GetTasks returns all tasks for the owner ordered by creation time.
	GetTasks(ctx context.Context, ownerID string) ([]tasks.Task, error)

	// PutTask upserts the task by identifier.
	PutTask(ctx context.Context, t tasks.Task) error

	// DeleteTask removes the task. Deleting a missing task is a no-op.
	DeleteTask(ctx context.Context, id string) error

	// ClearTasks removes every task belonging to the owner.
	ClearTasks(ctx context.Context, ownerID string) error

	// Enqueue appends the operation to the pending log. Appends are atomic:
	// concurrent enqueues cannot lose operations or collide on ordering.
	Enqueue(ctx context.Context, op tasks.Operation) error

	// ListOps returns the owner's pending operations in enqueue order.
	ListOps(ctx context.Context, ownerID string) ([]tasks.Operation, error)

	// UpdateOp rewrites a pending operation in place (backoff bookkeeping,
	// task-id substitution). The log position is unchanged.
	UpdateOp(ctx context.Context, op tasks.Operation) error

	// RemoveOp deletes the operation from the log. Removing a missing
	// operation is a no-op.
	RemoveOp(ctx context.Context, ownerID, opID string) error

	// RewriteTaskID substitutes newID for oldID in every pending operation
	// of the owner. Used after a create is acknowledged and the server id
	// replaces the temporary one.
	RewriteTaskID(ctx context.Context, ownerID, oldID, newID string) error

	// ClearOps drops the owner's entire pending log.
	ClearOps(ctx context.Context, ownerID string) error

	// PendingOps returns the number of queued operations for the owner.
	PendingOps(ctx context.Context, ownerID string) (int64, error)

	// Close releases the backend connection.
	Close() error
}

// Open negotiates the storage backend once at startup.
//
// It pings Redis at addr with a short timeout. On success it returns the
// Redis-backed store and durable=true. If Redis is unreachable it returns the
// in-memory degraded store and durable=false, logging the capability warning
// exactly once. There is no runtime re-negotiation.
func Open(addr string) (Store, bool) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		logger.Log.Warn().
			Err(err).
			Str("addr", addr).
			Msg("Local storage unavailable, degrading to in-memory store. Pending operations will not survive a restart.")
		return NewMemory(), false
	}

	return NewRedis(rdb), true
}
