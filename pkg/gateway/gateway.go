// Package gateway is the only network-facing piece of the sync engine: a
// client for the remote task service. The synchronizer treats every error
// from this package as "operation not yet applied, retry later", with two
// exceptions spelled out by the error taxonomy below:
//
//   - ErrUnavailable: the service is unreachable. The current drain pass is
//     aborted and the engine transitions to Offline.
//   - ErrNotFound: the target no longer exists remotely. Updates and deletes
//     hitting this are treated as already resolved and dropped.
//
// Everything else (a *StatusError) keeps the operation queued for a later
// pass under capped backoff.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/guido-cesarano/tasksync/pkg/tasks"
)

// ErrUnavailable indicates a transport-level failure: the remote service
// could not be reached at all.
var ErrUnavailable = errors.New("gateway unavailable")

// ErrNotFound indicates the remote service answered 404 for the target task.
var ErrNotFound = errors.New("task not found on server")

// StatusError is a non-2xx, non-404 response from the remote service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway rejected request: status %d: %s", e.Code, e.Body)
}

// Gateway is the remote task service contract consumed by the synchronizer.
// The server assigns ids and timestamps; clients never fabricate them.
type Gateway interface {
	// ListTasks fetches the owner's full canonical task list.
	ListTasks(ctx context.Context, ownerID string) ([]tasks.Task, error)

	// CreateTask creates a task and returns the canonical record with the
	// server-assigned id, created-at and updated-at.
	CreateTask(ctx context.Context, ownerID string, p tasks.Payload) (*tasks.Task, error)

	// UpdateTask applies the payload to an existing task. The server
	// recomputes updated-at, and completed-at when the completion flag flips.
	UpdateTask(ctx context.Context, id string, p tasks.Payload) (*tasks.Task, error)

	// DeleteTask removes the task remotely.
	DeleteTask(ctx context.Context, id string) error

	// Ping is a cheap reachability probe used by the connectivity monitor.
	Ping(ctx context.Context) error
}
