// Package tasks defines the core data structures for the offline-first sync engine.
// Tasks are the user-visible records kept in the local store; Operations are the
// pending mutations queued while the remote task service is unreachable.
//
// Tasks created locally before the server has acknowledged them carry a temporary
// identifier (prefixed with "tmp-") and the Unconfirmed flag. Once the server
// assigns a canonical id, the temporary record is replaced and every queued
// operation still referencing the temporary id is rewritten.
package tasks

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority is the urgency level of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Category groups tasks by planning horizon.
type Category string

const (
	CategoryShortTerm Category = "short-term"
	CategoryLongTerm  Category = "long-term"
	CategoryCustom    Category = "custom"
)

// Frequency is the recurrence of a task.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyOnce    Frequency = "once"
)

// TempIDPrefix marks identifiers generated locally before the server has
// acknowledged the task. Server-assigned ids never carry this prefix, so the
// two namespaces are disjoint.
const TempIDPrefix = "tmp-"

// NewTempID generates a fresh temporary task identifier.
func NewTempID() string {
	return TempIDPrefix + uuid.New().String()
}

// IsTempID reports whether id belongs to the temporary (unconfirmed) namespace.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Task represents a single to-do item as held in the local store.
//
// UpdatedAt is monotonic per record: every local mutation bumps it strictly
// forward (see Apply), and reconciliation only overwrites a record when the
// server copy carries a strictly newer UpdatedAt.
type Task struct {
	// ID is the task identifier. Temporary ids (see TempIDPrefix) are
	// replaced by the server-assigned id on the first successful sync.
	ID string `json:"id"`

	// OwnerID identifies the user the task belongs to.
	OwnerID string `json:"owner_id"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	Completed bool      `json:"completed"`
	Priority  Priority  `json:"priority"`
	Category  Category  `json:"category"`
	Frequency Frequency `json:"frequency"`

	// DueAt is the optional due timestamp.
	DueAt *time.Time `json:"due_at,omitempty"`

	Tags []string `json:"tags,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// CompletedAt is set when the completion flag flips to true and cleared
	// when it flips back.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Unconfirmed marks records not yet acknowledged by the server.
	Unconfirmed bool `json:"unconfirmed,omitempty"`
}

// Payload carries the fields of a create or update mutation.
// Nil pointers mean "leave unchanged" on update; on create they fall back to
// the zero-value defaults applied by the caller.
type Payload struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Completed   *bool      `json:"completed,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	Category    *Category  `json:"category,omitempty"`
	Frequency   *Frequency `json:"frequency,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	Tags        *[]string  `json:"tags,omitempty"`
}

// Apply merges the payload into the task and bumps UpdatedAt.
//
// UpdatedAt is kept strictly monotonic even if the caller's clock has not
// advanced since the previous mutation (two edits within the same clock tick).
// CompletedAt tracks the completion flag: set on false->true, cleared on
// true->false.
func (t *Task) Apply(p Payload, now time.Time) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Completed != nil && *p.Completed != t.Completed {
		t.Completed = *p.Completed
		if t.Completed {
			at := now
			t.CompletedAt = &at
		} else {
			t.CompletedAt = nil
		}
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Frequency != nil {
		t.Frequency = *p.Frequency
	}
	if p.DueAt != nil {
		at := *p.DueAt
		t.DueAt = &at
	}
	if p.Tags != nil {
		t.Tags = append([]string(nil), (*p.Tags)...)
	}

	if !now.After(t.UpdatedAt) {
		now = t.UpdatedAt.Add(time.Nanosecond)
	}
	t.UpdatedAt = now
}

// OpKind is the tagged variant of a queued operation.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Operation is a single not-yet-acknowledged mutation in the pending log.
// An operation leaves the log only when the remote gateway acknowledges it,
// it is dropped as already resolved (not-found on update/delete), or it is
// cancelled (create immediately followed by delete of the same unconfirmed
// task).
type Operation struct {
	// ID is a unique identifier for the operation (UUID).
	ID string `json:"id"`

	// Kind is the mutation variant: create, update or delete.
	Kind OpKind `json:"kind"`

	// TaskID is the affected task's identifier, temporary or server-assigned.
	TaskID string `json:"task_id"`

	// OwnerID identifies the owning user; the log is drained per owner.
	OwnerID string `json:"owner_id"`

	// Payload is the mutation body for create and update operations.
	Payload *Payload `json:"payload,omitempty"`

	// EnqueuedAt is the timestamp of the local mutation.
	EnqueuedAt time.Time `json:"enqueued_at"`

	// Attempts counts failed dispatch attempts; the synchronizer uses it to
	// compute the capped exponential backoff window.
	Attempts int `json:"attempts"`

	// NextAttempt is the earliest time the operation may be dispatched again
	// after a failure. Zero means dispatch immediately.
	NextAttempt time.Time `json:"next_attempt,omitempty"`
}

// NewOperation builds an operation with a fresh UUID and the given enqueue time.
func NewOperation(kind OpKind, ownerID, taskID string, payload *Payload, now time.Time) Operation {
	return Operation{
		ID:         uuid.New().String(),
		Kind:       kind,
		TaskID:     taskID,
		OwnerID:    ownerID,
		Payload:    payload,
		EnqueuedAt: now,
	}
}
