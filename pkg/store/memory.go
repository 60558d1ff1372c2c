package store

import (
	"context"
	"sort"
	"sync"

	"github.com/guido-cesarano/tasksync/pkg/tasks"
)

// Memory is the best-effort in-memory Store used when the durable medium is
// unavailable. State does not survive a restart; Open surfaces that through
// the durability capability flag.
type Memory struct {
	mu    sync.Mutex
	tasks map[string]tasks.Task
	ops   map[string]tasks.Operation
	seq   map[string]int64 // op id -> enqueue sequence
	next  int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tasks: make(map[string]tasks.Task),
		ops:   make(map[string]tasks.Operation),
		seq:   make(map[string]int64),
	}
}

// GetTask implements Store.GetTask.
func (s *Memory) GetTask(_ context.Context, id string) (*tasks.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// GetTasks implements Store.GetTasks.
func (s *Memory) GetTasks(_ context.Context, ownerID string) ([]tasks.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list []tasks.Task
	for _, t := range s.tasks {
		if t.OwnerID == ownerID {
			list = append(list, t)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list, nil
}

// PutTask implements Store.PutTask.
func (s *Memory) PutTask(_ context.Context, t tasks.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
	return nil
}

// DeleteTask implements Store.DeleteTask.
func (s *Memory) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	return nil
}

// ClearTasks implements Store.ClearTasks.
func (s *Memory) ClearTasks(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.tasks {
		if t.OwnerID == ownerID {
			delete(s.tasks, id)
		}
	}
	return nil
}

// Enqueue implements Store.Enqueue. The single lock makes the append atomic.
func (s *Memory) Enqueue(_ context.Context, op tasks.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.ops[op.ID] = op
	s.seq[op.ID] = s.next
	return nil
}

// ListOps implements Store.ListOps.
func (s *Memory) ListOps(_ context.Context, ownerID string) ([]tasks.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list []tasks.Operation
	for _, op := range s.ops {
		if op.OwnerID == ownerID {
			list = append(list, op)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return s.seq[list[i].ID] < s.seq[list[j].ID]
	})
	return list, nil
}

// UpdateOp implements Store.UpdateOp.
func (s *Memory) UpdateOp(_ context.Context, op tasks.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ops[op.ID]; ok {
		s.ops[op.ID] = op
	}
	return nil
}

// RemoveOp implements Store.RemoveOp.
func (s *Memory) RemoveOp(_ context.Context, _ string, opID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ops, opID)
	delete(s.seq, opID)
	return nil
}

// RewriteTaskID implements Store.RewriteTaskID.
func (s *Memory) RewriteTaskID(_ context.Context, ownerID, oldID, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, op := range s.ops {
		if op.OwnerID == ownerID && op.TaskID == oldID {
			op.TaskID = newID
			s.ops[id] = op
		}
	}
	return nil
}

// ClearOps implements Store.ClearOps.
func (s *Memory) ClearOps(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, op := range s.ops {
		if op.OwnerID == ownerID {
			delete(s.ops, id)
			delete(s.seq, id)
		}
	}
	return nil
}

// PendingOps implements Store.PendingOps.
func (s *Memory) PendingOps(_ context.Context, ownerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, op := range s.ops {
		if op.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

// Close implements Store.Close.
func (s *Memory) Close() error {
	return nil
}
