package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/guido-cesarano/tasksync/pkg/tasks"
	"github.com/redis/go-redis/v9"
)

// Redis is the durable Store implementation.
//
// Key layout:
//   - task:{id}                  task record as JSON
//   - owner:{owner}:tasks        sorted set of task ids, scored by creation time
//   - owner:{owner}:completed    set of completed task ids
//   - op:{id}                    pending operation as JSON
//   - owner:{owner}:oplog        sorted set of op ids, scored by enqueue sequence
//   - oplog:seq                  global enqueue sequence counter
//
// The enqueue sequence comes from a Lua script (INCR + SET + ZADD in one atomic
// step) so concurrent enqueues can neither collide on ordering nor lose an
// operation between the counter bump and the log insert.
type Redis struct {
	rdb *redis.Client
}

// NewRedis wraps an already-connected Redis client.
// Use Open for the capability-negotiated constructor.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func taskKey(id string) string { return "task:" + id }

func ownerTasksKey(owner string) string { return "owner:" + owner + ":tasks" }

func ownerDoneKey(owner string) string { return "owner:" + owner + ":completed" }

func opKey(id string) string { return "op:" + id }

func ownerOplogKey(owner string) string { return "owner:" + owner + ":oplog" }

// enqueueScript atomically assigns the next sequence number, stores the
// operation body, and inserts it into the owner's log at that sequence.
var enqueueScript = redis.NewScript(`
	local seq = redis.call('INCR', KEYS[1])
	redis.call('SET', KEYS[2], ARGV[1])
	redis.call('ZADD', KEYS[3], seq, ARGV[2])
	return seq
`)

// GetTask implements Store.GetTask. Absent tasks return (nil, nil).
func (s *Redis) GetTask(ctx context.Context, id string) (*tasks.Task, error) {
	data, err := s.rdb.Get(ctx, taskKey(id)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var t tasks.Task
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	return &t, nil
}

// GetTasks implements Store.GetTasks, returning the owner's tasks in creation order.
func (s *Redis) GetTasks(ctx context.Context, ownerID string) ([]tasks.Task, error) {
	ids, err := s.rdb.ZRange(ctx, ownerTasksKey(ownerID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = taskKey(id)
	}

	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	list := make([]tasks.Task, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index member without a body; stale entry, skip it.
			continue
		}
		var t tasks.Task
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, fmt.Errorf("decode task %s: %w", ids[i], err)
		}
		list = append(list, t)
	}
	return list, nil
}

// PutTask implements Store.PutTask. The upsert and its index updates run in
// one pipeline.
func (s *Redis) PutTask(ctx context.Context, t tasks.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, taskKey(t.ID), data, 0)
	pipe.ZAdd(ctx, ownerTasksKey(t.OwnerID), redis.Z{
		Score:  float64(t.CreatedAt.UnixNano()),
		Member: t.ID,
	})
	if t.Completed {
		pipe.SAdd(ctx, ownerDoneKey(t.OwnerID), t.ID)
	} else {
		pipe.SRem(ctx, ownerDoneKey(t.OwnerID), t.ID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// DeleteTask implements Store.DeleteTask. Deleting a missing task is a no-op.
func (s *Redis) DeleteTask(ctx context.Context, id string) error {
	// Fetch first to learn the owner for index cleanup.
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return nil
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, taskKey(id))
	pipe.ZRem(ctx, ownerTasksKey(t.OwnerID), id)
	pipe.SRem(ctx, ownerDoneKey(t.OwnerID), id)
	_, err = pipe.Exec(ctx)
	return err
}

// ClearTasks implements Store.ClearTasks.
func (s *Redis) ClearTasks(ctx context.Context, ownerID string) error {
	ids, err := s.rdb.ZRange(ctx, ownerTasksKey(ownerID), 0, -1).Result()
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, taskKey(id))
	}
	pipe.Del(ctx, ownerTasksKey(ownerID))
	pipe.Del(ctx, ownerDoneKey(ownerID))
	_, err = pipe.Exec(ctx)
	return err
}

// Enqueue implements Store.Enqueue via the atomic Lua script.
func (s *Redis) Enqueue(ctx context.Context, op tasks.Operation) error {
	data, err := json.Marshal(op)
	if err != nil {
		return err
	}

	return enqueueScript.Run(ctx, s.rdb,
		[]string{"oplog:seq", opKey(op.ID), ownerOplogKey(op.OwnerID)},
		data, op.ID,
	).Err()
}

// ListOps implements Store.ListOps, returning operations in enqueue order.
func (s *Redis) ListOps(ctx context.Context, ownerID string) ([]tasks.Operation, error) {
	ids, err := s.rdb.ZRange(ctx, ownerOplogKey(ownerID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = opKey(id)
	}

	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	ops := make([]tasks.Operation, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var op tasks.Operation
		if err := json.Unmarshal([]byte(raw), &op); err != nil {
			return nil, fmt.Errorf("decode op %s: %w", ids[i], err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// UpdateOp implements Store.UpdateOp. The body is only rewritten if the
// operation still exists, so a concurrent removal is not resurrected.
func (s *Redis) UpdateOp(ctx context.Context, op tasks.Operation) error {
	data, err := json.Marshal(op)
	if err != nil {
		return err
	}
	return s.rdb.SetXX(ctx, opKey(op.ID), data, 0).Err()
}

// RemoveOp implements Store.RemoveOp. Removing a missing operation is a no-op.
func (s *Redis) RemoveOp(ctx context.Context, ownerID, opID string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, opKey(opID))
	pipe.ZRem(ctx, ownerOplogKey(ownerID), opID)
	_, err := pipe.Exec(ctx)
	return err
}

// RewriteTaskID implements Store.RewriteTaskID.
func (s *Redis) RewriteTaskID(ctx context.Context, ownerID, oldID, newID string) error {
	ops, err := s.ListOps(ctx, ownerID)
	if err != nil {
		return err
	}
	for _, op := range ops {
		if op.TaskID != oldID {
			continue
		}
		op.TaskID = newID
		if err := s.UpdateOp(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

// ClearOps implements Store.ClearOps.
func (s *Redis) ClearOps(ctx context.Context, ownerID string) error {
	ids, err := s.rdb.ZRange(ctx, ownerOplogKey(ownerID), 0, -1).Result()
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, opKey(id))
	}
	pipe.Del(ctx, ownerOplogKey(ownerID))
	_, err = pipe.Exec(ctx)
	return err
}

// PendingOps implements Store.PendingOps.
func (s *Redis) PendingOps(ctx context.Context, ownerID string) (int64, error) {
	return s.rdb.ZCard(ctx, ownerOplogKey(ownerID)).Result()
}

// Close implements Store.Close.
func (s *Redis) Close() error {
	return s.rdb.Close()
}
