package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"github.com/guido-cesarano/tasksync/pkg/gateway"
	"github.com/guido-cesarano/tasksync/pkg/store"
	"github.com/guido-cesarano/tasksync/pkg/tasks"
)

// fakeGateway is an in-memory remote task service with switchable
// connectivity, a budget of successful calls (to cut the line mid-drain) and
// per-title rejections.
type fakeGateway struct {
	mu     stdsync.Mutex
	online bool

	// callBudget limits successful calls; -1 means unlimited. When the
	// budget runs out the gateway behaves as unreachable.
	callBudget int

	// rejectTitles makes CreateTask answer 500 for matching payloads.
	rejectTitles map[string]bool

	tasks    map[string]tasks.Task
	nextID   int
	mutCalls int
	lstCalls int

	now func() time.Time
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		online:       true,
		callBudget:   -1,
		rejectTitles: map[string]bool{},
		tasks:        map[string]tasks.Task{},
		now:          time.Now,
	}
}

// gate consumes one call from the budget; unreachable when offline or spent.
func (g *fakeGateway) gate() error {
	if !g.online {
		return fmt.Errorf("%w: connection refused", gateway.ErrUnavailable)
	}
	if g.callBudget == 0 {
		return fmt.Errorf("%w: connection reset", gateway.ErrUnavailable)
	}
	if g.callBudget > 0 {
		g.callBudget--
	}
	return nil
}

func (g *fakeGateway) ListTasks(_ context.Context, ownerID string) ([]tasks.Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.gate(); err != nil {
		return nil, err
	}
	g.lstCalls++

	var list []tasks.Task
	for _, t := range g.tasks {
		if t.OwnerID == ownerID {
			list = append(list, t)
		}
	}
	return list, nil
}

func (g *fakeGateway) CreateTask(_ context.Context, ownerID string, p tasks.Payload) (*tasks.Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.gate(); err != nil {
		return nil, err
	}
	g.mutCalls++

	if p.Title != nil && g.rejectTitles[*p.Title] {
		return nil, &gateway.StatusError{Code: 500, Body: "boom"}
	}

	g.nextID++
	now := g.now()
	t := tasks.Task{
		ID:        fmt.Sprintf("srv%d", g.nextID),
		OwnerID:   ownerID,
		Priority:  tasks.PriorityMedium,
		Category:  tasks.CategoryShortTerm,
		Frequency: tasks.FrequencyOnce,
		CreatedAt: now,
	}
	t.Apply(p, now)
	g.tasks[t.ID] = t
	return &t, nil
}

func (g *fakeGateway) UpdateTask(_ context.Context, id string, p tasks.Payload) (*tasks.Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.gate(); err != nil {
		return nil, err
	}
	g.mutCalls++

	if p.Title != nil && g.rejectTitles[*p.Title] {
		return nil, &gateway.StatusError{Code: 500, Body: "boom"}
	}

	t, ok := g.tasks[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	t.Apply(p, g.now())
	g.tasks[id] = t
	return &t, nil
}

func (g *fakeGateway) DeleteTask(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.gate(); err != nil {
		return err
	}
	g.mutCalls++

	if _, ok := g.tasks[id]; !ok {
		return gateway.ErrNotFound
	}
	delete(g.tasks, id)
	return nil
}

func (g *fakeGateway) Ping(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.online {
		return gateway.ErrUnavailable
	}
	return nil
}

func (g *fakeGateway) setOnline(v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.online = v
}

func (g *fakeGateway) mutationCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mutCalls
}

func (g *fakeGateway) task(id string) (tasks.Task, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	return t, ok
}

// fakeSink records the latest task state pushed by the synchronizer.
type fakeSink struct {
	mu    stdsync.Mutex
	tasks map[string]tasks.Task
}

func newFakeSink() *fakeSink {
	return &fakeSink{tasks: map[string]tasks.Task{}}
}

func (s *fakeSink) Upsert(t tasks.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
}

func (s *fakeSink) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
}

func (s *fakeSink) ReplaceAll(_ string, list []tasks.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]tasks.Task, len(list))
	for _, t := range list {
		s.tasks[t.ID] = t
	}
}

func (s *fakeSink) has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[id]
	return ok
}

func (s *fakeSink) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// newTestEngine wires a synchronizer over the in-memory store with background
// triggers disabled, so passes run only when the test calls Sync.
func newTestEngine(gw gateway.Gateway) (*Synchronizer, store.Store, *fakeSink) {
	st := store.NewMemory()
	sink := newFakeSink()
	s := New(st, gw, sink, "owner-1", true)
	s.trigger = func() {}
	return s, st, sink
}

func strptr(s string) *string { return &s }
func boolptr(b bool) *bool    { return &b }

func TestOfflineCreateThenSync(t *testing.T) {
	gw := newFakeGateway()
	gw.setOnline(false)
	s, st, sink := newTestEngine(gw)
	ctx := context.Background()

	// User creates while offline: local apply succeeds immediately.
	created, err := s.Create(ctx, tasks.Payload{Title: strptr("Buy milk")})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !tasks.IsTempID(created.ID) || !created.Unconfirmed {
		t.Fatalf("Expected unconfirmed temp-id record, got %+v", created)
	}
	if n, _ := st.PendingOps(ctx, "owner-1"); n != 1 {
		t.Fatalf("Expected 1 pending op, got %d", n)
	}

	// A pass against the unreachable gateway aborts and goes offline; the
	// queue is preserved.
	if !s.Sync(ctx) {
		t.Fatal("Expected sync pass to start")
	}
	if s.State() != StateOffline {
		t.Fatalf("Expected offline state, got %s", s.State())
	}
	if n, _ := st.PendingOps(ctx, "owner-1"); n != 1 {
		t.Errorf("Expected queue preserved across failed pass, got %d ops", n)
	}

	// Connectivity restored: offline -> idle, then the pass drains.
	gw.setOnline(true)
	s.SetOnline(true)
	if !s.Sync(ctx) {
		t.Fatal("Expected sync pass after reconnect")
	}

	if s.State() != StateIdle {
		t.Errorf("Expected idle after successful pass, got %s", s.State())
	}
	if n, _ := st.PendingOps(ctx, "owner-1"); n != 0 {
		t.Errorf("Expected queue drained, got %d ops", n)
	}

	// The temp record was replaced by the canonical server record.
	if old, _ := st.GetTask(ctx, created.ID); old != nil {
		t.Errorf("Expected temp record gone, got %+v", old)
	}
	confirmed, _ := st.GetTask(ctx, "srv1")
	if confirmed == nil || confirmed.Title != "Buy milk" || confirmed.Unconfirmed {
		t.Fatalf("Expected confirmed srv1 record, got %+v", confirmed)
	}

	// The sink saw the substitution: server id present, temp id gone, no
	// duplicate entries.
	if sink.has(created.ID) {
		t.Error("Expected temp id removed from sink")
	}
	if !sink.has("srv1") || sink.size() != 1 {
		t.Errorf("Expected exactly the confirmed task in sink, got %d entries", sink.size())
	}
}

func TestCreateThenDeleteCancels(t *testing.T) {
	gw := newFakeGateway()
	s, st, sink := newTestEngine(gw)
	ctx := context.Background()

	created, err := s.Create(ctx, tasks.Payload{Title: strptr("ephemeral")})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	// An edit in between is cancelled along with the pair.
	if _, err := s.Update(ctx, created.ID, tasks.Payload{Title: strptr("renamed")}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := s.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if !s.Sync(ctx) {
		t.Fatal("Expected sync pass to start")
	}

	if got := gw.mutationCalls(); got != 0 {
		t.Errorf("Expected zero network mutations for a cancelled pair, got %d", got)
	}
	if n, _ := st.PendingOps(ctx, "owner-1"); n != 0 {
		t.Errorf("Expected queue empty, got %d ops", n)
	}
	if task, _ := st.GetTask(ctx, created.ID); task != nil {
		t.Errorf("Expected no residual record, got %+v", task)
	}
	if sink.has(created.ID) {
		t.Error("Expected no residual sink entry")
	}
}

func TestReplayMatchesOnlineApplication(t *testing.T) {
	// The same mutation sequence applied offline and drained later must land
	// the server in the same state as applying it directly online.
	gw := newFakeGateway()
	gw.setOnline(false)
	s, st, _ := newTestEngine(gw)
	ctx := context.Background()

	created, _ := s.Create(ctx, tasks.Payload{Title: strptr("Buy milk")})
	s.Update(ctx, created.ID, tasks.Payload{Title: strptr("Buy oat milk")})
	s.Update(ctx, created.ID, tasks.Payload{Completed: boolptr(true)})

	gw.setOnline(true)
	s.SetOnline(true)
	if !s.Sync(ctx) {
		t.Fatal("Expected sync pass to start")
	}

	srv, ok := gw.task("srv1")
	if !ok {
		t.Fatal("Expected task on server")
	}
	if srv.Title != "Buy oat milk" || !srv.Completed {
		t.Errorf("Expected replayed state on server, got %+v", srv)
	}
	if srv.CompletedAt == nil {
		t.Error("Expected server to set completed-at on completion")
	}
	if n, _ := st.PendingOps(ctx, "owner-1"); n != 0 {
		t.Errorf("Expected queue drained, got %d ops", n)
	}
}

func TestTempIDRewriteSurvivesAbortedPass(t *testing.T) {
	gw := newFakeGateway()
	s, st, _ := newTestEngine(gw)
	ctx := context.Background()

	created, _ := s.Create(ctx, tasks.Payload{Title: strptr("Buy milk")})
	s.Update(ctx, created.ID, tasks.Payload{Completed: boolptr(true)})

	// Budget of one call: the create lands, then the line drops.
	gw.mu.Lock()
	gw.callBudget = 1
	gw.mu.Unlock()

	if !s.Sync(ctx) {
		t.Fatal("Expected sync pass to start")
	}
	if s.State() != StateOffline {
		t.Fatalf("Expected offline after mid-drain loss, got %s", s.State())
	}

	// The queued update must already point at the server id, durably.
	ops, _ := st.ListOps(ctx, "owner-1")
	if len(ops) != 1 {
		t.Fatalf("Expected 1 remaining op, got %d", len(ops))
	}
	if ops[0].TaskID != "srv1" {
		t.Errorf("Expected queued op rewritten to srv1, got %s", ops[0].TaskID)
	}

	// Next pass completes the replay.
	gw.mu.Lock()
	gw.callBudget = -1
	gw.mu.Unlock()
	s.SetOnline(true)
	s.Sync(ctx)

	srv, _ := gw.task("srv1")
	if !srv.Completed {
		t.Errorf("Expected update applied on second pass, got %+v", srv)
	}
}

func TestPartialFailureIsolation(t *testing.T) {
	gw := newFakeGateway()
	gw.rejectTitles["bad"] = true
	s, st, _ := newTestEngine(gw)
	ctx := context.Background()

	s.Create(ctx, tasks.Payload{Title: strptr("bad")})
	s.Create(ctx, tasks.Payload{Title: strptr("good")})

	if !s.Sync(ctx) {
		t.Fatal("Expected sync pass to start")
	}

	// The rejection did not abort the pass or block the second create.
	if s.State() != StateIdle {
		t.Errorf("Expected idle after rejected op, got %s", s.State())
	}
	if _, ok := gw.task("srv1"); !ok {
		t.Error("Expected independent op applied despite earlier rejection")
	}

	ops, _ := st.ListOps(ctx, "owner-1")
	if len(ops) != 1 {
		t.Fatalf("Expected rejected op kept queued, got %d ops", len(ops))
	}
	if ops[0].Attempts != 1 || !ops[0].NextAttempt.After(time.Now().Add(-time.Second)) {
		t.Errorf("Expected backoff bookkeeping on rejected op, got %+v", ops[0])
	}
}

func TestNotFoundResolvesOps(t *testing.T) {
	gw := newFakeGateway()
	s, st, _ := newTestEngine(gw)
	ctx := context.Background()

	// Ops aimed at a task another device already deleted server-side.
	now := time.Now()
	st.PutTask(ctx, tasks.Task{ID: "srv9", OwnerID: "owner-1", CreatedAt: now, UpdatedAt: now})
	st.Enqueue(ctx, tasks.NewOperation(tasks.OpUpdate, "owner-1", "srv9", &tasks.Payload{Title: strptr("x")}, now))
	st.Enqueue(ctx, tasks.NewOperation(tasks.OpDelete, "owner-1", "srv9", nil, now))

	if !s.Sync(ctx) {
		t.Fatal("Expected sync pass to start")
	}

	if n, _ := st.PendingOps(ctx, "owner-1"); n != 0 {
		t.Errorf("Expected not-found ops dropped, got %d remaining", n)
	}
	if s.State() != StateIdle {
		t.Errorf("Expected idle, got %s", s.State())
	}
}

func TestReconcileLastWriteWins(t *testing.T) {
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		localUpd  time.Time
		remoteUpd time.Time
		wantTitle string
	}{
		{"server newer wins", base, base.Add(time.Hour), "server"},
		{"local newer survives", base.Add(time.Hour), base, "local"},
		{"equal timestamps keep local", base, base, "local"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw := newFakeGateway()
			s, st, sink := newTestEngine(gw)
			ctx := context.Background()

			st.PutTask(ctx, tasks.Task{
				ID: "srv1", OwnerID: "owner-1", Title: "local",
				CreatedAt: base, UpdatedAt: tc.localUpd,
			})
			gw.tasks["srv1"] = tasks.Task{
				ID: "srv1", OwnerID: "owner-1", Title: "server",
				CreatedAt: base, UpdatedAt: tc.remoteUpd,
			}

			if !s.Sync(ctx) {
				t.Fatal("Expected sync pass to start")
			}

			got, _ := st.GetTask(ctx, "srv1")
			if got == nil || got.Title != tc.wantTitle {
				t.Fatalf("Expected %q to win, got %+v", tc.wantTitle, got)
			}
			if !sink.has("srv1") {
				t.Error("Expected merged task pushed to sink")
			}
		})
	}
}

func TestReconcileInsertsUnknownAndKeepsAbsent(t *testing.T) {
	gw := newFakeGateway()
	s, st, sink := newTestEngine(gw)
	ctx := context.Background()

	now := time.Now()
	// Known only locally: absence from the server response must not delete it.
	st.PutTask(ctx, tasks.Task{ID: "local-only", OwnerID: "owner-1", CreatedAt: now, UpdatedAt: now})
	// Known only remotely: created from another device.
	gw.tasks["srv7"] = tasks.Task{ID: "srv7", OwnerID: "owner-1", Title: "from phone", CreatedAt: now, UpdatedAt: now}

	if !s.Sync(ctx) {
		t.Fatal("Expected sync pass to start")
	}

	if got, _ := st.GetTask(ctx, "local-only"); got == nil {
		t.Error("Absence from server response must not delete local records")
	}
	if got, _ := st.GetTask(ctx, "srv7"); got == nil || got.Title != "from phone" {
		t.Errorf("Expected remote task inserted, got %+v", got)
	}
	if sink.size() != 2 {
		t.Errorf("Expected both tasks in sink, got %d", sink.size())
	}
}

func TestEmptyQueueDrainIsNoop(t *testing.T) {
	gw := newFakeGateway()
	s, _, _ := newTestEngine(gw)
	ctx := context.Background()

	s.Sync(ctx)
	s.Sync(ctx)

	if got := gw.mutationCalls(); got != 0 {
		t.Errorf("Expected no mutations from empty drains, got %d", got)
	}
	if s.State() != StateIdle {
		t.Errorf("Expected idle, got %s", s.State())
	}
}

func TestTriggerWhileSyncingIsNoop(t *testing.T) {
	gw := newFakeGateway()
	s, _, _ := newTestEngine(gw)

	s.mu.Lock()
	s.state = StateSyncing
	s.mu.Unlock()

	if s.Sync(context.Background()) {
		t.Error("Expected concurrent pass to be refused")
	}
	if got := gw.mutationCalls(); got != 0 {
		t.Errorf("Expected refused pass to touch nothing, got %d calls", got)
	}
}

func TestOfflineStateBlocksTimerTicks(t *testing.T) {
	gw := newFakeGateway()
	gw.setOnline(false)
	s, _, _ := newTestEngine(gw)

	s.SetOnline(false)
	if s.State() != StateOffline {
		t.Fatalf("Expected offline, got %s", s.State())
	}

	// Timer ticks while offline must not start passes.
	if s.Sync(context.Background()) {
		t.Error("Expected pass refused while offline")
	}
}

func TestReconnectTriggersExactlyOnce(t *testing.T) {
	gw := newFakeGateway()
	s, _, _ := newTestEngine(gw)

	triggered := 0
	s.trigger = func() { triggered++ }

	s.SetOnline(false)
	s.SetOnline(true)
	// Duplicate online notifications (flapping) must not re-trigger.
	s.SetOnline(true)
	s.SetOnline(true)

	if triggered != 1 {
		t.Errorf("Expected exactly one auto-trigger per reconnect, got %d", triggered)
	}
}

func TestRoutineOnlineReportRevivesAfterBlip(t *testing.T) {
	gw := newFakeGateway()
	s, st, _ := newTestEngine(gw)
	ctx := context.Background()

	s.Create(ctx, tasks.Payload{Title: strptr("Buy milk")})

	// A single dropped gateway call parks the engine in Offline, even though
	// the monitor's own probes kept succeeding the whole time.
	gw.mu.Lock()
	gw.callBudget = 0
	gw.mu.Unlock()
	s.Sync(ctx)
	if s.State() != StateOffline {
		t.Fatalf("Expected offline after transient failure, got %s", s.State())
	}

	gw.mu.Lock()
	gw.callBudget = -1
	gw.mu.Unlock()

	// The monitor reports the observed state after every probe; the next
	// routine online report (there was never an offline edge) must revive
	// the engine and trigger a pass.
	triggered := 0
	s.trigger = func() { triggered++ }
	s.SetOnline(true)

	if s.State() != StateIdle {
		t.Fatalf("Expected engine revived by routine report, got %s", s.State())
	}
	if triggered != 1 {
		t.Errorf("Expected revival to trigger a pass, got %d triggers", triggered)
	}

	if !s.Sync(ctx) {
		t.Fatal("Expected sync to be accepted after revival")
	}
	if n, _ := st.PendingOps(ctx, "owner-1"); n != 0 {
		t.Errorf("Expected backlog drained after revival, got %d ops", n)
	}
}

func TestOnlineReportMidPassPreventsOfflinePark(t *testing.T) {
	gw := newFakeGateway()
	s, _, _ := newTestEngine(gw)
	ctx := context.Background()

	s.mu.Lock()
	s.state = StateSyncing
	s.mu.Unlock()

	// Connectivity blips and recovers while the pass is still in flight; the
	// recovery report must clear the pending offline park.
	s.SetOnline(false)
	s.SetOnline(true)

	s.runPass(ctx)
	if s.State() != StateIdle {
		t.Errorf("Expected pass to settle idle after recovery, got %s", s.State())
	}
}

func TestBackoffHoldsLaterOpsForSameTask(t *testing.T) {
	gw := newFakeGateway()
	gw.rejectTitles["first-edit"] = true
	s, st, _ := newTestEngine(gw)
	ctx := context.Background()

	current := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }
	gw.now = s.now

	for _, id := range []string{"srv1", "srv2"} {
		task := tasks.Task{ID: id, OwnerID: "owner-1", Title: "orig", CreatedAt: current, UpdatedAt: current}
		st.PutTask(ctx, task)
		gw.tasks[id] = task
	}

	s.Update(ctx, "srv1", tasks.Payload{Title: strptr("first-edit")})
	s.Update(ctx, "srv1", tasks.Payload{Title: strptr("second-edit")})
	s.Update(ctx, "srv2", tasks.Payload{Title: strptr("other-task")})

	// First pass: the older edit is rejected and enters its backoff window.
	// The newer edit for the same task must be held behind it, or the retried
	// older edit would later overwrite it on the server. Unrelated tasks
	// still sync.
	s.Sync(ctx)

	if srv, _ := gw.task("srv1"); srv.Title != "orig" {
		t.Fatalf("Expected later edit held behind the rejected one, server has %q", srv.Title)
	}
	if srv, _ := gw.task("srv2"); srv.Title != "other-task" {
		t.Errorf("Expected unrelated task to sync, server has %q", srv.Title)
	}
	if n, _ := st.PendingOps(ctx, "owner-1"); n != 2 {
		t.Fatalf("Expected both edits still queued, got %d ops", n)
	}

	// Past the backoff window both edits land, in enqueue order.
	delete(gw.rejectTitles, "first-edit")
	current = current.Add(time.Minute)
	s.Sync(ctx)

	if srv, _ := gw.task("srv1"); srv.Title != "second-edit" {
		t.Errorf("Expected newest edit as the final server state, got %q", srv.Title)
	}
	if n, _ := st.PendingOps(ctx, "owner-1"); n != 0 {
		t.Errorf("Expected queue drained, got %d ops", n)
	}
}

func TestUpdateMissingTask(t *testing.T) {
	s, _, _ := newTestEngine(newFakeGateway())

	_, err := s.Update(context.Background(), "srv-missing", tasks.Payload{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestBackoffDefersRetry(t *testing.T) {
	gw := newFakeGateway()
	gw.rejectTitles["bad"] = true
	s, st, _ := newTestEngine(gw)
	ctx := context.Background()

	current := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }
	gw.now = s.now

	s.Create(ctx, tasks.Payload{Title: strptr("bad")})
	s.Sync(ctx)

	if got := gw.mutationCalls(); got != 1 {
		t.Fatalf("Expected one attempt, got %d", got)
	}

	// Within the backoff window the op is skipped entirely.
	s.Sync(ctx)
	if got := gw.mutationCalls(); got != 1 {
		t.Errorf("Expected no retry inside backoff window, got %d calls", got)
	}

	// Past the window it is retried.
	current = current.Add(time.Minute)
	s.Sync(ctx)
	if got := gw.mutationCalls(); got != 2 {
		t.Errorf("Expected retry after backoff window, got %d calls", got)
	}

	ops, _ := st.ListOps(ctx, "owner-1")
	if len(ops) != 1 || ops[0].Attempts != 2 {
		t.Errorf("Expected attempts=2 on still-failing op, got %+v", ops)
	}
}

func TestBackoffIsCapped(t *testing.T) {
	s, _, _ := newTestEngine(newFakeGateway())

	if d := s.backoff(1); d != 200*time.Millisecond {
		t.Errorf("Expected 200ms for first retry, got %s", d)
	}
	if d := s.backoff(30); d != s.backoffCap {
		t.Errorf("Expected cap for large attempt counts, got %s", d)
	}
}

func TestStatusReportsPendingAndDurability(t *testing.T) {
	gw := newFakeGateway()
	gw.setOnline(false)
	s, _, _ := newTestEngine(gw)
	ctx := context.Background()

	s.Create(ctx, tasks.Payload{Title: strptr("a")})
	s.Create(ctx, tasks.Payload{Title: strptr("b")})

	status := s.Status(ctx)
	if status.PendingOps != 2 {
		t.Errorf("Expected 2 pending ops, got %d", status.PendingOps)
	}
	if status.State != "idle" {
		t.Errorf("Expected idle state, got %s", status.State)
	}
	if !status.Durable {
		t.Error("Expected durable store flag")
	}
}
