package connectivity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// flakyPinger answers probes from a scripted reachability flag.
type flakyPinger struct {
	mu        sync.Mutex
	reachable bool
}

func (p *flakyPinger) Ping(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.reachable {
		return errors.New("connection refused")
	}
	return nil
}

func (p *flakyPinger) set(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reachable = v
}

func TestFirstProbeAlwaysReports(t *testing.T) {
	p := &flakyPinger{reachable: true}

	var got []bool
	m := NewMonitor(p, time.Minute, func(online bool) { got = append(got, online) })

	m.probe(context.Background())

	if len(got) != 1 || !got[0] {
		t.Fatalf("Expected initial online report, got %v", got)
	}
	if !m.Online() {
		t.Error("Expected Online()=true after reachable probe")
	}
}

func TestEveryProbeReports(t *testing.T) {
	// Reports are level-based: a steady state is re-reported on every probe.
	// The sync engine relies on this to leave Offline after parking itself
	// there on a transient failure the monitor never observed.
	p := &flakyPinger{reachable: true}

	var got []bool
	m := NewMonitor(p, time.Minute, func(online bool) { got = append(got, online) })
	ctx := context.Background()

	m.probe(ctx)
	m.probe(ctx)
	p.set(false)
	m.probe(ctx)
	m.probe(ctx)
	p.set(true)
	m.probe(ctx)

	want := []bool{true, true, false, false, true}
	if len(got) != len(want) {
		t.Fatalf("Expected %d reports, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Report %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestStartsOfflineWhenUnreachable(t *testing.T) {
	p := &flakyPinger{reachable: false}

	var got []bool
	m := NewMonitor(p, time.Minute, func(online bool) { got = append(got, online) })

	m.probe(context.Background())

	if len(got) != 1 || got[0] {
		t.Fatalf("Expected initial offline report, got %v", got)
	}
	if m.Online() {
		t.Error("Expected Online()=false after failed probe")
	}
}

func TestNilReportIsSafe(t *testing.T) {
	m := NewMonitor(&flakyPinger{reachable: true}, time.Minute, nil)
	m.probe(context.Background())
	if !m.Online() {
		t.Error("Expected state tracked without a callback")
	}
}
