// Package connectivity observes whether the remote task service is reachable
// and feeds online/offline transitions into the sync engine.
package connectivity

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/guido-cesarano/tasksync/pkg/logger"
)

// Pinger is the reachability probe; gateway.Client satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// probeTimeout bounds a single probe so a hung request reads as offline for
// this tick instead of stalling the monitor.
const probeTimeout = 3 * time.Second

// Monitor polls the gateway and reports the observed state after every probe.
// Reports are level-based rather than edge-based: a sync pass can park the
// engine in Offline on a transient failure the monitor itself never saw, and
// only a routine "still online" report gets it out again. Rapid flapping
// cannot start overlapping sync passes: the synchronizer ignores online
// reports unless it is parked Offline, and its in-progress guard absorbs the
// rest. Transitions are logged once per edge.
type Monitor struct {
	pinger   Pinger
	interval time.Duration

	online  atomic.Bool
	started atomic.Bool

	// report receives the observed state after every probe.
	report func(online bool)
}

// NewMonitor creates a monitor probing at the given interval.
// report is invoked from the monitor goroutine after each probe.
func NewMonitor(p Pinger, interval time.Duration, report func(online bool)) *Monitor {
	return &Monitor{
		pinger:   p,
		interval: interval,
		report:   report,
	}
}

// Online returns the last observed connectivity state.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Run probes immediately, then on every tick, until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

// probe performs one reachability check and reports the observed state.
func (m *Monitor) probe(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	err := m.pinger.Ping(pctx)
	now := err == nil
	was := m.online.Swap(now)

	first := !m.started.Swap(true)
	if first || now != was {
		if now {
			logger.Log.Info().Msg("Remote task service reachable")
		} else {
			logger.Log.Warn().Err(err).Msg("Remote task service unreachable")
		}
	}

	if m.report != nil {
		m.report(now)
	}
}
