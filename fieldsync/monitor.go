// Copyright 2026 FieldOps
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Prober answers a single "are we online right now" question.
type Prober interface {
	Probe(ctx context.Context) bool
}

// ProbeFunc adapts a function to the Prober interface.
type ProbeFunc func(ctx context.Context) bool

func (f ProbeFunc) Probe(ctx context.Context) bool { return f(ctx) }

// HTTPProber considers the device online when a HEAD request against the
// API base URL gets any HTTP response at all.
type HTTPProber struct {
	URL  string
	HTTP *http.Client
}

// Probe reports reachability of the configured URL.
func (p *HTTPProber) Probe(ctx context.Context) bool {
	client := p.HTTP
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// Transition is an edge-triggered connectivity change.
type Transition struct {
	Online bool
	At     time.Time
}

// Monitor polls a Prober and publishes offline/online transitions. The
// orchestrator consumes the transition channel to trigger sync on
// reconnect; anyone may ask Online() for the current state.
type Monitor struct {
	prober   Prober
	interval time.Duration
	logger   *slog.Logger

	online      atomic.Bool
	transitions chan Transition
}

// NewMonitor builds a monitor polling at the given interval. The monitor
// starts in the offline state; the first successful probe produces an
// online transition.
func NewMonitor(prober Prober, interval time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		prober:      prober,
		interval:    interval,
		logger:      logger,
		transitions: make(chan Transition, 8),
	}
}

// Online reports the last observed connectivity state.
func (m *Monitor) Online() bool { return m.online.Load() }

// Transitions delivers edge-triggered connectivity changes.
func (m *Monitor) Transitions() <-chan Transition { return m.transitions }

// SetOnline forces the connectivity state, emitting a transition when it
// changes. Used by tests and by runtime signals that know better than the
// prober (e.g. the platform's connectivity-changed event).
func (m *Monitor) SetOnline(online bool) {
	if m.online.Swap(online) == online {
		return
	}
	m.publish(Transition{Online: online, At: time.Now()})
}

func (m *Monitor) publish(tr Transition) {
	select {
	case m.transitions <- tr:
	default:
		// A slow consumer only loses intermediate edges; the current state
		// remains queryable via Online().
		m.logger.Warn("dropping connectivity transition, channel full", "online", tr.Online)
	}
}

// Run polls until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.SetOnline(m.prober.Probe(ctx))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.SetOnline(m.prober.Probe(ctx))
		}
	}
}
