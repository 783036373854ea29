// Package poller periodically drains queued events for every running
// account. The socket delivers events in real time; the poller exists to
// catch up after downtime and to sweep events the socket missed. Redis
// dedupe keeps the two paths from double-processing.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/bridge"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/redis"
)

const (
	dedupeKeyPrefix = "fern:event:seen:"

	// dedupeTTL bounds how long processed event ids are remembered.
	dedupeTTL = 24 * time.Hour
)

// Config holds poller configuration
type Config struct {
	// Interval between catch-up sweeps.
	Interval time.Duration
	// Enabled toggles the poller entirely.
	Enabled bool
}

// Poller sweeps pending events for all running adapters on an interval.
type Poller struct {
	registry *bridge.Registry
	dedupe   *redis.Client
	interval time.Duration
	logger   ectologger.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewPoller creates a new catch-up poller.
func NewPoller(registry *bridge.Registry, dedupe *redis.Client, cfg Config, logger ectologger.Logger) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	return &Poller{
		registry: registry,
		dedupe:   dedupe,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the sweep loop. Calling Start on a running poller is a no-op.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	go p.run(p.stopCh, p.doneCh)
	p.logger.Infof("Catch-up poller started with interval %s", p.interval)
}

// Stop halts the sweep loop and waits for any in-progress sweep to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stopCh := p.stopCh
	doneCh := p.doneCh
	p.mu.Unlock()

	close(stopCh)
	<-doneCh
	p.logger.Info("Catch-up poller stopped")
}

func (p *Poller) run(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			p.sweep(context.Background())
		}
	}
}

// sweep fetches pending events for every running adapter and hands unseen
// ones to the normal event path.
func (p *Poller) sweep(ctx context.Context) {
	for _, adapter := range p.registry.Adapters() {
		accountID := adapter.AccountID()

		events, err := adapter.FetchPending(ctx)
		if err != nil {
			p.logger.WithContext(ctx).WithError(err).Warnf("Catch-up sweep failed for account %s", accountID)
			continue
		}

		for _, event := range events {
			if event.ID != "" {
				fresh, err := p.dedupe.SetNX(ctx, dedupeKeyPrefix+accountID+":"+event.ID, 1, dedupeTTL)
				if err != nil {
					p.logger.WithContext(ctx).WithError(err).Warn("Dedupe check failed, processing event anyway")
				} else if !fresh {
					metrics.RecordPollerEvent(accountID, "duplicate")
					continue
				}
			}

			metrics.RecordPollerEvent(accountID, "dispatched")
			adapter.HandleEvent(event)
		}
	}
}
