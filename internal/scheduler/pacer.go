package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/me/gosched/pkg/model"
)

// DefaultPace is the wall-clock delay between ticks of a paced run.
const DefaultPace = 250 * time.Millisecond

// Pacer drives a Scheduler in wall-clock time, one tick per interval, and
// hands each snapshot to a callback. Streaming clients use it to watch a
// simulation unfold.
type Pacer struct {
	sched    Scheduler
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewPacer creates a pacer. A non-positive interval selects DefaultPace.
func NewPacer(s Scheduler, interval time.Duration, logger *slog.Logger) *Pacer {
	if interval <= 0 {
		interval = DefaultPace
	}
	return &Pacer{
		sched:    s,
		interval: interval,
		logger:   logger.With("component", "pacer"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start ticks until the simulation completes, the callback fails, ctx is
// cancelled or Stop is called. It blocks for the whole run.
func (p *Pacer) Start(ctx context.Context, fn func(model.Snapshot) error) error {
	defer close(p.doneCh)
	p.logger.Debug("pacer started", "interval", p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("pacer stopping (context cancelled)")
			return ctx.Err()
		case <-p.stopCh:
			p.logger.Debug("pacer stopping (stop called)")
			return nil
		case <-ticker.C:
			snap, err := p.sched.Tick(ctx)
			if err != nil {
				return err
			}
			if err := fn(snap); err != nil {
				return err
			}
			if snap.State.IsTerminal() {
				return nil
			}
		}
	}
}

// Stop ends a running Start and waits for it to return.
func (p *Pacer) Stop() error {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.doneCh
	return nil
}
