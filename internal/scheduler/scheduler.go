// Package scheduler implements the preemptive priority scheduling engine:
// admission of arriving processes, aging, preemption and dispatch, driven
// one decision at a time on a simulated clock.
package scheduler

import (
	"context"

	"github.com/me/gosched/pkg/model"
)

// Scheduler advances a simulation.
type Scheduler interface {
	// Tick makes a single scheduling decision and returns the resulting
	// snapshot. Used by interactive sessions and tests.
	Tick(ctx context.Context) (model.Snapshot, error)

	// Run ticks until every process has completed or the tick limit is hit.
	Run(ctx context.Context) (*model.Result, error)
}

var _ Scheduler = (*Engine)(nil)
