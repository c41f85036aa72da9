// Package store archives finished simulation runs. It keeps outputs only;
// an engine is never rebuilt from the archive.
package store

import (
	"context"
	"errors"

	"github.com/me/gosched/pkg/model"
)

// ErrNotFound is returned by operations that require an existing run.
var ErrNotFound = errors.New("not found")

// Store defines the persistence layer for archived runs.
type Store interface {
	// Run archive
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, opts model.ListOptions) ([]model.RunSummary, int, error)
	DeleteRun(ctx context.Context, id string) error

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
