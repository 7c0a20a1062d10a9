// Package store provides the analysis history interface and SQLite implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rcliao/remote-engine/internal/model"
)

// ErrNotFound is returned when no analysis has the requested id.
var ErrNotFound = errors.New("analysis not found")

// RecordParams holds parameters for storing a served analysis.
type RecordParams struct {
	FEN        string
	Moves      []string
	TimeMillis int64
	MultiPV    int
	Generation uint64
	Superseded bool
	BestMove   string
	Threat     string
	IsMate     bool
	Value      int
	Depth      int
	Lines      []model.Line
}

// ListParams holds parameters for listing analyses.
type ListParams struct {
	FEN        string
	Superseded *bool
	Limit      int
}

// PruneParams holds parameters for removing old analyses.
type PruneParams struct {
	OlderThan time.Duration
	DryRun    bool
}

// Store defines the analysis history interface.
type Store interface {
	// Record stores a served analysis. Returns the stored record.
	Record(ctx context.Context, p RecordParams) (*model.Analysis, error)

	// Get retrieves an analysis by id.
	Get(ctx context.Context, id string) (*model.Analysis, error)

	// List lists analyses newest first.
	List(ctx context.Context, p ListParams) ([]model.Analysis, error)

	// Prune deletes analyses older than the given age and returns how many.
	Prune(ctx context.Context, p PruneParams) (int, error)

	// Close closes the store.
	Close() error
}
