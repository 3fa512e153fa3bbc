package repository

import (
	"context"
	"time"

	"github.com/gje4/vercel-bigcommerce/internal/domain"
)

// RunRepository persists pipeline runs and their checkpoints.
type RunRepository interface {
	// Save inserts the run or replaces its stored state.
	Save(ctx context.Context, run *domain.Run) error

	// GetByID returns the run with the given id.
	GetByID(ctx context.Context, id string) (*domain.Run, error)

	// GetByIdempotencyKey returns the run submitted with key.
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Run, error)

	// List returns run summaries, newest first, optionally filtered by
	// status. Returns the page and the total count.
	List(ctx context.Context, status domain.RunStatus, offset, limit int) ([]domain.RunSummary, int, error)

	// ListUnfinished returns runs that are pending or running, oldest first.
	ListUnfinished(ctx context.Context) ([]*domain.Run, error)
}

// IdempotencyStore maps caller-supplied idempotency keys to run ids.
type IdempotencyStore interface {
	// Reserve claims key for runID. It returns the run id that already
	// holds the key and false when the key was taken.
	Reserve(ctx context.Context, key, runID string, ttl time.Duration) (string, bool, error)

	// Release drops a reservation.
	Release(ctx context.Context, key string) error
}
