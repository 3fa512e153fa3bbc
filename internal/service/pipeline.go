package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gje4/vercel-bigcommerce/internal/domain"
	"github.com/gje4/vercel-bigcommerce/internal/repository"
	apperrors "github.com/gje4/vercel-bigcommerce/pkg/errors"
	"github.com/gje4/vercel-bigcommerce/pkg/logger"
)

// Runner executes a run to completion. *pipeline.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, run *domain.Run) domain.PipelineResult
}

// EventPublisher announces finished runs. *event.Producer satisfies it.
type EventPublisher interface {
	PublishRunFinished(ctx context.Context, run *domain.Run, result domain.PipelineResult) error
}

// PipelineService implements the business logic around pipeline runs:
// idempotent submission, lookup, listing and resumption.
type PipelineService struct {
	runner  Runner
	repo    repository.RunRepository
	idem    repository.IdempotencyStore
	events  EventPublisher
	idemTTL time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

// NewPipelineService creates a new pipeline service. idem and events may be
// nil.
func NewPipelineService(
	runner Runner,
	repo repository.RunRepository,
	idem repository.IdempotencyStore,
	events EventPublisher,
	idemTTL time.Duration,
	logger *slog.Logger,
) *PipelineService {
	return &PipelineService{
		runner:  runner,
		repo:    repo,
		idem:    idem,
		events:  events,
		idemTTL: idemTTL,
		logger:  logger,
		active:  make(map[string]struct{}),
	}
}

// RunOutcome is a finished run together with its result. Replayed is true
// when the result was served from an earlier run with the same idempotency
// key.
type RunOutcome struct {
	Run      *domain.Run
	Result   domain.PipelineResult
	Replayed bool
}

// CreateRun executes the pipeline for input. A non-empty idempotencyKey that
// was already used returns the stored result of that run without executing
// anything.
func (s *PipelineService) CreateRun(ctx context.Context, input domain.RunInput, idempotencyKey string) (*RunOutcome, error) {
	run := domain.NewRun(input, idempotencyKey)

	// A new id is never busy; holding it keeps resume away from a run that
	// is still executing here.
	if err := s.acquire(run.ID); err != nil {
		return nil, err
	}
	defer s.release(run.ID)

	if idempotencyKey != "" {
		existing, err := s.claimKey(ctx, idempotencyKey, run)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.logger.InfoContext(ctx, "replaying result for idempotency key",
				slog.String("run_id", existing.ID),
			)
			return &RunOutcome{Run: existing, Result: *existing.Result, Replayed: true}, nil
		}
	}

	result := s.execute(ctx, run)
	return &RunOutcome{Run: run, Result: result}, nil
}

// claimKey reserves the run's idempotency key. It returns the earlier
// finished run when the key was already used. Without a Redis reservation
// the run is inserted before it executes, so the unique key index decides
// between concurrent submissions.
func (s *PipelineService) claimKey(ctx context.Context, key string, run *domain.Run) (*domain.Run, error) {
	holderID := ""
	if s.idem != nil {
		holder, ok, err := s.idem.Reserve(ctx, key, run.ID, s.idemTTL)
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "idempotency store unavailable, falling back to run lookup",
				slog.String("error", err.Error()),
			)
		case ok:
			return s.lookupKey(ctx, key)
		default:
			holderID = holder
		}
	}

	var (
		existing *domain.Run
		err      error
	)
	if holderID != "" {
		existing, err = s.repo.GetByID(ctx, holderID)
	} else {
		existing, err = s.repo.GetByIdempotencyKey(ctx, key)
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if holderID != "" {
				return nil, apperrors.Conflict("a run with this idempotency key is still in progress")
			}
			return nil, s.insertRun(ctx, key, run)
		}
		return nil, fmt.Errorf("look up idempotency key: %w", err)
	}

	if !existing.Status.IsTerminal() || existing.Result == nil {
		return nil, apperrors.Conflict(fmt.Sprintf("run %s with this idempotency key is still in progress", existing.ID))
	}
	return existing, nil
}

// insertRun stores the pending run. Losing the race on the idempotency key
// is reported as a conflict and the run is not executed.
func (s *PipelineService) insertRun(ctx context.Context, key string, run *domain.Run) error {
	err := s.repo.Save(ctx, run)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apperrors.ErrConflict):
		s.logger.InfoContext(ctx, "idempotency key taken by a concurrent run",
			slog.String("run_id", run.ID),
		)
		return apperrors.Conflict(fmt.Sprintf("a run with idempotency key %q is already in progress", key))
	default:
		return fmt.Errorf("reserve idempotency key: %w", err)
	}
}

// lookupKey guards against a fresh reservation for a key whose run outlived
// the reservation TTL.
func (s *PipelineService) lookupKey(ctx context.Context, key string) (*domain.Run, error) {
	existing, err := s.repo.GetByIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("look up idempotency key: %w", err)
	}
	if !existing.Status.IsTerminal() || existing.Result == nil {
		return nil, apperrors.Conflict(fmt.Sprintf("run %s with this idempotency key is still in progress", existing.ID))
	}
	return existing, nil
}

// GetRun returns a run by id.
func (s *PipelineService) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	run, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns a page of run summaries and the total count.
func (s *PipelineService) ListRuns(ctx context.Context, status domain.RunStatus, page, perPage int) ([]domain.RunSummary, int, error) {
	if status != "" && !validStatus(status) {
		return nil, 0, apperrors.InvalidInput(fmt.Sprintf("unknown run status %q", status))
	}
	offset := (page - 1) * perPage
	return s.repo.List(ctx, status, offset, perPage)
}

// ResumeRun continues an unfinished run from its last checkpoint.
func (s *PipelineService) ResumeRun(ctx context.Context, id string) (*RunOutcome, error) {
	run, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status.IsTerminal() {
		return nil, apperrors.Conflict(fmt.Sprintf("run %s is already %s", run.ID, run.Status))
	}

	result, err := s.executeExclusive(ctx, run)
	if err != nil {
		return nil, err
	}
	return &RunOutcome{Run: run, Result: result}, nil
}

// ResumeUnfinished resumes every pending or running run in turn and returns
// how many were resumed. It stops early when ctx is cancelled.
func (s *PipelineService) ResumeUnfinished(ctx context.Context) (int, error) {
	runs, err := s.repo.ListUnfinished(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unfinished runs: %w", err)
	}

	resumed := 0
	for _, run := range runs {
		if ctx.Err() != nil {
			break
		}
		s.logger.InfoContext(ctx, "resuming unfinished run",
			slog.String("run_id", run.ID),
			slog.String("stage", string(run.Stage)),
		)
		if _, err := s.executeExclusive(ctx, run); err != nil {
			s.logger.WarnContext(ctx, "skipping run",
				slog.String("run_id", run.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		resumed++
	}
	return resumed, nil
}

func (s *PipelineService) acquire(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[id]; busy {
		return apperrors.Conflict(fmt.Sprintf("run %s is already executing", id))
	}
	s.active[id] = struct{}{}
	return nil
}

func (s *PipelineService) release(id string) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

func (s *PipelineService) executeExclusive(ctx context.Context, run *domain.Run) (domain.PipelineResult, error) {
	if err := s.acquire(run.ID); err != nil {
		return domain.PipelineResult{}, err
	}
	defer s.release(run.ID)

	return s.execute(ctx, run), nil
}

func (s *PipelineService) execute(ctx context.Context, run *domain.Run) domain.PipelineResult {
	result := s.runner.Run(ctx, run)

	if s.events != nil {
		if err := s.events.PublishRunFinished(context.WithoutCancel(ctx), run, result); err != nil {
			logger.WithContext(ctx, s.logger).ErrorContext(ctx, "failed to publish run finished event",
				slog.String("run_id", run.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return result
}

func validStatus(s domain.RunStatus) bool {
	switch s {
	case domain.RunStatusPending, domain.RunStatusRunning, domain.RunStatusCompleted, domain.RunStatusFailed:
		return true
	}
	return false
}
