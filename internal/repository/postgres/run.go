package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gje4/vercel-bigcommerce/internal/domain"
	"github.com/gje4/vercel-bigcommerce/pkg/database"
	apperrors "github.com/gje4/vercel-bigcommerce/pkg/errors"
)

const runsTable = "pipeline_runs"

// runState is the JSONB checkpoint of the stage outputs.
type runState struct {
	Batch           *domain.OrganizedBatch  `json:"batch,omitempty"`
	Items           []domain.GeneratedItem  `json:"items,omitempty"`
	Created         []domain.CreatedRecord  `json:"created,omitempty"`
	PublishOutcomes []domain.PublishOutcome `json:"publish_outcomes,omitempty"`
	Errors          []string                `json:"errors,omitempty"`
	Result          *domain.PipelineResult  `json:"result,omitempty"`
}

// RunRepository implements repository.RunRepository using PostgreSQL.
type RunRepository struct {
	pool database.DBTX
}

// NewRunRepository creates a new PostgreSQL-backed run repository.
func NewRunRepository(pool database.DBTX) *RunRepository {
	return &RunRepository{pool: pool}
}

// Save upserts the run. UpdatedAt is refreshed.
func (r *RunRepository) Save(ctx context.Context, run *domain.Run) (err error) {
	inputJSON, err := json.Marshal(run.Input)
	if err != nil {
		return fmt.Errorf("marshal run input: %w", err)
	}
	stateJSON, err := json.Marshal(runState{
		Batch:           run.Batch,
		Items:           run.Items,
		Created:         run.Created,
		PublishOutcomes: run.PublishOutcomes,
		Errors:          run.Errors,
		Result:          run.Result,
	})
	if err != nil {
		return fmt.Errorf("marshal run state: %w", err)
	}

	run.UpdatedAt = time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = run.UpdatedAt
	}

	var key *string
	if run.IdempotencyKey != "" {
		key = &run.IdempotencyKey
	}
	success := run.Result != nil && run.Result.Success

	query := `
		INSERT INTO pipeline_runs (id, status, stage, idempotency_key, input, state, total_requested, created_count, success, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
			stage = EXCLUDED.stage,
			state = EXCLUDED.state,
			total_requested = EXCLUDED.total_requested,
			created_count = EXCLUDED.created_count,
			success = EXCLUDED.success,
			updated_at = EXCLUDED.updated_at`

	ctx, end := database.TraceQuery(ctx, "SaveRun", runsTable, query)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, query,
		run.ID,
		string(run.Status),
		string(run.Stage),
		key,
		inputJSON,
		stateJSON,
		run.TotalRequested(),
		len(run.Created),
		success,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, idempotencyKeyIndex) {
			return fmt.Errorf("save pipeline run: idempotency key %q: %w", run.IdempotencyKey, apperrors.ErrConflict)
		}
		return fmt.Errorf("save pipeline run: %w", err)
	}
	return nil
}

const idempotencyKeyIndex = "idx_pipeline_runs_idempotency_key"

// isUniqueViolation reports a PostgreSQL unique constraint violation
// (SQLSTATE 23505) on the named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

// Checkpoint persists the run after a stage transition.
func (r *RunRepository) Checkpoint(ctx context.Context, run *domain.Run) error {
	return r.Save(ctx, run)
}

const runColumns = `id, status, stage, COALESCE(idempotency_key, ''), input, state, created_at, updated_at`

// GetByID retrieves a run by its id.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs WHERE id = $1`

	run, err := r.scanRun(ctx, "GetRun", query, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("pipeline run", id)
	}
	return run, err
}

// GetByIdempotencyKey retrieves the run submitted with key.
func (r *RunRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs WHERE idempotency_key = $1`

	run, err := r.scanRun(ctx, "GetRunByIdempotencyKey", query, key)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("pipeline run", key)
	}
	return run, err
}

// List returns run summaries, newest first. An empty status matches all runs.
func (r *RunRepository) List(ctx context.Context, status domain.RunStatus, offset, limit int) (_ []domain.RunSummary, _ int, err error) {
	query := `
		SELECT id, status, stage, total_requested, created_count, success, created_at, updated_at,
			   count(*) OVER() AS total_count
		FROM pipeline_runs
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	ctx, end := database.TraceQuery(ctx, "ListRuns", runsTable, query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, string(status), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list pipeline runs: %w", err)
	}
	defer rows.Close()

	var (
		summaries  []domain.RunSummary
		totalCount int
	)
	for rows.Next() {
		var (
			s             domain.RunSummary
			statusS, stgS string
		)
		if err := rows.Scan(
			&s.ID,
			&statusS,
			&stgS,
			&s.TotalRequested,
			&s.CreatedCount,
			&s.Success,
			&s.CreatedAt,
			&s.UpdatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan pipeline run row: %w", err)
		}
		s.Status = domain.RunStatus(statusS)
		s.Stage = domain.Stage(stgS)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate pipeline run rows: %w", err)
	}

	if summaries == nil {
		summaries = []domain.RunSummary{}
	}
	return summaries, totalCount, nil
}

// ListUnfinished returns pending and running runs, oldest first.
func (r *RunRepository) ListUnfinished(ctx context.Context) (_ []*domain.Run, err error) {
	query := `SELECT ` + runColumns + `
		FROM pipeline_runs
		WHERE status IN ('pending', 'running')
		ORDER BY created_at ASC`

	ctx, end := database.TraceQuery(ctx, "ListUnfinishedRuns", runsTable, query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list unfinished pipeline runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRunRow(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pipeline run rows: %w", err)
	}
	return runs, nil
}

func (r *RunRepository) scanRun(ctx context.Context, operation, query string, args ...any) (_ *domain.Run, err error) {
	ctx, end := database.TraceQuery(ctx, operation, runsTable, query)
	defer func() {
		if errors.Is(err, pgx.ErrNoRows) {
			end(nil)
			return
		}
		end(err)
	}()

	return scanRunRow(r.pool.QueryRow(ctx, query, args...))
}

func scanRunRow(row pgx.Row) (*domain.Run, error) {
	var (
		run                domain.Run
		status, stage      string
		inputJSON, stateJS []byte
	)
	if err := row.Scan(
		&run.ID,
		&status,
		&stage,
		&run.IdempotencyKey,
		&inputJSON,
		&stateJS,
		&run.CreatedAt,
		&run.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan pipeline run: %w", err)
	}
	run.Status = domain.RunStatus(status)
	run.Stage = domain.Stage(stage)

	if err := json.Unmarshal(inputJSON, &run.Input); err != nil {
		return nil, fmt.Errorf("unmarshal run input: %w", err)
	}
	if len(stateJS) > 0 {
		var st runState
		if err := json.Unmarshal(stateJS, &st); err != nil {
			return nil, fmt.Errorf("unmarshal run state: %w", err)
		}
		run.Batch = st.Batch
		run.Items = st.Items
		run.Created = st.Created
		run.PublishOutcomes = st.PublishOutcomes
		run.Errors = st.Errors
		run.Result = st.Result
	}
	return &run, nil
}
