package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/gje4/vercel-bigcommerce/pkg/errors"
	"github.com/gje4/vercel-bigcommerce/pkg/logger"
	"github.com/gje4/vercel-bigcommerce/pkg/tracing"

	"github.com/gje4/vercel-bigcommerce/internal/domain"
)

const tracerName = "github.com/gje4/vercel-bigcommerce/internal/pipeline"

const checkpointTimeout = 5 * time.Second

// Generator produces exactly batch.TotalCount items and never fails.
type Generator interface {
	Generate(ctx context.Context, batch domain.OrganizedBatch, referenceImage string) []domain.GeneratedItem
}

// Creator creates commerce records for the items. On error it still returns
// the records created before the failure.
type Creator interface {
	Create(ctx context.Context, items []domain.GeneratedItem) ([]domain.CreatedRecord, error)
}

// Publisher attaches each record's image to its product.
type Publisher interface {
	Publish(ctx context.Context, records []domain.CreatedRecord) ([]domain.PublishOutcome, error)
}

// Checkpointer persists a run after every stage transition.
type Checkpointer interface {
	Checkpoint(ctx context.Context, run *domain.Run) error
}

// Archiver stores the image of a record whose publish failed and returns
// the archive key.
type Archiver interface {
	Archive(ctx context.Context, runID string, record domain.CreatedRecord) (string, error)
}

// Orchestrator drives a run through normalize, generate, create and publish.
// Stages run strictly in order on the caller's goroutine.
type Orchestrator struct {
	generator    Generator
	creator      Creator
	publisher    Publisher
	checkpointer Checkpointer
	archiver     Archiver
	logger       *slog.Logger
}

// NewOrchestrator creates an orchestrator. checkpointer and archiver may be
// nil.
func NewOrchestrator(
	generator Generator,
	creator Creator,
	publisher Publisher,
	checkpointer Checkpointer,
	archiver Archiver,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		generator:    generator,
		creator:      creator,
		publisher:    publisher,
		checkpointer: checkpointer,
		archiver:     archiver,
		logger:       logger,
	}
}

// Execute runs the pipeline for input without an externally managed run.
func (o *Orchestrator) Execute(ctx context.Context, input domain.RunInput) domain.PipelineResult {
	return o.Run(ctx, domain.NewRun(input, ""))
}

// Resume continues an unfinished run from its last checkpoint. Finished runs
// are rejected with a conflict error.
func (o *Orchestrator) Resume(ctx context.Context, run *domain.Run) (domain.PipelineResult, error) {
	if run.Status.IsTerminal() {
		return domain.PipelineResult{}, apperrors.Conflict(fmt.Sprintf("run %s is already %s", run.ID, run.Status))
	}
	return o.Run(ctx, run), nil
}

// Run executes run from its current stage to completion and returns the
// result. Stage failures are folded into the result; Run never returns an
// error. The run is updated in place and checkpointed after every stage.
func (o *Orchestrator) Run(ctx context.Context, run *domain.Run) domain.PipelineResult {
	ctx = logger.WithRunID(ctx, run.ID)

	if run.Status.IsTerminal() && run.Result != nil {
		return *run.Result
	}
	if !run.Stage.Valid() || (run.Batch == nil && run.Stage != domain.StageNormalize) {
		run.Stage = domain.StageNormalize
	}

	logger.WithContext(ctx, o.logger).InfoContext(ctx, "pipeline run started",
		slog.String("stage", string(run.Stage)),
		slog.Int("categories", len(run.Input.Categories)),
	)

	run.Status = domain.RunStatusRunning
	o.checkpoint(ctx, run)

	for run.Stage != domain.StageDone {
		stage := run.Stage
		stageCtx := logger.WithStage(ctx, string(stage))

		if res := o.runStage(stageCtx, run); res != nil {
			return o.finish(ctx, run, *res)
		}

		run.Stage = stage.Next()
		o.checkpoint(ctx, run)
	}

	return o.finish(ctx, run, domain.NewPipelineResult(true, run.TotalRequested(), run.Created, run.Errors))
}

// runStage executes the current stage. A non-nil result ends the run.
func (o *Orchestrator) runStage(ctx context.Context, run *domain.Run) *domain.PipelineResult {
	stage := run.Stage
	ctx, end := tracing.StartSpan(ctx, tracerName, "pipeline."+string(stage),
		attribute.String("pipeline.run_id", run.ID),
	)
	timer := prometheus.NewTimer(StageDuration.WithLabelValues(string(stage)))
	defer timer.ObserveDuration()

	var (
		res *domain.PipelineResult
		err error
	)
	switch stage {
	case domain.StageNormalize:
		res, err = o.normalize(ctx, run)
	case domain.StageGenerate:
		o.generate(ctx, run)
	case domain.StageCreate:
		res, err = o.create(ctx, run)
	case domain.StagePublish:
		err = o.publish(ctx, run)
	}
	end(err)
	return res
}

func (o *Orchestrator) normalize(ctx context.Context, run *domain.Run) (*domain.PipelineResult, error) {
	batch, err := Normalize(run.Input.Categories)
	if err != nil {
		logger.WithContext(ctx, o.logger).WarnContext(ctx, "input rejected",
			slog.String("error", err.Error()),
		)
		res := domain.NewPipelineResult(false, 0, nil, []string{errorMessage(err)})
		return &res, err
	}
	run.Batch = batch
	return nil, nil
}

func (o *Orchestrator) generate(ctx context.Context, run *domain.Run) {
	run.Items = o.generator.Generate(ctx, *run.Batch, run.Input.ReferenceImage)

	synthetic, degraded := 0, 0
	for _, item := range run.Items {
		if item.Synthetic {
			synthetic++
		}
		if item.Degraded {
			degraded++
		}
	}
	logger.WithContext(ctx, o.logger).InfoContext(ctx, "content generated",
		slog.Int("items", len(run.Items)),
		slog.Int("synthetic", synthetic),
		slog.Int("degraded", degraded),
	)
}

func (o *Orchestrator) create(ctx context.Context, run *domain.Run) (*domain.PipelineResult, error) {
	created, err := o.creator.Create(ctx, run.Items)
	run.Created = created
	if err != nil {
		logger.WithContext(ctx, o.logger).ErrorContext(ctx, "create stage failed",
			slog.Int("created", len(created)),
			slog.String("error", err.Error()),
		)
		run.Errors = append(run.Errors, domain.StageCreate.Describe(errorMessage(err)))
		res := domain.NewPipelineResult(len(created) > 0, run.TotalRequested(), created, run.Errors)
		return &res, err
	}

	logger.WithContext(ctx, o.logger).InfoContext(ctx, "products created",
		slog.Int("requested", len(run.Items)),
		slog.Int("created", len(created)),
	)
	return nil, nil
}

func (o *Orchestrator) publish(ctx context.Context, run *domain.Run) error {
	outcomes, err := o.publisher.Publish(ctx, run.Created)
	if err != nil {
		logger.WithContext(ctx, o.logger).WarnContext(ctx, "publish stage reported failures",
			slog.String("error", err.Error()),
		)
		run.Errors = append(run.Errors, domain.StagePublish.Describe(errorMessage(err)))
	}

	run.PublishOutcomes = o.archiveUnpublished(ctx, run, outcomes, err)
	return err
}

// archiveUnpublished returns one outcome per record. Records whose image was
// not attached are copied to the archive when an archiver is configured.
func (o *Orchestrator) archiveUnpublished(ctx context.Context, run *domain.Run, outcomes []domain.PublishOutcome, publishErr error) []domain.PublishOutcome {
	byID := make(map[string]domain.PublishOutcome, len(outcomes))
	for _, oc := range outcomes {
		byID[oc.RecordID] = oc
	}

	result := make([]domain.PublishOutcome, 0, len(run.Created))
	for _, rec := range run.Created {
		oc, ok := byID[rec.ID]
		if !ok {
			oc = domain.PublishOutcome{RecordID: rec.ID, Title: rec.Title, Status: domain.PublishStatusFailed}
			if publishErr != nil {
				oc.Error = errorMessage(publishErr)
			}
			if rec.ImageData == "" {
				oc.Status = domain.PublishStatusSkipped
			}
		}

		if oc.Failed() && o.archiver != nil && rec.ImageData != "" {
			key, err := o.archiver.Archive(ctx, run.ID, rec)
			if err != nil {
				ArchivedImages.WithLabelValues("error").Inc()
				logger.WithContext(ctx, o.logger).WarnContext(ctx, "archive unpublished image",
					slog.String("record_id", rec.ID),
					slog.String("error", err.Error()),
				)
			} else {
				ArchivedImages.WithLabelValues("ok").Inc()
				oc.ArchiveKey = key
			}
		}
		result = append(result, oc)
	}
	return result
}

func (o *Orchestrator) finish(ctx context.Context, run *domain.Run, res domain.PipelineResult) domain.PipelineResult {
	run.Result = &res
	if res.Success {
		run.Status = domain.RunStatusCompleted
	} else {
		run.Status = domain.RunStatusFailed
	}
	o.checkpoint(ctx, run)

	outcome := "success"
	switch {
	case !res.Success:
		outcome = "failed"
	case len(res.Errors) > 0:
		outcome = "partial"
	}
	RunsTotal.WithLabelValues(outcome).Inc()

	logger.WithContext(ctx, o.logger).InfoContext(ctx, "pipeline run finished",
		slog.String("outcome", outcome),
		slog.String("stage", string(run.Stage)),
		slog.Int("total_requested", res.TotalRequested),
		slog.Int("created", len(res.CreatedProducts)),
		slog.Int("errors", len(res.Errors)),
	)
	return res
}

// checkpoint persists run. Failures are logged and never affect the run.
// The write survives cancellation of ctx so that a cancelled run still
// records how far it got.
func (o *Orchestrator) checkpoint(ctx context.Context, run *domain.Run) {
	if o.checkpointer == nil {
		return
	}
	run.UpdatedAt = time.Now().UTC()

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), checkpointTimeout)
	defer cancel()

	if err := o.checkpointer.Checkpoint(cctx, run); err != nil {
		CheckpointErrors.Inc()
		logger.WithContext(ctx, o.logger).ErrorContext(ctx, "checkpoint run",
			slog.String("stage", string(run.Stage)),
			slog.String("error", err.Error()),
		)
	}
}

// errorMessage returns the user-facing part of err.
func errorMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
