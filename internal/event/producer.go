package event

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gje4/vercel-bigcommerce/internal/domain"
	pkgkafka "github.com/gje4/vercel-bigcommerce/pkg/kafka"
)

// Kafka topics for pipeline run events.
var (
	TopicRunCompleted = pkgkafka.Topic("pipeline.run", "completed")
	TopicRunFailed    = pkgkafka.Topic("pipeline.run", "failed")
)

// Aggregate type constant.
const AggregateTypeRun = "pipeline_run"

// Source identifier for events originating from the pipeline service.
const SourcePipelineService = "storefront-pipeline"

// Event metadata keys.
const (
	MetadataIdempotencyKey = "idempotency_key"
	MetadataFailedImages   = "failed_images"
)

// RunFinishedData is the payload of run.completed and run.failed events.
type RunFinishedData struct {
	RunID          string   `json:"run_id"`
	Success        bool     `json:"success"`
	Stage          string   `json:"stage"`
	TotalRequested int      `json:"total_requested"`
	CreatedCount   int      `json:"created_count"`
	ProductIDs     []string `json:"product_ids"`
	Errors         []string `json:"errors,omitempty"`
}

// Producer publishes pipeline run events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the pipeline service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishRunFinished publishes run.completed for a successful run and
// run.failed otherwise.
func (p *Producer) PublishRunFinished(ctx context.Context, run *domain.Run, result domain.PipelineResult) error {
	topic := TopicRunCompleted
	if !result.Success {
		topic = TopicRunFailed
	}

	ids := make([]string, 0, len(result.CreatedProducts))
	for _, cp := range result.CreatedProducts {
		ids = append(ids, cp.ID)
	}

	data := RunFinishedData{
		RunID:          run.ID,
		Success:        result.Success,
		Stage:          string(run.Stage),
		TotalRequested: result.TotalRequested,
		CreatedCount:   len(result.CreatedProducts),
		ProductIDs:     ids,
		Errors:         result.Errors,
	}

	event, err := pkgkafka.NewEventFromContext(ctx, topic, run.ID, AggregateTypeRun, SourcePipelineService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	event.WithMetadata(MetadataIdempotencyKey, run.IdempotencyKey)
	event.WithMetadata(MetadataFailedImages, failedImages(run.PublishOutcomes))

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published run finished event",
		slog.String("run_id", run.ID),
		slog.String("topic", topic),
	)

	return nil
}

func failedImages(outcomes []domain.PublishOutcome) string {
	n := 0
	for _, oc := range outcomes {
		if oc.Failed() {
			n++
		}
	}
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
