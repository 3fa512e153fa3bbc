package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

// Run statuses.
const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether no further stage will execute.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Stage is the next step a run will execute. Stages only move forward.
type Stage string

// Pipeline stages in execution order.
const (
	StageNormalize Stage = "normalize"
	StageGenerate  Stage = "generate"
	StageCreate    Stage = "create"
	StagePublish   Stage = "publish"
	StageDone      Stage = "done"
)

var stageOrder = []Stage{StageNormalize, StageGenerate, StageCreate, StagePublish, StageDone}

var stageLabels = map[Stage]string{
	StageNormalize: "normalize input",
	StageGenerate:  "generate content",
	StageCreate:    "create products",
	StagePublish:   "publish images",
	StageDone:      "done",
}

// Number returns the 1-based position of the stage, or 0 for an unknown
// stage.
func (s Stage) Number() int {
	for i, st := range stageOrder {
		if st == s {
			return i + 1
		}
	}
	return 0
}

// Next returns the stage that follows s. StageDone is its own successor.
func (s Stage) Next() Stage {
	n := s.Number()
	if n == 0 || n >= len(stageOrder) {
		return StageDone
	}
	return stageOrder[n]
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	return s.Number() > 0
}

// Describe formats msg as a stage-level error, e.g.
// "stage 4 (publish images): 1 of 2 images failed".
func (s Stage) Describe(msg string) string {
	return fmt.Sprintf("stage %d (%s): %s", s.Number(), stageLabels[s], msg)
}

// RunInput is what a caller submitted.
type RunInput struct {
	Categories     []CategoryRequest `json:"categories"`
	ReferenceImage string            `json:"reference_image,omitempty"`
}

// Run is the checkpointed state of one pipeline execution. Each field is
// owned by the stage that produces it.
type Run struct {
	ID              string           `json:"id"`
	Status          RunStatus        `json:"status"`
	Stage           Stage            `json:"stage"`
	IdempotencyKey  string           `json:"idempotency_key,omitempty"`
	Input           RunInput         `json:"input"`
	Batch           *OrganizedBatch  `json:"batch,omitempty"`
	Items           []GeneratedItem  `json:"items,omitempty"`
	Created         []CreatedRecord  `json:"created,omitempty"`
	PublishOutcomes []PublishOutcome `json:"publish_outcomes,omitempty"`
	Errors          []string         `json:"errors,omitempty"`
	Result          *PipelineResult  `json:"result,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// NewRun returns a pending run positioned at the first stage.
func NewRun(input RunInput, idempotencyKey string) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:             uuid.New().String(),
		Status:         RunStatusPending,
		Stage:          StageNormalize,
		IdempotencyKey: idempotencyKey,
		Input:          input,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// TotalRequested returns the batch total, or 0 before normalization.
func (r *Run) TotalRequested() int {
	if r.Batch == nil {
		return 0
	}
	return r.Batch.TotalCount
}

// RunSummary is the list view of a run.
type RunSummary struct {
	ID             string    `json:"id"`
	Status         RunStatus `json:"status"`
	Stage          Stage     `json:"stage"`
	TotalRequested int       `json:"total_requested"`
	CreatedCount   int       `json:"created_count"`
	Success        bool      `json:"success"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
