package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gje4/vercel-bigcommerce/pkg/errors"

	"github.com/gje4/vercel-bigcommerce/internal/domain"
)

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type fakeGenerator struct {
	calls int
}

func (g *fakeGenerator) Generate(_ context.Context, batch domain.OrganizedBatch, _ string) []domain.GeneratedItem {
	g.calls++
	items := make([]domain.GeneratedItem, 0, batch.TotalCount)
	for _, c := range batch.Categories {
		for i := 0; i < c.Count; i++ {
			items = append(items, domain.GeneratedItem{
				Title:     fmt.Sprintf("%s %d", c.Category, i+1),
				PriceText: "10.00",
				ImageData: "data:image/png;base64,AAAA",
				Category:  c.Category,
			})
		}
	}
	return items
}

type fakeCreator struct {
	calls   int
	failAt  int // 1-based item position that ends the stage with err; 0 disables
	err     error
	skipSet map[int]bool
}

func (c *fakeCreator) Create(_ context.Context, items []domain.GeneratedItem) ([]domain.CreatedRecord, error) {
	c.calls++
	var created []domain.CreatedRecord
	for i, item := range items {
		if c.failAt == i+1 {
			return created, c.err
		}
		if c.skipSet[i+1] {
			continue
		}
		created = append(created, domain.CreatedRecord{
			ID:        fmt.Sprintf("%d", 1000+i),
			Title:     item.Title,
			ImageData: item.ImageData,
		})
	}
	return created, nil
}

type fakePublisher struct {
	calls  int
	failID string
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, records []domain.CreatedRecord) ([]domain.PublishOutcome, error) {
	p.calls++
	if p.err != nil && p.failID == "" {
		return nil, p.err
	}
	outcomes := make([]domain.PublishOutcome, 0, len(records))
	var failed int
	for _, rec := range records {
		oc := domain.PublishOutcome{RecordID: rec.ID, Title: rec.Title, Status: domain.PublishStatusPublished}
		if rec.ID == p.failID {
			oc.Status = domain.PublishStatusFailed
			oc.Error = "status 422"
			failed++
		}
		outcomes = append(outcomes, oc)
	}
	if failed > 0 {
		return outcomes, fmt.Errorf("%d of %d images failed to publish", failed, len(records))
	}
	return outcomes, nil
}

type recordingCheckpointer struct {
	mu     sync.Mutex
	stages []domain.Stage
	status []domain.RunStatus
	err    error
}

func (c *recordingCheckpointer) Checkpoint(ctx context.Context, run *domain.Run) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stages = append(c.stages, run.Stage)
	c.status = append(c.status, run.Status)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return c.err
}

type fakeArchiver struct {
	archived []string
	err      error
}

func (a *fakeArchiver) Archive(_ context.Context, runID string, rec domain.CreatedRecord) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	key := "runs/" + runID + "/" + rec.ID + ".png"
	a.archived = append(a.archived, key)
	return key, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func chairs(n int) domain.RunInput {
	return domain.RunInput{Categories: []domain.CategoryRequest{{Category: "Chairs", Count: n}}}
}

// ---------------------------------------------------------------------------
// tests
// ---------------------------------------------------------------------------

func TestOrchestrator_AllStagesSucceed(t *testing.T) {
	gen, creator, pub, cp := &fakeGenerator{}, &fakeCreator{}, &fakePublisher{}, &recordingCheckpointer{}
	o := NewOrchestrator(gen, creator, pub, cp, nil, discardLogger())

	run := domain.NewRun(chairs(2), "")
	res := o.Run(context.Background(), run)

	assert.True(t, res.Success)
	assert.Equal(t, 2, res.TotalRequested)
	assert.Len(t, res.CreatedProducts, 2)
	assert.Nil(t, res.Errors)

	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, domain.StageDone, run.Stage)
	require.NotNil(t, run.Result)
	assert.Len(t, run.PublishOutcomes, 2)

	assert.Equal(t, []domain.Stage{
		domain.StageNormalize,
		domain.StageGenerate,
		domain.StageCreate,
		domain.StagePublish,
		domain.StageDone,
		domain.StageDone,
	}, cp.stages)
	assert.Equal(t, domain.RunStatusCompleted, cp.status[len(cp.status)-1])
}

func TestOrchestrator_NormalizeFailureIsTerminal(t *testing.T) {
	gen, creator, pub := &fakeGenerator{}, &fakeCreator{}, &fakePublisher{}
	o := NewOrchestrator(gen, creator, pub, nil, nil, discardLogger())

	run := domain.NewRun(domain.RunInput{}, "")
	res := o.Run(context.Background(), run)

	assert.False(t, res.Success)
	assert.Equal(t, 0, res.TotalRequested)
	assert.NotNil(t, res.CreatedProducts)
	assert.Empty(t, res.CreatedProducts)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "at least one category")

	assert.Equal(t, 0, gen.calls)
	assert.Equal(t, 0, creator.calls)
	assert.Equal(t, 0, pub.calls)
	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Equal(t, domain.StageNormalize, run.Stage)
}

func TestOrchestrator_CreateErrorKeepsPartialRecords(t *testing.T) {
	creator := &fakeCreator{failAt: 2, err: errors.New("connection reset by peer")}
	pub := &fakePublisher{}
	o := NewOrchestrator(&fakeGenerator{}, creator, pub, nil, nil, discardLogger())

	res := o.Execute(context.Background(), chairs(3))

	assert.True(t, res.Success)
	assert.Equal(t, 3, res.TotalRequested)
	assert.Len(t, res.CreatedProducts, 1)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "stage 3 (create products): connection reset by peer", res.Errors[0])
	assert.Equal(t, 0, pub.calls)
}

func TestOrchestrator_CreateConfigurationErrorFailsRun(t *testing.T) {
	creator := &fakeCreator{failAt: 1, err: apperrors.Configuration("commerce store domain and access token are required")}
	o := NewOrchestrator(&fakeGenerator{}, creator, &fakePublisher{}, nil, nil, discardLogger())

	run := domain.NewRun(chairs(2), "")
	res := o.Run(context.Background(), run)

	assert.False(t, res.Success)
	assert.Equal(t, 2, res.TotalRequested)
	assert.Empty(t, res.CreatedProducts)
	assert.Equal(t, []string{"stage 3 (create products): commerce store domain and access token are required"}, res.Errors)
	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Equal(t, domain.StageCreate, run.Stage)
}

func TestOrchestrator_PerItemSkipIsNotAnError(t *testing.T) {
	creator := &fakeCreator{skipSet: map[int]bool{2: true}}
	o := NewOrchestrator(&fakeGenerator{}, creator, &fakePublisher{}, nil, nil, discardLogger())

	res := o.Execute(context.Background(), chairs(2))

	assert.True(t, res.Success)
	assert.Equal(t, 2, res.TotalRequested)
	assert.Len(t, res.CreatedProducts, 1)
	assert.Nil(t, res.Errors)
}

func TestOrchestrator_PublishFailureIsDowngradedAndArchived(t *testing.T) {
	pub := &fakePublisher{failID: "1001"}
	archiver := &fakeArchiver{}
	o := NewOrchestrator(&fakeGenerator{}, &fakeCreator{}, pub, nil, archiver, discardLogger())

	run := domain.NewRun(chairs(2), "")
	res := o.Run(context.Background(), run)

	assert.True(t, res.Success)
	assert.Len(t, res.CreatedProducts, 2)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "stage 4 (publish images)")

	require.Len(t, run.PublishOutcomes, 2)
	assert.Equal(t, domain.PublishStatusPublished, run.PublishOutcomes[0].Status)
	assert.Equal(t, domain.PublishStatusFailed, run.PublishOutcomes[1].Status)
	assert.Equal(t, "runs/"+run.ID+"/1001.png", run.PublishOutcomes[1].ArchiveKey)
	assert.Equal(t, []string{"runs/" + run.ID + "/1001.png"}, archiver.archived)
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
}

func TestOrchestrator_PublishConfigurationErrorMarksEveryRecord(t *testing.T) {
	pub := &fakePublisher{err: apperrors.Configuration("commerce credentials are missing")}
	archiver := &fakeArchiver{err: errors.New("bucket unavailable")}
	o := NewOrchestrator(&fakeGenerator{}, &fakeCreator{}, pub, nil, archiver, discardLogger())

	run := domain.NewRun(chairs(2), "")
	res := o.Run(context.Background(), run)

	assert.True(t, res.Success)
	assert.Equal(t, []string{"stage 4 (publish images): commerce credentials are missing"}, res.Errors)
	require.Len(t, run.PublishOutcomes, 2)
	for _, oc := range run.PublishOutcomes {
		assert.Equal(t, domain.PublishStatusFailed, oc.Status)
		assert.Equal(t, "commerce credentials are missing", oc.Error)
		assert.Empty(t, oc.ArchiveKey)
	}
}

func TestOrchestrator_ResumeFromCheckpoint(t *testing.T) {
	gen, creator, pub := &fakeGenerator{}, &fakeCreator{}, &fakePublisher{}
	o := NewOrchestrator(gen, creator, pub, nil, nil, discardLogger())

	run := domain.NewRun(chairs(2), "")
	run.Status = domain.RunStatusRunning
	run.Stage = domain.StageCreate
	run.Batch = &domain.OrganizedBatch{Categories: chairs(2).Categories, TotalCount: 2}
	run.Items = (&fakeGenerator{}).Generate(context.Background(), *run.Batch, "")

	res, err := o.Resume(context.Background(), run)

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, res.CreatedProducts, 2)
	assert.Equal(t, 0, gen.calls, "generate must not run again")
	assert.Equal(t, 1, creator.calls)
	assert.Equal(t, 1, pub.calls)
}

func TestOrchestrator_ResumeWithoutBatchRestartsAtNormalize(t *testing.T) {
	gen := &fakeGenerator{}
	o := NewOrchestrator(gen, &fakeCreator{}, &fakePublisher{}, nil, nil, discardLogger())

	run := domain.NewRun(chairs(1), "")
	run.Status = domain.RunStatusRunning
	run.Stage = domain.StagePublish

	res, err := o.Resume(context.Background(), run)

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, gen.calls)
}

func TestOrchestrator_ResumeRejectsFinishedRun(t *testing.T) {
	o := NewOrchestrator(&fakeGenerator{}, &fakeCreator{}, &fakePublisher{}, nil, nil, discardLogger())

	run := domain.NewRun(chairs(1), "")
	run.Status = domain.RunStatusCompleted

	_, err := o.Resume(context.Background(), run)

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestOrchestrator_CheckpointFailureDoesNotFailRun(t *testing.T) {
	cp := &recordingCheckpointer{err: errors.New("database is down")}
	o := NewOrchestrator(&fakeGenerator{}, &fakeCreator{}, &fakePublisher{}, cp, nil, discardLogger())

	res := o.Execute(context.Background(), chairs(1))

	assert.True(t, res.Success)
	assert.NotEmpty(t, cp.stages)
}

func TestOrchestrator_CheckpointSurvivesCancelledContext(t *testing.T) {
	cp := &recordingCheckpointer{}
	creator := &fakeCreator{failAt: 1, err: context.Canceled}
	o := NewOrchestrator(&fakeGenerator{}, creator, &fakePublisher{}, cp, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run := domain.NewRun(chairs(1), "")
	res := o.Run(ctx, run)

	assert.False(t, res.Success)
	assert.Equal(t, domain.RunStatusFailed, cp.status[len(cp.status)-1])
}

func TestOrchestrator_FinishedRunReturnsStoredResult(t *testing.T) {
	gen := &fakeGenerator{}
	o := NewOrchestrator(gen, &fakeCreator{}, &fakePublisher{}, nil, nil, discardLogger())

	stored := domain.NewPipelineResult(true, 4, nil, nil)
	run := domain.NewRun(chairs(4), "")
	run.Status = domain.RunStatusCompleted
	run.Result = &stored

	res := o.Run(context.Background(), run)

	assert.Equal(t, stored, res)
	assert.Equal(t, 0, gen.calls)
}
