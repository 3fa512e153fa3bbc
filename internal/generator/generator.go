package generator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/gje4/vercel-bigcommerce/pkg/logger"
	"github.com/gje4/vercel-bigcommerce/pkg/tracing"

	"github.com/gje4/vercel-bigcommerce/internal/domain"
)

const tracerName = "github.com/gje4/vercel-bigcommerce/internal/generator"

// DefaultMaxAttempts bounds the model calls per item.
const DefaultMaxAttempts = 3

const referenceImageNote = "\n\nA reference image is attached. Use it only as a guide for style, palette and brand feel; do not copy it."

// Options configures a Generator.
type Options struct {
	// Model is the model identifier sent with every request.
	Model string
	// MaxAttempts bounds the calls per item. Defaults to DefaultMaxAttempts.
	MaxAttempts int
	// RatePerMinute paces model calls. Zero or less disables pacing.
	RatePerMinute float64
}

// Generator produces item content and images through a Model.
type Generator struct {
	model   Model
	opts    Options
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a Generator.
func New(model Model, opts Options, logger *slog.Logger) *Generator {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	limit := rate.Inf
	if opts.RatePerMinute > 0 {
		limit = rate.Limit(opts.RatePerMinute / 60)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		model:   model,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Generate emits exactly batch.TotalCount items: for each category in order,
// Count items with index 0..Count-1. It never fails; items that could not be
// generated are synthesized. Once ctx is done the remaining items are
// synthesized without calling the model.
func (g *Generator) Generate(ctx context.Context, batch domain.OrganizedBatch, referenceImage string) []domain.GeneratedItem {
	items := make([]domain.GeneratedItem, 0, batch.TotalCount)
	for _, c := range batch.Categories {
		for i := 0; i < c.Count; i++ {
			items = append(items, g.generateItem(ctx, c.Category, i, referenceImage))
		}
	}
	return items
}

func (g *Generator) generateItem(ctx context.Context, category string, index int, referenceImage string) (item domain.GeneratedItem) {
	ctx, end := tracing.StartSpan(ctx, tracerName, "generator.item",
		attribute.String("product.category", category),
		attribute.Int("product.index", index),
	)
	defer func() {
		end(nil)
		switch {
		case item.Degraded:
			Items.WithLabelValues("degraded").Inc()
		case item.Synthetic:
			Items.WithLabelValues("synthetic").Inc()
		default:
			Items.WithLabelValues("photo").Inc()
		}
	}()

	log := logger.WithContext(ctx, g.logger).With(
		slog.String("category", category),
		slog.Int("index", index),
	)

	var last *domain.GeneratedItem
	reason := RetryNone
	for attempt := 1; attempt <= g.opts.MaxAttempts; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			log.WarnContext(ctx, "generation interrupted", slog.String("error", err.Error()))
			break
		}

		prompt := BuildPrompt(category, index, attempt, g.opts.MaxAttempts, reason)
		if referenceImage != "" {
			prompt += referenceImageNote
		}

		start := time.Now()
		resp, err := g.model.Generate(ctx, ModelRequest{
			Model:          g.opts.Model,
			Prompt:         prompt,
			ReferenceImage: referenceImage,
		})
		AttemptDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			Attempts.WithLabelValues("error").Inc()
			log.WarnContext(ctx, "generation call failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			if ctx.Err() != nil {
				break
			}
			reason = RetryFailed
			continue
		}

		candidate := assemble(category, index, resp)
		if !IsPlaceholder(candidate.ImageData) {
			Attempts.WithLabelValues("ok").Inc()
			return candidate
		}

		Attempts.WithLabelValues("placeholder").Inc()
		last = &candidate
		reason = RetryPlaceholder
		if attempt < g.opts.MaxAttempts {
			log.InfoContext(ctx, "placeholder image detected, retrying",
				slog.Int("attempt", attempt),
			)
		}
	}

	if last != nil {
		last.Degraded = true
		log.WarnContext(ctx, "accepting placeholder image after exhausting attempts",
			slog.Int("attempts", g.opts.MaxAttempts),
		)
		return *last
	}

	log.WarnContext(ctx, "using synthetic fallback item")
	return FallbackItem(category, index)
}

// assemble turns a model response into an item. Unparseable text yields
// synthetic fields; a missing image yields a placeholder.
func assemble(category string, index int, resp *ModelResponse) domain.GeneratedItem {
	item := domain.GeneratedItem{Category: category}

	if payload, ok := parseProduct(resp.Text); ok {
		payload.apply(&item)
	} else {
		syntheticContent(&item, category, index)
	}

	for _, f := range resp.Files {
		if strings.HasPrefix(strings.ToLower(f.MediaType), "image/") && len(f.Data) > 0 {
			item.ImageData = domain.EncodeDataURI(strings.ToLower(f.MediaType), f.Data)
			break
		}
	}
	if item.ImageData == "" {
		item.ImageData = PlaceholderImage(item.Title)
	}

	return item
}
