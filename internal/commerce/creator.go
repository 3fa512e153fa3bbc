package commerce

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gje4/vercel-bigcommerce/internal/domain"
	"github.com/gje4/vercel-bigcommerce/pkg/logger"
	"github.com/gje4/vercel-bigcommerce/pkg/tracing"
)

const tracerName = "github.com/gje4/vercel-bigcommerce/internal/commerce"

// Creator turns generated items into store products, one call per item.
type Creator struct {
	client *Client
	vendor string
	logger *slog.Logger
}

// NewCreator creates a Creator. vendor is written on every product.
func NewCreator(client *Client, vendor string, logger *slog.Logger) *Creator {
	return &Creator{client: client, vendor: vendor, logger: logger}
}

// Create creates a product for each item in order. An item whose call fails
// is logged and skipped. Missing credentials fail the whole call before any
// request is made. When ctx is cancelled the records created so far are
// returned together with the context error.
func (c *Creator) Create(ctx context.Context, items []domain.GeneratedItem) ([]domain.CreatedRecord, error) {
	if err := c.client.Credentials().Validate(); err != nil {
		return nil, err
	}

	log := logger.WithContext(ctx, c.logger)
	records := make([]domain.CreatedRecord, 0, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return records, fmt.Errorf("create cancelled after %d of %d products: %w", len(records), len(items), err)
		}

		id, err := c.createOne(ctx, item)
		if err != nil {
			log.WarnContext(ctx, "skipping product that could not be created",
				slog.Int("index", i),
				slog.String("title", item.Title),
				slog.String("kind", failureKind(err)),
				slog.String("error", err.Error()),
			)
			continue
		}

		records = append(records, domain.CreatedRecord{ID: id, Title: item.Title, ImageData: item.ImageData})
		log.DebugContext(ctx, "product created",
			slog.String("product_id", id),
			slog.String("title", item.Title),
		)
	}
	return records, nil
}

func (c *Creator) createOne(ctx context.Context, item domain.GeneratedItem) (id string, err error) {
	ctx, end := tracing.StartSpan(ctx, tracerName, "commerce.create_product")
	defer func() { end(err) }()

	timer := prometheus.NewTimer(RequestDuration.WithLabelValues("create"))
	id, err = c.client.CreateProduct(ctx, BuildProductPayload(item, c.vendor))
	timer.ObserveDuration()

	if err != nil {
		Requests.WithLabelValues("create", failureKind(err)).Inc()
		return "", err
	}
	Requests.WithLabelValues("create", "ok").Inc()
	return id, nil
}
