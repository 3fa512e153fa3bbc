package commerce

import (
	"context"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gje4/vercel-bigcommerce/internal/domain"
	"github.com/gje4/vercel-bigcommerce/pkg/logger"
	"github.com/gje4/vercel-bigcommerce/pkg/slug"
	"github.com/gje4/vercel-bigcommerce/pkg/tracing"
)

// Publisher attaches each record's image to its product.
type Publisher struct {
	client *Client
	logger *slog.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(client *Client, logger *slog.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

// Publish returns one outcome per record. Records without image data are
// skipped. When any attach call fails a *PublishError is returned alongside
// the outcomes.
func (p *Publisher) Publish(ctx context.Context, records []domain.CreatedRecord) ([]domain.PublishOutcome, error) {
	if err := p.client.Credentials().Validate(); err != nil {
		return nil, err
	}

	log := logger.WithContext(ctx, p.logger)
	outcomes := make([]domain.PublishOutcome, 0, len(records))
	failed, attempted := 0, 0

	for _, rec := range records {
		oc := domain.PublishOutcome{RecordID: rec.ID, Title: rec.Title}
		if strings.TrimSpace(rec.ImageData) == "" {
			oc.Status = domain.PublishStatusSkipped
			outcomes = append(outcomes, oc)
			continue
		}

		attempted++
		oc.Filename = ImageFilename(rec.Title, rec.ImageData)
		if err := p.attach(ctx, rec, oc.Filename); err != nil {
			failed++
			oc.Status = domain.PublishStatusFailed
			oc.Error = err.Error()
			log.WarnContext(ctx, "image attach failed",
				slog.String("product_id", rec.ID),
				slog.String("kind", failureKind(err)),
				slog.String("error", err.Error()),
			)
		} else {
			oc.Status = domain.PublishStatusPublished
		}
		outcomes = append(outcomes, oc)
	}

	if failed > 0 {
		return outcomes, &PublishError{Failed: failed, Total: attempted}
	}
	return outcomes, nil
}

func (p *Publisher) attach(ctx context.Context, rec domain.CreatedRecord, filename string) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, end := tracing.StartSpan(ctx, tracerName, "commerce.attach_image")
	defer func() { end(err) }()

	timer := prometheus.NewTimer(RequestDuration.WithLabelValues("attach"))
	err = p.client.AttachImage(ctx, rec.ID, attachmentPayload(rec.ImageData), filename)
	timer.ObserveDuration()

	if err != nil {
		Requests.WithLabelValues("attach", failureKind(err)).Inc()
		return err
	}
	Requests.WithLabelValues("attach", "ok").Inc()
	return nil
}

// attachmentPayload strips the data URI prefix, leaving raw base64.
func attachmentPayload(imageData string) string {
	return domain.ParseDataURI(imageData).Payload
}

// ImageFilename derives the attachment filename from the product title and
// the image media type.
func ImageFilename(title, imageData string) string {
	return slug.GenerateMax(title, slug.DefaultMaxLen, "product") + "." + imageExtension(imageData)
}

func imageExtension(imageData string) string {
	switch domain.ParseDataURI(imageData).MediaType {
	case "image/png", domain.MediaTypeSVG:
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "jpg"
	}
}
