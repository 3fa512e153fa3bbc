package commerce

import (
	"errors"
	"fmt"

	apperrors "github.com/gje4/vercel-bigcommerce/pkg/errors"
)

// Per-item failure kinds. Test with errors.Is.
var (
	ErrAuthentication = errors.New("commerce authentication failed")
	ErrValidation     = errors.New("commerce rejected the request")
	ErrMissingID      = errors.New("commerce response is missing the product id")
	ErrPartialPublish = errors.New("some images failed to publish")
)

// PublishError reports that Failed of Total image attach calls did not
// succeed. It wraps ErrPartialPublish and is a warning: the records exist.
type PublishError struct {
	Failed int
	Total  int
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%d of %d images failed to publish", e.Failed, e.Total)
}

func (e *PublishError) Unwrap() error {
	return ErrPartialPublish
}

// classify tags err with the failure kind it represents.
func classify(err error) error {
	switch {
	case errors.Is(err, apperrors.ErrUnauthorized), errors.Is(err, apperrors.ErrForbidden):
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	case errors.Is(err, apperrors.ErrInvalidInput),
		errors.Is(err, apperrors.ErrConflict),
		errors.Is(err, apperrors.ErrAlreadyExists):
		return fmt.Errorf("%w: %w", ErrValidation, err)
	default:
		return err
	}
}

// failureKind names the failure for logs and metrics.
func failureKind(err error) string {
	switch {
	case errors.Is(err, ErrAuthentication):
		return "authentication"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrMissingID):
		return "missing_id"
	case errors.Is(err, apperrors.ErrServiceUnavail):
		return "unavailable"
	default:
		return "error"
	}
}
