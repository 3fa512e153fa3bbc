package pipeline

import (
	"fmt"
	"strings"

	apperrors "github.com/gje4/vercel-bigcommerce/pkg/errors"

	"github.com/gje4/vercel-bigcommerce/internal/domain"
)

// Normalize validates the requested categories and organizes them into a
// batch. Entries with a blank category or a count outside
// [domain.MinItemCount, domain.MaxItemCount] are dropped; order is preserved.
// It returns an apperrors.InvalidInput error when the input is empty, longer
// than domain.MaxCategories, or has no usable entry.
func Normalize(requests []domain.CategoryRequest) (*domain.OrganizedBatch, error) {
	if len(requests) == 0 {
		return nil, apperrors.InvalidInput("at least one category is required")
	}
	if len(requests) > domain.MaxCategories {
		return nil, apperrors.InvalidInput(fmt.Sprintf("at most %d categories are allowed, got %d", domain.MaxCategories, len(requests)))
	}

	batch := &domain.OrganizedBatch{
		Categories: make([]domain.CategoryRequest, 0, len(requests)),
	}
	for _, req := range requests {
		category := strings.TrimSpace(req.Category)
		if category == "" || req.Count < domain.MinItemCount || req.Count > domain.MaxItemCount {
			continue
		}
		batch.Categories = append(batch.Categories, domain.CategoryRequest{Category: category, Count: req.Count})
		batch.TotalCount += req.Count
	}

	if len(batch.Categories) == 0 {
		return nil, apperrors.InvalidInput(fmt.Sprintf(
			"no valid categories: each entry needs a category name and a count between %d and %d",
			domain.MinItemCount, domain.MaxItemCount,
		))
	}

	return batch, nil
}
