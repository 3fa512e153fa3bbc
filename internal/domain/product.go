package domain

// Batch bounds enforced by the normalizer.
const (
	MaxCategories = 10
	MinItemCount  = 1
	MaxItemCount  = 100
)

// CategoryRequest asks for Count products of one Category.
type CategoryRequest struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// OrganizedBatch is the validated, trimmed input of a run. TotalCount always
// equals the sum of the category counts.
type OrganizedBatch struct {
	Categories []CategoryRequest `json:"categories"`
	TotalCount int               `json:"total_count"`
}

// Variant is one purchasable option of a generated product.
type Variant struct {
	Title     string `json:"title"`
	PriceText string `json:"price"`
}

// GeneratedItem is the content produced for one requested unit of a
// category. ImageData is a data URI.
type GeneratedItem struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PriceText   string    `json:"price"`
	Variants    []Variant `json:"variants"`
	Features    []string  `json:"features"`
	ImageData   string    `json:"image_data"`
	Category    string    `json:"category"`

	// Synthetic is set when the text payload could not be obtained from the
	// model and was derived from the category and index instead.
	Synthetic bool `json:"synthetic,omitempty"`
	// Degraded is set when every attempt yielded a placeholder image and the
	// last one was accepted.
	Degraded bool `json:"degraded,omitempty"`
}

// CreatedRecord is a product that exists in the commerce platform. ID is
// assigned by the platform.
type CreatedRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ImageData string `json:"image_data"`
}

// CreatedProduct is the external view of a created record.
type CreatedProduct struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Image string `json:"image"`
}

// PipelineResult is the outcome of a run as returned to callers.
type PipelineResult struct {
	Success         bool             `json:"success"`
	TotalRequested  int              `json:"totalRequested"`
	CreatedProducts []CreatedProduct `json:"createdProducts"`
	Errors          []string         `json:"errors,omitempty"`
}

// NewPipelineResult builds a result from the created records. Errors is left
// nil when empty so that it is omitted from the JSON encoding.
func NewPipelineResult(success bool, totalRequested int, created []CreatedRecord, errs []string) PipelineResult {
	products := make([]CreatedProduct, 0, len(created))
	for _, rec := range created {
		products = append(products, CreatedProduct{ID: rec.ID, Title: rec.Title, Image: rec.ImageData})
	}
	if len(errs) == 0 {
		errs = nil
	}
	return PipelineResult{
		Success:         success,
		TotalRequested:  totalRequested,
		CreatedProducts: products,
		Errors:          errs,
	}
}

// Publish outcome statuses.
const (
	PublishStatusPublished = "published"
	PublishStatusSkipped   = "skipped"
	PublishStatusFailed    = "failed"
)

// PublishOutcome reports what happened to one record's image.
type PublishOutcome struct {
	RecordID   string `json:"record_id"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	Filename   string `json:"filename,omitempty"`
	Error      string `json:"error,omitempty"`
	ArchiveKey string `json:"archive_key,omitempty"`
}

// Failed reports whether the attach call for the record did not succeed.
func (o PublishOutcome) Failed() bool {
	return o.Status == PublishStatusFailed
}
