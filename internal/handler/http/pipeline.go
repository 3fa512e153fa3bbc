package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gje4/vercel-bigcommerce/internal/domain"
	"github.com/gje4/vercel-bigcommerce/internal/service"
	apperrors "github.com/gje4/vercel-bigcommerce/pkg/errors"
	"github.com/gje4/vercel-bigcommerce/pkg/httputil"
	"github.com/gje4/vercel-bigcommerce/pkg/middleware"
	"github.com/gje4/vercel-bigcommerce/pkg/pagination"
	"github.com/gje4/vercel-bigcommerce/pkg/validator"
)

// Response headers set on pipeline executions.
const (
	RunIDHeader    = middleware.RunIDHeader
	ReplayedHeader = "Idempotent-Replayed"
)

const maxIdempotencyKeyLen = 255

// PipelineHandler handles HTTP requests for pipeline endpoints.
type PipelineHandler struct {
	service *service.PipelineService
	logger  *slog.Logger
}

// NewPipelineHandler creates a new pipeline HTTP handler.
func NewPipelineHandler(svc *service.PipelineService, logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CategoryRequest is one entry of a pipeline submission. Counts are checked
// by the normalizer, which filters rather than rejects out-of-range entries.
type CategoryRequest struct {
	Category string `json:"category" validate:"max=200"`
	Count    int    `json:"count"`
}

// CreatePipelineRequest is the JSON request body for a pipeline submission.
type CreatePipelineRequest struct {
	Categories     []CategoryRequest `json:"categories" validate:"dive"`
	ReferenceImage string            `json:"referenceImage,omitempty" validate:"omitempty,imagedatauri"`
}

func (req CreatePipelineRequest) toInput() domain.RunInput {
	cats := make([]domain.CategoryRequest, 0, len(req.Categories))
	for _, c := range req.Categories {
		cats = append(cats, domain.CategoryRequest{Category: c.Category, Count: c.Count})
	}
	return domain.RunInput{Categories: cats, ReferenceImage: req.ReferenceImage}
}

// --- Handlers ---

// CreatePipeline handles POST /api/v1/pipelines. The body of the response is
// the pipeline result itself: 200 on success, 400 when the input was
// rejected, 500 when a later stage failed.
func (h *PipelineHandler) CreatePipeline(w http.ResponseWriter, r *http.Request) {
	var req CreatePipelineRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httputil.WriteError(w, r, apperrors.InvalidInput("request body is too large"), h.logger)
			return
		}
		httputil.WriteValidationError(w, r, err)
		return
	}

	key := strings.TrimSpace(r.Header.Get(middleware.IdempotencyKeyHeader))
	if len(key) > maxIdempotencyKeyLen {
		httputil.WriteError(w, r, apperrors.InvalidInput("Idempotency-Key must be at most 255 characters"), h.logger)
		return
	}

	out, err := h.service.CreateRun(r.Context(), req.toInput(), key)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.writeOutcome(w, out)
}

// GetPipeline handles GET /api/v1/pipelines/{id}.
func (h *PipelineHandler) GetPipeline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := httputil.ParseUUID(w, id); !ok {
		return
	}

	run, err := h.service.GetRun(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, run)
}

// ListPipelines handles GET /api/v1/pipelines.
func (h *PipelineHandler) ListPipelines(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	status := domain.RunStatus(r.URL.Query().Get("status"))

	runs, total, err := h.service.ListRuns(r.Context(), status, params.Page, params.PerPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(runs, total, params.Page, params.PerPage))
}

// ResumePipeline handles POST /api/v1/pipelines/{id}/resume.
func (h *PipelineHandler) ResumePipeline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := httputil.ParseUUID(w, id); !ok {
		return
	}

	out, err := h.service.ResumeRun(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.writeOutcome(w, out)
}

func (h *PipelineHandler) writeOutcome(w http.ResponseWriter, out *service.RunOutcome) {
	w.Header().Set(RunIDHeader, out.Run.ID)
	if out.Replayed {
		w.Header().Set(ReplayedHeader, "true")
	}
	httputil.WriteJSON(w, resultStatus(out), out.Result)
}

// resultStatus maps a finished run onto an HTTP status. A run that never got
// past normalization was rejected for its input.
func resultStatus(out *service.RunOutcome) int {
	switch {
	case out.Result.Success:
		return http.StatusOK
	case out.Run.Stage == domain.StageNormalize:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
