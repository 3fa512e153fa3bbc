package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	apperrors "github.com/gje4/vercel-bigcommerce/pkg/errors"

	"github.com/gje4/vercel-bigcommerce/internal/domain"
)

// Response modalities requested from the model.
const (
	ModalityText  = "TEXT"
	ModalityImage = "IMAGE"
)

// ModelRequest is one generation call.
type ModelRequest struct {
	Model  string
	Prompt string
	// ReferenceImage is an optional data URI attached read-only to the call.
	ReferenceImage string
}

// File is a binary attachment returned by the model.
type File struct {
	MediaType string
	Data      []byte
}

// ModelResponse holds the text and files of a generation call.
type ModelResponse struct {
	Text  string
	Files []File
}

// Model is the generative content service.
type Model interface {
	Generate(ctx context.Context, req ModelRequest) (*ModelResponse, error)
}

// GenAIConfig configures the Gemini API client.
type GenAIConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// GenAIModel implements Model on top of google.golang.org/genai.
type GenAIModel struct {
	client *genai.Client
}

// NewGenAIModel creates a Gemini API backed model.
func NewGenAIModel(ctx context.Context, cfg GenAIConfig) (*GenAIModel, error) {
	if cfg.APIKey == "" {
		return nil, apperrors.Configuration("generator API key is required")
	}

	opts := genai.HTTPOptions{BaseURL: cfg.BaseURL}
	if cfg.Timeout > 0 {
		timeout := cfg.Timeout
		opts.Timeout = &timeout
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: opts,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GenAIModel{client: client}, nil
}

// Generate asks the model for text and image output.
func (m *GenAIModel) Generate(ctx context.Context, req ModelRequest) (*ModelResponse, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if req.ReferenceImage != "" {
		ref := domain.ParseDataURI(req.ReferenceImage)
		data, err := ref.Bytes()
		if err != nil {
			return nil, fmt.Errorf("decode reference image: %w", err)
		}
		mediaType := ref.MediaType
		if mediaType == "" {
			mediaType = "image/png"
		}
		parts = append(parts, genai.NewPartFromBytes(data, mediaType))
	}

	resp, err := m.client.Models.GenerateContent(ctx,
		req.Model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{
			ResponseModalities: []string{ModalityText, ModalityImage},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("generate content: model returned no candidates")
	}

	var (
		text strings.Builder
		out  ModelResponse
	)
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			out.Files = append(out.Files, File{
				MediaType: part.InlineData.MIMEType,
				Data:      part.InlineData.Data,
			})
		}
	}
	out.Text = text.String()

	return &out, nil
}

// UnavailableModel fails every call with Err. It stands in for the real
// model when no API key is configured, so runs degrade to synthetic content.
type UnavailableModel struct {
	Err error
}

// Generate returns m.Err.
func (m UnavailableModel) Generate(context.Context, ModelRequest) (*ModelResponse, error) {
	if m.Err == nil {
		return nil, errors.New("generative model is not configured")
	}
	return nil, m.Err
}
