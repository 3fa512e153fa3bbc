package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/gje4/vercel-bigcommerce/internal/domain"
	apperrors "github.com/gje4/vercel-bigcommerce/pkg/errors"
)

// Archiver copies images that could not be attached to their product into
// object storage, keyed by run and record.
type Archiver struct {
	store Storage
}

// NewArchiver creates an Archiver backed by store.
func NewArchiver(store Storage) *Archiver {
	return &Archiver{store: store}
}

// ArchiveKey returns runs/<runID>/<recordID>.<ext>.
func ArchiveKey(runID, recordID, mediaType string) string {
	return fmt.Sprintf("runs/%s/%s.%s", runID, recordID, extension(mediaType))
}

// Archive stores the record's image and returns its key.
func (a *Archiver) Archive(ctx context.Context, runID string, record domain.CreatedRecord) (string, error) {
	if record.ImageData == "" {
		return "", apperrors.InvalidInput("record has no image data")
	}

	uri := domain.ParseDataURI(record.ImageData)
	data, err := uri.Bytes()
	if err != nil {
		return "", fmt.Errorf("archive record %s: %w", record.ID, err)
	}

	contentType := uri.MediaType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	res, err := a.store.Upload(ctx, &UploadInput{
		Key:         ArchiveKey(runID, record.ID, uri.MediaType),
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        bytes.NewReader(data),
	})
	if err != nil {
		return "", err
	}
	return res.Key, nil
}

func extension(mediaType string) string {
	switch mediaType {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case domain.MediaTypeSVG:
		return "svg"
	default:
		return "bin"
	}
}
