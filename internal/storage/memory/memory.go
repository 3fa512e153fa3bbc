package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	apperrors "github.com/gje4/vercel-bigcommerce/pkg/errors"

	"github.com/gje4/vercel-bigcommerce/internal/storage"
)

type object struct {
	ContentType string
	Data        []byte
	URL         string
}

// Storage implements storage.Storage with an in-memory map. Objects are lost
// on restart.
type Storage struct {
	mu      sync.RWMutex
	objects map[string]*object
	baseURL string
}

// New creates a new in-memory storage instance. URLs are baseURL/key.
func New(baseURL string) *Storage {
	if baseURL == "" {
		baseURL = "memory://archive"
	}
	return &Storage{
		objects: make(map[string]*object),
		baseURL: baseURL,
	}
}

// Upload reads the object body into memory.
func (s *Storage) Upload(_ context.Context, input *storage.UploadInput) (*storage.UploadResult, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, input.Data); err != nil {
		return nil, fmt.Errorf("read object %s: %w", input.Key, err)
	}

	url := fmt.Sprintf("%s/%s", s.baseURL, input.Key)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[input.Key] = &object{ContentType: input.ContentType, Data: buf.Bytes(), URL: url}

	return &storage.UploadResult{Key: input.Key, URL: url}, nil
}

// Delete removes an object.
func (s *Storage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objects[key]; !exists {
		return apperrors.NotFound("object", key)
	}
	delete(s.objects, key)
	return nil
}

// GetURL returns the URL for the given key.
func (s *Storage) GetURL(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, exists := s.objects[key]
	if !exists {
		return "", apperrors.NotFound("object", key)
	}
	return obj.URL, nil
}

// Get returns a copy of the stored bytes and their content type.
func (s *Storage) Get(key string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, exists := s.objects[key]
	if !exists {
		return nil, "", false
	}
	return bytes.Clone(obj.Data), obj.ContentType, true
}

// Len returns the number of stored objects.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
