// Package blobstore is the object-storage collaborator: it accepts a byte
// buffer plus content type and returns a durable URL. The engine only
// depends on the Store interface; Memory is good enough for tests and
// single-node development.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
)

// MaxResultFileSize caps uploaded consultation/test documents (10 MB).
const MaxResultFileSize = 10 * 1024 * 1024

// allowedResultTypes lists the MIME types accepted for test results and
// patient documents.
var allowedResultTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
}

type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// ValidateResultFile applies the upload rules shared by test results and
// appointment documents.
func ValidateResultFile(f File) error {
	if f.Name == "" {
		return ErrMissingFileName
	}
	if !allowedResultTypes[f.ContentType] {
		return fmt.Errorf("%w: %s", ErrInvalidContentType, f.ContentType)
	}
	if len(f.Data) > MaxResultFileSize {
		return ErrFileTooLarge
	}
	return nil
}

// Object describes a stored blob.
type Object struct {
	ID        string
	URL       string
	Size      int64
	CreatedAt time.Time
}

type Store interface {
	Upload(ctx context.Context, f File) (*Object, error)
}

// Memory is an in-process Store for tests and development.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]File
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]File)}
}

func (m *Memory) Upload(_ context.Context, f File) (*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.objects[id] = f

	return &Object{
		ID:        id,
		URL:       fmt.Sprintf("memory://blobs/%s/%s", id, f.Name),
		Size:      int64(len(f.Data)),
		CreatedAt: time.Now(),
	}, nil
}

// Get retrieves a stored file by id. Test helper.
func (m *Memory) Get(id string) (File, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.objects[id]
	return f, ok
}
