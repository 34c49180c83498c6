// Package blobstore stores uploaded lab-result documents. It defines the
// BlobStore contract, a local filesystem implementation backing the /uploads
// static route, and a thread-safe in-memory implementation for tests.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
)

// MaxFileSize is the maximum allowed upload size in bytes (20 MB).
const MaxFileSize = 20 * 1024 * 1024

// AllowedContentTypes lists the MIME types accepted for lab-result uploads.
var AllowedContentTypes = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"application/pdf": true,
	"text/plain":      true,
	"text/csv":        true,
}

// BlobMetadata describes a stored document.
type BlobMetadata struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Path        string    `json:"path"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// BlobStore defines the contract for document storage backends.
type BlobStore interface {
	Upload(ctx context.Context, fileName, contentType string, content io.Reader) (*BlobMetadata, error)
	Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error)
	Delete(ctx context.Context, id string) error
}

func validate(fileName, contentType string) error {
	if fileName == "" {
		return ErrMissingFileName
	}
	if !AllowedContentTypes[contentType] {
		return ErrInvalidContentType
	}
	return nil
}

func readAll(content io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

// ---------------------------------------------------------------------------
// Local filesystem implementation
// ---------------------------------------------------------------------------

// LocalStore writes blobs under a base directory. Files are named by blob id
// plus the original extension, so the directory can be served statically.
type LocalStore struct {
	mu   sync.RWMutex
	dir  string
	meta map[string]*BlobMetadata
}

// NewLocalStore creates the base directory if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory %s: %w", dir, err)
	}
	return &LocalStore{dir: dir, meta: make(map[string]*BlobMetadata)}, nil
}

func (s *LocalStore) Upload(_ context.Context, fileName, contentType string, content io.Reader) (*BlobMetadata, error) {
	if err := validate(fileName, contentType); err != nil {
		return nil, err
	}

	data, err := readAll(content)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	name := id + filepath.Ext(fileName)
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write blob %s: %w", path, err)
	}

	h := sha256.Sum256(data)
	meta := &BlobMetadata{
		ID:          id,
		FileName:    fileName,
		ContentType: contentType,
		Size:        int64(len(data)),
		Path:        "/uploads/" + name,
		Hash:        fmt.Sprintf("%x", h),
		CreatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	s.meta[id] = meta
	s.mu.Unlock()

	out := *meta
	return &out, nil
}

func (s *LocalStore) Download(_ context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	s.mu.RLock()
	meta, ok := s.meta[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}

	f, err := os.Open(filepath.Join(s.dir, id+filepath.Ext(meta.FileName)))
	if err != nil {
		return nil, nil, fmt.Errorf("open blob %s: %w", id, err)
	}

	out := *meta
	return f, &out, nil
}

func (s *LocalStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, ok := s.meta[id]
	if !ok {
		return ErrBlobNotFound
	}
	delete(s.meta, id)

	return os.Remove(filepath.Join(s.dir, id+filepath.Ext(meta.FileName)))
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedBlob struct {
	metadata BlobMetadata
	content  []byte
}

// MemoryStore is a thread-safe, in-memory BlobStore for tests.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]*storedBlob)}
}

func (s *MemoryStore) Upload(_ context.Context, fileName, contentType string, content io.Reader) (*BlobMetadata, error) {
	if err := validate(fileName, contentType); err != nil {
		return nil, err
	}

	data, err := readAll(content)
	if err != nil {
		return nil, err
	}

	h := sha256.Sum256(data)
	id := uuid.New().String()
	meta := BlobMetadata{
		ID:          id,
		FileName:    fileName,
		ContentType: contentType,
		Size:        int64(len(data)),
		Path:        "/uploads/" + id + filepath.Ext(fileName),
		Hash:        fmt.Sprintf("%x", h),
		CreatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	s.blobs[id] = &storedBlob{metadata: meta, content: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

func (s *MemoryStore) Download(_ context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}

	meta := blob.metadata
	return io.NopCloser(bytes.NewReader(blob.content)), &meta, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[id]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, id)
	return nil
}
