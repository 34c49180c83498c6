package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestMemoryStore_UploadDownload(t *testing.T) {
	store := NewMemoryStore()
	meta, err := store.Upload(context.Background(), "cbc.pdf", "application/pdf", strings.NewReader("report body"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.Size != int64(len("report body")) {
		t.Errorf("expected size %d, got %d", len("report body"), meta.Size)
	}
	if meta.Hash == "" {
		t.Error("expected hash to be set")
	}
	if !strings.HasPrefix(meta.Path, "/uploads/") {
		t.Errorf("expected /uploads path, got %s", meta.Path)
	}

	rc, got, err := store.Download(context.Background(), meta.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "report body" {
		t.Errorf("content mismatch: %q", data)
	}
	if got.FileName != "cbc.pdf" {
		t.Errorf("expected file name cbc.pdf, got %s", got.FileName)
	}
}

func TestMemoryStore_RejectsContentType(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Upload(context.Background(), "evil.exe", "application/octet-stream", strings.NewReader("x"))
	if !errors.Is(err, ErrInvalidContentType) {
		t.Errorf("expected ErrInvalidContentType, got %v", err)
	}
}

func TestMemoryStore_RejectsMissingName(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Upload(context.Background(), "", "application/pdf", strings.NewReader("x"))
	if !errors.Is(err, ErrMissingFileName) {
		t.Errorf("expected ErrMissingFileName, got %v", err)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	meta, _ := store.Upload(context.Background(), "a.txt", "text/plain", strings.NewReader("x"))
	if err := store.Delete(context.Background(), meta.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := store.Download(context.Background(), meta.ID); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestLocalStore_RoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content := bytes.Repeat([]byte("x"), 128)
	meta, err := store.Upload(context.Background(), "scan.png", "image/png", bytes.NewReader(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rc, _, err := store.Download(context.Background(), meta.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if !bytes.Equal(data, content) {
		t.Error("content mismatch after round trip")
	}

	if err := store.Delete(context.Background(), meta.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
