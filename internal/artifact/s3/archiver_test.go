package s3

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

type stubClient struct {
	bucket      string
	key         string
	body        []byte
	size        int64
	contentType string
	err         error
}

func (s *stubClient) Put(_ context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error {
	if s.err != nil {
		return s.err
	}
	s.bucket = bucket
	s.key = key
	s.size = size
	s.contentType = contentType
	body, _ := io.ReadAll(reader)
	s.body = body
	return nil
}

func TestArchiveUploadsArtifact(t *testing.T) {
	dir := t.TempDir()
	localPath := filepath.Join(dir, "20260830_0001.jsonl")
	if err := os.WriteFile(localPath, []byte("[\"a\"]\n[\"1\"]\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	stub := &stubClient{}
	archiver, err := NewWithClient("querydock", "archive", stub)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	if err := archiver.Archive(context.Background(), "prod", localPath); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if stub.bucket != "querydock" {
		t.Fatalf("bucket = %q", stub.bucket)
	}
	if stub.key != "archive/prod/20260830_0001.jsonl" {
		t.Fatalf("key = %q", stub.key)
	}
	if stub.size != int64(len(stub.body)) || stub.size == 0 {
		t.Fatalf("size = %d, body = %d", stub.size, len(stub.body))
	}
	if stub.contentType != "application/x-ndjson" {
		t.Fatalf("contentType = %q", stub.contentType)
	}
}

func TestArchiveMissingFile(t *testing.T) {
	archiver, err := NewWithClient("querydock", "", &stubClient{})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if err := archiver.Archive(context.Background(), "prod", "/does/not/exist.jsonl"); err == nil {
		t.Fatal("Archive() should fail for missing file")
	}
}

func TestNewWithClientValidation(t *testing.T) {
	if _, err := NewWithClient("", "", &stubClient{}); err == nil {
		t.Fatal("NewWithClient() should require bucket")
	}
	if _, err := NewWithClient("bucket", "", nil); err == nil {
		t.Fatal("NewWithClient() should require client")
	}
}
