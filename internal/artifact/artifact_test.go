package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func strPtr(value string) *string {
	return &value
}

func TestResultPathGroupsByDay(t *testing.T) {
	store := NewStore("/tmp/artifacts")
	path, err := store.ResultPath("prod", "20260830_100000_00001_abcde")
	if err != nil {
		t.Fatalf("ResultPath() error = %v", err)
	}
	want := filepath.Join("/tmp/artifacts", "prod", "20260830", "20260830_100000_00001_abcde.jsonl")
	if path != want {
		t.Fatalf("ResultPath() = %q, want %q", path, want)
	}
}

func TestResultPathWithoutDayPrefix(t *testing.T) {
	store := NewStore("/tmp/artifacts")
	path, err := store.ResultPath("prod", "adhoc-query-1")
	if err != nil {
		t.Fatalf("ResultPath() error = %v", err)
	}
	want := filepath.Join("/tmp/artifacts", "prod", "adhoc-query-1.jsonl")
	if path != want {
		t.Fatalf("ResultPath() = %q", path)
	}
}

func TestPathRejectsBadComponents(t *testing.T) {
	store := NewStore("/tmp/artifacts")
	if _, err := store.ResultPath("../etc", "q1"); err == nil {
		t.Fatal("ResultPath() should reject traversal datasource")
	}
	if _, err := store.ErrorPath("prod", ""); err == nil {
		t.Fatal("ErrorPath() should reject empty query id")
	}
}

func TestWriteAndReadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	writer, err := store.Create("prod", "q1", 0)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := writer.WriteColumns([]string{"a", "b"}); err != nil {
		t.Fatalf("WriteColumns() error = %v", err)
	}
	rows := [][]*string{
		{strPtr("1"), strPtr("one")},
		{strPtr("2"), nil},
		{nil, strPtr("three")},
	}
	for _, row := range rows {
		if err := writer.WriteRow(row); err != nil {
			t.Fatalf("WriteRow() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if writer.Lines() != 4 {
		t.Fatalf("Lines() = %d", writer.Lines())
	}

	result, err := store.ReadResult("prod", "q1")
	if err != nil {
		t.Fatalf("ReadResult() error = %v", err)
	}
	if len(result.Columns) != 2 || result.Columns[0] != "a" || result.Columns[1] != "b" {
		t.Fatalf("Columns = %v", result.Columns)
	}
	if len(result.Rows) != 3 {
		t.Fatalf("len(Rows) = %d", len(result.Rows))
	}
	if *result.Rows[0][0] != "1" || *result.Rows[0][1] != "one" {
		t.Fatalf("Rows[0] = %v", result.Rows[0])
	}
	if result.Rows[1][1] != nil {
		t.Fatal("Rows[1][1] should be nil")
	}
	if result.Rows[2][0] != nil {
		t.Fatal("Rows[2][0] should be nil")
	}
}

func TestWriteRowEnforcesByteCap(t *testing.T) {
	store := NewStore(t.TempDir())

	writer, err := store.Create("prod", "q1", 32)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer func() { _ = writer.Close() }()

	if err := writer.WriteColumns([]string{"payload"}); err != nil {
		t.Fatalf("WriteColumns() error = %v", err)
	}

	big := strings.Repeat("x", 64)
	err = writer.WriteRow([]*string{strPtr(big)})
	if !errors.Is(err, ErrSizeExceeded) {
		t.Fatalf("WriteRow() error = %v, want ErrSizeExceeded", err)
	}

	// The crossing line was written before the cap fired; the partial file
	// stays on disk as evidence.
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	size, err := writer.Size()
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if size == 0 {
		t.Fatal("partial artifact should not be empty")
	}
}

func TestHeaderDoesNotCountTowardCap(t *testing.T) {
	store := NewStore(t.TempDir())

	writer, err := store.Create("prod", "q1", 4)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer func() { _ = writer.Close() }()

	wide := make([]string, 50)
	for i := range wide {
		wide[i] = strings.Repeat("c", 20)
	}
	if err := writer.WriteColumns(wide); err != nil {
		t.Fatalf("WriteColumns() error = %v", err)
	}
}

func TestDeleteAndErrorArtifact(t *testing.T) {
	store := NewStore(t.TempDir())

	writer, err := store.Create("prod", "q1", 0)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := writer.WriteColumns([]string{"a"}); err != nil {
		t.Fatalf("WriteColumns() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := store.Delete("prod", "q1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete("prod", "q1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete() error = %v, want ErrNotFound", err)
	}

	if err := store.WriteError("prod", "q1", "Query failed (#q1) in prod: boom"); err != nil {
		t.Fatalf("WriteError() error = %v", err)
	}
	message, err := store.ReadError("prod", "q1")
	if err != nil {
		t.Fatalf("ReadError() error = %v", err)
	}
	if message != "Query failed (#q1) in prod: boom" {
		t.Fatalf("ReadError() = %q", message)
	}
}

func TestReadResultMissingFile(t *testing.T) {
	store := NewStore(t.TempDir())
	if _, err := store.ReadResult("prod", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ReadResult() error = %v, want ErrNotFound", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	store := NewStore(t.TempDir())
	writer, err := store.Create("prod", "q1", 0)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, err := os.Stat(writer.Path()); err != nil {
		t.Fatalf("artifact missing after close: %v", err)
	}
}
