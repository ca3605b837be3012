package duckdb

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/querydock/querydock/internal/engine"
)

func TestOpenServesRowsInBatches(t *testing.T) {
	opener := &Opener{BatchSize: 2}
	session, err := opener.Open(context.Background(), engine.OpenRequest{
		SQL: "SELECT i FROM range(5) AS t(i) ORDER BY i",
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = session.Close() }()

	if !session.IsValid() {
		t.Fatalf("IsValid() = false, want true")
	}
	current := session.Current()
	if len(current.Columns) != 1 || current.Columns[0].Name != "i" {
		t.Fatalf("Current().Columns = %v, want single column i", current.Columns)
	}

	var rows int
	var batches int
	for session.IsValid() {
		batch := session.Current()
		rows += len(batch.Data)
		batches++
		if err := session.Advance(context.Background()); err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
	}
	if rows != 5 {
		t.Fatalf("rows = %d, want 5", rows)
	}
	if batches != 3 {
		t.Fatalf("batches = %d, want 3", batches)
	}
	if session.IsFailed() || session.IsGone() || session.IsClosed() {
		t.Fatalf("terminal flags set on completed session")
	}
}

func TestOpenEmptyResultStillExposesSchema(t *testing.T) {
	opener := &Opener{}
	session, err := opener.Open(context.Background(), engine.OpenRequest{
		SQL: "SELECT 1 AS answer WHERE 1 = 0",
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = session.Close() }()

	if !session.IsValid() {
		t.Fatalf("IsValid() = false, want one empty batch")
	}
	current := session.Current()
	if len(current.Columns) != 1 || current.Columns[0].Name != "answer" {
		t.Fatalf("Current().Columns = %v, want answer", current.Columns)
	}
	if current.Data == nil || len(current.Data) != 0 {
		t.Fatalf("Current().Data = %v, want empty non-nil batch", current.Data)
	}
}

func TestOpenStatementReportsAffectedRows(t *testing.T) {
	opener := &Opener{}
	session, err := opener.Open(context.Background(), engine.OpenRequest{
		SQL: "CREATE TABLE t (id INTEGER)",
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = session.Close() }()

	current := session.Current()
	if current.UpdateType != "CREATE" {
		t.Fatalf("UpdateType = %q, want CREATE", current.UpdateType)
	}
	if len(current.Data) != 1 {
		t.Fatalf("Data = %v, want one row", current.Data)
	}
}

func TestOpenSQLErrorFailsSession(t *testing.T) {
	opener := &Opener{}
	session, err := opener.Open(context.Background(), engine.OpenRequest{
		SQL: "SELECT FROM nowhere",
	})
	if err != nil {
		t.Fatalf("Open() error = %v, want failed session instead", err)
	}
	defer func() { _ = session.Close() }()

	if session.IsValid() {
		t.Fatalf("IsValid() = true, want false")
	}
	if !session.IsFailed() {
		t.Fatalf("IsFailed() = false, want true")
	}
	final := session.FinalResults()
	if final.Error == nil || final.Error.Message == "" {
		t.Fatalf("FinalResults().Error = %v, want message", final.Error)
	}
}

func TestCloseMidStreamMarksAborted(t *testing.T) {
	opener := &Opener{BatchSize: 1}
	session, err := opener.Open(context.Background(), engine.OpenRequest{
		SQL: "SELECT i FROM range(3) AS t(i)",
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if session.IsValid() {
		t.Fatalf("IsValid() = true after Close")
	}
	if !session.IsClosed() {
		t.Fatalf("IsClosed() = false, want true")
	}
	if err := session.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestNewQueryIDCarriesDayPrefix(t *testing.T) {
	opener := &Opener{Clock: func() time.Time {
		return time.Date(2024, 6, 1, 12, 30, 45, 0, time.UTC)
	}}
	id := opener.newQueryID()
	if !regexp.MustCompile(`^20240601_123045_[0-9a-f]{8}$`).MatchString(id) {
		t.Fatalf("newQueryID() = %q, want timestamped id", id)
	}
}
