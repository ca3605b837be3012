// Package duckdb runs queries on an embedded database behind the same
// advance/poll session surface a remote engine exposes. It backs the CLI's
// local mode and lets the full driver pipeline run without a network.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/querydock/querydock/internal/engine"
)

type Opener struct {
	// Path is the database location; empty means in-memory.
	Path string
	// BatchSize bounds rows per poll. Defaults to 1000.
	BatchSize int
	Clock     func() time.Time
}

var updateKeywords = map[string]string{
	"insert": "INSERT",
	"update": "UPDATE",
	"delete": "DELETE",
	"create": "CREATE",
	"drop":   "DROP",
	"alter":  "ALTER",
}

// Open executes the query up front and returns a session that serves the
// rows batch by batch. SQL errors do not fail Open: they come back as a
// failed session so callers classify them the same way as remote failures.
func (o *Opener) Open(ctx context.Context, request engine.OpenRequest) (engine.Session, error) {
	db, err := sql.Open("duckdb", o.Path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	session := &Session{id: o.newQueryID(), batchSize: o.batchSize()}

	sqlText := strings.TrimSpace(request.SQL)
	if keyword, ok := updateKeywords[leadingKeyword(sqlText)]; ok {
		result, err := db.ExecContext(ctx, sqlText)
		if err != nil {
			session.fail(err)
			return session, nil
		}
		affected, err := result.RowsAffected()
		if err != nil {
			affected = 0
		}
		session.updateType = keyword
		session.columns = []engine.Column{{Name: "rows", Type: "BIGINT"}}
		session.setRows([][]any{{affected}})
		return session, nil
	}

	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		session.fail(err)
		return session, nil
	}
	defer func() { _ = rows.Close() }()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		session.fail(err)
		return session, nil
	}
	columns := make([]engine.Column, len(columnTypes))
	for i, columnType := range columnTypes {
		columns[i] = engine.Column{Name: columnType.Name(), Type: columnType.DatabaseTypeName()}
	}
	session.columns = columns

	var data [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			session.fail(err)
			return session, nil
		}
		data = append(data, values)
	}
	if err := rows.Err(); err != nil {
		session.fail(err)
		return session, nil
	}
	session.setRows(data)
	return session, nil
}

func (o *Opener) batchSize() int {
	if o.BatchSize > 0 {
		return o.BatchSize
	}
	return 1000
}

func (o *Opener) newQueryID() string {
	now := time.Now
	if o.Clock != nil {
		now = o.Clock
	}
	stamp := now().UTC().Format("20060102_150405")
	return stamp + "_" + strings.Split(uuid.NewString(), "-")[0]
}

// Session is one completed local execution served through the polling
// surface. All rows are already in memory; each Advance exposes the next
// batch.
type Session struct {
	id         string
	columns    []engine.Column
	updateType string
	batchSize  int
	batches    [][][]any

	mu     sync.Mutex
	pos    int
	closed bool
	err    *engine.QueryError
}

func (s *Session) fail(err error) {
	s.err = &engine.QueryError{
		Message: err.Error(),
		Name:    "EXECUTION_ERROR",
		Type:    "INTERNAL_ERROR",
	}
}

func (s *Session) setRows(data [][]any) {
	if len(data) == 0 {
		// One empty batch so the driver observes the schema before the
		// session stops being valid.
		s.batches = [][][]any{{}}
		return
	}
	for start := 0; start < len(data); start += s.batchSize {
		end := start + s.batchSize
		if end > len(data) {
			end = len(data)
		}
		s.batches = append(s.batches, data[start:end])
	}
}

func (s *Session) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.err == nil && s.pos < len(s.batches)
}

func (s *Session) Advance(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos < len(s.batches) {
		s.pos++
	}
	return nil
}

func (s *Session) Current() engine.Results {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := s.results()
	if s.pos < len(s.batches) {
		results.Data = s.batches[s.pos]
	}
	return results
}

func (s *Session) FinalResults() engine.Results {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results()
}

func (s *Session) results() engine.Results {
	return engine.Results{
		ID:         s.id,
		Columns:    s.columns,
		UpdateType: s.updateType,
		Error:      s.err,
	}
}

func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed && s.pos < len(s.batches)
}

func (s *Session) IsGone() bool {
	return false
}

func (s *Session) IsFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err != nil
}

// Close releases the session; calling it again is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func leadingKeyword(sqlText string) string {
	fields := strings.Fields(strings.ToLower(sqlText))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
