package history

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("history: not found")

// Record is one successfully completed query as remembered by the store.
type Record struct {
	ID          int64
	Datasource  string
	Engine      string
	Query       string
	User        string
	QueryID     string
	SubmittedAt time.Time
}

// ErrorRecord is one fatal query outcome. QueryID may be empty when the
// session never reached the point of being assigned one.
type ErrorRecord struct {
	ID         int64
	Datasource string
	Engine     string
	QueryID    string
	Query      string
	User       string
	Message    string
	OccurredAt time.Time
}

// Store is the relational history capability. Implementations must be safe
// for concurrent use by multiple in-flight queries.
type Store interface {
	InsertQueryHistory(ctx context.Context, record Record) error
	StoreError(ctx context.Context, record ErrorRecord) error
	ListQueryHistory(ctx context.Context, datasource, user string, limit int) ([]Record, error)
	GetQueryError(ctx context.Context, datasource, queryID string) (ErrorRecord, error)
}
