package engine

import "context"

// Credentials carries optional engine-level authentication for a session.
type Credentials struct {
	User     string
	Password string
}

// OpenRequest describes one query to start on a remote engine.
type OpenRequest struct {
	Datasource  string
	SQL         string
	User        string
	Credentials *Credentials
}

// Column is one entry of a result schema, in display order.
type Column struct {
	Name string
	Type string
}

// QueryError is the failure reported by the remote engine for a query.
type QueryError struct {
	Message string
	Name    string
	Type    string
}

// Results is the engine's view of a session at one poll: the assigned query
// id, the schema once known, the current batch of rows (nil when the poll
// produced no data), an update type for DDL/DML statements, and the terminal
// error when the query failed.
type Results struct {
	ID         string
	Columns    []Column
	Data       [][]any
	UpdateType string
	Error      *QueryError
}

// Session is one in-flight query on a remote engine. A session is owned by
// exactly one driver invocation; Close must be safe to call more than once.
type Session interface {
	IsValid() bool
	Advance(ctx context.Context) error
	Current() Results
	FinalResults() Results
	IsClosed() bool
	IsGone() bool
	IsFailed() bool
	Close() error
}

// Opener starts sessions. Opening performs the first round-trip to the
// engine and fails synchronously when the session cannot be established.
type Opener interface {
	Open(ctx context.Context, request OpenRequest) (Session, error)
}
