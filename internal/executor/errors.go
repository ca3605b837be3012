package executor

import "fmt"

// Kind classifies a fatal query outcome.
type Kind string

const (
	KindTimeout       Kind = "timeout"
	KindNoColumns     Kind = "no_columns"
	KindSizeExceeded  Kind = "size_exceeded"
	KindAborted       Kind = "aborted"
	KindGone          Kind = "gone"
	KindEngineFailure Kind = "engine_failure"
)

// QueryError is the terminal error surfaced to synchronous callers. QueryID
// is empty when the failure happened before the engine assigned one.
// ErrorName and ErrorType are only set for engine-reported failures.
type QueryError struct {
	Kind       Kind
	QueryID    string
	Datasource string
	Message    string
	ErrorName  string
	ErrorType  string
}

func (e *QueryError) Error() string {
	return e.Message
}

func timeoutError(queryID, datasource string, limit string) *QueryError {
	return &QueryError{
		Kind:       KindTimeout,
		QueryID:    queryID,
		Datasource: datasource,
		Message:    fmt.Sprintf("Query failed (#%s) in %s: Query exceeded maximum time limit of %s", queryID, datasource, limit),
	}
}

func noColumnsError(queryID, datasource string) *QueryError {
	return &QueryError{
		Kind:       KindNoColumns,
		QueryID:    queryID,
		Datasource: datasource,
		Message:    fmt.Sprintf("Query %s has no columns", queryID),
	}
}

func sizeExceededError(queryID, datasource string, maxBytes int64) *QueryError {
	return &QueryError{
		Kind:       KindSizeExceeded,
		QueryID:    queryID,
		Datasource: datasource,
		Message:    fmt.Sprintf("Result file size exceeded %d bytes. queryId=%s, datasource=%s", maxBytes, queryID, datasource),
	}
}

func abortedError(queryID, datasource string) *QueryError {
	return &QueryError{
		Kind:       KindAborted,
		QueryID:    queryID,
		Datasource: datasource,
		Message:    "Query aborted by user",
	}
}

func goneError(queryID, datasource string) *QueryError {
	return &QueryError{
		Kind:       KindGone,
		QueryID:    queryID,
		Datasource: datasource,
		Message:    "Query is gone (server restarted?)",
	}
}

func engineFailureError(queryID, datasource, message, name, errType string) *QueryError {
	return &QueryError{
		Kind:       KindEngineFailure,
		QueryID:    queryID,
		Datasource: datasource,
		Message:    fmt.Sprintf("Query failed (#%s) in %s: %s", queryID, datasource, message),
		ErrorName:  name,
		ErrorType:  errType,
	}
}
