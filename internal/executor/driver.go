package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/querydock/querydock/internal/artifact"
	"github.com/querydock/querydock/internal/engine"
	"github.com/querydock/querydock/internal/history"
	"github.com/querydock/querydock/internal/observability"
	"github.com/querydock/querydock/internal/telemetry"
)

// expired is the timeout guard: a pure function of the start timestamp, the
// current time and the per-datasource maximum run time. A non-positive
// maximum disables the guard.
func expired(start, now time.Time, max time.Duration) bool {
	return max > 0 && now.Sub(start) > max
}

func isMetadataListing(sql string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(sql)), "show")
}

func (s *Service) drive(ctx context.Context, session engine.Session, request Request, settings DatasourceSettings, start time.Time) (Result, error) {
	result, err := s.execute(ctx, session, request, settings, start)
	elapsed := s.now().Sub(start)

	outcome := "completed"
	if err != nil {
		outcome = "error"
		var queryErr *QueryError
		if errors.As(err, &queryErr) {
			outcome = string(queryErr.Kind)
		}
	}
	observability.ObserveQueryCompleted(request.Datasource, outcome, elapsed)
	return result, err
}

func (s *Service) execute(ctx context.Context, session engine.Session, request Request, settings DatasourceSettings, start time.Time) (Result, error) {
	// Waiting for the first batch: each iteration advances the session and
	// re-checks the guard against the single start timestamp.
	for session.IsValid() && session.Current().Data == nil {
		if err := session.Advance(ctx); err != nil {
			return Result{}, fmt.Errorf("advance session: %w", err)
		}
		if expired(start, s.now(), settings.MaxRunTime) {
			queryID := sessionID(session)
			queryErr := timeoutError(queryID, request.Datasource, settings.MaxRunTime.String())
			s.recordError(ctx, request, settings, queryID, queryErr.Message)
			return Result{}, queryErr
		}
	}

	var result Result
	var artifactPath string
	if !session.IsFailed() && !session.IsGone() && !session.IsClosed() {
		results := session.Current()
		if !session.IsValid() {
			results = session.FinalResults()
		}
		if results.Columns == nil {
			queryErr := noColumnsError(results.ID, request.Datasource)
			s.recordError(ctx, request, settings, results.ID, queryErr.Message)
			return Result{}, queryErr
		}

		result.QueryID = results.ID
		result.UpdateType = results.UpdateType
		result.Columns = columnNames(results.Columns)

		path, err := s.materialize(ctx, session, request, settings, start, &result)
		if err != nil {
			return Result{}, err
		}
		artifactPath = path
	}

	// Terminal precedence: aborted, then gone, then engine failure.
	switch {
	case session.IsClosed():
		queryID := firstNonEmpty(result.QueryID, sessionID(session))
		queryErr := abortedError(queryID, request.Datasource)
		s.recordError(ctx, request, settings, queryID, queryErr.Message)
		return Result{}, queryErr
	case session.IsGone():
		queryID := firstNonEmpty(result.QueryID, sessionID(session))
		queryErr := goneError(queryID, request.Datasource)
		s.recordError(ctx, request, settings, queryID, queryErr.Message)
		return Result{}, queryErr
	case session.IsFailed():
		return Result{}, s.classifyFailure(ctx, session, request, settings, start, result)
	}

	if request.Store {
		s.recordHistory(ctx, request, settings, result.QueryID)
	}
	s.emitExecuted(ctx, request, settings, result.QueryID, start)

	if s.Archive != nil && artifactPath != "" {
		if err := s.Archive.Archive(ctx, request.Datasource, artifactPath); err != nil && s.Logger != nil {
			s.Logger.WarnContext(ctx, "artifact archive failed",
				slog.String("query_id", result.QueryID),
				slog.Any("error", err),
			)
		}
	}
	return result, nil
}

// materialize streams batches into the result artifact and the bounded
// preview until the session stops being valid. It returns the artifact path
// for the archive hook.
func (s *Service) materialize(ctx context.Context, session engine.Session, request Request, settings DatasourceSettings, start time.Time, result *Result) (string, error) {
	writer, err := s.Artifacts.Create(request.Datasource, result.QueryID, settings.MaxResultBytes)
	if err != nil {
		return "", fmt.Errorf("create result artifact: %w", err)
	}
	defer func() { _ = writer.Close() }()

	if err := writer.WriteColumns(result.Columns); err != nil {
		return "", fmt.Errorf("write column header: %w", err)
	}

	listing := isMetadataListing(request.SQL)
	for session.IsValid() {
		for _, raw := range session.Current().Data {
			row := convertRow(raw)
			if err := writer.WriteRow(row); err != nil {
				if errors.Is(err, artifact.ErrSizeExceeded) {
					queryErr := sizeExceededError(result.QueryID, request.Datasource, settings.MaxResultBytes)
					s.recordError(ctx, request, settings, sessionID(session), queryErr.Message)
					return "", queryErr
				}
				return "", fmt.Errorf("write result row: %w", err)
			}
			if listing || len(result.Rows) < request.Limit {
				result.Rows = append(result.Rows, row)
			} else if result.Warning == "" {
				result.Warning = fmt.Sprintf("fetch stopped at %d rows: preview limit is %d", len(result.Rows), request.Limit)
			}
		}
		if err := session.Advance(ctx); err != nil {
			return "", fmt.Errorf("advance session: %w", err)
		}
		// The guard runs once per batch, not per row.
		if expired(start, s.now(), settings.MaxRunTime) {
			queryID := sessionID(session)
			queryErr := timeoutError(queryID, request.Datasource, settings.MaxRunTime.String())
			s.recordError(ctx, request, settings, queryID, queryErr.Message)
			return "", queryErr
		}
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close result artifact: %w", err)
	}
	result.LineCount = writer.Lines()
	size, err := writer.Size()
	if err != nil {
		return "", fmt.Errorf("measure result artifact: %w", err)
	}
	result.RawDataSize = humanize.Bytes(uint64(size))
	observability.ObserveArtifactSize(size)
	return writer.Path(), nil
}

// classifyFailure handles an engine-reported failure after the materializer
// loop. Before any result id was assigned the failure only reaches the
// history store; once rows were written the partial success artifact is
// deleted and replaced by an error artifact. The delete and the write are
// two separate file operations; a crash between them is an accepted risk.
func (s *Service) classifyFailure(ctx context.Context, session engine.Session, request Request, settings DatasourceSettings, start time.Time, result Result) error {
	results := session.FinalResults()

	message := "query failed"
	var name, errType string
	if results.Error != nil {
		message = results.Error.Message
		name = results.Error.Name
		errType = results.Error.Type
	}

	if result.QueryID == "" {
		queryErr := engineFailureError(results.ID, request.Datasource, message, name, errType)
		s.recordError(ctx, request, settings, results.ID, queryErr.Message)
		s.emitFailed(ctx, request, settings, results.ID, name, errType, start)
		return queryErr
	}

	queryErr := engineFailureError(result.QueryID, request.Datasource, message, name, errType)
	if err := s.Artifacts.Delete(request.Datasource, result.QueryID); err != nil && !errors.Is(err, artifact.ErrNotFound) {
		if s.Logger != nil {
			s.Logger.ErrorContext(ctx, "delete partial result artifact failed",
				slog.String("query_id", result.QueryID),
				slog.Any("error", err),
			)
		}
	}
	if err := s.Artifacts.WriteError(request.Datasource, result.QueryID, queryErr.Message); err != nil {
		if s.Logger != nil {
			s.Logger.ErrorContext(ctx, "write error artifact failed",
				slog.String("query_id", result.QueryID),
				slog.Any("error", err),
			)
		}
	}
	s.recordError(ctx, request, settings, result.QueryID, queryErr.Message)
	s.emitFailed(ctx, request, settings, results.ID, name, errType, start)
	return queryErr
}

// recordError writes a fatal outcome to the history store. Store failures
// never alter the query outcome.
func (s *Service) recordError(ctx context.Context, request Request, settings DatasourceSettings, queryID, message string) {
	if s.History == nil {
		return
	}
	err := s.History.StoreError(ctx, history.ErrorRecord{
		Datasource: request.Datasource,
		Engine:     settings.Engine,
		QueryID:    queryID,
		Query:      request.SQL,
		User:       request.User,
		Message:    message,
	})
	if err != nil {
		observability.IncrementSinkFailure("history")
		if s.Logger != nil {
			s.Logger.ErrorContext(ctx, "store error record failed",
				slog.String("query_id", queryID),
				slog.Any("error", err),
			)
		}
	}
}

func (s *Service) recordHistory(ctx context.Context, request Request, settings DatasourceSettings, queryID string) {
	if s.History == nil {
		return
	}
	err := s.History.InsertQueryHistory(ctx, history.Record{
		Datasource: request.Datasource,
		Engine:     settings.Engine,
		Query:      request.SQL,
		User:       request.User,
		QueryID:    queryID,
	})
	if err != nil {
		observability.IncrementSinkFailure("history")
		if s.Logger != nil {
			s.Logger.ErrorContext(ctx, "insert query history failed",
				slog.String("query_id", queryID),
				slog.Any("error", err),
			)
		}
	}
}

func (s *Service) emitExecuted(ctx context.Context, request Request, settings DatasourceSettings, queryID string, start time.Time) {
	if s.Config.ExecutedTag == "" {
		return
	}
	telemetry.EmitBestEffort(ctx, s.Telemetry, s.Logger, s.Config.ExecutedTag, map[string]any{
		"elapsed_time_ms": s.now().Sub(start).Milliseconds(),
		"user":            request.User,
		"query":           request.SQL,
		"query_id":        queryID,
		"datasource":      request.Datasource,
		"engine":          settings.Engine,
	})
}

func (s *Service) emitFailed(ctx context.Context, request Request, settings DatasourceSettings, queryID, errorName, errorType string, start time.Time) {
	if s.Config.FailedTag == "" {
		return
	}
	telemetry.EmitBestEffort(ctx, s.Telemetry, s.Logger, s.Config.FailedTag, map[string]any{
		"elapsed_time_ms": s.now().Sub(start).Milliseconds(),
		"user":            request.User,
		"query":           request.SQL,
		"query_id":        queryID,
		"datasource":      request.Datasource,
		"engine":          settings.Engine,
		"errorName":       errorName,
		"errorType":       errorType,
	})
}

func sessionID(session engine.Session) string {
	if session.IsValid() {
		return session.Current().ID
	}
	return session.FinalResults().ID
}

func columnNames(columns []engine.Column) []string {
	names := make([]string, len(columns))
	for i, column := range columns {
		names[i] = column.Name
	}
	return names
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
