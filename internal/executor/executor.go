package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/querydock/querydock/internal/artifact"
	"github.com/querydock/querydock/internal/engine"
	"github.com/querydock/querydock/internal/history"
	"github.com/querydock/querydock/internal/observability"
	"github.com/querydock/querydock/internal/telemetry"
)

// Request describes one query submission. Immutable once created.
type Request struct {
	Datasource  string
	SQL         string
	User        string
	Credentials *engine.Credentials
	Limit       int
	Store       bool
}

// Result is the bounded in-memory outcome of a completed query. Rows holds
// the preview only; the full row set lives in the result artifact.
type Result struct {
	QueryID     string
	UpdateType  string
	Columns     []string
	Rows        [][]*string
	LineCount   int
	RawDataSize string
	Warning     string
}

// DatasourceSettings are the per-datasource limits the driver enforces.
type DatasourceSettings struct {
	Server         string
	Engine         string
	MaxRunTime     time.Duration
	SelectLimit    int
	MaxResultBytes int64
}

type Config struct {
	Workers     int
	DefaultUser string
	ExecutedTag string
	FailedTag   string
	Datasources map[string]DatasourceSettings
}

// Archiver is the optional post-completion artifact copy hook.
type Archiver interface {
	Archive(ctx context.Context, datasource, localPath string) error
}

// Service drives queries against a remote engine and materializes their
// results. The zero value is not usable; populate the dependency fields.
type Service struct {
	Opener    engine.Opener
	History   history.Store
	Telemetry telemetry.Sink
	Artifacts *artifact.Store
	Archive   Archiver
	Config    Config
	Logger    *slog.Logger
	Clock     func() time.Time

	poolOnce sync.Once
	queue    *taskQueue
	workers  sync.WaitGroup
}

type task struct {
	session  engine.Session
	request  Request
	settings DatasourceSettings
	start    time.Time
}

// Run executes one query on the caller's goroutine and blocks until a
// terminal outcome. The session is closed on every exit path.
func (s *Service) Run(ctx context.Context, request Request) (Result, error) {
	settings, err := s.settingsFor(request.Datasource)
	if err != nil {
		return Result{}, err
	}
	request = s.normalize(request, settings)
	if err := checkCredentialTransport(request, settings); err != nil {
		return Result{}, err
	}

	start := s.now()
	session, err := s.Opener.Open(ctx, openRequest(request))
	if err != nil {
		return Result{}, fmt.Errorf("open session: %w", err)
	}
	defer func() { _ = session.Close() }()

	observability.ObserveQueryStarted(request.Datasource, "sync")
	return s.drive(ctx, session, request, settings, start)
}

// Submit opens the session synchronously, queues the driver task on the
// worker pool and returns the engine-assigned query id. Fatal outcomes on
// this path are logged and persisted only; the caller learns them from the
// history store and the artifacts.
func (s *Service) Submit(ctx context.Context, request Request) (string, error) {
	settings, err := s.settingsFor(request.Datasource)
	if err != nil {
		return "", err
	}
	request.Limit = settings.SelectLimit
	request.Store = true
	request = s.normalize(request, settings)
	if err := checkCredentialTransport(request, settings); err != nil {
		return "", err
	}

	start := s.now()
	session, err := s.Opener.Open(ctx, openRequest(request))
	if err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}

	s.ensurePool()
	queryID := session.Current().ID
	if !s.queue.push(task{session: session, request: request, settings: settings, start: start}) {
		_ = session.Close()
		return "", fmt.Errorf("executor is closed")
	}
	observability.ObserveQueryStarted(request.Datasource, "async")
	return queryID, nil
}

// Close stops the worker pool after draining queued tasks. Safe to call
// concurrently with Submit: a submission racing past the closed queue gets
// its session closed and an error back.
func (s *Service) Close() {
	s.ensurePool()
	s.queue.close()
	s.workers.Wait()
}

func (s *Service) ensurePool() {
	s.poolOnce.Do(func() {
		workers := s.Config.Workers
		if workers <= 0 {
			workers = 10
		}
		s.queue = newTaskQueue()
		for i := 0; i < workers; i++ {
			s.workers.Add(1)
			go s.worker()
		}
	})
}

func (s *Service) worker() {
	defer s.workers.Done()
	for {
		item, ok := s.queue.pop()
		if !ok {
			return
		}
		s.runTask(item)
	}
}

func (s *Service) runTask(item task) {
	defer func() { _ = item.session.Close() }()

	// The submitting caller is long gone; the timeout guard and the
	// engine's terminal states are the only stop conditions.
	ctx := context.Background()
	if _, err := s.drive(ctx, item.session, item.request, item.settings, item.start); err != nil {
		if s.Logger != nil {
			s.Logger.ErrorContext(ctx, "async query failed",
				slog.String("datasource", item.request.Datasource),
				slog.String("user", item.request.User),
				slog.Any("error", err),
			)
		}
	}
}

func (s *Service) settingsFor(datasource string) (DatasourceSettings, error) {
	settings, ok := s.Config.Datasources[datasource]
	if !ok {
		return DatasourceSettings{}, fmt.Errorf("unknown datasource %q", datasource)
	}
	if settings.Engine == "" {
		settings.Engine = "trino"
	}
	if settings.SelectLimit <= 0 {
		settings.SelectLimit = 500
	}
	return settings, nil
}

func (s *Service) normalize(request Request, settings DatasourceSettings) Request {
	if request.User == "" {
		request.User = s.Config.DefaultUser
	}
	if request.Limit <= 0 {
		request.Limit = settings.SelectLimit
	}
	return request
}

// checkCredentialTransport refuses to send basic credentials to a
// datasource that is not reachable over TLS.
func checkCredentialTransport(request Request, settings DatasourceSettings) error {
	if request.Credentials == nil || settings.Server == "" {
		return nil
	}
	if !strings.HasPrefix(strings.ToLower(settings.Server), "https://") {
		return fmt.Errorf("datasource %q requires https for credentialed queries", request.Datasource)
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func openRequest(request Request) engine.OpenRequest {
	return engine.OpenRequest{
		Datasource:  request.Datasource,
		SQL:         request.SQL,
		User:        request.User,
		Credentials: request.Credentials,
	}
}

// taskQueue is an unbounded FIFO: Submit never blocks, the fixed worker
// count bounds the concurrently driven sessions.
type taskQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []task
	closed bool
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *taskQueue) push(item task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, item)
	q.cond.Signal()
	return true
}

func (q *taskQueue) pop() (task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return task{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

func (q *taskQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
