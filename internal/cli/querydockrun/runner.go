// Package querydockrun implements the querydock-run command: execute one
// query synchronously and print the bounded preview as JSON.
package querydockrun

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/querydock/querydock/internal/artifact"
	"github.com/querydock/querydock/internal/config"
	"github.com/querydock/querydock/internal/engine"
	"github.com/querydock/querydock/internal/engine/duckdb"
	"github.com/querydock/querydock/internal/executor"
	"github.com/querydock/querydock/internal/history"
	historypostgres "github.com/querydock/querydock/internal/history/postgres"
	"github.com/querydock/querydock/internal/telemetry"
)

type Options struct {
	Lookup  config.LookupFunc
	Opener  engine.Opener
	History history.Store
	Stdout  io.Writer
	Stderr  io.Writer
}

type output struct {
	QueryID     string      `json:"queryid"`
	UpdateType  string      `json:"updateType,omitempty"`
	Headers     []string    `json:"headers"`
	Results     [][]*string `json:"results"`
	LineNumber  int         `json:"lineNumber"`
	RawDataSize string      `json:"rawDataSize,omitempty"`
	Warning     string      `json:"warningMessage,omitempty"`
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("querydock-run", flag.ContinueOnError)
	fs.SetOutput(stderr)

	datasource := fs.String("datasource", "default", "datasource to run against")
	user := fs.String("user", "", "submitting user; empty falls back to the configured default")
	limit := fs.Int("limit", 0, "preview row limit; 0 uses the datasource select limit")
	store := fs.Bool("store", false, "record the query in the history store")
	dbPath := fs.String("db", "", "embedded database path; empty means in-memory")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}
	sqlText := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if sqlText == "" {
		writeUsage(stderr)
		return 2
	}

	lookup := defaults.Lookup
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}
	cfg, err := config.Load("querydock-run", lookup)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config error: %v\n", err)
		return 1
	}

	opener := defaults.Opener
	if opener == nil {
		opener = &duckdb.Opener{Path: *dbPath}
	}

	historyStore := defaults.History
	var historyDB *sql.DB
	if historyStore == nil && *store {
		historyDB, err = historypostgres.Open(ctx, historypostgres.DBConfig{
			DSN:             cfg.History.DSN,
			MaxOpenConns:    cfg.History.MaxOpenConns,
			MaxIdleConns:    cfg.History.MaxIdleConns,
			ConnMaxIdleTime: cfg.History.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.History.ConnMaxLifetime,
		})
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "history store error: %v\n", err)
			return 1
		}
		defer func() { _ = historyDB.Close() }()
		historyStore = historypostgres.NewRepository(historyDB)
	}

	var sink telemetry.Sink
	if cfg.Telemetry.Address != "" {
		sink = &telemetry.Forwarder{
			Address:     cfg.Telemetry.Address,
			DialTimeout: cfg.Telemetry.DialTimeout,
		}
	}

	service := &executor.Service{
		Opener:    opener,
		History:   historyStore,
		Telemetry: sink,
		Artifacts: &artifact.Store{Root: cfg.Artifact.RootDir},
		Config: executor.Config{
			Workers:     cfg.Executor.Workers,
			DefaultUser: cfg.Executor.DefaultUser,
			ExecutedTag: cfg.Telemetry.ExecutedTag,
			FailedTag:   cfg.Telemetry.FailedTag,
			Datasources: DatasourceSettings(cfg),
		},
	}

	result, err := service.Run(ctx, executor.Request{
		Datasource: *datasource,
		SQL:        sqlText,
		User:       *user,
		Limit:      *limit,
		Store:      *store,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	body, err := json.MarshalIndent(output{
		QueryID:     result.QueryID,
		UpdateType:  result.UpdateType,
		Headers:     result.Columns,
		Results:     result.Rows,
		LineNumber:  result.LineCount,
		RawDataSize: result.RawDataSize,
		Warning:     result.Warning,
	}, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "encode result: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, string(body))
	return 0
}

// DatasourceSettings converts the configured datasources into the limits
// the executor enforces.
func DatasourceSettings(cfg config.Config) map[string]executor.DatasourceSettings {
	settings := make(map[string]executor.DatasourceSettings, len(cfg.Datasources))
	for name, ds := range cfg.Datasources {
		settings[name] = executor.DatasourceSettings{
			Server:         ds.Server,
			Engine:         ds.Engine,
			MaxRunTime:     ds.MaxRunTime,
			SelectLimit:    ds.SelectLimit,
			MaxResultBytes: ds.MaxResultBytes,
		}
	}
	return settings
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: querydock-run [flags] <sql>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "flags:")
	_, _ = fmt.Fprintln(w, "  -datasource  datasource to run against (default \"default\")")
	_, _ = fmt.Fprintln(w, "  -user        submitting user")
	_, _ = fmt.Fprintln(w, "  -limit       preview row limit")
	_, _ = fmt.Fprintln(w, "  -store       record the query in the history store")
	_, _ = fmt.Fprintln(w, "  -db          embedded database path")
}
