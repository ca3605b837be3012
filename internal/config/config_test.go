package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func lookupFrom(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("querydock-test", lookupFrom(nil))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q", cfg.Profile)
	}
	if cfg.Service.Name != "querydock-test" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.Executor.Workers != 10 {
		t.Fatalf("Executor.Workers = %d", cfg.Executor.Workers)
	}
	ds, err := cfg.Datasource("default")
	if err != nil {
		t.Fatalf("Datasource() error = %v", err)
	}
	if ds.Engine != "trino" {
		t.Fatalf("Engine = %q", ds.Engine)
	}
	if ds.MaxRunTime != 30*time.Minute {
		t.Fatalf("MaxRunTime = %v", ds.MaxRunTime)
	}
}

func TestLoadDatasourceOverrides(t *testing.T) {
	cfg, err := Load("querydock-test", lookupFrom(map[string]string{
		"QUERYDOCK_DATASOURCES":             "prod, analytics-eu",
		"QUERYDOCK_DS_PROD_SERVER":          "https://trino.internal:8443",
		"QUERYDOCK_DS_PROD_MAX_RUN_TIME":    "1h",
		"QUERYDOCK_DS_PROD_SELECT_LIMIT":    "100",
		"QUERYDOCK_DS_ANALYTICS_EU_CATALOG": "iceberg",
		"QUERYDOCK_DS_ANALYTICS_EU_MAX_RESULT_BYTES": "1048576",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Datasources) != 2 {
		t.Fatalf("len(Datasources) = %d", len(cfg.Datasources))
	}

	prod, err := cfg.Datasource("prod")
	if err != nil {
		t.Fatalf("Datasource(prod) error = %v", err)
	}
	if prod.Server != "https://trino.internal:8443" {
		t.Fatalf("prod.Server = %q", prod.Server)
	}
	if prod.MaxRunTime != time.Hour {
		t.Fatalf("prod.MaxRunTime = %v", prod.MaxRunTime)
	}
	if prod.SelectLimit != 100 {
		t.Fatalf("prod.SelectLimit = %d", prod.SelectLimit)
	}
	if prod.Catalog != "hive" {
		t.Fatalf("prod.Catalog = %q", prod.Catalog)
	}

	eu, err := cfg.Datasource("analytics-eu")
	if err != nil {
		t.Fatalf("Datasource(analytics-eu) error = %v", err)
	}
	if eu.Catalog != "iceberg" {
		t.Fatalf("eu.Catalog = %q", eu.Catalog)
	}
	if eu.MaxResultBytes != 1048576 {
		t.Fatalf("eu.MaxResultBytes = %d", eu.MaxResultBytes)
	}

	if _, err := cfg.Datasource("missing"); err == nil {
		t.Fatal("Datasource(missing) should fail")
	}
}

func TestLoadProfileSwitchesDefaults(t *testing.T) {
	cfg, err := Load("querydock-test", lookupFrom(map[string]string{
		"QUERYDOCK_PROFILE": "prod",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Archive.UseSSL {
		t.Fatal("Archive.UseSSL should default on in prod")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"bad profile":  {"QUERYDOCK_PROFILE": "qa"},
		"bad duration": {"QUERYDOCK_ARTIFACT_RETENTION_AGE": "soon"},
		"bad workers":  {"QUERYDOCK_EXECUTOR_WORKERS": "0"},
		"bad level":    {"QUERYDOCK_LOG_LEVEL": "loud"},
		"bad bytes": {
			"QUERYDOCK_DATASOURCES":              "prod",
			"QUERYDOCK_DS_PROD_MAX_RESULT_BYTES": "huge",
		},
	}
	for name, values := range cases {
		if _, err := Load("querydock-test", lookupFrom(values)); err == nil {
			t.Fatalf("%s: Load() should fail", name)
		}
	}
}

func TestEnvComponent(t *testing.T) {
	if got := envComponent("analytics-eu.west"); got != "ANALYTICS_EU_WEST" {
		t.Fatalf("envComponent() = %q", got)
	}
	if !strings.HasPrefix("QUERYDOCK_DS_"+envComponent("prod"), "QUERYDOCK_DS_PROD") {
		t.Fatal("unexpected env key shape")
	}
}
