package config

import (
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/jpalmerr/pulsestats"
)

func parseOrFail(t *testing.T, yaml string) *Config {
	t.Helper()
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return cfg
}

func TestBuildOptions_Memory(t *testing.T) {
	cfg := parseOrFail(t, `
identifiers: [alice, bob, carol]
cycle_duration: 3s
jitter: 1s
sink:
  type: memory
`)

	ps, err := pulsestats.New(BuildOptions(cfg, nil)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !reflect.DeepEqual(ps.Identifiers(), []string{"alice", "bob", "carol"}) {
		t.Errorf("Identifiers() = %v", ps.Identifiers())
	}
	if ps.CycleDuration() != 3*time.Second {
		t.Errorf("CycleDuration() = %v, want 3s", ps.CycleDuration())
	}
	if ps.Cadence() != time.Second {
		t.Errorf("Cadence() = %v, want 1s", ps.Cadence())
	}
	if ps.Jitter() != time.Second {
		t.Errorf("Jitter() = %v, want 1s", ps.Jitter())
	}
	if ps.SinkType() != "memory" {
		t.Errorf("SinkType() = %q, want memory", ps.SinkType())
	}
}

func TestBuildOptions_Influx(t *testing.T) {
	cfg := parseOrFail(t, `
identifiers: [alice]
cycle_duration: 1h
fetch:
  cookie: sessionid=abc
  app_id: "123"
sink:
  type: influx
  url: http://influx:8086
  token: tok
  org: acme
  bucket: profiles
`)

	ps, err := pulsestats.New(BuildOptions(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if ps.SinkType() != "influx" {
		t.Errorf("SinkType() = %q, want influx", ps.SinkType())
	}
}

func TestBuildOptions_Postgres(t *testing.T) {
	cfg := parseOrFail(t, `
identifiers: [alice]
cycle_duration: 1h
sink:
  type: postgres
  dsn: postgres://stats@localhost/stats
`)

	ps, err := pulsestats.New(BuildOptions(cfg, nil)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if ps.SinkType() != "postgres" {
		t.Errorf("SinkType() = %q, want postgres", ps.SinkType())
	}
}

// TestBuildOptions_RevalidatedByNew verifies a hand-built Config that skipped
// Parse is still rejected by the SDK.
func TestBuildOptions_RevalidatedByNew(t *testing.T) {
	cfg := &Config{
		Identifiers:   Identifiers{"alice", "alice"},
		CycleDuration: Duration(time.Hour),
		Fetch:         FetchConfig{BaseURL: "https://example.com/?u="},
		Sink:          SinkConfig{Type: "memory"},
	}

	if _, err := pulsestats.New(BuildOptions(cfg, nil)...); err == nil {
		t.Error("New() expected duplicate identifier error, got nil")
	}
}

func TestSortedKeys(t *testing.T) {
	got := sortedKeys(map[string]string{"x-ig-app-id": "1", "cookie": "c", "sec-fetch-site": "same-site"})
	want := []string{"cookie", "sec-fetch-site", "x-ig-app-id"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sortedKeys() = %v, want %v", got, want)
	}
}
