package pulsestats

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/pulsestats/internal/sink"
)

func TestNew_Valid(t *testing.T) {
	ps, err := New(WithIdentifiers("alice", "bob"), WithMemorySink())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if ps == nil {
		t.Fatal("New() returned nil")
	}
}

func TestNew_NoIdentifiers(t *testing.T) {
	_, err := New(WithMemorySink())
	if err == nil || !strings.Contains(err.Error(), "at least one identifier") {
		t.Errorf("New() error = %v, want missing identifier error", err)
	}
}

func TestNew_DuplicateIdentifiers(t *testing.T) {
	_, err := New(WithIdentifiers("alice", "bob"), WithIdentifiers("alice"), WithMemorySink())
	if err == nil || !strings.Contains(err.Error(), `duplicate identifier: "alice"`) {
		t.Errorf("New() error = %v, want duplicate identifier", err)
	}
}

func TestNew_NoSink(t *testing.T) {
	_, err := New(WithIdentifiers("alice"))
	if err == nil || !strings.Contains(err.Error(), "a sink is required") {
		t.Errorf("New() error = %v, want missing sink error", err)
	}
}

func TestNew_JitterNotSmallerThanCycle(t *testing.T) {
	_, err := New(
		WithIdentifiers("alice"),
		WithCycleDuration(time.Minute),
		WithJitter(time.Minute),
		WithMemorySink(),
	)
	if err == nil || !strings.Contains(err.Error(), "must be smaller than the cycle duration") {
		t.Errorf("New() error = %v, want jitter error", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	ps, err := New(WithIdentifiers("alice", "bob", "carol", "dave"), WithMemorySink())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if ps.CycleDuration() != time.Hour {
		t.Errorf("CycleDuration() = %v, want 1h", ps.CycleDuration())
	}
	if ps.Cadence() != 15*time.Minute {
		t.Errorf("Cadence() = %v, want 15m", ps.Cadence())
	}
	if ps.Jitter() != 0 {
		t.Errorf("Jitter() = %v, want 0", ps.Jitter())
	}
	if ps.shutdownTimeout != 10*time.Second {
		t.Errorf("shutdownTimeout = %v, want 10s", ps.shutdownTimeout)
	}
	if ps.SinkType() != sink.TypeMemory {
		t.Errorf("SinkType() = %q, want memory", ps.SinkType())
	}
}

func TestIdentifiers_Immutability(t *testing.T) {
	ids := []string{"alice", "bob"}
	ps, err := New(WithIdentifiers(ids...), WithMemorySink())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ids[0] = "mallory"
	got := ps.Identifiers()
	if got[0] != "alice" {
		t.Errorf("Identifiers()[0] = %q after caller mutation, want alice", got[0])
	}

	got[1] = "mallory"
	if ps.Identifiers()[1] != "bob" {
		t.Error("Identifiers() returned shared slice")
	}
}

func TestOptions_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		opt     Option
		wantErr string
	}{
		{"empty identifier", WithIdentifiers("alice", " "), "identifier cannot be empty"},
		{"zero cycle", WithCycleDuration(0), "cycle duration must be positive"},
		{"negative jitter", WithJitter(-time.Second), "jitter cannot be negative"},
		{"nil logger", WithLogger(nil), "logger cannot be nil"},
		{"ftp base url", WithFetchBaseURL("ftp://example.com/?u="), "must be http or https"},
		{"base url without host", WithFetchBaseURL("https:///?u="), "has no host"},
		{"empty header key", WithFetchHeader("", "v"), "header key cannot be empty"},
		{"zero fetch timeout", WithFetchTimeout(0), "fetch timeout must be positive"},
		{"empty field name", WithField("", "data.x"), "field name cannot be empty"},
		{"empty field path", WithField("followers", ""), "path cannot be empty"},
		{"influx missing bucket", WithInfluxSink("http://localhost:8086", "t", "org", ""), "requires url, org and bucket"},
		{"postgres missing dsn", WithPostgresSink("", "measurements"), "requires a dsn"},
		{"zero shutdown timeout", WithShutdownTimeout(0), "shutdown timeout must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(WithIdentifiers("alice"), WithMemorySink(), tt.opt)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New() error = %v, want to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestWithFetchOptions(t *testing.T) {
	ps, err := New(
		WithIdentifiers("alice"),
		WithMemorySink(),
		WithFetchBaseURL("https://example.com/profile?u="),
		WithFetchHeader("cookie", "sessionid=abc"),
		WithFetchHeader("cookie", "sessionid=def"),
		WithFetchTimeout(3*time.Second),
		WithField("followers", "data.followers"),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	cc := ps.clientConfig
	if cc.BaseURL != "https://example.com/profile?u=" {
		t.Errorf("BaseURL = %q", cc.BaseURL)
	}
	if cc.Headers["cookie"] != "sessionid=def" {
		t.Errorf("cookie header = %q, want last value", cc.Headers["cookie"])
	}
	if cc.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", cc.Timeout)
	}
	if len(cc.Fields) != 1 || cc.Fields["followers"] != "data.followers" {
		t.Errorf("Fields = %v", cc.Fields)
	}
}

func TestWithSinks_LastWins(t *testing.T) {
	ps, err := New(
		WithIdentifiers("alice"),
		WithMemorySink(),
		WithPostgresSink("postgres://localhost/stats", "profile_stats"),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if ps.SinkType() != sink.TypePostgres {
		t.Errorf("SinkType() = %q, want postgres", ps.SinkType())
	}
	if ps.sinkConfig.Table != "profile_stats" {
		t.Errorf("Table = %q, want profile_stats", ps.sinkConfig.Table)
	}

	ps, err = New(WithIdentifiers("alice"), WithInfluxSink("http://localhost:8086", "tok", "acme", "profiles"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if ps.SinkType() != sink.TypeInflux || ps.sinkConfig.Bucket != "profiles" {
		t.Errorf("sinkConfig = %+v", ps.sinkConfig)
	}
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ps, err := New(WithIdentifiers("alice"), WithMemorySink(), WithLogger(logger))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if ps.logger != logger {
		t.Error("logger was not set")
	}
}

func TestWithLogger_DefaultsToSlogDefault(t *testing.T) {
	ps, err := New(WithIdentifiers("alice"), WithMemorySink())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if ps.logger != slog.Default() {
		t.Error("logger should default to slog.Default()")
	}
}

func TestWithSnapshotCallback_NilIsSafe(t *testing.T) {
	ps, err := New(WithIdentifiers("alice"), WithMemorySink(), WithSnapshotCallback(nil))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if len(ps.snapCallbacks) != 0 {
		t.Errorf("callbacks = %d, want 0", len(ps.snapCallbacks))
	}
}
