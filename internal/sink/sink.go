package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Sink types accepted by [Open].
const (
	TypeInflux   = "influx"
	TypePostgres = "postgres"
	TypeMemory   = "memory"
)

// Measurement is a single numeric value captured for one identifier.
type Measurement struct {
	// Name is the measurement name, e.g. "followers".
	Name string `json:"name"`

	// Identifier is the profile the value belongs to.
	Identifier string `json:"identifier"`

	// Value is the captured value.
	Value float64 `json:"value"`

	// Time is the capture timestamp shared by every measurement in a batch.
	Time time.Time `json:"time"`
}

// Sink writes measurement batches durably.
//
// Implementations must be safe for concurrent use: the scheduler writes
// batches for different identifiers from different goroutines.
type Sink interface {
	// Write persists batch, returning only once it has been flushed.
	Write(ctx context.Context, batch []Measurement) error

	// Close releases the underlying transport. Callers must not Write
	// after Close.
	Close(ctx context.Context) error
}

// Config selects and configures a sink backend.
type Config struct {
	// Type is one of "influx", "postgres" or "memory".
	Type string

	// InfluxDB settings.
	URL    string
	Token  string
	Org    string
	Bucket string

	// PostgreSQL settings.
	DSN   string
	Table string
}

// Open creates the sink described by cfg.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Type {
	case TypeInflux:
		return NewInfluxSink(ctx, InfluxConfig{
			URL:    cfg.URL,
			Token:  cfg.Token,
			Org:    cfg.Org,
			Bucket: cfg.Bucket,
		}, logger)
	case TypePostgres:
		return NewPostgresSink(ctx, PostgresConfig{DSN: cfg.DSN, Table: cfg.Table}, logger)
	case TypeMemory:
		return NewMemorySink(), nil
	default:
		return nil, fmt.Errorf("unknown sink type %q (expected %s, %s or %s)", cfg.Type, TypeInflux, TypePostgres, TypeMemory)
	}
}
