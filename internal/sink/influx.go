package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// InfluxTagKey is the tag carrying the identifier on every point.
const InfluxTagKey = "handle"

// influxValueField is the single field written on every point.
const influxValueField = "value"

// InfluxConfig configures an [InfluxSink].
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxSink writes measurements to an InfluxDB v2 bucket.
//
// Each measurement becomes one point named after the measurement, tagged
// with the identifier and holding a single float "value" field. Writes use
// the blocking API, so a nil error means the server accepted the batch.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	logger   *slog.Logger
}

// NewInfluxSink creates an [InfluxSink]. No request is made until the first
// Write.
func NewInfluxSink(_ context.Context, cfg InfluxConfig, logger *slog.Logger) (*InfluxSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("influx: url is required")
	}
	if cfg.Org == "" {
		return nil, errors.New("influx: org is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("influx: bucket is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := influxdb2.DefaultOptions().SetPrecision(time.Second)
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	logger.Info("influx sink configured", "url", cfg.URL, "org", cfg.Org, "bucket", cfg.Bucket)

	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		logger:   logger,
	}, nil
}

// Write converts batch to points and writes them in one request.
func (s *InfluxSink) Write(ctx context.Context, batch []Measurement) error {
	if len(batch) == 0 {
		return nil
	}

	points := make([]*write.Point, 0, len(batch))
	for _, m := range batch {
		points = append(points, influxdb2.NewPoint(
			m.Name,
			map[string]string{InfluxTagKey: m.Identifier},
			map[string]interface{}{influxValueField: m.Value},
			m.Time,
		))
	}

	if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

// Close closes the InfluxDB client. Blocking writes have no buffer, so every
// write that returned has already been flushed.
func (s *InfluxSink) Close(_ context.Context) error {
	s.client.Close()
	s.logger.Info("influx sink closed")
	return nil
}
