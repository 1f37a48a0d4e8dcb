// Package config provides YAML configuration parsing for pulsestats.
//
// This package enables running pulsestats as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	identifiers: [alice, bob, carol]
//	cycle_duration: 1h
//	jitter: 30s
//
//	fetch:
//	  cookie: ${IG_COOKIE}
//	  app_id: ${IG_APP_ID}
//
//	sink:
//	  type: influx
//	  url: ${INFLUX_URL}
//	  token: ${INFLUX_TOKEN}
//	  org: acme
//	  bucket: profiles
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/pulsestats/internal/poller"
	"github.com/jpalmerr/pulsestats/internal/sink"
	"github.com/jpalmerr/pulsestats/internal/telemetry"
)

// minCycleDuration is the shortest allowed cycle.
const minCycleDuration = 1 * time.Second

// Config is the root configuration structure for pulsestats.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Identifiers is the ordered list of profiles to poll. Accepts a YAML
	// list, or a string holding a JSON array or comma-separated names.
	Identifiers Identifiers `yaml:"identifiers"`

	// CycleDuration is how long one pass over every identifier takes.
	// Accepts duration strings ("1h") or a whole number of seconds.
	CycleDuration Duration `yaml:"cycle_duration"`

	// Jitter bounds the random offset applied to each due time. Defaults to 0.
	Jitter Duration `yaml:"jitter"`

	// Debug echoes every captured snapshot to the log.
	Debug bool `yaml:"debug"`

	// LogLevel is debug, info, warn or error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	// LogFormat is json or text. Defaults to json.
	LogFormat string `yaml:"log_format"`

	// MetricsAddr enables the HTTP listener when set, e.g. ":9090".
	MetricsAddr string `yaml:"metrics_addr"`

	// ShutdownTimeout bounds graceful shutdown. Defaults to 10s.
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`

	Fetch FetchConfig `yaml:"fetch"`
	Sink  SinkConfig  `yaml:"sink"`
}

// FetchConfig configures the profile fetch client.
type FetchConfig struct {
	// BaseURL is the prefix the identifier is appended to.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	BaseURL string `yaml:"base_url"`

	// Cookie is sent as the "cookie" header. Supports substitution.
	Cookie string `yaml:"cookie"`

	// AppID is sent as the "x-ig-app-id" header. Supports substitution.
	AppID string `yaml:"app_id"`

	// Timeout bounds a single request. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// Headers are extra request headers. Values support substitution.
	Headers map[string]string `yaml:"headers"`

	// Fields maps measurement names to JSON dot paths in the response.
	// Defaults to followers, following and posts.
	Fields map[string]string `yaml:"fields"`
}

// SinkConfig selects where measurements are written.
type SinkConfig struct {
	// Type is influx, postgres or memory.
	Type string `yaml:"type"`

	// InfluxDB v2 settings. All support substitution.
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`

	// PostgreSQL settings. DSN supports substitution.
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
//
// Accepts Go duration strings ("90s", "1h30m") and bare integers, which are
// read as seconds. Environment variables are expanded first, so
// "${IG_CYCLE_DUR_SEC}" works.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	expanded, err := expandEnvVars(s)
	if err != nil {
		return err
	}
	expanded = strings.TrimSpace(expanded)

	if secs, err := strconv.ParseInt(expanded, 10, 64); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}

	parsed, err := time.ParseDuration(expanded)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Identifiers is an ordered list of profile identifiers.
type Identifiers []string

// UnmarshalYAML implements yaml.Unmarshaler for Identifiers.
//
// A sequence is taken as is. A scalar is expanded for environment variables
// and then read as a JSON array (`["alice","bob"]`) or a comma-separated list.
func (ids *Identifiers) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*ids = list
		return nil

	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		expanded, err := expandEnvVars(s)
		if err != nil {
			return err
		}
		expanded = strings.TrimSpace(expanded)

		if strings.HasPrefix(expanded, "[") {
			// a JSON array is also a YAML flow sequence
			var list []string
			if err := yaml.Unmarshal([]byte(expanded), &list); err != nil {
				return fmt.Errorf("invalid identifier list %q: %w", expanded, err)
			}
			*ids = list
			return nil
		}

		var list []string
		for _, part := range strings.Split(expanded, ",") {
			if p := strings.TrimSpace(part); p != "" {
				list = append(list, p)
			}
		}
		*ids = list
		return nil
	}

	return fmt.Errorf("identifiers must be a list or a string, got %v", node.Kind)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		varName := submatches[1]
		hasDefault := submatches[2] != ""

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return submatches[3]
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// tableNamePattern matches an optionally schema-qualified SQL identifier.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Load reads and parses a YAML configuration file.
//
// Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in fetch and sink string values, header
// values, durations and a string-form identifier list. Defaults are applied
// before validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = Duration(10 * time.Second)
	}
	if c.Fetch.BaseURL == "" {
		c.Fetch.BaseURL = poller.DefaultBaseURL
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = Duration(10 * time.Second)
	}
	if c.Fetch.Headers == nil {
		c.Fetch.Headers = make(map[string]string)
	}
	for k, v := range poller.DefaultHeaders {
		if _, ok := c.Fetch.Headers[k]; !ok {
			c.Fetch.Headers[k] = v
		}
	}
	if len(c.Fetch.Fields) == 0 {
		c.Fetch.Fields = make(map[string]string, len(poller.DefaultFields))
		for k, v := range poller.DefaultFields {
			c.Fetch.Fields[k] = v
		}
	}
	if c.Sink.Type == sink.TypePostgres && c.Sink.Table == "" {
		c.Sink.Table = sink.DefaultPostgresTable
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if len(c.Identifiers) == 0 {
		return errors.New("identifiers: at least one identifier is required")
	}
	seen := make(map[string]int, len(c.Identifiers))
	for i, id := range c.Identifiers {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("identifiers[%d]: identifier cannot be empty", i)
		}
		if first, dup := seen[id]; dup {
			return fmt.Errorf("identifiers[%d]: duplicate identifier %q (first at identifiers[%d])", i, id, first)
		}
		seen[id] = i
	}

	if c.CycleDuration == 0 {
		return errors.New("cycle_duration is required")
	}
	if c.CycleDuration.Duration() < minCycleDuration {
		return fmt.Errorf("cycle_duration must be at least %s, got %s", minCycleDuration, c.CycleDuration.Duration())
	}
	if c.Jitter.Duration() < 0 {
		return fmt.Errorf("jitter cannot be negative, got %s", c.Jitter.Duration())
	}
	if c.Jitter.Duration() >= c.CycleDuration.Duration() {
		return fmt.Errorf("jitter (%s) must be smaller than cycle_duration (%s)", c.Jitter.Duration(), c.CycleDuration.Duration())
	}
	if c.ShutdownTimeout.Duration() <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive, got %s", c.ShutdownTimeout.Duration())
	}

	if _, err := telemetry.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("log_format must be json or text, got %q", c.LogFormat)
	}

	if err := c.Fetch.expandAndValidate(); err != nil {
		return err
	}
	return c.Sink.expandAndValidate()
}

func (f *FetchConfig) expandAndValidate() error {
	for _, field := range []struct {
		name string
		val  *string
	}{
		{"fetch.base_url", &f.BaseURL},
		{"fetch.cookie", &f.Cookie},
		{"fetch.app_id", &f.AppID},
	} {
		expanded, err := expandEnvVars(*field.val)
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.val = expanded
	}

	parsedURL, err := url.Parse(f.BaseURL)
	if err != nil {
		return fmt.Errorf("fetch.base_url: invalid url: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("fetch.base_url: url scheme must be http or https, got %q", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return errors.New("fetch.base_url: url must have a host")
	}

	for k, v := range f.Headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("fetch.headers[%s]: %w", k, err)
		}
		f.Headers[k] = expanded
	}

	if f.Timeout.Duration() < time.Second {
		return fmt.Errorf("fetch.timeout must be at least 1s, got %s", f.Timeout.Duration())
	}

	for name, path := range f.Fields {
		if strings.TrimSpace(name) == "" {
			return errors.New("fetch.fields: field name cannot be empty")
		}
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("fetch.fields[%s]: path cannot be empty", name)
		}
	}
	return nil
}

func (s *SinkConfig) expandAndValidate() error {
	for _, field := range []struct {
		name string
		val  *string
	}{
		{"sink.url", &s.URL},
		{"sink.token", &s.Token},
		{"sink.org", &s.Org},
		{"sink.bucket", &s.Bucket},
		{"sink.dsn", &s.DSN},
	} {
		expanded, err := expandEnvVars(*field.val)
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.val = expanded
	}

	switch s.Type {
	case sink.TypeInflux:
		if s.URL == "" {
			return errors.New("sink.url is required for influx")
		}
		parsedURL, err := url.Parse(s.URL)
		if err != nil || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") {
			return fmt.Errorf("sink.url must be an http or https url, got %q", s.URL)
		}
		if s.Org == "" {
			return errors.New("sink.org is required for influx")
		}
		if s.Bucket == "" {
			return errors.New("sink.bucket is required for influx")
		}
	case sink.TypePostgres:
		if s.DSN == "" {
			return errors.New("sink.dsn is required for postgres")
		}
		if !tableNamePattern.MatchString(s.Table) {
			return fmt.Errorf("sink.table %q is not a valid table name", s.Table)
		}
	case sink.TypeMemory:
	case "":
		return errors.New("sink.type is required (influx, postgres or memory)")
	default:
		return fmt.Errorf("sink.type must be influx, postgres or memory, got %q", s.Type)
	}
	return nil
}
