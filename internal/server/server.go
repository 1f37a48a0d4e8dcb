package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/pulsestats/internal/poller"
	"github.com/jpalmerr/pulsestats/internal/sink"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	readHeaderTimeout = 5 * time.Second
)

// ScheduleSource exposes the scheduler's current state.
type ScheduleSource interface {
	Schedule() []poller.Entry
	Cadence() time.Duration
}

// Feed delivers measurement batches as they are written.
type Feed interface {
	Subscribe() <-chan []sink.Measurement
	Unsubscribe(ch <-chan []sink.Measurement)
}

// scheduleResponse is the body of GET /api/schedule.
type scheduleResponse struct {
	Cadence        string         `json:"cadence"`
	CadenceSeconds float64        `json:"cadence_seconds"`
	Entries        []poller.Entry `json:"entries"`
}

// Server serves metrics, health, schedule and event endpoints. It is an
// opt-in operational listener; polling and sink writes never depend on it.
//
// The listener is bound synchronously in [Server.Start] so a bad address
// fails startup instead of surfacing later in a log line.
type Server struct {
	addr     string
	gatherer prometheus.Gatherer
	schedule ScheduleSource
	feed     Feed
	logger   *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	cancel     context.CancelFunc
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - addr: listen address, e.g. ":9090" or "127.0.0.1:0"
//   - gatherer: source for /metrics
//   - schedule: source for /api/schedule (may be nil)
//   - feed: source for /api/events (may be nil)
//   - logger: logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(addr string, gatherer prometheus.Gatherer, schedule ScheduleSource, feed Feed, logger *slog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:     addr,
		gatherer: gatherer,
		schedule: schedule,
		feed:     feed,
		logger:   logger,
	}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.schedule != nil {
		mux.HandleFunc("/api/schedule", s.handleSchedule)
	}
	if s.feed != nil {
		mux.HandleFunc("/api/events", s.handleEvents)
	}
	return mux
}

// Start binds the listener and serves requests in a background goroutine.
//
// Start is non-blocking. Returns an error if the address cannot be bound.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer != nil {
		return errors.New("server already started")
	}

	// create listener first to verify address availability synchronously
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", s.addr, err)
	}

	// request contexts derive from baseCtx so Stop can end SSE streams
	baseCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext: func(_ net.Listener) context.Context {
			return baseCtx
		},
	}

	srv := s.httpServer
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("http server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts the server down, waiting for in-flight requests until
// ctx expires. Safe to call before Start and more than once.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, cancel := s.httpServer, s.cancel
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleSchedule returns every identifier's next due time as JSON.
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cadence := s.schedule.Cadence()
	resp := scheduleResponse{
		Cadence:        cadence.String(),
		CadenceSeconds: cadence.Seconds(),
		Entries:        s.schedule.Schedule(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode schedule response", "error", err)
	}
}

// handleEvents streams written measurement batches via Server-Sent Events.
//
// The handler uses write deadlines so a slow or vanished client cannot pin
// the goroutine past shutdown.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.feed.Subscribe()
	defer s.feed.Unsubscribe(ch)

	// commit headers so clients see the stream open before the first batch
	if err := rc.Flush(); err != nil {
		return
	}

	for {
		select {
		case batch, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(batch)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on client disconnect and on Stop
			return
		}
	}
}
