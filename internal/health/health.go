// Package health serves the diagnostics listener.
//
// Three routes are exposed:
//
//   - /healthz: liveness probe; always 200 while the process serves HTTP.
//   - /readyz:  readiness probe; 200 only when every [Checker] passes.
//   - /metrics: Prometheus exposition, when a metrics handler is supplied.
//
// Probe responses are JSON objects with a top-level "status" field ("ok" or
// "fail") and a "checks" map holding the result of each named checker.
package health

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

	"github.com/MrWong99/kaiwa/internal/observe"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 2 * time.Second

// Checker is a named readiness check. Check returns nil when the component
// is ready.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// CaptureRunning reports ready while running returns true. Capture is
// muted during playback, so a paused stream still counts as running when
// paused reports true.
func CaptureRunning(running, paused func() bool) Checker {
	return Checker{Name: "capture", Check: func(context.Context) error {
		if running() || (paused != nil && paused()) {
			return nil
		}
		return errors.New("capture stream not running")
	}}
}

// StylesLoaded reports ready once count returns at least one voice style.
func StylesLoaded(count func() int) Checker {
	return Checker{Name: "voice_styles", Check: func(context.Context) error {
		if n := count(); n < 1 {
			return errors.New("no voice styles loaded")
		}
		return nil
	}}
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that evaluates checkers on each /readyz request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz runs every checker concurrently, each under a [checkTimeout]
// deadline derived from the request context, and returns 503 if any fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	errs := make([]error, len(h.checkers))
	var wg sync.WaitGroup
	for i, c := range h.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			errs[i] = c.Check(ctx)
		}()
	}
	wg.Wait()

	res := result{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK
	for i, c := range h.checkers {
		if errs[i] != nil {
			res.Checks[c.Name] = "fail: " + errs[i].Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "ok"
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}

// Server is the diagnostics HTTP listener.
type Server struct {
	srv *http.Server
	log *slog.Logger
}

// ServerOption configures a [Server].
type ServerOption func(*serverOptions)

type serverOptions struct {
	metrics    http.Handler
	instrument *observe.Metrics
	log        *slog.Logger
}

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(o *serverOptions) { o.metrics = h }
}

// WithInstrumentation records request spans and durations into m.
func WithInstrumentation(m *observe.Metrics) ServerOption {
	return func(o *serverOptions) { o.instrument = m }
}

// WithServerLogger sets the logger. Defaults to slog.Default().
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(o *serverOptions) { o.log = l }
}

// NewServer builds a diagnostics server for addr serving h.
func NewServer(addr string, h *Handler, opts ...ServerOption) *Server {
	o := serverOptions{log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	known := []string{"/healthz", "/readyz"}
	if o.metrics != nil {
		mux.Handle("GET /metrics", o.metrics)
		known = append(known, "/metrics")
	}

	var handler http.Handler = mux
	if o.instrument != nil {
		handler = observe.Middleware(o.instrument, o.log, known...)(mux)
	}

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: o.log,
	}
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Run listens until ctx is cancelled, then shuts the listener down. A
// cancelled ctx is a normal stop and yields nil.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("health: listen %s: %w", s.srv.Addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("diagnostics listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("health: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("health: shutdown: %w", err)
	}
	<-errCh
	return nil
}
