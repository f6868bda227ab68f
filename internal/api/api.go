// Package api provides the HTTP server for JogPipe.
//
// It accepts reminder and user-profile writes, runs the write event for each, and
// exposes statistics, the notification log, manual pass triggers, health and metrics.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BTreeMap/JogPipe/internal/engine"
	"github.com/BTreeMap/JogPipe/internal/metrics"
	"github.com/BTreeMap/JogPipe/internal/store"
)

// Default HTTP server timeouts.
const (
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	engine *engine.Engine
	store  store.Store
	now    func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithClock overrides the clock handed to the write event.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer creates a Server.
func NewServer(eng *engine.Engine, st store.Store, opts ...Option) *Server {
	s := &Server{engine: eng, store: st, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(MonitorMiddleware)

	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Routes stay on the root router; a subrouter answers a method mismatch with 404.
	r.HandleFunc("/v1/users/{userId}", s.putUserHandler).Methods(http.MethodPut)
	r.HandleFunc("/v1/users/{userId}/stats", s.statsHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/users/{userId}/notifications", s.notificationsHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/users/{userId}/reminders", s.listRemindersHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/users/{userId}/reminders/{reminderId}", s.getReminderHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/users/{userId}/reminders/{reminderId}", s.putReminderHandler).Methods(http.MethodPut)
	r.HandleFunc("/v1/users/{userId}/reminders/{reminderId}", s.deleteReminderHandler).Methods(http.MethodDelete)
	r.HandleFunc("/v1/users/{userId}/reminders/{reminderId}/complete", s.completeReminderHandler).Methods(http.MethodPatch)
	r.HandleFunc("/v1/passes/{kind}", s.runPassHandler).Methods(http.MethodPost)
	return r
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// MonitorMiddleware records request counts and durations keyed by route template.
func MonitorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		metrics.HTTPRequestsTotal.WithLabelValues(path, r.Method, http.StatusText(ww.statusCode)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())
	})
}

// ListenAndServe serves h on addr until ctx is cancelled, then shuts down gracefully.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, readTimeout, writeTimeout, shutdownTimeout time.Duration) error {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.ListenAndServe: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("Server.ListenAndServe: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server.ListenAndServe: shutdown failed", "error", err)
		return err
	}
	return nil
}
