// Package api exposes the gateway's minimal HTTP read/control surface:
// live snapshots, device-enable flags, log time-series queries, log file
// listing/download, and alarm threshold read/write. Everything here is a
// thin adapter over Live Cache, the Family Loader, and the Alarm Engine —
// no business logic lives in this package.
package api

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/modbus-edge/gateway/internal/alarm"
	"github.com/modbus-edge/gateway/internal/family"
	"github.com/modbus-edge/gateway/internal/livecache"
	"github.com/modbus-edge/gateway/pkg/log"
)

var alog = log.Component("api")

// HealthSource reports whether the poller is keeping up with its cadence.
type HealthSource interface {
	LastTickAge() (time.Duration, bool)
	Cadence() time.Duration
}

// Options configures a Server.
type Options struct {
	Addr        string
	ConfigDir   string
	LogDir      string
	LiveCache   *livecache.Cache
	Families    *family.Loader
	Alarm       *alarm.Engine
	Health      HealthSource
	DisableHSTS bool
}

// Server is the gateway's HTTP API.
type Server struct {
	opts   Options
	router *mux.Router
	http   *http.Server
}

// New builds a Server and mounts every route.
func New(opts Options) *Server {
	s := &Server{opts: opts, router: mux.NewRouter()}
	s.mountRoutes()
	return s
}

func (s *Server) mountRoutes() {
	r := s.router.PathPrefix("/api").Subrouter()
	r.StrictSlash(true)

	r.HandleFunc("/snapshots", s.getSnapshots).Methods(http.MethodGet)
	r.HandleFunc("/snapshots/{tankId}", s.getSnapshot).Methods(http.MethodGet)

	r.HandleFunc("/devices", s.getDevices).Methods(http.MethodGet)
	r.HandleFunc("/devices/enable", s.getEnableMap).Methods(http.MethodGet)
	r.HandleFunc("/devices/enable", s.putEnableMap).Methods(http.MethodPut, http.MethodPost)

	r.HandleFunc("/logs", s.listLogs).Methods(http.MethodGet)
	r.HandleFunc("/logs/series", s.logSeries).Methods(http.MethodGet)
	r.HandleFunc("/logs/download/{file}", s.downloadLog).Methods(http.MethodGet)

	r.HandleFunc("/alarms/thresholds", s.getThresholds).Methods(http.MethodGet)
	r.HandleFunc("/alarms/thresholds", s.putThresholds).Methods(http.MethodPut, http.MethodPost)

	s.router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	s.router.Handle("/metrics", metricsHandler())

	s.router.Use(securityHeaders(s.opts.DisableHSTS))
	s.router.Use(handlers.CompressHandler)
	s.router.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
	s.router.Use(handlers.CORS(
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedOrigins([]string{"*"}),
	))
}

// securityHeaders sets a conservative baseline header set on every
// response. HSTS is skipped when disableHSTS is set (e.g. plain-HTTP
// deployments behind a reverse proxy that already terminates TLS).
func securityHeaders(disableHSTS bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			if !disableHSTS {
				w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Handler returns the root mux.Router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving on opts.Addr in the background.
func (s *Server) Start() error {
	handler := handlers.CustomLoggingHandler(io.Discard, s.router, func(_ io.Writer, params handlers.LogFormatterParams) {
		alog.Debugf("%s %s (%d, %dms)", params.Request.Method, params.URL.RequestURI(),
			params.StatusCode, time.Since(params.TimeStamp).Milliseconds())
	})

	s.http = &http.Server{
		Addr:         s.opts.Addr,
		Handler:      handler,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
	}

	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}

	go func() {
		if err := s.http.Serve(listener); err != nil && err != http.ErrServerClosed {
			alog.Errorf("http server stopped: %v", err)
		}
	}()
	alog.Infof("api listening on %s", s.opts.Addr)
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
