// Package server wires an http.Handler up with request logging,
// OpenCensus tracing, and liveness/readiness health checks, and
// exposes a driver.Server seam for how it actually binds a socket.
// Adapted from thatique-awan/server/server.go, generalized only in
// that the health check route names are the ones the transfer
// coordinator's clients look for (/health, /__heartbeat__).
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.opencensus.io/trace"

	"github.com/thatique/sendcore/server/driver"
	"github.com/thatique/sendcore/server/health"
	"github.com/thatique/sendcore/server/httplistener"
	"github.com/thatique/sendcore/server/requestlog"
)

// Server is a preconfigured HTTP server with diagnostic hooks. The
// zero value is a server with the default options.
type Server struct {
	reqlog        requestlog.Logger
	handler       http.Handler
	healthHandler health.Handler
	te            trace.Exporter
	sampler       trace.Sampler
	once          sync.Once
	driver        driver.Server
}

// Options configures New.
type Options struct {
	// RequestLogger logs every request served.
	RequestLogger requestlog.Logger

	// HealthChecks are run when /health or /__heartbeat__ is requested.
	HealthChecks []health.Checker

	// TraceExporter exports sampled trace spans.
	TraceExporter trace.Exporter

	// DefaultSamplingPolicy decides whether a span is exported.
	DefaultSamplingPolicy trace.Sampler

	// Driver serves HTTP requests; defaults to NewDefaultDriver().
	Driver driver.Server
}

// New creates a new server. New(h, nil) uses default options.
func New(h http.Handler, opts *Options) *Server {
	srv := &Server{handler: h}
	if opts != nil {
		srv.reqlog = opts.RequestLogger
		srv.te = opts.TraceExporter
		for _, c := range opts.HealthChecks {
			srv.healthHandler.Add(c)
		}
		srv.sampler = opts.DefaultSamplingPolicy
		srv.driver = opts.Driver
	}
	return srv
}

func (srv *Server) init() {
	srv.once.Do(func() {
		if srv.te != nil {
			trace.RegisterExporter(srv.te)
		}
		if srv.sampler != nil {
			trace.ApplyConfig(trace.Config{DefaultSampler: srv.sampler})
		}
		if srv.driver == nil {
			srv.driver = NewDefaultDriver()
		}
		if srv.handler == nil {
			srv.handler = http.DefaultServeMux
		}
	})
}

// ListenAndServe wraps the configured handler with request logging and
// tracing, mounts /health and /__heartbeat__, and serves addr.
func (srv *Server) ListenAndServe(addr string) error {
	srv.init()

	mux := http.NewServeMux()
	mux.Handle("/health", &srv.healthHandler)
	mux.Handle("/__heartbeat__", &srv.healthHandler)

	h := srv.handler
	if srv.reqlog != nil {
		h = requestlog.NewHandler(srv.reqlog, h)
	}
	h = tracingHandler{h}
	h = withRequestID(h)
	mux.Handle("/", h)

	return srv.driver.ListenAndServe(addr, mux)
}

// Shutdown gracefully shuts down the server without interrupting any
// active connections.
func (srv *Server) Shutdown(ctx context.Context) error {
	if srv.driver == nil {
		return nil
	}
	return srv.driver.Shutdown(ctx)
}

type tracingHandler struct {
	h http.Handler
}

func (h tracingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), r.URL.Host+r.URL.Path)
	defer span.End()
	h.h.ServeHTTP(w, r.WithContext(ctx))
}

// DefaultDriver implements driver.Server with a plain http.Server.
type DefaultDriver struct {
	Net    string // "tcp" or "unix"
	Server http.Server
}

// NewDefaultDriver creates a driver with sensible timeouts.
func NewDefaultDriver() *DefaultDriver {
	return &DefaultDriver{
		Net: "tcp",
		Server: http.Server{
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// ListenAndServe opens a listener on addr and serves h through it.
func (dd *DefaultDriver) ListenAndServe(addr string, h http.Handler) error {
	ln, err := httplistener.NewListener(dd.Net, addr)
	if err != nil {
		return err
	}
	dd.Server.Handler = h
	return dd.Server.Serve(ln)
}

// Shutdown gracefully shuts down the underlying http.Server.
func (dd *DefaultDriver) Shutdown(ctx context.Context) error {
	return dd.Server.Shutdown(ctx)
}
