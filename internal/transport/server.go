package transport

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/afengine/afengine/internal/focus"
)

// Server is the HTTP+WebSocket front end over a focus.Engine.
type Server struct {
	http *http.Server
	log  zerolog.Logger
	hub  *Hub
}

// ServerOptions configures Server construction.
type ServerOptions struct {
	Addr           string
	ReadTimeout    time.Duration
	IdleTimeout    time.Duration
	CORSOrigins    string
	RateLimitRPS   float64
	RateLimitBurst int

	Engine     *focus.Engine
	Hub        *Hub
	Resolver   DisplayResolver
	Automotive bool

	OpenAPISpec []byte
	Log         zerolog.Logger

	MQTTHealth    HealthChecker
	AuditDBHealth HealthChecker
	Version       string
	StartTime     time.Time
}

// NewServer wires the chi router: ambient middleware stack first, then the
// focus endpoints, health, metrics, and the embedded OpenAPI document.
func NewServer(opts ServerOptions) *Server {
	r := chi.NewRouter()

	var corsOrigins []string
	if opts.CORSOrigins != "" {
		for _, o := range strings.Split(opts.CORSOrigins, ",") {
			if s := strings.TrimSpace(o); s != "" {
				corsOrigins = append(corsOrigins, s)
			}
		}
	}

	r.Use(RequestID)
	r.Use(CORSWithOrigins(corsOrigins))
	r.Use(RateLimiter(opts.RateLimitRPS, opts.RateLimitBurst))
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))

	health := NewHealthHandler(opts.Version, opts.StartTime, opts.MQTTHealth, opts.AuditDBHealth)
	r.Get("/api/v1/healthz", health.ServeHTTP)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/api/v1/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(opts.OpenAPISpec)
	})

	h := NewHandlers(opts.Engine, opts.Hub, opts.Resolver, opts.Automotive, opts.Log)
	r.Route("/api/v1/focus", func(r chi.Router) {
		r.Get("/request/ws", h.RequestFocusWS)
		r.Post("/release", h.ReleaseFocus)
		r.Get("/status", h.GetStatus)
		r.Get("/status/ws", h.GetStatusWS)
	})

	srv := &http.Server{
		Addr:        opts.Addr,
		Handler:     r,
		ReadTimeout: opts.ReadTimeout,
		IdleTimeout: opts.IdleTimeout,
		// WriteTimeout left at 0: subscription connections are long-lived.
		WriteTimeout: 0,
	}

	return &Server{http: srv, log: opts.Log, hub: opts.Hub}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	s.hub.CloseAll()
	return s.http.Shutdown(ctx)
}
