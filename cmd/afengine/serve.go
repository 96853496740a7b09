package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	afengine "github.com/afengine/afengine"
	"github.com/afengine/afengine/internal/auditlog"
	"github.com/afengine/afengine/internal/config"
	"github.com/afengine/afengine/internal/focus"
	"github.com/afengine/afengine/internal/session"
	"github.com/afengine/afengine/internal/transport"
)

var serveOverrides config.Overrides

func init() {
	serveCmd.Flags().StringVar(&serveOverrides.EnvFile, "env-file", "", "Path to .env file (default: .env)")
	serveCmd.Flags().StringVar(&serveOverrides.HTTPAddr, "listen", "", "HTTP listen address (overrides HTTP_ADDR)")
	serveCmd.Flags().StringVar(&serveOverrides.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	serveCmd.Flags().StringVar(&serveOverrides.PolicyFile, "policy-file", "", "Path to the policy JSON file (overrides POLICY_FILE)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the focus arbitration service",
	RunE:  runServe,
}

// validDisplays is the fixed closed set of display ids, per §6.
var validDisplays = []focus.DisplayID{0, 1, 2}

func runServe(cmd *cobra.Command, args []string) error {
	startTime := time.Now()

	cfg, err := config.Load(serveOverrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("invalid config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Str("commit", commit).Str("built", buildTime).Msg("afengine starting")

	// The embedded OpenAPI document is validated at startup: a broken spec
	// is a ConfigError and the service refuses to come up (§7).
	loader := openapi3.NewLoader()
	spec, err := loader.LoadFromData(afengine.OpenAPISpec)
	if err != nil {
		log.Fatal().Err(err).Msg("embedded openapi document failed to parse")
	}
	if err := spec.Validate(loader.Context); err != nil {
		log.Fatal().Err(err).Msg("embedded openapi document failed validation")
	}

	policy, err := focus.Load(cfg.PolicyFile, log.With().Str("component", "policy").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load policy file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopWatch := make(chan struct{})
	go focus.WatchForChanges(cfg.PolicyFile, log.With().Str("component", "policy").Logger(), stopWatch)
	defer close(stopWatch)

	metrics := focus.NewMetrics(prometheus.DefaultRegisterer)

	var engine *focus.Engine
	hub := transport.NewHub(log.With().Str("component", "transport").Logger(), func(bucket focus.Bucket, displayID focus.DisplayID, appID string) {
		if bucket == focus.BucketRequestFocus {
			engine.HandleCancellation(displayID, appID)
		}
	})
	registry := focus.NewRegistry(hub)
	engine = focus.NewEngine(policy, registry, validDisplays, metrics, log.With().Str("component", "engine").Logger())

	var auditLogger *auditlog.Logger
	if cfg.DatabaseURL != "" {
		auditLogger, err = auditlog.Connect(ctx, cfg.DatabaseURL, log.With().Str("component", "auditlog").Logger())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect audit log database")
		}
		defer auditLogger.Close()
		engine.SetAuditSink(auditLogger)
	}

	var resolver transport.DisplayResolver
	var feed *session.MQTTFeed
	if cfg.Automotive {
		res := session.NewFixedAutomotiveResolver()
		resolver = res
		feed, err = session.Connect(session.FeedOptions{
			BrokerURL: cfg.SessionMQTTBrokerURL,
			ClientID:  cfg.SessionMQTTClientID,
			Topic:     cfg.SessionMQTTTopic,
			Username:  cfg.SessionMQTTUsername,
			Password:  cfg.SessionMQTTPassword,
			Log:       log.With().Str("component", "sessionfeed").Logger(),
		}, res)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect session feed")
		}
		defer feed.Close()
	}

	var mqttHealth transport.HealthChecker
	if feed != nil {
		mqttHealth = mqttHealthAdapter{feed}
	}
	var auditHealth transport.HealthChecker
	if auditLogger != nil {
		auditHealth = auditLogger
	}

	srv := transport.NewServer(transport.ServerOptions{
		Addr:           cfg.HTTPAddr,
		ReadTimeout:    cfg.ReadTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Engine:         engine,
		Hub:            hub,
		Resolver:       resolver,
		Automotive:     cfg.Automotive,
		OpenAPISpec:    afengine.OpenAPISpec,
		Log:            log.With().Str("component", "transport").Logger(),
		MQTTHealth:     mqttHealth,
		AuditDBHealth:  auditHealth,
		Version:        version,
		StartTime:      startTime,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server failed")
		}
	}

	engine.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type mqttHealthAdapter struct{ feed *session.MQTTFeed }

func (a mqttHealthAdapter) HealthCheck() error {
	if !a.feed.IsConnected() {
		return fmt.Errorf("session feed not connected")
	}
	return nil
}
