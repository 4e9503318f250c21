// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package kernel provides the coherence kernel service.
//
// This package contains the main service type that coordinates all
// components: HTTP routing, the model invoker and its provider clients,
// the turn engine with its signal modules, the contribution ledger, and
// observability infrastructure.
//
// # Usage
//
//	svc, err := kernel.New("config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/CoherenceKernel/services/kernel/agents"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/config"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/datatypes"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/engine"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/invoker"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/ledger"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/middleware"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/observability"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/routes"
	"github.com/AleutianAI/CoherenceKernel/services/llm"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the kernel service.
//
// # Description
//
// Service abstracts the kernel lifecycle, enabling testing and
// alternative implementations.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and
// should only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Description
//
// service coordinates:
//   - HTTP routing via Gin
//   - LLM provider clients behind the model invoker
//   - The turn engine with its signal modules and repair loop
//   - The badger-backed contribution ledger
//   - Optional Weaviate and InfluxDB integrations
//   - OpenTelemetry tracing and Prometheus metrics
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config     *config.Config
	configPath string

	router         *gin.Engine
	registry       *llm.Registry
	engine         *engine.Engine
	store          ledger.Store
	sink           *ledger.InfluxSink
	weaviateClient *weaviate.Client
	limiter        *middleware.SessionLimiter
	watcher        *config.Watcher

	tracerCleanup func(context.Context)
	cancel        context.CancelFunc
}

var _ Service = (*service)(nil)

// =============================================================================
// Constructor
// =============================================================================

// New creates a kernel Service from the configuration file at path.
//
// # Description
//
// New initializes all kernel components:
//  1. Loads and validates configuration (path may be empty for defaults)
//  2. Initializes OpenTelemetry tracing when an OTLP endpoint is set
//  3. Initializes Prometheus metrics
//  4. Opens the contribution ledger (badger, or in-memory without a path)
//  5. Connects optional Weaviate and InfluxDB backends
//  6. Registers LLM provider clients and builds the agents
//  7. Starts the threshold hot-reload watcher
//  8. Sets up HTTP routes
//
// Optional backends that fail to initialize log a warning and the
// kernel runs without them; a broken ledger or configuration is fatal.
func New(configPath string) (Service, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	s := &service{
		config:     cfg,
		configPath: configPath,
		cancel:     cancel,
	}

	// Initialize OpenTelemetry tracer
	if cfg.OTLPEndpoint != "" {
		cleanup, err := s.initTracer()
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	// Initialize Prometheus metrics
	observability.InitMetrics()

	// Open the contribution ledger
	if err := s.initLedger(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open the contribution ledger: %w", err)
	}

	// Optional analytics sink
	if cfg.Influx.URL != "" {
		s.sink = ledger.NewInfluxSink(cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket)
		slog.Info("InfluxDB analytics sink enabled", "url", cfg.Influx.URL)
	}

	// Optional knowledge graph
	if err := s.initWeaviate(bgCtx); err != nil {
		slog.Warn("Weaviate initialization failed, running in lightweight mode",
			"error", err)
	}

	// Provider clients
	s.initProviders()

	// Threshold hot reload
	s.watcher = config.NewWatcher(configPath, cfg.Thresholds)
	if err := s.watcher.Start(bgCtx); err != nil {
		slog.Warn("Threshold watcher failed to start, thresholds are static",
			"error", err)
	}

	// Rate limiting
	s.limiter = middleware.NewSessionLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
	s.limiter.Start(bgCtx)

	// Engine assembly
	s.initEngine()

	// Setup HTTP router
	s.initRouter(bgCtx)

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	slog.Info("Starting kernel server", "addr", addr)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initTracer initializes OpenTelemetry distributed tracing.
//
// Uses an insecure gRPC connection, appropriate for internal networks.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTLPEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("kernel-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initLedger opens the contribution ledger. Without a badger path the
// ledger lives in memory and does not survive a restart.
func (s *service) initLedger() error {
	if s.config.BadgerPath == "" {
		store, err := ledger.NewBadgerStoreInMemory()
		if err != nil {
			return err
		}
		s.store = store
		slog.Warn("No badger path configured, ledger will not survive restarts")
		return nil
	}

	store, err := ledger.NewBadgerStore(s.config.BadgerPath, slog.Default())
	if err != nil {
		return err
	}
	s.store = store
	slog.Info("Opened contribution ledger", "path", s.config.BadgerPath)
	return nil
}

// initWeaviate connects the optional knowledge-graph boundary.
func (s *service) initWeaviate(ctx context.Context) error {
	if s.config.Weaviate.Host == "" {
		slog.Info("Weaviate host not configured, running in lightweight mode")
		return nil
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   s.config.Weaviate.Host,
		Scheme: s.config.Weaviate.Scheme,
	})
	if err != nil {
		return fmt.Errorf("failed to create Weaviate client: %w", err)
	}

	if err := datatypes.EnsureWeaviateSchema(ctx, client); err != nil {
		return err
	}

	s.weaviateClient = client
	slog.Info("Weaviate client initialized",
		"host", s.config.Weaviate.Host, "scheme", s.config.Weaviate.Scheme)
	return nil
}

// initProviders registers every provider client the candidate cascades
// can reference. Providers whose credentials are missing are skipped;
// candidates naming them fail with a configuration error at invoke time.
func (s *service) initProviders() {
	s.registry = llm.NewRegistry()

	s.registry.Register(llm.NewOllamaClient())

	if client, err := llm.NewAnthropicClient(); err != nil {
		slog.Warn("Anthropic provider unavailable", "error", err)
	} else {
		s.registry.Register(client)
	}

	if client, err := llm.NewOpenAIClient(); err != nil {
		slog.Warn("OpenAI provider unavailable", "error", err)
	} else {
		s.registry.Register(client)
	}

	slog.Info("Registered LLM providers", "providers", s.registry.Providers())
}

// initEngine wires the invoker, agents, and engine together.
func (s *service) initEngine() {
	inv := invoker.New(s.registry, s.config.Timeouts, s.config.Pricing)

	analyst := agents.NewAnalyst(inv, s.config.Candidates[config.RoleAnalyst])
	relational := agents.NewRelational(inv, s.config.Candidates[config.RoleRelational])
	synthesiser := agents.NewSynthesiser(inv, s.config.Candidates[config.RoleSynthesiser])

	opts := []engine.Option{
		engine.WithMetrics(observability.DefaultMetrics),
	}
	if s.sink != nil {
		opts = append(opts, engine.WithAnalyticsSink(s.sink))
	}
	if s.weaviateClient != nil {
		opts = append(opts, engine.WithGraphPersister(engine.NewWeaviateGraph(s.weaviateClient)))
	}

	s.engine = engine.New(engine.Config{
		MaxRepairs:       s.config.MaxRepairs,
		Timeouts:         s.config.Timeouts,
		SmoothingAlpha:   s.config.Signals.SmoothingAlpha,
		InferenceDamping: s.config.Signals.InferenceDamping,
	}, analyst, relational, synthesiser, s.watcher, s.store, opts...)
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter(ctx context.Context) {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("kernel-service"))

	// Per-IP guard in front of the per-session limiter. Started so its
	// janitor evicts buckets for IPs that stop calling.
	ipLimiter := middleware.NewSessionLimiter(
		s.config.RateLimit.PerSecond*10, s.config.RateLimit.Burst*10)
	ipLimiter.Start(ctx)
	s.router.Use(middleware.RateLimitByIP(ipLimiter))

	routes.SetupRoutes(s.router, s.engine, s.limiter)
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.sink != nil {
		s.sink.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Warn("Ledger close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}
