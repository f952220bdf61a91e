package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	grpcsvc "github.com/vladislavdragonenkov/storefront/internal/service/grpc"
	"github.com/vladislavdragonenkov/storefront/internal/service/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const shutdownTimeout = 5 * time.Second

// services — собранный прикладной слой, общий для HTTP и gRPC.
type services struct {
	catalog  *catalog.Service
	carts    *cart.Service
	checkout *checkout.Processor
}

func buildServices(deps runtimeDependencies, outboxEnabled bool, logger *log.Entry) services {
	storefrontMetrics := metrics.NewStorefrontMetrics()

	carts := cart.NewService(deps.carts, deps.products,
		cart.WithLogger(logger.WithField("layer", "cart")),
		cart.WithMetrics(storefrontMetrics),
	)

	options := []checkout.Option{
		checkout.WithLogger(logger.WithField("layer", "checkout")),
		checkout.WithMetrics(storefrontMetrics),
	}
	if outboxEnabled {
		options = append(options, checkout.WithOutbox(deps.outboxRepo))
	}

	return services{
		catalog:  catalog.NewService(deps.products, logger.WithField("layer", "catalog")),
		carts:    carts,
		checkout: checkout.NewProcessor(carts, deps.products, deps.ledger, options...),
	}
}

// Run поднимает HTTP, gRPC и metrics серверы и фоновые воркеры; блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	logger.WithFields(version.Fields()).Info("starting storefront")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	publishers, err := initEventPublishers(cfg, logger)
	if err != nil {
		return err
	}
	defer publishers.close(logger)

	svc := buildServices(deps, publishers.enabled(), logger)
	if cfg.SeedCatalog {
		if inserted, err := svc.catalog.SeedDefaults(); err != nil {
			logger.WithError(err).Warn("failed to seed catalog")
		} else if inserted > 0 {
			logger.WithField("products", inserted).Info("catalog seeded")
		}
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	workersDone := startWorkers(workerCtx, cfg, deps, publishers, logger)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", deps.storageChecker)
	if publishers.enabled() {
		healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxBacklogChecker(deps.outboxRepo, cfg.OutboxMaxPending, 0))
	}

	grpcServer, grpcHealth := newGRPCServer(svc, deps, logger)
	httpServer := newHTTPServer(cfg, svc, deps, logger)

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownWorkers(stopWorkers, workersDone, logger)
		return fmt.Errorf("listen grpc: %w", err)
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		shutdownWorkers(stopWorkers, workersDone, logger)
		return fmt.Errorf("listen http: %w", err)
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC server listening on %s", grpcLis.Addr())
		errCh <- grpcServer.Serve(grpcLis)
	}()
	go func() {
		logger.Infof("HTTP API listening on %s", httpLis.Addr())
		if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		runErr = ctx.Err()
	case err := <-errCh:
		if !errors.Is(err, grpc.ErrServerStopped) {
			runErr = err
		}
	}

	grpcHealth.Shutdown()
	stopGRPC(grpcServer, logger)
	shutdownHTTP(httpServer, logger)
	shutdownHTTP(metricsSrv, logger)
	shutdownWorkers(stopWorkers, workersDone, logger)

	return runErr
}

// startWorkers запускает outbox worker (если есть брокер) и очистку ключей идемпотентности.
func startWorkers(ctx context.Context, cfg Config, deps runtimeDependencies, publishers eventPublishers, logger *log.Entry) <-chan struct{} {
	done := make(chan struct{})
	workers := 0
	finished := make(chan struct{}, 2)

	if publishers.enabled() {
		worker := outbox.NewWorker(deps.outboxRepo, publishers.primary,
			outbox.WithLogger(logger.WithFields(log.Fields{"layer": "outbox", "broker": publishers.broker})),
			outbox.WithDLQPublisher(publishers.dlq),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
			outbox.WithMetrics(metrics.NewOutboxMetrics(prometheus.DefaultRegisterer)),
		)
		workers++
		go func() {
			worker.Run(ctx)
			finished <- struct{}{}
		}()
	}

	cleanup := idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("layer", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
		idempotency.WithMetrics(metrics.NewCleanupMetrics(prometheus.DefaultRegisterer)),
	)
	workers++
	go func() {
		cleanup.Run(ctx)
		finished <- struct{}{}
	}()

	go func() {
		for i := 0; i < workers; i++ {
			<-finished
		}
		close(done)
	}()
	return done
}

// shutdownWorkers отменяет воркеры и ждёт их завершения не дольше shutdownTimeout.
func shutdownWorkers(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		logger.Warn("background workers did not stop in time")
	}
}

func newGRPCServer(svc services, deps runtimeDependencies, logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	storefront := grpcsvc.NewStorefrontService(svc.catalog, svc.carts, svc.checkout, deps.idempotencyRepo, logger.WithField("layer", "grpc"))
	grpcsvc.RegisterStorefrontServer(server, storefront)
	grpcMetrics.InitializeMetrics(server)

	reflection.Register(server)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcsvc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	return server, healthServer
}

// stopGRPC пытается остановить сервер мягко, затем принудительно.
func stopGRPC(server *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop timed out, forcing grpc shutdown")
		server.Stop()
	}
}

func newHTTPServer(cfg Config, svc services, deps runtimeDependencies, logger *log.Entry) *http.Server {
	httpLogger := logger.WithField("layer", "http")
	handler := httpapi.NewHandler(svc.catalog, svc.carts, svc.checkout,
		httpapi.WithIdempotency(deps.idempotencyRepo),
		httpapi.WithLogger(httpLogger),
	)
	router := httpapi.NewRouter(handler, httpapi.RouterConfig{
		AllowedOrigins: SplitList(cfg.CORSOrigins),
		Logger:         httpLogger,
	})
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// startMetricsServer запускает /metrics и health-пробы на отдельном адресе.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("metrics and health checks on %s (/metrics, /healthz, /livez, /readyz)", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
