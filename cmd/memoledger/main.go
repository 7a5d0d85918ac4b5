package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"MemoLedger/internal/auth"
	"MemoLedger/internal/chain"
	"MemoLedger/internal/config"
	"MemoLedger/internal/ingestion"
	"MemoLedger/internal/math"
	"MemoLedger/internal/observability"
	"MemoLedger/internal/persistence"
	"MemoLedger/internal/pricing"
	"MemoLedger/internal/reconcile"
	"MemoLedger/internal/resolver"
	"MemoLedger/internal/server"
	"MemoLedger/internal/service"
	"MemoLedger/internal/watcher"
)

const cursorSource = "ledger"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewLoggerWithLevel("main", observability.ParseLogLevel(cfg.LogLevel))

	// memoledger token <operator> prints an operator token and exits.
	if len(os.Args) > 1 && os.Args[1] == "token" {
		issueToken(cfg, logger)
		return
	}

	logger.Info().Msg("MemoLedger starting")

	// --- Context with graceful shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Database ---
	dialect, err := persistence.ParseDialect(cfg.DBDriver)
	if err != nil {
		logger.Fatal().Err(err).Msg("db driver")
	}
	db, err := persistence.Open(ctx, dialect, cfg.DSN())
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	logger.Info().Str("driver", string(dialect)).Msg("database connected")

	if err := persistence.NewMigrator(db, dialect).Up(ctx); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}
	logger.Info().Msg("migrations applied")

	st := persistence.NewSQLStore(db, dialect)

	// --- Observability ---
	metrics := observability.NewMetrics(nil)
	healthChecker := observability.NewHealthChecker()
	healthChecker.AddCheck("database", st.Ping)

	tokenCfg := math.TokenConfig{Decimals: cfg.TokenDecimals}
	engine := pricing.NewEngine()
	dispatcher := reconcile.NewDispatcher(st,
		reconcile.WithPricing(engine),
		reconcile.WithLogger(observability.NewLogger("reconcile")),
	)

	// --- NATS (optional) ---
	var (
		nc         *nats.Conn
		subscriber *ingestion.NATSSubscriber
		publisher  *ingestion.OutboundPublisher
		consumer   *ingestion.Consumer
		rawEvents  chan ingestion.RawEvent
	)
	if cfg.NATSURL != "" {
		natsLogger := observability.NewLogger("nats")
		var js jetstream.JetStream
		nc, js, err = ingestion.ConnectNATS(cfg.NATSURL, natsLogger)
		if err != nil {
			logger.Fatal().Err(err).Msg("nats connect")
		}
		defer nc.Close()

		if err := ingestion.EnsureStreams(ctx, js, natsLogger); err != nil {
			logger.Fatal().Err(err).Msg("ensure NATS streams")
		}
		if err := ingestion.EnsureOutboundStream(ctx, js, natsLogger); err != nil {
			logger.Fatal().Err(err).Msg("ensure outbound stream")
		}

		publisher = ingestion.NewOutboundPublisher(js, cfg.PublishBufSize, observability.NewLogger("publisher"), metrics.PublishDrops.Inc)

		rawEvents = make(chan ingestion.RawEvent, 1024)
		subscriber = ingestion.NewNATSSubscriber(js, rawEvents, natsLogger)
		if err := subscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
			logger.Fatal().Err(err).Msg("nats subscribe")
		}
		consumer = ingestion.NewConsumer(dispatcher, ingestion.DefaultSubjects(),
			ingestion.WithNotifier(publisher),
			ingestion.WithDispatchRecorder(metrics),
			ingestion.WithConsumerLogger(observability.NewLogger("consumer")),
			ingestion.WithTokenConfig(tokenCfg),
			ingestion.WithSeenCache(cfg.SeenCacheSize),
		)
		healthChecker.AddCheck("nats", func(context.Context) error {
			if !nc.IsConnected() {
				return errors.New("nats disconnected")
			}
			return nil
		})
	}

	// --- Resolver: every resolution is measured and published ---
	var notifier service.Publisher
	if publisher != nil {
		notifier = publisher
	}
	res := resolver.New(st,
		resolver.WithLogger(observability.NewLogger("resolver")),
		resolver.WithOnResolved(service.ResolutionNotifier(notifier, metrics.ObserveResolution)),
	)

	svcOpts := []service.Option{
		service.WithResolver(res),
		service.WithPricing(engine),
		service.WithToken(cfg.TokenAddress),
		service.WithLogger(observability.NewLogger("service")),
	}
	if publisher != nil {
		svcOpts = append(svcOpts, service.WithPublisher(publisher))
	}

	// --- Ledger watcher ---
	client, err := chain.Dial(ctx, cfg.RPCURL,
		chain.WithTokenConfig(tokenCfg),
		chain.WithLogger(observability.NewLogger("chain")),
	)
	if err != nil {
		// The API still serves stored records; watch returns 503.
		logger.Error().Err(err).Str("rpc", cfg.RPCURL).Msg("ledger unavailable, watcher disabled")
	} else {
		defer client.Close()
		watchOpts := []watcher.Option{
			watcher.WithToken(cfg.TokenAddress),
			watcher.WithLookback(cfg.WatchLookback),
			watcher.WithRecorder(metrics),
			watcher.WithLogger(observability.NewLogger("watcher")),
		}
		if cfg.WatchUseCursor {
			watchOpts = append(watchOpts, watcher.WithCursor(st, cursorSource, cfg.WatchMaxSpan))
		}
		svcOpts = append(svcOpts, service.WithPoller(watcher.New(client, dispatcher, watchOpts...)))
	}

	svc := service.New(st, svcOpts...)

	var tokens *auth.TokenManager
	if cfg.JWTSecret != "" {
		tokens = auth.NewTokenManager(cfg.JWTSecret, cfg.JWTDuration)
	} else {
		logger.Warn().Msg("jwt_secret not set, operator routes are unauthenticated")
	}

	// --- gRPC + gateway ---
	grpcServer := server.NewGRPCServer(cfg.GRPCAddr, cfg.HTTPAddr, &server.ServerDeps{
		Service:       svc,
		Tokens:        tokens,
		HealthChecker: healthChecker,
		Metrics:       metrics,
		Logger:        observability.NewLogger("server"),
	})

	// --- Start goroutines ---
	errChan := make(chan error, 10)

	if publisher != nil {
		go func() {
			errChan <- publisher.Run(ctx)
		}()
		go func() {
			errChan <- consumer.Run(ctx, rawEvents)
		}()
	}

	go func() {
		errChan <- grpcServer.StartGRPC(ctx)
	}()
	go func() {
		errChan <- grpcServer.StartHTTPGateway(ctx)
	}()

	if cfg.WatchInterval > 0 {
		go runPeriodic(ctx, cfg.WatchInterval, observability.NewLogger("watch-loop"), "watch", func(ctx context.Context) error {
			_, err := svc.Watch(ctx)
			return err
		})
	}
	if cfg.SweepInterval > 0 {
		go runPeriodic(ctx, cfg.SweepInterval, observability.NewLogger("sweep-loop"), "sweep", func(ctx context.Context) error {
			_, err := svc.Sweep(ctx)
			return err
		})
	}

	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			_ = metricsServer.Shutdown(shutCtx)
		}()
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	healthChecker.SetReady(true)
	grpcServer.SetServing(true)

	logger.Info().
		Str("grpc", cfg.GRPCAddr).
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Bool("nats", publisher != nil).
		Msg("MemoLedger ready")

	// --- Wait for shutdown signal ---
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		logger.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	healthChecker.SetReady(false)
	grpcServer.SetServing(false)
	cancel()

	if subscriber != nil {
		subscriber.Stop()
	}

	logger.Info().Msg("MemoLedger shutdown complete")
}

// runPeriodic calls fn every interval until ctx is cancelled. Failures are
// logged and retried on the next tick.
func runPeriodic(ctx context.Context, interval time.Duration, logger zerolog.Logger, name string, fn func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				logger.Warn().Err(err).Str("task", name).Msg("periodic run failed")
			}
		}
	}
}

func issueToken(cfg config.Config, logger zerolog.Logger) {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: memoledger token <operator> [role]")
		os.Exit(1)
	}
	tm := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTDuration)
	if tm == nil {
		logger.Fatal().Msg("jwt_secret is not configured")
	}
	role := "operator"
	if len(os.Args) > 3 {
		role = os.Args[3]
	}
	tok, err := tm.Generate(os.Args[2], role)
	if err != nil {
		logger.Fatal().Err(err).Msg("generate token")
	}
	fmt.Println(tok)
}
