package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"example.com/userstate/internal/api"
	"example.com/userstate/internal/auth"
	"example.com/userstate/internal/backend"
	"example.com/userstate/internal/config"
	"example.com/userstate/internal/device"
	"example.com/userstate/internal/entity"
	"example.com/userstate/internal/events"
	"example.com/userstate/internal/identity"
	"example.com/userstate/internal/lifecycle"
	"example.com/userstate/internal/logging"
	"example.com/userstate/internal/navigation"
	"example.com/userstate/internal/notifications"
	"example.com/userstate/internal/observability"
	httptransport "example.com/userstate/internal/transport/http"
	"example.com/userstate/internal/tutorial"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New(os.Stderr, "userstate-api", "info", "json")
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.New(os.Stdout, "userstate-api", cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, "userstate-api", cfg.OTelEndpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}

	local, err := backend.OpenLocal(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open local store")
	}
	defer local.Close()

	remote, closeRemote, err := backend.OpenRemote(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect remote store")
	}
	defer closeRemote()

	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		producer := events.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()
		publisher = events.NewKafkaPublisher(producer, cfg.StateTopic)
	}

	storeOpts := []entity.Option{entity.WithLogger(logger), entity.WithPublisher(publisher)}
	tutorialSvc := tutorial.NewService(local, remote, storeOpts...)
	notificationSvc := notifications.NewService(local, remote,
		notifications.WithLogger(logger),
		notifications.WithWatchIdle(cfg.WatchIdle),
		notifications.WithStoreOptions(storeOpts...),
	)
	notificationSvc.Subscribe(func(id identity.Identity, s notifications.Settings) {
		logger.Info().Str("user_id", id.ID).Bool("enabled", s.Enabled).Msg("notification settings changed")
	})

	navCache := navigation.NewCache(local, navigation.WithTTL(cfg.ResumeTTL), navigation.WithLogger(logger))
	recorder := navigation.NewRecorder(navCache, cfg.NavigationDebounce, nil)

	hub := lifecycle.NewHub(lifecycle.WithLogger(logger), lifecycle.WithRefreshThrottle(cfg.RefreshThrottle))
	hub.Subscribe(navCache)
	hub.SubscribeThrottled(notificationSvc)

	handler := api.NewHandler(api.Dependencies{
		Tutorial:      tutorialSvc,
		Notifications: notificationSvc,
		Navigation:    navCache,
		Recorder:      recorder,
		Lifecycle:     hub,
		Device:        device.NewService(local, device.WithLogger(logger)),
		Logger:        logger,
	})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	var metricsServer *http.Server
	if cfg.MetricsAddress == "" {
		mux.Handle("/metrics", promhttp.Handler())
	} else {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer = httptransport.NewServer(httptransport.DefaultServerConfig(cfg.MetricsAddress), metricsMux)
		go serve(logger, metricsServer, "metrics")
	}

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, auth.PublicPaths)
	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress),
		httptransport.Chain(mux,
			httptransport.Recoverer(logger),
			httptransport.RequestLogger(logger),
			authMiddleware.Wrap,
		))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go serve(logger, server, "api")

	<-shutdownCh
	recorder.Flush()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("tracing shutdown failed")
	}
}

func serve(logger zerolog.Logger, server *http.Server, name string) {
	logger.Info().Str("listener", name).Str("address", server.Addr).Msg("listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Str("listener", name).Msg("server error")
	}
}
