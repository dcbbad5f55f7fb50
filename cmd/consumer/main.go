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
	"github.com/segmentio/kafka-go"

	"example.com/userstate/internal/backend"
	"example.com/userstate/internal/config"
	"example.com/userstate/internal/consumer"
	"example.com/userstate/internal/entity"
	"example.com/userstate/internal/identity"
	"example.com/userstate/internal/keys"
	"example.com/userstate/internal/logging"
	"example.com/userstate/internal/notifications"
	"example.com/userstate/internal/observability"
	httptransport "example.com/userstate/internal/transport/http"
	"example.com/userstate/internal/tutorial"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New(os.Stderr, "userstate-consumer", "info", "json")
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.New(os.Stdout, "userstate-consumer", cfg.LogLevel, cfg.LogFormat)
	if len(cfg.KafkaBrokers) == 0 {
		logger.Fatal().Msg("KAFKA_BROKERS is required for the consumer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, "userstate-consumer", cfg.OTelEndpoint)
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

	tutorialSvc := tutorial.NewService(local, remote, entity.WithLogger(logger))
	notificationSvc := notifications.NewService(local, remote, notifications.WithLogger(logger))

	handler := consumer.NewResetHandler(map[keys.Domain]consumer.ResetFunc{
		keys.TutorialStatus: func(ctx context.Context, id identity.Identity) error {
			_, err := tutorialSvc.Reset(ctx, id)
			return err
		},
		keys.NotificationSettings: notificationSvc.ResetDefaults,
	}, logger)

	metricsAddress := cfg.MetricsAddress
	if metricsAddress == "" {
		metricsAddress = cfg.HTTPAddress
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := httptransport.NewServer(httptransport.DefaultServerConfig(metricsAddress), metricsMux)
	go func() {
		logger.Info().Str("address", metricsAddress).Msg("consumer metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.ConsumerGroupID,
		Topic:           cfg.ResetTopic,
		MinBytes:        1e3,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})
	proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(logger))

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer reader.Close()

		logger.Info().Str("topic", cfg.ResetTopic).Str("group", cfg.ConsumerGroupID).Msg("consumer started")
		if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Str("topic", cfg.ResetTopic).Msg("consumer stopped with error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info().Msg("consumer shutdown requested")
	case <-done:
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("metrics server shutdown error")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("tracing shutdown failed")
	}
	<-done
}
