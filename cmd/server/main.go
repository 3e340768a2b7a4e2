// Command server runs the notification HTTP API: it accepts delivery
// requests, runs one synchronous delivery round per request, and enqueues
// a retry record on total failure for cmd/worker to pick up.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cascadehub/notify/internal/config"
	"github.com/cascadehub/notify/internal/database"
	"github.com/cascadehub/notify/internal/httpserver"
	"github.com/cascadehub/notify/internal/logging"
	"github.com/cascadehub/notify/internal/notification"
	"github.com/cascadehub/notify/internal/tracing"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cfg.LogOutput,
	})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("configuration error")
	}
	logger.WithField("config", cfg.String()).Info("starting notification server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, "notify-server", os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if err != nil {
		logger.WithError(err).Warn("tracing disabled")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.WithError(err).Warn("tracing shutdown error")
		}
	}()

	db, err := database.Open(cfg.DatabaseURL, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Warn("failed to close database")
		}
	}()

	queue, err := notification.NewRedisStreamQueue(cfg.QueueURL, cfg.QueueStreamName, cfg.QueueConsumerGroup)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to retry queue")
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.WithError(err).Warn("failed to close retry queue")
		}
	}()

	registry, err := buildRegistry(cfg)
	if err != nil {
		logger.WithError(err).Fatal("failed to build provider registry")
	}

	store := notification.NewPostgresStore(db.DB)
	engine := notification.NewEngine(registry, store, logger)
	svc := notification.NewService(store, queue, engine, logger)

	router := httpserver.New(svc, db, queue, logger)
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.WithField("addr", cfg.HTTPAddr).Info("http listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("http shutdown error")
		}
		logger.Info("graceful shutdown completed")
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.WithError(err).Fatal("server error")
	}
}

// buildRegistry constructs one provider per channel. A channel whose
// credentials are unset still gets a provider — it just runs in
// mock-success mode — so the registry always has an entry for every
// channel named in a request.
func buildRegistry(cfg config.Config) (*notification.Registry, error) {
	email := notification.NewEmailProvider(notification.EmailConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})

	sms := notification.NewSMSProvider(notification.SMSConfig{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		FromNumber: cfg.TwilioFromNumber,
		BaseURL:    cfg.TwilioAPIBaseURL,
	})

	telegram, err := notification.NewTelegramProvider(notification.TelegramConfig{
		BotToken: cfg.TelegramBotToken,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram provider: %w", err)
	}

	return notification.NewRegistry(email, sms, telegram), nil
}
