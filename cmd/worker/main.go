// Command worker runs the durable retry consumer: it drains the retry
// stream with exponential backoff and re-attempts delivery through the same
// engine the HTTP API uses, up to the configured attempt cap.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cascadehub/notify/internal/config"
	"github.com/cascadehub/notify/internal/database"
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
	logger.WithField("config", cfg.String()).Info("starting retry worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, "notify-worker", os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
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
	worker := notification.NewWorker(queue, store, engine, cfg.MaxRetryAttempts, cfg.RetryBackoffDelay, logger)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := worker.Run(groupCtx); err != nil && groupCtx.Err() == nil {
			return fmt.Errorf("retry worker: %w", err)
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.WithError(err).Fatal("worker error")
	}
}

// buildRegistry constructs one provider per channel. A channel whose
// credentials are unset still gets a provider — it just runs in
// mock-success mode.
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
