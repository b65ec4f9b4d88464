package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dunning_backend/internal/ai"
	camprepo "dunning_backend/internal/campaigns/repository"
	campservice "dunning_backend/internal/campaigns/service"
	custrepo "dunning_backend/internal/customers/repository"
	"dunning_backend/internal/email"
	"dunning_backend/internal/emaillog"
	invrepo "dunning_backend/internal/invoices/repository"
	"dunning_backend/internal/scheduler"
	"dunning_backend/internal/tasks"
	"dunning_backend/platform/config"
	"dunning_backend/platform/db"
	"dunning_backend/platform/events"
	"dunning_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)

	queue := tasks.NewService(tasks.NewRepository(pool), log, cfg.GetTaskBatchSize())
	sender := initSender(cfg, log)
	generator := initGenerator(ctx, cfg, log)

	campaignSvc := campservice.New(campservice.Config{
		Campaigns:         camprepo.New(pool),
		Invoices:          invrepo.New(pool),
		Customers:         custrepo.New(pool),
		Emails:            emaillog.New(pool),
		Queue:             queue,
		Sender:            sender,
		Generator:         generator,
		Bus:               eventBus,
		Log:               log,
		FromName:          cfg.GetEmailFromName(),
		ReplyTo:           cfg.GetEmailReplyTo(),
		SendRatePerMinute: int(cfg.GetSendRatePerMinute()),
	})
	campaignSvc.RegisterExecutors(queue)

	dispatcher, err := scheduler.NewDispatcher(cfg, cfg, pool, campaignSvc, log)
	if err != nil {
		log.Error("failed to initialize dispatcher", "error", err)
		panic("failed to initialize dispatcher: " + err.Error())
	}
	defer func() { _ = dispatcher.Close() }()
	go dispatcher.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, queue, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func initSender(cfg *config.Config, log *logger.Logger) email.Sender {
	if !cfg.GetEmailEnabled() || cfg.GetSMTPHost() == "" {
		log.Warn("SMTP not configured; outbound emails are logged instead of sent")
		return email.NewLogSender(log)
	}
	return email.NewSMTPSender(cfg.GetSMTPHost(), cfg.GetSMTPPort(), cfg.GetSMTPUsername(), cfg.GetSMTPPassword(), cfg.GetEmailFromAddress())
}

func initGenerator(ctx context.Context, cfg *config.Config, log *logger.Logger) email.Generator {
	if !cfg.IsAIEnabled() {
		log.Info("gemini not configured; using template generator")
		return email.NewTemplateGenerator()
	}

	client, err := ai.NewClient(ctx, cfg.GetGeminiAPIKey())
	if err != nil {
		log.Error("failed to initialize gemini client, falling back to templates", "error", err)
		return email.NewTemplateGenerator()
	}
	return ai.NewGenerator(client, cfg.GetGeminiModel())
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
