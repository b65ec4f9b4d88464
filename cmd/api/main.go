package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dunning_backend/internal/ai"
	campaignhandler "dunning_backend/internal/campaigns/handler"
	camprepo "dunning_backend/internal/campaigns/repository"
	campservice "dunning_backend/internal/campaigns/service"
	customerhandler "dunning_backend/internal/customers/handler"
	custrepo "dunning_backend/internal/customers/repository"
	custservice "dunning_backend/internal/customers/service"
	"dunning_backend/internal/email"
	"dunning_backend/internal/emaillog"
	domainevents "dunning_backend/internal/events"
	"dunning_backend/internal/http/router"
	invoicehandler "dunning_backend/internal/invoices/handler"
	invrepo "dunning_backend/internal/invoices/repository"
	invservice "dunning_backend/internal/invoices/service"
	"dunning_backend/internal/replies"
	"dunning_backend/internal/tasks"
	"dunning_backend/platform/config"
	"dunning_backend/platform/db"
	"dunning_backend/platform/events"
	"dunning_backend/platform/logger"
	"dunning_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	customerRepo := custrepo.New(pool)
	invoiceRepo := invrepo.New(pool)
	campaignRepo := camprepo.New(pool)
	emailLog := emaillog.New(pool)
	queue := tasks.NewService(tasks.NewRepository(pool), log, cfg.GetTaskBatchSize())

	sender := initSender(cfg, log)
	generator, classifier := initAI(ctx, cfg, log)

	customerSvc := custservice.New(customerRepo, cfg.GetDefaultTimezone(), eventBus, log)
	invoiceSvc := invservice.New(invoiceRepo, customerSvc, log)

	campaignSvc := campservice.New(campservice.Config{
		Campaigns:         campaignRepo,
		Invoices:          invoiceRepo,
		Customers:         customerRepo,
		Emails:            emailLog,
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

	replySvc := replies.New(replies.Config{
		Customers:  customerRepo,
		Campaigns:  campaignSvc,
		Stats:      campaignRepo,
		Queue:      queue,
		Emails:     emailLog,
		Classifier: classifier,
		Bus:        eventBus,
		Log:        log,
	})

	// Opt-outs raised through the API stop outreach the same way reply-driven
	// ones do. Both paths are idempotent, so overlap is harmless.
	eventBus.Subscribe(domainevents.CustomerOptedOutName, events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		evt, ok := e.(domainevents.CustomerOptedOut)
		if !ok {
			return nil
		}
		if _, err := campaignSvc.PauseAllForCustomer(ctx, evt.CustomerID); err != nil {
			return err
		}
		_, err := queue.CancelForCustomer(ctx, evt.CustomerID)
		return err
	}))

	engine := router.New(router.Deps{
		Config:    cfg,
		Log:       log,
		Health:    pool,
		Campaigns: campaignhandler.New(campaignSvc, queue, val),
		Invoices:  invoicehandler.New(invoiceSvc, emailLog, val),
		Customers: customerhandler.New(customerSvc, val),
		Replies:   replies.NewHandler(replySvc, emailLog, val),
	})

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initSender(cfg *config.Config, log *logger.Logger) email.Sender {
	if !cfg.GetEmailEnabled() || cfg.GetSMTPHost() == "" {
		log.Warn("SMTP not configured; outbound emails are logged instead of sent")
		return email.NewLogSender(log)
	}
	return email.NewSMTPSender(cfg.GetSMTPHost(), cfg.GetSMTPPort(), cfg.GetSMTPUsername(), cfg.GetSMTPPassword(), cfg.GetEmailFromAddress())
}

func initAI(ctx context.Context, cfg *config.Config, log *logger.Logger) (email.Generator, ai.Classifier) {
	if !cfg.IsAIEnabled() {
		log.Info("gemini not configured; using template generator and keyword classifier")
		return email.NewTemplateGenerator(), ai.NewKeywordClassifier()
	}

	client, err := ai.NewClient(ctx, cfg.GetGeminiAPIKey())
	if err != nil {
		log.Error("failed to initialize gemini client, falling back to templates", "error", err)
		return email.NewTemplateGenerator(), ai.NewKeywordClassifier()
	}
	return ai.NewGenerator(client, cfg.GetGeminiModel()), ai.NewClassifier(client, cfg.GetGeminiModel())
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
