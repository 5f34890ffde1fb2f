package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/mymmrac/telego"
	"github.com/samber/do"

	"github.com/mtbar/concerts/internal/bot"
	"github.com/mtbar/concerts/internal/config"
	"github.com/mtbar/concerts/internal/dialog"
	"github.com/mtbar/concerts/internal/digest"
	"github.com/mtbar/concerts/internal/engine"
	"github.com/mtbar/concerts/internal/i18n"
	"github.com/mtbar/concerts/internal/metrics"
	"github.com/mtbar/concerts/internal/migrations"
	"github.com/mtbar/concerts/internal/render"
	"github.com/mtbar/concerts/internal/repo"
	"github.com/mtbar/concerts/internal/scheduler"
	"github.com/mtbar/concerts/internal/server"
	"github.com/mtbar/concerts/internal/sheets"
	"github.com/mtbar/concerts/internal/tilda"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	logger := watermill.NewSlogLogger(slogger)

	injector := do.New()
	defer func() {
		if err := injector.Shutdown(); err != nil {
			logger.Error("Failed to shutdown DI container", err, nil)
		}
	}()

	setupDependencies(injector, cfg, slogger, logger)

	pool, err := do.Invoke[*pgxpool.Pool](injector)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	subscriber := do.MustInvoke[message.Subscriber](injector)
	listener := do.MustInvoke[*bot.Listener](injector)
	handlers := do.MustInvoke[*bot.Handlers](injector)
	sched := do.MustInvoke[*scheduler.Scheduler](injector)
	httpSrv := do.MustInvoke[*server.Server](injector)

	eventRouter, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		log.Fatalf("Failed to create event router: %v", err)
	}

	setupEventSubscribers(eventRouter, subscriber, handlers, logger)

	var wg sync.WaitGroup

	start := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil {
				logger.Error(name+" stopped with error", err, nil)
			}
		}()
	}

	start("Event router", eventRouter.Run)
	start("Bot listener", listener.Start)
	start("Scheduler", sched.Start)
	start("HTTP server", httpSrv.Start)

	logger.Info("Concerts bot started successfully", watermill.LogFields{
		"http_address": httpSrv.GetAddress(),
		"tilda":        cfg.TildaEnabled(),
		"sheets":       cfg.SheetsEnabled(),
		"digest_at":    cfg.App.Digest.Time,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", watermill.LogFields{
			"signal": sig.String(),
		})
	case <-ctx.Done():
		logger.Info("Context cancelled", nil)
	}

	logger.Info("Starting graceful shutdown", nil)
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Graceful shutdown completed", nil)
	case <-time.After(30 * time.Second):
		logger.Error("Shutdown timeout exceeded", nil, nil)
	}

	if err := eventRouter.Close(); err != nil {
		logger.Error("Failed to close event router", err, nil)
	}

	logger.Info("Concerts bot stopped", nil)
}

// newLogger builds the slog logger from the [logging] table
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.App.Logging.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.App.Logging.Level, err)
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.App.Logging.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
}

// setupDependencies registers all dependencies in DI container
func setupDependencies(injector *do.Injector, cfg *config.Config, slogger *slog.Logger, logger watermill.LoggerAdapter) {
	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, slogger)
	do.ProvideValue(injector, logger)

	// Register database pool, migrations run first
	do.Provide(injector, func(i *do.Injector) (*pgxpool.Pool, error) {
		config := do.MustInvoke[*config.Config](i)
		logger := do.MustInvoke[*slog.Logger](i)
		ctx := context.Background()

		pool, err := pgxpool.New(ctx, config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}

		sqlDB := stdlib.OpenDBFromPool(pool)
		if err := migrations.Run(ctx, sqlDB); err != nil {
			_ = sqlDB.Close()
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		if err := sqlDB.Close(); err != nil {
			logger.Error("Failed to close sql connection after migrations", slog.Any("error", err))
		}

		logger.Info("Connected to database, migrations applied")
		return pool, nil
	})

	do.Provide(injector, func(i *do.Injector) (*repo.Repository, error) {
		return repo.New(do.MustInvoke[*pgxpool.Pool](i)), nil
	})

	// Register pub/sub - register both publisher and subscriber
	do.Provide(injector, func(i *do.Injector) (*gochannel.GoChannel, error) {
		logger := do.MustInvoke[watermill.LoggerAdapter](i)
		return gochannel.NewGoChannel(gochannel.Config{}, logger), nil
	})

	do.Provide(injector, func(i *do.Injector) (message.Publisher, error) {
		return do.MustInvoke[*gochannel.GoChannel](i), nil
	})

	do.Provide(injector, func(i *do.Injector) (message.Subscriber, error) {
		return do.MustInvoke[*gochannel.GoChannel](i), nil
	})

	do.Provide(injector, func(i *do.Injector) (*metrics.Collector, error) {
		return metrics.NewCollector()
	})

	do.Provide(injector, func(i *do.Injector) (*i18n.Translator, error) {
		config := do.MustInvoke[*config.Config](i)
		return i18n.NewTranslator(config.App.App.Locale, do.MustInvoke[*slog.Logger](i))
	})

	do.Provide(injector, func(i *do.Injector) (*telego.Bot, error) {
		config := do.MustInvoke[*config.Config](i)
		logger := do.MustInvoke[*slog.Logger](i)

		tgBot, err := telego.NewBot(config.TelegramBotToken)
		if err != nil {
			return nil, fmt.Errorf("failed to create bot: %w", err)
		}

		me, err := tgBot.GetMe(context.Background())
		if err != nil {
			return nil, fmt.Errorf("failed to get bot info: %w", err)
		}

		logger.Info("Bot initialized",
			slog.String("username", me.Username),
			slog.Int64("id", me.ID),
		)
		return tgBot, nil
	})

	// Page publishing backend
	do.Provide(injector, func(i *do.Injector) (*tilda.Client, error) {
		config := do.MustInvoke[*config.Config](i)
		return tilda.NewClient(tilda.Config{
			BaseURL:     config.App.Tilda.BaseURL,
			PublicKey:   config.TildaPublicKey,
			SecretKey:   config.TildaSecretKey,
			ProjectID:   config.TildaProjectID,
			PageBaseURL: config.App.Tilda.PageBaseURL,
			Timeout:     time.Duration(config.App.Tilda.TimeoutSeconds) * time.Second,
		}, do.MustInvoke[*slog.Logger](i)), nil
	})

	do.Provide(injector, func(i *do.Injector) (*tilda.ImageUploader, error) {
		config := do.MustInvoke[*config.Config](i)
		files := bot.NewTelegramFiles(
			do.MustInvoke[*telego.Bot](i),
			time.Duration(config.App.Tilda.TimeoutSeconds)*time.Second,
		)
		return tilda.NewImageUploader(files, do.MustInvoke[*tilda.Client](i)), nil
	})

	do.Provide(injector, func(i *do.Injector) (*render.Renderer, error) {
		config := do.MustInvoke[*config.Config](i)
		return render.New(config.App.Tilda.HomeURL)
	})

	do.Provide(injector, func(i *do.Injector) (*sheets.Mirror, error) {
		config := do.MustInvoke[*config.Config](i)
		return sheets.New(context.Background(), sheets.Config{
			SpreadsheetID:   config.App.Sheets.SpreadsheetID,
			Range:           config.App.Sheets.Range,
			CredentialsPath: config.GoogleCredentialsPath,
		}, do.MustInvoke[*slog.Logger](i))
	})

	do.Provide(injector, func(i *do.Injector) (*engine.Engine, error) {
		config := do.MustInvoke[*config.Config](i)
		logger := do.MustInvoke[*slog.Logger](i)

		return engine.New(engine.Deps{
			Store:      do.MustInvoke[*repo.Repository](i),
			Dialog:     dialog.NewManager(),
			Uploader:   do.MustInvoke[*tilda.ImageUploader](i),
			Publisher:  do.MustInvoke[*tilda.Client](i),
			Renderer:   do.MustInvoke[*render.Renderer](i),
			Mirror:     bot.NewChangeFeed(do.MustInvoke[message.Publisher](i), logger),
			Translator: do.MustInvoke[*i18n.Translator](i),
			Metrics:    do.MustInvoke[*metrics.Collector](i),
			Logger:     logger,
			Config: engine.Config{
				DescriptionMinLength: config.App.Engine.DescriptionMinLength,
				MaxCandidates:        config.App.Engine.MaxCandidates,
			},
			Now: func() time.Time { return time.Now().In(config.Location) },
		}), nil
	})

	do.Provide(injector, func(i *do.Injector) (*digest.Builder, error) {
		return digest.NewBuilder(do.MustInvoke[*repo.Repository](i), do.MustInvoke[*i18n.Translator](i)), nil
	})

	do.Provide(injector, func(i *do.Injector) (*bot.Listener, error) {
		return bot.New(
			do.MustInvoke[*telego.Bot](i),
			do.MustInvoke[*engine.Engine](i),
			do.MustInvoke[*digest.Builder](i),
			do.MustInvoke[*repo.Repository](i),
			do.MustInvoke[*i18n.Translator](i),
			do.MustInvoke[*config.Config](i),
			do.MustInvoke[*slog.Logger](i),
		), nil
	})

	do.Provide(injector, func(i *do.Injector) (*bot.Handlers, error) {
		return bot.NewHandlers(
			do.MustInvoke[*telego.Bot](i),
			do.MustInvoke[*sheets.Mirror](i),
			do.MustInvoke[*digest.Builder](i),
			do.MustInvoke[*repo.Repository](i),
			do.MustInvoke[*slog.Logger](i),
		), nil
	})

	scheduler.RegisterDI(injector)

	do.Provide(injector, func(i *do.Injector) (*server.Server, error) {
		return server.New(
			do.MustInvoke[*config.Config](i),
			do.MustInvoke[*repo.Repository](i),
			do.MustInvoke[*digest.Builder](i),
			do.MustInvoke[message.Publisher](i),
			do.MustInvoke[*metrics.Collector](i),
			do.MustInvoke[*slog.Logger](i),
		), nil
	})
}

// setupEventSubscribers configures the side channel handlers
func setupEventSubscribers(router *message.Router, subscriber message.Subscriber, handlers *bot.Handlers, logger watermill.LoggerAdapter) {
	router.AddNoPublisherHandler(
		"sheet_sync_handler",
		bot.TopicEventChanged,
		subscriber,
		handlers.HandleEventChanged,
	)

	router.AddNoPublisherHandler(
		"digest_handler",
		bot.TopicDigest,
		subscriber,
		handlers.HandleDigestEvent,
	)

	logger.Info("Event subscribers configured", watermill.LogFields{
		"handlers": []string{bot.TopicEventChanged, bot.TopicDigest},
	})
}
