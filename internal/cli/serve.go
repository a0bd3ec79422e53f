package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"appointo/internal/api"
	"appointo/internal/booking"
	"appointo/internal/config"
	"appointo/internal/database"
	"appointo/internal/events"
	"appointo/internal/export"
	"appointo/internal/grpcapi"
	"appointo/internal/metrics"
	"appointo/internal/notify"
	"appointo/internal/slots"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC APIs with reminders, sinks and backups",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	db, err := openDB(cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	err = config.WatchCatalog(ctx, cfg.Catalog.Path, cfg.CatalogWatchInterval(), logger, func(cat *config.CatalogConfig) {
		withDefaultTimezone(cat, cfg.Booking.DefaultTimezone)
		if err := db.SyncCatalogFromConfig(ctx, cat); err != nil {
			logger.Error().Err(err).Msg("catalog sync failed")
			return
		}
		logger.Info().Str("catalog", cat.String()).Msg("catalog synced")
	})
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	var rdb *redis.Client
	var conflicts slots.ConflictSource = slots.NewStoreConflictSource(db)
	var invalidator booking.CacheInvalidator
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		cached := slots.NewCachedConflictSource(conflicts, rdb, cfg.CacheTTL(), logger)
		conflicts = cached
		invalidator = cached
	}

	generator := slots.NewGenerator(slots.NewHoursProvider(db), conflicts,
		slots.WithMinAdvance(cfg.MinAdvance()),
		slots.WithMaxAdvance(cfg.MaxAdvance()),
	)
	finder := slots.NewFinder(db, generator)

	bus := events.NewEventBus(logger)
	notifier := notify.NewNotifier(db, telegramMessenger(cfg, logger), logger)
	notifier.Subscribe(bus)
	closeSinks := subscribeSinks(ctx, cfg, db, bus, logger)
	defer closeSinks()

	bookings := booking.NewService(db, finder, invalidator, bus, logger)

	if cfg.Backup.Enabled {
		go database.NewBackupService(db, cfg.Backup, &logger).Start(ctx)
	}
	if cfg.Reminders.Enabled {
		notify.NewReminders(db, notifier, bus, notify.ReminderConfig{
			HoursBefore: cfg.Reminders.HoursBefore,
			Interval:    time.Duration(cfg.Reminders.CheckIntervalMinutes) * time.Minute,
		}, logger).Start(ctx)
	}

	go api.StartHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, logger)
	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go api.StartMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
	}

	csrf := api.NewCSRF([]byte(cfg.CSRF.HashKey), cfg.CSRFMaxAge())
	httpServer := api.NewServer(api.Options{
		Address: cfg.HTTP.Address,
		APIKey:  cfg.HTTP.APIKey,
		Debug:   cfg.HTTP.Debug,
	}, db, finder, bookings, csrf, logger)

	errCh := make(chan error, 2)
	go func() { errCh <- httpServer.Start() }()
	if cfg.GRPC.Address != "" {
		grpcServer := grpcapi.NewServer(finder, logger)
		go func() { errCh <- grpcapi.Serve(ctx, grpcServer, cfg.GRPC.Address, logger) }()
	}

	logger.Info().Str("version", Version).Msg("appointo started")

	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server stopped")
		}
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil && !errors.Is(serr, context.Canceled) {
		logger.Warn().Err(serr).Msg("http shutdown")
	}
	logger.Info().Msg("appointo stopped")
	return err
}

// telegramMessenger returns nil when no bot token is configured or the bot cannot connect.
func telegramMessenger(cfg *config.Config, logger zerolog.Logger) notify.Messenger {
	if cfg.Telegram.BotToken == "" {
		return nil
	}
	sender, err := notify.NewTelegramSender(cfg.Telegram.BotToken, cfg.Telegram.MessagesPerSec, cfg.Telegram.Burst, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram disabled")
		return nil
	}
	return sender
}

// subscribeSinks attaches the optional RabbitMQ and Google Sheets sinks and returns a closer.
func subscribeSinks(ctx context.Context, cfg *config.Config, db *database.DB, bus *events.EventBus, logger zerolog.Logger) func() {
	closers := []func(){}

	if cfg.RabbitMQ.URL != "" {
		sink, err := events.DialAMQPSink(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			logger.Warn().Err(err).Msg("rabbitmq sink disabled")
		} else {
			bus.Subscribe("amqp", sink.Handle,
				events.BookingCreated, events.BookingRescheduled, events.BookingCanceled, events.BookingReminder)
			closers = append(closers, func() { _ = sink.Close() })
		}
	}

	if cfg.Sheets.Enabled {
		sheetsAPI, err := export.NewSheetsAPI(ctx, cfg.Sheets.CredentialsFile)
		if err != nil {
			logger.Warn().Err(err).Msg("sheets sink disabled")
		} else {
			sink := export.NewSheetsSink(sheetsAPI, cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName, logger)
			if err := seedSheet(ctx, db, sink); err != nil {
				logger.Warn().Err(err).Msg("initial sheet export failed")
			}
			bus.Subscribe("sheets", sink.Handle,
				events.BookingCreated, events.BookingRescheduled, events.BookingCanceled)
		}
	}

	return func() {
		for _, c := range closers {
			c()
		}
	}
}

// seedSheet rewrites the sheet with the bookings of the last and next 30 days so row
// positions are known before the first event arrives.
func seedSheet(ctx context.Context, db *database.DB, sink *export.SheetsSink) error {
	now := time.Now().UTC()
	list, err := db.ListBookingsRange(ctx, now.AddDate(0, 0, -30), now.AddDate(0, 0, 30))
	if err != nil {
		return err
	}
	rows, err := export.BuildRows(ctx, db, list)
	if err != nil {
		return err
	}
	return sink.Replace(ctx, rows)
}
