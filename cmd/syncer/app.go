package main

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"feed_syncer/internal/backup"
	"feed_syncer/internal/config"
	"feed_syncer/internal/logging"
	"feed_syncer/internal/publisher"
	"feed_syncer/internal/service"
	"feed_syncer/internal/source/feed"
	"feed_syncer/internal/storage/postgres"
	"feed_syncer/internal/storage/sheets"
)

// app holds the wired sync service and everything that must be closed on exit.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	service *service.SyncService
	source  *feed.Source
	closers []func() error
}

func newApp(path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, closeLog := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	a := &app{cfg: cfg, logger: logger, closers: []func() error{closeLog}}

	var db *sqlx.DB
	if cfg.Database.Enabled() {
		db, err = sqlx.Connect("postgres", cfg.Database.DSN())
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		logger.Info("connected to database", "host", cfg.Database.Host, "dbname", cfg.Database.DBName)
	}

	var store service.RecordStore
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		store = postgres.NewRecordStore(db, cfg.Database.Sheet, cfg.Store.Columns, logger)
	default:
		store = sheets.New(sheets.Config{
			SpreadsheetID:   cfg.Sheets.SpreadsheetID,
			SheetName:       cfg.Sheets.SheetName,
			CredentialsFile: cfg.Sheets.CredentialsFile,
			Columns:         cfg.Store.Columns,
		}, logger)
	}

	var runs service.RunStore
	if db != nil {
		runs = postgres.NewRunStore(db)
	}

	var pub service.Publisher
	if cfg.RabbitMQ.Enabled() {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect to rabbitmq: %w", err)
		}
		a.closers = append(a.closers, rabbitMQ.Close)
		pub = rabbitMQ
	}

	a.source = feed.New(feed.Config{
		BaseURL:   cfg.Source.BaseURL,
		Timeout:   cfg.Source.Timeout,
		UserAgent: cfg.Source.UserAgent,
		MaxPages:  cfg.Source.MaxPages,
	}, logger)

	a.service = service.NewSyncService(
		a.source,
		store,
		backup.NewWriter(cfg.Backup.Dir, logger),
		runs,
		pub,
		cfg.Store.Columns,
		logger,
		cfg.Sync,
	)

	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logger != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}
