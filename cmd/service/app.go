// cmd/service/app.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"repo-trend-tracker/internal/config"
	"repo-trend-tracker/internal/crawler"
	"repo-trend-tracker/internal/database"
	"repo-trend-tracker/internal/github"
	"repo-trend-tracker/internal/syncer"
)

// app holds the wired components shared by every command.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      database.Store
	engine     *syncer.Engine
	dispatcher *syncer.Dispatcher
	crawler    *crawler.Crawler
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	logger.Info("Configuration loaded successfully", "db_driver", cfg.DB.Driver)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	ghClient := github.NewClient(cfg.Github.Token, logger)
	if cfg.Github.APIURL != "" {
		if err := ghClient.SetBaseURL(cfg.Github.APIURL); err != nil {
			store.Close()
			return nil, err
		}
	}

	engine := syncer.NewEngine(ghClient, store, cfg.Trend.Params(), logger)
	c, err := crawler.New(ghClient, engine, cfg.Crawl.Options(), logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create crawler: %w", err)
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		engine:     engine,
		dispatcher: syncer.NewDispatcher(store, logger),
		crawler:    c,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (database.Store, error) {
	switch cfg.DB.Driver {
	case config.DriverSQLite:
		store, err := database.OpenSQLite(cfg.DB.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		logger.Info("SQLite database opened", "path", cfg.DB.URL)
		return store, nil
	default:
		dbpool, err := pgxpool.New(ctx, cfg.DB.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := dbpool.Ping(ctx); err != nil {
			dbpool.Close()
			return nil, fmt.Errorf("failed to reach database: %w", err)
		}
		logger.Info("Database connection established")

		if err := runMigrations(cfg.MigrationsURL, cfg.DB.URL); err != nil {
			dbpool.Close()
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		logger.Info("Database migrations applied successfully")
		return database.NewPostgresStore(dbpool), nil
	}
}

func runMigrations(sourceURL, dbURL string) error {
	m, err := migrate.New(sourceURL, dbURL)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// newLogger builds the process logger. JSON goes to stdout for the service; the
// text format renders through charmbracelet/log on stderr for interactive use.
func newLogger(cfg config.LogConfig) *slog.Logger {
	logLevel := new(slog.LevelVar)
	setLogLevel(cfg.Level, logLevel)

	if strings.EqualFold(cfg.Format, "text") {
		handler := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.00",
			Level:           charmlog.Level(logLevel.Level()),
		})
		return slog.New(handler)
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	return slog.New(handler)
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch strings.ToLower(level) {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}
