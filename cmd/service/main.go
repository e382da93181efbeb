// cmd/service/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"repo-trend-tracker/internal/api"
	"repo-trend-tracker/internal/config"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		slog.Error("Application error", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "trend-tracker",
		Short:        "Tracks repository star growth and queues trending candidates",
		SilenceUsage: true,
		RunE:         runServe,
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled crawler (default)",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	})
	root.AddCommand(&cobra.Command{
		Use:   "ingest <owner/name>",
		Short: "Fetch, score and store a single repository",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngest,
	})
	root.AddCommand(&cobra.Command{
		Use:   "crawl",
		Short: "Run one full search crawl and print its summary",
		Args:  cobra.NoArgs,
		RunE:  runCrawl,
	})
	root.AddCommand(newCandidatesCmd())
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	})

	return root
}

func newCandidatesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "Dispatch the oldest promoted repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				repos, err := a.dispatcher.TakeOldestUndispatched(ctx, limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), repos)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 3, "maximum number of candidates to dispatch")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		router := api.NewRouter(a.engine, a.crawler, a.dispatcher, a.logger)
		srv := &http.Server{
			Addr:              a.cfg.HTTP.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		crawlerDone := make(chan struct{})
		go func() {
			a.crawler.Start(ctx)
			close(crawlerDone)
		}()

		errCh := make(chan error, 1)
		go func() {
			a.logger.Info("HTTP server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
		case <-ctx.Done():
			a.logger.Info("Shutdown signal received")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		// Start returns once scheduled and triggered runs have ended, before the store is closed.
		<-crawlerDone
		return nil
	})
}

func runIngest(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		rec, err := a.engine.Ingest(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rec)
	})
}

func runCrawl(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		summary, err := a.crawler.RunOnce(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), summary)
	})
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := newLogger(cfg.Log)
	if cfg.DB.Driver != config.DriverPostgres {
		logger.Info("SQLite schema is applied on open, nothing to migrate")
		return nil
	}
	if err := runMigrations(cfg.MigrationsURL, cfg.DB.URL); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	logger.Info("Database migrations applied successfully")
	return nil
}

// withApp loads configuration, builds the application and runs fn until it returns
// or the process is interrupted.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
