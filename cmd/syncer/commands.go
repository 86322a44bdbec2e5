package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"feed_syncer/internal/domain"
	"feed_syncer/internal/metrics"
	"feed_syncer/internal/scheduler"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sync now, then on every interval boundary until interrupted",
	Long: `Run a sync immediately, then again at every wall-clock multiple of
sync.interval (quarter-hourly by default). A tick that fires while the previous
run is still writing is skipped. On SIGINT/SIGTERM the in-flight run is allowed
to finish before the process exits.`,
	RunE: runScheduled,
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single incremental sync and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSingle(func(a *app, ctx context.Context) (*domain.SyncStats, error) {
			return a.service.Sync(ctx)
		})
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Crawl the whole feed and write every item missing from the table",
	Long: `Follow the feed cursor until the last page (or an empty page) instead of
stopping at the first page without new items, then write every item whose id
is not yet in the table. Use it to seed an empty table or to repair gaps.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSingle(func(a *app, ctx context.Context) (*domain.SyncStats, error) {
			return a.service.Backfill(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd, onceCmd, backfillCmd)
}

func runScheduled(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if a.cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, a.cfg.Metrics.Addr, a.logger); err != nil {
				a.logger.Error("metrics server error", "error", err)
			}
		}()
	}

	a.logger.Info("starting feed syncer",
		"source", a.source.Name(),
		"backend", a.cfg.Store.Backend,
		"interval", a.cfg.Sync.Interval,
		"backup_dir", a.cfg.Backup.Dir,
	)

	sched := scheduler.NewScheduler(a.service, a.cfg.Sync.Interval, a.logger)
	if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("scheduler error", "error", err)
		return err
	}
	return nil
}

func runSingle(fn func(a *app, ctx context.Context) (*domain.SyncStats, error)) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	_, err = fn(a, context.Background())
	return err
}
