package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/BTreeMap/JogPipe/internal/api"
	"github.com/BTreeMap/JogPipe/internal/config"
	"github.com/BTreeMap/JogPipe/internal/engine"
	"github.com/BTreeMap/JogPipe/internal/lockfile"
	"github.com/BTreeMap/JogPipe/internal/metrics"
	"github.com/BTreeMap/JogPipe/internal/scheduler"
	"github.com/BTreeMap/JogPipe/internal/store"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the pass scheduler and the pass runner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	return cmd
}

// passSchedules returns the configured cron schedule of every pass kind.
func passSchedules(cfg config.ScheduleConfig) []scheduler.Schedule {
	specs := cfg.Specs()
	out := make([]scheduler.Schedule, 0, len(specs))
	for _, kind := range engine.Kinds() {
		if spec := specs[kind]; spec != "" {
			out = append(out, scheduler.Schedule{Kind: kind, Spec: spec})
		}
	}
	return out
}

func runServe(parent context.Context, rootOpts *RootOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(rootOpts)
	if err != nil {
		return err
	}

	// Two schedulers on one SQLite file would double every pass.
	if cfg.Store.DSN != "" && store.DetectDSNType(cfg.Store.DSN) == "sqlite3" {
		lock, err := lockfile.Acquire(filepath.Dir(store.SQLiteFilePath(cfg.Store.DSN)))
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	metrics.Register(prometheus.DefaultRegisterer)

	runner := store.NewPassRunner(a.store, cfg.Runner.PollInterval,
		store.WithStaleThreshold(cfg.Runner.StaleThreshold),
		store.WithMaxLateness(cfg.Engine.PassMaxLateness),
		store.WithClaimLimit(cfg.Runner.ClaimLimit),
	)
	a.engine.RegisterPasses(runner)
	if err := runner.RecoverStalePasses(ctx); err != nil {
		slog.Warn("serve: stale pass recovery failed", "error", err)
	}
	go runner.Run(ctx)

	sched := scheduler.NewScheduler(a.loc)
	if err := sched.SchedulePasses(ctx, a.store, passSchedules(cfg.Schedule)); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	slog.Info("JogPipe started", "addr", cfg.HTTP.Addr, "timezone", a.loc.String(), "transport", cfg.Push.Transport, "schedules", sched.Len())

	srv := api.NewServer(a.engine, a.store)
	if err := api.ListenAndServe(ctx, cfg.HTTP.Addr, srv.Handler(),
		cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout, cfg.HTTP.ShutdownTimeout); err != nil {
		return err
	}
	slog.Info("JogPipe exited successfully")
	return nil
}
