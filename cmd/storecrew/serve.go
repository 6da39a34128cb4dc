package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mtzanidakis/storecrew/internal/config"
	"github.com/mtzanidakis/storecrew/internal/metrics"
	"github.com/mtzanidakis/storecrew/internal/scheduler"
	"github.com/mtzanidakis/storecrew/internal/web"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the crew on its schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.Schedule.Cron == "" {
				return &config.ConfigurationError{Section: "schedule", Missing: []string{"schedule.cron"}}
			}

			var m *metrics.Metrics
			if a.cfg.Metrics.Enabled {
				reg, rm := metrics.NewRegistry()
				m = rm
				go func() {
					if err := metrics.Serve(ctx, a.cfg.Metrics.Addr, reg); err != nil {
						slog.Error("metrics endpoint error", "error", err)
					}
				}()
			}

			if a.cfg.Web.Enabled {
				srv := web.NewServer(a.db, a.client, a.cfg.Web, version)
				go func() {
					if err := srv.Start(ctx); err != nil {
						slog.Error("web server error", "error", err)
					}
				}()
			}

			c, err := a.newCrew(ctx, "schedule", m)
			if err != nil {
				return err
			}

			sched, err := scheduler.New(a.cfg.Schedule, func(ctx context.Context) error {
				report, err := c.Run(ctx)
				a.notify(ctx, report)
				return err
			})
			if err != nil {
				return fmt.Errorf("init scheduler: %w", err)
			}

			slog.Info("storecrew serving", "version", version, "schedule", sched.Schedule().String())
			sched.Start(ctx)
			slog.Info("shutting down")
			return nil
		},
	}
}
