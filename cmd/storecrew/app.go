package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mtzanidakis/storecrew/internal/config"
	"github.com/mtzanidakis/storecrew/internal/crew"
	"github.com/mtzanidakis/storecrew/internal/metrics"
	"github.com/mtzanidakis/storecrew/internal/natsbus"
	"github.com/mtzanidakis/storecrew/internal/pipeline"
	"github.com/mtzanidakis/storecrew/internal/store"
	"github.com/mtzanidakis/storecrew/internal/telegram"
	"github.com/mtzanidakis/storecrew/internal/vault"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(newLogger(cfg.Log, os.Stderr))
	return cfg, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// app holds the long-lived collaborators a crew command runs with.
type app struct {
	cfg      *config.Config
	db       *store.Store
	bus      *natsbus.Bus
	client   *natsbus.Client
	notifier *telegram.Notifier
}

func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := store.New(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	a := &app{cfg: cfg, db: db}

	if cfg.HasSecretRefs() {
		v, err := vault.New(cfg.Vault.Passphrase)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := cfg.ResolveSecrets(vault.NewKeeper(v, db).Lookup()); err != nil {
			a.Close()
			return nil, err
		}
	}

	if cfg.NATS.Enabled {
		bus, err := natsbus.New(cfg.NATS)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init nats: %w", err)
		}
		a.bus = bus
		client, err := natsbus.NewClient(bus)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.client = client
		slog.Info("nats started", "url", bus.ClientURL())
	}

	if cfg.Telegram.Token != "" {
		n, err := telegram.NewNotifier(cfg.Telegram)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init telegram notifier: %w", err)
		}
		a.notifier = n
	} else {
		slog.Debug("telegram token not set, notifications disabled")
	}
	return a, nil
}

func (a *app) newCrew(ctx context.Context, mode string, m *metrics.Metrics) (*crew.Crew, error) {
	opts := crew.Options{
		Config:  a.cfg,
		Store:   a.db,
		Metrics: m,
		Mode:    mode,
	}
	if a.client != nil {
		opts.Events = natsbus.NewEvents(a.client)
	}
	return crew.New(ctx, opts)
}

// notify sends the report to Telegram. A failed notification is logged,
// never returned.
func (a *app) notify(ctx context.Context, report *pipeline.Report) {
	if a.notifier == nil || report == nil {
		return
	}
	if err := a.notifier.Notify(ctx, report); err != nil {
		slog.Warn("telegram notification failed", "run", report.RunID, "error", err)
	}
}

func (a *app) Close() {
	if a.client != nil {
		_ = a.client.Flush()
		a.client.Close()
	}
	if a.bus != nil {
		a.bus.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
