// Package app wires configuration into the running bot: the state store, the
// job registry, the chat surfaces and the webhook server.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"standupbot/internal/bot"
	"standupbot/internal/chat"
	"standupbot/internal/chat/googlechat"
	"standupbot/internal/config"
	"standupbot/internal/gcp"
	"standupbot/internal/httpapi"
	"standupbot/internal/jobs"
	"standupbot/internal/jobs/cloudscheduler"
	"standupbot/internal/jobs/cronjobs"
	"standupbot/internal/reconcile"
	"standupbot/internal/runtime/supervisor"
	"standupbot/internal/standup"
	"standupbot/internal/store"
	"standupbot/internal/transport/telegram"
	logx "standupbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	cfg  *config.Config

	log  logx.Logger
	logs *logx.Service

	store      store.Store
	reconciler *reconcile.Reconciler
	bot        *bot.Bot
	standup    *standup.Dispatcher
	http       *httpapi.Server

	// cron is set when jobs run in-process; telegram when chat runs over Telegram.
	cron     *cronjobs.Registry
	telegram *telegram.Adapter

	sup *supervisor.Supervisor
}

// New loads the config file at cfgPath and builds the app.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	logs, log := logx.New(cfg.LogConfig())
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a, err := build(cfg, log)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	a.cfgm = cfgm
	a.logs = logs
	return a, nil
}

// build constructs every component from cfg. Nothing is started.
func build(cfg *config.Config, log logx.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log.With(logx.String("comp", "app"))}

	sc, err := mapStoreConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(sc, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = st
	a.log.Info("store opened", logx.String("driver", sc.Driver))

	timeouts, err := mapOutboundTimeouts(cfg)
	if err != nil {
		return a.fail(err)
	}

	creds := gcp.Static{
		AccessToken:         cfg.Auth.StaticToken,
		ServiceAccountEmail: cfg.Auth.ServiceAccountEmail,
		Fallback:            gcp.NewMetadata(cfg.Auth.MetadataHost, timeouts.auth),
	}

	var sender chat.Sender
	switch cfg.Chat.Driver {
	case "telegram":
		tc, err := mapTelegramConfig(cfg)
		if err != nil {
			return a.fail(err)
		}
		ad, err := telegram.New(tc, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return a.fail(fmt.Errorf("telegram: %w", err))
		}
		a.telegram = ad
		sender = ad
	default:
		sender = googlechat.New(googlechat.Config{
			Endpoint:   cfg.Chat.Endpoint,
			RatePerSec: cfg.Chat.RatePerSec,
			Timeout:    timeouts.chat,
		}, creds, log.With(logx.String("comp", "googlechat")))
	}

	a.standup = standup.New(st, sender, cfg.Defaults.TimeZone, log.With(logx.String("comp", "standup")))

	var (
		reg   jobs.Registry
		ident gcp.Identity
	)
	switch cfg.Registry.Driver {
	case "cron":
		a.cron = cronjobs.New(a.standup.Standup, cfg.Defaults.TimeZone, log.With(logx.String("comp", "cron")),
			cronjobs.WithFireTimeout(timeouts.fire))
		reg = a.cron
	default:
		reg = cloudscheduler.New(cloudscheduler.Config{
			Endpoint:        cfg.Registry.Endpoint,
			DefaultTimeZone: cfg.Defaults.TimeZone,
			Timeout:         timeouts.registry,
		}, creds, log.With(logx.String("comp", "cloudscheduler")))
		ident = creds
	}

	a.reconciler = reconcile.New(mapReconcileConfig(cfg), st, reg, ident, log.With(logx.String("comp", "reconcile")))
	a.bot = bot.New(bot.Config{DefaultTime: cfg.Defaults.Time}, st, a.reconciler, log.With(logx.String("comp", "bot")))

	hc, err := mapServerConfig(cfg)
	if err != nil {
		return a.fail(err)
	}
	a.http = httpapi.New(hc, a.bot, a.standup, log.With(logx.String("comp", "http")))
	return a, nil
}

func (a *App) fail(err error) (*App, error) {
	if a.store != nil {
		_ = a.store.Close()
	}
	return nil, err
}

// ShutdownTimeout bounds Stop.
func (a *App) ShutdownTimeout() time.Duration { return shutdownTimeout(a.cfg) }

// Done is closed when the app fails fatally or is stopped.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed after Start.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start launches the webhook server and, when configured, the in-process
// cron registry (after re-deriving every room's job) and the Telegram poller.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	if a.cron != nil {
		n, err := a.reconciler.ReconcileAll(ctx)
		if err != nil {
			a.log.Warn("some rooms failed to reconcile", logx.Int("scheduled", n), logx.Err(err))
		} else {
			a.log.Info("rooms reconciled", logx.Int("scheduled", n))
		}
		a.cron.Start(a.sup.Context())
	}

	if err := a.http.Start(); err != nil {
		return err
	}

	if a.telegram != nil {
		if err := a.telegram.Start(a.sup.Context(), a.bot); err != nil {
			return err
		}
	}

	if a.cfgm != nil {
		a.sup.GoRestart("config.watch", 0, a.cfgm.Watch)
		sub := a.cfgm.Subscribe(4)
		a.sup.Go("config.apply", func(c context.Context) error {
			a.applyConfig(c, sub)
			return nil
		})
	}
	return nil
}

// applyConfig applies logging changes live and warns about the rest.
func (a *App) applyConfig(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfg
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			if a.logs != nil {
				a.logs.Apply(next.LogConfig())
			}
			if restartRequired(last, next) {
				a.log.Warn("config change needs a restart to take effect")
			}
			last = next
		}
	}
}

// Reconcile re-derives the recurring job of roomID, or of every room when
// roomID is empty. It returns the number of rooms visited.
func (a *App) Reconcile(ctx context.Context, roomID string) (int, error) {
	if roomID != "" {
		return 1, a.reconciler.Reconcile(ctx, roomID)
	}
	return a.reconciler.ReconcileAll(ctx)
}

// InProcessJobs reports whether recurring jobs live in this process.
func (a *App) InProcessJobs() bool { return a.cron != nil }

// Stop shuts every component down, bounded by ctx, and closes the store.
func (a *App) Stop(ctx context.Context) error {
	var errs []error
	if a.telegram != nil {
		errs = append(errs, a.telegram.Stop(ctx))
	}
	if a.sup != nil {
		errs = append(errs, a.http.Shutdown(ctx))
	}
	if a.cron != nil {
		a.cron.Stop(ctx)
	}
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
	}
	errs = append(errs, a.store.Close())
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}
