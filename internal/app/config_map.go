package app

import (
	"time"

	"github.com/google/go-cmp/cmp"

	"standupbot/internal/config"
	"standupbot/internal/httpapi"
	"standupbot/internal/reconcile"
	"standupbot/internal/store"
	"standupbot/internal/transport/telegram"
)

func mapStoreConfig(cfg *config.Config) (store.Config, error) {
	sc := cfg.Store
	busy, err := config.ParseDurationOrDefault("store.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{
		Driver:      sc.Driver,
		Path:        sc.Path,
		DSN:         sc.DSN,
		Addr:        sc.Addr,
		Password:    sc.Password,
		DB:          sc.DB,
		Prefix:      sc.Prefix,
		BusyTimeout: busy,
	}, nil
}

func mapServerConfig(cfg *config.Config) (httpapi.Config, error) {
	read, err := config.ParseDurationOrDefault("server.read_timeout", cfg.Server.ReadTimeout, 30*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("server.write_timeout", cfg.Server.WriteTimeout, 30*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	return httpapi.Config{Addr: cfg.Server.Addr, ReadTimeout: read, WriteTimeout: write}, nil
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("chat.telegram.poll_timeout", cfg.Chat.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       cfg.Chat.Telegram.Token,
		PollTimeout: poll,
		RatePerSec:  cfg.Chat.RatePerSec,
	}, nil
}

func mapReconcileConfig(cfg *config.Config) reconcile.Config {
	return reconcile.Config{
		Project:    cfg.Registry.Project,
		Location:   cfg.Registry.Location,
		JobPrefix:  cfg.Registry.JobPrefix,
		TriggerURL: cfg.Trigger.URL,
		Audience:   cfg.Trigger.Audience,
		Defaults: reconcile.Defaults{
			Time:     cfg.Defaults.Time,
			Days:     cfg.Defaults.Days,
			TimeZone: cfg.Defaults.TimeZone,
		},
	}
}

// outboundTimeouts holds the per-call deadlines of outbound clients. Zero
// means none.
type outboundTimeouts struct {
	registry, fire, chat, auth time.Duration
}

func mapOutboundTimeouts(cfg *config.Config) (outboundTimeouts, error) {
	var (
		t   outboundTimeouts
		err error
	)
	fields := []struct {
		dst        *time.Duration
		field, raw string
	}{
		{&t.registry, "registry.timeout", cfg.Registry.Timeout},
		{&t.fire, "registry.fire_timeout", cfg.Registry.FireTimeout},
		{&t.chat, "chat.timeout", cfg.Chat.Timeout},
		{&t.auth, "auth.timeout", cfg.Auth.Timeout},
	}
	for _, f := range fields {
		if *f.dst, err = config.ParseDurationField(f.field, f.raw); err != nil {
			return outboundTimeouts{}, err
		}
	}
	return t, nil
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	d, err := config.ParseDurationOrDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout, 10*time.Second)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// restartRequired reports whether next differs from prev outside the
// sections applied live.
func restartRequired(prev, next *config.Config) bool {
	if prev == nil || next == nil {
		return false
	}
	a, b := *prev, *next
	a.Logging, b.Logging = config.LoggingConfig{}, config.LoggingConfig{}
	return !cmp.Equal(a, b)
}
