package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSONAppliesDefaults(t *testing.T) {
	cfg, err := Decode("config.json", []byte(`{
		"registry": {"driver": "cron"},
		"trigger": {"url": "http://localhost:8080/trigger"},
		"chat": {"driver": "googlechat"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "us-central1", cfg.Registry.Location)
	assert.Equal(t, "local", cfg.Registry.Project)
	assert.Equal(t, "http://localhost:8080/trigger", cfg.Trigger.Audience)
	assert.Equal(t, DefaultTime, cfg.Defaults.Time)
	assert.Equal(t, DefaultDays, cfg.Defaults.Days)
	assert.Equal(t, DefaultTimeZone, cfg.Defaults.TimeZone)
	assert.Equal(t, 1, cfg.Chat.RatePerSec)
}

func TestDecodeYAML(t *testing.T) {
	cfg, err := Decode("config.yaml", []byte(`
store:
  driver: sqlite
  path: ./data/standup.db
registry:
  driver: cloudscheduler
  project: my-proj
trigger:
  url: https://example.run.app/trigger
logging:
  level: debug
  format: json
  console: true
`))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "my-proj", cfg.Registry.Project)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Logging.Console)
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode("config.json", []byte(`{"registry":{"driver":"cron"},"bogus":1}`))
	require.Error(t, err)
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	_, err := Decode("config.json", []byte(`{"registry":{"driver":"cron"}}{}`))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "unknown store", raw: `{"store":{"driver":"mongo"},"registry":{"driver":"cron"}}`},
		{name: "sqlite without path", raw: `{"store":{"driver":"sqlite"},"registry":{"driver":"cron"}}`},
		{name: "postgres without dsn", raw: `{"store":{"driver":"postgres"},"registry":{"driver":"cron"}}`},
		{name: "cloudscheduler without project", raw: `{"trigger":{"url":"https://x.example/t"}}`},
		{name: "cloudscheduler without trigger", raw: `{"registry":{"project":"p"}}`},
		{name: "telegram without token", raw: `{"registry":{"driver":"cron"},"chat":{"driver":"telegram"}}`},
		{name: "bad shutdown timeout", raw: `{"registry":{"driver":"cron"},"server":{"shutdown_timeout":"soon"}}`},
		{name: "bad chat timeout", raw: `{"registry":{"driver":"cron"},"chat":{"timeout":"soon"}}`},
		{name: "negative fire timeout", raw: `{"registry":{"driver":"cron","fire_timeout":"-1s"}}`},
		{name: "bad auth timeout", raw: `{"registry":{"driver":"cron"},"auth":{"timeout":"1x"}}`},
		{name: "default time not a clock", raw: `{"registry":{"driver":"cron"},"defaults":{"time":"9am"}}`},
		{name: "default time out of range", raw: `{"registry":{"driver":"cron"},"defaults":{"time":"24:30"}}`},
		{name: "unknown default timezone", raw: `{"registry":{"driver":"cron"},"defaults":{"timezone":"Mars/Olympus"}}`},
		{name: "local default timezone", raw: `{"registry":{"driver":"cron"},"defaults":{"timezone":"Local"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode("config.json", []byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestValidateAccepts(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "pgx store", raw: `{"store":{"driver":"pgx","dsn":"postgres://x"},"registry":{"driver":"cron"}}`},
		{name: "timeouts", raw: `{"registry":{"driver":"cron","fire_timeout":"2m","timeout":"30s"},"chat":{"timeout":"10s"},"auth":{"timeout":"5s"}}`},
		{name: "defaults", raw: `{"registry":{"driver":"cron"},"defaults":{"time":"9:05","timezone":"Europe/Berlin"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode("config.json", []byte(tt.raw))
			assert.NoError(t, err)
		})
	}
}

func TestValidateJoinsAllProblems(t *testing.T) {
	_, err := Decode("config.json", []byte(`{"store":{"driver":"sqlite"},"registry":{"driver":"cron"},"defaults":{"time":"noon"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.path")
	assert.Contains(t, err.Error(), "defaults.time")
}

func TestManagerLoadAndSubscribe(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"registry":{"driver":"cron"},"logging":{"level":"info"}}`), 0o600))

	m := NewManager(path)
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "info", m.Get().Logging.Level)
	assert.Same(t, cfg, m.Get())

	ch := m.Subscribe(1)
	require.NoError(t, os.WriteFile(path, []byte(`{"registry":{"driver":"cron"},"logging":{"level":"debug"}}`), 0o600))
	m.reload()

	select {
	case got := <-ch:
		assert.Equal(t, "debug", got.Logging.Level)
	case <-time.After(time.Second):
		t.Fatal("expected reloaded config to be published")
	}

	// Same content again: no publish.
	m.reload()
	select {
	case <-ch:
		t.Fatal("unchanged config must not be republished")
	default:
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)

	d, err = ParseDurationOrDefault("x", "250ms", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	_, err = ParseDurationOrDefault("x", "-1s", time.Second)
	assert.Error(t, err)
}
