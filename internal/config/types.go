package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Logging  LoggingConfig  `json:"logging"`
	Store    StoreConfig    `json:"store"`
	Registry RegistryConfig `json:"registry"`
	Trigger  TriggerConfig  `json:"trigger"`
	Chat     ChatConfig     `json:"chat"`
	Auth     AuthConfig     `json:"auth,omitempty"`
	Defaults DefaultsConfig `json:"defaults,omitempty"`
}

// ServerConfig controls the webhook HTTP server.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type ServerConfig struct {
	Addr            string `json:"addr"` // default ":8080"
	ReadTimeout     string `json:"read_timeout,omitempty"`
	WriteTimeout    string `json:"write_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"` // default "10s"
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	Format  string      `json:"format,omitempty"` // "console" | "json"
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StoreConfig selects the state store backend.
//
// Driver values:
//   - "memory": process-local, lost on restart
//   - "file": JSONL op journal + snapshot under Path
//   - "sqlite": SQLite database file at Path
//   - "postgres": DSN
//   - "redis": Addr (+ optional Password/DB), keys under Prefix
//
// Example:
//
//	"store": { "driver": "sqlite", "path": "./data/standup.db" }
type StoreConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	Addr        string `json:"addr,omitempty"`
	Password    string `json:"password,omitempty"` // do not log
	DB          int    `json:"db,omitempty"`
	Prefix      string `json:"prefix,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// RegistryConfig selects where recurring standup jobs live.
//
//   - "cloudscheduler": Google Cloud Scheduler REST API (Project/Location required)
//   - "cron": in-process robfig/cron registry (jobs are re-derived from rooms on boot)
type RegistryConfig struct {
	Driver    string `json:"driver"`
	Project   string `json:"project,omitempty"`
	Location  string `json:"location,omitempty"` // default "us-central1"
	Endpoint  string `json:"endpoint,omitempty"` // default "https://cloudscheduler.googleapis.com/v1/"
	JobPrefix string `json:"job_prefix,omitempty"`
	// Timeout bounds each Cloud Scheduler call; FireTimeout bounds each
	// in-process cron firing. Empty means no deadline.
	Timeout     string `json:"timeout,omitempty"`
	FireTimeout string `json:"fire_timeout,omitempty"`
}

// TriggerConfig is the webhook the registry calls when a standup is due.
type TriggerConfig struct {
	URL      string `json:"url"`
	Audience string `json:"audience,omitempty"` // default: URL
}

type ChatConfig struct {
	Driver     string         `json:"driver"`             // "googlechat" | "telegram"
	Endpoint   string         `json:"endpoint,omitempty"` // default "https://chat.googleapis.com"
	RatePerSec int            `json:"rate_per_sec,omitempty"`
	Timeout    string         `json:"timeout,omitempty"` // per send; empty means none
	Telegram   TelegramConfig `json:"telegram,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token,omitempty"` // do not log
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// AuthConfig controls outbound credentials. When StaticToken is empty the
// GCE/Cloud Run metadata server is queried on every call.
type AuthConfig struct {
	MetadataHost        string `json:"metadata_host,omitempty"` // default "metadata.google.internal"
	StaticToken         string `json:"static_token,omitempty"`  // do not log
	ServiceAccountEmail string `json:"service_account_email,omitempty"`
	Timeout             string `json:"timeout,omitempty"` // metadata calls; empty means none
}

// DefaultsConfig holds the values substituted for unset room fields.
type DefaultsConfig struct {
	Time     string `json:"time,omitempty"`     // default "10:00"
	Days     string `json:"days,omitempty"`     // default "mon,tue,wed,thu,fri"
	TimeZone string `json:"timezone,omitempty"` // default "America/Los_Angeles"
}

var reDefaultTime = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

const (
	DefaultTime     = "10:00"
	DefaultDays     = "mon,tue,wed,thu,fri"
	DefaultTimeZone = "America/Los_Angeles"
)

// Normalize fills omitted fields with defaults. It never fails.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Server.Addr) == "" {
		c.Server.Addr = ":8080"
	}
	if strings.TrimSpace(c.Server.ShutdownTimeout) == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Store.Prefix == "" {
		c.Store.Prefix = "standup"
	}
	c.Registry.Driver = strings.ToLower(strings.TrimSpace(c.Registry.Driver))
	if c.Registry.Driver == "" {
		c.Registry.Driver = "cloudscheduler"
	}
	if c.Registry.Location == "" {
		c.Registry.Location = "us-central1"
	}
	if c.Registry.Project == "" && c.Registry.Driver == "cron" {
		c.Registry.Project = "local"
	}
	if c.Trigger.Audience == "" {
		c.Trigger.Audience = c.Trigger.URL
	}
	c.Chat.Driver = strings.ToLower(strings.TrimSpace(c.Chat.Driver))
	if c.Chat.Driver == "" {
		c.Chat.Driver = "googlechat"
	}
	if c.Chat.RatePerSec <= 0 {
		c.Chat.RatePerSec = 1
	}
	if c.Defaults.Time == "" {
		c.Defaults.Time = DefaultTime
	}
	if c.Defaults.Days == "" {
		c.Defaults.Days = DefaultDays
	}
	if c.Defaults.TimeZone == "" {
		c.Defaults.TimeZone = DefaultTimeZone
	}
}

// Validate reports every configuration problem found, joined.
// Call Normalize first.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "memory":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Store.Path) == "" {
			errs = append(errs, fmt.Errorf("store.path is required for driver %q", c.Store.Driver))
		}
	case "postgres", "postgresql", "pgx":
		if strings.TrimSpace(c.Store.DSN) == "" {
			errs = append(errs, errors.New("store.dsn is required for driver postgres"))
		}
	case "redis":
		if strings.TrimSpace(c.Store.Addr) == "" {
			errs = append(errs, errors.New("store.addr is required for driver redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}

	switch c.Registry.Driver {
	case "cloudscheduler":
		if strings.TrimSpace(c.Registry.Project) == "" {
			errs = append(errs, errors.New("registry.project is required for driver cloudscheduler"))
		}
		if _, err := url.ParseRequestURI(c.Trigger.URL); err != nil {
			errs = append(errs, fmt.Errorf("trigger.url: %w", err))
		}
	case "cron":
	default:
		errs = append(errs, fmt.Errorf("registry.driver: unknown driver %q", c.Registry.Driver))
	}

	switch c.Chat.Driver {
	case "googlechat":
	case "telegram":
		if strings.TrimSpace(c.Chat.Telegram.Token) == "" {
			errs = append(errs, errors.New("chat.telegram.token is required for driver telegram"))
		}
	default:
		errs = append(errs, fmt.Errorf("chat.driver: unknown driver %q", c.Chat.Driver))
	}

	durations := []struct{ field, value string }{
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
		{"registry.timeout", c.Registry.Timeout},
		{"registry.fire_timeout", c.Registry.FireTimeout},
		{"chat.timeout", c.Chat.Timeout},
		{"auth.timeout", c.Auth.Timeout},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.field, d.value); err != nil {
			errs = append(errs, err)
		}
	}

	if !validClock(c.Defaults.Time) {
		errs = append(errs, fmt.Errorf("defaults.time: %q is not HH:MM", c.Defaults.Time))
	}
	if c.Defaults.TimeZone == "Local" {
		errs = append(errs, errors.New("defaults.timezone: Local is not allowed"))
	} else if _, err := time.LoadLocation(c.Defaults.TimeZone); err != nil {
		errs = append(errs, fmt.Errorf("defaults.timezone: %w", err))
	}
	return errors.Join(errs...)
}

func validClock(s string) bool {
	m := reDefaultTime.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	return hh < 24 && mm < 60
}
