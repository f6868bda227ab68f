// Package config loads JogPipe configuration from defaults, an optional YAML file and
// JOGPIPE_ environment variables, in that order of precedence.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
)

// EnvPrefix prefixes every environment override. A double underscore separates
// nested keys: JOGPIPE_HTTP__ADDR sets http.addr.
const EnvPrefix = "JOGPIPE_"

// Push transports.
const (
	TransportLog    = "log"
	TransportFCM    = "fcm"
	TransportTwilio = "twilio"
)

type Config struct {
	Timezone string         `koanf:"timezone"`
	Log      LogConfig      `koanf:"log"`
	Store    StoreConfig    `koanf:"store"`
	HTTP     HTTPConfig     `koanf:"http"`
	Push     PushConfig     `koanf:"push"`
	Schedule ScheduleConfig `koanf:"schedule"`
	Engine   EngineConfig   `koanf:"engine"`
	Runner   RunnerConfig   `koanf:"runner"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

type StoreConfig struct {
	// DSN is a SQLite file path or a Postgres connection string. Empty selects the
	// in-memory store.
	DSN string `koanf:"dsn"`
}

type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type PushConfig struct {
	Transport   string        `koanf:"transport"`
	SendTimeout time.Duration `koanf:"send_timeout"`
	Rate        float64       `koanf:"rate"` // sends per second, 0 disables pacing
	Burst       int           `koanf:"burst"`
	FCM         FCMConfig     `koanf:"fcm"`
	Twilio      TwilioConfig  `koanf:"twilio"`
}

type FCMConfig struct {
	CredentialsFile   string `koanf:"credentials_file"`
	CredentialsBase64 string `koanf:"credentials_base64"`
	ProjectID         string `koanf:"project_id"`
}

type TwilioConfig struct {
	AccountSID string `koanf:"account_sid"`
	AuthToken  string `koanf:"auth_token"`
	FromNumber string `koanf:"from_number"`
}

// ScheduleConfig holds one cron expression per pass kind, evaluated in Timezone.
type ScheduleConfig struct {
	Notify  string `koanf:"notify"`
	Overdue string `koanf:"overdue"`
	Symptom string `koanf:"symptom"`
	Nightly string `koanf:"nightly"`
	Streak  string `koanf:"streak"`
}

// Specs returns the schedules keyed by pass kind.
func (s ScheduleConfig) Specs() map[string]string {
	return map[string]string{
		"notify":  s.Notify,
		"overdue": s.Overdue,
		"symptom": s.Symptom,
		"nightly": s.Nightly,
		"streak":  s.Streak,
	}
}

type EngineConfig struct {
	Workers         int           `koanf:"workers"`
	OverdueLag      time.Duration `koanf:"overdue_lag"`
	PassMaxLateness time.Duration `koanf:"pass_max_lateness"`
	DedupRetention  time.Duration `koanf:"dedup_retention"`
}

type RunnerConfig struct {
	PollInterval   time.Duration `koanf:"poll_interval"`
	StaleThreshold time.Duration `koanf:"stale_threshold"`
	ClaimLimit     int           `koanf:"claim_limit"`
}

// envKey maps JOGPIPE_PUSH__FCM__PROJECT_ID to push.fcm.project_id.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Load reads configuration. configPath may be empty.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(NewDefaultProvider(), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Location resolves the configured civil zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SlogLevel parses the configured log level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}
	return lvl, nil
}

func (c *Config) Validate() error {
	if c.Timezone == "" {
		return fmt.Errorf("timezone is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}

	switch c.Push.Transport {
	case TransportLog, TransportFCM:
	case TransportTwilio:
		if c.Push.Twilio.FromNumber == "" {
			return fmt.Errorf("push.twilio.from_number is required for the twilio transport")
		}
	default:
		return fmt.Errorf("unknown push transport: %s (supported: %s, %s, %s)",
			c.Push.Transport, TransportLog, TransportFCM, TransportTwilio)
	}
	if c.Push.Rate < 0 {
		return fmt.Errorf("push.rate must not be negative")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for kind, spec := range c.Schedule.Specs() {
		if spec == "" {
			return fmt.Errorf("schedule.%s is required", kind)
		}
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("schedule.%s: %w", kind, err)
		}
	}

	if c.Engine.Workers <= 0 {
		return fmt.Errorf("engine.workers must be positive")
	}
	if c.Engine.OverdueLag < 0 {
		return fmt.Errorf("engine.overdue_lag must not be negative")
	}
	if c.Engine.PassMaxLateness <= 0 {
		return fmt.Errorf("engine.pass_max_lateness must be positive")
	}
	if c.Runner.PollInterval <= 0 {
		return fmt.Errorf("runner.poll_interval must be positive")
	}
	if c.Runner.ClaimLimit <= 0 {
		return fmt.Errorf("runner.claim_limit must be positive")
	}
	return nil
}
