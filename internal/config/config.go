// Package config loads the coordinator's YAML configuration file.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level shape of config.yaml. Durations are stored as
// strings ("30s", "5m") and parsed on read via the GetXxx accessors, so a
// malformed duration falls back to its default rather than zeroing a
// whole section.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	HTTP      HTTPConfig      `yaml:"http"`
	NATS      NATSConfig      `yaml:"nats"`
	Health    HealthConfig    `yaml:"health"`
	Reaper    ReaperConfig    `yaml:"reaper"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Fsutil    FsutilConfig    `yaml:"fsutil"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

type StoreConfig struct {
	DBPath string `yaml:"db_path"`
}

type HTTPConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// NATSConfig controls the optional NATS request-reply transport. An
// empty URL with Enabled true makes cmd/coordinatord spin up its own
// embedded broker instead of dialing an external one.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

type HealthConfig struct {
	ProbeInterval string `yaml:"probe_interval"`
}

// GetProbeInterval returns the parsed probe interval, falling back to
// health.DefaultSweepInterval on a missing or malformed value.
func (h HealthConfig) GetProbeInterval() time.Duration {
	d, err := time.ParseDuration(h.ProbeInterval)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

type ReaperConfig struct {
	StaleThreshold string `yaml:"stale_threshold"`
	SweepInterval  string `yaml:"sweep_interval"`
	// Schedule is an optional cron expression (robfig/cron/v3 syntax). When
	// set, cmd/coordinatord -reap-only runs a sweep on that schedule; when
	// empty, -reap-only runs one sweep and exits.
	Schedule string `yaml:"schedule"`
}

func (r ReaperConfig) GetStaleThreshold() time.Duration {
	d, err := time.ParseDuration(r.StaleThreshold)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

func (r ReaperConfig) GetSweepInterval() time.Duration {
	d, err := time.ParseDuration(r.SweepInterval)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

type DispatchConfig struct {
	ActiveAgentWindow  string `yaml:"active_agent_window"`
	MaxLongPollTimeout string `yaml:"max_long_poll_timeout"`
}

func (d DispatchConfig) GetActiveAgentWindow() time.Duration {
	parsed, err := time.ParseDuration(d.ActiveAgentWindow)
	if err != nil {
		return 30 * time.Minute
	}
	return parsed
}

func (d DispatchConfig) GetMaxLongPollTimeout() time.Duration {
	parsed, err := time.ParseDuration(d.MaxLongPollTimeout)
	if err != nil {
		return 180 * time.Second
	}
	return parsed
}

type FsutilConfig struct {
	ProjectsBasePath string `yaml:"projects_base_path"`
}

type DashboardConfig struct {
	Enabled        bool     `yaml:"enabled"`
	ListenAddr     string   `yaml:"listen_addr"`
	PollInterval   string   `yaml:"poll_interval"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

func (d DashboardConfig) GetPollInterval() time.Duration {
	parsed, err := time.ParseDuration(d.PollInterval)
	if err != nil {
		return 2 * time.Second
	}
	return parsed
}

// Defaults mirrors the component-level defaults each package already
// falls back to on its own (reaper.DefaultStaleThreshold and friends) so
// a config.yaml may omit any field it doesn't want to override.
func Defaults() *Config {
	return &Config{
		Store: StoreConfig{DBPath: "coordinator.db"},
		HTTP:  HTTPConfig{ListenAddr: ":8080"},
		NATS:  NATSConfig{Enabled: false, URL: ""},
		Health: HealthConfig{
			ProbeInterval: "30s",
		},
		Reaper: ReaperConfig{
			StaleThreshold: "30m",
			SweepInterval:  "60s",
		},
		Dispatch: DispatchConfig{
			ActiveAgentWindow:  "30m",
			MaxLongPollTimeout: "180s",
		},
		Fsutil: FsutilConfig{ProjectsBasePath: "./projects"},
		Dashboard: DashboardConfig{
			Enabled:      true,
			ListenAddr:   ":8081",
			PollInterval: "2s",
		},
	}
}

// Load reads path, yaml-decoding it over Defaults() so any field the
// file omits keeps its default rather than zeroing out.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
