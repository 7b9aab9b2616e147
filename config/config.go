package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Audio      AudioConfig      `yaml:"audio"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Log        LogConfig        `yaml:"log"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey     string   `yaml:"vapid_public_key"`
	PrivateKey    string   `yaml:"vapid_private_key"`
	Subject       string   `yaml:"subject"`
	TTL           int      `yaml:"ttl"`
	NotifyResults []string `yaml:"notify_results"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// Purge policies for transient overrides.
const (
	PurgeOnRollover       = "rollover"
	PurgeOnEveryRecompute = "every_recompute"
)

// SchedulerConfig controls the resolver and the firing engine.
type SchedulerConfig struct {
	TickIntervalMs         int            `yaml:"tick_interval_ms"`
	TickInterval           time.Duration  `yaml:"-"`
	LatenessSeconds        int            `yaml:"lateness_seconds"`
	Lateness               time.Duration  `yaml:"-"`
	LookaheadDays          int            `yaml:"lookahead_days"`
	PurgePolicy            string         `yaml:"purge_policy"`
	AutoStart              bool           `yaml:"auto_start"`
	Timezone               string         `yaml:"timezone"`
	Location               *time.Location `yaml:"-"`
	PauseCacheSeconds      int            `yaml:"pause_cache_seconds"`
	MaxPersistenceFailures int            `yaml:"max_persistence_failures"`
}

// Audio backends.
const (
	AudioBackendCommand = "command"
	AudioBackendMQTT    = "mqtt"
)

// AudioConfig selects and configures the playback sink.
type AudioConfig struct {
	Backend     string     `yaml:"backend"`
	SoundsDir   string     `yaml:"sounds_dir"`
	AmpCacheDir string     `yaml:"amp_cache_dir"`
	Command     string     `yaml:"command"`
	Args        []string   `yaml:"args"`
	MQTT        MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig holds the broker settings for the remote bell sink.
type MQTTConfig struct {
	BrokerURL      string        `yaml:"broker_url"`
	ClientID       string        `yaml:"client_id"`
	Topic          string        `yaml:"topic"`
	QoS            byte          `yaml:"qos"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
}

// LogConfig selects the zap level and encoder.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied, suitable for tests
// and for running without a config file.
func Default() *Config {
	cfg := &Config{}
	// Defaults never fail without a timezone set.
	_ = cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields and derives the duration fields.
func (cfg *Config) ApplyDefaults() error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "tajong.db"
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	s := &cfg.Scheduler
	if s.TickIntervalMs <= 0 {
		s.TickIntervalMs = 250
	}
	s.TickInterval = time.Duration(s.TickIntervalMs) * time.Millisecond
	if s.LatenessSeconds <= 0 {
		s.LatenessSeconds = 5
	}
	s.Lateness = time.Duration(s.LatenessSeconds) * time.Second
	if s.LookaheadDays <= 0 {
		s.LookaheadDays = 8
	}
	switch s.PurgePolicy {
	case "":
		s.PurgePolicy = PurgeOnRollover
	case PurgeOnRollover, PurgeOnEveryRecompute:
	default:
		return fmt.Errorf("unknown scheduler.purge_policy %q", s.PurgePolicy)
	}
	if s.PauseCacheSeconds <= 0 {
		s.PauseCacheSeconds = 5
	}
	if s.MaxPersistenceFailures <= 0 {
		s.MaxPersistenceFailures = 20
	}
	s.Location = time.Local
	if s.Timezone != "" {
		loc, err := time.LoadLocation(s.Timezone)
		if err != nil {
			return fmt.Errorf("failed to load timezone %q: %w", s.Timezone, err)
		}
		s.Location = loc
	}

	a := &cfg.Audio
	if a.Backend == "" {
		a.Backend = AudioBackendCommand
	}
	if a.SoundsDir == "" {
		a.SoundsDir = "./sounds"
	}
	if a.AmpCacheDir == "" {
		a.AmpCacheDir = "./sounds/.amp_cache"
	}
	if a.Command == "" {
		a.Command = "ffplay"
		a.Args = []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-volume", "{volume_pct}", "{file}"}
	}
	if a.MQTT.Topic == "" {
		a.MQTT.Topic = "tajong/bell"
	}
	if a.MQTT.ClientID == "" {
		a.MQTT.ClientID = "tajongd"
	}
	if a.MQTT.TimeoutSeconds <= 0 {
		a.MQTT.TimeoutSeconds = 2
	}
	a.MQTT.Timeout = time.Duration(a.MQTT.TimeoutSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if len(cfg.Push.NotifyResults) == 0 {
		cfg.Push.NotifyResults = []string{"MISSED", "FAILED"}
	}

	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 64
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	return nil
}
