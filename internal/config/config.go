package config

import (
	"errors"
	"fmt"
	"math/bits"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
)

// Config represents the root configuration structure for the application
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	GC      GCConfig      `mapstructure:"gc"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`

	v *viper.Viper
}

// ServerConfig holds the network settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	MaxClients      int           `mapstructure:"max_clients"`      // 0 means unlimited
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`     // 0 disables the read deadline
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"` // grace period for draining connections
	AcceptRate      float64       `mapstructure:"accept_rate"`      // new connections per second, 0 is unlimited
	AcceptBurst     int           `mapstructure:"accept_burst"`
	MaxBulkLen      int           `mapstructure:"max_bulk_len"`
	MaxArrayLen     int           `mapstructure:"max_array_len"`
	MaxInlineLen    int           `mapstructure:"max_inline_len"`
}

// Addr returns the host:port pair to bind
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// StorageConfig defines the internal structure of the storage engine
type StorageConfig struct {
	Shards uint `mapstructure:"shards"`
}

// LogConfig defines logging verbosity and output style
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// MetricsConfig controls the prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// flagKeys maps command-line flags onto configuration keys
var flagKeys = map[string]string{
	"host":        "server.host",
	"port":        "server.port",
	"max-clients": "server.max_clients",
	"shards":      "storage.shards",
	"log-level":   "log.level",
	"log-format":  "log.format",
	"metrics":     "metrics.enabled",
}

// RegisterFlags adds the flags Load understands to fs
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", ".", "config file or directory containing config.yaml")
	fs.String("host", "", "bind host")
	fs.String("port", "", "bind port")
	fs.Int("max-clients", 0, "maximum number of connected clients, 0 is unlimited")
	fs.Uint("shards", 0, "number of storage shards, a power of two")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.String("log-format", "", "json or console")
	fs.Bool("metrics", false, "serve prometheus metrics")
}

// Load reads the configuration from a file and overrides it with environment variables
// and then with the flags that were set explicitly. path may name a file or a directory
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml", ".json", ".toml":
		v.SetConfigFile(path)
	default:
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if path != "" {
			v.AddConfigPath(path)
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("STARLIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, err
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := Config{v: v}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// File returns the config file in use, empty if defaults and environment only
func (c *Config) File() string {
	if c.v == nil {
		return ""
	}
	return c.v.ConfigFileUsed()
}

// Watch calls fn with the new configuration, or the reason it was rejected,
// every time the config file changes. It reports false when there is no file to watch
func (c *Config) Watch(fn func(next *Config, err error)) bool {
	if c.File() == "" {
		return false
	}

	c.v.OnConfigChange(func(fsnotify.Event) {
		fn(decode(c.v))
	})
	c.v.WatchConfig()
	return true
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var err error

	if port, perr := strconv.Atoi(c.Server.Port); perr != nil || port < 0 || port > 65535 {
		err = multierr.Append(err, fmt.Errorf("server.port: %q is not a TCP port", c.Server.Port))
	}
	if c.Server.MaxClients < 0 {
		err = multierr.Append(err, errors.New("server.max_clients must not be negative"))
	}
	if c.Server.IdleTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		err = multierr.Append(err, errors.New("server timeouts must not be negative"))
	}
	if c.Server.AcceptRate < 0 {
		err = multierr.Append(err, errors.New("server.accept_rate must not be negative"))
	}
	if c.Server.AcceptRate > 0 && c.Server.AcceptBurst < 1 {
		err = multierr.Append(err, errors.New("server.accept_burst must be at least 1 when accept_rate is set"))
	}
	if c.Server.MaxBulkLen <= 0 || c.Server.MaxArrayLen <= 0 || c.Server.MaxInlineLen <= 0 {
		err = multierr.Append(err, errors.New("server protocol limits must be positive"))
	}

	if s := c.Storage.Shards; s == 0 || s > 1024 || bits.OnesCount(s) != 1 {
		err = multierr.Append(err, fmt.Errorf("storage.shards: %d is not a power of two in 1..1024", s))
	}

	if c.GC.Enabled {
		if c.GC.Interval <= 0 {
			err = multierr.Append(err, errors.New("gc.interval must be positive"))
		}
		if c.GC.SamplesPerCheck <= 0 {
			err = multierr.Append(err, errors.New("gc.samples_per_check must be positive"))
		}
		if c.GC.MatchThreshold < 0 || c.GC.MatchThreshold > 1 {
			err = multierr.Append(err, errors.New("gc.match_threshold must be within 0..1"))
		}
		if c.GC.MaxRounds < 1 {
			err = multierr.Append(err, errors.New("gc.max_rounds must be at least 1"))
		}
	}

	if _, lerr := zapcore.ParseLevel(c.Log.Level); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("log.level: %w", lerr))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		err = multierr.Append(err, fmt.Errorf("log.format: %q is neither json nor console", c.Log.Format))
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		err = multierr.Append(err, errors.New("metrics.addr is required when metrics are enabled"))
	}

	return err
}

// setDefaults populates viper with fallback values if they are not provided via file, ENV or flags
func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "6380")
	v.SetDefault("server.max_clients", 10000)
	v.SetDefault("server.idle_timeout", "0s")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("server.accept_rate", 0)
	v.SetDefault("server.accept_burst", 0)
	v.SetDefault("server.max_bulk_len", 512*1024*1024)
	v.SetDefault("server.max_array_len", 1024*1024)
	v.SetDefault("server.max_inline_len", 64*1024)

	// Storage
	v.SetDefault("storage.shards", 32)

	// GC
	gc := DefaultGCConfig()
	v.SetDefault("gc.enabled", gc.Enabled)
	v.SetDefault("gc.interval", gc.Interval)
	v.SetDefault("gc.samples_per_check", gc.SamplesPerCheck)
	v.SetDefault("gc.match_threshold", gc.MatchThreshold)
	v.SetDefault("gc.max_rounds", gc.MaxRounds)

	// Logger
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Metrics
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9121")
}
