package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rescp17/dx/internal/logging"
	"github.com/rescp17/dx/pkg/discovery"
	"github.com/rescp17/dx/pkg/transfer"
)

const (
	EnvPrefix       = "DX"
	DefaultRelayURL = "wss://dx.ld160.eu.org"
	DefaultLogFile  = "dx-debug.log"

	DefaultNegotiationTimeout = 2 * time.Minute
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds every setting after defaults, config file, .env, environment
// and flags have been merged.
type Config struct {
	Code               string        `mapstructure:"code"`
	RelayURL           string        `mapstructure:"relay_url"`
	ICEServersJSON     string        `mapstructure:"ice_servers_json"`
	STUNURLs           []string      `mapstructure:"stun_urls"`
	TURNURLs           []string      `mapstructure:"turn_urls"`
	TURNUsername       string        `mapstructure:"turn_username"`
	TURNCredential     string        `mapstructure:"turn_credential"`
	ChunkSize          int           `mapstructure:"chunk_size"`
	RetryInterval      time.Duration `mapstructure:"retry_interval"`
	CompletionTimeout  time.Duration `mapstructure:"completion_timeout"`
	NegotiationTimeout time.Duration `mapstructure:"negotiation_timeout"`
	SigintGrace        time.Duration `mapstructure:"sigint_grace"`
	OutputDir          string        `mapstructure:"output_dir"`
	LogFile            string        `mapstructure:"log_file"`
	LogLevel           string        `mapstructure:"log_level"`
	MDNSCandidates     bool          `mapstructure:"mdns_candidates"`
	NoTUI              bool          `mapstructure:"no_tui"`
}

// SetDefaults registers every key, so environment variables are seen by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("code", "")
	v.SetDefault("relay_url", DefaultRelayURL)
	v.SetDefault("ice_servers_json", "")
	v.SetDefault("stun_urls", []string{})
	v.SetDefault("turn_urls", []string{})
	v.SetDefault("turn_username", "")
	v.SetDefault("turn_credential", "")
	v.SetDefault("chunk_size", transfer.DefaultChunkSize)
	v.SetDefault("retry_interval", transfer.DefaultRetryInterval)
	v.SetDefault("completion_timeout", transfer.DefaultCompletionTimeout)
	v.SetDefault("negotiation_timeout", DefaultNegotiationTimeout)
	v.SetDefault("sigint_grace", 100*time.Millisecond)
	v.SetDefault("output_dir", ".")
	v.SetDefault("log_file", DefaultLogFile)
	v.SetDefault("log_level", "info")
	v.SetDefault("mdns_candidates", false)
	v.SetDefault("no_tui", false)
}

// Load merges configuration into a Config. configFile may be empty, in which
// case dx.yaml is looked up in the working directory and $HOME/.config/dx.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("dx")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "dx"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		slog.Debug("No config file found, using defaults and environment")
	} else {
		slog.Debug("Loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Transfer().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.NegotiationTimeout < 0 {
		return fmt.Errorf("%w: negotiation_timeout must not be negative", ErrInvalidConfig)
	}
	if c.SigintGrace < 0 {
		return fmt.Errorf("%w: sigint_grace must not be negative", ErrInvalidConfig)
	}
	if err := validateRelayURL(c.RelayURL); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := c.ICEServers(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func validateRelayURL(raw string) error {
	if raw == discovery.RelayKeyword {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("relay_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("relay_url %q must use ws:// or wss://", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("relay_url %q has no host", raw)
	}
	return nil
}

// Transfer returns the transfer engine settings.
func (c *Config) Transfer() transfer.Config {
	return transfer.Config{
		ChunkSize:         c.ChunkSize,
		RetryInterval:     c.RetryInterval,
		CompletionTimeout: c.CompletionTimeout,
	}
}
