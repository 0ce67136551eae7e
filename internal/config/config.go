package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dgnsrekt/helipad/internal/notify"
)

type Config struct {
	Node         NodeConfig         `mapstructure:"node"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Poller       PollerConfig       `mapstructure:"poller"`
	PodcastIndex PodcastIndexConfig `mapstructure:"podcastindex"`
	LnAddress    LnAddressConfig    `mapstructure:"lnaddress"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Notify       notify.Config      `mapstructure:"notify"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

type NodeConfig struct {
	Address        string `mapstructure:"address"`
	CertPath       string `mapstructure:"cert_path"`
	MacaroonPath   string `mapstructure:"macaroon_path"`
	TimeoutSec     int    `mapstructure:"timeout_sec"`
	SendTimeoutSec int    `mapstructure:"send_timeout_sec"` // a single keysend, including route retries
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type PollerConfig struct {
	IntervalSec int `mapstructure:"interval_sec"`
	BatchSize   int `mapstructure:"batch_size"`
}

type PodcastIndexConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	APIKey        string `mapstructure:"api_key"`
	APISecret     string `mapstructure:"api_secret"`
	TimeoutSec    int    `mapstructure:"timeout_sec"`
	RatePerSecond int    `mapstructure:"rate_per_second"`
	CacheSize     int    `mapstructure:"cache_size"`
}

type LnAddressConfig struct {
	TimeoutSec int `mapstructure:"timeout_sec"`
}

type HTTPConfig struct {
	Listen    string `mapstructure:"listen"`
	WSEnabled bool   `mapstructure:"ws_enabled"`
}

type LoggingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("node.address", "localhost:10009")
	v.SetDefault("node.cert_path", "/lnd/tls.cert")
	v.SetDefault("node.macaroon_path", "/lnd/data/chain/bitcoin/mainnet/admin.macaroon")
	v.SetDefault("node.timeout_sec", 30)
	v.SetDefault("node.send_timeout_sec", 300)
	v.SetDefault("database.path", "database.db")
	v.SetDefault("poller.interval_sec", 9)
	v.SetDefault("poller.batch_size", 500)
	v.SetDefault("podcastindex.base_url", "https://api.podcastindex.org")
	v.SetDefault("podcastindex.api_key", "")
	v.SetDefault("podcastindex.api_secret", "")
	v.SetDefault("podcastindex.timeout_sec", 10)
	v.SetDefault("podcastindex.rate_per_second", 2)
	v.SetDefault("podcastindex.cache_size", 20)
	v.SetDefault("lnaddress.timeout_sec", 10)
	v.SetDefault("http.listen", ":2112")
	v.SetDefault("http.ws_enabled", true)
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.server", "https://ntfy.sh")
	v.SetDefault("notify.topic", "")
	v.SetDefault("notify.priority", "default")
	v.SetDefault("notify.tags", "radio")
	v.SetDefault("notify.token", "")
	v.SetDefault("notify.min_sats", 0)
	v.SetDefault("notify.timeout_sec", 30)
	v.SetDefault("logging.enabled", false)
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")

	// Environment variable support
	v.SetEnvPrefix("HELIPAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("helipad")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	if c.Node.Address == "" {
		errs.add("node.address", "is required")
	}
	if c.Node.TimeoutSec < 1 {
		errs.add("node.timeout_sec", "must be >= 1")
	}
	if c.Node.SendTimeoutSec < c.Node.TimeoutSec {
		errs.add("node.send_timeout_sec", "must be >= node.timeout_sec")
	}
	if c.Database.Path == "" {
		errs.add("database.path", "is required")
	}
	if c.Poller.IntervalSec < 1 {
		errs.add("poller.interval_sec", "must be >= 1")
	}
	if c.Poller.BatchSize < 1 {
		errs.add("poller.batch_size", "must be >= 1")
	}
	if (c.PodcastIndex.APIKey == "") != (c.PodcastIndex.APISecret == "") {
		errs.add("podcastindex.api_key", "api_key and api_secret must be set together")
	}
	if c.PodcastIndex.CacheSize < 1 {
		errs.add("podcastindex.cache_size", "must be >= 1")
	}
	if c.PodcastIndex.RatePerSecond < 1 {
		errs.add("podcastindex.rate_per_second", "must be >= 1")
	}
	if c.HTTP.Listen == "" {
		errs.add("http.listen", "is required")
	}
	if err := c.Notify.Validate(); err != nil {
		errs.add("notify", err.Error())
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// NodeTimeout is the bound applied to every node RPC.
func (c *Config) NodeTimeout() time.Duration {
	return time.Duration(c.Node.TimeoutSec) * time.Second
}

// SendTimeout is how long a keysend may stay with the node before its
// outcome is reported as unknown.
func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.Node.SendTimeoutSec) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poller.IntervalSec) * time.Second
}
