// Package config loads the uscan configuration from defaults, an
// optional config file, and USCAN_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Device endpoint; empty means resolve via mDNS
	DeviceURL string `mapstructure:"device-url"`

	// Protocol tunables
	Timeout       time.Duration `mapstructure:"timeout"`
	PollInterval  time.Duration `mapstructure:"poll-interval"`
	DiscoveryWait time.Duration `mapstructure:"discovery-wait"`

	// Local state paths
	SQLitePath string `mapstructure:"sqlite-path"`
	FSMDBPath  string `mapstructure:"fsm-db-path"`

	// S3 configuration for scan-to-cloud uploads
	S3Bucket string `mapstructure:"s3-bucket"`
	S3Region string `mapstructure:"s3-region"`
	S3Prefix string `mapstructure:"s3-prefix"`
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	stateDir := DefaultStateDir()

	// Set defaults
	viper.SetDefault("device-url", "")
	viper.SetDefault("timeout", 15*time.Second)
	viper.SetDefault("poll-interval", time.Second)
	viper.SetDefault("discovery-wait", 10*time.Second)
	viper.SetDefault("sqlite-path", filepath.Join(stateDir, "history.db"))
	viper.SetDefault("fsm-db-path", filepath.Join(stateDir, "fsm"))
	viper.SetDefault("s3-bucket", "")
	viper.SetDefault("s3-region", "us-east-1")
	viper.SetDefault("s3-prefix", "scans")

	// Environment variables (USCAN_DEVICE_URL, USCAN_POLL_INTERVAL, etc.)
	viper.SetEnvPrefix("USCAN")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.uscan")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	// Unmarshal into config struct
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be positive")
	}
	if c.DiscoveryWait <= 0 {
		return fmt.Errorf("discovery-wait must be positive")
	}
	if c.SQLitePath == "" {
		return fmt.Errorf("sqlite-path cannot be empty")
	}
	if c.FSMDBPath == "" {
		return fmt.Errorf("fsm-db-path cannot be empty")
	}
	return nil
}

// DefaultStateDir is ~/.uscan, falling back to the working directory
// when the home directory cannot be determined.
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".uscan"
	}
	return filepath.Join(home, ".uscan")
}
