// Package config loads service configuration from defaults, an optional
// YAML file and QITP_-prefixed environment variables, in that order.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"qitp/internal/blob"
	"qitp/internal/core"
)

// EnvPrefix prefixes every environment override, e.g. QITP_HTTP_ADDR.
const EnvPrefix = "QITP"

// Config is the full service configuration.
type Config struct {
	HTTP     HTTPConfig         `mapstructure:"http"`
	API      APIConfig          `mapstructure:"api"`
	Storage  core.StorageConfig `mapstructure:"storage"`
	Blob     blob.Config        `mapstructure:"blob"`
	Log      LogConfig          `mapstructure:"log"`
	Fixtures FixturesConfig     `mapstructure:"fixtures"`
}

// HTTPConfig configures the listener.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// APIConfig configures the dispatcher and list sorting.
type APIConfig struct {
	Latency   time.Duration `mapstructure:"latency"`
	Collation string        `mapstructure:"collation"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// FixturesConfig controls start-up seeding.
type FixturesConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("api.latency", time.Duration(0))
	v.SetDefault("api.collation", "zh")
	v.SetDefault("storage.driver", string(core.StorageMemory))
	v.SetDefault("storage.sqlite_path", "qitp.db")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("blob.driver", string(blob.DriverMemory))
	v.SetDefault("blob.fs_root", "./documents")
	v.SetDefault("blob.s3.bucket", "")
	v.SetDefault("blob.s3.region", "")
	v.SetDefault("blob.s3.endpoint", "")
	v.SetDefault("blob.s3.path_style", false)
	v.SetDefault("blob.s3.access_key_id", "")
	v.SetDefault("blob.s3.secret_access_key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("fixtures.enabled", true)
	v.SetDefault("fixtures.path", "")
}

// New returns a viper instance with defaults and environment binding. The
// defaults double as the key registry AutomaticEnv needs for Unmarshal.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (when non-empty) over the defaults and applies
// environment overrides.
func Load(path string) (Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates v.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unknown drivers and malformed values.
func (c Config) Validate() error {
	switch core.StorageDriver(c.Storage.Driver) {
	case core.StorageMemory, core.StorageSQLite, core.StoragePostgres:
	default:
		return fmt.Errorf("storage.driver: unsupported value %q", c.Storage.Driver)
	}
	if core.StorageDriver(c.Storage.Driver) == core.StoragePostgres && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("storage.postgres_dsn: required for postgres driver")
	}
	switch blob.Driver(c.Blob.Driver) {
	case blob.DriverMemory, blob.DriverFilesystem:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("blob.s3.bucket: required for s3 driver")
		}
	default:
		return fmt.Errorf("blob.driver: unsupported value %q", c.Blob.Driver)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format: unsupported value %q", c.Log.Format)
	}
	if c.API.Latency < 0 {
		return fmt.Errorf("api.latency: must not be negative")
	}
	if _, err := c.API.Language(); err != nil {
		return err
	}
	return nil
}

// Language parses the collation language tag.
func (a APIConfig) Language() (language.Tag, error) {
	tag, err := language.Parse(a.Collation)
	if err != nil {
		return language.Und, fmt.Errorf("api.collation: %w", err)
	}
	return tag, nil
}
