// Package config loads the transfer coordinator's application
// configuration: the transfer.Config limits plus the backend wiring
// (object store, metadata store, HMAC signing key, HTTP listener)
// that cmd/sendd needs to construct those limits' dependencies.
// Loading follows gostratum-storagex/config.go's NewConfigFromLoader
// shape (DefaultConfig, then Unmarshal onto it, then Validate) atop
// github.com/spf13/viper instead of that package's internal loader,
// reading SEND_-prefixed environment variables and an optional YAML
// file.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/thatique/sendcore/transfer"
)

// StorageConfig selects and configures the Blob Broker backend.
type StorageConfig struct {
	// Provider is "file" or "s3".
	Provider string `mapstructure:"provider" yaml:"provider"`

	// Dir is the root directory used by the file provider.
	Dir string `mapstructure:"dir" yaml:"dir"`

	// Endpoint, AccessKey, SecretKey, and Bucket configure the s3
	// provider, following gostratum-storagex/config.go's field names
	// for the same concerns.
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`

	// SignBaseURL is the base URL the file provider's HMAC URL signer
	// prefixes onto the signed URLs it mints (meaningless for s3, which
	// signs against Endpoint instead).
	SignBaseURL string `mapstructure:"sign_base_url" yaml:"sign_base_url"`

	// SignSecret is the HMAC key used by the file provider's URL
	// signer. s3 uses AccessKey/SecretKey instead.
	SignSecret string `mapstructure:"sign_secret" yaml:"sign_secret"`
}

// StoreConfig selects and configures the Metadata Store Adapter.
type StoreConfig struct {
	// Provider is "memory" or "redis".
	Provider string `mapstructure:"provider" yaml:"provider"`

	// RedisAddr is the redis backend's TCP address ("host:port").
	RedisAddr string `mapstructure:"redis_addr" yaml:"redis_addr"`

	// RedisPrefix is prepended to every key the redis store touches.
	RedisPrefix string `mapstructure:"redis_prefix" yaml:"redis_prefix"`

	// MaxIdle and MaxActive size the redis connection pool.
	MaxIdle   int `mapstructure:"max_idle" yaml:"max_idle"`
	MaxActive int `mapstructure:"max_active" yaml:"max_active"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Network is "tcp" or "unix".
	Network string `mapstructure:"network" yaml:"network"`

	// Addr is the listen address: "host:port" for tcp, a socket path
	// for unix.
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Config is the complete application configuration for cmd/sendd.
type Config struct {
	Transfer transfer.Config `mapstructure:",squash" yaml:"transfer"`
	Storage  StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Store    StoreConfig     `mapstructure:"store" yaml:"store"`
	Server   ServerConfig    `mapstructure:"server" yaml:"server"`

	// AuthKeyRequired records whether every transfer must carry a
	// password. Off by default, matching Firefox Send's original
	// behavior. Nothing reads it: UploadCoordinator.Plan accepts
	// unencrypted uploads whatever its value.
	AuthKeyRequired bool `mapstructure:"auth_key_required" yaml:"auth_key_required"`
}

// DefaultConfig returns a Config with every section defaulted:
// transfer.DefaultConfig(), an in-memory store, a local file-backed
// bucket under ./data, and a tcp listener on :8080.
func DefaultConfig() *Config {
	return &Config{
		Transfer: *transfer.DefaultConfig(),
		Storage: StorageConfig{
			Provider:    "file",
			Dir:         "./data",
			SignBaseURL: "http://localhost:8080/blob",
			SignSecret:  "",
		},
		Store: StoreConfig{
			Provider:    "memory",
			RedisPrefix: "send:",
			MaxIdle:     8,
			MaxActive:   64,
		},
		Server: ServerConfig{
			Network: "tcp",
			Addr:    ":8080",
		},
	}
}

// Load reads configuration from a YAML file at configPath (if
// non-empty), with environment variables prefixed SEND_ overriding
// the file's values (nested fields use "_" as the path separator, e.g.
// SEND_STORAGE_BUCKET for storage.bucket). An environment variable
// takes effect only for a key the YAML file also sets: no key is bound
// to the environment up front, so keys absent from the file keep their
// DefaultConfig values whatever the environment holds.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("send")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
		}
	}

	return NewConfigFromLoader(v)
}

// NewConfigFromLoader builds a Config from any source that can
// Unmarshal onto a struct, following
// gostratum-storagex/config.go's NewConfigFromLoader pattern: start
// from defaults, unmarshal over them, then validate.
func NewConfigFromLoader(loader interface {
	Unmarshal(interface{}) error
}) (*Config, error) {
	cfg := DefaultConfig()
	if err := loader.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section for internal consistency, delegating
// the transfer limits to transfer.Config.Validate.
func (c *Config) Validate() error {
	if err := c.Transfer.Validate(); err != nil {
		return err
	}
	switch c.Storage.Provider {
	case "file":
		if c.Storage.Dir == "" {
			return fmt.Errorf("config: storage.dir is required for the file provider")
		}
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("config: storage.bucket is required for the s3 provider")
		}
	default:
		return fmt.Errorf("config: unsupported storage.provider %q", c.Storage.Provider)
	}
	switch c.Store.Provider {
	case "memory":
	case "redis":
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("config: store.redis_addr is required for the redis provider")
		}
	default:
		return fmt.Errorf("config: unsupported store.provider %q", c.Store.Provider)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("config: server.addr is required")
	}
	return nil
}
