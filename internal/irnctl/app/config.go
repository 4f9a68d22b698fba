package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/aussiebroadwan/gstirn/pkg/cryptox"
	"github.com/aussiebroadwan/gstirn/pkg/irnsdk"
	"github.com/aussiebroadwan/gstirn/pkg/tokencache"
)

// EnvPrefix prefixes every environment override. IRN_PORTAL_CLIENT_ID sets
// portal.client_id: the first underscore after the prefix separates the
// section from the key.
const EnvPrefix = "IRN_"

// Cache drivers.
const (
	CacheFile   = "file"
	CacheSQLite = "sqlite"
	CacheRedis  = "redis"
	CacheMemory = "memory"
	CacheNone   = "none"
)

type Config struct {
	Portal PortalConfig `koanf:"portal"`
	Cache  CacheConfig  `koanf:"cache"`
	HTTP   HTTPConfig   `koanf:"http"`
	Log    LogConfig    `koanf:"log"`
}

type PortalConfig struct {
	BaseURL       string            `koanf:"base_url"`
	GSTIN         string            `koanf:"gstin"`
	ClientID      string            `koanf:"client_id"`
	ClientSecret  string            `koanf:"client_secret"`
	Username      string            `koanf:"username"`
	Password      string            `koanf:"password"`
	PublicKey     string            `koanf:"public_key"`      // PEM or base64 DER
	PublicKeyFile string            `koanf:"public_key_file"` // read when PublicKey is empty
	Padding       string            `koanf:"padding"`         // pkcs1 (default) or oaep
	GSPHeaders    map[string]string `koanf:"gsp_headers"`
}

type CacheConfig struct {
	Driver       string        `koanf:"driver"` // file, sqlite, redis, memory, none
	Dir          string        `koanf:"dir"`
	DSN          string        `koanf:"dsn"`       // sqlite file
	RedisURL     string        `koanf:"redis_url"` // redis://host:6379/0
	SafetyMargin time.Duration `koanf:"safety_margin"`
	Passphrase   string        `koanf:"passphrase"` // seals cached entries when set
}

type HTTPConfig struct {
	Timeout     time.Duration `koanf:"timeout"`
	RateLimit   int           `koanf:"rate_limit"` // requests per second, 0 disables
	LogRequests bool          `koanf:"log_requests"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Env    string `koanf:"env"`
}

func defaults() map[string]any {
	return map[string]any{
		"portal": map[string]any{
			"base_url": irnsdk.SandboxURL,
			"padding":  "pkcs1",
		},
		"cache": map[string]any{
			"driver":        CacheFile,
			"dir":           tokencache.DefaultDir,
			"dsn":           "irn_tokens.db",
			"safety_margin": tokencache.DefaultSafetyMargin.String(),
		},
		"http": map[string]any{
			"timeout":    "10s",
			"rate_limit": 0,
		},
		"log": map[string]any{
			"level":  "warn",
			"format": "text",
			"env":    "prod",
		},
	}
}

// LoadConfig reads configuration in increasing priority: built-in defaults,
// the YAML file at path (skipped when empty), then IRN_* environment
// variables.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(mapProvider(defaults()), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envKey := func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.Replace(s, "_", ".", 1)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Portal.PublicKey == "" && cfg.Portal.PublicKeyFile != "" {
		b, err := os.ReadFile(cfg.Portal.PublicKeyFile)
		if err != nil {
			return Config{}, fmt.Errorf("read public key: %w", err)
		}
		cfg.Portal.PublicKey = string(b)
	}

	return cfg, nil
}

// Validate reports every missing credential at once.
func (c Config) Validate() error {
	var errs []error
	required := []struct{ key, value string }{
		{"portal.base_url", c.Portal.BaseURL},
		{"portal.gstin", c.Portal.GSTIN},
		{"portal.client_id", c.Portal.ClientID},
		{"portal.client_secret", c.Portal.ClientSecret},
		{"portal.username", c.Portal.Username},
		{"portal.password", c.Portal.Password},
		{"portal.public_key", c.Portal.PublicKey},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.key))
		}
	}

	if _, err := cryptox.ParsePadding(c.Portal.Padding); err != nil {
		errs = append(errs, err)
	}

	switch c.Cache.Driver {
	case CacheFile, CacheSQLite, CacheMemory, CacheNone:
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			errs = append(errs, errors.New("cache.redis_url is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache.driver %q", c.Cache.Driver))
	}

	return errors.Join(errs...)
}

// Credentials returns the portal credentials for a session.
func (c Config) Credentials() irnsdk.Credentials {
	return irnsdk.Credentials{
		GSTIN:        c.Portal.GSTIN,
		ClientID:     c.Portal.ClientID,
		ClientSecret: c.Portal.ClientSecret,
		Username:     c.Portal.Username,
		Password:     c.Portal.Password,
		PublicKey:    c.Portal.PublicKey,
		BaseURL:      c.Portal.BaseURL,
	}
}

// mapProvider is a koanf provider over a nested map.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("mapProvider does not support ReadBytes")
}

func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}
