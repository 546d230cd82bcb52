// Package config provides configuration management for the application.
// Settings load from an optional YAML file, a .env file, and environment
// variables, with the environment winning.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Default limits applied when no override is configured.
const (
	DefaultPort          = "8080"
	DefaultBodySizeLimit = int64(1 << 20) // 1MB, inbound payloads are small
	DefaultSearchTTL     = time.Hour
	DefaultRecordTTL     = 24 * time.Hour
	DefaultUserAgent     = "discosync/1.0 +https://github.com/discosync/discosync"
)

// Config holds the application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Discogs DiscogsConfig `yaml:"discogs"`
	Cache   CacheConfig   `yaml:"cache"`
	Storage StorageConfig `yaml:"storage"`
	Import  ImportConfig  `yaml:"import"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string `yaml:"port"`
	MasterKey       string `yaml:"master_key"`
	MetricsEnabled  bool   `yaml:"metrics_enabled"`
	MetricsEndpoint string `yaml:"metrics_endpoint"`
	BodySizeLimit   int64  `yaml:"body_size_limit"`
}

// DiscogsConfig holds upstream API credentials. A personal token takes
// precedence; the consumer key/secret pair is the fallback auth scheme.
type DiscogsConfig struct {
	Token          string `yaml:"token"`
	ConsumerKey    string `yaml:"consumer_key"`
	ConsumerSecret string `yaml:"consumer_secret"`
	UserAgent      string `yaml:"user_agent"`
}

// CacheConfig selects the response cache backend and TTL tiers.
type CacheConfig struct {
	Backend   string        `yaml:"backend"` // memory or redis
	RedisURL  string        `yaml:"redis_url"`
	SearchTTL time.Duration `yaml:"search_ttl"`
	RecordTTL time.Duration `yaml:"record_ttl"`
}

// StorageConfig selects the catalog storage backend.
type StorageConfig struct {
	Type            string `yaml:"type"` // sqlite, postgresql or mongodb
	SQLitePath      string `yaml:"sqlite_path"`
	PostgresURL     string `yaml:"postgres_url"`
	PostgresMaxConn int32  `yaml:"postgres_max_conns"`
	MongoURL        string `yaml:"mongo_url"`
	MongoDatabase   string `yaml:"mongo_database"`
}

// ImportConfig holds the defaults applied to imports when the caller
// leaves an option unset.
type ImportConfig struct {
	Price          string `yaml:"price"`
	Status         string `yaml:"status"`
	SKUPrefix      string `yaml:"sku_prefix"`
	ImportImages   bool   `yaml:"import_images"`
	AutoCategorize bool   `yaml:"auto_categorize"`
	ImageDir       string `yaml:"image_dir"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // pretty or json
}

// Load reads configuration. An optional YAML file named by DISCOSYNC_CONFIG
// (or config.yaml in the working directory) provides the base; a .env file
// and real environment variables override it.
func Load() (*Config, error) {
	// .env is optional and only fills unset environment variables.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	setDefaults(v)

	cfg := defaultConfig()
	if path := configFilePath(v); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	applyEnv(v, cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configFilePath(v *viper.Viper) string {
	if path := v.GetString("DISCOSYNC_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", DefaultPort)
	v.SetDefault("CACHE_BACKEND", "memory")
	v.SetDefault("CACHE_SEARCH_TTL", DefaultSearchTTL.String())
	v.SetDefault("CACHE_RECORD_TTL", DefaultRecordTTL.String())
	v.SetDefault("STORAGE_TYPE", "sqlite")
	v.SetDefault("SQLITE_PATH", "data/discosync.db")
	v.SetDefault("MONGODB_DATABASE", "discosync")
	v.SetDefault("DISCOGS_USER_AGENT", DefaultUserAgent)
	v.SetDefault("IMPORT_STATUS", "draft")
	v.SetDefault("IMPORT_SKU_PREFIX", "DSC")
	v.SetDefault("IMPORT_IMAGES", true)
	v.SetDefault("IMPORT_AUTO_CATEGORIZE", true)
	v.SetDefault("IMPORT_IMAGE_DIR", "data/images")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "pretty")
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            DefaultPort,
			MetricsEndpoint: "/metrics",
			BodySizeLimit:   DefaultBodySizeLimit,
		},
		Discogs: DiscogsConfig{UserAgent: DefaultUserAgent},
		Cache: CacheConfig{
			Backend:   "memory",
			SearchTTL: DefaultSearchTTL,
			RecordTTL: DefaultRecordTTL,
		},
		Storage: StorageConfig{
			Type:          "sqlite",
			SQLitePath:    "data/discosync.db",
			MongoDatabase: "discosync",
		},
		Import: ImportConfig{
			Status:         "draft",
			SKUPrefix:      "DSC",
			ImportImages:   true,
			AutoCategorize: true,
			ImageDir:       "data/images",
		},
		Log: LogConfig{Level: "info", Format: "pretty"},
	}
}

// applyEnv overlays environment variables onto the config. Only variables
// that are set (or carry defaults) are applied, so YAML values survive
// unless overridden.
func applyEnv(v *viper.Viper, cfg *Config) {
	setString(v, "PORT", &cfg.Server.Port)
	setString(v, "MASTER_KEY", &cfg.Server.MasterKey)
	if v.IsSet("METRICS_ENABLED") {
		cfg.Server.MetricsEnabled = v.GetBool("METRICS_ENABLED")
	}
	setString(v, "METRICS_ENDPOINT", &cfg.Server.MetricsEndpoint)

	setString(v, "DISCOGS_TOKEN", &cfg.Discogs.Token)
	setString(v, "DISCOGS_CONSUMER_KEY", &cfg.Discogs.ConsumerKey)
	setString(v, "DISCOGS_CONSUMER_SECRET", &cfg.Discogs.ConsumerSecret)
	setString(v, "DISCOGS_USER_AGENT", &cfg.Discogs.UserAgent)

	setString(v, "CACHE_BACKEND", &cfg.Cache.Backend)
	setString(v, "REDIS_URL", &cfg.Cache.RedisURL)
	setDuration(v, "CACHE_SEARCH_TTL", &cfg.Cache.SearchTTL)
	setDuration(v, "CACHE_RECORD_TTL", &cfg.Cache.RecordTTL)

	setString(v, "STORAGE_TYPE", &cfg.Storage.Type)
	setString(v, "SQLITE_PATH", &cfg.Storage.SQLitePath)
	setString(v, "POSTGRESQL_URL", &cfg.Storage.PostgresURL)
	if v.IsSet("POSTGRESQL_MAX_CONNS") {
		cfg.Storage.PostgresMaxConn = v.GetInt32("POSTGRESQL_MAX_CONNS")
	}
	setString(v, "MONGODB_URL", &cfg.Storage.MongoURL)
	setString(v, "MONGODB_DATABASE", &cfg.Storage.MongoDatabase)

	setString(v, "IMPORT_PRICE", &cfg.Import.Price)
	setString(v, "IMPORT_STATUS", &cfg.Import.Status)
	setString(v, "IMPORT_SKU_PREFIX", &cfg.Import.SKUPrefix)
	if v.IsSet("IMPORT_IMAGES") {
		cfg.Import.ImportImages = v.GetBool("IMPORT_IMAGES")
	}
	if v.IsSet("IMPORT_AUTO_CATEGORIZE") {
		cfg.Import.AutoCategorize = v.GetBool("IMPORT_AUTO_CATEGORIZE")
	}
	setString(v, "IMPORT_IMAGE_DIR", &cfg.Import.ImageDir)

	setString(v, "LOG_LEVEL", &cfg.Log.Level)
	setString(v, "LOG_FORMAT", &cfg.Log.Format)
}

func setString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		if s := v.GetString(key); s != "" {
			*dst = s
		}
	}
}

func setDuration(v *viper.Viper, key string, dst *time.Duration) {
	if v.IsSet(key) {
		if d := v.GetDuration(key); d > 0 {
			*dst = d
		}
	}
}

func (c *Config) validate() error {
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid cache backend %q, expected memory or redis", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisURL == "" {
		return fmt.Errorf("cache backend redis requires REDIS_URL")
	}

	switch c.Storage.Type {
	case "sqlite", "postgresql", "mongodb":
	default:
		return fmt.Errorf("invalid storage type %q, expected sqlite, postgresql or mongodb", c.Storage.Type)
	}
	if c.Storage.Type == "postgresql" && c.Storage.PostgresURL == "" {
		return fmt.Errorf("storage type postgresql requires POSTGRESQL_URL")
	}
	if c.Storage.Type == "mongodb" && c.Storage.MongoURL == "" {
		return fmt.Errorf("storage type mongodb requires MONGODB_URL")
	}
	return nil
}
