package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the service
type Config struct {
	Port            string        `toml:"port"`
	GinMode         string        `toml:"gin_mode"`
	DatabaseURL     string        `toml:"database_url"`
	DataPath        string        `toml:"data_path"`
	JWTSecret       string        `toml:"jwt_secret"`
	APIMasterSecret string        `toml:"api_master_secret"`
	AdminUsername   string        `toml:"admin_username"`
	AdminPassword   string        `toml:"admin_password"`
	RedisURL        string        `toml:"redis_url"`
	StatsCacheTTL   time.Duration `toml:"-"`
	StatsCacheTTLS  string        `toml:"stats_cache_ttl"`
	StrictGeography bool          `toml:"strict_geography"`
	MaxUploadMB     int64         `toml:"max_upload_mb"`
}

// DefaultConfig returns the settings used when nothing is configured
func DefaultConfig() *Config {
	return &Config{
		Port:            "8000",
		DataPath:        "workload.db",
		AdminUsername:   "admin",
		AdminPassword:   "admin123",
		StatsCacheTTL:   5 * time.Minute,
		StrictGeography: true,
		MaxUploadMB:     16,
	}
}

// LoadDotEnv loads the first .env found in the working directory or its parents
func LoadDotEnv() {
	envPaths := []string{".env", "../.env", "../../.env"}
	for _, p := range envPaths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			break
		}
	}
}

// Load builds the configuration from defaults, an optional TOML file named by
// WORKLOAD_CONFIG, and the environment, in that order of precedence.
func Load() (*Config, error) {
	LoadDotEnv()

	cfg := DefaultConfig()
	if path := os.Getenv("WORKLOAD_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
		if cfg.StatsCacheTTLS != "" {
			ttl, err := time.ParseDuration(cfg.StatsCacheTTLS)
			if err != nil {
				return nil, err
			}
			cfg.StatsCacheTTL = ttl
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// RequireSecrets fails when the token or integration key secret is unset
func (c *Config) RequireSecrets() error {
	var missing []string
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.APIMasterSecret == "" {
		missing = append(missing, "API_MASTER_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s must be set", strings.Join(missing, " and "))
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.Port, "PORT")
	setString(&c.GinMode, "GIN_MODE")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.DataPath, "DATA_PATH")
	setString(&c.JWTSecret, "JWT_SECRET")
	setString(&c.APIMasterSecret, "API_MASTER_SECRET")
	setString(&c.AdminUsername, "ADMIN_USERNAME")
	setString(&c.AdminPassword, "ADMIN_PASSWORD")
	setString(&c.RedisURL, "REDIS_URL")

	if v := os.Getenv("STATS_CACHE_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			c.StatsCacheTTL = ttl
		} else {
			log.Printf("ignoring invalid STATS_CACHE_TTL %q: %v", v, err)
		}
	}
	if v := os.Getenv("MATCH_STRICT_GEOGRAPHY"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			c.StrictGeography = b
		} else {
			log.Printf("ignoring invalid MATCH_STRICT_GEOGRAPHY %q", v)
		}
	}
	if v := os.Getenv("MAX_UPLOAD_MB"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.MaxUploadMB = n
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
