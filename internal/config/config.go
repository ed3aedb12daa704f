package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendCSV = "csv"
	BackendSQL = "sql"
)

// Config holds runtime configuration values for the admission ledger service.
type Config struct {
	AppName  string
	AppEnv   string
	AppPort  string
	LogLevel zerolog.Level

	StoreBackend string
	DataDir      string
	RosterFile   string
	TcFile       string
	StrictDates  bool

	DatabaseDriver string
	DatabaseURL    string

	RedisURL      string
	RedisLockTTL  time.Duration
	RedisLockWait time.Duration
	NATSURL       string
	EventsChannel string

	SummaryCacheTTL time.Duration

	SchoolName    string
	AdmissionYear int

	RateLimitMax    int
	RateLimitWindow time.Duration
	ImportMaxBytes  int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// RosterPath is the location of the roster table for the CSV backend.
func (c Config) RosterPath() string {
	return filepath.Join(c.DataDir, c.RosterFile)
}

// TcArchivePath is the location of the TC archive table for the CSV backend.
func (c Config) TcArchivePath() string {
	return filepath.Join(c.DataDir, c.TcFile)
}

// IsProduction reports whether the service runs with production defaults.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ADMISSION")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Admission Ledger API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("store.backend", BackendCSV)
	v.SetDefault("store.data_dir", ".")
	v.SetDefault("store.roster_file", "admission_data.csv")
	v.SetDefault("store.tc_file", "tc_records.csv")
	v.SetDefault("store.strict_dates", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.url", "admission_ledger.db")
	v.SetDefault("redis.lock_ttl", "10s")
	v.SetDefault("redis.lock_wait", "2s")
	v.SetDefault("events.channel", "admission:ledger")
	v.SetDefault("analytics.cache_ttl", "30s")
	v.SetDefault("school.name", "Higher Secondary School")
	v.SetDefault("school.admission_year", time.Now().Year())
	v.SetDefault("ratelimit.max", 30)
	v.SetDefault("ratelimit.window", "1m")
	v.SetDefault("import.max_bytes", 5<<20)

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(v.GetString("log.level")))
	if err != nil {
		return Config{}, fmt.Errorf("invalid log level: %w", err)
	}

	durations := map[string]time.Duration{}
	for _, key := range []string{"redis.lock_ttl", "redis.lock_wait", "ratelimit.window", "analytics.cache_ttl"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("%s must be positive", key)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:         v.GetString("app.name"),
		AppEnv:          v.GetString("app.env"),
		AppPort:         v.GetString("app.port"),
		LogLevel:        level,
		StoreBackend:    strings.ToLower(strings.TrimSpace(v.GetString("store.backend"))),
		DataDir:         v.GetString("store.data_dir"),
		RosterFile:      v.GetString("store.roster_file"),
		TcFile:          v.GetString("store.tc_file"),
		StrictDates:     v.GetBool("store.strict_dates"),
		DatabaseDriver:  strings.ToLower(strings.TrimSpace(v.GetString("database.driver"))),
		DatabaseURL:     v.GetString("database.url"),
		RedisURL:        v.GetString("redis.url"),
		RedisLockTTL:    durations["redis.lock_ttl"],
		RedisLockWait:   durations["redis.lock_wait"],
		NATSURL:         v.GetString("nats.url"),
		EventsChannel:   v.GetString("events.channel"),
		SummaryCacheTTL: durations["analytics.cache_ttl"],
		SchoolName:      v.GetString("school.name"),
		AdmissionYear:   v.GetInt("school.admission_year"),
		RateLimitMax:    v.GetInt("ratelimit.max"),
		RateLimitWindow: durations["ratelimit.window"],
		ImportMaxBytes:  v.GetInt("import.max_bytes"),
	}

	switch cfg.StoreBackend {
	case BackendCSV:
		if cfg.RosterFile == "" || cfg.TcFile == "" {
			return Config{}, fmt.Errorf("store roster and tc file names must be provided")
		}
	case BackendSQL:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("database url must be provided for the sql backend")
		}
		if cfg.DatabaseDriver != "sqlite" && cfg.DatabaseDriver != "postgres" {
			return Config{}, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
		}
	default:
		return Config{}, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}

	if cfg.RateLimitMax <= 0 {
		return Config{}, fmt.Errorf("ratelimit max must be positive")
	}
	if cfg.ImportMaxBytes <= 0 {
		return Config{}, fmt.Errorf("import max bytes must be positive")
	}

	return cfg, nil
}
