package config

import (
	"log/slog"

	"github.com/contactkit/importer/internal/db"
	"github.com/spf13/viper"
)

// Server holds HTTP server settings.
type Server struct {
	Addr          string
	AllowedOrigin string
}

// Import holds pipeline sizing knobs.
type Import struct {
	BatchSize int
	// MaxConcurrentJobs caps the number of import jobs running at once.
	MaxConcurrentJobs int
	// StreamThresholdBytes selects the streaming row source for files at or
	// above this size; smaller files are fully buffered.
	StreamThresholdBytes int64
}

// Config is the full service configuration.
type Config struct {
	Database db.Config
	Server   Server
	Import   Import
}

// Default returns the built-in configuration used when no config file or
// environment overrides are present.
func Default() Config {
	return Config{
		Database: db.DefaultConfig(),
		Server: Server{
			Addr:          ":8080",
			AllowedOrigin: "http://localhost:3000",
		},
		Import: Import{
			BatchSize:            1000,
			MaxConcurrentJobs:    4,
			StreamThresholdBytes: 32 << 20,
		},
	}
}

// Load reads config.yaml from configPath when present and applies it over
// the defaults. Environment variables prefixed APP_ override both, e.g.
// APP_DATABASE_HOST, APP_IMPORT_BATCH_SIZE.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("APP")

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("server.addr")
	v.BindEnv("server.allowed_origin")
	v.BindEnv("import.batch_size")
	v.BindEnv("import.max_concurrent_jobs")
	v.BindEnv("import.stream_threshold_bytes")

	if err := v.ReadInConfig(); err != nil {
		slog.Info("no config.yaml found, using defaults and env vars")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origin") {
		cfg.Server.AllowedOrigin = v.GetString("server.allowed_origin")
	}
	if v.IsSet("import.batch_size") {
		cfg.Import.BatchSize = v.GetInt("import.batch_size")
	}
	if v.IsSet("import.max_concurrent_jobs") {
		cfg.Import.MaxConcurrentJobs = v.GetInt("import.max_concurrent_jobs")
	}
	if v.IsSet("import.stream_threshold_bytes") {
		cfg.Import.StreamThresholdBytes = v.GetInt64("import.stream_threshold_bytes")
	}

	if cfg.Import.BatchSize <= 0 {
		cfg.Import.BatchSize = 1000
	}
	if cfg.Import.MaxConcurrentJobs <= 0 {
		cfg.Import.MaxConcurrentJobs = 1
	}

	return cfg, nil
}
