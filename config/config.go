// Package config loads process configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	_ "time/tzdata"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	AI       AIConfig
}

// AppConfig holds HTTP and process settings.
type AppConfig struct {
	Port         int
	LogLevel     string
	CORSOrigins  []string
	SeedFixtures bool
	Timezone     string
}

type DatabaseConfig struct {
	Path string
}

// AIConfig holds the text-generation settings. An empty APIKey disables AI.
type AIConfig struct {
	APIKey string
	Model  string
}

// Load reads .env (if present) and then the environment. Variables already
// set in the environment win over the file.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	seed, err := strconv.ParseBool(getEnv("SEED_FIXTURES", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid SEED_FIXTURES: %w", err)
	}

	config := &Config{
		App: AppConfig{
			Port:         port,
			LogLevel:     getEnv("LOG_LEVEL", "info"),
			CORSOrigins:  getEnvSlice("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:8080"}),
			SeedFixtures: seed,
			Timezone:     getEnv("TIMEZONE", "Africa/Nairobi"),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", ":memory:"),
		},
		AI: AIConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		},
	}

	if _, err := config.Location(); err != nil {
		return nil, err
	}
	return config, nil
}

// Location resolves the cooperative's timezone, which defines calendar days
// for payroll windows, sessions and daily statistics.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.App.Timezone, err)
	}
	return loc, nil
}

// Level maps LOG_LEVEL to a slog level; unknown values mean info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.App.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
