// Package config loads runtime settings for both binaries.
//
// Sources are layered, later ones winning:
//
//  1. Defaults()
//  2. a YAML file named by GYMDESK_CONFIG (optional)
//  3. a .env file in the working directory (optional, never overrides
//     variables already set in the process)
//  4. process environment
//
// The result is checked with validator struct tags before it is returned.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every setting. YAML keys are the lower-case environment names.
type Config struct {
	Addr        string `yaml:"addr" validate:"required"`
	DatabaseURL string `yaml:"database_url" validate:"required"`
	JWTSecret   string `yaml:"jwt_secret" validate:"required,min=16"`

	QRTTLSeconds int    `yaml:"qr_ttl_seconds" validate:"gt=0"`
	QRBranchID   int64  `yaml:"qr_branch_id" validate:"gte=0"`
	QRBranchName string `yaml:"qr_branch_name"`
	QRPurpose    string `yaml:"qr_purpose" validate:"oneof=gym_checkin gym_checkin_global"`

	ScanWindowMS int    `yaml:"scan_window_ms" validate:"gt=0"`
	APIBaseURL   string `yaml:"api_base_url" validate:"required,url"`
	LogLevel     string `yaml:"log_level" validate:"oneof=debug info warn error"`

	// EnableSeed mounts POST /api/admin/seed. Never set it in production.
	EnableSeed bool `yaml:"enable_seed"`
}

// Defaults returns the development configuration.
//
// DATABASE_URL uses modernc.org/sqlite URI parameters:
//
//	_pragma=foreign_keys(1)    enforce FK constraints on every connection
//	_pragma=journal_mode(WAL)  readers don't block writers
//	_pragma=busy_timeout(5000) wait up to 5 s instead of returning SQLITE_BUSY
func Defaults() Config {
	return Config{
		Addr:         ":8080",
		DatabaseURL:  "gymdesk.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		JWTSecret:    "changeme-use-a-real-secret-in-production",
		QRTTLSeconds: 3600,
		QRPurpose:    "gym_checkin_global",
		ScanWindowMS: 3000,
		APIBaseURL:   "http://localhost:8080",
		LogLevel:     "info",
	}
}

// QRTTL returns QRTTLSeconds as a duration.
func (c Config) QRTTL() time.Duration { return time.Duration(c.QRTTLSeconds) * time.Second }

// ScanWindow returns ScanWindowMS as a duration.
func (c Config) ScanWindow() time.Duration { return time.Duration(c.ScanWindowMS) * time.Millisecond }

// Load reads the configuration from the standard locations.
func Load() (Config, error) {
	return LoadFrom(os.Getenv("GYMDESK_CONFIG"), ".env")
}

// LoadFrom is Load with explicit file locations. Either may be empty; a
// missing .env file is not an error, a missing YAML file is.
func LoadFrom(yamlPath, envFile string) (Config, error) {
	cfg := Defaults()

	if yamlPath != "" {
		raw, err := os.ReadFile(yamlPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", yamlPath, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %s", describe(err))
	}
	return cfg, nil
}

var validate = validator.New()

func applyEnv(cfg *Config) error {
	cfg.Addr = getenv("ADDR", cfg.Addr)
	cfg.DatabaseURL = getenv("DATABASE_URL", cfg.DatabaseURL)
	cfg.JWTSecret = getenv("JWT_SECRET", cfg.JWTSecret)
	cfg.QRBranchName = getenv("QR_BRANCH_NAME", cfg.QRBranchName)
	cfg.QRPurpose = getenv("QR_PURPOSE", cfg.QRPurpose)
	cfg.APIBaseURL = getenv("API_BASE_URL", cfg.APIBaseURL)
	cfg.LogLevel = strings.ToLower(getenv("LOG_LEVEL", cfg.LogLevel))

	var err error
	if cfg.QRTTLSeconds, err = getenvInt("QR_TTL_SECONDS", cfg.QRTTLSeconds); err != nil {
		return err
	}
	if cfg.ScanWindowMS, err = getenvInt("SCAN_WINDOW_MS", cfg.ScanWindowMS); err != nil {
		return err
	}
	branch, err := getenvInt("QR_BRANCH_ID", int(cfg.QRBranchID))
	if err != nil {
		return err
	}
	cfg.QRBranchID = int64(branch)

	if v := os.Getenv("ENABLE_SEED"); v != "" {
		on, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("ENABLE_SEED: %q is not a boolean", v)
		}
		cfg.EnableSeed = on
	}
	return nil
}

// getenv returns the value of the named environment variable, or fallback
// if the variable is not set or is empty.
func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a whole number", key, v)
	}
	return n, nil
}

// describe flattens validator errors into "field: tag" pairs.
func describe(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		parts = append(parts, fe.Field()+": "+fe.Tag())
	}
	return strings.Join(parts, ", ")
}
