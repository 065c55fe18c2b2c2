package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the process-wide service configuration, resolved once at boot:
// defaults, then an optional YAML file (SCOREWISE_CONFIG), then environment
// overrides. Artifacts referenced here are loaded immediately after and never
// reloaded per request.
type Config struct {
	Port      string `yaml:"port" validate:"required"`
	BundleDir string `yaml:"bundle_dir" validate:"required"`

	// Decision threshold override; 0 keeps the threshold the model artifact
	// was calibrated with.
	Threshold float64 `yaml:"threshold" validate:"gte=0,lte=1"`

	PopulationCSV     string `yaml:"population_csv"`
	PopulationMaxRows int    `yaml:"population_max_rows" validate:"gte=0"`
	ImportancePath    string `yaml:"importance_path"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db" validate:"gte=0"`
	IPLimitPerMin int    `yaml:"ip_limit_per_min" validate:"gt=0"`

	DashboardEnabled bool `yaml:"dashboard_enabled"`
	// Base URL the dashboard and CLI use to reach the prediction API. The
	// default points at the local service; deployments point it at the
	// published one.
	APIBaseURL string `yaml:"api_base_url" validate:"required,url"`

	CORSOrigins []string `yaml:"cors_origins"`
}

// Load resolves the configuration. A .env file is honored when present.
func Load() (*Config, error) {
	// best effort, absence is the normal case outside development
	_ = godotenv.Load()

	cfg := &Config{
		Port:              "8080",
		BundleDir:         "./artifacts/bundle",
		PopulationMaxRows: 10000,
		ImportancePath:    "./artifacts/global_importance.json",
		IPLimitPerMin:     60,
		DashboardEnabled:  true,
		CORSOrigins:       []string{"*"},
	}

	if path := os.Getenv("SCOREWISE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://localhost:" + cfg.Port
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Port, "PORT")
	setString(&cfg.BundleDir, "BUNDLE_DIR")
	setFloat(&cfg.Threshold, "THRESHOLD")
	setString(&cfg.PopulationCSV, "POPULATION_CSV")
	setInt(&cfg.PopulationMaxRows, "POPULATION_MAX_ROWS")
	setString(&cfg.ImportancePath, "IMPORTANCE_PATH")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setInt(&cfg.RedisDB, "REDIS_DB")
	setInt(&cfg.IPLimitPerMin, "IP_LIMIT_PER_MIN")
	setBool(&cfg.DashboardEnabled, "DASHBOARD_ENABLED")
	setString(&cfg.APIBaseURL, "SCOREWISE_API_URL")
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.CORSOrigins = parts
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
