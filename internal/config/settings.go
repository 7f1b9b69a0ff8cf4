package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Settings are the process-wide defaults. Each key can be overridden by the
// environment variable listed in envBindings, or by a .env file.
type Settings struct {
	BackupPath             string           `mapstructure:"backup_path"`
	CatalogDir             string           `mapstructure:"catalog_dir"`
	HistoryFile            string           `mapstructure:"history_file"`
	DefaultUser            string           `mapstructure:"default_user"`
	SchedulerCheckInterval int              `mapstructure:"scheduler_check_interval"`
	TrustServerCertificate bool             `mapstructure:"trust_server_certificate"`
	LogLevel               string           `mapstructure:"log_level"`
	LogFile                string           `mapstructure:"log_file"`
	Schedule               ScheduleSettings `mapstructure:"schedule"`
}

// ScheduleSettings describe the daily backup job armed by `sqlbm schedule`.
type ScheduleSettings struct {
	Database     string   `mapstructure:"database"`
	Time         string   `mapstructure:"time"`
	Weekdays     []string `mapstructure:"weekdays"`
	Compress     bool     `mapstructure:"compress"`
	CopyOnly     bool     `mapstructure:"copy_only"`
	Checksum     bool     `mapstructure:"checksum"`
	Differential bool     `mapstructure:"differential"`
}

const minCheckIntervalMillis = 1000

var envBindings = map[string]string{
	"backup_path":              "DEFAULT_BACKUP_PATH",
	"catalog_dir":              "CATALOG_DIR",
	"history_file":             "SETTINGS_FILE",
	"default_user":             "DEFAULT_USER",
	"scheduler_check_interval": "SCHEDULER_CHECK_INTERVAL",
	"trust_server_certificate": "TRUST_SERVER_CERTIFICATE",
	"log_level":                "LOG_LEVEL",
	"log_file":                 "LOG_FILE",
	"schedule.database":        "SCHEDULE_DATABASE",
	"schedule.time":            "SCHEDULE_TIME",
}

// LoadSettings reads an optional YAML file at path, then applies .env and
// environment overrides. An empty path skips the file.
func LoadSettings(path string) (*Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("backup_path", "backup")
	v.SetDefault("history_file", "connection_history.yaml")
	v.SetDefault("default_user", "sa")
	v.SetDefault("scheduler_check_interval", 30000)
	v.SetDefault("trust_server_certificate", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("schedule.time", "02:00")
	v.SetDefault("schedule.weekdays", []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"})
	v.SetDefault("schedule.compress", true)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(settings.CatalogDir) == "" {
		settings.CatalogDir = settings.BackupPath
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &settings, nil
}

func (s *Settings) Validate() error {
	if strings.TrimSpace(s.BackupPath) == "" {
		return fmt.Errorf("backup_path is required")
	}
	if strings.TrimSpace(s.HistoryFile) == "" {
		return fmt.Errorf("history_file is required")
	}
	if s.SchedulerCheckInterval < minCheckIntervalMillis {
		return fmt.Errorf("scheduler_check_interval must be at least %d ms, got %d", minCheckIntervalMillis, s.SchedulerCheckInterval)
	}
	return nil
}

// CheckInterval is the scheduler poll period.
func (s *Settings) CheckInterval() time.Duration {
	return time.Duration(s.SchedulerCheckInterval) * time.Millisecond
}
