package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var GlobalConfig *Config

// Config global configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Queue    QueueConfig    `yaml:"queue"`
	Logger   LoggerConfig   `yaml:"logger"`
	Source   SourceConfig   `yaml:"source"`
	Training TrainingConfig `yaml:"training"`
	Registry RegistryConfig `yaml:"registry"`
	Jobs     JobsConfig     `yaml:"jobs"`

	Notification NotificationConfig `yaml:"notification"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Port   int    `yaml:"port"`
	Mode   string `yaml:"mode"`    // debug, release
	APIKey string `yaml:"api_key"` // API key for pipeline/registry management (optional, if empty, auth is disabled)
}

// RedisConfig Redis configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MySQLConfig MySQL configuration
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`

	MaxOpenConns int `yaml:"max_open_conns"`
	MaxIdleConns int `yaml:"max_idle_conns"`
}

// DSN builds the go-sql-driver DSN.
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// QueueConfig pipeline run queue configuration
type QueueConfig struct {
	Concurrency int `yaml:"concurrency"`  // must stay 1: runs share the artifact directory
	MaxRetry    int `yaml:"max_retry"`    // maximum retry count for a failed run
	TaskTimeout int `yaml:"task_timeout"` // run timeout (seconds)
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Format string           `yaml:"format"` // console (default) or json
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path"`
}

// SourceConfig raw sample source configuration
type SourceConfig struct {
	URLTemplate string   `yaml:"url_template"` // {period} is replaced by the period name, e.g. 1-8-2021
	Dir         string   `yaml:"dir"`          // read <dir>/<period>.csv instead of fetching over HTTP
	Periods     []string `yaml:"periods"`      // periods loaded by a run that does not name its own
	Timeout     int      `yaml:"timeout"`      // per-period fetch timeout (seconds)
}

// TrainingConfig training configuration
type TrainingConfig struct {
	ArtifactDir string `yaml:"artifact_dir"` // where models and reports are written
}

// RegistryConfig model registry configuration
type RegistryConfig struct {
	ModelName string `yaml:"model_name"` // registered model name
	ServeURI  string `yaml:"serve_uri"`  // models:/<name>/<stage|latest|version> served by /predict
}

// JobsConfig background job configuration
type JobsConfig struct {
	RetrainEnabled  bool `yaml:"retrain_enabled"`
	RetrainInterval int  `yaml:"retrain_interval"` // seconds
	RetrainAligned  bool `yaml:"retrain_aligned"`  // wait for the next interval boundary before the first run
	RefreshInterval int  `yaml:"refresh_interval"` // seconds between served-model refresh checks
}

// NotificationConfig run notification configuration
type NotificationConfig struct {
	FeishuWebhookURL string `yaml:"feishu_webhook_url"` // Feishu bot webhook, falls back to FEISHU_WEBHOOK_URL
	NotifySuccess    bool   `yaml:"notify_success"`     // failed runs are always reported
}

// Default values applied by validateAndApplyDefaults.
const (
	DefaultPort            = 8080
	DefaultURLTemplate     = "https://dl.minetrack.me/Java/{period}.csv"
	DefaultSourceTimeout   = 60
	DefaultArtifactDir     = "models"
	DefaultModelName       = "minecraft-model"
	DefaultRetrainInterval = 24 * 60 * 60
	DefaultRefreshInterval = 60
	DefaultTaskTimeout     = 30 * 60
	DefaultMaxOpenConns    = 10
	DefaultMaxIdleConns    = 2
)

// Init initializes configuration
func Init() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := Load(configPath)
	if err != nil {
		return err
	}

	GlobalConfig = cfg
	return nil
}

// Load reads a YAML configuration file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	validateAndApplyDefaults(&cfg)
	return &cfg, nil
}

// validateAndApplyDefaults replaces missing or invalid values with defaults
func validateAndApplyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.MySQL.MaxOpenConns <= 0 {
		cfg.MySQL.MaxOpenConns = DefaultMaxOpenConns
	}
	if cfg.MySQL.MaxIdleConns <= 0 || cfg.MySQL.MaxIdleConns > cfg.MySQL.MaxOpenConns {
		cfg.MySQL.MaxIdleConns = min(DefaultMaxIdleConns, cfg.MySQL.MaxOpenConns)
	}
	if cfg.Queue.Concurrency != 1 {
		cfg.Queue.Concurrency = 1
	}
	if cfg.Queue.MaxRetry < 0 {
		cfg.Queue.MaxRetry = 0
	}
	if cfg.Queue.TaskTimeout <= 0 {
		cfg.Queue.TaskTimeout = DefaultTaskTimeout
	}
	if cfg.Source.URLTemplate == "" {
		cfg.Source.URLTemplate = DefaultURLTemplate
	}
	if cfg.Source.Timeout <= 0 {
		cfg.Source.Timeout = DefaultSourceTimeout
	}
	if cfg.Training.ArtifactDir == "" {
		cfg.Training.ArtifactDir = DefaultArtifactDir
	}
	if cfg.Registry.ModelName == "" {
		cfg.Registry.ModelName = DefaultModelName
	}
	if cfg.Registry.ServeURI == "" {
		cfg.Registry.ServeURI = fmt.Sprintf("models:/%s/Production", cfg.Registry.ModelName)
	}
	if cfg.Jobs.RetrainInterval <= 0 {
		cfg.Jobs.RetrainInterval = DefaultRetrainInterval
	}
	if cfg.Jobs.RefreshInterval <= 0 {
		cfg.Jobs.RefreshInterval = DefaultRefreshInterval
	}
}
