package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "KPIW"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Database  DatabaseConfig  `yaml:"database" envconfig:"DATABASE"`
	Cleansing CleansingConfig `yaml:"cleansing" envconfig:"CLEANSING"`
	KPI       KPIConfig       `yaml:"kpi" envconfig:"KPI"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int             `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"gte=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" validate:"gte=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// DatabaseConfig selects the warehouse store.
type DatabaseConfig struct {
	Driver       string `yaml:"driver" envconfig:"DRIVER" validate:"required"`
	DSN          string `yaml:"dsn" envconfig:"DSN" validate:"required"`
	MaxOpenConns int    `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS" validate:"gte=0"`
}

// CleansingConfig holds the anomaly gate applied while cleansing staged rows.
// Threshold keys are metric names and match case-insensitively.
type CleansingConfig struct {
	DefaultAnomalyThreshold float64            `yaml:"default_anomaly_threshold" envconfig:"DEFAULT_ANOMALY_THRESHOLD" validate:"gt=0"`
	AnomalyThresholds       map[string]float64 `yaml:"anomaly_thresholds" envconfig:"ANOMALY_THRESHOLDS"`
}

// KPIConfig configures the metric engine.
type KPIConfig struct {
	DefinitionsFile string `yaml:"definitions_file" envconfig:"DEFINITIONS_FILE"`
	AutoCalculate   bool   `yaml:"auto_calculate" envconfig:"AUTO_CALCULATE"`
}

// TelemetryConfig contains OpenTelemetry settings
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name" envconfig:"SERVICE_NAME" validate:"required"`
	TraceExporter  string `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=none stdout"`
	MetricsEnabled bool   `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	BaseDir    string `yaml:"base_dir" envconfig:"BASE_DIR"`
	DataDir    string `yaml:"data_dir" envconfig:"DATA_DIR"`
	ExportsDir string `yaml:"exports_dir" envconfig:"EXPORTS_DIR"`
	LogsDir    string `yaml:"logs_dir" envconfig:"LOGS_DIR"`
}

// Load builds the configuration from defaults, the optional YAML file and
// KPIW_* environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	cfg := Default()

	if configFile := getConfigFilePath(); configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Fields carry no default tags so only variables that are set override.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays YAML values on top of cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// validate normalizes and validates the configuration
func (c *Config) validate() error {
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Output = strings.ToLower(c.Logging.Output)
	c.Telemetry.TraceExporter = strings.ToLower(c.Telemetry.TraceExporter)

	if len(c.Cleansing.AnomalyThresholds) > 0 {
		normalized := make(map[string]float64, len(c.Cleansing.AnomalyThresholds))
		for k, v := range c.Cleansing.AnomalyThresholds {
			if v <= 0 {
				return fmt.Errorf("anomaly threshold for %q must be positive", k)
			}
			normalized[strings.ToLower(strings.TrimSpace(k))] = v
		}
		c.Cleansing.AnomalyThresholds = normalized
	}

	if (c.Logging.Output == "file" || c.Logging.Output == "both") && c.Logging.FilePath == "" {
		return fmt.Errorf("logging file path is required for output %q", c.Logging.Output)
	}

	return validator.New().Struct(c)
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if explicit := os.Getenv(EnvPrefix + "_CONFIG_FILE"); explicit != "" {
		return explicit
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            DefaultPort,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    2 * time.Minute,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     DefaultRateLimit,
				Burst:   DefaultBurstSize,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: "logs/etl.log",
		},
		Database: DatabaseConfig{
			Driver:       DefaultDatabaseDriver,
			DSN:          DefaultDatabaseDSN,
			MaxOpenConns: 1,
		},
		Cleansing: CleansingConfig{
			DefaultAnomalyThreshold: DefaultAnomalyThreshold,
		},
		KPI: KPIConfig{
			DefinitionsFile: "",
			AutoCalculate:   false,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    AppName,
			TraceExporter:  "none",
			MetricsEnabled: true,
		},
		Paths: PathsConfig{
			DataDir:    DefaultDataDir,
			ExportsDir: DefaultExportsDir,
			LogsDir:    DefaultLogsDir,
		},
	}
}

// FilePath returns the database file named by an SQLite DSN, or "" for
// in-memory databases.
func (d DatabaseConfig) FilePath() string {
	dsn := strings.TrimPrefix(d.DSN, "file:")
	if i := strings.IndexByte(dsn, '?'); i >= 0 {
		if strings.Contains(dsn[i:], "mode=memory") {
			return ""
		}
		dsn = dsn[:i]
	}
	if dsn == "" || dsn == ":memory:" {
		return ""
	}
	return dsn
}
