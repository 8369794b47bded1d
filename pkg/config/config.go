package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/medtrack/data-ingress/pkg/model"
)

// Config represents the application configuration
type Config struct {
	// Optional warehouse source; nil unless SNOWFLAKE_ACCOUNT is set
	Snowflake *SnowflakeConfig `yaml:"-"`
	// Postgres settings, loaded when the store driver is postgres
	Postgres *PostgresConfig `yaml:"-"`

	Store       StoreConfig       `yaml:"store"`
	DataSources map[string]string `yaml:"data_sources"`
	Processing  ProcessingConfig  `yaml:"processing"`
	Output      OutputConfig      `yaml:"output"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	Schedule    ScheduleConfig    `yaml:"schedule"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StoreConfig selects the canonical store
type StoreConfig struct {
	Driver string `yaml:"driver"` // sqlite or postgres
	DSN    string `yaml:"dsn"`    // sqlite file path or DSN; ignored for postgres
}

// ProcessingConfig controls the ETL stages
type ProcessingConfig struct {
	ChunkSize        int     `yaml:"chunk_size"`
	ValidateData     bool    `yaml:"validate_data"`
	BackupRawData    bool    `yaml:"backup_raw_data"`
	QualityThreshold float64 `yaml:"quality_threshold"`
}

// OutputConfig holds working directories and the report format
type OutputConfig struct {
	RawPath            string `yaml:"raw_path"`
	ProcessedPath      string `yaml:"clean_data_path"`
	ArchivePath        string `yaml:"archive_path"`
	ReportsPath        string `yaml:"reports_path"`
	QualityReportsPath string `yaml:"quality_reports_path"`
	LogsPath           string `yaml:"logs_path"`
	ReportFormat       string `yaml:"report_format"` // json or yaml
}

// ScoringConfig holds the quality score coefficients
type ScoringConfig struct {
	CompletenessWeight float64 `yaml:"completeness_weight"`
	ConsistencyWeight  float64 `yaml:"consistency_weight"`
	AccuracyWeight     float64 `yaml:"accuracy_weight"`
	TimelinessWeight   float64 `yaml:"timeliness_weight"`
	ConsistencyPenalty float64 `yaml:"consistency_penalty"`
	AccuracyPenalty    float64 `yaml:"accuracy_penalty"`
	TimelinessPenalty  float64 `yaml:"timeliness_penalty"`
	FreshnessDays      int     `yaml:"freshness_days"`
}

// ScheduleConfig holds cron expressions (with seconds) for the scheduled jobs
type ScheduleConfig struct {
	ETLCron          string  `yaml:"etl_cron"`
	QualityCron      string  `yaml:"quality_cron"`
	BackupCron       string  `yaml:"backup_cron"`
	AutoFixThreshold float64 `yaml:"auto_fix_threshold"`
	RunOnStart       bool    `yaml:"run_on_start"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Store: StoreConfig{Driver: "sqlite", DSN: "data/medtrack.db"},
		DataSources: map[string]string{
			model.EntityDrug.Table():    "data/raw/drugs.csv",
			model.EntitySale.Table():    "data/raw/sales.csv",
			model.EntityPatient.Table(): "data/raw/patients.csv",
		},
		Processing: ProcessingConfig{
			ChunkSize:        1000,
			ValidateData:     true,
			BackupRawData:    true,
			QualityThreshold: 80,
		},
		Output: OutputConfig{
			RawPath:            "data/raw",
			ProcessedPath:      "data/processed",
			ArchivePath:        "data/archive",
			ReportsPath:        "reports",
			QualityReportsPath: "reports/quality",
			LogsPath:           "logs",
			ReportFormat:       "json",
		},
		Scoring: DefaultScoring(),
		Schedule: ScheduleConfig{
			ETLCron:          "0 0 2 * * *",
			QualityCron:      "0 0 */6 * * *",
			BackupCron:       "0 0 0 * * *",
			AutoFixThreshold: 70,
			RunOnStart:       true,
		},
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// DefaultScoring returns the standard 0.4/0.3/0.2/0.1 weighting
func DefaultScoring() ScoringConfig {
	return ScoringConfig{
		CompletenessWeight: 0.4,
		ConsistencyWeight:  0.3,
		AccuracyWeight:     0.2,
		TimelinessWeight:   0.1,
		ConsistencyPenalty: 10,
		AccuracyPenalty:    5,
		TimelinessPenalty:  5,
		FreshnessDays:      7,
	}
}

// LoadConfig loads configuration from .env files, an optional YAML pipeline
// file and environment variables, in increasing order of precedence
func LoadConfig(envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles...); err != nil {
		return nil, err
	}

	cfg := Default()

	if path := getEnv("PIPELINE_CONFIG", "config/pipeline.yaml"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	// Load database configurations
	if os.Getenv("SNOWFLAKE_ACCOUNT") != "" {
		snowConfig, err := LoadSnowflakeConfig()
		if err != nil {
			return nil, errors.Wrap(err, "failed to load Snowflake configuration")
		}
		cfg.Snowflake = snowConfig
	}

	if cfg.Store.Driver == "postgres" {
		pgConfig, err := LoadPostgresConfig()
		if err != nil {
			return nil, errors.Wrap(err, "failed to load PostgreSQL configuration")
		}
		cfg.Postgres = pgConfig
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return errors.Wrapf(err, "failed to load env file %s", f)
		}
	}
	return nil
}

// mergeFile overlays a YAML pipeline file on the current values. A missing
// file is not an error.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to read pipeline config %s", path)
	}
	sources := c.DataSources
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "failed to parse pipeline config %s", path)
	}
	// Keep default sources for entities the file does not mention
	for k, v := range sources {
		if _, ok := c.DataSources[k]; !ok {
			c.DataSources[k] = v
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Store.Driver = getEnv("STORE_DRIVER", c.Store.Driver)
	c.Store.DSN = getEnv("STORE_DSN", c.Store.DSN)

	for _, e := range model.AllEntityTypes() {
		key := strings.ToUpper(e.Table()) + "_SOURCE"
		c.DataSources[e.Table()] = getEnv(key, c.DataSources[e.Table()])
	}

	c.Processing.ChunkSize = getEnvAsInt("CHUNK_SIZE", c.Processing.ChunkSize)
	c.Processing.ValidateData = getEnvAsBool("VALIDATE_DATA", c.Processing.ValidateData)
	c.Processing.BackupRawData = getEnvAsBool("BACKUP_RAW_DATA", c.Processing.BackupRawData)
	c.Processing.QualityThreshold = getEnvAsFloat("QUALITY_THRESHOLD", c.Processing.QualityThreshold)

	c.Output.RawPath = getEnv("RAW_PATH", c.Output.RawPath)
	c.Output.ProcessedPath = getEnv("PROCESSED_PATH", c.Output.ProcessedPath)
	c.Output.ArchivePath = getEnv("ARCHIVE_PATH", c.Output.ArchivePath)
	c.Output.ReportsPath = getEnv("REPORTS_PATH", c.Output.ReportsPath)
	c.Output.QualityReportsPath = getEnv("QUALITY_REPORTS_PATH", c.Output.QualityReportsPath)
	c.Output.LogsPath = getEnv("LOGS_PATH", c.Output.LogsPath)
	c.Output.ReportFormat = getEnv("REPORT_FORMAT", c.Output.ReportFormat)

	c.Schedule.ETLCron = getEnv("ETL_CRON", c.Schedule.ETLCron)
	c.Schedule.QualityCron = getEnv("QUALITY_CRON", c.Schedule.QualityCron)
	c.Schedule.BackupCron = getEnv("BACKUP_CRON", c.Schedule.BackupCron)
	c.Schedule.AutoFixThreshold = getEnvAsFloat("AUTO_FIX_THRESHOLD", c.Schedule.AutoFixThreshold)
	c.Schedule.RunOnStart = getEnvAsBool("RUN_ON_START", c.Schedule.RunOnStart)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
}

// SourceFor returns the configured source location for an entity type
func (c *Config) SourceFor(e model.EntityType) string {
	return c.DataSources[e.Table()]
}

// WorkingDirs lists the directories the daily batch makes sure exist
func (c *Config) WorkingDirs() []string {
	return []string{
		c.Output.RawPath,
		c.Output.ProcessedPath,
		c.Output.ArchivePath,
		c.Output.ReportsPath,
		c.Output.LogsPath,
	}
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.DSN == "" {
			return errors.New("sqlite store requires STORE_DSN")
		}
	case "postgres":
		if c.Postgres == nil {
			return errors.New("postgreSQL configuration is required for the postgres store")
		}
	default:
		return errors.Newf("unsupported store driver %q", c.Store.Driver)
	}

	if c.Processing.ChunkSize <= 0 {
		return errors.New("chunk size must be positive")
	}

	switch c.Output.ReportFormat {
	case "json", "yaml":
	default:
		return errors.Newf("unsupported report format %q", c.Output.ReportFormat)
	}

	s := c.Scoring
	if s.CompletenessWeight < 0 || s.ConsistencyWeight < 0 || s.AccuracyWeight < 0 || s.TimelinessWeight < 0 {
		return errors.New("scoring weights cannot be negative")
	}
	if s.FreshnessDays < 0 {
		return errors.New("freshness days cannot be negative")
	}

	return nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
