package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	apperrors "eventstudy/internal/errors"
	"eventstudy/internal/eventstudy"
)

// Config represents the complete application configuration
type Config struct {
	Engine        EngineConfig        `yaml:"engine" envconfig:"ENGINE"`
	Schema        SchemaConfig        `yaml:"schema" envconfig:"SCHEMA"`
	Logging       LoggingConfig       `yaml:"logging" envconfig:"LOGGING"`
	Paths         PathsConfig         `yaml:"paths" envconfig:"PATHS"`
	Observability ObservabilityConfig `yaml:"observability" envconfig:"OBSERVABILITY"`
	Storage       StorageConfig       `yaml:"storage" envconfig:"STORAGE"`
}

// EngineConfig contains the research-design parameters of a run
type EngineConfig struct {
	Widths                []int    `yaml:"widths" envconfig:"WIDTHS" validate:"required,min=1,dive,gt=0"`
	EstimationPeriod      int      `yaml:"estimation_period" envconfig:"ESTIMATION_PERIOD" validate:"gt=0"`
	GapPeriod             int      `yaml:"gap_period" envconfig:"GAP_PERIOD" validate:"gte=0"`
	MinObservations       int      `yaml:"min_observations" envconfig:"MIN_OBSERVATIONS" validate:"gte=3"`
	SignificanceThreshold float64  `yaml:"significance_threshold" envconfig:"SIGNIFICANCE_THRESHOLD" validate:"gt=0,lt=1"`
	Weighting             string   `yaml:"weighting" envconfig:"WEIGHTING" validate:"oneof=auto supplied value equal"`
	DateMode              string   `yaml:"date_mode" envconfig:"DATE_MODE" validate:"oneof=auto calendar trading"`
	Concurrency           int      `yaml:"concurrency" envconfig:"CONCURRENCY" validate:"gte=1,lte=256"`
	TestMethods           []string `yaml:"test_methods" envconfig:"TEST_METHODS" validate:"required,min=1"`
}

// SchemaConfig maps input columns onto events and returns
type SchemaConfig struct {
	Detect       bool   `yaml:"detect" envconfig:"DETECT"`
	EventID      string `yaml:"event_id" envconfig:"EVENT_ID"`
	EventFirmID  string `yaml:"event_firm_id" envconfig:"EVENT_FIRM_ID"`
	EventDate    string `yaml:"event_date" envconfig:"EVENT_DATE"`
	ReturnFirmID string `yaml:"return_firm_id" envconfig:"RETURN_FIRM_ID"`
	ReturnDate   string `yaml:"return_date" envconfig:"RETURN_DATE"`
	Return       string `yaml:"return" envconfig:"RETURN"`
	Market       string `yaml:"market" envconfig:"MARKET"`
	Weight       string `yaml:"weight" envconfig:"WEIGHT"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	OutputDir string `yaml:"output_dir" envconfig:"OUTPUT_DIR" validate:"required"`
	LogsDir   string `yaml:"logs_dir" envconfig:"LOGS_DIR" validate:"required"`
}

// ObservabilityConfig contains tracing and metrics configuration
type ObservabilityConfig struct {
	ServiceName string `yaml:"service_name" envconfig:"SERVICE_NAME" validate:"required"`
	TraceStdout bool   `yaml:"trace_stdout" envconfig:"TRACE_STDOUT"`
	MetricsAddr string `yaml:"metrics_addr" envconfig:"METRICS_ADDR" validate:"omitempty,hostname_port"`
	MetricsFile string `yaml:"metrics_file" envconfig:"METRICS_FILE"`
	// requests per second on the /runs routes; 0 disables the limit
	RunsRateLimit float64 `yaml:"runs_rate_limit" envconfig:"RUNS_RATE_LIMIT" validate:"gte=0"`
	RunsRateBurst int     `yaml:"runs_rate_burst" envconfig:"RUNS_RATE_BURST" validate:"gte=0"`
}

// StorageConfig contains the optional result database
type StorageConfig struct {
	DatabasePath string `yaml:"database_path" envconfig:"DATABASE_PATH"`
}

var validate = validator.New()

// Load reads configuration from defaults, then the YAML file, then the environment.
// A .env file in the working directory is loaded into the environment first when present.
// An empty path searches the default locations.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.NewConfigError("failed to load .env file", err)
	}

	cfg := Default()

	if path == "" {
		path = getConfigFilePath()
	}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, apperrors.NewConfigError("failed to load config from file", err).WithContext("path", path)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, apperrors.NewConfigError("failed to load config from env", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg; keys absent from the file keep their value
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

// Validate checks field ranges and that the engine section converts to a valid engine configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return apperrors.NewConfigError("config validation failed", err)
	}
	if _, err := c.Engine.ToEngineConfig(); err != nil {
		return err
	}
	return nil
}

// ToEngineConfig converts the engine section into the immutable engine configuration
func (e EngineConfig) ToEngineConfig() (eventstudy.Config, error) {
	methods := make([]eventstudy.Method, 0, len(e.TestMethods))
	for _, name := range e.TestMethods {
		m, err := eventstudy.ParseMethod(name)
		if err != nil {
			return eventstudy.Config{}, apperrors.NewConfigError("invalid test method", err)
		}
		methods = append(methods, m)
	}

	cfg := eventstudy.Config{
		Widths:                append([]int(nil), e.Widths...),
		EstimationPeriod:      e.EstimationPeriod,
		GapPeriod:             e.GapPeriod,
		MinObservations:       e.MinObservations,
		SignificanceThreshold: e.SignificanceThreshold,
		Weighting:             eventstudy.Weighting(e.Weighting),
		DateMode:              eventstudy.DateMode(e.DateMode),
		Concurrency:           e.Concurrency,
		TestMethods:           methods,
	}
	if err := cfg.Validate(); err != nil {
		return eventstudy.Config{}, apperrors.NewConfigError("invalid engine configuration", err)
	}
	return cfg, nil
}

// EventSchema returns the configured event column mapping
func (s SchemaConfig) EventSchema() eventstudy.EventSchema {
	return eventstudy.EventSchema{EventID: s.EventID, FirmID: s.EventFirmID, Date: s.EventDate}
}

// ReturnSchema returns the configured return column mapping
func (s SchemaConfig) ReturnSchema() eventstudy.ReturnSchema {
	return eventstudy.ReturnSchema{
		FirmID: s.ReturnFirmID,
		Date:   s.ReturnDate,
		Return: s.Return,
		Market: s.Market,
		Weight: s.Weight,
	}
}

// getConfigFilePath returns the first config file found in the default locations
func getConfigFilePath() string {
	for _, location := range ConfigFileLocations {
		if FileExists(location) {
			return location
		}
	}
	return ""
}

// Default returns default configuration
func Default() *Config {
	engine := eventstudy.DefaultConfig()
	events := eventstudy.DefaultEventSchema()
	returns := eventstudy.DefaultReturnSchema()

	return &Config{
		Engine: EngineConfig{
			Widths:                engine.Widths,
			EstimationPeriod:      engine.EstimationPeriod,
			GapPeriod:             engine.GapPeriod,
			MinObservations:       engine.MinObservations,
			SignificanceThreshold: engine.SignificanceThreshold,
			Weighting:             string(engine.Weighting),
			DateMode:              string(engine.DateMode),
			Concurrency:           engine.Concurrency,
			TestMethods:           []string{eventstudy.MarketModel.String()},
		},
		Schema: SchemaConfig{
			EventID:      events.EventID,
			EventFirmID:  events.FirmID,
			EventDate:    events.Date,
			ReturnFirmID: returns.FirmID,
			ReturnDate:   returns.Date,
			Return:       returns.Return,
			Market:       returns.Market,
			Weight:       returns.Weight,
		},
		Logging: LoggingConfig{
			Level:    DefaultLogLevel,
			Format:   DefaultLogFormat,
			Output:   DefaultLogOutput,
			FilePath: DefaultLogFile,
		},
		Paths: PathsConfig{
			OutputDir: DefaultOutputDir,
			LogsDir:   DefaultLogsDir,
		},
		Observability: ObservabilityConfig{
			ServiceName:   AppName,
			RunsRateLimit: DefaultRunsRateLimit,
			RunsRateBurst: DefaultRunsRateBurst,
		},
	}
}

// String renders the configuration as YAML
func (c *Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}
