package config

// Application constants
const (
	AppName    = "eventstudy"
	AppVersion = "1.0.0"

	// EnvPrefix namespaces every environment variable, e.g. EVENTSTUDY_ENGINE_GAP_PERIOD
	EnvPrefix = "EVENTSTUDY"

	// Paths (relative to the working directory)
	DefaultOutputDir = "output"
	DefaultLogsDir   = "logs"
	DefaultLogFile   = "logs/eventstudy.log"

	// Output files written next to the CSV tables
	WorkbookFileName    = "event_study.xlsx"
	ResultFileName      = "result.json"
	DiagnosticsFileName = "diagnostics.json"
	QualityFileName     = "data_quality.json"
	MetricsFileName     = "eventstudy.prom"

	// Log Settings
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
	DefaultLogOutput = "console"

	// Rate limit of the database-backed HTTP routes
	DefaultRunsRateLimit = 5.0
	DefaultRunsRateBurst = 10
)

// ConfigFileLocations are searched in order when no config file is given
var ConfigFileLocations = []string{
	"eventstudy.yaml",
	"configs/eventstudy.yaml",
	"config.yaml",
}
