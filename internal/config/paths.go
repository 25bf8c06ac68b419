package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths contains every resolved file location of a run
type Paths struct {
	OutputDir string
	LogsDir   string

	WorkbookFile    string
	ResultFile      string
	DiagnosticsFile string
	QualityFile     string
	MetricsFile     string
}

// GetPaths resolves the configured directories against the working directory.
// Absolute directories are used as given.
func GetPaths(cfg PathsConfig) (*Paths, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %v", err)
	}

	p := &Paths{
		OutputDir: resolve(wd, cfg.OutputDir, DefaultOutputDir),
		LogsDir:   resolve(wd, cfg.LogsDir, DefaultLogsDir),
	}
	p.WorkbookFile = p.GetOutputPath(WorkbookFileName)
	p.ResultFile = p.GetOutputPath(ResultFileName)
	p.DiagnosticsFile = p.GetOutputPath(DiagnosticsFileName)
	p.QualityFile = p.GetOutputPath(QualityFileName)
	p.MetricsFile = p.GetOutputPath(MetricsFileName)
	return p, nil
}

func resolve(base, dir, fallback string) string {
	if dir == "" {
		dir = fallback
	}
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(base, dir)
}

// EnsureDirectories creates the output and log directories
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.OutputDir, p.LogsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// GetOutputPath returns a file path inside the output directory
func (p *Paths) GetOutputPath(filename string) string {
	return filepath.Join(p.OutputDir, filename)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// LogPathResolution logs the resolved paths at debug level
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("Resolved paths",
		slog.String("output_dir", p.OutputDir),
		slog.String("logs_dir", p.LogsDir),
		slog.String("workbook", p.WorkbookFile),
		slog.String("result", p.ResultFile),
	)
}
