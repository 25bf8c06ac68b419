package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "eventstudy/internal/errors"
	"eventstudy/internal/eventstudy"
)

// chdir moves the test into an empty directory so no stray config or .env file is picked up
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(prev) })
	return dir
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "eventstudy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		file        string
		dotenv      string
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "defaults",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []int{1, 3, 5, 10}, cfg.Engine.Widths)
				assert.Equal(t, 250, cfg.Engine.EstimationPeriod)
				assert.Equal(t, 10, cfg.Engine.GapPeriod)
				assert.Equal(t, "auto", cfg.Engine.Weighting)
				assert.Equal(t, []string{"market_model"}, cfg.Engine.TestMethods)
				assert.Equal(t, "json", cfg.Logging.Format)
				assert.Equal(t, "output", cfg.Paths.OutputDir)
				assert.Equal(t, "ret", cfg.Schema.Return)
				assert.Empty(t, cfg.Storage.DatabasePath)
				assert.Equal(t, 5.0, cfg.Observability.RunsRateLimit)
				assert.Equal(t, 10, cfg.Observability.RunsRateBurst)
			},
		},
		{
			name: "file overrides defaults",
			file: "engine:\n  widths: [1, 2]\n  gap_period: 5\nschema:\n  return: RET\n  detect: true\n",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []int{1, 2}, cfg.Engine.Widths)
				assert.Equal(t, 5, cfg.Engine.GapPeriod)
				assert.Equal(t, 250, cfg.Engine.EstimationPeriod)
				assert.Equal(t, "RET", cfg.Schema.Return)
				assert.Equal(t, "mkt", cfg.Schema.Market)
				assert.True(t, cfg.Schema.Detect)
			},
		},
		{
			name: "env overrides file",
			file: "engine:\n  gap_period: 12\n",
			env: map[string]string{
				"EVENTSTUDY_ENGINE_GAP_PERIOD":   "20",
				"EVENTSTUDY_ENGINE_WEIGHTING":    "equal",
				"EVENTSTUDY_ENGINE_TEST_METHODS": "mm,mean",
				"EVENTSTUDY_LOGGING_LEVEL":       "debug",

				"EVENTSTUDY_OBSERVABILITY_RUNS_RATE_LIMIT": "0.5",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 20, cfg.Engine.GapPeriod)
				assert.Equal(t, "equal", cfg.Engine.Weighting)
				assert.Equal(t, []string{"mm", "mean"}, cfg.Engine.TestMethods)
				assert.Equal(t, "debug", cfg.Logging.Level)
				assert.Equal(t, 0.5, cfg.Observability.RunsRateLimit)
			},
		},
		{
			name:   "dotenv file",
			dotenv: "EVENTSTUDY_STORAGE_DATABASE_PATH=results.db\nEVENTSTUDY_ENGINE_CONCURRENCY=8\n",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "results.db", cfg.Storage.DatabasePath)
				assert.Equal(t, 8, cfg.Engine.Concurrency)
			},
		},
		{
			name:    "unknown file key",
			file:    "engine:\n  window: 3\n",
			wantErr: true,
		},
		{
			name:    "gap narrower than widest window",
			env:     map[string]string{"EVENTSTUDY_ENGINE_GAP_PERIOD": "3"},
			wantErr: true,
		},
		{
			name:    "bad weighting",
			env:     map[string]string{"EVENTSTUDY_ENGINE_WEIGHTING": "cap"},
			wantErr: true,
		},
		{
			name:    "unparseable env value",
			env:     map[string]string{"EVENTSTUDY_ENGINE_WIDTHS": "1,x"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := chdir(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if tt.dotenv != "" {
				require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(tt.dotenv), 0644))
				t.Cleanup(func() {
					os.Unsetenv("EVENTSTUDY_STORAGE_DATABASE_PATH")
					os.Unsetenv("EVENTSTUDY_ENGINE_CONCURRENCY")
				})
			}
			if tt.file != "" {
				writeConfig(t, dir, tt.file)
			}

			cfg, err := Load("")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig), err.Error())
				return
			}
			require.NoError(t, err)
			tt.validateCfg(t, cfg)
		})
	}
}

func TestLoad_ExplicitPath(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("paths:\n  output_dir: /tmp/study\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/study", cfg.Paths.OutputDir)

	_, err = Load(filepath.Join(dir, "absent.yaml"))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
}

func TestToEngineConfig(t *testing.T) {
	cfg := Default()
	cfg.Engine.Widths = []int{3, 1}
	cfg.Engine.TestMethods = []string{"market_adjusted", "mm"}
	cfg.Engine.DateMode = "calendar"

	engine, err := cfg.Engine.ToEngineConfig()
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1}, engine.Widths)
	assert.Equal(t, []eventstudy.Method{eventstudy.MarketAdjusted, eventstudy.MarketModel}, engine.TestMethods)
	assert.Equal(t, eventstudy.DateModeCalendar, engine.DateMode)
	assert.Equal(t, eventstudy.WeightingAuto, engine.Weighting)

	cfg.Engine.TestMethods = []string{"fama_french"}
	_, err = cfg.Engine.ToEngineConfig()
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	engine, err := cfg.Engine.ToEngineConfig()
	require.NoError(t, err)
	assert.Equal(t, eventstudy.DefaultConfig(), engine)

	assert.Equal(t, eventstudy.DefaultEventSchema(), cfg.Schema.EventSchema())
	assert.Equal(t, eventstudy.DefaultReturnSchema(), cfg.Schema.ReturnSchema())
	assert.Contains(t, cfg.String(), "estimation_period: 250")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad log output", func(c *Config) { c.Logging.Output = "syslog" }},
		{"empty output dir", func(c *Config) { c.Paths.OutputDir = "" }},
		{"bad metrics address", func(c *Config) { c.Observability.MetricsAddr = "not an address" }},
		{"negative runs rate limit", func(c *Config) { c.Observability.RunsRateLimit = -1 }},
		{"zero concurrency", func(c *Config) { c.Engine.Concurrency = 0 }},
		{"no widths", func(c *Config) { c.Engine.Widths = nil }},
		{"min observations above estimation period", func(c *Config) { c.Engine.MinObservations = 300 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
		})
	}

	cfg := Default()
	cfg.Observability.MetricsAddr = "127.0.0.1:9464"
	assert.NoError(t, cfg.Validate())
}
