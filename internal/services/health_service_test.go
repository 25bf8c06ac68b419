package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fixedRuns struct{ status *RunStatus }

func (f fixedRuns) LastRun() *RunStatus { return f.status }

func TestHealthService_HealthCheck(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name      string
		outputDir string
		runs      RunTracker
		status    string
		checks    map[string]string
	}{
		{
			name:      "no tracker",
			outputDir: dir,
			status:    "ok",
			checks:    map[string]string{"output_dir": "ok"},
		},
		{
			name:      "before first run",
			outputDir: dir,
			runs:      fixedRuns{},
			status:    "ok",
			checks:    map[string]string{"output_dir": "ok", "last_run": "none"},
		},
		{
			name:      "successful run",
			outputDir: dir,
			runs:      fixedRuns{&RunStatus{RunID: "r1", Success: true}},
			status:    "ok",
			checks:    map[string]string{"output_dir": "ok", "last_run": "ok"},
		},
		{
			name:      "failed run",
			outputDir: dir,
			runs:      fixedRuns{&RunStatus{RunID: "r2", Error: "boom"}},
			status:    "degraded",
			checks:    map[string]string{"output_dir": "ok", "last_run": "failed"},
		},
		{
			name:      "missing output dir",
			outputDir: filepath.Join(dir, "absent"),
			status:    "degraded",
			checks:    map[string]string{"output_dir": "missing"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewHealthService("1.2.3", tt.outputDir, tt.runs, testLogger())
			got := svc.HealthCheck(context.Background())

			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.checks, got.Checks)
			assert.Equal(t, "1.2.3", got.Version)
			assert.NotEmpty(t, got.Uptime)
		})
	}
}

func TestHealthService_TracksEventStudyRuns(t *testing.T) {
	eventsPath, returnsPath := writeInputs(t, "firm_id,date,ret,mkt")
	paths := testPaths(t)

	svc, err := NewEventStudyService(testConfig(), paths, testLogger())
	assert.NoError(t, err)
	assert.Nil(t, svc.LastRun())

	health := NewHealthService("1.0.0", paths.OutputDir, svc, testLogger())

	_, err = svc.Run(context.Background(), RunRequest{EventsPath: eventsPath, ReturnsPath: returnsPath, RunID: "ok-run"})
	assert.NoError(t, err)

	got := health.HealthCheck(context.Background())
	assert.Equal(t, "ok", got.Status)
	if assert.NotNil(t, got.LastRun) {
		assert.Equal(t, "ok-run", got.LastRun.RunID)
		assert.Equal(t, 2, got.LastRun.Events)
	}

	_, err = svc.Run(context.Background(), RunRequest{EventsPath: eventsPath, ReturnsPath: filepath.Join(t.TempDir(), "nope.csv"), RunID: "bad-run"})
	assert.Error(t, err)

	got = health.HealthCheck(context.Background())
	assert.Equal(t, "degraded", got.Status)
	assert.Equal(t, "bad-run", got.LastRun.RunID)
	assert.NotEmpty(t, got.LastRun.Error)
}

func TestHealthService_Version(t *testing.T) {
	svc := NewHealthService("9.9.9", t.TempDir(), nil, nil)
	v := svc.Version()
	assert.Equal(t, "9.9.9", v["version"])
	assert.NotEmpty(t, v["go_version"])
}
