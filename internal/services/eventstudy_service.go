package services

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"eventstudy/internal/config"
	apperrors "eventstudy/internal/errors"
	"eventstudy/internal/eventstudy"
	"eventstudy/internal/infrastructure"
	"eventstudy/internal/validation"
)

const tracerName = "eventstudy/internal/services"

// ResultStore persists the tables of a finished run
type ResultStore interface {
	SaveRun(ctx context.Context, runID string, res *eventstudy.Result) error
}

// RunRequest names the input tables of one run
type RunRequest struct {
	EventsPath  string
	ReturnsPath string
	// RunID defaults to the trace id of the run context
	RunID string
}

// RunReport describes a finished run
type RunReport struct {
	RunID    string                   `json:"run_id"`
	Result   *eventstudy.Result       `json:"-"`
	Quality  eventstudy.QualityReport `json:"quality"`
	Files    []string                 `json:"files"`
	Stored   bool                     `json:"stored"`
	Duration time.Duration            `json:"duration"`
}

// EventStudyService loads inputs, runs the engine and writes every output artifact
type EventStudyService struct {
	paths     *config.Paths
	validator *validation.FileValidator
	loader    *eventstudy.Loader
	engine    *eventstudy.Engine
	store     ResultStore
	metrics   *infrastructure.RunMetrics
	tracer    trace.Tracer
	logger    *slog.Logger

	mu      sync.RWMutex
	lastRun *RunStatus
}

// RunStatus is the outcome of the most recent run
type RunStatus struct {
	RunID      string        `json:"run_id"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	Events     int           `json:"events"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration_ns"`
}

// Option configures an EventStudyService
type Option func(*EventStudyService)

// WithStore saves every successful run into store
func WithStore(store ResultStore) Option {
	return func(s *EventStudyService) {
		s.store = store
	}
}

// WithMetrics records run counters into metrics
func WithMetrics(metrics *infrastructure.RunMetrics) Option {
	return func(s *EventStudyService) {
		s.metrics = metrics
	}
}

// NewEventStudyService creates the service from application configuration
func NewEventStudyService(cfg *config.Config, paths *config.Paths, logger *slog.Logger, opts ...Option) (*EventStudyService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if paths == nil {
		var err error
		if paths, err = config.GetPaths(cfg.Paths); err != nil {
			return nil, apperrors.NewConfigError("failed to resolve paths", err)
		}
	}

	engineCfg, err := cfg.Engine.ToEngineConfig()
	if err != nil {
		return nil, err
	}
	engine, err := eventstudy.NewEngine(engineCfg, infrastructure.WithComponent(logger, "engine"))
	if err != nil {
		return nil, err
	}

	loader := eventstudy.NewLoader(infrastructure.WithComponent(logger, "loader")).
		WithEventSchema(cfg.Schema.EventSchema()).
		WithReturnSchema(cfg.Schema.ReturnSchema()).
		WithDetection(cfg.Schema.Detect)

	s := &EventStudyService{
		paths:     paths,
		validator: validation.NewFileValidator(infrastructure.WithComponent(logger, "validation")),
		loader:    loader,
		engine:    engine,
		tracer:    otel.Tracer(tracerName),
		logger:    infrastructure.WithComponent(logger, "eventstudy_service"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger.Info("EventStudyService initialized",
		slog.String("output_dir", paths.OutputDir),
		slog.Bool("store", s.store != nil),
		slog.Bool("metrics", s.metrics != nil),
		slog.Bool("detect_schema", cfg.Schema.Detect))
	return s, nil
}

// Run executes one event study end to end. Nothing is written when loading or the engine fails.
func (s *EventStudyService) Run(ctx context.Context, req RunRequest) (*RunReport, error) {
	if req.EventsPath == "" {
		return nil, apperrors.NewValidationError("invalid run request", ErrNoEventsPath)
	}
	if req.ReturnsPath == "" {
		return nil, apperrors.NewValidationError("invalid run request", ErrNoReturnsPath)
	}

	ctx = infrastructure.EnsureTraceID(ctx)
	runID := req.RunID
	if runID == "" {
		runID = infrastructure.GetTraceID(ctx)
	}

	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "service.run",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.String("events_path", req.EventsPath),
			attribute.String("returns_path", req.ReturnsPath),
		))
	defer span.End()

	report, err := s.run(ctx, runID, req)
	duration := time.Since(start)

	var diag *eventstudy.Diagnostics
	if report != nil && report.Result != nil {
		diag = &report.Result.Diagnostics
	}
	s.metrics.RecordRun(ctx, diag, duration, err)
	s.setLastRun(runID, diag, duration, err)

	if err != nil {
		infrastructure.RecordError(ctx, err)
		s.logger.ErrorContext(ctx, "event study run failed",
			"run_id", runID,
			"error", err,
			"duration", duration)
		return nil, err
	}

	report.Duration = duration
	s.logger.InfoContext(ctx, "event study run complete",
		"run_id", runID,
		"files", len(report.Files),
		"stored", report.Stored,
		"duration", duration)
	return report, nil
}

// LastRun returns the outcome of the most recent run, or nil before the first one
func (s *EventStudyService) LastRun() *RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastRun == nil {
		return nil
	}
	status := *s.lastRun
	return &status
}

func (s *EventStudyService) setLastRun(runID string, diag *eventstudy.Diagnostics, duration time.Duration, err error) {
	status := &RunStatus{
		RunID:      runID,
		Success:    err == nil,
		FinishedAt: time.Now().UTC(),
		Duration:   duration,
	}
	if err != nil {
		status.Error = err.Error()
	}
	if diag != nil {
		status.Events = diag.EventsKept
	}

	s.mu.Lock()
	s.lastRun = status
	s.mu.Unlock()
}

func (s *EventStudyService) run(ctx context.Context, runID string, req RunRequest) (*RunReport, error) {
	for _, path := range []string{req.EventsPath, req.ReturnsPath} {
		if err := s.validator.ValidateInputFile(path); err != nil {
			return nil, err
		}
	}

	events, returns, err := s.load(ctx, req)
	if err != nil {
		return nil, err
	}

	quality := eventstudy.InspectReturns(returns)
	s.logQuality(ctx, quality)

	result, err := s.engine.Run(ctx, events, returns)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrNoResult
	}
	s.logDiagnostics(ctx, result.Diagnostics)

	report := &RunReport{RunID: runID, Result: result, Quality: quality}
	if report.Files, err = s.persist(ctx, result, quality); err != nil {
		return report, err
	}

	if s.store != nil {
		if err := s.store.SaveRun(ctx, runID, result); err != nil {
			return report, err
		}
		report.Stored = true
	}
	return report, nil
}

// load reads both input tables concurrently
func (s *EventStudyService) load(ctx context.Context, req RunRequest) ([]eventstudy.Event, []eventstudy.DailyReturn, error) {
	ctx, span := s.tracer.Start(ctx, "service.load")
	defer span.End()

	var (
		events  []eventstudy.Event
		returns []eventstudy.DailyReturn
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		events, err = s.loader.LoadEvents(gctx, req.EventsPath)
		return err
	})
	g.Go(func() error {
		var err error
		returns, err = s.loader.LoadReturns(gctx, req.ReturnsPath)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	span.SetAttributes(
		attribute.Int("events", len(events)),
		attribute.Int("returns", len(returns)),
	)
	return events, returns, nil
}

// persist writes the CSV tables, the workbook and the JSON documents into the output directory
func (s *EventStudyService) persist(ctx context.Context, result *eventstudy.Result, quality eventstudy.QualityReport) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "service.persist")
	defer span.End()

	if err := s.validator.ValidateOutputDirectory(s.paths.OutputDir); err != nil {
		return nil, err
	}

	files, err := eventstudy.SaveCSV(s.paths.OutputDir, result)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to write csv tables", err).WithContext("dir", s.paths.OutputDir)
	}

	if err := eventstudy.SaveXLSX(s.paths.WorkbookFile, result); err != nil {
		return nil, apperrors.NewStorageError("failed to write workbook", err).WithContext("path", s.paths.WorkbookFile)
	}
	files = append(files, s.paths.WorkbookFile)

	for path, doc := range map[string]interface{}{
		s.paths.ResultFile:      result,
		s.paths.DiagnosticsFile: result.Diagnostics,
		s.paths.QualityFile:     quality,
	} {
		if err := eventstudy.SaveJSON(path, doc); err != nil {
			return nil, apperrors.NewStorageError(fmt.Sprintf("failed to write %s", filepath.Base(path)), err)
		}
	}
	files = append(files, s.paths.ResultFile, s.paths.DiagnosticsFile, s.paths.QualityFile)

	span.SetAttributes(attribute.Int("files", len(files)))
	s.logger.DebugContext(ctx, "wrote output files", "files", files)
	return files, nil
}

func (s *EventStudyService) logQuality(ctx context.Context, q eventstudy.QualityReport) {
	infrastructure.AddSpanEvent(ctx, "return panel inspected", map[string]interface{}{
		"rows":            q.Rows,
		"firms":           q.Firms,
		"missing_returns": q.MissingReturns,
		"has_market":      q.HasMarket,
	})
	s.logger.InfoContext(ctx, "return panel quality",
		"rows", q.Rows,
		"firms", q.Firms,
		"missing_returns", q.MissingReturns,
		"missing_share", q.MissingShare,
		"duplicate_firm_dates", q.DuplicateFirmDates,
		"has_market", q.HasMarket,
		"has_weight", q.HasWeight,
	)
	if q.ExtremeLow > 0 || q.ExtremeHigh > 0 {
		s.logger.WarnContext(ctx, "extreme returns in panel",
			"below", q.ExtremeLow,
			"above", q.ExtremeHigh)
	}
}

func (s *EventStudyService) logDiagnostics(ctx context.Context, d eventstudy.Diagnostics) {
	s.logger.InfoContext(ctx, "run diagnostics",
		"events_input", d.EventsInput,
		"events_kept", d.EventsKept,
		"events_missing_key", d.EventsMissingKey,
		"events_duplicate", d.EventsDuplicate,
		"date_mode", d.DateMode,
		"benchmark", d.Benchmark,
		"panel_rows", d.PanelRows,
		"firms_estimated", d.FirmsEstimated,
		"firms_insufficient", d.FirmsInsufficient,
		"firms_degenerate", d.FirmsDegenerate,
	)
	for col, n := range d.UndefinedCARs {
		if n > 0 {
			s.logger.DebugContext(ctx, "undefined CARs", "column", col, "events", n)
		}
	}
}
