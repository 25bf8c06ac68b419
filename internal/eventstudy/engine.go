package eventstudy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "eventstudy/internal/errors"
)

// TracerName is the instrumentation scope of the engine spans
const TracerName = "eventstudy/internal/eventstudy"

// Engine runs the full abnormal-return pipeline with a fixed configuration
type Engine struct {
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
}

// NewEngine validates the configuration and creates an engine
func NewEngine(cfg Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.NewConfigError("invalid engine configuration", err)
	}

	return &Engine{
		cfg:    cfg.normalized(),
		logger: logger,
		tracer: otel.Tracer(TracerName),
	}, nil
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.cfg.normalized()
}

// Run executes window building, estimation, abnormal returns, CAR aggregation and significance tests.
// Stage-fatal errors and cancellation return no result.
func (e *Engine) Run(ctx context.Context, events []Event, returns []DailyReturn) (*Result, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "eventstudy.run",
		trace.WithAttributes(
			attribute.Int("events", len(events)),
			attribute.Int("returns", len(returns)),
		))
	defer span.End()

	e.logger.InfoContext(ctx, "starting event study",
		"events", len(events),
		"returns", len(returns),
		"widths", e.cfg.Widths,
		"estimation_period", e.cfg.EstimationPeriod,
		"gap_period", e.cfg.GapPeriod,
		"min_observations", e.cfg.MinObservations,
	)

	result, err := e.run(ctx, events, returns)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.ErrorContext(ctx, "event study failed", "error", err)
		return nil, err
	}

	e.logger.InfoContext(ctx, "event study complete",
		"events", len(result.Events),
		"firms", result.Diagnostics.Firms,
		"duration", time.Since(start),
	)
	return result, nil
}

func (e *Engine) run(ctx context.Context, events []Event, returns []DailyReturn) (*Result, error) {
	cfg := e.cfg

	// Window builder
	stageCtx, span := e.tracer.Start(ctx, "eventstudy.build_panel")
	panel, err := BuildPanel(cfg, events, returns)
	if err != nil {
		span.End()
		return nil, fmt.Errorf("build panel: %w", err)
	}
	span.SetAttributes(
		attribute.Int("rows", panel.Report.Rows),
		attribute.String("date_mode", string(panel.Report.DateMode)),
		attribute.String("benchmark", string(panel.Benchmark.Basis)),
	)
	span.End()
	e.logBuildReport(stageCtx, panel)

	// Market model estimator
	stageCtx, span = e.tracer.Start(ctx, "eventstudy.estimate")
	params, err := EstimateParams(stageCtx, cfg, panel.Rows)
	span.End()
	if err != nil {
		return nil, fmt.Errorf("estimate market model: %w", err)
	}
	estimated, insufficient, degenerate, noMean := params.Counts()
	for _, p := range params.Sorted() {
		switch p.Status {
		case ParamsInsufficient:
			e.logger.DebugContext(stageCtx, "firm parameters undefined",
				"firm_id", p.FirmID,
				"error", apperrors.NewInsufficientDataError("too few estimation observations").
					WithContext("observations", p.Observations).
					WithContext("required", cfg.MinObservations),
			)
		case ParamsDegenerate:
			e.logger.DebugContext(stageCtx, "firm parameters undefined",
				"firm_id", p.FirmID,
				"error", apperrors.NewNumericalError("zero-variance market return in estimation window"),
			)
		}
	}
	if insufficient+degenerate > 0 {
		e.logger.WarnContext(stageCtx, "firms without market-model parameters",
			"insufficient", insufficient,
			"degenerate", degenerate,
		)
	}

	// Abnormal returns
	_, span = e.tracer.Start(ctx, "eventstudy.abnormal")
	rows := ComputeAbnormal(cfg, panel.Rows, params)
	span.End()

	// CAR aggregation
	stageCtx, span = e.tracer.Start(ctx, "eventstudy.aggregate")
	results, err := AggregateCARs(stageCtx, cfg, panel.Events, rows, params)
	span.End()
	if err != nil {
		return nil, fmt.Errorf("aggregate CARs: %w", err)
	}
	undefined := undefinedCARs(results)
	if len(undefined) > 0 {
		e.logger.WarnContext(stageCtx, "undefined CARs", "by_column", undefined)
	}

	// Significance tests
	_, span = e.tracer.Start(ctx, "eventstudy.significance")
	summary := TestSignificance(cfg, results)
	span.End()

	report := panel.Report
	return &Result{
		Config:  cfg,
		Rows:    rows,
		Events:  results,
		Params:  params.Sorted(),
		Summary: summary,
		Diagnostics: Diagnostics{
			EventsInput:       report.EventsInput,
			EventsKept:        report.EventsKept,
			EventsMissingKey:  report.EventsMissingKey,
			EventsDuplicate:   report.EventsDuplicate,
			ReturnsInput:      report.ReturnsInput,
			ReturnsDuplicate:  report.ReturnsDuplicate,
			DateMode:          report.DateMode,
			EventsUnanchored:  report.EventsUnanchored,
			Benchmark:         panel.Benchmark.Basis,
			BenchmarkDates:    panel.Benchmark.Len(),
			PanelRows:         report.Rows,
			RowsMissingReturn: report.RowsMissingReturn,
			RowsMissingMarket: report.RowsMissingMarket,
			Firms:             len(params),
			FirmsEstimated:    estimated,
			FirmsInsufficient: insufficient,
			FirmsDegenerate:   degenerate,
			FirmsNoMean:       noMean,
			UndefinedCARs:     undefined,
		},
	}, nil
}

func (e *Engine) logBuildReport(ctx context.Context, panel *Panel) {
	report := panel.Report
	e.logger.InfoContext(ctx, "panel built",
		"events_kept", report.EventsKept,
		"rows", report.Rows,
		"date_mode", report.DateMode,
		"benchmark", panel.Benchmark.Basis,
		"benchmark_dates", panel.Benchmark.Len(),
	)
	if report.EventsUnanchored > 0 {
		e.logger.WarnContext(ctx, "announcements outside the trading calendar, event windows left empty",
			"events", report.EventsUnanchored)
	}
	if report.EventsMissingKey > 0 {
		e.logger.WarnContext(ctx, "dropped events without firm id or announcement date",
			"dropped", report.EventsMissingKey)
	}
	if report.EventsDuplicate > 0 {
		e.logger.WarnContext(ctx, "dropped duplicate events",
			"error", apperrors.NewDuplicateKeyError("duplicate firm/announcement date or event id", report.EventsDuplicate))
	}
	if report.ReturnsDuplicate > 0 {
		e.logger.WarnContext(ctx, "dropped duplicate return observations",
			"error", apperrors.NewDuplicateKeyError("duplicate firm/date return", report.ReturnsDuplicate))
	}
	if e.cfg.DateMode == DateModeAuto {
		e.logger.InfoContext(ctx, "detected date mode", "date_mode", report.DateMode)
	}
}
