// Package eventstudy implements the event-window abnormal-return engine.
//
// Given corporate events (firm, announcement date) and a firm-level daily return
// panel, the engine measures how returns around each announcement deviate from
// what a benchmark predicts.
//
// # Pipeline
//
// Data flows strictly through five stages, each producing new records and never
// modifying its input:
//
//  1. Window builder (BuildPanel): expands every event into an estimation block
//     of offsets [-(estimation+gap), -(gap+1)] and an event window [-maxW, +maxW].
//  2. Market model estimator (EstimateParams): per-firm OLS of firm return on
//     market return over the estimation rows, plus the firm's mean return.
//  3. Abnormal return calculator (ComputeAbnormal): market-model, market-adjusted
//     and mean-adjusted abnormal returns with per-row t-statistics.
//  4. CAR aggregator (AggregateCARs): cumulative abnormal returns per event,
//     width and method.
//  5. Significance tester (TestSignificance): cross-sectional t, sign and
//     Wilcoxon signed-rank tests.
//
// Engine.Run wires the stages together and collects Diagnostics.
//
// # Missing values
//
// Every numeric field that may be unknown is a Float. A missing value is never
// read as zero: a day without a return contributes nothing to a CAR, and a firm
// with fewer than MinObservations estimation pairs has all four market-model
// parameters missing.
//
// # Usage Example
//
//	loader := eventstudy.NewLoader(logger)
//	events, err := loader.LoadEvents(ctx, "events.csv")
//	returns, err := loader.LoadReturns(ctx, "returns.csv")
//
//	engine, err := eventstudy.NewEngine(eventstudy.DefaultConfig(), logger)
//	result, err := engine.Run(ctx, events, returns)
//
//	paths, err := eventstudy.SaveCSV("out", result)
package eventstudy
