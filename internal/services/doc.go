// Package services implements the application layer of the event-study tool.
// It sits between the command line and the engine: it loads input tables,
// runs the engine, writes every output artifact and records run metrics.
//
// # Service Pattern
//
// Services receive their collaborators through the constructor and functional
// options, and propagate context for cancellation and tracing:
//
//	svc, err := services.NewEventStudyService(cfg, paths, logger,
//	    services.WithStore(db),
//	    services.WithMetrics(metrics),
//	)
//	report, err := svc.Run(ctx, services.RunRequest{
//	    EventsPath:  "events.csv",
//	    ReturnsPath: "returns.csv",
//	})
//
// # Error Handling
//
// Errors are returned as *errors.AppError values from internal/errors so that
// callers can branch on the error type:
//
//	if apperrors.IsType(err, apperrors.ErrTypeMissingInput) {
//	    // a required column or file is absent
//	}
//
// # Tracing
//
// Every run carries a trace id in its context. When the caller does not
// provide one, Run generates it and uses it as the run id, so log lines,
// spans and stored rows of one run share the same identifier.
package services
