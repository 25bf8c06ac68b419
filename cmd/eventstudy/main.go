package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"eventstudy/internal/config"
	"eventstudy/internal/eventstudy"
	"eventstudy/internal/infrastructure"
	"eventstudy/internal/middleware"
	"eventstudy/internal/services"
	"eventstudy/internal/store"
	httptransport "eventstudy/internal/transport/http"
)

type options struct {
	eventsPath   string
	returnsPath  string
	configPath   string
	outDir       string
	runID        string
	detect       bool
	dbPath       string
	metricsAddr  string
	metricsFile  string
	writeMetrics bool
	showVersion  bool
}

func main() {
	var opts options
	flag.StringVar(&opts.eventsPath, "events", "", "events table (.csv or .xlsx)")
	flag.StringVar(&opts.returnsPath, "returns", "", "daily return panel (.csv or .xlsx)")
	flag.StringVar(&opts.configPath, "config", "", "YAML configuration file (defaults to eventstudy.yaml when present)")
	flag.StringVar(&opts.outDir, "out", "", "output directory (overrides paths.output_dir)")
	flag.StringVar(&opts.runID, "run-id", "", "run identifier (defaults to a generated trace id)")
	flag.BoolVar(&opts.detect, "detect-schema", false, "guess input columns from header names when the configured schema does not match")
	flag.StringVar(&opts.dbPath, "db", "", "SQLite database to store the run in (overrides storage.database_path)")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address until interrupted")
	flag.StringVar(&opts.metricsFile, "metrics-file", "", "write run metrics in Prometheus text format to this file")
	flag.BoolVar(&opts.writeMetrics, "write-metrics", false, "write run metrics to the default metrics file in the output directory")
	flag.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	flag.Parse()

	if opts.showVersion {
		fmt.Printf("%s %s\n", config.AppName, config.AppVersion)
		return
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if err := run(opts, set); err != nil {
		slog.Error("Event study failed", "error", err)
		os.Exit(1)
	}
}

func run(opts options, set map[string]bool) error {
	if opts.eventsPath == "" || opts.returnsPath == "" {
		flag.Usage()
		return fmt.Errorf("both -events and -returns are required")
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	applyOverrides(cfg, opts, set)
	if err := cfg.Validate(); err != nil {
		return err
	}

	paths, err := config.GetPaths(cfg.Paths)
	if err != nil {
		return err
	}
	if err := paths.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}
	defer infrastructure.CloseLogFile()
	paths.LogPathResolution(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Observability), logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to shut down OpenTelemetry", "error", err)
		}
	}()

	metrics, err := infrastructure.CreateRunMetrics(providers.Meter)
	if err != nil {
		return err
	}

	svcOpts := []services.Option{services.WithMetrics(metrics)}
	var db *store.Store
	if cfg.Storage.DatabasePath != "" {
		db, err = store.Open(ctx, cfg.Storage.DatabasePath, infrastructure.WithComponent(logger, "store"))
		if err != nil {
			return err
		}
		defer db.Close()
		svcOpts = append(svcOpts, services.WithStore(db))
	}

	svc, err := services.NewEventStudyService(cfg, paths, logger, svcOpts...)
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	if cfg.Observability.MetricsAddr != "" {
		routerCfg := httptransport.RouterConfig{
			Metrics: providers.PrometheusHTTP,
			Health: httptransport.NewHealthHandler(
				services.NewHealthService(config.AppVersion, paths.OutputDir, svc, logger), logger),
			Logger: infrastructure.WithComponent(logger, "http"),
		}
		if db != nil {
			routerCfg.Runs = httptransport.NewRunsHandler(db, logger)
			routerCfg.RunsLimit = middleware.NewRateLimiter(
				cfg.Observability.RunsRateLimit, cfg.Observability.RunsRateBurst, routerCfg.Logger)
		}
		router := httptransport.NewRouter(routerCfg)
		go func() {
			serveErr <- httptransport.Serve(ctx, cfg.Observability.MetricsAddr, router, logger)
		}()
	}

	report, err := svc.Run(ctx, services.RunRequest{
		EventsPath:  opts.eventsPath,
		ReturnsPath: opts.returnsPath,
		RunID:       opts.runID,
	})

	metricsFile := cfg.Observability.MetricsFile
	if metricsFile == "" && opts.writeMetrics {
		metricsFile = paths.MetricsFile
	}
	if metricsFile != "" {
		if werr := providers.WriteMetricsTextfile(metricsFile); werr != nil {
			logger.Warn("Failed to write metrics file", "path", metricsFile, "error", werr)
		} else {
			logger.Info("Wrote metrics file", "path", metricsFile)
		}
	}

	if err != nil {
		return err
	}
	printReport(os.Stdout, report)

	if cfg.Observability.MetricsAddr != "" {
		logger.Info("Run complete, serving metrics until interrupted", "addr", cfg.Observability.MetricsAddr)
		select {
		case <-ctx.Done():
		case err := <-serveErr:
			return err
		}
	}
	return nil
}

// applyOverrides copies explicitly set flags over the loaded configuration
func applyOverrides(cfg *config.Config, opts options, set map[string]bool) {
	if set["out"] {
		cfg.Paths.OutputDir = opts.outDir
	}
	if set["detect-schema"] {
		cfg.Schema.Detect = opts.detect
	}
	if set["db"] {
		cfg.Storage.DatabasePath = opts.dbPath
	}
	if set["metrics-addr"] {
		cfg.Observability.MetricsAddr = opts.metricsAddr
	}
	if set["metrics-file"] {
		cfg.Observability.MetricsFile = opts.metricsFile
	}
}

func printReport(w io.Writer, report *services.RunReport) {
	res := report.Result
	d := res.Diagnostics

	fmt.Fprintf(w, "run %s: %d events, %d firms estimated, %d firms insufficient (%s dates, %s benchmark)\n",
		report.RunID, d.EventsKept, d.FirmsEstimated, d.FirmsInsufficient, d.DateMode, d.Benchmark)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "method\twidth\tn\tmean CAR\tt\tp(t)\tp(sign)\tp(rank)\t")
	for _, s := range res.Summary {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\t%s\t%s\t\n",
			s.Method.Short(), s.Width, s.N,
			format(s.Mean), format(s.TStat), format(s.TPValue), format(s.SignPValue), format(s.RankPValue))
	}
	tw.Flush()

	for _, f := range report.Files {
		fmt.Fprintln(w, f)
	}
}

func format(f eventstudy.Float) string {
	if !f.Valid {
		return "."
	}
	return fmt.Sprintf("%.4f", f.Value)
}
