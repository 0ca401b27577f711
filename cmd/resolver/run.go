package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-resolve-collections/browser"
	"github.com/aluiziolira/go-resolve-collections/config"
	"github.com/aluiziolira/go-resolve-collections/parser"
	"github.com/aluiziolira/go-resolve-collections/pipeline"
	"github.com/aluiziolira/go-resolve-collections/scraper"
)

func run(ctx context.Context, opts *options, out io.Writer) error {
	logger, level, logCloser := newLogger(opts.verbose, opts.logFile)
	defer logCloser.Close()
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := buildConfig(opts)
	settings, err := config.LoadSettings(cfg.SettingsFile, logger)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if opts.workers == 0 {
		cfg.Workers = settings.ThreadsCount()
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	addresses, err := parser.LoadAddresses(cfg.AddressesFile)
	if err != nil {
		return err
	}
	userAgents, err := loadPool("user agent", cfg.UserAgentsFile, 0)
	if err != nil {
		return err
	}
	var proxies *browser.Pool
	if cfg.UseProxy {
		if proxies, err = loadPool("proxy", cfg.ProxiesFile, cfg.ProxyQuarantine); err != nil {
			return err
		}
	}

	logger.Info("starting resolve",
		slog.Int("addresses", len(addresses)),
		slog.Int("workers", cfg.Workers),
		slog.Bool("proxies", cfg.UseProxy),
		slog.String("output", cfg.OutputFile),
	)

	metrics := scraper.NewMetrics()
	stopMetrics := serveMetrics(cfg.MetricsAddr, metrics, logger)
	defer stopMetrics()

	writer, err := createWriter(cfg)
	if err != nil {
		return fmt.Errorf("create writer: %w", err)
	}
	if err := writer.Validate(); err != nil {
		writer.Close()
		return fmt.Errorf("output validation failed: %w", err)
	}

	p := pipeline.NewPipeline(writer, logger)
	p.Start()
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	factory, err := browser.NewChromeFactory(browser.ChromeOptions{
		ExecPath:        cfg.ChromePath,
		UserAgents:      userAgents,
		Proxies:         proxies,
		NavigateTimeout: cfg.NavigateTimeout,
		LookupTimeout:   cfg.LookupTimeout,
		Logger:          logger,
	})
	if err != nil {
		p.Close()
		writer.Close()
		return err
	}

	batch, err := scraper.NewBatch(scraper.BatchOptions{
		Factory:  factory,
		Resolver: scraper.NewResolver(cfg, metrics, logger),
		Sink:     p,
		Session:  browser.SessionOptions{UseProxy: cfg.UseProxy, Headless: cfg.Headless},
		Workers:  cfg.Workers,
		Proxies:  proxies,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		p.Close()
		writer.Close()
		return err
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received, waiting for open sessions to close")
	}()

	result, runErr := batch.Run(ctx, addresses)
	pipeErr := p.Close()
	closeErr := writer.Close()

	if result != nil {
		printSummary(out, result, cfg, p.GetMetrics())
	}

	if runErr != nil {
		return fmt.Errorf("resolve failed: %w", runErr)
	}
	if pipeErr != nil {
		return fmt.Errorf("pipeline shutdown failed: %w", pipeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close writer: %w", closeErr)
	}
	return nil
}

func buildConfig(opts *options) *config.Config {
	cfg := config.DefaultConfig()
	cfg.AddressesFile = opts.addresses
	cfg.OutputFile = opts.output
	cfg.OutputFormat = strings.ToLower(opts.format)
	cfg.ArchiveDB = opts.archiveDB
	cfg.SettingsFile = opts.settings
	cfg.UserAgentsFile = opts.userAgents
	cfg.ProxiesFile = opts.proxies
	cfg.UseProxy = !opts.noProxy
	cfg.Headless = opts.headless
	if opts.workers != 0 {
		cfg.Workers = opts.workers
	}
	cfg.MaxRetries = opts.maxRetries
	cfg.ChromePath = opts.chromePath
	cfg.MetricsAddr = opts.metricsAddr
	cfg.LogFile = opts.logFile
	cfg.Verbose = opts.verbose
	return cfg
}

func loadPool(kind, path string, quarantine time.Duration) (*browser.Pool, error) {
	entries, err := config.LoadLines(path)
	if err != nil {
		return nil, fmt.Errorf("load %s list: %w", kind, err)
	}
	return browser.NewPool(kind, entries, quarantine)
}

func createWriter(cfg *config.Config) (pipeline.OutputWriter, error) {
	var primary pipeline.OutputWriter
	var err error
	switch cfg.OutputFormat {
	case "pipe":
		primary, err = pipeline.NewPipeWriter(cfg.OutputFile)
	case "jsonl":
		primary, err = pipeline.NewJSONLWriter(cfg.OutputFile)
	case "dual":
		jsonFilename := strings.TrimSuffix(cfg.OutputFile, filepath.Ext(cfg.OutputFile)) + ".jsonl"
		primary, err = pipeline.NewDualWriter(cfg.OutputFile, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", cfg.OutputFormat)
	}
	if err != nil {
		return nil, err
	}
	if cfg.ArchiveDB == "" {
		return primary, nil
	}

	archive, err := pipeline.NewSQLiteWriter(cfg.ArchiveDB)
	if err != nil {
		primary.Close()
		return nil, err
	}
	return pipeline.NewMultiWriter(primary, archive), nil
}

func serveMetrics(addr string, metrics *scraper.Metrics, logger *slog.Logger) func() {
	if addr == "" || metrics == nil {
		return func() {}
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	logger.Info("metrics server enabled", slog.String("addr", addr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}
