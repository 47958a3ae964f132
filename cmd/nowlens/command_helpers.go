package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/nowlens/nowlens/internal/analysis"
	"github.com/nowlens/nowlens/internal/config"
	"github.com/nowlens/nowlens/internal/fetch"
	"github.com/nowlens/nowlens/internal/observability"
	"github.com/nowlens/nowlens/internal/resolve"
	"github.com/nowlens/nowlens/internal/servicenow"
	"github.com/nowlens/nowlens/internal/snapshot"
	"github.com/nowlens/nowlens/internal/version"
)

const (
	configStageLoad     = "load"
	configStageValidate = "validate"

	otelShutdownTimeout = 5 * time.Second
)

// normalizeTextJSONFormat validates command output format flags with shared semantics.
func normalizeTextJSONFormat(command, rawValue, defaultValue string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(rawValue))
	if normalized == "" {
		normalized = strings.TrimSpace(defaultValue)
	}
	switch normalized {
	case "text", "json":
		return normalized, nil
	default:
		return "", fmt.Errorf("invalid %s format %q: expected text or json", strings.TrimSpace(command), rawValue)
	}
}

// loadAndValidateConfig resolves config and reports which stage failed.
func loadAndValidateConfig(configPath string) (config.Config, string, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, configStageLoad, err
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, configStageValidate, err
	}
	return cfg, "", nil
}

func printConfigError(errOut io.Writer, stage string, err error) {
	if stage == configStageLoad {
		fmt.Fprintf(errOut, "failed to load config: %v\n", err)
	} else {
		fmt.Fprintf(errOut, "config is invalid: %v\n", err)
	}
}

func newCommandLogger(errOut io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(errOut, &slog.HandlerOptions{Level: slog.LevelWarn})
	return slog.New(observability.NewTraceLogHandler(handler))
}

func setupObservability(cfg config.Config, logger *slog.Logger) *observability.Runtime {
	runtime, err := observability.Setup(context.Background(), cfg.Observability.OTel, version.String(), logger)
	if err != nil {
		logger.Error("failed to initialize opentelemetry; continuing with instrumentation disabled", "error", err)
		return nil
	}
	return runtime
}

func shutdownObservability(logger *slog.Logger, runtime *observability.Runtime) {
	if runtime == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), otelShutdownTimeout)
	defer cancel()
	if err := runtime.Shutdown(ctx); err != nil {
		logger.Warn("failed to shut down opentelemetry cleanly", "error", err)
	}
}

func newInstanceClient(cfg config.Config, runtime *observability.Runtime) (*servicenow.Client, error) {
	if err := config.ValidateInstance(cfg.Instance); err != nil {
		return nil, err
	}
	return servicenow.NewClient(servicenow.Options{
		InstanceURL: cfg.Instance.URL,
		Username:    cfg.Instance.Username,
		Password:    cfg.Instance.Password,
		Timeout:     cfg.Instance.Timeout(),
		Transport:   runtime.WrapHTTPTransport(nil),
	})
}

func openSnapshotStore(cfg config.Config) (snapshot.Store, error) {
	switch cfg.Storage.Driver {
	case "sqlite":
		return snapshot.NewSQLiteStore(cfg.Storage.Path)
	case "postgres":
		return snapshot.NewPostgresStore(cfg.Storage.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage.driver %q", cfg.Storage.Driver)
	}
}

func closeSnapshotStoreWithWarning(store snapshot.Store, errOut io.Writer) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		fmt.Fprintf(errOut, "warning: failed to close snapshot store: %v\n", err)
	}
}

// newAnalyzer wires the pipeline for either a live instance or the local
// snapshot store. The returned cleanup must run after the analysis.
func newAnalyzer(cfg config.Config, fromSnapshot bool, logger *slog.Logger, runtime *observability.Runtime, errOut io.Writer) (*analysis.Analyzer, resolve.Lister, func(), error) {
	if fromSnapshot {
		store, err := openSnapshotStore(cfg)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("initialize snapshot store: %w", err)
		}
		analyzer := analysis.NewAnalyzer(
			snapshot.NewResolver(store),
			fetch.NewSnapshotFetcher(store),
			logger,
		)
		return analyzer, nil, func() { closeSnapshotStoreWithWarning(store, errOut) }, nil
	}

	client, err := newInstanceClient(cfg, runtime)
	if err != nil {
		return nil, nil, nil, err
	}
	analyzer := analysis.NewAnalyzer(
		resolve.NewResolver(client),
		fetch.NewInstanceFetcher(client),
		logger,
	)
	return analyzer, client, func() {}, nil
}

func recordSourceFailures(runtime *observability.Runtime, a analysis.TraceAnalysis) {
	if runtime == nil {
		return
	}
	for _, status := range a.Sources {
		if status.Err != nil {
			runtime.RecordSourceFetchFailure(status.Kind, status.ErrClass)
		}
	}
	runtime.RecordTraceAnalyzed(a.Partial)
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func timeOr(value time.Time, fallback string) string {
	if value.IsZero() {
		return fallback
	}
	return value.UTC().Format(time.RFC3339)
}
