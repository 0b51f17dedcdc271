package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/loom-cfg/loom/pkg/adapter"
	"github.com/loom-cfg/loom/pkg/blueprint"
	"github.com/loom-cfg/loom/pkg/config"
	"github.com/loom-cfg/loom/pkg/element"
	"github.com/loom-cfg/loom/pkg/engine"
	"github.com/loom-cfg/loom/pkg/policy"
	"github.com/loom-cfg/loom/pkg/state/sqlite"
	"github.com/loom-cfg/loom/pkg/telemetry"
	"github.com/loom-cfg/loom/pkg/validate"
)

// factories holds adapter factories plugged in by builds that link
// concrete adapters, in the manner of database/sql drivers.
var factories []adapter.Factory

// RegisterFactory plugs an adapter factory into the CLI. Call from an
// init function in the adapter's package.
func RegisterFactory(f adapter.Factory) {
	factories = append(factories, f)
}

// runtime bundles everything a command needs: configuration, telemetry,
// the state backend and the engine.
type runtime struct {
	cfg     config.Config
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	backend *sqlite.Backend
	policy  *policy.Engine
	engine  *engine.Engine

	metricsSrv *http.Server
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := telemetry.NewLogger(cfg.Telemetry.Logging)
	if err != nil {
		return nil, err
	}

	metrics := telemetry.NewMetrics(cfg.Telemetry.Metrics)
	tracer, err := telemetry.NewTracer(cfg.Telemetry.Tracing,
		cfg.Telemetry.ServiceName, cfg.Telemetry.ServiceVersion)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.State.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	backend, err := sqlite.Open(ctx, sqlite.Config{
		Path:         cfg.State.Path,
		MaxOpenConns: cfg.State.MaxOpenConns,
	})
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}

	polEngine, err := policy.NewEngine(logger)
	if err != nil {
		backend.Close()
		return nil, err
	}
	if len(cfg.Policy.Paths) > 0 {
		if err := polEngine.LoadPaths(ctx, cfg.Policy.Paths); err != nil {
			backend.Close()
			return nil, err
		}
	}
	for _, name := range cfg.Policy.Disabled {
		if err := polEngine.SetEnabled(name, false); err != nil {
			backend.Close()
			return nil, err
		}
	}

	registry := adapter.NewRegistry()
	for _, f := range factories {
		if err := registry.Register(f); err != nil {
			backend.Close()
			return nil, err
		}
	}

	eng, err := engine.New(engine.Options{
		Registry:    registry,
		Backend:     backend,
		Rules:       []validate.Rule{polEngine.Rule()},
		MaxParallel: cfg.Apply.MaxParallel,
		Logger:      logger,
		Metrics:     metrics,
		Tracer:      tracer,
	})
	if err != nil {
		backend.Close()
		return nil, err
	}

	rt := &runtime{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
		backend: backend,
		policy:  polEngine,
		engine:  eng,
	}
	rt.serveMetrics()
	return rt, nil
}

// serveMetrics exposes /metrics when a listen address is configured.
func (rt *runtime) serveMetrics() {
	handler := rt.metrics.Handler()
	if handler == nil || rt.cfg.Telemetry.Metrics.Listen == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	rt.metricsSrv = &http.Server{
		Addr:              rt.cfg.Telemetry.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := rt.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error().Err(err).Msg("metrics endpoint failed")
		}
	}()
}

func (rt *runtime) close(ctx context.Context) {
	if rt.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		rt.metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}
	if err := rt.tracer.Shutdown(ctx); err != nil {
		rt.logger.Warn().Err(err).Msg("tracer shutdown failed")
	}
	if err := rt.backend.Close(); err != nil {
		rt.logger.Warn().Err(err).Msg("closing state database failed")
	}
}

// loadBlueprints decodes every .yaml/.yml document under the blueprint
// directory, sorted by path for deterministic merge input.
func (rt *runtime) loadBlueprints() ([]blueprint.Blueprint, error) {
	dir := rt.cfg.Workspace.BlueprintDir

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ext := filepath.Ext(path); ext == ".yaml" || ext == ".yml" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning blueprint directory %s: %w", dir, err)
	}
	sort.Strings(paths)

	bps := make([]blueprint.Blueprint, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		bp, err := blueprint.Decode(filepath.ToSlash(rel), data)
		if err != nil {
			return nil, err
		}
		bps = append(bps, bp)
	}

	rt.logger.Debug().Int("documents", len(bps)).Str("dir", dir).Msg("blueprints loaded")
	return bps, nil
}

// fillFromBlueprints is the non-interactive configuration source: it
// never prompts, it tells the user what to add instead.
func fillFromBlueprints(_ context.Context, configType *element.ObjectType) (*element.Instance, error) {
	return nil, fmt.Errorf(
		"adapter %q requires configuration: add an instance of %s to your blueprints",
		configType.ID.Adapter, configType.ID)
}
