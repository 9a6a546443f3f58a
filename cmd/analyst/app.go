package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/tmc/langchaingo/tools"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/artifacts"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/bridge"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/config"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/crew"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/dataflow"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/eventsink"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/executor"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/registry"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/runstore"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/tracing"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/validator"
)

// newLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel})
	}
	return slog.New(handler)
}

// app holds the wired components shared by serve and run.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *registry.MemoryRegistry
	store    *runstore.MemoryStore
	launcher *executor.Launcher
	mirror   *dataflow.Service

	tracer    *tracing.Provider
	redis     *redis.Client
	publisher *eventsink.RedisPublisher
}

// newApp wires configuration into a ready-to-run crew service.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry.NewDefaultRegistry(cfg.ManagerModel, cfg.SpecialistModel),
	}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	a.tracer, err = tracing.Init(ctx, &tracing.Config{
		Enabled:         cfg.OTelEnabled,
		Endpoint:        cfg.OTelEndpoint,
		SampleRate:      cfg.OTelSampleRate,
		Version:         version,
		Role:            cfg.Role,
		MockMode:        cfg.MockMode,
		ManagerModel:    cfg.ManagerModel,
		SpecialistModel: cfg.SpecialistModel,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	var sinks []bridge.Sink
	if cfg.EventPublish {
		redisCfg := eventsink.DefaultRedisConfig()
		redisCfg.URL = cfg.RedisURL
		redisCfg.Password = cfg.RedisPassword
		redisCfg.DB = cfg.RedisDB
		redisCfg.ChannelPrefix = cfg.EventChannelPrefix

		a.redis, err = eventsink.NewRedisClient(ctx, redisCfg)
		if err != nil {
			return nil, fmt.Errorf("connect event sink: %w", err)
		}
		a.publisher = eventsink.NewRedisPublisher(a.redis, redisCfg, logger)
		sinks = append(sinks, a.publisher)
		logger.Info("publishing run events to redis", slog.String("channel_prefix", redisCfg.ChannelPrefix))
	}

	a.store = runstore.NewMemoryStore(&runstore.Config{
		PollInterval: cfg.StreamPollInterval,
		Sinks:        sinks,
		Logger:       logger,
	})

	a.mirror, err = dataflow.New(ctx, &dataflow.Config{
		Type:              cfg.ArtifactStore,
		Endpoint:          cfg.S3Endpoint,
		Bucket:            cfg.S3Bucket,
		Region:            cfg.S3Region,
		AccessKeyID:       cfg.S3AccessKeyID,
		SecretAccessKey:   cfg.S3SecretAccessKey,
		UseSSL:            cfg.S3UseSSL,
		PathPrefix:        "artifacts",
		UploadConcurrency: dataflow.DefaultUploadConcurrency,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init artifact store: %w", err)
	}

	exec, err := a.newExecutor()
	if err != nil {
		return nil, err
	}
	a.launcher = executor.NewLauncher(exec, logger)
	return a, nil
}

// newExecutor picks the simulated executor in mock mode, else the crew
// executor over the configured pipeline.
func (a *app) newExecutor() (executor.Executor, error) {
	cfg := a.cfg
	renderer := artifacts.NewChartRenderer(cfg.ChartsDir, a.logger)
	reports := artifacts.NewReportWriter(cfg.OutputDir)

	if cfg.MockMode {
		a.logger.Info("mock mode: using simulated executor", slog.Float64("speed", cfg.MockSpeed))
		return executor.NewSimulatedExecutor(executor.SimulatedConfig{
			Registry: a.registry,
			Renderer: renderer,
			Reports:  reports,
			Speed:    cfg.MockSpeed,
			Mirror:   a.mirror,
			Logger:   a.logger,
		})
	}

	pipeline, err := a.newPipeline(renderer, reports)
	if err != nil {
		return nil, err
	}
	return executor.NewCrewExecutor(executor.CrewConfig{
		Pipeline:  pipeline,
		Registry:  a.registry,
		OutputDir: cfg.OutputDir,
		ChartsDir: cfg.ChartsDir,
		Mirror:    a.mirror,
		Logger:    a.logger,
	})
}

func (a *app) newPipeline(renderer *artifacts.ChartRenderer, reports *artifacts.ReportWriter) (crew.Pipeline, error) {
	cfg := a.cfg
	switch cfg.Pipeline {
	case config.PipelineSubprocess:
		return crew.NewSubprocessPipeline(crew.SubprocessConfig{
			Command:  cfg.PipelineCommand,
			Registry: a.registry,
			EnvPassthrough: map[string]string{
				"OUTPUT_DIR":          cfg.OutputDir,
				"CHARTS_DIR":          cfg.ChartsDir,
				"MANAGER_MODEL":       cfg.ManagerModel,
				"MANAGER_BASE_URL":    cfg.ManagerBaseURL,
				"SPECIALIST_MODEL":    cfg.SpecialistModel,
				"SPECIALIST_BASE_URL": cfg.SpecialistBaseURL,
			},
			Logger: a.logger,
		})
	default:
		manager, err := crew.NewOllamaModel(cfg.ManagerModel, cfg.ManagerBaseURL)
		if err != nil {
			return nil, err
		}
		specialist, err := crew.NewOllamaModel(cfg.SpecialistModel, cfg.SpecialistBaseURL)
		if err != nil {
			return nil, err
		}
		v, err := validator.New()
		if err != nil {
			return nil, fmt.Errorf("create chart validator: %w", err)
		}
		return crew.NewLLMPipeline(crew.LLMConfig{
			Manager:    manager,
			Specialist: specialist,
			Registry:   a.registry,
			Tools: []tools.Tool{
				artifacts.NewChartTool(renderer, v, a.logger),
				artifacts.NewFileTool(reports, a.logger),
			},
			MaxSteps:    cfg.MaxSteps,
			Temperature: cfg.Temperature,
			Logger:      a.logger,
		})
	}
}

// close stops runs first, then flushes the sinks that might still receive
// their events.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.launcher != nil {
		if err := a.launcher.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop runs: %w", err))
		}
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.publisher != nil {
		if err := a.publisher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush event sink: %w", err))
		}
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush traces: %w", err))
		}
	}
	return errors.Join(errs...)
}
