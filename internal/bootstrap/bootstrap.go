package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"voice3d-server/internal/domain/asr"
	"voice3d-server/internal/domain/capture"
	"voice3d-server/internal/domain/eventbus"
	"voice3d-server/internal/domain/normalize"
	"voice3d-server/internal/domain/pipeline"
	"voice3d-server/internal/domain/session"
	platformconfig "voice3d-server/internal/platform/config"
	platformerrors "voice3d-server/internal/platform/errors"
	platformlogging "voice3d-server/internal/platform/logging"
	"voice3d-server/internal/platform/metrics"
	platformobservability "voice3d-server/internal/platform/observability"
	"voice3d-server/internal/transport/ws"
	"voice3d-server/internal/utils"
)

// Options are the command-line inputs of Run.
type Options struct {
	ConfigPath string
	NoDotEnv   bool
	// LookupEnv replaces os.LookupEnv when set.
	LookupEnv func(string) (string, bool)
}

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	opts                  Options
	config                *platformconfig.Config
	configPath            string
	logProvider           *platformlogging.Logger
	logger                *utils.Logger
	slogger               *slog.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	metrics               *metrics.Metrics
	instruction           *platformconfig.InstructionSource
	providers             *providerSet
	bus                   *eventbus.AsyncEventBus
	recorder              *capture.Recorder
	controller            *session.Controller
	hub                   *ws.Hub
	notifier              *ws.Notifier
}

// Run loads configuration, wires the session controller and serves HTTP
// until the context ends or SIGINT/SIGTERM arrives.
func Run(ctx context.Context, opts Options) error {
	state := &appState{opts: opts}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		state.close()
		return err
	}

	logger := state.logger
	logBootstrapGraph(logger, steps)
	defer state.close()

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if state.instruction.Path() != "" {
		if err := state.instruction.Watch(groupCtx); err != nil {
			logger.WarnTag("Config", "instruction file not watched: %v", err)
		}
	}

	if _, err := startHTTPServer(state, group, groupCtx); err != nil {
		cancel()
		return platformerrors.Wrap(platformerrors.KindTransport, "http:start", "failed to start http server", err)
	}

	return waitForShutdown(signalCtx, groupCtx, cancel, state, group)
}

func logBootstrapGraph(logger *utils.Logger, steps []initStep) {
	if logger == nil {
		return
	}
	logger.InfoTag("Bootstrap", "init graph")
	for _, step := range steps {
		if len(step.DependsOn) == 0 {
			logger.InfoTag("Bootstrap", "  %s: %s", step.ID, step.Title)
			continue
		}
		logger.InfoTag("Bootstrap", "  %s: %s (after %s)", step.ID, step.Title, strings.Join(step.DependsOn, ", "))
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Execute:   initLoggingStep,
		},
		{
			ID:        "metrics:init",
			Title:     "Initialise metrics registry",
			DependsOn: []string{"config:load"},
			Execute:   initMetricsStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider", "metrics:init"},
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "providers:init",
			Title:     "Initialise external service adapters",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindConfig,
			Execute:   initProvidersStep,
		},
		{
			ID:        "session:init-controller",
			Title:     "Initialise session controller",
			DependsOn: []string{"providers:init", "observability:setup-hooks"},
			Execute:   initControllerStep,
		},
		{
			ID:        "notifier:init",
			Title:     "Initialise websocket notifier",
			DependsOn: []string{"session:init-controller"},
			Kind:      platformerrors.KindTransport,
			Execute:   initNotifierStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	loader := platformconfig.NewLoader().
		WithDotEnv(!state.opts.NoDotEnv).
		WithPath(state.opts.ConfigPath).
		WithEnv(state.opts.LookupEnv)

	result, err := loader.Load()
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "config:load", "failed to load config", err)
	}
	state.config = result.Config
	state.configPath = result.Path
	if state.configPath == "" {
		state.configPath = "defaults"
	}
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state.config == nil {
		return platformerrors.New(platformerrors.KindBootstrap, "logging:init-provider", "config not loaded")
	}

	logProvider, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}

	state.logProvider = logProvider
	state.logger = logProvider.Legacy()
	state.slogger = logProvider.Slog()
	utils.DefaultLogger = state.logger

	state.logger.InfoTag("Bootstrap", "logging ready [%s] config=%s", state.config.Log.Level, state.configPath)
	return nil
}

func initMetricsStep(_ context.Context, state *appState) error {
	if !state.config.Metrics.Enabled {
		return nil
	}
	state.metrics = metrics.New(state.config.Metrics.Namespace)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	if state.logger == nil || state.config == nil {
		return platformerrors.New(platformerrors.KindBootstrap, "observability:setup-hooks", "config/logger not initialised")
	}

	cfg := platformobservability.Config{
		Enabled: strings.EqualFold(state.config.Log.Level, "debug"),
	}

	var recorder platformobservability.StageRecorder
	if state.metrics != nil {
		recorder = state.metrics
	}
	shutdown, err := platformobservability.Setup(ctx, cfg, state.slogger, recorder)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

func initProvidersStep(ctx context.Context, state *appState) error {
	pc := state.config.Pipeline
	instruction, err := platformconfig.NewInstructionSource(pc.SystemInstruction, pc.SystemInstructionFile)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "providers:init", "failed to load system instruction", err)
	}
	instruction.OnError(func(err error) {
		state.logger.WarnTag("Config", "instruction reload: %v", err)
	})
	state.instruction = instruction

	set, err := buildProviders(ctx, state.config, instruction.Instruction, state.logger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "providers:init", "failed to build providers", err)
	}
	state.providers = set
	return nil
}

func initControllerStep(_ context.Context, state *appState) error {
	cfg := state.config
	logger := state.logger

	state.bus = eventbus.NewAsyncEventBus(2, 256)
	state.bus.OnPanic(func(topic string, recovered any) {
		logger.ErrorTag("Session", "event handler for %s panicked: %v", topic, recovered)
	})
	if err := eventbus.NewLogHandler(logger).Attach(state.bus); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "session:init-controller", "failed to attach event log handler", err)
	}
	state.bus.Start()

	state.recorder = capture.NewRecorder(capture.Options{
		Dir:        cfg.Recording.TempDir,
		Format:     capture.Format{SampleRate: cfg.Recording.SampleRate, Channels: cfg.Recording.Channels},
		FlushGrace: cfg.Recording.FlushGrace,
	}, nil, nil, logger)

	publishCfg := cfg.SelectedPublish()
	gen := pipeline.New(pipeline.Options{
		ArtifactDir:   cfg.Web.ArtifactDir,
		URLPrefix:     cfg.Web.ArtifactPrefix,
		RemotePath:    publishCfg.Path,
		StyleModifier: cfg.Pipeline.StyleModifier,
		NameMaxLength: cfg.Pipeline.NameMaxLength,
		StageTimeout:  cfg.Pipeline.StageTimeout,
	}, state.providers.optimizer, state.providers.images, state.providers.models, state.providers.store, logger)

	state.controller = session.NewController(session.Options{
		MaxDuration: cfg.Recording.MaxDuration,
		FlushGrace:  cfg.Recording.FlushGrace,
		KeepAudio:   cfg.Recording.KeepAudio,
		ArchiveDir:  cfg.Recording.ArchiveDir,
	}, session.Deps{
		Recorder:    state.recorder,
		Normalizer:  normalize.New(cfg.Normalizer.FFmpegPath, cfg.Normalizer.Timeout, nil, logger),
		Transcriber: asr.NewService(state.providers.transcriber, logger),
		Pipeline:    gen,
		Events:      state.bus,
		Metrics:     state.metrics,
		Logger:      logger,
	})
	return nil
}

func initNotifierStep(_ context.Context, state *appState) error {
	state.hub = ws.NewHub(state.logger)
	state.hub.OnCountChange(state.metrics.SetObservers)
	state.notifier = ws.NewNotifier(state.hub, state.metrics, state.logger)
	return state.notifier.Attach(state.bus)
}

// close releases everything the init steps created, in reverse order.
func (s *appState) close() {
	if s.hub != nil {
		s.hub.CloseAll(ws.ErrSessionShutdown)
	}
	if s.controller != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
		if err := s.controller.Close(ctx); err != nil {
			s.logger.WarnTag("Session", "chain still running at shutdown: %v", err)
		}
		cancel()
	}
	if s.recorder != nil {
		s.recorder.Close()
	}
	if s.bus != nil {
		s.bus.Stop()
	}
	if s.instruction != nil {
		s.instruction.Close()
	}
	if s.observabilityShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.observabilityShutdown(ctx); err != nil {
			s.logger.WarnTag("Bootstrap", "observability shutdown: %v", err)
		}
		cancel()
	}
	if s.logProvider != nil {
		s.logProvider.Close()
	}
}

func (s *appState) shutdownTimeout() time.Duration {
	if s.config != nil && s.config.Server.ShutdownTimeout > 0 {
		return s.config.Server.ShutdownTimeout
	}
	return 15 * time.Second
}
