package main

import (
	"fmt"
	"io"

	"addonplan/internal/config"
	"addonplan/internal/metrics"
	"addonplan/internal/services"
	"addonplan/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// app holds the collaborators built for one invocation
type app struct {
	cfg          *config.Config
	logger       *zap.Logger
	kube         *services.KubernetesService
	registry     *prometheus.Registry
	orchestrator *services.Orchestrator
	closers      []io.Closer
}

// newApp loads configuration and wires every collaborator
func newApp(opts *globalOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logger, err := newLogger(level)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(a.registry)

	registryCache := services.NewRegistryCache(services.RegistryCacheOptions{
		URL:      cfg.Registry.URL,
		TTL:      cfg.Registry.TTL(),
		CacheDir: cfg.CacheDir,
		Fetcher:  services.NewRegistryFetcher(cfg.Registry.Timeout(), "addonplan/"+version),
		Logger:   logger.Named("registry"),
		Metrics:  m,
	})

	var kube *services.KubernetesService
	needsKube := cfg.Ledger.Backend == config.BackendConfigMap || cfg.Capabilities.Source != config.SourceStore
	if needsKube {
		kube, err = services.NewKubernetesService(cfg.Kube.Config, cfg.Kube.Context, logger.Named("kubernetes"))
		if err != nil {
			return nil, err
		}
	}

	a.kube = kube

	kv, err := a.openStore(kube)
	if err != nil {
		return nil, err
	}

	var capabilities services.CapabilitySource
	switch cfg.Capabilities.Source {
	case config.SourceStore:
		capabilities = services.NewStoreCapabilitySource(kv, store.Key{
			Namespace: cfg.Capabilities.Namespace,
			Name:      cfg.Capabilities.Name,
			Field:     cfg.Capabilities.Field,
		})
	case config.SourceNodes:
		capabilities = kube
	default:
		capabilities = services.NewConfigMapCapabilitySource(kube.Client(), cfg.Capabilities.AgentNamespace, kube, logger.Named("capabilities"))
	}

	ledger := services.NewLedger(kv, store.Key{
		Namespace: cfg.Ledger.Namespace,
		Name:      cfg.Ledger.Name,
		Field:     cfg.Ledger.Field,
	}, logger.Named("ledger"), m)

	a.orchestrator = services.NewOrchestrator(services.OrchestratorOptions{
		Registry:     registryCache,
		Capabilities: capabilities,
		Engine:       a.decisionEngine(m),
		Ledger:       ledger,
		Executor:     services.NewExecExecutor(opts.dryRun, logger.Named("exec")),
		Logger:       logger,
	})

	logger.Debug("initialized",
		zap.String("engine", cfg.Decision.Engine),
		zap.String("ledgerBackend", cfg.Ledger.Backend),
		zap.String("capabilities", cfg.Capabilities.Source),
		zap.Bool("remoteRegistry", cfg.Registry.URL != ""),
	)
	return a, nil
}

func (a *app) openStore(kube *services.KubernetesService) (store.KeyValueStore, error) {
	switch a.cfg.Ledger.Backend {
	case config.BackendSQLite:
		s, err := store.NewSQLiteStore(a.cfg.Ledger.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite ledger %s: %w", a.cfg.Ledger.Path, err)
		}
		a.closers = append(a.closers, s)
		return s, nil
	case config.BackendBolt:
		s, err := store.OpenBoltStore(a.cfg.Ledger.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s)
		return s, nil
	case config.BackendMemory:
		return store.NewMemoryStore(), nil
	default:
		return store.NewConfigMapStore(kube.Client()), nil
	}
}

// decisionEngine builds the configured engine. An assisted engine without a usable
// provider still answers, degraded to the deterministic policy.
func (a *app) decisionEngine(m *metrics.Metrics) services.DecisionEngine {
	if a.cfg.Decision.Engine != config.EngineAssisted {
		return services.DeterministicEngine{}
	}

	inference, err := services.NewInference(services.InferenceOptions{
		Provider:        a.cfg.AI.Provider,
		BaseURL:         a.cfg.AI.BaseURL,
		APIKey:          a.cfg.AI.APIKey,
		Model:           a.cfg.AI.Model,
		Temperature:     a.cfg.AI.Temperature,
		MaxOutputTokens: a.cfg.AI.MaxOutputTokens,
		Timeout:         a.cfg.AI.Timeout(),
	})
	if err != nil {
		a.logger.Warn("assisted decisions unavailable", zap.Error(err))
	}
	return services.NewAssistedEngine(inference, a.cfg.Decision.MaxReasonLength, a.logger.Named("decision"), m)
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("failed to close", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
