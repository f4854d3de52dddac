package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ex-paimon/internal/driver"
	"ex-paimon/internal/gamedata"
	"ex-paimon/internal/kernel"
	"ex-paimon/modules/ask"
	"ex-paimon/modules/characters"
	"ex-paimon/modules/events"
	"ex-paimon/modules/help"
	"ex-paimon/modules/navigator"
	"ex-paimon/modules/news"
	"ex-paimon/pkg/llm"
	llmconfig "ex-paimon/pkg/llm/config"
	"ex-paimon/pkg/llm/providers/anthropic"
	"ex-paimon/pkg/llm/providers/gemini"
	"ex-paimon/pkg/llm/providers/openai"
	"ex-paimon/pkg/paimon"
)

func run(ctx context.Context, logger *slog.Logger, cfg appConfig) error {
	store, err := loadGameData(cfg)
	if err != nil {
		return err
	}

	registry, err := driver.NewBuiltinRegistry()
	if err != nil {
		return fmt.Errorf("new builtin driver registry: %w", err)
	}
	kernelRuntime := buildKernelRuntime(logger, cfg)

	drivers, sinkDispatcher, err := buildDriverRuntime(ctx, logger, cfg, registry)
	if err != nil {
		return err
	}
	if err := registerRuntimeDrivers(kernelRuntime, drivers); err != nil {
		return err
	}
	if err := registerRuntimeServices(kernelRuntime, sinkDispatcher, cfg); err != nil {
		return err
	}
	if err := registerRuntimeModules(ctx, kernelRuntime, logger, store, cfg); err != nil {
		return err
	}

	logger.InfoContext(ctx, "paimon starting",
		"drivers", len(drivers),
		"characters", len(store.Characters()),
		"events", len(store.Events()),
		"ask", cfg.llm != nil,
	)
	if err := kernelRuntime.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run kernel: %w", err)
	}

	return nil
}

func loadGameData(cfg appConfig) (*gamedata.Store, error) {
	if cfg.dataFile == "" {
		store, err := gamedata.Embedded()
		if err != nil {
			return nil, fmt.Errorf("load embedded game data: %w", err)
		}
		return store, nil
	}

	store, err := gamedata.LoadFile(cfg.dataFile)
	if err != nil {
		return nil, fmt.Errorf("load game data %s: %w", cfg.dataFile, err)
	}

	return store, nil
}

func buildKernelRuntime(logger *slog.Logger, cfg appConfig) *kernel.Kernel {
	return kernel.New(
		kernel.WithLogger(logger),
		kernel.WithModuleHookTimeout(cfg.moduleHookTimeout),
		kernel.WithShutdownTimeout(cfg.shutdownTimeout),
		kernel.WithDefaultHandlerTimeout(cfg.handlerTimeout),
		kernel.WithDefaultSubscriptionBuffer(cfg.subscriptionBuffer),
		kernel.WithDefaultSubscriptionWorkers(cfg.subscriptionWorkers),
		kernel.WithModuleSources(cfg.moduleSources),
	)
}

func buildDriverRuntime(
	ctx context.Context,
	logger *slog.Logger,
	cfg appConfig,
	registry *driver.Registry,
) ([]paimon.Driver, paimon.SinkDispatcher, error) {
	if registry == nil {
		return nil, nil, fmt.Errorf("build drivers: nil driver registry")
	}

	runtimes, err := registry.BuildEnabled(ctx, cfg.drivers, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build drivers: %w", err)
	}

	drivers := make([]paimon.Driver, 0, len(runtimes))
	for _, runtime := range runtimes {
		drivers = append(drivers, runtime.Driver)
	}

	dispatcher, err := driver.NewCompositeSinkDispatcher(runtimes)
	if err != nil {
		return nil, nil, fmt.Errorf("build sink dispatcher: %w", err)
	}

	return drivers, dispatcher, nil
}

func registerRuntimeServices(
	kernelRuntime *kernel.Kernel,
	sinkDispatcher paimon.SinkDispatcher,
	cfg appConfig,
) error {
	if sinkDispatcher == nil {
		return fmt.Errorf("register sink dispatcher service: nil dispatcher")
	}
	if err := kernelRuntime.RegisterService(paimon.ServiceSinkDispatcher, sinkDispatcher); err != nil {
		return fmt.Errorf("register sink dispatcher service: %w", err)
	}

	if cfg.llm == nil {
		return nil
	}
	providers, err := buildLLMProviderRegistry(*cfg.llm)
	if err != nil {
		return err
	}
	if err := kernelRuntime.RegisterService(paimon.ServiceLLMProviderRegistry, providers); err != nil {
		return fmt.Errorf("register llm provider registry service: %w", err)
	}

	return nil
}

// registerRuntimeModules registers the navigator first: it publishes the
// navigator service the command modules require.
func registerRuntimeModules(
	ctx context.Context,
	kernelRuntime *kernel.Kernel,
	logger *slog.Logger,
	store *gamedata.Store,
	cfg appConfig,
) error {
	modules := []paimon.Module{
		navigator.New(cfg.navigation, navigator.WithLogger(logger)),
		characters.New(store, characters.WithListBudget(cfg.listBudget), characters.WithLogger(logger)),
		events.New(store),
		news.New(store),
		help.New(),
	}
	if cfg.llm != nil {
		modules = append(modules, ask.New(cfg.llm.Ask, ask.WithLogger(logger)))
	}

	for _, module := range modules {
		if err := kernelRuntime.RegisterModule(ctx, module); err != nil {
			return fmt.Errorf("register %s module: %w", module.Name(), err)
		}
	}

	return nil
}

func registerRuntimeDrivers(kernelRuntime *kernel.Kernel, drivers []paimon.Driver) error {
	for _, runtimeDriver := range drivers {
		if err := kernelRuntime.RegisterDriver(runtimeDriver); err != nil {
			return fmt.Errorf("register driver %s: %w", runtimeDriver.Name(), err)
		}
	}

	return nil
}

func buildLLMProviderRegistry(cfg llmconfig.Config) (*llm.Registry, error) {
	providers := make(map[string]paimon.LLMProvider, len(cfg.Providers))
	for key, profile := range cfg.Providers {
		provider, err := buildLLMProvider(profile)
		if err != nil {
			return nil, fmt.Errorf("build llm provider %s: %w", key, err)
		}
		providers[key] = provider
	}

	registry, err := llm.NewRegistry(providers)
	if err != nil {
		return nil, fmt.Errorf("build llm provider registry: %w", err)
	}

	return registry, nil
}

func buildLLMProvider(profile llmconfig.ProviderProfile) (paimon.LLMProvider, error) {
	switch profile.Type {
	case llmconfig.ProviderTypeOpenAI:
		providerCfg := openai.ProviderConfig{APIKey: profile.APIKey, BaseURL: profile.BaseURL}
		if profile.OpenAI != nil {
			providerCfg.Organization = profile.OpenAI.Organization
			providerCfg.Project = profile.OpenAI.Project
			providerCfg.MaxRetries = profile.OpenAI.MaxRetries
		}
		return openai.New(providerCfg)
	case llmconfig.ProviderTypeGemini:
		providerCfg := gemini.ProviderConfig{APIKey: profile.APIKey, BaseURL: profile.BaseURL}
		if profile.Gemini != nil {
			providerCfg.APIVersion = profile.Gemini.APIVersion
			providerCfg.GoogleSearch = profile.Gemini.GoogleSearch
			providerCfg.ThinkingBudget = profile.Gemini.ThinkingBudget
		}
		return gemini.New(providerCfg)
	case llmconfig.ProviderTypeAnthropic:
		providerCfg := anthropic.ProviderConfig{APIKey: profile.APIKey, BaseURL: profile.BaseURL}
		if profile.Anthropic != nil {
			providerCfg.DefaultMaxTokens = profile.Anthropic.DefaultMaxTokens
		}
		return anthropic.New(providerCfg)
	default:
		return nil, fmt.Errorf("unsupported provider type %q", profile.Type)
	}
}
