package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"ex-paimon/internal/driver"
	"ex-paimon/internal/driver/telegram"
	"ex-paimon/modules/navigator"
	llmconfig "ex-paimon/pkg/llm/config"
	"ex-paimon/pkg/navigation"
	"ex-paimon/pkg/paimon"
)

const (
	envPrefix                 = "PAIMON_"
	defaultConfigFilePath     = "config/bot.json"
	alternateConfigFilePath   = "bin/config/bot.json"
	defaultModuleHookTimeout  = 3 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultHandlerTimeout     = 10 * time.Second
	defaultSubscriptionBuffer = 256
	defaultSubscriptionWorker = 2
	defaultListBudget         = 1000

	logFormatText = "text"
	logFormatJSON = "json"
)

var runtimeModuleNames = []string{"navigator", "characters", "events", "news", "help", "ask"}

type appConfig struct {
	configFile string

	logLevel  slog.Level
	logFormat string

	moduleHookTimeout   time.Duration
	shutdownTimeout     time.Duration
	handlerTimeout      time.Duration
	subscriptionBuffer  int
	subscriptionWorkers int

	drivers       []driver.Definition
	moduleSources map[string][]paimon.EventSource

	navigation navigator.Config
	listBudget int

	// llm is nil when the config has no llm section; /ask is then disabled.
	llm      *llmconfig.Config
	dataFile string
}

type fileConfig struct {
	LogLevel   string               `json:"log_level"`
	LogFormat  string               `json:"log_format"`
	Kernel     fileKernelConfig     `json:"kernel"`
	Drivers    []fileDriverEntry    `json:"drivers"`
	Routing    fileRoutingConfig    `json:"routing"`
	Navigation fileNavigationConfig `json:"navigation"`
	LLM        json.RawMessage      `json:"llm"`
	Data       string               `json:"data"`
}

type fileKernelConfig struct {
	ModuleHookTimeout   string `json:"module_hook_timeout"`
	ShutdownTimeout     string `json:"shutdown_timeout"`
	HandlerTimeout      string `json:"handler_timeout"`
	SubscriptionBuffer  *int   `json:"subscription_buffer"`
	SubscriptionWorkers *int   `json:"subscription_workers"`
}

type fileDriverEntry struct {
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Enabled *bool           `json:"enabled"`
	Config  json.RawMessage `json:"config"`
}

type fileRoutingConfig struct {
	Modules map[string]fileModuleRoute `json:"modules"`
}

type fileModuleRoute struct {
	Sources []fileSourceRef `json:"sources"`
}

type fileSourceRef struct {
	Platform string `json:"platform"`
	ID       string `json:"id"`
}

type fileNavigationConfig struct {
	Timeout         string               `json:"timeout"`
	Debounce        string               `json:"debounce"`
	OwnerOnly       *bool                `json:"owner_only"`
	TriggerOnRemove *bool                `json:"trigger_on_remove"`
	ProbeLimit      *int                 `json:"probe_limit"`
	Budget          *int                 `json:"budget"`
	Controls        *navigation.Controls `json:"controls"`
}

// envOverrides are read from PAIMON_* variables and win over the file.
type envOverrides struct {
	ConfigFile        string        `env:"CONFIG_FILE"`
	LogLevel          string        `env:"LOG_LEVEL"`
	LogFormat         string        `env:"LOG_FORMAT"`
	DataFile          string        `env:"DATA_FILE"`
	TelegramAppID     int           `env:"TELEGRAM_APP_ID"`
	TelegramAppHash   string        `env:"TELEGRAM_APP_HASH"`
	TelegramBotToken  string        `env:"TELEGRAM_BOT_TOKEN"`
	NavigationTimeout time.Duration `env:"NAVIGATION_TIMEOUT"`
}

func loadConfig(flagConfigFile string) (appConfig, error) {
	registry, err := driver.NewBuiltinRegistry()
	if err != nil {
		return appConfig{}, fmt.Errorf("new builtin driver registry: %w", err)
	}

	var overrides envOverrides
	if err := env.ParseWithOptions(&overrides, env.Options{Prefix: envPrefix}); err != nil {
		return appConfig{}, fmt.Errorf("parse environment: %w", err)
	}

	cfg := defaultAppConfig()
	configFile, err := resolveConfigFilePath(flagConfigFile, overrides.ConfigFile)
	if err != nil {
		return appConfig{}, err
	}
	cfg.configFile = configFile

	if err := applyConfigFile(&cfg, configFile); err != nil {
		return appConfig{}, err
	}
	if err := applyEnvOverrides(&cfg, overrides); err != nil {
		return appConfig{}, err
	}
	if err := validateAppConfig(&cfg, registry); err != nil {
		return appConfig{}, fmt.Errorf("validate config file %s: %w", configFile, err)
	}

	return cfg, nil
}

func resolveConfigFilePath(flagValue string, envValue string) (string, error) {
	for _, explicit := range []string{flagValue, envValue} {
		if configFile := strings.TrimSpace(explicit); configFile != "" {
			return configFile, nil
		}
	}

	candidates := []string{defaultConfigFilePath, alternateConfigFilePath}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config file %s is a directory", candidate)
			}
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat config file %s: %w", candidate, err)
		}
	}

	return "", fmt.Errorf(
		"config file not found; create %s or %s, pass --config, or set %sCONFIG_FILE",
		defaultConfigFilePath,
		alternateConfigFilePath,
		envPrefix,
	)
}

func defaultAppConfig() appConfig {
	return appConfig{
		logLevel:  slog.LevelInfo,
		logFormat: logFormatText,

		moduleHookTimeout:   defaultModuleHookTimeout,
		shutdownTimeout:     defaultShutdownTimeout,
		handlerTimeout:      defaultHandlerTimeout,
		subscriptionBuffer:  defaultSubscriptionBuffer,
		subscriptionWorkers: defaultSubscriptionWorker,

		drivers:       make([]driver.Definition, 0),
		moduleSources: make(map[string][]paimon.EventSource),

		navigation: navigator.DefaultConfig(),
		listBudget: defaultListBudget,
	}
}

func applyConfigFile(cfg *appConfig, path string) error {
	if cfg == nil {
		return fmt.Errorf("apply config file: nil config")
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed fileConfig
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if rawLevel := strings.TrimSpace(parsed.LogLevel); rawLevel != "" {
		level, err := parseLogLevel(rawLevel)
		if err != nil {
			return fmt.Errorf("parse log_level: %w", err)
		}
		cfg.logLevel = level
	}
	if rawFormat := strings.TrimSpace(parsed.LogFormat); rawFormat != "" {
		format, err := parseLogFormat(rawFormat)
		if err != nil {
			return fmt.Errorf("parse log_format: %w", err)
		}
		cfg.logFormat = format
	}

	durations := []struct {
		field  string
		raw    string
		target *time.Duration
	}{
		{field: "kernel.module_hook_timeout", raw: parsed.Kernel.ModuleHookTimeout, target: &cfg.moduleHookTimeout},
		{field: "kernel.shutdown_timeout", raw: parsed.Kernel.ShutdownTimeout, target: &cfg.shutdownTimeout},
		{field: "kernel.handler_timeout", raw: parsed.Kernel.HandlerTimeout, target: &cfg.handlerTimeout},
		{field: "navigation.timeout", raw: parsed.Navigation.Timeout, target: &cfg.navigation.Timeout},
	}
	for _, duration := range durations {
		if err := parsePositiveDuration(duration.raw, duration.field, duration.target); err != nil {
			return err
		}
	}
	if rawDebounce := strings.TrimSpace(parsed.Navigation.Debounce); rawDebounce != "" {
		debounce, err := time.ParseDuration(rawDebounce)
		if err != nil {
			return fmt.Errorf("parse navigation.debounce: %w", err)
		}
		if debounce < 0 {
			return fmt.Errorf("parse navigation.debounce: must be >= 0")
		}
		cfg.navigation.Debounce = debounce
	}

	counts := []struct {
		field  string
		raw    *int
		target *int
	}{
		{field: "kernel.subscription_buffer", raw: parsed.Kernel.SubscriptionBuffer, target: &cfg.subscriptionBuffer},
		{field: "kernel.subscription_workers", raw: parsed.Kernel.SubscriptionWorkers, target: &cfg.subscriptionWorkers},
		{field: "navigation.probe_limit", raw: parsed.Navigation.ProbeLimit, target: &cfg.navigation.ProbeLimit},
		{field: "navigation.budget", raw: parsed.Navigation.Budget, target: &cfg.listBudget},
	}
	for _, count := range counts {
		if count.raw == nil {
			continue
		}
		if *count.raw <= 0 {
			return fmt.Errorf("parse %s: must be > 0", count.field)
		}
		*count.target = *count.raw
	}

	if parsed.Navigation.OwnerOnly != nil {
		cfg.navigation.OwnerOnly = *parsed.Navigation.OwnerOnly
	}
	if parsed.Navigation.TriggerOnRemove != nil {
		cfg.navigation.TriggerOnRemove = *parsed.Navigation.TriggerOnRemove
	}
	if parsed.Navigation.Controls != nil {
		cfg.navigation.Controls = *parsed.Navigation.Controls
	}

	cfg.drivers = make([]driver.Definition, 0, len(parsed.Drivers))
	for index, entry := range parsed.Drivers {
		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}
		if len(entry.Config) == 0 {
			return fmt.Errorf("parse drivers[%d].config: required", index)
		}
		cfg.drivers = append(cfg.drivers, driver.Definition{
			Name:    strings.TrimSpace(entry.Name),
			Type:    strings.TrimSpace(entry.Type),
			Enabled: enabled,
			Config:  append([]byte(nil), entry.Config...),
		})
	}

	cfg.moduleSources = make(map[string][]paimon.EventSource, len(parsed.Routing.Modules))
	for moduleName, rawRoute := range parsed.Routing.Modules {
		sources, err := parseModuleSources(rawRoute, fmt.Sprintf("routing.modules.%s", moduleName))
		if err != nil {
			return err
		}
		cfg.moduleSources[moduleName] = sources
	}

	cfg.llm = nil
	if raw := strings.TrimSpace(string(parsed.LLM)); raw != "" && raw != "null" {
		llmCfg, err := llmconfig.Parse(parsed.LLM)
		if err != nil {
			return err
		}
		cfg.llm = &llmCfg
	}
	cfg.dataFile = strings.TrimSpace(parsed.Data)

	return nil
}

func parsePositiveDuration(raw string, field string, target *time.Duration) error {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", field, err)
	}
	if duration <= 0 {
		return fmt.Errorf("parse %s: must be > 0", field)
	}
	*target = duration

	return nil
}

func parseModuleSources(raw fileModuleRoute, scope string) ([]paimon.EventSource, error) {
	if len(raw.Sources) == 0 {
		return nil, fmt.Errorf("%s.sources is required", scope)
	}

	sources := make([]paimon.EventSource, 0, len(raw.Sources))
	for index, sourceRef := range raw.Sources {
		source := paimon.EventSource{
			Platform: paimon.Platform(strings.TrimSpace(sourceRef.Platform)),
			ID:       strings.TrimSpace(sourceRef.ID),
		}
		if source.Platform == "" && source.ID == "" {
			return nil, fmt.Errorf("%s.sources[%d]: empty source reference", scope, index)
		}
		sources = append(sources, source)
	}

	return sources, nil
}

// applyEnvOverrides layers PAIMON_* variables over the file. Telegram
// credentials are patched into every telegram driver definition.
func applyEnvOverrides(cfg *appConfig, overrides envOverrides) error {
	if rawLevel := strings.TrimSpace(overrides.LogLevel); rawLevel != "" {
		level, err := parseLogLevel(rawLevel)
		if err != nil {
			return fmt.Errorf("parse %sLOG_LEVEL: %w", envPrefix, err)
		}
		cfg.logLevel = level
	}
	if rawFormat := strings.TrimSpace(overrides.LogFormat); rawFormat != "" {
		format, err := parseLogFormat(rawFormat)
		if err != nil {
			return fmt.Errorf("parse %sLOG_FORMAT: %w", envPrefix, err)
		}
		cfg.logFormat = format
	}
	if dataFile := strings.TrimSpace(overrides.DataFile); dataFile != "" {
		cfg.dataFile = dataFile
	}
	if overrides.NavigationTimeout != 0 {
		if overrides.NavigationTimeout < 0 {
			return fmt.Errorf("parse %sNAVIGATION_TIMEOUT: must be > 0", envPrefix)
		}
		cfg.navigation.Timeout = overrides.NavigationTimeout
	}

	patch := map[string]any{}
	if overrides.TelegramAppID != 0 {
		patch["app_id"] = overrides.TelegramAppID
	}
	if appHash := strings.TrimSpace(overrides.TelegramAppHash); appHash != "" {
		patch["app_hash"] = appHash
	}
	if botToken := strings.TrimSpace(overrides.TelegramBotToken); botToken != "" {
		patch["bot_token"] = botToken
	}
	if len(patch) == 0 {
		return nil
	}
	for index, definition := range cfg.drivers {
		if definition.Type != telegram.DriverType {
			continue
		}
		patched, err := patchJSONObject(definition.Config, patch)
		if err != nil {
			return fmt.Errorf("apply telegram overrides to driver %s: %w", definition.Name, err)
		}
		cfg.drivers[index].Config = patched
	}

	return nil
}

func patchJSONObject(raw []byte, patch map[string]any) ([]byte, error) {
	object := map[string]any{}
	if len(raw) != 0 {
		if err := json.Unmarshal(raw, &object); err != nil {
			return nil, fmt.Errorf("unmarshal: %w", err)
		}
	}
	for key, value := range patch {
		object[key] = value
	}

	patched, err := json.Marshal(object)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	return patched, nil
}

func validateAppConfig(cfg *appConfig, registry *driver.Registry) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if registry == nil {
		return fmt.Errorf("nil driver registry")
	}

	enabledDrivers := make([]driver.Definition, 0, len(cfg.drivers))
	enabledByName := make(map[string]driver.Definition, len(cfg.drivers))
	for _, definition := range cfg.drivers {
		if definition.Name == "" {
			return fmt.Errorf("drivers[].name is required")
		}
		if definition.Type == "" {
			return fmt.Errorf("drivers[%s].type is required", definition.Name)
		}
		if _, exists := enabledByName[definition.Name]; exists {
			return fmt.Errorf("drivers[%s]: duplicate name", definition.Name)
		}
		if !definition.Enabled {
			continue
		}
		if _, err := registry.PlatformForType(definition.Type); err != nil {
			return fmt.Errorf("drivers[%s].type: %w", definition.Name, err)
		}
		enabledDrivers = append(enabledDrivers, definition)
		enabledByName[definition.Name] = definition
	}
	if len(enabledDrivers) == 0 {
		return fmt.Errorf("at least one enabled driver is required")
	}

	knownModules := make(map[string]struct{}, len(runtimeModuleNames))
	for _, moduleName := range runtimeModuleNames {
		knownModules[moduleName] = struct{}{}
	}
	for moduleName, sources := range cfg.moduleSources {
		if _, known := knownModules[moduleName]; !known {
			return fmt.Errorf("routing.modules.%s: unknown module", moduleName)
		}
		for index, source := range sources {
			if source.ID == "" {
				continue
			}
			if _, exists := enabledByName[source.ID]; !exists {
				return fmt.Errorf("routing.modules.%s.sources[%d]: unknown driver id %s", moduleName, index, source.ID)
			}
		}
	}

	if err := cfg.navigation.Controls.Validate(); err != nil {
		return fmt.Errorf("navigation.controls: %w", err)
	}
	for _, definition := range enabledDrivers {
		if definition.Type != telegram.DriverType {
			continue
		}
		if err := validateTelegramControls(cfg.navigation.Controls); err != nil {
			return fmt.Errorf("navigation.controls: %w", err)
		}
		cfg.navigation.Usable = telegram.IsStandardReaction
		break
	}

	return nil
}

// validateTelegramControls rejects symbols Telegram users cannot react with.
func validateTelegramControls(controls navigation.Controls) error {
	for _, control := range []struct {
		name   string
		symbol string
	}{
		{name: "first", symbol: controls.First},
		{name: "prev", symbol: controls.Prev},
		{name: "next", symbol: controls.Next},
		{name: "last", symbol: controls.Last},
		{name: "close", symbol: controls.Close},
	} {
		if control.symbol != "" && !telegram.IsStandardReaction(control.symbol) {
			return fmt.Errorf("%s symbol %q is not a standard telegram reaction", control.name, control.symbol)
		}
	}

	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported level %q", raw)
	}
}

func parseLogFormat(raw string) (string, error) {
	switch format := strings.ToLower(strings.TrimSpace(raw)); format {
	case logFormatText, logFormatJSON:
		return format, nil
	default:
		return "", fmt.Errorf("unsupported format %q", raw)
	}
}
