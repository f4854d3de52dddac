package kernel

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"ex-paimon/pkg/paimon"
)

const (
	defaultModuleHookTimeout  = 5 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultSubscriptionBuffer = 256
	defaultSubscriptionWorker = 1
	defaultHandlerTimeout     = 3 * time.Second
)

type config struct {
	moduleHookTimeout  time.Duration
	shutdownTimeout    time.Duration
	subscriptionBuffer int
	subscriptionWorker int
	handlerTimeout     time.Duration
	logger             *slog.Logger
	onAsyncError       func(context.Context, string, error)
	moduleSources      map[string][]paimon.EventSource
}

// Option configures New.
type Option func(*config)

func defaultConfig() config {
	logger := slog.Default()

	return config{
		moduleHookTimeout:  defaultModuleHookTimeout,
		shutdownTimeout:    defaultShutdownTimeout,
		subscriptionBuffer: defaultSubscriptionBuffer,
		subscriptionWorker: defaultSubscriptionWorker,
		handlerTimeout:     defaultHandlerTimeout,
		logger:             logger,
		onAsyncError:       logAsyncError(logger),
	}
}

func logAsyncError(logger *slog.Logger) func(context.Context, string, error) {
	return func(ctx context.Context, scope string, err error) {
		logger.ErrorContext(ctx, "paimon async error", "scope", scope, "error", err)
	}
}

// WithModuleHookTimeout bounds OnRegister, OnStart and OnShutdown calls.
func WithModuleHookTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		if timeout > 0 {
			cfg.moduleHookTimeout = timeout
		}
	}
}

// WithShutdownTimeout bounds the whole shutdown sequence.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		if timeout > 0 {
			cfg.shutdownTimeout = timeout
		}
	}
}

// WithDefaultSubscriptionBuffer sets the queue depth of subscriptions that
// leave Buffer unset.
func WithDefaultSubscriptionBuffer(size int) Option {
	return func(cfg *config) {
		if size > 0 {
			cfg.subscriptionBuffer = size
		}
	}
}

// WithDefaultSubscriptionWorkers sets the worker count of subscriptions that
// leave Workers unset.
func WithDefaultSubscriptionWorkers(workers int) Option {
	return func(cfg *config) {
		if workers > 0 {
			cfg.subscriptionWorker = workers
		}
	}
}

// WithDefaultHandlerTimeout sets the per-event handler deadline.
func WithDefaultHandlerTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		if timeout > 0 {
			cfg.handlerTimeout = timeout
		}
	}
}

// WithLogger sets the kernel logger and the default async error sink.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
			cfg.onAsyncError = logAsyncError(logger)
		}
	}
}

// WithAsyncErrorHandler replaces the async error sink.
func WithAsyncErrorHandler(handler func(context.Context, string, error)) Option {
	return func(cfg *config) {
		if handler != nil {
			cfg.onAsyncError = handler
		}
	}
}

// WithModuleSources restricts the declared handlers of each named module to
// events from the listed sources.
func WithModuleSources(sources map[string][]paimon.EventSource) Option {
	return func(cfg *config) {
		cfg.moduleSources = make(map[string][]paimon.EventSource, len(sources))
		for module, list := range sources {
			cfg.moduleSources[module] = slices.Clone(list)
		}
	}
}
