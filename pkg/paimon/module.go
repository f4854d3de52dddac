package paimon

import "context"

// EventHandler processes a single neutral event.
type EventHandler func(ctx context.Context, event *Event) error

// EventPublisher accepts neutral events for dispatching into the kernel.
type EventPublisher interface {
	// Publish submits an event to downstream subscribers.
	Publish(ctx context.Context, event *Event) error
}

// ModuleRuntime provides kernel facilities to modules during registration.
type ModuleRuntime interface {
	// Services exposes the service registry for dependency lookup.
	Services() ServiceRegistry
	// Subscribe registers an asynchronous handler owned by the module. The
	// interest must be covered by one of the module capabilities.
	Subscribe(ctx context.Context, interest InterestSet, spec SubscriptionSpec, handler EventHandler) (Subscription, error)
}

// ModuleHandler declares one kernel-managed subscription.
type ModuleHandler struct {
	Capability   Capability
	Subscription SubscriptionSpec
	Handler      EventHandler
}

// ModuleSpec declares what a module handles and which commands it owns.
type ModuleSpec struct {
	Handlers []ModuleHandler
	// AdditionalCapabilities covers subscriptions opened manually in
	// OnRegister.
	AdditionalCapabilities []Capability
	Commands               []CommandSpec
}

// Capabilities returns every capability the spec declares.
func (s ModuleSpec) Capabilities() []Capability {
	capabilities := make([]Capability, 0, len(s.Handlers)+len(s.AdditionalCapabilities))
	for _, handler := range s.Handlers {
		capabilities = append(capabilities, handler.Capability)
	}

	return append(capabilities, s.AdditionalCapabilities...)
}

// Module is a lifecycle-aware plugin.
//
// Handlers can run on several workers at once, so modules must be
// concurrency-safe.
type Module interface {
	Name() string
	Spec() ModuleSpec
	OnStart(ctx context.Context) error
	OnShutdown(ctx context.Context) error
}

// ModuleRegistrar is implemented by modules that need the runtime during
// registration, typically to resolve services or register their own.
type ModuleRegistrar interface {
	OnRegister(ctx context.Context, runtime ModuleRuntime) error
}

// Driver adapts an external platform into neutral events.
type Driver interface {
	// Name returns a stable driver identifier.
	Name() string
	// Start consumes external updates and publishes neutral events. It
	// returns after context cancellation or a fatal error.
	Start(ctx context.Context, publisher EventPublisher) error
	// Shutdown releases resources not tied to the Start context.
	Shutdown(ctx context.Context) error
}
