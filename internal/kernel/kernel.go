package kernel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"ex-paimon/pkg/paimon"
)

// Kernel wires drivers and modules together through the event bus and the
// service registry, and owns their lifecycle.
type Kernel struct {
	cfg      config
	bus      *EventBus
	services *ServiceRegistry

	mu       sync.RWMutex
	modules  []*moduleRecord
	commands map[string]commandRegistration
	drivers  []paimon.Driver

	runMu   sync.Mutex
	running bool
}

// New creates a kernel with the command catalog service registered.
func New(options ...Option) *Kernel {
	cfg := defaultConfig()
	for _, option := range options {
		option(&cfg)
	}

	k := &Kernel{
		cfg:      cfg,
		bus:      NewEventBus(cfg.subscriptionBuffer, cfg.subscriptionWorker, cfg.handlerTimeout, cfg.onAsyncError),
		services: NewServiceRegistry(),
		commands: make(map[string]commandRegistration),
	}
	if err := k.services.Register(paimon.ServiceCommandCatalog, &commandCatalog{kernel: k}); err != nil {
		cfg.onAsyncError(context.Background(), "register command catalog", err)
	}

	return k
}

// EventBus exposes the bus for integration code and tests.
func (k *Kernel) EventBus() paimon.EventBus {
	return k.bus
}

// Services exposes the service registry.
func (k *Kernel) Services() paimon.ServiceRegistry {
	return k.services
}

// RegisterService registers a service singleton.
func (k *Kernel) RegisterService(name string, service any) error {
	return k.services.Register(name, service)
}

// RegisterModule validates module, claims its commands, runs OnRegister and
// subscribes its declared handlers. A failure at any step rolls the module
// back out.
func (k *Kernel) RegisterModule(ctx context.Context, module paimon.Module) error {
	if module == nil {
		return fmt.Errorf("register module: nil module")
	}
	name := module.Name()
	if name == "" {
		return fmt.Errorf("register module: empty name")
	}
	spec := module.Spec()
	if err := validateModuleSpec(spec); err != nil {
		return fmt.Errorf("register module %s: %w", name, err)
	}
	record := &moduleRecord{name: name, module: module, capabilities: spec.Capabilities()}
	if err := k.checkRequiredServices(record.capabilities); err != nil {
		return fmt.Errorf("register module %s: %w", name, err)
	}

	k.mu.Lock()
	if slices.ContainsFunc(k.modules, func(existing *moduleRecord) bool { return existing.name == name }) {
		k.mu.Unlock()
		return fmt.Errorf("register module %s: %w", name, paimon.ErrModuleAlreadyRegistered)
	}
	k.modules = append(k.modules, record)
	k.mu.Unlock()

	if err := k.attachModule(ctx, record, spec); err != nil {
		k.rollback(ctx, record)
		return fmt.Errorf("register module %s: %w", name, err)
	}

	k.cfg.logger.DebugContext(ctx, "module registered",
		"module", name,
		"handlers", len(spec.Handlers),
		"commands", len(spec.Commands),
	)

	return nil
}

func (k *Kernel) attachModule(ctx context.Context, record *moduleRecord, spec paimon.ModuleSpec) error {
	if err := k.registerCommands(record.name, spec.Commands); err != nil {
		return err
	}

	hookCtx, cancel := context.WithTimeout(ctx, k.cfg.moduleHookTimeout)
	defer cancel()

	runtime := &moduleRuntime{record: record, services: k.services, bus: k.bus}
	if registrar, ok := record.module.(paimon.ModuleRegistrar); ok {
		if err := runSafely("module "+record.name+" OnRegister", func() error {
			return registrar.OnRegister(hookCtx, runtime)
		}); err != nil {
			return err
		}
	}

	sources := k.cfg.moduleSources[record.name]
	for index, declared := range spec.Handlers {
		interest := declared.Capability.Interest
		if len(sources) > 0 {
			interest.Sources = slices.Clone(sources)
		}
		subscription := declared.Subscription
		if subscription.Name == "" {
			subscription.Name = fmt.Sprintf("%s-handler-%d", record.name, index+1)
		}
		if _, err := runtime.Subscribe(hookCtx, interest, subscription, declared.Handler); err != nil {
			return fmt.Errorf("capability %s: %w", declared.Capability.Name, err)
		}
	}

	return nil
}

// RegisterDriver adds a platform driver started by Run.
func (k *Kernel) RegisterDriver(driver paimon.Driver) error {
	if driver == nil {
		return fmt.Errorf("register driver: nil driver")
	}
	name := driver.Name()
	if name == "" {
		return fmt.Errorf("register driver: empty name")
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if slices.ContainsFunc(k.drivers, func(existing paimon.Driver) bool { return existing.Name() == name }) {
		return fmt.Errorf("register driver %s: %w", name, paimon.ErrDriverAlreadyRegistered)
	}
	k.drivers = append(k.drivers, driver)

	return nil
}

// Run starts modules and drivers and blocks until ctx is canceled or a
// driver fails, then shuts everything down.
func (k *Kernel) Run(ctx context.Context) error {
	k.runMu.Lock()
	if k.running {
		k.runMu.Unlock()
		return fmt.Errorf("kernel run: already running")
	}
	k.running = true
	k.runMu.Unlock()
	defer func() {
		k.runMu.Lock()
		k.running = false
		k.runMu.Unlock()
	}()

	if err := k.startModules(ctx); err != nil {
		return errors.Join(err, k.shutdown(ctx))
	}

	driverCtx, stopDrivers := context.WithCancel(ctx)
	failed, stopped := k.startDrivers(driverCtx)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-failed:
	}
	stopDrivers()
	select {
	case <-stopped:
	case <-time.After(k.cfg.shutdownTimeout):
		k.cfg.logger.Warn("drivers did not stop within shutdown timeout")
	}

	return errors.Join(runErr, k.shutdown(ctx))
}

func (k *Kernel) snapshot() ([]*moduleRecord, []paimon.Driver) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return slices.Clone(k.modules), slices.Clone(k.drivers)
}

func (k *Kernel) startModules(ctx context.Context) error {
	modules, _ := k.snapshot()
	for _, record := range modules {
		hookCtx, cancel := context.WithTimeout(ctx, k.cfg.moduleHookTimeout)
		err := runSafely("module "+record.name+" OnStart", func() error {
			return record.module.OnStart(hookCtx)
		})
		cancel()
		if err != nil {
			return fmt.Errorf("start module %s: %w", record.name, err)
		}
	}

	return nil
}

// startDrivers runs every driver in its own goroutine. failed receives the
// first non-cancellation error; stopped closes once all drivers returned.
func (k *Kernel) startDrivers(ctx context.Context) (<-chan error, <-chan struct{}) {
	_, drivers := k.snapshot()
	failed := make(chan error, 1)
	stopped := make(chan struct{})
	publisher := &commandPublisher{
		bus:      k.bus,
		lookup:   k.lookupCommand,
		services: k.services,
		report:   k.cfg.onAsyncError,
	}

	var wg sync.WaitGroup
	for _, driver := range drivers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := runSafely("driver "+driver.Name()+" Start", func() error {
				return driver.Start(ctx, publisher)
			})
			if err == nil || isCancellation(err) {
				return
			}
			select {
			case failed <- fmt.Errorf("run driver %s: %w", driver.Name(), err):
			default:
			}
		}()
	}
	go func() {
		wg.Wait()
		close(stopped)
	}()

	return failed, stopped
}

// shutdown stops drivers then modules in reverse registration order, then
// the bus. It outlives ctx cancellation, bounded by the shutdown timeout.
func (k *Kernel) shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.cfg.shutdownTimeout)
	defer cancel()

	modules, drivers := k.snapshot()
	var errs error
	for _, driver := range slices.Backward(drivers) {
		if err := runSafely("driver "+driver.Name()+" Shutdown", func() error {
			return driver.Shutdown(ctx)
		}); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	for _, record := range slices.Backward(modules) {
		if err := record.closeSubscriptions(ctx); err != nil {
			errs = errors.Join(errs, fmt.Errorf("module %s: %w", record.name, err))
		}
		hookCtx, hookCancel := context.WithTimeout(ctx, k.cfg.moduleHookTimeout)
		err := runSafely("module "+record.name+" OnShutdown", func() error {
			return record.module.OnShutdown(hookCtx)
		})
		hookCancel()
		if err != nil {
			errs = errors.Join(errs, err)
		}
	}
	if err := k.bus.Close(ctx); err != nil {
		errs = errors.Join(errs, err)
	}

	if errs != nil {
		return fmt.Errorf("kernel shutdown: %w", errs)
	}

	return nil
}

func (k *Kernel) rollback(ctx context.Context, record *moduleRecord) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.cfg.moduleHookTimeout)
	defer cancel()

	if err := record.closeSubscriptions(ctx); err != nil {
		k.cfg.onAsyncError(ctx, "rollback module "+record.name, err)
	}
	k.unregisterCommands(record.name)

	k.mu.Lock()
	defer k.mu.Unlock()
	k.modules = slices.DeleteFunc(k.modules, func(existing *moduleRecord) bool { return existing == record })
}

func (k *Kernel) checkRequiredServices(capabilities []paimon.Capability) error {
	for _, capability := range capabilities {
		for _, service := range capability.RequiredServices {
			if _, err := k.services.Resolve(service); err != nil {
				return fmt.Errorf("capability %s requires service %s: %w", capability.Name, service, err)
			}
		}
	}

	return nil
}

func validateModuleSpec(spec paimon.ModuleSpec) error {
	capabilities := make(map[string]struct{})
	for index, capability := range spec.Capabilities() {
		if capability.Name == "" {
			return fmt.Errorf("capability %d: empty name", index)
		}
		if _, exists := capabilities[capability.Name]; exists {
			return fmt.Errorf("capability %d: duplicate name %s", index, capability.Name)
		}
		capabilities[capability.Name] = struct{}{}
	}

	subscriptions := make(map[string]struct{})
	for _, handler := range spec.Handlers {
		if handler.Handler == nil {
			return fmt.Errorf("capability %s: nil handler", handler.Capability.Name)
		}
		if name := handler.Subscription.Name; name != "" {
			if _, exists := subscriptions[name]; exists {
				return fmt.Errorf("capability %s: duplicate subscription name %s", handler.Capability.Name, name)
			}
			subscriptions[name] = struct{}{}
		}
	}

	commands := make(map[string]struct{})
	for index, command := range spec.Commands {
		if err := command.Validate(); err != nil {
			return fmt.Errorf("command %d: %w", index, err)
		}
		key := commandKey(command.Name)
		if _, exists := commands[key]; exists {
			return fmt.Errorf("command %d: duplicate command /%s", index, key)
		}
		commands[key] = struct{}{}
	}

	return nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
