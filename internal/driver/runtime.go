package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"ex-paimon/pkg/paimon"
)

// Definition describes one configured driver entry.
type Definition struct {
	// Name is the stable driver instance identifier; it becomes the sink ID.
	Name string
	// Type selects the builder.
	Type string
	// Enabled controls whether this definition is built.
	Enabled bool
	// Config stores the driver-type-specific JSON payload.
	Config []byte
}

// Runtime contains one fully built driver runtime instance.
type Runtime struct {
	// Source identifies the events Driver publishes.
	Source paimon.EventSource
	// Driver is registered with the kernel.
	Driver paimon.Driver
	// SinkDispatcher delivers outbound operations for this runtime, when
	// the driver supports them.
	SinkDispatcher paimon.SinkDispatcher
}

// BuilderFunc builds one runtime from one configured driver definition.
type BuilderFunc func(ctx context.Context, definition Definition, logger *slog.Logger) (Runtime, error)

// Descriptor binds one driver type token to its platform and builder.
type Descriptor struct {
	Type     string
	Platform paimon.Platform
	Builder  BuilderFunc
}

type registryEntry struct {
	platform paimon.Platform
	builder  BuilderFunc
}

// Registry maps driver types to runtime builders.
type Registry struct {
	entries map[string]registryEntry
	types   []string
}

// NewRegistry creates one immutable driver registry from descriptors.
func NewRegistry(descriptors []Descriptor) (*Registry, error) {
	entries := make(map[string]registryEntry, len(descriptors))
	types := make([]string, 0, len(descriptors))
	for _, descriptor := range descriptors {
		if descriptor.Type == "" {
			return nil, fmt.Errorf("new registry: empty descriptor type")
		}
		if descriptor.Platform == "" {
			return nil, fmt.Errorf("new registry type %s: empty platform", descriptor.Type)
		}
		if descriptor.Builder == nil {
			return nil, fmt.Errorf("new registry type %s: nil builder", descriptor.Type)
		}
		if _, exists := entries[descriptor.Type]; exists {
			return nil, fmt.Errorf("new registry type %s: duplicate", descriptor.Type)
		}

		entries[descriptor.Type] = registryEntry{platform: descriptor.Platform, builder: descriptor.Builder}
		types = append(types, descriptor.Type)
	}
	sort.Strings(types)

	return &Registry{entries: entries, types: types}, nil
}

// Types returns all registered driver types in sorted order.
func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}

	return append([]string(nil), r.types...)
}

// PlatformForType resolves one registered driver type to its platform.
func (r *Registry) PlatformForType(driverType string) (paimon.Platform, error) {
	if r == nil {
		return "", fmt.Errorf("resolve platform: nil registry")
	}

	entry, exists := r.entries[driverType]
	if !exists {
		return "", fmt.Errorf("unsupported type %s", driverType)
	}

	return entry.platform, nil
}

// BuildEnabled builds all enabled driver definitions.
func (r *Registry) BuildEnabled(
	ctx context.Context,
	definitions []Definition,
	logger *slog.Logger,
) ([]Runtime, error) {
	if r == nil {
		return nil, fmt.Errorf("build drivers: nil registry")
	}
	if logger == nil {
		logger = slog.Default()
	}

	runtimes := make([]Runtime, 0, len(definitions))
	seenNames := make(map[string]struct{}, len(definitions))
	for _, definition := range definitions {
		if !definition.Enabled {
			continue
		}
		if definition.Name == "" {
			return nil, fmt.Errorf("build driver: empty name")
		}
		if _, exists := seenNames[definition.Name]; exists {
			return nil, fmt.Errorf("build driver %s: duplicate name", definition.Name)
		}
		seenNames[definition.Name] = struct{}{}

		entry, exists := r.entries[definition.Type]
		if !exists {
			return nil, fmt.Errorf("build driver %s type %q: unsupported type", definition.Name, definition.Type)
		}

		runtime, err := entry.builder(ctx, definition, logger.With("driver", definition.Name))
		if err != nil {
			return nil, fmt.Errorf("build driver %s type %s: %w", definition.Name, definition.Type, err)
		}
		if runtime.Driver == nil {
			return nil, fmt.Errorf("build driver %s type %s: nil driver", definition.Name, definition.Type)
		}
		if runtime.Source.Platform == "" {
			runtime.Source.Platform = entry.platform
		}
		if runtime.Source.ID == "" {
			runtime.Source.ID = definition.Name
		}

		runtimes = append(runtimes, runtime)
	}

	return runtimes, nil
}

type sinkRoute struct {
	ref        paimon.EventSink
	dispatcher paimon.SinkDispatcher
}

// CompositeSinkDispatcher routes outbound operations to per-driver
// dispatchers.
type CompositeSinkDispatcher struct {
	byID       map[string]sinkRoute
	byPlatform map[paimon.Platform][]string
	sortedIDs  []string
}

// NewCompositeSinkDispatcher creates a composite dispatcher from runtime sinks.
func NewCompositeSinkDispatcher(runtimes []Runtime) (*CompositeSinkDispatcher, error) {
	byID := make(map[string]sinkRoute)
	byPlatform := make(map[paimon.Platform][]string)
	sortedIDs := make([]string, 0, len(runtimes))
	for _, runtime := range runtimes {
		if runtime.SinkDispatcher == nil {
			continue
		}
		if runtime.Source.ID == "" {
			return nil, fmt.Errorf("new composite sink dispatcher: missing sink id")
		}
		if _, exists := byID[runtime.Source.ID]; exists {
			return nil, fmt.Errorf("new composite sink dispatcher: duplicate sink id %s", runtime.Source.ID)
		}

		ref := paimon.EventSink{Platform: runtime.Source.Platform, ID: runtime.Source.ID}
		byID[ref.ID] = sinkRoute{ref: ref, dispatcher: runtime.SinkDispatcher}
		byPlatform[ref.Platform] = append(byPlatform[ref.Platform], ref.ID)
		sortedIDs = append(sortedIDs, ref.ID)
	}
	sort.Strings(sortedIDs)

	return &CompositeSinkDispatcher{byID: byID, byPlatform: byPlatform, sortedIDs: sortedIDs}, nil
}

// SendMessage routes send-message requests to one concrete sink.
func (d *CompositeSinkDispatcher) SendMessage(
	ctx context.Context,
	request paimon.SendMessageRequest,
) (*paimon.OutboundMessage, error) {
	dispatcher, err := d.resolve(request.Target)
	if err != nil {
		return nil, fmt.Errorf("resolve sink for send message: %w", err)
	}

	response, err := dispatcher.SendMessage(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("route send message: %w", err)
	}

	return response, nil
}

// EditMessage routes edit-message requests to one concrete sink.
func (d *CompositeSinkDispatcher) EditMessage(ctx context.Context, request paimon.EditMessageRequest) error {
	dispatcher, err := d.resolve(request.Target)
	if err != nil {
		return fmt.Errorf("resolve sink for edit message: %w", err)
	}

	if err := dispatcher.EditMessage(ctx, request); err != nil {
		return fmt.Errorf("route edit message: %w", err)
	}

	return nil
}

// ListSinks returns all known concrete sinks in sorted ID order.
func (d *CompositeSinkDispatcher) ListSinks() []paimon.EventSink {
	sinks := make([]paimon.EventSink, 0, len(d.sortedIDs))
	for _, id := range d.sortedIDs {
		sinks = append(sinks, d.byID[id].ref)
	}

	return sinks
}

func (d *CompositeSinkDispatcher) resolve(target paimon.OutboundTarget) (paimon.SinkDispatcher, error) {
	if d == nil {
		return nil, fmt.Errorf("nil dispatcher")
	}
	if len(d.byID) == 0 {
		return nil, fmt.Errorf("%w: no sinks configured", paimon.ErrSinkNotFound)
	}

	if target.Sink != nil {
		return d.resolveSinkRef(*target.Sink)
	}
	if len(d.byID) == 1 {
		return d.byID[d.sortedIDs[0]].dispatcher, nil
	}

	return nil, fmt.Errorf("%w: missing target sink", paimon.ErrSinkNotFound)
}

func (d *CompositeSinkDispatcher) resolveSinkRef(ref paimon.EventSink) (paimon.SinkDispatcher, error) {
	if ref.ID != "" {
		route, exists := d.byID[ref.ID]
		if !exists {
			return nil, fmt.Errorf("%w: sink %s", paimon.ErrSinkNotFound, ref.ID)
		}
		if ref.Platform != "" && route.ref.Platform != ref.Platform {
			return nil, fmt.Errorf("%w: sink %s platform mismatch: expected %s got %s",
				paimon.ErrSinkNotFound, ref.ID, ref.Platform, route.ref.Platform)
		}

		return route.dispatcher, nil
	}

	ids := d.byPlatform[ref.Platform]
	switch len(ids) {
	case 0:
		return nil, fmt.Errorf("%w: no sink for platform %s", paimon.ErrSinkNotFound, ref.Platform)
	case 1:
		return d.byID[ids[0]].dispatcher, nil
	default:
		return nil, fmt.Errorf("%w: ambiguous sink for platform %s", paimon.ErrSinkNotFound, ref.Platform)
	}
}
