package kernel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"ex-paimon/pkg/paimon"
)

// moduleRecord tracks a registered module and the subscriptions it owns.
type moduleRecord struct {
	name         string
	module       paimon.Module
	capabilities []paimon.Capability

	mu            sync.Mutex
	subscriptions []paimon.Subscription
}

func (m *moduleRecord) track(subscription paimon.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = append(m.subscriptions, subscription)
}

// closeSubscriptions closes and forgets every tracked subscription; calling
// it twice is harmless.
func (m *moduleRecord) closeSubscriptions(ctx context.Context) error {
	m.mu.Lock()
	subscriptions := m.subscriptions
	m.subscriptions = nil
	m.mu.Unlock()

	var errs error
	for _, subscription := range subscriptions {
		if err := subscription.Close(ctx); err != nil {
			errs = errors.Join(errs, fmt.Errorf("close subscription %s: %w", subscription.Name(), err))
		}
	}

	return errs
}

// moduleRuntime is the paimon.ModuleRuntime handed to one module.
type moduleRuntime struct {
	record   *moduleRecord
	services paimon.ServiceRegistry
	bus      paimon.EventBus
}

// Services returns the shared service registry.
func (r *moduleRuntime) Services() paimon.ServiceRegistry {
	return r.services
}

// Subscribe opens a subscription after checking that a declared capability
// covers interest.
func (r *moduleRuntime) Subscribe(
	ctx context.Context,
	interest paimon.InterestSet,
	spec paimon.SubscriptionSpec,
	handler paimon.EventHandler,
) (paimon.Subscription, error) {
	if spec.Name == "" {
		spec.Name = r.record.name + "-subscription"
	}
	covered := slices.ContainsFunc(r.record.capabilities, func(capability paimon.Capability) bool {
		return capability.Interest.Allows(interest)
	})
	if !covered {
		return nil, fmt.Errorf("module %s subscribe %s: %w: interest not covered by declared capabilities",
			r.record.name, spec.Name, paimon.ErrInvalidSubscription)
	}

	subscription, err := r.bus.Subscribe(ctx, interest, spec, handler)
	if err != nil {
		return nil, fmt.Errorf("module %s subscribe %s: %w", r.record.name, spec.Name, err)
	}
	r.record.track(subscription)

	return subscription, nil
}

var _ paimon.ModuleRuntime = (*moduleRuntime)(nil)
