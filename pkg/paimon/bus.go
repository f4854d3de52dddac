package paimon

import (
	"context"
	"time"
)

// BackpressurePolicy defines how queues behave when subscriber buffers are full.
type BackpressurePolicy string

const (
	// BackpressureDropNewest drops the incoming event when full.
	BackpressureDropNewest BackpressurePolicy = "drop_newest"
	// BackpressureDropOldest evicts the oldest queued event before enqueue.
	BackpressureDropOldest BackpressurePolicy = "drop_oldest"
	// BackpressureBlock blocks until queue space is available or context is canceled.
	BackpressureBlock BackpressurePolicy = "block"
)

// SubscriptionSpec configures a single consumer subscription.
type SubscriptionSpec struct {
	Name           string
	Buffer         int
	Workers        int
	HandlerTimeout time.Duration
	Backpressure   BackpressurePolicy
}

// NewDefaultSubscriptionSpec returns a spec relying on kernel defaults.
func NewDefaultSubscriptionSpec(name string) SubscriptionSpec {
	return SubscriptionSpec{Name: name, Backpressure: BackpressureDropNewest}
}

// Subscription controls an active event stream registration.
type Subscription interface {
	Name() string
	Close(ctx context.Context) error
}

// EventBus is the asynchronous pub/sub contract used by the kernel.
type EventBus interface {
	EventPublisher
	Subscribe(ctx context.Context, interest InterestSet, spec SubscriptionSpec, handler EventHandler) (Subscription, error)
	Close(ctx context.Context) error
}
