package kernel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"ex-paimon/pkg/paimon"
)

// EventBus fans events out to bounded per-subscription queues, each drained
// by its own worker pool.
type EventBus struct {
	defaults     subscriptionDefaults
	onAsyncError func(context.Context, string, error)
	nextID       atomic.Int64

	mu          sync.RWMutex
	closed      bool
	subscribers map[int64]*subscriber
}

type subscriptionDefaults struct {
	buffer         int
	workers        int
	handlerTimeout time.Duration
}

// NewEventBus creates a bus applying the given defaults to subscriptions
// that leave them unset. onAsyncError receives handler failures and drops.
func NewEventBus(
	buffer int,
	workers int,
	handlerTimeout time.Duration,
	onAsyncError func(context.Context, string, error),
) *EventBus {
	return &EventBus{
		defaults: subscriptionDefaults{
			buffer:         max(buffer, 1),
			workers:        max(workers, 1),
			handlerTimeout: handlerTimeout,
		},
		onAsyncError: onAsyncError,
		subscribers:  make(map[int64]*subscriber),
	}
}

// Publish validates event and enqueues it on every matching subscription.
// Backpressure drops are reported asynchronously, not returned.
func (b *EventBus) Publish(ctx context.Context, event *paimon.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("publish event %s: bus closed", event.Kind)
	}
	targets := make([]*subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		if sub.interest.Matches(event) {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	var errs []error
	for _, sub := range targets {
		err := sub.enqueue(ctx, event)
		switch {
		case err == nil:
		case errors.Is(err, paimon.ErrEventDropped), errors.Is(err, paimon.ErrSubscriptionClosed):
			b.report(ctx, sub.spec.Name, err)
		default:
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("publish event %s: %w", event.Kind, errors.Join(errs...))
	}

	return nil
}

// Subscribe starts a consumer for events matching interest.
func (b *EventBus) Subscribe(
	ctx context.Context,
	interest paimon.InterestSet,
	spec paimon.SubscriptionSpec,
	handler paimon.EventHandler,
) (paimon.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", spec.Name, err)
	}
	if handler == nil {
		return nil, fmt.Errorf("subscribe %s: nil handler", spec.Name)
	}

	id := b.nextID.Add(1)
	spec, err := b.resolveSpec(spec, id)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("subscribe %s: bus closed", spec.Name)
	}
	sub := startSubscriber(id, cloneInterest(interest), spec, handler, b)
	b.subscribers[id] = sub

	return sub, nil
}

// Close stops every subscription and waits for their workers, bounded by ctx.
func (b *EventBus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	clear(b.subscribers)
	b.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close event bus: %w", errors.Join(errs...))
	}

	return nil
}

func (b *EventBus) resolveSpec(spec paimon.SubscriptionSpec, id int64) (paimon.SubscriptionSpec, error) {
	if spec.Name == "" {
		spec.Name = fmt.Sprintf("subscription-%d", id)
	}
	if spec.Buffer <= 0 {
		spec.Buffer = b.defaults.buffer
	}
	if spec.Workers <= 0 {
		spec.Workers = b.defaults.workers
	}
	if spec.HandlerTimeout <= 0 {
		spec.HandlerTimeout = b.defaults.handlerTimeout
	}
	switch spec.Backpressure {
	case "":
		spec.Backpressure = paimon.BackpressureDropNewest
	case paimon.BackpressureDropNewest, paimon.BackpressureDropOldest, paimon.BackpressureBlock:
	default:
		return spec, fmt.Errorf("subscribe %s: %w: backpressure %q", spec.Name, paimon.ErrInvalidSubscription, spec.Backpressure)
	}

	return spec, nil
}

func (b *EventBus) remove(ctx context.Context, id int64) error {
	b.mu.Lock()
	sub, found := b.subscribers[id]
	delete(b.subscribers, id)
	b.mu.Unlock()

	if !found {
		return nil
	}

	return sub.stop(ctx)
}

func (b *EventBus) report(ctx context.Context, scope string, err error) {
	if b.onAsyncError != nil {
		b.onAsyncError(ctx, scope, err)
	}
}

// subscriber owns one queue and its workers. Workers exit on cancel; the
// queue is never closed so late enqueues cannot panic.
type subscriber struct {
	id       int64
	interest paimon.InterestSet
	spec     paimon.SubscriptionSpec
	handler  paimon.EventHandler
	bus      *EventBus

	queue    chan *paimon.Event
	ctx      context.Context
	cancel   context.CancelFunc
	workers  sync.WaitGroup
	done     chan struct{}
	stopping atomic.Bool
}

func startSubscriber(
	id int64,
	interest paimon.InterestSet,
	spec paimon.SubscriptionSpec,
	handler paimon.EventHandler,
	bus *EventBus,
) *subscriber {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscriber{
		id:       id,
		interest: interest,
		spec:     spec,
		handler:  handler,
		bus:      bus,
		queue:    make(chan *paimon.Event, spec.Buffer),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	for worker := range spec.Workers {
		sub.workers.Add(1)
		go sub.drain(worker)
	}
	go func() {
		sub.workers.Wait()
		close(sub.done)
	}()

	return sub
}

// Name returns the subscription name.
func (s *subscriber) Name() string {
	return s.spec.Name
}

// Close unsubscribes and waits for in-flight handlers.
func (s *subscriber) Close(ctx context.Context) error {
	return s.bus.remove(ctx, s.id)
}

func (s *subscriber) enqueue(ctx context.Context, event *paimon.Event) error {
	if s.stopping.Load() {
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, paimon.ErrSubscriptionClosed)
	}

	select {
	case s.queue <- event:
		return nil
	default:
	}

	switch s.spec.Backpressure {
	case paimon.BackpressureDropOldest:
		select {
		case <-s.queue:
		default:
		}
		select {
		case s.queue <- event:
			return nil
		default:
		}
	case paimon.BackpressureBlock:
		select {
		case s.queue <- event:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("enqueue %s: %w", s.spec.Name, ctx.Err())
		case <-s.ctx.Done():
			return fmt.Errorf("enqueue %s: %w", s.spec.Name, paimon.ErrSubscriptionClosed)
		}
	}

	return fmt.Errorf("enqueue %s: %w", s.spec.Name, paimon.ErrEventDropped)
}

func (s *subscriber) drain(worker int) {
	defer s.workers.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case event := <-s.queue:
			if err := s.handle(worker, event); err != nil {
				s.bus.report(s.ctx, s.spec.Name, err)
			}
		}
	}
}

func (s *subscriber) handle(worker int, event *paimon.Event) error {
	ctx := s.ctx
	if s.spec.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.spec.HandlerTimeout)
		defer cancel()
	}

	scope := fmt.Sprintf("subscription %s worker %d", s.spec.Name, worker)
	if err := runSafely(scope, func() error {
		return s.handler(ctx, event)
	}); err != nil {
		return fmt.Errorf("handle event %s: %w", event.Kind, err)
	}

	return nil
}

func (s *subscriber) stop(ctx context.Context) error {
	if s.stopping.CompareAndSwap(false, true) {
		s.cancel()
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop subscription %s: %w", s.spec.Name, ctx.Err())
	}
}

func cloneInterest(interest paimon.InterestSet) paimon.InterestSet {
	interest.Kinds = slices.Clone(interest.Kinds)
	interest.Sources = slices.Clone(interest.Sources)
	interest.CommandNames = slices.Clone(interest.CommandNames)
	return interest
}

var _ paimon.EventBus = (*EventBus)(nil)
