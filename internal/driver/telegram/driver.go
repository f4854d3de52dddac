package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ex-paimon/pkg/paimon"
)

const defaultPublishTimeout = 2 * time.Second

type driverConfig struct {
	name           string
	publishTimeout time.Duration
	onAsyncError   func(context.Context, error)
}

// DriverOption mutates Telegram driver configuration.
type DriverOption func(*driverConfig)

// WithName sets the driver identity exposed to the kernel and stamped on
// event sources.
func WithName(name string) DriverOption {
	return func(cfg *driverConfig) {
		if name != "" {
			cfg.name = name
		}
	}
}

// WithPublishTimeout bounds each bus publish.
func WithPublishTimeout(timeout time.Duration) DriverOption {
	return func(cfg *driverConfig) {
		if timeout > 0 {
			cfg.publishTimeout = timeout
		}
	}
}

// WithErrorHandler receives decode and publish failures.
func WithErrorHandler(handler func(context.Context, error)) DriverOption {
	return func(cfg *driverConfig) {
		if handler != nil {
			cfg.onAsyncError = handler
		}
	}
}

// Driver adapts Telegram updates into protocol events.
type Driver struct {
	cfg     driverConfig
	source  UpdateSource
	decoder Decoder
}

// NewDriver creates a Telegram driver.
func NewDriver(source UpdateSource, decoder Decoder, options ...DriverOption) (*Driver, error) {
	if source == nil {
		return nil, fmt.Errorf("new telegram driver: nil source")
	}
	if decoder == nil {
		return nil, fmt.Errorf("new telegram driver: nil decoder")
	}

	cfg := driverConfig{
		name:           DriverType,
		publishTimeout: defaultPublishTimeout,
		onAsyncError:   func(context.Context, error) {},
	}
	for _, option := range options {
		option(&cfg)
	}

	return &Driver{cfg: cfg, source: source, decoder: decoder}, nil
}

// Name returns the stable driver identifier.
func (d *Driver) Name() string {
	return d.cfg.name
}

// Start consumes Telegram updates and publishes events until ctx ends.
//
// A single update that fails to decode or publish is reported through the
// error handler and skipped; it never stops the update loop.
func (d *Driver) Start(ctx context.Context, publisher paimon.EventPublisher) error {
	if publisher == nil {
		return fmt.Errorf("start telegram driver: nil publisher")
	}

	err := d.source.Consume(ctx, func(handlerCtx context.Context, update Update) error {
		if err := d.handleUpdate(handlerCtx, update, publisher); err != nil {
			d.cfg.onAsyncError(handlerCtx, err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return fmt.Errorf("start telegram driver: consume updates: %w", err)
	}

	return nil
}

func (d *Driver) handleUpdate(ctx context.Context, update Update, publisher paimon.EventPublisher) error {
	event, err := d.decodeSafely(ctx, update)
	if err != nil {
		return fmt.Errorf("handle update %s: %w", update.Type, err)
	}
	event.Source = paimon.EventSource{Platform: DriverPlatform, ID: d.cfg.name}

	publishCtx, cancel := context.WithTimeout(ctx, d.cfg.publishTimeout)
	defer cancel()

	if err := publisher.Publish(publishCtx, event); err != nil {
		return fmt.Errorf("handle update %s publish: %w", update.Type, err)
	}

	return nil
}

func (d *Driver) decodeSafely(ctx context.Context, update Update) (decoded *paimon.Event, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			decoded = nil
			err = fmt.Errorf("decode telegram update %s panic: %v", update.Type, recovered)
		}
	}()

	decoded, err = d.decoder.Decode(ctx, update)
	if err != nil {
		return nil, fmt.Errorf("decode telegram update %s: %w", update.Type, err)
	}
	if decoded == nil {
		return nil, fmt.Errorf("decode telegram update %s: nil event", update.Type)
	}

	return decoded, nil
}

// Shutdown is a no-op; the gotd client stops with the Start context.
func (d *Driver) Shutdown(context.Context) error {
	return nil
}
