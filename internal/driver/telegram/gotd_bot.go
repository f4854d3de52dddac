package telegram

import (
	"context"
	"fmt"
)

// GotdClient abstracts an authorized gotd session.
type GotdClient interface {
	// Run connects, authorizes and executes fn within the session.
	Run(ctx context.Context, fn func(runCtx context.Context) error) error
}

// GotdUpdateMapper maps flattened gotd updates into adapter DTOs.
type GotdUpdateMapper interface {
	// Map converts one envelope; accepted is false for skipped updates.
	Map(ctx context.Context, envelope gotdUpdateEnvelope) (update Update, accepted bool, err error)
}

// GotdBotSource wires a gotd bot session into UpdateSource.
type GotdBotSource struct {
	client  GotdClient
	updates <-chan gotdUpdateEnvelope
	mapper  GotdUpdateMapper
	onSkip  func(context.Context, error)
}

// NewGotdBotSource creates a source reading updates from stream while client
// runs. onSkip receives per-update mapping failures; nil ignores them.
func NewGotdBotSource(
	client GotdClient,
	stream *GotdUpdateChannel,
	mapper GotdUpdateMapper,
	onSkip func(context.Context, error),
) (*GotdBotSource, error) {
	if client == nil {
		return nil, fmt.Errorf("new gotd bot source: nil client")
	}
	if stream == nil {
		return nil, fmt.Errorf("new gotd bot source: nil stream")
	}
	if mapper == nil {
		return nil, fmt.Errorf("new gotd bot source: nil mapper")
	}
	if onSkip == nil {
		onSkip = func(context.Context, error) {}
	}

	return &GotdBotSource{client: client, updates: stream.Updates(), mapper: mapper, onSkip: onSkip}, nil
}

// Consume runs the gotd session and forwards mapped updates to handler.
func (s *GotdBotSource) Consume(ctx context.Context, handler UpdateHandler) error {
	if handler == nil {
		return fmt.Errorf("consume gotd updates: nil handler")
	}

	err := s.client.Run(ctx, func(runCtx context.Context) error {
		for {
			select {
			case <-runCtx.Done():
				return nil
			case envelope := <-s.updates:
				mapped, accepted, err := s.mapSafely(runCtx, envelope)
				if err != nil {
					s.onSkip(runCtx, err)
					continue
				}
				if !accepted {
					continue
				}
				if err := handler(runCtx, mapped); err != nil {
					return fmt.Errorf("consume gotd update %s: %w", mapped.Type, err)
				}
			}
		}
	})
	if err != nil {
		return fmt.Errorf("consume gotd updates: %w", err)
	}

	return nil
}

func (s *GotdBotSource) mapSafely(ctx context.Context, envelope gotdUpdateEnvelope) (mapped Update, accepted bool, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("map gotd update %s panic: %v", envelope.updateClass, recovered)
		}
	}()

	mapped, accepted, err = s.mapper.Map(ctx, envelope)
	if err != nil {
		return Update{}, false, fmt.Errorf("map gotd update %s: %w", envelope.updateClass, err)
	}

	return mapped, accepted, nil
}
