package driver

import (
	"context"
	"fmt"
	"log/slog"

	"ex-paimon/internal/driver/telegram"
)

// NewBuiltinRegistry knows the drivers paimon ships with. Telegram is the
// only one; its sessions both receive reactions and edit paged replies.
func NewBuiltinRegistry() (*Registry, error) {
	return NewRegistry([]Descriptor{
		{Type: telegram.DriverType, Platform: telegram.DriverPlatform, Builder: buildTelegram},
	})
}

func buildTelegram(_ context.Context, definition Definition, logger *slog.Logger) (Runtime, error) {
	source, bot, sink, err := telegram.BuildRuntimeFromConfig(definition.Name, logger, definition.Config)
	if err != nil {
		return Runtime{}, fmt.Errorf("telegram driver %s: %w", definition.Name, err)
	}

	return Runtime{Source: source, Driver: bot, SinkDispatcher: sink}, nil
}
