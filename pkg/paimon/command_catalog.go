package paimon

import "context"

// ServiceCommandCatalog is the service registry key for command discovery.
const ServiceCommandCatalog = "paimon.command_catalog"

// RegisteredCommand pairs a command with the module that owns it.
type RegisteredCommand struct {
	ModuleName string
	Command    CommandSpec
}

// CommandCatalog lists registered commands. Implementations return copies
// and are safe for concurrent use.
type CommandCatalog interface {
	ListCommands(ctx context.Context) ([]RegisteredCommand, error)
}
