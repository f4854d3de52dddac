package kernel

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"ex-paimon/pkg/paimon"
)

type commandRegistration struct {
	moduleName string
	spec       paimon.CommandSpec
}

// registerCommands claims every command name for moduleName, or none.
func (k *Kernel) registerCommands(moduleName string, commands []paimon.CommandSpec) error {
	if len(commands) == 0 {
		return nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	for _, command := range commands {
		key := commandKey(command.Name)
		if existing, taken := k.commands[key]; taken {
			return fmt.Errorf("register command /%s for module %s: already registered by module %s",
				key, moduleName, existing.moduleName)
		}
	}
	for _, command := range commands {
		k.commands[commandKey(command.Name)] = commandRegistration{
			moduleName: moduleName,
			spec:       cloneCommandSpec(command),
		}
	}

	return nil
}

func (k *Kernel) unregisterCommands(moduleName string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for key, registration := range k.commands {
		if registration.moduleName == moduleName {
			delete(k.commands, key)
		}
	}
}

func (k *Kernel) lookupCommand(name string) (paimon.CommandSpec, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	registration, exists := k.commands[commandKey(name)]
	if !exists {
		return paimon.CommandSpec{}, false
	}

	return cloneCommandSpec(registration.spec), true
}

// commandCatalog serves paimon.ServiceCommandCatalog from the kernel table.
type commandCatalog struct {
	kernel *Kernel
}

// ListCommands returns registrations sorted by command name.
func (c *commandCatalog) ListCommands(ctx context.Context) ([]paimon.RegisteredCommand, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}

	c.kernel.mu.RLock()
	commands := make([]paimon.RegisteredCommand, 0, len(c.kernel.commands))
	for _, registration := range c.kernel.commands {
		commands = append(commands, paimon.RegisteredCommand{
			ModuleName: registration.moduleName,
			Command:    cloneCommandSpec(registration.spec),
		})
	}
	c.kernel.mu.RUnlock()

	slices.SortFunc(commands, func(a, b paimon.RegisteredCommand) int {
		return strings.Compare(a.Command.Name, b.Command.Name)
	})

	return commands, nil
}

// commandPublisher is the publisher drivers receive. It forwards every
// event to the bus and, for messages naming a registered command, follows
// up with a derived command.received event.
type commandPublisher struct {
	bus      paimon.EventPublisher
	lookup   func(name string) (paimon.CommandSpec, bool)
	services paimon.ServiceRegistry
	report   func(context.Context, string, error)
}

// Publish forwards event and derives a command event when applicable.
func (p *commandPublisher) Publish(ctx context.Context, event *paimon.Event) error {
	if event == nil {
		return fmt.Errorf("publish: nil event")
	}
	if err := p.bus.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish source event %s: %w", event.Kind, err)
	}
	if event.Kind != paimon.EventKindMessageCreated || event.Message == nil || event.Actor.IsBot {
		return nil
	}

	candidate, matched, parseErr := paimon.ParseCommandCandidate(event.Message.Text)
	if !matched || !addressedToUs(candidate, event) {
		return nil
	}
	spec, registered := p.lookup(candidate.Name)
	if !registered {
		return nil
	}
	if parseErr != nil {
		p.replyUsage(ctx, event, spec, parseErr)
		return nil
	}
	invocation, err := paimon.BindCommand(candidate, spec, event)
	if err != nil {
		p.replyUsage(ctx, event, spec, err)
		return nil
	}

	if err := p.bus.Publish(ctx, commandEvent(event, invocation)); err != nil {
		return fmt.Errorf("publish derived command %s: %w", invocation.Name, err)
	}

	return nil
}

// replyUsage answers a malformed invocation with the error and usage line.
func (p *commandPublisher) replyUsage(ctx context.Context, source *paimon.Event, spec paimon.CommandSpec, cause error) {
	dispatcher, err := paimon.ResolveAs[paimon.SinkDispatcher](p.services, paimon.ServiceSinkDispatcher)
	if err != nil {
		p.report(ctx, "command usage reply", err)
		return
	}
	target, err := paimon.OutboundTargetFromEvent(source)
	if err != nil {
		p.report(ctx, "command usage reply", err)
		return
	}

	_, err = dispatcher.SendMessage(ctx, paimon.SendMessageRequest{
		Target:           target,
		Text:             fmt.Sprintf("%s\nusage: %s", cause.Error(), CommandUsage(spec)),
		ReplyToMessageID: source.Message.ID,
	})
	if err != nil {
		p.report(ctx, "command usage reply", err)
	}
}

// CommandUsage renders spec as a one-line usage string.
func CommandUsage(spec paimon.CommandSpec) string {
	parts := []string{paimon.CommandPrefix + commandKey(spec.Name)}
	for _, option := range spec.Options {
		usage := option.Usage()
		if !option.Required {
			usage = "[" + usage + "]"
		}
		parts = append(parts, usage)
	}

	return strings.Join(parts, " ")
}

// addressedToUs drops "/cmd@other_bot" when the driver told us our name.
func addressedToUs(candidate paimon.CommandCandidate, event *paimon.Event) bool {
	if candidate.Mention == "" {
		return true
	}
	self := event.Metadata[paimon.MetadataBotUsername]
	return self == "" || strings.EqualFold(candidate.Mention, self)
}

func commandEvent(source *paimon.Event, invocation paimon.CommandInvocation) *paimon.Event {
	message := *source.Message
	message.Entities = slices.Clone(source.Message.Entities)
	invocation.Options = slices.Clone(invocation.Options)

	metadata := make(map[string]string, len(source.Metadata))
	for key, value := range source.Metadata {
		metadata[key] = value
	}

	return &paimon.Event{
		ID:           uuid.NewString(),
		Kind:         paimon.EventKindCommandReceived,
		OccurredAt:   source.OccurredAt,
		Source:       source.Source,
		Conversation: source.Conversation,
		Actor:        source.Actor,
		Message:      &message,
		Command:      &invocation,
		Metadata:     metadata,
	}
}

func commandKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func cloneCommandSpec(spec paimon.CommandSpec) paimon.CommandSpec {
	spec.Name = commandKey(spec.Name)
	spec.Options = slices.Clone(spec.Options)
	return spec
}

var _ paimon.CommandCatalog = (*commandCatalog)(nil)
