// Package help answers /help with a paged command reference.
package help

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"ex-paimon/pkg/navigation"
	"ex-paimon/pkg/paimon"
)

const (
	helpCommandName = "help"

	// pageBudget is the rune budget of one help page.
	pageBudget = 1000
	pageTitle  = "Available commands"
)

// Module pages through the command catalog when it receives /help.
type Module struct {
	navigator      paimon.Navigator
	dispatcher     paimon.SinkDispatcher
	commandCatalog paimon.CommandCatalog
}

// New creates a help module with default configuration.
func New() *Module {
	return &Module{}
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "help"
}

// Spec declares interest in help command events.
func (m *Module) Spec() paimon.ModuleSpec {
	return paimon.ModuleSpec{
		Handlers: []paimon.ModuleHandler{
			{
				Capability: paimon.Capability{
					Name:        "help-command-handler",
					Description: "pages through registered command help for /help",
					Interest: paimon.InterestSet{
						Kinds:          []paimon.EventKind{paimon.EventKindCommandReceived},
						RequireCommand: true,
						CommandNames:   []string{helpCommandName},
					},
					RequiredServices: []string{
						paimon.ServiceNavigator,
						paimon.ServiceSinkDispatcher,
						paimon.ServiceCommandCatalog,
					},
				},
				Subscription: paimon.NewDefaultSubscriptionSpec("help-commands"),
				Handler:      m.handleCommand,
			},
		},
		Commands: []paimon.CommandSpec{
			{
				Name:        helpCommandName,
				Description: "show all available commands, or open on one: /help [command]",
			},
		},
	}
}

// OnRegister resolves dependencies required by this module.
func (m *Module) OnRegister(_ context.Context, runtime paimon.ModuleRuntime) error {
	navigator, err := paimon.ResolveAs[paimon.Navigator](runtime.Services(), paimon.ServiceNavigator)
	if err != nil {
		return fmt.Errorf("help resolve navigator: %w", err)
	}
	dispatcher, err := paimon.ResolveAs[paimon.SinkDispatcher](
		runtime.Services(),
		paimon.ServiceSinkDispatcher,
	)
	if err != nil {
		return fmt.Errorf("help resolve outbound dispatcher: %w", err)
	}
	commandCatalog, err := paimon.ResolveAs[paimon.CommandCatalog](
		runtime.Services(),
		paimon.ServiceCommandCatalog,
	)
	if err != nil {
		return fmt.Errorf("help resolve command catalog: %w", err)
	}

	m.navigator = navigator
	m.dispatcher = dispatcher
	m.commandCatalog = commandCatalog

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(_ context.Context) error {
	return nil
}

// OnShutdown stops the module lifecycle.
func (m *Module) OnShutdown(_ context.Context) error {
	return nil
}

func (m *Module) handleCommand(ctx context.Context, event *paimon.Event) error {
	if event == nil || event.Command == nil || event.Message == nil {
		return nil
	}
	if event.Kind != paimon.EventKindCommandReceived {
		return nil
	}
	if !strings.EqualFold(event.Command.Name, helpCommandName) {
		return nil
	}
	if m.navigator == nil || m.dispatcher == nil {
		return fmt.Errorf("help handle command: outbound services not configured")
	}
	if m.commandCatalog == nil {
		return fmt.Errorf("help handle command: command catalog not configured")
	}

	commands, err := m.commandCatalog.ListCommands(ctx)
	if err != nil {
		return fmt.Errorf("help list commands: %w", err)
	}
	pages, firstPage := renderHelp(commands)

	start := 0
	if query := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(event.Command.Value, paimon.CommandPrefix))); query != "" {
		page, ok := firstPage[query]
		if !ok {
			return m.reply(ctx, event, fmt.Sprintf("Unknown command %s%s. Use %s%s to list every command.",
				paimon.CommandPrefix, query, paimon.CommandPrefix, helpCommandName))
		}
		start = page
	}

	if _, err := m.navigator.Navigate(ctx, paimon.NavigateRequest{
		Source: event,
		Bookmarks: []navigation.Bookmark{{
			Name:      "commands",
			Provider:  navigation.TextPages(pageTitle, pages),
			PageCount: len(pages),
		}},
		Start: navigation.StartPage(start),
	}); err != nil {
		return fmt.Errorf("help navigate: %w", err)
	}

	return nil
}

func (m *Module) reply(ctx context.Context, event *paimon.Event, text string) error {
	target, err := paimon.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("help derive outbound target: %w", err)
	}
	_, err = m.dispatcher.SendMessage(ctx, paimon.SendMessageRequest{
		Target:           target,
		Text:             text,
		ReplyToMessageID: event.Message.ID,
	})
	if err != nil {
		return fmt.Errorf("help send reply: %w", err)
	}

	return nil
}

// renderHelp packs one block per command into pages and reports the page
// holding each command label.
func renderHelp(commands []paimon.RegisteredCommand) ([]string, map[string]int) {
	if len(commands) == 0 {
		return []string{"(none)"}, map[string]int{}
	}

	sorted := append([]paimon.RegisteredCommand(nil), commands...)
	sort.Slice(sorted, func(i, j int) bool {
		left := commandName(sorted[i].Command)
		right := commandName(sorted[j].Command)
		if left == right {
			return sorted[i].ModuleName < sorted[j].ModuleName
		}
		return left < right
	})

	blocks := make([]string, 0, len(sorted))
	for _, command := range sorted {
		blocks = append(blocks, renderCommand(command))
	}
	pages := navigation.PartitionWith(blocks, pageBudget, "\n\n")

	// Packing is greedy, so the pages of a prefix are a prefix of the pages.
	firstPage := make(map[string]int, len(sorted))
	for index, command := range sorted {
		name := commandName(command.Command)
		if _, exists := firstPage[name]; !exists {
			firstPage[name] = len(navigation.PartitionWith(blocks[:index+1], pageBudget, "\n\n")) - 1
		}
	}

	return pages, firstPage
}

func renderCommand(command paimon.RegisteredCommand) string {
	description := strings.TrimSpace(command.Command.Description)
	moduleName := strings.TrimSpace(command.ModuleName)
	if moduleName == "" {
		moduleName = "unknown"
	}

	lines := make([]string, 0, 4)
	lines = append(lines, commandLabel(command.Command))
	if len(command.Command.Options) != 0 {
		lines = append(lines, fmt.Sprintf("usage: %s", renderCommandOptions(command.Command.Options)))
	}
	if description != "" {
		lines = append(lines, description)
	}
	lines = append(lines, fmt.Sprintf("(%s)", moduleName))

	return strings.Join(lines, "\n")
}

func commandName(command paimon.CommandSpec) string {
	return strings.ToLower(strings.TrimSpace(command.Name))
}

func commandLabel(command paimon.CommandSpec) string {
	return paimon.CommandPrefix + commandName(command)
}

func renderCommandOptions(options []paimon.CommandOptionSpec) string {
	sorted := append([]paimon.CommandOptionSpec(nil), options...)
	sort.Slice(sorted, func(i, j int) bool {
		return optionSortKey(sorted[i]) < optionSortKey(sorted[j])
	})

	descriptors := make([]string, 0, len(sorted))
	for _, option := range sorted {
		descriptor := renderCommandOption(option)
		if descriptor != "" {
			descriptors = append(descriptors, descriptor)
		}
	}
	if len(descriptors) == 0 {
		return "(none)"
	}

	return strings.Join(descriptors, ", ")
}

func optionSortKey(option paimon.CommandOptionSpec) string {
	return strings.ToLower(strings.TrimSpace(option.Name)) + "|" + strings.ToLower(strings.TrimSpace(option.Alias))
}

func renderCommandOption(option paimon.CommandOptionSpec) string {
	name := strings.ToLower(strings.TrimSpace(option.Name))
	alias := strings.ToLower(strings.TrimSpace(option.Alias))

	var descriptor string
	switch {
	case name != "" && alias != "":
		descriptor = fmt.Sprintf("--%s|-%s", name, alias)
	case name != "":
		descriptor = fmt.Sprintf("--%s", name)
	case alias != "":
		descriptor = fmt.Sprintf("-%s", alias)
	default:
		return ""
	}

	if option.HasValue {
		descriptor += " <value>"
	}
	if option.Required {
		descriptor += " (required)"
	}

	return descriptor
}

var (
	_ paimon.Module          = (*Module)(nil)
	_ paimon.ModuleRegistrar = (*Module)(nil)
)
