package paimon

import (
	"slices"
	"strings"
)

// Capability describes what a module processes and which services it needs.
type Capability struct {
	Name             string
	Description      string
	Interest         InterestSet
	RequiredServices []string
}

// InterestSet selects events for a subscription.
type InterestSet struct {
	Kinds []EventKind
	// Sources restricts delivery to events from these drivers.
	Sources []EventSource
	// RequireReaction drops events without a reaction payload.
	RequireReaction bool
	// RequireCommand drops events without a command payload.
	RequireCommand bool
	// CommandNames restricts command events to these names.
	CommandNames []string
}

// Matches reports whether event satisfies the interest set.
func (i InterestSet) Matches(event *Event) bool {
	if event == nil {
		return false
	}
	if len(i.Kinds) > 0 && !slices.Contains(i.Kinds, event.Kind) {
		return false
	}
	if len(i.Sources) > 0 && !matchesSource(i.Sources, event.Source) {
		return false
	}
	if i.RequireReaction && event.Reaction == nil {
		return false
	}
	if i.RequireCommand && event.Command == nil {
		return false
	}
	if len(i.CommandNames) > 0 {
		if event.Command == nil || !containsFold(i.CommandNames, event.Command.Name) {
			return false
		}
	}

	return true
}

// Allows reports whether this interest set covers filter, meaning every
// event filter matches is also matched by i.
func (i InterestSet) Allows(filter InterestSet) bool {
	if len(i.Kinds) > 0 && (len(filter.Kinds) == 0 || !allIncluded(filter.Kinds, i.Kinds)) {
		return false
	}
	if i.RequireReaction && !filter.RequireReaction {
		return false
	}
	if i.RequireCommand && !filter.RequireCommand {
		return false
	}
	if len(i.CommandNames) > 0 {
		if len(filter.CommandNames) == 0 {
			return false
		}
		for _, name := range filter.CommandNames {
			if !containsFold(i.CommandNames, name) {
				return false
			}
		}
	}

	return true
}

func matchesSource(sources []EventSource, source EventSource) bool {
	for _, candidate := range sources {
		if candidate.Platform != "" && candidate.Platform != source.Platform {
			continue
		}
		if candidate.ID != "" && candidate.ID != source.ID {
			continue
		}
		return true
	}

	return false
}

func allIncluded(subset []EventKind, allowed []EventKind) bool {
	for _, item := range subset {
		if !slices.Contains(allowed, item) {
			return false
		}
	}

	return true
}

func containsFold(values []string, target string) bool {
	for _, value := range values {
		if strings.EqualFold(strings.TrimSpace(value), strings.TrimSpace(target)) {
			return true
		}
	}

	return false
}
