package events

import (
	"slices"
	"time"

	"ex-paimon/internal/gamedata"
	"ex-paimon/pkg/navigation"
)

const (
	// summaryBudget is the rune budget of one summary field.
	summaryBudget = 800
	// moreMarker closes every summary field continued on the next page.
	moreMarker = "See next page for more"

	fieldCurrent  = "Current Events"
	fieldUpcoming = "Upcoming Events"
)

// schedule splits events at now. Ongoing is ordered by end date with
// open-ended events last; upcoming by start date with undated events last.
type schedule struct {
	ongoing  []gamedata.Event
	upcoming []gamedata.Event
}

func buildSchedule(events []gamedata.Event, now time.Time) schedule {
	var plan schedule
	for _, event := range events {
		switch {
		case event.Ongoing(now):
			plan.ongoing = append(plan.ongoing, event)
		case event.Upcoming(now):
			plan.upcoming = append(plan.upcoming, event)
		}
	}

	slices.SortStableFunc(plan.ongoing, func(a, b gamedata.Event) int {
		return compareOptionalTimes(a.EndAt, b.EndAt)
	})
	slices.SortStableFunc(plan.upcoming, func(a, b gamedata.Event) int {
		return compareOptionalTimes(a.StartAt, b.StartAt)
	})

	return plan
}

// compareOptionalTimes orders present times ascending and missing ones last.
func compareOptionalTimes(a, b func() (time.Time, bool)) int {
	left, leftOK := a()
	right, rightOK := b()
	switch {
	case !leftOK && !rightOK:
		return 0
	case !leftOK:
		return 1
	case !rightOK:
		return -1
	default:
		return left.Compare(right)
	}
}

func timezoneSuffix(event gamedata.Event) string {
	if event.Timezone == "" {
		return ""
	}

	return " (GMT" + event.Timezone + ")"
}

func ongoingLine(event gamedata.Event) string {
	if event.End == "" {
		return "Ongoing: " + event.Name
	}

	return "Ending on " + event.End + timezoneSuffix(event) + ": " + event.Name
}

func upcomingLine(event gamedata.Event) string {
	verb := "Starting on "
	if event.Type == "Unlock" {
		verb = "Unlocks at "
	}
	prediction := ""
	if event.Prediction {
		prediction = "(prediction) "
	}
	start := event.Start
	if start == "" {
		start = "????"
	}

	return verb + prediction + start + timezoneSuffix(event) + ": " + event.Name
}

// summaryPages packs both lists into pages of at most summaryBudget runes
// per field. The last current-events chunk shares its page with the first
// upcoming chunk.
func summaryPages(plan schedule) []navigation.Content {
	current := packLines(plan.ongoing, ongoingLine)
	upcoming := packLines(plan.upcoming, upcomingLine)

	var pages []navigation.Content
	page := navigation.Content{}
	for index, chunk := range current {
		if index < len(current)-1 {
			page.Fields = append(page.Fields, navigation.Field{Name: fieldCurrent, Value: chunk + "\n" + moreMarker})
			pages = append(pages, page)
			page = navigation.Content{}
			continue
		}
		page.Fields = append(page.Fields, navigation.Field{Name: fieldCurrent, Value: chunk})
	}
	if len(current) == 0 {
		page.Fields = append(page.Fields, navigation.Field{Name: fieldCurrent, Value: "None"})
	}

	for index, chunk := range upcoming {
		if index < len(upcoming)-1 {
			page.Fields = append(page.Fields, navigation.Field{Name: fieldUpcoming, Value: chunk + "\n" + moreMarker})
			pages = append(pages, page)
			page = navigation.Content{}
			continue
		}
		page.Fields = append(page.Fields, navigation.Field{Name: fieldUpcoming, Value: chunk})
	}
	if len(upcoming) == 0 {
		page.Fields = append(page.Fields, navigation.Field{Name: fieldUpcoming, Value: "None"})
	}
	pages = append(pages, page)

	for index := range pages {
		pages[index].Title = "Events"
	}

	return pages
}

func packLines(events []gamedata.Event, line func(gamedata.Event) string) []string {
	lines := make([]string, 0, len(events))
	for _, event := range events {
		lines = append(lines, line(event))
	}

	return navigation.Partition(lines, summaryBudget)
}

// eventPage renders one event in full.
func eventPage(event gamedata.Event) navigation.Content {
	content := navigation.Content{
		Title:    event.Name,
		Body:     event.Description,
		ImageURL: event.Image,
	}
	if event.Type != "" {
		content.Fields = append(content.Fields, navigation.Field{Name: "Type", Value: event.Type, Inline: true})
	}
	if event.Start != "" {
		content.Fields = append(content.Fields, navigation.Field{
			Name:   "Start",
			Value:  event.Start + timezoneSuffix(event),
			Inline: true,
		})
	}
	if event.End != "" {
		content.Fields = append(content.Fields, navigation.Field{
			Name:   "End",
			Value:  event.End + timezoneSuffix(event),
			Inline: true,
		})
	}
	if event.Reminder != "" {
		content.Fields = append(content.Fields, navigation.Field{Name: "Reminder", Value: event.Reminder, Inline: true})
	}
	if event.Link != "" {
		content.Fields = append(content.Fields, navigation.Field{Name: "Link", Value: event.Link})
	}
	if content.Body == "" && len(content.Fields) == 0 {
		content.Body = "No details yet."
	}

	return content
}

// ongoingProvider serves the ongoing list newest first, mirroring the
// end-date order so the event ending last comes first.
func ongoingProvider(ongoing []gamedata.Event) navigation.ContentProvider {
	return func(page int) (*navigation.Content, error) {
		if page < 0 || page >= len(ongoing) {
			return nil, nil
		}
		content := eventPage(ongoing[len(ongoing)-page-1])
		return &content, nil
	}
}

func upcomingProvider(upcoming []gamedata.Event) navigation.ContentProvider {
	return func(page int) (*navigation.Content, error) {
		if page < 0 || page >= len(upcoming) {
			return nil, nil
		}
		content := eventPage(upcoming[page])
		return &content, nil
	}
}
