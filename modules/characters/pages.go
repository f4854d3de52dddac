package characters

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"ex-paimon/internal/gamedata"
	"ex-paimon/pkg/navigation"
)

// Section keys of a character session.
const (
	sectionOverview       navigation.SectionKey = "overview"
	sectionAscension      navigation.SectionKey = "ascension"
	sectionSkills         navigation.SectionKey = "skills"
	sectionConstellations navigation.SectionKey = "constellations"
	sectionGallery        navigation.SectionKey = "gallery"
)

// Fixed page numbers below the skill sections.
const (
	pageOverview = iota
	pageProfile
	pageAscension
	pageTalentCosts
	skillsBase
)

// Highest talent level shown, and the level where the low and high tables
// split. Both tables include the split level.
const (
	maxTalentLevel   = 13
	talentSplitLevel = 6
)

// Bookmark symbols. They are drawn from the platform's standard reaction
// set so every bookmark can be pressed.
const (
	symbolOverview       = "✍"
	symbolAscension      = "💯"
	symbolSkills         = "🔥"
	symbolConstellations = "🌚"
	symbolGallery        = "😍"
)

// elementSymbols marks the skill groups of multi-element characters.
var elementSymbols = map[string]string{
	"anemo":   "🕊",
	"geo":     "🗿",
	"electro": "⚡",
	"pyro":    "🔥",
	"hydro":   "🐳",
	"cryo":    "☃",
	"dendro":  "🎄",
}

// elementSymbol picks the reaction of element, or a spare one when the
// element has none or its reaction is taken.
func elementSymbol(element string, used map[string]bool) string {
	if symbol, ok := elementSymbols[strings.ToLower(element)]; ok && !used[symbol] {
		return symbol
	}
	for _, symbol := range []string{"👾", "🦄", "🐳", "🍓", "🌭"} {
		if !used[symbol] {
			return symbol
		}
	}

	return ""
}

// characterSession is the paged view of one character.
type characterSession struct {
	pages    []navigation.Content
	index    navigation.SectionIndex
	symbols  map[navigation.SectionKey]string
	elements map[string]navigation.SectionKey

	// constPage and constCount locate the first constellation group.
	constPage  int
	constCount int
}

func (s characterSession) bookmarks() []navigation.Bookmark {
	return navigation.BookmarksFromIndex(s.index, len(s.pages), navigation.StaticPages(s.pages...), s.symbols)
}

func elementKey(element string) navigation.SectionKey {
	return navigation.SectionKey("element:" + strings.ToLower(element))
}

// groupPages counts the pages of one skill group ahead of its
// constellations: the talents, the burst, then the passives.
func groupPages(skills gamedata.SkillSet) int {
	return len(skills.Talents) + 1 + len(skills.Passives)
}

// buildCharacterSession lays out the pages and the section index together
// so offsets always match the rendered pages. low selects the lower talent
// level table.
func buildCharacterSession(store *gamedata.Store, character gamedata.Character, low bool) characterSession {
	session := characterSession{
		symbols: map[navigation.SectionKey]string{
			sectionOverview:       symbolOverview,
			sectionAscension:      symbolAscension,
			sectionConstellations: symbolConstellations,
			sectionGallery:        symbolGallery,
		},
		elements: make(map[string]navigation.SectionKey),
	}
	session.pages = append(session.pages,
		overviewPage(store, character),
		profilePage(character),
		ascensionPage(character),
		talentCostsPage(character),
	)

	var (
		groups     navigation.SectionIndex
		skillsEnd  int
		lastConsts int
	)
	single := len(character.Skills) == 1
	if single {
		skills := character.Skills[0]
		session.symbols[sectionSkills] = symbolSkills
		session.elements[strings.ToLower(skills.Element())] = sectionSkills
		groups, skillsEnd = navigation.BuildSectionIndex([]navigation.Section{
			{Key: sectionSkills, Items: groupPages(skills)},
			{Key: sectionConstellations, Items: len(skills.Constellations)},
		}, skillsBase, 0, navigation.GroupSingle)
		session.constPage, _ = groups.Offset(sectionConstellations)
	} else {
		used := map[string]bool{
			symbolOverview:       true,
			symbolAscension:      true,
			symbolConstellations: true,
			symbolGallery:        true,
		}
		sections := make([]navigation.Section, 0, len(character.Skills))
		for _, skills := range character.Skills {
			element := strings.ToLower(skills.Element())
			key := elementKey(skills.Element())
			if _, seen := session.elements[element]; !seen {
				session.elements[element] = key
			}
			if _, seen := session.symbols[key]; !seen {
				symbol := elementSymbol(element, used)
				used[symbol] = true
				session.symbols[key] = symbol
			}
			sections = append(sections, navigation.Section{
				Key:   key,
				Items: len(skills.Talents) + len(skills.Passives) + len(skills.Constellations),
			})
		}
		// The extra group page is the burst.
		groups, skillsEnd = navigation.BuildSectionIndex(sections, skillsBase, 1, navigation.GroupRepeated)
		if len(character.Skills) > 0 {
			session.constPage = skillsBase + groupPages(character.Skills[0])
			last := character.Skills[len(character.Skills)-1]
			lastConsts = skillsEnd - len(last.Constellations)
		}
	}
	if len(character.Skills) > 0 {
		session.constCount = len(character.Skills[0].Constellations)
	}

	for _, skills := range character.Skills {
		for _, talent := range skills.Talents {
			session.pages = append(session.pages, skillPage(character, talent, "Talent", low))
		}
		session.pages = append(session.pages, skillPage(character, skills.Burst, "Elemental Burst", low))
		for _, passive := range skills.Passives {
			session.pages = append(session.pages, passivePage(character, passive))
		}
		for level, constellation := range skills.Constellations {
			session.pages = append(session.pages, constellationPage(character, level+1, constellation))
		}
	}

	builder := navigation.NewIndexBuilder(skillsEnd).
		Pin(sectionOverview, pageOverview).
		Pin(sectionAscension, pageAscension).
		Merge(groups)
	if !single && len(character.Skills) > 0 {
		// Jumping to the constellations lands on the last group.
		builder.Pin(sectionConstellations, lastConsts)
	}
	builder.Section(sectionGallery, len(character.Images))
	for position, image := range character.Images {
		session.pages = append(session.pages, navigation.Content{
			Title:    character.Name + " · Gallery",
			Body:     fmt.Sprintf("Artwork %d of %d", position+1, len(character.Images)),
			ImageURL: image,
		})
	}

	session.index, _ = builder.Build()
	return session
}

func stars(count int) string {
	return strings.Repeat("★", max(count, 0))
}

func overviewPage(store *gamedata.Store, character gamedata.Character) navigation.Content {
	elements := make([]string, 0, len(character.Skills))
	for _, element := range character.Elements() {
		elements = append(elements, store.EmojiWithName(element))
	}
	if len(elements) == 0 {
		elements = append(elements, store.EmojiWithName(character.Meta.Element))
	}

	return navigation.Content{
		Title: character.Name + " " + stars(character.Star),
		Body:  character.Description,
		Fields: []navigation.Field{
			{Name: "Element", Value: strings.Join(elements, ", "), Inline: true},
			{Name: "Weapon", Value: store.EmojiWithName(character.WeaponType), Inline: true},
		},
		ImageURL: character.Icon,
	}
}

func profilePage(character gamedata.Character) navigation.Content {
	meta := character.Meta
	fields := make([]navigation.Field, 0, 6)
	for _, field := range []navigation.Field{
		{Name: "Title", Value: meta.Title, Inline: true},
		{Name: "Association", Value: meta.Association, Inline: true},
		{Name: "Affiliation", Value: meta.Affiliation, Inline: true},
		{Name: "Constellation", Value: meta.Constellation, Inline: true},
	} {
		if field.Value != "" {
			fields = append(fields, field)
		}
	}
	if meta.BirthMonth >= 1 && meta.BirthMonth <= 12 && meta.BirthDay > 0 {
		fields = append(fields, navigation.Field{
			Name:   "Birthday",
			Value:  fmt.Sprintf("%s %d", time.Month(meta.BirthMonth), meta.BirthDay),
			Inline: true,
		})
	}

	var actors []string
	for _, actor := range []struct{ language, name string }{
		{language: "CN", name: meta.VoiceActors.Chinese},
		{language: "JP", name: meta.VoiceActors.Japanese},
		{language: "EN", name: meta.VoiceActors.English},
		{language: "KR", name: meta.VoiceActors.Korean},
	} {
		if actor.name != "" {
			actors = append(actors, actor.language+": "+actor.name)
		}
	}
	if len(actors) > 0 {
		fields = append(fields, navigation.Field{Name: "Voice Actors", Value: strings.Join(actors, "\n")})
	}

	return navigation.Content{
		Title:  character.Name + " · Profile",
		Body:   meta.Detail,
		Fields: fields,
	}
}

func ascensionPage(character gamedata.Character) navigation.Content {
	base := character.Base
	body := strings.Join([]string{
		"Base HP: " + gamedata.FormatStat(base.HP),
		"Base ATK: " + gamedata.FormatStat(base.Attack),
		"Base DEF: " + gamedata.FormatStat(base.Defense),
		"CRIT Rate: " + gamedata.FormatPercent(base.CritRate),
		"CRIT DMG: " + gamedata.FormatPercent(base.CritDamage),
	}, "\n")

	fields := make([]navigation.Field, 0, len(character.Ascensions))
	for _, ascension := range character.Ascensions {
		lines := make([]string, 0, len(ascension.StatsUp)+1)
		for _, bonus := range ascension.StatsUp {
			lines = append(lines, bonus.Stat+" "+gamedata.FormatStat(bonus.Value))
		}
		lines = append(lines, "Cost: "+strings.ReplaceAll(gamedata.FormatCost(ascension.Cost), "\n", ", "))
		fields = append(fields, navigation.Field{
			Name:  fmt.Sprintf("Phase %d (Lv. %d)", ascension.Level, ascension.MaxLevel),
			Value: strings.Join(lines, "\n"),
		})
	}

	return navigation.Content{
		Title:  character.Name + " · Ascension",
		Body:   body,
		Fields: fields,
	}
}

// talentCostsPage lists the level-up bills shared by every talent.
func talentCostsPage(character gamedata.Character) navigation.Content {
	content := navigation.Content{Title: character.Name + " · Talent Upgrades"}

	var costs []gamedata.Cost
	if len(character.Skills) > 0 {
		costs = character.Skills[0].Burst.Costs
		if len(character.Skills[0].Talents) > 0 && len(character.Skills[0].Talents[0].Costs) > 0 {
			costs = character.Skills[0].Talents[0].Costs
		}
	}
	if len(costs) == 0 {
		content.Body = "No upgrade materials recorded."
		return content
	}

	total := gamedata.Cost{}
	for level, cost := range costs {
		content.Fields = append(content.Fields, navigation.Field{
			Name:  "Lv. " + strconv.Itoa(level+2),
			Value: gamedata.FormatCost(cost),
		})
		total.Mora += cost.Mora
	}
	content.Body = "Total per talent: " + gamedata.FormatCount(total.Mora) + " Mora"

	return content
}

func skillPage(character gamedata.Character, skill gamedata.Skill, kind string, low bool) navigation.Content {
	fields := make([]navigation.Field, 0, len(skill.Table)+2)
	if skill.Charges > 1 {
		fields = append(fields, navigation.Field{Name: "Charges", Value: strconv.Itoa(skill.Charges), Inline: true})
	}
	leveled := false
	for _, row := range skill.Table {
		leveled = leveled || row.Scales()
		fields = append(fields, navigation.Field{Name: row.Name, Value: talentValues(row, low)})
	}
	if leveled {
		fields = append(fields, navigation.Field{Name: "Levels", Value: levelsHint(character.Name, low)})
	}

	return navigation.Content{
		Title:  fmt.Sprintf("%s · %s: %s", character.Name, kind, skill.Name),
		Body:   skill.Description,
		Fields: fields,
	}
}

func levelsHint(name string, low bool) string {
	if low {
		return fmt.Sprintf("Use /%s %s to show higher levels", commandName, name)
	}
	return fmt.Sprintf("Use /%s %s --low to show lower levels", commandName, name)
}

// talentValues lists levels 1 to 6 when low is set, and 6 to 13 otherwise.
func talentValues(row gamedata.TalentRow, low bool) string {
	if len(row.Values) == 0 {
		return "-"
	}
	if !row.Scales() {
		return row.Values[0]
	}

	from, to := talentSplitLevel, maxTalentLevel
	if low {
		from, to = 1, talentSplitLevel
	}
	columns := make([]string, 0, to-from+1)
	for level := from; level <= to && level <= len(row.Values); level++ {
		columns = append(columns, fmt.Sprintf("Lv.%d %s", level, row.Values[level-1]))
	}

	return strings.Join(columns, " · ")
}

func passivePage(character gamedata.Character, passive gamedata.Passive) navigation.Content {
	unlock := "Unlocked by default"
	if passive.MinAscension > 0 {
		unlock = fmt.Sprintf("Unlocks at Ascension %d", passive.MinAscension)
	}

	return navigation.Content{
		Title:  fmt.Sprintf("%s · Passive: %s", character.Name, passive.Name),
		Body:   passive.Description,
		Fields: []navigation.Field{{Name: "Unlock", Value: unlock, Inline: true}},
	}
}

func constellationPage(character gamedata.Character, level int, constellation gamedata.Constellation) navigation.Content {
	return navigation.Content{
		Title:    fmt.Sprintf("%s · C%d: %s", character.Name, level, constellation.Name),
		Body:     constellation.Description,
		ImageURL: constellation.Icon,
	}
}

// listPages renders the roster, newest additions first.
func listPages(store *gamedata.Store, characters []gamedata.Character, budget int) []string {
	lines := make([]string, 0, len(characters))
	for position := len(characters) - 1; position >= 0; position-- {
		character := characters[position]
		lines = append(lines, fmt.Sprintf("%s %s · %s %s",
			store.Emoji(character.Meta.Element),
			character.Name,
			stars(character.Star),
			store.EmojiWithName(character.WeaponType),
		))
	}

	return navigation.Partition(lines, budget)
}
