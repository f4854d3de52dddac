// Package gamedata loads the game records the commands page through:
// characters, events and news articles.
package gamedata

import (
	"embed"
	"fmt"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var embedded embed.FS

// eventTimeLayout is the wall-clock layout of event start and end times.
const eventTimeLayout = "2006-01-02 15:04:05"

// Character is one playable character.
type Character struct {
	Name        string      `yaml:"name"`
	Star        int         `yaml:"star"`
	WeaponType  string      `yaml:"weapon_type"`
	Description string      `yaml:"description"`
	Icon        string      `yaml:"icon"`
	Meta        Meta        `yaml:"meta"`
	Base        BaseStats   `yaml:"base"`
	Ascensions  []Ascension `yaml:"ascensions"`
	// Skills holds one set per element the character can use.
	Skills []SkillSet `yaml:"skills"`
	Images []string   `yaml:"images"`
}

// Elements lists the element of every skill set, in order.
func (c Character) Elements() []string {
	elements := make([]string, 0, len(c.Skills))
	for _, skills := range c.Skills {
		elements = append(elements, skills.Element())
	}

	return elements
}

// Meta is the lore profile of a character.
type Meta struct {
	Title         string      `yaml:"title"`
	Detail        string      `yaml:"detail"`
	Association   string      `yaml:"association"`
	Affiliation   string      `yaml:"affiliation"`
	Constellation string      `yaml:"constellation"`
	Element       string      `yaml:"element"`
	BirthDay      int         `yaml:"birth_day"`
	BirthMonth    int         `yaml:"birth_month"`
	VoiceActors   VoiceActors `yaml:"voice_actors"`
}

// VoiceActors names the voice cast per language.
type VoiceActors struct {
	Chinese  string `yaml:"chinese"`
	Japanese string `yaml:"japanese"`
	English  string `yaml:"english"`
	Korean   string `yaml:"korean"`
}

// BaseStats are level 1 stats. Rates are fractions.
type BaseStats struct {
	HP         float64 `yaml:"hp"`
	Attack     float64 `yaml:"attack"`
	Defense    float64 `yaml:"defense"`
	CritRate   float64 `yaml:"crit_rate"`
	CritDamage float64 `yaml:"crit_damage"`
}

// Ascension is one ascension phase.
type Ascension struct {
	Level    int         `yaml:"level"`
	MaxLevel int         `yaml:"max_level"`
	Cost     Cost        `yaml:"cost"`
	StatsUp  []StatBonus `yaml:"stats_up"`
}

// StatBonus is a flat or fractional bonus granted by an ascension.
type StatBonus struct {
	Stat  string  `yaml:"stat"`
	Value float64 `yaml:"value"`
}

// Cost is the material bill of one upgrade.
type Cost struct {
	Mora  int        `yaml:"mora"`
	Items []CostItem `yaml:"items"`
}

// Empty reports whether the upgrade is free.
func (c Cost) Empty() bool {
	return c.Mora == 0 && len(c.Items) == 0
}

// CostItem is one material and its count.
type CostItem struct {
	Name  string `yaml:"name"`
	Count int    `yaml:"count"`
}

// SkillSet groups the abilities of one element.
type SkillSet struct {
	Talents        []Skill         `yaml:"talents"`
	Burst          Skill           `yaml:"burst"`
	Passives       []Passive       `yaml:"passives"`
	Constellations []Constellation `yaml:"constellations"`
}

// Element returns the burst element, which names the set.
func (s SkillSet) Element() string {
	return s.Burst.Type
}

// Pages counts the pages the set renders to: one per talent, the burst,
// one per passive and one per constellation.
func (s SkillSet) Pages() int {
	return len(s.Talents) + 1 + len(s.Passives) + len(s.Constellations)
}

// Skill is an active talent or burst.
type Skill struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Type        string      `yaml:"type"`
	Charges     int         `yaml:"charges"`
	Table       []TalentRow `yaml:"table"`
	// Costs lists the upgrade bills from level 2 onwards.
	Costs []Cost `yaml:"costs"`
}

// TalentRow holds one scaling value per talent level, from level 1.
type TalentRow struct {
	Name   string   `yaml:"name"`
	Values []string `yaml:"values"`
}

// Scales reports whether the row changes with the talent level.
func (r TalentRow) Scales() bool {
	for _, value := range r.Values {
		if value != r.Values[0] {
			return true
		}
	}

	return false
}

// Passive is a passive talent.
type Passive struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// MinAscension is zero for passives unlocked by default.
	MinAscension int `yaml:"min_ascension"`
}

// Constellation is one constellation level.
type Constellation struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Icon        string `yaml:"icon"`
}

// Event is one in-game or web event.
type Event struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Link        string `yaml:"link"`
	Image       string `yaml:"image"`
	Description string `yaml:"description"`
	Start       string `yaml:"start"`
	End         string `yaml:"end"`
	// Timezone is a GMT offset such as "+8"; empty means UTC.
	Timezone   string `yaml:"timezone"`
	Reminder   string `yaml:"reminder"`
	Prediction bool   `yaml:"prediction"`
}

// StartAt parses Start in the event timezone.
func (e Event) StartAt() (time.Time, bool) {
	return parseEventTime(e.Start, e.Timezone)
}

// EndAt parses End in the event timezone.
func (e Event) EndAt() (time.Time, bool) {
	return parseEventTime(e.End, e.Timezone)
}

// Ongoing reports whether the event runs at now. Open-ended events only
// count when they repeat daily.
func (e Event) Ongoing(now time.Time) bool {
	start, ok := e.StartAt()
	if !ok || start.After(now) {
		return false
	}
	if end, ok := e.EndAt(); ok {
		return !end.Before(now)
	}

	return e.Reminder == "daily"
}

// Upcoming reports whether the event has not started at now. Events without
// a start date are always upcoming.
func (e Event) Upcoming(now time.Time) bool {
	start, ok := e.StartAt()
	return !ok || start.After(now)
}

func parseEventTime(value string, timezone string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	parsed, err := time.ParseInLocation(eventTimeLayout, value, eventLocation(timezone))
	if err != nil {
		return time.Time{}, false
	}

	return parsed, true
}

func eventLocation(timezone string) *time.Location {
	timezone = strings.TrimSpace(timezone)
	if timezone == "" {
		return time.UTC
	}
	hours, err := strconv.ParseFloat(timezone, 64)
	if err != nil {
		return time.UTC
	}

	return time.FixedZone("GMT"+timezone, int(hours*3600))
}

// Article is one cached news post.
type Article struct {
	ID        string `yaml:"id"`
	Language  string `yaml:"language"`
	Subject   string `yaml:"subject"`
	Author    string `yaml:"author"`
	Published string `yaml:"published"`
	Link      string `yaml:"link"`
	Image     string `yaml:"image"`
	Content   string `yaml:"content"`
}

// Paragraphs splits the content on blank lines.
func (a Article) Paragraphs() []string {
	var paragraphs []string
	for _, paragraph := range strings.Split(a.Content, "\n\n") {
		if trimmed := strings.TrimSpace(paragraph); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}

	return paragraphs
}

// document is the shape of every data file; each file fills some sections.
type document struct {
	Characters []Character       `yaml:"characters"`
	Events     []Event           `yaml:"events"`
	Articles   []Article         `yaml:"articles"`
	Emojis     map[string]string `yaml:"emojis"`
}

// Store is an immutable, concurrency-safe view over the loaded records.
type Store struct {
	characters []Character
	names      []string
	events     []Event
	articles   []Article
	emojis     map[string]string
}

// Embedded loads the data compiled into the binary.
func Embedded() (*Store, error) {
	entries, err := embedded.ReadDir("data")
	if err != nil {
		return nil, fmt.Errorf("read embedded game data: %w", err)
	}

	documents := make([][]byte, 0, len(entries))
	for _, entry := range entries {
		raw, err := embedded.ReadFile(path.Join("data", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read embedded game data %s: %w", entry.Name(), err)
		}
		documents = append(documents, raw)
	}

	return Load(documents...)
}

// LoadFile layers the YAML file at filePath over the embedded data. Every
// section the file sets replaces the embedded one.
func LoadFile(filePath string) (*Store, error) {
	override, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read game data %s: %w", filePath, err)
	}
	base, err := Embedded()
	if err != nil {
		return nil, err
	}

	store, err := base.overlay(override)
	if err != nil {
		return nil, fmt.Errorf("load game data %s: %w", filePath, err)
	}

	return store, nil
}

// Load parses YAML documents in order; later non-empty sections replace
// earlier ones.
func Load(documents ...[]byte) (*Store, error) {
	store := &Store{emojis: map[string]string{}}
	for index, raw := range documents {
		next, err := store.overlay(raw)
		if err != nil {
			return nil, fmt.Errorf("load game data document %d: %w", index, err)
		}
		store = next
	}

	return store, nil
}

func (s *Store) overlay(raw []byte) (*Store, error) {
	var parsed document
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	next := &Store{
		characters: s.characters,
		names:      s.names,
		events:     s.events,
		articles:   s.articles,
		emojis:     s.emojis,
	}
	if len(parsed.Characters) > 0 {
		names := make([]string, 0, len(parsed.Characters))
		for index, character := range parsed.Characters {
			if strings.TrimSpace(character.Name) == "" {
				return nil, fmt.Errorf("character[%d]: missing name", index)
			}
			names = append(names, character.Name)
		}
		next.characters = parsed.Characters
		next.names = names
	}
	if len(parsed.Events) > 0 {
		next.events = parsed.Events
	}
	if len(parsed.Articles) > 0 {
		for index, article := range parsed.Articles {
			if strings.TrimSpace(article.ID) == "" {
				return nil, fmt.Errorf("article[%d]: missing id", index)
			}
		}
		next.articles = parsed.Articles
	}
	if len(parsed.Emojis) > 0 {
		next.emojis = parsed.Emojis
	}

	return next, nil
}

// Characters returns every character in file order.
func (s *Store) Characters() []Character {
	return slices.Clone(s.characters)
}

// Events returns every event in file order.
func (s *Store) Events() []Event {
	return slices.Clone(s.events)
}

// Articles returns the articles of language, in file order. An empty
// language returns all of them.
func (s *Store) Articles(language string) []Article {
	articles := make([]Article, 0, len(s.articles))
	for _, article := range s.articles {
		if language == "" || strings.EqualFold(article.Language, language) {
			articles = append(articles, article)
		}
	}

	return articles
}

// Languages returns the distinct article languages in file order.
func (s *Store) Languages() []string {
	var languages []string
	for _, article := range s.articles {
		if !slices.Contains(languages, article.Language) {
			languages = append(languages, article.Language)
		}
	}

	return languages
}

// Article finds an article by post ID.
func (s *Store) Article(id string) (Article, bool) {
	id = strings.TrimSpace(id)
	for _, article := range s.articles {
		if article.ID == id {
			return article, true
		}
	}

	return Article{}, false
}

// Emoji returns the symbol of an element or weapon type, or kind itself.
func (s *Store) Emoji(kind string) string {
	if symbol, ok := s.emojis[kind]; ok {
		return symbol
	}
	if kind == "" {
		return "Unknown"
	}

	return kind
}

// EmojiWithName renders "symbol kind", or kind alone without a symbol.
func (s *Store) EmojiWithName(kind string) string {
	if symbol, ok := s.emojis[kind]; ok {
		return symbol + " " + kind
	}

	return s.Emoji(kind)
}
