package gamedata

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldName reduces a name to its comparison form: accents stripped, case
// folded and inner whitespace collapsed.
func FoldName(name string) string {
	stripped, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		name,
	)
	if err != nil {
		stripped = name
	}

	return strings.Join(strings.Fields(cases.Fold().String(stripped)), " ")
}

// FindFuzzy returns the candidate best matching query.
//
// Matches are tried in order of strength: equal folded names, a candidate
// starting with the query, a candidate containing it, then the smallest
// edit distance not above a third of the query length.
func FindFuzzy(candidates []string, query string) (string, bool) {
	folded := FoldName(query)
	if folded == "" || len(candidates) == 0 {
		return "", false
	}

	foldedCandidates := make([]string, len(candidates))
	for index, candidate := range candidates {
		foldedCandidates[index] = FoldName(candidate)
	}

	for _, match := range []func(string) bool{
		func(candidate string) bool { return candidate == folded },
		func(candidate string) bool { return strings.HasPrefix(candidate, folded) },
		func(candidate string) bool { return strings.Contains(candidate, folded) },
	} {
		for index, candidate := range foldedCandidates {
			if match(candidate) {
				return candidates[index], true
			}
		}
	}

	limit := max(1, utf8.RuneCountInString(folded)/3)
	best, bestDistance := -1, limit+1
	for index, candidate := range foldedCandidates {
		distance := levenshtein.ComputeDistance(candidate, folded)
		if distance < bestDistance {
			best, bestDistance = index, distance
		}
	}
	if best < 0 {
		return "", false
	}

	return candidates[best], true
}

// Character finds a character by fuzzy name.
func (s *Store) Character(query string) (Character, bool) {
	name, ok := FindFuzzy(s.names, query)
	if !ok {
		return Character{}, false
	}
	for _, character := range s.characters {
		if character.Name == name {
			return character, true
		}
	}

	return Character{}, false
}
