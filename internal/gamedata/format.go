package gamedata

import (
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatCount renders n with thousands separators, as in "120,000".
func FormatCount(n int) string {
	return message.NewPrinter(language.English).Sprintf("%d", n)
}

// FormatPercent renders a fraction as a percentage with one decimal.
func FormatPercent(fraction float64) string {
	return strconv.FormatFloat(fraction*100, 'f', 1, 64) + "%"
}

// FormatStat renders a stat bonus: fractions of one as percentages,
// anything larger as a rounded flat value.
func FormatStat(value float64) string {
	if value > 0 && value < 1 {
		return FormatPercent(value)
	}

	return strconv.FormatFloat(value, 'f', 0, 64)
}

// FormatCost renders a material bill, one line per item, mora first.
func FormatCost(cost Cost) string {
	if cost.Empty() {
		return "None"
	}

	lines := make([]string, 0, len(cost.Items)+1)
	if cost.Mora > 0 {
		lines = append(lines, FormatCount(cost.Mora)+" Mora")
	}
	for _, item := range cost.Items {
		lines = append(lines, FormatCount(item.Count)+"x "+item.Name)
	}

	return strings.Join(lines, "\n")
}
