package navigation_test

import (
	"slices"
	"strings"
	"testing"
	"unicode/utf8"

	"ex-paimon/pkg/navigation"
)

func TestPartition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		chunks []string
		budget int
		want   []string
	}{
		{
			name:   "greedy packing",
			chunks: []string{"AAAAA", "AAAAA", "AAAAA"},
			budget: 12,
			want:   []string{"AAAAA\nAAAAA", "AAAAA"},
		},
		{
			name:   "empty input",
			chunks: nil,
			budget: 12,
			want:   nil,
		},
		{
			name:   "oversize chunk isolated",
			chunks: []string{"AAAAAAAAAAAAAAA", "B", "C"},
			budget: 5,
			want:   []string{"AAAAAAAAAAAAAAA", "B\nC"},
		},
		{
			name:   "oversize chunk in the middle",
			chunks: []string{"A", "BBBBBBBB", "C"},
			budget: 5,
			want:   []string{"A", "BBBBBBBB", "C"},
		},
		{
			name:   "exact fit stays on one page",
			chunks: []string{"abc", "de"},
			budget: 6,
			want:   []string{"abc\nde"},
		},
		{
			name:   "length counted in runes",
			chunks: []string{"ääää", "üü"},
			budget: 7,
			want:   []string{"ääää\nüü"},
		},
		{
			name:   "pages trimmed",
			chunks: []string{"  lead", "tail  "},
			budget: 100,
			want:   []string{"lead\ntail"},
		},
		{
			name:   "whitespace only page dropped",
			chunks: []string{"   "},
			budget: 100,
			want:   nil,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got := navigation.Partition(testCase.chunks, testCase.budget)
			if !slices.Equal(got, testCase.want) {
				t.Fatalf("Partition() = %q, want %q", got, testCase.want)
			}
		})
	}
}

func TestPartitionPreservesChunks(t *testing.T) {
	t.Parallel()

	chunks := make([]string, 0, 40)
	for index := 0; index < 40; index++ {
		chunks = append(chunks, strings.Repeat(string(rune('a'+index%26)), 1+(index*7)%23))
	}

	for budget := 1; budget <= 64; budget++ {
		pages := navigation.Partition(chunks, budget)

		if got, want := strings.Join(pages, navigation.Separator), strings.Join(chunks, navigation.Separator); got != want {
			t.Fatalf("budget %d: rejoined pages differ from chunks", budget)
		}
		for _, page := range pages {
			if utf8.RuneCountInString(page) <= budget {
				continue
			}
			if strings.Contains(page, navigation.Separator) {
				t.Fatalf("budget %d: multi-chunk page %q exceeds budget", budget, page)
			}
		}
	}
}

func TestPartitionWithSeparator(t *testing.T) {
	t.Parallel()

	got := navigation.PartitionWith([]string{"one", "two", "three"}, 9, ", ")
	want := []string{"one, two", "three"}
	if !slices.Equal(got, want) {
		t.Fatalf("PartitionWith() = %q, want %q", got, want)
	}
}
