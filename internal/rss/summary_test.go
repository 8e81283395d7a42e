package rss

import (
	"strings"
	"testing"
	"unicode/utf16"
	"unicode/utf8"
)

func TestSummarise(t *testing.T) {
	long := strings.Repeat("a", 300)
	exact := strings.Repeat("b", SummaryMaxLength)

	tests := []struct {
		name        string
		description string
		fallback    string
		want        string
	}{
		{"description preferred", "Hello world", "Title", "Hello world"},
		{"whitespace collapsed", "  Hello \n\t world  ", "", "Hello world"},
		{"fallback on blank description", "   ", " The title ", "The title"},
		{"both empty", "", "  ", ""},
		{"exact length kept", exact, "", exact},
		{"truncated with ellipsis", long, "", strings.Repeat("a", SummaryMaxLength) + "…"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Summarise(tt.description, tt.fallback); got != tt.want {
				t.Errorf("Summarise() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSummarise_CountsCharactersNotBytes(t *testing.T) {
	input := strings.Repeat("é", SummaryMaxLength+10)
	got := Summarise(input, "")

	if !strings.HasSuffix(got, "…") {
		t.Fatalf("Expected ellipsis suffix, got %q", got)
	}
	if n := utf8.RuneCountInString(strings.TrimSuffix(got, "…")); n != SummaryMaxLength {
		t.Errorf("Expected %d characters before the ellipsis, got %d", SummaryMaxLength, n)
	}
	if !utf8.ValidString(got) {
		t.Error("Expected valid UTF-8 output")
	}
}

func TestSummarise_CollapsesBeforeMeasuring(t *testing.T) {
	// 200 words separated by runs of spaces: 399 characters once collapsed.
	input := strings.Repeat("x     ", 200)
	got := Summarise(input, "")
	if utf8.RuneCountInString(got) != SummaryMaxLength+1 {
		t.Errorf("Expected truncated summary, got %d characters", utf8.RuneCountInString(got))
	}

	short := strings.Repeat("y   ", 50)
	if got := Summarise(short, ""); strings.HasSuffix(got, "…") {
		t.Errorf("Expected no ellipsis for short collapsed text, got %q", got)
	}
}

func TestSummarise_CountsUTF16Units(t *testing.T) {
	// Each emoji is a surrogate pair: 200 of them are 400 code units.
	emoji := strings.Repeat("😀", 200)
	got := Summarise(emoji, "")
	prefix := strings.TrimSuffix(got, "…")
	if prefix == got {
		t.Fatalf("Expected truncation, got %d runes", utf8.RuneCountInString(got))
	}
	if n := len(utf16.Encode([]rune(prefix))); n != SummaryMaxLength {
		t.Errorf("Expected %d code units before the ellipsis, got %d", SummaryMaxLength, n)
	}

	// An odd budget left for a pair drops the whole pair.
	mixed := "a" + strings.Repeat("😀", 200)
	prefix = strings.TrimSuffix(Summarise(mixed, ""), "…")
	if n := len(utf16.Encode([]rune(prefix))); n != SummaryMaxLength-1 {
		t.Errorf("Expected %d code units without a split pair, got %d", SummaryMaxLength-1, n)
	}
	if !utf8.ValidString(prefix) {
		t.Error("Expected valid UTF-8 output")
	}

	fits := strings.Repeat("😀", SummaryMaxLength/2)
	if got := Summarise(fits, ""); got != fits {
		t.Errorf("Expected %d code units to fit untouched", SummaryMaxLength)
	}
}
