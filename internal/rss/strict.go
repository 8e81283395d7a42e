package rss

import (
	"strings"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"
)

// StrictParser reads RSS, Atom and JSON feeds with gofeed. Documents gofeed
// rejects are handed to the fallback parser so a run never loses a feed
// that the lenient extraction could still read.
type StrictParser struct {
	fallback Parser
}

func NewStrictParser() *StrictParser {
	return &StrictParser{fallback: LenientParser{}}
}

func (p *StrictParser) Parse(raw string) []Item {
	// gofeed.Parser keeps per-document state, so each call gets its own.
	parsed, err := gofeed.NewParser().ParseString(raw)
	if err != nil || parsed == nil {
		return p.fallback.Parse(raw)
	}

	items := make([]Item, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		if entry == nil {
			continue
		}
		link := entry.Link
		if strings.TrimSpace(link) == "" {
			link = entry.GUID
		}
		description := entry.Description
		if strings.TrimSpace(description) == "" {
			description = entry.Content
		}
		items = append(items, Item{
			Title:       PlainText(entry.Title),
			Link:        strings.TrimSpace(link),
			Description: PlainText(description),
			PublishedAt: strings.TrimSpace(entry.Published),
		})
	}
	return items
}

// PlainText flattens an HTML fragment to its visible text.
func PlainText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return collapseSpace(fragment)
	}

	z := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapseSpace(b.String())
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken:
			if name, _ := z.TagName(); isHiddenTag(string(name)) {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			if name, _ := z.TagName(); isHiddenTag(string(name)) && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		default:
			b.WriteByte(' ')
		}
	}
}

func isHiddenTag(name string) bool {
	return name == "script" || name == "style"
}
