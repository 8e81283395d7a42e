// internal/rss/parser.go
package rss

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Item is a single article extracted from a feed document.
type Item struct {
	Title       string
	Link        string
	Description string
	PublishedAt string
}

// Parser turns a raw feed document into items. Implementations never fail:
// anything they cannot read is skipped.
type Parser interface {
	Parse(raw string) []Item
}

// LenientParser extracts items with tag-scoped pattern matching and
// tolerates markup that a conforming XML parser would reject.
type LenientParser struct{}

func (LenientParser) Parse(raw string) []Item {
	return ParseItems(raw)
}

var (
	itemPattern   = regexp.MustCompile(`(?is)<item\b.*?</item>`)
	entityPattern = regexp.MustCompile(`(?i)&(#\d+|#x[0-9a-f]+|[a-z]+);`)
	markupPattern = regexp.MustCompile(`<[^>]+>`)

	tagPatterns = map[string]*regexp.Regexp{}
)

var basicEntities = map[string]string{
	"amp":  "&",
	"lt":   "<",
	"gt":   ">",
	"quot": `"`,
	"apos": "'",
}

const (
	cdataOpen  = "<![CDATA["
	cdataClose = "]]>"
)

func init() {
	for _, tag := range []string{"title", "link", "guid", "description", "content:encoded", "pubDate"} {
		quoted := regexp.QuoteMeta(tag)
		tagPatterns[tag] = regexp.MustCompile(`(?is)<` + quoted + `\b[^>]*>(.*?)</` + quoted + `\s*>`)
	}
}

// ParseItems returns the items of an RSS-like document in document order.
// A document without any <item> block yields an empty slice.
func ParseItems(raw string) []Item {
	segments := itemPattern.FindAllString(raw, -1)
	items := make([]Item, 0, len(segments))

	for _, segment := range segments {
		title, _ := extractTag(segment, "title")

		link, ok := extractTag(segment, "link")
		if !ok {
			link, _ = extractTag(segment, "guid")
		}

		description, ok := extractTag(segment, "description")
		if !ok {
			description, _ = extractTag(segment, "content:encoded")
		}

		publishedAt, _ := extractTag(segment, "pubDate")

		items = append(items, Item{
			Title:       cleanText(title),
			Link:        cleanText(link),
			Description: cleanText(description),
			PublishedAt: strings.TrimSpace(publishedAt),
		})
	}

	return items
}

// extractTag returns the decoded inner text of the first <tag>...</tag> span
// in segment. The boolean reports whether the tag was present at all.
func extractTag(segment, tag string) (string, bool) {
	pattern, ok := tagPatterns[tag]
	if !ok {
		return "", false
	}
	match := pattern.FindStringSubmatch(segment)
	if match == nil {
		return "", false
	}
	return decodeEntities(stripCDATA(match[1])), true
}

func stripCDATA(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) >= len(cdataOpen)+len(cdataClose) &&
		strings.HasPrefix(trimmed, cdataOpen) && strings.HasSuffix(trimmed, cdataClose) {
		return trimmed[len(cdataOpen) : len(trimmed)-len(cdataClose)]
	}
	return trimmed
}

// decodeEntities resolves numeric character references and the five XML
// named entities. Other named entities are kept as written.
func decodeEntities(value string) string {
	return entityPattern.ReplaceAllStringFunc(value, func(match string) string {
		entity := match[1 : len(match)-1]
		if entity[0] == '#' {
			if entity[1] == 'x' || entity[1] == 'X' {
				return fromCodePoint(match, entity[2:], 16)
			}
			return fromCodePoint(match, entity[1:], 10)
		}
		if replacement, ok := basicEntities[strings.ToLower(entity)]; ok {
			return replacement
		}
		return match
	})
}

func fromCodePoint(match, digits string, base int) string {
	n, err := strconv.ParseInt(digits, base, 32)
	if err != nil || n > unicode.MaxRune || (n >= 0xD800 && n <= 0xDFFF) {
		return match
	}
	return string(rune(n))
}

// cleanText drops inline markup and normalises whitespace.
func cleanText(value string) string {
	return collapseSpace(markupPattern.ReplaceAllString(value, " "))
}

func collapseSpace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
