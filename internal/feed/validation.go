package feed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"agora/internal/rss"
	securitynet "agora/internal/security/netutil"

	"github.com/mmcdole/gofeed"
)

var (
	ErrInvalidURL     = errors.New("invalid feed URL")
	ErrMissingFields  = errors.New("label and url are required")
	ErrEmptyLabel     = errors.New("feed label cannot be empty")
	ErrNotAFeed       = errors.New("URL does not point to a valid feed")
	ErrPrivateAddress = securitynet.ErrPrivateAddress
)

// ValidateURL trims rawURL and checks it is an absolute http(s) URL that
// does not point into a private network.
func ValidateURL(rawURL string, lookup securitynet.LookupFunc) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: must use HTTP or HTTPS", ErrInvalidURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if err := securitynet.CheckURL(trimmed, lookup); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	return trimmed, nil
}

// Preview describes a candidate feed before it is registered.
type Preview struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ItemCount   int    `json:"itemCount"`
	LastUpdated string `json:"lastUpdated,omitempty"`
	FeedType    string `json:"feedType,omitempty"`
	// Sample of the most recent item for preview in UI
	SampleItemTitle     string `json:"sampleItemTitle,omitempty"`
	SampleItemURL       string `json:"sampleItemURL,omitempty"`
	SampleItemPublished string `json:"sampleItemPublished,omitempty"`
	SampleItemSummary   string `json:"sampleItemSummary,omitempty"`
}

// buildPreview reads raw with gofeed. Documents gofeed rejects but which still
// contain <item> blocks are reported with the lenient item count.
func buildPreview(raw string) (*Preview, error) {
	parsed, err := gofeed.NewParser().ParseString(raw)
	if err != nil || parsed == nil {
		items := rss.ParseItems(raw)
		if len(items) == 0 {
			return nil, ErrNotAFeed
		}
		first := items[0]
		return &Preview{
			ItemCount:           len(items),
			FeedType:            "rss",
			SampleItemTitle:     first.Title,
			SampleItemURL:       first.Link,
			SampleItemPublished: first.PublishedAt,
			SampleItemSummary:   rss.Summarise(first.Description, first.Title),
		}, nil
	}

	preview := &Preview{
		Title:       parsed.Title,
		Description: parsed.Description,
		ItemCount:   len(parsed.Items),
		FeedType:    parsed.FeedType,
	}

	if parsed.UpdatedParsed != nil {
		preview.LastUpdated = parsed.UpdatedParsed.Format("January 2, 2006")
	} else if len(parsed.Items) > 0 && parsed.Items[0].PublishedParsed != nil {
		preview.LastUpdated = parsed.Items[0].PublishedParsed.Format("January 2, 2006")
	}

	if len(parsed.Items) > 0 && parsed.Items[0] != nil {
		item := parsed.Items[0]
		preview.SampleItemTitle = item.Title
		preview.SampleItemURL = item.Link
		if item.PublishedParsed != nil {
			preview.SampleItemPublished = item.PublishedParsed.Format(time.RFC1123Z)
		}
		body := item.Description
		if strings.TrimSpace(body) == "" {
			body = item.Content
		}
		preview.SampleItemSummary = rss.Summarise(rss.PlainText(body), item.Title)
	}
	return preview, nil
}

// Preview fetches and inspects a candidate feed URL.
func (s *Service) Preview(ctx context.Context, rawURL string) (*Preview, error) {
	feedURL, err := ValidateURL(rawURL, s.lookup)
	if err != nil {
		return nil, err
	}
	raw, err := s.source.Fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	return buildPreview(raw)
}
