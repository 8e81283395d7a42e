package feed

import (
	"encoding/json"
	"fmt"
	"strings"

	"agora/internal/database"
)

// Feed is the descriptor of a registered RSS source.
type Feed = database.RSSFeed

// ImportResult reports one import run. Errors only grows during a run.
type ImportResult struct {
	ProcessedItems int      `json:"processedItems"`
	CreatedPosts   int      `json:"createdPosts"`
	DuplicateItems int      `json:"duplicateItems"`
	Errors         []string `json:"errors"`
}

func newImportResult() ImportResult {
	return ImportResult{Errors: []string{}}
}

// Summary renders the result the way the admin console shows it.
func (r ImportResult) Summary() string {
	base := fmt.Sprintf("%d post(s) créé(s) sur %d éléments traités.", r.CreatedPosts, r.ProcessedItems)
	if len(r.Errors) == 0 {
		return base
	}
	return fmt.Sprintf("%s %d erreur(s) rencontrée(s).", base, len(r.Errors))
}

// Tags accepts either a JSON array or a comma separated string. Entries are
// trimmed and empty ones dropped.
type Tags []string

func (t *Tags) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = NormaliseTags(raw)
	return nil
}

// NormaliseTags turns a list or comma separated string into clean tags.
// Anything else yields an empty list.
func NormaliseTags(raw any) Tags {
	tags := Tags{}
	switch v := raw.(type) {
	case []string:
		for _, tag := range v {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	case []any:
		for _, item := range v {
			if item == nil {
				continue
			}
			if tag := strings.TrimSpace(fmt.Sprint(item)); tag != "" {
				tags = append(tags, tag)
			}
		}
	case string:
		for _, tag := range strings.Split(v, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	}
	return tags
}

// FeedInput describes a feed to register.
type FeedInput struct {
	Label  string `json:"label"`
	URL    string `json:"url"`
	Tags   Tags   `json:"tags"`
	Active bool   `json:"active"`
}

// FeedPatch changes the non-nil fields of a feed.
type FeedPatch struct {
	Label  *string `json:"label"`
	URL    *string `json:"url"`
	Tags   *Tags   `json:"tags"`
	Active *bool   `json:"active"`
}
