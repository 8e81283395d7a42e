package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"agora/internal/database"
	"agora/internal/rss"

	"github.com/google/uuid"
)

const (
	msgMissingTitleOrLink = "Article ignoré : titre ou lien manquant."
	msgPostCreateFailed   = "Erreur inconnue lors de la création du post."
)

// Source downloads a raw feed document.
type Source interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// DedupOracle answers whether a post already exists for a source URL.
type DedupOracle interface {
	PostExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error)
}

// PostSink persists new posts. A sink that enforces source URL uniqueness
// reports conflicts with database.ErrDuplicate.
type PostSink interface {
	CreatePost(ctx context.Context, p *database.Post) (*database.Post, error)
}

// Importer turns the items of one feed into posts.
type Importer struct {
	source Source
	parser rss.Parser
	dedup  DedupOracle
	sink   PostSink
	logger *log.Logger
	newID  func() string
	now    func() time.Time
}

func NewImporter(source Source, parser rss.Parser, dedup DedupOracle, sink PostSink, logger *log.Logger) *Importer {
	if logger == nil {
		logger = log.Default()
	}
	if parser == nil {
		parser = rss.LenientParser{}
	}
	return &Importer{
		source: source,
		parser: parser,
		dedup:  dedup,
		sink:   sink,
		logger: logger,
		newID:  uuid.NewString,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ImportFromFeed fetches f and creates a post for every new item. Failures
// are reported in the result; the run itself never fails. Items are handled
// one at a time, in document order.
func (im *Importer) ImportFromFeed(ctx context.Context, f Feed) ImportResult {
	result := newImportResult()
	tags := append([]string{}, f.Tags...)

	raw, err := im.source.Fetch(ctx, f.URL)
	if err != nil {
		result.Errors = append(result.Errors, errorMessage(err, "Impossible de récupérer le flux RSS."))
		im.logger.Printf("Error fetching feed %s: %v", f.URL, err)
		return result
	}

	for _, item := range im.parser.Parse(raw) {
		result.ProcessedItems++

		title := strings.TrimSpace(item.Title)
		link := strings.TrimSpace(item.Link)
		if title == "" || link == "" {
			result.Errors = append(result.Errors, msgMissingTitleOrLink)
			continue
		}

		exists, err := im.dedup.PostExistsBySourceURL(ctx, link)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Impossible de vérifier l'article %s : %v", link, err))
			continue
		}
		if exists {
			result.DuplicateItems++
			continue
		}

		post := &database.Post{
			ID:        im.newID(),
			Title:     title,
			Summary:   rss.Summarise(item.Description, item.Title),
			SourceURL: link,
			Tags:      append([]string{}, tags...),
			CreatedAt: im.now(),
			Comments:  []database.Comment{},
		}
		if _, err := im.sink.CreatePost(ctx, post); err != nil {
			if errors.Is(err, database.ErrDuplicate) {
				result.DuplicateItems++
				continue
			}
			result.Errors = append(result.Errors, errorMessage(err, msgPostCreateFailed))
			continue
		}
		result.CreatedPosts++
	}

	im.logger.Printf("Imported feed %s: %s", f.URL, result.Summary())
	return result
}

func errorMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return fallback
}
