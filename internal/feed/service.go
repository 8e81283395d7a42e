package feed

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"agora/internal/database"
	"agora/internal/lock"
	securitynet "agora/internal/security/netutil"

	"github.com/google/uuid"
)

// Service manages registered feeds and runs their imports.
type Service struct {
	db       *database.DB
	source   Source
	importer *Importer
	locker   lock.Locker
	logger   *log.Logger
	lookup   securitynet.LookupFunc
	now      func() time.Time
}

func NewService(db *database.DB, source Source, importer *Importer, locker lock.Locker, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if locker == nil {
		locker = lock.NewLocal()
	}
	return &Service{
		db:       db,
		source:   source,
		importer: importer,
		locker:   locker,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetLookup replaces the resolver used when validating feed URLs.
func (s *Service) SetLookup(lookup securitynet.LookupFunc) {
	s.lookup = lookup
}

func (s *Service) ListFeeds(ctx context.Context) ([]Feed, error) {
	return s.db.ListFeeds(ctx)
}

func (s *Service) GetFeed(ctx context.Context, id string) (*Feed, error) {
	return s.db.GetFeed(ctx, id)
}

// CreateFeed registers a feed. An active feed is imported right away, in
// which case the import result is returned as well.
func (s *Service) CreateFeed(ctx context.Context, in FeedInput) (*Feed, *ImportResult, error) {
	label := strings.TrimSpace(in.Label)
	if label == "" || strings.TrimSpace(in.URL) == "" {
		return nil, nil, ErrMissingFields
	}
	feedURL, err := ValidateURL(in.URL, s.lookup)
	if err != nil {
		return nil, nil, err
	}

	created, err := s.db.CreateFeed(ctx, &database.RSSFeed{
		ID:        uuid.NewString(),
		Label:     label,
		URL:       feedURL,
		Tags:      NormaliseTags([]string(in.Tags)),
		Active:    in.Active,
		CreatedAt: s.now(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("error creating feed: %w", err)
	}
	s.logger.Printf("Feed %s created (%s)", created.ID, created.URL)

	if !created.Active {
		return created, nil, nil
	}
	return s.runImport(ctx, created)
}

// UpdateFeed applies patch. Switching an inactive feed to active triggers
// an import.
func (s *Service) UpdateFeed(ctx context.Context, id string, patch FeedPatch) (*Feed, *ImportResult, error) {
	existing, err := s.db.GetFeed(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	var update database.FeedUpdate
	if patch.Label != nil {
		label := strings.TrimSpace(*patch.Label)
		if label == "" {
			return nil, nil, ErrEmptyLabel
		}
		update.Label = &label
	}
	if patch.URL != nil {
		feedURL, err := ValidateURL(*patch.URL, s.lookup)
		if err != nil {
			return nil, nil, err
		}
		update.URL = &feedURL
	}
	if patch.Tags != nil {
		update.Tags = NormaliseTags([]string(*patch.Tags))
		update.SetTags = true
	}
	update.Active = patch.Active

	updated, err := s.db.UpdateFeed(ctx, id, update)
	if err != nil {
		return nil, nil, err
	}

	activated := patch.Active != nil && *patch.Active && !existing.Active
	if !activated {
		return updated, nil, nil
	}
	return s.runImport(ctx, updated)
}

func (s *Service) DeleteFeed(ctx context.Context, id string) error {
	if err := s.db.DeleteFeed(ctx, id); err != nil {
		return err
	}
	s.logger.Printf("Feed %s deleted", id)
	return nil
}

// ImportFeed runs an import of the feed on request, whether or not it is active.
func (s *Service) ImportFeed(ctx context.Context, id string) (*Feed, *ImportResult, error) {
	f, err := s.db.GetFeed(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return s.runImport(ctx, f)
}

// runImport imports f under the feed's lock and stamps lastFetchedAt.
func (s *Service) runImport(ctx context.Context, f *Feed) (*Feed, *ImportResult, error) {
	unlock, err := s.locker.Lock(ctx, "feed-import:"+f.ID)
	if err != nil {
		return f, nil, fmt.Errorf("error acquiring import lock: %w", err)
	}
	defer unlock()

	result := s.importer.ImportFromFeed(ctx, *f)

	fetchedAt := s.now()
	refreshed, err := s.db.UpdateFeed(ctx, f.ID, database.FeedUpdate{LastFetchedAt: &fetchedAt})
	if err != nil {
		s.logger.Printf("Error updating lastFetchedAt for feed %s: %v", f.ID, err)
		return f, &result, nil
	}
	return refreshed, &result, nil
}
