package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RSSFeed is a feed registered by an administrator.
type RSSFeed struct {
	ID            string     `json:"id"`
	Label         string     `json:"label"`
	URL           string     `json:"url"`
	Tags          []string   `json:"tags"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastFetchedAt *time.Time `json:"lastFetchedAt"`
}

// FeedUpdate is a partial update; nil fields are left unchanged.
type FeedUpdate struct {
	Label         *string
	URL           *string
	Tags          []string
	SetTags       bool
	Active        *bool
	LastFetchedAt *time.Time
}

func (db *DB) ListFeeds(ctx context.Context) ([]RSSFeed, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, label, url, active, created_at, last_fetched_at
		FROM rss_feeds
		ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("error querying feeds: %w", err)
	}

	feeds := []RSSFeed{}
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		feeds = append(feeds, *f)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating feeds: %w", err)
	}
	rows.Close()

	for i := range feeds {
		tags, err := loadTags(ctx, db.DB, "rss_feed_tags", "feed_id", feeds[i].ID)
		if err != nil {
			return nil, err
		}
		feeds[i].Tags = tags
	}
	return feeds, nil
}

func (db *DB) GetFeed(ctx context.Context, id string) (*RSSFeed, error) {
	row := db.QueryRowContext(ctx,
		"SELECT id, label, url, active, created_at, last_fetched_at FROM rss_feeds WHERE id = ?", id)
	f, err := scanFeed(row)
	if err != nil {
		return nil, err
	}
	tags, err := loadTags(ctx, db.DB, "rss_feed_tags", "feed_id", f.ID)
	if err != nil {
		return nil, err
	}
	f.Tags = tags
	return f, nil
}

func (db *DB) CreateFeed(ctx context.Context, f *RSSFeed) (*RSSFeed, error) {
	if f == nil || f.ID == "" {
		return nil, fmt.Errorf("%w: feed id is required", ErrInvalidInput)
	}
	created := *f
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}
	created.Tags = append([]string{}, f.Tags...)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO rss_feeds (id, label, url, active, created_at, last_fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		created.ID, created.Label, created.URL, created.Active, created.CreatedAt, nullTime(created.LastFetchedAt),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: feed %s", ErrDuplicate, created.ID)
		}
		return nil, fmt.Errorf("error inserting feed: %w", err)
	}
	if err := replaceTags(ctx, tx, "rss_feed_tags", "feed_id", created.ID, created.Tags); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing feed: %w", err)
	}
	return &created, nil
}

// UpdateFeed applies u to the feed and returns the stored result.
func (db *DB) UpdateFeed(ctx context.Context, id string, u FeedUpdate) (*RSSFeed, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		"SELECT id, label, url, active, created_at, last_fetched_at FROM rss_feeds WHERE id = ?", id)
	f, err := scanFeed(row)
	if err != nil {
		return nil, err
	}

	if u.Label != nil {
		f.Label = *u.Label
	}
	if u.URL != nil {
		f.URL = *u.URL
	}
	if u.Active != nil {
		f.Active = *u.Active
	}
	if u.LastFetchedAt != nil {
		t := *u.LastFetchedAt
		f.LastFetchedAt = &t
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE rss_feeds SET label = ?, url = ?, active = ?, last_fetched_at = ? WHERE id = ?",
		f.Label, f.URL, f.Active, nullTime(f.LastFetchedAt), id,
	); err != nil {
		return nil, fmt.Errorf("error updating feed: %w", err)
	}

	if u.SetTags {
		if err := replaceTags(ctx, tx, "rss_feed_tags", "feed_id", id, u.Tags); err != nil {
			return nil, err
		}
	}
	tags, err := loadTags(ctx, tx, "rss_feed_tags", "feed_id", id)
	if err != nil {
		return nil, err
	}
	f.Tags = tags

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing feed update: %w", err)
	}
	return f, nil
}

func (db *DB) DeleteFeed(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, "DELETE FROM rss_feeds WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("error deleting feed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeed(row rowScanner) (*RSSFeed, error) {
	var (
		f           RSSFeed
		lastFetched sql.NullTime
	)
	err := row.Scan(&f.ID, &f.Label, &f.URL, &f.Active, &f.CreatedAt, &lastFetched)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning feed: %w", err)
	}
	if lastFetched.Valid {
		t := lastFetched.Time
		f.LastFetchedAt = &t
	}
	f.Tags = []string{}
	return &f, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
