package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// Error definitions
var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicate    = errors.New("record already exists")
	ErrInvalidInput = errors.New("invalid input")
)

// Comment sections. Anything else is stored as SectionAnalysis.
const (
	SectionAnalysis = "analysis"
	SectionDebate   = "debate"
	SectionQuestion = "question"
	SectionProposal = "proposal"
	SectionAvis     = "avis"
)

var commentSections = map[string]bool{
	SectionAnalysis: true,
	SectionDebate:   true,
	SectionQuestion: true,
	SectionProposal: true,
	SectionAvis:     true,
}

// NormaliseSection maps unknown sections to SectionAnalysis.
func NormaliseSection(section string) string {
	if commentSections[section] {
		return section
	}
	return SectionAnalysis
}

type Post struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Summary        string    `json:"summary"`
	SourceURL      string    `json:"sourceUrl"`
	Tags           []string  `json:"tags"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Likes          int       `json:"likes"`
	ViewerHasLiked bool      `json:"viewerHasLiked"`
	Comments       []Comment `json:"comments"`

	// LikedBy seeds likes when a post is created; it is not read back.
	LikedBy []string `json:"-"`
}

type Comment struct {
	ID         string    `json:"id"`
	Section    string    `json:"section"`
	AuthorID   string    `json:"authorId,omitempty"`
	AuthorName string    `json:"authorName"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
	Replies    []Reply   `json:"replies"`
}

type Reply struct {
	ID         string    `json:"id"`
	ParentID   string    `json:"parentId"`
	AuthorID   string    `json:"authorId,omitempty"`
	AuthorName string    `json:"authorName"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

// IsUniqueViolation reports whether err comes from a UNIQUE or PRIMARY KEY
// constraint.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// CreatePost stores p. A post whose source URL is already taken is rejected
// with ErrDuplicate.
func (db *DB) CreatePost(ctx context.Context, p *Post) (*Post, error) {
	if p == nil || p.ID == "" {
		return nil, fmt.Errorf("%w: post id is required", ErrInvalidInput)
	}
	created := *p
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}
	if created.UpdatedAt.IsZero() {
		created.UpdatedAt = created.CreatedAt
	}
	created.Tags = append([]string{}, p.Tags...)
	created.Comments = []Comment{}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO posts (id, title, summary, source_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		created.ID, created.Title, created.Summary, created.SourceURL, created.CreatedAt, created.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: post for %s", ErrDuplicate, created.SourceURL)
		}
		return nil, fmt.Errorf("error inserting post: %w", err)
	}

	if err := replaceTags(ctx, tx, "post_tags", "post_id", created.ID, created.Tags); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(p.LikedBy))
	for _, userID := range p.LikedBy {
		if userID == "" || seen[userID] {
			continue
		}
		seen[userID] = true
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO post_likes (post_id, user_id, created_at) VALUES (?, ?, ?)",
			created.ID, userID, created.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("error inserting like: %w", err)
		}
	}
	created.Likes = len(seen)
	created.LikedBy = nil
	created.ViewerHasLiked = false

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing post: %w", err)
	}
	return &created, nil
}

// PostExistsBySourceURL reports whether a post with the exact source URL exists.
func (db *DB) PostExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM posts WHERE source_url = ?)",
		sourceURL,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking post existence: %w", err)
	}
	return exists, nil
}

func (db *DB) FindPostBySourceURL(ctx context.Context, sourceURL string) (*Post, error) {
	var id string
	err := db.QueryRowContext(ctx, "SELECT id FROM posts WHERE source_url = ?", sourceURL).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error finding post: %w", err)
	}
	return db.GetPost(ctx, id, "")
}

// GetPost loads a post with its tags, like count and comment thread.
// viewerID may be empty for anonymous readers.
func (db *DB) GetPost(ctx context.Context, id, viewerID string) (*Post, error) {
	var p Post
	err := db.QueryRowContext(ctx,
		"SELECT id, title, summary, source_url, created_at, updated_at FROM posts WHERE id = ?",
		id,
	).Scan(&p.ID, &p.Title, &p.Summary, &p.SourceURL, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error loading post: %w", err)
	}
	if err := db.hydratePost(ctx, &p, viewerID, true); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPosts returns every post, newest first.
func (db *DB) ListPosts(ctx context.Context, viewerID string) ([]Post, error) {
	return db.listPosts(ctx, viewerID, -1, true)
}

// RecentPosts returns the newest posts with tags and likes but without comments.
func (db *DB) RecentPosts(ctx context.Context, limit int) ([]Post, error) {
	return db.listPosts(ctx, "", limit, false)
}

func (db *DB) listPosts(ctx context.Context, viewerID string, limit int, withComments bool) ([]Post, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, title, summary, source_url, created_at, updated_at
		FROM posts
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying posts: %w", err)
	}

	posts := []Post{}
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.Title, &p.Summary, &p.SourceURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("error scanning post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating posts: %w", err)
	}
	rows.Close()

	for i := range posts {
		if err := db.hydratePost(ctx, &posts[i], viewerID, withComments); err != nil {
			return nil, err
		}
	}
	return posts, nil
}

func (db *DB) hydratePost(ctx context.Context, p *Post, viewerID string, withComments bool) error {
	tags, err := loadTags(ctx, db.DB, "post_tags", "post_id", p.ID)
	if err != nil {
		return err
	}
	p.Tags = tags

	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM post_likes WHERE post_id = ?", p.ID,
	).Scan(&p.Likes); err != nil {
		return fmt.Errorf("error counting likes: %w", err)
	}

	p.ViewerHasLiked = false
	if viewerID != "" {
		if err := db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM post_likes WHERE post_id = ? AND user_id = ?)",
			p.ID, viewerID,
		).Scan(&p.ViewerHasLiked); err != nil {
			return fmt.Errorf("error checking like: %w", err)
		}
	}

	p.Comments = []Comment{}
	if withComments {
		comments, err := db.loadComments(ctx, p.ID)
		if err != nil {
			return err
		}
		p.Comments = comments
	}
	return nil
}

func (db *DB) loadComments(ctx context.Context, postID string) ([]Comment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, COALESCE(parent_id, ''), section, author_id, author_name, content, created_at
		FROM comments
		WHERE post_id = ?
		ORDER BY created_at ASC, rowid ASC`, postID)
	if err != nil {
		return nil, fmt.Errorf("error querying comments: %w", err)
	}
	defer rows.Close()

	comments := []Comment{}
	index := make(map[string]int)
	var replies []Reply
	for rows.Next() {
		var (
			id, parentID, section, authorID, authorName, content string
			createdAt                                             time.Time
		)
		if err := rows.Scan(&id, &parentID, &section, &authorID, &authorName, &content, &createdAt); err != nil {
			return nil, fmt.Errorf("error scanning comment: %w", err)
		}
		if parentID != "" {
			replies = append(replies, Reply{
				ID: id, ParentID: parentID, AuthorID: authorID,
				AuthorName: authorName, Content: content, CreatedAt: createdAt,
			})
			continue
		}
		index[id] = len(comments)
		comments = append(comments, Comment{
			ID: id, Section: NormaliseSection(section), AuthorID: authorID,
			AuthorName: authorName, Content: content, CreatedAt: createdAt,
			Replies: []Reply{},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comments: %w", err)
	}

	for _, r := range replies {
		if i, ok := index[r.ParentID]; ok {
			comments[i].Replies = append(comments[i].Replies, r)
		}
	}
	return comments, nil
}

// ToggleLike flips userID's like on the post and returns the new state.
func (db *DB) ToggleLike(ctx context.Context, postID, userID string) (liked bool, likes int, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := postExists(ctx, tx, postID); err != nil {
		return false, 0, err
	}

	res, err := tx.ExecContext(ctx,
		"DELETE FROM post_likes WHERE post_id = ? AND user_id = ?", postID, userID)
	if err != nil {
		return false, 0, fmt.Errorf("error removing like: %w", err)
	}
	removed, _ := res.RowsAffected()
	if removed == 0 {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO post_likes (post_id, user_id, created_at) VALUES (?, ?, ?)",
			postID, userID, time.Now().UTC(),
		); err != nil {
			return false, 0, fmt.Errorf("error adding like: %w", err)
		}
		liked = true
	}

	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM post_likes WHERE post_id = ?", postID,
	).Scan(&likes); err != nil {
		return false, 0, fmt.Errorf("error counting likes: %w", err)
	}
	if err := touchPost(ctx, tx, postID); err != nil {
		return false, 0, err
	}
	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("error committing like: %w", err)
	}
	return liked, likes, nil
}

// AddComment appends a top-level comment to the post.
func (db *DB) AddComment(ctx context.Context, postID string, c Comment) (*Comment, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.Section = NormaliseSection(c.Section)
	c.Replies = []Reply{}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := postExists(ctx, tx, postID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO comments (id, post_id, parent_id, section, author_id, author_name, content, created_at)
		VALUES (?, ?, NULL, ?, ?, ?, ?, ?)`,
		c.ID, postID, c.Section, c.AuthorID, c.AuthorName, c.Content, c.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("error inserting comment: %w", err)
	}
	if err := touchPost(ctx, tx, postID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing comment: %w", err)
	}
	return &c, nil
}

// AddReply attaches a reply to a top-level comment of the post. Replies to
// replies are rejected with ErrNotFound, which keeps threads one level deep.
func (db *DB) AddReply(ctx context.Context, postID, parentID string, r Reply) (*Reply, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.ParentID = parentID

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := postExists(ctx, tx, postID); err != nil {
		return nil, err
	}

	var section string
	err = tx.QueryRowContext(ctx,
		"SELECT section FROM comments WHERE id = ? AND post_id = ? AND parent_id IS NULL",
		parentID, postID,
	).Scan(&section)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: comment %s", ErrNotFound, parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("error loading parent comment: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO comments (id, post_id, parent_id, section, author_id, author_name, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, postID, parentID, section, r.AuthorID, r.AuthorName, r.Content, r.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("error inserting reply: %w", err)
	}
	if err := touchPost(ctx, tx, postID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing reply: %w", err)
	}
	return &r, nil
}

func (db *DB) CountPosts(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts").Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting posts: %w", err)
	}
	return n, nil
}

func postExists(ctx context.Context, tx *sql.Tx, postID string) error {
	var exists bool
	if err := tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM posts WHERE id = ?)", postID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("error checking post: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: post %s", ErrNotFound, postID)
	}
	return nil
}

func touchPost(ctx context.Context, tx *sql.Tx, postID string) error {
	if _, err := tx.ExecContext(ctx,
		"UPDATE posts SET updated_at = ? WHERE id = ?", time.Now().UTC(), postID,
	); err != nil {
		return fmt.Errorf("error updating post timestamp: %w", err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// table and column are package constants, never user input.
func loadTags(ctx context.Context, q queryer, table, column, id string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		fmt.Sprintf("SELECT tag FROM %s WHERE %s = ? ORDER BY position", table, column), id)
	if err != nil {
		return nil, fmt.Errorf("error querying tags: %w", err)
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("error scanning tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func replaceTags(ctx context.Context, tx *sql.Tx, table, column, id string, tags []string) error {
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, column), id); err != nil {
		return fmt.Errorf("error clearing tags: %w", err)
	}
	for i, tag := range tags {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (%s, position, tag) VALUES (?, ?, ?)", table, column),
			id, i, tag,
		); err != nil {
			return fmt.Errorf("error inserting tag: %w", err)
		}
	}
	return nil
}
