package database

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/rss-river/app/aggregator"
)

// Archive journals store events into SQLite so that a restarted process can
// restore its feeds and posts.
type Archive struct {
	db  *DB
	now func() time.Time
}

func NewArchive(db *DB) *Archive {
	return &Archive{db: db, now: time.Now}
}

// Handle is an aggregator.Handler. Write failures are logged and dropped.
func (a *Archive) Handle(ev aggregator.Event) {
	var err error

	switch ev.Type {
	case aggregator.FeedsChanged:
		err = a.SaveFeeds(ev.Feeds)
	case aggregator.PostsChanged:
		err = a.SavePosts(ev.Posts)
	default:
		return
	}

	if err != nil {
		slog.Error("Failed to archive store event", "type", string(ev.Type), "error", err)
	}
}

// SaveFeeds inserts new feeds and updates the metadata and watermark of
// known ones.
func (a *Archive) SaveFeeds(feeds []aggregator.Feed) error {
	if len(feeds) == 0 {
		return nil
	}

	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO feeds (id, url, title, description, last_updated, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			last_updated = excluded.last_updated
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare feed upsert: %w", err)
	}
	defer stmt.Close()

	createdAt := a.now().UnixMilli()
	for _, f := range feeds {
		if _, err := stmt.Exec(f.ID, f.URL, f.Title, f.Description, f.LastUpdatedMillis(), createdAt); err != nil {
			return fmt.Errorf("failed to upsert feed %s: %w", f.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit feeds: %w", err)
	}

	return nil
}

// SavePosts stores one ingested block. Blocks are numbered in arrival order
// and posts keep their position inside the block.
func (a *Archive) SavePosts(posts []aggregator.Post) error {
	if len(posts) == 0 {
		return nil
	}

	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var block int64
	if err := tx.QueryRow(`SELECT COALESCE(MAX(block), 0) + 1 FROM posts`).Scan(&block); err != nil {
		return fmt.Errorf("failed to allocate post block: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO posts (id, feed_id, title, link, description, publication_date, block, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare post insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range posts {
		if _, err := stmt.Exec(p.ID, p.FeedID, p.Title, p.Link, p.Description, p.PublicationDate.UnixMilli(), block, i); err != nil {
			return fmt.Errorf("failed to insert post %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit posts: %w", err)
	}

	return nil
}

// LoadFeeds returns archived feeds most recently registered first.
func (a *Archive) LoadFeeds() ([]aggregator.Feed, error) {
	rows, err := a.db.Query(`
		SELECT id, url, title, description, last_updated
		FROM feeds
		ORDER BY rowid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query feeds: %w", err)
	}
	defer rows.Close()

	var feeds []aggregator.Feed
	for rows.Next() {
		var (
			f           aggregator.Feed
			lastUpdated int64
		)
		if err := rows.Scan(&f.ID, &f.URL, &f.Title, &f.Description, &lastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		f.LastUpdated = time.UnixMilli(lastUpdated).UTC()
		feeds = append(feeds, f)
	}

	return feeds, rows.Err()
}

// LoadPosts returns archived posts newest block first, document order inside
// each block.
func (a *Archive) LoadPosts() ([]aggregator.Post, error) {
	rows, err := a.db.Query(`
		SELECT id, feed_id, title, link, description, publication_date
		FROM posts
		ORDER BY block DESC, position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	var posts []aggregator.Post
	for rows.Next() {
		var (
			p         aggregator.Post
			published int64
		)
		if err := rows.Scan(&p.ID, &p.FeedID, &p.Title, &p.Link, &p.Description, &published); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		p.PublicationDate = time.UnixMilli(published).UTC()
		posts = append(posts, p)
	}

	return posts, rows.Err()
}

// RestoreInto loads the archive into an empty store.
func (a *Archive) RestoreInto(store *aggregator.Store) (int, int, error) {
	feeds, err := a.LoadFeeds()
	if err != nil {
		return 0, 0, err
	}

	posts, err := a.LoadPosts()
	if err != nil {
		return 0, 0, err
	}

	if err := store.Restore(feeds, posts); err != nil {
		return 0, 0, err
	}

	return len(feeds), len(posts), nil
}
