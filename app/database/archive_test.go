package database

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/lysyi3m/rss-river/app/aggregator"
	"github.com/lysyi3m/rss-river/app/feed"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "archive", "river.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func counts(t *testing.T, db *DB) (int, int) {
	t.Helper()

	var feeds, posts int
	if err := db.QueryRow(`SELECT (SELECT COUNT(*) FROM feeds), (SELECT COUNT(*) FROM posts)`).Scan(&feeds, &posts); err != nil {
		t.Fatalf("Failed to count rows: %v", err)
	}
	return feeds, posts
}

var t0 = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

func TestOpenRunsMigrations(t *testing.T) {
	db := openTestDB(t)

	for _, table := range []string{"feeds", "posts"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("Expected table %s to exist, got error: %v", table, err)
		}
	}

	// Running again on an up to date schema is a no-op
	version, dirty, err := RunMigrations(db)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("Expected version 1 clean, got %d dirty=%v", version, dirty)
	}
}

func TestSaveAndLoadFeeds(t *testing.T) {
	archive := NewArchive(openTestDB(t))

	first := aggregator.Feed{ID: "f1", URL: "https://a.example.com", Title: "A", LastUpdated: t0}
	second := aggregator.Feed{ID: "f2", URL: "https://b.example.com", Title: "B", LastUpdated: t0}

	if err := archive.SaveFeeds([]aggregator.Feed{first}); err != nil {
		t.Fatal(err)
	}
	if err := archive.SaveFeeds([]aggregator.Feed{second}); err != nil {
		t.Fatal(err)
	}

	// Watermark update of an existing feed keeps its position
	first.LastUpdated = t0.Add(15 * time.Second)
	first.Title = "A renamed"
	if err := archive.SaveFeeds([]aggregator.Feed{first}); err != nil {
		t.Fatal(err)
	}

	feeds, err := archive.LoadFeeds()
	if err != nil {
		t.Fatal(err)
	}
	if len(feeds) != 2 {
		t.Fatalf("Expected 2 feeds, got %d", len(feeds))
	}
	if feeds[0].ID != "f2" || feeds[1].ID != "f1" {
		t.Errorf("Expected feeds [f2, f1], got [%s, %s]", feeds[0].ID, feeds[1].ID)
	}
	if !feeds[1].LastUpdated.Equal(first.LastUpdated) {
		t.Errorf("Expected watermark %v, got %v", first.LastUpdated, feeds[1].LastUpdated)
	}
	if feeds[1].Title != "A renamed" {
		t.Errorf("Expected updated title, got '%s'", feeds[1].Title)
	}
}

func TestSaveAndLoadPostsKeepsCollectionOrder(t *testing.T) {
	archive := NewArchive(openTestDB(t))

	if err := archive.SaveFeeds([]aggregator.Feed{{ID: "f1", URL: "https://a.example.com", Title: "A", LastUpdated: t0}}); err != nil {
		t.Fatal(err)
	}

	older := []aggregator.Post{
		{ID: "p1", FeedID: "f1", Title: "one", PublicationDate: t0.Add(-2 * time.Hour)},
		{ID: "p2", FeedID: "f1", Title: "two", PublicationDate: t0.Add(-3 * time.Hour)},
	}
	newer := []aggregator.Post{
		{ID: "p3", FeedID: "f1", Title: "three", PublicationDate: t0.Add(time.Minute)},
		{ID: "p4", FeedID: "f1", Title: "four", PublicationDate: t0},
	}

	if err := archive.SavePosts(older); err != nil {
		t.Fatal(err)
	}
	if err := archive.SavePosts(newer); err != nil {
		t.Fatal(err)
	}
	// Replayed posts are ignored
	if err := archive.SavePosts(older[:1]); err != nil {
		t.Fatal(err)
	}

	posts, err := archive.LoadPosts()
	if err != nil {
		t.Fatal(err)
	}

	expected := []string{"p3", "p4", "p1", "p2"}
	if len(posts) != len(expected) {
		t.Fatalf("Expected %d posts, got %d", len(expected), len(posts))
	}
	for i, id := range expected {
		if posts[i].ID != id {
			t.Errorf("Expected post %d to be %s, got %s", i, id, posts[i].ID)
		}
	}
	if !posts[0].PublicationDate.Equal(t0.Add(time.Minute)) {
		t.Errorf("Expected publication date %v, got %v", t0.Add(time.Minute), posts[0].PublicationDate)
	}
}

func TestSavePostsRejectsUnknownFeed(t *testing.T) {
	archive := NewArchive(openTestDB(t))

	err := archive.SavePosts([]aggregator.Post{{ID: "p1", FeedID: "missing", PublicationDate: t0}})
	if err == nil {
		t.Error("Expected foreign key violation for unknown feed")
	}
}

type staticFetcher map[string]string

func (f staticFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	doc, ok := f[url]
	if !ok {
		return nil, fmt.Errorf("no document for %s", url)
	}
	return []byte(doc), nil
}

const archivedDocument = `<?xml version="1.0"?><rss version="2.0"><channel><title>Archived</title>
<item><title>newer</title><link>https://a.example.com/2</link><pubDate>Sun, 10 Mar 2024 11:00:00 +0000</pubDate></item>
<item><title>older</title><link>https://a.example.com/1</link><pubDate>Sun, 10 Mar 2024 10:00:00 +0000</pubDate></item>
</channel></rss>`

func TestArchiveRoundTripThroughStore(t *testing.T) {
	db := openTestDB(t)
	archive := NewArchive(db)

	fetcher := staticFetcher{"https://a.example.com/rss": archivedDocument}
	store := aggregator.New(fetcher, feed.NewParser(), aggregator.WithClock(func() time.Time { return t0 }))
	store.Subscribe(archive.Handle)

	if _, err := store.Register(context.Background(), "https://a.example.com/rss"); err != nil {
		t.Fatal(err)
	}
	// Failures produce only error events, which are not archived
	store.Register(context.Background(), "https://missing.example.com/rss")

	if f, p := counts(t, db); f != 1 || p != 2 {
		t.Fatalf("Expected 1 feed and 2 posts archived, got %d and %d", f, p)
	}

	restored := aggregator.New(fetcher, feed.NewParser())
	feeds, posts, err := archive.RestoreInto(restored)
	if err != nil {
		t.Fatalf("Expected restore to succeed, got: %v", err)
	}
	if feeds != 1 || posts != 2 {
		t.Errorf("Expected 1 feed and 2 posts restored, got %d and %d", feeds, posts)
	}

	original := store.Posts()
	for i, p := range restored.Posts() {
		want := original[i]
		if p.ID != want.ID || p.FeedID != want.FeedID || p.Title != want.Title || p.Link != want.Link {
			t.Errorf("Expected restored post %+v, got %+v", want, p)
		}
		if !p.PublicationDate.Equal(want.PublicationDate) {
			t.Errorf("Expected publication date %v, got %v", want.PublicationDate, p.PublicationDate)
		}
	}

	f, _ := restored.Feed(store.Feeds()[0].ID)
	if !f.LastUpdated.Equal(t0) {
		t.Errorf("Expected restored watermark %v, got %v", t0, f.LastUpdated)
	}
	if !restored.Tracked("https://a.example.com/rss") {
		t.Error("Expected restored feed URL to be tracked")
	}
}
