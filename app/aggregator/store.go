package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lysyi3m/rss-river/app/feed"
)

// Fetcher returns the raw document behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// DefaultMaxErrors bounds the errors collection between registrations.
const DefaultMaxErrors = 1000

type Option func(*Store)

// WithMaxErrors caps the errors collection; the oldest entries are dropped
// first. n <= 0 disables the cap.
func WithMaxErrors(n int) Option {
	return func(s *Store) { s.maxErrors = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithFeedIDs(next func() string) Option {
	return func(s *Store) { s.newFeedID = next }
}

func WithPostIDs(next func() string) Option {
	return func(s *Store) { s.newPostID = next }
}

// Store owns the feeds, posts and errors collections. Register and Refresh
// are the only operations that mutate them.
type Store struct {
	fetcher   Fetcher
	parser    *feed.Parser
	now       func() time.Time
	newFeedID func() string
	newPostID func() string

	mu      sync.RWMutex
	feeds   []Feed // most recently registered first
	posts   []Post // most recently ingested block first
	errors  []ErrorEntry
	pending map[string]struct{}
	issued  uint64 // delivery tickets handed out, guarded by mu

	maxErrors int

	emitMu      sync.Mutex
	emitCond    *sync.Cond
	delivered   uint64 // last ticket delivered, guarded by emitMu
	subMu       sync.Mutex
	subscribers []subscriber
	nextSubID   int
}

func New(fetcher Fetcher, parser *feed.Parser, opts ...Option) *Store {
	s := &Store{
		fetcher:   fetcher,
		parser:    parser,
		now:       time.Now,
		newFeedID: uuid.NewString,
		newPostID: uuid.NewString,
		pending:   make(map[string]struct{}),
		maxErrors: DefaultMaxErrors,
	}
	s.emitCond = sync.NewCond(&s.emitMu)

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Register fetches and parses url, then adds the feed and its posts in one
// step. Nothing is committed when any stage fails.
func (s *Store) Register(ctx context.Context, url string) (string, error) {
	s.mu.Lock()
	events := s.resetErrorsLocked()

	if s.trackedLocked(url) {
		err := &DuplicateFeedError{URL: url}
		events = append(events, s.recordErrorLocked(OpRegister, url, "", err))
		s.commit(events)
		return "", err
	}

	s.pending[url] = struct{}{}
	s.commit(events)

	metadata, items, err := s.load(ctx, url)

	s.mu.Lock()
	delete(s.pending, url)

	if err != nil {
		ev := s.recordErrorLocked(OpRegister, url, "", err)
		s.commit([]Event{ev})
		return "", fmt.Errorf("failed to register feed: %w", err)
	}

	now := s.clock()
	registered := Feed{
		ID:          s.newFeedID(),
		URL:         url,
		Title:       metadata.Title,
		Description: metadata.Description,
		LastUpdated: now,
	}

	block := s.newPostsLocked(registered.ID, items)

	s.feeds = append([]Feed{registered}, s.feeds...)
	s.posts = append(block, s.posts...)

	events = []Event{{Type: FeedsChanged, Feeds: []Feed{registered}, At: now}}
	if len(block) > 0 {
		events = append(events, Event{Type: PostsChanged, Posts: clonePosts(block), At: now})
	}
	s.commit(events)

	slog.Info("Feed registered", "feed", url, "id", registered.ID, "title", registered.Title, "posts", len(block))

	return registered.ID, nil
}

// Refresh ingests the items of f published at or after its watermark and
// advances the watermark to the refresh time. On failure the watermark is
// left as it was. It returns the number of new posts.
func (s *Store) Refresh(ctx context.Context, f Feed) (int, error) {
	s.mu.RLock()
	_, ok := s.indexLocked(f.ID)
	s.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("failed to refresh feed %s: %w", f.ID, ErrUnknownFeed)
	}

	_, items, err := s.load(ctx, f.URL)

	s.mu.Lock()

	if err != nil {
		ev := s.recordErrorLocked(OpRefresh, f.URL, f.ID, err)
		s.commit([]Event{ev})
		return 0, fmt.Errorf("failed to refresh feed: %w", err)
	}

	i, _ := s.indexLocked(f.ID)
	current := s.feeds[i]
	watermark := current.LastUpdated

	fresh := make([]feed.Item, 0, len(items))
	for _, item := range items {
		if !truncate(item.PublishedAt).Before(watermark) {
			fresh = append(fresh, item)
		}
	}

	block := s.newPostsLocked(current.ID, fresh)

	now := s.clock()
	if now.After(current.LastUpdated) {
		current.LastUpdated = now
	}
	s.feeds[i] = current

	var events []Event
	if len(block) > 0 {
		s.posts = append(block, s.posts...)
		events = append(events, Event{Type: PostsChanged, Posts: clonePosts(block), At: now})
	}
	events = append(events, Event{Type: FeedsChanged, Feeds: []Feed{current}, At: now})
	s.commit(events)

	return len(block), nil
}

// Restore seeds an empty store with previously archived state. Feeds and
// posts must already be in collection order.
func (s *Store) Restore(feeds []Feed, posts []Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.feeds) > 0 || len(s.posts) > 0 {
		return errors.New("failed to restore: store is not empty")
	}

	known := make(map[string]bool, len(feeds))
	for _, f := range feeds {
		if known[f.ID] {
			return fmt.Errorf("failed to restore: duplicate feed id %s", f.ID)
		}
		known[f.ID] = true
	}

	for _, p := range posts {
		if !known[p.FeedID] {
			return fmt.Errorf("failed to restore: post %s references unknown feed %s", p.ID, p.FeedID)
		}
	}

	s.feeds = cloneFeeds(feeds)
	s.posts = clonePosts(posts)

	return nil
}

func (s *Store) Feeds() []Feed {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneFeeds(s.feeds)
}

func (s *Store) Posts() []Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePosts(s.posts)
}

func (s *Store) Errors() []ErrorEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneErrors(s.errors)
}

func (s *Store) Feed(id string) (Feed, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.indexLocked(id)
	if !ok {
		return Feed{}, false
	}
	return s.feeds[i], true
}

// Tracked reports whether url is registered or being registered.
func (s *Store) Tracked(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trackedLocked(url)
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Feeds: len(s.feeds), Posts: len(s.posts), Errors: len(s.errors)}
}

// load fetches and parses a document without holding any lock. A context
// that is already done fails like a transport error so it gets recorded.
func (s *Store) load(ctx context.Context, url string) (*feed.Metadata, []feed.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, &feed.TransportError{URL: url, Err: err}
	}

	data, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		var transportErr *feed.TransportError
		if !errors.As(err, &transportErr) {
			err = &feed.TransportError{URL: url, Err: err}
		}
		return nil, nil, err
	}

	metadata, items, err := s.parser.Run(data)
	if err != nil {
		return nil, nil, err
	}

	for _, skipped := range metadata.Skipped {
		slog.Warn("Skipping feed item", "feed", url, "index", skipped.Index, "title", skipped.Title, "reason", skipped.Reason)
	}

	return metadata, items, nil
}

func (s *Store) newPostsLocked(feedID string, items []feed.Item) []Post {
	posts := make([]Post, 0, len(items))
	for _, item := range items {
		posts = append(posts, Post{
			ID:              s.newPostID(),
			FeedID:          feedID,
			Title:           item.Title,
			Link:            item.Link,
			Description:     item.Description,
			PublicationDate: truncate(item.PublishedAt),
		})
	}
	return posts
}

func (s *Store) resetErrorsLocked() []Event {
	if len(s.errors) == 0 {
		return nil
	}
	s.errors = nil
	return []Event{{Type: ErrorsChanged, At: s.clock()}}
}

func (s *Store) recordErrorLocked(op Op, url, feedID string, err error) Event {
	now := s.clock()
	s.errors = append(s.errors, ErrorEntry{Op: op, URL: url, FeedID: feedID, Err: err, At: now})

	if s.maxErrors > 0 && len(s.errors) > s.maxErrors {
		dropped := len(s.errors) - s.maxErrors
		s.errors = append([]ErrorEntry(nil), s.errors[dropped:]...)
		slog.Debug("Errors collection trimmed", "dropped", dropped, "limit", s.maxErrors)
	}

	return Event{Type: ErrorsChanged, Errors: cloneErrors(s.errors), At: now}
}

func (s *Store) trackedLocked(url string) bool {
	if _, ok := s.pending[url]; ok {
		return true
	}
	for _, f := range s.feeds {
		if f.URL == url {
			return true
		}
	}
	return false
}

func (s *Store) indexLocked(id string) (int, bool) {
	for i, f := range s.feeds {
		if f.ID == id {
			return i, true
		}
	}
	return -1, false
}

func (s *Store) clock() time.Time {
	return truncate(s.now())
}

// Watermarks and publication dates are compared at millisecond precision.
func truncate(t time.Time) time.Time {
	return t.Truncate(time.Millisecond)
}

func cloneFeeds(feeds []Feed) []Feed {
	out := make([]Feed, len(feeds))
	copy(out, feeds)
	return out
}

func clonePosts(posts []Post) []Post {
	out := make([]Post, len(posts))
	copy(out, posts)
	return out
}

func cloneErrors(entries []ErrorEntry) []ErrorEntry {
	out := make([]ErrorEntry, len(entries))
	copy(out, entries)
	return out
}
