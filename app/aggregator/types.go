package aggregator

import (
	"time"
)

// Feed is a tracked source. LastUpdated is the watermark: items published
// before it are considered already known.
type Feed struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	LastUpdated time.Time `json:"-"`
}

// LastUpdatedMillis returns the watermark as epoch milliseconds.
func (f Feed) LastUpdatedMillis() int64 {
	return f.LastUpdated.UnixMilli()
}

type Post struct {
	ID              string    `json:"id"`
	FeedID          string    `json:"feed_id"`
	Title           string    `json:"title"`
	Link            string    `json:"link"`
	Description     string    `json:"description,omitempty"`
	PublicationDate time.Time `json:"publication_date"`
}

type Op string

const (
	OpRegister Op = "register"
	OpRefresh  Op = "refresh"
)

// ErrorEntry is one failure recorded in the errors collection.
type ErrorEntry struct {
	Op     Op
	URL    string
	FeedID string
	Err    error
	At     time.Time
}

func (e ErrorEntry) Message() string {
	return e.Err.Error()
}

type Stats struct {
	Feeds  int `json:"feeds"`
	Posts  int `json:"posts"`
	Errors int `json:"errors"`
}
