package feed

import (
	"time"
)

// Feed document types

type Metadata struct {
	Title       string
	Link        string
	Description string
	Language    string

	// Items dropped while parsing, in document order
	Skipped []SkippedItem
}

type Item struct {
	GUID        string
	Title       string
	Link        string
	Description string
	PublishedAt time.Time
}

type SkippedItem struct {
	Index  int // position in the source document
	Title  string
	Reason string
}

// Seed list types

type Seeds struct {
	Feeds []Seed `yaml:"feeds"`
}

type Seed struct {
	URL string `yaml:"url"`
}
