package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/text/unicode/norm"
)

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Run parses a feed document. Items without a usable publication date, or
// with neither title nor link, are left out and reported in Metadata.Skipped.
func (p *Parser) Run(data []byte) (*Metadata, []Item, error) {
	// gofeed keeps per-document state on the parser, so every call gets its own.
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, &ParseError{Err: fmt.Errorf("failed to parse feed: %w", err)}
	}

	title := cleanText(parsed.Title)
	if title == "" {
		return nil, nil, &ParseError{Err: ErrMissingTitle}
	}

	metadata := &Metadata{
		Title:       title,
		Link:        parsed.Link,
		Description: cleanText(parsed.Description),
		Language:    parsed.Language,
	}

	items := make([]Item, 0, len(parsed.Items))
	for i, item := range parsed.Items {
		if item == nil {
			continue
		}

		normalized, reason := p.normalizeItem(item)
		if reason != "" {
			metadata.Skipped = append(metadata.Skipped, SkippedItem{
				Index:  i,
				Title:  item.Title,
				Reason: reason,
			})
			continue
		}

		items = append(items, normalized)
	}

	return metadata, items, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) (Item, string) {
	title := cleanText(item.Title)
	link := strings.TrimSpace(item.Link)
	if title == "" && link == "" {
		return Item{}, "missing title and link"
	}

	publishedAt, reason := p.publicationDate(item)
	if reason != "" {
		return Item{}, reason
	}

	return Item{
		GUID:        cmp.Or(item.GUID, link),
		Title:       title,
		Link:        link,
		Description: cleanText(item.Description),
		PublishedAt: publishedAt.UTC(),
	}, ""
}

func (p *Parser) publicationDate(item *gofeed.Item) (time.Time, string) {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed, ""
	}

	if strings.TrimSpace(item.Published) != "" {
		return time.Time{}, fmt.Sprintf("unparseable publication date %q", item.Published)
	}

	// Atom entries may carry only <updated>
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed, ""
	}

	return time.Time{}, "missing publication date"
}

// cleanText trims s and composes it to NFC so that visually equal titles
// from different producers compare equal.
func cleanText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
