package api

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"time"

	"github.com/lysyi3m/rss-river/app/aggregator"
)

// Generator renders the merged post stream as a single RSS 2.0 channel.
type Generator struct {
	selfURL string
	version string
}

func NewGenerator(selfURL, version string) *Generator {
	return &Generator{selfURL: selfURL, version: version}
}

func (g *Generator) Run(feeds []aggregator.Feed, posts []aggregator.Post) (string, error) {
	var buf bytes.Buffer

	sources := make(map[string]aggregator.Feed, len(feeds))
	for _, f := range feeds {
		sources[f.ID] = f
	}

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", "RSS River", 4)
	g.writeElement(&buf, "link", g.selfURL, 4)
	g.writeElement(&buf, "description", fmt.Sprintf("Merged stream of %d feeds", len(feeds)), 4)

	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(g.selfURL)))

	lastBuildDate := time.Now().In(time.Local)
	for _, f := range feeds {
		if f.LastUpdated.After(lastBuildDate) {
			lastBuildDate = f.LastUpdated
		}
	}

	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("RSS-River/%s", g.version), 4)

	for _, post := range posts {
		g.writeItem(&buf, post, sources[post.FeedID])
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, post aggregator.Post, source aggregator.Feed) {
	buf.WriteString("    <item>\n")

	buf.WriteString("      <guid isPermaLink=\"false\">")
	xml.EscapeText(buf, []byte(post.ID))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", post.Title, 6)
	g.writeElement(buf, "link", post.Link, 6)
	g.writeElement(buf, "description", cmp.Or(post.Description, "No description available"), 6)
	g.writeElement(buf, "pubDate", post.PublicationDate.Format(time.RFC1123Z), 6)

	if source.URL != "" {
		buf.WriteString(fmt.Sprintf("      <source url=\"%s\">", html.EscapeString(source.URL)))
		xml.EscapeText(buf, []byte(cmp.Or(source.Title, source.URL)))
		buf.WriteString("</source>\n")
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}
