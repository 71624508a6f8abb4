package api

import (
	"context"

	"github.com/lysyi3m/rss-river/app/aggregator"
	"github.com/lysyi3m/rss-river/app/tasks"
)

type StoreInterface interface {
	Register(ctx context.Context, url string) (string, error)
	Feeds() []aggregator.Feed
	Posts() []aggregator.Post
	Errors() []aggregator.ErrorEntry
	Feed(id string) (aggregator.Feed, bool)
	Stats() aggregator.Stats
	Subscribe(h aggregator.Handler) func()
}

type GeneratorInterface interface {
	Run(feeds []aggregator.Feed, posts []aggregator.Post) (string, error)
}

var (
	_ StoreInterface     = (*aggregator.Store)(nil)
	_ GeneratorInterface = (*Generator)(nil)
)

type Handler struct {
	store     StoreInterface
	generator GeneratorInterface
	scheduler tasks.TaskSchedulerInterface
	version   string
}

type registerRequest struct {
	URL string `json:"url" binding:"required"`
}

type feedResponse struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	LastUpdated int64  `json:"last_updated"`
}

type postResponse struct {
	ID              string `json:"id"`
	FeedID          string `json:"feed_id"`
	Title           string `json:"title"`
	Link            string `json:"link"`
	Description     string `json:"description,omitempty"`
	PublicationDate int64  `json:"publication_date"`
}

type errorResponse struct {
	Op      string `json:"op"`
	URL     string `json:"url"`
	FeedID  string `json:"feed_id,omitempty"`
	Message string `json:"message"`
	At      int64  `json:"at"`
}

type eventResponse struct {
	Type   string          `json:"type"`
	Feeds  []feedResponse  `json:"feeds,omitempty"`
	Posts  []postResponse  `json:"posts,omitempty"`
	Errors []errorResponse `json:"errors,omitempty"`
	At     int64           `json:"at"`
}

func toFeedResponses(feeds []aggregator.Feed) []feedResponse {
	out := make([]feedResponse, 0, len(feeds))
	for _, f := range feeds {
		out = append(out, feedResponse{
			ID:          f.ID,
			URL:         f.URL,
			Title:       f.Title,
			Description: f.Description,
			LastUpdated: f.LastUpdatedMillis(),
		})
	}
	return out
}

func toPostResponses(posts []aggregator.Post) []postResponse {
	out := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		out = append(out, postResponse{
			ID:              p.ID,
			FeedID:          p.FeedID,
			Title:           p.Title,
			Link:            p.Link,
			Description:     p.Description,
			PublicationDate: p.PublicationDate.UnixMilli(),
		})
	}
	return out
}

func toErrorResponses(entries []aggregator.ErrorEntry) []errorResponse {
	out := make([]errorResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, errorResponse{
			Op:      string(e.Op),
			URL:     e.URL,
			FeedID:  e.FeedID,
			Message: e.Message(),
			At:      e.At.UnixMilli(),
		})
	}
	return out
}

func toEventResponse(ev aggregator.Event) eventResponse {
	resp := eventResponse{Type: string(ev.Type), At: ev.At.UnixMilli()}
	switch ev.Type {
	case aggregator.FeedsChanged:
		resp.Feeds = toFeedResponses(ev.Feeds)
	case aggregator.PostsChanged:
		resp.Posts = toPostResponses(ev.Posts)
	case aggregator.ErrorsChanged:
		resp.Errors = toErrorResponses(ev.Errors)
	}
	return resp
}
