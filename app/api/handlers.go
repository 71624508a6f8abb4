package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/rss-river/app/aggregator"
	"github.com/lysyi3m/rss-river/app/feed"
	"github.com/lysyi3m/rss-river/app/tasks"
)

// eventBuffer bounds how far an SSE client may fall behind before events
// are dropped for it.
const eventBuffer = 64

func NewHandler(store StoreInterface, generator GeneratorInterface, scheduler tasks.TaskSchedulerInterface, version string) *Handler {
	return &Handler{
		store:     store,
		generator: generator,
		scheduler: scheduler,
		version:   version,
	}
}

func (h *Handler) GetFeed(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		c.Status(http.StatusBadRequest)
		return
	}

	feeds := h.store.Feeds()
	posts := h.store.Posts()
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}

	rss, err := h.generator.Run(feeds, posts)
	if err != nil {
		slog.Error("RSS generation error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(posts)))
	c.Header("X-Feed-Sources", strconv.Itoa(len(feeds)))

	c.String(http.StatusOK, rss)
}

func (h *Handler) GetHealth(c *gin.Context) {
	stats := h.store.Stats()

	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"feeds":     stats.Feeds,
		"posts":     stats.Posts,
		"errors":    stats.Errors,
	}

	if h.scheduler != nil {
		health["scheduler"] = map[string]interface{}{
			"state":  h.scheduler.State(),
			"rounds": h.scheduler.Rounds(),
		}
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) APIRegisterFeed(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := feed.ValidateURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid feed URL", "details": err.Error()})
		return
	}

	id, err := h.store.Register(c.Request.Context(), req.URL)
	if err != nil {
		status := registerStatus(err)
		slog.Warn("Feed registration failed", "feed", req.URL, "status", status, "error", err)
		c.JSON(status, gin.H{"error": "Failed to register feed", "details": err.Error()})
		return
	}

	registered, _ := h.store.Feed(id)
	c.JSON(http.StatusCreated, gin.H{
		"id":   id,
		"feed": toFeedResponses([]aggregator.Feed{registered})[0],
	})
}

func registerStatus(err error) int {
	var (
		transportErr *feed.TransportError
		parseErr     *feed.ParseError
	)

	switch {
	case errors.Is(err, aggregator.ErrDuplicateFeed):
		return http.StatusConflict
	case errors.As(err, &transportErr):
		return http.StatusBadGateway
	case errors.As(err, &parseErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) APIListFeeds(c *gin.Context) {
	feeds := toFeedResponses(h.store.Feeds())

	c.JSON(http.StatusOK, map[string]interface{}{
		"feeds": feeds,
		"total": len(feeds),
	})
}

func (h *Handler) APIListPosts(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
		return
	}

	posts := h.store.Posts()

	if feedID := c.Query("feed_id"); feedID != "" {
		if _, ok := h.store.Feed(feedID); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
			return
		}

		filtered := posts[:0]
		for _, p := range posts {
			if p.FeedID == feedID {
				filtered = append(filtered, p)
			}
		}
		posts = filtered
	}

	total := len(posts)
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"posts": toPostResponses(posts),
		"total": total,
	})
}

func (h *Handler) APIListErrors(c *gin.Context) {
	entries := toErrorResponses(h.store.Errors())

	c.JSON(http.StatusOK, map[string]interface{}{
		"errors": entries,
		"total":  len(entries),
	})
}

// APIStreamEvents forwards store events as Server-Sent Events until the
// client disconnects. A "ready" event is sent once the subscription is live.
func (h *Handler) APIStreamEvents(c *gin.Context) {
	events := make(chan aggregator.Event, eventBuffer)
	clientIP := c.ClientIP()

	unsubscribe := h.store.Subscribe(func(ev aggregator.Event) {
		select {
		case events <- ev:
		default:
			slog.Warn("Dropping event for slow client", "type", string(ev.Type), "client", clientIP)
		}
	})
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("ready", h.store.Stats())
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev := <-events:
			c.SSEvent(string(ev.Type), toEventResponse(ev))
			return true
		}
	})
}

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, false
	}
	return limit, true
}
