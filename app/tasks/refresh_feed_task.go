package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/rss-river/app/aggregator"
)

// Refresher is the part of the store the scheduler drives.
type Refresher interface {
	Feeds() []aggregator.Feed
	Refresh(ctx context.Context, f aggregator.Feed) (int, error)
}

type RefreshFeedTask struct {
	Task
	Feed  aggregator.Feed
	store Refresher
}

func NewRefreshFeedTask(f aggregator.Feed, store Refresher) *RefreshFeedTask {
	return &RefreshFeedTask{
		Task:  NewTask(TaskTypeRefreshFeed, f.URL),
		Feed:  f,
		store: store,
	}
}

// Execute always goes through the store, so a cancelled refresh is still
// recorded in its errors collection.
func (t *RefreshFeedTask) Execute(ctx context.Context) error {
	added, err := t.store.Refresh(ctx, t.Feed)
	if err != nil {
		return fmt.Errorf("failed to refresh %s: %w", t.FeedName, err)
	}

	slog.Info("Task completed",
		"type", "RefreshedFeed",
		"feed", t.FeedName,
		"duration", t.GetDuration(),
		"new", added)

	return nil
}
