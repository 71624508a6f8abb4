package aggregator

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateFeed = errors.New("feed already registered")
	ErrUnknownFeed   = errors.New("feed not registered")
)

// DuplicateFeedError is returned by Register when the URL is already
// tracked or being registered.
type DuplicateFeedError struct {
	URL string
}

func (e *DuplicateFeedError) Error() string {
	return fmt.Sprintf("%v: %s", ErrDuplicateFeed, e.URL)
}

func (e *DuplicateFeedError) Is(target error) bool {
	return target == ErrDuplicateFeed
}
