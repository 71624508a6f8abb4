package cfg

import (
	"time"
)

type Cfg struct {
	// Application configuration
	Port         string
	BaseUrl      string
	FeedsFile    string
	DBPath       string
	APIAccessKey string

	// Polling
	PollInterval time.Duration
	WorkerCount  int
	FetchTimeout time.Duration
	ProxyURL     string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}

// SelfURL is the public address of the merged feed.
func (c *Cfg) SelfURL() string {
	if c.BaseUrl != "" {
		return c.BaseUrl + "/feed"
	}
	return "http://localhost:" + c.Port + "/feed"
}
