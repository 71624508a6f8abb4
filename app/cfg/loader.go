package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Application configuration
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl      string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://river.example.com)"`
	FeedsFile    string `long:"feeds-file" env:"FEEDS_FILE" default:"./feeds.yml" description:"YAML file with feed URLs registered at startup"`
	DBPath       string `long:"db-path" env:"DB_PATH" description:"SQLite archive path (optional, in-memory only when empty)"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Polling
	PollInterval int    `long:"poll-interval" env:"POLL_INTERVAL" default:"15" description:"Seconds between the end of one poll round and the start of the next"`
	WorkerCount  int    `long:"worker-count" env:"WORKER_COUNT" default:"0" description:"Concurrent refreshes per round (0 = all feeds at once)"`
	FetchTimeout int    `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"30" description:"HTTP fetch timeout in seconds"`
	ProxyURL     string `long:"proxy-url" env:"PROXY_URL" description:"Prefix prepended to every feed URL (e.g., https://proxy.example.com/?url=)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"RSS River/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

// Load parses the process arguments and environment into the global config.
// It returns nil, nil when help was requested.
func Load() (*Cfg, error) {
	return LoadArgs(os.Args[1:])
}

func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := raw.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := &Cfg{
		Port:         raw.Port,
		BaseUrl:      strings.TrimRight(raw.BaseUrl, "/"),
		FeedsFile:    raw.FeedsFile,
		DBPath:       raw.DBPath,
		APIAccessKey: raw.APIAccessKey,
		PollInterval: time.Duration(raw.PollInterval) * time.Second,
		WorkerCount:  raw.WorkerCount,
		FetchTimeout: time.Duration(raw.FetchTimeout) * time.Second,
		ProxyURL:     raw.ProxyURL,
		UserAgent:    raw.UserAgent,
		Timezone:     raw.Timezone,
		Debug:        raw.Debug,
		Version:      GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func (r *rawCfg) validate() error {
	if r.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %d", r.PollInterval)
	}
	if r.WorkerCount < 0 {
		return fmt.Errorf("worker count must not be negative, got %d", r.WorkerCount)
	}
	if r.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %d", r.FetchTimeout)
	}
	if r.ProxyURL != "" {
		u, err := url.Parse(r.ProxyURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("proxy URL must be an absolute http(s) URL, got %q", r.ProxyURL)
		}
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
