package feed

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadSeeds reads the list of feeds to register at startup.
// A missing file is not an error and yields no seeds.
func LoadSeeds(path string) ([]Seed, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Debug("Seed file not found, starting without seeds", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var seeds Seeds
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateSeeds(seeds.Feeds); err != nil {
		return nil, fmt.Errorf("invalid seed file %s: %w", path, err)
	}

	return seeds.Feeds, nil
}

func validateSeeds(seeds []Seed) error {
	seen := make(map[string]int, len(seeds))
	for i := range seeds {
		seeds[i].URL = strings.TrimSpace(seeds[i].URL)

		if err := ValidateURL(seeds[i].URL); err != nil {
			return fmt.Errorf("feed at index %d: %w", i, err)
		}

		if first, ok := seen[seeds[i].URL]; ok {
			return fmt.Errorf("feed at index %d duplicates index %d: %s", i, first, seeds[i].URL)
		}
		seen[seeds[i].URL] = i
	}

	return nil
}

// ValidateURL accepts absolute http and https URLs only.
func ValidateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("feed URL is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid feed URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("feed URL must use http or https: %s", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("feed URL has no host: %s", raw)
	}

	return nil
}
