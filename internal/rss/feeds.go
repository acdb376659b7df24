package rss

import (
	"fmt"
	"os"
	"strings"

	"github.com/deusflow/newsagg/internal/categorize"
	"github.com/deusflow/newsagg/internal/model"
	"gopkg.in/yaml.v3"
)

// FeedsConfig is YAML config structure
//
//	fallback: general
//	sources:
//	  - name: Lenta
//	    feed_url: https://lenta.ru/rss
//	categories:
//	  - label: economy
//	    keywords: [ставка, цб]
type FeedsConfig struct {
	Fallback   string             `yaml:"fallback"`
	Sources    []model.FeedSource `yaml:"sources"`
	Categories []categorize.Rule  `yaml:"categories"`
}

// LoadFeeds reads sources and the keyword table from a YAML file.
func LoadFeeds(path string) (*FeedsConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg FeedsConfig
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Validate requires a name and a target per source, unique names and a known kind.
func (c *FeedsConfig) Validate() error {
	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return fmt.Errorf("source #%d: name is required", i+1)
		}
		if seen[name] {
			return fmt.Errorf("source %q: duplicate name", name)
		}
		seen[name] = true
		if s.Target() == "" {
			return fmt.Errorf("source %q: url or feed_url is required", name)
		}
		switch s.ResolvedKind() {
		case model.KindRSS, model.KindHTML:
		default:
			return fmt.Errorf("source %q: unknown kind %q", name, s.Kind)
		}
	}
	return nil
}

// Table returns the configured keyword table, or the built-in one.
func (c *FeedsConfig) Table() []categorize.Rule {
	if len(c.Categories) == 0 {
		return categorize.DefaultTable()
	}
	return c.Categories
}
