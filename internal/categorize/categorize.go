// Package categorize assigns a single coarse category to free text using an
// ordered keyword table.
package categorize

import (
	"context"
	"fmt"
	"strings"

	"github.com/deusflow/newsagg/internal/model"
)

const DefaultFallback = "general"

// Rule maps a category label to the keyword substrings that select it.
type Rule struct {
	Label    string   `yaml:"label"`
	Keywords []string `yaml:"keywords"`
}

// Categorizer is safe for concurrent use; it never changes after New.
type Categorizer struct {
	rules    []Rule
	fallback string
}

// New copies the table. Keywords are lower-cased and blanks dropped, rules
// without a label are ignored. Table order decides ties.
func New(table []Rule, fallback string) *Categorizer {
	fallback = strings.TrimSpace(fallback)
	if fallback == "" {
		fallback = DefaultFallback
	}

	rules := make([]Rule, 0, len(table))
	for _, r := range table {
		label := strings.TrimSpace(r.Label)
		if label == "" {
			continue
		}
		kws := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				kws = append(kws, kw)
			}
		}
		rules = append(rules, Rule{Label: label, Keywords: kws})
	}
	return &Categorizer{rules: rules, fallback: fallback}
}

// Categorize returns the label of the first rule with a keyword contained in
// text, or the fallback label.
func (c *Categorizer) Categorize(text string) string {
	lower := strings.ToLower(text)
	for _, r := range c.rules {
		if containsAny(lower, r.Keywords) {
			return r.Label
		}
	}
	return c.fallback
}

// CategorizeEntry categorizes the title and summary together.
func (c *Categorizer) CategorizeEntry(title, summary string) string {
	return c.Categorize(title + " " + summary)
}

func (c *Categorizer) Fallback() string {
	return c.fallback
}

// Labels lists every label the categorizer can return, table order first.
func (c *Categorizer) Labels() []string {
	out := make([]string, 0, len(c.rules)+1)
	seen := make(map[string]bool, len(c.rules)+1)
	for _, r := range c.rules {
		if !seen[r.Label] {
			seen[r.Label] = true
			out = append(out, r.Label)
		}
	}
	if !seen[c.fallback] {
		out = append(out, c.fallback)
	}
	return out
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// Store is what re-categorization needs from persistence.
type Store interface {
	FindUncategorized(ctx context.Context) ([]model.Article, error)
	GetOrCreateCategory(ctx context.Context, name string) (model.Category, error)
	Update(ctx context.Context, a model.Article) error
}

// UpdateCategories assigns a category to every uncategorized article and
// returns how many were updated. A second call with no new uncategorized
// articles updates nothing.
func (c *Categorizer) UpdateCategories(ctx context.Context, store Store) (int, error) {
	articles, err := store.FindUncategorized(ctx)
	if err != nil {
		return 0, fmt.Errorf("find uncategorized: %w", err)
	}

	resolved := make(map[string]model.Category)
	updated := 0
	for _, a := range articles {
		if err := ctx.Err(); err != nil {
			return updated, err
		}

		label := c.CategorizeEntry(a.Title, a.Body)
		cat, ok := resolved[label]
		if !ok {
			cat, err = store.GetOrCreateCategory(ctx, label)
			if err != nil {
				return updated, fmt.Errorf("resolve category %q: %w", label, err)
			}
			resolved[label] = cat
		}

		a.Category = cat.Name
		a.CategoryID = cat.ID
		if err := store.Update(ctx, a); err != nil {
			return updated, fmt.Errorf("update article %d: %w", a.ID, err)
		}
		updated++
	}
	return updated, nil
}
