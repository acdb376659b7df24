// Package rank orders articles by how well they match a user's stated
// preferences.
package rank

import (
	"slices"
	"strings"

	"github.com/deusflow/newsagg/internal/model"
)

const (
	CategoryWeight = 2
	SourceWeight   = 1
)

// Score adds CategoryWeight when the article's category is one of the
// preferred categories and SourceWeight when its source name contains any
// preferred source, ignoring case. Blank preferences never match.
func Score(a model.Article, prefs model.Preferences) int {
	score := 0
	if a.Category != "" && slices.Contains(prefs.Categories, a.Category) {
		score += CategoryWeight
	}

	source := strings.ToLower(a.Source)
	for _, p := range prefs.Sources {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && strings.Contains(source, p) {
			score += SourceWeight
			break
		}
	}
	return score
}

// Rank returns a copy of articles sorted by descending Score. Equal scores
// keep their input order.
func Rank(articles []model.Article, prefs model.Preferences) []model.Article {
	type scored struct {
		article model.Article
		score   int
	}
	items := make([]scored, len(articles))
	for i, a := range articles {
		items[i] = scored{article: a, score: Score(a, prefs)}
	}
	slices.SortStableFunc(items, func(x, y scored) int {
		return y.score - x.score
	})

	out := make([]model.Article, len(items))
	for i, it := range items {
		out[i] = it.article
	}
	return out
}
