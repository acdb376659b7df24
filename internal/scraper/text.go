package scraper

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PlainText reduces an HTML fragment to its visible text with whitespace
// collapsed. Plain strings only get entity decoding.
func PlainText(fragment string) string {
	if fragment == "" {
		return ""
	}
	if !strings.ContainsRune(fragment, '<') {
		return collapse(html.UnescapeString(fragment))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapse(html.UnescapeString(fragment))
	}
	// Block elements would glue neighbouring words together otherwise.
	doc.Find("br").ReplaceWithHtml(" ")
	doc.Find("p, div, li, h1, h2, h3").AppendHtml(" ")
	doc.Find("script, style").Remove()
	return collapse(doc.Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
