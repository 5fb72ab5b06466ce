package crawler

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractText returns the visible text of an HTML document: script, style
// and noscript blocks are dropped, entities are decoded and whitespace runs
// collapse to a single space. Input that is not HTML is returned with its
// whitespace collapsed.
func ExtractText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return collapseSpace(html)
	}
	doc.Find("script, style, noscript, template").Remove()
	// Block elements would otherwise run adjacent words together.
	doc.Find("title, br, p, div, li, h1, h2, h3, h4, h5, h6, td, th, tr, section, article").
		Each(func(_ int, s *goquery.Selection) {
			s.AppendHtml(" ")
		})
	return collapseSpace(doc.Text())
}

// ExtractTitle returns the trimmed <title>, falling back to the first <h1>.
func ExtractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	if title := collapseSpace(doc.Find("head title").First().Text()); title != "" {
		return title
	}
	if title := collapseSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return collapseSpace(doc.Find("h1").First().Text())
}

// CountLinks counts anchors with an href.
func CountLinks(html string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0
	}
	return doc.Find("a[href]").Length()
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
