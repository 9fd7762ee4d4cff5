package loader

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// htmlToText renders HTML as plain text, one block element per line.
func htmlToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("head, script, style, noscript, title").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6, blockquote, table").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	doc.Find("td, th").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}
