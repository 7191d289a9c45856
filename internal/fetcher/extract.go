package fetcher

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// mainContentClass matches class attributes that usually wrap the primary
// content of a page.
var mainContentClass = regexp.MustCompile(`(?i)main|content|article`)

// ExtractText pulls readable text out of an HTML document. Script, style, and
// chrome elements are dropped; content inside main/article (or a div whose
// class looks like main content) is preferred over the full document. The
// result has whitespace runs collapsed to single spaces and is truncated to
// the fetch size cap without splitting a multi-byte character.
func (f *Fetcher) ExtractText(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		f.logger.Warn("html parse failed during extraction")
		return ""
	}

	doc.Find("script, style, nav, header, footer").Remove()

	text := mainContent(doc)
	text = strings.Join(strings.Fields(text), " ")
	return truncateUTF8(text, f.cfg.MaxSizeBytes)
}

func mainContent(doc *goquery.Document) string {
	if sel := doc.Find("main"); sel.Length() > 0 {
		return sel.First().Text()
	}
	if sel := doc.Find("article"); sel.Length() > 0 {
		return sel.First().Text()
	}
	sel := doc.Find("div[class]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		return mainContentClass.MatchString(class)
	})
	if sel.Length() > 0 {
		return sel.First().Text()
	}
	return doc.Text()
}

// truncateUTF8 cuts s at the largest byte boundary <= max that starts a valid
// rune, so no multi-byte character is split.
func truncateUTF8(s string, max int64) string {
	if max <= 0 || int64(len(s)) <= max {
		return s
	}
	cut := int(max)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
