package convert

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// MaxExtractLen bounds the text kept from a single HTML report.
const MaxExtractLen = 2_000_000

const blockSelector = "h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, td, th"

// HTMLConverter renders published audit reports (HTML pages) as light markdown:
// headings keep their level, list items become bullets and every other block
// becomes a paragraph.
type HTMLConverter struct{}

// Convert implements Backend.
func (HTMLConverter) Convert(_ context.Context, document []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(document))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, nav, header, footer, noscript, iframe, svg").Remove()

	var blocks []string
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		// Nested blocks (a <p> inside an <li>) are emitted by their outermost block.
		if s.ParentsFiltered(blockSelector).Length() > 0 {
			return
		}
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" {
			return
		}
		switch tag := goquery.NodeName(s); tag {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			level := int(tag[1] - '0')
			blocks = append(blocks, strings.Repeat("#", level)+" "+text)
		case "li":
			blocks = append(blocks, "- "+text)
		case "pre":
			blocks = append(blocks, "```\n"+strings.TrimSpace(s.Text())+"\n```")
		default:
			blocks = append(blocks, text)
		}
	})

	text := strings.Join(blocks, "\n\n")
	if text == "" {
		text = strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	}
	return truncateUTF8(text, MaxExtractLen), nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
