// Package convert turns stored report payloads into text suitable for search
// and embedding.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// ErrUnsupportedFormat is returned for payloads that are neither PDF nor HTML.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrEmptyDocument is returned when a payload yields no text at all.
	ErrEmptyDocument = errors.New("document contains no extractable text")
)

// PageSeparator is placed between the text of consecutive pages.
const PageSeparator = "\n\n---\n\n"

// Format is a detected payload type.
type Format string

const (
	FormatPDF     Format = "pdf"
	FormatHTML    Format = "html"
	FormatUnknown Format = "unknown"
)

// Backend converts payloads of a single format.
type Backend interface {
	Convert(ctx context.Context, document []byte) (string, error)
}

// Dispatcher sniffs a payload and hands it to the backend for its format.
type Dispatcher struct {
	pdf  Backend
	html Backend
}

// NewDispatcher returns a converter that sends PDFs to pdf and HTML reports to
// the goquery-based HTML backend.
func NewDispatcher(pdf Backend) *Dispatcher {
	return &Dispatcher{pdf: pdf, html: HTMLConverter{}}
}

// Convert implements services.DocumentConverter.
func (d *Dispatcher) Convert(ctx context.Context, document []byte) (string, error) {
	var (
		text string
		err  error
	)
	switch format := DetectFormat(document); format {
	case FormatPDF:
		text, err = d.pdf.Convert(ctx, document)
	case FormatHTML:
		text, err = d.html.Convert(ctx, document)
	default:
		return "", ErrUnsupportedFormat
	}
	if err != nil {
		return "", err
	}

	text = normalizeText(text)
	if text == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}

// DetectFormat looks at the leading bytes of a payload.
func DetectFormat(document []byte) Format {
	head := document
	if len(head) > 1024 {
		head = head[:1024]
	}
	head = bytes.TrimLeft(head, "\xef\xbb\xbf \t\r\n")

	if bytes.HasPrefix(head, []byte("%PDF-")) {
		return FormatPDF
	}
	lower := bytes.ToLower(head)
	if bytes.HasPrefix(lower, []byte("<!doctype html")) || bytes.HasPrefix(lower, []byte("<html")) {
		return FormatHTML
	}
	// Readers accept a header anywhere in the first 1 KiB.
	if bytes.Contains(head, []byte("%PDF-")) {
		return FormatPDF
	}
	return FormatUnknown
}

var (
	trailingSpaceRegex = regexp.MustCompile(`[ \t]+\n`)
	blankLinesRegex    = regexp.MustCompile(`\n{3,}`)
)

// normalizeText drops control characters and undecodable bytes, trims trailing
// whitespace on every line and collapses runs of blank lines.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.Map(dropControl, text)
	text = trailingSpaceRegex.ReplaceAllString(text, "\n")
	text = blankLinesRegex.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)
	return text
}

// dropControl removes C0 controls other than tab and newline, DEL, and the
// replacement rune. PostgreSQL text columns reject NUL.
func dropControl(r rune) rune {
	switch {
	case r == '\n' || r == '\t':
		return r
	case r < 0x20 || r == 0x7f || r == utf8.RuneError:
		return -1
	}
	return r
}

func joinPages(pages []string) string {
	var kept []string
	for _, p := range pages {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, PageSeparator)
}

func wrapPage(page int, err error) error {
	return fmt.Errorf("page %d: %w", page, err)
}
