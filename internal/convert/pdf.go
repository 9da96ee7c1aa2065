package convert

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

// PDFConverter validates a report with pdfcpu and extracts page text through
// each font's encoding and ToUnicode map. It needs no network access.
type PDFConverter struct {
	conf *model.Configuration
}

// NewPDFConverter returns a converter using pdfcpu's relaxed validation, which
// tolerates the slightly broken files produced by many report generators.
func NewPDFConverter() *PDFConverter {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFConverter{conf: conf}
}

// Convert implements Backend.
func (c *PDFConverter) Convert(ctx context.Context, document []byte) (string, error) {
	pdfCtx, err := api.ReadContext(bytes.NewReader(document), c.conf)
	if err != nil {
		return "", fmt.Errorf("failed to read PDF: %w", err)
	}
	if err := api.ValidateContext(pdfCtx); err != nil {
		return "", fmt.Errorf("failed to validate PDF: %w", err)
	}
	if pdfCtx.PageCount == 0 {
		return "", ErrEmptyDocument
	}

	pages, err := extractPages(ctx, document)
	if err != nil {
		return "", err
	}
	return joinPages(pages), nil
}

// extractPages returns the plain text of every page in order.
func extractPages(ctx context.Context, document []byte) (pages []string, err error) {
	// The reader panics on some malformed object graphs.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("failed to extract PDF text: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(document), int64(len(document)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF for text extraction: %w", err)
	}

	total := r.NumPage()
	pages = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, wrapPage(i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}
