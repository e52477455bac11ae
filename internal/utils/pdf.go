package utils

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFSummary describes how much text a PDF carries
type PDFSummary struct {
	PageCount int
	TextPages int
	TextChars int
}

// HasText reports whether any page yielded extractable text
func (s PDFSummary) HasText() bool {
	return s.TextChars > 0
}

// InspectPDF opens a PDF and counts the pages that carry plain text.
// Scanned resumes without a text layer come back with HasText false.
func InspectPDF(filename string) (PDFSummary, error) {
	f, r, err := pdf.Open(filename)
	if err != nil {
		return PDFSummary{}, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer func() { _ = f.Close() }()

	summary := PDFSummary{PageCount: r.NumPage()}
	for pageIndex := 1; pageIndex <= summary.PageCount; pageIndex++ {
		page := r.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}

		if n := len(strings.TrimSpace(text)); n > 0 {
			summary.TextPages++
			summary.TextChars += n
		}
	}

	return summary, nil
}
