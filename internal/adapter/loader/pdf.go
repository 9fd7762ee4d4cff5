package loader

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"

	"docqa/internal/domain"
	"docqa/internal/logger"
)

// loadPDF extracts the plain text of every physical page. A page that
// cannot be decoded (scanned images, broken fonts) yields an empty page.
func loadPDF(body []byte) ([]domain.Page, error) {
	reader, err := openPDF(body)
	if err != nil {
		return nil, fmt.Errorf("%w: pdf: %v", domain.ErrDocumentParse, err)
	}

	n := reader.NumPage()
	pages := make([]domain.Page, 0, n)
	for i := 1; i <= n; i++ {
		pages = append(pages, domain.Page{Number: i, Text: pageText(reader, i)})
	}
	return pages, nil
}

func openPDF(body []byte) (reader *pdf.Reader, err error) {
	defer func() {
		if r := recover(); r != nil {
			reader, err = nil, fmt.Errorf("malformed document: %v", r)
		}
	}()
	return pdf.NewReader(bytes.NewReader(body), int64(len(body)))
}

func pageText(reader *pdf.Reader, number int) (text string) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithComponent("loader").Warn("pdf page extraction panicked", "page", number, "panic", r)
			text = ""
		}
	}()

	page := reader.Page(number)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		logger.WithComponent("loader").Warn("pdf page extraction failed", "page", number, "error", err)
		return ""
	}
	return text
}
