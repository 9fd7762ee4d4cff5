package loader

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"docqa/internal/domain"
)

const docxBody = "word/document.xml"

// loadDOCX returns the visible text of word/document.xml as one page
// numbered 0. Every paragraph, including those inside table cells, ends a
// line.
func loadDOCX(body []byte) ([]domain.Page, error) {
	reader, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("%w: docx: %v", domain.ErrDocumentParse, err)
	}

	for _, file := range reader.File {
		if file.Name != docxBody {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: docx: %v", domain.ErrDocumentParse, err)
		}
		text, err := parseDocumentXML(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: docx: %v", domain.ErrDocumentParse, err)
		}

		return []domain.Page{{Number: 0, Text: text}}, nil
	}

	return nil, fmt.Errorf("%w: docx: %s not found", domain.ErrDocumentParse, docxBody)
}

// parseDocumentXML walks the WordprocessingML token stream so that text in
// tables, text boxes and nested structures is kept in document order.
func parseDocumentXML(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	inText := false
	// Inside property blocks <w:tab/> declares a tab stop, not a tab.
	props := 0

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "pPr", "rPr", "sectPr":
				props++
			case "tab":
				if props == 0 {
					b.WriteString("\t")
				}
			case "br", "cr":
				if props == 0 {
					b.WriteString("\n")
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "pPr", "rPr", "sectPr":
				props--
			case "p":
				b.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}

	return strings.TrimSpace(b.String()), nil
}
