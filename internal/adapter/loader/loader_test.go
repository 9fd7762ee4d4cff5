package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

// buildPDF writes a minimal uncompressed PDF with one text line per page.
// An empty string produces a page without a content stream.
func buildPDF(pages ...string) []byte {
	var objects []string
	kids := make([]string, len(pages))
	// 1: catalog, 2: pages, 3: font, then page/content pairs.
	next := 4
	var pageObjs []string
	for i, text := range pages {
		pageID := next
		kids[i] = fmt.Sprintf("%d 0 R", pageID)
		if text == "" {
			pageObjs = append(pageObjs,
				"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> >>")
			next++
			continue
		}
		stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		pageObjs = append(pageObjs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", pageID+1),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
		next += 2
	}

	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	objects = append(objects, pageObjs...)

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestLoad_PDFPages(t *testing.T) {
	body := buildPDF("The grace period is thirty days.", "", "Waiting period is two years.")

	pages, err := New().Load(context.Background(), body, domain.FormatPDF)
	require.NoError(t, err)
	require.Len(t, pages, 3)

	assert.Equal(t, 1, pages[0].Number)
	assert.Contains(t, pages[0].Text, "grace period is thirty days")
	assert.Equal(t, 2, pages[1].Number)
	assert.Empty(t, strings.TrimSpace(pages[1].Text))
	assert.Equal(t, 3, pages[2].Number)
	assert.Contains(t, pages[2].Text, "two years")
}

func TestLoad_PDFCorrupt(t *testing.T) {
	_, err := New().Load(context.Background(), []byte("definitely not a pdf"), domain.FormatPDF)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDocumentParse)
	assert.True(t, domain.IsRequestFatal(err))
}

func TestLoad_DOCX(t *testing.T) {
	xml := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:pPr><w:tabs><w:tab w:val="left" w:pos="720"/></w:tabs></w:pPr><w:r><w:t>Section 1</w:t></w:r><w:r><w:tab/><w:t xml:space="preserve">Definitions</w:t></w:r></w:p>
<w:p><w:r><w:t>Grace period means thirty days.</w:t></w:r><w:r><w:br/><w:t>Second line.</w:t></w:r></w:p>
<w:tbl><w:tr><w:tc><w:p><w:r><w:t>Room rent</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>1% of SI</w:t></w:r></w:p></w:tc></w:tr></w:tbl>
</w:body>
</w:document>`

	pages, err := New().Load(context.Background(), buildDOCX(t, xml), domain.FormatDOCX)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 0, pages[0].Number)
	assert.Equal(t, "Section 1\tDefinitions\nGrace period means thirty days.\nSecond line.\nRoom rent\n1% of SI", pages[0].Text)
}

func TestLoad_DOCXWithoutBody(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("docProps/core.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = New().Load(context.Background(), buf.Bytes(), domain.FormatDOCX)
	assert.ErrorIs(t, err, domain.ErrDocumentParse)

	_, err = New().Load(context.Background(), []byte("PK not really"), domain.FormatDOCX)
	assert.ErrorIs(t, err, domain.ErrDocumentParse)
}

func TestLoad_PlainEmail(t *testing.T) {
	raw := "From: Claims Desk <claims@example.com>\r\n" +
		"To: holder@example.com\r\n" +
		"Date: Mon, 2 Jun 2025 10:00:00 +0000\r\n" +
		"Subject: =?UTF-8?Q?Renewal_notice_=E2=80=93_policy_42?=\r\n" +
		"\r\n" +
		"Your grace period is thirty days.\r\n"

	pages, err := New().Load(context.Background(), []byte(raw), domain.FormatEmail)
	require.NoError(t, err)
	require.Len(t, pages, 1)

	text := pages[0].Text
	assert.Equal(t, 0, pages[0].Number)
	assert.Contains(t, text, "From: Claims Desk <claims@example.com>")
	assert.Contains(t, text, "Subject: Renewal notice – policy 42")
	assert.Contains(t, text, "Your grace period is thirty days.")
}

func TestLoad_MultipartEmailPrefersPlainText(t *testing.T) {
	raw := "From: a@example.com\r\n" +
		"Subject: Cover\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=XYZ\r\n" +
		"\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Plain body wins.\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>HTML body loses.</p>\r\n" +
		"--XYZ--\r\n"

	pages, err := New().Load(context.Background(), []byte(raw), domain.FormatEmail)
	require.NoError(t, err)
	assert.Contains(t, pages[0].Text, "Plain body wins.")
	assert.NotContains(t, pages[0].Text, "HTML body loses")
}

func TestLoad_HTMLOnlyEmailWithBase64(t *testing.T) {
	raw := "From: a@example.com\r\n" +
		"Subject: Benefits\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=B1\r\n" +
		"\r\n" +
		"--B1\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"PGh0bWw+PGhlYWQ+PHN0eWxlPnB7fTwvc3R5bGU+PC9oZWFkPjxib2R5PjxwPkNhdGFyYWN0\r\n" +
		"IGlzIGNvdmVyZWQuPC9wPjxwPk1hdGVybml0eSBpcyBleGNsdWRlZC48L3A+PC9ib2R5Pjwv\r\n" +
		"aHRtbD4=\r\n" +
		"--B1\r\n" +
		"Content-Type: application/pdf\r\n" +
		"Content-Disposition: attachment; filename=policy.pdf\r\n" +
		"\r\n" +
		"%PDF-1.4 binary\r\n" +
		"--B1--\r\n"

	pages, err := New().Load(context.Background(), []byte(raw), domain.FormatEmail)
	require.NoError(t, err)

	text := pages[0].Text
	assert.Contains(t, text, "Cataract is covered.\nMaternity is excluded.")
	assert.NotContains(t, text, "p{}")
	assert.NotContains(t, text, "%PDF")
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	_, err := New().Load(context.Background(), []byte("x"), domain.Format("xlsx"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		url         string
		contentType string
		want        domain.Format
		wantErr     bool
	}{
		{"https://host/policy.pdf", "", domain.FormatPDF, false},
		{"https://host/Policy.PDF?sv=2023&sig=abc%2F.docx", "", domain.FormatPDF, false},
		{"https://host/contract.docx#page=2", "", domain.FormatDOCX, false},
		{"https://host/mail.eml", "", domain.FormatEmail, false},
		{"https://host/mail.msg", "", domain.FormatEmail, false},
		{"/tmp/local/claim.pdf", "", domain.FormatPDF, false},
		{"https://host/download?id=7", "application/pdf; charset=binary", domain.FormatPDF, false},
		{"https://host/download?id=7", "text/html", "", true},
		{"https://host/sheet.xlsx", "", "", true},
	}

	for _, tt := range tests {
		got, err := DetectFormat(tt.url, tt.contentType)
		if tt.wantErr {
			assert.ErrorIs(t, err, domain.ErrUnsupportedFormat, tt.url)
			continue
		}
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.want, got, tt.url)
	}
}

func TestJoinPages_PDFHeadersAndOffsets(t *testing.T) {
	ref := domain.DocumentRef{URL: "u.pdf", Format: domain.FormatPDF}
	pages := []domain.Page{
		{Number: 1, Text: "First page.  \r\n\r\n\r\n\r\nStill first."},
		{Number: 2, Text: ""},
		{Number: 3, Text: "Third page."},
	}

	doc := JoinPages(ref, pages)
	want := "[Page 1]\nFirst page.\n\nStill first.\n\n[Page 2]\n\n\n[Page 3]\nThird page."
	assert.Equal(t, want, doc.Text)
	require.Len(t, doc.Pages, 3)

	runes := []rune(doc.Text)
	for _, span := range doc.Pages {
		header := fmt.Sprintf("[Page %d]", span.Number)
		assert.Equal(t, header, string(runes[span.Start:span.Start+len(header)]))
	}
	assert.Equal(t, 3, doc.PageAt(len(runes)-1))
}

func TestJoinPages_NoHeadersForDOCX(t *testing.T) {
	doc := JoinPages(domain.DocumentRef{Format: domain.FormatDOCX}, []domain.Page{{Number: 0, Text: "Body"}})
	assert.Equal(t, "Body", doc.Text)
	assert.Equal(t, 0, doc.PageAt(2))
}

func TestHasText(t *testing.T) {
	assert.False(t, HasText(nil))
	assert.False(t, HasText([]domain.Page{{Number: 1, Text: " \n\t"}}))
	assert.True(t, HasText([]domain.Page{{Number: 1}, {Number: 2, Text: "x"}}))
}
