package loader

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"

	"docqa/internal/domain"
)

// Loader dispatches raw document bytes to the parser for their format.
type Loader struct{}

func New() *Loader {
	return &Loader{}
}

// Load implements port.Loader.
func (l *Loader) Load(ctx context.Context, body []byte, format domain.Format) ([]domain.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch format {
	case domain.FormatPDF:
		return loadPDF(body)
	case domain.FormatDOCX:
		return loadDOCX(body)
	case domain.FormatEmail:
		return loadEmail(body)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, format)
	}
}

var extensionFormats = map[string]domain.Format{
	".pdf":  domain.FormatPDF,
	".docx": domain.FormatDOCX,
	".eml":  domain.FormatEmail,
	".msg":  domain.FormatEmail,
}

var contentTypeFormats = map[string]domain.Format{
	"application/pdf": domain.FormatPDF,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": domain.FormatDOCX,
	"message/rfc822":             domain.FormatEmail,
	"application/vnd.ms-outlook": domain.FormatEmail,
}

// DetectFormat derives the format from the URL path extension, ignoring
// any query string or fragment. When the extension is unknown the
// Content-Type reported by the server decides.
func DetectFormat(rawURL, contentType string) (domain.Format, error) {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	if f, ok := extensionFormats[strings.ToLower(path.Ext(p))]; ok {
		return f, nil
	}

	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			if f, ok := contentTypeFormats[strings.ToLower(mediaType)]; ok {
				return f, nil
			}
		}
	}

	return "", fmt.Errorf("%w: cannot infer format of %s", domain.ErrUnsupportedFormat, p)
}

// JoinPages concatenates pages into a single Document. PDF pages get a
// "[Page N]" header line and are separated by a blank line; the offset of
// every page is recorded so chunks can be traced back to it.
func JoinPages(ref domain.DocumentRef, pages []domain.Page) domain.Document {
	var b strings.Builder
	spans := make([]domain.PageSpan, 0, len(pages))
	offset := 0

	write := func(s string) {
		b.WriteString(s)
		offset += len([]rune(s))
	}

	for i, page := range pages {
		if i > 0 {
			write("\n\n")
		}
		spans = append(spans, domain.PageSpan{Number: page.Number, Start: offset})
		if ref.Format == domain.FormatPDF {
			write(fmt.Sprintf("[Page %d]\n", page.Number))
		}
		write(normalizeText(page.Text))
	}

	return domain.Document{
		Ref:   ref,
		Text:  b.String(),
		Pages: spans,
	}
}

// HasText reports whether any page carries non-whitespace text.
func HasText(pages []domain.Page) bool {
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			return true
		}
	}
	return false
}

// normalizeText trims trailing spaces on every line and collapses runs of
// blank lines into one.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r\f\v")
		if strings.TrimSpace(line) == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
