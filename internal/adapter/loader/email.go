package loader

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"docqa/internal/domain"
)

// loadEmail renders an RFC 822 message as its main headers followed by the
// body. Outlook .msg files are attempted the same way.
func loadEmail(body []byte) ([]domain.Page, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: email: %v", domain.ErrDocumentParse, err)
	}

	var b strings.Builder
	for _, name := range []string{"From", "To", "Date", "Subject"} {
		value := decodeHeader(msg.Header.Get(name))
		if value == "" {
			continue
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\n")
	}

	text, err := extractBody(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: email: %v", domain.ErrDocumentParse, err)
	}
	b.WriteString("\n")
	b.WriteString(text)

	return []domain.Page{{Number: 0, Text: strings.TrimSpace(b.String())}}, nil
}

func decodeHeader(header string) string {
	if header == "" {
		return ""
	}
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}

func extractBody(contentType, encoding string, r io.Reader) (string, error) {
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		return extractMultipart(r, params["boundary"])
	}

	raw, err := io.ReadAll(decodeTransfer(encoding, r))
	if err != nil {
		return "", err
	}
	if mediaType == "text/html" {
		return htmlToText(string(raw))
	}
	return string(raw), nil
}

// extractMultipart prefers text/plain parts and falls back to HTML parts
// converted to text. Attachments are skipped.
func extractMultipart(r io.Reader, boundary string) (string, error) {
	if boundary == "" {
		return "", fmt.Errorf("multipart message without boundary")
	}

	mr := multipart.NewReader(r, boundary)
	var textParts, htmlParts []string

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if len(textParts)+len(htmlParts) > 0 {
				break
			}
			return "", err
		}

		if disposition, _, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition")); disposition == "attachment" {
			part.Close()
			continue
		}

		mediaType, params, perr := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if perr != nil {
			mediaType = "text/plain"
		}

		var reader io.Reader = part
		if !strings.HasPrefix(mediaType, "multipart/") {
			reader = decodeTransfer(part.Header.Get("Content-Transfer-Encoding"), part)
		}
		content, rerr := io.ReadAll(reader)
		part.Close()
		if rerr != nil {
			continue
		}

		switch {
		case mediaType == "text/plain":
			textParts = append(textParts, string(content))
		case mediaType == "text/html":
			if text, herr := htmlToText(string(content)); herr == nil {
				htmlParts = append(htmlParts, text)
			}
		case strings.HasPrefix(mediaType, "multipart/"):
			nested, nerr := extractMultipart(bytes.NewReader(content), params["boundary"])
			if nerr == nil && nested != "" {
				textParts = append(textParts, nested)
			}
		}
	}

	if len(textParts) > 0 {
		return strings.Join(textParts, "\n"), nil
	}
	return strings.Join(htmlParts, "\n"), nil
}

// decodeTransfer undoes base64 and quoted-printable transfer encodings.
// multipart.Reader already strips quoted-printable from parts, in which
// case the header is gone and r is returned unchanged.
func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, newlineStripper{r})
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

// newlineStripper drops CR and LF so base64 bodies wrapped at 76 columns
// decode cleanly.
type newlineStripper struct {
	r io.Reader
}

func (n newlineStripper) Read(p []byte) (int, error) {
	for {
		count, err := n.r.Read(p)
		kept := 0
		for _, c := range p[:count] {
			if c != '\r' && c != '\n' {
				p[kept] = c
				kept++
			}
		}
		if kept > 0 || err != nil {
			return kept, err
		}
	}
}
