package extract

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

var (
	paragraphEnd = regexp.MustCompile(`</w:p>|<w:br/>|<w:tab/>`)
	xmlTag       = regexp.MustCompile(`<[^>]+>`)
)

// DOCX extracts body text from word/document.xml.
type DOCX struct{}

func (DOCX) Extract(ctx context.Context, data []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer r.Close()

	content := r.Editable().GetContent()
	content = paragraphEnd.ReplaceAllStringFunc(content, func(tag string) string {
		if tag == "<w:tab/>" {
			return " "
		}
		return "\n"
	})
	content = xmlTag.ReplaceAllString(content, "")
	return html.UnescapeString(strings.TrimSpace(content)), nil
}
