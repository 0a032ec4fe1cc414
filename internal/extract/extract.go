package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"hire-realtime/internal/apperr"
)

var (
	ErrUnsupportedType = apperr.New(apperr.KindValidation, "unsupported_file_type", "unsupported resume file type")
	ErrOCRRequired     = apperr.New(apperr.KindValidation, "ocr_required", "image resumes require OCR text")
	ErrNoText          = apperr.New(apperr.KindPermanent, "no_text", "no readable text found in resume")
)

var imageTypes = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"webp": {},
}

// Extractor turns raw file bytes into plain text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// Registry dispatches extraction by file type.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry returns a registry with the pdf, docx and txt extractors.
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[string]Extractor)}
	r.Register("pdf", PDF{})
	r.Register("docx", DOCX{})
	r.Register("txt", Text{})
	return r
}

func (r *Registry) Register(fileType string, e Extractor) {
	r.extractors[strings.ToLower(fileType)] = e
}

// Supports reports whether fileType is on the allow-list.
func (r *Registry) Supports(fileType string) bool {
	if IsImage(fileType) {
		return true
	}
	_, ok := r.extractors[fileType]
	return ok
}

// AllowedTypes lists every accepted file type.
func (r *Registry) AllowedTypes() []string {
	types := make([]string, 0, len(r.extractors)+len(imageTypes))
	for t := range r.extractors {
		types = append(types, t)
	}
	for t := range imageTypes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Extract returns the text for data. Image types never run an extractor;
// their text must come from ocrText.
func (r *Registry) Extract(ctx context.Context, fileType string, data []byte, ocrText string) (string, error) {
	if IsImage(fileType) {
		if strings.TrimSpace(ocrText) == "" {
			return "", ErrOCRRequired
		}
		return ocrText, nil
	}

	e, ok := r.extractors[fileType]
	if !ok {
		return "", ErrUnsupportedType.WithCause(fmt.Errorf("type %q", fileType))
	}
	text, err := e.Extract(ctx, data)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", fileType, err)
	}
	text = Clean(text)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

func IsImage(fileType string) bool {
	_, ok := imageTypes[fileType]
	return ok
}

// FileType is the lowercase extension of name without the dot.
func FileType(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

// Clean trims every line and drops blank ones.
func Clean(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
