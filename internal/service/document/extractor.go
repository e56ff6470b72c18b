package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/zhouzirui/pdf-chatbot/backend/internal/model/document"
)

var (
	ErrExtraction  = errors.New("error extracting text")
	ErrEmptyUpload = errors.New("uploaded file is empty")
	ErrNoText      = errors.New("no extractable text found in document")
)

// Extractor turns PDF bytes into normalized plain text.
type Extractor struct{}

// NewExtractor creates a PDF extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads every page of data in order and returns the concatenated,
// whitespace-normalized text. Pages are joined with a newline before
// normalization so words on adjacent pages never fuse. Failures wrap
// ErrExtraction.
func (e *Extractor) Extract(ctx context.Context, name string, data []byte) (document.Document, error) {
	if len(data) == 0 {
		return document.Document{}, ErrEmptyUpload
	}

	raw, pages, err := extractPages(ctx, data)
	if err != nil {
		log.Printf("[document] extraction failed name=%s size=%d: %v", name, len(data), err)
		return document.Document{}, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	text := NormalizeWhitespace(raw)
	if text == "" {
		return document.Document{}, ErrNoText
	}

	log.Printf("[document] extracted name=%s pages=%d chars=%d", name, pages, len([]rune(text)))
	return document.Document{
		Name:       name,
		Text:       text,
		Pages:      pages,
		Size:       int64(len(data)),
		UploadedAt: time.Now().UTC(),
	}, nil
}

// extractPages recovers from panics in the PDF library, which it raises on
// some malformed inputs.
func extractPages(ctx context.Context, data []byte) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}

	var builder strings.Builder
	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", 0, fmt.Errorf("page %d: %w", i, err)
		}
		builder.WriteString(pageText)
		builder.WriteString("\n")
	}

	return builder.String(), total, nil
}

// NormalizeWhitespace collapses every run of whitespace to a single space and
// trims both ends.
func NormalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
