// Package pipeline turns an uploaded PDF into topics and learning resources.
package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNoText is returned when a PDF has no extractable text layer.
var ErrNoText = errors.New("pdf contains no extractable text")

// Document is the text layer of one PDF.
type Document struct {
	Text  string
	Pages int
}

// ExtractText reads the plain text of every page. Pages that fail to decode are skipped.
func ExtractText(r io.ReaderAt, size int64) (doc *Document, err error) {
	// the pdf reader panics on some malformed inputs
	defer func() {
		if p := recover(); p != nil {
			doc, err = nil, fmt.Errorf("open pdf: malformed document: %v", p)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	var buf strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n")
	}

	text := strings.TrimSpace(buf.String())
	if text == "" {
		return nil, ErrNoText
	}
	return &Document{Text: text, Pages: pages}, nil
}

// ExtractBytes is ExtractText over an in-memory file.
func ExtractBytes(data []byte) (*Document, error) {
	return ExtractText(bytes.NewReader(data), int64(len(data)))
}
