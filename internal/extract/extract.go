// Package extract pulls plain text out of uploaded student work.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const (
	TypeText = "text/plain"
	TypePDF  = "application/pdf"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type (only PDF and TXT allowed)")
	ErrTooLarge        = errors.New("file too large")
	ErrNoText          = errors.New("no extractable text in file")
)

// DetectType resolves the content type from the header, falling back to the
// file extension when the header is missing or generic.
func DetectType(filename, contentType string) (string, error) {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if ct == "" || ct == "application/octet-stream" {
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".txt", ".md":
			ct = TypeText
		case ".pdf":
			ct = TypePDF
		default:
			return "", ErrUnsupportedType
		}
	}
	switch ct {
	case TypeText, "text/markdown":
		return TypeText, nil
	case TypePDF:
		return TypePDF, nil
	default:
		return "", ErrUnsupportedType
	}
}

// Text reads at most maxSize bytes from r and returns its text.
func Text(r io.Reader, filename, contentType string, maxSize int64) (string, error) {
	ct, err := DetectType(filename, contentType)
	if err != nil {
		return "", err
	}
	content, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(content)) > maxSize {
		return "", fmt.Errorf("%w (max %d bytes)", ErrTooLarge, maxSize)
	}

	var text string
	switch ct {
	case TypePDF:
		text, err = PDF(content)
		if err != nil {
			return "", err
		}
	default:
		if !utf8.Valid(content) {
			return "", fmt.Errorf("%w: text file is not valid UTF-8", ErrUnsupportedType)
		}
		text = string(content)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// PDF extracts page text; pages that fail to extract are skipped.
func PDF(content []byte) (string, error) {
	reader := bytes.NewReader(content)
	pdfReader, err := pdf.NewReader(reader, int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var textBuilder strings.Builder
	numPages := pdfReader.NumPage()

	for pageNum := 1; pageNum <= numPages; pageNum++ {
		page := pdfReader.Page(pageNum)
		if page.V.IsNull() || page.V.Key("Contents").Kind() == pdf.Null {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		textBuilder.WriteString(text)
		textBuilder.WriteString("\n")
	}

	return textBuilder.String(), nil
}
