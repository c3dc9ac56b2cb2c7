package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

// Normalizer converts uploaded bytes into model-ready inputs.
type Normalizer interface {
	// ExtractDocumentText sniffs the content type and extracts plain text.
	ExtractDocumentText(data []byte) (string, error)
	// ValidateImage sniffs the content type and passes accepted image bytes
	// through unchanged. Returns the detected MIME.
	ValidateImage(data []byte) ([]byte, string, error)
}

// Detector is the production Normalizer. Detection is content-based; the
// uploaded filename is never consulted.
type Detector struct{}

func NewDetector() *Detector { return &Detector{} }

func (d *Detector) ValidateImage(data []byte) ([]byte, string, error) {
	if len(data) == 0 {
		return nil, "", &UnsupportedImageFormatError{MIME: "unknown"}
	}
	mtype := mimetype.Detect(data)
	switch {
	case mtype.Is("image/jpeg"), mtype.Is("image/png"), mtype.Is("image/gif"):
		return data, mtype.String(), nil
	default:
		return nil, "", &UnsupportedImageFormatError{MIME: mtype.String()}
	}
}

func (d *Detector) ExtractDocumentText(data []byte) (string, error) {
	if len(data) == 0 {
		return "", &UnreadableDocumentError{MIME: "unknown", Err: errors.New("empty upload")}
	}

	mtype := mimetype.Detect(data)
	switch {
	case mtype.Is("application/pdf"):
		text, err := extractPDFText(data)
		if err != nil {
			return "", &UnreadableDocumentError{MIME: mtype.String(), Err: err}
		}
		return text, nil
	case isTextFamily(mtype):
		if !utf8.Valid(data) {
			return "", &UnreadableDocumentError{MIME: mtype.String(), Err: errors.New("invalid UTF-8")}
		}
		return string(data), nil
	default:
		return "", &UnreadableDocumentError{MIME: mtype.String(), Err: errors.New("no text extractor for this format")}
	}
}

func isTextFamily(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	textReader, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, textReader); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", errors.New("pdf contains no extractable text")
	}
	return text, nil
}
