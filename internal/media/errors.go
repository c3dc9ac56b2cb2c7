package media

import "fmt"

// UnsupportedImageFormatError reports an image whose sniffed content type is
// outside the accepted set. The detected MIME is kept for diagnostics.
type UnsupportedImageFormatError struct {
	MIME string
}

func (e *UnsupportedImageFormatError) Error() string {
	return fmt.Sprintf("unsupported image format %q: only JPEG, PNG and GIF are supported", e.MIME)
}

// UnreadableDocumentError reports a document that could not be converted to
// plain text.
type UnreadableDocumentError struct {
	MIME string
	Err  error
}

func (e *UnreadableDocumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unreadable document (%s): %v", e.MIME, e.Err)
	}
	return fmt.Sprintf("unreadable document (%s)", e.MIME)
}

func (e *UnreadableDocumentError) Unwrap() error { return e.Err }
