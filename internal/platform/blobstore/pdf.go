package blobstore

import (
	"bytes"
	"fmt"

	pdf "github.com/ledongthuc/pdf"
)

// InspectPDF opens the document and returns its page count. A file that does
// not parse or has no pages is rejected with ErrUnreadablePDF.
func InspectPDF(data []byte) (pages int, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("%w: %v", ErrUnreadablePDF, r)
		}
	}()

	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnreadablePDF, err)
	}
	total := doc.NumPage()
	if total == 0 {
		return 0, fmt.Errorf("%w: no pages", ErrUnreadablePDF)
	}
	if doc.Page(1).V.IsNull() {
		return 0, fmt.Errorf("%w: first page missing", ErrUnreadablePDF)
	}
	return total, nil
}
