package convert

import "errors"

var (
	// ErrUnsupportedFileType is returned before any filesystem access.
	ErrUnsupportedFileType = errors.New("unsupported file type")
	// ErrSourceRead means the input is missing, unreadable or too large.
	ErrSourceRead = errors.New("could not read source file")
	// ErrConversion wraps failures of the PDF analyzer, DOCX extractor or OCR.
	ErrConversion = errors.New("conversion failed")
	// ErrPackaging covers workspace, Markdown and archive writes.
	ErrPackaging = errors.New("packaging failed")
)
