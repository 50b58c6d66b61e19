package convert

import (
	"path/filepath"
	"strings"
)

type Kind string

const (
	KindUnknown Kind = "unknown"
	KindPDF     Kind = "pdf"
	KindDOCX    Kind = "docx"
	KindImage   Kind = "image"
)

// KindOf picks a converter from the file extension, ignoring case.
func KindOf(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return KindPDF
	case ".doc", ".docx":
		return KindDOCX
	case ".jpg", ".jpeg", ".png", ".gif":
		return KindImage
	}
	return KindUnknown
}

// BaseName is the output name for a source file: everything before the
// first dot of its file name, so "report.v2.pdf" becomes "report". Names
// starting with a dot fall back to the name without its last extension.
func BaseName(path string) string {
	name := filepath.Base(path)
	if i := strings.IndexByte(name, '.'); i > 0 {
		return name[:i]
	}
	if trimmed := strings.TrimSuffix(name, filepath.Ext(name)); trimmed != "" {
		return trimmed
	}
	return name
}
