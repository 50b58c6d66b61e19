package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// ParseMethod says how a PDF has to be analyzed.
type ParseMethod string

const (
	MethodText ParseMethod = "txt"
	MethodOCR  ParseMethod = "ocr"
)

// PDFAnalyzer turns PDF bytes into Markdown, writing extracted images into
// imageDir. Implementations must not modify data.
type PDFAnalyzer interface {
	Classify(data []byte) ParseMethod
	Analyze(ctx context.Context, data []byte, method ParseMethod, imageDir string) (string, error)
}

// ClassifyPDF treats documents that declare font resources as text-native;
// anything else is assumed to be a scan.
func ClassifyPDF(data []byte) ParseMethod {
	if bytes.Contains(data, []byte("/Font")) {
		return MethodText
	}
	return MethodOCR
}

// CommandAnalyzer delegates analysis to an external program. The program gets
// the PDF path, the image directory and the parse method through the
// template placeholders and prints Markdown on stdout.
type CommandAnalyzer struct {
	cmd *Command
}

var _ PDFAnalyzer = (*CommandAnalyzer)(nil)

func NewCommandAnalyzer(template string) (*CommandAnalyzer, error) {
	cmd, err := NewCommand(template)
	if err != nil {
		return nil, err
	}
	return &CommandAnalyzer{cmd: cmd}, nil
}

func (a *CommandAnalyzer) Classify(data []byte) ParseMethod {
	return ClassifyPDF(data)
}

func (a *CommandAnalyzer) Analyze(ctx context.Context, data []byte, method ParseMethod, imageDir string) (string, error) {
	src, cleanup, err := writeTemp(filepath.Dir(imageDir), "source_*.pdf", data)
	if err != nil {
		return "", err
	}
	defer cleanup()

	return a.cmd.Run(ctx, map[string]string{
		PlaceholderInput:    src,
		PlaceholderImageDir: imageDir,
		PlaceholderMethod:   string(method),
	})
}

// writeTemp stores data in a new temporary file and returns its path with a
// function removing it again.
func writeTemp(dir, pattern string, data []byte) (string, func(), error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", func() {}, fmt.Errorf("could not create temp file: %w", err)
	}
	cleanup := func() {
		f.Close()
		os.Remove(f.Name())
	}
	if _, err := f.Write(data); err != nil {
		cleanup()
		return "", func() {}, err
	}
	// Close here so the data is flushed before the external program reads it.
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, err
	}
	return f.Name(), cleanup, nil
}
