package convert

import (
	"context"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// OCR recognizes text in an image. An empty result is not an error.
type OCR interface {
	Recognize(ctx context.Context, data []byte, name string) (string, error)
}

type CommandOCR struct {
	cmd *Command
}

var _ OCR = (*CommandOCR)(nil)

func NewCommandOCR(template string) (*CommandOCR, error) {
	cmd, err := NewCommand(template)
	if err != nil {
		return nil, err
	}
	return &CommandOCR{cmd: cmd}, nil
}

func (o *CommandOCR) Recognize(ctx context.Context, data []byte, name string) (string, error) {
	src, cleanup, err := writeTemp("", "ocr_*"+filepath.Ext(name), data)
	if err != nil {
		return "", err
	}
	defer cleanup()

	return o.cmd.Run(ctx, map[string]string{PlaceholderInput: src})
}

// isImage sniffs the payload instead of trusting the extension.
func isImage(data []byte) (string, bool) {
	mt := mimetype.Detect(data)
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("image/jpeg") || m.Is("image/png") || m.Is("image/gif") {
			return mt.String(), true
		}
	}
	return mt.String(), false
}

func copyImage(data []byte, imagesDir, filename string) error {
	return os.WriteFile(filepath.Join(imagesDir, filename), data, 0o644)
}
