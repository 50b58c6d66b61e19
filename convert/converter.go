// Package convert runs one document conversion job: it dispatches on the
// file type, writes Markdown and assets into the job's workspace and packs
// them into a per-job archive.
package convert

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docwebapi/archive"
	"docwebapi/workspace"
)

// Result is what a successful job leaves behind.
type Result struct {
	Source       string `json:"source"`
	TaskID       string `json:"taskId"`
	Markdown     string `json:"markdown"`
	ArchivePath  string `json:"archivePath"`
	MarkdownPath string `json:"markdownPath"`
	AssetDir     string `json:"assetDir"`
}

// ResourceChecker is consulted before a job starts. See ResourceGuard.
type ResourceChecker interface {
	Check() error
}

type Options struct {
	PDF          PDFAnalyzer
	OCR          OCR
	DOCX         BlockSource // defaults to ReadDOCX
	Resources    ResourceChecker
	MaxInputSize int64 // 0 = unlimited
	Timeout      time.Duration
}

// Converter is safe for concurrent use on distinct inputs: every call works
// in its own freshly allocated workspace.
type Converter struct {
	ws   *workspace.Allocator
	opts Options
}

func NewConverter(ws *workspace.Allocator, opts Options) *Converter {
	if opts.DOCX == nil {
		opts.DOCX = ReadDOCX
	}
	return &Converter{ws: ws, opts: opts}
}

// Run converts the document at inputPath.
func (c *Converter) Run(ctx context.Context, inputPath string) (*Result, error) {
	kind := KindOf(inputPath)
	if kind == KindUnknown {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFileType, filepath.Ext(inputPath))
	}

	// The DOCX reader opens the package itself, so only its size is checked.
	var (
		data []byte
		err  error
	)
	if kind == KindDOCX {
		err = c.statSource(inputPath)
	} else {
		data, err = c.readSource(inputPath)
	}
	if err != nil {
		return nil, err
	}

	if c.opts.Resources != nil {
		if err := c.opts.Resources.Check(); err != nil {
			return nil, fmt.Errorf("%w: insufficient system resources: %v", ErrConversion, err)
		}
	}

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	ws, err := c.ws.Allocate(workspace.KindTask)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPackaging, err)
	}

	base := BaseName(inputPath)
	slog.Info("processing file", "kind", kind, "path", inputPath, "task_id", ws.ID)

	var markdown string
	switch kind {
	case KindPDF:
		markdown, err = c.convertPDF(ctx, data, ws)
	case KindDOCX:
		markdown, err = c.convertDOCX(inputPath, ws)
	case KindImage:
		markdown, err = c.convertImage(ctx, data, filepath.Base(inputPath), base, ws)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConversion, filepath.Base(inputPath), err)
	}

	res := &Result{
		Source:       inputPath,
		TaskID:       ws.ID,
		Markdown:     markdown,
		MarkdownPath: filepath.Join(ws.Root, base+".md"),
		ArchivePath:  filepath.Join(ws.Root, base+".zip"),
		AssetDir:     ws.ImagesDir,
	}

	if err := os.WriteFile(res.MarkdownPath, []byte(markdown), 0o644); err != nil {
		return nil, fmt.Errorf("%w: could not write markdown: %v", ErrPackaging, err)
	}
	if err := archive.PackJob(res.MarkdownPath, ws.ImagesDir, res.ArchivePath); err != nil {
		return nil, fmt.Errorf("%w: could not write archive: %v", ErrPackaging, err)
	}
	return res, nil
}

func (c *Converter) checkSource(inputPath string, info os.FileInfo) error {
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrSourceRead, inputPath)
	}
	if c.opts.MaxInputSize > 0 && info.Size() > c.opts.MaxInputSize {
		return fmt.Errorf("%w: input file size %d exceeds limit of %d bytes", ErrSourceRead, info.Size(), c.opts.MaxInputSize)
	}
	return nil
}

func (c *Converter) statSource(inputPath string) error {
	info, err := os.Stat(inputPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceRead, err)
	}
	return c.checkSource(inputPath, info)
}

func (c *Converter) readSource(inputPath string) ([]byte, error) {
	f, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceRead, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceRead, err)
	}
	if err := c.checkSource(inputPath, info); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceRead, err)
	}
	return data, nil
}

func (c *Converter) convertPDF(ctx context.Context, data []byte, ws workspace.Workspace) (string, error) {
	if c.opts.PDF == nil {
		return "", fmt.Errorf("no pdf analyzer configured")
	}
	method := c.opts.PDF.Classify(data)
	slog.Debug("pdf classified", "task_id", ws.ID, "method", method)
	return c.opts.PDF.Analyze(ctx, data, method, ws.ImagesDir)
}

func (c *Converter) convertDOCX(inputPath string, ws workspace.Workspace) (string, error) {
	blocks, err := c.opts.DOCX(inputPath)
	if err != nil {
		return "", err
	}
	return RenderMarkdown(blocks, ws.ImagesDir)
}

func (c *Converter) convertImage(ctx context.Context, data []byte, filename, base string, ws workspace.Workspace) (string, error) {
	if mt, ok := isImage(data); !ok {
		return "", fmt.Errorf("content is %s, not an image", mt)
	}
	if err := copyImage(data, ws.ImagesDir, filename); err != nil {
		return "", err
	}

	var text string
	if c.opts.OCR != nil {
		var err error
		if text, err = c.opts.OCR.Recognize(ctx, data, filename); err != nil {
			return "", err
		}
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Sprintf("![%s](images/%s)", base, filename), nil
	}
	return text, nil
}
