package convert

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"docwebapi/workspace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

// fakeAnalyzer records the parse method it was asked for and drops one image
// into the image directory.
type fakeAnalyzer struct {
	markdown string
	err      error
	method   ParseMethod
}

func (f *fakeAnalyzer) Classify(data []byte) ParseMethod { return ClassifyPDF(data) }

func (f *fakeAnalyzer) Analyze(ctx context.Context, data []byte, method ParseMethod, imageDir string) (string, error) {
	f.method = method
	if f.err != nil {
		return "", f.err
	}
	if err := os.WriteFile(filepath.Join(imageDir, "p1.png"), pngBytes, 0o644); err != nil {
		return "", err
	}
	return f.markdown, nil
}

type fakeOCR struct {
	text string
	err  error
}

func (f *fakeOCR) Recognize(ctx context.Context, data []byte, name string) (string, error) {
	return f.text, f.err
}

func newTestConverter(t *testing.T, opts Options) (*Converter, string) {
	t.Helper()
	out := t.TempDir()
	ws, err := workspace.NewAllocator(out, nil)
	require.NoError(t, err)
	return NewConverter(ws, opts), out
}

func writeInput(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func zipEntries(t *testing.T, zipPath string) []string {
	t.Helper()
	zr, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestKindOf(t *testing.T) {
	tests := map[string]Kind{
		"a.pdf":   KindPDF,
		"A.PDF":   KindPDF,
		"b.docx":  KindDOCX,
		"b.DoC":   KindDOCX,
		"c.jpg":   KindImage,
		"c.JPEG":  KindImage,
		"c.png":   KindImage,
		"c.gif":   KindImage,
		"d.xyz":   KindUnknown,
		"noext":   KindUnknown,
		"e.pdf.x": KindUnknown,
	}
	for path, want := range tests {
		assert.Equal(t, want, KindOf(path), path)
	}
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "report", BaseName("/in/report.pdf"))
	assert.Equal(t, "report", BaseName("/in/report.v2.pdf"))
	assert.Equal(t, ".hidden", BaseName(".hidden.pdf"))
}

func TestRun_UnsupportedFileType(t *testing.T) {
	c, out := newTestConverter(t, Options{})

	// The path does not exist: unsupported types must fail before any
	// filesystem access.
	_, err := c.Run(context.Background(), "/nowhere/c.xyz")
	assert.ErrorIs(t, err, ErrUnsupportedFileType)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_SourceReadError(t *testing.T) {
	c, _ := newTestConverter(t, Options{})
	_, err := c.Run(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	assert.ErrorIs(t, err, ErrSourceRead)
}

func TestRun_InputTooLarge(t *testing.T) {
	c, _ := newTestConverter(t, Options{MaxInputSize: 4, PDF: &fakeAnalyzer{}})
	in := writeInput(t, "big.pdf", []byte("%PDF-1.7 too big"))
	_, err := c.Run(context.Background(), in)
	assert.ErrorIs(t, err, ErrSourceRead)
	assert.Contains(t, err.Error(), "exceeds limit")
}

func TestRun_DOCXSizeCheckedWithoutReading(t *testing.T) {
	var got string
	docx := func(path string) ([]Block, error) {
		got = path
		return []Block{{Kind: BlockParagraph, Text: "ok"}}, nil
	}

	c, _ := newTestConverter(t, Options{MaxInputSize: 64, DOCX: docx})
	in := writeInput(t, "big.docx", bytes.Repeat([]byte("x"), 65))
	_, err := c.Run(context.Background(), in)
	assert.ErrorIs(t, err, ErrSourceRead)
	assert.Empty(t, got)

	_, err = c.Run(context.Background(), filepath.Join(t.TempDir(), "missing.docx"))
	assert.ErrorIs(t, err, ErrSourceRead)

	small := writeInput(t, "small.docx", []byte("PK"))
	res, err := c.Run(context.Background(), small)
	require.NoError(t, err)
	assert.Equal(t, small, got)
	assert.Equal(t, "ok", res.Markdown)
}

type busy struct{}

func (busy) Check() error { return errors.New("not enough free memory") }

func TestRun_ResourceGuard(t *testing.T) {
	c, _ := newTestConverter(t, Options{Resources: busy{}, PDF: &fakeAnalyzer{}})
	in := writeInput(t, "a.pdf", []byte("%PDF"))
	_, err := c.Run(context.Background(), in)
	assert.ErrorIs(t, err, ErrConversion)
	assert.Contains(t, err.Error(), "insufficient system resources")
}

func TestRun_PDF(t *testing.T) {
	t.Run("text-native document", func(t *testing.T) {
		an := &fakeAnalyzer{markdown: "# Title\n\n![](images/p1.png)"}
		c, out := newTestConverter(t, Options{PDF: an})
		in := writeInput(t, "a.pdf", []byte("%PDF-1.7 /Font /F1"))

		res, err := c.Run(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, MethodText, an.method)
		assert.Equal(t, an.markdown, res.Markdown)
		assert.Equal(t, filepath.Join(out, res.TaskID, "a.md"), res.MarkdownPath)
		assert.Equal(t, filepath.Join(out, res.TaskID, "a.zip"), res.ArchivePath)
		assert.Equal(t, filepath.Join(out, res.TaskID, "images"), res.AssetDir)

		md, err := os.ReadFile(res.MarkdownPath)
		require.NoError(t, err)
		assert.Equal(t, an.markdown, string(md))
		assert.Equal(t, []string{"a.md", "images/p1.png"}, zipEntries(t, res.ArchivePath))
	})

	t.Run("scanned document uses ocr", func(t *testing.T) {
		an := &fakeAnalyzer{markdown: "scan"}
		c, _ := newTestConverter(t, Options{PDF: an})
		in := writeInput(t, "scan.pdf", []byte("%PDF-1.7 /XObject /Image"))

		_, err := c.Run(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, MethodOCR, an.method)
	})

	t.Run("analyzer failure", func(t *testing.T) {
		c, _ := newTestConverter(t, Options{PDF: &fakeAnalyzer{err: errors.New("layout model crashed")}})
		in := writeInput(t, "a.pdf", []byte("%PDF"))

		_, err := c.Run(context.Background(), in)
		assert.ErrorIs(t, err, ErrConversion)
		assert.Contains(t, err.Error(), "layout model crashed")
	})

	t.Run("no analyzer configured", func(t *testing.T) {
		c, _ := newTestConverter(t, Options{})
		in := writeInput(t, "a.pdf", []byte("%PDF"))

		_, err := c.Run(context.Background(), in)
		assert.ErrorIs(t, err, ErrConversion)
	})
}

func TestRun_ImageFallsBackToReference(t *testing.T) {
	c, _ := newTestConverter(t, Options{OCR: &fakeOCR{text: "  \n"}})
	in := writeInput(t, "photo.png", pngBytes)

	res, err := c.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "![photo](images/photo.png)", res.Markdown)
	assert.Equal(t, []string{"images/photo.png", "photo.md"}, zipEntries(t, res.ArchivePath))

	copied, err := os.ReadFile(filepath.Join(res.AssetDir, "photo.png"))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, copied)
}

func TestRun_ImageWithOCRText(t *testing.T) {
	c, _ := newTestConverter(t, Options{OCR: &fakeOCR{text: "Hello from the scanner"}})
	in := writeInput(t, "scan.JPG", pngBytes)

	res, err := c.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Hello from the scanner", res.Markdown)
}

func TestRun_ImageRejectsNonImageContent(t *testing.T) {
	c, _ := newTestConverter(t, Options{})
	in := writeInput(t, "fake.png", []byte("just some text"))

	_, err := c.Run(context.Background(), in)
	assert.ErrorIs(t, err, ErrConversion)
	assert.Contains(t, err.Error(), "not an image")
}

func TestRun_DOCXScenario(t *testing.T) {
	c, _ := newTestConverter(t, Options{})
	in := filepath.Join(t.TempDir(), "b.docx")
	writeDOCX(t, in, headingAndTableXML, nil)

	res, err := c.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "# Intro\n\n| A | B |\n| --- | --- |\n| 1 | 2 |", res.Markdown)
	assert.Equal(t, []string{"b.md"}, zipEntries(t, res.ArchivePath))
}

func TestRun_DOCXInvalidPackage(t *testing.T) {
	c, _ := newTestConverter(t, Options{})
	in := writeInput(t, "legacy.doc", []byte("\xd0\xcf\x11\xe0 binary word"))

	_, err := c.Run(context.Background(), in)
	assert.ErrorIs(t, err, ErrConversion)
}

func TestRun_ConcurrentJobsUseDisjointWorkspaces(t *testing.T) {
	c, _ := newTestConverter(t, Options{OCR: &fakeOCR{}})
	in := writeInput(t, "same.png", pngBytes)

	const n = 8
	results := make(chan *Result, n)
	for i := 0; i < n; i++ {
		go func() {
			res, err := c.Run(context.Background(), in)
			assert.NoError(t, err)
			results <- res
		}()
	}

	roots := map[string]bool{}
	for i := 0; i < n; i++ {
		res := <-results
		if res == nil {
			continue
		}
		assert.False(t, roots[res.TaskID])
		roots[res.TaskID] = true
	}
	assert.Len(t, roots, n)
}

func TestRenderMarkdown(t *testing.T) {
	dir := t.TempDir()
	blocks := []Block{
		{Kind: BlockParagraph, Text: "Deep", HeadingLevel: 9},
		{Kind: BlockParagraph, Text: "   "},
		{Kind: BlockParagraph, Text: "Body text"},
		{Kind: BlockImage, Image: pngBytes, ImageExt: ".png"},
		{Kind: BlockTable, Rows: [][]string{{"a|b", "c"}, {"1"}, {"x", "y", "z"}}},
		{Kind: BlockImage, Image: []byte("gif"), ImageExt: ".gif"},
		{Kind: BlockTable},
	}

	md, err := RenderMarkdown(blocks, dir)
	require.NoError(t, err)

	want := "###### Deep\n\n" +
		"Body text\n\n" +
		"![image 1](images/image_1.png)\n\n" +
		"| a\\|b | c |\n| --- | --- |\n| 1 |  |\n| x | y |\n\n" +
		"![image 2](images/image_2.gif)"
	assert.Equal(t, want, md)
	assert.FileExists(t, filepath.Join(dir, "image_1.png"))
	assert.FileExists(t, filepath.Join(dir, "image_2.gif"))
}

func TestLimitAnalyzer(t *testing.T) {
	an := &fakeAnalyzer{markdown: "ok"}
	assert.Same(t, an, LimitAnalyzer(0, an))

	limited := LimitAnalyzer(1000, an)
	md, err := limited.Analyze(context.Background(), []byte("/Font"), MethodText, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "ok", md)
	assert.Equal(t, MethodText, limited.Classify([]byte("/Font")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = LimitOCR(0.001, &fakeOCR{}).Recognize(ctx, nil, "x.png")
	assert.Error(t, err)
}

func TestClassifyPDF(t *testing.T) {
	assert.Equal(t, MethodText, ClassifyPDF([]byte("<< /Type /Font /Subtype /Type1 >>")))
	assert.Equal(t, MethodOCR, ClassifyPDF(bytes.Repeat([]byte{0xff}, 64)))
}
