package convert

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type BlockKind int

const (
	BlockParagraph BlockKind = iota
	BlockTable
	BlockImage
)

// Block is one block-level element of a word processing document.
type Block struct {
	Kind BlockKind

	// Paragraph
	Text         string
	HeadingLevel int // 0 for body text

	// Table, first row is the header
	Rows [][]string

	// Image
	Image    []byte
	ImageExt string
}

// BlockSource yields the ordered blocks of a DOCX file.
type BlockSource func(path string) ([]Block, error)

// RenderMarkdown turns blocks into Markdown. Images are written to imagesDir
// as image_{n}{ext} and referenced relative to the Markdown file.
func RenderMarkdown(blocks []Block, imagesDir string) (string, error) {
	var parts []string
	imageIndex := 1

	for _, b := range blocks {
		switch b.Kind {
		case BlockParagraph:
			if strings.TrimSpace(b.Text) == "" {
				continue
			}
			if b.HeadingLevel > 0 {
				parts = append(parts, strings.Repeat("#", clampHeading(b.HeadingLevel))+" "+b.Text)
			} else {
				parts = append(parts, b.Text)
			}

		case BlockTable:
			if t := renderTable(b.Rows); t != "" {
				parts = append(parts, t)
			}

		case BlockImage:
			ext := b.ImageExt
			if ext == "" {
				ext = ".png"
			}
			name := fmt.Sprintf("image_%d%s", imageIndex, ext)
			if err := os.WriteFile(filepath.Join(imagesDir, name), b.Image, 0o644); err != nil {
				return "", fmt.Errorf("could not save %s: %w", name, err)
			}
			parts = append(parts, fmt.Sprintf("![image %d](images/%s)", imageIndex, name))
			imageIndex++
		}
	}

	return strings.Join(parts, "\n\n"), nil
}

func clampHeading(level int) int {
	if level > 6 {
		return 6
	}
	return level
}

func renderTable(rows [][]string) string {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return ""
	}
	width := len(rows[0])

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, tableRow(rows[0], width))

	sep := make([]string, width)
	for i := range sep {
		sep[i] = "---"
	}
	lines = append(lines, "| "+strings.Join(sep, " | ")+" |")

	for _, row := range rows[1:] {
		lines = append(lines, tableRow(row, width))
	}
	return strings.Join(lines, "\n")
}

// tableRow pads or cuts a row to the header width.
func tableRow(cells []string, width int) string {
	out := make([]string, width)
	for i := 0; i < width && i < len(cells); i++ {
		cell := strings.TrimSpace(cells[i])
		cell = strings.ReplaceAll(cell, "|", `\|`)
		out[i] = strings.ReplaceAll(cell, "\n", "<br>")
	}
	return "| " + strings.Join(out, " | ") + " |"
}
