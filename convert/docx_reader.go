package convert

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
)

const (
	documentPart = "word/document.xml"
	relsPart     = "word/_rels/document.xml.rels"
)

// ReadDOCX extracts paragraphs, tables and inline images from a DOCX file
// in document order. Images found in a paragraph follow that paragraph.
func ReadDOCX(filename string) ([]Block, error) {
	zr, err := zip.OpenReader(filename)
	if err != nil {
		return nil, fmt.Errorf("not a docx package: %w", err)
	}
	defer zr.Close()

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	doc, ok := files[documentPart]
	if !ok {
		return nil, errors.New("docx package has no " + documentPart)
	}

	r := &docxReader{files: files}
	if rels, ok := files[relsPart]; ok {
		if r.rels, err = readRelationships(rels); err != nil {
			return nil, err
		}
	}

	rc, err := doc.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return r.body(xml.NewDecoder(rc))
}

type docxReader struct {
	files map[string]*zip.File
	rels  map[string]string
}

func readRelationships(f *zip.File) (map[string]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var doc struct {
		Relationships []struct {
			ID     string `xml:"Id,attr"`
			Target string `xml:"Target,attr"`
		} `xml:"Relationship"`
	}
	if err := xml.NewDecoder(rc).Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid relationships part: %w", err)
	}

	rels := make(map[string]string, len(doc.Relationships))
	for _, rel := range doc.Relationships {
		target := rel.Target
		if strings.HasPrefix(target, "/") {
			target = strings.TrimPrefix(target, "/")
		} else {
			target = path.Join("word", target)
		}
		rels[rel.ID] = target
	}
	return rels, nil
}

func (r *docxReader) body(d *xml.Decoder) ([]Block, error) {
	var blocks []Block
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return blocks, nil
		}
		if err != nil {
			return nil, fmt.Errorf("invalid document part: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "p":
			para, images, err := r.paragraph(d)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, para)
			blocks = append(blocks, images...)
		case "tbl":
			rows, err := r.table(d)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, Block{Kind: BlockTable, Rows: rows})
		}
	}
}

// paragraph consumes tokens up to the end of the current w:p.
func (r *docxReader) paragraph(d *xml.Decoder) (Block, []Block, error) {
	para := Block{Kind: BlockParagraph}
	var text strings.Builder
	var images []Block
	inText := false

	for {
		tok, err := d.Token()
		if err != nil {
			return para, nil, fmt.Errorf("invalid paragraph: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "pStyle":
				para.HeadingLevel = headingLevel(attr(t, "val"))
			case "t":
				inText = true
			case "tab":
				text.WriteString("\t")
			case "br", "cr":
				text.WriteString("\n")
			case "blip":
				if img, ok := r.image(attr(t, "embed")); ok {
					images = append(images, img)
				}
			case "txbxContent":
				if err := d.Skip(); err != nil {
					return para, nil, err
				}
			}
		case xml.CharData:
			if inText {
				text.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				para.Text = text.String()
				return para, images, nil
			}
		}
	}
}

// table consumes tokens up to the end of the current w:tbl. Cell text is the
// cell's paragraphs joined by newlines; nested tables are skipped.
func (r *docxReader) table(d *xml.Decoder) ([][]string, error) {
	var rows [][]string
	var cell []string

	for {
		tok, err := d.Token()
		if err != nil {
			return nil, fmt.Errorf("invalid table: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tr":
				rows = append(rows, nil)
			case "tc":
				cell = nil
			case "p":
				para, _, err := r.paragraph(d)
				if err != nil {
					return nil, err
				}
				cell = append(cell, para.Text)
			case "tbl":
				if err := d.Skip(); err != nil {
					return nil, err
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "tc":
				if len(rows) > 0 {
					rows[len(rows)-1] = append(rows[len(rows)-1], strings.Join(cell, "\n"))
				}
			case "tbl":
				return rows, nil
			}
		}
	}
}

func (r *docxReader) image(relID string) (Block, bool) {
	target, ok := r.rels[relID]
	if !ok {
		return Block{}, false
	}
	f, ok := r.files[target]
	if !ok {
		return Block{}, false
	}
	rc, err := f.Open()
	if err != nil {
		return Block{}, false
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return Block{}, false
	}
	return Block{Kind: BlockImage, Image: data, ImageExt: strings.ToLower(path.Ext(target))}, true
}

// headingLevel parses style ids like "Heading1" or names like "Heading 2".
func headingLevel(style string) int {
	lower := strings.ToLower(style)
	if !strings.HasPrefix(lower, "heading") {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(lower[len("heading"):]))
	if err != nil || n < 1 {
		return 0
	}
	return n
}

func attr(e xml.StartElement, local string) string {
	for _, a := range e.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
