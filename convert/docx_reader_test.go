package convert

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const docxNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" ` +
	`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" ` +
	`xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"`

const headingAndTableXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document ` + docxNS + `><w:body>
<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Intro</w:t></w:r></w:p>
<w:tbl>
<w:tr><w:tc><w:p><w:r><w:t>A</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>B</w:t></w:r></w:p></w:tc></w:tr>
<w:tr><w:tc><w:p><w:r><w:t>1</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>2</w:t></w:r></w:p></w:tc></w:tr>
</w:tbl>
<w:sectPr/>
</w:body></w:document>`

const mixedXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document ` + docxNS + `><w:body>
<w:p><w:pPr><w:pStyle w:val="Heading 2"/></w:pPr><w:r><w:t xml:space="preserve">Results </w:t></w:r><w:r><w:t>section</w:t></w:r></w:p>
<w:p><w:r><w:t>See figure</w:t></w:r><w:r><w:drawing><a:graphic><a:graphicData><a:blip r:embed="rId5"/></a:graphicData></a:graphic></w:drawing></w:r></w:p>
<w:p/>
<w:p><w:r><w:t>Line one</w:t><w:br/><w:t>Line two</w:t></w:r></w:p>
<w:p><w:pPr><w:pStyle w:val="Title"/></w:pPr><w:r><w:t>Not a heading</w:t></w:r></w:p>
</w:body></w:document>`

const relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId5" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/image1.jpeg"/>
</Relationships>`

// writeDOCX builds a minimal DOCX package with the given document part.
func writeDOCX(t *testing.T, path, document string, extra map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)

	parts := map[string][]byte{documentPart: []byte(document)}
	for name, data := range extra {
		parts[name] = data
	}
	for name, data := range parts {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestReadDOCX_HeadingAndTable(t *testing.T) {
	p := filepath.Join(t.TempDir(), "b.docx")
	writeDOCX(t, p, headingAndTableXML, nil)

	blocks, err := ReadDOCX(p)
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	assert.Equal(t, Block{Kind: BlockParagraph, Text: "Intro", HeadingLevel: 1}, blocks[0])
	assert.Equal(t, BlockTable, blocks[1].Kind)
	assert.Equal(t, [][]string{{"A", "B"}, {"1", "2"}}, blocks[1].Rows)
}

func TestReadDOCX_ParagraphsAndImages(t *testing.T) {
	p := filepath.Join(t.TempDir(), "mixed.docx")
	jpeg := []byte("\xff\xd8\xff\xe0 jpeg")
	writeDOCX(t, p, mixedXML, map[string][]byte{
		relsPart:                 []byte(relsXML),
		"word/media/image1.jpeg": jpeg,
	})

	blocks, err := ReadDOCX(p)
	require.NoError(t, err)

	dir := t.TempDir()
	md, err := RenderMarkdown(blocks, dir)
	require.NoError(t, err)
	assert.Equal(t, "## Results section\n\n"+
		"See figure\n\n"+
		"![image 1](images/image_1.jpeg)\n\n"+
		"Line one\nLine two\n\n"+
		"Not a heading", md)

	saved, err := os.ReadFile(filepath.Join(dir, "image_1.jpeg"))
	require.NoError(t, err)
	assert.Equal(t, jpeg, saved)
}

func TestReadDOCX_MissingDocumentPart(t *testing.T) {
	p := filepath.Join(t.TempDir(), "empty.docx")
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	_, err = zw.Create("[Content_Types].xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = ReadDOCX(p)
	assert.Error(t, err)
}

func TestHeadingLevel(t *testing.T) {
	assert.Equal(t, 1, headingLevel("Heading1"))
	assert.Equal(t, 3, headingLevel("heading 3"))
	assert.Equal(t, 0, headingLevel("Title"))
	assert.Equal(t, 0, headingLevel("HeadingX"))
	assert.Equal(t, 0, headingLevel(""))
}
