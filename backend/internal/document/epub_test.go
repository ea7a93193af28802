package document

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testOPF = `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Sample Book</dc:title>
    <dc:creator>Jane Writer</dc:creator>
    <dc:language>en</dc:language>
    <meta name="cover" content="cover-img"/>
  </metadata>
  <manifest>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
    <item id="c1" href="chap1.xhtml" media-type="application/xhtml+xml"/>
    <item id="c2" href="chap2.xhtml" media-type="application/xhtml+xml"/>
    <item id="cover-img" href="cover.jpg" media-type="image/jpeg"/>
  </manifest>
  <spine toc="ncx">
    <itemref idref="c1"/>
    <itemref idref="c2"/>
  </spine>
</package>`

const testNCX = `<?xml version="1.0"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <navMap>
    <navPoint id="n1"><navLabel><text>The Beginning</text></navLabel><content src="chap1.xhtml"/></navPoint>
    <navPoint id="n2"><navLabel><text>The End</text></navLabel><content src="chap2.xhtml#frag"/></navPoint>
  </navMap>
</ncx>`

func writeTestEPUB(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "sample.epub")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create epub: %v", err)
	}
	zw := zip.NewWriter(f)

	files := map[string]string{
		"META-INF/container.xml": `<?xml version="1.0"?>
<container xmlns="urn:oasis:names:tc:opendocument:xmlns:container" version="1.0">
  <rootfiles><rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`,
		"OEBPS/content.opf": testOPF,
		"OEBPS/toc.ncx":     testNCX,
		"OEBPS/chap1.xhtml": `<html><body><h1>The Beginning</h1><p>Opening chapter text with enough words to keep.</p></body></html>`,
		"OEBPS/chap2.xhtml": `<html><body><h1>The End</h1><p>Closing chapter text, also long enough to survive.</p></body></html>`,
		"OEBPS/cover.jpg":   "\xff\xd8\xff\xe0fakejpegdata",
	}
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	return path
}

func TestParseEPUB(t *testing.T) {
	dir := t.TempDir()
	path := writeTestEPUB(t, dir)

	doc, err := ParseEPUB(path, ParseOptions{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if doc.Title != "Sample Book" {
		t.Errorf("title = %q, want Sample Book", doc.Title)
	}
	if doc.Author != "Jane Writer" {
		t.Errorf("author = %q, want Jane Writer", doc.Author)
	}
	if doc.Language != "en" {
		t.Errorf("language = %q, want en", doc.Language)
	}

	if len(doc.Sections) != 2 {
		t.Fatalf("sections = %d, want 2", len(doc.Sections))
	}
	if doc.Sections[0].ID != "ch_001" || doc.Sections[1].ID != "ch_002" {
		t.Errorf("ids = %s, %s", doc.Sections[0].ID, doc.Sections[1].ID)
	}
	// NCX labels win over the generated fallback titles; fragments are
	// stripped when matching hrefs.
	if doc.Sections[0].Title != "The Beginning" {
		t.Errorf("title 1 = %q", doc.Sections[0].Title)
	}
	if doc.Sections[1].Title != "The End" {
		t.Errorf("title 2 = %q", doc.Sections[1].Title)
	}
	if !strings.Contains(doc.Sections[0].Content, "Opening chapter text") {
		t.Errorf("content 1 = %q", doc.Sections[0].Content)
	}
}

func TestParseEPUBCoverExtraction(t *testing.T) {
	dir := t.TempDir()
	path := writeTestEPUB(t, dir)
	coverDir := filepath.Join(dir, "covers")
	os.MkdirAll(coverDir, 0755)

	doc, err := ParseEPUB(path, ParseOptions{CoverDir: coverDir})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.CoverPath == "" {
		t.Fatal("cover path not set")
	}
	if _, err := os.Stat(doc.CoverPath); err != nil {
		t.Errorf("cover file missing: %v", err)
	}
}

func TestParseEPUBFilter(t *testing.T) {
	dir := t.TempDir()
	path := writeTestEPUB(t, dir)

	doc, err := ParseEPUB(path, ParseOptions{Filter: Filter{Include: []string{"ch_002"}}})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(doc.Sections) != 1 || doc.Sections[0].ID != "ch_002" {
		t.Fatalf("sections = %+v, want only ch_002", doc.Sections)
	}
}

func TestParseEPUBInvalidZip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.epub")
	os.WriteFile(path, []byte("not a zip archive"), 0644)

	if _, err := ParseEPUB(path, ParseOptions{}); err == nil {
		t.Fatal("expected error for invalid archive")
	}
}
