package document

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

// XML structs for the EPUB container and package documents.
type epubContainer struct {
	Rootfiles struct {
		Rootfile []struct {
			FullPath  string `xml:"full-path,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

type epubPackage struct {
	Metadata struct {
		Title    string `xml:"title"`
		Creator  string `xml:"creator"`
		Language string `xml:"language"`
		Meta     []struct {
			Name    string `xml:"name,attr"`
			Content string `xml:"content,attr"`
		} `xml:"meta"`
	} `xml:"metadata"`
	Manifest struct {
		Item []struct {
			ID         string `xml:"id,attr"`
			Href       string `xml:"href,attr"`
			MediaType  string `xml:"media-type,attr"`
			Properties string `xml:"properties,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		ItemRef []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type ncx struct {
	NavMap struct {
		NavPoint []ncxNavPoint `xml:"navPoint"`
	} `xml:"navMap"`
}

type ncxNavPoint struct {
	Label struct {
		Text string `xml:"text"`
	} `xml:"navLabel"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	NavPoint []ncxNavPoint `xml:"navPoint"`
}

// ParseEPUB walks the spine in reading order and extracts one section per
// content document. Titles come from the NCX table of contents where one
// exists; chapters too short to narrate are dropped.
func ParseEPUB(path string, opts ParseOptions) (*Document, error) {
	z, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open epub: %w", err)
	}
	defer z.Close()

	// 1. Find the OPF file via META-INF/container.xml
	containerFile, err := findFileInZip(z, "META-INF/container.xml")
	if err != nil {
		return nil, fmt.Errorf("invalid epub: no container.xml")
	}

	var container epubContainer
	if err := decodeZipXML(containerFile, &container); err != nil {
		return nil, fmt.Errorf("failed to parse container.xml: %v", err)
	}
	if len(container.Rootfiles.Rootfile) == 0 {
		return nil, fmt.Errorf("invalid epub: no rootfile found")
	}
	opfPath := container.Rootfiles.Rootfile[0].FullPath

	// 2. Parse the OPF package document
	opfFile, err := findFileInZip(z, opfPath)
	if err != nil {
		return nil, fmt.Errorf("opf file not found: %s", opfPath)
	}

	var pkg epubPackage
	if err := decodeZipXML(opfFile, &pkg); err != nil {
		return nil, fmt.Errorf("failed to parse opf: %v", err)
	}

	opfDir := filepath.Dir(opfPath)
	resolve := func(href string) string {
		if opfDir == "." {
			return href
		}
		// Paths in the OPF are relative to its own location; zip entries
		// always use forward slashes.
		return filepath.ToSlash(filepath.Join(opfDir, href))
	}

	// 3. Manifest lookup (ID -> Href) and the NCX title index
	manifestMap := make(map[string]string)
	ncxPath := ""
	for _, item := range pkg.Manifest.Item {
		manifestMap[item.ID] = item.Href
		if item.MediaType == "application/x-dtbncx+xml" {
			ncxPath = resolve(item.Href)
		}
	}
	titles := loadNCXTitles(z, ncxPath)

	doc := &Document{
		Title:    strings.TrimSpace(pkg.Metadata.Title),
		Author:   strings.TrimSpace(pkg.Metadata.Creator),
		Language: strings.TrimSpace(pkg.Metadata.Language),
	}
	if doc.Title == "" {
		doc.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if opts.CoverDir != "" {
		if coverPath, err := extractCover(z, pkg, resolve, opts.CoverDir); err == nil {
			doc.CoverPath = coverPath
		} else {
			log.Printf("[EPUB] No cover extracted: %v", err)
		}
	}

	// 4. Iterate the spine to get chapters in reading order
	count := 1
	for _, itemRef := range pkg.Spine.ItemRef {
		href, ok := manifestMap[itemRef.IDRef]
		if !ok {
			continue
		}

		f, err := findFileInZip(z, resolve(href))
		if err != nil {
			log.Printf("[EPUB] Missing spine file %s", resolve(href))
			continue
		}

		content, err := extractHTMLText(f)
		if err != nil {
			continue
		}
		content = CleanText(content, opts.Cleaning)
		if len(content) <= 10 {
			continue
		}

		// Sequential IDs preserve reading order for clients.
		id := fmt.Sprintf("ch_%03d", count)
		title := titles[href]
		if title == "" {
			title = fmt.Sprintf("Chapter %d", count)
		}
		count++

		if !opts.Filter.Keep(id) {
			continue
		}
		doc.Sections = append(doc.Sections, NewSection(id, title, content))
	}

	return doc, nil
}

// loadNCXTitles maps content hrefs (relative to the OPF, fragment stripped)
// to their navigation labels. A missing or malformed NCX yields an empty map.
func loadNCXTitles(z *zip.ReadCloser, ncxPath string) map[string]string {
	titles := make(map[string]string)
	if ncxPath == "" {
		return titles
	}
	f, err := findFileInZip(z, ncxPath)
	if err != nil {
		return titles
	}
	var toc ncx
	if err := decodeZipXML(f, &toc); err != nil {
		return titles
	}

	var walk func(points []ncxNavPoint)
	walk = func(points []ncxNavPoint) {
		for _, p := range points {
			src := p.Content.Src
			if i := strings.IndexByte(src, '#'); i >= 0 {
				src = src[:i]
			}
			label := strings.TrimSpace(p.Label.Text)
			if src != "" && label != "" {
				if _, seen := titles[src]; !seen {
					titles[src] = label
				}
			}
			walk(p.NavPoint)
		}
	}
	walk(toc.NavMap.NavPoint)
	return titles
}

// extractCover finds the cover image via the manifest (cover-image property
// or the legacy meta name="cover" pointer) and copies it into dir.
func extractCover(z *zip.ReadCloser, pkg epubPackage, resolve func(string) string, dir string) (string, error) {
	coverHref := ""
	for _, item := range pkg.Manifest.Item {
		if strings.Contains(item.Properties, "cover-image") {
			coverHref = item.Href
			break
		}
	}
	if coverHref == "" {
		coverID := ""
		for _, m := range pkg.Metadata.Meta {
			if m.Name == "cover" {
				coverID = m.Content
				break
			}
		}
		for _, item := range pkg.Manifest.Item {
			if item.ID == coverID && strings.HasPrefix(item.MediaType, "image/") {
				coverHref = item.Href
				break
			}
		}
	}
	if coverHref == "" {
		return "", fmt.Errorf("no cover declared in manifest")
	}

	f, err := findFileInZip(z, resolve(coverHref))
	if err != nil {
		return "", err
	}
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	dst := filepath.Join(dir, "cover"+filepath.Ext(coverHref))
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		os.Remove(dst)
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return dst, nil
}

func findFileInZip(z *zip.ReadCloser, name string) (*zip.File, error) {
	normalized := strings.ReplaceAll(name, "\\", "/")
	for _, f := range z.File {
		if f.Name == name || f.Name == normalized {
			return f, nil
		}
	}
	return nil, fmt.Errorf("file not found: %s", name)
}

func decodeZipXML(f *zip.File, target interface{}) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return xml.NewDecoder(rc).Decode(target)
}

// extractHTMLText walks the parsed tree and collects visible text nodes,
// skipping script and style bodies.
func extractHTMLText(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	doc, err := html.Parse(rc)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	var walker func(*html.Node)
	walker = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				sb.WriteString(text + "\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walker(c)
		}
	}
	walker(doc)
	return sb.String(), nil
}
