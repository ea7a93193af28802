package document

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var txtHeading = regexp.MustCompile(`(?i)^(#{1,3}\s+.+|(?:CHAPTER|PART)\s+(?:\d+|[IVXLCDM]+|\w+)(?:\s*[:.\-].*)?)$`)

// ParseTXT splits a plain-text or markdown file into sections on heading
// lines. Files without headings become a single section.
func ParseTXT(path string, opts ParseOptions) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	doc := &Document{
		Title:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Language: "en",
	}

	type chunk struct {
		title string
		lines []string
	}
	chunks := []chunk{{title: ""}}

	for _, line := range strings.Split(strings.ReplaceAll(string(raw), "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if txtHeading.MatchString(trimmed) && len(trimmed) <= 80 {
			chunks = append(chunks, chunk{title: strings.TrimLeft(trimmed, "# ")})
			continue
		}
		chunks[len(chunks)-1].lines = append(chunks[len(chunks)-1].lines, line)
	}

	count := 1
	for _, c := range chunks {
		content := CleanText(strings.Join(c.lines, "\n"), opts.Cleaning)
		if content == "" {
			continue
		}
		id := fmt.Sprintf("ch_%03d", count)
		title := c.title
		if title == "" {
			if len(chunks) == 1 || count == 1 && chunks[0].title == "" {
				title = "Full Text"
			} else {
				title = fmt.Sprintf("Section %d", count)
			}
		}
		count++
		if !opts.Filter.Keep(id) {
			continue
		}
		doc.Sections = append(doc.Sections, NewSection(id, title, content))
	}

	if len(doc.Sections) == 0 && len(opts.Filter.Include) == 0 {
		return nil, fmt.Errorf("no narratable text in %s", path)
	}
	return doc, nil
}
