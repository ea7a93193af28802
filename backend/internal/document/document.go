// Package document parses EPUB, PDF and plain-text books into an ordered
// list of sections. Parsers are collaborators with a narrow contract: section
// order matches reading order and word/char counts are populated on
// construction.
package document

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Section is one chapter (or page group) of a parsed book. Immutable once
// produced; counts are derived at construction and never recomputed.
type Section struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	WordCount int    `json:"wordCount"`
	CharCount int    `json:"charCount"`
}

// Document is a parsed book. Read-only to the conversion pipeline.
type Document struct {
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Language  string    `json:"language,omitempty"`
	CoverPath string    `json:"coverPath,omitempty"`
	Sections  []Section `json:"sections"`
}

func NewSection(id, title, content string) Section {
	return Section{
		ID:        id,
		Title:     title,
		Content:   content,
		WordCount: len(strings.Fields(content)),
		CharCount: utf8.RuneCountInString(content),
	}
}

func (d *Document) TotalWords() int {
	total := 0
	for _, s := range d.Sections {
		total += s.WordCount
	}
	return total
}

func (d *Document) TotalChars() int {
	total := 0
	for _, s := range d.Sections {
		total += s.CharCount
	}
	return total
}

// Filter selects sections by ID. An empty include list keeps everything not
// excluded; exclude wins over include.
type Filter struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

func (f Filter) Keep(id string) bool {
	for _, ex := range f.Exclude {
		if ex == id {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, in := range f.Include {
		if in == id {
			return true
		}
	}
	return false
}

// CleaningOptions toggle text normalization applied to extracted content.
type CleaningOptions struct {
	CollapseWhitespace bool `yaml:"collapse_whitespace"`
	FixHyphenation     bool `yaml:"fix_hyphenation"`
	StripPageNumbers   bool `yaml:"strip_page_numbers"`
}

var (
	hyphenBreak = regexp.MustCompile(`(\w)-\n(\w)`)
	pageNumber  = regexp.MustCompile(`(?m)^\s*\d{1,4}\s*$`)
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	blankRuns   = regexp.MustCompile(`\n{3,}`)
)

// CleanText applies the selected cleanups to extracted text.
func CleanText(text string, opts CleaningOptions) string {
	if opts.FixHyphenation {
		text = hyphenBreak.ReplaceAllString(text, "$1$2")
	}
	if opts.StripPageNumbers {
		text = pageNumber.ReplaceAllString(text, "")
	}
	if opts.CollapseWhitespace {
		text = spaceRuns.ReplaceAllString(text, " ")
		text = blankRuns.ReplaceAllString(text, "\n\n")
	}
	return strings.TrimSpace(text)
}

// ParseOptions carries everything a parser needs besides the file itself.
type ParseOptions struct {
	Filter   Filter
	Cleaning CleaningOptions
	// CoverDir, when set, receives an extracted cover image (EPUB only).
	CoverDir string
	// OCR enables the vision fallback for scanned PDF pages; nil disables it.
	OCR OCR
}

// Parse dispatches on the file extension. A parse failure is fatal for the
// job: there is no text to convert without it.
func Parse(ctx context.Context, path string, opts ParseOptions) (*Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".epub":
		return ParseEPUB(path, opts)
	case ".pdf":
		return ParsePDF(ctx, path, opts)
	case ".txt", ".md":
		return ParseTXT(path, opts)
	default:
		return nil, fmt.Errorf("unsupported input format %q (want .epub, .pdf or .txt)", filepath.Ext(path))
	}
}
