package document

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		opts CleaningOptions
		want string
	}{
		{
			name: "hyphenation fix",
			in:   "a long hy-\nphenated word",
			opts: CleaningOptions{FixHyphenation: true},
			want: "a long hyphenated word",
		},
		{
			name: "page numbers stripped",
			in:   "end of page\n42\nnext page",
			opts: CleaningOptions{StripPageNumbers: true, CollapseWhitespace: true},
			want: "end of page\n\nnext page",
		},
		{
			name: "whitespace collapsed",
			in:   "too   many    spaces\n\n\n\nand blank lines",
			opts: CleaningOptions{CollapseWhitespace: true},
			want: "too many spaces\n\nand blank lines",
		},
		{
			name: "no options is trim only",
			in:   "  keep   inner   spacing  ",
			opts: CleaningOptions{},
			want: "keep   inner   spacing",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanText(tt.in, tt.opts); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFilterKeep(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		id     string
		want   bool
	}{
		{"empty keeps all", Filter{}, "ch_001", true},
		{"include match", Filter{Include: []string{"ch_001"}}, "ch_001", true},
		{"include miss", Filter{Include: []string{"ch_001"}}, "ch_002", false},
		{"exclude wins", Filter{Include: []string{"ch_001"}, Exclude: []string{"ch_001"}}, "ch_001", false},
		{"exclude only", Filter{Exclude: []string{"ch_002"}}, "ch_001", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Keep(tt.id); got != tt.want {
				t.Errorf("Keep(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestNewSectionCounts(t *testing.T) {
	sec := NewSection("ch_001", "One", "four words right here")
	if sec.WordCount != 4 {
		t.Errorf("words = %d, want 4", sec.WordCount)
	}
	if sec.CharCount != 21 {
		t.Errorf("chars = %d, want 21", sec.CharCount)
	}
}

func TestParseTXTHeadings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.txt")
	content := strings.Join([]string{
		"Chapter 1: The Start",
		"Text of the first chapter.",
		"",
		"Chapter 2: The Middle",
		"Text of the second chapter.",
	}, "\n")
	os.WriteFile(path, []byte(content), 0644)

	doc, err := ParseTXT(path, ParseOptions{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(doc.Sections) != 2 {
		t.Fatalf("sections = %d, want 2: %+v", len(doc.Sections), doc.Sections)
	}
	if doc.Sections[0].Title != "Chapter 1: The Start" {
		t.Errorf("title = %q", doc.Sections[0].Title)
	}
	if doc.Sections[0].ID != "ch_001" || doc.Sections[1].ID != "ch_002" {
		t.Errorf("ids = %s, %s", doc.Sections[0].ID, doc.Sections[1].ID)
	}
	if doc.Title != "book" {
		t.Errorf("doc title = %q, want file stem", doc.Title)
	}
}

func TestParseTXTNoHeadingsSingleSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.txt")
	os.WriteFile(path, []byte("Just a plain block of text.\nNothing resembling a heading."), 0644)

	doc, err := ParseTXT(path, ParseOptions{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(doc.Sections) != 1 {
		t.Fatalf("sections = %d, want 1", len(doc.Sections))
	}
	if doc.Sections[0].Title != "Full Text" {
		t.Errorf("title = %q, want Full Text", doc.Sections[0].Title)
	}
}

func TestParseTXTFilter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.txt")
	content := "Chapter 1\nfirst\n\nChapter 2\nsecond\n\nChapter 3\nthird\n"
	os.WriteFile(path, []byte(content), 0644)

	doc, err := ParseTXT(path, ParseOptions{Filter: Filter{Exclude: []string{"ch_002"}}})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(doc.Sections) != 2 {
		t.Fatalf("sections = %d, want 2", len(doc.Sections))
	}
	for _, sec := range doc.Sections {
		if sec.ID == "ch_002" {
			t.Error("excluded section survived the filter")
		}
	}
}

func TestParseUnsupportedExtension(t *testing.T) {
	_, err := Parse(context.Background(), "book.mobi", ParseOptions{})
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("err = %v, want unsupported format", err)
	}
}
