package document

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const pdfPagesPerChapter = 20

// Heading patterns checked against the first lines of each page. Matter
// headings (Introduction, Epilogue and friends) count as boundaries too so
// front and back matter land in their own sections.
var (
	pdfChapterHeading = regexp.MustCompile(`(?i)^(?:CHAPTER|PART)\s+(?:\d+|[IVXLCDM]+|One|Two|Three|Four|Five|Six|Seven|Eight|Nine|Ten|Eleven|Twelve)(?:\s*[:.\-].*)?$`)
	pdfMatterHeading  = regexp.MustCompile(`(?i)^(?:Introduction|Preface|Foreword|Prologue|Epilogue|Conclusion|Afterword|Appendix(?:\s+[A-Z])?|Acknowledgements?)$`)
	trailingNumber    = regexp.MustCompile(`\d+\s*$`)
)

// ParsePDF extracts text page by page through pdftotext, falls back to vision
// OCR for pages that come back empty, then groups pages into chapters using
// detected headings or fixed-size page groups.
func ParsePDF(ctx context.Context, path string, opts ParseOptions) (*Document, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return nil, fmt.Errorf("pdftotext not found on PATH (install poppler-utils): %w", err)
	}

	pages, err := pdfExtractPages(ctx, path)
	if err != nil {
		return nil, err
	}

	ocrCount := 0
	if opts.OCR != nil {
		for i, text := range pages {
			if len(strings.TrimSpace(text)) >= 50 {
				continue
			}
			ocrText, err := pdfOCRPage(ctx, path, i+1, opts.OCR)
			if err != nil {
				log.Printf("[PDF] OCR failed for page %d: %v", i+1, err)
				continue
			}
			if ocrText != "" {
				pages[i] = ocrText
				ocrCount++
			}
		}
	}
	if ocrCount > 0 {
		log.Printf("[PDF] Recovered %d pages via OCR", ocrCount)
	}

	doc := &Document{Language: "en"}
	doc.Title, doc.Author = pdfMetadata(ctx, path)
	if doc.Title == "" {
		doc.Title = strings.ReplaceAll(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), "_", " ")
	}

	nonEmpty := make(map[int]string)
	for i, text := range pages {
		if strings.TrimSpace(text) != "" {
			nonEmpty[i] = text
		}
	}
	if len(nonEmpty) == 0 {
		return nil, fmt.Errorf("no extractable text in %s", path)
	}

	boundaries := detectChapterBoundaries(nonEmpty)
	var sections []Section
	if len(boundaries) > 0 {
		log.Printf("[PDF] Detected %d chapter boundaries", len(boundaries))
		sections = chaptersFromBoundaries(boundaries, nonEmpty, opts.Cleaning)
	} else {
		log.Printf("[PDF] No chapter headings detected, grouping every %d pages", pdfPagesPerChapter)
		sections = chaptersFromPageGroups(nonEmpty, opts.Cleaning)
	}

	for _, s := range sections {
		if opts.Filter.Keep(s.ID) {
			doc.Sections = append(doc.Sections, s)
		}
	}
	return doc, nil
}

// pdfExtractPages runs pdftotext once for the whole file and splits the
// output on form feeds, one entry per page.
func pdfExtractPages(ctx context.Context, path string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "pdftotext", "-layout", "-enc", "UTF-8", path, "-")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftotext: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	pages := strings.Split(stdout.String(), "\f")
	// pdftotext terminates the last page with a form feed.
	if len(pages) > 0 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	return pages, nil
}

// pdfOCRPage renders a single page to PNG at 150 DPI and hands it to the
// vision model.
func pdfOCRPage(ctx context.Context, path string, page int, ocr OCR) (string, error) {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		return "", fmt.Errorf("pdftoppm not found on PATH: %w", err)
	}

	dir, err := os.MkdirTemp("", "ocr-page-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	cmd := exec.CommandContext(ctx, "pdftoppm", "-png", "-r", "150",
		"-f", fmt.Sprint(page), "-l", fmt.Sprint(page), path, prefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(string(out)))
	}

	// pdftoppm pads the page number in the output name by document length.
	matches, err := filepath.Glob(prefix + "*.png")
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("no rendered image for page %d", page)
	}
	img, err := os.ReadFile(matches[0])
	if err != nil {
		return "", err
	}
	return ocr.TranscribePage(ctx, img, "image/png")
}

// pdfMetadata asks pdfinfo for title and author; both are best-effort.
func pdfMetadata(ctx context.Context, path string) (title, author string) {
	out, err := exec.CommandContext(ctx, "pdfinfo", path).Output()
	if err != nil {
		return "", ""
	}
	for _, line := range strings.Split(string(out), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "Title":
			title = value
		case "Author":
			author = value
		}
	}
	return title, author
}

// detectChapterBoundaries scans the first lines of each page for heading
// patterns. It returns boundaries only when enough distinct headings are
// found to look like a real chapter structure; otherwise the caller falls
// back to page grouping.
func detectChapterBoundaries(pages map[int]string) [][2]string {
	type boundary struct {
		page  int
		title string
	}
	var found []boundary

	sorted := sortedPageNums(pages)
	for _, pageNum := range sorted {
		head := pages[pageNum]
		if len(head) > 300 {
			head = head[:300]
		}
		var lines []string
		for _, l := range strings.Split(head, "\n") {
			if l = strings.TrimSpace(l); l != "" {
				lines = append(lines, l)
			}
		}
		if len(lines) > 3 {
			lines = lines[:3]
		}

		for _, line := range lines {
			if len(line) > 60 {
				continue
			}
			// Running headers usually end with a page number.
			if trailingNumber.MatchString(line) && len(line) < 50 {
				continue
			}
			if pdfChapterHeading.MatchString(line) || pdfMatterHeading.MatchString(line) {
				found = append(found, boundary{page: pageNum, title: line})
				break
			}
		}
	}

	// Keep the first occurrence per heading name so repeated running titles
	// do not split one chapter into many.
	seen := make(map[string]bool)
	var deduped []boundary
	for _, b := range found {
		key := strings.ToLower(strings.Fields(b.title)[0])
		if !seen[key] {
			seen[key] = true
			deduped = append(deduped, b)
		}
	}

	if len(deduped) < 4 || len(deduped) > len(sorted)/10 {
		return nil
	}

	out := make([][2]string, len(deduped))
	for i, b := range deduped {
		out[i] = [2]string{fmt.Sprint(b.page), b.title}
	}
	return out
}

func chaptersFromBoundaries(boundaries [][2]string, pages map[int]string, cleaning CleaningOptions) []Section {
	sorted := sortedPageNums(pages)
	starts := make([]int, len(boundaries))
	for i, b := range boundaries {
		fmt.Sscan(b[0], &starts[i])
	}

	var sections []Section
	for i, b := range boundaries {
		end := sorted[len(sorted)-1] + 1
		if i+1 < len(boundaries) {
			end = starts[i+1]
		}

		var parts []string
		for _, p := range sorted {
			if p >= starts[i] && p < end {
				parts = append(parts, pages[p])
			}
		}
		content := CleanText(strings.Join(parts, "\n\n"), cleaning)
		if content == "" {
			continue
		}
		sections = append(sections, NewSection(fmt.Sprintf("ch_%03d", len(sections)+1), b[1], content))
	}
	return sections
}

func chaptersFromPageGroups(pages map[int]string, cleaning CleaningOptions) []Section {
	sorted := sortedPageNums(pages)

	var sections []Section
	for i := 0; i < len(sorted); i += pdfPagesPerChapter {
		end := i + pdfPagesPerChapter
		if end > len(sorted) {
			end = len(sorted)
		}
		group := sorted[i:end]

		var parts []string
		for _, p := range group {
			parts = append(parts, pages[p])
		}
		content := CleanText(strings.Join(parts, "\n\n"), cleaning)
		if content == "" {
			continue
		}
		title := fmt.Sprintf("Pages %d-%d", group[0]+1, group[len(group)-1]+1)
		sections = append(sections, NewSection(fmt.Sprintf("ch_%03d", len(sections)+1), title, content))
	}
	return sections
}

func sortedPageNums(pages map[int]string) []int {
	nums := make([]int, 0, len(pages))
	for n := range pages {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}
