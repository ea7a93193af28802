package pipeline

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	"audiobook-forge/backend/internal/audio"
	"audiobook-forge/backend/internal/document"
	"audiobook-forge/backend/internal/segment"
)

// WorkItem is one unit of synthesis: a single provider call under normal
// conditions. IDs are stable across runs for the same book and options, which
// is what lets the checkpoint store match previous work.
type WorkItem struct {
	ID        string
	SectionID string
	Text      string
}

// Plan pairs the flat work-item list with the chapter grouping the assembler
// consumes. Group order is playback order.
type Plan struct {
	Items  []WorkItem
	Groups []audio.Group
}

func (p *Plan) TotalChars() int {
	total := 0
	for _, it := range p.Items {
		total += utf8.RuneCountInString(it.Text)
	}
	return total
}

// BuildPlan expands a parsed book into work items: optional intro and title
// announcement, then per chapter an optional spoken announcement followed by
// the chapter's text chunks, then an optional outro.
func BuildPlan(doc *document.Document, opts Options) *Plan {
	limit := segment.Chars(opts.Conversion.ChunkChars)
	p := &Plan{}

	if opts.IntroText != "" {
		p.addGroup("Introduction", WorkItem{ID: "_intro", Text: opts.IntroText})
	}
	if opts.TitleAnnouncement != "" {
		p.addGroup("Title", WorkItem{ID: "_title", Text: opts.TitleAnnouncement})
	}

	for _, sec := range doc.Sections {
		var items []WorkItem
		if opts.Conversion.AnnounceChapters {
			items = append(items, WorkItem{
				ID:        sec.ID + "_ann",
				SectionID: sec.ID,
				Text:      sec.Title + ".",
			})
		}
		for i, chunk := range segment.Segment(sec.Content, limit) {
			items = append(items, WorkItem{
				ID:        chunkID(sec.ID, i, chunk),
				SectionID: sec.ID,
				Text:      chunk,
			})
		}
		if len(items) > 0 {
			p.addGroup(sec.Title, items...)
		}
	}

	if opts.OutroText != "" {
		p.addGroup("Closing", WorkItem{ID: "_outro", Text: opts.OutroText})
	}
	return p
}

func (p *Plan) addGroup(title string, items ...WorkItem) {
	g := audio.Group{Title: title}
	for _, it := range items {
		p.Items = append(p.Items, it)
		g.ItemIDs = append(g.ItemIDs, it.ID)
	}
	p.Groups = append(p.Groups, g)
}

// chunkID embeds a content hash so an edited book never silently reuses
// stale cached audio for a chunk at the same position.
func chunkID(sectionID string, index int, text string) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s|%d|%s", sectionID, index, text)
	return fmt.Sprintf("%s_c%04d_%s", sectionID, index, hex.EncodeToString(h.Sum(nil))[:8])
}
