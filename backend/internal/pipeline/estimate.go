package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ChapterEstimate is one row of the cost table.
type ChapterEstimate struct {
	Title   string  `json:"title"`
	Chars   int     `json:"chars"`
	CostUSD float64 `json:"costUsd"`
}

// Estimate is the projected cost of a run. Items already completed in a
// matching checkpoint cost nothing, so a resumed job shows only the
// remaining spend.
type Estimate struct {
	Chapters    []ChapterEstimate `json:"chapters"`
	TotalChars  int               `json:"totalChars"`
	BilledChars int               `json:"billedChars"`
	CachedItems int               `json:"cachedItems"`
	TotalItems  int               `json:"totalItems"`
	CostUSD     float64           `json:"costUsd"`
	Provider    string            `json:"provider"`
	RatePer1k   float64           `json:"ratePer1k"`
}

// BuildEstimate prices the plan at ratePer1k USD per 1000 characters. isDone
// reports items already settled by a previous run; nil means nothing cached.
func BuildEstimate(plan *Plan, provider string, ratePer1k float64, isDone func(id string) bool) Estimate {
	est := Estimate{
		Provider:   provider,
		RatePer1k:  ratePer1k,
		TotalItems: len(plan.Items),
	}

	billable := make(map[string]int, len(plan.Items))
	for _, item := range plan.Items {
		// Runes, not bytes: providers bill characters and the segmenter
		// budgets runes.
		chars := utf8.RuneCountInString(item.Text)
		est.TotalChars += chars
		if isDone != nil && isDone(item.ID) {
			est.CachedItems++
			continue
		}
		est.BilledChars += chars
		billable[item.ID] = chars
	}

	for _, g := range plan.Groups {
		row := ChapterEstimate{Title: g.Title}
		for _, id := range g.ItemIDs {
			row.Chars += billable[id]
		}
		row.CostUSD = float64(row.Chars) / 1000 * ratePer1k
		est.Chapters = append(est.Chapters, row)
	}

	est.CostUSD = float64(est.BilledChars) / 1000 * ratePer1k
	return est
}

// Display renders the estimate as the table the CLI prints before asking for
// confirmation.
func (e Estimate) Display() string {
	var b strings.Builder
	fmt.Fprintf(&b, "      Provider: %s", e.Provider)
	if e.RatePer1k > 0 {
		fmt.Fprintf(&b, " ($%.4f per 1k chars)", e.RatePer1k)
	}
	b.WriteString("\n")

	if e.RatePer1k > 0 {
		for _, ch := range e.Chapters {
			if ch.Chars == 0 {
				continue
			}
			fmt.Fprintf(&b, "      %-40s %9d chars  $%6.2f\n", truncateTitle(ch.Title, 40), ch.Chars, ch.CostUSD)
		}
	}

	fmt.Fprintf(&b, "      Total: %d chars", e.TotalChars)
	if e.CachedItems > 0 {
		fmt.Fprintf(&b, " (%d of %d items cached, %d chars to bill)",
			e.CachedItems, e.TotalItems, e.BilledChars)
	}
	b.WriteString("\n")
	if e.RatePer1k > 0 {
		fmt.Fprintf(&b, "      Estimated cost: $%.2f\n", e.CostUSD)
	} else {
		b.WriteString("      Estimated cost: free (local provider)\n")
	}
	return b.String()
}

func truncateTitle(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
