package pipeline

import (
	"math"
	"strings"
	"testing"
)

func TestBuildEstimateTotals(t *testing.T) {
	plan := &Plan{}
	plan.addGroup("Chapter One", WorkItem{ID: "a", SectionID: "ch_001", Text: strings.Repeat("x", 1000)})
	plan.addGroup("Chapter Two", WorkItem{ID: "b", SectionID: "ch_002", Text: strings.Repeat("y", 500)})

	est := BuildEstimate(plan, "openai", 0.015, nil)

	if est.TotalChars != 1500 || est.BilledChars != 1500 {
		t.Fatalf("chars = %d/%d, want 1500/1500", est.TotalChars, est.BilledChars)
	}
	want := 1.5 * 0.015
	if math.Abs(est.CostUSD-want) > 1e-9 {
		t.Errorf("cost = %f, want %f", est.CostUSD, want)
	}
	if len(est.Chapters) != 2 {
		t.Fatalf("chapters = %d, want 2", len(est.Chapters))
	}
	if est.Chapters[0].Chars != 1000 || est.Chapters[1].Chars != 500 {
		t.Errorf("chapter chars = %d/%d, want 1000/500", est.Chapters[0].Chars, est.Chapters[1].Chars)
	}
}

func TestBuildEstimateCachedItemsAreFree(t *testing.T) {
	plan := &Plan{}
	plan.addGroup("Chapter One",
		WorkItem{ID: "a", SectionID: "ch_001", Text: strings.Repeat("x", 1000)},
		WorkItem{ID: "b", SectionID: "ch_001", Text: strings.Repeat("y", 1000)},
	)

	est := BuildEstimate(plan, "openai", 0.015, func(id string) bool { return id == "a" })

	if est.TotalChars != 2000 {
		t.Errorf("total chars = %d, want 2000", est.TotalChars)
	}
	if est.BilledChars != 1000 {
		t.Errorf("billed chars = %d, want 1000", est.BilledChars)
	}
	if est.CachedItems != 1 {
		t.Errorf("cached = %d, want 1", est.CachedItems)
	}
	if math.Abs(est.CostUSD-0.015) > 1e-9 {
		t.Errorf("cost = %f, want 0.015", est.CostUSD)
	}
}

func TestBuildEstimateCountsRunesNotBytes(t *testing.T) {
	plan := &Plan{}
	plan.addGroup("Chapter One", WorkItem{ID: "a", SectionID: "ch_001", Text: strings.Repeat("é", 500)})

	est := BuildEstimate(plan, "openai", 0.015, nil)

	// Providers bill characters, not UTF-8 bytes.
	if est.TotalChars != 500 || est.BilledChars != 500 {
		t.Errorf("chars = %d/%d, want 500/500", est.TotalChars, est.BilledChars)
	}
	if est.Chapters[0].Chars != 500 {
		t.Errorf("chapter chars = %d, want 500", est.Chapters[0].Chars)
	}
	if plan.TotalChars() != 500 {
		t.Errorf("plan chars = %d, want 500", plan.TotalChars())
	}
}

func TestEstimateDisplayFreeProvider(t *testing.T) {
	plan := testPlan("a")
	est := BuildEstimate(plan, "local", 0, nil)

	out := est.Display()
	if !strings.Contains(out, "free") {
		t.Errorf("display for a free provider should say so:\n%s", out)
	}
	if strings.Contains(out, "$") {
		t.Errorf("free provider display should not show dollar amounts:\n%s", out)
	}
}
