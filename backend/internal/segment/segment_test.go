package segment

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSegmentShortTextSingleChunk(t *testing.T) {
	chunks := Segment("Hello world. This is short.", Chars(100))
	if len(chunks) != 1 {
		t.Fatalf("len = %d, want 1: %q", len(chunks), chunks)
	}
	if chunks[0] != "Hello world. This is short." {
		t.Fatalf("unexpected chunk: %q", chunks[0])
	}
}

func TestSegmentEmptyInput(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t  \n"} {
		if got := Segment(in, Chars(100)); got != nil {
			t.Errorf("Segment(%q) = %q, want nil", in, got)
		}
	}
}

func TestSegmentPacksSentencesUpToLimit(t *testing.T) {
	text := "One sentence here. Another sentence there. A third one follows. And a fourth."
	chunks := Segment(text, Chars(45))

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %q", chunks)
	}
	for _, c := range chunks {
		if utf8.RuneCountInString(c) > 45 {
			t.Errorf("chunk over limit (%d runes): %q", utf8.RuneCountInString(c), c)
		}
	}
}

// Joining chunks with single spaces must reproduce the normalized input, no
// matter how deep the splitter had to degrade.
func TestSegmentReconstruction(t *testing.T) {
	inputs := []string{
		"Plain text. Two sentences.",
		"A very, very long sentence with many, many commas that will not fit; it keeps going and going, far past any budget, until the splitter gives up.",
		"No sentence punctuation at all just words " + strings.Repeat("word ", 50),
		"Quoted speech. \"Indeed!\" He said. 'Another.' Done.",
		"Clauses: first part; second part — third part.",
	}
	for _, in := range inputs {
		for _, max := range []int{10, 25, 80} {
			chunks := Segment(in, Chars(max))
			if got := strings.Join(chunks, " "); got != Normalize(in) {
				t.Errorf("max=%d: reconstruction mismatch\n got: %q\nwant: %q", max, got, Normalize(in))
			}
		}
	}
}

func TestSegmentOversizedWordKeptWhole(t *testing.T) {
	word := strings.Repeat("x", 30)
	chunks := Segment("tiny "+word+" tiny", Chars(10))

	found := false
	for _, c := range chunks {
		if c == word {
			found = true
		}
		if strings.Contains(c, "x") && c != word {
			t.Errorf("oversized word was broken apart: %q", c)
		}
	}
	if !found {
		t.Fatalf("oversized word missing from chunks: %q", chunks)
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "basic",
			in:   "First one. Second one. Third!",
			want: []string{"First one.", "Second one.", "Third!"},
		},
		{
			name: "question and quote",
			in:   "Really? \"Yes.\" He nodded.",
			want: []string{"Really?", "\"Yes.\"", "He nodded."},
		},
		{
			name: "lowercase continuation not split",
			in:   "It was 3.5 meters long. Done.",
			want: []string{"It was 3.5 meters long.", "Done."},
		},
		{
			name: "no terminator",
			in:   "just a fragment",
			want: []string{"just a fragment"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitSentences(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("part %d: got %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSegmentClauseDegradation(t *testing.T) {
	// One sentence far over budget with clause punctuation available.
	text := "The first clause runs long here; the second clause also runs long; a third closes it."
	chunks := Segment(text, Chars(40))

	if len(chunks) < 2 {
		t.Fatalf("expected clause-level split, got %q", chunks)
	}
	if !strings.HasSuffix(chunks[0], ";") {
		t.Errorf("expected clause break to keep its punctuation: %q", chunks[0])
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("a", 400), 100},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.in); got != tt.want {
			t.Errorf("EstimateTokens(%d chars) = %d, want %d", len(tt.in), got, tt.want)
		}
	}
}
