package chunker

import (
	"strings"
	"testing"
)

func TestSplitSectionScenario(t *testing.T) {
	text := "# Overview\nThe project exceeds 50MW.\n\n# Financials\nIRR is 12%."
	policy := Policy{ChunkSize: 1000, Overlap: 0, MinChunk: 10}

	chunks := Split(text, policy)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].SectionTitle != "# Overview" {
		t.Fatalf("expected first section title '# Overview', got %q", chunks[0].SectionTitle)
	}
	if chunks[1].SectionTitle != "# Financials" {
		t.Fatalf("expected second section title '# Financials', got %q", chunks[1].SectionTitle)
	}
	if chunks[0].Index != 0 || chunks[1].Index != 1 {
		t.Fatalf("expected indexes 0 and 1, got %d and %d", chunks[0].Index, chunks[1].Index)
	}
	if !strings.Contains(chunks[1].Text, "IRR is 12%") {
		t.Fatalf("expected financials text in second chunk, got %q", chunks[1].Text)
	}
}

func TestSplitEmptyInput(t *testing.T) {
	if chunks := Split("", DefaultPolicy()); len(chunks) != 0 {
		t.Fatalf("expected no chunks for empty text, got %d", len(chunks))
	}
	if chunks := Split("  \n\n\t", DefaultPolicy()); len(chunks) != 0 {
		t.Fatalf("expected no chunks for whitespace text, got %d", len(chunks))
	}
}

func TestSplitRespectsChunkSize(t *testing.T) {
	paragraph := "This is a sentence of moderate length that repeats. "
	var sb strings.Builder
	sb.WriteString("# Section\n\n")
	for i := 0; i < 40; i++ {
		sb.WriteString(paragraph)
		sb.WriteString("\n\n")
	}
	policy := Policy{ChunkSize: 300, Overlap: 50, MinChunk: 30}

	chunks := Split(sb.String(), policy)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if len(c.Text) > policy.ChunkSize {
			t.Fatalf("chunk %d exceeds size budget: %d > %d", c.Index, len(c.Text), policy.ChunkSize)
		}
	}
}

func TestSplitOverlapCarryKeepsSizeBound(t *testing.T) {
	first := strings.TrimSpace(strings.Repeat("first paragraph words ", 9))
	second := strings.TrimSpace(strings.Repeat("second paragraph block ", 12))
	text := first + "\n\n" + second
	policy := Policy{ChunkSize: 300, Overlap: 50, MinChunk: 10}

	if len(second)+2 >= policy.ChunkSize {
		t.Fatalf("fixture paragraph must fit the budget on its own, has %d", len(second))
	}

	chunks := Split(text, policy)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if len(c.Text) > policy.ChunkSize {
			t.Fatalf("chunk %d exceeds size budget after overlap carry: %d > %d", c.Index, len(c.Text), policy.ChunkSize)
		}
	}

	parts := strings.SplitN(chunks[1].Text, "\n\n", 2)
	if len(parts) != 2 || parts[0] == "" {
		t.Fatalf("expected a carried lead before the second paragraph, got %q", chunks[1].Text)
	}
	if !strings.HasSuffix(chunks[0].Text, parts[0]) {
		t.Fatalf("expected the lead %q to be a tail of chunk 0", parts[0])
	}
	if parts[1] != second {
		t.Fatalf("expected the second paragraph intact, got %q", parts[1])
	}
}

func TestSplitOversizeSentenceKeptAtomic(t *testing.T) {
	long := strings.Repeat("word ", 100) + "end."
	policy := Policy{ChunkSize: 120, Overlap: 0, MinChunk: 10}

	chunks := Split(long, policy)
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	found := false
	for _, c := range chunks {
		if len(c.Text) > policy.ChunkSize {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the unsplittable sentence to be emitted whole")
	}
}

func TestSplitCarriesOverlap(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 20; i++ {
		sb.WriteString("Paragraph body with enough text to matter for splitting purposes.")
		sb.WriteString("\n\n")
	}
	policy := Policy{ChunkSize: 200, Overlap: 40, MinChunk: 20}

	chunks := Split(sb.String(), policy)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	lead := chunks[1].Text[:policy.Overlap]
	if !strings.Contains(chunks[0].Text, strings.TrimSpace(lead)) {
		t.Fatalf("expected chunk 1 to begin with the tail of chunk 0, got lead %q", lead)
	}
}

func TestSplitMergesShortSpans(t *testing.T) {
	text := "# One\nFirst section body that is long enough to stand on its own as a chunk.\n\n# Two\nTiny.\n\n# Three\nThird section body that is also long enough to stand alone comfortably."
	policy := Policy{ChunkSize: 200, Overlap: 0, MinChunk: 20}

	chunks := Split(text, policy)
	for _, c := range chunks {
		if len(c.Text) < policy.MinChunk {
			t.Fatalf("chunk %d shorter than minimum: %q", c.Index, c.Text)
		}
	}
}

func TestSplitIndexesContiguous(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 30; i++ {
		sb.WriteString("A paragraph that contributes a reasonable amount of text to the document body.")
		sb.WriteString("\n\n")
	}
	chunks := Split(sb.String(), Policy{ChunkSize: 250, Overlap: 30, MinChunk: 25})
	for i, c := range chunks {
		if c.Index != i {
			t.Fatalf("expected index %d at position %d, got %d", i, i, c.Index)
		}
	}
}

func TestSplitNoStructureFallsBackToParagraphs(t *testing.T) {
	text := "just lowercase prose without any headings at all.\n\nanother paragraph follows here with more plain prose."
	chunks := Split(text, Policy{ChunkSize: 1000, Overlap: 0, MinChunk: 10})
	if len(chunks) != 1 {
		t.Fatalf("expected a single chunk, got %d", len(chunks))
	}
	if chunks[0].SectionTitle != "" {
		t.Fatalf("expected empty section title, got %q", chunks[0].SectionTitle)
	}
}

func TestPageForOffset(t *testing.T) {
	cases := []struct {
		offset int
		page   int
	}{
		{0, 1},
		{2999, 1},
		{3000, 2},
		{9500, 4},
	}
	for _, tc := range cases {
		if got := PageForOffset(tc.offset); got != tc.page {
			t.Fatalf("offset %d: expected page %d, got %d", tc.offset, tc.page, got)
		}
	}
}

func TestPolicyForFallsBack(t *testing.T) {
	policies := DefaultPolicies()
	if p := PolicyFor(policies, "contract"); p.ChunkSize != 1200 {
		t.Fatalf("expected contract policy, got %+v", p)
	}
	if p := PolicyFor(policies, "unheard-of"); p != policies[DefaultDocType] {
		t.Fatalf("expected default policy for unknown type, got %+v", p)
	}
	if p := PolicyFor(nil, "anything"); p != DefaultPolicy() {
		t.Fatalf("expected built-in default for nil set, got %+v", p)
	}
}
