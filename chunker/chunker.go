// Package chunker splits extracted document text into bounded,
// semantically coherent segments ready for indexing.
package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Characters of source text assumed per rendered page. Offsets divided by
// this value approximate a page number; the mapping is heuristic and does
// not track real page breaks.
const charsPerPage = 3000

// Policy bounds chunk emission for one document classification.
// All values are character counts.
type Policy struct {
	ChunkSize int `yaml:"chunk_size"`
	Overlap   int `yaml:"overlap"`
	MinChunk  int `yaml:"min_chunk"`
}

// Chunk is a contiguous span of a document's text. CharStart and CharEnd
// are offsets into the source text and exclude any overlap carried in
// from the preceding chunk.
type Chunk struct {
	Index        int
	Text         string
	SectionTitle string
	CharStart    int
	CharEnd      int
	Summary      string
	Embedding    []float32
}

// ID derives the stable chunk identifier. Re-ingesting a document
// produces the same ids, so writes overwrite instead of duplicating.
func ID(documentID string, index int) string {
	return fmt.Sprintf("%s_%d", documentID, index)
}

// PageForOffset maps a character offset to an approximate 1-based page.
func PageForOffset(charStart int) int {
	page := charStart/charsPerPage + 1
	if page < 1 {
		page = 1
	}
	return page
}

var numberedHeading = regexp.MustCompile(`^\d+(\.\d+)*[.)]\s+\S`)

// section is a heading-delimited region of the source text. start and
// end cover the body; the heading line itself is kept in title.
type section struct {
	title string
	start int
	end   int
}

// span is an assembled chunk candidate before min-size merging.
type span struct {
	text  string
	title string
	start int
	end   int
}

// Split chunks text under the given policy. Sections are detected from
// heading heuristics; oversized sections are split on paragraph and, as
// a last resort, sentence boundaries. Empty input yields no chunks.
func Split(text string, policy Policy) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if policy.ChunkSize <= 0 {
		policy = DefaultPolicy()
	}
	if policy.Overlap >= policy.ChunkSize {
		policy.Overlap = policy.ChunkSize / 4
	}

	var spans []span
	for _, sec := range splitSections(text) {
		spans = append(spans, splitSectionSpans(text, sec, policy)...)
	}

	spans = mergeShortSpans(spans, policy.MinChunk)

	chunks := make([]Chunk, 0, len(spans))
	for idx, sp := range spans {
		chunks = append(chunks, Chunk{
			Index:        idx,
			Text:         sp.text,
			SectionTitle: sp.title,
			CharStart:    sp.start,
			CharEnd:      sp.end,
		})
	}
	return chunks
}

// splitSections locates heading boundaries. When the text has no
// detectable structure it is returned as a single untitled section and
// the paragraph fallback in splitSectionSpans takes over.
func splitSections(text string) []section {
	type heading struct {
		title     string
		lineStart int
		bodyStart int
	}

	var headings []heading
	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if isHeading(trimmed) {
			headings = append(headings, heading{
				title:     trimmed,
				lineStart: offset,
				bodyStart: offset + len(line),
			})
		}
		offset += len(line)
	}

	if len(headings) == 0 {
		return []section{{title: "", start: 0, end: len(text)}}
	}

	sections := make([]section, 0, len(headings)+1)
	if headings[0].lineStart > 0 {
		sections = append(sections, section{title: "", start: 0, end: headings[0].lineStart})
	}
	for i, h := range headings {
		end := len(text)
		if i+1 < len(headings) {
			end = headings[i+1].lineStart
		}
		sections = append(sections, section{title: h.title, start: h.bodyStart, end: end})
	}
	return sections
}

func isHeading(trimmed string) bool {
	if trimmed == "" {
		return false
	}
	if strings.HasPrefix(trimmed, "#") {
		return true
	}
	if len(trimmed) <= 100 && numberedHeading.MatchString(trimmed) {
		return true
	}
	return isShortAllCaps(trimmed)
}

// isShortAllCaps treats lines like "FINANCIAL SUMMARY" as headings.
func isShortAllCaps(trimmed string) bool {
	if len(trimmed) > 60 {
		return false
	}
	hasLetter := false
	for _, r := range trimmed {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

// splitSectionSpans emits one span when the section fits the budget and
// otherwise accumulates paragraphs, dropping to sentence granularity for
// paragraphs that alone exceed the budget.
func splitSectionSpans(text string, sec section, policy Policy) []span {
	start, end := trimRange(text, sec.start, sec.end)
	if start >= end {
		return nil
	}

	if end-start <= policy.ChunkSize {
		return []span{{
			text:  text[start:end],
			title: sec.title,
			start: start,
			end:   end,
		}}
	}

	acc := accumulator{policy: policy, title: sec.title}
	for _, par := range splitBlocks(text, start, end, "\n\n") {
		if par.end-par.start > policy.ChunkSize {
			for _, sen := range splitSentences(text, par.start, par.end) {
				acc.add(text, sen.start, sen.end)
			}
			continue
		}
		acc.add(text, par.start, par.end)
	}
	acc.flush(false)
	return acc.spans
}

type blockRange struct {
	start int
	end   int
}

// splitBlocks splits text[start:end] on the separator, returning trimmed
// offset ranges and skipping empty blocks.
func splitBlocks(text string, start, end int, sep string) []blockRange {
	var blocks []blockRange
	cursor := start
	for cursor < end {
		next := strings.Index(text[cursor:end], sep)
		blockEnd := end
		if next >= 0 {
			blockEnd = cursor + next
		}
		bs, be := trimRange(text, cursor, blockEnd)
		if bs < be {
			blocks = append(blocks, blockRange{start: bs, end: be})
		}
		if next < 0 {
			break
		}
		cursor = blockEnd + len(sep)
	}
	return blocks
}

// splitSentences splits on terminator punctuation followed by
// whitespace. Granularity never goes below a sentence.
func splitSentences(text string, start, end int) []blockRange {
	var sentences []blockRange
	senStart := start
	for i := start; i < end; i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' && c != '\n' {
			continue
		}
		if c != '\n' && i+1 < end && !isSpaceByte(text[i+1]) {
			continue
		}
		ss, se := trimRange(text, senStart, i+1)
		if ss < se {
			sentences = append(sentences, blockRange{start: ss, end: se})
		}
		senStart = i + 1
	}
	ss, se := trimRange(text, senStart, end)
	if ss < se {
		sentences = append(sentences, blockRange{start: ss, end: se})
	}
	return sentences
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// trimRange narrows [start, end) to exclude surrounding whitespace.
func trimRange(text string, start, end int) (int, int) {
	for start < end && isSpaceByte(text[start]) {
		start++
	}
	for end > start && isSpaceByte(text[end-1]) {
		end--
	}
	return start, end
}

// accumulator assembles paragraph/sentence ranges into spans, carrying
// the configured overlap across size-based splits. The overlap text
// counts against the size budget so assembled spans stay within
// ChunkSize; only an atomic oversize block can break the bound.
type accumulator struct {
	policy Policy
	title  string

	lead  string
	parts []string
	start int
	end   int

	spans []span
}

func (a *accumulator) add(text string, start, end int) {
	part := text[start:end]
	if len(a.parts) > 0 && a.assembledLen()+len(part)+2 > a.policy.ChunkSize {
		a.flush(true)
	}
	if len(a.parts) == 0 {
		a.start = start
		a.fitLead(len(part))
	}
	a.parts = append(a.parts, part)
	a.end = end
}

// fitLead shrinks the carried overlap so the lead plus the first block
// of a fresh span stays within ChunkSize. Only the block itself may
// break the bound, when it is atomically oversized.
func (a *accumulator) fitLead(partLen int) {
	if a.lead == "" {
		return
	}
	max := a.policy.ChunkSize - partLen - 2
	if max <= 0 {
		a.lead = ""
		return
	}
	if len(a.lead) > max {
		a.lead = tail(a.lead, max)
	}
}

func (a *accumulator) assembledLen() int {
	n := len(a.lead)
	for _, p := range a.parts {
		n += len(p)
	}
	if len(a.parts) > 0 {
		n += 2 * (len(a.parts) - 1)
	}
	if a.lead != "" {
		n += 2
	}
	return n
}

func (a *accumulator) flush(carryOverlap bool) {
	if len(a.parts) == 0 {
		return
	}

	body := strings.Join(a.parts, "\n\n")
	assembled := body
	if a.lead != "" {
		assembled = a.lead + "\n\n" + body
	}

	a.spans = append(a.spans, span{
		text:  assembled,
		title: a.title,
		start: a.start,
		end:   a.end,
	})

	a.lead = ""
	if carryOverlap && a.policy.Overlap > 0 {
		a.lead = tail(assembled, a.policy.Overlap)
	}
	a.parts = a.parts[:0]
	a.start = 0
	a.end = 0
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// mergeShortSpans folds spans below the minimum into the following span,
// or into the previous one when they come last. A lone undersized span
// is kept as-is since there is nothing to merge it into.
func mergeShortSpans(spans []span, minChunk int) []span {
	if minChunk <= 0 || len(spans) < 2 {
		return spans
	}

	merged := make([]span, 0, len(spans))
	var pending *span
	for i := range spans {
		sp := spans[i]
		if pending != nil {
			sp.text = pending.text + "\n\n" + sp.text
			sp.start = pending.start
			if sp.title == "" {
				sp.title = pending.title
			}
			pending = nil
		}
		if len(sp.text) < minChunk && i < len(spans)-1 {
			pending = &sp
			continue
		}
		merged = append(merged, sp)
	}

	if pending != nil {
		merged = append(merged, *pending)
	}

	if n := len(merged); n >= 2 && len(merged[n-1].text) < minChunk {
		last := merged[n-1]
		prev := &merged[n-2]
		prev.text = prev.text + "\n\n" + last.text
		prev.end = last.end
		merged = merged[:n-1]
	}

	return merged
}
