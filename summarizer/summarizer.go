// Package summarizer produces the short per-chunk synopsis that
// enriches the embedding and keyword signal.
package summarizer

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/fabfab/knowbase/chunker"
	"github.com/fabfab/knowbase/llm"
)

const (
	// Chunks shorter than this are their own summary; no gateway call.
	minSummarizeLen = 100
	// Only the leading excerpt of a chunk is sent for summarization.
	excerptLimit = 2000
	// Prefix length used when a summarization call fails.
	fallbackPrefixLen = 150

	batchTaskType = "chunk_summaries"
)

// Summarizer fills in one summary per chunk. Implementations never fail
// the whole batch: a chunk whose call goes wrong gets a truncated prefix
// of its own text.
type Summarizer interface {
	Summarize(ctx context.Context, chunks []chunker.Chunk, docType string) []string
}

func summaryPrompt(text, docType string) string {
	return fmt.Sprintf("Summarize this excerpt from a %s document in 1-2 sentences:\n\n%s", docType, excerpt(text))
}

func excerpt(text string) string {
	if len(text) <= excerptLimit {
		return text
	}
	return text[:excerptLimit]
}

func fallbackSummary(text string) string {
	if len(text) <= fallbackPrefixLen {
		return text
	}
	return strings.TrimSpace(text[:fallbackPrefixLen])
}

// Batch summarizes all qualifying chunks of a document with a single
// gateway call through a Batcher. On any batch failure every pending
// chunk falls back to its prefix.
type Batch struct {
	batcher llm.Batcher
	logger  *log.Logger
}

var _ Summarizer = (*Batch)(nil)

func NewBatch(batcher llm.Batcher, logger *log.Logger) *Batch {
	if logger == nil {
		logger = log.Default()
	}
	return &Batch{batcher: batcher, logger: logger}
}

func (b *Batch) Summarize(ctx context.Context, chunks []chunker.Chunk, docType string) []string {
	summaries := make([]string, len(chunks))

	var pending []int
	var items []string
	for i, c := range chunks {
		if len(c.Text) < minSummarizeLen {
			summaries[i] = c.Text
			continue
		}
		pending = append(pending, i)
		items = append(items, summaryPrompt(c.Text, docType))
	}

	if len(items) == 0 {
		return summaries
	}

	results, err := b.batcher.BatchComplete(ctx, batchTaskType, items)
	if err != nil {
		b.logger.Printf("batch summarization failed, falling back to prefixes: %v", err)
		for _, i := range pending {
			summaries[i] = fallbackSummary(chunks[i].Text)
		}
		return summaries
	}

	for n, i := range pending {
		summary := strings.TrimSpace(results[n])
		if summary == "" {
			summary = fallbackSummary(chunks[i].Text)
		}
		summaries[i] = summary
	}

	return summaries
}

// Sequential issues one completion per qualifying chunk. It is the
// degraded path when no batching collaborator is configured.
type Sequential struct {
	client llm.Client
	model  string
	logger *log.Logger
}

var _ Summarizer = (*Sequential)(nil)

func NewSequential(client llm.Client, model string, logger *log.Logger) *Sequential {
	if logger == nil {
		logger = log.Default()
	}
	return &Sequential{client: client, model: model, logger: logger}
}

func (s *Sequential) Summarize(ctx context.Context, chunks []chunker.Chunk, docType string) []string {
	summaries := make([]string, len(chunks))

	for i, c := range chunks {
		if len(c.Text) < minSummarizeLen {
			summaries[i] = c.Text
			continue
		}

		raw, err := s.client.Complete(ctx, llm.Request{
			Model: s.model,
			Messages: []llm.Message{
				{Role: llm.RoleUser, Content: summaryPrompt(c.Text, docType)},
			},
			MaxTokens:   120,
			Temperature: 0,
		})
		if err != nil {
			s.logger.Printf("summarize chunk %d failed, using prefix: %v", c.Index, err)
			summaries[i] = fallbackSummary(c.Text)
			continue
		}

		summary := strings.TrimSpace(raw)
		if summary == "" {
			summary = fallbackSummary(c.Text)
		}
		summaries[i] = summary
	}

	return summaries
}
