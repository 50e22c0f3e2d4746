package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/fabfab/knowbase/llm"
)

const noContextSentinel = "No relevant documents found."

// CompleteWithContext retrieves and reranks chunks for the query, then
// asks the gateway for an answer grounded in them. Retrieval coming up
// empty still produces a completion: the context message carries an
// explicit sentinel so the model knows nothing was found.
func (s *Service) CompleteWithContext(ctx context.Context, orgID, queryText, systemPrompt string, opts QueryOptions) (Completion, error) {
	opts.Rerank = true
	chunks, err := s.Query(ctx, orgID, queryText, opts)
	if err != nil {
		return Completion{}, err
	}

	contextMsg := composeContext(chunks)
	sources := make([]SourceRef, 0, len(chunks))
	for _, c := range chunks {
		sources = append(sources, SourceRef{
			DocumentID: c.Metadata.DocumentID,
			Filename:   c.Metadata.Filename,
			Page:       c.Metadata.Page,
			Section:    c.Metadata.Section,
			Relevance:  c.Score,
		})
	}

	answer, err := s.llm.Complete(ctx, llm.Request{
		Model: s.answerModel,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleSystem, Content: contextMsg},
			{Role: llm.RoleUser, Content: queryText},
		},
		MaxTokens:   1024,
		Temperature: 0.2,
	})
	if err != nil {
		s.logger.Printf("WARN: grounded completion failed: %v", err)
		return Completion{Sources: sources, Model: s.answerModel}, nil
	}

	return Completion{
		Answer:  strings.TrimSpace(answer),
		Sources: sources,
		Model:   s.answerModel,
	}, nil
}

func composeContext(chunks []RetrievedChunk) string {
	if len(chunks) == 0 {
		return noContextSentinel
	}

	var sb strings.Builder
	sb.WriteString("Context documents:\n\n")
	for i, c := range chunks {
		text := c.Text
		if text == "" {
			text = c.Summary
		}
		fmt.Fprintf(&sb, "Source %d [%s p.%d]: %s\n\n", i+1, c.Metadata.Filename, c.Metadata.Page, text)
	}
	return strings.TrimSpace(sb.String())
}
