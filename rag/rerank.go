package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/fabfab/knowbase/llm"
)

const (
	// Only the head of the fused list is worth a second-pass scoring
	// call; anything deeper rarely survives anyway.
	maxRerankCandidates = 15

	// Relevance floor: candidates rated at or below this are dropped
	// even when top-k has room. Empirically calibrated.
	minRerankScore = 2

	rerankExcerptLen = 300
)

// rerank asks the gateway to score the fused head 0-10 against the
// query and reorders by that score, dropping anything at or below the
// relevance floor. Any failure falls back to the fused head unchanged.
func (s *Service) rerank(ctx context.Context, queryText string, fused []RetrievedChunk, topK int) []RetrievedChunk {
	candidates := fused
	if len(candidates) > maxRerankCandidates {
		candidates = candidates[:maxRerankCandidates]
	}

	scores, err := s.scoreCandidates(ctx, queryText, candidates)
	if err != nil {
		s.logger.Printf("WARN: rerank failed, keeping fusion order: %v", err)
		if len(fused) > topK {
			return fused[:topK]
		}
		return fused
	}

	type scored struct {
		chunk RetrievedChunk
		score int
	}
	kept := make([]scored, 0, len(candidates))
	for i, c := range candidates {
		if scores[i] <= minRerankScore {
			continue
		}
		kept = append(kept, scored{chunk: c, score: scores[i]})
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].score > kept[j].score
	})

	if len(kept) > topK {
		kept = kept[:topK]
	}
	results := make([]RetrievedChunk, 0, len(kept))
	for _, k := range kept {
		c := k.chunk
		c.Score = float64(k.score)
		results = append(results, c)
	}
	return results
}

func (s *Service) scoreCandidates(ctx context.Context, queryText string, candidates []RetrievedChunk) ([]int, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Rate how relevant each passage is to the query on a 0-10 integer scale.\n")
	fmt.Fprintf(&sb, "Query: %s\n\n", queryText)
	for i, c := range candidates {
		text := c.Text
		if text == "" {
			text = c.Summary
		}
		if len(text) > rerankExcerptLen {
			text = text[:rerankExcerptLen]
		}
		fmt.Fprintf(&sb, "Passage %d: %s\n\n", i+1, text)
	}
	fmt.Fprintf(&sb, "Respond with only a JSON array of %d integers, one score per passage in order.", len(candidates))

	raw, err := s.llm.Complete(ctx, llm.Request{
		Model: s.rerankModel,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: sb.String()},
		},
		MaxTokens:   200,
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("score candidates: %w", err)
	}

	scores, err := parseScores(raw)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(candidates) {
		return nil, fmt.Errorf("expected %d scores, got %d", len(candidates), len(scores))
	}
	return scores, nil
}

// parseScores extracts the JSON integer array from a gateway answer
// that may wrap it in prose or code fences.
func parseScores(raw string) ([]int, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array in rerank response")
	}

	var scores []int
	if err := json.Unmarshal([]byte(raw[start:end+1]), &scores); err != nil {
		return nil, fmt.Errorf("parse rerank scores: %w", err)
	}
	return scores, nil
}
