package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// PromptBatcher implements Batcher on top of a plain Client by folding
// all items into one numbered prompt and parsing a JSON array back out.
type PromptBatcher struct {
	client    Client
	model     string
	maxTokens int
}

var _ Batcher = (*PromptBatcher)(nil)

func NewPromptBatcher(client Client, model string) *PromptBatcher {
	return &PromptBatcher{
		client:    client,
		model:     model,
		maxTokens: 4000,
	}
}

const batchSystemPrompt = "You process a batch of independent items. " +
	"Respond with a single JSON array of strings, one result per item, in the same order. " +
	"Output only the JSON array."

func (b *PromptBatcher) BatchComplete(ctx context.Context, taskType string, items []string) ([]string, error) {
	if len(items) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n", taskType)
	for i, item := range items {
		fmt.Fprintf(&sb, "\nItem %d:\n%s\n", i+1, item)
	}

	raw, err := b.client.Complete(ctx, Request{
		Model: b.model,
		Messages: []Message{
			{Role: RoleSystem, Content: batchSystemPrompt},
			{Role: RoleUser, Content: sb.String()},
		},
		MaxTokens:   b.maxTokens,
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("batch completion: %w", err)
	}

	results, err := parseStringArray(raw)
	if err != nil {
		return nil, fmt.Errorf("parse batch response: %w", err)
	}
	if len(results) != len(items) {
		return nil, fmt.Errorf("batch response count mismatch: have %d items, %d results", len(items), len(results))
	}

	return results, nil
}

// parseStringArray extracts the first JSON array in raw, tolerating
// surrounding prose or code fences from the model.
func parseStringArray(raw string) ([]string, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array found")
	}

	var results []string
	if err := json.Unmarshal([]byte(raw[start:end+1]), &results); err != nil {
		return nil, err
	}
	return results, nil
}
