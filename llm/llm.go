// Package llm is the gateway for all language-model calls: chunk
// summarization, relevance reranking, and grounded completions.
package llm

import (
	"context"
	"fmt"

	"github.com/fabfab/knowbase/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

// Request is a single chat-completion call. Model falls back to the
// client's configured default when empty.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Batcher folds many small prompts of the same task into one gateway
// call, returning one result per item in order.
type Batcher interface {
	BatchComplete(ctx context.Context, taskType string, items []string) ([]string, error)
}

type Options struct {
	Provider string
	Model    string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

func NewClient(cfg config.Config) (Client, error) {
	opts := Options{
		Provider:      cfg.LLM.Provider,
		Model:         cfg.LLM.Model,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}

	switch opts.Provider {
	case config.ProviderOllama:
		return NewOllamaClient(opts), nil
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		return NewOpenAIClient(opts), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", opts.Provider)
	}
}
