package llm

import (
	"context"
	"errors"
	"testing"
)

type stubClient struct {
	response string
	err      error
	lastReq  Request
}

func (s *stubClient) Complete(ctx context.Context, req Request) (string, error) {
	s.lastReq = req
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

var _ Client = (*stubClient)(nil)

func TestPromptBatcherParsesArray(t *testing.T) {
	client := &stubClient{response: "Here you go:\n[\"first summary\", \"second summary\"]"}
	batcher := NewPromptBatcher(client, "test-model")

	results, err := batcher.BatchComplete(context.Background(), "summaries", []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 || results[0] != "first summary" || results[1] != "second summary" {
		t.Fatalf("unexpected results: %v", results)
	}
	if client.lastReq.Model != "test-model" {
		t.Fatalf("expected configured model, got %q", client.lastReq.Model)
	}
}

func TestPromptBatcherCountMismatch(t *testing.T) {
	client := &stubClient{response: "[\"only one\"]"}
	batcher := NewPromptBatcher(client, "test-model")

	if _, err := batcher.BatchComplete(context.Background(), "summaries", []string{"a", "b"}); err == nil {
		t.Fatal("expected error for result count mismatch")
	}
}

func TestPromptBatcherGatewayError(t *testing.T) {
	client := &stubClient{err: errors.New("gateway down")}
	batcher := NewPromptBatcher(client, "test-model")

	if _, err := batcher.BatchComplete(context.Background(), "summaries", []string{"a"}); err == nil {
		t.Fatal("expected error when the gateway call fails")
	}
}

func TestPromptBatcherEmptyItems(t *testing.T) {
	batcher := NewPromptBatcher(&stubClient{}, "test-model")
	results, err := batcher.BatchComplete(context.Background(), "summaries", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %v", results)
	}
}
