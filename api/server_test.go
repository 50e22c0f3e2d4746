package api

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fabfab/knowbase/chunker"
	"github.com/fabfab/knowbase/llm"
	"github.com/fabfab/knowbase/rag"
	"github.com/fabfab/knowbase/textindex"
	"github.com/fabfab/knowbase/vectorstore"
)

type memStore struct {
	records map[string]vectorstore.Record
}

var _ vectorstore.Store = (*memStore)(nil)

func (m *memStore) Upsert(_ context.Context, _ string, records []vectorstore.Record) error {
	if m.records == nil {
		m.records = make(map[string]vectorstore.Record)
	}
	for _, r := range records {
		m.records[r.ID] = r
	}
	return nil
}

func (m *memStore) Query(_ context.Context, _ string, _ []float32, _ vectorstore.Filter, _ int) ([]vectorstore.Match, error) {
	return nil, nil
}

func (m *memStore) Delete(_ context.Context, _ string, _ vectorstore.Filter) error {
	return nil
}

type memIndex struct {
	docs map[string]textindex.Document
	hits []textindex.Hit
}

var _ textindex.Index = (*memIndex)(nil)

func (m *memIndex) Index(_ context.Context, _ string, id string, doc textindex.Document) error {
	if m.docs == nil {
		m.docs = make(map[string]textindex.Document)
	}
	m.docs[id] = doc
	return nil
}

func (m *memIndex) Search(_ context.Context, _ string, _ string, _ textindex.Filter, _ int) ([]textindex.Hit, error) {
	return m.hits, nil
}

func (m *memIndex) DeleteByDocument(_ context.Context, _ string, _ string) error {
	return nil
}

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

type fixedLLM struct {
	response string
}

func (f *fixedLLM) Complete(_ context.Context, _ llm.Request) (string, error) {
	return f.response, nil
}

type echoSummarizer struct{}

func (echoSummarizer) Summarize(_ context.Context, chunks []chunker.Chunk, _ string) []string {
	summaries := make([]string, len(chunks))
	for i, c := range chunks {
		summaries[i] = c.Text
	}
	return summaries
}

func newTestServer(index *memIndex, gateway *fixedLLM) *Server {
	svc := rag.NewService(
		&memStore{}, index, fixedEmbedder{}, gateway,
		echoSummarizer{}, chunker.DefaultPolicies(),
		"rerank-model", "answer-model",
		log.New(io.Discard, "", 0),
	)
	return New(svc, log.New(io.Discard, "", 0))
}

func TestHealth(t *testing.T) {
	server := newTestServer(&memIndex{}, &fixedLLM{})

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestIngestRequiresOrg(t *testing.T) {
	server := newTestServer(&memIndex{}, &fixedLLM{})

	body := strings.NewReader(`{"document_id":"doc-1","text":"some text","metadata":{}}`)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/documents", body))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestIngestReturnsChunkCount(t *testing.T) {
	server := newTestServer(&memIndex{}, &fixedLLM{})

	body := strings.NewReader(`{"document_id":"doc-1","text":"# Title\nA body paragraph with enough text to produce at least one chunk.","metadata":{"org_id":"org-1","document_type":"report"}}`)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/documents", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ingestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ChunksCreated == 0 {
		t.Fatal("expected at least one chunk created")
	}
	if resp.DocType != "report" {
		t.Fatalf("expected doc type report, got %s", resp.DocType)
	}
	if resp.DocumentID != "doc-1" {
		t.Fatalf("expected document id doc-1, got %s", resp.DocumentID)
	}
}

func TestIngestGeneratesDocumentID(t *testing.T) {
	server := newTestServer(&memIndex{}, &fixedLLM{})

	body := strings.NewReader(`{"text":"A body paragraph with enough text to produce at least one chunk.","metadata":{"org_id":"org-1"}}`)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/documents", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ingestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.DocumentID == "" {
		t.Fatal("expected a generated document id")
	}
}

func TestRemoveRequiresOrg(t *testing.T) {
	server := newTestServer(&memIndex{}, &fixedLLM{})

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/documents/doc-1", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/documents/doc-1?org_id=org-1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestQueryDefaultsToRerank(t *testing.T) {
	index := &memIndex{hits: []textindex.Hit{
		{ID: "doc-1_0", Score: 2, Document: textindex.Document{Text: "first", DocumentID: "doc-1"}},
		{ID: "doc-1_1", Score: 1, Document: textindex.Document{Text: "second", DocumentID: "doc-1"}},
	}}
	gateway := &fixedLLM{response: "[3, 9]"}
	server := newTestServer(index, gateway)

	body := strings.NewReader(`{"query":"anything","org_id":"org-1"}`)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/query", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp queryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	if resp.Results[0].ID != "doc-1_1" {
		t.Fatalf("expected rerank to reorder by score, got %s first", resp.Results[0].ID)
	}
}

func TestQueryRerankDisabled(t *testing.T) {
	index := &memIndex{hits: []textindex.Hit{
		{ID: "doc-1_0", Score: 2, Document: textindex.Document{Text: "first", DocumentID: "doc-1"}},
		{ID: "doc-1_1", Score: 1, Document: textindex.Document{Text: "second", DocumentID: "doc-1"}},
	}}
	server := newTestServer(index, &fixedLLM{})

	body := strings.NewReader(`{"query":"anything","org_id":"org-1","rerank":false}`)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/query", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp queryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Results) != 2 || resp.Results[0].ID != "doc-1_0" {
		t.Fatalf("expected fusion order, got %+v", resp.Results)
	}
}

func TestAnswerEndpoint(t *testing.T) {
	index := &memIndex{hits: []textindex.Hit{
		{ID: "doc-1_0", Score: 2, Document: textindex.Document{Text: "the payback period is nine years", DocumentID: "doc-1", Filename: "report.pdf", Page: 1}},
	}}
	gateway := &fixedLLM{response: "Nine years."}
	server := newTestServer(index, gateway)

	body := strings.NewReader(`{"query":"what is the payback period?","org_id":"org-1"}`)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/answers", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp rag.Completion
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != "Nine years." {
		t.Fatalf("unexpected answer: %q", resp.Answer)
	}
	if resp.Model != "answer-model" {
		t.Fatalf("expected model identifier, got %s", resp.Model)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Filename != "report.pdf" {
		t.Fatalf("unexpected sources: %+v", resp.Sources)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	server := newTestServer(&memIndex{}, &fixedLLM{})

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/query", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if rec.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("expected Allow header, got %q", rec.Header().Get("Allow"))
	}
}
