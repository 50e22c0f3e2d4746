// Package rag wires chunking, summarization, embedding, and the dual
// index into the ingestion and retrieval pipeline.
package rag

import "github.com/fabfab/knowbase/vectorstore"

// IngestMetadata accompanies a document into the pipeline. OrgID is
// required; everything else is optional context carried through to the
// indexes.
type IngestMetadata struct {
	OrgID        string `json:"org_id"`
	ProjectID    string `json:"project_id,omitempty"`
	PortfolioID  string `json:"portfolio_id,omitempty"`
	DocumentType string `json:"document_type,omitempty"`
	Filename     string `json:"filename,omitempty"`
}

type IngestResult struct {
	ChunksCreated int    `json:"chunks_created"`
	DocType       string `json:"doc_type"`
}

// QueryFilter narrows retrieval to a document, project, or type. Empty
// fields are ignored.
type QueryFilter struct {
	DocumentID string `json:"document_id,omitempty"`
	ProjectID  string `json:"project_id,omitempty"`
	DocType    string `json:"doc_type,omitempty"`
}

type QueryOptions struct {
	Filter QueryFilter
	TopK   int
	Rerank bool
}

// RetrievedChunk is the normalized record both retrieval legs reduce
// to. Text is empty for vector-only hits beyond the stored preview.
type RetrievedChunk struct {
	ID       string                    `json:"id"`
	Text     string                    `json:"text,omitempty"`
	Summary  string                    `json:"summary,omitempty"`
	Metadata vectorstore.ChunkMetadata `json:"metadata"`
	Score    float64                   `json:"score"`
}

// SourceRef cites one context chunk in a grounded answer.
type SourceRef struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Page       int     `json:"page"`
	Section    string  `json:"section,omitempty"`
	Relevance  float64 `json:"relevance"`
}

type Completion struct {
	Answer  string      `json:"answer"`
	Sources []SourceRef `json:"sources"`
	Model   string      `json:"model"`
}
