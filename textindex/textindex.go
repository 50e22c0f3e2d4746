// Package textindex is the keyword half of the dual index: analyzed
// full-text search over chunk text and summaries, one index per tenant.
package textindex

import "context"

// Document is the full-text record for one chunk. Unlike the vector
// store's preview, Text carries the complete chunk body.
type Document struct {
	Text       string `json:"text"`
	Summary    string `json:"summary"`
	DocumentID string `json:"document_id"`
	ProjectID  string `json:"project_id"`
	DocType    string `json:"doc_type"`
	Filename   string `json:"filename"`
	Section    string `json:"section"`
	Page       int    `json:"page"`
	ChunkIndex int    `json:"chunk_index"`
}

// Filter narrows searches by exact-match fields. Empty fields are
// ignored.
type Filter struct {
	DocumentID string
	ProjectID  string
	DocType    string
}

type Hit struct {
	ID       string
	Score    float64
	Document Document
}

type Index interface {
	Index(ctx context.Context, org, id string, doc Document) error
	Search(ctx context.Context, org, queryText string, filter Filter, size int) ([]Hit, error)
	DeleteByDocument(ctx context.Context, org, documentID string) error
}
