// Package vectorstore is the dense-vector half of the dual index. Every
// operation is scoped to a tenant namespace; no call crosses tenants.
package vectorstore

import "context"

// ChunkMetadata is the structured payload stored alongside each vector.
// Preview keeps the first part of the chunk text so a vector-only hit
// can render something without a second fetch.
type ChunkMetadata struct {
	DocumentID string
	OrgID      string
	ProjectID  string
	DocType    string
	Filename   string
	Section    string
	Page       int
	ChunkIndex int
	Summary    string
	Preview    string
}

// Filter narrows queries and deletes. Empty fields are ignored.
type Filter struct {
	DocumentID string
	ProjectID  string
	DocType    string
}

type Record struct {
	ID       string
	Values   []float32
	Metadata ChunkMetadata
}

type Match struct {
	ID       string
	Score    float64
	Metadata ChunkMetadata
}

type Store interface {
	Upsert(ctx context.Context, namespace string, records []Record) error
	Query(ctx context.Context, namespace string, vector []float32, filter Filter, topK int) ([]Match, error)
	Delete(ctx context.Context, namespace string, filter Filter) error
}
