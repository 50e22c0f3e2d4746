package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the chunk-vector table and its indexes. The
// embedding dimension is fixed per deployment; changing it requires a
// reindex.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}

	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS rag_chunks (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			project_id TEXT NOT NULL DEFAULT '',
			doc_type TEXT NOT NULL DEFAULT '',
			filename TEXT NOT NULL DEFAULT '',
			section_title TEXT NOT NULL DEFAULT '',
			page INT NOT NULL DEFAULT 1,
			chunk_index INT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			preview TEXT NOT NULL DEFAULT '',
			embedding VECTOR(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, dimension),
		"CREATE INDEX IF NOT EXISTS idx_rag_chunks_org_document ON rag_chunks(org_id, document_id)",
		"CREATE INDEX IF NOT EXISTS idx_rag_chunks_org_project ON rag_chunks(org_id, project_id)",
		"CREATE INDEX IF NOT EXISTS idx_rag_chunks_embedding ON rag_chunks USING ivfflat (embedding vector_l2_ops)",
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	return nil
}
