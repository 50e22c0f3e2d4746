package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresStore keeps chunk vectors in a pgvector-backed table. The
// tenant namespace maps to the org_id column, which every statement
// filters on.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if s.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, rec := range records {
		meta := rec.Metadata
		if _, err := tx.Exec(ctx, `
			INSERT INTO rag_chunks (
				id, org_id, document_id, project_id, doc_type, filename,
				section_title, page, chunk_index, summary, preview, embedding,
				created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
			ON CONFLICT (id) DO UPDATE SET
				org_id = EXCLUDED.org_id,
				document_id = EXCLUDED.document_id,
				project_id = EXCLUDED.project_id,
				doc_type = EXCLUDED.doc_type,
				filename = EXCLUDED.filename,
				section_title = EXCLUDED.section_title,
				page = EXCLUDED.page,
				chunk_index = EXCLUDED.chunk_index,
				summary = EXCLUDED.summary,
				preview = EXCLUDED.preview,
				embedding = EXCLUDED.embedding,
				updated_at = NOW()
		`, rec.ID, namespace, meta.DocumentID, meta.ProjectID, meta.DocType, meta.Filename,
			meta.Section, meta.Page, meta.ChunkIndex, meta.Summary, meta.Preview,
			pgvector.NewVector(rec.Values)); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}

	return nil
}

func (s *PostgresStore) Query(ctx context.Context, namespace string, vector []float32, filter Filter, topK int) ([]Match, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	if topK <= 0 {
		topK = 5
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	probes := topK * 10
	if probes < 10 {
		probes = 10
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET ivfflat.probes = %d", probes)); err != nil {
		return nil, fmt.Errorf("set ivfflat probes: %w", err)
	}

	where := []string{"org_id = $1"}
	args := []any{namespace}
	appendFilter := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	appendFilter("document_id", filter.DocumentID)
	appendFilter("project_id", filter.ProjectID)
	appendFilter("doc_type", filter.DocType)

	args = append(args, pgvector.NewVector(vector))
	vecArg := len(args)
	args = append(args, topK)
	limitArg := len(args)

	sql := fmt.Sprintf(`
		SELECT
			id, document_id, org_id, project_id, doc_type, filename,
			section_title, page, chunk_index, summary, preview,
			(embedding <-> $%d::vector) AS distance
		FROM rag_chunks
		WHERE %s
		ORDER BY embedding <-> $%d::vector
		LIMIT $%d
	`, vecArg, strings.Join(where, " AND "), vecArg, limitArg)

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query similar chunks: %w", err)
	}
	defer rows.Close()

	matches := make([]Match, 0, topK)
	for rows.Next() {
		var m Match
		var distance float64
		if scanErr := rows.Scan(
			&m.ID, &m.Metadata.DocumentID, &m.Metadata.OrgID, &m.Metadata.ProjectID,
			&m.Metadata.DocType, &m.Metadata.Filename, &m.Metadata.Section,
			&m.Metadata.Page, &m.Metadata.ChunkIndex, &m.Metadata.Summary,
			&m.Metadata.Preview, &distance,
		); scanErr != nil {
			return nil, fmt.Errorf("scan similar chunk: %w", scanErr)
		}
		m.Score = 1 / (1 + distance)
		matches = append(matches, m)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return matches, nil
}

func (s *PostgresStore) Delete(ctx context.Context, namespace string, filter Filter) error {
	if s.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	where := []string{"org_id = $1"}
	args := []any{namespace}
	appendFilter := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	appendFilter("document_id", filter.DocumentID)
	appendFilter("project_id", filter.ProjectID)
	appendFilter("doc_type", filter.DocType)

	if len(where) == 1 {
		return fmt.Errorf("refusing to delete a whole namespace without a filter")
	}

	sql := fmt.Sprintf("DELETE FROM rag_chunks WHERE %s", strings.Join(where, " AND "))
	if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}

	return nil
}
