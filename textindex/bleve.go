package textindex

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/mapping"
	"github.com/blevesearch/bleve/search/query"
)

// Field boosts for the multi-field keyword query. Summaries rank
// highest: they compress the chunk's meaning into the fewest terms.
const (
	textBoost    = 2.0
	summaryBoost = 3.0
	sectionBoost = 1.5

	deleteBatchSize = 500
)

// BleveStore manages one bleve index per tenant under a base directory.
// Indexes are created lazily on first write or search.
type BleveStore struct {
	dir string

	mu      sync.Mutex
	indexes map[string]bleve.Index
}

var _ Index = (*BleveStore)(nil)

func NewBleveStore(dir string) *BleveStore {
	return &BleveStore{
		dir:     dir,
		indexes: make(map[string]bleve.Index),
	}
}

// IndexName derives the per-tenant index name from the org id.
func IndexName(org string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(org) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return "chunks_" + sb.String()
}

func (s *BleveStore) forOrg(org string) (bleve.Index, error) {
	if org == "" {
		return nil, fmt.Errorf("org id is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := IndexName(org)
	if idx, ok := s.indexes[name]; ok {
		return idx, nil
	}

	path := filepath.Join(s.dir, name)
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, buildIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", name, err)
	}

	s.indexes[name] = idx
	return idx, nil
}

// buildIndexMapping fixes the chunk field mapping: analyzed text and
// summary, exact-match identifiers, numeric position fields.
func buildIndexMapping() mapping.IndexMapping {
	chunk := bleve.NewDocumentMapping()

	chunk.AddFieldMappingsAt("text", bleve.NewTextFieldMapping())
	chunk.AddFieldMappingsAt("summary", bleve.NewTextFieldMapping())
	chunk.AddFieldMappingsAt("section", bleve.NewTextFieldMapping())
	chunk.AddFieldMappingsAt("filename", bleve.NewTextFieldMapping())

	for _, field := range []string{"document_id", "project_id", "doc_type"} {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = keyword.Name
		chunk.AddFieldMappingsAt(field, fm)
	}

	chunk.AddFieldMappingsAt("page", bleve.NewNumericFieldMapping())
	chunk.AddFieldMappingsAt("chunk_index", bleve.NewNumericFieldMapping())

	im := bleve.NewIndexMapping()
	im.DefaultMapping = chunk
	return im
}

func (s *BleveStore) Index(_ context.Context, org, id string, doc Document) error {
	idx, err := s.forOrg(org)
	if err != nil {
		return err
	}
	if err := idx.Index(id, doc); err != nil {
		return fmt.Errorf("index chunk %s: %w", id, err)
	}
	return nil
}

func (s *BleveStore) Search(ctx context.Context, org, queryText string, filter Filter, size int) ([]Hit, error) {
	idx, err := s.forOrg(org)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 10
	}

	match := func(field string, boost float64, fuzzy bool) query.Query {
		q := bleve.NewMatchQuery(queryText)
		q.SetField(field)
		q.SetBoost(boost)
		if fuzzy {
			q.SetFuzziness(1)
		}
		return q
	}

	fields := bleve.NewDisjunctionQuery(
		match("text", textBoost, true),
		match("summary", summaryBoost, true),
		match("section", sectionBoost, false),
		match("filename", 1.0, false),
	)

	full := applyFilter(fields, filter)

	req := bleve.NewSearchRequestOptions(full, size, 0, false)
	req.Fields = []string{"*"}

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		hits = append(hits, Hit{
			ID:       hit.ID,
			Score:    hit.Score,
			Document: documentFromFields(hit.Fields),
		})
	}

	return hits, nil
}

func applyFilter(base query.Query, filter Filter) query.Query {
	terms := []struct {
		field string
		value string
	}{
		{"document_id", filter.DocumentID},
		{"project_id", filter.ProjectID},
		{"doc_type", filter.DocType},
	}

	conjuncts := []query.Query{base}
	for _, t := range terms {
		if t.value == "" {
			continue
		}
		tq := bleve.NewTermQuery(t.value)
		tq.SetField(t.field)
		conjuncts = append(conjuncts, tq)
	}

	if len(conjuncts) == 1 {
		return base
	}
	return bleve.NewConjunctionQuery(conjuncts...)
}

func (s *BleveStore) DeleteByDocument(ctx context.Context, org, documentID string) error {
	idx, err := s.forOrg(org)
	if err != nil {
		return err
	}

	tq := bleve.NewTermQuery(documentID)
	tq.SetField("document_id")

	for {
		req := bleve.NewSearchRequestOptions(tq, deleteBatchSize, 0, false)
		res, err := idx.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("search for deletion: %w", err)
		}
		if len(res.Hits) == 0 {
			return nil
		}

		batch := idx.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := idx.Batch(batch); err != nil {
			return fmt.Errorf("delete batch: %w", err)
		}
	}
}

// Close releases every open tenant index.
func (s *BleveStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for name, idx := range s.indexes {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close index %s: %w", name, err)
		}
		delete(s.indexes, name)
	}
	return firstErr
}

func documentFromFields(fields map[string]interface{}) Document {
	str := func(key string) string {
		if v, ok := fields[key].(string); ok {
			return v
		}
		return ""
	}
	num := func(key string) int {
		if v, ok := fields[key].(float64); ok {
			return int(v)
		}
		return 0
	}

	return Document{
		Text:       str("text"),
		Summary:    str("summary"),
		DocumentID: str("document_id"),
		ProjectID:  str("project_id"),
		DocType:    str("doc_type"),
		Filename:   str("filename"),
		Section:    str("section"),
		Page:       num("page"),
		ChunkIndex: num("chunk_index"),
	}
}
