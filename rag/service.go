package rag

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/fabfab/knowbase/chunker"
	"github.com/fabfab/knowbase/embeddings"
	"github.com/fabfab/knowbase/llm"
	"github.com/fabfab/knowbase/summarizer"
	"github.com/fabfab/knowbase/textindex"
	"github.com/fabfab/knowbase/vectorstore"
)

const (
	defaultTopK = 5

	// Characters of chunk text stored with the vector record so a
	// vector-only hit can render without a second fetch.
	previewLen = 200

	// Over-fetch factors feeding the fusion stage.
	semanticFetchFactor = 3
	keywordFetchFactor  = 2
)

// Service runs the ingestion and retrieval pipeline against the dual
// index. All upstream failures degrade with logged warnings; hard
// errors are reserved for caller contract violations.
type Service struct {
	vectors    vectorstore.Store
	index      textindex.Index
	embedder   embeddings.Embedder
	llm        llm.Client
	summarizer summarizer.Summarizer
	policies   map[string]chunker.Policy

	rerankModel string
	answerModel string

	logger *log.Logger
}

func NewService(
	vectors vectorstore.Store,
	index textindex.Index,
	embedder embeddings.Embedder,
	llmClient llm.Client,
	sum summarizer.Summarizer,
	policies map[string]chunker.Policy,
	rerankModel, answerModel string,
	logger *log.Logger,
) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if policies == nil {
		policies = chunker.DefaultPolicies()
	}
	return &Service{
		vectors:     vectors,
		index:       index,
		embedder:    embedder,
		llm:         llmClient,
		summarizer:  sum,
		policies:    policies,
		rerankModel: rerankModel,
		answerModel: answerModel,
		logger:      logger,
	}
}

// IngestDocument chunks, summarizes, embeds, and writes one document
// into both indexes, replacing any chunks from a prior ingestion of the
// same id. Upstream outages reduce the result, they do not fail it: a
// total embedding failure yields zero chunks created and a nil error.
func (s *Service) IngestDocument(ctx context.Context, documentID, text string, meta IngestMetadata) (IngestResult, error) {
	if meta.OrgID == "" {
		return IngestResult{}, fmt.Errorf("ingest %s: metadata is missing org_id", documentID)
	}
	if documentID == "" {
		return IngestResult{}, fmt.Errorf("ingest: document id is empty")
	}

	docType := meta.DocumentType
	if docType == "" {
		docType = chunker.DefaultDocType
	}
	result := IngestResult{DocType: docType}

	policy := chunker.PolicyFor(s.policies, docType)
	chunks := chunker.Split(text, policy)
	if len(chunks) == 0 {
		return result, nil
	}

	// Replace semantics: clear any previous chunk set before writing,
	// so a shrinking re-ingest leaves no stale tail in either store.
	s.removeChunks(ctx, meta.OrgID, documentID)

	summaries := s.summarizer.Summarize(ctx, chunks, docType)
	for i := range chunks {
		chunks[i].Summary = summaries[i]
	}

	inputs := make([]string, len(chunks))
	for i, c := range chunks {
		inputs[i] = c.Summary + "\n\n" + c.Text
	}
	vectors, err := s.embedder.Embed(ctx, inputs)
	if err != nil {
		s.logger.Printf("WARN: embedding failed for document %s, nothing indexed: %v", documentID, err)
		return result, nil
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	records, docs := buildIndexPayloads(documentID, meta, docType, chunks)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := s.vectors.Upsert(ctx, meta.OrgID, records); err != nil {
			s.logger.Printf("WARN: vector write failed for document %s: %v", documentID, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i, doc := range docs {
			if err := s.index.Index(ctx, meta.OrgID, records[i].ID, doc); err != nil {
				s.logger.Printf("WARN: full-text write failed for chunk %s: %v", records[i].ID, err)
			}
		}
	}()
	wg.Wait()

	result.ChunksCreated = len(chunks)
	return result, nil
}

func buildIndexPayloads(documentID string, meta IngestMetadata, docType string, chunks []chunker.Chunk) ([]vectorstore.Record, []textindex.Document) {
	records := make([]vectorstore.Record, len(chunks))
	docs := make([]textindex.Document, len(chunks))

	for i, c := range chunks {
		page := chunker.PageForOffset(c.CharStart)
		records[i] = vectorstore.Record{
			ID:     chunker.ID(documentID, c.Index),
			Values: c.Embedding,
			Metadata: vectorstore.ChunkMetadata{
				DocumentID: documentID,
				OrgID:      meta.OrgID,
				ProjectID:  meta.ProjectID,
				DocType:    docType,
				Filename:   meta.Filename,
				Section:    c.SectionTitle,
				Page:       page,
				ChunkIndex: c.Index,
				Summary:    c.Summary,
				Preview:    preview(c.Text),
			},
		}
		docs[i] = textindex.Document{
			Text:       c.Text,
			Summary:    c.Summary,
			DocumentID: documentID,
			ProjectID:  meta.ProjectID,
			DocType:    docType,
			Filename:   meta.Filename,
			Section:    c.SectionTitle,
			Page:       page,
			ChunkIndex: c.Index,
		}
	}

	return records, docs
}

func preview(text string) string {
	if len(text) <= previewLen {
		return text
	}
	return strings.TrimSpace(text[:previewLen])
}

// RemoveDocument deletes a document's chunks from both stores. Deletion
// is best effort: a failing store is logged and the other still runs.
func (s *Service) RemoveDocument(ctx context.Context, orgID, documentID string) error {
	if orgID == "" {
		return fmt.Errorf("remove %s: org id is empty", documentID)
	}
	if documentID == "" {
		return fmt.Errorf("remove: document id is empty")
	}
	s.removeChunks(ctx, orgID, documentID)
	return nil
}

func (s *Service) removeChunks(ctx context.Context, orgID, documentID string) {
	if err := s.vectors.Delete(ctx, orgID, vectorstore.Filter{DocumentID: documentID}); err != nil {
		s.logger.Printf("WARN: vector delete failed for document %s: %v", documentID, err)
	}
	if err := s.index.DeleteByDocument(ctx, orgID, documentID); err != nil {
		s.logger.Printf("WARN: full-text delete failed for document %s: %v", documentID, err)
	}
}

// Query runs the hybrid retrieval path: semantic and keyword search in
// parallel, rank fusion, and optional reranking. A failing leg is
// treated as an empty list; the caller always gets a well-formed,
// possibly empty, result.
func (s *Service) Query(ctx context.Context, orgID, queryText string, opts QueryOptions) ([]RetrievedChunk, error) {
	if orgID == "" {
		return nil, fmt.Errorf("query: org id is empty")
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	var (
		wg       sync.WaitGroup
		semantic []RetrievedChunk
		keyword  []RetrievedChunk
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		semantic = s.semanticSearch(ctx, orgID, queryText, opts.Filter, topK*semanticFetchFactor)
	}()
	go func() {
		defer wg.Done()
		keyword = s.keywordSearch(ctx, orgID, queryText, opts.Filter, topK*keywordFetchFactor)
	}()
	wg.Wait()

	fused := fuse(semantic, keyword)
	if opts.Rerank && len(fused) > 1 {
		return s.rerank(ctx, queryText, fused, topK), nil
	}
	if len(fused) > topK {
		fused = fused[:topK]
	}
	return fused, nil
}

func (s *Service) semanticSearch(ctx context.Context, orgID, queryText string, filter QueryFilter, limit int) []RetrievedChunk {
	vectors, err := s.embedder.Embed(ctx, []string{queryText})
	if err != nil {
		s.logger.Printf("WARN: query embedding failed, skipping semantic search: %v", err)
		return nil
	}

	matches, err := s.vectors.Query(ctx, orgID, vectors[0], vectorstore.Filter{
		DocumentID: filter.DocumentID,
		ProjectID:  filter.ProjectID,
		DocType:    filter.DocType,
	}, limit)
	if err != nil {
		s.logger.Printf("WARN: semantic search failed: %v", err)
		return nil
	}

	results := make([]RetrievedChunk, 0, len(matches))
	for _, m := range matches {
		results = append(results, RetrievedChunk{
			ID:       m.ID,
			Text:     m.Metadata.Preview,
			Summary:  m.Metadata.Summary,
			Metadata: m.Metadata,
			Score:    m.Score,
		})
	}
	return results
}

func (s *Service) keywordSearch(ctx context.Context, orgID, queryText string, filter QueryFilter, limit int) []RetrievedChunk {
	hits, err := s.index.Search(ctx, orgID, queryText, textindex.Filter{
		DocumentID: filter.DocumentID,
		ProjectID:  filter.ProjectID,
		DocType:    filter.DocType,
	}, limit)
	if err != nil {
		s.logger.Printf("WARN: keyword search failed: %v", err)
		return nil
	}

	results := make([]RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		results = append(results, RetrievedChunk{
			ID:      h.ID,
			Text:    h.Document.Text,
			Summary: h.Document.Summary,
			Metadata: vectorstore.ChunkMetadata{
				DocumentID: h.Document.DocumentID,
				OrgID:      orgID,
				ProjectID:  h.Document.ProjectID,
				DocType:    h.Document.DocType,
				Filename:   h.Document.Filename,
				Section:    h.Document.Section,
				Page:       h.Document.Page,
				ChunkIndex: h.Document.ChunkIndex,
				Summary:    h.Document.Summary,
			},
			Score: h.Score,
		})
	}
	return results
}
