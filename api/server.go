// Package api exposes the ingestion and retrieval pipeline over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/fabfab/knowbase/rag"
)

// Server exposes HTTP handlers for the core knowbase workflows.
type Server struct {
	service *rag.Service
	logger  *log.Logger
	handler http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type ingestRequest struct {
	DocumentID string             `json:"document_id"`
	Text       string             `json:"text"`
	Metadata   rag.IngestMetadata `json:"metadata"`
}

type ingestResponse struct {
	DocumentID    string `json:"document_id"`
	ChunksCreated int    `json:"chunks_created"`
	DocType       string `json:"doc_type"`
}

type queryRequest struct {
	Query   string          `json:"query"`
	OrgID   string          `json:"org_id"`
	Filters rag.QueryFilter `json:"filters"`
	TopK    int             `json:"top_k"`
	Rerank  *bool           `json:"rerank"`
}

type queryResponse struct {
	Results []rag.RetrievedChunk `json:"results"`
}

type answerRequest struct {
	Query        string          `json:"query"`
	OrgID        string          `json:"org_id"`
	SystemPrompt string          `json:"system_prompt"`
	Filters      rag.QueryFilter `json:"filters"`
	TopK         int             `json:"top_k"`
}

const defaultSystemPrompt = "You are a helpful assistant. Answer using only the provided context documents and cite them by source number."

// New constructs a Server around an already wired pipeline service.
func New(service *rag.Service, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{service: service, logger: logger}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/documents", s.handleIngest)
	mux.HandleFunc("/v1/documents/", s.handleDocument)
	mux.HandleFunc("/v1/query", s.handleQuery)
	mux.HandleFunc("/v1/answers", s.handleAnswer)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	if req.Metadata.OrgID == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("metadata.org_id is required"))
		return
	}
	documentID := strings.TrimSpace(req.DocumentID)
	if documentID == "" {
		documentID = uuid.NewString()
	}

	result, err := s.service.IngestDocument(r.Context(), documentID, req.Text, req.Metadata)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("ingest failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, ingestResponse{
		DocumentID:    documentID,
		ChunksCreated: result.ChunksCreated,
		DocType:       result.DocType,
	})
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		s.methodNotAllowed(w, http.MethodDelete)
		return
	}

	documentID := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if documentID == "" || strings.Contains(documentID, "/") {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("document id is required"))
		return
	}
	orgID := r.URL.Query().Get("org_id")
	if orgID == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("org_id query parameter is required"))
		return
	}

	if err := s.service.RemoveDocument(r.Context(), orgID, documentID); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("remove failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "document removed"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("query is required"))
		return
	}
	if req.OrgID == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("org_id is required"))
		return
	}

	rerank := true
	if req.Rerank != nil {
		rerank = *req.Rerank
	}

	results, err := s.service.Query(r.Context(), req.OrgID, req.Query, rag.QueryOptions{
		Filter: req.Filters,
		TopK:   req.TopK,
		Rerank: rerank,
	})
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("query failed: %w", err))
		return
	}
	if results == nil {
		results = []rag.RetrievedChunk{}
	}

	s.writeJSON(w, http.StatusOK, queryResponse{Results: results})
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("query is required"))
		return
	}
	if req.OrgID == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("org_id is required"))
		return
	}
	systemPrompt := req.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	completion, err := s.service.CompleteWithContext(r.Context(), req.OrgID, req.Query, systemPrompt, rag.QueryOptions{
		Filter: req.Filters,
		TopK:   req.TopK,
	})
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("completion failed: %w", err))
		return
	}
	if completion.Sources == nil {
		completion.Sources = []rag.SourceRef{}
	}

	s.writeJSON(w, http.StatusOK, completion)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed, use %s", allowed))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}
