package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/fabfab/knowbase/api"
	"github.com/fabfab/knowbase/config"
	"github.com/fabfab/knowbase/database"
	"github.com/fabfab/knowbase/embeddings"
	"github.com/fabfab/knowbase/llm"
	"github.com/fabfab/knowbase/rag"
	"github.com/fabfab/knowbase/summarizer"
	"github.com/fabfab/knowbase/textindex"
	"github.com/fabfab/knowbase/vectorstore"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Printf("load .env: %v", err)
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()

	switch os.Args[1] {
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	case "ingest":
		ingestCmd(cfg, logger, os.Args[2:])
	case "query":
		queryCmd(cfg, logger, os.Args[2:])
	case "ask":
		askCmd(cfg, logger, os.Args[2:])
	case "remove":
		removeCmd(cfg, logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// buildPipeline wires the stores, gateway clients, and pipeline service.
// The returned cleanup releases the pool and open indexes.
func buildPipeline(ctx context.Context, cfg config.Config, logger *log.Logger) (*rag.Service, func(), error) {
	pgPool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres connection: %w", err)
	}
	if err := database.EnsureSchema(ctx, pgPool, cfg.Embeddings.Dimension); err != nil {
		pgPool.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}

	index := textindex.NewBleveStore(cfg.IndexDir)

	cleanup := func() {
		if err := index.Close(); err != nil {
			logger.Printf("close text index: %v", err)
		}
		pgPool.Close()
	}

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("embedder setup: %w", err)
	}

	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("llm setup: %w", err)
	}

	batcher := llm.NewPromptBatcher(llmClient, cfg.LLM.SummaryModel)
	sum := summarizer.NewBatch(batcher, logger)

	policies, err := config.LoadPolicies(cfg.PoliciesPath)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("load chunking policies: %w", err)
	}

	svc := rag.NewService(
		vectorstore.NewPostgresStore(pgPool),
		index,
		embedder,
		llmClient,
		sum,
		policies,
		cfg.LLM.RerankModel,
		cfg.LLM.Model,
		logger,
	)
	return svc, cleanup, nil
}

func serveCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", cfg.HTTPAddr, "listen address for the HTTP API")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, cleanup, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("pipeline setup: %v", err)
	}
	defer cleanup()

	server := &http.Server{
		Addr:    *addr,
		Handler: api.New(svc, logger),
	}

	go func() {
		<-ctx.Done()
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Printf("shutdown: %v", err)
		}
	}()

	logger.Printf("listening on %s", *addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("serve: %v", err)
	}
}

func ingestCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	file := flags.String("file", "", "path to the text file to ingest")
	org := flags.String("org", "", "tenant org id")
	docID := flags.String("id", "", "document id (defaults to the file name)")
	project := flags.String("project", "", "project id")
	docType := flags.String("type", "", "document classification")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ingest flags: %v", err)
	}

	if *file == "" || *org == "" {
		logger.Fatal("ingest requires --file and --org")
	}

	text, err := os.ReadFile(*file)
	if err != nil {
		logger.Fatalf("read %s: %v", *file, err)
	}

	documentID := *docID
	if documentID == "" {
		base := filepath.Base(*file)
		documentID = strings.TrimSuffix(base, filepath.Ext(base))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, cleanup, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("pipeline setup: %v", err)
	}
	defer cleanup()

	result, err := svc.IngestDocument(ctx, documentID, string(text), rag.IngestMetadata{
		OrgID:        *org,
		ProjectID:    *project,
		DocumentType: *docType,
		Filename:     filepath.Base(*file),
	})
	if err != nil {
		logger.Fatalf("ingest failed: %v", err)
	}

	logger.Printf("ingested %s: %d chunks as %s", documentID, result.ChunksCreated, result.DocType)
}

func queryCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("query", flag.ExitOnError)
	queryText := flags.String("q", "", "query text")
	org := flags.String("org", "", "tenant org id")
	topK := flags.Int("top-k", 5, "number of results to return")
	rerank := flags.Bool("rerank", true, "rescore the fused candidates with the model gateway")
	project := flags.String("project", "", "filter by project id")
	docType := flags.String("type", "", "filter by document classification")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse query flags: %v", err)
	}

	if *queryText == "" || *org == "" {
		logger.Fatal("query requires --q and --org")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, cleanup, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("pipeline setup: %v", err)
	}
	defer cleanup()

	results, err := svc.Query(ctx, *org, *queryText, rag.QueryOptions{
		Filter: rag.QueryFilter{ProjectID: *project, DocType: *docType},
		TopK:   *topK,
		Rerank: *rerank,
	})
	if err != nil {
		logger.Fatalf("query failed: %v", err)
	}

	if len(results) == 0 {
		fmt.Println("no results")
		return
	}
	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s (%s p.%d)\n", i+1, r.Score, r.ID, r.Metadata.Filename, r.Metadata.Page)
		snippet := r.Summary
		if snippet == "" {
			snippet = r.Text
		}
		if snippet != "" {
			fmt.Printf("   %s\n", snippet)
		}
	}
}

func askCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ask", flag.ExitOnError)
	queryText := flags.String("q", "", "question to answer from the knowledge base")
	org := flags.String("org", "", "tenant org id")
	topK := flags.Int("top-k", 5, "number of context chunks")
	system := flags.String("system", "You are a helpful assistant. Answer using only the provided context documents.", "system prompt")
	jsonOut := flags.Bool("json", false, "print the full completion as JSON")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ask flags: %v", err)
	}

	if *queryText == "" || *org == "" {
		logger.Fatal("ask requires --q and --org")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, cleanup, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("pipeline setup: %v", err)
	}
	defer cleanup()

	completion, err := svc.CompleteWithContext(ctx, *org, *queryText, *system, rag.QueryOptions{TopK: *topK})
	if err != nil {
		logger.Fatalf("completion failed: %v", err)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(completion); err != nil {
			logger.Fatalf("encode completion: %v", err)
		}
		return
	}

	fmt.Println(completion.Answer)
	if len(completion.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for i, src := range completion.Sources {
			fmt.Printf("%d. %s p.%d", i+1, src.Filename, src.Page)
			if src.Section != "" {
				fmt.Printf(" (%s)", src.Section)
			}
			fmt.Println()
		}
	}
}

func removeCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("remove", flag.ExitOnError)
	docID := flags.String("id", "", "document id to remove")
	org := flags.String("org", "", "tenant org id")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse remove flags: %v", err)
	}

	if *docID == "" || *org == "" {
		logger.Fatal("remove requires --id and --org")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, cleanup, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("pipeline setup: %v", err)
	}
	defer cleanup()

	if err := svc.RemoveDocument(ctx, *org, *docID); err != nil {
		logger.Fatalf("remove failed: %v", err)
	}
	logger.Printf("removed document %s", *docID)
}

func printUsage() {
	fmt.Println("Usage: knowbase <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  serve    Run the HTTP API")
	fmt.Println("  ingest   Ingest a text file into the knowledge base")
	fmt.Println("  query    Run a hybrid search against the knowledge base")
	fmt.Println("  ask      Answer a question grounded in retrieved context")
	fmt.Println("  remove   Delete a document's chunks from both indexes")
}
