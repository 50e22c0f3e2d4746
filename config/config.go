// Package config loads runtime configuration from the environment and
// the optional chunking-policy file.
package config

import (
	"os"
	"strconv"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

type EmbeddingsConfig struct {
	Provider  string
	Model     string
	Dimension int
}

type LLMConfig struct {
	Provider     string
	Model        string
	SummaryModel string
	RerankModel  string
}

type Config struct {
	PostgresDSN  string
	IndexDir     string
	HTTPAddr     string
	PoliciesPath string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	Embeddings EmbeddingsConfig
	LLM        LLMConfig
}

func Load() Config {
	cfg := Config{
		PostgresDSN:  getEnv("POSTGRES_DSN", "postgres://localhost:5432/knowbase?sslmode=disable"),
		IndexDir:     getEnv("INDEX_DIR", "./data/index"),
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		PoliciesPath: getEnv("CHUNK_POLICIES_PATH", "./policies.yaml"),

		OllamaHost:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		Embeddings: EmbeddingsConfig{
			Provider:  getEnv("EMBEDDINGS_PROVIDER", ProviderOpenAI),
			Model:     getEnv("EMBEDDINGS_MODEL", "text-embedding-3-small"),
			Dimension: getEnvInt("EMBEDDINGS_DIMENSION", 1536),
		},
		LLM: LLMConfig{
			Provider:     getEnv("LLM_PROVIDER", ProviderOpenAI),
			Model:        getEnv("LLM_MODEL", "gpt-4o-mini"),
			SummaryModel: getEnv("LLM_SUMMARY_MODEL", ""),
			RerankModel:  getEnv("LLM_RERANK_MODEL", ""),
		},
	}

	if cfg.LLM.SummaryModel == "" {
		cfg.LLM.SummaryModel = cfg.LLM.Model
	}
	if cfg.LLM.RerankModel == "" {
		cfg.LLM.RerankModel = cfg.LLM.Model
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
