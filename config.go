package pulse

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	DefaultSimilarityThreshold = 0.35
	DefaultMergeThreshold      = 0.7
)

// Config holds all environment variables
var Config struct {
	SimilarityThreshold float64
	MergeThreshold      float64

	Embedder       string
	EmbeddingModel string
	EmbeddingCache string
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	OllamaBaseURL  string

	StoreDSN string
	Lookback string
	APIAddr  string
}

// LoadConfig populates Config from the environment, applying defaults for unset keys.
func LoadConfig() error {
	var err error
	if Config.SimilarityThreshold, err = getFloat("PULSE_SIMILARITY_THRESHOLD", DefaultSimilarityThreshold); err != nil {
		return err
	}
	if Config.MergeThreshold, err = getFloat("PULSE_MERGE_THRESHOLD", DefaultMergeThreshold); err != nil {
		return err
	}

	Config.Embedder = strings.ToLower(getEnv("PULSE_EMBEDDER", "openai"))
	switch Config.Embedder {
	case "openai":
		Config.EmbeddingModel = getEnv("PULSE_EMBEDDING_MODEL", "text-embedding-3-small")
	case "ollama":
		Config.EmbeddingModel = getEnv("PULSE_EMBEDDING_MODEL", "all-minilm")
	default:
		return fmt.Errorf("PULSE_EMBEDDER must be openai or ollama, got %q", Config.Embedder)
	}

	Config.EmbeddingCache = getEnv("PULSE_EMBEDDING_CACHE", "embeddings.db")
	Config.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	Config.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")
	Config.OllamaBaseURL = getEnv("OLLAMA_BASE_URL", "http://localhost:11434")
	Config.StoreDSN = getEnv("PULSE_STORE_DSN", "clusters.db")
	Config.Lookback = os.Getenv("PULSE_LOOKBACK")
	Config.APIAddr = getEnv("PULSE_API_ADDR", ":8080")

	if Config.Lookback != "" {
		if _, err := parseLookback(Config.Lookback); err != nil {
			return err
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) (float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	if v < -1 || v > 1 {
		return 0, fmt.Errorf("%s must be within [-1, 1], got %v", key, v)
	}
	return v, nil
}
