package pulse

import (
	"strings"

	"github.com/openai/openai-go/v3/option"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434"
	defaultOllamaModel   = "all-minilm"

	// Ollama answers 503 while a model loads; the client backs off and
	// retries those, honoring Retry-After.
	ollamaMaxRetries = 5
)

// NewOllamaEmbedder creates an embedder for a local Ollama server, e.g. the
// all-minilm sentence-transformer model, through Ollama's OpenAI-compatible
// /v1/embeddings endpoint.
func NewOllamaEmbedder(baseURL, model string) *OpenAIEmbedder {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	// Ollama ignores the key but the client requires one
	return NewOpenAIEmbedder("ollama", ollamaAPIBase(baseURL), model,
		option.WithMaxRetries(ollamaMaxRetries))
}

func ollamaAPIBase(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base + "/"
}
