package pulse

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/spf13/cobra"
)

// Embedder maps texts to fixed-length vectors. The result is index-aligned
// with texts. Implementations must be safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// openAIBatchSize stays well under the API limit of 2048 inputs per request.
const openAIBatchSize = 256

// OpenAIEmbedder generates embeddings with the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client openai.Client
	model  string
}

// NewOpenAIEmbedder creates an embedder for the given model. baseURL may be
// empty; extra options are applied after the key and base URL.
func NewOpenAIEmbedder(apiKey, baseURL, model string, extra ...option.RequestOption) *OpenAIEmbedder {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts, extra...)
	return &OpenAIEmbedder{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Embed sends texts in batches and reassembles the vectors in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for start := 0; start < len(texts); start += openAIBatchSize {
		end := min(start+openAIBatchSize, len(texts))

		batch := make([]string, end-start)
		for i, text := range texts[start:end] {
			// the API rejects empty input
			if strings.TrimSpace(text) == "" {
				text = " "
			}
			batch[i] = text
		}

		resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: batch,
			},
			Model:          openai.EmbeddingModel(e.model),
			EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to call OpenAI API: %w", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("expected %d embeddings, got %d", len(batch), len(resp.Data))
		}

		for _, d := range resp.Data {
			idx := int(d.Index)
			if idx < 0 || idx >= len(batch) {
				return nil, fmt.Errorf("embedding index %d out of range", idx)
			}
			vectors[start+idx] = d.Embedding
		}
	}
	return vectors, nil
}

// CachedEmbedder stores vectors in SQLite keyed by model and text hash so
// repeated runs only pay for texts they have not seen.
type CachedEmbedder struct {
	db    *sql.DB
	inner Embedder
	model string
}

// NewCachedEmbedder opens (or creates) the cache database at path.
func NewCachedEmbedder(path, model string, inner Embedder) (*CachedEmbedder, error) {
	db, err := initEmbeddingDB(path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding cache: %w", err)
	}
	return &CachedEmbedder{db: db, inner: inner, model: model}, nil
}

// initEmbeddingDB initializes the SQLite database for embeddings
func initEmbeddingDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS embeddings (
		model TEXT NOT NULL,
		text_hash TEXT NOT NULL,
		text TEXT NOT NULL,
		embedding_json TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (model, text_hash)
	);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		if err := db.Close(); err != nil {
			log.Printf("Failed to close database: %v", err)
		}
		return nil, err
	}

	return db, nil
}

// Close closes the cache database.
func (c *CachedEmbedder) Close() error {
	return c.db.Close()
}

// Embed serves cached vectors and embeds the misses in a single inner call.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	var missTexts []string
	var missIdx []int
	seen := make(map[string][]int)

	for i, text := range texts {
		vec, ok, err := c.lookup(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to read embedding cache: %w", err)
		}
		if ok {
			vectors[i] = vec
			continue
		}
		if prev, dup := seen[text]; dup {
			seen[text] = append(prev, i)
			continue
		}
		seen[text] = []int{i}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return vectors, nil
	}
	log.Printf("Embedding cache: %d hits, %d misses", len(texts)-countIndices(seen), len(missTexts))

	fresh, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(missTexts), len(fresh))
	}

	for k, text := range missTexts {
		for _, i := range seen[text] {
			vectors[i] = fresh[k]
		}
		if err := c.save(ctx, text, fresh[k]); err != nil {
			log.Printf("Failed to cache embedding for row %d: %v", missIdx[k], err)
		}
	}
	return vectors, nil
}

func countIndices(m map[string][]int) int {
	n := 0
	for _, idx := range m {
		n += len(idx)
	}
	return n
}

func textHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) lookup(ctx context.Context, text string) ([]float64, bool, error) {
	var embeddingJSON string
	err := c.db.QueryRowContext(ctx,
		"SELECT embedding_json FROM embeddings WHERE model = ? AND text_hash = ?",
		c.model, textHash(text)).Scan(&embeddingJSON)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var vec []float64
	if err := json.Unmarshal([]byte(embeddingJSON), &vec); err != nil {
		return nil, false, fmt.Errorf("failed to parse cached embedding: %w", err)
	}
	return vec, true, nil
}

func (c *CachedEmbedder) save(ctx context.Context, text string, vec []float64) error {
	embeddingJSON, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
	INSERT OR REPLACE INTO embeddings (model, text_hash, text, embedding_json)
	VALUES (?, ?, ?, ?)
	`, c.model, textHash(text), text, string(embeddingJSON))
	if err != nil {
		return fmt.Errorf("failed to insert embedding: %w", err)
	}
	return nil
}

// EmbedDocuments embeds both prepared tables and checks that every vector
// has the same dimension.
func EmbedDocuments(ctx context.Context, embedder Embedder, govTexts, newsTexts []string) (govEmb, newsEmb [][]float64, err error) {
	log.Printf("Generating embeddings for %d government documents...", len(govTexts))
	if govEmb, err = embedTexts(ctx, embedder, govTexts); err != nil {
		return nil, nil, fmt.Errorf("failed to embed government documents: %w", err)
	}

	log.Printf("Generating embeddings for %d news articles...", len(newsTexts))
	if newsEmb, err = embedTexts(ctx, embedder, newsTexts); err != nil {
		return nil, nil, fmt.Errorf("failed to embed news articles: %w", err)
	}

	dim := -1
	tables := []struct {
		name    string
		vectors [][]float64
	}{
		{"government document", govEmb},
		{"news article", newsEmb},
	}
	for _, table := range tables {
		for i, vec := range table.vectors {
			if dim < 0 {
				dim = len(vec)
			}
			if len(vec) != dim || dim == 0 {
				return nil, nil, fmt.Errorf("%s %d embedding has dimension %d, want %d", table.name, i, len(vec), dim)
			}
		}
	}
	return govEmb, newsEmb, nil
}

func embedTexts(ctx context.Context, embedder Embedder, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors))
	}
	return vectors, nil
}

// NewEmbedderFromConfig builds the configured embedder, wrapped in the
// SQLite cache unless caching is disabled. The returned func releases it.
func NewEmbedderFromConfig() (Embedder, func(), error) {
	var inner Embedder
	switch Config.Embedder {
	case "ollama":
		inner = NewOllamaEmbedder(Config.OllamaBaseURL, Config.EmbeddingModel)
	default:
		if Config.OpenAIAPIKey == "" {
			return nil, nil, fmt.Errorf("OPENAI_API_KEY is required for the openai embedder")
		}
		inner = NewOpenAIEmbedder(Config.OpenAIAPIKey, Config.OpenAIBaseURL, Config.EmbeddingModel)
	}

	if Config.EmbeddingCache == "" {
		return inner, func() {}, nil
	}
	cached, err := NewCachedEmbedder(Config.EmbeddingCache, Config.Embedder+"/"+Config.EmbeddingModel, inner)
	if err != nil {
		return nil, nil, err
	}
	return cached, func() {
		if err := cached.Close(); err != nil {
			log.Printf("Failed to close embedding cache: %v", err)
		}
	}, nil
}

var EmbedDocumentsCmd = &cobra.Command{
	Use:   "embed",
	Short: "Prepare and embed documents, warming the embedding cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		gov, news, err := loadInputTables(cmd)
		if err != nil {
			return err
		}
		embedder, closeEmbedder, err := NewEmbedderFromConfig()
		if err != nil {
			return err
		}
		defer closeEmbedder()

		tagger, err := NewProseTagger()
		if err != nil {
			return err
		}
		govTexts, newsTexts := PrepareDocuments(tagger, gov, news)
		if _, _, err := EmbedDocuments(cmd.Context(), embedder, govTexts, newsTexts); err != nil {
			return err
		}
		log.Println("Document embedding complete.")
		return nil
	},
}

func init() {
	addInputFlags(EmbedDocumentsCmd)
}
