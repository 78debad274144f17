package pulse

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// ClusterStore persists the ranked clusters of the latest run.
type ClusterStore interface {
	// ReplaceClusters deletes every stored cluster and inserts records, in rank order.
	ReplaceClusters(ctx context.Context, runID string, records []ClusterRecord) error
	// LatestClusters returns the stored clusters in rank order.
	LatestClusters(ctx context.Context) (runID string, records []ClusterRecord, err error)
	Close() error
}

type dialect struct {
	driver      string
	schema      string
	placeholder func(n int) string
	// embedding codecs between []float64 and the column type
	encode func([]float64) (any, error)
	decode func(dst *[]float64) any
}

var sqliteDialect = dialect{
	driver: "sqlite3",
	schema: `
	CREATE TABLE IF NOT EXISTS clusters (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		cluster_rank INTEGER NOT NULL,
		embedding_json TEXT NOT NULL,
		score REAL NOT NULL,
		metadata TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_clusters_run ON clusters(run_id);
	`,
	placeholder: func(int) string { return "?" },
	encode: func(v []float64) (any, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
	decode: func(dst *[]float64) any { return &jsonFloats{dst: dst} },
}

var postgresDialect = dialect{
	driver: "postgres",
	schema: `
	CREATE TABLE IF NOT EXISTS clusters (
		id SERIAL PRIMARY KEY,
		run_id TEXT NOT NULL,
		cluster_rank INTEGER NOT NULL,
		embedding DOUBLE PRECISION[] NOT NULL,
		score DOUBLE PRECISION NOT NULL,
		metadata JSONB NOT NULL,
		created_at TIMESTAMPTZ DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_clusters_run ON clusters(run_id);
	`,
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	encode:      func(v []float64) (any, error) { return pq.Array(v), nil },
	decode:      func(dst *[]float64) any { return pq.Array(dst) },
}

// jsonFloats scans a JSON-encoded TEXT column into a float slice.
type jsonFloats struct {
	dst *[]float64
}

func (j *jsonFloats) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	case nil:
		*j.dst = nil
		return nil
	default:
		return fmt.Errorf("unsupported embedding column type %T", src)
	}
	return json.Unmarshal(raw, j.dst)
}

// SQLStore is a ClusterStore on SQLite or PostgreSQL.
type SQLStore struct {
	db *sql.DB
	d  dialect
}

// OpenStore opens the store at dsn: a postgres:// URL selects PostgreSQL,
// anything else is treated as a SQLite file path.
func OpenStore(dsn string) (*SQLStore, error) {
	d := sqliteDialect
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		d = postgresDialect
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", d.driver, err)
	}
	if _, err := db.Exec(d.schema); err != nil {
		if err := db.Close(); err != nil {
			log.Printf("Failed to close database: %v", err)
		}
		return nil, fmt.Errorf("failed to create clusters table: %w", err)
	}
	return &SQLStore{db: db, d: d}, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// ReplaceClusters swaps the stored clusters for records inside one transaction.
func (s *SQLStore) ReplaceClusters(ctx context.Context, runID string, records []ClusterRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			log.Printf("Failed to roll back: %v", err)
		}
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM clusters"); err != nil {
		return fmt.Errorf("failed to delete existing clusters: %w", err)
	}

	embeddingCol := "embedding"
	if s.d.driver == "sqlite3" {
		embeddingCol = "embedding_json"
	}
	p := s.d.placeholder
	insertSQL := fmt.Sprintf(
		"INSERT INTO clusters (run_id, cluster_rank, %s, score, metadata) VALUES (%s, %s, %s, %s, %s)",
		embeddingCol, p(1), p(2), p(3), p(4), p(5))

	for rank, r := range records {
		embedding, err := s.d.encode(r.CenterEmbedding)
		if err != nil {
			return fmt.Errorf("failed to encode embedding: %w", err)
		}
		metadata := string(r.Articles)
		if metadata == "" {
			metadata = "[]"
		}
		if _, err := tx.ExecContext(ctx, insertSQL, runID, rank, embedding, r.Score, metadata); err != nil {
			return fmt.Errorf("failed to insert cluster %d: %w", rank, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clusters: %w", err)
	}
	log.Printf("Stored %d clusters for run %s", len(records), runID)
	return nil
}

// LatestClusters returns the stored clusters ordered by rank.
func (s *SQLStore) LatestClusters(ctx context.Context) (string, []ClusterRecord, error) {
	embeddingCol := "embedding"
	if s.d.driver == "sqlite3" {
		embeddingCol = "embedding_json"
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT run_id, %s, score, metadata FROM clusters ORDER BY cluster_rank", embeddingCol))
	if err != nil {
		return "", nil, fmt.Errorf("failed to query clusters: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("Failed to close rows: %v", err)
		}
	}()

	var runID string
	var records []ClusterRecord
	for rows.Next() {
		var r ClusterRecord
		var metadata string
		if err := rows.Scan(&runID, s.d.decode(&r.CenterEmbedding), &r.Score, &metadata); err != nil {
			return "", nil, fmt.Errorf("failed to scan cluster: %w", err)
		}
		r.Articles = json.RawMessage(metadata)
		records = append(records, r)
	}
	return runID, records, rows.Err()
}
