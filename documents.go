package pulse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sosodev/duration"
)

// Source tags which stream a document came from.
type Source string

const (
	SourceGov  Source = "gov"
	SourceNews Source = "news"
)

// Document is a single input row: a government document or a news article.
type Document struct {
	Title       string    `json:"title" jsonschema:"description=Document title"`
	Text        string    `json:"text,omitempty" jsonschema:"description=Full document text (full_text is accepted as an alias)"`
	URL         string    `json:"url,omitempty"`
	Keyword     string    `json:"keyword,omitempty" jsonschema:"description=Search keyword that matched this document"`
	Source      Source    `json:"source,omitempty" jsonschema:"enum=gov,enum=news"`
	PublishedAt time.Time `json:"published_at,omitzero"`
}

// UnmarshalJSON accepts both "text" and "full_text" for the body.
func (d *Document) UnmarshalJSON(data []byte) error {
	type plain Document
	var raw struct {
		plain
		FullText string `json:"full_text"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = Document(raw.plain)
	if d.Text == "" {
		d.Text = raw.FullText
	}
	return nil
}

// LoadDocuments reads a JSON array or JSON-lines file of documents and tags every row with source.
// A missing file is not an error; it yields an empty table.
func LoadDocuments(path string, source Source) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("No %s documents at %s", source, path)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	docs, err := decodeDocuments(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for i := range docs {
		docs[i].Source = source
	}

	log.Printf("Loaded %d %s documents from %s", len(docs), source, path)
	return docs, nil
}

func decodeDocuments(data []byte) ([]Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var docs []Document
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, err
		}
		return docs, nil
	}

	var docs []Document
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		row := bytes.TrimSpace(scanner.Bytes())
		if len(row) == 0 {
			continue
		}
		var doc Document
		if err := json.Unmarshal(row, &doc); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		docs = append(docs, doc)
	}
	return docs, scanner.Err()
}

// parseLookback parses an ISO-8601 duration such as "P2D" or "PT36H".
func parseLookback(raw string) (time.Duration, error) {
	d, err := duration.Parse(raw)
	if err != nil {
		return 0, fmt.Errorf("PULSE_LOOKBACK must be an ISO-8601 duration: %w", err)
	}
	return d.ToTimeDuration(), nil
}

// FilterRecent drops documents published before now-lookback. Rows without a
// publication time are kept.
func FilterRecent(docs []Document, lookback time.Duration, now time.Time) []Document {
	if lookback <= 0 {
		return docs
	}
	cutoff := now.Add(-lookback)
	kept := docs[:0:0]
	for _, d := range docs {
		if !d.PublishedAt.IsZero() && d.PublishedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, d)
	}
	if dropped := len(docs) - len(kept); dropped > 0 {
		log.Printf("Dropped %d documents older than %v", dropped, lookback)
	}
	return kept
}
