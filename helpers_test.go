package pulse

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// stubTagger returns fixed terms for every text.
type stubTagger struct {
	terms []string
	err   error
	panic bool
}

func (s stubTagger) Terms(string) ([]string, error) {
	if s.panic {
		panic("tagger exploded")
	}
	return s.terms, s.err
}

// mapEmbedder returns the vector registered for each text.
type mapEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float64
	calls   int
	texts   [][]string
	err     error
}

func (m *mapEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.texts = append(m.texts, append([]string(nil), texts...))
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, ok := m.vectors[t]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", t)
		}
		out[i] = v
	}
	return out, nil
}

// unitAt returns a 2D unit vector whose cosine with (1, 0) is c.
func unitAt(c float64) []float64 {
	return []float64{c, math.Sqrt(1 - c*c)}
}

func govDocs(titles ...string) []Document {
	docs := make([]Document, len(titles))
	for i, t := range titles {
		docs[i] = Document{Title: t, Text: "body of " + t, URL: "https://gov.example/" + t, Keyword: "kw-" + t, Source: SourceGov}
	}
	return docs
}

func newsDocs(titles ...string) []Document {
	docs := make([]Document, len(titles))
	for i, t := range titles {
		docs[i] = Document{Title: t, URL: "https://news.example/" + t, Keyword: "kw-" + t, Source: SourceNews}
	}
	return docs
}
