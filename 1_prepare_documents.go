package pulse

import (
	"fmt"
	"log"
	"strings"

	"github.com/jdkato/prose/v2"
)

const (
	entityWindowSize = 5000 // runes read from the middle of a government document
	preparedTextSize = 200  // runes kept for embedding
)

// Tagger extracts named entities and common nouns from text.
// Implementations must be safe for concurrent use.
type Tagger interface {
	Terms(text string) ([]string, error)
}

// ProseTagger is a Tagger backed by the prose NLP pipeline. The tagging and
// entity models are decoded once and shared read-only by every call.
type ProseTagger struct {
	model *prose.Model
}

// NewProseTagger loads the prose models.
func NewProseTagger() (*ProseTagger, error) {
	doc, err := prose.NewDocument("", prose.WithSegmentation(false))
	if err != nil {
		return nil, fmt.Errorf("failed to load tagger model: %w", err)
	}
	return &ProseTagger{model: doc.Model}, nil
}

// Terms returns lower-cased entities followed by lower-cased common nouns.
func (t *ProseTagger) Terms(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	doc, err := prose.NewDocument(text, prose.WithSegmentation(false), prose.UsingModel(t.model))
	if err != nil {
		return nil, fmt.Errorf("failed to tag text: %w", err)
	}

	var terms []string
	for _, ent := range doc.Entities() {
		terms = append(terms, strings.ToLower(ent.Text))
	}
	for _, tok := range doc.Tokens() {
		// NN and NNS are common nouns; proper nouns are covered by the entities above
		if tok.Tag == "NN" || tok.Tag == "NNS" {
			terms = append(terms, strings.ToLower(tok.Text))
		}
	}
	return terms, nil
}

// PrepareDocuments builds the strings handed to the embedder. Government
// documents get their title plus the entities and nouns found in a window
// taken from the middle of the text; news articles use the title alone.
func PrepareDocuments(tagger Tagger, gov, news []Document) (govTexts, newsTexts []string) {
	govTexts = make([]string, len(gov))
	for i, doc := range gov {
		govTexts[i] = prepareGovText(tagger, doc)
	}

	newsTexts = make([]string, len(news))
	for i, doc := range news {
		newsTexts[i] = doc.Title
	}
	return govTexts, newsTexts
}

func prepareGovText(tagger Tagger, doc Document) string {
	window := middleWindow(doc.Text, entityWindowSize)

	var terms []string
	if window != "" && tagger != nil {
		var err error
		terms, err = tagger.Terms(window)
		if err != nil {
			log.Printf("Entity extraction failed for %q: %v", truncateString(doc.Title, 50), err)
			terms = nil
		}
	}

	content := strings.TrimSpace(doc.Title + " " + strings.Join(terms, " "))
	return truncateRunes(content, preparedTextSize)
}

// middleWindow returns up to size runes starting at the rune midpoint of text.
func middleWindow(text string, size int) string {
	runes := []rune(text)
	mid := len(runes) / 2
	end := min(mid+size, len(runes))
	return string(runes[mid:end])
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// truncateString shortens s for log output, adding an ellipsis when cut.
func truncateString(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string(runes[:maxLength])
	}
	return string(runes[:maxLength-3]) + "..."
}
