package pulse

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
)

var (
	// ErrNoGovernmentDocuments means there is nothing to anchor clusters on.
	ErrNoGovernmentDocuments = errors.New("no government documents to anchor clusters")

	// ErrClusteringFailed wraps any failure inside the pipeline.
	ErrClusteringFailed = errors.New("clustering failed")
)

// Clusterer groups news articles around government documents. The tagger and
// embedder are shared read-only, so one Clusterer may serve concurrent runs.
type Clusterer struct {
	tagger              Tagger
	embedder            Embedder
	similarityThreshold float64
	mergeThreshold      float64
}

// NewClusterer creates a Clusterer with the default thresholds.
func NewClusterer(tagger Tagger, embedder Embedder) *Clusterer {
	return &Clusterer{
		tagger:              tagger,
		embedder:            embedder,
		similarityThreshold: DefaultSimilarityThreshold,
		mergeThreshold:      DefaultMergeThreshold,
	}
}

// WithThresholds returns a copy using the given news admission and anchor
// merge thresholds.
func (c *Clusterer) WithThresholds(similarity, merge float64) *Clusterer {
	cp := *c
	cp.similarityThreshold = similarity
	cp.mergeThreshold = merge
	return &cp
}

// Run executes the whole pipeline and returns the ranked clusters. It returns
// ErrNoGovernmentDocuments for an empty government table and an error
// wrapping ErrClusteringFailed for anything that goes wrong on the way; it
// never returns partial results. A nil error with no clusters means nothing
// survived filtering.
func (c *Clusterer) Run(ctx context.Context, gov, news []Document) (clusters []Cluster, err error) {
	if len(gov) == 0 {
		return nil, ErrNoGovernmentDocuments
	}
	if len(news) == 0 {
		log.Println("No news articles to cluster, building government-only clusters")
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic during clustering: %v\n%s", r, debug.Stack())
			clusters = nil
			err = fmt.Errorf("%w: %v", ErrClusteringFailed, r)
		}
	}()

	govTexts, newsTexts := PrepareDocuments(c.tagger, gov, news)

	govEmb, newsEmb, err := EmbedDocuments(ctx, c.embedder, govTexts, newsTexts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClusteringFailed, err)
	}

	sims := CalculateSimilarities(govEmb, newsEmb)
	anchors := MergeAnchors(sims.GovGov, c.mergeThreshold)
	AssignNews(anchors, sims.GovNews, c.similarityThreshold)

	organized := OrganizeClusters(anchors, gov, news, govEmb)
	filtered := FilterClusters(organized)
	clusters = ScoreClusters(filtered)

	logSummary(len(gov), len(news), organized, clusters)
	return clusters, nil
}

// ClusterArticles runs the pipeline and returns the persisted records. Any
// failure is logged and yields an empty list.
func (c *Clusterer) ClusterArticles(ctx context.Context, gov, news []Document) []ClusterRecord {
	clusters, err := c.Run(ctx, gov, news)
	if err != nil {
		log.Printf("Error in clustering: %v", err)
		return []ClusterRecord{}
	}
	records, err := Records(clusters)
	if err != nil {
		log.Printf("Error in clustering: %v", err)
		return []ClusterRecord{}
	}
	return records
}

func logSummary(nGov, nNews int, organized, final []Cluster) {
	govIn, newsIn := 0, 0
	for _, c := range final {
		govIn += c.GovCount
		newsIn += c.NewsCount
	}

	log.Println("========== CLUSTERING SUMMARY ===========")
	log.Printf("Total government documents: %d", nGov)
	log.Printf("Total news articles: %d", nNews)
	log.Printf("Total clusters before filtering: %d", len(organized))
	log.Printf("Total clusters after filtering: %d", len(final))
	log.Printf("Government documents in final clusters: %d/%d (%.1f%%)", govIn, nGov, percent(govIn, nGov))
	log.Printf("News articles in final clusters: %d/%d (%.1f%%)", newsIn, nNews, percent(newsIn, nNews))

	log.Println("========== OUTPUT CLUSTERS ===========")
	for i, c := range final[:min(10, len(final))] {
		log.Printf("----- Cluster %d (score %.4f) -------", i+1, c.Score)
		log.Printf("Documents: %d (%d gov, %d news)", c.TotalCount, c.GovCount, c.NewsCount)
		for _, d := range c.Documents[:min(5, len(c.Documents))] {
			log.Printf("%s: %s", d.Source, truncateString(d.Title, 100))
		}
	}
}

func percent(part, whole int) float64 {
	return float64(part) / float64(max(1, whole)) * 100
}
