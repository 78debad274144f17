package pulse

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Score formula constants.
const (
	highSimilarity     = 0.45
	veryHighSimilarity = 0.55

	similarityWeight   = 2.0
	multiHighBonus     = 0.5 // two or more high-similarity articles
	veryHighBonus      = 0.3 // at least one very-high-similarity article
	consistencyBonus   = 0.4 // more than half of the articles are high-similarity
	unsupportedQuality = 0.2
	govFactorStep      = 0.3

	noNewsPenalty         = 0.4
	weakSingleNewsPenalty = 0.7
	weakSingleNewsCeiling = 0.4
)

// ScoreFeatures is everything the score formula looks at.
type ScoreFeatures struct {
	TotalCount     int
	GovCount       int
	NewsCount      int
	Similarities   int     // news documents with a recorded similarity
	MeanSimilarity float64 // 0 when Similarities is 0
	HighCount      int     // similarities above highSimilarity
	VeryHighCount  int     // similarities above veryHighSimilarity
}

// ConsistencyRatio is the share of similarities above highSimilarity.
func (f ScoreFeatures) ConsistencyRatio() float64 {
	if f.Similarities == 0 {
		return 0
	}
	return float64(f.HighCount) / float64(f.Similarities)
}

// Features extracts the score inputs from a cluster.
func Features(c Cluster) ScoreFeatures {
	f := ScoreFeatures{
		TotalCount: c.TotalCount,
		GovCount:   c.GovCount,
		NewsCount:  c.NewsCount,
	}
	sims := c.NewsSimilarities()
	f.Similarities = len(sims)
	if len(sims) == 0 {
		return f
	}

	total := 0.0
	for _, s := range sims {
		total += s
		if s > highSimilarity {
			f.HighCount++
		}
		if s > veryHighSimilarity {
			f.VeryHighCount++
		}
	}
	f.MeanSimilarity = total / float64(len(sims))
	return f
}

// SemanticQuality rewards strong and consistent news support.
func SemanticQuality(f ScoreFeatures) float64 {
	if f.Similarities == 0 {
		return unsupportedQuality
	}
	q := similarityWeight * f.MeanSimilarity
	if f.HighCount >= 2 {
		q += multiHighBonus
	}
	if f.VeryHighCount >= 1 {
		q += veryHighBonus
	}
	if f.ConsistencyRatio() > 0.5 {
		q += consistencyBonus
	}
	return q
}

// Score computes a cluster's relevance: document volume times semantic
// quality times a bonus for consolidated government anchors, with penalties
// for missing or weak news support. The result is rounded to 4 decimals.
func Score(f ScoreFeatures) float64 {
	govFactor := 1.0 + govFactorStep*float64(f.GovCount-1)
	score := float64(f.TotalCount) * SemanticQuality(f) * govFactor

	switch {
	case f.NewsCount == 0:
		score *= noNewsPenalty
	case f.NewsCount == 1 && f.MeanSimilarity < weakSingleNewsCeiling:
		score *= weakSingleNewsPenalty
	}
	return round4(score)
}

// ScoreClusters scores every cluster and sorts them by descending score.
// Equal scores keep their incoming order.
func ScoreClusters(clusters []Cluster) []Cluster {
	scored := make([]Cluster, len(clusters))
	for i, c := range clusters {
		c.Score = Score(Features(c))
		scored[i] = c
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

// ClusterRecord is the persisted form of a ranked cluster.
type ClusterRecord struct {
	CenterEmbedding []float64       `json:"center_embedding" jsonschema:"description=Mean embedding of the cluster's government documents"`
	Score           float64         `json:"score"`
	Articles        json.RawMessage `json:"articles" jsonschema:"type=array,description=Member documents in cluster order"`
}

// Records converts ranked clusters to their persisted form.
func Records(clusters []Cluster) ([]ClusterRecord, error) {
	records := make([]ClusterRecord, 0, len(clusters))
	for _, c := range clusters {
		articles, err := json.Marshal(c.Documents)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal articles of cluster %d: %w", c.ID, err)
		}
		records = append(records, ClusterRecord{
			CenterEmbedding: c.CenterEmbedding,
			Score:           c.Score,
			Articles:        articles,
		})
	}
	return records, nil
}

// Documents decodes the member documents of a record.
func (r ClusterRecord) Documents() ([]ClusterDocument, error) {
	var docs []ClusterDocument
	if len(r.Articles) == 0 {
		return docs, nil
	}
	if err := json.Unmarshal(r.Articles, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse articles: %w", err)
	}
	return docs, nil
}
