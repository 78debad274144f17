package pulse

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// DocumentType is the role of a document inside a cluster.
type DocumentType string

const (
	TypePrimary   DocumentType = "primary"   // the anchor's first government document
	TypeSecondary DocumentType = "secondary" // government documents merged into the anchor
	TypeNews      DocumentType = "news"
)

// ClusterDocument is a member document as it appears in a cluster.
type ClusterDocument struct {
	Source     Source       `json:"source"`
	Type       DocumentType `json:"type"`
	Title      string       `json:"title"`
	Text       string       `json:"text"`
	URL        string       `json:"url"`
	Keyword    string       `json:"keyword"`
	Similarity *float64     `json:"similarity,omitempty"`
}

// Cluster is an anchor materialized with its member documents.
type Cluster struct {
	ID              int               `json:"id"`
	Documents       []ClusterDocument `json:"documents"`
	GovCount        int               `json:"gov_count"`
	NewsCount       int               `json:"news_count"`
	TotalCount      int               `json:"total_count"`
	CenterEmbedding []float64         `json:"center_embedding"`
	Score           float64           `json:"score"`
}

// NewsSimilarities returns the recorded similarities of the cluster's news documents.
func (c Cluster) NewsSimilarities() []float64 {
	var sims []float64
	for _, d := range c.Documents {
		if d.Source == SourceNews && d.Similarity != nil {
			sims = append(sims, *d.Similarity)
		}
	}
	return sims
}

// OrganizeClusters turns anchors into clusters: government documents first in
// index order, then news sorted by similarity. The centroid is the mean of
// the government embeddings. Clusters come back largest first.
func OrganizeClusters(anchors []Anchor, gov, news []Document, govEmb [][]float64) []Cluster {
	clusters := make([]Cluster, 0, len(anchors))
	for _, a := range anchors {
		c := Cluster{
			ID:              a.ID,
			GovCount:        len(a.Gov),
			NewsCount:       len(a.News),
			TotalCount:      len(a.Gov) + len(a.News),
			CenterEmbedding: centroid(govEmb, a.Gov),
		}

		for k, idx := range a.Gov {
			typ := TypeSecondary
			if k == 0 {
				typ = TypePrimary
			}
			c.Documents = append(c.Documents, clusterDocument(gov[idx], SourceGov, typ, nil))
		}

		sortedNews := append([]int(nil), a.News...)
		sort.SliceStable(sortedNews, func(i, j int) bool {
			return a.NewsSimilarity[sortedNews[i]] > a.NewsSimilarity[sortedNews[j]]
		})
		for _, idx := range sortedNews {
			sim := round4(a.NewsSimilarity[idx])
			c.Documents = append(c.Documents, clusterDocument(news[idx], SourceNews, TypeNews, &sim))
		}

		clusters = append(clusters, c)
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].TotalCount > clusters[j].TotalCount
	})
	return clusters
}

func clusterDocument(d Document, source Source, typ DocumentType, sim *float64) ClusterDocument {
	return ClusterDocument{
		Source:     source,
		Type:       typ,
		Title:      d.Title,
		Text:       d.Text,
		URL:        d.URL,
		Keyword:    d.Keyword,
		Similarity: sim,
	}
}

// centroid is the elementwise mean of the selected embeddings.
func centroid(embeddings [][]float64, idx []int) []float64 {
	if len(idx) == 0 {
		return nil
	}
	center := make([]float64, len(embeddings[idx[0]]))
	for _, i := range idx {
		floats.Add(center, embeddings[i])
	}
	floats.Scale(1/float64(len(idx)), center)
	return center
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
