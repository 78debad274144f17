package pulse

import "log"

// supportSimilarity is the news similarity a lone government document needs
// at least one article above to survive filtering.
const supportSimilarity = 0.4

// FilterClusters drops clusters anchored by a single government document that
// have no news article with similarity above supportSimilarity. Clusters with
// two or more government documents are always kept. Order is preserved.
func FilterClusters(clusters []Cluster) []Cluster {
	filtered := make([]Cluster, 0, len(clusters))
	for _, c := range clusters {
		if c.GovCount == 1 {
			supporting := 0
			for _, sim := range c.NewsSimilarities() {
				if sim > supportSimilarity {
					supporting++
				}
			}
			if supporting < 1 {
				log.Printf("Dropping cluster %d: 1 gov doc, %d news articles with similarity > %.1f", c.ID, supporting, supportSimilarity)
				continue
			}
		}
		filtered = append(filtered, c)
	}

	log.Printf("Filtered out %d irrelevant clusters. Remaining: %d", len(clusters)-len(filtered), len(filtered))
	return filtered
}
