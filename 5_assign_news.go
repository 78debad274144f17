package pulse

import (
	"log"
	"sort"

	"gonum.org/v1/gonum/mat"
)

type anchorCandidate struct {
	anchor int
	sim    float64
}

// AssignNews attaches each news article to the most similar anchor that still
// has room (first-fit decreasing). An article whose viable anchors are all
// full is dropped. anchors is modified in place; the number of assigned
// articles is returned.
func AssignNews(anchors []Anchor, govNewsSim *mat.Dense, threshold float64) int {
	if govNewsSim == nil {
		log.Printf("Assigned 0/0 news articles to clusters")
		return 0
	}
	_, nNews := govNewsSim.Dims()

	assigned, dropped := 0, 0
	for news := 0; news < nNews; news++ {
		var candidates []anchorCandidate
		for a := range anchors {
			sim := meanSimilarity(govNewsSim, anchors[a].Gov, news)
			if sim >= threshold {
				candidates = append(candidates, anchorCandidate{anchor: a, sim: sim})
			}
		}
		if len(candidates) == 0 {
			continue
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].sim > candidates[j].sim
		})

		placed := false
		for _, c := range candidates {
			anchor := &anchors[c.anchor]
			if len(anchor.News) >= MaxNewsPerCluster {
				continue
			}
			anchor.News = append(anchor.News, news)
			anchor.NewsSimilarity[news] = c.sim
			placed = true
			break
		}
		if placed {
			assigned++
		} else {
			dropped++
		}
	}

	log.Printf("Assigned %d/%d news articles to clusters", assigned, nNews)
	if dropped > 0 {
		log.Printf("Dropped %d news articles: every matching cluster was full", dropped)
	}
	return assigned
}

// meanSimilarity is the average similarity of a news article to the
// government documents of one anchor.
func meanSimilarity(govNewsSim *mat.Dense, gov []int, news int) float64 {
	total := 0.0
	for _, g := range gov {
		total += govNewsSim.At(g, news)
	}
	return total / float64(len(gov))
}
