package pulse

import (
	"container/heap"
	"log"
	"slices"

	"gonum.org/v1/gonum/mat"
)

const (
	MaxGovPerCluster  = 10
	MaxNewsPerCluster = 10
)

// Anchor is a group of government documents that news articles attach to.
type Anchor struct {
	ID             int
	Gov            []int           // government document indices, ascending
	News           []int           // news indices in assignment order
	NewsSimilarity map[int]float64 // news index -> mean similarity to Gov
}

// mergePair is a candidate merge of two government documents.
type mergePair struct {
	sim  float64
	i, j int
}

// mergeQueue is a max-heap of candidate pairs by similarity; ties are
// ordered by i then j so the merge sequence is deterministic.
type mergeQueue []mergePair

func (q mergeQueue) Len() int { return len(q) }
func (q mergeQueue) Less(a, b int) bool {
	if q[a].sim != q[b].sim {
		return q[a].sim > q[b].sim
	}
	if q[a].i != q[b].i {
		return q[a].i < q[b].i
	}
	return q[a].j < q[b].j
}
func (q mergeQueue) Swap(a, b int) { q[a], q[b] = q[b], q[a] }
func (q *mergeQueue) Push(x any)   { *q = append(*q, x.(mergePair)) }
func (q *mergeQueue) Pop() any {
	old := *q
	p := old[len(old)-1]
	*q = old[:len(old)-1]
	return p
}

// newMergeQueue seeds the queue once with every pair at or above threshold.
// It is never re-ranked as clusters grow.
func newMergeQueue(govSim mat.Matrix, threshold float64) *mergeQueue {
	n, _ := govSim.Dims()
	q := &mergeQueue{}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if sim := govSim.At(i, j); sim >= threshold {
				*q = append(*q, mergePair{sim: sim, i: i, j: j})
			}
		}
	}
	heap.Init(q)
	return q
}

// anchorArena tracks which slot every government document lives in. Slots
// are only freed by merging; a freed slot is nil.
type anchorArena struct {
	slots [][]int // slot id -> member document indices
	owner []int   // document index -> slot id
}

func newAnchorArena(n int) *anchorArena {
	a := &anchorArena{
		slots: make([][]int, n),
		owner: make([]int, n),
	}
	for i := range n {
		a.slots[i] = []int{i}
		a.owner[i] = i
	}
	return a
}

func (a *anchorArena) find(doc int) int { return a.owner[doc] }

func (a *anchorArena) size(slot int) int { return len(a.slots[slot]) }

// union moves the smaller slot into the larger one and returns the id of the
// surviving slot. On equal sizes, y moves into x.
func (a *anchorArena) union(x, y int) int {
	if a.size(x) < a.size(y) {
		x, y = y, x
	}
	for _, doc := range a.slots[y] {
		a.owner[doc] = x
	}
	a.slots[x] = append(a.slots[x], a.slots[y]...)
	a.slots[y] = nil
	return x
}

// compact returns the surviving slots as anchors with dense ids, in
// ascending order of their original slot id.
func (a *anchorArena) compact() []Anchor {
	var anchors []Anchor
	for _, members := range a.slots {
		if members == nil {
			continue
		}
		gov := slices.Clone(members)
		slices.Sort(gov)
		anchors = append(anchors, Anchor{
			ID:             len(anchors),
			Gov:            gov,
			NewsSimilarity: make(map[int]float64),
		})
	}
	return anchors
}

// MergeAnchors greedily merges similar government documents into anchors of
// at most MaxGovPerCluster documents. Pairs are visited once, strongest
// first, using the original pairwise similarities (single-linkage style).
func MergeAnchors(govSim mat.Matrix, threshold float64) []Anchor {
	n, _ := govSim.Dims()
	arena := newAnchorArena(n)
	queue := newMergeQueue(govSim, threshold)
	log.Printf("Found %d government document pairs above merge threshold %.2f", queue.Len(), threshold)

	merges, skipped := 0, 0
	for queue.Len() > 0 {
		p := heap.Pop(queue).(mergePair)

		c1, c2 := arena.find(p.i), arena.find(p.j)
		if c1 == c2 {
			continue
		}
		if arena.size(c1)+arena.size(c2) > MaxGovPerCluster {
			skipped++
			continue
		}

		arena.union(c1, c2)
		merges++
	}

	anchors := arena.compact()
	log.Printf("Created %d government document clusters (%d merges, %d skipped at capacity)", len(anchors), merges, skipped)
	return anchors
}
