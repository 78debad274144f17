package pulse

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// uniformSim is an n x n similarity matrix with ones on the diagonal and v elsewhere.
func uniformSim(n int, v float64) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := range n {
		for j := range n {
			if i == j {
				m.Set(i, j, 1)
			} else {
				m.Set(i, j, v)
			}
		}
	}
	return m
}

func govSets(anchors []Anchor) [][]int {
	sets := make([][]int, len(anchors))
	for i, a := range anchors {
		sets[i] = a.Gov
	}
	return sets
}

func TestMergeAnchors(t *testing.T) {
	tests := []struct {
		name      string
		sim       *mat.Dense
		threshold float64
		want      [][]int
	}{
		{
			name:      "three similar documents merge",
			sim:       uniformSim(3, 0.9),
			threshold: 0.7,
			want:      [][]int{{0, 1, 2}},
		},
		{
			name:      "nothing above threshold",
			sim:       uniformSim(3, 0.5),
			threshold: 0.7,
			want:      [][]int{{0}, {1}, {2}},
		},
		{
			name:      "threshold is inclusive",
			sim:       uniformSim(2, 0.7),
			threshold: 0.7,
			want:      [][]int{{0, 1}},
		},
		{
			name:      "eleven similar documents overflow the cap",
			sim:       uniformSim(11, 0.9),
			threshold: 0.7,
			want:      [][]int{{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, {10}},
		},
		{
			name: "chained pairs link transitively",
			sim: mat.NewDense(3, 3, []float64{
				1, 0.9, 0.1,
				0.9, 1, 0.8,
				0.1, 0.8, 1,
			}),
			threshold: 0.7,
			want:      [][]int{{0, 1, 2}},
		},
		{
			name:      "single document",
			sim:       uniformSim(1, 0),
			threshold: 0.7,
			want:      [][]int{{0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			anchors := MergeAnchors(tt.sim, tt.threshold)
			require.Equal(t, tt.want, govSets(anchors))
			for i, a := range anchors {
				require.Equal(t, i, a.ID)
				require.LessOrEqual(t, len(a.Gov), MaxGovPerCluster)
				require.NotNil(t, a.NewsSimilarity)
			}
		})
	}
}

func TestMergeAnchorsStrongestPairFirst(t *testing.T) {
	// 0-1 and 2-3 are strong; 1-2 only links the pairs after both formed.
	sim := mat.NewDense(4, 4, []float64{
		1, 0.95, 0.1, 0.1,
		0.95, 1, 0.75, 0.1,
		0.1, 0.75, 1, 0.9,
		0.1, 0.1, 0.9, 1,
	})
	anchors := MergeAnchors(sim, 0.7)
	require.Equal(t, [][]int{{0, 1, 2, 3}}, govSets(anchors))
}

func TestMergeAnchorsPartitionsDocuments(t *testing.T) {
	anchors := MergeAnchors(uniformSim(25, 0.8), 0.7)

	seen := make(map[int]bool)
	for _, a := range anchors {
		require.LessOrEqual(t, len(a.Gov), MaxGovPerCluster)
		for _, g := range a.Gov {
			require.False(t, seen[g], "document %d in two anchors", g)
			seen[g] = true
		}
	}
	require.Len(t, seen, 25)
}

func TestAnchorArenaUnion(t *testing.T) {
	a := newAnchorArena(4)
	require.Equal(t, 0, a.union(0, 1), "equal sizes keep the first slot")
	require.Equal(t, 0, a.union(2, 0), "smaller slot moves into the larger one")
	require.Equal(t, 0, a.find(2))
	require.Equal(t, 3, a.size(0))
	require.Nil(t, a.slots[1])

	anchors := a.compact()
	require.Equal(t, [][]int{{0, 1, 2}, {3}}, govSets(anchors))
	require.Equal(t, 1, anchors[1].ID)
}
