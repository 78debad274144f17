package pulse

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestCosineSimilarity(t *testing.T) {
	a := embeddingMatrix([][]float64{{1, 0}, {0, 2}, {3, 3}, {0, 0}})
	sim := CosineSimilarity(a, a)

	r, c := sim.Dims()
	require.Equal(t, 4, r)
	require.Equal(t, 4, c)

	require.InDelta(t, 1.0, sim.At(0, 0), 1e-9)
	require.InDelta(t, 1.0, sim.At(1, 1), 1e-9)
	require.InDelta(t, 0.0, sim.At(0, 1), 1e-9)
	require.InDelta(t, 0.7071, sim.At(0, 2), 1e-4)
	require.Equal(t, 0.0, sim.At(3, 0), "zero vector is similar to nothing")
	require.Equal(t, 0.0, sim.At(3, 3))

	for i := range r {
		for j := range c {
			require.GreaterOrEqual(t, sim.At(i, j), -1.0)
			require.LessOrEqual(t, sim.At(i, j), 1.0)
			require.InDelta(t, sim.At(i, j), sim.At(j, i), 1e-12)
		}
	}
}

func TestCosineSimilarityDoesNotModifyInput(t *testing.T) {
	a := mat.NewDense(1, 2, []float64{3, 4})
	CosineSimilarity(a, a)
	require.Equal(t, []float64{3, 4}, a.RawRowView(0))
}

func TestCalculateSimilarities(t *testing.T) {
	gov := [][]float64{{1, 0}, {0, 1}}
	news := [][]float64{{1, 1}, {-1, 0}, {0, 5}}

	sims := CalculateSimilarities(gov, news)
	r, c := sims.GovNews.Dims()
	require.Equal(t, 2, r)
	require.Equal(t, 3, c)
	require.InDelta(t, 0.7071, sims.GovNews.At(0, 0), 1e-4)
	require.InDelta(t, -1.0, sims.GovNews.At(0, 1), 1e-9)
	require.InDelta(t, 1.0, sims.GovNews.At(1, 2), 1e-9)

	r, c = sims.GovGov.Dims()
	require.Equal(t, 2, r)
	require.Equal(t, 2, c)
}

func TestCalculateSimilaritiesWithoutNews(t *testing.T) {
	sims := CalculateSimilarities([][]float64{{1, 0}}, nil)
	require.NotNil(t, sims.GovGov)
	require.Nil(t, sims.GovNews)
}
