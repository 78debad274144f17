package pulse

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// embeddingMatrix stacks vectors as rows of a dense matrix. All vectors must
// share one dimension. It returns nil for an empty set.
func embeddingMatrix(vectors [][]float64) *mat.Dense {
	if len(vectors) == 0 {
		return nil
	}
	m := mat.NewDense(len(vectors), len(vectors[0]), nil)
	for i, v := range vectors {
		m.SetRow(i, v)
	}
	return m
}

// normalizeRows returns a copy of m with every row scaled to unit L2 norm.
// Zero rows stay zero.
func normalizeRows(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	out.Copy(m)
	for i := 0; i < r; i++ {
		row := out.RawRowView(i)
		if norm := floats.Norm(row, 2); norm > 0 {
			floats.Scale(1/norm, row)
		}
	}
	return out
}

// CosineSimilarity returns the matrix whose [i,j] entry is the cosine
// similarity of row i of a and row j of b. Rows with zero norm have
// similarity 0 to everything. Values are clamped to [-1, 1].
func CosineSimilarity(a, b *mat.Dense) *mat.Dense {
	na := normalizeRows(a)
	nb := na
	if b != a {
		nb = normalizeRows(b)
	}

	var sim mat.Dense
	sim.Mul(na, nb.T())

	r, c := sim.Dims()
	for i := 0; i < r; i++ {
		row := sim.RawRowView(i)
		for j := range c {
			row[j] = math.Max(-1, math.Min(1, row[j]))
		}
	}
	return &sim
}

// Similarities holds the two matrices the merge and assignment stages read.
type Similarities struct {
	GovGov  *mat.Dense // n_gov x n_gov
	GovNews *mat.Dense // n_gov x n_news, nil when there is no news
}

// CalculateSimilarities computes gov×gov and gov×news cosine similarity.
func CalculateSimilarities(govEmb, newsEmb [][]float64) Similarities {
	gov := embeddingMatrix(govEmb)
	sims := Similarities{GovGov: CosineSimilarity(gov, gov)}
	if len(newsEmb) > 0 {
		sims.GovNews = CosineSimilarity(gov, embeddingMatrix(newsEmb))
	}
	return sims
}
