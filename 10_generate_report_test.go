package pulse

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMetricsReport(t *testing.T) {
	metrics, err := MetricsReport(sampleRecords(t))
	require.NoError(t, err)
	require.Len(t, metrics, 2)

	m := metrics[0]
	require.Equal(t, 1, m.Rank)
	require.Equal(t, 2, m.GovCount)
	require.Equal(t, 2, m.NewsCount)
	require.Equal(t, 4, m.TotalCount)
	require.InDelta(t, 14.04, m.Score, 1e-9)
	require.InDelta(t, 0.75, m.AvgSimilarity, 1e-9)
	require.Equal(t, 0.9, m.MaxSimilarity)
	require.Equal(t, 0.6, m.MinSimilarity)
	require.Equal(t, []string{"budget"}, m.Keywords, "keywords are aggregated once")

	empty := metrics[1]
	require.Equal(t, 2, empty.Rank)
	require.Zero(t, empty.NewsCount)
	require.Zero(t, empty.AvgSimilarity)
	require.Equal(t, []string{"fishing"}, empty.Keywords)
}

func TestMetricsReportRejectsBadArticles(t *testing.T) {
	_, err := MetricsReport([]ClusterRecord{{Articles: json.RawMessage(`{"not": "a list"}`)}})
	require.ErrorContains(t, err, "cluster 1")
}

func TestTitlesReport(t *testing.T) {
	now := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	report, err := TitlesReport(sampleRecords(t), now)
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(report, "# Cluster Report\n"))
	require.Contains(t, report, "16 October 2026, 2 clusters")
	require.Contains(t, report, "| 1 | 14.0400 | 2 | 2 | 0.7500 | 0.9000 | 0.6000 | budget |")
	require.Contains(t, report, "## Cluster 1 (score 14.0400)")
	require.Contains(t, report, "- **[PRIMARY]** Budget act `budget`")
	require.Contains(t, report, "- **[SECONDARY]** Budget amendment `budget`")
	require.Contains(t, report, "- (0.9000) [Parliament passes budget](https://news.example/budget)")
	require.Contains(t, report, "*No supporting news articles.*")
	require.Contains(t, report, "- News articles: 2")

	first := strings.Index(report, "## Cluster 1")
	second := strings.Index(report, "## Cluster 2")
	require.Less(t, first, second)
}

func TestTitlesReportEmpty(t *testing.T) {
	report, err := TitlesReport(nil, time.Now())
	require.NoError(t, err)
	require.Contains(t, report, "No clusters generated.")
}

func TestGenerateCompleteHTML(t *testing.T) {
	now := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	report, err := TitlesReport(sampleRecords(t), now)
	require.NoError(t, err)

	page, err := generateCompleteHTML(report, now)
	require.NoError(t, err)
	require.Contains(t, page, "<title>Cluster Report - 16 October 2026</title>")
	require.Contains(t, page, "<table>")
	require.Contains(t, page, `<a href="https://news.example/budget">Parliament passes budget</a>`)
	require.Contains(t, page, "font-family")
}

func TestTitlesReportEscapesMarkdown(t *testing.T) {
	sim := 0.8
	articles, err := json.Marshal([]ClusterDocument{
		{Source: SourceGov, Type: TypePrimary, Title: "Act [2] ratified", Keyword: "tax|duty"},
		{Source: SourceNews, Type: TypeNews, Title: "Port deal ] signed", URL: "https://news.example/port", Similarity: &sim},
	})
	require.NoError(t, err)
	records := []ClusterRecord{{Score: 2.5, CenterEmbedding: []float64{1, 0}, Articles: articles}}

	now := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	report, err := TitlesReport(records, now)
	require.NoError(t, err)
	require.Contains(t, report, `| 1 | 2.5000 | 1 | 1 | 0.8000 | 0.8000 | 0.8000 | tax\|duty |`)
	require.Contains(t, report, `- **[PRIMARY]** Act \[2\] ratified`)
	require.Contains(t, report, `- (0.8000) [Port deal \] signed](https://news.example/port)`)

	page, err := generateCompleteHTML(report, now)
	require.NoError(t, err)
	require.Contains(t, page, "tax|duty</td>", "the keyword stays in one cell")
	require.NotContains(t, page, "<td>duty")
	require.Contains(t, page, `<a href="https://news.example/port">Port deal ] signed</a>`)
	require.Contains(t, page, "Act [2] ratified")
}
