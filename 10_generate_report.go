package pulse

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

//go:embed templates/report.html
var htmlTemplate string

//go:embed templates/styles.css
var cssStyles string

// ClusterMetrics summarizes one ranked cluster.
type ClusterMetrics struct {
	Rank          int      `json:"rank"`
	GovCount      int      `json:"gov_count"`
	NewsCount     int      `json:"news_count"`
	TotalCount    int      `json:"total_count"`
	Score         float64  `json:"score"`
	AvgSimilarity float64  `json:"avg_similarity"`
	MaxSimilarity float64  `json:"max_similarity"`
	MinSimilarity float64  `json:"min_similarity"`
	Keywords      []string `json:"keywords"`
}

var GenerateReportCmd = &cobra.Command{
	Use:   "generate-report",
	Short: "Generate cluster report in markdown and HTML formats",
	Run: func(cmd *cobra.Command, args []string) {
		records, err := loadReportRecords(cmd)
		if err != nil {
			log.Printf("Failed to load clusters: %v", err)
			return
		}

		report, err := TitlesReport(records, time.Now())
		if err != nil {
			log.Printf("Failed to build report: %v", err)
			return
		}
		if err := os.WriteFile("report.md", []byte(report), 0644); err != nil {
			log.Printf("Failed to write report file: %v", err)
			return
		}
		log.Println("Report generated: report.md")

		htmlContent, err := generateCompleteHTML(report, time.Now())
		if err != nil {
			log.Printf("Failed to render HTML report: %v", err)
			return
		}
		if err := os.WriteFile("report.html", []byte(htmlContent), 0644); err != nil {
			log.Printf("Failed to write HTML file: %v", err)
			return
		}
		log.Println("HTML report generated: report.html")

		metrics, err := MetricsReport(records)
		if err != nil {
			log.Printf("Failed to compute metrics: %v", err)
			return
		}
		data, err := json.MarshalIndent(metrics, "", "  ")
		if err != nil {
			log.Printf("Failed to marshal metrics: %v", err)
			return
		}
		if err := os.WriteFile("metrics.json", data, 0644); err != nil {
			log.Printf("Failed to write metrics file: %v", err)
			return
		}
		log.Println("Metrics generated: metrics.json")
	},
}

func init() {
	GenerateReportCmd.Flags().String("in", "", "Read clusters from this file instead of the cluster store")
}

func loadReportRecords(cmd *cobra.Command) ([]ClusterRecord, error) {
	if in, _ := cmd.Flags().GetString("in"); in != "" {
		return readRecords(in)
	}
	return latestStoredRecords(cmd.Context())
}

func latestStoredRecords(ctx context.Context) ([]ClusterRecord, error) {
	store, err := OpenStore(Config.StoreDSN)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("Failed to close store: %v", err)
		}
	}()
	runID, records, err := store.LatestClusters(ctx)
	if err != nil {
		return nil, err
	}
	log.Printf("Loaded %d clusters of run %s", len(records), runID)
	return records, nil
}

// MetricsReport computes counts, similarity statistics and the government
// keywords of every record, in rank order.
func MetricsReport(records []ClusterRecord) ([]ClusterMetrics, error) {
	metrics := make([]ClusterMetrics, 0, len(records))
	for i, r := range records {
		docs, err := r.Documents()
		if err != nil {
			return nil, fmt.Errorf("failed to read cluster %d: %w", i+1, err)
		}

		m := ClusterMetrics{Rank: i + 1, Score: r.Score, Keywords: []string{}}
		var sims []float64
		for _, d := range docs {
			switch d.Source {
			case SourceGov:
				m.GovCount++
				if d.Keyword != "" && !slices.Contains(m.Keywords, d.Keyword) {
					m.Keywords = append(m.Keywords, d.Keyword)
				}
			case SourceNews:
				m.NewsCount++
				if d.Similarity != nil {
					sims = append(sims, *d.Similarity)
				}
			}
		}
		m.TotalCount = m.GovCount + m.NewsCount

		if len(sims) > 0 {
			total := 0.0
			for _, s := range sims {
				total += s
			}
			m.AvgSimilarity = round4(total / float64(len(sims)))
			m.MaxSimilarity = slices.Max(sims)
			m.MinSimilarity = slices.Min(sims)
		}
		metrics = append(metrics, m)
	}
	return metrics, nil
}

// TitlesReport renders the ranked clusters as markdown: a metrics table, then
// each cluster's government documents and news articles, then a summary.
func TitlesReport(records []ClusterRecord, now time.Time) (string, error) {
	metrics, err := MetricsReport(records)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("# Cluster Report\n\n")
	sb.WriteString(fmt.Sprintf("*%s, %d clusters*\n\n", now.Format("2 January 2006"), len(records)))

	if len(records) == 0 {
		sb.WriteString("No clusters generated.\n")
		return sb.String(), nil
	}

	sb.WriteString("| Rank | Score | Gov | News | Avg sim | Max sim | Min sim | Keywords |\n")
	sb.WriteString("|---:|---:|---:|---:|---:|---:|---:|---|\n")
	for _, m := range metrics {
		sb.WriteString(fmt.Sprintf("| %d | %.4f | %d | %d | %.4f | %.4f | %.4f | %s |\n",
			m.Rank, m.Score, m.GovCount, m.NewsCount,
			m.AvgSimilarity, m.MaxSimilarity, m.MinSimilarity, escapeMarkdown(strings.Join(m.Keywords, ", "))))
	}
	sb.WriteString("\n")

	govTotal, newsTotal := 0, 0
	for i, r := range records {
		docs, err := r.Documents()
		if err != nil {
			return "", fmt.Errorf("failed to read cluster %d: %w", i+1, err)
		}
		m := metrics[i]
		govTotal += m.GovCount
		newsTotal += m.NewsCount

		sb.WriteString(fmt.Sprintf("## Cluster %d (score %.4f)\n\n", m.Rank, m.Score))
		sb.WriteString("### Government documents\n\n")
		for _, d := range docs {
			if d.Source != SourceGov {
				continue
			}
			sb.WriteString(fmt.Sprintf("- **[%s]** %s%s\n", strings.ToUpper(string(d.Type)), linkTitle(d), keywordSuffix(d.Keyword)))
		}
		sb.WriteString("\n")

		if m.NewsCount == 0 {
			sb.WriteString("*No supporting news articles.*\n\n")
			continue
		}
		sb.WriteString("### News articles\n\n")
		for _, d := range docs {
			if d.Source != SourceNews {
				continue
			}
			sim := 0.0
			if d.Similarity != nil {
				sim = *d.Similarity
			}
			sb.WriteString(fmt.Sprintf("- (%.4f) %s%s\n", sim, linkTitle(d), keywordSuffix(d.Keyword)))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Summary\n\n")
	sb.WriteString(fmt.Sprintf("- Clusters: %d\n", len(records)))
	sb.WriteString(fmt.Sprintf("- Government documents: %d\n", govTotal))
	sb.WriteString(fmt.Sprintf("- News articles: %d\n", newsTotal))
	sb.WriteString(fmt.Sprintf("- Top score: %.4f\n", metrics[0].Score))
	return sb.String(), nil
}

func linkTitle(d ClusterDocument) string {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		title = truncateString(strings.TrimSpace(d.Text), 80)
	}
	title = escapeMarkdown(strings.ReplaceAll(title, "\n", " "))
	if d.URL == "" {
		return title
	}
	return fmt.Sprintf("[%s](%s)", title, d.URL)
}

var markdownEscaper = strings.NewReplacer(`\`, `\\`, "|", `\|`, "[", `\[`, "]", `\]`)

// escapeMarkdown keeps source text from closing a table cell or link text.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func keywordSuffix(keyword string) string {
	if keyword == "" {
		return ""
	}
	return fmt.Sprintf(" `%s`", keyword)
}

// generateCompleteHTML renders the markdown report into the embedded page template.
func generateCompleteHTML(markdownContent string, now time.Time) (string, error) {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Table,
			extension.Linkify,
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)

	var buf bytes.Buffer
	if err := md.Convert([]byte(markdownContent), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown to HTML: %w", err)
	}

	tmpl, err := template.New("report").Parse(htmlTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML template: %w", err)
	}

	data := struct {
		Title string
		Date  string
		Body  template.HTML
		CSS   template.CSS
	}{
		Title: "Cluster Report",
		Date:  now.Format("2 January 2006"),
		Body:  template.HTML(buf.String()),
		CSS:   template.CSS(cssStyles),
	}

	var result bytes.Buffer
	if err := tmpl.Execute(&result, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return result.String(), nil
}
