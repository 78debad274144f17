package pulse

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func clusterCommandFor(t *testing.T, govPath, newsPath, out string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{}
	addInputFlags(cmd)
	cmd.Flags().String("out", out, "")
	cmd.Flags().Bool("no-store", true, "")
	require.NoError(t, cmd.Flags().Set("gov", govPath))
	require.NoError(t, cmd.Flags().Set("news", newsPath))
	return cmd
}

func TestClusterCmdWithoutGovernmentDocumentsClearsOutput(t *testing.T) {
	prev := Config.Lookback
	Config.Lookback = ""
	t.Cleanup(func() { Config.Lookback = prev })

	dir := t.TempDir()
	out := filepath.Join(dir, "clusters", "clusters.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(out), 0755))
	require.NoError(t, os.WriteFile(out, []byte(`[{"score": 9.5, "center_embedding": [1], "articles": []}]`), 0644))

	news := writeFile(t, "news.json", `[{"title": "Budget passes"}]`)
	cmd := clusterCommandFor(t, filepath.Join(dir, "missing-gov.json"), news, out)
	require.NoError(t, ClusterCmd.RunE(cmd, nil))

	records, err := readRecords(out)
	require.NoError(t, err)
	require.Empty(t, records, "an earlier run's clusters are not left behind")
}

func TestLoadInputTablesAppliesLookback(t *testing.T) {
	prev := Config.Lookback
	Config.Lookback = "P1D"
	t.Cleanup(func() { Config.Lookback = prev })

	gov := writeFile(t, "gov.json", `[
		{"title": "Recent decree", "published_at": "2999-01-01T00:00:00Z"},
		{"title": "Old decree", "published_at": "2001-01-01T00:00:00Z"}
	]`)
	news := writeFile(t, "news.jsonl", `{"title": "Undated article"}`)

	govDocs, newsDocs, err := loadInputTables(clusterCommandFor(t, gov, news, ""))
	require.NoError(t, err)
	require.Len(t, govDocs, 1)
	require.Equal(t, "Recent decree", govDocs[0].Title)
	require.Len(t, newsDocs, 1)
}
