package pulse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchemas(t *testing.T) {
	schemas := Schemas()
	require.Contains(t, schemas, "document")
	require.Contains(t, schemas, "cluster_record")

	doc := schemas["document"]
	require.Equal(t, "object", doc.Type)
	_, ok := doc.Properties.Get("title")
	require.True(t, ok)
	source, ok := doc.Properties.Get("source")
	require.True(t, ok)
	require.ElementsMatch(t, []any{"gov", "news"}, source.Enum)

	record := schemas["cluster_record"]
	articles, ok := record.Properties.Get("articles")
	require.True(t, ok)
	require.Equal(t, "array", articles.Type)
}
