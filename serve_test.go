package pulse

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *SQLStore) {
	t.Helper()
	emb, _, _ := threeGovFiveNews()
	store := openTestStore(t)
	srv := httptest.NewServer(NewRouter(store, NewClusterer(stubTagger{}, emb)))
	t.Cleanup(srv.Close)
	return srv, store
}

func postClusters(t *testing.T, url string, req ClusterRequest) *http.Response {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	resp, err := http.Post(url+"/clusters", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPostClustersStoresAndServes(t *testing.T) {
	srv, _ := newTestServer(t)
	_, gov, news := threeGovFiveNews()

	resp := postClusters(t, srv.URL, ClusterRequest{Gov: gov, News: news, Store: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var posted ClustersResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&posted))
	require.NotEmpty(t, posted.RunID)
	require.Len(t, posted.Clusters, 1)
	require.InDelta(t, 33.28, posted.Clusters[0].Score, 1e-3)

	latest, err := http.Get(srv.URL + "/clusters")
	require.NoError(t, err)
	defer latest.Body.Close()
	var stored ClustersResponse
	require.NoError(t, json.NewDecoder(latest.Body).Decode(&stored))
	require.Equal(t, posted.RunID, stored.RunID)
	require.Len(t, stored.Clusters, 1)

	metrics, err := http.Get(srv.URL + "/clusters/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	var m []ClusterMetrics
	require.NoError(t, json.NewDecoder(metrics.Body).Decode(&m))
	require.Len(t, m, 1)
	require.Equal(t, 3, m[0].GovCount)
	require.Equal(t, 5, m[0].NewsCount)
}

func TestPostClustersWithoutStore(t *testing.T) {
	srv, store := newTestServer(t)
	_, gov, news := threeGovFiveNews()

	resp := postClusters(t, srv.URL, ClusterRequest{Gov: gov, News: news})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	runID, records, err := store.LatestClusters(t.Context())
	require.NoError(t, err)
	require.Empty(t, runID)
	require.Empty(t, records)
}

func TestPostClustersErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	_, _, news := threeGovFiveNews()

	resp := postClusters(t, srv.URL, ClusterRequest{News: news})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postClusters(t, srv.URL, ClusterRequest{Gov: govDocs("unknown")})
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	bad, err := http.Post(srv.URL+"/clusters", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	defer bad.Body.Close()
	require.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestGetClustersLimit(t *testing.T) {
	srv, store := newTestServer(t)
	require.NoError(t, store.ReplaceClusters(t.Context(), "run-1", sampleRecords(t)))

	resp, err := http.Get(srv.URL + "/clusters?limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	var out ClustersResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Clusters, 1)

	bad, err := http.Get(srv.URL + "/clusters?limit=-1")
	require.NoError(t, err)
	defer bad.Body.Close()
	require.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestServeCmdStopsWhenContextCanceled(t *testing.T) {
	prev := Config
	t.Cleanup(func() { Config = prev })
	Config.Embedder = "ollama"
	Config.EmbeddingCache = ""
	Config.StoreDSN = filepath.Join(t.TempDir(), "clusters.db")
	Config.APIAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(t.Context())
	cmd := &cobra.Command{}
	cmd.SetContext(ctx)

	done := make(chan error, 1)
	go func() { done <- ServeCmd.RunE(cmd, nil) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(30 * time.Second):
		t.Fatal("serve did not shut down after its context was canceled")
	}
}
