package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const maxRequestBody = 32 << 20

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored clusters and on-demand clustering over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := OpenStore(Config.StoreDSN)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("Failed to close store: %v", err)
			}
		}()

		embedder, closeEmbedder, err := NewEmbedderFromConfig()
		if err != nil {
			return err
		}
		defer closeEmbedder()

		tagger, err := NewProseTagger()
		if err != nil {
			return err
		}
		clusterer := NewClusterer(tagger, embedder).
			WithThresholds(Config.SimilarityThreshold, Config.MergeThreshold)

		httpServer := &http.Server{
			Addr:              Config.APIAddr,
			Handler:           NewRouter(store, clusterer),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      10 * time.Minute,
		}

		// the root command cancels this context on SIGINT and SIGTERM
		ctx := cmd.Context()

		errCh := make(chan error, 1)
		go func() {
			log.Printf("API server listening on %s", Config.APIAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		log.Println("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	},
}

type server struct {
	store     ClusterStore
	clusterer *Clusterer
}

type errorResponse struct {
	Error string `json:"error"`
}

// ClusterRequest is the body of POST /clusters.
type ClusterRequest struct {
	Gov   []Document `json:"gov"`
	News  []Document `json:"news"`
	Store bool       `json:"store"`
}

// ClustersResponse lists ranked cluster records.
type ClustersResponse struct {
	RunID    string          `json:"run_id,omitempty"`
	Clusters []ClusterRecord `json:"clusters"`
}

// NewRouter builds the HTTP API over a cluster store and a clusterer.
func NewRouter(store ClusterStore, clusterer *Clusterer) http.Handler {
	s := &server{store: store, clusterer: clusterer}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/clusters", s.handleLatest)
	r.Get("/clusters/metrics", s.handleMetrics)
	r.Post("/clusters", s.handleCluster)
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleLatest(w http.ResponseWriter, r *http.Request) {
	runID, records, err := s.store.LatestClusters(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		records = records[:min(limit, len(records))]
	}
	if records == nil {
		records = []ClusterRecord{}
	}
	writeJSON(w, http.StatusOK, ClustersResponse{RunID: runID, Clusters: records})
}

func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	_, records, err := s.store.LatestClusters(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	metrics, err := MetricsReport(records)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (s *server) handleCluster(w http.ResponseWriter, r *http.Request) {
	var req ClusterRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	for i := range req.Gov {
		req.Gov[i].Source = SourceGov
	}
	for i := range req.News {
		req.News[i].Source = SourceNews
	}

	clusters, err := s.clusterer.Run(r.Context(), req.Gov, req.News)
	if errors.Is(err, ErrNoGovernmentDocuments) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		log.Printf("Error in clustering: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	records, err := Records(clusters)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	resp := ClustersResponse{Clusters: records}
	if req.Store && len(records) > 0 {
		resp.RunID = uuid.NewString()
		if err := s.store.ReplaceClusters(r.Context(), resp.RunID, records); err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}
