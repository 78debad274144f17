package pulse

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const clustersFile = "clusters/clusters.json"

var ClusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Cluster news articles around government documents and rank the clusters",
	RunE: func(cmd *cobra.Command, args []string) error {
		gov, news, err := loadInputTables(cmd)
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")
		if len(gov) == 0 {
			// leave no stale clusters behind for generate-report
			log.Println("No government documents loaded, nothing to cluster")
			return writeRecords(out, []ClusterRecord{})
		}

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
		clusters, err := clusterer.Run(cmd.Context(), gov, news)
		if err != nil {
			return err
		}
		records, err := Records(clusters)
		if err != nil {
			return err
		}

		if err := writeRecords(out, records); err != nil {
			return err
		}
		log.Printf("Wrote %d clusters to %s", len(records), out)

		if len(records) == 0 {
			log.Println("No clusters generated")
			return nil
		}
		if noStore, _ := cmd.Flags().GetBool("no-store"); noStore {
			return nil
		}
		return storeRecords(cmd, records)
	},
}

func init() {
	addInputFlags(ClusterCmd)
	ClusterCmd.Flags().String("out", clustersFile, "Path of the ranked clusters JSON file")
	ClusterCmd.Flags().Bool("no-store", false, "Skip saving clusters to the cluster store")
}

// addInputFlags registers the input table flags shared by the pipeline commands.
func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().String("gov", "input/gov.json", "Government documents (JSON array or JSON lines)")
	cmd.Flags().String("news", "input/news.json", "News articles (JSON array or JSON lines)")
}

// loadInputTables reads both input tables named by the command's flags and
// applies the configured lookback window.
func loadInputTables(cmd *cobra.Command) (gov, news []Document, err error) {
	govPath, _ := cmd.Flags().GetString("gov")
	newsPath, _ := cmd.Flags().GetString("news")

	if gov, err = LoadDocuments(govPath, SourceGov); err != nil {
		return nil, nil, err
	}
	if news, err = LoadDocuments(newsPath, SourceNews); err != nil {
		return nil, nil, err
	}

	if Config.Lookback != "" {
		lookback, err := parseLookback(Config.Lookback)
		if err != nil {
			return nil, nil, err
		}
		now := time.Now()
		gov = FilterRecent(gov, lookback, now)
		news = FilterRecent(news, lookback, now)
	}

	log.Printf("Loaded %d government documents and %d news articles", len(gov), len(news))
	return gov, news, nil
}

func writeRecords(path string, records []ClusterRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal clusters: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write clusters file: %w", err)
	}
	return nil
}

// readRecords loads a clusters file written by the cluster command.
func readRecords(path string) ([]ClusterRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read clusters file: %w", err)
	}
	var records []ClusterRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse clusters: %w", err)
	}
	return records, nil
}

func storeRecords(cmd *cobra.Command, records []ClusterRecord) error {
	store, err := OpenStore(Config.StoreDSN)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("Failed to close store: %v", err)
		}
	}()
	return store.ReplaceClusters(cmd.Context(), uuid.NewString(), records)
}
