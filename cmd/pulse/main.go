package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/astrapod/pulse"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Error loading .env file: %v", err)
	}

	rootCmd := &cobra.Command{
		Use:   "pulse",
		Short: "Government and news document clustering CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return pulse.LoadConfig()
		},
		SilenceUsage: true,
	}

	// Add all commands from the pulse package
	rootCmd.AddCommand(pulse.EmbedDocumentsCmd)
	rootCmd.AddCommand(pulse.ClusterCmd)
	rootCmd.AddCommand(pulse.GenerateReportCmd)
	rootCmd.AddCommand(pulse.SchemaCmd)
	rootCmd.AddCommand(pulse.ServeCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cleanCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		log.Fatal(err)
	}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: cluster -> generate-report",
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Println("Running full pipeline...")
		if err := pulse.ClusterCmd.RunE(cmd, args); err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")
		if err := cmd.Flags().Set("in", out); err != nil {
			return err
		}
		pulse.GenerateReportCmd.Run(cmd, args)
		log.Println("Pipeline complete.")
		return nil
	},
}

func init() {
	runCmd.Flags().AddFlagSet(pulse.ClusterCmd.Flags())
	runCmd.Flags().AddFlagSet(pulse.GenerateReportCmd.Flags())
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean clusters output, reports and the embedding cache",
	Run: func(cmd *cobra.Command, args []string) {
		files, err := os.ReadDir("clusters")
		if err != nil && !os.IsNotExist(err) {
			log.Printf("Failed to read clusters: %v", err)
		}
		for _, file := range files {
			if file.IsDir() {
				continue
			}
			if err := os.Remove(filepath.Join("clusters", file.Name())); err != nil {
				log.Printf("Failed to remove %s: %v", file.Name(), err)
			}
		}

		for _, name := range []string{"report.md", "report.html", "metrics.json", pulse.Config.EmbeddingCache} {
			if name == "" {
				continue
			}
			if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
				log.Printf("Failed to remove %s: %v", name, err)
			}
		}

		log.Println("Cleaned clusters directory, reports and embedding cache.")
	},
}
