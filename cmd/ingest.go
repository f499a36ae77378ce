package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lorekeep/lorekeep/internal/ingest"
)

var fullReingest bool

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Sync the vector index with the document store",
	Long: `Pulls changed documents from the document store, chunks and embeds
the content that actually changed, and updates the vector index.

By default only changes since the last run are processed. With --full
the whole store is rescanned and chunks for documents that no longer
exist are pruned; unchanged chunks are still skipped by content hash.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&fullReingest, "full", false, "rescan the whole document store")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var summary *ingest.Summary
	if fullReingest {
		summary, err = a.Ingestor.RunFull(ctx)
	} else {
		summary, err = a.Ingestor.RunIncremental(ctx)
	}
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Printf("Run %s finished in %s\n", summary.RunID, summary.Finished.Sub(summary.Started).Round(time.Millisecond))
	fmt.Printf("  documents: %d\n", summary.Documents)
	fmt.Printf("  chunks embedded: %d\n", summary.Embedded)
	fmt.Printf("  chunks unchanged: %d\n", summary.Skipped)
	fmt.Printf("  rows deleted: %d\n", summary.Deleted)

	if !summary.OK() {
		fmt.Fprintf(os.Stderr, "\n%d document(s) failed:\n", len(summary.Failures))
		for _, f := range summary.Failures {
			fmt.Fprintf(os.Stderr, "  [%s] %s: %v\n", f.Partition, f.DocumentID, f.Err)
		}
		return fmt.Errorf("%d document(s) failed", len(summary.Failures))
	}
	return nil
}
