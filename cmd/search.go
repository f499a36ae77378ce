package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lorekeep/lorekeep/internal/retrieve"
)

var (
	searchDocType string
	searchTopK    int
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Show raw similarity matches for a query",
	Long: `Embeds the query and prints the ranked chunks the retriever would
hand to the model, with their similarity scores. Useful for checking
what the index actually contains.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchDocType, "type", "", "restrict to one content type (e.g. blog, kb)")
	searchCmd.Flags().IntVarP(&searchTopK, "top", "k", 0, "number of matches to return")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	query := strings.TrimSpace(strings.Join(args, " "))

	var opts []retrieve.Option
	if searchDocType != "" {
		opts = append(opts, retrieve.WithDocType(searchDocType))
	}
	if searchTopK > 0 {
		opts = append(opts, retrieve.WithTopK(searchTopK))
	}

	res, err := a.Retriever.Retrieve(ctx, query, opts...)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}
	if res.Empty() {
		fmt.Println("No matches.")
		return nil
	}

	for i, match := range res.Chunks {
		c := match.Chunk
		fmt.Printf("%d. %s#%d (%s, similarity %.3f)\n", i+1, c.DocumentID, c.Ordinal, c.DocType, match.Similarity)
		fmt.Printf("   %s\n", snippet(c.Content, 160))
	}
	if res.Truncated {
		fmt.Printf("\n(%d tokens used; lower-ranked matches dropped to fit the budget)\n", res.TokensUsed)
	}
	return nil
}

func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
