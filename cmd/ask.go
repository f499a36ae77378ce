package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lorekeep/lorekeep/internal/retrieve"
)

var askDocType string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question grounded in the indexed content",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askDocType, "type", "", "restrict context to one content type (e.g. blog, kb)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("question is empty")
	}

	var opts []retrieve.Option
	if askDocType != "" {
		opts = append(opts, retrieve.WithDocType(askDocType))
	}
	res, err := a.Retriever.Retrieve(ctx, question, opts...)
	if err != nil {
		return fmt.Errorf("retrieving context: %w", err)
	}

	_, err = a.Synthesizer.Answer(ctx, question, res, nil,
		func(_ context.Context, fragment string) error {
			_, werr := fmt.Fprint(os.Stdout, fragment)
			return werr
		})
	if err != nil {
		return fmt.Errorf("generating answer: %w", err)
	}
	fmt.Println()
	return nil
}
