package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"docqa/internal/usecase"
)

var (
	promptDoc      string
	promptQuestion string
	promptTopK     int
	promptChunks   bool
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Print the answer prompt for a question without calling the model",
	Long: `Index the document, retrieve context for the question and print the exact
prompt the answer model would receive. No generation credentials are needed.

Examples:
  docqa prompt --doc ./policy.pdf -q "What is the waiting period for cataract surgery?"
  docqa prompt --doc ./policy.pdf -q "Is dental covered?" -k 8 --chunks`,
	RunE: runPromptCmd,
}

func init() {
	rootCmd.AddCommand(promptCmd)
	promptCmd.Flags().StringVar(&promptDoc, "doc", "", "document URL or local path (required)")
	promptCmd.Flags().StringVarP(&promptQuestion, "question", "q", "", "question (required)")
	promptCmd.Flags().IntVarP(&promptTopK, "top-k", "k", 0, "number of context chunks (default from config)")
	promptCmd.Flags().BoolVar(&promptChunks, "chunks", false, "list retrieved chunks with scores and pages before the prompt")
	_ = promptCmd.MarkFlagRequired("doc")
	_ = promptCmd.MarkFlagRequired("question")
}

func runPromptCmd(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	a, err := newIndexApp(cfg, GetRootDir())
	if err != nil {
		return err
	}
	defer a.Close()

	idx, err := a.index.Build(cmd.Context(), promptDoc)
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}

	topK := cfg.Retrieve.TopK
	if promptTopK > 0 {
		topK = promptTopK
	}

	chunks, err := idx.Search(cmd.Context(), promptQuestion, topK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if promptChunks {
		fmt.Fprintf(out, "Retrieved %d of %d chunks (lexical: %v)\n", len(chunks), len(idx.Chunks), idx.Lexical != nil)
		for i, c := range chunks {
			fmt.Fprintf(out, "  [%d] score=%.4f page=%d chars=%d-%d  %s\n",
				i+1, c.Score, c.Chunk.Page, c.Chunk.Start, c.Chunk.End, truncate(c.Chunk.Text, 60))
		}
		fmt.Fprintln(out)
	}

	contexts := make([]string, len(chunks))
	for i, c := range chunks {
		contexts[i] = c.Chunk.Text
	}
	prompt, err := usecase.RenderPrompt(contexts, promptQuestion)
	if err != nil {
		return fmt.Errorf("failed to render prompt: %w", err)
	}

	fmt.Fprint(out, prompt)
	return nil
}
