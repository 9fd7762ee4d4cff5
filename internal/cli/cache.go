package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"docqa/internal/adapter/cache"
)

var (
	cacheJSON      bool
	cacheKeyDoc    string
	cacheKeyQuery  string
	cacheListLimit int
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the answer cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		answers, err := openAnswerCache(GetConfig(), GetRootDir())
		if err != nil {
			return err
		}

		entries := answers.Entries()
		if cacheListLimit > 0 && len(entries) > cacheListLimit {
			entries = entries[:cacheListLimit]
		}

		out := cmd.OutOrStdout()
		if cacheJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}

		fmt.Fprintf(out, "%d cached answers in %s\n\n", answers.Len(), answers.Path())
		for _, e := range entries {
			fmt.Fprintf(out, "%s  %s\n", truncate(e.Key, 12), truncate(e.Answer, 100))
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached answer",
	RunE: func(cmd *cobra.Command, args []string) error {
		answers, err := openAnswerCache(GetConfig(), GetRootDir())
		if err != nil {
			return err
		}
		n, err := answers.Clear()
		if err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached answers\n", n)
		return nil
	},
}

var cacheKeyCmd = &cobra.Command{
	Use:   "key",
	Short: "Print the cache key for a document and question",
	Long: `Print the cache key for a document and question. Useful for inserting
answers into the cache file by hand.

Example:
  docqa cache key --doc https://example.com/policy.pdf -q "What is the grace period?"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key := cache.Key(cacheKeyDoc, cacheKeyQuery)
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, key)

		answers, err := openAnswerCache(GetConfig(), GetRootDir())
		if err != nil {
			return err
		}
		if answer, ok := answers.Get(key); ok {
			fmt.Fprintf(out, "cached: %s\n", answer)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheListCmd, cacheClearCmd, cacheKeyCmd)

	cacheListCmd.Flags().BoolVar(&cacheJSON, "json", false, "output as JSON")
	cacheListCmd.Flags().IntVarP(&cacheListLimit, "limit", "n", 0, "show at most n entries")

	cacheKeyCmd.Flags().StringVar(&cacheKeyDoc, "doc", "", "document URL (required)")
	cacheKeyCmd.Flags().StringVarP(&cacheKeyQuery, "question", "q", "", "question (required)")
	_ = cacheKeyCmd.MarkFlagRequired("doc")
	_ = cacheKeyCmd.MarkFlagRequired("question")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
