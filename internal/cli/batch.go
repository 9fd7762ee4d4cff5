package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"docqa/internal/adapter/fs"
	"docqa/internal/domain"
)

var (
	batchIncludes  []string
	batchExcludes  []string
	batchQuestions []string
	batchFile      string
	batchJSON      bool
)

var batchCmd = &cobra.Command{
	Use:   "batch DIR",
	Short: "Answer the same questions for every document in a directory",
	Long: `Walk DIR for PDF, DOCX and email files and answer the same questions for
each one. A document that cannot be fetched or parsed is reported and skipped.

Examples:
  docqa batch ./policies --questions-file questions.yaml
  docqa batch ./policies --include "**/*.pdf" --exclude "archive/**" -q "Is dental covered?"`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().StringSliceVar(&batchIncludes, "include", nil, "glob patterns to include (default: all supported formats)")
	batchCmd.Flags().StringSliceVar(&batchExcludes, "exclude", nil, "glob patterns to exclude")
	batchCmd.Flags().StringArrayVarP(&batchQuestions, "question", "q", nil, "question to answer (repeatable)")
	batchCmd.Flags().StringVar(&batchFile, "questions-file", "", "YAML file with questions")
	batchCmd.Flags().BoolVar(&batchJSON, "json", false, "output as JSON")
}

type batchResult struct {
	Path    string                `json:"path"`
	Answers []string              `json:"answers,omitempty"`
	Results []domain.AnswerResult `json:"results,omitempty"`
	Error   string                `json:"error,omitempty"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	walker, err := fs.NewWalker(batchIncludes, batchExcludes)
	if err != nil {
		return err
	}
	files, err := walker.Walk(args[0])
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", args[0], err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no documents found under %s", args[0])
	}

	var questions []string
	if batchFile != "" {
		req, err := loadQuestionsFile(batchFile)
		if err != nil {
			return err
		}
		questions = req.Questions
	}
	questions = append(questions, batchQuestions...)
	if len(questions) == 0 {
		return fmt.Errorf("at least one question is required (-q or --questions-file)")
	}

	a, err := newApp(GetConfig(), GetRootDir())
	if err != nil {
		return err
	}
	defer a.Close()

	var bar *progressbar.ProgressBar
	if !batchJSON {
		bar = newProgressBar(len(files), "[cyan]Documents[reset]")
	}

	results := make([]batchResult, 0, len(files))
	failed := 0
	for _, f := range files {
		res := batchResult{Path: f.RelPath}
		resp, err := a.pipeline.Run(cmd.Context(), domain.Request{DocumentURL: f.URL(), Questions: questions})
		if err != nil {
			failed++
			res.Error = err.Error()
			slog.Warn("document skipped", "component", "batch", "path", f.RelPath, "error", err)
		} else {
			res.Answers = resp.Answers
			res.Results = resp.Results
		}
		results = append(results, res)
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	out := cmd.OutOrStdout()
	if batchJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			fmt.Fprintf(out, "=== %s ===\n", r.Path)
			if r.Error != "" {
				fmt.Fprintf(out, "    error: %s\n\n", r.Error)
				continue
			}
			printResults(out, r.Results)
		}
		fmt.Fprintf(out, "Documents: %d answered, %d failed\n", len(files)-failed, failed)
	}

	if failed == len(files) {
		return fmt.Errorf("every document failed")
	}
	return nil
}
