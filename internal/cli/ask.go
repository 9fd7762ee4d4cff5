package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"docqa/internal/domain"
)

var (
	askDoc       string
	askQuestions []string
	askFile      string
	askJSON      bool
	askMetrics   bool
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer questions about one document",
	Long: `Download a document, index it and answer every question in order.
Previously answered questions are served from the answer cache.

Examples:
  docqa ask --doc https://example.com/policy.pdf -q "What is the grace period?"
  docqa ask --doc ./policy.docx -q "Is dental covered?" -q "Is maternity covered?" --json
  docqa ask --questions-file questions.yaml --metrics`,
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&askDoc, "doc", "", "document URL or local path")
	askCmd.Flags().StringArrayVarP(&askQuestions, "question", "q", nil, "question to answer (repeatable)")
	askCmd.Flags().StringVar(&askFile, "questions-file", "", "YAML file with questions")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output as JSON")
	askCmd.Flags().BoolVar(&askMetrics, "metrics", false, "print pipeline metrics to stderr after the run")
}

func runAsk(cmd *cobra.Command, args []string) error {
	req, err := buildRequest(askDoc, askQuestions, askFile)
	if err != nil {
		return err
	}

	a, err := newApp(GetConfig(), GetRootDir())
	if err != nil {
		return err
	}
	defer a.Close()

	if !askJSON && len(req.Questions) > 1 {
		bar := newProgressBar(len(req.Questions), "[cyan]Answering[reset]")
		a.pipeline.OnProgress(func(done, total int) {
			_ = bar.Set(done)
		})
	}

	resp, err := a.pipeline.Run(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if askJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
	} else {
		printResults(out, resp.Results)
	}

	if askMetrics {
		stats := a.llm.GetStats()
		errOut := cmd.ErrOrStderr()
		fmt.Fprintf(errOut, "\nModel calls: %d (%d failed), tokens: %d prompt / %d completion\n",
			stats.TotalCalls, stats.FailedCalls, stats.PromptTokens, stats.CompletionTokens)
		if err := printMetrics(errOut, a.registry); err != nil {
			return err
		}
	}
	return nil
}

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)
}

func printResults(w io.Writer, results []domain.AnswerResult) {
	for i, r := range results {
		fmt.Fprintf(w, "[%d] %s\n", i+1, r.Question)
		marker := string(r.Status)
		if r.FromCache {
			marker = "cached"
		}
		fmt.Fprintf(w, "    %s (%s)\n\n", r.Answer, marker)
	}
}

// printMetrics writes every sample in reg as "name{labels} value".
// Histograms are summarised by count and sum.
func printMetrics(w io.Writer, reg prometheus.Gatherer) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}

			switch {
			case m.GetCounter() != nil:
				lines = append(lines, fmt.Sprintf("%s %g", name, m.GetCounter().GetValue()))
			case m.GetGauge() != nil:
				lines = append(lines, fmt.Sprintf("%s %g", name, m.GetGauge().GetValue()))
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				lines = append(lines, fmt.Sprintf("%s count=%d sum=%.3f", name, h.GetSampleCount(), h.GetSampleSum()))
			}
		}
	}

	sort.Strings(lines)
	fmt.Fprintln(w, "\nMetrics:")
	for _, l := range lines {
		fmt.Fprintf(w, "  %s\n", l)
	}
	return nil
}
