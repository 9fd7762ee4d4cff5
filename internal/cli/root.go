package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"docqa/config"
	"docqa/internal/logger"
)

var (
	cfgFile  string
	cfg      *config.Config
	rootDir  string
	envFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Answer questions about policy documents",
	Long: `docqa downloads a PDF, DOCX or email document, indexes it with hybrid
semantic and BM25 retrieval, and answers natural-language questions about it
with a language model. Answers are cached per document and question.

Example usage:
  docqa ask --doc https://example.com/policy.pdf -q "What is the grace period?"
  docqa batch ./policies --questions-file questions.yaml
  docqa cache list`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if err := loadEnv(); err != nil {
			return err
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

		return nil
	},
}

// loadEnv reads API keys from a .env file. A missing default file is fine;
// a missing explicit --env file is not.
func loadEnv() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./docqa.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "state directory (default is current directory)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "dotenv file with API keys (default is ./.env when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}
