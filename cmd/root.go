package cmd

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Davincible/llm-bridge/internal/config"
)

const (
	AppName = "llm-bridge"
	Version = "0.1.0"

	// HomeEnv overrides the state directory holding config and PID file.
	HomeEnv = "LLMB_HOME"
)

var (
	logger  *slog.Logger
	baseDir string
	cfgMgr  *config.Manager
)

func init() {
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	baseDir = os.Getenv(HomeEnv)
	if baseDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			logger.Error("Failed to get home directory", "error", err)
			os.Exit(1)
		}
		baseDir = filepath.Join(homeDir, "."+AppName)
	}

	cfgMgr = config.NewManager(baseDir)
}

var rootCmd = &cobra.Command{
	Use:   "llmb",
	Short: "LLM Bridge - OpenAI-compatible gateway for Claude, Gemini and OpenAI",
	Long: `llmb exposes OpenAI chat completions and Claude messages endpoints and
forwards each request to the upstream that owns the requested model,
translating payloads and streams between provider formats.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		setupLogging(cfgMgr.Get().LogLevel, verbose)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(routeCmd)
}

func setupLogging(level string, verbose bool) {
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level, verbose),
	}))
	slog.SetDefault(logger)
}

func parseLevel(level string, verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}

	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
