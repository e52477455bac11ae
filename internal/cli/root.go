package cli

import (
	"context"

	"aceinterview/internal/backend"
	"aceinterview/internal/common"
	"aceinterview/internal/config"
	"aceinterview/internal/errors"

	"github.com/spf13/cobra"
)

// Define custom private types for context keys.
type configKeyType struct{}
type loggerKeyType struct{}

// Use variables of these types as the keys.
var configKey = configKeyType{}
var loggerKey = loggerKeyType{}

var rootCmd = &cobra.Command{
	Use:   "aceinterview",
	Short: "Practice job interviews against the Ace Interview backend",
	Long: `Ace Interview is a command-line client for mock interviews. It sends your
resume to the interview backend, generates questions for a chosen domain and
level, evaluates your answers and summarizes the scores and feedback.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute(ctx context.Context, cfg *config.Config, logger *errors.Logger) error {
	// Attach the config and logger to the context, making them available to all subcommands
	ctx = context.WithValue(ctx, configKey, cfg)
	ctx = context.WithValue(ctx, loggerKey, logger)
	rootCmd.SetContext(ctx)
	return rootCmd.Execute()
}

// getConfigFromContext is a helper function to get config from context
func getConfigFromContext(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey).(*config.Config); ok {
		return cfg
	}
	panic("config not found in context") // Should not happen if properly initialized
}

// getLoggerFromContext is a helper function to get logger from context
func getLoggerFromContext(ctx context.Context) *errors.Logger {
	if logger, ok := ctx.Value(loggerKey).(*errors.Logger); ok {
		return logger
	}
	panic("logger not found in context") // Should not happen if properly initialized
}

// addOutputFlags registers --output and --format on cmd
func addOutputFlags(cmd *cobra.Command, cmdConfig *common.CommandConfig) {
	cmd.Flags().StringVarP(&cmdConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	cmd.Flags().StringVar(&cmdConfig.OutputFormat, "format", "", "Output format: json, text, or markdown")

	_ = cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return getConfigFromContext(cmd.Context()).App.SupportedFormats, cobra.ShellCompDirectiveNoFileComp
	})
}

// resolveOutputFormat applies the configured default format and validates it
func resolveOutputFormat(cmd *cobra.Command, cmdConfig *common.CommandConfig) error {
	cfg := getConfigFromContext(cmd.Context())
	if cmdConfig.OutputFormat == "" {
		cmdConfig.OutputFormat = cfg.App.DefaultFormat
	}
	return common.ValidateOutputFormat(cmdConfig.OutputFormat, cfg.App.SupportedFormats)
}

// newBackend creates the HTTP client for the interview backend
func newBackend(cmd *cobra.Command) backend.Backend {
	return backend.NewClient(getConfigFromContext(cmd.Context()), getLoggerFromContext(cmd.Context()))
}

func init() {
	rootCmd.AddCommand(parseResumeCmd)
	rootCmd.AddCommand(questionsCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(practiceCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
}
