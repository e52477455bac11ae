package cli

import (
	"context"
	"fmt"
	"time"

	"aceinterview/internal/common"
	"aceinterview/internal/config"
	"aceinterview/internal/errors"
	"aceinterview/internal/scoring"
	"aceinterview/internal/session"

	"github.com/spf13/cobra"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Show the scores and feedback of the cached practice session",
	Long: `Print the aggregated results of the practice session in the session store:
each answered question with its score, strengths, areas to improve and
detailed feedback, followed by the total score out of 10.

With --watch and the file session store, the results are printed again
whenever the session file changes, for example while practice runs in
another terminal.`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return resolveOutputFormat(cmd, &resultsConfig)
	},
	RunE: runResults,
}

var resultsConfig common.CommandConfig

var resultsWatch bool

func init() {
	addOutputFlags(resultsCmd, &resultsConfig)
	resultsCmd.Flags().BoolVarP(&resultsWatch, "watch", "w", false, "Re-render when the session file changes (file store only)")
}

// loadResults restores the cached session from store and aggregates it
func loadResults(ctx context.Context, store session.Store, cfg config.InterviewConfig, logger *errors.Logger) scoring.Results {
	sess := session.New(nil, store, cfg, logger)
	sess.Restore(ctx)
	return sess.Results()
}

func runResults(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	store, err := session.NewStore(cfg.Session)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	output := common.NewOutputHandler(logger).WithWriter(cmd.OutOrStdout())
	render := func() error {
		return output.HandleOutput(loadResults(ctx, store, cfg.Interview, logger), resultsConfig)
	}

	if err := render(); err != nil {
		return err
	}
	if !resultsWatch {
		return nil
	}

	fileStore, ok := store.(*session.FileStore)
	if !ok {
		return fmt.Errorf("--watch needs the file session store, configured store is %q", cfg.Session.Store)
	}

	watcher := session.NewFileWatcher(fileStore.Path(), 300*time.Millisecond, func() {
		if err := render(); err != nil {
			logger.LogError(err, "Failed to render results")
		}
	}, logger)
	if err := watcher.Start(); err != nil {
		return err
	}
	defer func() { _ = watcher.Stop() }()

	logger.Info("Watching session file for changes", "file", fileStore.Path())
	<-ctx.Done()
	return nil
}
