package cli

import (
	"fmt"

	"aceinterview/internal/common"
	"aceinterview/internal/types"

	"github.com/spf13/cobra"
)

var parseResumeCmd = &cobra.Command{
	Use:   "parse-resume [resume-file]",
	Short: "Upload a resume and print the candidate name and resume token",
	Long: `Upload a PDF or TXT resume to the backend. The returned resume token can be
passed to the questions and evaluate commands with --resume-token.

PDFs are opened locally first; a PDF without extractable text is reported
as a warning but still uploaded.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return resolveOutputFormat(cmd, &parseResumeConfig)
	},
	RunE: runParseResume,
}

var parseResumeConfig common.CommandConfig

func init() {
	addOutputFlags(parseResumeCmd, &parseResumeConfig)
}

func runParseResume(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	fileProcessor := common.NewFileProcessor(logger)
	if err := fileProcessor.ValidateOutputFile(parseResumeConfig.OutputFile); err != nil {
		return err
	}

	resume, err := fileProcessor.ReadResume(args[0], cfg.App.MaxFileSize)
	if err != nil {
		return err
	}

	logger.Info("Starting resume upload",
		"file", resume.Name,
		"bytes", len(resume.Content),
		"output_format", parseResumeConfig.OutputFormat)

	client := newBackend(cmd)
	defer func() { _ = client.Close() }()

	out, err := client.ParseResume(cmd.Context(), types.ParseResumeInput{
		FileName: resume.Name,
		Content:  resume.Content,
	})
	if err != nil {
		return fmt.Errorf("failed to parse resume: %w", err)
	}

	if err := common.NewOutputHandler(logger).HandleOutput(out, parseResumeConfig); err != nil {
		return err
	}
	logger.Info("Resume upload completed successfully", "has_token", out.ResumeToken != "")
	return nil
}
