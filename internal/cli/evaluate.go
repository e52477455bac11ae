package cli

import (
	"context"
	"fmt"

	"aceinterview/internal/common"
	"aceinterview/internal/scoring"
	"aceinterview/internal/session"
	"aceinterview/internal/types"

	"github.com/spf13/cobra"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [answer-file]",
	Short: "Evaluate one answer to an interview question",
	Long: `Send an answer to the backend for evaluation and print the normalized
result: score out of 10, strengths, areas to improve, detailed feedback and
any subscores the backend returned.

The answer is read from the given file; the question is passed with --question.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if evaluateOpts.question == "" {
			return fmt.Errorf("--question is required")
		}
		return resolveOutputFormat(cmd, &evaluateConfig)
	},
	RunE: runEvaluate,
}

var evaluateConfig common.CommandConfig

var evaluateOpts struct {
	question       string
	questionType   string
	level          string
	resumeToken    string
	jobDescription string
}

func init() {
	addOutputFlags(evaluateCmd, &evaluateConfig)
	evaluateCmd.Flags().StringVarP(&evaluateOpts.question, "question", "q", "", "The question being answered")
	evaluateCmd.Flags().StringVar(&evaluateOpts.questionType, "type", "", "Question type (default from config)")
	evaluateCmd.Flags().StringVar(&evaluateOpts.level, "level", "", "Seniority level, e.g. \"Senior Level\"")
	evaluateCmd.Flags().StringVar(&evaluateOpts.resumeToken, "resume-token", "", "Token returned by parse-resume")
	evaluateCmd.Flags().StringVar(&evaluateOpts.jobDescription, "job-description", "", "Job description text")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())
	client := newBackend(cmd)
	defer func() { _ = client.Close() }()

	createInput := func(files []common.InputFile) (types.EvaluateAnswerInput, error) {
		if len(files) != 1 {
			return types.EvaluateAnswerInput{}, fmt.Errorf("expected 1 answer file, got %d", len(files))
		}
		questionType := evaluateOpts.questionType
		if questionType == "" {
			questionType = cfg.Interview.DefaultQuestionType
		}
		return types.EvaluateAnswerInput{
			Question:       evaluateOpts.question,
			Answer:         files[0].Text(),
			QuestionType:   questionType,
			Level:          session.LevelCode(evaluateOpts.level, cfg.Interview.DefaultLevel),
			ResumeToken:    types.OptionalToken(evaluateOpts.resumeToken),
			JobDescription: evaluateOpts.jobDescription,
		}, nil
	}

	logDetails := func(input types.EvaluateAnswerInput, cmdConfig common.CommandConfig) {
		logger.Info("Starting answer evaluation",
			"question_chars", len(input.Question),
			"answer_chars", len(input.Answer),
			"level", input.Level,
			"output_format", cmdConfig.OutputFormat)
	}

	evaluateOperation := func(ctx context.Context, input types.EvaluateAnswerInput) (scoring.Evaluation, error) {
		raw, err := client.EvaluateAnswer(ctx, input)
		if err != nil {
			return scoring.Evaluation{}, err
		}
		return scoring.Coerce(raw), nil
	}

	err := common.RunBackendCommand(
		cmd.Context(),
		logger,
		evaluateConfig,
		args,
		createInput,
		evaluateOperation,
		logDetails,
	)
	if err != nil {
		return fmt.Errorf("failed to evaluate answer: %w", err)
	}
	logger.Info("Answer evaluation completed successfully")
	return nil
}
