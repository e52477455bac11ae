package cli

import (
	"context"
	"fmt"
	"strings"

	"aceinterview/internal/common"
	"aceinterview/internal/config"
	"aceinterview/internal/session"
	"aceinterview/internal/types"

	"github.com/spf13/cobra"
)

var questionsCmd = &cobra.Command{
	Use:   "questions [job-description-file]",
	Short: "Generate interview questions for a domain",
	Long: `Generate interview questions for the chosen domain, or for the interview
type when no domain is given. An optional job description file, company and
level are merged into the request, and a resume token from parse-resume lets
the backend tailor the questions to the candidate.`,
	Args: cobra.MaximumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return resolveOutputFormat(cmd, &questionsConfig)
	},
	RunE: runQuestions,
}

var questionsConfig common.CommandConfig

var questionsOpts questionOptions

// questionOptions are the flags of the questions command
type questionOptions struct {
	domain        string
	interviewType string
	company       string
	level         string
	name          string
	resumeToken   string
	count         int
}

func init() {
	addOutputFlags(questionsCmd, &questionsConfig)
	questionsCmd.Flags().StringVarP(&questionsOpts.domain, "domain", "d", "", "Practice domain, e.g. \"Data Scientist\"")
	questionsCmd.Flags().StringVar(&questionsOpts.interviewType, "interview-type", "", "Interview type used when no domain is given")
	questionsCmd.Flags().StringVar(&questionsOpts.company, "company", "", "Company focus")
	questionsCmd.Flags().StringVar(&questionsOpts.level, "level", "", "Seniority level")
	questionsCmd.Flags().StringVar(&questionsOpts.name, "name", "", "Candidate name")
	questionsCmd.Flags().StringVar(&questionsOpts.resumeToken, "resume-token", "", "Token returned by parse-resume")
	questionsCmd.Flags().IntVarP(&questionsOpts.count, "count", "n", 0, "Number of questions (default from config)")
}

// buildQuestionsInput turns the flags and optional job description into a generation request
func buildQuestionsInput(opts questionOptions, cfg config.InterviewConfig, jobDescription string) (types.GenerateQuestionsInput, error) {
	domain, err := common.ResolveChoice("domain", opts.domain, cfg.Domains)
	if err != nil {
		return types.GenerateQuestionsInput{}, err
	}
	if domain == "" {
		domain, err = common.ResolveChoice("interview type", opts.interviewType, cfg.InterviewTypes)
		if err != nil {
			return types.GenerateQuestionsInput{}, err
		}
	}
	if domain == "" {
		domain = cfg.DefaultInterviewType
	}
	if domain == "" {
		return types.GenerateQuestionsInput{}, fmt.Errorf("%s", session.MsgDomainRequired)
	}

	company, err := common.ResolveChoice("company", opts.company, cfg.Companies)
	if err != nil {
		return types.GenerateQuestionsInput{}, err
	}
	level, err := common.ResolveChoice("level", opts.level, cfg.Levels)
	if err != nil {
		return types.GenerateQuestionsInput{}, err
	}

	name := strings.TrimSpace(opts.name)
	if name == "" {
		name = cfg.DefaultName
	}
	count := opts.count
	if count <= 0 {
		count = cfg.QuestionCount
	}

	return types.GenerateQuestionsInput{
		Name:           name,
		Domain:         domain,
		Role:           domain,
		JobDescription: session.MergeJobDescription(jobDescription, company, level),
		NQuestions:     count,
		ResumeToken:    types.OptionalToken(opts.resumeToken),
	}, nil
}

func runQuestions(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())
	client := newBackend(cmd)
	defer func() { _ = client.Close() }()

	createInput := func(files []common.InputFile) (types.GenerateQuestionsInput, error) {
		jobDescription := ""
		if len(files) == 1 {
			jobDescription = files[0].Text()
		}
		return buildQuestionsInput(questionsOpts, cfg.Interview, jobDescription)
	}

	logDetails := func(input types.GenerateQuestionsInput, cmdConfig common.CommandConfig) {
		logger.Info("Starting question generation",
			"domain", input.Domain,
			"n_questions", input.NQuestions,
			"has_resume_token", input.ResumeToken != nil,
			"job_description_chars", len(input.JobDescription),
			"output_format", cmdConfig.OutputFormat)
	}

	generateOperation := func(ctx context.Context, input types.GenerateQuestionsInput) ([]types.QuestionRecord, error) {
		return client.GenerateQuestions(ctx, input)
	}

	err := common.RunBackendCommand(
		cmd.Context(),
		logger,
		questionsConfig,
		args,
		createInput,
		generateOperation,
		logDetails,
	)
	if err != nil {
		return fmt.Errorf("failed to generate questions: %w", err)
	}
	logger.Info("Question generation completed successfully")
	return nil
}
