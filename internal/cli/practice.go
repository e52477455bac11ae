package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"aceinterview/internal/common"
	"aceinterview/internal/config"
	"aceinterview/internal/errors"
	"aceinterview/internal/scoring"
	"aceinterview/internal/session"

	"github.com/spf13/cobra"
)

const (
	backCommand = ":back"
	quitCommand = ":quit"
)

var practiceCmd = &cobra.Command{
	Use:   "practice",
	Short: "Run an interactive mock interview",
	Long: `Walk through a mock interview in the terminal: pick a domain, upload your
resume, optionally add a job description, company and level, then answer the
generated questions one at a time. Results are shown at the end.

Progress is cached in the configured session store, so an interrupted
interview resumes at the first unanswered question. Use --new to start over.
Type :back to return to the previous step or question and :quit to stop.`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return resolveOutputFormat(cmd, &practiceConfig)
	},
	RunE: runPractice,
}

var practiceConfig common.CommandConfig

var practiceOpts practiceOptions

// practiceOptions pre-answer setup prompts from flags
type practiceOptions struct {
	fresh              bool
	domain             string
	resumeFile         string
	jobDescriptionFile string
	company            string
	level              string
}

func init() {
	addOutputFlags(practiceCmd, &practiceConfig)
	practiceCmd.Flags().BoolVar(&practiceOpts.fresh, "new", false, "Discard any cached session and start over")
	practiceCmd.Flags().StringVarP(&practiceOpts.domain, "domain", "d", "", "Practice domain")
	practiceCmd.Flags().StringVarP(&practiceOpts.resumeFile, "resume", "r", "", "Resume file (PDF or TXT)")
	practiceCmd.Flags().StringVar(&practiceOpts.jobDescriptionFile, "job-description", "", "Job description file")
	practiceCmd.Flags().StringVar(&practiceOpts.company, "company", "", "Company focus")
	practiceCmd.Flags().StringVar(&practiceOpts.level, "level", "", "Seniority level")
}

func runPractice(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	store, err := session.NewStore(cfg.Session)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	client := newBackend(cmd)
	defer func() { _ = client.Close() }()

	sess := session.New(client, store, cfg.Interview, logger)
	if practiceOpts.fresh {
		if err := sess.Reset(ctx); err != nil {
			logger.Warn("Failed to clear cached session", "error", err)
		}
	} else {
		sess.Restore(ctx)
	}

	p := newPracticeRunner(sess, common.NewFileProcessor(logger), cfg, practiceOpts, cmd.InOrStdin(), cmd.OutOrStdout())
	if err := p.run(ctx); err != nil {
		return err
	}

	if sess.Step() != session.StepResults {
		return nil
	}
	return common.NewOutputHandler(logger).WithWriter(cmd.OutOrStdout()).HandleOutput(sess.Results(), practiceConfig)
}

// practiceRunner drives a session from line-oriented input
type practiceRunner struct {
	sess    *session.Session
	files   *common.FileProcessor
	catalog config.InterviewConfig
	maxSize int64
	opts    practiceOptions

	in  *bufio.Scanner
	out io.Writer
}

func newPracticeRunner(sess *session.Session, files *common.FileProcessor, cfg *config.Config, opts practiceOptions, in io.Reader, out io.Writer) *practiceRunner {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &practiceRunner{
		sess:    sess,
		files:   files,
		catalog: cfg.Interview,
		maxSize: cfg.App.MaxFileSize,
		opts:    opts,
		in:      scanner,
		out:     out,
	}
}

// run completes the setup steps and the interview. Running out of input
// stops early; everything answered so far stays cached.
func (p *practiceRunner) run(ctx context.Context) error {
	if p.sess.Step() == session.StepResults {
		p.say("Your last practice session is complete. Run with --new to start a fresh one.")
		return nil
	}

	err := p.setup(ctx)
	if err == nil {
		err = p.interview(ctx)
	}
	if err == io.EOF {
		p.say("\nProgress saved. Run practice again to continue.")
		return nil
	}
	return err
}

func (p *practiceRunner) setup(ctx context.Context) error {
	for {
		switch p.sess.Step() {
		case session.StepDomain:
			if err := p.domainStep(ctx); err != nil {
				return err
			}
		case session.StepResume:
			if err := p.resumeStep(ctx); err != nil {
				return err
			}
		case session.StepJobDescription:
			if err := p.jobDescriptionStep(ctx); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (p *practiceRunner) domainStep(ctx context.Context) error {
	choice := take(&p.opts.domain)
	if choice == "" {
		var err error
		if choice, err = p.choose("Select a domain", p.catalog.Domains); err != nil {
			return err
		}
	}
	if choice == backCommand {
		return nil
	}

	domain, err := pick(choice, "domain", p.catalog.Domains)
	if err != nil {
		p.say(err.Error())
		return nil
	}
	if err := p.sess.SelectDomain(domain); err != nil {
		p.sayError(err)
		return nil
	}
	if err := p.sess.Next(ctx); err != nil {
		p.sayError(err)
	}
	return nil
}

func (p *practiceRunner) resumeStep(ctx context.Context) error {
	path := take(&p.opts.resumeFile)
	if path == "" {
		var err error
		if path, err = p.ask("Resume file (PDF or TXT)"); err != nil {
			return err
		}
	}
	switch path {
	case backCommand:
		p.sess.Back()
		return nil
	case "":
		p.say(session.MsgUploadResume)
		return nil
	}

	resume, err := p.files.ReadResume(path, p.maxSize)
	if err != nil {
		p.say(err.Error())
		return nil
	}

	p.say("Uploading resume...")
	out, err := p.sess.AttachResume(ctx, resume.Name, resume.Content)
	switch {
	case err != nil:
		// the file stays attached; questions just won't use it
		p.sayError(err)
	case strings.TrimSpace(out.Name) != "":
		p.say(fmt.Sprintf("Hello, %s!", strings.TrimSpace(out.Name)))
	}

	if err := p.sess.Next(ctx); err != nil {
		p.sayError(err)
	}
	return nil
}

func (p *practiceRunner) jobDescriptionStep(ctx context.Context) error {
	company, back, err := p.optionalChoice(take(&p.opts.company), "Company focus", "company", p.catalog.Companies)
	if err != nil || back {
		return err
	}
	level, back, err := p.optionalChoice(take(&p.opts.level), "Seniority level", "level", p.catalog.Levels)
	if err != nil || back {
		return err
	}

	jobDescription := ""
	if path := take(&p.opts.jobDescriptionFile); path != "" {
		content, err := p.files.ReadFile(path)
		if err != nil {
			return err
		}
		jobDescription = string(content)
	} else {
		line, err := p.ask("Job description (optional, press Enter to skip)")
		if err != nil {
			return err
		}
		if line == backCommand {
			p.sess.Back()
			return nil
		}
		jobDescription = line
	}

	p.sess.SetCompany(company)
	p.sess.SetLevel(level)
	p.sess.SetJobDescription(jobDescription)

	p.say("Generating questions...")
	if err := p.sess.Next(ctx); err != nil {
		p.sayError(err)
		return err
	}
	return nil
}

// optionalChoice resolves preset or prompts for an entry of options; empty means skipped
func (p *practiceRunner) optionalChoice(preset, label, kind string, options []string) (string, bool, error) {
	for {
		choice := preset
		preset = ""
		if choice == "" {
			var err error
			if choice, err = p.choose(label+" (optional, press Enter to skip)", options); err != nil {
				return "", false, err
			}
		}
		switch choice {
		case "":
			return "", false, nil
		case backCommand:
			p.sess.Back()
			return "", true, nil
		}

		resolved, err := pick(choice, kind, options)
		if err == nil {
			return resolved, false, nil
		}
		p.say(err.Error())
	}
}

func (p *practiceRunner) interview(ctx context.Context) error {
	for p.sess.Step() == session.StepInterview {
		cur, ok := p.sess.Current()
		if !ok {
			p.say(session.MsgNoQuestion)
			return nil
		}

		p.say(fmt.Sprintf("\nQuestion %d of %d [%s]\n%s", cur.Index+1, cur.Total, cur.Question.Type, cur.Question.Question))
		if cur.SavedAnswer != "" {
			p.say(fmt.Sprintf("Your previous answer: %s\n(Press Enter to submit it again)", cur.SavedAnswer))
		}

		answer, err := p.ask("Your answer")
		if err != nil {
			return err
		}
		switch answer {
		case quitCommand:
			return io.EOF
		case backCommand:
			p.sess.PreviousQuestion()
			continue
		case "":
			answer = cur.SavedAnswer
		}

		p.say("Evaluating...")
		result, err := p.sess.Submit(ctx, answer)
		if err != nil {
			p.sayError(err)
			continue
		}
		p.say(fmt.Sprintf("Score: %s / 10", scoring.FormatScore(result.Evaluation.Score)))
	}
	return nil
}

func (p *practiceRunner) ask(label string) (string, error) {
	_, _ = fmt.Fprintf(p.out, "%s: ", label)
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.in.Text()), nil
}

func (p *practiceRunner) choose(label string, options []string) (string, error) {
	for i, option := range options {
		_, _ = fmt.Fprintf(p.out, "  %d. %s\n", i+1, option)
	}
	return p.ask(label)
}

func (p *practiceRunner) say(message string) {
	_, _ = fmt.Fprintln(p.out, message)
}

func (p *practiceRunner) sayError(err error) {
	p.say(errors.UserMessage(err, "Something went wrong. Please try again."))
}

// pick accepts a 1-based menu number or a case-insensitive catalogue entry
func pick(choice, kind string, options []string) (string, error) {
	if n, err := strconv.Atoi(choice); err == nil {
		if n < 1 || n > len(options) {
			return "", fmt.Errorf("choose a number between 1 and %d", len(options))
		}
		return options[n-1], nil
	}
	return common.ResolveChoice(kind, choice, options)
}

// take returns *s and clears it, so a flag only answers its prompt once
func take(s *string) string {
	v := strings.TrimSpace(*s)
	*s = ""
	return v
}
