// Package session holds the state of one practice run: the setup wizard,
// the question-and-answer loop and the scored results. Every operation on a
// Session is serialized, so step N's backend round-trip finishes before
// step N+1 starts.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"aceinterview/internal/backend"
	"aceinterview/internal/config"
	"aceinterview/internal/errors"
	"aceinterview/internal/scoring"
	"aceinterview/internal/types"
)

// Cache keys
const (
	KeyResumeToken   = "resume_token"
	KeyCandidateName = "candidate_name"
	KeyQuestions     = "questions"
	KeyAnswers       = "answers"
	KeyEvaluations   = "evaluations"
	KeyProfile       = "profile"
	KeyTotalScore    = "total_score"
)

var allKeys = []string{KeyResumeToken, KeyCandidateName, KeyQuestions, KeyAnswers, KeyEvaluations, KeyProfile, KeyTotalScore}

// Messages shown when a step cannot proceed
const (
	MsgSelectDomain   = "Please select a domain"
	MsgUploadResume   = "Please upload your resume"
	MsgDomainRequired = "Domain is required"
	MsgNoDomain       = "No domain provided. Please go back and select your domain."
	MsgEmptyAnswer    = "Please type your answer before submitting."
	MsgNoQuestion     = "No question to answer."
)

// Step is a position in the practice flow
type Step int

const (
	StepDomain Step = iota
	StepResume
	StepJobDescription
	StepInterview
	StepResults
)

func (s Step) String() string {
	switch s {
	case StepDomain:
		return "domain"
	case StepResume:
		return "resume"
	case StepJobDescription:
		return "job_description"
	case StepInterview:
		return "interview"
	case StepResults:
		return "results"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Profile is what the candidate chose during setup
type Profile struct {
	Domain         string `json:"domain"`
	InterviewType  string `json:"interview_type"`
	Company        string `json:"company"`
	Level          string `json:"level"`
	JobDescription string `json:"job_description"`
	ResumeFile     string `json:"resume_file,omitempty"`
}

// CurrentQuestion is the question awaiting an answer
type CurrentQuestion struct {
	Index       int                  `json:"index"`
	Total       int                  `json:"total"`
	Question    types.QuestionRecord `json:"question"`
	SavedAnswer string               `json:"saved_answer,omitempty"`
}

// SubmitResult is the outcome of answering one question
type SubmitResult struct {
	Question   string                `json:"question"`
	Evaluation scoring.Evaluation    `json:"evaluation"`
	Raw        scoring.RawEvaluation `json:"raw"`
	Finished   bool                  `json:"finished"`
	Next       *CurrentQuestion      `json:"next,omitempty"`
}

// Snapshot is a read-only view of a session
type Snapshot struct {
	Step          string                 `json:"step"`
	Profile       Profile                `json:"profile"`
	CandidateName string                 `json:"candidate_name,omitempty"`
	HasResume     bool                   `json:"has_resume"`
	Questions     []types.QuestionRecord `json:"questions"`
	CurrentIndex  int                    `json:"current_index"`
	Answered      int                    `json:"answered"`
}

// Session is one practice run
type Session struct {
	mu sync.Mutex

	backend backend.Backend
	store   Store
	cfg     config.InterviewConfig
	logger  *errors.Logger

	step          Step
	profile       Profile
	candidateName string
	resumeToken   string
	questions     []types.QuestionRecord
	current       int
	answers       map[string]string
	evaluations   *scoring.EvaluationSet
	trackedTotal  *float64
	lastActivity  atomic.Int64
}

// New creates an empty session. store may be nil for no caching.
func New(b backend.Backend, store Store, cfg config.InterviewConfig, logger *errors.Logger) *Session {
	if store == nil {
		store = NopStore{}
	}
	s := &Session{
		backend:     b,
		store:       store,
		cfg:         cfg,
		logger:      logger,
		profile:     Profile{InterviewType: cfg.DefaultInterviewType},
		answers:     make(map[string]string),
		evaluations: scoring.NewEvaluationSet(),
	}
	s.touch()
	return s
}

func stepError(message string) error {
	return errors.NewValidationError(errors.ErrCodeStepPrecondition, message, nil)
}

// Step returns the current position in the flow
func (s *Session) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// LastActivity returns when the session was last used. It does not wait
// for an operation in flight.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// SelectDomain sets the practice domain
func (s *Session) SelectDomain(domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	domain = strings.TrimSpace(domain)
	if domain == "" {
		return stepError(MsgSelectDomain)
	}
	s.profile.Domain = domain
	return nil
}

// SetInterviewType sets the interview type used as role when no domain is chosen
func (s *Session) SetInterviewType(interviewType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.profile.InterviewType = strings.TrimSpace(interviewType)
}

// SetCompany sets the company focus
func (s *Session) SetCompany(company string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.profile.Company = strings.TrimSpace(company)
}

// SetLevel sets the seniority level
func (s *Session) SetLevel(level string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.profile.Level = strings.TrimSpace(level)
}

// SetJobDescription sets the optional job description
func (s *Session) SetJobDescription(jd string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.profile.JobDescription = jd
}

// SetCandidateName overrides the name read from the resume
func (s *Session) SetCandidateName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.candidateName = strings.TrimSpace(name)
}

// CandidateName returns the known candidate name, possibly empty
func (s *Session) CandidateName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.candidateName
}

// Profile returns the setup choices
func (s *Session) Profile() Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// AttachResume records the resume and asks the backend to parse it. The file
// stays attached even when parsing fails, so the candidate can continue
// without a resume token.
func (s *Session) AttachResume(ctx context.Context, fileName string, content []byte) (types.ParseResumeOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if fileName == "" || len(content) == 0 {
		return types.ParseResumeOutput{}, stepError(MsgUploadResume)
	}
	s.profile.ResumeFile = fileName

	out, err := s.backend.ParseResume(ctx, types.ParseResumeInput{FileName: fileName, Content: content})
	if err != nil {
		return types.ParseResumeOutput{}, err
	}

	if name := strings.TrimSpace(out.Name); name != "" {
		s.candidateName = name
		s.saveString(ctx, KeyCandidateName, name)
	}
	if out.ResumeToken != "" {
		s.resumeToken = out.ResumeToken
		s.saveString(ctx, KeyResumeToken, out.ResumeToken)
	}
	s.save(ctx, KeyProfile, s.profile)

	return out, nil
}

// Next validates the current setup step and advances. On the last setup
// step it generates the questions.
func (s *Session) Next(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	switch s.step {
	case StepDomain:
		if s.profile.Domain == "" {
			return stepError(MsgSelectDomain)
		}
		s.step = StepResume
	case StepResume:
		if s.profile.ResumeFile == "" {
			return stepError(MsgUploadResume)
		}
		s.step = StepJobDescription
	case StepJobDescription:
		_, err := s.begin(ctx)
		return err
	}
	return nil
}

// Back moves one step back. It never fails.
func (s *Session) Back() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if s.step > StepDomain {
		s.step--
	}
}

// Begin generates a fresh question list and starts the interview.
// Previous answers and evaluations are discarded.
func (s *Session) Begin(ctx context.Context) ([]types.QuestionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.begin(ctx)
}

func (s *Session) begin(ctx context.Context) ([]types.QuestionRecord, error) {
	if s.profile.Domain == "" {
		return nil, stepError(MsgDomainRequired)
	}
	return s.generate(ctx, s.profile.Domain)
}

// EnsureQuestions generates questions when the interview is entered without
// any, using the interview type when no domain was chosen.
func (s *Session) EnsureQuestions(ctx context.Context) ([]types.QuestionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if len(s.questions) > 0 {
		return s.questionsCopy(), nil
	}

	domain := s.profile.Domain
	if domain == "" {
		domain = s.profile.InterviewType
	}
	if domain == "" {
		return nil, stepError(MsgNoDomain)
	}
	return s.generate(ctx, domain)
}

func (s *Session) generate(ctx context.Context, domain string) ([]types.QuestionRecord, error) {
	name := s.candidateName
	if name == "" {
		name = s.cfg.DefaultName
	}

	questions, err := s.backend.GenerateQuestions(ctx, types.GenerateQuestionsInput{
		Name:           name,
		Domain:         domain,
		Role:           domain,
		JobDescription: MergeJobDescription(s.profile.JobDescription, s.profile.Company, s.profile.Level),
		NQuestions:     s.cfg.QuestionCount,
		ResumeToken:    types.OptionalToken(s.resumeToken),
	})
	if err != nil {
		return nil, err
	}

	s.questions = questions
	s.current = 0
	s.answers = make(map[string]string)
	s.evaluations = scoring.NewEvaluationSet()
	s.trackedTotal = nil
	s.step = StepInterview

	s.save(ctx, KeyQuestions, s.questions)
	s.save(ctx, KeyProfile, s.profile)
	if err := s.store.Delete(ctx, KeyAnswers, KeyEvaluations, KeyTotalScore); err != nil {
		s.logger.Warn("Failed to clear cached answers", "error", err)
	}

	return s.questionsCopy(), nil
}

// Questions returns the generated questions
func (s *Session) Questions() []types.QuestionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questionsCopy()
}

func (s *Session) questionsCopy() []types.QuestionRecord {
	out := make([]types.QuestionRecord, len(s.questions))
	copy(out, s.questions)
	return out
}

// Current returns the question awaiting an answer, with any answer saved
// for it earlier. ok is false when there is no such question.
func (s *Session) Current() (CurrentQuestion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentQuestion()
}

func (s *Session) currentQuestion() (CurrentQuestion, bool) {
	if s.current < 0 || s.current >= len(s.questions) {
		return CurrentQuestion{}, false
	}
	q := s.questions[s.current]
	if q.Type == "" {
		q.Type = s.cfg.DefaultQuestionType
	}
	return CurrentQuestion{
		Index:       s.current,
		Total:       len(s.questions),
		Question:    q,
		SavedAnswer: s.answers[q.Question],
	}, q.Question != ""
}

// PreviousQuestion moves back one question; the earlier answer is offered again
func (s *Session) PreviousQuestion() (CurrentQuestion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if s.current > 0 {
		s.current--
	}
	if s.step == StepResults && len(s.questions) > 0 {
		s.step = StepInterview
	}
	return s.currentQuestion()
}

// Submit evaluates an answer to the current question and advances. After the
// last question the running total is computed and the session moves to results.
func (s *Session) Submit(ctx context.Context, answer string) (SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if strings.TrimSpace(answer) == "" {
		return SubmitResult{}, stepError(MsgEmptyAnswer)
	}

	cur, ok := s.currentQuestion()
	if !ok {
		return SubmitResult{}, stepError(MsgNoQuestion)
	}
	question := cur.Question.Question

	// The answer is kept even when evaluation fails
	s.answers[question] = answer

	raw, err := s.backend.EvaluateAnswer(ctx, types.EvaluateAnswerInput{
		Question:       question,
		Answer:         answer,
		QuestionType:   cur.Question.Type,
		Level:          LevelCode(s.profile.Level, s.cfg.DefaultLevel),
		ResumeToken:    types.OptionalToken(s.resumeToken),
		JobDescription: s.profile.JobDescription,
	})
	if err != nil {
		return SubmitResult{}, err
	}

	s.evaluations.Put(question, raw)
	s.save(ctx, KeyAnswers, s.answers)
	s.save(ctx, KeyEvaluations, s.evaluations)

	result := SubmitResult{
		Question:   question,
		Evaluation: scoring.Coerce(raw),
		Raw:        raw,
	}

	if s.current+1 < len(s.questions) {
		s.current++
		if next, ok := s.currentQuestion(); ok {
			result.Next = &next
		}
		return result, nil
	}

	s.trackedTotal = TrackedTotal(s.evaluations)
	s.step = StepResults
	result.Finished = true
	if s.trackedTotal != nil {
		s.save(ctx, KeyTotalScore, *s.trackedTotal)
	}
	s.logger.Debug("Practice session finished",
		"questions", len(s.questions),
		"evaluations", s.evaluations.Len(),
		"tracked_total", scoring.FormatScore(s.trackedTotal))

	return result, nil
}

// Results aggregates every evaluation, preferring the total tracked at the end of the interview
func (s *Session) Results() scoring.Results {
	s.mu.Lock()
	defer s.mu.Unlock()
	return scoring.Aggregate(s.evaluations, s.trackedTotal)
}

// Snapshot returns a read-only view of the session
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Step:          s.step.String(),
		Profile:       s.profile,
		CandidateName: s.candidateName,
		HasResume:     s.resumeToken != "",
		Questions:     s.questionsCopy(),
		CurrentIndex:  s.current,
		Answered:      s.evaluations.Len(),
	}
}

// Reset discards the session and everything cached for it
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	s.step = StepDomain
	s.profile = Profile{InterviewType: s.cfg.DefaultInterviewType}
	s.candidateName = ""
	s.resumeToken = ""
	s.questions = nil
	s.current = 0
	s.answers = make(map[string]string)
	s.evaluations = scoring.NewEvaluationSet()
	s.trackedTotal = nil

	return s.store.Delete(ctx, allKeys...)
}

// Restore reloads whatever the store still holds. Unreadable entries are
// skipped; the session is never refused because of its cache.
func (s *Session) Restore(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.loadString(ctx, KeyResumeToken); ok {
		s.resumeToken = v
	}
	if v, ok := s.loadString(ctx, KeyCandidateName); ok {
		s.candidateName = v
	}

	var profile Profile
	if s.load(ctx, KeyProfile, &profile) {
		s.profile = profile
	}

	var questions []types.QuestionRecord
	if s.load(ctx, KeyQuestions, &questions) {
		s.questions = questions
	}

	answers := make(map[string]string)
	if s.load(ctx, KeyAnswers, &answers) {
		s.answers = answers
	}

	evaluations := scoring.NewEvaluationSet()
	if s.load(ctx, KeyEvaluations, evaluations) {
		s.evaluations = evaluations
	}

	var total float64
	if s.load(ctx, KeyTotalScore, &total) {
		s.trackedTotal = &total
	}

	s.current = 0
	for s.current < len(s.questions) {
		if _, done := s.evaluations.Get(s.questions[s.current].Question); !done {
			break
		}
		s.current++
	}

	switch {
	case len(s.questions) == 0:
		s.step = StepDomain
		if s.profile.Domain != "" {
			s.step = StepResume
		}
	case s.current >= len(s.questions):
		s.current = len(s.questions) - 1
		s.step = StepResults
		if s.trackedTotal == nil {
			s.trackedTotal = TrackedTotal(s.evaluations)
		}
	default:
		s.step = StepInterview
	}
}

func (s *Session) saveString(ctx context.Context, key, value string) {
	if err := s.store.Set(ctx, key, value); err != nil {
		s.logger.Warn("Failed to cache session value", "key", key, "error", err)
	}
}

func (s *Session) save(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("Failed to encode session value", "key", key, "error", err)
		return
	}
	s.saveString(ctx, key, string(data))
}

func (s *Session) loadString(ctx context.Context, key string) (string, bool) {
	v, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Failed to read cached session value", "key", key, "error", err)
		return "", false
	}
	return v, ok && v != ""
}

func (s *Session) load(ctx context.Context, key string, target any) bool {
	v, ok := s.loadString(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(v), target); err != nil {
		s.logger.Warn("Ignoring unreadable cached session value", "key", key, "error", err)
		return false
	}
	return true
}

// MergeJobDescription appends the company focus and seniority to the job description
func MergeJobDescription(jd, company, level string) string {
	return strings.TrimSpace(fmt.Sprintf("%s\n\nCompany Focus: %s\nSeniority Level: %s", jd, company, level))
}

// LevelCode turns a level label such as "Senior Level" into "senior_level"
func LevelCode(level, fallback string) string {
	level = strings.TrimSpace(level)
	if level == "" {
		return fallback
	}
	return strings.Join(strings.Fields(strings.ToLower(level)), "_")
}

// TrackedTotal averages the numeric overall_score (or score) fields of the
// raw evaluations as sent by the backend. Text, strings and missing fields
// are skipped, and values are not rescaled.
func TrackedTotal(set *scoring.EvaluationSet) *float64 {
	var sum float64
	var n int
	for _, e := range set.Entries() {
		if e.Evaluation.Kind() != scoring.KindStructured {
			continue
		}
		fields := e.Evaluation.Fields()
		v, ok := numeric(fields["overall_score"])
		if !ok {
			v, ok = numeric(fields["score"])
		}
		if ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}

func numeric(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
