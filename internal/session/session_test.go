package session

import (
	"context"
	"errors"
	"math"
	"testing"

	"aceinterview/internal/config"
	appErrors "aceinterview/internal/errors"
	"aceinterview/internal/scoring"
	"aceinterview/internal/types"
)

// fakeBackend answers from canned values and records what it was sent
type fakeBackend struct {
	parseOut    types.ParseResumeOutput
	parseErr    error
	questions   []types.QuestionRecord
	generateErr error
	evaluations map[string]scoring.RawEvaluation
	evaluateErr error

	generated []types.GenerateQuestionsInput
	evaluated []types.EvaluateAnswerInput
}

func (f *fakeBackend) ParseResume(_ context.Context, _ types.ParseResumeInput) (types.ParseResumeOutput, error) {
	return f.parseOut, f.parseErr
}

func (f *fakeBackend) GenerateQuestions(_ context.Context, input types.GenerateQuestionsInput) ([]types.QuestionRecord, error) {
	f.generated = append(f.generated, input)
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	return f.questions, nil
}

func (f *fakeBackend) EvaluateAnswer(_ context.Context, input types.EvaluateAnswerInput) (scoring.RawEvaluation, error) {
	f.evaluated = append(f.evaluated, input)
	if f.evaluateErr != nil {
		return scoring.RawEvaluation{}, f.evaluateErr
	}
	return f.evaluations[input.Question], nil
}

func (f *fakeBackend) CircuitBreakerStats() map[string]any { return map[string]any{} }
func (f *fakeBackend) Close() error                        { return nil }

func testInterviewConfig() config.InterviewConfig {
	return config.InterviewConfig{
		QuestionCount:        5,
		DefaultName:          "there",
		DefaultQuestionType:  "technical",
		DefaultLevel:         "mid_level",
		DefaultInterviewType: "All",
	}
}

func twoQuestionBackend() *fakeBackend {
	return &fakeBackend{
		parseOut: types.ParseResumeOutput{Name: " Ada ", ResumeToken: "tok-1"},
		questions: []types.QuestionRecord{
			{Question: "What is a goroutine?", Type: "technical"},
			{Question: "Tell me about a conflict."},
		},
		evaluations: map[string]scoring.RawEvaluation{
			"What is a goroutine?":      scoring.FromFields(map[string]any{"overall_score": 6.0, "strengths": []any{"precise"}}),
			"Tell me about a conflict.": scoring.FromText(`{"score": 10, "weaknesses": ["long"]}`),
		},
	}
}

func assertStepMessage(t *testing.T, err error, message string) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected error %q, got nil", message)
	}
	if !appErrors.IsType(err, appErrors.ErrorTypeValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
	if got := appErrors.UserMessage(err, ""); got != message {
		t.Errorf("Expected message %q, got %q", message, got)
	}
}

func TestWizardSteps(t *testing.T) {
	fb := twoQuestionBackend()
	s := New(fb, nil, testInterviewConfig(), appErrors.Discard())
	ctx := context.Background()

	assertStepMessage(t, s.Next(ctx), MsgSelectDomain)
	assertStepMessage(t, s.SelectDomain("   "), MsgSelectDomain)

	if err := s.SelectDomain("ML Engineer"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := s.Next(ctx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if s.Step() != StepResume {
		t.Fatalf("Expected resume step, got %s", s.Step())
	}

	assertStepMessage(t, s.Next(ctx), MsgUploadResume)

	if _, err := s.AttachResume(ctx, "cv.pdf", []byte("%PDF")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := s.Next(ctx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if s.Step() != StepJobDescription {
		t.Fatalf("Expected job description step, got %s", s.Step())
	}

	s.Back()
	s.Back()
	s.Back()
	if s.Step() != StepDomain {
		t.Errorf("Expected back to stop at the first step, got %s", s.Step())
	}
}

func TestNextOnLastStepBegins(t *testing.T) {
	fb := twoQuestionBackend()
	s := New(fb, nil, testInterviewConfig(), appErrors.Discard())
	ctx := context.Background()

	_ = s.SelectDomain("AI Engineer")
	_ = s.Next(ctx)
	_, _ = s.AttachResume(ctx, "cv.txt", []byte("resume"))
	_ = s.Next(ctx)
	if err := s.Next(ctx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if s.Step() != StepInterview {
		t.Errorf("Expected interview step, got %s", s.Step())
	}
	if len(fb.generated) != 1 {
		t.Errorf("Expected one generation request, got %d", len(fb.generated))
	}
}

func TestAttachResumeCachesToken(t *testing.T) {
	fb := twoQuestionBackend()
	store := NewMemoryStore()
	s := New(fb, store, testInterviewConfig(), appErrors.Discard())
	ctx := context.Background()

	out, err := s.AttachResume(ctx, "cv.pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out.ResumeToken != "tok-1" {
		t.Errorf("Expected token, got %q", out.ResumeToken)
	}
	if s.CandidateName() != "Ada" {
		t.Errorf("Expected trimmed candidate name, got %q", s.CandidateName())
	}
	if v, ok, _ := store.Get(ctx, KeyResumeToken); !ok || v != "tok-1" {
		t.Errorf("Expected cached resume token, got %q", v)
	}
	if v, ok, _ := store.Get(ctx, KeyCandidateName); !ok || v != "Ada" {
		t.Errorf("Expected cached candidate name, got %q", v)
	}
}

func TestAttachResumeFailureKeepsFile(t *testing.T) {
	fb := twoQuestionBackend()
	fb.parseErr = appErrors.NewBackendError(appErrors.ErrCodeParseResume, "Could not read the resume. Please try a different PDF/TXT.", errors.New("500"))
	s := New(fb, nil, testInterviewConfig(), appErrors.Discard())
	ctx := context.Background()

	_ = s.SelectDomain("Data Analyst")
	_ = s.Next(ctx)

	if _, err := s.AttachResume(ctx, "scan.pdf", []byte("%PDF")); err == nil {
		t.Fatal("Expected parse error")
	}
	if err := s.Next(ctx); err != nil {
		t.Errorf("Expected to continue without a resume token, got %v", err)
	}

	_, _ = s.Begin(ctx)
	if fb.generated[0].ResumeToken != nil {
		t.Errorf("Expected null resume token, got %q", *fb.generated[0].ResumeToken)
	}
}

func TestBeginBuildsRequest(t *testing.T) {
	fb := twoQuestionBackend()
	s := New(fb, nil, testInterviewConfig(), appErrors.Discard())
	ctx := context.Background()

	_, err := s.Begin(ctx)
	assertStepMessage(t, err, MsgDomainRequired)

	_ = s.SelectDomain("Data Scientist")
	s.SetJobDescription("  Build forecasting models.  ")
	s.SetCompany("Google")
	s.SetLevel("Senior Level")

	questions, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("Expected 2 questions, got %d", len(questions))
	}

	req := fb.generated[0]
	if req.Name != "there" {
		t.Errorf("Expected default name, got %q", req.Name)
	}
	if req.Domain != "Data Scientist" || req.Role != "Data Scientist" {
		t.Errorf("Expected domain as role, got %q/%q", req.Domain, req.Role)
	}
	if req.NQuestions != 5 {
		t.Errorf("Expected 5 questions requested, got %d", req.NQuestions)
	}
	expectedJD := "Build forecasting models.  \n\nCompany Focus: Google\nSeniority Level: Senior Level"
	if req.JobDescription != expectedJD {
		t.Errorf("Expected merged JD %q, got %q", expectedJD, req.JobDescription)
	}
}

func TestEnsureQuestionsFallsBackToInterviewType(t *testing.T) {
	fb := twoQuestionBackend()
	s := New(fb, nil, testInterviewConfig(), appErrors.Discard())
	ctx := context.Background()

	s.SetInterviewType("")
	_, err := s.EnsureQuestions(ctx)
	assertStepMessage(t, err, MsgNoDomain)

	s.SetInterviewType("Behavioral")
	if _, err := s.EnsureQuestions(ctx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if fb.generated[0].Domain != "Behavioral" || fb.generated[0].Role != "Behavioral" {
		t.Errorf("Expected interview type as domain and role, got %+v", fb.generated[0])
	}

	if _, err := s.EnsureQuestions(ctx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(fb.generated) != 1 {
		t.Errorf("Expected existing questions to be reused, got %d requests", len(fb.generated))
	}
}

func TestGenerationFailureKeepsPreviousState(t *testing.T) {
	fb := twoQuestionBackend()
	s := New(fb, nil, testInterviewConfig(), appErrors.Discard())
	ctx := context.Background()

	_ = s.SelectDomain("AI Researcher")
	fb.generateErr = appErrors.NewBackendError(appErrors.ErrCodeNoQuestions, "Sorry, could not generate questions right now. Please try again.", errors.New("no questions returned"))

	if _, err := s.Begin(ctx); err == nil {
		t.Fatal("Expected generation error")
	}
	if s.Step() != StepDomain || len(s.Questions()) != 0 {
		t.Errorf("Expected session untouched, got step %s with %d questions", s.Step(), len(s.Questions()))
	}
}

func TestSubmitValidation(t *testing.T) {
	fb := twoQuestionBackend()
	s := New(fb, nil, testInterviewConfig(), appErrors.Discard())
	ctx := context.Background()

	_, err := s.Submit(ctx, "   ")
	assertStepMessage(t, err, MsgEmptyAnswer)

	_, err = s.Submit(ctx, "an answer")
	assertStepMessage(t, err, MsgNoQuestion)

	if len(fb.evaluated) != 0 {
		t.Errorf("Expected no evaluation requests, got %d", len(fb.evaluated))
	}
}

func TestFullPracticeRun(t *testing.T) {
	fb := twoQuestionBackend()
	store := NewMemoryStore()
	s := New(fb, store, testInterviewConfig(), appErrors.Discard())
	ctx := context.Background()

	_ = s.SelectDomain("Software Engineer")
	s.SetLevel("Senior Level")
	s.SetJobDescription("Go services")
	_, _ = s.AttachResume(ctx, "cv.pdf", []byte("%PDF"))
	if _, err := s.Begin(ctx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	first, err := s.Submit(ctx, "A lightweight thread managed by the runtime.")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if first.Finished || first.Next == nil || first.Next.Index != 1 {
		t.Fatalf("Expected to move to the second question, got %+v", first)
	}
	if first.Next.Question.Type != "technical" {
		t.Errorf("Expected default question type, got %q", first.Next.Question.Type)
	}
	if first.Evaluation.Score == nil || *first.Evaluation.Score != 6 {
		t.Errorf("Expected coerced score 6, got %v", first.Evaluation.Score)
	}

	second, err := s.Submit(ctx, "We agreed on a design review.")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !second.Finished {
		t.Fatal("Expected the run to finish")
	}
	if s.Step() != StepResults {
		t.Errorf("Expected results step, got %s", s.Step())
	}

	req := fb.evaluated[1]
	if req.Level != "senior_level" || req.QuestionType != "technical" || req.JobDescription != "Go services" {
		t.Errorf("Unexpected evaluation request: %+v", req)
	}
	if req.ResumeToken == nil || *req.ResumeToken != "tok-1" {
		t.Errorf("Expected resume token sent, got %v", req.ResumeToken)
	}

	res := s.Results()
	if res.Total == nil || *res.Total != 8 {
		t.Errorf("Expected total 8, got %v", scoring.FormatScore(res.Total))
	}
	if len(res.Items) != 2 || res.Items[1].Question != "Tell me about a conflict." {
		t.Errorf("Unexpected result items: %+v", res.Items)
	}

	if v, ok, _ := store.Get(ctx, KeyTotalScore); !ok || v != "8" {
		t.Errorf("Expected cached total 8, got %q", v)
	}
}

func TestEvaluationFailureKeepsAnswer(t *testing.T) {
	fb := twoQuestionBackend()
	s := New(fb, nil, testInterviewConfig(), appErrors.Discard())
	ctx := context.Background()

	_ = s.SelectDomain("Business Analyst")
	_, _ = s.Begin(ctx)

	fb.evaluateErr = appErrors.NewBackendError(appErrors.ErrCodeEvaluateAnswer, "Sorry, could not evaluate your answer. Please try again.", errors.New("timeout"))
	if _, err := s.Submit(ctx, "my draft answer"); err == nil {
		t.Fatal("Expected evaluation error")
	}

	cur, ok := s.Current()
	if !ok || cur.Index != 0 {
		t.Fatalf("Expected to stay on the first question, got %+v", cur)
	}
	if cur.SavedAnswer != "my draft answer" {
		t.Errorf("Expected saved answer to be offered again, got %q", cur.SavedAnswer)
	}
}

func TestPreviousQuestionOffersSavedAnswer(t *testing.T) {
	fb := twoQuestionBackend()
	s := New(fb, nil, testInterviewConfig(), appErrors.Discard())
	ctx := context.Background()

	_ = s.SelectDomain("ML Engineer")
	_, _ = s.Begin(ctx)
	_, _ = s.Submit(ctx, "first answer")

	cur, ok := s.PreviousQuestion()
	if !ok || cur.Index != 0 || cur.SavedAnswer != "first answer" {
		t.Errorf("Expected first question with saved answer, got %+v", cur)
	}
}

func TestRestoreResumesAtFirstUnanswered(t *testing.T) {
	fb := twoQuestionBackend()
	store := NewMemoryStore()
	ctx := context.Background()

	original := New(fb, store, testInterviewConfig(), appErrors.Discard())
	_ = original.SelectDomain("Deep Learning Engineer")
	_, _ = original.AttachResume(ctx, "cv.pdf", []byte("%PDF"))
	_, _ = original.Begin(ctx)
	_, _ = original.Submit(ctx, "first answer")

	restored := New(fb, store, testInterviewConfig(), appErrors.Discard())
	restored.Restore(ctx)

	if restored.Step() != StepInterview {
		t.Errorf("Expected interview step, got %s", restored.Step())
	}
	cur, ok := restored.Current()
	if !ok || cur.Index != 1 {
		t.Errorf("Expected second question, got %+v", cur)
	}
	if restored.CandidateName() != "Ada" || restored.Profile().Domain != "Deep Learning Engineer" {
		t.Errorf("Expected profile restored, got %q / %+v", restored.CandidateName(), restored.Profile())
	}
	if restored.Results().Items[0].Question != "What is a goroutine?" {
		t.Errorf("Expected restored evaluation")
	}
}

func TestRestoreIgnoresUnreadableCache(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.Set(ctx, KeyQuestions, "not json")
	_ = store.Set(ctx, KeyEvaluations, "[1,2]")
	_ = store.Set(ctx, KeyResumeToken, "tok-9")

	s := New(twoQuestionBackend(), store, testInterviewConfig(), appErrors.Discard())
	s.Restore(ctx)

	if len(s.Questions()) != 0 {
		t.Errorf("Expected no questions, got %d", len(s.Questions()))
	}
	if s.Step() != StepDomain {
		t.Errorf("Expected first step, got %s", s.Step())
	}
	if !s.Snapshot().HasResume {
		t.Error("Expected readable resume token to be kept")
	}
}

func TestResetClearsCache(t *testing.T) {
	fb := twoQuestionBackend()
	store := NewMemoryStore()
	s := New(fb, store, testInterviewConfig(), appErrors.Discard())
	ctx := context.Background()

	_ = s.SelectDomain("AI Engineer")
	_, _ = s.AttachResume(ctx, "cv.pdf", []byte("%PDF"))
	_, _ = s.Begin(ctx)

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for _, key := range allKeys {
		if _, ok, _ := store.Get(ctx, key); ok {
			t.Errorf("Expected %s to be cleared", key)
		}
	}
	if !s.Results().Empty() || s.Step() != StepDomain {
		t.Error("Expected a fresh session")
	}
}

func TestDuplicateQuestionTextCollides(t *testing.T) {
	fb := &fakeBackend{
		questions: []types.QuestionRecord{
			{Question: "Why this role?"},
			{Question: "Why this role?"},
		},
		evaluations: map[string]scoring.RawEvaluation{
			"Why this role?": scoring.FromFields(map[string]any{"score": 5.0}),
		},
	}
	s := New(fb, nil, testInterviewConfig(), appErrors.Discard())
	ctx := context.Background()

	_ = s.SelectDomain("HR")
	_, _ = s.Begin(ctx)
	_, _ = s.Submit(ctx, "first")

	cur, _ := s.Current()
	if cur.SavedAnswer != "first" {
		t.Errorf("Expected colliding question to show the earlier answer, got %q", cur.SavedAnswer)
	}

	_, _ = s.Submit(ctx, "second")
	if len(s.Results().Items) != 1 {
		t.Errorf("Expected one result for two identical questions, got %d", len(s.Results().Items))
	}
}

func TestTrackedTotal(t *testing.T) {
	set := scoring.NewEvaluationSet()
	set.Put("a", scoring.FromFields(map[string]any{"overall_score": 85.0}))
	set.Put("b", scoring.FromFields(map[string]any{"score": 7.0}))
	set.Put("c", scoring.FromFields(map[string]any{"score": "9"}))
	set.Put("d", scoring.FromText("no numbers"))

	total := TrackedTotal(set)
	if total == nil || math.Abs(*total-46) > 1e-9 {
		t.Fatalf("Expected unscaled mean 46, got %v", total)
	}

	// The aggregator clamps the tracked total it is given
	res := scoring.Aggregate(set, total)
	if *res.Total != 10 {
		t.Errorf("Expected clamped total 10, got %v", *res.Total)
	}

	if TrackedTotal(scoring.NewEvaluationSet()) != nil {
		t.Error("Expected no total without numeric scores")
	}
}

func TestLevelCode(t *testing.T) {
	tests := []struct {
		level    string
		expected string
	}{
		{"", "mid_level"},
		{"Senior Level", "senior_level"},
		{"Entry  Level", "entry_level"},
		{"Executive", "executive"},
	}
	for _, tt := range tests {
		if got := LevelCode(tt.level, "mid_level"); got != tt.expected {
			t.Errorf("LevelCode(%q) = %q, expected %q", tt.level, got, tt.expected)
		}
	}
}

func TestMergeJobDescription(t *testing.T) {
	if got := MergeJobDescription("", "", ""); got != "Company Focus: \nSeniority Level:" {
		t.Errorf("Unexpected empty merge: %q", got)
	}
	if got := MergeJobDescription("JD", "Meta", "Executive"); got != "JD\n\nCompany Focus: Meta\nSeniority Level: Executive" {
		t.Errorf("Unexpected merge: %q", got)
	}
}
