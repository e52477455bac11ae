package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"aceinterview/internal/config"
	appErrors "aceinterview/internal/errors"
	"aceinterview/internal/observability"
	"aceinterview/internal/scoring"
	"aceinterview/internal/session"
	"aceinterview/internal/types"
)

type fakeBackend struct {
	parseOut  types.ParseResumeOutput
	parseErr  error
	questions []types.QuestionRecord
	scores    map[string]scoring.RawEvaluation
	healthy   bool

	generated []types.GenerateQuestionsInput
}

func (f *fakeBackend) ParseResume(_ context.Context, _ types.ParseResumeInput) (types.ParseResumeOutput, error) {
	return f.parseOut, f.parseErr
}

func (f *fakeBackend) GenerateQuestions(_ context.Context, input types.GenerateQuestionsInput) ([]types.QuestionRecord, error) {
	f.generated = append(f.generated, input)
	return f.questions, nil
}

func (f *fakeBackend) EvaluateAnswer(_ context.Context, input types.EvaluateAnswerInput) (scoring.RawEvaluation, error) {
	return f.scores[input.Question], nil
}

func (f *fakeBackend) CircuitBreakerStats() map[string]any {
	return map[string]any{"overall_healthy": f.healthy}
}

func (f *fakeBackend) Close() error { return nil }

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		healthy:  true,
		parseOut: types.ParseResumeOutput{Name: "Ada", ResumeToken: "tok-1"},
		questions: []types.QuestionRecord{
			{Question: "What is a goroutine?", Type: "technical"},
			{Question: "Tell me about a conflict.", Type: "behavioral"},
		},
		scores: map[string]scoring.RawEvaluation{
			"What is a goroutine?":      scoring.FromFields(map[string]any{"overall_score": 6.0}),
			"Tell me about a conflict.": scoring.FromText(`{"score": 10, "strengths": ["honest"]}`),
		},
	}
}

func testAppConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Interview = config.InterviewConfig{
		QuestionCount:        5,
		DefaultName:          "there",
		DefaultQuestionType:  "technical",
		DefaultLevel:         "mid_level",
		DefaultInterviewType: "All",
		Domains:              []string{"Software Engineering", "Data Science"},
		Levels:               []string{"Entry Level", "Mid Level", "Senior Level"},
		Companies:            []string{"Google", "Amazon"},
		InterviewTypes:       []string{"All", "Technical", "Behavioral"},
	}
	cfg.Session.Store = "memory"
	cfg.App.MaxFileSize = 1024
	cfg.App.SupportedFormats = []string{"json", "text", "markdown"}
	return cfg
}

// newTestServer returns an httptest server with observability disabled
func newTestServer(t *testing.T, b *fakeBackend, mutate ...func(*ServerConfig)) (*Server, *httptest.Server) {
	t.Helper()

	appCfg := testAppConfig()
	cfg := ServerConfig{
		Version:        "test",
		MaxRequestSize: 1 << 20,
		Backend:        b,
		Store:          session.NewMemoryStore(),
	}
	for _, m := range mutate {
		m(&cfg)
	}

	s := NewServer(appCfg, cfg, appErrors.Discard())
	if err := s.initializeSessions(); err != nil {
		t.Fatalf("Failed to initialize sessions: %v", err)
	}

	om, err := observability.NewObservabilityManager(observability.ObservabilityConfig{Enabled: false}, appCfg)
	if err != nil {
		t.Fatalf("Failed to create observability manager: %v", err)
	}

	ts := httptest.NewServer(s.setupRoutes(om))
	t.Cleanup(func() {
		ts.Close()
		s.releaseResources()
	})
	return s, ts
}

func doJSON(t *testing.T, method, url, body string, headers ...string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return send(t, req)
}

func uploadResume(t *testing.T, url, fileName string, content []byte) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	_, _ = part.Write(content)
	_ = mw.Close()

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return send(t, req)
}

func send(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	return resp, body
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("Failed to decode %s: %v", body, err)
	}
	return v
}

func TestPracticeSessionOverHTTP(t *testing.T) {
	b := newFakeBackend()
	_, ts := newTestServer(t, b)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/sessions",
		`{"domain": "data science", "company": "google", "level": "senior level"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.StatusCode, body)
	}
	created := decode[SessionResponse](t, body)
	if created.Session.Profile.Domain != "Data Science" {
		t.Errorf("Expected catalogue spelling 'Data Science', got %q", created.Session.Profile.Domain)
	}
	base := ts.URL + "/api/sessions/" + created.SessionID

	resp, body = uploadResume(t, base+"/resume", "resume.txt", []byte("Ada Lovelace, analyst"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200 for resume upload, got %d: %s", resp.StatusCode, body)
	}
	uploaded := decode[ResumeResponse](t, body)
	if !uploaded.HasResume || uploaded.CandidateName != "Ada" {
		t.Errorf("Expected parsed resume for Ada, got %+v", uploaded)
	}

	resp, body = doJSON(t, http.MethodPost, base+"/questions", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200 for questions, got %d: %s", resp.StatusCode, body)
	}
	started := decode[SessionResponse](t, body)
	if started.Current == nil || started.Current.Question.Question != "What is a goroutine?" {
		t.Fatalf("Expected first question to be current, got %+v", started.Current)
	}
	if len(b.generated) != 1 {
		t.Fatalf("Expected one generation request, got %d", len(b.generated))
	}
	if got := b.generated[0]; got.Name != "Ada" || got.Role != "Data Science" || got.ResumeToken == nil {
		t.Errorf("Unexpected generation request: %+v", got)
	}

	resp, body = doJSON(t, http.MethodPost, base+"/answers", `{"answer": "A lightweight thread."}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200 for first answer, got %d: %s", resp.StatusCode, body)
	}
	first := decode[session.SubmitResult](t, body)
	if first.Finished || first.Next == nil {
		t.Errorf("Expected a next question after the first answer, got %+v", first)
	}

	resp, body = doJSON(t, http.MethodPost, base+"/answers", `{"answer": "We talked it through."}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200 for second answer, got %d: %s", resp.StatusCode, body)
	}
	if last := decode[session.SubmitResult](t, body); !last.Finished {
		t.Errorf("Expected session to be finished after the last answer")
	}

	resp, body = doJSON(t, http.MethodGet, base+"/results", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200 for results, got %d: %s", resp.StatusCode, body)
	}
	results := decode[scoring.Results](t, body)
	if len(results.Items) != 2 {
		t.Errorf("Expected 2 result items, got %d", len(results.Items))
	}
	if results.Total == nil || *results.Total != 8 {
		t.Errorf("Expected total 8, got %v", results.Total)
	}
	if results.Celebrate {
		t.Errorf("Expected no celebration for a total of 8")
	}

	resp, body = doJSON(t, http.MethodGet, base+"/results?format=text", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200 for text results, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "TOTAL SCORE: 8.0 / 10") {
		t.Errorf("Expected text results to carry the total, got:\n%s", body)
	}

	resp, _ = doJSON(t, http.MethodGet, base+"/results?format=yaml", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unsupported format, got %d", resp.StatusCode)
	}
}

func TestResultsBeforeAnyAnswer(t *testing.T) {
	_, ts := newTestServer(t, newFakeBackend())

	_, body := doJSON(t, http.MethodPost, ts.URL+"/api/sessions", "")
	created := decode[SessionResponse](t, body)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/sessions/"+created.SessionID+"/results?format=text", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), scoring.EmptyResultsMessage) {
		t.Errorf("Expected %q, got:\n%s", scoring.EmptyResultsMessage, body)
	}
}

func TestQuestionsFallBackToInterviewType(t *testing.T) {
	b := newFakeBackend()
	_, ts := newTestServer(t, b)

	_, body := doJSON(t, http.MethodPost, ts.URL+"/api/sessions", "")
	created := decode[SessionResponse](t, body)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+created.SessionID+"/questions",
		`{"interview_type": "behavioral"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, body)
	}
	if len(b.generated) != 1 || b.generated[0].Domain != "Behavioral" {
		t.Errorf("Expected generation for interview type 'Behavioral', got %+v", b.generated)
	}
	if b.generated[0].ResumeToken != nil {
		t.Errorf("Expected null resume token without an upload")
	}
}

func TestRequestValidation(t *testing.T) {
	_, ts := newTestServer(t, newFakeBackend())

	_, body := doJSON(t, http.MethodPost, ts.URL+"/api/sessions", "")
	id := decode[SessionResponse](t, body).SessionID

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		expected int
	}{
		{"unknown domain", http.MethodPost, "/api/sessions", `{"domain": "Astrology"}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/sessions", `{"domian": "Data Science"}`, http.StatusBadRequest},
		{"malformed json", http.MethodPost, "/api/sessions", `{"domain":`, http.StatusBadRequest},
		{"missing answer", http.MethodPost, "/api/sessions/" + id + "/answers", `{}`, http.StatusBadRequest},
		{"answer before questions", http.MethodPost, "/api/sessions/" + id + "/answers", `{"answer": "hi"}`, http.StatusBadRequest},
		{"blank answer", http.MethodPost, "/api/sessions/" + id + "/answers", `{"answer": "   "}`, http.StatusBadRequest},
		{"unknown session", http.MethodGet, "/api/sessions/not-a-session", "", http.StatusNotFound},
		{"unknown uuid", http.MethodGet, "/api/sessions/00000000-0000-0000-0000-000000000000", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, tt.method, ts.URL+tt.path, tt.body)
			if resp.StatusCode != tt.expected {
				t.Errorf("Expected status %d, got %d: %s", tt.expected, resp.StatusCode, body)
			}
		})
	}
}

func TestResumeUpload(t *testing.T) {
	tests := []struct {
		name        string
		fileName    string
		content     []byte
		parseErr    error
		expected    int
		wantWarning bool
	}{
		{"text resume", "cv.txt", []byte("resume"), nil, http.StatusOK, false},
		{"unsupported type", "cv.docx", []byte("resume"), nil, http.StatusUnsupportedMediaType, false},
		{"too large", "cv.txt", bytes.Repeat([]byte("a"), 2048), nil, http.StatusRequestEntityTooLarge, false},
		{"empty file", "cv.txt", nil, nil, http.StatusBadRequest, false},
		{
			"backend failure keeps going", "cv.pdf", []byte("%PDF-1.4"),
			appErrors.NewBackendError(appErrors.ErrCodeParseResume, "We could not read your resume.", errors.New("boom")),
			http.StatusOK, true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend()
			b.parseErr = tt.parseErr
			_, ts := newTestServer(t, b)

			_, body := doJSON(t, http.MethodPost, ts.URL+"/api/sessions", "")
			id := decode[SessionResponse](t, body).SessionID

			resp, body := uploadResume(t, ts.URL+"/api/sessions/"+id+"/resume", tt.fileName, tt.content)
			if resp.StatusCode != tt.expected {
				t.Fatalf("Expected status %d, got %d: %s", tt.expected, resp.StatusCode, body)
			}
			if tt.expected != http.StatusOK {
				return
			}

			got := decode[ResumeResponse](t, body)
			if (got.Warning != "") != tt.wantWarning {
				t.Errorf("Expected warning=%v, got %q", tt.wantWarning, got.Warning)
			}
			if tt.wantWarning && got.Warning != "We could not read your resume." {
				t.Errorf("Expected the backend's user message as warning, got %q", got.Warning)
			}
		})
	}
}

func TestDeleteSession(t *testing.T) {
	s, ts := newTestServer(t, newFakeBackend())

	_, body := doJSON(t, http.MethodPost, ts.URL+"/api/sessions", "")
	id := decode[SessionResponse](t, body).SessionID

	resp, _ := doJSON(t, http.MethodDelete, ts.URL+"/api/sessions/"+id, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", resp.StatusCode)
	}
	if s.Sessions.Len() != 0 {
		t.Errorf("Expected no sessions left, got %d", s.Sessions.Len())
	}

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/sessions/"+id, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404 on second delete, got %d", resp.StatusCode)
	}
}

func TestAuthMiddleware(t *testing.T) {
	_, ts := newTestServer(t, newFakeBackend(), func(cfg *ServerConfig) {
		cfg.APIKeys = []string{"secret-key-123"}
	})

	tests := []struct {
		name     string
		headers  []string
		expected int
	}{
		{"missing key", nil, http.StatusUnauthorized},
		{"wrong key", []string{"X-API-Key", "nope"}, http.StatusUnauthorized},
		{"header key", []string{"X-API-Key", "secret-key-123"}, http.StatusOK},
		{"bearer token", []string{"Authorization", "Bearer secret-key-123"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/catalog", "", tt.headers...)
			if resp.StatusCode != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, resp.StatusCode)
			}
		})
	}

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected health to stay public, got %d", resp.StatusCode)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	_, ts := newTestServer(t, newFakeBackend(), func(cfg *ServerConfig) {
		cfg.RateLimit = &config.RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 1,
			BurstCapacity:  1,
			ByIP:           true,
		}
	})

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/catalog", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected first request to pass, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/catalog", "")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("Expected status 429, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Retry-After"); got != "60" {
		t.Errorf("Expected Retry-After 60, got %q", got)
	}
}

func TestHealthHandler(t *testing.T) {
	b := newFakeBackend()
	_, ts := newTestServer(t, b)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, body)
	}

	b.healthy = false
	resp, body = doJSON(t, http.MethodGet, ts.URL+"/health", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503 with an open breaker, got %d", resp.StatusCode)
	}
	if status := decode[map[string]any](t, body)["status"]; status != "degraded" {
		t.Errorf("Expected degraded status, got %v", status)
	}
}

func TestStatsHandler(t *testing.T) {
	_, ts := newTestServer(t, newFakeBackend())
	doJSON(t, http.MethodPost, ts.URL+"/api/sessions", "")

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/stats", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	stats := decode[map[string]any](t, body)
	sessions, ok := stats["sessions"].(map[string]any)
	if !ok {
		t.Fatalf("Expected sessions stats, got %v", stats)
	}
	if sessions["active_sessions"] != float64(1) {
		t.Errorf("Expected 1 active session, got %v", sessions["active_sessions"])
	}
}

func TestCatalogHandler(t *testing.T) {
	_, ts := newTestServer(t, newFakeBackend())

	_, body := doJSON(t, http.MethodGet, ts.URL+"/api/catalog", "")
	catalog := decode[struct {
		Domains       []string `json:"domains"`
		Levels        []string `json:"levels"`
		QuestionCount int      `json:"question_count"`
	}](t, body)

	if len(catalog.Domains) != 2 || catalog.Domains[0] != "Software Engineering" {
		t.Errorf("Unexpected domains: %v", catalog.Domains)
	}
	if len(catalog.Levels) != 3 {
		t.Errorf("Expected 3 levels, got %v", catalog.Levels)
	}
	if catalog.QuestionCount != 5 {
		t.Errorf("Expected question count 5, got %d", catalog.QuestionCount)
	}
}

func TestWriteAppError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
		message  string
	}{
		{
			"validation", appErrors.NewValidationError(appErrors.ErrCodeStepPrecondition, session.MsgEmptyAnswer, nil),
			http.StatusBadRequest, session.MsgEmptyAnswer,
		},
		{
			"open breaker", appErrors.NewBackendError(appErrors.ErrCodeBackendOpen, "The interview service is busy.", nil),
			http.StatusServiceUnavailable, "The interview service is busy.",
		},
		{
			"backend", appErrors.NewBackendError(appErrors.ErrCodeEvaluateAnswer, "Evaluation failed.", nil),
			http.StatusBadGateway, "Evaluation failed.",
		},
		{
			"network", appErrors.NewNetworkError(appErrors.ErrCodeNetworkTimeout, "The request timed out.", nil),
			http.StatusBadGateway, "The request timed out.",
		},
		{
			"plain error", errors.New("boom"),
			http.StatusInternalServerError, "Something went wrong. Please try again.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeAppError(rec, tt.err)

			if rec.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, rec.Code)
			}
			got := decode[ErrorResponse](t, rec.Body.Bytes())
			if got.Message != tt.message {
				t.Errorf("Expected message %q, got %q", tt.message, got.Message)
			}
		})
	}
}

func BenchmarkGetClientIP(b *testing.B) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "bogus, 203.0.113.7, 10.0.0.1")
	for b.Loop() {
		_ = getClientIP(req)
	}
}
