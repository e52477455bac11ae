package cli

import (
	"context"
	"path/filepath"
	"testing"

	appErrors "aceinterview/internal/errors"
	"aceinterview/internal/scoring"
	"aceinterview/internal/session"
)

func TestBuildQuestionsInput(t *testing.T) {
	cfg := testConfig().Interview

	tests := []struct {
		name        string
		opts        questionOptions
		jd          string
		wantDomain  string
		wantJD      string
		wantName    string
		wantCount   int
		wantToken   bool
		expectError bool
	}{
		{
			name:       "domain with company and level",
			opts:       questionOptions{domain: "data science", company: "google", level: "senior level", resumeToken: "tok"},
			jd:         "Build models.",
			wantDomain: "Data Science",
			wantJD:     "Build models.\n\nCompany Focus: Google\nSeniority Level: Senior Level",
			wantName:   "there",
			wantCount:  5,
			wantToken:  true,
		},
		{
			name:       "interview type fallback",
			opts:       questionOptions{interviewType: "behavioral", name: " Ada ", count: 3},
			wantDomain: "Behavioral",
			wantJD:     "Company Focus: \nSeniority Level:",
			wantName:   "Ada",
			wantCount:  3,
		},
		{
			name:       "default interview type",
			opts:       questionOptions{},
			wantDomain: "All",
			wantJD:     "Company Focus: \nSeniority Level:",
			wantName:   "there",
			wantCount:  5,
		},
		{
			name:        "unknown level",
			opts:        questionOptions{domain: "Data Science", level: "Intern"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := buildQuestionsInput(tt.opts, cfg, tt.jd)
			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if input.Domain != tt.wantDomain || input.Role != tt.wantDomain {
				t.Errorf("Expected domain and role %q, got %q/%q", tt.wantDomain, input.Domain, input.Role)
			}
			if input.JobDescription != tt.wantJD {
				t.Errorf("Expected job description %q, got %q", tt.wantJD, input.JobDescription)
			}
			if input.Name != tt.wantName {
				t.Errorf("Expected name %q, got %q", tt.wantName, input.Name)
			}
			if input.NQuestions != tt.wantCount {
				t.Errorf("Expected %d questions, got %d", tt.wantCount, input.NQuestions)
			}
			if (input.ResumeToken != nil) != tt.wantToken {
				t.Errorf("Expected token presence %v, got %v", tt.wantToken, input.ResumeToken)
			}
		})
	}
}

func TestLoadResultsFromFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := session.NewFileStore(path)
	cfg := testConfig().Interview
	logger := appErrors.Discard()

	if results := loadResults(context.Background(), store, cfg, logger); !results.Empty() {
		t.Fatalf("Expected empty results without a session file, got %+v", results)
	}

	b := newFakeBackend()
	sess := session.New(b, store, cfg, logger)
	if err := sess.SelectDomain("Data Science"); err != nil {
		t.Fatal(err)
	}
	if _, err := sess.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, answer := range []string{"one", "two"} {
		if _, err := sess.Submit(context.Background(), answer); err != nil {
			t.Fatal(err)
		}
	}

	results := loadResults(context.Background(), store, cfg, logger)
	if len(results.Items) != 2 {
		t.Errorf("Expected 2 items, got %d", len(results.Items))
	}
	if got := scoring.FormatScore(results.Total); got != "8.0" {
		t.Errorf("Expected total 8.0, got %s", got)
	}
}
