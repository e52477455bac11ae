package types

import "aceinterview/internal/scoring"

// QuestionRecord is one generated interview question
type QuestionRecord struct {
	Question string `json:"question"`
	Type     string `json:"type"`
}

// ParseResumeInput represents the resume file sent for parsing
type ParseResumeInput struct {
	FileName string `json:"fileName"`
	Content  []byte `json:"-"`
}

// ParseResumeOutput represents the backend's view of an uploaded resume
type ParseResumeOutput struct {
	Name        string `json:"name,omitempty"`
	ResumeToken string `json:"resume_token,omitempty"`
}

// GenerateQuestionsInput represents the request body for question generation
type GenerateQuestionsInput struct {
	Name           string  `json:"name"`
	Domain         string  `json:"domain"`
	Role           string  `json:"role"`
	JobDescription string  `json:"job_description"`
	NQuestions     int     `json:"n_questions"`
	ResumeToken    *string `json:"resume_token"` // null when no resume was parsed
}

// GenerateQuestionsOutput represents the generated question list.
// Entries are raw so that null or malformed items can be filtered.
type GenerateQuestionsOutput struct {
	Questions []*QuestionRecord `json:"questions"`
}

// EvaluateAnswerInput represents the request body for answer evaluation
type EvaluateAnswerInput struct {
	Question       string  `json:"question"`
	Answer         string  `json:"answer"`
	QuestionType   string  `json:"question_type"`
	Level          string  `json:"level"`
	ResumeToken    *string `json:"resume_token"`
	JobDescription string  `json:"job_description"`
}

// EvaluateAnswerOutput carries the unnormalized evaluation
type EvaluateAnswerOutput struct {
	Evaluation scoring.RawEvaluation `json:"evaluation"`
}

// OptionalToken returns nil for an empty token so it is sent as JSON null
func OptionalToken(token string) *string {
	if token == "" {
		return nil
	}
	return &token
}
