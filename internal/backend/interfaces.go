package backend

import (
	"context"
	"time"

	"aceinterview/internal/scoring"
	"aceinterview/internal/types"
)

// Backend is the interview service consumed by a practice session
type Backend interface {
	ParseResume(ctx context.Context, input types.ParseResumeInput) (types.ParseResumeOutput, error)
	GenerateQuestions(ctx context.Context, input types.GenerateQuestionsInput) ([]types.QuestionRecord, error)
	EvaluateAnswer(ctx context.Context, input types.EvaluateAnswerInput) (scoring.RawEvaluation, error)
	CircuitBreakerStats() map[string]any
	Close() error
}

// OperationObserver receives the outcome of every backend call
type OperationObserver interface {
	ObserveBackendOperation(ctx context.Context, operation string, duration time.Duration, err error)
}
