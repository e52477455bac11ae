package config

import "time"

// ResolvedOperation is the effective configuration for one backend endpoint
type ResolvedOperation struct {
	Name           string
	URL            string
	Timeout        time.Duration
	MaxRetries     int
	CircuitBreaker CircuitBreakerConfig
}

// applyOperationDefaults applies global defaults to operation-specific configuration
func (c *Config) applyOperationDefaults(name string, opCfg OperationConfig) ResolvedOperation {
	resolved := ResolvedOperation{
		Name:           name,
		URL:            joinURL(c.Backend.BaseURL, opCfg.Path),
		Timeout:        c.Backend.Timeout,
		MaxRetries:     c.Backend.MaxRetries,
		CircuitBreaker: opCfg.CircuitBreaker,
	}
	if opCfg.Timeout != nil {
		resolved.Timeout = *opCfg.Timeout
	}
	if opCfg.MaxRetries != nil {
		resolved.MaxRetries = *opCfg.MaxRetries
	}
	return resolved
}

// GetParseResumeConfig returns the resume upload endpoint configuration with fallback to global config
func (c *Config) GetParseResumeConfig() ResolvedOperation {
	return c.applyOperationDefaults("parse_resume", c.Backend.ParseResume)
}

// GetGenerateQuestionsConfig returns the question generation endpoint configuration with fallback to global config
func (c *Config) GetGenerateQuestionsConfig() ResolvedOperation {
	return c.applyOperationDefaults("generate_questions", c.Backend.GenerateQuestions)
}

// GetEvaluateAnswerConfig returns the answer evaluation endpoint configuration with fallback to global config
func (c *Config) GetEvaluateAnswerConfig() ResolvedOperation {
	return c.applyOperationDefaults("evaluate_answer", c.Backend.EvaluateAnswer)
}
