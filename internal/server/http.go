package server

import (
	"time"

	"aceinterview/internal/backend"
	"aceinterview/internal/config"
	appErrors "aceinterview/internal/errors"
	"aceinterview/internal/session"
)

// CreateSessionRequest represents the optional body for creating a session
type CreateSessionRequest struct {
	Domain         string `json:"domain"`
	InterviewType  string `json:"interview_type"`
	Company        string `json:"company"`
	Level          string `json:"level"`
	JobDescription string `json:"job_description"`
	CandidateName  string `json:"candidate_name"`
}

// QuestionsRequest represents the optional body for starting the interview
type QuestionsRequest struct {
	Domain         string  `json:"domain"`
	InterviewType  string  `json:"interview_type"`
	Company        string  `json:"company"`
	Level          string  `json:"level"`
	JobDescription *string `json:"job_description"`
}

// AnswerRequest represents the request body for answering the current question
type AnswerRequest struct {
	Answer string `json:"answer"`
}

// SessionResponse describes a session and the question awaiting an answer
type SessionResponse struct {
	SessionID string                   `json:"session_id"`
	Session   session.Snapshot         `json:"session"`
	Current   *session.CurrentQuestion `json:"current,omitempty"`
}

// ResumeResponse is returned after a resume upload
type ResumeResponse struct {
	SessionID     string `json:"session_id"`
	FileName      string `json:"file_name"`
	CandidateName string `json:"candidate_name,omitempty"`
	HasResume     bool   `json:"has_resume"`
	Warning       string `json:"warning,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Server holds configuration for the HTTP server
type Server struct {
	Host    string
	Port    string
	Version string

	// Full application configuration
	AppConfig *config.Config

	// API Authentication
	APIKeys map[string]bool

	// Timeout configurations
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Request size limit
	MaxRequestSize int64

	// Rate limiting
	RateLimit   *config.RateLimitConfig
	RateLimiter *RateLimiter

	// Interview backend and the sessions driving it
	Backend  backend.Backend
	Sessions *session.Manager
	store    session.Store

	Logger *appErrors.Logger
}

// ServerConfig holds configuration for creating a Server instance
type ServerConfig struct {
	Host           string
	Port           string
	Version        string
	APIKeys        []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxRequestSize int64
	RateLimit      *config.RateLimitConfig

	// Backend overrides the HTTP backend client, mostly for tests
	Backend backend.Backend
	// Store overrides the store built from the session configuration
	Store session.Store
}

// NewServer creates a new Server instance from a ServerConfig struct
func NewServer(appCfg *config.Config, cfg ServerConfig, logger *appErrors.Logger) *Server {
	// Convert API keys slice to map for O(1) lookup
	apiKeyMap := make(map[string]bool)
	for _, key := range cfg.APIKeys {
		if key != "" {
			apiKeyMap[key] = true
		}
	}

	var rateLimiter *RateLimiter
	if cfg.RateLimit != nil && cfg.RateLimit.Enabled {
		rateLimiter = NewRateLimiter(
			cfg.RateLimit.RequestsPerMin,
			cfg.RateLimit.BurstCapacity,
			logger,
		)
	}

	return &Server{
		Host:           cfg.Host,
		Port:           cfg.Port,
		Version:        cfg.Version,
		AppConfig:      appCfg,
		APIKeys:        apiKeyMap,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxRequestSize: cfg.MaxRequestSize,
		RateLimit:      cfg.RateLimit,
		RateLimiter:    rateLimiter,
		Backend:        cfg.Backend,
		store:          cfg.Store,
		Logger:         logger,
	}
}
