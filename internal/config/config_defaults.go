package config

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Backend Configuration - Global defaults
	v.SetDefault("backend.baseURL", "http://127.0.0.1:7860")
	v.SetDefault("backend.timeout", 60*time.Second)
	v.SetDefault("backend.maxRetries", 0) // Failures surface to the candidate instead of being retried
	v.SetDefault("backend.userAgent", "aceinterview")

	// Backend Configuration - per-operation endpoints
	v.SetDefault("backend.parseResume.path", "/parse_resume")
	v.SetDefault("backend.generateQuestions.path", "/generate_questions")
	v.SetDefault("backend.evaluateAnswer.path", "/evaluate_answer")

	// Question generation and evaluation run a model, so they get longer timeouts
	v.SetDefault("backend.parseResume.timeout", 30*time.Second)
	v.SetDefault("backend.generateQuestions.timeout", 90*time.Second)
	v.SetDefault("backend.evaluateAnswer.timeout", 90*time.Second)

	// Circuit Breaker Configuration defaults for all operations
	for _, op := range []string{"parseResume", "generateQuestions", "evaluateAnswer"} {
		prefix := "backend." + op + ".circuitBreaker."
		v.SetDefault(prefix+"enabled", true)
		v.SetDefault(prefix+"maxRequests", 3)
		v.SetDefault(prefix+"interval", 60*time.Second)
		v.SetDefault(prefix+"timeout", 60*time.Second)
		v.SetDefault(prefix+"minRequests", 3)
		v.SetDefault(prefix+"failureThreshold", 0.6)
	}

	// Interview Configuration
	v.SetDefault("interview.questionCount", 5)
	v.SetDefault("interview.defaultName", "there")
	v.SetDefault("interview.defaultQuestionType", "technical")
	v.SetDefault("interview.defaultLevel", "mid_level")
	v.SetDefault("interview.defaultInterviewType", "All")
	v.SetDefault("interview.domains", []string{
		"Data Scientist",
		"Data Analyst",
		"Business Analyst",
		"ML Engineer",
		"Deep Learning Engineer",
		"AI Engineer",
		"Software Engineer",
		"Software AI Engineer",
		"AI Researcher",
	})
	v.SetDefault("interview.levels", []string{"Entry Level", "Mid Level", "Senior Level", "Executive"})
	v.SetDefault("interview.companies", []string{"Google", "Amazon", "Microsoft", "Apple", "Meta", "Other"})
	v.SetDefault("interview.interviewTypes", []string{"All", "HR", "Behavioral", "Technical", "Coding"})

	// Session Configuration
	v.SetDefault("session.store", "file")
	v.SetDefault("session.filePath", ".aceinterview-session.json")
	v.SetDefault("session.keyPrefix", "aceinterview:session:")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.redis.address", "localhost:6379")
	v.SetDefault("session.redis.password", "")
	v.SetDefault("session.redis.db", 0)
	v.SetDefault("session.redis.dialTimeout", 5*time.Second)
	v.SetDefault("session.redis.readTimeout", 3*time.Second)
	v.SetDefault("session.redis.writeTimeout", 3*time.Second)
	v.SetDefault("session.redis.poolSize", 10)

	// Server Configuration
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", 30*time.Second)
	v.SetDefault("server.writeTimeout", 120*time.Second) // Long enough for a question generation round-trip
	v.SetDefault("server.idleTimeout", 120*time.Second)
	v.SetDefault("server.sessionIdleTimeout", 2*time.Hour)
	// API Authentication defaults
	v.SetDefault("server.apiKeys", []string{})
	// Rate limiting defaults
	v.SetDefault("server.rateLimit.enabled", false)
	v.SetDefault("server.rateLimit.requestsPerMin", 60)
	v.SetDefault("server.rateLimit.burstCapacity", 10)
	v.SetDefault("server.rateLimit.byIP", true)
	v.SetDefault("server.rateLimit.byAPIKey", false)
	// CORS defaults
	v.SetDefault("server.cors.allowedOrigins", []string{"http://localhost:3000"})
	v.SetDefault("server.cors.allowCredentials", false)
	v.SetDefault("server.cors.maxAge", 300)

	// App Configuration
	v.SetDefault("app.logLevel", "info")
	v.SetDefault("app.defaultFormat", "text")
	v.SetDefault("app.supportedFormats", []string{"json", "text", "markdown"})
	v.SetDefault("app.maxFileSize", 5*1024*1024) // 5MB resume upload

	// Observability Configuration
	v.SetDefault("observability.enabled", true)
	v.SetDefault("observability.serviceName", "aceinterview")
	v.SetDefault("observability.serviceVersion", "")  // Will use app version if empty
	v.SetDefault("observability.serviceInstance", "") // Will be auto-generated if empty
	v.SetDefault("observability.consoleOutput", false)
	v.SetDefault("observability.sampleRate", 1.0)

	// Metrics Configuration
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.collectionInterval", 15*time.Second)

	// Custom Metrics Configuration
	v.SetDefault("observability.customMetrics.backendOperations.enabled", true)
	v.SetDefault("observability.customMetrics.backendOperations.trackDuration", true)
	v.SetDefault("observability.customMetrics.sessionMetrics.enabled", true)
	v.SetDefault("observability.customMetrics.sessionMetrics.trackScores", true)
	v.SetDefault("observability.customMetrics.infrastructure.enabled", true)
	v.SetDefault("observability.customMetrics.infrastructure.trackRateLimits", true)

	// Console Configuration
	v.SetDefault("observability.console.enabled", false)
	v.SetDefault("observability.console.prettyPrint", true)

	// Prometheus Configuration
	v.SetDefault("observability.prometheus.enabled", true)
	v.SetDefault("observability.prometheus.endpoint", "/metrics")
	v.SetDefault("observability.prometheus.port", "9090")

	// OTLP Configuration
	v.SetDefault("observability.otlp.enabled", false)
	v.SetDefault("observability.otlp.endpoint", "http://localhost:4318")
	v.SetDefault("observability.otlp.insecure", true)
	v.SetDefault("observability.otlp.headers", map[string]string{})

	// Health Check Configuration
	v.SetDefault("observability.healthCheck.timeout", 5*time.Second)
}
