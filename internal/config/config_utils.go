package config

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// applyFallbacks applies environment variable fallbacks
func (c *Config) applyFallbacks() {
	c.applyServerAPIKeyFallbacks()
	c.applyBackendDefaults()
	c.applyObservabilityDefaults()
}

// applyServerAPIKeyFallbacks applies API key fallbacks from environment variables
func (c *Config) applyServerAPIKeyFallbacks() {
	if len(c.Server.APIKeys) == 0 {
		if apiKeysEnv := os.Getenv("ACEINTERVIEW_SERVER_APIKEYS"); apiKeysEnv != "" {
			c.Server.APIKeys = strings.Split(apiKeysEnv, ",")
		}
	}

	// Trim whitespace from each key and drop blanks
	keys := c.Server.APIKeys[:0]
	for _, key := range c.Server.APIKeys {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	c.Server.APIKeys = keys
}

// applyBackendDefaults normalizes the backend base URL
func (c *Config) applyBackendDefaults() {
	c.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(c.Backend.BaseURL), "/")
}

// applyObservabilityDefaults applies default observability configuration values
func (c *Config) applyObservabilityDefaults() {
	if c.Observability.ServiceInstance == "" {
		c.Observability.ServiceInstance = generateServiceInstanceID(c.Observability.ServiceName)
	}
}

// generateServiceInstanceID generates a unique service instance ID
func generateServiceInstanceID(serviceName string) string {
	if hostname, err := os.Hostname(); err == nil {
		return fmt.Sprintf("%s-%s", serviceName, hostname)
	}
	return fmt.Sprintf("%s-1", serviceName)
}

// joinURL joins a base URL and an endpoint path with exactly one slash
func joinURL(base, path string) string {
	if path == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// logConfigurationSources logs a summary of configuration sources being used
func (c *Config) logConfigurationSources(configFileUsed string) {
	log.Println("[CONFIG] === Configuration Sources Summary ===")

	if configFileUsed != "" {
		log.Printf("[CONFIG] Config file: %s", configFileUsed)
	} else {
		log.Println("[CONFIG] Config file: None (using defaults)")
	}

	envVars := []string{
		"ACEINTERVIEW_BACKEND_BASEURL",
		"ACEINTERVIEW_SESSION_STORE",
		"ACEINTERVIEW_SESSION_REDIS_ADDRESS",
		"ACEINTERVIEW_SESSION_REDIS_PASSWORD",
		"ACEINTERVIEW_SERVER_PORT",
		"ACEINTERVIEW_SERVER_HOST",
		"ACEINTERVIEW_SERVER_APIKEYS",
		"ACEINTERVIEW_APP_LOGLEVEL",
	}

	log.Println("[CONFIG] Environment variables:")
	hasEnvVars := false
	for _, envVar := range envVars {
		if value := os.Getenv(envVar); value != "" {
			lower := strings.ToLower(envVar)
			if strings.Contains(lower, "key") || strings.Contains(lower, "password") {
				log.Printf("[CONFIG]   %s=***MASKED***", envVar)
			} else {
				log.Printf("[CONFIG]   %s=%s", envVar, value)
			}
			hasEnvVars = true
		}
	}
	if !hasEnvVars {
		log.Println("[CONFIG]   None set")
	}

	log.Println("[CONFIG] === Key Configuration Values ===")
	log.Printf("[CONFIG] Backend: %s", c.Backend.BaseURL)
	log.Printf("[CONFIG] Session Store: %s", c.Session.Store)
	log.Printf("[CONFIG] Server Host: %s", c.Server.Host)
	log.Printf("[CONFIG] Server Port: %s", c.Server.Port)
	log.Printf("[CONFIG] API Keys: %d configured", len(c.Server.APIKeys))
	log.Printf("[CONFIG] Log Level: %s", c.App.LogLevel)
	log.Printf("[CONFIG] Observability Enabled: %t", c.Observability.Enabled)

	log.Println("[CONFIG] === Backend Operations ===")
	for _, op := range []ResolvedOperation{c.GetParseResumeConfig(), c.GetGenerateQuestionsConfig(), c.GetEvaluateAnswerConfig()} {
		log.Printf("[CONFIG] %s - URL: %s, Timeout: %s, Retries: %d", op.Name, op.URL, op.Timeout, op.MaxRetries)
	}

	log.Println("[CONFIG] =====================================")
}
