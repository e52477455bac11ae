package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	appErrors "aceinterview/internal/errors"

	"github.com/xeipuuv/gojsonschema"
)

const healthProbeKey = "health:probe"

// getHealthCheckTimeout returns the configured health check timeout
func (s *Server) getHealthCheckTimeout() time.Duration {
	if s.AppConfig == nil || s.AppConfig.Observability.HealthCheck.Timeout <= 0 {
		return 5 * time.Second
	}
	return s.AppConfig.Observability.HealthCheck.Timeout
}

// healthHandler reports backend circuit breaker state and session store reachability
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":  "healthy",
		"service": "aceinterview",
		"version": s.Version,
	}

	overallHealthy := true

	if s.Backend != nil {
		stats := s.Backend.CircuitBreakerStats()
		response["circuit_breakers"] = stats
		if healthy, ok := stats["overall_healthy"].(bool); ok && !healthy {
			overallHealthy = false
		}
	}

	storeStatus := s.checkStoreHealth(r.Context())
	response["session_store"] = storeStatus
	if healthy, ok := storeStatus["healthy"].(bool); ok && !healthy {
		overallHealthy = false
	}

	status := http.StatusOK
	if !overallHealthy {
		response["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, status, response)
}

// checkStoreHealth reads a probe key from the session store within the health check timeout
func (s *Server) checkStoreHealth(ctx context.Context) map[string]any {
	if s.store == nil {
		return map[string]any{"healthy": true, "backend": "none"}
	}

	ctx, cancel := context.WithTimeout(ctx, s.getHealthCheckTimeout())
	defer cancel()

	start := time.Now()
	_, _, err := s.store.Get(ctx, healthProbeKey)
	status := map[string]any{
		"healthy":    err == nil,
		"latency_ms": time.Since(start).Milliseconds(),
	}
	if s.AppConfig != nil {
		status["backend"] = s.AppConfig.Session.Store
	}
	if err != nil {
		status["error"] = err.Error()
	}
	return status
}

// statsHandler provides server statistics including rate limiting info
func (s *Server) statsHandler(w http.ResponseWriter, _ *http.Request) {
	response := map[string]any{
		"service": "aceinterview",
		"version": s.Version,
		"server": map[string]any{
			"max_request_size_bytes": s.MaxRequestSize,
		},
	}

	if s.Sessions != nil {
		response["sessions"] = s.Sessions.GetStats()
	}

	if s.Backend != nil {
		response["circuit_breakers"] = s.Backend.CircuitBreakerStats()
	}

	if s.RateLimiter != nil {
		response["rate_limiting"] = s.RateLimiter.GetStats()
	} else {
		response["rate_limiting"] = map[string]any{
			"enabled": false,
		}
	}

	if s.RateLimit != nil {
		response["rate_limit_config"] = map[string]any{
			"enabled":          s.RateLimit.Enabled,
			"requests_per_min": s.RateLimit.RequestsPerMin,
			"burst_capacity":   s.RateLimit.BurstCapacity,
			"by_ip":            s.RateLimit.ByIP,
			"by_api_key":       s.RateLimit.ByAPIKey,
		}
	}

	writeJSONResponse(w, http.StatusOK, response)
}

// readRequestBody reads the whole body, reporting oversized requests plainly
func readRequestBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, fmt.Errorf("request body too large (limit is %d bytes)", maxBytesErr.Limit)
		}
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	_ = r.Body.Close()
	return body, nil
}

// parseJSONRequest validates the JSON body against schema and decodes it into v
func parseJSONRequest(r *http.Request, schema *gojsonschema.Schema, v any) error {
	body, err := readRequestBody(r)
	if err != nil {
		return err
	}
	return decodeJSONBody(body, schema, v)
}

// parseOptionalJSONRequest is parseJSONRequest for endpoints whose body may be omitted
func parseOptionalJSONRequest(r *http.Request, schema *gojsonschema.Schema, v any) error {
	body, err := readRequestBody(r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return decodeJSONBody(body, schema, v)
}

func decodeJSONBody(body []byte, schema *gojsonschema.Schema, v any) error {
	if !json.Valid(body) {
		return fmt.Errorf("request body is not valid JSON")
	}
	if err := validateAgainstSchema(schema, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return nil
}

// writeJSONResponse encodes v with the given status
func writeJSONResponse(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// writeErrorResponse writes a standardized error response
func writeErrorResponse(w http.ResponseWriter, error, message string, statusCode int) {
	writeJSONResponse(w, statusCode, ErrorResponse{
		Error:   error,
		Message: message,
	})
}

// writeAppError maps an application error onto an HTTP status and its user-facing message
func writeAppError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	title := "Internal error"

	var appErr *appErrors.AppError
	code := ""
	if errors.As(err, &appErr) {
		code = appErr.Code
	}

	switch {
	case code == appErrors.ErrCodeSessionNotFound:
		status, title = http.StatusNotFound, "Session not found"
	case code == appErrors.ErrCodeBackendOpen:
		status, title = http.StatusServiceUnavailable, "Backend unavailable"
	case appErrors.IsType(err, appErrors.ErrorTypeValidation):
		status, title = http.StatusBadRequest, "Invalid request"
	case appErrors.IsType(err, appErrors.ErrorTypeBackend), appErrors.IsType(err, appErrors.ErrorTypeNetwork):
		status, title = http.StatusBadGateway, "Backend request failed"
	case appErrors.IsType(err, appErrors.ErrorTypeSession):
		status, title = http.StatusConflict, "Session error"
	}

	writeJSONResponse(w, status, ErrorResponse{
		Error:   title,
		Message: appErrors.UserMessage(err, "Something went wrong. Please try again."),
		Code:    code,
	})
}
