package backend

import (
	"fmt"

	"aceinterview/internal/config"
	"aceinterview/internal/errors"

	"github.com/sony/gobreaker/v2"
)

// CircuitBreaker wraps one backend endpoint with the circuit breaker pattern
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker[[]byte]
}

// NewCircuitBreaker creates a circuit breaker configured for a specific operation.
// A disabled breaker is returned as nil, which executes calls directly.
func NewCircuitBreaker(op config.ResolvedOperation, logger *errors.Logger) *CircuitBreaker {
	if !op.CircuitBreaker.Enabled {
		return nil
	}

	cfg := op.CircuitBreaker
	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("backend-%s", op.Name),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests &&
				failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if logger == nil {
				return
			}
			logger.Info("Circuit breaker state changed",
				"name", name,
				"operation", op.Name,
				"from", from.String(),
				"to", to.String(),
				"max_requests", cfg.MaxRequests,
				"failure_threshold", cfg.FailureThreshold)
		},
	}

	return &CircuitBreaker{
		cb: gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

// Execute executes the provided function with circuit breaker protection
func (cb *CircuitBreaker) Execute(fn func() ([]byte, error)) ([]byte, error) {
	if cb == nil || cb.cb == nil {
		return fn()
	}
	return cb.cb.Execute(fn)
}

// GetStats returns circuit breaker statistics
func (cb *CircuitBreaker) GetStats() map[string]any {
	if cb == nil || cb.cb == nil {
		return map[string]any{
			"enabled": false,
		}
	}

	return map[string]any{
		"name":    cb.cb.Name(),
		"state":   cb.cb.State().String(),
		"counts":  cb.cb.Counts(),
		"enabled": true,
	}
}

// IsHealthy returns true if the circuit breaker is in closed state
func (cb *CircuitBreaker) IsHealthy() bool {
	if cb == nil || cb.cb == nil {
		return true
	}
	return cb.cb.State() == gobreaker.StateClosed
}
