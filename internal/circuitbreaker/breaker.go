package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/raakeshmj/textgate/internal/logger"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// Redis Keys:
// cb:{service}:failures -> consecutive failure count
// cb:{service}:open     -> present while the circuit is open (TTL = timeout)
//
// Once the open key expires the next call is let through; one more failure
// reopens the circuit because the failure count is not reset on trip.
type CircuitBreaker struct {
	client           redis.UniversalClient
	failureThreshold int64
	timeout          time.Duration
	prefix           string
}

func New(client redis.UniversalClient, failureThreshold int64, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		client:           client,
		failureThreshold: failureThreshold,
		timeout:          timeout,
		prefix:           "textgate:cb:",
	}
}

// Execute runs action unless the circuit for serviceName is open. Breaker
// state lives in redis; if redis is unreachable the action runs unguarded.
func (cb *CircuitBreaker) Execute(ctx context.Context, serviceName string, action func() error) error {
	openKey := cb.prefix + serviceName + ":open"
	failureKey := cb.prefix + serviceName + ":failures"

	open, err := cb.client.Exists(ctx, openKey).Result()
	if err != nil {
		logger.LogEvent(logrus.WarnLevel, "circuit breaker state unavailable", logrus.Fields{
			"service": serviceName,
			"error":   err.Error(),
		})
		return action()
	}
	if open > 0 {
		return ErrCircuitOpen
	}

	opErr := action()

	if opErr != nil {
		failures, err := cb.client.Incr(ctx, failureKey).Result()
		if err == nil && failures >= cb.failureThreshold {
			cb.client.Set(ctx, openKey, "1", cb.timeout)
			cb.client.Expire(ctx, failureKey, 2*cb.timeout)
			logger.LogEvent(logrus.WarnLevel, "circuit opened", logrus.Fields{
				"service":  serviceName,
				"failures": failures,
			})
		}
		return opErr
	}

	// consecutive failures only
	cb.client.Del(ctx, failureKey)
	return nil
}

// IsOpen reports whether calls to serviceName are currently rejected.
func (cb *CircuitBreaker) IsOpen(ctx context.Context, serviceName string) bool {
	n, err := cb.client.Exists(ctx, cb.prefix+serviceName+":open").Result()
	return err == nil && n > 0
}
