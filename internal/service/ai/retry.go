package ai

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/pdf-chatbot/backend/internal/config"
)

// RetryPolicy is a capped exponential backoff with additive jitter.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxJitter  time.Duration
}

// DefaultRetryPolicy allows three attempts starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxJitter:  100 * time.Millisecond,
	}
}

// RetryPolicyFromConfig falls back to the defaults for unset fields.
func RetryPolicyFromConfig(cfg config.QAConfig) RetryPolicy {
	policy := DefaultRetryPolicy()
	if cfg.MaxRetries > 0 {
		policy.MaxRetries = cfg.MaxRetries
	}
	if cfg.BaseDelay > 0 {
		policy.BaseDelay = cfg.BaseDelay
	}
	if cfg.MaxJitter > 0 {
		policy.MaxJitter = cfg.MaxJitter
	}
	return policy
}

// Delay is the wait after the failed attempt with 0-based index attempt,
// i.e. BaseDelay*2^attempt + jitter.
func (p RetryPolicy) Delay(attempt int, jitter time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return p.BaseDelay*time.Duration(1<<uint(attempt)) + jitter
}

// RetryObserver is notified before each backoff sleep. retry is the 1-based
// number of the retry about to happen.
type RetryObserver func(retry int, delay time.Duration, err error)

// IsRateLimited reports whether err signals HTTP 429 from the model provider.
// Providers without typed errors are matched on the status code in the message.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}

	return strings.Contains(err.Error(), "429")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}
