package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"eco-moderation/internal/models"
)

// RateLimiter is a token bucket refilled evenly over a minute
type RateLimiter struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	return &RateLimiter{
		tokens:     requestsPerMinute,
		maxTokens:  requestsPerMinute,
		refillRate: time.Minute / time.Duration(requestsPerMinute),
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is done
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		wait := rl.reserve()
		if wait == 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// reserve takes a token and returns 0, or returns how long to wait for the next one
func (rl *RateLimiter) reserve() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(rl.lastRefill); elapsed >= rl.refillRate {
		added := int(elapsed / rl.refillRate)
		rl.tokens += added
		if rl.tokens > rl.maxTokens {
			rl.tokens = rl.maxTokens
		}
		rl.lastRefill = rl.lastRefill.Add(time.Duration(added) * rl.refillRate)
	}

	if rl.tokens > 0 {
		rl.tokens--
		return 0
	}
	return rl.refillRate - now.Sub(rl.lastRefill)
}

// RateLimitedClassifier wraps a classifier with client-side rate limiting,
// keeping free-tier accounts under the provider's per-minute cap
type RateLimitedClassifier struct {
	classifier Classifier
	limiter    *RateLimiter
}

// NewRateLimitedClassifier returns classifier unchanged when requestsPerMinute is not positive
func NewRateLimitedClassifier(classifier Classifier, requestsPerMinute int) Classifier {
	if requestsPerMinute <= 0 {
		return classifier
	}
	return &RateLimitedClassifier{
		classifier: classifier,
		limiter:    NewRateLimiter(requestsPerMinute),
	}
}

func (p *RateLimitedClassifier) Name() string {
	return p.classifier.Name()
}

func (p *RateLimitedClassifier) Classify(ctx context.Context, transcript string) (*models.Verdict, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}
	return p.classifier.Classify(ctx, transcript)
}
