package llm

import (
	"context"
	"errors"
	"fmt"

	"eco-moderation/internal/models"

	"go.uber.org/zap"
)

// Classifier is any provider able to produce a moderation verdict for a transcript
type Classifier interface {
	Name() string
	Classify(ctx context.Context, transcript string) (*models.Verdict, error)
}

// Chain tries classifiers in order and returns the first verdict.
// A quota failure moves on to the next provider; an invalid verdict does not,
// since the provider did answer and only the model misbehaved.
type Chain struct {
	classifiers []Classifier
	logger      *zap.Logger
}

// NewChain builds a chain over the given classifiers, skipping nil entries
func NewChain(logger *zap.Logger, classifiers ...Classifier) (*Chain, error) {
	chain := &Chain{logger: logger}
	for _, c := range classifiers {
		if c != nil {
			chain.classifiers = append(chain.classifiers, c)
		}
	}
	if len(chain.classifiers) == 0 {
		return nil, fmt.Errorf("at least one classifier is required")
	}
	return chain, nil
}

func (c *Chain) Name() string {
	if len(c.classifiers) == 1 {
		return c.classifiers[0].Name()
	}
	return "chain"
}

// Classify returns ErrQuotaExceeded when every provider failed and one of them ran out of quota
func (c *Chain) Classify(ctx context.Context, transcript string) (*models.Verdict, error) {
	var lastErr error
	sawQuota := false

	for i, classifier := range c.classifiers {
		verdict, err := classifier.Classify(ctx, transcript)
		if err == nil {
			if i > 0 {
				c.logger.Info("Fallback classifier answered",
					zap.String("provider", classifier.Name()),
					zap.Int("provider_index", i))
			}
			return verdict, nil
		}

		c.logger.Warn("Classifier failed",
			zap.String("provider", classifier.Name()),
			zap.Int("provider_index", i),
			zap.Error(err))

		if errors.Is(err, ErrInvalidVerdict) || ctx.Err() != nil {
			return nil, err
		}
		if errors.Is(err, ErrQuotaExceeded) {
			sawQuota = true
		}
		lastErr = err
	}

	if sawQuota && !errors.Is(lastErr, ErrQuotaExceeded) {
		return nil, fmt.Errorf("%w: all classifiers failed, last error: %v", ErrQuotaExceeded, lastErr)
	}
	return nil, lastErr
}
