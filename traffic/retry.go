package traffic

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/carlos-aws/repo-traffic-tracker/logger"
	"github.com/carlos-aws/repo-traffic-tracker/models"
)

// withRetry executes fn, retrying transient failures with jittered
// exponential backoff until the attempt budget runs out. Every other
// failure kind surfaces immediately; retrying a denial or a malformed
// response cannot help.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	delay := c.retryBaseDelay
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err = fn()
		if err == nil || !models.IsKind(err, models.KindTransient) {
			return err
		}
		if attempt == c.maxAttempts {
			break
		}
		jitter := time.Duration(rand.Int63n(int64(delay)))
		logger.Warn("Transient failure, backing off",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay+jitter),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return models.NewError(models.KindTransient, op, ctx.Err())
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}
	return err
}
