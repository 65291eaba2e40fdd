package remote

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/aemtools/aemcli/pkg/errors"
)

const (
	maxAttempts       = 4
	initialRetryDelay = 500 * time.Millisecond
)

// withRetry runs fn, retrying transient failures with exponential backoff.
// Auth failures, missing resources and other definitive errors are returned
// immediately. The retry budget is bounded so an unreachable server fails
// the command instead of hanging it.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	delay := initialRetryDelay
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if _, transient := errors.RootCause(err).(errors.TransientError); !transient {
			return err
		}
		if attempt == maxAttempts {
			return errors.WithContext(err, op)
		}

		log.WithError(err).WithField("attempt", attempt).
			Debugf("Transient failure during %s. Retrying.", op)
		select {
		case <-c.clock.After(delay):
		case <-ctx.Done():
			return errors.WithContext(ctx.Err(), op)
		}
		delay *= 2
	}
}
