package reliability

import (
	"context"
	"errors"
	"time"

	"github.com/lumocare/cogscreen/internal/assess"
)

// Policy bounds retries of idempotent assessment API calls. The session
// core never retries on its own; callers wrap individual operations in a
// Policy when they want bounded persistence.
type Policy struct {
	MaxRetries int
	Base       time.Duration
	Cap        time.Duration
}

// Do runs fn, retrying retryable failures up to MaxRetries times with a
// capped exponential backoff between attempts. The context bounds the
// waiting, not fn itself.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || attempt >= p.MaxRetries || !Retryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(p.Backoff(attempt)):
		}
	}
}

// Backoff computes the deterministic capped delay after the given attempt
// (0-based).
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.Base
	if d <= 0 {
		d = 500 * time.Millisecond
	}
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.Cap > 0 && d >= p.Cap {
			return p.Cap
		}
	}
	if p.Cap > 0 && d > p.Cap {
		return p.Cap
	}
	return d
}

// Retryable reports whether an assessment API failure is worth retrying:
// throttling and server-side statuses and transport failures qualify,
// caller errors and cancellation do not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, assess.ErrNoSession) {
		return false
	}
	var statusErr *assess.StatusError
	if errors.As(err, &statusErr) {
		return retryableStatus(statusErr.StatusCode)
	}
	// Anything else from the client is a transport-level failure.
	return true
}

func retryableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
