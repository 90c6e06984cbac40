package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy describes how Do paces its attempts. Attempts counts the first try
// too, so Attempts=1 means no retrying at all.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Growth    float64
}

// Option adjusts a Policy.
type Option func(*Policy)

// Do runs op until it succeeds, the policy's attempts are exhausted, or ctx
// is cancelled while waiting between attempts. The delay grows geometrically
// from BaseDelay up to MaxDelay. The defaults suit talking to a hypervisor
// that may be mid-boot: a handful of attempts spread over roughly a minute.
//
// Errors wrapped with Permanent abort the loop immediately.
func Do(ctx context.Context, op func() error, opts ...Option) error {
	p := &Policy{
		Attempts:  6,
		BaseDelay: 2 * time.Second,
		MaxDelay:  30 * time.Second,
		Growth:    2.0,
	}

	for _, opt := range opts {
		opt(p)
	}

	delay := p.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= p.Attempts; attempt++ {
		err := op()
		if err == nil {
			return nil
		}

		lastErr = err

		if IsPermanent(err) {
			return fmt.Errorf("permanent failure: %w", err)
		}

		if attempt < p.Attempts {
			select {
			case <-ctx.Done():
				return fmt.Errorf("cancelled while retrying (attempt %d/%d): %w", attempt, p.Attempts, ctx.Err())
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * p.Growth)
				if delay > p.MaxDelay {
					delay = p.MaxDelay
				}
			}
		}
	}

	return fmt.Errorf("still failing after %d attempts: %w", p.Attempts, lastErr)
}

// Attempts sets the total number of attempts, including the first.
func Attempts(n int) Option {
	return func(p *Policy) {
		p.Attempts = n
	}
}

// BaseDelay sets the delay before the first retry.
func BaseDelay(d time.Duration) Option {
	return func(p *Policy) {
		p.BaseDelay = d
	}
}

// MaxDelay caps the delay between attempts.
func MaxDelay(d time.Duration) Option {
	return func(p *Policy) {
		p.MaxDelay = d
	}
}

// Growth sets the factor the delay is multiplied by after each attempt.
func Growth(f float64) Option {
	return func(p *Policy) {
		p.Growth = f
	}
}

// PermanentError marks an error that retrying cannot fix, such as a rejected
// credential or a command that does not exist on the host.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so Do gives up on it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries a PermanentError.
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}
