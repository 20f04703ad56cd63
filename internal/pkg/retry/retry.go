// Package retry runs bounded attempts with jittered exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog/log"
)

type Policy struct {
	Attempts int
	Min      time.Duration
	Max      time.Duration
	Factor   float64
}

func DefaultPolicy(attempts int) Policy {
	return Policy{
		Attempts: attempts,
		Min:      50 * time.Millisecond,
		Max:      2 * time.Second,
		Factor:   2,
	}
}

// Do calls fn until it succeeds, returns an error retryable rejects, or the
// policy runs out of attempts. The last error is returned.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func(ctx context.Context) error) error {
	b := &backoff.Backoff{
		Min:    p.Min,
		Max:    p.Max,
		Factor: p.Factor,
		Jitter: true,
	}
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= attempts || !retryable(err) {
			return err
		}

		d := b.Duration()
		log.Debug().Err(err).Int("attempt", attempt).Dur("wait", d).Msg("Retrying after transient error")

		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
}
