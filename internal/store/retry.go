package store

import (
	"context"
	"time"

	"github.com/DoyleJ11/duel-backend/internal/match"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Retrying retries a Recorder with exponential backoff. Every error from the wrapped recorder
// is treated as transient.
type Retrying struct {
	next     Recorder
	attempts uint64
	base     time.Duration
	log      *zap.Logger
}

func NewRetrying(next Recorder, attempts uint64, base time.Duration, log *zap.Logger) *Retrying {
	if log == nil {
		log = zap.NewNop()
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	return &Retrying{next: next, attempts: attempts, base: base, log: log}
}

func (r *Retrying) Record(ctx context.Context, res match.Result) error {
	b := retry.WithMaxRetries(r.attempts, retry.WithCappedDuration(5*time.Second, retry.NewExponential(r.base)))
	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if err := r.next.Record(ctx, res); err != nil {
			r.log.Warn("record result failed", zap.String("match_id", res.MatchID), zap.Int("attempt", attempt), zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
}

// Multi fans a result out to several recorders. All are attempted; errors are combined.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, res match.Result) error {
	var err error
	for _, r := range m {
		err = multierr.Append(err, r.Record(ctx, res))
	}
	return err
}
