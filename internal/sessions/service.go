package sessions

import (
	"context"
	"time"

	"github.com/storefront/storefront/backend/auth-service/pkg/logger"
	"github.com/storefront/storefront/backend/auth-service/pkg/metrics"
)

// Janitor periodically removes refresh tokens whose expiry has passed.
// Expired rows are already unusable; this only keeps the table small.
type Janitor struct {
	purger   Purger
	interval time.Duration
	now      func() time.Time
}

func NewJanitor(p Purger, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{purger: p, interval: interval, now: time.Now}
}

// RunOnce purges everything that expired before now.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	n, err := j.purger.PurgeExpired(ctx, j.now().UTC())
	if err != nil {
		logger.ErrorFields("refresh_token_cleanup_failed", logger.Fields{"error": err})
		return 0, err
	}
	if n > 0 {
		metrics.SessionsRevoked.WithLabelValues("expired").Add(float64(n))
		logger.InfoFields("refresh_token_cleanup_completed", logger.Fields{"deleted_refresh_tokens": n})
	}
	return n, nil
}

// Run blocks until ctx is done, purging once per interval.
func (j *Janitor) Run(ctx context.Context) {
	t := time.NewTicker(j.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = j.RunOnce(ctx)
		}
	}
}
