package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// InitSentry enables error reporting. An empty DSN leaves the SDK disabled and
// every capture call a no-op.
func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	})
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}
