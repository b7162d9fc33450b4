// Package observability wires error reporting to Sentry.
//
// An empty DSN disables reporting; every helper is then a no-op.
package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
)

const flushTimeout = 2 * time.Second

// InitSentry initialises the global Sentry hub. An empty dsn is a no-op.
func InitSentry(dsn, environment, release string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
	})
}

// FlushSentry waits up to two seconds for buffered events.
func FlushSentry() {
	sentry.Flush(flushTimeout)
}

// CaptureError reports err tagged with the given key/value pairs.
func CaptureError(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}
