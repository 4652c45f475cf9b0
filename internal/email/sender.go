// Package email provides the outbound transports used by the dispatch
// service: the Resend HTTP API, pooled SMTP, and a log-only mock selected
// when no provider is configured.
package email

import "context"

// Sender delivers one HTML email and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) (string, error)
}
