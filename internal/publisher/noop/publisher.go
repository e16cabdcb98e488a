// Package noop provides a publisher that drops every message, used when
// event publishing is disabled.
package noop

import "context"

// Publisher discards all publishes.
type Publisher struct{}

// New returns a noop Publisher.
func New() *Publisher { return &Publisher{} }

// Publish drops the message and returns an empty ID.
func (Publisher) Publish(context.Context, string, any) (string, error) {
	return "", nil
}

// Close is a no-op.
func (Publisher) Close() error { return nil }
