// Package notify delivers operator alerts and booking notifications.
// Delivery failures are never fatal to the request that triggered them.
package notify

import (
	"context"
	"errors"
)

// Notifier is an operator channel for persistent-failure alerts.
type Notifier interface {
	Alert(ctx context.Context, subject, body string) error
}

// Multi fans an alert out to every configured channel.
type Multi []Notifier

func (m Multi) Alert(ctx context.Context, subject, body string) error {
	var errs []error
	for _, n := range m {
		if err := n.Alert(ctx, subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Noop drops alerts; used when no channel is configured.
type Noop struct{}

func (Noop) Alert(ctx context.Context, subject, body string) error { return nil }
