package seanboard

import (
	"context"
	log "github.com/sirupsen/logrus"
	"time"
)

var retrySleep = time.Second

// Retryable is a hardware link owned by an auxiliary sink, such as a CAN
// interface. Start blocks for as long as the link is up.
type Retryable interface {
	Open() error
	Close() error
	Start(ctx context.Context) error
	Name() string
}

// Retry keeps the link running until ctx is done and returns ctx.Err(). A
// Start that returns nil is restarted on the same link; a failed Open or
// Start leaves the link closed for retrySleep before it is reopened.
func Retry(ctx context.Context, r Retryable) error {
	entry := log.WithField("link", r.Name())
	opened := false
	for ctx.Err() == nil {
		if !opened {
			if err := r.Open(); err != nil {
				entry.WithField("err", err).Warn("unable to open link")
				if !sleepCtx(ctx, retrySleep) {
					break
				}
				continue
			}
			opened = true
			entry.Info("link opened")
		}

		err := r.Start(ctx)
		if err == nil || ctx.Err() != nil {
			continue
		}
		entry.WithField("err", err).Error("link failed, reopening")
		if err := r.Close(); err != nil {
			entry.WithField("err", err).Warn("unable to close link")
		}
		opened = false
		if !sleepCtx(ctx, retrySleep) {
			break
		}
	}
	return ctx.Err()
}
