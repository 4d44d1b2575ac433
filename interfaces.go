package seanboard

import (
	"context"
	"time"
)

// Store opens sessions against a remote key-value table. Connect should return
// once ctx is done. A poller abandons a call that overruns its timeout, but
// keeps counting it against a small limit of pending connects until it
// returns, so a store that ignores ctx slows later attempts to one per freed
// slot.
type Store interface {
	Connect(ctx context.Context, address, identity string) (Session, error)
}

type Session interface {
	Fetch(ctx context.Context) (KeyValueView, error)
	Close() error
}

// SnapshotSink receives each completed record. Push returns an error wrapping
// ErrDisconnected once the consumer has gone away.
type SnapshotSink interface {
	Push(rec TelemetryRecord) error
	Name() string
}

type Observer interface {
	ConnectAttempt(address string)
	ConnectFailed(address string, err error, timedOut bool)
	SnapshotPushed(rec *TelemetryRecord, cycle time.Duration)
	SinkError(name string, err error)
}

type nopObserver struct{}

func (nopObserver) ConnectAttempt(string) {}
func (nopObserver) ConnectFailed(string, error, bool) {}
func (nopObserver) SnapshotPushed(*TelemetryRecord, time.Duration) {}
func (nopObserver) SinkError(string, error) {}
