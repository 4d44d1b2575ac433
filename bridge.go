package seanboard

import (
	"context"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"sync"
)

var ErrAlreadyRunning = errors.New("bridge already running")

// Bridge owns at most one polling session at a time. Start returns as soon
// as the session goroutine is running.
type Bridge struct {
	store  Store
	target *TargetAddress
	sink   SnapshotSink
	opts   []PollerOption

	mu        sync.Mutex
	poller    *Poller
	cancel    context.CancelFunc
	done      chan struct{}
	sessionID string
}

func NewBridge(store Store, target *TargetAddress, sink SnapshotSink, opts ...PollerOption) *Bridge {
	return &Bridge{
		store:  store,
		target: target,
		sink:   sink,
		opts:   opts,
	}
}

func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.runningLocked() {
		return ErrAlreadyRunning
	}

	id := uuid.New().String()
	entry := log.WithField("session", id)
	opts := append([]PollerOption{WithLogger(entry)}, b.opts...)
	p := NewPoller(b.store, b.target, b.sink, opts...)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	b.poller = p
	b.cancel = cancel
	b.done = done
	b.sessionID = id

	entry.WithField("address", b.target.Get()).Info("starting bridge session")
	go func() {
		defer close(done)
		defer cancel()
		if err := p.Run(ctx); err != nil {
			entry.WithField("err", err).Error("bridge session failed")
			return
		}
		entry.Info("bridge session ended")
	}()
	return nil
}

// Stop cancels the running session and waits for its current cycle to end.
func (b *Bridge) Stop() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed when the current session ends. Before the first Start it
// returns an already closed channel.
func (b *Bridge) Done() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return b.done
}

func (b *Bridge) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runningLocked()
}

func (b *Bridge) SessionID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessionID
}

func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	p := b.poller
	b.mu.Unlock()
	if p == nil {
		return Stats{}
	}
	return p.Stats()
}

func (b *Bridge) runningLocked() bool {
	if b.done == nil {
		return false
	}
	select {
	case <-b.done:
		return false
	default:
		return true
	}
}
