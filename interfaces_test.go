package seanboard

import (
	"context"
	"sync"
	"time"
)

type storeStub struct {
	connectFn func(ctx context.Context, address string) (Session, error)
	addrChan  chan string
}

func (s *storeStub) Connect(ctx context.Context, address, identity string) (Session, error) {
	if s.addrChan != nil {
		s.addrChan <- address
	}
	return s.connectFn(ctx, address)
}

type sessionStub struct {
	entries  []Entry
	fetchErr error

	mu     sync.Mutex
	closed bool
}

func (s *sessionStub) Fetch(ctx context.Context) (KeyValueView, error) {
	if s.fetchErr != nil {
		return KeyValueView{}, s.fetchErr
	}
	return NewKeyValueView(s.entries), nil
}

func (s *sessionStub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *sessionStub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func staticStore(entries ...Entry) *storeStub {
	return &storeStub{
		connectFn: func(ctx context.Context, address string) (Session, error) {
			return &sessionStub{entries: entries}, nil
		},
	}
}

type sinkStub struct {
	mu      sync.Mutex
	records []TelemetryRecord
	calls   int
	pushFn  func(call int) error
}

func (s *sinkStub) Push(rec TelemetryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.pushFn != nil {
		if err := s.pushFn(s.calls); err != nil {
			return err
		}
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *sinkStub) Name() string {
	return "sink-stub"
}

func (s *sinkStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type observerStub struct {
	mu         sync.Mutex
	attempts   int
	timeouts   int
	failures   int
	pushed     int
	sinkErrors int
}

func (o *observerStub) ConnectAttempt(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts++
}

func (o *observerStub) ConnectFailed(addr string, err error, timedOut bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if timedOut {
		o.timeouts++
	} else {
		o.failures++
	}
}

func (o *observerStub) SnapshotPushed(*TelemetryRecord, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pushed++
}

func (o *observerStub) SinkError(string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sinkErrors++
}

func fastPolicy() Policy {
	return Policy{
		ConnectTimeout: 20 * time.Millisecond,
		TickInterval:   time.Millisecond,
	}
}
