package seanboard

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"strings"
	"sync"
)

// ErrDisconnected is returned by a sink whose consumer has detached. A Fanout
// drops members that report it; a poller stops on any push error.
var ErrDisconnected = errors.New("sink disconnected")

// NewChannelSink exposes records on a buffered channel. When the buffer is
// full the oldest pending record is discarded so the reader always sees the
// latest one. The returned func closes the sink; later pushes report
// ErrDisconnected.
func NewChannelSink(name string, buffer int) (SnapshotSink, <-chan TelemetryRecord, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 1 {
		buffer = 1
	}
	s := &channelSink{
		name: name,
		ch:   make(chan TelemetryRecord, buffer),
	}
	return s, s.ch, s.close
}

type channelSink struct {
	name   string
	mu     sync.Mutex
	ch     chan TelemetryRecord
	closed bool
}

func (s *channelSink) Push(rec TelemetryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.Wrapf(ErrDisconnected, "channel sink %q", s.name)
	}
	for {
		select {
		case s.ch <- rec:
			return nil
		default:
		}
		// full: drop the oldest pending record
		select {
		case <-s.ch:
		default:
		}
	}
}

func (s *channelSink) Name() string { return s.name }

func (s *channelSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

type callbackSink struct {
	name string
	fn   func(TelemetryRecord) error
}

func NewCallbackSink(name string, fn func(TelemetryRecord) error) SnapshotSink {
	if name == "" {
		name = "callback"
	}
	return &callbackSink{name: name, fn: fn}
}

func (s *callbackSink) Push(rec TelemetryRecord) error {
	if s.fn == nil {
		return errors.Errorf("callback sink %q: nil handler", s.name)
	}
	return s.fn(rec)
}

func (s *callbackSink) Name() string { return s.name }

// NewLogSink prints every record at info level.
func NewLogSink(name string) SnapshotSink {
	if name == "" {
		name = "log"
	}
	return NewCallbackSink(name, func(rec TelemetryRecord) error {
		log.WithField("sink", name).Infof("%+v", rec)
		return nil
	})
}

type fanout struct {
	observer Observer

	mu       sync.Mutex
	sinks    []SnapshotSink
	detached []bool
}

// Fanout pushes each record to every sink in order. A sink that reports
// ErrDisconnected is skipped from then on. Other member errors are logged and
// leave the member attached; the fanout only fails once every member has
// detached.
func Fanout(sinks ...SnapshotSink) SnapshotSink {
	return NewFanout(nil, sinks...)
}

// NewFanout is Fanout with member failures reported to obs.
func NewFanout(obs Observer, sinks ...SnapshotSink) SnapshotSink {
	if obs == nil {
		obs = nopObserver{}
	}
	return &fanout{
		observer: obs,
		sinks:    sinks,
		detached: make([]bool, len(sinks)),
	}
}

func (f *fanout) Push(rec TelemetryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	attached := 0
	for i, s := range f.sinks {
		if f.detached[i] {
			continue
		}
		err := s.Push(rec)
		if err == nil {
			attached++
			continue
		}
		if errors.Is(err, ErrDisconnected) {
			log.WithField("sink", s.Name()).Info("sink detached")
			f.detached[i] = true
			continue
		}
		attached++
		f.observer.SinkError(s.Name(), err)
		log.WithField("err", err).Warnf("%s: unable to push snapshot", s.Name())
	}
	if attached == 0 {
		return errors.Wrap(ErrDisconnected, "all sinks detached")
	}
	return nil
}

func (f *fanout) Name() string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name()
	}
	return "fanout(" + strings.Join(names, ",") + ")"
}
