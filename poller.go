package seanboard

import (
	"context"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"sync/atomic"
	"time"
)

const (
	DefaultIdentity       = "seanboard"
	DefaultConnectTimeout = 500 * time.Millisecond
	DefaultTickInterval   = 200 * time.Millisecond
)

// connects still running after their timeout, beyond which new attempts
// wait for a slot
const maxPendingConnects = 4

var errConnectTimeout = errors.New("connect timed out")

// Policy controls the poller cadence. A MaxBackoff of zero keeps the cooldown
// fixed at TickInterval; otherwise the cooldown doubles per consecutive failed
// cycle up to MaxBackoff.
type Policy struct {
	ConnectTimeout time.Duration
	TickInterval   time.Duration
	MaxBackoff     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		ConnectTimeout: DefaultConnectTimeout,
		TickInterval:   DefaultTickInterval,
	}
}

func (p Policy) cooldown(failures int) time.Duration {
	d := p.TickInterval
	if p.MaxBackoff <= d {
		return d
	}
	for i := 0; i < failures && d < p.MaxBackoff; i++ {
		d *= 2
	}
	if d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

type Stats struct {
	Attempts uint64
	Timeouts uint64
	Failures uint64
	Pushes   uint64
}

// Poller connects to the store once per tick, extracts a record and pushes it
// to the sink until a push fails or the context is cancelled.
type Poller struct {
	store    Store
	target   *TargetAddress
	sink     SnapshotSink
	policy   Policy
	identity string
	prefix   string
	observer Observer
	log      *log.Entry
	pending  chan struct{}

	attempts atomic.Uint64
	timeouts atomic.Uint64
	failures atomic.Uint64
	pushes   atomic.Uint64
}

type PollerOption func(*Poller)

func WithPolicy(policy Policy) PollerOption {
	return func(p *Poller) {
		p.policy = policy
	}
}

func WithIdentity(identity string) PollerOption {
	return func(p *Poller) {
		p.identity = identity
	}
}

func WithPrefix(prefix string) PollerOption {
	return func(p *Poller) {
		p.prefix = prefix
	}
}

func WithObserver(obs Observer) PollerOption {
	return func(p *Poller) {
		p.observer = obs
	}
}

func WithLogger(entry *log.Entry) PollerOption {
	return func(p *Poller) {
		p.log = entry
	}
}

func NewPoller(store Store, target *TargetAddress, sink SnapshotSink, opts ...PollerOption) *Poller {
	p := &Poller{
		store:    store,
		target:   target,
		sink:     sink,
		policy:   DefaultPolicy(),
		identity: DefaultIdentity,
		prefix:   TablePrefix,
		observer: nopObserver{},
		log:      log.WithField("component", "poller"),
		pending:  make(chan struct{}, maxPendingConnects),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.policy.ConnectTimeout <= 0 {
		p.policy.ConnectTimeout = DefaultConnectTimeout
	}
	if p.policy.TickInterval < 0 {
		p.policy.TickInterval = 0
	}
	if p.observer == nil {
		p.observer = nopObserver{}
	}
	return p
}

// Run blocks until a push fails or ctx is cancelled; both are normal ends of
// the stream and return nil. A failed push means the consumer is gone, so
// sinks that can fail transiently belong in a Fanout. Cancellation is only
// observed between cycles and a started cycle always runs to completion.
func (p *Poller) Run(ctx context.Context) error {
	failures := 0
	for {
		select {
		case <-ctx.Done():
			p.log.Debug("poller cancelled")
			return nil
		default:
		}

		start := time.Now()
		addr := p.target.Get()
		rec, err := p.poll(ctx, addr)
		if err == errConnectTimeout {
			p.timeouts.Add(1)
			continue
		}
		if err != nil {
			failures++
			p.failures.Add(1)
		} else {
			failures = 0
			if err := p.sink.Push(rec); err != nil {
				p.observer.SinkError(p.sink.Name(), err)
				p.log.WithField("sink", p.sink.Name()).WithField("err", err).Info("sink detached, stopping")
				return nil
			} else {
				p.pushes.Add(1)
				p.observer.SnapshotPushed(&rec, time.Since(start))
			}
		}

		if !sleepCtx(ctx, p.policy.cooldown(failures)) {
			p.log.Debug("poller cancelled")
			return nil
		}
	}
}

func (p *Poller) Stats() Stats {
	return Stats{
		Attempts: p.attempts.Load(),
		Timeouts: p.timeouts.Load(),
		Failures: p.failures.Load(),
		Pushes:   p.pushes.Load(),
	}
}

func (p *Poller) poll(ctx context.Context, addr string) (TelemetryRecord, error) {
	p.attempts.Add(1)
	p.observer.ConnectAttempt(addr)

	// the cycle must not be interrupted by cancellation, only by its timeouts
	base := context.WithoutCancel(ctx)

	connectCtx, cancel := context.WithTimeout(base, p.policy.ConnectTimeout)
	sess, err := p.connect(connectCtx, addr)
	cancel()
	if err != nil {
		p.observer.ConnectFailed(addr, err, err == errConnectTimeout)
		p.log.WithField("address", addr).WithField("err", err).Debug("connect failed")
		return TelemetryRecord{}, err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			p.log.WithField("err", err).Debug("unable to close session")
		}
	}()

	fetchCtx, cancel := context.WithTimeout(base, p.policy.ConnectTimeout)
	defer cancel()
	view, err := sess.Fetch(fetchCtx)
	if err != nil {
		p.log.WithField("address", addr).WithField("err", err).Debug("fetch failed")
		return TelemetryRecord{}, errors.Wrap(err, "fetch")
	}
	return Extract(view, p.prefix), nil
}

// connect gives up when ctx expires even if the store ignores ctx. A session
// that arrives after that is closed in the background. At most
// maxPendingConnects store calls run at once; an attempt that cannot get a
// slot before ctx expires times out without calling the store.
func (p *Poller) connect(ctx context.Context, addr string) (Session, error) {
	select {
	case p.pending <- struct{}{}:
	case <-ctx.Done():
		p.log.WithField("address", addr).Debug("too many connects still pending")
		return nil, errConnectTimeout
	}

	type result struct {
		sess Session
		err  error
	}
	done := make(chan result, 1)
	go func() {
		sess, err := p.store.Connect(ctx, addr, p.identity)
		<-p.pending
		done <- result{sess, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if expired(ctx) {
				return nil, errConnectTimeout
			}
			return nil, r.err
		}
		if r.sess == nil {
			return nil, errors.New("store returned no session")
		}
		return r.sess, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.sess != nil {
				_ = r.sess.Close()
			}
		}()
		return nil, errConnectTimeout
	}
}

func expired(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	deadline, ok := ctx.Deadline()
	return ok && !time.Now().Before(deadline)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
