package seanboard

import (
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
)

func TestChannelSinkLatestWins(t *testing.T) {
	sink, ch, closeSink := NewChannelSink("", 1)
	assert.Equal(t, "channel", sink.Name())

	for i := 1; i <= 3; i++ {
		require.NoError(t, sink.Push(TelemetryRecord{FlywheelRPM: float64(i)}))
	}
	rec := <-ch
	assert.Equal(t, 3.0, rec.FlywheelRPM)

	closeSink()
	closeSink()
	err := sink.Push(TelemetryRecord{})
	assert.True(t, errors.Is(err, ErrDisconnected))

	_, ok := <-ch
	assert.False(t, ok)
}

func TestChannelSinkKeepsOrder(t *testing.T) {
	sink, ch, closeSink := NewChannelSink("ordered", 2)
	defer closeSink()

	for i := 1; i <= 3; i++ {
		require.NoError(t, sink.Push(TelemetryRecord{FlywheelRPM: float64(i)}))
	}
	assert.Equal(t, 2.0, (<-ch).FlywheelRPM)
	assert.Equal(t, 3.0, (<-ch).FlywheelRPM)
}

func TestChannelSinkConcurrentPush(t *testing.T) {
	sink, ch, closeSink := NewChannelSink("c", 1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = sink.Push(TelemetryRecord{})
			}
		}()
	}
	wg.Wait()
	assert.Len(t, ch, 1)
	closeSink()
}

func TestCallbackSink(t *testing.T) {
	var got TelemetryRecord
	sink := NewCallbackSink("cb", func(rec TelemetryRecord) error {
		got = rec
		return nil
	})
	require.NoError(t, sink.Push(TelemetryRecord{IntakeAlive: true}))
	assert.True(t, got.IntakeAlive)
	assert.Equal(t, "cb", sink.Name())

	assert.Error(t, NewCallbackSink("", nil).Push(TelemetryRecord{}))
	assert.NoError(t, NewLogSink("").Push(TelemetryRecord{}))
}

func TestFanout(t *testing.T) {
	a := &sinkStub{}
	detaching := &sinkStub{pushFn: func(call int) error {
		if call >= 2 {
			return ErrDisconnected
		}
		return nil
	}}
	flaky := &sinkStub{pushFn: func(call int) error {
		if call == 1 {
			return errors.New("busy")
		}
		return nil
	}}

	obs := &observerStub{}

	f := NewFanout(obs, a, detaching, flaky)
	assert.Equal(t, "fanout(sink-stub,sink-stub,sink-stub)", f.Name())

	// a failing member stays attached
	require.NoError(t, f.Push(TelemetryRecord{}))
	assert.Equal(t, 1, obs.sinkErrors)

	require.NoError(t, f.Push(TelemetryRecord{}))
	require.NoError(t, f.Push(TelemetryRecord{}))

	assert.Equal(t, 3, a.callCount())
	assert.Equal(t, 2, detaching.callCount(), "detached sink is skipped")
	assert.Equal(t, 3, flaky.callCount())
	assert.Equal(t, 1, obs.sinkErrors)
}

func TestFanoutFailingMembersNeverDetach(t *testing.T) {
	failing := &sinkStub{pushFn: func(int) error {
		return errors.New("redis unavailable")
	}}
	f := Fanout(failing)
	for i := 0; i < 3; i++ {
		assert.NoError(t, f.Push(TelemetryRecord{}))
	}
	assert.Equal(t, 3, failing.callCount())
}

func TestFanoutAllDetached(t *testing.T) {
	s1, _, close1 := NewChannelSink("one", 1)
	s2, _, close2 := NewChannelSink("two", 1)
	f := Fanout(s1, s2)

	require.NoError(t, f.Push(TelemetryRecord{}))
	close1()
	require.NoError(t, f.Push(TelemetryRecord{}))
	close2()
	assert.True(t, errors.Is(f.Push(TelemetryRecord{}), ErrDisconnected))

	assert.True(t, errors.Is(Fanout().Push(TelemetryRecord{}), ErrDisconnected))
}

func TestTargetAddressConcurrent(t *testing.T) {
	target := NewTargetAddress("10.0.0.2")
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			target.Set("10.0.0.3")
		}()
		go func() {
			defer wg.Done()
			addr := target.Get()
			assert.Contains(t, []string{"10.0.0.2", "10.0.0.3"}, addr)
		}()
	}
	wg.Wait()
	assert.Equal(t, "10.0.0.3", target.Get())
}
