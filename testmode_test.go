package seanboard

import (
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestTriangle(t *testing.T) {
	assert.Equal(t, 0.0, triangle(0, 1, 4))
	assert.Equal(t, 2.0, triangle(2, 1, 4))
	assert.Equal(t, 4.0, triangle(4, 1, 4))
	assert.Equal(t, 3.0, triangle(5, 1, 4))
	assert.Equal(t, 0.0, triangle(8, 1, 4))
}

func TestSimStore(t *testing.T) {
	store := NewSimStore()
	store.now = func() time.Time {
		return time.UnixMilli(1690000000123)
	}

	var last TelemetryRecord
	for i := 0; i < 50; i++ {
		sess, err := store.Connect(context.Background(), "", DefaultIdentity)
		require.NoError(t, err)
		view, err := sess.Fetch(context.Background())
		require.NoError(t, err)
		require.NoError(t, sess.Close())

		rec := Extract(view, TablePrefix)
		assert.True(t, rec.IntakeAlive)
		assert.Equal(t, "1690000000123", rec.UnixTime)
		assert.GreaterOrEqual(t, rec.FlywheelRPM, 0.0)
		assert.LessOrEqual(t, rec.FlywheelRPM, 4500.0)
		assert.NotEqual(t, rec.ForwardSolenoid, rec.ReverseSolenoid)
		if i > 0 {
			assert.NotEqual(t, last.LeftPos, rec.LeftPos, "data advances per session")
		}
		last = rec
	}
}

func TestSimStoreEveryFieldPresent(t *testing.T) {
	sess, err := NewSimStore().Connect(context.Background(), "", DefaultIdentity)
	require.NoError(t, err)
	view, err := sess.Fetch(context.Background())
	require.NoError(t, err)

	for _, spec := range Fields() {
		v, ok := view.Lookup(TablePrefix + spec.Name)
		if assert.True(t, ok, spec.Name) {
			assert.Equal(t, spec.Kind, v.Kind(), spec.Name)
		}
	}
}

func TestSimStoreCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSimStore().Connect(ctx, "", DefaultIdentity)
	assert.Error(t, err)
}
