package seanboard

import (
	"context"
	"github.com/jd3nn1s/seanboard/nt"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

type ntConnStub struct {
	entries []nt.Entry
	closed  bool
}

func (c *ntConnStub) Entries() []nt.Entry {
	return c.entries
}

func (c *ntConnStub) Close() error {
	c.closed = true
	return nil
}

func TestNetworkTablesStore(t *testing.T) {
	conn := &ntConnStub{entries: []nt.Entry{
		{Name: "/data/flywheel_rpm", Value: nt.DoubleValue(4500)},
		{Name: "/data/compressor_enabled", Value: nt.BooleanValue(true)},
		{Name: "/data/unix_time", Value: nt.StringValue("1690000000")},
		{Name: "/data/intake_power", Value: nt.Value{Type: nt.TypeDoubleArray, DoubleArray: []float64{1, 2}}},
	}}

	var gotAddr, gotIdentity string
	origDial := ntDial
	defer func() {
		ntDial = origDial
	}()
	ntDial = func(ctx context.Context, address, identity string) (ntConn, error) {
		gotAddr, gotIdentity = address, identity
		return conn, nil
	}

	sess, err := NewNetworkTablesStore().Connect(context.Background(), "10.0.0.2", DefaultIdentity)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", gotAddr)
	assert.Equal(t, DefaultIdentity, gotIdentity)

	view, err := sess.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, view.Len(), "array values are not exposed")

	rec := Extract(view, TablePrefix)
	assert.Equal(t, 4500.0, rec.FlywheelRPM)
	assert.True(t, rec.CompressorEnabled)
	assert.Equal(t, "1690000000", rec.UnixTime)
	assert.Equal(t, 0.0, rec.IntakePower)

	require.NoError(t, sess.Close())
	assert.True(t, conn.closed)
}

func TestNetworkTablesStoreDialError(t *testing.T) {
	origDial := ntDial
	defer func() {
		ntDial = origDial
	}()
	ntDial = func(ctx context.Context, address, identity string) (ntConn, error) {
		return nil, errors.New("connection refused")
	}

	sess, err := NewNetworkTablesStore().Connect(context.Background(), "10.0.0.2", DefaultIdentity)
	assert.Error(t, err)
	assert.Nil(t, sess)
}

func TestNetworkTablesFetchCancelled(t *testing.T) {
	sess := &ntSession{conn: &ntConnStub{}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sess.Fetch(ctx)
	assert.Error(t, err)
}
