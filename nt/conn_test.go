package nt

import (
	"bufio"
	"context"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net"
	"testing"
	"time"
)

// serve accepts one connection and hands it to fn.
func serve(t *testing.T, fn func(r *Reader, w *Writer, bw *bufio.Writer)) (string, <-chan struct{}) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer l.Close()
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		bw := bufio.NewWriter(conn)
		fn(NewReader(conn), NewWriter(bw), bw)
	}()
	return l.Addr().String(), done
}

func TestDialHandshake(t *testing.T) {
	gotHello := make(chan Message, 1)
	gotComplete := make(chan Message, 1)
	addr, done := serve(t, func(r *Reader, w *Writer, bw *bufio.Writer) {
		msg, err := r.ReadMessage()
		if err != nil {
			return
		}
		gotHello <- msg
		_ = w.ServerHello(0, "roborio")
		_ = w.KeepAlive()
		_ = w.EntryAssignment(Entry{Name: "/data/flywheel_rpm", ID: 1, Value: DoubleValue(4500)})
		_ = w.EntryAssignment(Entry{Name: "/data/compressor_enabled", ID: 2, Value: BooleanValue(true)})
		_ = w.EntryAssignment(Entry{Name: "/data/unix_time", ID: 3, Value: StringValue("1690000000")})
		_ = w.EntryAssignment(Entry{Name: "/data/path", ID: 4, Value: Value{Type: TypeDoubleArray, DoubleArray: []float64{1, 2}}})
		_ = w.EntryUpdate(1, 2, DoubleValue(4600))
		_ = w.EntryDelete(4)
		_ = w.ServerHelloComplete()
		_ = bw.Flush()
		msg, err = r.ReadMessage()
		if err != nil {
			return
		}
		gotComplete <- msg
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, err := Dial(ctx, addr, "seanboard")
	require.NoError(t, err)
	defer c.Close()

	hello := <-gotHello
	assert.Equal(t, MsgClientHello, hello.Type)
	assert.Equal(t, ProtocolRevision, hello.Revision)
	assert.Equal(t, "seanboard", hello.Identity)
	assert.Equal(t, MsgClientHelloComplete, (<-gotComplete).Type)
	<-done

	assert.Equal(t, "roborio", c.ServerIdentity())
	entries := c.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "/data/compressor_enabled", entries[0].Name)
	assert.True(t, entries[0].Value.Boolean)
	assert.Equal(t, "/data/flywheel_rpm", entries[1].Name)
	assert.Equal(t, 4600.0, entries[1].Value.Double)
	assert.Equal(t, uint16(2), entries[1].Seq)
	assert.Equal(t, "1690000000", entries[2].Value.String)
}

func TestDialProtocolUnsupported(t *testing.T) {
	addr, _ := serve(t, func(r *Reader, w *Writer, bw *bufio.Writer) {
		_, _ = r.ReadMessage()
		_ = w.ProtocolUnsupported(0x0200)
		_ = bw.Flush()
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := Dial(ctx, addr, "seanboard")
	assert.True(t, errors.Is(err, ErrProtocolUnsupported))
}

func TestDialTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	addr, _ := serve(t, func(r *Reader, w *Writer, bw *bufio.Writer) {
		// never answer the hello
		<-release
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := Dial(ctx, addr, "seanboard")
	assert.Error(t, err)
	assert.True(t, time.Since(start) < time.Second)
}

func TestClearAllEntries(t *testing.T) {
	addr, _ := serve(t, func(r *Reader, w *Writer, bw *bufio.Writer) {
		_, _ = r.ReadMessage()
		_ = w.EntryAssignment(Entry{Name: "/data/stale", ID: 1, Value: BooleanValue(true)})
		_ = w.ClearAllEntries()
		_ = w.EntryAssignment(Entry{Name: "/data/fresh", ID: 1, Value: BooleanValue(false)})
		_ = w.ServerHelloComplete()
		_ = bw.Flush()
		_, _ = r.ReadMessage()
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, err := Dial(ctx, addr, "seanboard")
	require.NoError(t, err)
	defer c.Close()

	entries := c.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "/data/fresh", entries[0].Name)
}

func TestNormalizeAddress(t *testing.T) {
	addr, err := normalizeAddress("10.0.0.2")
	assert.NoError(t, err)
	assert.Equal(t, "10.0.0.2:1735", addr)

	addr, err = normalizeAddress("roborio-1234-frc.local:5810")
	assert.NoError(t, err)
	assert.Equal(t, "roborio-1234-frc.local:5810", addr)

	addr, err = normalizeAddress("::1")
	assert.NoError(t, err)
	assert.Equal(t, "[::1]:1735", addr)

	_, err = normalizeAddress("  ")
	assert.Error(t, err)
}
