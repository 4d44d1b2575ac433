// Package nt is a minimal NetworkTables 3.0 client. It connects, performs the
// hello handshake and keeps the table snapshot the server sends before
// completing the handshake.
package nt

import (
	"bufio"
	"context"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"net"
	"sort"
	"strings"
	"time"
)

const DefaultPort = "1735"

var ErrProtocolUnsupported = errors.New("protocol revision unsupported by server")

type Conn struct {
	conn           net.Conn
	r              *Reader
	w              *Writer
	bw             *bufio.Writer
	serverIdentity string
	entries        map[uint16]Entry
}

// Dial connects to address (host or host:port), identifying as identity. It
// returns once the server has finished sending its table.
func Dial(ctx context.Context, address, identity string) (*Conn, error) {
	addr, err := normalizeAddress(address)
	if err != nil {
		return nil, err
	}

	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to dial %s", addr)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = nc.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = nc.SetDeadline(time.Now())
	})
	defer stop()

	bw := bufio.NewWriter(nc)
	c := &Conn{
		conn:    nc,
		r:       NewReader(nc),
		w:       NewWriter(bw),
		bw:      bw,
		entries: make(map[uint16]Entry),
	}
	if err := c.handshake(identity); err != nil {
		_ = nc.Close()
		return nil, errors.Wrapf(err, "handshake with %s", addr)
	}
	_ = nc.SetDeadline(time.Time{})
	return c, nil
}

func (c *Conn) handshake(identity string) error {
	if err := c.w.ClientHello(identity); err != nil {
		return err
	}
	if err := c.bw.Flush(); err != nil {
		return err
	}
	for {
		msg, err := c.r.ReadMessage()
		if err != nil {
			return err
		}
		switch msg.Type {
		case MsgProtocolUnsupported:
			return errors.Wrapf(ErrProtocolUnsupported, "server revision %#04x", msg.Revision)
		case MsgServerHello:
			c.serverIdentity = msg.Identity
			log.WithField("server", msg.Identity).Debug("nt server hello")
		case MsgServerHelloComplete:
			if err := c.w.ClientHelloComplete(); err != nil {
				return err
			}
			return c.bw.Flush()
		default:
			c.apply(msg)
		}
	}
}

func (c *Conn) apply(msg Message) {
	switch msg.Type {
	case MsgEntryAssignment:
		c.entries[msg.Entry.ID] = msg.Entry
	case MsgEntryUpdate:
		e, ok := c.entries[msg.Entry.ID]
		if !ok || e.Value.Type != msg.Entry.Value.Type {
			return
		}
		e.Seq = msg.Entry.Seq
		e.Value = msg.Entry.Value
		c.entries[msg.Entry.ID] = e
	case MsgEntryFlagsUpdate:
		if e, ok := c.entries[msg.Entry.ID]; ok {
			e.Flags = msg.Flags
			c.entries[msg.Entry.ID] = e
		}
	case MsgEntryDelete:
		delete(c.entries, msg.Entry.ID)
	case MsgClearAllEntries:
		c.entries = make(map[uint16]Entry)
	}
}

// Entries returns the table as received during the handshake, sorted by name.
func (c *Conn) Entries() []Entry {
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

func (c *Conn) ServerIdentity() string {
	return c.serverIdentity
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

func normalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", errors.New("empty address")
	}
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address, nil
	}
	return net.JoinHostPort(strings.Trim(address, "[]"), DefaultPort), nil
}
