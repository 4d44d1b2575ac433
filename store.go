package seanboard

import (
	"context"
	"github.com/jd3nn1s/seanboard/nt"
)

// to allow testing
var ntDial = func(ctx context.Context, address, identity string) (ntConn, error) {
	return nt.Dial(ctx, address, identity)
}

type ntConn interface {
	Entries() []nt.Entry
	Close() error
}

type ntStore struct{}

// NewNetworkTablesStore returns a Store that opens a fresh NetworkTables
// connection for every session.
func NewNetworkTablesStore() Store {
	return &ntStore{}
}

func (s *ntStore) Connect(ctx context.Context, address, identity string) (Session, error) {
	c, err := ntDial(ctx, address, identity)
	if err != nil {
		return nil, err
	}
	return &ntSession{conn: c}, nil
}

type ntSession struct {
	conn ntConn
}

func (s *ntSession) Fetch(ctx context.Context) (KeyValueView, error) {
	if err := ctx.Err(); err != nil {
		return KeyValueView{}, err
	}
	entries := s.conn.Entries()
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if v, ok := valueFromNT(e.Value); ok {
			out = append(out, Entry{Name: e.Name, Value: v})
		}
	}
	return NewKeyValueView(out), nil
}

func (s *ntSession) Close() error {
	return s.conn.Close()
}

// arrays, raw and rpc values have no Value equivalent
func valueFromNT(v nt.Value) (Value, bool) {
	switch v.Type {
	case nt.TypeBoolean:
		return Bool(v.Boolean), true
	case nt.TypeDouble:
		return Number(v.Double), true
	case nt.TypeString:
		return Text(v.String), true
	}
	return Value{}, false
}
