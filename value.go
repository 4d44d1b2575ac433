package seanboard

import (
	"strconv"
)

type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindNumber
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	}
	return "invalid"
}

// Value is one of Bool, Number or Text. The zero Value is invalid and is
// treated as absent by the extractor.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
}

func Bool(v bool) Value {
	return Value{kind: KindBool, b: v}
}

func Number(v float64) Value {
	return Value{kind: KindNumber, n: v}
}

func Text(v string) Value {
	return Value{kind: KindText, s: v}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) Bool() (bool, bool) {
	return v.b, v.kind == KindBool
}

func (v Value) Number() (float64, bool) {
	return v.n, v.kind == KindNumber
}

func (v Value) Text() (string, bool) {
	return v.s, v.kind == KindText
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindText:
		return v.s
	}
	return "<invalid>"
}

type Entry struct {
	Name  string
	Value Value
}

// KeyValueView is the table fetched during one tick. It is never modified
// after NewKeyValueView returns.
type KeyValueView struct {
	values map[string]Value
}

func NewKeyValueView(entries []Entry) KeyValueView {
	values := make(map[string]Value, len(entries))
	for _, e := range entries {
		if e.Value.kind == KindInvalid {
			continue
		}
		values[e.Name] = e.Value
	}
	return KeyValueView{values: values}
}

func (kv KeyValueView) Lookup(key string) (Value, bool) {
	v, ok := kv.values[key]
	return v, ok
}

func (kv KeyValueView) Len() int {
	return len(kv.values)
}
