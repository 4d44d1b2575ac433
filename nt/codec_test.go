package nt

import (
	"bytes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestEntryAssignmentEncoding(t *testing.T) {
	buf := bytes.Buffer{}
	w := NewWriter(&buf)
	require.NoError(t, w.EntryAssignment(Entry{
		Name:  "/a",
		ID:    0x0102,
		Seq:   7,
		Flags: 1,
		Value: BooleanValue(true),
	}))

	expected := []byte{
		0x10,      // entry assignment
		0x02, '/', 'a',
		0x00,       // boolean
		0x01, 0x02, // id
		0x00, 0x07, // seq
		0x01,       // flags
		0x01,       // true
	}
	assert.Equal(t, expected, buf.Bytes())
}

func TestReadComplexValues(t *testing.T) {
	buf := bytes.Buffer{}
	w := NewWriter(&buf)
	require.NoError(t, w.EntryAssignment(Entry{Name: "s", ID: 1, Value: Value{Type: TypeStringArray, StringArray: []string{"x", "yz"}}}))
	require.NoError(t, w.EntryAssignment(Entry{Name: "b", ID: 2, Value: Value{Type: TypeBooleanArray, BooleanArray: []bool{true, false}}}))
	require.NoError(t, w.EntryAssignment(Entry{Name: "r", ID: 3, Value: Value{Type: TypeRaw, Raw: []byte{9, 8}}}))

	r := NewReader(&buf)
	msg, err := r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "yz"}, msg.Entry.Value.StringArray)

	msg, err = r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, msg.Entry.Value.BooleanArray)

	msg, err = r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8}, msg.Entry.Value.Raw)
}

func TestReadLongString(t *testing.T) {
	long := string(bytes.Repeat([]byte{'a'}, 300))
	buf := bytes.Buffer{}
	require.NoError(t, NewWriter(&buf).ClientHello(long))

	// 300 needs a two byte uleb128 length
	assert.Equal(t, []byte{0xac, 0x02}, buf.Bytes()[3:5])

	msg, err := NewReader(&buf).ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, long, msg.Identity)
}

func TestReadUnknownMessage(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte{0x7f})).ReadMessage()
	assert.Error(t, err)
}

func TestReadBadClearMagic(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte{0x14, 0, 0, 0, 1})).ReadMessage()
	assert.Error(t, err)
}

func TestReadTruncated(t *testing.T) {
	buf := bytes.Buffer{}
	require.NoError(t, NewWriter(&buf).EntryAssignment(Entry{Name: "/d", ID: 1, Value: DoubleValue(1.5)}))
	truncated := buf.Bytes()[:buf.Len()-3]
	_, err := NewReader(bytes.NewReader(truncated)).ReadMessage()
	assert.Error(t, err)
}
