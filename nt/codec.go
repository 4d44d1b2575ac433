package nt

import (
	"bufio"
	"encoding/binary"
	"github.com/pkg/errors"
	"io"
	"math"
)

const (
	ProtocolRevision uint16 = 0x0300

	clearAllMagic uint32 = 0xD06CB27A

	// strings and raw payloads longer than this are rejected
	maxPayload = 1 << 20
)

type MessageType uint8

const (
	MsgKeepAlive           MessageType = 0x00
	MsgClientHello         MessageType = 0x01
	MsgProtocolUnsupported MessageType = 0x02
	MsgServerHelloComplete MessageType = 0x03
	MsgServerHello         MessageType = 0x04
	MsgClientHelloComplete MessageType = 0x05
	MsgEntryAssignment     MessageType = 0x10
	MsgEntryUpdate         MessageType = 0x11
	MsgEntryFlagsUpdate    MessageType = 0x12
	MsgEntryDelete         MessageType = 0x13
	MsgClearAllEntries     MessageType = 0x14
	MsgRPCExecute          MessageType = 0x20
	MsgRPCResponse         MessageType = 0x21
)

type Type uint8

const (
	TypeBoolean      Type = 0x00
	TypeDouble       Type = 0x01
	TypeString       Type = 0x02
	TypeRaw          Type = 0x03
	TypeBooleanArray Type = 0x10
	TypeDoubleArray  Type = 0x11
	TypeStringArray  Type = 0x12
	TypeRPC          Type = 0x20
)

// Value is a decoded table value; only the field matching Type is set.
type Value struct {
	Type         Type
	Boolean      bool
	Double       float64
	String       string
	Raw          []byte
	BooleanArray []bool
	DoubleArray  []float64
	StringArray  []string
}

func BooleanValue(v bool) Value { return Value{Type: TypeBoolean, Boolean: v} }
func DoubleValue(v float64) Value { return Value{Type: TypeDouble, Double: v} }
func StringValue(v string) Value { return Value{Type: TypeString, String: v} }

type Entry struct {
	Name  string
	ID    uint16
	Seq   uint16
	Flags uint8
	Value Value
}

// Message is one decoded protocol message. Fields not carried by Type are
// left zero.
type Message struct {
	Type     MessageType
	Revision uint16
	Identity string
	Flags    uint8
	Entry    Entry
	Payload  []byte
}

type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	if br, ok := r.(*bufio.Reader); ok {
		return &Reader{r: br}
	}
	return &Reader{r: bufio.NewReader(r)}
}

func (rd *Reader) ReadMessage() (Message, error) {
	b, err := rd.r.ReadByte()
	if err != nil {
		return Message{}, err
	}
	msg := Message{Type: MessageType(b)}
	switch msg.Type {
	case MsgKeepAlive, MsgServerHelloComplete, MsgClientHelloComplete:
	case MsgClientHello:
		if msg.Revision, err = rd.readUint16(); err != nil {
			return msg, err
		}
		msg.Identity, err = rd.readString()
	case MsgProtocolUnsupported:
		msg.Revision, err = rd.readUint16()
	case MsgServerHello:
		if msg.Flags, err = rd.r.ReadByte(); err != nil {
			return msg, err
		}
		msg.Identity, err = rd.readString()
	case MsgEntryAssignment:
		err = rd.readAssignment(&msg)
	case MsgEntryUpdate:
		err = rd.readUpdate(&msg)
	case MsgEntryFlagsUpdate:
		if msg.Entry.ID, err = rd.readUint16(); err != nil {
			return msg, err
		}
		msg.Flags, err = rd.r.ReadByte()
		msg.Entry.Flags = msg.Flags
	case MsgEntryDelete:
		msg.Entry.ID, err = rd.readUint16()
	case MsgClearAllEntries:
		var magic uint32
		if magic, err = rd.readUint32(); err == nil && magic != clearAllMagic {
			err = errors.Errorf("bad clear-all magic %#x", magic)
		}
	case MsgRPCExecute, MsgRPCResponse:
		if msg.Entry.ID, err = rd.readUint16(); err != nil {
			return msg, err
		}
		if _, err = rd.readUint16(); err != nil {
			return msg, err
		}
		msg.Payload, err = rd.readBytes()
	default:
		return msg, errors.Errorf("unknown message type %#x", b)
	}
	return msg, err
}

func (rd *Reader) readAssignment(msg *Message) error {
	var err error
	if msg.Entry.Name, err = rd.readString(); err != nil {
		return err
	}
	typ, err := rd.r.ReadByte()
	if err != nil {
		return err
	}
	if msg.Entry.ID, err = rd.readUint16(); err != nil {
		return err
	}
	if msg.Entry.Seq, err = rd.readUint16(); err != nil {
		return err
	}
	if msg.Entry.Flags, err = rd.r.ReadByte(); err != nil {
		return err
	}
	msg.Flags = msg.Entry.Flags
	msg.Entry.Value, err = rd.readValue(Type(typ))
	return err
}

func (rd *Reader) readUpdate(msg *Message) error {
	var err error
	if msg.Entry.ID, err = rd.readUint16(); err != nil {
		return err
	}
	if msg.Entry.Seq, err = rd.readUint16(); err != nil {
		return err
	}
	typ, err := rd.r.ReadByte()
	if err != nil {
		return err
	}
	msg.Entry.Value, err = rd.readValue(Type(typ))
	return err
}

func (rd *Reader) readValue(typ Type) (Value, error) {
	v := Value{Type: typ}
	var err error
	switch typ {
	case TypeBoolean:
		var b byte
		b, err = rd.r.ReadByte()
		v.Boolean = b != 0
	case TypeDouble:
		v.Double, err = rd.readDouble()
	case TypeString:
		v.String, err = rd.readString()
	case TypeRaw, TypeRPC:
		v.Raw, err = rd.readBytes()
	case TypeBooleanArray:
		var n byte
		if n, err = rd.r.ReadByte(); err != nil {
			return v, err
		}
		v.BooleanArray = make([]bool, n)
		for i := range v.BooleanArray {
			var b byte
			if b, err = rd.r.ReadByte(); err != nil {
				return v, err
			}
			v.BooleanArray[i] = b != 0
		}
	case TypeDoubleArray:
		var n byte
		if n, err = rd.r.ReadByte(); err != nil {
			return v, err
		}
		v.DoubleArray = make([]float64, n)
		for i := range v.DoubleArray {
			if v.DoubleArray[i], err = rd.readDouble(); err != nil {
				return v, err
			}
		}
	case TypeStringArray:
		var n byte
		if n, err = rd.r.ReadByte(); err != nil {
			return v, err
		}
		v.StringArray = make([]string, n)
		for i := range v.StringArray {
			if v.StringArray[i], err = rd.readString(); err != nil {
				return v, err
			}
		}
	default:
		return v, errors.Errorf("unknown value type %#x", uint8(typ))
	}
	return v, err
}

func (rd *Reader) readUint16() (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(rd.r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func (rd *Reader) readUint32() (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(rd.r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func (rd *Reader) readDouble() (float64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(rd.r, buf[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(buf[:])), nil
}

func (rd *Reader) readBytes() ([]byte, error) {
	n, err := binary.ReadUvarint(rd.r)
	if err != nil {
		return nil, err
	}
	if n > maxPayload {
		return nil, errors.Errorf("payload of %d bytes exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(rd.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (rd *Reader) readString() (string, error) {
	b, err := rd.readBytes()
	return string(b), err
}

type Writer struct {
	w   io.Writer
	buf []byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (wr *Writer) KeepAlive() error {
	return wr.send(byte(MsgKeepAlive))
}

func (wr *Writer) ClientHello(identity string) error {
	wr.begin(MsgClientHello)
	wr.putUint16(ProtocolRevision)
	wr.putString(identity)
	return wr.flush()
}

func (wr *Writer) ClientHelloComplete() error {
	return wr.send(byte(MsgClientHelloComplete))
}

func (wr *Writer) ProtocolUnsupported(revision uint16) error {
	wr.begin(MsgProtocolUnsupported)
	wr.putUint16(revision)
	return wr.flush()
}

func (wr *Writer) ServerHello(flags uint8, identity string) error {
	wr.begin(MsgServerHello)
	wr.buf = append(wr.buf, flags)
	wr.putString(identity)
	return wr.flush()
}

func (wr *Writer) ServerHelloComplete() error {
	return wr.send(byte(MsgServerHelloComplete))
}

func (wr *Writer) EntryAssignment(e Entry) error {
	wr.begin(MsgEntryAssignment)
	wr.putString(e.Name)
	wr.buf = append(wr.buf, byte(e.Value.Type))
	wr.putUint16(e.ID)
	wr.putUint16(e.Seq)
	wr.buf = append(wr.buf, e.Flags)
	if err := wr.putValue(e.Value); err != nil {
		return err
	}
	return wr.flush()
}

func (wr *Writer) EntryUpdate(id, seq uint16, v Value) error {
	wr.begin(MsgEntryUpdate)
	wr.putUint16(id)
	wr.putUint16(seq)
	wr.buf = append(wr.buf, byte(v.Type))
	if err := wr.putValue(v); err != nil {
		return err
	}
	return wr.flush()
}

func (wr *Writer) EntryDelete(id uint16) error {
	wr.begin(MsgEntryDelete)
	wr.putUint16(id)
	return wr.flush()
}

func (wr *Writer) ClearAllEntries() error {
	wr.begin(MsgClearAllEntries)
	wr.buf = binary.BigEndian.AppendUint32(wr.buf, clearAllMagic)
	return wr.flush()
}

func (wr *Writer) begin(t MessageType) {
	wr.buf = append(wr.buf[:0], byte(t))
}

func (wr *Writer) send(b byte) error {
	wr.buf = append(wr.buf[:0], b)
	return wr.flush()
}

func (wr *Writer) flush() error {
	_, err := wr.w.Write(wr.buf)
	return err
}

func (wr *Writer) putUint16(v uint16) {
	wr.buf = binary.BigEndian.AppendUint16(wr.buf, v)
}

func (wr *Writer) putDouble(v float64) {
	wr.buf = binary.BigEndian.AppendUint64(wr.buf, math.Float64bits(v))
}

func (wr *Writer) putBytes(b []byte) {
	wr.buf = binary.AppendUvarint(wr.buf, uint64(len(b)))
	wr.buf = append(wr.buf, b...)
}

func (wr *Writer) putString(s string) {
	wr.putBytes([]byte(s))
}

func (wr *Writer) putValue(v Value) error {
	switch v.Type {
	case TypeBoolean:
		if v.Boolean {
			wr.buf = append(wr.buf, 1)
		} else {
			wr.buf = append(wr.buf, 0)
		}
	case TypeDouble:
		wr.putDouble(v.Double)
	case TypeString:
		wr.putString(v.String)
	case TypeRaw, TypeRPC:
		wr.putBytes(v.Raw)
	case TypeBooleanArray:
		if len(v.BooleanArray) > math.MaxUint8 {
			return errors.New("boolean array too long")
		}
		wr.buf = append(wr.buf, byte(len(v.BooleanArray)))
		for _, b := range v.BooleanArray {
			if b {
				wr.buf = append(wr.buf, 1)
			} else {
				wr.buf = append(wr.buf, 0)
			}
		}
	case TypeDoubleArray:
		if len(v.DoubleArray) > math.MaxUint8 {
			return errors.New("double array too long")
		}
		wr.buf = append(wr.buf, byte(len(v.DoubleArray)))
		for _, d := range v.DoubleArray {
			wr.putDouble(d)
		}
	case TypeStringArray:
		if len(v.StringArray) > math.MaxUint8 {
			return errors.New("string array too long")
		}
		wr.buf = append(wr.buf, byte(len(v.StringArray)))
		for _, s := range v.StringArray {
			wr.putString(s)
		}
	default:
		return errors.Errorf("unknown value type %#x", uint8(v.Type))
	}
	return nil
}
